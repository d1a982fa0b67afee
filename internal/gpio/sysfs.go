package gpio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/smartrelay/internal/logging"
)

// DefaultSysfsRoot is where the kernel exposes the legacy GPIO interface.
const DefaultSysfsRoot = "/sys/class/gpio"

// Sysfs drives pins through the Linux sysfs GPIO interface. Pins are exported
// on Configure and unexported on Close.
type Sysfs struct {
	root     string
	mu       sync.Mutex
	exported []int
	values   map[int]*os.File
}

// NewSysfs creates a backend rooted at root (DefaultSysfsRoot when empty).
func NewSysfs(root string) *Sysfs {
	if root == "" {
		root = DefaultSysfsRoot
	}
	return &Sysfs{
		root:   root,
		values: make(map[int]*os.File),
	}
}

func (s *Sysfs) pinDir(pin int) string {
	return filepath.Join(s.root, "gpio"+strconv.Itoa(pin))
}

func (s *Sysfs) Configure(pin int, mode Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.pinDir(pin)); errors.Is(err, os.ErrNotExist) {
		if err := writeFile(filepath.Join(s.root, "export"), strconv.Itoa(pin)); err != nil {
			return fmt.Errorf("export gpio%d: %w", pin, err)
		}
		s.exported = append(s.exported, pin)
		// udev needs a moment to fix permissions on the new node
		waitForFile(filepath.Join(s.pinDir(pin), "direction"), time.Second)
	}

	direction := "in"
	if mode == Output {
		direction = "out"
	}
	if err := writeFile(filepath.Join(s.pinDir(pin), "direction"), direction); err != nil {
		return fmt.Errorf("set gpio%d direction: %w", pin, err)
	}

	f, err := os.OpenFile(filepath.Join(s.pinDir(pin), "value"), os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("open gpio%d value: %w", pin, err)
	}
	if old, ok := s.values[pin]; ok {
		_ = old.Close()
	}
	s.values[pin] = f

	logging.Debug("GPIO configured", zap.Int("pin", pin), zap.String("direction", direction))
	return nil
}

func (s *Sysfs) Write(pin int, level Level) error {
	f, err := s.value(pin)
	if err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte{'0' + byte(level)}, 0); err != nil {
		return fmt.Errorf("write gpio%d: %w", pin, err)
	}
	return nil
}

func (s *Sysfs) Read(pin int) (Level, error) {
	f, err := s.value(pin)
	if err != nil {
		return Low, err
	}
	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return Low, fmt.Errorf("read gpio%d: %w", pin, err)
	}
	if buf[0] == '1' {
		return High, nil
	}
	return Low, nil
}

func (s *Sysfs) value(pin int) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.values[pin]
	if !ok {
		return nil, fmt.Errorf("gpio%d not configured", pin)
	}
	return f, nil
}

// Close releases file handles and unexports the pins this backend exported.
func (s *Sysfs) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for pin, f := range s.values {
		if err := f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gpio%d: %w", pin, err))
		}
	}
	s.values = make(map[int]*os.File)

	for _, pin := range s.exported {
		if err := writeFile(filepath.Join(s.root, "unexport"), strconv.Itoa(pin)); err != nil {
			errs = append(errs, fmt.Errorf("unexport gpio%d: %w", pin, err))
		}
	}
	s.exported = nil
	return errors.Join(errs...)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(strings.TrimSpace(content)), 0)
}

func waitForFile(path string, limit time.Duration) {
	deadline := time.Now().Add(limit)
	for time.Now().Before(deadline) {
		if f, err := os.OpenFile(path, os.O_WRONLY, 0); err == nil {
			_ = f.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
}
