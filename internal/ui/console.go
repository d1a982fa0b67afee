package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/smartrelay/internal/device"
	"github.com/muurk/smartrelay/internal/gpio"
)

const (
	// refreshInterval is how often the panel re-reads the simulated pins.
	refreshInterval = 50 * time.Millisecond

	// minClickHold keeps a click visible on the panel with a fast loop.
	minClickHold = 200 * time.Millisecond

	maxLogLines = 8
	reportQueue = 16
)

// Panel is the simulated pin bank behind the console. *gpio.Sim implements it.
type Panel interface {
	Set(pin int, level gpio.Level)
	Level(pin int) gpio.Level
}

// ConsoleInfo is the static text shown under the panel.
type ConsoleInfo struct {
	Device  string
	UDN     string
	WeMo    string // setup.xml location, empty when the transport is off
	API     string // REST base URL, empty when the API is off
	Network string
}

type report struct {
	on bool
	at time.Time
}

// Console is an interactive front panel for a daemon running on the
// simulated backend. It implements device.Reporter to show state changes.
type Console struct {
	panel   Panel
	pins    device.Pins
	info    ConsoleInfo
	hold    time.Duration
	reports chan report
}

// NewConsole creates a console for the given pins. tick is the poll loop
// period; a click holds the button long enough for the loop to sample it.
func NewConsole(panel Panel, pins device.Pins, info ConsoleInfo, tick time.Duration) *Console {
	return &Console{
		panel:   panel,
		pins:    pins,
		info:    info,
		hold:    clickHoldFor(tick),
		reports: make(chan report, reportQueue),
	}
}

// clickHoldFor returns how long a click keeps the button down: two loop
// periods, so at least one sample lands inside the press.
func clickHoldFor(tick time.Duration) time.Duration {
	return max(2*tick, minClickHold)
}

// ReportState implements device.Reporter. Reports that do not fit in the
// queue are dropped; the panel still re-reads the pins.
func (c *Console) ReportState(id int, on bool, level uint8) {
	select {
	case c.reports <- report{on: on, at: time.Now()}:
	default:
	}
}

// Run shows the console until the user quits or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	p := tea.NewProgram(c.Model(), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// Model returns the Bubble Tea model of the console.
func (c *Console) Model() ConsoleModel {
	width, height := GetTerminalSize()
	return ConsoleModel{
		console: c,
		keys:    newConsoleKeys(),
		help:    help.New(),
		width:   width,
		height:  height,
	}
}

type consoleKeys struct {
	Click key.Binding
	Hold  key.Binding
	Quit  key.Binding
}

func newConsoleKeys() consoleKeys {
	return consoleKeys{
		Click: key.NewBinding(
			key.WithKeys(" ", "space", "enter"),
			key.WithHelp("space", "press button"),
		),
		Hold: key.NewBinding(
			key.WithKeys("h"),
			key.WithHelp("h", "hold/release button"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c", "esc"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k consoleKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Click, k.Hold, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k consoleKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Click, k.Hold, k.Quit}}
}

type refreshMsg time.Time
type reportMsg report
type releaseMsg struct{ seq int }

// ConsoleModel is the Bubble Tea model behind Console.
type ConsoleModel struct {
	console *Console
	keys    consoleKeys
	help    help.Model

	pressed bool
	held    bool
	seq     int

	relay bool
	led   bool
	log   []string

	width  int
	height int
}

// Init implements tea.Model
func (m ConsoleModel) Init() tea.Cmd {
	return tea.Batch(refresh(), m.waitForReport())
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m ConsoleModel) waitForReport() tea.Cmd {
	reports := m.console.reports
	return func() tea.Msg { return reportMsg(<-reports) }
}

// Update implements tea.Model
func (m ConsoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = clampWidth(msg.Width)
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Click):
			if m.held {
				return m, nil
			}
			m.setButton(true)
			m.seq++
			seq := m.seq
			return m, tea.Tick(m.console.hold, func(time.Time) tea.Msg { return releaseMsg{seq: seq} })
		case key.Matches(msg, m.keys.Hold):
			m.held = !m.held
			m.seq++
			m.setButton(m.held)
			return m, nil
		}

	case releaseMsg:
		if msg.seq == m.seq && !m.held {
			m.setButton(false)
		}
		return m, nil

	case refreshMsg:
		m.readOutputs()
		return m, refresh()

	case reportMsg:
		m.appendLog(fmt.Sprintf("%s  power %s", msg.at.Format("15:04:05.000"), onOff(msg.on)))
		m.readOutputs()
		return m, m.waitForReport()
	}

	return m, nil
}

func (m *ConsoleModel) setButton(pressed bool) {
	m.pressed = pressed
	pin := m.console.pins.Button
	m.console.panel.Set(pin.Number, pin.Level(pressed))
}

func (m *ConsoleModel) readOutputs() {
	pins := m.console.pins
	m.relay = pins.Relay.Active(m.console.panel.Level(pins.Relay.Number))
	m.led = pins.LED.Active(m.console.panel.Level(pins.LED.Number))
}

func (m *ConsoleModel) appendLog(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

// View implements tea.Model
func (m ConsoleModel) View() string {
	info := m.console.info
	var b strings.Builder

	b.WriteString(TitleStyle.Render(strings.ToUpper(info.Device)))
	b.WriteString("\n")
	b.WriteString(SubtitleStyle.Render("simulated front panel"))
	b.WriteString("\n\n")

	led := LEDDarkStyle.Render(DarkMarker + " LED off")
	if m.led {
		led = LEDLitStyle.Render(LitMarker + " LED lit")
	}
	relay := RelayOffStyle.Render("□ relay released")
	if m.relay {
		relay = RelayOnStyle.Render("■ relay energized")
	}
	button := LEDDarkStyle.Render("( ) button released")
	if m.pressed {
		button = ButtonDownStyle.Render("(●) button pressed")
		if m.held {
			button += HintStyle.Render("  held")
		}
	}
	panel := lipgloss.JoinVertical(lipgloss.Left, led, relay, button)
	b.WriteString(BoxStyle(m.width, PrimaryColor).Render(panel))
	b.WriteString("\n\n")

	rows := [][2]string{
		{"Power", onOff(m.relay)},
		{"UDN", info.UDN},
		{"WeMo", orDisabled(info.WeMo)},
		{"API", orDisabled(info.API)},
		{"Network", info.Network},
	}
	for _, row := range rows {
		if row[1] == "" {
			continue
		}
		b.WriteString(KeyStyle.Render(row[0]+":") + " " + ValueStyle.Render(row[1]) + "\n")
	}

	if len(m.log) > 0 {
		b.WriteString("\n")
		for _, line := range m.log {
			b.WriteString(LogLineStyle.Render(line) + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	b.WriteString("\n")
	return b.String()
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func orDisabled(s string) string {
	if s == "" {
		return "disabled"
	}
	return s
}
