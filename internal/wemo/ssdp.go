package wemo

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"

	"github.com/muurk/smartrelay/internal/logging"
	"github.com/muurk/smartrelay/internal/version"
)

// SSDP multicast group and port.
const (
	ssdpGroup = "239.255.255.250"
	ssdpPort  = 1900
)

var ssdpAddr = &net.UDPAddr{IP: net.ParseIP(ssdpGroup), Port: ssdpPort}

// Search targets the responder answers.
const (
	STAll        = "ssdp:all"
	STRootDevice = "upnp:rootdevice"
	STBelkinAny  = "urn:Belkin:device:**"
	STControllee = deviceType
	STBasicEvent = basicEventType
)

// searchTargets lists what is announced for ssdp:all.
var searchTargets = []string{STRootDevice, STBelkinAny, STControllee, STBasicEvent}

// mSearch is a parsed discovery request.
type mSearch struct {
	ST string
	MX int
}

// parseMSearch reads an SSDP datagram. It returns ok=false for anything that
// is not an M-SEARCH discovery request.
func parseMSearch(data []byte) (mSearch, bool) {
	req, err := http.ReadRequest(bufio.NewReader(bytes.NewReader(data)))
	if err != nil {
		return mSearch{}, false
	}
	if req.Method != "M-SEARCH" {
		return mSearch{}, false
	}
	if strings.Trim(req.Header.Get("MAN"), `"`) != "ssdp:discover" {
		return mSearch{}, false
	}
	var mx int
	_, _ = fmt.Sscanf(req.Header.Get("MX"), "%d", &mx)
	return mSearch{ST: strings.TrimSpace(req.Header.Get("ST")), MX: mx}, true
}

// matchTargets returns the search targets to answer for st, or nil.
func matchTargets(st string) []string {
	switch {
	case strings.EqualFold(st, STAll):
		return searchTargets
	case strings.EqualFold(st, STRootDevice),
		strings.EqualFold(st, STBelkinAny),
		strings.EqualFold(st, STControllee),
		strings.EqualFold(st, STBasicEvent):
		return []string{st}
	default:
		return nil
	}
}

// searchResponse builds the unicast answer for one device and target.
func searchResponse(location, udn, st, bootID string, now time.Time) []byte {
	usn := udn
	if st != udn {
		usn = udn + "::" + st
	}
	var b strings.Builder
	b.WriteString("HTTP/1.1 200 OK\r\n")
	b.WriteString("CACHE-CONTROL: max-age=86400\r\n")
	fmt.Fprintf(&b, "DATE: %s\r\n", now.UTC().Format(http.TimeFormat))
	b.WriteString("EXT:\r\n")
	fmt.Fprintf(&b, "LOCATION: %s\r\n", location)
	b.WriteString("OPT: \"http://schemas.upnp.org/upnp/1/0/\"; ns=01\r\n")
	fmt.Fprintf(&b, "01-NLS: %s\r\n", bootID)
	fmt.Fprintf(&b, "SERVER: %s\r\n", version.ServerHeader())
	b.WriteString("X-User-Agent: redsonic\r\n")
	fmt.Fprintf(&b, "ST: %s\r\n", st)
	fmt.Fprintf(&b, "USN: %s\r\n", usn)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// responder answers M-SEARCH requests for every registered device.
type responder struct {
	conn    *ipv4.PacketConn
	answers func(st string) [][]byte

	wg     sync.WaitGroup
	closed chan struct{}
}

func listenSSDP(localIP string, answers func(st string) [][]byte) (*responder, error) {
	c, err := net.ListenPacket("udp4", fmt.Sprintf("0.0.0.0:%d", ssdpPort))
	if err != nil {
		return nil, fmt.Errorf("listen ssdp: %w", err)
	}
	p := ipv4.NewPacketConn(c)

	iface := interfaceFor(localIP)
	if err := p.JoinGroup(iface, &net.UDPAddr{IP: ssdpAddr.IP}); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("join %s: %w", ssdpGroup, err)
	}
	if err := p.SetControlMessage(ipv4.FlagDst, true); err != nil {
		logging.Debug("SSDP control messages unavailable", zap.Error(err))
	}

	r := &responder{conn: p, answers: answers, closed: make(chan struct{})}
	r.wg.Add(1)
	go r.serve()
	return r, nil
}

func (r *responder) serve() {
	defer r.wg.Done()
	buf := make([]byte, 2048)
	for {
		n, _, src, err := r.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-r.closed:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logging.Warn("SSDP read failed", zap.Error(err))
			continue
		}

		req, ok := parseMSearch(buf[:n])
		if !ok {
			continue
		}
		logging.LogDatagram("in", src.String(), buf[:n])

		for _, resp := range r.answers(req.ST) {
			if _, err := r.conn.WriteTo(resp, nil, src); err != nil {
				logging.Warn("SSDP reply failed",
					zap.String("remote_addr", src.String()),
					zap.Error(err),
				)
				continue
			}
			logging.LogDatagram("out", src.String(), resp)
		}
	}
}

func (r *responder) Close() error {
	close(r.closed)
	err := r.conn.Close()
	r.wg.Wait()
	return err
}

// interfaceFor finds the interface carrying ip. nil lets the kernel choose.
func interfaceFor(ip string) *net.Interface {
	if ip == "" {
		return nil
	}
	want := net.ParseIP(ip)
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && ipnet.IP.Equal(want) {
				return &ifaces[i]
			}
		}
	}
	return nil
}

// SearchResult is one answer to a discovery search.
type SearchResult struct {
	Location string
	USN      string
	ST       string
	Server   string
	From     string

	// Description is filled from Location when it could be fetched.
	Description *Description
}

// Search multicasts an M-SEARCH for WeMo devices and collects the answers
// that arrive within timeout. Results are unique by USN.
func Search(ctx context.Context, st string, timeout time.Duration) ([]SearchResult, error) {
	if st == "" {
		st = STBelkinAny
	}
	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("open search socket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	mx := int(timeout / time.Second)
	if mx < 1 {
		mx = 1
	}
	msg := fmt.Sprintf("M-SEARCH * HTTP/1.1\r\nHOST: %s:%d\r\nMAN: \"ssdp:discover\"\r\nMX: %d\r\nST: %s\r\n\r\n",
		ssdpGroup, ssdpPort, mx, st)
	if _, err := conn.WriteTo([]byte(msg), ssdpAddr); err != nil {
		return nil, fmt.Errorf("send M-SEARCH: %w", err)
	}

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	seen := make(map[string]bool)
	var results []SearchResult
	buf := make([]byte, 2048)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			return results, fmt.Errorf("read search response: %w", err)
		}
		res, ok := parseSearchResponse(buf[:n])
		if !ok || seen[res.USN] {
			continue
		}
		seen[res.USN] = true
		res.From = from.String()
		results = append(results, res)
	}
	return results, ctx.Err()
}

func parseSearchResponse(data []byte) (SearchResult, bool) {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(data)), nil)
	if err != nil {
		return SearchResult{}, false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return SearchResult{}, false
	}
	res := SearchResult{
		Location: resp.Header.Get("Location"),
		USN:      resp.Header.Get("USN"),
		ST:       resp.Header.Get("ST"),
		Server:   resp.Header.Get("Server"),
	}
	if res.Location == "" {
		return SearchResult{}, false
	}
	return res, true
}

// FetchDescription downloads and decodes the setup.xml at location.
func FetchDescription(ctx context.Context, client *http.Client, location string) (*Description, error) {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", location, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: HTTP %d", location, resp.StatusCode)
	}
	return ParseDescription(resp.Body)
}
