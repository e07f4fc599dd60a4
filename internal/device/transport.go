// Package device owns the physical serial connection to the fingerprint
// scanner and converts it into a classified event stream plus a write
// capability. At most one handle is live at a time.
package device

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"attendance-backend/config"
	"attendance-backend/internal/bus"
	"attendance-backend/internal/metric"
	"attendance-backend/internal/protocol"
)

// ErrNotConnected is returned by Write when no open handle exists.
var ErrNotConnected = errors.New("device not connected")

// ErrNoPortAvailable is returned by Connect when no candidate port resolves.
var ErrNoPortAvailable = errors.New("no serial port available")

// PortInfo describes one discovered serial port.
type PortInfo struct {
	Path    string
	IsUSB   bool
	VID     string
	PID     string
	Product string
}

// Lister enumerates currently attached serial ports.
type Lister func() ([]PortInfo, error)

// Opener opens a serial port at the given baud rate.
type Opener func(path string, baud int) (io.ReadWriteCloser, error)

func listSerialPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Path:    d.Name,
			IsUSB:   d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Product: d.Product,
		})
	}
	return ports, nil
}

func openSerialPort(path string, baud int) (io.ReadWriteCloser, error) {
	return serial.Open(path, &serial.Mode{BaudRate: baud})
}

// usbPathPattern matches the usual USB/ACM serial device naming across
// platforms (ttyUSB0, ttyACM0, cu.usbserial-1420, COM3).
var usbPathPattern = regexp.MustCompile(`(?i)(ttyusb|ttyacm|usbserial|usbmodem|wchusbserial|com\d+)`)

// knownVendors are product/manufacturer substrings of the serial bridge
// chips commonly found on fingerprint scanner boards.
var knownVendors = []string{"arduino", "ch340", "ch341", "ftdi", "cp210", "silicon labs", "wch"}

// ResolvePort picks the port to open. Each configured candidate is tried in
// order: the literal "auto" applies the discovery heuristic, any other value
// must be present among the discovered paths. An empty configured list
// behaves as ["auto"].
func ResolvePort(configured []string, discovered []PortInfo) (string, bool) {
	if len(configured) == 0 {
		configured = []string{"auto"}
	}
	for _, candidate := range configured {
		if candidate == "auto" {
			if path, ok := autoSelect(discovered); ok {
				return path, true
			}
			continue
		}
		found := false
		for _, p := range discovered {
			if p.Path == candidate {
				found = true
				break
			}
		}
		if found {
			return candidate, true
		}
		log.Printf("configured serial port %s not available, trying next candidate", candidate)
	}
	return "", false
}

// autoSelect prefers a port that looks like a USB serial adapter, either by
// path or by vendor string, then falls back to the first discovered port.
func autoSelect(discovered []PortInfo) (string, bool) {
	for _, p := range discovered {
		if usbPathPattern.MatchString(p.Path) {
			return p.Path, true
		}
		product := strings.ToLower(p.Product)
		for _, v := range knownVendors {
			if product != "" && strings.Contains(product, v) {
				return p.Path, true
			}
		}
	}
	if len(discovered) > 0 {
		return discovered[0].Path, true
	}
	return "", false
}

// Transport owns the device handle. All writes go through Write; nothing
// else in the process may touch the port directly.
type Transport struct {
	cfg    config.DeviceConfig
	bus    *bus.Bus
	lister Lister
	opener Opener

	mu        sync.Mutex
	port      io.ReadWriteCloser
	portPath  string
	connected bool
	lastErr   error
	retried   bool
	closed    bool

	writeMu sync.Mutex
}

// New creates a transport backed by real serial port enumeration.
func New(cfg config.DeviceConfig, b *bus.Bus) *Transport {
	return &Transport{cfg: cfg, bus: b, lister: listSerialPorts, opener: openSerialPort}
}

// NewWithDeps creates a transport with injected discovery and open
// functions. Used by tests.
func NewWithDeps(cfg config.DeviceConfig, b *bus.Bus, lister Lister, opener Opener) *Transport {
	return &Transport{cfg: cfg, bus: b, lister: lister, opener: opener}
}

// Connect discovers, resolves and opens the scanner port, then starts the
// read loop that feeds classified events onto the bus.
func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.New("transport is shut down")
	}
	if t.connected {
		return nil
	}

	discovered, err := t.lister()
	if err != nil {
		t.lastErr = err
		return err
	}

	path, ok := ResolvePort(t.cfg.Ports, discovered)
	if !ok {
		t.lastErr = ErrNoPortAvailable
		return ErrNoPortAvailable
	}

	port, err := t.opener(path, t.cfg.BaudRate)
	if err != nil {
		t.lastErr = fmt.Errorf("failed to open %s: %w", path, err)
		return t.lastErr
	}

	t.port = port
	t.portPath = path
	t.connected = true
	t.lastErr = nil
	t.retried = false
	metric.SetDeviceConnected(true)
	log.Printf("fingerprint scanner connected on %s at %d baud", path, t.cfg.BaudRate)

	go t.readLoop(port)
	return nil
}

// Connected reports whether a live handle exists.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Status returns the current connection state for health reporting.
func (t *Transport) Status() (path string, baud int, connected bool, lastErr error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.portPath, t.cfg.BaudRate, t.connected, t.lastErr
}

// Write sends one command line to the device. The newline terminator is
// appended here; callers pass the bare command. Writes are serialized so
// enrollment command bytes never interleave with anything else.
func (t *Transport) Write(command string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.mu.Lock()
	port := t.port
	ok := t.connected
	t.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	if _, err := port.Write([]byte(command + "\n")); err != nil {
		t.handleFault(fmt.Errorf("write failed: %w", err))
		return err
	}
	return nil
}

// Close tears down the handle and propagates shutdown to the bus, which any
// in-flight enrollment session interprets as an immediate failure.
func (t *Transport) Close() {
	t.mu.Lock()
	t.closed = true
	port := t.port
	t.port = nil
	t.connected = false
	t.mu.Unlock()

	if port != nil {
		port.Close()
	}
	metric.SetDeviceConnected(false)
	t.bus.Close()
}

func (t *Transport) readLoop(port io.ReadWriteCloser) {
	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		for _, ev := range protocol.Classify(line) {
			metric.EventClassified(string(ev.Kind))
			t.bus.Publish(ev)
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}

	t.mu.Lock()
	stale := t.port != port // already torn down by a concurrent fault
	t.mu.Unlock()
	if !stale {
		t.handleFault(fmt.Errorf("read stream ended: %w", err))
	}
}

// handleFault tears the handle down immediately; no partial state survives
// a stream or write error. If the error signature says the device
// disappeared, exactly one delayed re-discovery attempt is scheduled.
// Repeated failures surface as DeviceError events, never a retry loop.
func (t *Transport) handleFault(err error) {
	t.mu.Lock()
	if t.port != nil {
		t.port.Close()
	}
	t.port = nil
	t.portPath = ""
	t.connected = false
	t.lastErr = err
	closed := t.closed
	shouldRetry := !closed && !t.retried && isDisappearance(err)
	if shouldRetry {
		t.retried = true
	}
	t.mu.Unlock()

	metric.SetDeviceConnected(false)
	if closed {
		return
	}

	log.Printf("device fault: %v", err)
	t.bus.Publish(protocol.DeviceError(err.Error()))

	if shouldRetry {
		time.AfterFunc(t.cfg.ReconnectDelay, func() {
			if rerr := t.Connect(); rerr != nil {
				log.Printf("device reconnect attempt failed: %v", rerr)
				t.bus.Publish(protocol.DeviceError(fmt.Sprintf("reconnect failed: %v", rerr)))
			}
		})
	}
}

// isDisappearance distinguishes "the device went away" from faults like
// permission errors that a blind retry cannot fix.
func isDisappearance(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range []string{
		"no such file or directory",
		"no such device",
		"device not configured",
		"input/output error",
		"port has been closed",
		"file already closed",
	} {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}
