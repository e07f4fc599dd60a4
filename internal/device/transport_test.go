package device

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance-backend/config"
	"attendance-backend/internal/bus"
	"attendance-backend/internal/protocol"
)

func TestResolvePort(t *testing.T) {
	discovered := []PortInfo{
		{Path: "/dev/ttyS0"},
		{Path: "/dev/ttyUSB0", IsUSB: true, Product: "USB2.0-Serial"},
		{Path: "/dev/ttyACM1", IsUSB: true, Product: "Arduino Uno"},
	}

	testCases := []struct {
		name       string
		configured []string
		discovered []PortInfo
		expected   string
		expectOK   bool
	}{
		{
			name:       "empty configured list behaves as auto",
			configured: nil,
			discovered: discovered,
			expected:   "/dev/ttyUSB0",
			expectOK:   true,
		},
		{
			name:       "explicit port present among discovered",
			configured: []string{"/dev/ttyS0"},
			discovered: discovered,
			expected:   "/dev/ttyS0",
			expectOK:   true,
		},
		{
			name:       "missing candidate falls through to next",
			configured: []string{"/dev/ttyUSB9", "/dev/ttyACM1"},
			discovered: discovered,
			expected:   "/dev/ttyACM1",
			expectOK:   true,
		},
		{
			name:       "auto prefers usb-looking path",
			configured: []string{"auto"},
			discovered: discovered,
			expected:   "/dev/ttyUSB0",
			expectOK:   true,
		},
		{
			name:       "auto matches known vendor when path gives no hint",
			configured: []string{"auto"},
			discovered: []PortInfo{
				{Path: "/dev/serial0"},
				{Path: "/dev/serial1", Product: "FTDI FT232R"},
			},
			expected: "/dev/serial1",
			expectOK: true,
		},
		{
			name:       "auto falls back to first discovered",
			configured: []string{"auto"},
			discovered: []PortInfo{{Path: "/dev/serial0"}, {Path: "/dev/serial1"}},
			expected:   "/dev/serial0",
			expectOK:   true,
		},
		{
			name:       "auto with nothing discovered",
			configured: []string{"auto"},
			discovered: nil,
			expectOK:   false,
		},
		{
			name:       "all candidates exhausted",
			configured: []string{"/dev/ttyUSB9", "/dev/ttyUSB8"},
			discovered: discovered,
			expectOK:   false,
		},
		{
			name:       "explicit candidate before auto wins",
			configured: []string{"/dev/ttyS0", "auto"},
			discovered: discovered,
			expected:   "/dev/ttyS0",
			expectOK:   true,
		},
		{
			name:       "windows com port matches auto heuristic",
			configured: []string{"auto"},
			discovered: []PortInfo{{Path: "COM3", IsUSB: true}},
			expected:   "COM3",
			expectOK:   true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path, ok := ResolvePort(tc.configured, tc.discovered)
			assert.Equal(t, tc.expectOK, ok)
			if tc.expectOK {
				assert.Equal(t, tc.expected, path)
			}
		})
	}
}

// fakePort is an in-memory serial port: reads stream from a pipe, writes are
// captured for assertions.
type fakePort struct {
	reader *io.PipeReader

	mu      sync.Mutex
	written []string
	closed  bool
}

func newFakePort() (*fakePort, *io.PipeWriter) {
	r, w := io.Pipe()
	return &fakePort{reader: r}, w
}

func (p *fakePort) Read(b []byte) (int, error) { return p.reader.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, string(b))
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.reader.Close()
	}
	return nil
}

func testDeviceConfig() config.DeviceConfig {
	return config.DeviceConfig{
		Ports:          []string{"auto"},
		BaudRate:       9600,
		ReconnectDelay: 10 * time.Millisecond,
	}
}

func TestTransportStreamsClassifiedEvents(t *testing.T) {
	b := bus.New()
	port, feed := newFakePort()

	tr := NewWithDeps(testDeviceConfig(), b,
		func() ([]PortInfo, error) { return []PortInfo{{Path: "/dev/ttyUSB0"}}, nil },
		func(path string, baud int) (io.ReadWriteCloser, error) { return port, nil },
	)

	sub := b.Subscribe()
	require.NoError(t, tr.Connect())
	assert.True(t, tr.Connected())

	go func() {
		feed.Write([]byte("Detected ID: 5\n"))
	}()

	var got []protocol.Event
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-sub.C:
			got = append(got, ev)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
	assert.Equal(t, protocol.KindRaw, got[0].Kind)
	assert.Equal(t, protocol.KindDetected, got[1].Kind)
	assert.Equal(t, 5, got[1].TemplateID)

	tr.Close()
}

func TestTransportWriteAppendsNewline(t *testing.T) {
	b := bus.New()
	port, _ := newFakePort()

	tr := NewWithDeps(testDeviceConfig(), b,
		func() ([]PortInfo, error) { return []PortInfo{{Path: "/dev/ttyUSB0"}}, nil },
		func(path string, baud int) (io.ReadWriteCloser, error) { return port, nil },
	)
	require.NoError(t, tr.Connect())

	require.NoError(t, tr.Write("enroll"))
	require.NoError(t, tr.Write("12"))

	port.mu.Lock()
	written := append([]string(nil), port.written...)
	port.mu.Unlock()
	assert.Equal(t, []string{"enroll\n", "12\n"}, written)

	tr.Close()
}

func TestTransportWriteWithoutConnection(t *testing.T) {
	b := bus.New()
	tr := NewWithDeps(testDeviceConfig(), b,
		func() ([]PortInfo, error) { return nil, nil },
		func(path string, baud int) (io.ReadWriteCloser, error) { return nil, nil },
	)

	err := tr.Write("enroll")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestTransportConnectWithNoPorts(t *testing.T) {
	b := bus.New()
	tr := NewWithDeps(testDeviceConfig(), b,
		func() ([]PortInfo, error) { return nil, nil },
		func(path string, baud int) (io.ReadWriteCloser, error) { return nil, nil },
	)

	err := tr.Connect()
	assert.ErrorIs(t, err, ErrNoPortAvailable)
	assert.False(t, tr.Connected())
}

func TestTransportSingleRetryOnDisappearance(t *testing.T) {
	b := bus.New()
	sub := b.Subscribe()

	firstPort, feed := newFakePort()
	secondPort, _ := newFakePort()

	var mu sync.Mutex
	opens := 0
	tr := NewWithDeps(testDeviceConfig(), b,
		func() ([]PortInfo, error) { return []PortInfo{{Path: "/dev/ttyUSB0"}}, nil },
		func(path string, baud int) (io.ReadWriteCloser, error) {
			mu.Lock()
			defer mu.Unlock()
			opens++
			if opens == 1 {
				return firstPort, nil
			}
			return secondPort, nil
		},
	)
	require.NoError(t, tr.Connect())

	// EOF on the stream looks like the device disappeared.
	feed.Close()

	// The transport publishes a DeviceError, then reconnects exactly once.
	timeout := time.After(2 * time.Second)
	sawError := false
	for !sawError {
		select {
		case ev := <-sub.C:
			if ev.Kind == protocol.KindDeviceError {
				sawError = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for device error event")
		}
	}

	require.Eventually(t, tr.Connected, 2*time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, 2, opens)
	mu.Unlock()

	tr.Close()
}
