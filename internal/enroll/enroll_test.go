package enroll

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"attendance-backend/config"
	"attendance-backend/internal/bus"
	"attendance-backend/internal/protocol"
)

// fakeDevice records writes and lets the test script device output by
// feeding classified lines onto the bus.
type fakeDevice struct {
	mu        sync.Mutex
	connected bool
	written   []string
}

func (d *fakeDevice) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *fakeDevice) Write(command string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written = append(d.written, command)
	return nil
}

func (d *fakeDevice) writes() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.written...)
}

func testEnrollConfig(timeout time.Duration) config.EnrollmentConfig {
	return config.EnrollmentConfig{Timeout: timeout, SettleDelay: 5 * time.Millisecond}
}

func publishLine(b *bus.Bus, line string) {
	for _, ev := range protocol.Classify(line) {
		b.Publish(ev)
	}
}

func TestEnrollHappyPath(t *testing.T) {
	b := bus.New()
	defer b.Close()
	device := &fakeDevice{connected: true}
	c := New(device, b, testEnrollConfig(2*time.Second))

	done := make(chan struct{})
	var res Result
	var err error
	go func() {
		res, err = c.Enroll(context.Background(), 12)
		close(done)
	}()

	// Wait for the enroll command before scripting device output.
	require.Eventually(t, func() bool { return len(device.writes()) >= 1 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"enroll"}, device.writes())

	publishLine(b, "Enter ID (1-127):")
	// The slot id answer is sent once, after the settle delay.
	require.Eventually(t, func() bool { return len(device.writes()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, "12", device.writes()[1])

	publishLine(b, "Enrolling ID #12")
	publishLine(b, "Place finger on sensor")
	publishLine(b, "First image taken")
	publishLine(b, "Remove finger")
	publishLine(b, "Place finger again")
	publishLine(b, "Second image taken")
	publishLine(b, "Prints matched! Model created")
	publishLine(b, "Enroll success, stored at #12")

	<-done
	require.NoError(t, err)
	assert.True(t, res.Enrolled)
	assert.True(t, res.Started)

	// The prompt was only answered once even though the classifier emitted
	// both a raw and a step event for it.
	assert.Equal(t, []string{"enroll", "12"}, device.writes())
}

func TestEnrollDeviceReportsFailure(t *testing.T) {
	b := bus.New()
	defer b.Close()
	device := &fakeDevice{connected: true}
	c := New(device, b, testEnrollConfig(2*time.Second))

	done := make(chan struct{})
	var res Result
	go func() {
		res, _ = c.Enroll(context.Background(), 3)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(device.writes()) >= 1 }, time.Second, time.Millisecond)
	publishLine(b, "Enrolling ID #3")
	publishLine(b, "Model failed")

	<-done
	assert.False(t, res.Enrolled)
	assert.True(t, res.Started)
}

func TestEnrollTimeoutBeforeStart(t *testing.T) {
	b := bus.New()
	defer b.Close()
	device := &fakeDevice{connected: true}
	c := New(device, b, testEnrollConfig(50*time.Millisecond))

	res, err := c.Enroll(context.Background(), 5)
	require.NoError(t, err)
	assert.False(t, res.Enrolled)
	assert.False(t, res.Started)
}

func TestEnrollTimeoutAfterStart(t *testing.T) {
	b := bus.New()
	defer b.Close()
	device := &fakeDevice{connected: true}
	c := New(device, b, testEnrollConfig(100*time.Millisecond))

	done := make(chan struct{})
	var res Result
	go func() {
		res, _ = c.Enroll(context.Background(), 5)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(device.writes()) >= 1 }, time.Second, time.Millisecond)
	publishLine(b, "Enrolling ID #5")

	<-done
	assert.False(t, res.Enrolled)
	assert.True(t, res.Started)
}

func TestEnrollValidationBeforeDeviceWrite(t *testing.T) {
	b := bus.New()
	defer b.Close()
	device := &fakeDevice{connected: true}
	c := New(device, b, testEnrollConfig(time.Second))

	for _, slot := range []int{0, 128, -4} {
		_, err := c.Enroll(context.Background(), slot)
		assert.ErrorIs(t, err, ErrSlotOutOfRange)
	}
	assert.Empty(t, device.writes(), "rejected slots must not reach the device")
}

func TestEnrollRequiresConnectedDevice(t *testing.T) {
	b := bus.New()
	defer b.Close()
	device := &fakeDevice{connected: false}
	c := New(device, b, testEnrollConfig(time.Second))

	_, err := c.Enroll(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, device.writes())
}

func TestEnrollRejectsConcurrentSession(t *testing.T) {
	b := bus.New()
	defer b.Close()
	device := &fakeDevice{connected: true}
	c := New(device, b, testEnrollConfig(2*time.Second))

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		close(started)
		c.Enroll(context.Background(), 1)
		close(done)
	}()

	<-started
	require.Eventually(t, func() bool { return len(device.writes()) >= 1 }, time.Second, time.Millisecond)

	_, err := c.Enroll(context.Background(), 2)
	assert.ErrorIs(t, err, ErrSessionActive)

	publishLine(b, "ENROLL_OK")
	<-done

	// Once the first session resolves a new one is accepted again.
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				publishLine(b, "ENROLL_FAIL")
				time.Sleep(5 * time.Millisecond)
			}
		}
	}()
	_, err = c.Enroll(context.Background(), 2)
	close(stop)
	assert.NotErrorIs(t, err, ErrSessionActive)
}

func TestEnrollResolvesOnBusClosure(t *testing.T) {
	b := bus.New()
	device := &fakeDevice{connected: true}
	c := New(device, b, testEnrollConfig(5*time.Second))

	done := make(chan Result)
	go func() {
		res, err := c.Enroll(context.Background(), 7)
		require.NoError(t, err)
		done <- res
	}()

	require.Eventually(t, func() bool { return len(device.writes()) >= 1 }, time.Second, time.Millisecond)
	b.Close()

	select {
	case res := <-done:
		assert.False(t, res.Enrolled)
	case <-time.After(time.Second):
		t.Fatal("enrollment did not resolve on bus closure")
	}
}

func TestEnrollContextCancellation(t *testing.T) {
	b := bus.New()
	defer b.Close()
	device := &fakeDevice{connected: true}
	c := New(device, b, testEnrollConfig(5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		_, err := c.Enroll(ctx, 7)
		done <- err
	}()

	require.Eventually(t, func() bool { return len(device.writes()) >= 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("enrollment did not observe context cancellation")
	}
}
