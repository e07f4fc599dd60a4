// Package enroll drives the multi-step enrollment handshake against the
// scanner: send "enroll", answer the id prompt, then wait for the firmware
// to walk through its capture steps until it reports success or failure.
package enroll

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"attendance-backend/config"
	"attendance-backend/internal/bus"
	"attendance-backend/internal/metric"
	"attendance-backend/internal/protocol"
)

var (
	// ErrNotConnected means no device is available; checked before any write.
	ErrNotConnected = errors.New("no device connected")
	// ErrSlotOutOfRange means the requested slot id is outside 1-127.
	ErrSlotOutOfRange = errors.New("slot id must be between 1 and 127")
	// ErrSessionActive rejects a second enroll call while one is in flight.
	// The device is single-threaded hardware; only one session is meaningful.
	ErrSessionActive = errors.New("an enrollment session is already in flight")
)

// DeviceLink is the transport surface the coordinator needs.
type DeviceLink interface {
	Connected() bool
	Write(command string) error
}

// Result reports how a session resolved. Started distinguishes "device
// never began" from "device began but failed" in diagnostics; it does not
// gate resolution.
type Result struct {
	Enrolled bool `json:"enrolled"`
	Started  bool `json:"started"`
}

// Coordinator owns at most one in-flight enrollment session.
type Coordinator struct {
	device  DeviceLink
	bus     *bus.Bus
	timeout time.Duration
	settle  time.Duration
	active  atomic.Bool
}

// New creates a coordinator with the configured deadline and settle delay.
func New(device DeviceLink, b *bus.Bus, cfg config.EnrollmentConfig) *Coordinator {
	return &Coordinator{device: device, bus: b, timeout: cfg.Timeout, settle: cfg.SettleDelay}
}

// Enroll runs one enrollment session for the given template slot and blocks
// until the device reports success or failure, the deadline passes, the bus
// shuts down, or ctx is cancelled. Validation happens before any device
// interaction.
func (c *Coordinator) Enroll(ctx context.Context, slotID int) (Result, error) {
	if slotID < 1 || slotID > 127 {
		return Result{}, ErrSlotOutOfRange
	}
	if !c.device.Connected() {
		return Result{}, ErrNotConnected
	}
	if !c.active.CompareAndSwap(false, true) {
		return Result{}, ErrSessionActive
	}
	defer c.active.Store(false)

	// Subscribe before sending the command so no step event is missed.
	sub := c.bus.Subscribe()
	defer sub.Cancel()

	if err := c.device.Write("enroll"); err != nil {
		return Result{}, fmt.Errorf("failed to send enroll command: %w", err)
	}

	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()

	var res Result
	var idSent sync.Once

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				// Transport shut down mid-session; resolve immediately
				// instead of waiting out the deadline.
				metric.EnrollmentFinished("failed")
				return res, nil
			}
			if done := c.handleEvent(ev, slotID, &idSent, &res); done {
				if res.Enrolled {
					metric.EnrollmentFinished("success")
				} else {
					metric.EnrollmentFinished("failed")
				}
				return res, nil
			}
		case <-deadline.C:
			log.Printf("enrollment for slot %d timed out (started=%t)", slotID, res.Started)
			metric.EnrollmentFinished("timeout")
			return res, nil
		case <-ctx.Done():
			return res, ctx.Err()
		}
	}
}

// handleEvent advances the session on one bus event and reports whether the
// session resolved.
func (c *Coordinator) handleEvent(ev protocol.Event, slotID int, idSent *sync.Once, res *Result) bool {
	switch ev.Kind {
	case protocol.KindEnrollStep:
		switch ev.Step {
		case protocol.StepWaitingID:
			c.sendSlotID(idSent, slotID)
		case protocol.StepStarted:
			res.Started = true
		case protocol.StepSuccess:
			res.Enrolled = true
			return true
		case protocol.StepFailed:
			return true
		}
	case protocol.KindRaw:
		// The firmware vocabulary is not fully consistent, so raw lines are
		// double-checked against the success/failure synonym sets.
		switch {
		case protocol.IsEnterIDPrompt(ev.Raw):
			c.sendSlotID(idSent, slotID)
		case protocol.IsEnrollSuccessLine(ev.Raw):
			res.Enrolled = true
			return true
		case protocol.IsEnrollFailureLine(ev.Raw):
			return true
		}
	}
	return false
}

// sendSlotID answers the id prompt exactly once, after a short settle delay
// because the firmware cannot read input immediately after prompting.
func (c *Coordinator) sendSlotID(idSent *sync.Once, slotID int) {
	idSent.Do(func() {
		go func() {
			time.Sleep(c.settle)
			if err := c.device.Write(strconv.Itoa(slotID)); err != nil {
				log.Printf("failed to send slot id %d: %v", slotID, err)
			}
		}()
	})
}
