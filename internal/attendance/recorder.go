// Package attendance turns template detections into correctly sequenced
// Time-In/Time-Out rows: a per-subject cooldown gates repeats, the open row
// for today decides which half of the day this event closes.
package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"attendance-backend/internal/bus"
	"attendance-backend/internal/cooldown"
	"attendance-backend/internal/metric"
	"attendance-backend/internal/model"
	"attendance-backend/internal/protocol"
	"attendance-backend/internal/store"
)

// Record types reported to callers and dashboards.
const (
	TypeTimeIn  = "Time In"
	TypeTimeOut = "Time Out"
)

// ErrUnknownSubject means the detected template slot has no enrolled
// identity. Rejected before any attendance write.
var ErrUnknownSubject = errors.New("no enrolled identity for template id")

// CooldownError is a rate-limit signal, not a failure: the subject already
// produced an accepted write inside the cooldown window.
type CooldownError struct {
	Wait time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("attendance already recorded, retry in %d seconds", int(math.Ceil(e.Wait.Seconds())))
}

// WaitSeconds returns the remaining wait rounded up to whole seconds.
func (e *CooldownError) WaitSeconds() int {
	return int(math.Ceil(e.Wait.Seconds()))
}

// Result is the structured outcome of one accepted attendance event.
type Result struct {
	Type         string `json:"type"`
	EmployeeID   int64  `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	HoursWorked  string `json:"hours_worked,omitempty"`
}

// Notifier receives accepted attendance results, typically a worker pool
// dispatching push notifications. May be nil.
type Notifier interface {
	Dispatch(employeeID int64, message string)
}

// Recorder consumes detections and persists attendance rows.
type Recorder struct {
	store    store.Store
	cooldown *cooldown.Tracker
	loc      *time.Location
	notifier Notifier

	// now is injectable so tests can pin the clock.
	now func() time.Time
}

// New creates a recorder. loc controls the wall-clock used for dates and
// HH:MM times; notifier may be nil.
func New(s store.Store, cd *cooldown.Tracker, loc *time.Location, notifier Notifier) *Recorder {
	if loc == nil {
		loc = time.Local
	}
	return &Recorder{store: s, cooldown: cd, loc: loc, notifier: notifier, now: time.Now}
}

// Record processes one detection for the given template slot. The cooldown
// is only marked after a successful write, so a failed write allows an
// immediate retry.
func (r *Recorder) Record(ctx context.Context, templateID int) (*Result, error) {
	if wait, ok := r.cooldown.Check(templateID); !ok {
		return nil, &CooldownError{Wait: wait}
	}

	identity, err := r.store.FindIdentityByTemplateID(ctx, templateID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("template %d: %w", templateID, ErrUnknownSubject)
		}
		return nil, fmt.Errorf("identity lookup failed: %w", err)
	}

	employee, err := r.store.EnsureEmployee(ctx, identity)
	if err != nil {
		return nil, err
	}

	now := r.now().In(r.loc)
	date := now.Format("2006-01-02")
	clock := now.Format("15:04")

	records, err := r.store.TodayAttendance(ctx, employee.ID, date)
	if err != nil {
		return nil, err
	}

	// The most recent row decides: open (time-in without time-out) means
	// this event closes it; anything else starts a new row.
	var open *model.AttendanceRecord
	if len(records) > 0 && records[0].TimeIn != nil && records[0].TimeOut == nil {
		open = &records[0]
	}

	var result *Result
	if open != nil {
		result, err = r.timeOut(ctx, employee, open, clock, date)
	} else {
		result, err = r.timeIn(ctx, employee, clock, date)
	}
	if err != nil {
		return nil, err
	}

	r.cooldown.Mark(templateID)
	if result.Type == TypeTimeIn {
		metric.AttendanceRecorded("time_in")
	} else {
		metric.AttendanceRecorded("time_out")
	}

	if r.notifier != nil {
		verb := "clocked in"
		if result.Type == TypeTimeOut {
			verb = "clocked out"
		}
		r.notifier.Dispatch(employee.ID, fmt.Sprintf("%s %s at %s", employee.Name, verb, clock))
	}
	return result, nil
}

func (r *Recorder) timeIn(ctx context.Context, employee *model.Employee, clock, date string) (*Result, error) {
	record := &model.AttendanceRecord{
		EmployeeID: employee.ID,
		Date:       date,
		TimeIn:     &clock,
		Status:     model.StatusPresent,
		Source:     model.SourceFingerprint,
	}
	if err := r.store.CreateAttendance(ctx, record); err != nil {
		return nil, err
	}
	return &Result{
		Type:         TypeTimeIn,
		EmployeeID:   employee.ID,
		EmployeeName: employee.Name,
		Date:         date,
		Time:         clock,
	}, nil
}

func (r *Recorder) timeOut(ctx context.Context, employee *model.Employee, open *model.AttendanceRecord, clock, date string) (*Result, error) {
	minutes, err := elapsedMinutes(*open.TimeIn, clock)
	if err != nil {
		return nil, err
	}
	hours := math.Round(float64(minutes)/60.0*100) / 100

	open.TimeOut = &clock
	open.TotalHours = &hours
	open.Status = model.StatusPresent
	if err := r.store.UpdateAttendance(ctx, open); err != nil {
		return nil, err
	}
	return &Result{
		Type:         TypeTimeOut,
		EmployeeID:   employee.ID,
		EmployeeName: employee.Name,
		Date:         date,
		Time:         clock,
		HoursWorked:  FormatHours(minutes),
	}, nil
}

// elapsedMinutes computes the difference between two same-day wall-clock
// "HH:MM" values. A time-out past midnight comes back negative and is
// carried as-is.
func elapsedMinutes(timeIn, timeOut string) (int, error) {
	in, err := parseClock(timeIn)
	if err != nil {
		return 0, err
	}
	out, err := parseClock(timeOut)
	if err != nil {
		return 0, err
	}
	return out - in, nil
}

func parseClock(value string) (int, error) {
	parts := strings.SplitN(value, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed clock value %q", value)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed clock value %q", value)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed clock value %q", value)
	}
	return h*60 + m, nil
}

// FormatHours renders a minute count as "H:MM" (570 minutes -> "9:30").
func FormatHours(minutes int) string {
	h := minutes / 60
	m := minutes % 60
	if m < 0 {
		m = -m
	}
	return fmt.Sprintf("%d:%02d", h, m)
}

// Run consumes Detected events from the bus until ctx is cancelled or the
// bus closes. Rejections and unknown subjects are logged, never fatal.
func (r *Recorder) Run(ctx context.Context, b *bus.Bus) {
	sub := b.Subscribe()
	defer sub.Cancel()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				log.Println("attendance consumer stopping: event bus closed")
				return
			}
			if ev.Kind != protocol.KindDetected {
				continue
			}
			result, err := r.Record(ctx, ev.TemplateID)
			if err != nil {
				var cd *CooldownError
				if errors.As(err, &cd) {
					log.Printf("attendance for template %d throttled, %d seconds remaining", ev.TemplateID, cd.WaitSeconds())
				} else {
					log.Printf("attendance for template %d failed: %v", ev.TemplateID, err)
				}
				continue
			}
			log.Printf("recorded %s for %s at %s", result.Type, result.EmployeeName, result.Time)
		case <-ctx.Done():
			log.Println("attendance consumer stopping: context cancelled")
			return
		}
	}
}
