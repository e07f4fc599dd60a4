package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"attendance-backend/internal/attendance"
	"attendance-backend/internal/bus"
	"attendance-backend/internal/device"
	"attendance-backend/internal/enroll"
	"attendance-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store     store.Store
	transport *device.Transport
	enroller  *enroll.Coordinator
	recorder  *attendance.Recorder
	bus       *bus.Bus
	webpush   *webpush.Options
	loc       *time.Location
}

// NewHandler creates a new API handler.
func NewHandler(
	s store.Store,
	transport *device.Transport,
	enroller *enroll.Coordinator,
	recorder *attendance.Recorder,
	b *bus.Bus,
	webpushOptions *webpush.Options,
	loc *time.Location,
) *Handler {
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		store:     s,
		transport: transport,
		enroller:  enroller,
		recorder:  recorder,
		bus:       b,
		webpush:   webpushOptions,
		loc:       loc,
	}
}
