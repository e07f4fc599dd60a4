// Package metric exposes the application's Prometheus collectors.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_events_total",
		Help: "Classified scanner events by kind.",
	}, []string{"kind"})

	attendanceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_records_total",
		Help: "Accepted attendance writes by type (time_in or time_out).",
	}, []string{"type"})

	enrollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enrollments_total",
		Help: "Enrollment attempts by result (success, failed, timeout).",
	}, []string{"result"})

	deviceConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "device_connected",
		Help: "Whether a fingerprint scanner is currently connected.",
	})
)

// EventClassified counts one classified scanner event.
func EventClassified(kind string) {
	eventsTotal.WithLabelValues(kind).Inc()
}

// AttendanceRecorded counts one accepted attendance write.
func AttendanceRecorded(recordType string) {
	attendanceTotal.WithLabelValues(recordType).Inc()
}

// EnrollmentFinished counts one resolved enrollment session.
func EnrollmentFinished(result string) {
	enrollTotal.WithLabelValues(result).Inc()
}

// SetDeviceConnected updates the connection gauge.
func SetDeviceConnected(connected bool) {
	if connected {
		deviceConnected.Set(1)
	} else {
		deviceConnected.Set(0)
	}
}
