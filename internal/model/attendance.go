package model

import "time"

// Attendance statuses and sources. Only fingerprint-sourced Present rows are
// written by the capture pipeline; the constants exist so the REST layer and
// reports agree on spelling.
const (
	StatusPresent     = "Present"
	SourceFingerprint = "fingerprint"
)

// AttendanceRecord is one daily attendance row. A row is created with only
// a time-in; the same row is later closed in place with a time-out and the
// computed hours. Times are same-day wall-clock "HH:MM" strings, matching
// what payroll reports consume.
type AttendanceRecord struct {
	ID         int64    `gorm:"primaryKey"`
	EmployeeID int64    `gorm:"index:idx_attendance_employee_date;not null"`
	Date       string   `gorm:"index:idx_attendance_employee_date;size:10;not null"` // "2006-01-02"
	TimeIn     *string  `gorm:"size:5"`
	TimeOut    *string  `gorm:"size:5"`
	TotalHours *float64 `gorm:"type:decimal(5,2)"`
	Status     string   `gorm:"size:32;not null"`
	Source     string   `gorm:"size:32;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Associations
	Employee Employee `gorm:"constraint:OnDelete:CASCADE"`
}
