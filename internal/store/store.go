// Package store is the persistence layer for the attendance pipeline. The
// capture core treats it as an abstract record store; this is the GORM
// implementation.
package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"attendance-backend/internal/model"
)

// Store defines the record-store operations the rest of the application
// depends on.
type Store interface {
	DB() *gorm.DB

	// Identity and employee resolution.
	FindIdentityByTemplateID(ctx context.Context, templateID int) (*model.FingerprintIdentity, error)
	UpsertIdentity(ctx context.Context, identity *model.FingerprintIdentity) error
	EnsureEmployee(ctx context.Context, identity *model.FingerprintIdentity) (*model.Employee, error)
	ListEmployees(ctx context.Context) ([]model.Employee, error)

	// Attendance rows.
	TodayAttendance(ctx context.Context, employeeID int64, date string) ([]model.AttendanceRecord, error)
	AttendanceForDate(ctx context.Context, date string) ([]model.AttendanceRecord, error)
	CreateAttendance(ctx context.Context, record *model.AttendanceRecord) error
	UpdateAttendance(ctx context.Context, record *model.AttendanceRecord) error
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// FindIdentityByTemplateID resolves a device template slot to an enrolled
// identity. Returns gorm.ErrRecordNotFound when the slot is not enrolled.
func (s *gormStore) FindIdentityByTemplateID(ctx context.Context, templateID int) (*model.FingerprintIdentity, error) {
	var identity model.FingerprintIdentity
	if err := s.db.WithContext(ctx).
		Where("template_id = ?", templateID).
		First(&identity).Error; err != nil {
		return nil, err
	}
	return &identity, nil
}

// UpsertIdentity creates or replaces the identity stored at a template slot.
// Re-enrolling a slot overwrites the previous occupant's name.
func (s *gormStore) UpsertIdentity(ctx context.Context, identity *model.FingerprintIdentity) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "template_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "updated_at"}),
	}).Create(identity).Error; err != nil {
		return fmt.Errorf("upsert identity for template %d failed: %w", identity.TemplateID, err)
	}
	return nil
}

// EnsureEmployee returns the employee row for an identity, creating it on
// first use. The create is an idempotent upsert, not an error path.
func (s *gormStore) EnsureEmployee(ctx context.Context, identity *model.FingerprintIdentity) (*model.Employee, error) {
	var employee model.Employee
	err := s.db.WithContext(ctx).
		Where("identity_id = ?", identity.ID).
		First(&employee).Error
	if err == nil {
		return &employee, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("employee lookup for identity %d failed: %w", identity.ID, err)
	}

	employee = model.Employee{
		IdentityID: identity.ID,
		Name:       identity.Name,
		Active:     true,
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "identity_id"}},
		DoNothing: true,
	}).Create(&employee).Error; err != nil {
		return nil, fmt.Errorf("employee create for identity %d failed: %w", identity.ID, err)
	}

	// Re-read so a concurrent creator's row wins consistently.
	if err := s.db.WithContext(ctx).
		Where("identity_id = ?", identity.ID).
		First(&employee).Error; err != nil {
		return nil, fmt.Errorf("employee re-read for identity %d failed: %w", identity.ID, err)
	}
	return &employee, nil
}

func (s *gormStore) ListEmployees(ctx context.Context) ([]model.Employee, error) {
	var employees []model.Employee
	if err := s.db.WithContext(ctx).Preload("Identity").Find(&employees).Error; err != nil {
		return nil, fmt.Errorf("employee list failed: %w", err)
	}
	return employees, nil
}

// TodayAttendance returns the employee's rows for the given date, most
// recent first by time-in. The decision between Time-In and Time-Out hinges
// on the first row of this result.
func (s *gormStore) TodayAttendance(ctx context.Context, employeeID int64, date string) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	if err := s.db.WithContext(ctx).
		Where("employee_id = ? AND date = ?", employeeID, date).
		Order("time_in DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("attendance query for employee %d failed: %w", employeeID, err)
	}
	return records, nil
}

func (s *gormStore) AttendanceForDate(ctx context.Context, date string) ([]model.AttendanceRecord, error) {
	var records []model.AttendanceRecord
	if err := s.db.WithContext(ctx).
		Preload("Employee").
		Where("date = ?", date).
		Order("time_in DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("attendance query for date %s failed: %w", date, err)
	}
	return records, nil
}

func (s *gormStore) CreateAttendance(ctx context.Context, record *model.AttendanceRecord) error {
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("attendance insert for employee %d failed: %w", record.EmployeeID, err)
	}
	return nil
}

func (s *gormStore) UpdateAttendance(ctx context.Context, record *model.AttendanceRecord) error {
	if err := s.db.WithContext(ctx).Save(record).Error; err != nil {
		return fmt.Errorf("attendance update for record %d failed: %w", record.ID, err)
	}
	return nil
}
