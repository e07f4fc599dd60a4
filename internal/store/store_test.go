package store

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"attendance-backend/internal/model"
)

func setupStore(t *testing.T) Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.FingerprintIdentity{},
		&model.Employee{},
		&model.AttendanceRecord{},
	))
	return NewGormStore(db)
}

func TestUpsertIdentityReplacesSlotOccupant(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertIdentity(ctx, &model.FingerprintIdentity{TemplateID: 7, Name: "Ana Reyes"}))

	first, err := s.FindIdentityByTemplateID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Ana Reyes", first.Name)

	// Re-enrolling the same slot overwrites the name, keeping the row.
	require.NoError(t, s.UpsertIdentity(ctx, &model.FingerprintIdentity{TemplateID: 7, Name: "Ben Cruz"}))

	second, err := s.FindIdentityByTemplateID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "Ben Cruz", second.Name)
	assert.Equal(t, first.ID, second.ID)
}

func TestFindIdentityByTemplateIDNotFound(t *testing.T) {
	s := setupStore(t)

	_, err := s.FindIdentityByTemplateID(context.Background(), 99)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestEnsureEmployeeCreatesOnceAndReuses(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertIdentity(ctx, &model.FingerprintIdentity{TemplateID: 12, Name: "Ana Reyes"}))
	identity, err := s.FindIdentityByTemplateID(ctx, 12)
	require.NoError(t, err)

	created, err := s.EnsureEmployee(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, "Ana Reyes", created.Name)
	assert.True(t, created.Active)

	again, err := s.EnsureEmployee(ctx, identity)
	require.NoError(t, err)
	assert.Equal(t, created.ID, again.ID)

	employees, err := s.ListEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, employees, 1)
	assert.Equal(t, 12, employees[0].Identity.TemplateID)
}

func TestTodayAttendanceOrdersMostRecentFirst(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertIdentity(ctx, &model.FingerprintIdentity{TemplateID: 3, Name: "Ana Reyes"}))
	identity, err := s.FindIdentityByTemplateID(ctx, 3)
	require.NoError(t, err)
	employee, err := s.EnsureEmployee(ctx, identity)
	require.NoError(t, err)

	morning := "08:00"
	noon := "12:30"
	for _, clock := range []string{morning, noon} {
		in := clock
		require.NoError(t, s.CreateAttendance(ctx, &model.AttendanceRecord{
			EmployeeID: employee.ID,
			Date:       "2026-08-29",
			TimeIn:     &in,
			Status:     model.StatusPresent,
			Source:     model.SourceFingerprint,
		}))
	}

	records, err := s.TodayAttendance(ctx, employee.ID, "2026-08-29")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, noon, *records[0].TimeIn)
	assert.Equal(t, morning, *records[1].TimeIn)

	// Other dates stay out of the result.
	other, err := s.TodayAttendance(ctx, employee.ID, "2026-08-30")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestUpdateAttendanceClosesRow(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertIdentity(ctx, &model.FingerprintIdentity{TemplateID: 5, Name: "Ben Cruz"}))
	identity, err := s.FindIdentityByTemplateID(ctx, 5)
	require.NoError(t, err)
	employee, err := s.EnsureEmployee(ctx, identity)
	require.NoError(t, err)

	in := "09:00"
	record := model.AttendanceRecord{
		EmployeeID: employee.ID,
		Date:       "2026-08-29",
		TimeIn:     &in,
		Status:     model.StatusPresent,
		Source:     model.SourceFingerprint,
	}
	require.NoError(t, s.CreateAttendance(ctx, &record))

	out := "17:30"
	hours := 8.5
	record.TimeOut = &out
	record.TotalHours = &hours
	require.NoError(t, s.UpdateAttendance(ctx, &record))

	records, err := s.AttendanceForDate(ctx, "2026-08-29")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].TimeOut)
	assert.Equal(t, "17:30", *records[0].TimeOut)
	require.NotNil(t, records[0].TotalHours)
	assert.Equal(t, 8.5, *records[0].TotalHours)
	assert.Equal(t, "Ben Cruz", records[0].Employee.Name)
}
