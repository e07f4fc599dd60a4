package model

import "time"

// FingerprintIdentity links a device-side template slot (1-127) to a person.
// Rows are created during enrollment, before any employee record exists.
type FingerprintIdentity struct {
	ID         int64  `gorm:"primaryKey"`
	TemplateID int    `gorm:"uniqueIndex;not null"`
	Name       string `gorm:"size:256;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Employee is the internal payroll employee row. It is created lazily the
// first time an enrolled identity produces an attendance event.
type Employee struct {
	ID         int64 `gorm:"primaryKey"`
	IdentityID int64 `gorm:"uniqueIndex;not null"`
	Name       string `gorm:"size:256;not null"`
	Active     bool   `gorm:"not null;default:true"`
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Associations
	Identity FingerprintIdentity `gorm:"foreignKey:IdentityID"`
}
