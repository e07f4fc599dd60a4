package model

import "time"

// PushSubscription holds the information for a browser push subscription.
// Dashboards subscribe to the employees whose attendance they want to be
// notified about.
type PushSubscription struct {
	Endpoint  string `gorm:"primaryKey"`
	P256DH    string `gorm:"column:p256dh;not null"`
	Auth      string `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`

	// Associations
	Employees []*Employee `gorm:"many2many:subscription_employee_mapping;"`
}
