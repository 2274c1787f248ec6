package model

import "time"

// PushSubscription holds the information for a washer's browser push
// subscription. Every subscriber is notified when a new job becomes
// available.
type PushSubscription struct {
	Endpoint  string    `gorm:"primaryKey" json:"endpoint"`
	P256DH    string    `gorm:"column:p256dh;not null" json:"p256dh"`
	Auth      string    `gorm:"not null" json:"auth"`
	CreatedAt time.Time `gorm:"not null" json:"-"`
}
