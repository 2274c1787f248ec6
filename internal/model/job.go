package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// JobStatus is the lifecycle state of a Job. Transitions form a strict
// partial order: pending → accepted → paid, with cancelled reachable from
// pending or accepted only.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusAccepted  JobStatus = "accepted"
	StatusPaid      JobStatus = "paid"
	StatusCancelled JobStatus = "cancelled"
)

// Valid reports whether s is one of the four defined statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the transition s → next is legal.
// No transition may skip a state.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusAccepted || next == StatusCancelled
	case StatusAccepted:
		return next == StatusPaid || next == StatusCancelled
	}
	return false
}

// Job represents a requested laundry pickup moving through the lifecycle.
type Job struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	CustomerName     string    `gorm:"size:256;not null" json:"customerName"`
	Address          string    `gorm:"size:512;not null" json:"address"`
	Notes            string    `gorm:"size:1024" json:"notes"`
	PriceCents       int64     `gorm:"not null" json:"priceCents"`
	Status           JobStatus `gorm:"size:16;not null;index" json:"status"`
	WasherID         *string   `gorm:"size:64;index" json:"washerId"`
	PaymentReference *string   `gorm:"size:128" json:"paymentReference"`
	CreatedAt        time.Time `gorm:"not null;index" json:"createdAt"`
	UpdatedAt        time.Time `json:"-"`
}

// AfterFind rejects corrupt rows on load instead of coercing them. A stored
// job missing a required field or carrying an unknown status must never be
// handed to the lifecycle engine.
func (j *Job) AfterFind(tx *gorm.DB) error {
	if j.CustomerName == "" || j.Address == "" {
		return fmt.Errorf("job %d: corrupt record: missing required field", j.ID)
	}
	if !j.Status.Valid() {
		return fmt.Errorf("job %d: corrupt record: unknown status %q", j.ID, j.Status)
	}
	if j.PriceCents < 0 {
		return fmt.Errorf("job %d: corrupt record: negative price", j.ID)
	}
	return nil
}
