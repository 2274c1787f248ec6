package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Settlement records a payment that succeeded at the gateway but could not be
// recorded on the job. These rows are the durable reconciliation queue: they
// are resolved by the reconciler or left for an operator, never dropped.
type Settlement struct {
	ID               uuid.UUID `gorm:"primaryKey;type:uuid" json:"id"`
	JobID            uint64    `gorm:"not null;index" json:"jobId"`
	PaymentReference string    `gorm:"size:128;not null" json:"paymentReference"`
	AmountCents      int64     `gorm:"not null" json:"amountCents"`
	Reason           string    `gorm:"size:512;not null" json:"reason"`
	Attempts         int       `gorm:"not null" json:"attempts"`
	NextAttemptAt    time.Time `gorm:"not null;index" json:"nextAttemptAt"`
	ResolvedAt       *time.Time `json:"resolvedAt"`
	CreatedAt        time.Time  `gorm:"not null" json:"createdAt"`
	UpdatedAt        time.Time  `json:"-"`
}

func (s *Settlement) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
