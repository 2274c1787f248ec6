package model

import "time"

// OnboardingState tracks whether a washer's payout account can receive funds.
type OnboardingState string

const (
	// OnboardingCreated means the gateway account exists but cannot yet
	// receive payouts.
	OnboardingCreated OnboardingState = "created"
	// OnboardingActive means the gateway confirms the account can receive
	// transfers.
	OnboardingActive OnboardingState = "active"
)

// WasherAccount maps an internal washer identity to the external payout
// account held at the payment gateway. Rows are read-mostly reference data:
// created once at onboarding and mutated only by the onboarding flow.
type WasherAccount struct {
	WasherID          string          `gorm:"primaryKey;size:64" json:"washerId"`
	ExternalAccountID string          `gorm:"uniqueIndex;size:128;not null" json:"externalAccountId"`
	OnboardingState   OnboardingState `gorm:"size:16;not null" json:"onboardingState"`
	CreatedAt         time.Time       `gorm:"not null" json:"createdAt"`
	UpdatedAt         time.Time       `json:"-"`
}
