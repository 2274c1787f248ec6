// Package washer maps internal washer identities to external payout accounts
// and tracks their onboarding state.
package washer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"laundryspot-backend/internal/apperr"
	"laundryspot-backend/internal/model"
	"laundryspot-backend/internal/payment"
	"laundryspot-backend/internal/store"
)

// AccountStore is the persistence contract the registry needs.
type AccountStore interface {
	InsertWasherAccount(ctx context.Context, acct *model.WasherAccount) error
	GetWasherAccount(ctx context.Context, washerID string) (*model.WasherAccount, error)
	SetOnboardingState(ctx context.Context, washerID string, state model.OnboardingState) error
}

// Registry serves onboarding state to the lifecycle engine and runs the
// gateway onboarding flow for new washers.
type Registry struct {
	store   AccountStore
	gateway payment.Gateway
}

// NewRegistry creates a washer account registry.
func NewRegistry(s AccountStore, g payment.Gateway) *Registry {
	return &Registry{store: s, gateway: g}
}

// OnboardingState returns the stored onboarding state for a washer.
// Propagates store.ErrNotFound for unknown washers.
func (r *Registry) OnboardingState(ctx context.Context, washerID string) (model.OnboardingState, error) {
	acct, err := r.store.GetWasherAccount(ctx, washerID)
	if err != nil {
		return "", err
	}
	return acct.OnboardingState, nil
}

// Account returns the full stored account for a washer.
func (r *Registry) Account(ctx context.Context, washerID string) (*model.WasherAccount, error) {
	acct, err := r.store.GetWasherAccount(ctx, washerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "washer %s has no payout account", washerID)
	}
	return acct, err
}

// CreateAccount onboards a washer: creates the connected account at the
// gateway and persists the mapping in created state. Creating an account for
// a washer that already has one is rejected.
func (r *Registry) CreateAccount(ctx context.Context, washerID, email string) (*model.WasherAccount, error) {
	washerID = strings.TrimSpace(washerID)
	if washerID == "" {
		return nil, apperr.New(apperr.KindValidation, "washerId is required")
	}
	if strings.TrimSpace(email) == "" {
		return nil, apperr.New(apperr.KindValidation, "email is required")
	}

	if _, err := r.store.GetWasherAccount(ctx, washerID); err == nil {
		return nil, apperr.New(apperr.KindValidation, "washer %s already has a payout account", washerID)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("create account for %s: %w", washerID, err)
	}

	externalID, err := r.gateway.CreateConnectedAccount(ctx, email)
	if err != nil {
		return nil, err
	}

	acct := &model.WasherAccount{
		WasherID:          washerID,
		ExternalAccountID: externalID,
		OnboardingState:   model.OnboardingCreated,
	}
	if err := r.store.InsertWasherAccount(ctx, acct); err != nil {
		return nil, fmt.Errorf("create account for %s: %w", washerID, err)
	}
	return acct, nil
}

// OnboardingLink returns a gateway URL where the washer finishes onboarding.
func (r *Registry) OnboardingLink(ctx context.Context, washerID string) (string, error) {
	acct, err := r.Account(ctx, washerID)
	if err != nil {
		return "", err
	}
	return r.gateway.AccountOnboardingLink(ctx, acct.ExternalAccountID)
}

// RefreshOnboardingState asks the gateway whether the account can receive
// payouts and promotes it to active when it can. Onboarding never regresses:
// once active, a temporary gateway glitch must not demote the account here.
func (r *Registry) RefreshOnboardingState(ctx context.Context, washerID string) (model.OnboardingState, error) {
	acct, err := r.Account(ctx, washerID)
	if err != nil {
		return "", err
	}
	if acct.OnboardingState == model.OnboardingActive {
		return model.OnboardingActive, nil
	}

	enabled, err := r.gateway.AccountPayoutsEnabled(ctx, acct.ExternalAccountID)
	if err != nil {
		return "", err
	}
	if !enabled {
		return acct.OnboardingState, nil
	}

	if err := r.store.SetOnboardingState(ctx, washerID, model.OnboardingActive); err != nil {
		return "", fmt.Errorf("refresh onboarding state for %s: %w", washerID, err)
	}
	return model.OnboardingActive, nil
}
