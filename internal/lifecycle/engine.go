// Package lifecycle is the sole authority for job state transitions. Every
// mutation goes through the store's conditional update; the engine never
// trusts a previously loaded copy of a job when deciding a write.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"laundryspot-backend/internal/apperr"
	"laundryspot-backend/internal/model"
	"laundryspot-backend/internal/store"
)

// JobStore is the persistence contract the engine needs.
type JobStore interface {
	InsertJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id uint64) (*model.Job, error)
	ListJobsByStatus(ctx context.Context, status model.JobStatus) ([]model.Job, error)
	ConditionalUpdateJob(ctx context.Context, id uint64, expected model.JobStatus, mut store.JobMutation) (*model.Job, error)
}

// EligibilityReader reports a washer's onboarding state.
type EligibilityReader interface {
	OnboardingState(ctx context.Context, washerID string) (model.OnboardingState, error)
}

// Pricer fixes a job's price at creation time.
type Pricer interface {
	PriceCents(customerName, address, notes string) int64
}

// FlatRate prices every job at the same amount.
type FlatRate struct {
	Cents int64
}

func (f FlatRate) PriceCents(_, _, _ string) int64 {
	return f.Cents
}

// Engine validates and applies job state transitions.
type Engine struct {
	store       JobStore
	eligibility EligibilityReader
	pricer      Pricer
}

// NewEngine creates a lifecycle engine with its dependencies injected.
func NewEngine(s JobStore, e EligibilityReader, p Pricer) *Engine {
	return &Engine{store: s, eligibility: e, pricer: p}
}

// CreateJob validates the draft, fixes the price and inserts the job in
// pending state.
func (e *Engine) CreateJob(ctx context.Context, customerName, address, notes string) (*model.Job, error) {
	customerName = strings.TrimSpace(customerName)
	address = strings.TrimSpace(address)
	if customerName == "" {
		return nil, apperr.New(apperr.KindValidation, "customerName is required")
	}
	if address == "" {
		return nil, apperr.New(apperr.KindValidation, "address is required")
	}

	job := &model.Job{
		CustomerName: customerName,
		Address:      address,
		Notes:        notes,
		PriceCents:   e.pricer.PriceCents(customerName, address, notes),
		Status:       model.StatusPending,
	}
	if err := e.store.InsertJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs in the given status, creation order.
func (e *Engine) ListJobs(ctx context.Context, status model.JobStatus) ([]model.Job, error) {
	return e.store.ListJobsByStatus(ctx, status)
}

// GetJob returns a single job by id.
func (e *Engine) GetJob(ctx context.Context, id uint64) (*model.Job, error) {
	job, err := e.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "job %d not found", id)
	}
	return job, err
}

// AcceptJob assigns a washer to a pending job. A washer whose payout account
// is missing or not yet payout-capable is rejected before the transition is
// attempted, so funds are never routed to an unconfirmed account. Concurrent
// accepts are decided by the conditional update: one wins, the rest get
// AlreadyTaken.
func (e *Engine) AcceptJob(ctx context.Context, jobID uint64, washerID string) (*model.Job, error) {
	washerID = strings.TrimSpace(washerID)
	if washerID == "" {
		return nil, apperr.New(apperr.KindValidation, "washerId is required")
	}

	state, err := e.eligibility.OnboardingState(ctx, washerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.KindWasherNotEligible, "washer %s has no payout account", washerID)
	}
	if err != nil {
		return nil, fmt.Errorf("accept job %d: eligibility check: %w", jobID, err)
	}
	if state != model.OnboardingActive {
		return nil, apperr.New(apperr.KindWasherNotEligible, "washer %s payout account is not active", washerID)
	}

	job, err := e.store.ConditionalUpdateJob(ctx, jobID, model.StatusPending, store.JobMutation{
		Status:   model.StatusAccepted,
		WasherID: &washerID,
	})
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, apperr.New(apperr.KindNotFound, "job %d not found", jobID)
	case errors.Is(err, store.ErrConflict):
		return nil, apperr.New(apperr.KindAlreadyTaken, "job %d is no longer pending", jobID)
	case err != nil:
		return nil, fmt.Errorf("accept job %d: %w", jobID, err)
	}
	return job, nil
}

// CancelJob cancels a pending or accepted job. A paid job cannot be
// cancelled. The washer assignment is kept on cancellation so the audit
// trail survives.
func (e *Engine) CancelJob(ctx context.Context, jobID uint64) (*model.Job, error) {
	for {
		current, err := e.store.GetJob(ctx, jobID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "job %d not found", jobID)
		}
		if err != nil {
			return nil, fmt.Errorf("cancel job %d: %w", jobID, err)
		}

		if !current.Status.CanTransitionTo(model.StatusCancelled) {
			return nil, apperr.New(apperr.KindInvalidTransition, "job %d cannot be cancelled from status %q", jobID, current.Status)
		}

		job, err := e.store.ConditionalUpdateJob(ctx, jobID, current.Status, store.JobMutation{
			Status: model.StatusCancelled,
		})
		if errors.Is(err, store.ErrConflict) {
			// The status moved between the read and the write. Re-read and
			// decide again against the store's current truth.
			continue
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.KindNotFound, "job %d not found", jobID)
		}
		if err != nil {
			return nil, fmt.Errorf("cancel job %d: %w", jobID, err)
		}
		return job, nil
	}
}
