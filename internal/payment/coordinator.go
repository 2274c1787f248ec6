// Package payment drives the payment gateway and reconciles its outcomes
// with the job store.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"laundryspot-backend/internal/apperr"
	"laundryspot-backend/internal/model"
	"laundryspot-backend/internal/store"
)

// JobStore is the persistence contract the coordinator needs.
type JobStore interface {
	GetJob(ctx context.Context, id uint64) (*model.Job, error)
	ConditionalUpdateJob(ctx context.Context, id uint64, expected model.JobStatus, mut store.JobMutation) (*model.Job, error)
	EnqueueSettlement(ctx context.Context, rec *model.Settlement) error
}

// Coordinator charges jobs through the gateway and records the result.
type Coordinator struct {
	store   JobStore
	gateway Gateway
}

// NewCoordinator creates a payment coordinator.
func NewCoordinator(s JobStore, g Gateway) *Coordinator {
	return &Coordinator{store: s, gateway: g}
}

// IdempotencyKey derives the gateway idempotency key for charging a job.
// It depends only on the job id, so any retry of the same logical charge
// reuses the same key and the gateway authorizes at most once.
func IdempotencyKey(jobID uint64) string {
	return fmt.Sprintf("laundryspot-job-%d-charge", jobID)
}

// ChargeJob authorizes the job's price against paymentMethodRef and marks the
// job paid. The job must currently be accepted. On gateway failure the job
// stays accepted and the charge may be retried. If the job's status changed
// between the successful authorization and the local update, the charge is
// durably queued for reconciliation and SettlementConflict is returned; a
// successful charge is never silently dropped.
func (c *Coordinator) ChargeJob(ctx context.Context, jobID uint64, paymentMethodRef string) (*model.Job, error) {
	if paymentMethodRef == "" {
		return nil, apperr.New(apperr.KindValidation, "paymentMethodRef is required")
	}

	job, err := c.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "job %d not found", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("charge job %d: %w", jobID, err)
	}
	if job.Status != model.StatusAccepted {
		return nil, apperr.New(apperr.KindInvalidState, "job %d is %q, only accepted jobs can be charged", jobID, job.Status)
	}

	auth, err := c.gateway.AuthorizeCharge(ctx, ChargeRequest{
		JobID:            jobID,
		AmountCents:      job.PriceCents,
		PaymentMethodRef: paymentMethodRef,
		IdempotencyKey:   IdempotencyKey(jobID),
	})
	if err != nil {
		// The job stays accepted; the washer has committed to it and the
		// caller may retry with the same idempotency key.
		return nil, err
	}

	updated, err := c.store.ConditionalUpdateJob(ctx, jobID, model.StatusAccepted, store.JobMutation{
		Status:           model.StatusPaid,
		PaymentReference: &auth.Reference,
	})
	if err == nil {
		return updated, nil
	}

	if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
		return nil, c.queueSettlement(ctx, job, auth.Reference, fmt.Sprintf("job status changed after authorization: %v", err))
	}
	return nil, c.queueSettlement(ctx, job, auth.Reference, fmt.Sprintf("recording payment failed: %v", err))
}

// queueSettlement durably records an authorized charge that could not be
// applied, then reports SettlementConflict.
func (c *Coordinator) queueSettlement(ctx context.Context, job *model.Job, reference, reason string) error {
	rec := &model.Settlement{
		JobID:            job.ID,
		PaymentReference: reference,
		AmountCents:      job.PriceCents,
		Reason:           reason,
		NextAttemptAt:    time.Now().UTC(),
	}
	// Use a fresh context: even if the caller disconnected mid-charge, the
	// authorized payment must land in the reconciliation queue.
	queueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.store.EnqueueSettlement(queueCtx, rec); err != nil {
		// Last resort: the operator log is the only remaining trace.
		log.Printf("CRITICAL: failed to queue settlement for job %d (payment %s): %v", job.ID, reference, err)
	}
	return apperr.New(apperr.KindSettlementConflict, "payment %s for job %d succeeded but could not be recorded: %s", reference, job.ID, reason)
}
