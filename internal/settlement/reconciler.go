// Package settlement reconciles charges that succeeded at the gateway but
// could not be recorded on their job. Records are retried with backoff and
// resolved when the job can take the payment; anything that needs a human
// (e.g. a compensating refund after a cancellation race) stays queued and is
// logged loudly.
package settlement

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"

	"laundryspot-backend/internal/model"
	"laundryspot-backend/internal/store"
)

// Store is the persistence contract the reconciler needs.
type Store interface {
	GetJob(ctx context.Context, id uint64) (*model.Job, error)
	ConditionalUpdateJob(ctx context.Context, id uint64, expected model.JobStatus, mut store.JobMutation) (*model.Job, error)
	ListDueSettlements(ctx context.Context, now time.Time) ([]model.Settlement, error)
	RecordSettlementAttempt(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error
	ResolveSettlement(ctx context.Context, id uuid.UUID) error
}

// Reconciler periodically sweeps the settlement queue.
type Reconciler struct {
	store    Store
	interval time.Duration
	backoff  *backoff.Backoff
}

// NewReconciler creates a reconciler sweeping at the given interval.
func NewReconciler(s Store, interval time.Duration) *Reconciler {
	return &Reconciler{
		store:    s,
		interval: interval,
		backoff: &backoff.Backoff{
			Min:    interval,
			Max:    15 * time.Minute,
			Factor: 2,
		},
	}
}

// Run sweeps the queue until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	log.Printf("settlement reconciler started (interval %s)", r.interval)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.SweepOnce(ctx)
		case <-ctx.Done():
			log.Println("settlement reconciler shutting down")
			return
		}
	}
}

// SweepOnce processes every settlement whose retry time has come.
func (r *Reconciler) SweepOnce(ctx context.Context) {
	recs, err := r.store.ListDueSettlements(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("settlement sweep: %v", err)
		return
	}
	for i := range recs {
		r.reconcile(ctx, &recs[i])
	}
}

func (r *Reconciler) reconcile(ctx context.Context, rec *model.Settlement) {
	job, err := r.store.GetJob(ctx, rec.JobID)
	if errors.Is(err, store.ErrNotFound) {
		log.Printf("OPERATOR: settlement %s references missing job %d (payment %s, %d cents); manual reconciliation required",
			rec.ID, rec.JobID, rec.PaymentReference, rec.AmountCents)
		r.requeue(ctx, rec)
		return
	}
	if err != nil {
		log.Printf("settlement %s: load job %d: %v", rec.ID, rec.JobID, err)
		r.requeue(ctx, rec)
		return
	}

	switch job.Status {
	case model.StatusAccepted:
		_, err := r.store.ConditionalUpdateJob(ctx, job.ID, model.StatusAccepted, store.JobMutation{
			Status:           model.StatusPaid,
			PaymentReference: &rec.PaymentReference,
		})
		if err != nil {
			log.Printf("settlement %s: re-apply payment to job %d: %v", rec.ID, job.ID, err)
			r.requeue(ctx, rec)
			return
		}
		r.resolve(ctx, rec, "payment applied")

	case model.StatusPaid:
		if job.PaymentReference != nil && *job.PaymentReference == rec.PaymentReference {
			r.resolve(ctx, rec, "payment already recorded")
			return
		}
		log.Printf("OPERATOR: job %d is paid with reference %v but settlement %s holds %s; possible double charge, refund required",
			job.ID, job.PaymentReference, rec.ID, rec.PaymentReference)
		r.requeue(ctx, rec)

	default:
		// Pending or cancelled: money moved for a job that will not be
		// fulfilled. Only an operator can issue the compensating refund.
		log.Printf("OPERATOR: job %d is %q but payment %s (%d cents) was authorized; compensating refund required (settlement %s)",
			job.ID, job.Status, rec.PaymentReference, rec.AmountCents, rec.ID)
		r.requeue(ctx, rec)
	}
}

func (r *Reconciler) resolve(ctx context.Context, rec *model.Settlement, why string) {
	if err := r.store.ResolveSettlement(ctx, rec.ID); err != nil {
		log.Printf("settlement %s: resolve: %v", rec.ID, err)
		return
	}
	log.Printf("settlement %s resolved: %s (job %d, payment %s)", rec.ID, why, rec.JobID, rec.PaymentReference)
}

// requeue schedules the next attempt with exponential backoff. The record is
// never deleted; an unresolved settlement always stays operator-visible.
func (r *Reconciler) requeue(ctx context.Context, rec *model.Settlement) {
	next := time.Now().UTC().Add(r.backoff.ForAttempt(float64(rec.Attempts)))
	if err := r.store.RecordSettlementAttempt(ctx, rec.ID, next); err != nil {
		log.Printf("settlement %s: record attempt: %v", rec.ID, err)
	}
}
