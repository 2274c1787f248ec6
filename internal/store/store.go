// Package store is the persistence layer. All job mutations after insert go
// through ConditionalUpdateJob; there is no other write path, which is what
// keeps concurrent accept/cancel/pay races correct.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"laundryspot-backend/internal/model"
)

var (
	// ErrNotFound is returned when the referenced row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional update loses a race: the
	// row's status no longer matches the expected status.
	ErrConflict = errors.New("status changed concurrently")
)

// JobMutation describes the fields a conditional update may change. Status is
// always applied; pointer fields are applied only when non-nil.
type JobMutation struct {
	Status           model.JobStatus
	WasherID         *string
	PaymentReference *string
}

// GormStore implements persistence on top of GORM. Consumers depend on the
// narrow interfaces they declare themselves, not on this struct.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// DB exposes the underlying handle for migrations in tests.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// InsertJob persists a new job. The caller sets status and price; id and
// createdAt are assigned here.
func (s *GormStore) InsertJob(ctx context.Context, job *model.Job) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob returns the job with the given id or ErrNotFound.
func (s *GormStore) GetJob(ctx context.Context, id uint64) (*model.Job, error) {
	var job model.Job
	err := s.db.WithContext(ctx).First(&job, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return &job, nil
}

// ListJobsByStatus returns jobs in the given status ordered by creation time
// ascending, id as tiebreaker so the order is stable.
func (s *GormStore) ListJobsByStatus(ctx context.Context, status model.JobStatus) ([]model.Job, error) {
	var jobs []model.Job
	err := s.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC, id ASC").
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("list jobs by status %q: %w", status, err)
	}
	return jobs, nil
}

// ConditionalUpdateJob atomically applies mut to the job with the given id,
// but only if its current status equals expected. The guard rides on a single
// UPDATE ... WHERE id = ? AND status = ?, so the database's row write lock
// serializes racing callers: at most one wins, the rest observe ErrConflict.
// A missing row is ErrNotFound, never a silent no-op.
func (s *GormStore) ConditionalUpdateJob(ctx context.Context, id uint64, expected model.JobStatus, mut JobMutation) (*model.Job, error) {
	var updated model.Job

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fields := map[string]any{"status": mut.Status}
		if mut.WasherID != nil {
			fields["washer_id"] = *mut.WasherID
		}
		if mut.PaymentReference != nil {
			fields["payment_reference"] = *mut.PaymentReference
		}

		res := tx.Model(&model.Job{}).
			Where("id = ? AND status = ?", id, expected).
			Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Distinguish a missing row from a lost race.
			var count int64
			if err := tx.Model(&model.Job{}).Where("id = ?", id).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrConflict
		}
		return tx.First(&updated, id).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("conditional update job %d: %w", id, err)
	}
	return &updated, nil
}

// --- Washer accounts ---

// InsertWasherAccount persists a newly onboarded washer account.
func (s *GormStore) InsertWasherAccount(ctx context.Context, acct *model.WasherAccount) error {
	if err := s.db.WithContext(ctx).Create(acct).Error; err != nil {
		return fmt.Errorf("insert washer account %s: %w", acct.WasherID, err)
	}
	return nil
}

// GetWasherAccount returns the account for the given washer or ErrNotFound.
func (s *GormStore) GetWasherAccount(ctx context.Context, washerID string) (*model.WasherAccount, error) {
	var acct model.WasherAccount
	err := s.db.WithContext(ctx).First(&acct, "washer_id = ?", washerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get washer account %s: %w", washerID, err)
	}
	return &acct, nil
}

// SetOnboardingState records the onboarding state reported by the gateway.
func (s *GormStore) SetOnboardingState(ctx context.Context, washerID string, state model.OnboardingState) error {
	res := s.db.WithContext(ctx).Model(&model.WasherAccount{}).
		Where("washer_id = ?", washerID).
		Update("onboarding_state", state)
	if res.Error != nil {
		return fmt.Errorf("set onboarding state for %s: %w", washerID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Settlement queue ---

// EnqueueSettlement durably records a payment that could not be applied to
// its job. This must never fail silently: money has already moved.
func (s *GormStore) EnqueueSettlement(ctx context.Context, rec *model.Settlement) error {
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("enqueue settlement for job %d: %w", rec.JobID, err)
	}
	return nil
}

// ListDueSettlements returns unresolved settlements whose next attempt time
// has passed, oldest first.
func (s *GormStore) ListDueSettlements(ctx context.Context, now time.Time) ([]model.Settlement, error) {
	var recs []model.Settlement
	err := s.db.WithContext(ctx).
		Where("resolved_at IS NULL AND next_attempt_at <= ?", now).
		Order("created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list due settlements: %w", err)
	}
	return recs, nil
}

// RecordSettlementAttempt bumps the attempt counter and schedules the next try.
func (s *GormStore) RecordSettlementAttempt(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error {
	res := s.db.WithContext(ctx).Model(&model.Settlement{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":        gorm.Expr("attempts + 1"),
			"next_attempt_at": nextAttemptAt,
		})
	if res.Error != nil {
		return fmt.Errorf("record settlement attempt %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResolveSettlement marks a settlement as reconciled.
func (s *GormStore) ResolveSettlement(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&model.Settlement{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Update("resolved_at", time.Now().UTC())
	if res.Error != nil {
		return fmt.Errorf("resolve settlement %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Push subscriptions ---

// UpsertSubscription creates or refreshes a push subscription keyed by its
// endpoint.
func (s *GormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes the subscription with the given endpoint.
func (s *GormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// ListSubscriptions returns all registered push subscriptions.
func (s *GormStore) ListSubscriptions(ctx context.Context) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}
