package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"laundryspot-backend/internal/model"
)

// A helper function to create a mock database connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func jobRow(id uint64, status model.JobStatus) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "customer_name", "address", "notes", "price_cents",
		"status", "washer_id", "payment_reference", "created_at", "updated_at",
	}).AddRow(id, "Alice", "1 Main St", "", 1500, string(status), nil, nil, time.Now(), time.Now())
}

// The conditional update must ride on a single guarded UPDATE: the WHERE
// clause carries both the id and the expected status, so the database's row
// write lock decides races.
func TestConditionalUpdateJob_GuardedUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewGormStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "jobs" SET .+ WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "jobs" WHERE "jobs"\."id" = \$1`).
		WillReturnRows(jobRow(1, model.StatusAccepted))
	mock.ExpectCommit()

	washer := "W1"
	job, err := s.ConditionalUpdateJob(context.Background(), 1, model.StatusPending, JobMutation{
		Status:   model.StatusAccepted,
		WasherID: &washer,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAccepted, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConditionalUpdateJob_Conflict(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewGormStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "jobs" SET .+ WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// Zero rows and the job exists: somebody else changed the status first.
	mock.ExpectQuery(`SELECT count\(\*\) FROM "jobs" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	_, err := s.ConditionalUpdateJob(context.Background(), 1, model.StatusPending, JobMutation{
		Status: model.StatusAccepted,
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConditionalUpdateJob_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	s := NewGormStore(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "jobs" SET .+ WHERE id = \$\d+ AND status = \$\d+`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "jobs" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectRollback()

	_, err := s.ConditionalUpdateJob(context.Background(), 42, model.StatusPending, JobMutation{
		Status: model.StatusAccepted,
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
