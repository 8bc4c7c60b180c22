package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmis-platform/queue-api/internal/models"
)

func newConfigMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestQueueConfigRepositoryGetByAccount(t *testing.T) {
	db, mock, cleanup := newConfigMock(t)
	defer cleanup()
	repo := NewQueueConfigRepository(db)

	rows := sqlmock.NewRows([]string{"id", "org_id", "social_account_id", "weekdays_enabled", "time_slots", "timezone", "is_active", "created_at", "updated_at"}).
		AddRow("cfg-1", "org-1", "acc-1", "1111100", pq.StringArray{"09:00", "17:00"}, "UTC", true, time.Now(), time.Now())
	mock.ExpectQuery("SELECT id, org_id, social_account_id, weekdays_enabled, time_slots, timezone, is_active, created_at, updated_at FROM queue_configs").
		WithArgs("org-1", "acc-1").
		WillReturnRows(rows)

	cfg, err := repo.GetByAccount(context.Background(), "org-1", "acc-1")

	require.NoError(t, err)
	assert.Equal(t, "1111100", cfg.WeekdaysEnabled)
	assert.Equal(t, pq.StringArray{"09:00", "17:00"}, cfg.TimeSlots)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueConfigRepositoryGetByAccountMissing(t *testing.T) {
	db, mock, cleanup := newConfigMock(t)
	defer cleanup()
	repo := NewQueueConfigRepository(db)

	mock.ExpectQuery("SELECT id, org_id, social_account_id, weekdays_enabled").
		WithArgs("org-1", "acc-404").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByAccount(context.Background(), "org-1", "acc-404")

	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueConfigRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newConfigMock(t)
	defer cleanup()
	repo := NewQueueConfigRepository(db)

	mock.ExpectExec("INSERT INTO queue_configs").
		WithArgs(sqlmock.AnyArg(), "org-1", "acc-1", "1111100", sqlmock.AnyArg(), "UTC", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	cfg := &models.QueueConfig{
		OrgID:           "org-1",
		SocialAccountID: "acc-1",
		WeekdaysEnabled: "1111100",
		TimeSlots:       pq.StringArray{"09:00"},
		Timezone:        "UTC",
		IsActive:        true,
	}
	err := repo.Upsert(context.Background(), cfg)

	require.NoError(t, err)
	assert.NotEmpty(t, cfg.ID)
	assert.False(t, cfg.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}
