package sqlx_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	libsqlx "github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	storage "rewardkit/adapters/sqlx"
	"rewardkit/core"
)

func newMockStore(t *testing.T) (*storage.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	xdb := storage.NewWithDB(libsqlx.NewDb(db, "postgres"), storage.DriverPostgres)
	cleanup := func() {
		_ = db.Close()
	}
	return xdb, mock, cleanup
}

func testActivity() core.Activity {
	return core.Activity{
		Key:        "ci-1",
		ID:         uuid.New(),
		UserID:     "tech-1",
		Type:       core.ActivityClockIn,
		OccurredAt: time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC),
		Day:        "2025-03-10",
	}
}

func TestSQLMock_UpsertActivity_New(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	a := testActivity()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(a.Key).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(`INSERT INTO activities`).
		WithArgs(a.Key, a.ID.String(), a.UserID, a.Type, a.DeviceID,
			sqlmock.AnyArg(), a.Day, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	existed, err := store.UpsertActivity(context.Background(), a)
	require.NoError(t, err)
	require.False(t, existed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_UpsertActivity_Duplicate(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	a := testActivity()
	a.Metadata = map[string]any{"retry": true}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(a.Key).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`UPDATE activities SET metadata`).
		WithArgs(sqlmock.AnyArg(), a.Key).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	existed, err := store.UpsertActivity(context.Background(), a)
	require.NoError(t, err)
	require.True(t, existed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_CountActivities_ExcludesCurrentKey(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM activities`).
		WithArgs(core.UserID("tech-1"), core.ActivityPhotoUpload, core.Day("2025-03-10"), "photo-6").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

	n, err := store.CountActivities(context.Background(), "tech-1", core.ActivityPhotoUpload, "2025-03-10", "photo-6")
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_GetProfile_Missing(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT .* FROM profiles`).
		WithArgs(core.UserID("tech-1")).
		WillReturnError(sql.ErrNoRows)

	_, found, err := store.GetProfile(context.Background(), "tech-1")
	require.NoError(t, err)
	require.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_SaveProfile_Insert(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	p := core.Profile{
		UserID: "tech-1", Points: 10, Experience: 10, Level: 1,
		StreakCurrent: 1, StreakLongest: 1, LastActivity: "2025-03-10",
		Version: 1, UpdatedAt: time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO profiles`).
		WithArgs(p.UserID, p.Points, p.Experience, p.Level, p.StreakCurrent,
			p.StreakLongest, p.LastActivity, p.Version, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.SaveProfile(context.Background(), p))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_SaveProfile_VersionConflict(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	p := core.Profile{UserID: "tech-1", Version: 4, UpdatedAt: time.Now().UTC()}

	mock.ExpectExec(`UPDATE profiles SET`).
		WithArgs(p.Points, p.Experience, p.Level, p.StreakCurrent, p.StreakLongest,
			p.LastActivity, p.Version, sqlmock.AnyArg(), p.UserID, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.SaveProfile(context.Background(), p)
	require.ErrorIs(t, err, core.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_InsertBadge_AlreadyEarned(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	g := core.BadgeGrant{UserID: "tech-1", Code: core.BadgeFirstEvent, EarnedAt: time.Now().UTC()}

	mock.ExpectExec(`INSERT INTO badges`).
		WithArgs(g.UserID, g.Code, sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	granted, err := store.InsertBadge(context.Background(), g)
	require.NoError(t, err, "uniqueness violation must be already-earned, not an error")
	require.False(t, granted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLMock_IncrementQuestProgress(t *testing.T) {
	store, mock, cleanup := newMockStore(t)
	defer cleanup()

	mock.ExpectQuery(`INSERT INTO quest_progress .* ON CONFLICT`).
		WithArgs(core.UserID("tech-1"), core.QuestJobFinisher, "jobs", int64(1), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"progress_value"}).AddRow(7))

	val, err := store.IncrementQuestProgress(context.Background(), "tech-1", core.QuestJobFinisher, "jobs", 1)
	require.NoError(t, err)
	require.Equal(t, int64(7), val)
	require.NoError(t, mock.ExpectationsWereMet())
}
