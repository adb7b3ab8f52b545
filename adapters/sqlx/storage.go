package sqlx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"rewardkit/core"
)

// Driver selects the SQL dialect.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// Config holds SQL connection configuration.
type Config struct {
	Driver          Driver        `json:"driver" env:"REWARDKIT_STORAGE_SQL_DRIVER"`
	DSN             string        `json:"dsn" env:"REWARDKIT_STORAGE_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"REWARDKIT_STORAGE_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"REWARDKIT_STORAGE_SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"REWARDKIT_STORAGE_SQL_CONN_MAX_LIFETIME"`
	Migrate         bool          `json:"migrate" env:"REWARDKIT_STORAGE_SQL_MIGRATE"`
}

// DefaultConfig returns sensible defaults for the given driver.
func DefaultConfig(driver Driver) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    16,
		MaxIdleConns:    4,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store implements the engine storage contract on a relational database.
// All concurrency-sensitive writes are expressed as single conditional or
// arithmetic statements so correctness rests on the database, not on any
// in-process lock.
type Store struct {
	db     *sqlx.DB
	driver Driver
}

// New connects using the provided configuration.
func New(cfg Config) (*Store, error) {
	db, err := sqlx.Connect(string(cfg.Driver), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	s := &Store{db: db, driver: cfg.Driver}
	if cfg.Migrate {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewWithDB wraps an existing connection (useful for testing).
func NewWithDB(db *sqlx.DB, driver Driver) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) UpsertActivity(ctx context.Context, a core.Activity) (bool, error) {
	meta, err := marshalMetadata(a.Metadata)
	if err != nil {
		return false, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.GetContext(ctx, &exists,
		tx.Rebind(`SELECT EXISTS(SELECT 1 FROM activities WHERE idempotency_key = ?)`), a.Key); err != nil {
		return false, fmt.Errorf("check activity: %w", err)
	}
	if exists {
		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`UPDATE activities SET metadata = ? WHERE idempotency_key = ?`), meta, a.Key); err != nil {
			return false, fmt.Errorf("refresh activity metadata: %w", err)
		}
		return true, tx.Commit()
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(
		`INSERT INTO activities (idempotency_key, id, user_id, activity_type, device_id, occurred_at, day, lat, lng, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		a.Key, a.ID.String(), a.UserID, a.Type, a.DeviceID, a.OccurredAt, a.Day, a.Lat, a.Lng, meta)
	if err != nil {
		// Two racing submissions with the same key: the loser observed
		// exists=false but the row is there now.
		if isUniqueViolation(err) {
			return true, nil
		}
		return false, fmt.Errorf("insert activity: %w", err)
	}
	return false, tx.Commit()
}

func (s *Store) CountActivities(ctx context.Context, user core.UserID, typ core.ActivityType, day core.Day, excludeKey string) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, s.db.Rebind(
		`SELECT COUNT(*) FROM activities
		 WHERE user_id = ? AND activity_type = ? AND day = ? AND idempotency_key <> ?`),
		user, typ, day, excludeKey)
	if err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return n, nil
}

func (s *Store) GetProfile(ctx context.Context, user core.UserID) (core.Profile, bool, error) {
	var p core.Profile
	err := s.db.GetContext(ctx, &p, s.db.Rebind(
		`SELECT user_id, points, experience, level, streak_current, streak_longest, last_activity, version, updated_at
		 FROM profiles WHERE user_id = ?`), user)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Profile{}, false, nil
	}
	if err != nil {
		return core.Profile{}, false, fmt.Errorf("get profile: %w", err)
	}
	return p, true, nil
}

func (s *Store) SaveProfile(ctx context.Context, p core.Profile) error {
	if p.Version == 1 {
		_, err := s.db.ExecContext(ctx, s.db.Rebind(
			`INSERT INTO profiles (user_id, points, experience, level, streak_current, streak_longest, last_activity, version, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			p.UserID, p.Points, p.Experience, p.Level, p.StreakCurrent, p.StreakLongest, p.LastActivity, p.Version, p.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return core.ErrConflict
			}
			return fmt.Errorf("insert profile: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		`UPDATE profiles SET points = ?, experience = ?, level = ?, streak_current = ?, streak_longest = ?, last_activity = ?, version = ?, updated_at = ?
		 WHERE user_id = ? AND version = ?`),
		p.Points, p.Experience, p.Level, p.StreakCurrent, p.StreakLongest, p.LastActivity, p.Version, p.UpdatedAt,
		p.UserID, p.Version-1)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if rows == 0 {
		return core.ErrConflict
	}
	return nil
}

func (s *Store) InsertBadge(ctx context.Context, g core.BadgeGrant) (bool, error) {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(
		`INSERT INTO badges (user_id, badge_code, earned_at) VALUES (?, ?, ?)`),
		g.UserID, g.Code, g.EarnedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert badge: %w", err)
	}
	return true, nil
}

func (s *Store) ListBadges(ctx context.Context, user core.UserID) ([]core.BadgeGrant, error) {
	var out []core.BadgeGrant
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(
		`SELECT user_id, badge_code, earned_at FROM badges WHERE user_id = ? ORDER BY earned_at, badge_code`), user)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	return out, nil
}

func (s *Store) IncrementQuestProgress(ctx context.Context, user core.UserID, quest core.QuestCode, key string, delta int64) (int64, error) {
	now := time.Now().UTC()
	if s.driver == DriverPostgres {
		var val int64
		err := s.db.GetContext(ctx, &val,
			`INSERT INTO quest_progress (user_id, quest_code, progress_key, progress_value, updated_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (user_id, quest_code, progress_key)
			 DO UPDATE SET progress_value = quest_progress.progress_value + EXCLUDED.progress_value, updated_at = EXCLUDED.updated_at
			 RETURNING progress_value`,
			user, quest, key, delta, now)
		if err != nil {
			return 0, fmt.Errorf("increment quest progress: %w", err)
		}
		return val, nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quest_progress (user_id, quest_code, progress_key, progress_value, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE progress_value = progress_value + VALUES(progress_value), updated_at = VALUES(updated_at)`,
		user, quest, key, delta, now)
	if err != nil {
		return 0, fmt.Errorf("increment quest progress: %w", err)
	}
	var val int64
	err = s.db.GetContext(ctx, &val, s.db.Rebind(
		`SELECT progress_value FROM quest_progress WHERE user_id = ? AND quest_code = ? AND progress_key = ?`),
		user, quest, key)
	if err != nil {
		return 0, fmt.Errorf("read quest progress: %w", err)
	}
	return val, nil
}

func (s *Store) ListQuestProgress(ctx context.Context, user core.UserID) ([]core.QuestProgress, error) {
	var out []core.QuestProgress
	err := s.db.SelectContext(ctx, &out, s.db.Rebind(
		`SELECT user_id, quest_code, progress_key, progress_value, updated_at
		 FROM quest_progress WHERE user_id = ? ORDER BY quest_code, progress_key`), user)
	if err != nil {
		return nil, fmt.Errorf("list quest progress: %w", err)
	}
	return out, nil
}

func marshalMetadata(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}

// isUniqueViolation recognizes duplicate-key failures for both dialects.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return false
}
