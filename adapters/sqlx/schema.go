package sqlx

import (
	"context"
	"fmt"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS activities (
		idempotency_key VARCHAR(128) PRIMARY KEY,
		id              UUID NOT NULL,
		user_id         VARCHAR(128) NOT NULL,
		activity_type   VARCHAR(64) NOT NULL,
		device_id       VARCHAR(128) NOT NULL DEFAULT '',
		occurred_at     TIMESTAMPTZ NOT NULL,
		day             CHAR(10) NOT NULL,
		lat             DOUBLE PRECISION,
		lng             DOUBLE PRECISION,
		metadata        JSONB
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activities_user_type_day ON activities (user_id, activity_type, day)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		user_id        VARCHAR(128) PRIMARY KEY,
		points         BIGINT NOT NULL DEFAULT 0,
		experience     BIGINT NOT NULL DEFAULT 0,
		level          INT NOT NULL DEFAULT 0,
		streak_current INT NOT NULL DEFAULT 0,
		streak_longest INT NOT NULL DEFAULT 0,
		last_activity  CHAR(10) NOT NULL DEFAULT '',
		version        BIGINT NOT NULL DEFAULT 0,
		updated_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS badges (
		user_id    VARCHAR(128) NOT NULL,
		badge_code VARCHAR(64) NOT NULL,
		earned_at  TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, badge_code)
	)`,
	`CREATE TABLE IF NOT EXISTS quest_progress (
		user_id        VARCHAR(128) NOT NULL,
		quest_code     VARCHAR(64) NOT NULL,
		progress_key   VARCHAR(64) NOT NULL,
		progress_value BIGINT NOT NULL DEFAULT 0,
		updated_at     TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, quest_code, progress_key)
	)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS activities (
		idempotency_key VARCHAR(128) PRIMARY KEY,
		id              CHAR(36) NOT NULL,
		user_id         VARCHAR(128) NOT NULL,
		activity_type   VARCHAR(64) NOT NULL,
		device_id       VARCHAR(128) NOT NULL DEFAULT '',
		occurred_at     TIMESTAMP NOT NULL,
		day             CHAR(10) NOT NULL,
		lat             DOUBLE,
		lng             DOUBLE,
		metadata        JSON,
		INDEX idx_activities_user_type_day (user_id, activity_type, day)
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		user_id        VARCHAR(128) PRIMARY KEY,
		points         BIGINT NOT NULL DEFAULT 0,
		experience     BIGINT NOT NULL DEFAULT 0,
		level          INT NOT NULL DEFAULT 0,
		streak_current INT NOT NULL DEFAULT 0,
		streak_longest INT NOT NULL DEFAULT 0,
		last_activity  CHAR(10) NOT NULL DEFAULT '',
		version        BIGINT NOT NULL DEFAULT 0,
		updated_at     TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS badges (
		user_id    VARCHAR(128) NOT NULL,
		badge_code VARCHAR(64) NOT NULL,
		earned_at  TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, badge_code)
	)`,
	`CREATE TABLE IF NOT EXISTS quest_progress (
		user_id        VARCHAR(128) NOT NULL,
		quest_code     VARCHAR(64) NOT NULL,
		progress_key   VARCHAR(64) NOT NULL,
		progress_value BIGINT NOT NULL DEFAULT 0,
		updated_at     TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, quest_code, progress_key)
	)`,
}

// Migrate creates the four engine tables when they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := postgresSchema
	if s.driver == DriverMySQL {
		stmts = mysqlSchema
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
