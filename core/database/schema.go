package database

import (
	"context"
	"fmt"

	"go-calendar-core/core/logger"
)

// Timestamps are stored as epoch milliseconds and config blobs as JSON text
// so the same statements run on postgres and sqlite.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS calendar_accounts (
		cid             INTEGER NOT NULL,
		id              INTEGER NOT NULL,
		user_id         INTEGER NOT NULL,
		provider        VARCHAR(64) NOT NULL,
		modified        BIGINT NOT NULL,
		internal_config TEXT NOT NULL DEFAULT '{}',
		user_config     TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (cid, user_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calendar_accounts_provider
		ON calendar_accounts (cid, user_id, provider)`,
	`CREATE TABLE IF NOT EXISTS calendar_alarm_triggers (
		cid               INTEGER NOT NULL,
		user_id           INTEGER NOT NULL,
		account_id        INTEGER NOT NULL,
		alarm_id          INTEGER NOT NULL,
		event_id          VARCHAR(255) NOT NULL,
		folder_id         VARCHAR(255) NOT NULL,
		recurrence        VARCHAR(255) NOT NULL DEFAULT '',
		action            VARCHAR(32) NOT NULL,
		trigger_time      BIGINT NOT NULL,
		related_time      VARCHAR(32),
		trigger_duration  VARCHAR(64),
		floating_timezone VARCHAR(64),
		processed         BOOLEAN NOT NULL DEFAULT FALSE,
		retry_after       BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (cid, user_id, account_id, event_id, alarm_id, recurrence)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_calendar_alarm_triggers_due
		ON calendar_alarm_triggers (processed, trigger_time)`,
	`CREATE TABLE IF NOT EXISTS calendar_notifications (
		id           VARCHAR(36) PRIMARY KEY,
		cid          INTEGER NOT NULL,
		user_id      INTEGER NOT NULL,
		event_id     VARCHAR(512) NOT NULL,
		folder_id    VARCHAR(255) NOT NULL,
		alarm_id     INTEGER NOT NULL,
		action       VARCHAR(32) NOT NULL,
		trigger_time BIGINT NOT NULL,
		is_read      BOOLEAN NOT NULL DEFAULT FALSE,
		created_at   BIGINT NOT NULL,
		UNIQUE (cid, user_id, event_id, alarm_id, trigger_time)
	)`,
}

// InitSchema creates the tables used by the calendar modules.
func (d *Database) InitSchema(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := d.sqlx.ExecContext(ctx, stmt); err != nil {
			logger.Error("Database:InitSchema:Error", "statement", i, "error", err)
			return fmt.Errorf("init schema statement %d: %w", i, err)
		}
	}
	logger.Info("Database:InitSchema:Success", "statements", len(schema))
	return nil
}
