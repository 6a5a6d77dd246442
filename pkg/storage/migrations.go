package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration. SQL uses {{pk}}, {{ts}} and
// {{json}} placeholders that are rendered per dialect.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

var dialectTypes = map[Dialect]*strings.Replacer{
	Postgres: strings.NewReplacer(
		"{{pk}}", "BIGSERIAL PRIMARY KEY",
		"{{ts}}", "TIMESTAMPTZ",
		"{{json}}", "JSONB",
	),
	SQLite: strings.NewReplacer(
		"{{pk}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{ts}}", "TIMESTAMP",
		"{{json}}", "TEXT",
	),
}

// Render returns the migration SQL for a dialect
func (m Migration) Render(d Dialect) string {
	r, ok := dialectTypes[d]
	if !ok {
		return m.SQL
	}
	return r.Replace(m.SQL)
}

// GetMigrations returns all schema migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create tenant tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS teams (
					id {{pk}},
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					admin_id BIGINT,
					max_members INTEGER NOT NULL DEFAULT 5,
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					created_at {{ts}} NOT NULL,
					updated_at {{ts}} NOT NULL
				);

				CREATE TABLE IF NOT EXISTS enterprise_groups (
					id {{pk}},
					name VARCHAR(255) NOT NULL,
					domain VARCHAR(255),
					admin_id BIGINT,
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					created_at {{ts}} NOT NULL,
					updated_at {{ts}} NOT NULL
				);
			`,
		},
		{
			Version:     2,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id {{pk}},
					email VARCHAR(255) NOT NULL UNIQUE,
					username VARCHAR(255) NOT NULL UNIQUE,
					full_name VARCHAR(255),
					system_role VARCHAR(20) NOT NULL DEFAULT 'user',
					user_type VARCHAR(20) NOT NULL DEFAULT 'direct',
					status VARCHAR(20) NOT NULL DEFAULT 'active',
					team_id BIGINT REFERENCES teams(id),
					team_role VARCHAR(20),
					enterprise_group_id BIGINT REFERENCES enterprise_groups(id),
					enterprise_group_role VARCHAR(20),
					sign_in_count INTEGER NOT NULL DEFAULT 0,
					last_sign_in_at {{ts}},
					confirmed_at {{ts}},
					created_at {{ts}} NOT NULL,
					updated_at {{ts}} NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_users_team_id ON users(team_id);
				CREATE INDEX IF NOT EXISTS idx_users_enterprise_group_id ON users(enterprise_group_id);
			`,
		},
		{
			Version:     3,
			Description: "Create invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS invitations (
					id {{pk}},
					owner_type VARCHAR(20) NOT NULL,
					owner_id BIGINT NOT NULL,
					email VARCHAR(255) NOT NULL,
					role VARCHAR(20) NOT NULL,
					token VARCHAR(64) NOT NULL UNIQUE,
					invited_by BIGINT NOT NULL,
					created_at {{ts}} NOT NULL,
					expires_at {{ts}} NOT NULL,
					accepted_at {{ts}},
					accepted_by BIGINT
				);

				CREATE INDEX IF NOT EXISTS idx_invitations_owner ON invitations(owner_type, owner_id);
				CREATE INDEX IF NOT EXISTS idx_invitations_email ON invitations(email);
			`,
		},
		{
			Version:     4,
			Description: "Create audit log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log_entries (
					id {{pk}},
					actor_id BIGINT,
					target_id BIGINT,
					action VARCHAR(50) NOT NULL,
					details {{json}} NOT NULL,
					ip_address VARCHAR(64),
					user_agent TEXT,
					request_id VARCHAR(64),
					created_at {{ts}} NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_audit_log_entries_target_id ON audit_log_entries(target_id);
				CREATE INDEX IF NOT EXISTS idx_audit_log_entries_actor_id ON audit_log_entries(actor_id);
				CREATE INDEX IF NOT EXISTS idx_audit_log_entries_created_at ON audit_log_entries(created_at);
			`,
		},
		{
			Version:     5,
			Description: "Create notifications and announcements tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS notifications (
					id {{pk}},
					recipient_id BIGINT NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					payload {{json}} NOT NULL,
					created_at {{ts}} NOT NULL,
					read_at {{ts}}
				);

				CREATE INDEX IF NOT EXISTS idx_notifications_recipient_id ON notifications(recipient_id);

				CREATE TABLE IF NOT EXISTS announcements (
					id {{pk}},
					title VARCHAR(255) NOT NULL,
					body TEXT NOT NULL,
					published BOOLEAN NOT NULL DEFAULT FALSE,
					published_at {{ts}},
					created_by BIGINT NOT NULL,
					created_at {{ts}} NOT NULL
				);
			`,
		},
		{
			Version:     6,
			Description: "Create billing tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS plans (
					id {{pk}},
					name VARCHAR(255) NOT NULL UNIQUE,
					price_cents BIGINT NOT NULL,
					billing_interval VARCHAR(10) NOT NULL,
					max_members INTEGER NOT NULL,
					active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at {{ts}} NOT NULL
				);

				CREATE TABLE IF NOT EXISTS subscriptions (
					id {{pk}},
					plan_id BIGINT NOT NULL REFERENCES plans(id),
					team_id BIGINT REFERENCES teams(id),
					enterprise_group_id BIGINT REFERENCES enterprise_groups(id),
					status VARCHAR(20) NOT NULL,
					current_period_end {{ts}} NOT NULL,
					canceled_at {{ts}},
					created_at {{ts}} NOT NULL,
					updated_at {{ts}} NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_subscriptions_team_id ON subscriptions(team_id);
				CREATE INDEX IF NOT EXISTS idx_subscriptions_enterprise_group_id ON subscriptions(enterprise_group_id);
			`,
		},
		{
			Version:     7,
			Description: "Create email change requests table",
			SQL: `
				CREATE TABLE IF NOT EXISTS email_change_requests (
					id {{pk}},
					user_id BIGINT NOT NULL REFERENCES users(id),
					old_email VARCHAR(255) NOT NULL,
					new_email VARCHAR(255) NOT NULL,
					status VARCHAR(20) NOT NULL,
					requested_at {{ts}} NOT NULL,
					reviewed_by BIGINT,
					reviewed_at {{ts}}
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_email_change_requests_pending
					ON email_change_requests(user_id) WHERE status = 'pending';
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB, dialect Dialect, log *logrus.Logger) error {
	if log == nil {
		log = logrus.New()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS warden_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM warden_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, m := range GetMigrations() {
		if applied[m.Version] {
			continue
		}

		log.WithFields(logrus.Fields{"version": m.Version, "description": m.Description}).Info("running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, m.Render(dialect)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO warden_migrations (version, description, applied_at) VALUES ($1, $2, $3)",
			m.Version, m.Description, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
