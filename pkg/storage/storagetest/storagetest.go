// Package storagetest provides migrated in-memory databases for tests
package storagetest

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/warden/pkg/storage"
)

// NewSQLite returns a migrated in-memory SQLite database closed at test cleanup
func NewSQLite(t testing.TB) *sql.DB {
	t.Helper()

	db, err := storage.Open(context.Background(), storage.Config{Driver: storage.SQLite, DSN: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := storage.RunMigrations(context.Background(), db.DB, storage.SQLite, QuietLogger()); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db.DB
}

// QuietLogger returns a logger that discards output
func QuietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// MustExec runs a statement and fails the test on error
func MustExec(t testing.TB, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

// InsertID runs an INSERT ... RETURNING id and returns the id
func InsertID(t testing.TB, db *sql.DB, query string, args ...any) int64 {
	t.Helper()
	var id int64
	if err := db.QueryRow(query, args...).Scan(&id); err != nil {
		t.Fatalf("insert %q: %v", query, err)
	}
	return id
}

// UserRow describes a user to seed. Empty fields take defaults: an active,
// direct user with the plain user role.
type UserRow struct {
	Username    string
	Email       string
	SystemRole  string
	UserType    string
	Status      string
	TeamID      *int64
	TeamRole    string
	GroupID     *int64
	GroupRole   string
	SignInCount int
}

// InsertUser seeds a user and returns its ID
func InsertUser(t testing.TB, db *sql.DB, u UserRow) int64 {
	t.Helper()
	if u.Email == "" {
		u.Email = fmt.Sprintf("%s@example.com", u.Username)
	}
	if u.SystemRole == "" {
		u.SystemRole = "user"
	}
	if u.UserType == "" {
		u.UserType = "direct"
	}
	if u.Status == "" {
		u.Status = "active"
	}
	now := time.Now().UTC()
	return InsertID(t, db, `
		INSERT INTO users (
			email, username, system_role, user_type, status,
			team_id, team_role, enterprise_group_id, enterprise_group_role,
			sign_in_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		u.Email, u.Username, u.SystemRole, u.UserType, u.Status,
		u.TeamID, nullable(u.TeamRole), u.GroupID, nullable(u.GroupRole),
		u.SignInCount, now, now,
	)
}

// InsertTeam seeds a team without an admin and returns its ID
func InsertTeam(t testing.TB, db *sql.DB, slug string, maxMembers int) int64 {
	t.Helper()
	now := time.Now().UTC()
	return InsertID(t, db, `
		INSERT INTO teams (name, slug, max_members, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		slug, slug, maxMembers, "active", now, now,
	)
}

// InsertEnterpriseGroup seeds an enterprise group and returns its ID
func InsertEnterpriseGroup(t testing.TB, db *sql.DB, name string) int64 {
	t.Helper()
	now := time.Now().UTC()
	return InsertID(t, db, `
		INSERT INTO enterprise_groups (name, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		name, "active", now, now,
	)
}

// SetTeamAdmin points a team's admin_id at userID
func SetTeamAdmin(t testing.TB, db *sql.DB, teamID, userID int64) {
	t.Helper()
	MustExec(t, db, `UPDATE teams SET admin_id = $1 WHERE id = $2`, userID, teamID)
}

// SetGroupAdmin points an enterprise group's admin_id at userID
func SetGroupAdmin(t testing.TB, db *sql.DB, groupID, userID int64) {
	t.Helper()
	MustExec(t, db, `UPDATE enterprise_groups SET admin_id = $1 WHERE id = $2`, userID, groupID)
}

// Int64 returns a pointer to v
func Int64(v int64) *int64 { return &v }

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
