package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func openSQLite(t *testing.T) *DB {
	db, err := Open(context.Background(), Config{Driver: SQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	t.Run("unsupported driver", func(t *testing.T) {
		_, err := Open(context.Background(), Config{Driver: "mysql"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database driver")
	})

	t.Run("sqlite", func(t *testing.T) {
		db := openSQLite(t)
		assert.Equal(t, SQLite, db.Dialect)
		assert.Equal(t, 1, db.Stats().MaxOpenConnections)
		assert.NoError(t, db.HealthCheck(context.Background()))
	})
}

func TestRunMigrations(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)

	require.NoError(t, RunMigrations(ctx, db.DB, SQLite, quietLogger()))
	// second run is a no-op
	require.NoError(t, RunMigrations(ctx, db.DB, SQLite, quietLogger()))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM warden_migrations").Scan(&count))
	assert.Equal(t, len(GetMigrations()), count)

	for _, table := range []string{"users", "teams", "enterprise_groups", "invitations", "audit_log_entries",
		"notifications", "announcements", "plans", "subscriptions", "email_change_requests"} {
		_, err := db.Exec(fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
		assert.NoError(t, err, table)
	}
}

func TestRunMigrationsFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS warden_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM warden_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS teams").WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = RunMigrations(context.Background(), db, Postgres, quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute migration 1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationRender(t *testing.T) {
	m := Migration{SQL: "id {{pk}}, at {{ts}}, doc {{json}}"}
	assert.Equal(t, "id BIGSERIAL PRIMARY KEY, at TIMESTAMPTZ, doc JSONB", m.Render(Postgres))
	assert.Equal(t, "id INTEGER PRIMARY KEY AUTOINCREMENT, at TIMESTAMP, doc TEXT", m.Render(SQLite))
}

func TestIsUniqueViolation(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	require.NoError(t, RunMigrations(ctx, db.DB, SQLite, quietLogger()))

	now := time.Now().UTC()
	insert := `INSERT INTO users (email, username, created_at, updated_at) VALUES ($1, $2, $3, $4)`
	_, err := db.Exec(insert, "ada@example.com", "ada", now, now)
	require.NoError(t, err)

	_, err = db.Exec(insert, "ada@example.com", "ada2", now, now)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))
	assert.True(t, IsConstraintViolation(err))

	wrapped := fmt.Errorf("failed to create user: %w", err)
	assert.True(t, IsUniqueViolation(wrapped))

	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "23503"}))
	assert.True(t, IsConstraintViolation(&pq.Error{Code: "23503"}))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsConstraintViolation(nil))
}

func TestWithTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	t.Run("commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := WithTx(context.Background(), db, func(tx *sql.Tx) error {
			_, err := tx.Exec("UPDATE users SET status = 'locked'")
			return err
		})
		require.NoError(t, err)
	})

	t.Run("rollback on error", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err := WithTx(context.Background(), db, func(tx *sql.Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := OpenRedis(context.Background(), RedisConfig{URL: "redis://" + mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	_, err = OpenRedis(context.Background(), RedisConfig{URL: "not a url"})
	assert.Error(t, err)
}
