package users

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/accounts"
	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/notifications"
	"github.com/platinummonkey/warden/pkg/policy"
	"github.com/platinummonkey/warden/pkg/storage"
	"github.com/platinummonkey/warden/pkg/storage/storagetest"
)

type fixture struct {
	db      *sql.DB
	store   *SQLStore
	svc     *Service
	audit   *audit.MemorySink
	inbox   *notifications.MemorySink
	teamID  int64
	smallID int64
	groupID int64

	superAdmin, otherSuper  int64
	siteAdmin               int64
	teamAdmin, teamMember   int64
	groupAdmin, groupMember int64
	direct                  int64
	smallMember             int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return seedFixture(t, storagetest.NewSQLite(t), storage.SQLite)
}

// seedFixture seeds the shared tenants and users into a migrated database
func seedFixture(t *testing.T, db *sql.DB, dialect storage.Dialect) *fixture {
	t.Helper()
	f := &fixture{db: db}

	f.teamID = storagetest.InsertTeam(t, db, "acme", 5)
	f.smallID = storagetest.InsertTeam(t, db, "tiny", 1)
	f.groupID = storagetest.InsertEnterpriseGroup(t, db, "globex")

	f.superAdmin = storagetest.InsertUser(t, db, storagetest.UserRow{Username: "root", SystemRole: "super_admin"})
	f.otherSuper = storagetest.InsertUser(t, db, storagetest.UserRow{Username: "root2", SystemRole: "super_admin"})
	f.siteAdmin = storagetest.InsertUser(t, db, storagetest.UserRow{Username: "ops", SystemRole: "site_admin"})
	f.teamAdmin = storagetest.InsertUser(t, db, storagetest.UserRow{
		Username: "alice", UserType: "invited", TeamID: &f.teamID, TeamRole: "admin",
	})
	f.teamMember = storagetest.InsertUser(t, db, storagetest.UserRow{
		Username: "bob", UserType: "invited", TeamID: &f.teamID, TeamRole: "member",
	})
	f.smallMember = storagetest.InsertUser(t, db, storagetest.UserRow{
		Username: "carol", UserType: "invited", TeamID: &f.smallID, TeamRole: "admin",
	})
	f.groupAdmin = storagetest.InsertUser(t, db, storagetest.UserRow{
		Username: "dave", UserType: "enterprise", GroupID: &f.groupID, GroupRole: "admin",
	})
	f.groupMember = storagetest.InsertUser(t, db, storagetest.UserRow{
		Username: "erin", UserType: "enterprise", GroupID: &f.groupID, GroupRole: "member",
	})
	f.direct = storagetest.InsertUser(t, db, storagetest.UserRow{Username: "frank", SignInCount: 7})

	storagetest.SetTeamAdmin(t, db, f.teamID, f.teamAdmin)
	storagetest.SetTeamAdmin(t, db, f.smallID, f.smallMember)
	storagetest.SetGroupAdmin(t, db, f.groupID, f.groupAdmin)

	log := storagetest.QuietLogger()
	f.store = NewSQLStore(db, dialect)
	f.audit = &audit.MemorySink{}
	f.inbox = &notifications.MemorySink{}
	f.svc = NewService(
		f.store,
		policy.NewEngine(policy.WithLogger(log)),
		audit.NewRecorder(log, []audit.Sink{f.audit}),
		f.inbox,
		log,
	)
	return f
}

func (f *fixture) user(t *testing.T, id int64) *accounts.User {
	t.Helper()
	u, err := f.store.Get(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (f *fixture) teamAdminID(t *testing.T, teamID int64) *int64 {
	t.Helper()
	var adminID sql.NullInt64
	require.NoError(t, f.db.QueryRow(`SELECT admin_id FROM teams WHERE id = $1`, teamID).Scan(&adminID))
	if !adminID.Valid {
		return nil
	}
	return &adminID.Int64
}
