package accounts

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validUser() *User {
	return &User{
		ID:         1,
		Email:      "ada@example.com",
		Username:   "ada",
		SystemRole: SystemRoleUser,
		UserType:   UserTypeDirect,
		Status:     StatusActive,
	}
}

func TestCheckAssociation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(u *User)
		wantErr bool
	}{
		{name: "direct without association", mutate: func(u *User) {}},
		{name: "direct with team", mutate: func(u *User) {
			u.TeamID, u.TeamRole = int64Ptr(1), rolePtr(MembershipRoleMember)
		}, wantErr: true},
		{name: "direct with group", mutate: func(u *User) {
			u.EnterpriseGroupID, u.EnterpriseGroupRole = int64Ptr(1), rolePtr(MembershipRoleMember)
		}, wantErr: true},
		{name: "invited with team", mutate: func(u *User) {
			u.UserType = UserTypeInvited
			u.TeamID, u.TeamRole = int64Ptr(1), rolePtr(MembershipRoleAdmin)
		}},
		{name: "invited with group", mutate: func(u *User) {
			u.UserType = UserTypeInvited
			u.EnterpriseGroupID, u.EnterpriseGroupRole = int64Ptr(1), rolePtr(MembershipRoleMember)
		}, wantErr: true},
		{name: "enterprise with group", mutate: func(u *User) {
			u.UserType = UserTypeEnterprise
			u.EnterpriseGroupID, u.EnterpriseGroupRole = int64Ptr(3), rolePtr(MembershipRoleMember)
		}},
		{name: "enterprise with team", mutate: func(u *User) {
			u.UserType = UserTypeEnterprise
			u.TeamID, u.TeamRole = int64Ptr(1), rolePtr(MembershipRoleMember)
		}, wantErr: true},
		{name: "team without role", mutate: func(u *User) {
			u.UserType = UserTypeInvited
			u.TeamID = int64Ptr(1)
		}, wantErr: true},
		{name: "unknown type", mutate: func(u *User) { u.UserType = "guest" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := validUser()
			tt.mutate(u)
			err := u.CheckAssociation()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrAssociationMismatch))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUserValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, validUser().Validate())
	})

	t.Run("aggregates messages", func(t *testing.T) {
		u := validUser()
		u.Email = ""
		u.Username = "Not Valid!"
		u.Status = "deleted"

		err := u.Validate()
		require.Error(t, err)

		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		assert.Equal(t, []string{
			"Email can't be blank",
			"Username is invalid",
			"Status is not included in the list",
		}, verr.Messages)
		assert.Equal(t, "Email can't be blank, Username is invalid, Status is not included in the list", err.Error())
	})

	t.Run("malformed email", func(t *testing.T) {
		u := validUser()
		u.Email = "not-an-email"
		assert.EqualError(t, u.Validate(), "Email is invalid")
	})
}

func TestClone(t *testing.T) {
	now := time.Now()
	u := validUser()
	u.UserType = UserTypeInvited
	u.TeamID = int64Ptr(7)
	u.TeamRole = rolePtr(MembershipRoleAdmin)
	u.LastSignInAt = &now

	c := u.Clone()
	*c.TeamID = 8
	*c.TeamRole = MembershipRoleMember

	assert.Equal(t, int64(7), *u.TeamID)
	assert.Equal(t, MembershipRoleAdmin, *u.TeamRole)
	assert.Nil(t, (*User)(nil).Clone())
}

func TestUserField(t *testing.T) {
	u := validUser()
	assert.Equal(t, int64(1), u.Field("id"))
	assert.Equal(t, "user", u.Field("system_role"))
	assert.Nil(t, u.Field("team_id"))
	assert.Nil(t, u.Field("unknown"))

	u.TeamID = int64Ptr(4)
	assert.Equal(t, int64(4), u.Field("team_id"))
}

func TestParseEnums(t *testing.T) {
	r, err := ParseSystemRole("site_admin")
	require.NoError(t, err)
	assert.Equal(t, SystemRoleSiteAdmin, r)

	_, err = ParseSystemRole("root")
	assert.Error(t, err)

	_, err = ParseStatus("banned")
	assert.Error(t, err)

	_, err = ParseUserType("enterprise")
	assert.NoError(t, err)

	_, err = ParseMembershipRole("owner")
	assert.Error(t, err)
}

func TestInvitationState(t *testing.T) {
	now := time.Now()
	inv := &Invitation{ExpiresAt: now.Add(time.Hour)}
	assert.Equal(t, InvitationPending, inv.State(now))
	assert.Equal(t, InvitationExpired, inv.State(now.Add(2*time.Hour)))

	inv.AcceptedAt = &now
	assert.Equal(t, InvitationAccepted, inv.State(now.Add(2*time.Hour)))
}

func TestOwnerKindUserType(t *testing.T) {
	assert.Equal(t, UserTypeInvited, OwnerTeam.UserType())
	assert.Equal(t, UserTypeEnterprise, OwnerEnterpriseGroup.UserType())
	assert.False(t, OwnerKind("project").Valid())
}
