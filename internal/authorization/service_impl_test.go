package authorization

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	appuserdomain "github.com/smallbiznis/posbridge/internal/appuser/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer}), db
}

func user(id int64, role appuserdomain.Role) appuserdomain.AppUser {
	return appuserdomain.AppUser{ID: snowflake.ID(id), Username: "u", Role: role, IsActive: true}
}

func TestRolePermissions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		object, action          string
		admin, manager, regular bool
	}{
		{ObjectTransfer, ActionView, true, true, true},
		{ObjectTransfer, ActionFetch, true, true, true},
		{ObjectPos, ActionAdd, true, true, false},
		{ObjectWorker, ActionControl, true, true, false},
		{ObjectLogs, ActionView, true, true, false},
		{ObjectProfile, ActionManage, true, true, false},
		{ObjectSettings, ActionEdit, true, false, false},
		{ObjectUsers, ActionManage, true, false, false},
	}
	for _, tc := range cases {
		check := func(u appuserdomain.AppUser, want bool) {
			err := svc.Authorize(ctx, u, tc.object, tc.action)
			if want {
				assert.NoError(t, err, "%s %s:%s", u.Role, tc.object, tc.action)
			} else {
				assert.ErrorIs(t, err, ErrForbidden, "%s %s:%s", u.Role, tc.object, tc.action)
			}
		}
		check(user(1, appuserdomain.RoleAdmin), tc.admin)
		check(user(2, appuserdomain.RoleManager), tc.manager)
		check(user(3, appuserdomain.RoleUser), tc.regular)
	}
}

func TestRoleChangeTakesEffect(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u := user(7, appuserdomain.RoleManager)
	require.NoError(t, svc.Authorize(ctx, u, ObjectPos, ActionAdd))

	u.Role = appuserdomain.RoleUser
	assert.ErrorIs(t, svc.Authorize(ctx, u, ObjectPos, ActionAdd), ErrForbidden)
}

func TestInactiveUserIsRejected(t *testing.T) {
	svc, _ := newTestService(t)
	u := user(9, appuserdomain.RoleAdmin)
	u.IsActive = false
	assert.ErrorIs(t, svc.Authorize(context.Background(), u, ObjectTransfer, ActionView), ErrInvalidActor)
}

func TestPoliciesSurviveReload(t *testing.T) {
	_, db := newTestService(t)

	enforcer, err := NewEnforcer(db)
	require.NoError(t, err)
	svc := NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})

	perms, err := svc.Permissions(context.Background(), user(1, appuserdomain.RoleManager))
	require.NoError(t, err)
	assert.Contains(t, perms, Permission{Object: ObjectPos, Action: ActionAdd})
	assert.Contains(t, perms, Permission{Object: ObjectTransfer, Action: ActionView})
	assert.NotContains(t, perms, Permission{Object: ObjectSettings, Action: ActionEdit})

	var count int64
	require.NoError(t, db.Table("casbin_rule").Where("ptype = ?", "p").Count(&count).Error)
	assert.EqualValues(t, 13, count)
}
