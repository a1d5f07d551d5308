package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/posbridge/internal/appuser/domain"
	"github.com/smallbiznis/posbridge/internal/appuser/password"
	"github.com/smallbiznis/posbridge/internal/appuser/repository"
	"github.com/smallbiznis/posbridge/internal/clock"
	"github.com/smallbiznis/posbridge/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func setup(t *testing.T, auth config.AuthConfig) (domain.Service, *clock.FakeClock) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.AppUser{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	auth.PasswordCost = bcrypt.MinCost
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:     db,
		Log:    zap.NewNop(),
		GenID:  node,
		Repo:   repository.Provide(),
		Clock:  clk,
		Config: config.Config{Auth: auth},
	})
	return svc, clk
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc, clk := setup(t, config.AuthConfig{})
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.CreateUserRequest{
		Username: " Dana ",
		Password: "secret-1",
		Role:     "manager",
	})
	require.NoError(t, err)
	assert.Equal(t, "Dana", created.Username)
	assert.Equal(t, domain.RoleManager, created.Role)
	assert.True(t, created.IsActive)
	assert.NotEqual(t, "secret-1", created.PasswordHash)

	_, err = svc.Authenticate(ctx, "dana", "wrong-pass")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "secret-1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	clk.Advance(time.Minute)
	user, err := svc.Authenticate(ctx, "DANA", "secret-1")
	require.NoError(t, err)
	require.NotNil(t, user.LastLoginAt)
	assert.Equal(t, clk.Now(), *user.LastLoginAt)

	stored, err := svc.Get(ctx, created.ID.String())
	require.NoError(t, err)
	require.NotNil(t, stored.LastLoginAt)
}

func TestCreateValidates(t *testing.T) {
	svc, _ := setup(t, config.AuthConfig{})
	ctx := context.Background()

	_, err := svc.Create(ctx, domain.CreateUserRequest{Username: " ", Password: "secret-1", Role: "user"})
	assert.ErrorIs(t, err, domain.ErrInvalidUsername)
	_, err = svc.Create(ctx, domain.CreateUserRequest{Username: "a", Password: "secret-1", Role: "owner"})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
	_, err = svc.Create(ctx, domain.CreateUserRequest{Username: "a", Password: "123", Role: "user"})
	assert.ErrorIs(t, err, domain.ErrInvalidPassword)

	_, err = svc.Create(ctx, domain.CreateUserRequest{Username: "a", Password: "secret-1", Role: "user"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, domain.CreateUserRequest{Username: "A", Password: "secret-1", Role: "user"})
	assert.ErrorIs(t, err, domain.ErrUsernameTaken)
}

func TestInactiveUserCannotLogIn(t *testing.T) {
	svc, _ := setup(t, config.AuthConfig{})
	ctx := context.Background()
	inactive := false
	_, err := svc.Create(ctx, domain.CreateUserRequest{Username: "ops", Password: "secret-1", Role: "user", IsActive: &inactive})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "ops", "secret-1")
	assert.ErrorIs(t, err, domain.ErrUserInactive)
}

func TestEnsureAdminSeedsOnce(t *testing.T) {
	svc, _ := setup(t, config.AuthConfig{BootstrapUsername: "root", BootstrapPassword: "changeme"})
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx))
	require.NoError(t, svc.EnsureAdmin(ctx))

	users, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "root", users[0].Username)
	assert.Equal(t, domain.RoleAdmin, users[0].Role)
	assert.True(t, users[0].MustChangePassword)

	admin, err := svc.Authenticate(ctx, "root", "changeme")
	require.NoError(t, err)
	require.NoError(t, svc.ChangePassword(ctx, admin.ID.String(), "changeme", "better-secret"))

	admin, err = svc.Authenticate(ctx, "root", "better-secret")
	require.NoError(t, err)
	assert.False(t, admin.MustChangePassword)
}

func TestEnsureAdminKeepsStoredHash(t *testing.T) {
	hash, err := password.Hash("from-vault", bcrypt.MinCost)
	require.NoError(t, err)
	svc, _ := setup(t, config.AuthConfig{BootstrapPassword: hash})
	ctx := context.Background()

	require.NoError(t, svc.EnsureAdmin(ctx))
	_, err = svc.Authenticate(ctx, "admin", "from-vault")
	assert.NoError(t, err)
}

func TestLastActiveAdminIsProtected(t *testing.T) {
	svc, _ := setup(t, config.AuthConfig{})
	ctx := context.Background()
	require.NoError(t, svc.EnsureAdmin(ctx))
	users, err := svc.List(ctx)
	require.NoError(t, err)
	adminID := users[0].ID.String()

	demote := "user"
	_, err = svc.Update(ctx, adminID, domain.UpdateUserRequest{Role: &demote})
	assert.ErrorIs(t, err, domain.ErrLastAdmin)
	assert.ErrorIs(t, svc.Delete(ctx, adminID), domain.ErrLastAdmin)

	_, err = svc.Create(ctx, domain.CreateUserRequest{Username: "second", Password: "secret-1", Role: "admin"})
	require.NoError(t, err)
	updated, err := svc.Update(ctx, adminID, domain.UpdateUserRequest{Role: &demote})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, updated.Role)
}

func TestAdminPasswordResetForcesChange(t *testing.T) {
	svc, _ := setup(t, config.AuthConfig{})
	ctx := context.Background()
	created, err := svc.Create(ctx, domain.CreateUserRequest{Username: "ops", Password: "secret-1", Role: "user"})
	require.NoError(t, err)

	reset := "temp-pass"
	updated, err := svc.Update(ctx, created.ID.String(), domain.UpdateUserRequest{Password: &reset, ActorID: 42})
	require.NoError(t, err)
	assert.True(t, updated.MustChangePassword)
	require.NotNil(t, updated.UpdatedBy)
	assert.Equal(t, snowflake.ID(42), *updated.UpdatedBy)

	err = svc.ChangePassword(ctx, created.ID.String(), "secret-1", "another-1")
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	require.NoError(t, svc.ChangePassword(ctx, created.ID.String(), "temp-pass", "another-1"))
}
