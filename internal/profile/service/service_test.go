package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/posbridge/internal/clock"
	"github.com/smallbiznis/posbridge/internal/profile/domain"
	"github.com/smallbiznis/posbridge/internal/profile/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setup(t *testing.T) (domain.Service, *clock.FakeClock) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.Profile{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	return New(Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: repository.Provide(), Clock: clk}), clk
}

func strPtr(s string) *string { return &s }

func TestCreateAndUpdateProfile(t *testing.T) {
	svc, clk := setup(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.SaveProfileRequest{
		Name:          " Main branch ",
		ProviderType:  "stb",
		LoginEmail:    strPtr("agent@example.com"),
		LoginPassword: strPtr("secret"),
		TotpSecret:    strPtr("JBSW Y3DP EHPK 3PXP"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Main branch", created.Name)
	assert.Equal(t, "STB", created.ProviderType)
	assert.True(t, created.IsActive)
	assert.True(t, created.HasLoginBundle())
	assert.Equal(t, "JBSWY3DPEHPK3PXP", created.NormalizedTotpSecret())

	inactive := false
	clk.Advance(time.Hour)
	updated, err := svc.Update(ctx, created.Key(), domain.SaveProfileRequest{IsActive: &inactive, PosUserID: "u1"})
	require.NoError(t, err)
	assert.False(t, updated.IsActive)
	assert.Equal(t, "u1", updated.PosUserID)
	assert.Equal(t, "agent@example.com", updated.LoginEmail)

	active, err := svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCreateRejectsUnknownProvider(t *testing.T) {
	svc, _ := setup(t)
	_, err := svc.Create(context.Background(), domain.SaveProfileRequest{Name: "x", ProviderType: "ACME"})
	assert.ErrorIs(t, err, domain.ErrInvalidProvider)
}

func TestSaveTokenStampsLastSync(t *testing.T) {
	svc, clk := setup(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, domain.SaveProfileRequest{Name: "p", ProviderType: "STB"})
	require.NoError(t, err)
	assert.Nil(t, created.LastSync)

	require.NoError(t, svc.SaveToken(ctx, created.Key(), "tok"))
	got, err := svc.Get(ctx, created.Key())
	require.NoError(t, err)
	assert.Equal(t, "tok", got.ManualToken)
	require.NotNil(t, got.LastSync)
	assert.True(t, got.LastSync.Equal(clk.Now()))

	_, err = svc.Get(ctx, "12345")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
