package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/creditflow/creditflow/internal/account/domain"
	"github.com/creditflow/creditflow/internal/account/repository"
	"github.com/creditflow/creditflow/internal/config"
	ledgerdomain "github.com/creditflow/creditflow/internal/ledger/domain"
	ledgerrepo "github.com/creditflow/creditflow/internal/ledger/repository"
	"github.com/creditflow/creditflow/internal/token"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) accountdomain.Service {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&accountdomain.User{},
		&ledgerdomain.Account{},
		&ledgerdomain.Session{},
		&ledgerdomain.DeductionRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{
		AuthJWTSecret: "test-secret",
		AuthTokenTTL:  time.Hour,
		SignupCredits: 100,
	}
	tokens, err := token.NewService(cfg)
	require.NoError(t, err)

	store := ledgerrepo.NewStore(ledgerrepo.Params{DB: conn, Log: zap.NewNop(), GenID: node})
	return NewService(Params{
		Repo:   repository.Provide(conn),
		Store:  store,
		Tokens: tokens,
		GenID:  node,
		Log:    zap.NewNop(),
		Config: cfg,
	})
}

func TestSignupGrantsInitialCredits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.Signup(ctx, accountdomain.SignupRequest{
		Email:    "Alice@Example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)
	assert.NotZero(t, result.UserID)
	assert.Equal(t, "alice@example.com", result.Email)
	assert.Equal(t, int64(100), result.Credits)
	assert.NotEmpty(t, result.Token)
}

func TestSignupValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, accountdomain.SignupRequest{Email: "", Password: "long enough"})
	assert.ErrorIs(t, err, accountdomain.ErrInvalidEmail)

	_, err = svc.Signup(ctx, accountdomain.SignupRequest{Email: "no-at-sign", Password: "long enough"})
	assert.ErrorIs(t, err, accountdomain.ErrInvalidEmail)

	_, err = svc.Signup(ctx, accountdomain.SignupRequest{Email: "a@b.com", Password: "short"})
	assert.ErrorIs(t, err, accountdomain.ErrWeakPassword)
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, accountdomain.SignupRequest{Email: "a@b.com", Password: "long enough"})
	require.NoError(t, err)

	_, err = svc.Signup(ctx, accountdomain.SignupRequest{Email: "A@B.com", Password: "long enough"})
	assert.ErrorIs(t, err, accountdomain.ErrEmailTaken)
}

func TestLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	signup, err := svc.Signup(ctx, accountdomain.SignupRequest{Email: "a@b.com", Password: "long enough"})
	require.NoError(t, err)

	login, err := svc.Login(ctx, accountdomain.LoginRequest{Email: "a@b.com", Password: "long enough"})
	require.NoError(t, err)
	assert.Equal(t, signup.UserID, login.UserID)
	assert.Equal(t, int64(100), login.Credits)
	assert.NotEmpty(t, login.Token)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Signup(ctx, accountdomain.SignupRequest{Email: "a@b.com", Password: "long enough"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, accountdomain.LoginRequest{Email: "a@b.com", Password: "wrong password"})
	assert.ErrorIs(t, err, accountdomain.ErrInvalidCredentials)

	// An unknown email maps to the same error as a wrong password.
	_, err = svc.Login(ctx, accountdomain.LoginRequest{Email: "nobody@b.com", Password: "long enough"})
	assert.ErrorIs(t, err, accountdomain.ErrInvalidCredentials)
}

func TestProfile(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	signup, err := svc.Signup(ctx, accountdomain.SignupRequest{Email: "a@b.com", Password: "long enough"})
	require.NoError(t, err)

	profile, err := svc.Profile(ctx, signup.UserID)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", profile.Email)
	assert.Equal(t, int64(100), profile.Credits)

	_, err = svc.Profile(ctx, 424242)
	assert.ErrorIs(t, err, accountdomain.ErrUserNotFound)
}
