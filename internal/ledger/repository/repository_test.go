package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/creditflow/creditflow/internal/ledger/domain"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) (domain.Store, *snowflake.Node) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&domain.Account{},
		&domain.Session{},
		&domain.DeductionRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return NewStore(Params{DB: conn, Log: zap.NewNop(), GenID: node}), node
}

func TestCreateAndGetAccount(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateAccount(ctx, 7, 100)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	got, err := s.GetAccount(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, int64(100), got.Credits)

	_, err = s.GetAccount(ctx, 99)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestCreateAccountDuplicate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateAccount(ctx, 7, 100)
	require.NoError(t, err)

	_, err = s.CreateAccount(ctx, 7, 50)
	assert.ErrorIs(t, err, domain.ErrAccountExists)
}

func TestCreateAccountNegativeCredits(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.CreateAccount(context.Background(), 7, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestDecrementBalance(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateAccount(ctx, 7, 5)
	require.NoError(t, err)

	remaining, err := s.DecrementBalance(ctx, 7, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), remaining)

	remaining, err = s.DecrementBalance(ctx, 7, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)

	_, err = s.DecrementBalance(ctx, 7, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = s.DecrementBalance(ctx, 99, 1)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestCreditBalance(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateAccount(ctx, 7, 10)
	require.NoError(t, err)

	remaining, err := s.CreditBalance(ctx, 7, 500)
	require.NoError(t, err)
	assert.Equal(t, int64(510), remaining)

	_, err = s.CreditBalance(ctx, 7, -5)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = s.CreditBalance(ctx, 99, 5)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestSessionLifecycle(t *testing.T) {
	s, node := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	session := &domain.Session{
		ID:        node.Generate(),
		UserID:    7,
		StartedAt: started,
		IsActive:  true,
	}
	require.NoError(t, s.CreateSession(ctx, session))

	got, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.EndedAt)
	assert.Zero(t, got.ConsumedUnits)

	require.NoError(t, s.IncrementConsumed(ctx, session.ID))
	require.NoError(t, s.IncrementConsumed(ctx, session.ID))

	got, err = s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ConsumedUnits)

	ended := started.Add(12 * time.Second)
	require.NoError(t, s.CloseSession(ctx, session.ID, ended))

	got, err = s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.EndedAt)

	// Closing again is a no-op and keeps the original end time.
	require.NoError(t, s.CloseSession(ctx, session.ID, ended.Add(time.Hour)))
	again, err := s.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, got.EndedAt.Unix(), again.EndedAt.Unix())
}

func TestIncrementConsumedUnknownSession(t *testing.T) {
	s, node := newTestStore(t)

	err := s.IncrementConsumed(context.Background(), node.Generate())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestCloseActiveSessions(t *testing.T) {
	s, node := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.CreateSession(ctx, &domain.Session{
			ID:        node.Generate(),
			UserID:    7,
			StartedAt: started.Add(time.Duration(i) * time.Minute),
			IsActive:  true,
		}))
	}
	other := &domain.Session{ID: node.Generate(), UserID: 8, StartedAt: started, IsActive: true}
	require.NoError(t, s.CreateSession(ctx, other))

	require.NoError(t, s.CloseActiveSessions(ctx, 7, started.Add(time.Hour)))

	sessions, err := s.ListSessions(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	for _, sess := range sessions {
		assert.False(t, sess.IsActive)
		assert.NotNil(t, sess.EndedAt)
	}

	kept, err := s.GetSession(ctx, other.ID)
	require.NoError(t, err)
	assert.True(t, kept.IsActive)
}

func TestListSessionsOrdering(t *testing.T) {
	s, node := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	var ids []snowflake.ID
	for i := 0; i < 3; i++ {
		id := node.Generate()
		ids = append(ids, id)
		require.NoError(t, s.CreateSession(ctx, &domain.Session{
			ID:        id,
			UserID:    7,
			StartedAt: started.Add(time.Duration(i) * time.Hour),
			IsActive:  false,
		}))
	}

	sessions, err := s.ListSessions(ctx, 7, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, ids[2], sessions[0].ID)
	assert.Equal(t, ids[1], sessions[1].ID)
}

func TestDeductionLog(t *testing.T) {
	s, node := newTestStore(t)
	ctx := context.Background()

	sid := node.Generate()
	require.NoError(t, s.AppendDeductionRecord(ctx, &domain.DeductionRecord{
		UserID:           7,
		SessionID:        &sid,
		UnitsDeducted:    1,
		RemainingBalance: 4,
		RecordedAt:       time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	}))

	// Balance grants land in the same log with a negative deduction.
	require.NoError(t, s.AppendDeductionRecord(ctx, &domain.DeductionRecord{
		UserID:           7,
		UnitsDeducted:    -500,
		RemainingBalance: 504,
		RecordedAt:       time.Date(2026, 2, 1, 13, 0, 0, 0, time.UTC),
	}))

	records, err := s.ListDeductions(ctx, 7, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Newest first.
	assert.Equal(t, int64(-500), records[0].UnitsDeducted)
	assert.Nil(t, records[0].SessionID)
	assert.Equal(t, int64(1), records[1].UnitsDeducted)
	require.NotNil(t, records[1].SessionID)
	assert.Equal(t, sid, *records[1].SessionID)
}
