package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// Store is the durable ledger consumed by the metering engine and the
// route layer. Balance mutations are atomic at the database, never
// read-modify-write at the caller.
type Store interface {
	CreateAccount(ctx context.Context, userID int64, credits int64) (*Account, error)
	GetAccount(ctx context.Context, userID int64) (*Account, error)

	// DecrementBalance subtracts amount from the account balance in a
	// single UPDATE and returns the post-deduction balance.
	DecrementBalance(ctx context.Context, userID int64, amount int64) (int64, error)

	// CreditBalance adds amount to the account balance and returns the
	// post-grant balance.
	CreditBalance(ctx context.Context, userID int64, amount int64) (int64, error)

	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, sessionID snowflake.ID) (*Session, error)

	// IncrementConsumed adds one consumed unit to the session row.
	IncrementConsumed(ctx context.Context, sessionID snowflake.ID) error

	// CloseSession marks the session inactive with the given end time.
	// Closing an already-closed session is a no-op.
	CloseSession(ctx context.Context, sessionID snowflake.ID, endedAt time.Time) error

	// CloseActiveSessions closes every active session row for the user.
	CloseActiveSessions(ctx context.Context, userID int64, endedAt time.Time) error

	AppendDeductionRecord(ctx context.Context, rec *DeductionRecord) error

	ListSessions(ctx context.Context, userID int64, limit int) ([]Session, error)
	ListDeductions(ctx context.Context, userID int64, limit int) ([]DeductionRecord, error)
}
