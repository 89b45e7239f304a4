package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/creditflow/creditflow/internal/ledger/domain"
	pkgdb "github.com/creditflow/creditflow/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type store struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewStore(p Params) domain.Store {
	return &store{
		db:    p.DB,
		log:   p.Log.Named("ledger.store"),
		genID: p.GenID,
	}
}

func (s *store) CreateAccount(ctx context.Context, userID int64, credits int64) (*domain.Account, error) {
	if credits < 0 {
		return nil, domain.ErrInvalidAmount
	}
	now := time.Now().UTC()
	account := &domain.Account{
		ID:        s.genID.Generate(),
		UserID:    userID,
		Credits:   credits,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO accounts (id, user_id, credits, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		account.ID, account.UserID, account.Credits, account.CreatedAt, account.UpdatedAt,
	).Error
	if err != nil {
		if pkgdb.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAccountExists
		}
		return nil, err
	}
	return account, nil
}

func (s *store) GetAccount(ctx context.Context, userID int64) (*domain.Account, error) {
	var account domain.Account
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, user_id, credits, created_at, updated_at
		 FROM accounts WHERE user_id = ?`,
		userID,
	).Scan(&account).Error
	if err != nil {
		return nil, err
	}
	if account.ID == 0 {
		return nil, domain.ErrAccountNotFound
	}
	return &account, nil
}

func (s *store) DecrementBalance(ctx context.Context, userID int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	var remaining int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			`UPDATE accounts SET credits = credits - ?, updated_at = ? WHERE user_id = ?`,
			amount, time.Now().UTC(), userID,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrAccountNotFound
		}
		return tx.Raw(`SELECT credits FROM accounts WHERE user_id = ?`, userID).Scan(&remaining).Error
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (s *store) CreditBalance(ctx context.Context, userID int64, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	var remaining int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Exec(
			`UPDATE accounts SET credits = credits + ?, updated_at = ? WHERE user_id = ?`,
			amount, time.Now().UTC(), userID,
		)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrAccountNotFound
		}
		return tx.Raw(`SELECT credits FROM accounts WHERE user_id = ?`, userID).Scan(&remaining).Error
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

func (s *store) CreateSession(ctx context.Context, session *domain.Session) error {
	if session.ID == 0 {
		session.ID = s.genID.Generate()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	return s.db.WithContext(ctx).Exec(
		`INSERT INTO sessions (id, user_id, started_at, ended_at, consumed_units, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, session.StartedAt, session.EndedAt,
		session.ConsumedUnits, session.IsActive, session.CreatedAt, session.UpdatedAt,
	).Error
}

func (s *store) GetSession(ctx context.Context, sessionID snowflake.ID) (*domain.Session, error) {
	var session domain.Session
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, user_id, started_at, ended_at, consumed_units, is_active, created_at, updated_at
		 FROM sessions WHERE id = ?`,
		sessionID,
	).Scan(&session).Error
	if err != nil {
		return nil, err
	}
	if session.ID == 0 {
		return nil, domain.ErrSessionNotFound
	}
	return &session, nil
}

func (s *store) IncrementConsumed(ctx context.Context, sessionID snowflake.ID) error {
	result := s.db.WithContext(ctx).Exec(
		`UPDATE sessions SET consumed_units = consumed_units + 1, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), sessionID,
	)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *store) CloseSession(ctx context.Context, sessionID snowflake.ID, endedAt time.Time) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE sessions SET is_active = ?, ended_at = ?, updated_at = ? WHERE id = ? AND is_active = ?`,
		false, endedAt.UTC(), time.Now().UTC(), sessionID, true,
	).Error
}

func (s *store) CloseActiveSessions(ctx context.Context, userID int64, endedAt time.Time) error {
	return s.db.WithContext(ctx).Exec(
		`UPDATE sessions SET is_active = ?, ended_at = ?, updated_at = ? WHERE user_id = ? AND is_active = ?`,
		false, endedAt.UTC(), time.Now().UTC(), userID, true,
	).Error
}

func (s *store) AppendDeductionRecord(ctx context.Context, rec *domain.DeductionRecord) error {
	if rec.ID == 0 {
		rec.ID = s.genID.Generate()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Exec(
		`INSERT INTO deduction_records (id, user_id, session_id, units_deducted, remaining_balance, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.SessionID, rec.UnitsDeducted, rec.RemainingBalance, rec.RecordedAt,
	).Error
}

func (s *store) ListSessions(ctx context.Context, userID int64, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	var sessions []domain.Session
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, user_id, started_at, ended_at, consumed_units, is_active, created_at, updated_at
		 FROM sessions WHERE user_id = ? ORDER BY started_at DESC LIMIT ?`,
		userID, limit,
	).Scan(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (s *store) ListDeductions(ctx context.Context, userID int64, limit int) ([]domain.DeductionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []domain.DeductionRecord
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, user_id, session_id, units_deducted, remaining_balance, recorded_at
		 FROM deduction_records WHERE user_id = ? ORDER BY recorded_at DESC LIMIT ?`,
		userID, limit,
	).Scan(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
