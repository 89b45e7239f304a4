package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/creditflow/creditflow/internal/account/domain"
	"github.com/creditflow/creditflow/internal/account/password"
	"github.com/creditflow/creditflow/internal/config"
	ledgerdomain "github.com/creditflow/creditflow/internal/ledger/domain"
	"github.com/creditflow/creditflow/internal/token"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const minPasswordLen = 8

type Params struct {
	fx.In

	Repo   domain.Repository
	Store  ledgerdomain.Store
	Tokens *token.Service
	GenID  *snowflake.Node
	Log    *zap.Logger
	Config config.Config
}

type Service struct {
	repo          domain.Repository
	store         ledgerdomain.Store
	tokens        *token.Service
	genID         *snowflake.Node
	log           *zap.Logger
	signupCredits int64
}

func NewService(p Params) domain.Service {
	return &Service{
		repo:          p.Repo,
		store:         p.Store,
		tokens:        p.Tokens,
		genID:         p.GenID,
		log:           p.Log.Named("account.service"),
		signupCredits: p.Config.SignupCredits,
	}
}

func (s *Service) Signup(ctx context.Context, req domain.SignupRequest) (*domain.SignupResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}
	if len(req.Password) < minPasswordLen {
		return nil, domain.ErrWeakPassword
	}

	hash, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           s.genID.Generate(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, user); err != nil {
		return nil, err
	}

	account, err := s.store.CreateAccount(ctx, user.ID.Int64(), s.signupCredits)
	if err != nil && !errors.Is(err, ledgerdomain.ErrAccountExists) {
		return nil, err
	}
	credits := s.signupCredits
	if account != nil {
		credits = account.Credits
	}

	signed, expiresAt, err := s.tokens.Issue(user.ID.Int64())
	if err != nil {
		return nil, err
	}

	s.log.Info("user created", zap.Int64("user_id", user.ID.Int64()))
	return &domain.SignupResult{
		UserID:    user.ID.Int64(),
		Email:     user.Email,
		Credits:   credits,
		Token:     signed,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !password.Verify(req.Password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	credits := int64(0)
	if account, err := s.store.GetAccount(ctx, user.ID.Int64()); err == nil {
		credits = account.Credits
	}

	signed, expiresAt, err := s.tokens.Issue(user.ID.Int64())
	if err != nil {
		return nil, err
	}

	return &domain.LoginResult{
		UserID:    user.ID.Int64(),
		Email:     user.Email,
		Credits:   credits,
		Token:     signed,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *Service) Profile(ctx context.Context, userID int64) (*domain.ProfileResult, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	credits := int64(0)
	if account, err := s.store.GetAccount(ctx, userID); err == nil {
		credits = account.Credits
	}
	return &domain.ProfileResult{
		UserID:  user.ID.Int64(),
		Email:   user.Email,
		Credits: credits,
	}, nil
}
