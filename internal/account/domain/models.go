// Package domain contains core types for user accounts.
package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is an authenticated owner of a credit account.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Email        string       `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash string       `gorm:"column:password_hash;type:text;not null"`
	CreatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

type Repository interface {
	Insert(ctx context.Context, user *User) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
}

type Service interface {
	Signup(ctx context.Context, req SignupRequest) (*SignupResult, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Profile(ctx context.Context, userID int64) (*ProfileResult, error)
}

type SignupRequest struct {
	Email    string
	Password string
}

type SignupResult struct {
	UserID    int64
	Email     string
	Credits   int64
	Token     string
	ExpiresAt time.Time
}

type LoginRequest struct {
	Email    string
	Password string
}

type LoginResult struct {
	UserID    int64
	Email     string
	Credits   int64
	Token     string
	ExpiresAt time.Time
}

type ProfileResult struct {
	UserID  int64
	Email   string
	Credits int64
}
