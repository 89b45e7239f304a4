// Package domain contains the durable ledger types: account balance,
// session rows, and the append-only deduction log.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account holds the prepaid credit balance for a user. Credits are only
// mutated through atomic increment/decrement statements; the metering
// engine stops at the tick that would cross zero.
type Account struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	UserID    int64        `gorm:"column:user_id;not null;uniqueIndex"`
	Credits   int64        `gorm:"column:credits;not null;default:0"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Account) TableName() string { return "accounts" }

// Session is one metered usage period. Sessions are never deleted, only
// closed; they are the audit trail of service consumption.
type Session struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	UserID        int64        `gorm:"column:user_id;not null;index"`
	StartedAt     time.Time    `gorm:"column:started_at;not null"`
	EndedAt       *time.Time   `gorm:"column:ended_at"`
	ConsumedUnits int64        `gorm:"column:consumed_units;not null;default:0"`
	IsActive      bool         `gorm:"column:is_active;not null;default:true;index"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Session) TableName() string { return "sessions" }

// DeductionRecord is one row of the append-only deduction log. Consumption
// carries positive UnitsDeducted; balance grants carry negative values.
type DeductionRecord struct {
	ID               snowflake.ID  `gorm:"primaryKey"`
	UserID           int64         `gorm:"column:user_id;not null;index"`
	SessionID        *snowflake.ID `gorm:"column:session_id;index"`
	UnitsDeducted    int64         `gorm:"column:units_deducted;not null"`
	RemainingBalance int64         `gorm:"column:remaining_balance;not null"`
	RecordedAt       time.Time     `gorm:"column:recorded_at;not null"`
}

// TableName sets the database table name.
func (DeductionRecord) TableName() string { return "deduction_records" }
