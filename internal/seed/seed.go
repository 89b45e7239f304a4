// Package seed bootstraps a demo login so a fresh local install can be
// exercised without an out-of-band signup step.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/creditflow/creditflow/internal/account/domain"
	"github.com/creditflow/creditflow/internal/account/password"
	ledgerdomain "github.com/creditflow/creditflow/internal/ledger/domain"
	"gorm.io/gorm"
)

const (
	demoEmail    = "demo@creditflow.local"
	demoPassword = "demo1234"
)

// EnsureDemoUser creates the demo user and its credit account when they
// do not exist yet. It is idempotent across restarts.
func EnsureDemoUser(db *gorm.DB, credits int64) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user accountdomain.User
		err := tx.WithContext(ctx).
			Where("email = ?", demoEmail).
			First(&user).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := password.Hash(demoPassword)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		user = accountdomain.User{
			ID:           node.Generate(),
			Email:        demoEmail,
			PasswordHash: hashed,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.WithContext(ctx).Create(&user).Error; err != nil {
			return err
		}

		account := ledgerdomain.Account{
			ID:        node.Generate(),
			UserID:    user.ID.Int64(),
			Credits:   credits,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.WithContext(ctx).Create(&account).Error
	})
}
