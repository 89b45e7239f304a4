package migration

import (
	accountdomain "github.com/creditflow/creditflow/internal/account/domain"
	"github.com/creditflow/creditflow/internal/config"
	ledgerdomain "github.com/creditflow/creditflow/internal/ledger/domain"
	"github.com/creditflow/creditflow/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// sqlite and mysql installs migrate from the models directly.
			if err := conn.AutoMigrate(
				&accountdomain.User{},
				&ledgerdomain.Account{},
				&ledgerdomain.Session{},
				&ledgerdomain.DeductionRecord{},
			); err != nil {
				return err
			}
		}

		if cfg.SeedDemoUser {
			return seed.EnsureDemoUser(conn, cfg.SignupCredits)
		}
		return nil
	}),
)
