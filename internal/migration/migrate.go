// Package migration applies the database schema. Postgres gets versioned
// SQL migrations; other dialects fall back to gorm auto-migration, which is
// enough for development and tests.
package migration

import (
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/perkway/internal/config"
	ledgerdomain "github.com/smallbiznis/perkway/internal/ledger/domain"
	loyaltydomain "github.com/smallbiznis/perkway/internal/loyalty/domain"
	ruledomain "github.com/smallbiznis/perkway/internal/pointsrule/domain"
	subdomain "github.com/smallbiznis/perkway/internal/subscription/domain"
	tierdomain "github.com/smallbiznis/perkway/internal/tier/domain"
)

//go:embed sql/*.sql
var migrations embed.FS

func Run(cfg config.Config, db *gorm.DB, logger *zap.Logger) error {
	log := logger.Named("migration")

	if cfg.DBType != "postgres" {
		log.Info("auto-migrating schema", zap.String("dialect", cfg.DBType))
		return db.AutoMigrate(
			&tierdomain.Tier{},
			&ruledomain.PointsRule{},
			&ledgerdomain.LoyaltyAccount{},
			&ledgerdomain.LedgerTransaction{},
			&ledgerdomain.TierHistory{},
			&loyaltydomain.RedemptionRecord{},
			&subdomain.SubscriptionPlan{},
			&subdomain.Subscription{},
			&subdomain.BillingRecord{},
		)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return err
	}
	source, err := iofs.New(migrations, "sql")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", source, cfg.DBName, driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("schema up to date")
			return nil
		}
		return err
	}
	log.Info("schema migrated")
	return nil
}

var Module = fx.Module("migration",
	fx.Invoke(Run),
)
