package main

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/perkway/internal/clock"
	"github.com/smallbiznis/perkway/internal/config"
	"github.com/smallbiznis/perkway/internal/events"
	"github.com/smallbiznis/perkway/internal/ledger"
	"github.com/smallbiznis/perkway/internal/loyalty"
	"github.com/smallbiznis/perkway/internal/migration"
	"github.com/smallbiznis/perkway/internal/payment"
	"github.com/smallbiznis/perkway/internal/pointsrule"
	"github.com/smallbiznis/perkway/internal/scheduler"
	"github.com/smallbiznis/perkway/internal/server"
	"github.com/smallbiznis/perkway/internal/subscription"
	"github.com/smallbiznis/perkway/internal/tier"
	"github.com/smallbiznis/perkway/pkg/db"
	"github.com/smallbiznis/perkway/pkg/id"
	"github.com/smallbiznis/perkway/pkg/log"
)

func main() {
	fx.New(
		config.Module,
		log.Module,
		db.Module,
		migration.Module,
		id.Module,
		clock.Module,
		events.Module,
		payment.Module,

		tier.Module,
		pointsrule.Module,
		ledger.Module,
		loyalty.Module,
		subscription.Module,

		scheduler.Module,
		server.Module,
	).Run()
}
