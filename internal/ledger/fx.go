package ledger

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/perkway/internal/ledger/domain"
	"github.com/smallbiznis/perkway/internal/ledger/service"
	"github.com/smallbiznis/perkway/pkg/repository"
)

var Module = fx.Module("ledger",
	fx.Provide(
		repository.ProvideStore[domain.LoyaltyAccount],
		repository.ProvideStore[domain.LedgerTransaction],
		repository.ProvideStore[domain.TierHistory],
		service.New,
	),
)
