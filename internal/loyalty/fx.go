package loyalty

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/perkway/internal/loyalty/domain"
	"github.com/smallbiznis/perkway/internal/loyalty/service"
	"github.com/smallbiznis/perkway/pkg/repository"
)

var Module = fx.Module("loyalty",
	fx.Provide(
		repository.ProvideStore[domain.RedemptionRecord],
		service.New,
	),
)
