package tier

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/perkway/internal/tier/domain"
	"github.com/smallbiznis/perkway/internal/tier/service"
	"github.com/smallbiznis/perkway/pkg/repository"
)

var Module = fx.Module("tier",
	fx.Provide(
		repository.ProvideStore[domain.Tier],
		service.New,
	),
)
