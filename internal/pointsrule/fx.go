package pointsrule

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/perkway/internal/pointsrule/domain"
	"github.com/smallbiznis/perkway/internal/pointsrule/service"
	"github.com/smallbiznis/perkway/pkg/repository"
)

var Module = fx.Module("pointsrule",
	fx.Provide(
		repository.ProvideStore[domain.PointsRule],
		service.New,
	),
)
