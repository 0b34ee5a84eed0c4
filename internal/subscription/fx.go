package subscription

import (
	"go.uber.org/fx"

	"github.com/smallbiznis/perkway/internal/subscription/domain"
	"github.com/smallbiznis/perkway/internal/subscription/service"
	"github.com/smallbiznis/perkway/pkg/repository"
)

var Module = fx.Module("subscription",
	fx.Provide(
		repository.ProvideStore[domain.SubscriptionPlan],
		repository.ProvideStore[domain.Subscription],
		repository.ProvideStore[domain.BillingRecord],
		service.New,
	),
)
