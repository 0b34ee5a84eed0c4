// Package events delivers fire-and-forget domain notifications to
// downstream consumers (email, analytics). Delivery is best-effort; a
// failed emit never fails the operation that produced it.
package events

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	EventPointsAwarded  = "loyalty.points.awarded"
	EventPointsRedeemed = "loyalty.points.redeemed"
	EventPointsExpired  = "loyalty.points.expired"
	EventTierChanged    = "loyalty.tier.changed"
	EventEnrolled       = "loyalty.account.enrolled"

	EventSubscriptionCreated       = "subscription.created"
	EventSubscriptionRenewed       = "subscription.renewed"
	EventSubscriptionCancelled     = "subscription.cancelled"
	EventSubscriptionPlanChanged   = "subscription.plan_changed"
	EventSubscriptionPaymentFailed = "subscription.payment_failed"
)

type Notifier interface {
	Emit(ctx context.Context, event string, payload map[string]any)
}

type logNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) Notifier {
	return &logNotifier{log: log.Named("events")}
}

func (n *logNotifier) Emit(ctx context.Context, event string, payload map[string]any) {
	n.log.Info("domain event",
		zap.String("event", event),
		zap.Any("payload", payload),
	)
}

var Module = fx.Module("events",
	fx.Provide(NewLogNotifier),
)
