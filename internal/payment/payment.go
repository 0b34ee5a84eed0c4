// Package payment defines the external payment collaborator contract.
// Gateway adapters live outside this core; the engine only needs
// charge-and-report semantics.
package payment

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/fx"
)

type ChargeResult struct {
	Success        bool
	TransactionRef string
	FailureReason  string
}

type Charger interface {
	// Charge debits the customer's stored payment method. Amount is in
	// minor currency units.
	Charge(ctx context.Context, customerID string, amount int64, currency string) (ChargeResult, error)
}

// autoApproveCharger approves every charge; the default wiring until a
// real gateway adapter is registered.
type autoApproveCharger struct{}

func NewAutoApproveCharger() Charger { return autoApproveCharger{} }

func (autoApproveCharger) Charge(_ context.Context, _ string, _ int64, _ string) (ChargeResult, error) {
	return ChargeResult{Success: true, TransactionRef: uuid.NewString()}, nil
}

var Module = fx.Module("payment",
	fx.Provide(NewAutoApproveCharger),
)
