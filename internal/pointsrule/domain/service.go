package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type CreateRuleRequest struct {
	Name              string          `json:"name"`
	RuleType          string          `json:"rule_type"`
	Calculation       string          `json:"calculation"`
	Value             decimal.Decimal `json:"value"`
	MinimumAmount     decimal.Decimal `json:"minimum_amount"`
	MaxPerTransaction *int64          `json:"max_per_transaction,omitempty"`
	StartAt           *time.Time      `json:"start_at,omitempty"`
	EndAt             *time.Time      `json:"end_at,omitempty"`
}

type UpdateRuleRequest struct {
	RuleID        string           `json:"-"`
	Name          *string          `json:"name,omitempty"`
	Value         *decimal.Decimal `json:"value,omitempty"`
	MinimumAmount *decimal.Decimal `json:"minimum_amount,omitempty"`
	Active        *bool            `json:"active,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateRuleRequest) (PointsRule, error)
	Update(ctx context.Context, req UpdateRuleRequest) (PointsRule, error)
	GetByID(ctx context.Context, id string) (PointsRule, error)
	List(ctx context.Context) ([]PointsRule, error)

	// FindActiveByType returns the oldest active rule for the trigger, or
	// nil when no rule matches. Oldest-first keeps calculation stable when
	// operators add overlapping rules.
	FindActiveByType(ctx context.Context, ruleType string) (*PointsRule, error)
}
