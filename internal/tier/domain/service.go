package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

type CreateTierRequest struct {
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	PointThreshold   int64           `json:"point_threshold"`
	PointsMultiplier decimal.Decimal `json:"points_multiplier"`
	Benefits         []TierBenefit   `json:"benefits,omitempty"`
}

type UpdateTierRequest struct {
	TierID           string           `json:"-"`
	Name             *string          `json:"name,omitempty"`
	PointsMultiplier *decimal.Decimal `json:"points_multiplier,omitempty"`
	Benefits         []TierBenefit    `json:"benefits,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateTierRequest) (Tier, error)
	Update(ctx context.Context, req UpdateTierRequest) (Tier, error)
	GetByID(ctx context.Context, id string) (Tier, error)
	List(ctx context.Context) ([]Tier, error)
	ListActive(ctx context.Context) ([]Tier, error)
	Deactivate(ctx context.Context, id string) error
}
