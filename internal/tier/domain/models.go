// Package domain contains membership tier models and the tier resolver.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TierBenefit describes a perk granted by a tier.
type TierBenefit struct {
	Type        string `json:"type"`
	Value       string `json:"value"`
	Description string `json:"description,omitempty"`
}

// Tier is a membership level unlocked by cumulative lifetime points.
type Tier struct {
	ID               snowflake.ID                     `gorm:"primaryKey" json:"id"`
	Code             string                           `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Name             string                           `gorm:"type:text;not null" json:"name"`
	PointThreshold   int64                            `gorm:"not null" json:"point_threshold"`
	PointsMultiplier decimal.Decimal                  `gorm:"type:numeric(10,4);not null" json:"points_multiplier"`
	Benefits         datatypes.JSONSlice[TierBenefit] `gorm:"type:jsonb" json:"benefits,omitempty"`
	Active           bool                             `gorm:"not null;default:true" json:"active"`
	CreatedAt        time.Time                        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time                        `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Tier) TableName() string { return "tiers" }

var (
	ErrTierNotFound       = errors.New("tier_not_found")
	ErrInvalidCode        = errors.New("invalid_tier_code")
	ErrInvalidThreshold   = errors.New("invalid_point_threshold")
	ErrDuplicateThreshold = errors.New("duplicate_point_threshold")
	ErrInvalidMultiplier  = errors.New("invalid_points_multiplier")
	ErrMissingDefaultTier = errors.New("missing_default_tier")
	ErrDefaultTierLocked  = errors.New("default_tier_cannot_be_deactivated")
)
