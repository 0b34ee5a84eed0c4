// Package domain contains earning rule models and point calculation.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Rule trigger types.
const (
	RuleTypePurchase = "purchase"
	RuleTypeSignup   = "signup"
	RuleTypeReferral = "referral"
	RuleTypeReview   = "review"
)

// Calculation modes. Multiplier behaves like percentage: both multiply the
// event amount by the rule value and floor.
const (
	CalculationFixed      = "fixed"
	CalculationPercentage = "percentage"
	CalculationMultiplier = "multiplier"
)

// PointsRule describes how an event converts into loyalty points. StartAt
// and EndAt bound an optional promotion window; a rule outside its window
// earns nothing even while active.
type PointsRule struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name              string          `gorm:"type:text;not null" json:"name"`
	RuleType          string          `gorm:"type:text;not null;index" json:"rule_type"`
	Calculation       string          `gorm:"type:text;not null" json:"calculation"`
	Value             decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"value"`
	MinimumAmount     decimal.Decimal `gorm:"type:numeric(20,6);not null;default:0" json:"minimum_amount"`
	MaxPerTransaction *int64          `gorm:"column:max_per_transaction" json:"max_per_transaction,omitempty"`
	StartAt           *time.Time      `json:"start_at,omitempty"`
	EndAt             *time.Time      `json:"end_at,omitempty"`
	Active            bool            `gorm:"not null;default:true" json:"active"`
	CreatedAt         time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (PointsRule) TableName() string { return "points_rules" }

var (
	ErrRuleNotFound       = errors.New("points_rule_not_found")
	ErrInvalidRuleType    = errors.New("invalid_rule_type")
	ErrInvalidCalculation = errors.New("invalid_calculation")
	ErrInvalidValue       = errors.New("invalid_rule_value")
	ErrInvalidWindow      = errors.New("invalid_rule_window")
)

func ValidRuleType(t string) bool {
	switch t {
	case RuleTypePurchase, RuleTypeSignup, RuleTypeReferral, RuleTypeReview:
		return true
	}
	return false
}

func ValidCalculation(c string) bool {
	switch c {
	case CalculationFixed, CalculationPercentage, CalculationMultiplier:
		return true
	}
	return false
}
