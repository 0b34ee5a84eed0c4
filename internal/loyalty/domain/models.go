// Package domain defines the loyalty program operations layered on top of
// the points ledger.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// RedemptionRecord captures the monetary value handed out for a redemption.
// It is written in the same transaction as the redeem ledger entry.
type RedemptionRecord struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	AccountID     snowflake.ID    `gorm:"not null;index" json:"account_id"`
	Points        int64           `gorm:"not null" json:"points"`
	Value         decimal.Decimal `gorm:"type:numeric(20,6);not null" json:"value"`
	TransactionID snowflake.ID    `gorm:"not null" json:"transaction_id"`
	Description   string          `gorm:"type:text" json:"description,omitempty"`
	CreatedAt     time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (RedemptionRecord) TableName() string { return "redemption_records" }

var (
	ErrLoyaltyDisabled        = errors.New("loyalty_program_disabled")
	ErrBelowMinimumRedemption = errors.New("below_minimum_redemption")
	ErrInvalidCustomerID      = errors.New("invalid_customer_id")
	ErrInvalidOrderID         = errors.New("invalid_order_id")
)
