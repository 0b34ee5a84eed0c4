// Package domain contains the loyalty account and its append-only ledger.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Account statuses.
const (
	AccountActive   = "active"
	AccountInactive = "inactive"
)

// Ledger transaction types.
const (
	TxnEarn   = "earn"
	TxnBonus  = "bonus"
	TxnRedeem = "redeem"
	TxnExpire = "expire"
	TxnAdjust = "adjust"
)

// Transaction sources.
const (
	SourcePurchase   = "purchase"
	SourceSignup     = "signup"
	SourceReview     = "review"
	SourceReferral   = "referral"
	SourceRedemption = "redemption"
	SourceExpiration = "expiration"
	SourceAdjustment = "admin_adjustment"
	SourceTierBonus  = "tier_bonus"
)

// LoyaltyAccount is the per-customer points balance. Balance and
// LifetimeEarned are derived from the ledger and only mutated together with
// a ledger append, under a row lock.
type LoyaltyAccount struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	CustomerID     string        `gorm:"type:text;not null;uniqueIndex" json:"customer_id"`
	Status         string        `gorm:"type:text;not null;default:active" json:"status"`
	Balance        int64         `gorm:"not null;default:0" json:"balance"`
	LifetimeEarned int64         `gorm:"not null;default:0" json:"lifetime_earned"`
	TierID         *snowflake.ID `gorm:"index" json:"tier_id,omitempty"`
	ReferralCode   string        `gorm:"type:text;not null;uniqueIndex" json:"referral_code"`
	ReferredBy     *snowflake.ID `json:"referred_by,omitempty"`
	EnrolledAt     time.Time     `gorm:"not null" json:"enrolled_at"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (LoyaltyAccount) TableName() string { return "loyalty_accounts" }

// LedgerTransaction is one immutable ledger entry. Points are signed: earns
// and bonuses are positive, redemptions and expirations negative. The
// (account_id, source, reference_id) key dedupes replayed events; entries
// without a reference are never deduped.
type LedgerTransaction struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	AccountID   snowflake.ID      `gorm:"not null;index;uniqueIndex:idx_ledger_dedupe" json:"account_id"`
	Type        string            `gorm:"type:text;not null" json:"type"`
	Points      int64             `gorm:"not null" json:"points"`
	Source      string            `gorm:"type:text;not null;uniqueIndex:idx_ledger_dedupe" json:"source"`
	ReferenceID *string           `gorm:"type:text;uniqueIndex:idx_ledger_dedupe" json:"reference_id,omitempty"`
	Description string            `gorm:"type:text" json:"description,omitempty"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	ExpiresAt   *time.Time        `gorm:"index" json:"expires_at,omitempty"`
	ExpiredAt   *time.Time        `json:"expired_at,omitempty"`
	CreatedAt   time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

// TableName sets the database table name.
func (LedgerTransaction) TableName() string { return "ledger_transactions" }

// TierHistory records every tier change for an account.
type TierHistory struct {
	ID             snowflake.ID  `gorm:"primaryKey" json:"id"`
	AccountID      snowflake.ID  `gorm:"not null;index" json:"account_id"`
	FromTierID     *snowflake.ID `json:"from_tier_id,omitempty"`
	ToTierID       snowflake.ID  `gorm:"not null" json:"to_tier_id"`
	LifetimeEarned int64         `gorm:"not null" json:"lifetime_earned"`
	CreatedAt      time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (TierHistory) TableName() string { return "tier_histories" }

var (
	ErrAccountNotFound     = errors.New("loyalty_account_not_found")
	ErrAccountInactive     = errors.New("loyalty_account_inactive")
	ErrInvalidPoints       = errors.New("invalid_points_amount")
	ErrInvalidTxnType      = errors.New("invalid_transaction_type")
	ErrInsufficientBalance = errors.New("insufficient_points_balance")
)
