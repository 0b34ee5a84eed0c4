// Package domain contains subscription plans, subscriptions and their
// billing records.
package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Billing intervals.
const (
	IntervalDay   = "day"
	IntervalWeek  = "week"
	IntervalMonth = "month"
	IntervalYear  = "year"
)

// Subscription statuses.
const (
	StatusTrial     = "trial"
	StatusActive    = "active"
	StatusPastDue   = "past_due"
	StatusUnpaid    = "unpaid"
	StatusPaused    = "paused"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// RenewalWindow is how far before the period end a subscription becomes
// due. Sweeps run once a day, so the trailing day of the period is fair
// game.
const RenewalWindow = 24 * time.Hour

// Billing record statuses.
const (
	BillingPaid   = "paid"
	BillingFailed = "failed"
)

// MaxFailedAttempts is how many consecutive charge failures move a
// subscription from past_due to unpaid.
const MaxFailedAttempts = 3

// metadata key holding a deferred plan change, applied at the next renewal.
const MetaPendingPlanChange = "pending_plan_change"

// SubscriptionPlan prices a recurring interval. Amount is in the currency's
// minor unit.
type SubscriptionPlan struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	Code          string       `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Name          string       `gorm:"type:text;not null" json:"name"`
	Amount        int64        `gorm:"not null" json:"amount"`
	Currency      string       `gorm:"type:text;not null" json:"currency"`
	Interval      string       `gorm:"type:text;not null" json:"interval"`
	IntervalCount int          `gorm:"not null;default:1" json:"interval_count"`
	TrialDays     int          `gorm:"not null;default:0" json:"trial_days"`
	Active        bool         `gorm:"not null;default:true" json:"active"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (SubscriptionPlan) TableName() string { return "subscription_plans" }

type Subscription struct {
	ID                 snowflake.ID      `gorm:"primaryKey" json:"id"`
	CustomerID         string            `gorm:"type:text;not null;index" json:"customer_id"`
	PlanID             snowflake.ID      `gorm:"not null;index" json:"plan_id"`
	Status             string            `gorm:"type:text;not null;index" json:"status"`
	CurrentPeriodStart time.Time         `gorm:"not null" json:"current_period_start"`
	CurrentPeriodEnd   time.Time         `gorm:"not null;index" json:"current_period_end"`
	TrialEnd           *time.Time        `json:"trial_end,omitempty"`
	CancelAtPeriodEnd  bool              `gorm:"not null;default:false" json:"cancel_at_period_end"`
	CancelledAt        *time.Time        `json:"cancelled_at,omitempty"`
	EndedAt            *time.Time        `json:"ended_at,omitempty"`
	FailedAttempts     int               `gorm:"not null;default:0" json:"failed_attempts"`
	LastAttemptAt      *time.Time        `json:"last_attempt_at,omitempty"`
	Metadata           datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// BillingRecord is one charge attempt, successful or not.
type BillingRecord struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	SubscriptionID snowflake.ID `gorm:"not null;index" json:"subscription_id"`
	PlanID         snowflake.ID `gorm:"not null" json:"plan_id"`
	Amount         int64        `gorm:"not null" json:"amount"`
	Currency       string       `gorm:"type:text;not null" json:"currency"`
	Status         string       `gorm:"type:text;not null" json:"status"`
	ChargeRef      string       `gorm:"type:text" json:"charge_ref,omitempty"`
	FailureReason  string       `gorm:"type:text" json:"failure_reason,omitempty"`
	PeriodStart    time.Time    `gorm:"not null" json:"period_start"`
	PeriodEnd      time.Time    `gorm:"not null" json:"period_end"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (BillingRecord) TableName() string { return "billing_records" }

var (
	ErrPlanNotFound         = errors.New("subscription_plan_not_found")
	ErrPlanInactive         = errors.New("subscription_plan_inactive")
	ErrInvalidPlan          = errors.New("invalid_subscription_plan")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrAlreadySubscribed    = errors.New("customer_already_subscribed")
	ErrNotDue               = errors.New("subscription_not_due")
	ErrNotCancellable       = errors.New("subscription_not_cancellable")
	ErrNotReactivatable     = errors.New("subscription_not_reactivatable")
	ErrSamePlan             = errors.New("already_on_requested_plan")
	ErrInvalidStatus        = errors.New("invalid_subscription_status")
	ErrPaymentFailed        = errors.New("payment_failed")
)

// Renewable reports whether the status participates in the renewal sweep.
func Renewable(status string) bool {
	switch status {
	case StatusTrial, StatusActive, StatusPastDue:
		return true
	}
	return false
}

// Terminal reports whether the subscription can never bill again.
func Terminal(status string) bool {
	return status == StatusCancelled || status == StatusExpired
}
