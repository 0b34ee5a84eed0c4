package domain

import (
	"context"
	"time"
)

type CreatePlanRequest struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	Interval      string `json:"interval"`
	IntervalCount int    `json:"interval_count"`
	TrialDays     int    `json:"trial_days"`
}

type UpdatePlanRequest struct {
	PlanID string  `json:"-"`
	Name   *string `json:"name,omitempty"`
	Amount *int64  `json:"amount,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

type SubscribeRequest struct {
	CustomerID string `json:"customer_id"`
	PlanCode   string `json:"plan_code"`
}

type CancelRequest struct {
	SubscriptionID string `json:"-"`
	Immediately    bool   `json:"immediately"`
}

type ChangePlanRequest struct {
	SubscriptionID string `json:"-"`
	PlanCode       string `json:"plan_code"`
	// Deferred postpones the switch to the next renewal; otherwise the plan
	// changes now and the price difference for the remaining period is
	// charged.
	Deferred bool `json:"deferred"`
}

type RenewalResult struct {
	SubscriptionID string     `json:"subscription_id"`
	Status         string     `json:"status"`
	Renewed        bool       `json:"renewed"`
	Ended          bool       `json:"ended"`
	PlanChanged    bool       `json:"plan_changed"`
	PeriodEnd      *time.Time `json:"period_end,omitempty"`
	FailureReason  string     `json:"failure_reason,omitempty"`
}

type SweepSummary struct {
	Due      int `json:"due"`
	Renewed  int `json:"renewed"`
	Ended    int `json:"ended"`
	Failures int `json:"failures"`
}

type PlanService interface {
	CreatePlan(ctx context.Context, req CreatePlanRequest) (SubscriptionPlan, error)
	UpdatePlan(ctx context.Context, req UpdatePlanRequest) (SubscriptionPlan, error)
	GetPlan(ctx context.Context, code string) (SubscriptionPlan, error)
	ListPlans(ctx context.Context) ([]SubscriptionPlan, error)
}

type Service interface {
	PlanService

	Subscribe(ctx context.Context, req SubscribeRequest) (Subscription, error)
	Cancel(ctx context.Context, req CancelRequest) (Subscription, error)

	// Reactivate clears a pending cancel-at-period-end before the period
	// lapses.
	Reactivate(ctx context.Context, subscriptionID string) (Subscription, error)

	Pause(ctx context.Context, subscriptionID string) (Subscription, error)
	Resume(ctx context.Context, subscriptionID string) (Subscription, error)

	ChangePlan(ctx context.Context, req ChangePlanRequest) (Subscription, error)

	GetSubscription(ctx context.Context, subscriptionID string) (Subscription, error)
	ListByCustomer(ctx context.Context, customerID string) ([]Subscription, error)
	BillingHistory(ctx context.Context, subscriptionID string) ([]BillingRecord, error)

	// ProcessRenewal settles one due subscription: charges the upcoming
	// period, applies any deferred plan change, or ends the subscription
	// when cancellation was requested.
	ProcessRenewal(ctx context.Context, subscriptionID string) (RenewalResult, error)

	// ProcessAllDueRenewals claims and settles every due subscription.
	// Past-due subscriptions are retried at most once per day.
	ProcessAllDueRenewals(ctx context.Context) (SweepSummary, error)
}
