package domain

import (
	"context"

	"github.com/shopspring/decimal"

	ledgerdomain "github.com/smallbiznis/perkway/internal/ledger/domain"
	tierdomain "github.com/smallbiznis/perkway/internal/tier/domain"
	"github.com/smallbiznis/perkway/pkg/db/pagination"
)

type EnrollRequest struct {
	CustomerID   string `json:"customer_id"`
	ReferralCode string `json:"referral_code,omitempty"`
}

type EnrollResult struct {
	Account         ledgerdomain.LoyaltyAccount `json:"account"`
	AlreadyEnrolled bool                        `json:"already_enrolled"`
}

type AwardRequest struct {
	CustomerID  string `json:"customer_id"`
	Points      int64  `json:"points"`
	Type        string `json:"type,omitempty"`
	Source      string `json:"source,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
	Description string `json:"description,omitempty"`
}

type AwardResult struct {
	Balance        int64 `json:"balance"`
	LifetimeEarned int64 `json:"lifetime_earned"`
	Duplicate      bool  `json:"duplicate"`
}

type RedeemRequest struct {
	CustomerID  string `json:"customer_id"`
	Points      int64  `json:"points"`
	ReferenceID string `json:"reference_id,omitempty"`
	Description string `json:"description,omitempty"`
}

type RedeemResult struct {
	Balance int64           `json:"balance"`
	Points  int64           `json:"points"`
	Value   decimal.Decimal `json:"value"`
}

type ProcessOrderRequest struct {
	CustomerID string          `json:"customer_id"`
	OrderID    string          `json:"order_id"`
	Amount     decimal.Decimal `json:"amount"`
}

type OrderPointsResult struct {
	Points       int64 `json:"points"`
	Balance      int64 `json:"balance"`
	Duplicate    bool  `json:"duplicate"`
	AutoEnrolled bool  `json:"auto_enrolled"`
}

type ExpireSummary struct {
	AccountsSwept int   `json:"accounts_swept"`
	PointsExpired int64 `json:"points_expired"`
}

type AccountDetail struct {
	Account ledgerdomain.LoyaltyAccount `json:"account"`
	Tier    *tierdomain.Tier            `json:"tier,omitempty"`
}

type Service interface {
	// Enroll creates the loyalty account for a customer. Enrolling twice
	// returns the existing account. Referral bonuses are best-effort; a
	// bad referral code never fails the enrollment.
	Enroll(ctx context.Context, req EnrollRequest) (EnrollResult, error)

	AwardPoints(ctx context.Context, req AwardRequest) (AwardResult, error)
	RedeemPoints(ctx context.Context, req RedeemRequest) (RedeemResult, error)

	// ProcessOrderPoints converts a completed order into points using the
	// active order rule and the account's tier multiplier. Replays of the
	// same order are no-ops.
	ProcessOrderPoints(ctx context.Context, req ProcessOrderRequest) (OrderPointsResult, error)

	// ClearExpiredPoints sweeps every account holding expired earn or bonus
	// entries, deducting what is still outstanding from the balance.
	ClearExpiredPoints(ctx context.Context) (ExpireSummary, error)

	GetAccount(ctx context.Context, customerID string) (AccountDetail, error)
	Deactivate(ctx context.Context, customerID string) error
	Reactivate(ctx context.Context, customerID string) error
	History(ctx context.Context, customerID string, p pagination.Pagination) ([]ledgerdomain.LedgerTransaction, *pagination.PageInfo, error)
}
