package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"github.com/smallbiznis/perkway/pkg/db/pagination"
)

type AppendRequest struct {
	AccountID   snowflake.ID
	Type        string
	Points      int64
	Source      string
	ReferenceID string
	Description string
	Metadata    map[string]any
	ExpiresAt   *time.Time
}

type AppendResult struct {
	Transaction    LedgerTransaction
	Duplicate      bool
	Balance        int64
	LifetimeEarned int64
}

// Service mutates and reads the append-only ledger. Append runs inside the
// caller's transaction so the caller can bundle further writes with the
// balance mutation.
type Service interface {
	Append(ctx context.Context, tx *gorm.DB, req AppendRequest) (AppendResult, error)

	// LockAccount loads the account under a row lock within tx.
	LockAccount(ctx context.Context, tx *gorm.DB, accountID snowflake.ID) (LoyaltyAccount, error)

	// ExpiredAccountIDs lists accounts holding earn entries whose expiry
	// passed and that were not yet swept.
	ExpiredAccountIDs(ctx context.Context, now time.Time, limit int) ([]snowflake.ID, error)

	// OutstandingExpired sums unswept expired earn entries for one account
	// within tx, returning the entry ids for MarkExpired.
	OutstandingExpired(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, now time.Time) (int64, []snowflake.ID, error)

	// MarkExpired stamps the given earn entries as swept. Runs in the same
	// transaction as the compensating expire append so the sweep happens
	// exactly once.
	MarkExpired(ctx context.Context, tx *gorm.DB, txnIDs []snowflake.ID, now time.Time) error

	History(ctx context.Context, accountID snowflake.ID, p pagination.Pagination) ([]LedgerTransaction, *pagination.PageInfo, error)
}
