// Package service implements the points ledger.
package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/smallbiznis/perkway/internal/ledger/domain"
	"github.com/smallbiznis/perkway/internal/observability/metrics"
	pkgdb "github.com/smallbiznis/perkway/pkg/db"
	"github.com/smallbiznis/perkway/pkg/db/option"
	"github.com/smallbiznis/perkway/pkg/db/pagination"
	"github.com/smallbiznis/perkway/pkg/repository"
)

type Param struct {
	fx.In

	Logger       *zap.Logger
	DB           *gorm.DB
	Node         *snowflake.Node
	Transactions repository.Repository[domain.LedgerTransaction]
}

type ledgerService struct {
	logger       *zap.Logger
	db           *gorm.DB
	node         *snowflake.Node
	transactions repository.Repository[domain.LedgerTransaction]
}

func New(p Param) domain.Service {
	return &ledgerService{
		logger:       p.Logger.Named("ledger.service"),
		db:           p.DB,
		node:         p.Node,
		transactions: p.Transactions,
	}
}

func (s *ledgerService) LockAccount(ctx context.Context, tx *gorm.DB, accountID snowflake.ID) (domain.LoyaltyAccount, error) {
	var acct domain.LoyaltyAccount
	err := tx.WithContext(ctx).
		Raw("SELECT * FROM loyalty_accounts WHERE id = ?"+pkgdb.LockClause(tx), accountID).
		Scan(&acct).Error
	if err != nil {
		return domain.LoyaltyAccount{}, err
	}
	if acct.ID == 0 {
		return domain.LoyaltyAccount{}, domain.ErrAccountNotFound
	}
	return acct, nil
}

func (s *ledgerService) Append(ctx context.Context, tx *gorm.DB, req domain.AppendRequest) (domain.AppendResult, error) {
	if err := validateAppend(req); err != nil {
		return domain.AppendResult{}, err
	}

	acct, err := s.LockAccount(ctx, tx, req.AccountID)
	if err != nil {
		return domain.AppendResult{}, err
	}

	newBalance := acct.Balance + req.Points
	if newBalance < 0 {
		return domain.AppendResult{}, domain.ErrInsufficientBalance
	}

	txn := domain.LedgerTransaction{
		ID:          s.node.Generate(),
		AccountID:   req.AccountID,
		Type:        req.Type,
		Points:      req.Points,
		Source:      req.Source,
		Description: req.Description,
		Metadata:    req.Metadata,
		ExpiresAt:   req.ExpiresAt,
	}
	if req.ReferenceID != "" {
		ref := req.ReferenceID
		txn.ReferenceID = &ref
	}

	res := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "source"}, {Name: "reference_id"}},
			DoNothing: true,
		}).
		Create(&txn)
	if res.Error != nil {
		return domain.AppendResult{}, res.Error
	}
	if res.RowsAffected == 0 {
		metrics.Ledger().IncDuplicate()
		s.logger.Debug("duplicate ledger append skipped",
			zap.String("account_id", req.AccountID.String()),
			zap.String("source", req.Source),
			zap.String("reference_id", req.ReferenceID),
		)
		return domain.AppendResult{
			Duplicate:      true,
			Balance:        acct.Balance,
			LifetimeEarned: acct.LifetimeEarned,
		}, nil
	}

	// Lifetime earned counts every positive append, positive adjusts included.
	newLifetime := acct.LifetimeEarned
	if req.Points > 0 {
		newLifetime += req.Points
	}

	err = tx.WithContext(ctx).Model(&domain.LoyaltyAccount{}).
		Where("id = ?", req.AccountID).
		Updates(map[string]any{
			"balance":         newBalance,
			"lifetime_earned": newLifetime,
		}).Error
	if err != nil {
		return domain.AppendResult{}, err
	}

	metrics.Ledger().IncAppend(req.Type)
	return domain.AppendResult{
		Transaction:    txn,
		Balance:        newBalance,
		LifetimeEarned: newLifetime,
	}, nil
}

func validateAppend(req domain.AppendRequest) error {
	if req.Points == 0 {
		return domain.ErrInvalidPoints
	}
	switch req.Type {
	case domain.TxnEarn, domain.TxnBonus:
		if req.Points < 0 {
			return domain.ErrInvalidPoints
		}
	case domain.TxnRedeem, domain.TxnExpire:
		if req.Points > 0 {
			return domain.ErrInvalidPoints
		}
	case domain.TxnAdjust:
	default:
		return domain.ErrInvalidTxnType
	}
	return nil
}

func (s *ledgerService) ExpiredAccountIDs(ctx context.Context, now time.Time, limit int) ([]snowflake.ID, error) {
	if limit <= 0 {
		limit = 500
	}
	var ids []snowflake.ID
	err := s.db.WithContext(ctx).
		Model(&domain.LedgerTransaction{}).
		Distinct("account_id").
		Where("type IN ? AND expires_at IS NOT NULL AND expires_at <= ? AND expired_at IS NULL", []string{domain.TxnEarn, domain.TxnBonus}, now).
		Limit(limit).
		Pluck("account_id", &ids).Error
	return ids, err
}

func (s *ledgerService) OutstandingExpired(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, now time.Time) (int64, []snowflake.ID, error) {
	var rows []domain.LedgerTransaction
	err := tx.WithContext(ctx).
		Raw("SELECT id, points FROM ledger_transactions WHERE account_id = ? AND type IN (?, ?) AND expires_at IS NOT NULL AND expires_at <= ? AND expired_at IS NULL"+pkgdb.LockClause(tx),
			accountID, domain.TxnEarn, domain.TxnBonus, now).
		Scan(&rows).Error
	if err != nil {
		return 0, nil, err
	}

	var total int64
	ids := make([]snowflake.ID, 0, len(rows))
	for _, r := range rows {
		total += r.Points
		ids = append(ids, r.ID)
	}
	return total, ids, nil
}

func (s *ledgerService) MarkExpired(ctx context.Context, tx *gorm.DB, txnIDs []snowflake.ID, now time.Time) error {
	if len(txnIDs) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Model(&domain.LedgerTransaction{}).
		Where("id IN ? AND expired_at IS NULL", txnIDs).
		Update("expired_at", now).Error
}

func (s *ledgerService) History(ctx context.Context, accountID snowflake.ID, p pagination.Pagination) ([]domain.LedgerTransaction, *pagination.PageInfo, error) {
	size := p.PageSize
	if size <= 0 {
		size = 50
	}

	rows, err := s.transactions.Find(ctx,
		&domain.LedgerTransaction{AccountID: accountID},
		option.WithOrder("created_at DESC, id DESC"),
		option.ApplyPagination(p),
	)
	if err != nil {
		return nil, nil, err
	}

	pageInfo := pagination.BuildCursorPageInfo(rows, size, func(t *domain.LedgerTransaction) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        t.ID.String(),
			CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})

	if len(rows) > size {
		rows = rows[:size]
	}
	out := make([]domain.LedgerTransaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out, pageInfo, nil
}
