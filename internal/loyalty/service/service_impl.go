// Package service implements the loyalty program.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/perkway/internal/clock"
	"github.com/smallbiznis/perkway/internal/config"
	"github.com/smallbiznis/perkway/internal/events"
	ledgerdomain "github.com/smallbiznis/perkway/internal/ledger/domain"
	"github.com/smallbiznis/perkway/internal/loyalty/domain"
	ruledomain "github.com/smallbiznis/perkway/internal/pointsrule/domain"
	tierdomain "github.com/smallbiznis/perkway/internal/tier/domain"
	pkgdb "github.com/smallbiznis/perkway/pkg/db"
	"github.com/smallbiznis/perkway/pkg/db/pagination"
	"github.com/smallbiznis/perkway/pkg/repository"
)

type Param struct {
	fx.In

	Logger      *zap.Logger
	DB          *gorm.DB
	Node        *snowflake.Node
	Clock       clock.Clock
	Settings    *config.LoyaltySettingsHolder
	Notifier    events.Notifier
	Ledger      ledgerdomain.Service
	Tiers       tierdomain.Service
	Rules       ruledomain.Service
	Accounts    repository.Repository[ledgerdomain.LoyaltyAccount]
	Histories   repository.Repository[ledgerdomain.TierHistory]
	Redemptions repository.Repository[domain.RedemptionRecord]
}

type loyaltyService struct {
	logger      *zap.Logger
	db          *gorm.DB
	node        *snowflake.Node
	clock       clock.Clock
	settings    *config.LoyaltySettingsHolder
	notifier    events.Notifier
	ledger      ledgerdomain.Service
	tiers       tierdomain.Service
	rules       ruledomain.Service
	accounts    repository.Repository[ledgerdomain.LoyaltyAccount]
	histories   repository.Repository[ledgerdomain.TierHistory]
	redemptions repository.Repository[domain.RedemptionRecord]
}

func New(p Param) domain.Service {
	return &loyaltyService{
		logger:      p.Logger.Named("loyalty.service"),
		db:          p.DB,
		node:        p.Node,
		clock:       p.Clock,
		settings:    p.Settings,
		notifier:    p.Notifier,
		ledger:      p.Ledger,
		tiers:       p.Tiers,
		rules:       p.Rules,
		accounts:    p.Accounts,
		histories:   p.Histories,
		redemptions: p.Redemptions,
	}
}

func (s *loyaltyService) Enroll(ctx context.Context, req domain.EnrollRequest) (domain.EnrollResult, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return domain.EnrollResult{}, domain.ErrInvalidCustomerID
	}

	existing, err := s.accounts.FindOne(ctx, &ledgerdomain.LoyaltyAccount{CustomerID: customerID})
	if err != nil {
		return domain.EnrollResult{}, err
	}
	if existing != nil {
		return domain.EnrollResult{Account: *existing, AlreadyEnrolled: true}, nil
	}

	settings := s.settings.Current()
	now := s.clock.Now()

	acct := ledgerdomain.LoyaltyAccount{
		ID:           s.node.Generate(),
		CustomerID:   customerID,
		Status:       ledgerdomain.AccountActive,
		ReferralCode: strings.ToLower(ulid.Make().String()),
		EnrolledAt:   now,
	}

	if settings.TiersEnabled {
		tiers, err := s.tiers.ListActive(ctx)
		if err != nil {
			return domain.EnrollResult{}, err
		}
		if def, rerr := tierdomain.ResolveTier(0, tiers); rerr == nil {
			id := def.ID
			acct.TierID = &id
		} else if !errors.Is(rerr, tierdomain.ErrMissingDefaultTier) {
			return domain.EnrollResult{}, rerr
		}
	}

	var referrer *ledgerdomain.LoyaltyAccount
	if code := strings.ToLower(strings.TrimSpace(req.ReferralCode)); code != "" && settings.ReferralEnabled {
		referrer, err = s.accounts.FindOne(ctx, &ledgerdomain.LoyaltyAccount{ReferralCode: code})
		if err != nil {
			return domain.EnrollResult{}, err
		}
		if referrer == nil {
			s.logger.Warn("referral code not found, enrolling without bonus",
				zap.String("customer_id", customerID),
				zap.String("referral_code", code),
			)
		} else {
			acct.ReferredBy = &referrer.ID
		}
	}

	for attempt := 0; ; attempt++ {
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.accounts.WithTrx(tx).Create(ctx, &acct); err != nil {
				return err
			}
			return s.grantSignupBonus(ctx, tx, acct, settings)
		})
		if err == nil {
			break
		}
		if pkgdb.IsDuplicateKeyErr(err) {
			// Lost a concurrent enroll race; the other writer's account wins.
			winner, ferr := s.accounts.FindOne(ctx, &ledgerdomain.LoyaltyAccount{CustomerID: customerID})
			if ferr != nil {
				return domain.EnrollResult{}, ferr
			}
			if winner != nil {
				return domain.EnrollResult{Account: *winner, AlreadyEnrolled: true}, nil
			}
			// No account for this customer, so the collision was the
			// referral code itself. Regenerate and retry.
			if attempt < 2 {
				acct.ReferralCode = strings.ToLower(ulid.Make().String())
				continue
			}
		}
		return domain.EnrollResult{}, err
	}

	if referrer != nil {
		s.grantReferralBonuses(ctx, acct, *referrer, settings)
	}

	created, err := s.accounts.FindOne(ctx, &ledgerdomain.LoyaltyAccount{ID: acct.ID})
	if err != nil {
		return domain.EnrollResult{}, err
	}

	s.notifier.Emit(ctx, events.EventEnrolled, map[string]any{
		"account_id":  acct.ID.String(),
		"customer_id": customerID,
	})
	s.logger.Info("customer enrolled",
		zap.String("account_id", acct.ID.String()),
		zap.String("customer_id", customerID),
		zap.Bool("referred", referrer != nil),
	)
	return domain.EnrollResult{Account: *created}, nil
}

func (s *loyaltyService) grantSignupBonus(ctx context.Context, tx *gorm.DB, acct ledgerdomain.LoyaltyAccount, settings config.LoyaltySettings) error {
	if !settings.PointsEnabled {
		return nil
	}
	rule, err := s.rules.FindActiveByType(ctx, ruledomain.RuleTypeSignup)
	if err != nil {
		return err
	}
	if rule == nil {
		return nil
	}
	points := rule.Calculate(decimal.Zero, s.clock.Now())
	if points <= 0 {
		return nil
	}
	_, err = s.ledger.Append(ctx, tx, ledgerdomain.AppendRequest{
		AccountID:   acct.ID,
		Type:        ledgerdomain.TxnBonus,
		Points:      points,
		Source:      ledgerdomain.SourceSignup,
		ReferenceID: acct.CustomerID,
		Description: "signup bonus",
		ExpiresAt:   s.expiryFrom(settings),
	})
	return err
}

// grantReferralBonuses is best-effort: enrollment already committed, so a
// failed bonus is logged and dropped rather than unwinding the account.
func (s *loyaltyService) grantReferralBonuses(ctx context.Context, referred, referrer ledgerdomain.LoyaltyAccount, settings config.LoyaltySettings) {
	if !settings.PointsEnabled {
		return
	}
	grant := func(accountID snowflake.ID, points int64, referenceID, description string) {
		if points <= 0 {
			return
		}
		err := s.db.Transaction(func(tx *gorm.DB) error {
			result, err := s.ledger.Append(ctx, tx, ledgerdomain.AppendRequest{
				AccountID:   accountID,
				Type:        ledgerdomain.TxnBonus,
				Points:      points,
				Source:      ledgerdomain.SourceReferral,
				ReferenceID: referenceID,
				Description: description,
				ExpiresAt:   s.expiryFrom(settings),
			})
			if err != nil || result.Duplicate {
				return err
			}
			_, err = s.maybeUpgradeTier(ctx, tx, accountID, result.LifetimeEarned, settings)
			return err
		})
		if err != nil {
			s.logger.Error("referral bonus failed",
				zap.String("account_id", accountID.String()),
				zap.Error(err),
			)
		}
	}

	grant(referrer.ID, settings.ReferrerBonusPoints, referred.ID.String(), "referral bonus")
	grant(referred.ID, settings.ReferredBonusPoints, referrer.ID.String(), "referred signup bonus")
}

func (s *loyaltyService) AwardPoints(ctx context.Context, req domain.AwardRequest) (domain.AwardResult, error) {
	settings := s.settings.Current()
	if !settings.PointsEnabled {
		return domain.AwardResult{}, domain.ErrLoyaltyDisabled
	}
	if req.Points <= 0 {
		return domain.AwardResult{}, ledgerdomain.ErrInvalidPoints
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return domain.AwardResult{}, domain.ErrInvalidCustomerID
	}
	acct, err := s.accounts.FindOne(ctx, &ledgerdomain.LoyaltyAccount{CustomerID: customerID})
	if err != nil {
		return domain.AwardResult{}, err
	}
	if acct == nil {
		if !settings.AutoEnroll {
			return domain.AwardResult{}, ledgerdomain.ErrAccountNotFound
		}
		enrolled, err := s.Enroll(ctx, domain.EnrollRequest{CustomerID: customerID})
		if err != nil {
			return domain.AwardResult{}, err
		}
		acct = &enrolled.Account
	}
	if acct.Status != ledgerdomain.AccountActive {
		return domain.AwardResult{}, ledgerdomain.ErrAccountInactive
	}

	txnType := req.Type
	if txnType == "" {
		txnType = ledgerdomain.TxnEarn
	}
	source := req.Source
	if source == "" {
		source = ledgerdomain.SourceAdjustment
	}
	// Only earned points carry an expiry; bonuses included.
	var expiresAt *time.Time
	if txnType == ledgerdomain.TxnEarn || txnType == ledgerdomain.TxnBonus {
		expiresAt = s.expiryFrom(settings)
	}

	var result ledgerdomain.AppendResult
	var upgrade *tierUpgrade
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.ledger.Append(ctx, tx, ledgerdomain.AppendRequest{
			AccountID:   acct.ID,
			Type:        txnType,
			Points:      req.Points,
			Source:      source,
			ReferenceID: req.ReferenceID,
			Description: req.Description,
			ExpiresAt:   expiresAt,
		})
		if err != nil || result.Duplicate {
			return err
		}
		upgrade, err = s.maybeUpgradeTier(ctx, tx, acct.ID, result.LifetimeEarned, settings)
		return err
	})
	if err != nil {
		return domain.AwardResult{}, err
	}

	if !result.Duplicate {
		s.notifier.Emit(ctx, events.EventPointsAwarded, map[string]any{
			"account_id":  acct.ID.String(),
			"customer_id": acct.CustomerID,
			"points":      req.Points,
			"source":      source,
			"balance":     result.Balance,
		})
		s.emitTierChange(ctx, acct.ID, upgrade)
	}

	return domain.AwardResult{
		Balance:        result.Balance,
		LifetimeEarned: result.LifetimeEarned,
		Duplicate:      result.Duplicate,
	}, nil
}

func (s *loyaltyService) RedeemPoints(ctx context.Context, req domain.RedeemRequest) (domain.RedeemResult, error) {
	settings := s.settings.Current()
	if !settings.PointsEnabled {
		return domain.RedeemResult{}, domain.ErrLoyaltyDisabled
	}
	if req.Points <= 0 {
		return domain.RedeemResult{}, ledgerdomain.ErrInvalidPoints
	}
	if req.Points < settings.MinimumRedemption {
		return domain.RedeemResult{}, domain.ErrBelowMinimumRedemption
	}

	acct, err := s.activeAccount(ctx, req.CustomerID)
	if err != nil {
		return domain.RedeemResult{}, err
	}

	value := decimal.NewFromInt(req.Points).Mul(settings.PointValue)

	var result ledgerdomain.AppendResult
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.ledger.Append(ctx, tx, ledgerdomain.AppendRequest{
			AccountID:   acct.ID,
			Type:        ledgerdomain.TxnRedeem,
			Points:      -req.Points,
			Source:      ledgerdomain.SourceRedemption,
			ReferenceID: req.ReferenceID,
			Description: req.Description,
		})
		if err != nil {
			return err
		}
		if result.Duplicate {
			return nil
		}
		record := domain.RedemptionRecord{
			ID:            s.node.Generate(),
			AccountID:     acct.ID,
			Points:        req.Points,
			Value:         value,
			TransactionID: result.Transaction.ID,
			Description:   req.Description,
		}
		return s.redemptions.WithTrx(tx).Create(ctx, &record)
	})
	if err != nil {
		return domain.RedeemResult{}, err
	}
	if result.Duplicate {
		return domain.RedeemResult{Balance: result.Balance, Points: req.Points, Value: value}, nil
	}

	s.notifier.Emit(ctx, events.EventPointsRedeemed, map[string]any{
		"account_id":  acct.ID.String(),
		"customer_id": acct.CustomerID,
		"points":      req.Points,
		"value":       value.String(),
		"balance":     result.Balance,
	})
	return domain.RedeemResult{Balance: result.Balance, Points: req.Points, Value: value}, nil
}

func (s *loyaltyService) ProcessOrderPoints(ctx context.Context, req domain.ProcessOrderRequest) (domain.OrderPointsResult, error) {
	settings := s.settings.Current()
	if !settings.PointsEnabled {
		return domain.OrderPointsResult{}, nil
	}

	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return domain.OrderPointsResult{}, domain.ErrInvalidCustomerID
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return domain.OrderPointsResult{}, domain.ErrInvalidOrderID
	}

	acct, err := s.accounts.FindOne(ctx, &ledgerdomain.LoyaltyAccount{CustomerID: customerID})
	if err != nil {
		return domain.OrderPointsResult{}, err
	}

	autoEnrolled := false
	if acct == nil {
		if !settings.AutoEnroll {
			return domain.OrderPointsResult{}, ledgerdomain.ErrAccountNotFound
		}
		enrolled, err := s.Enroll(ctx, domain.EnrollRequest{CustomerID: customerID})
		if err != nil {
			return domain.OrderPointsResult{}, err
		}
		acct = &enrolled.Account
		autoEnrolled = !enrolled.AlreadyEnrolled
	}
	if acct.Status != ledgerdomain.AccountActive {
		return domain.OrderPointsResult{}, ledgerdomain.ErrAccountInactive
	}

	rule, err := s.rules.FindActiveByType(ctx, ruledomain.RuleTypePurchase)
	if err != nil {
		return domain.OrderPointsResult{}, err
	}
	if rule == nil {
		return domain.OrderPointsResult{AutoEnrolled: autoEnrolled, Balance: acct.Balance}, nil
	}

	points := rule.Calculate(req.Amount, s.clock.Now())
	if points > 0 && settings.TiersEnabled && acct.TierID != nil {
		tier, err := s.tiers.GetByID(ctx, acct.TierID.String())
		if err != nil && !errors.Is(err, tierdomain.ErrTierNotFound) {
			return domain.OrderPointsResult{}, err
		}
		if err == nil {
			points = decimal.NewFromInt(points).Mul(tier.PointsMultiplier).Floor().IntPart()
		}
	}
	if points <= 0 {
		return domain.OrderPointsResult{AutoEnrolled: autoEnrolled, Balance: acct.Balance}, nil
	}

	var result ledgerdomain.AppendResult
	var upgrade *tierUpgrade
	err = s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = s.ledger.Append(ctx, tx, ledgerdomain.AppendRequest{
			AccountID:   acct.ID,
			Type:        ledgerdomain.TxnEarn,
			Points:      points,
			Source:      ledgerdomain.SourcePurchase,
			ReferenceID: req.OrderID,
			Description: fmt.Sprintf("points for order %s", req.OrderID),
			ExpiresAt:   s.expiryFrom(settings),
		})
		if err != nil || result.Duplicate {
			return err
		}
		upgrade, err = s.maybeUpgradeTier(ctx, tx, acct.ID, result.LifetimeEarned, settings)
		return err
	})
	if err != nil {
		return domain.OrderPointsResult{}, err
	}

	if !result.Duplicate {
		s.notifier.Emit(ctx, events.EventPointsAwarded, map[string]any{
			"account_id":  acct.ID.String(),
			"customer_id": acct.CustomerID,
			"points":      points,
			"source":      ledgerdomain.SourcePurchase,
			"order_id":    req.OrderID,
			"balance":     result.Balance,
		})
		s.emitTierChange(ctx, acct.ID, upgrade)
	}

	return domain.OrderPointsResult{
		Points:       points,
		Balance:      result.Balance,
		Duplicate:    result.Duplicate,
		AutoEnrolled: autoEnrolled,
	}, nil
}

func (s *loyaltyService) ClearExpiredPoints(ctx context.Context) (domain.ExpireSummary, error) {
	now := s.clock.Now()

	ids, err := s.ledger.ExpiredAccountIDs(ctx, now, 500)
	if err != nil {
		return domain.ExpireSummary{}, err
	}

	var summary domain.ExpireSummary
	var errs []error
	for _, accountID := range ids {
		var deducted int64
		err := s.db.Transaction(func(tx *gorm.DB) error {
			acct, err := s.ledger.LockAccount(ctx, tx, accountID)
			if err != nil {
				return err
			}
			total, txnIDs, err := s.ledger.OutstandingExpired(ctx, tx, accountID, now)
			if err != nil {
				return err
			}
			if len(txnIDs) == 0 {
				return nil
			}

			deducted = total
			if deducted > acct.Balance {
				deducted = acct.Balance
			}
			if deducted > 0 {
				_, err = s.ledger.Append(ctx, tx, ledgerdomain.AppendRequest{
					AccountID:   accountID,
					Type:        ledgerdomain.TxnExpire,
					Points:      -deducted,
					Source:      ledgerdomain.SourceExpiration,
					Description: "expired points sweep",
				})
				if err != nil {
					return err
				}
			}
			return s.ledger.MarkExpired(ctx, tx, txnIDs, now)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("expire account %s: %w", accountID, err))
			continue
		}

		summary.AccountsSwept++
		summary.PointsExpired += deducted
		if deducted > 0 {
			s.notifier.Emit(ctx, events.EventPointsExpired, map[string]any{
				"account_id": accountID.String(),
				"points":     deducted,
			})
		}
	}
	return summary, errors.Join(errs...)
}

func (s *loyaltyService) GetAccount(ctx context.Context, customerID string) (domain.AccountDetail, error) {
	acct, err := s.accounts.FindOne(ctx, &ledgerdomain.LoyaltyAccount{CustomerID: strings.TrimSpace(customerID)})
	if err != nil {
		return domain.AccountDetail{}, err
	}
	if acct == nil {
		return domain.AccountDetail{}, ledgerdomain.ErrAccountNotFound
	}

	detail := domain.AccountDetail{Account: *acct}
	if acct.TierID != nil {
		tier, err := s.tiers.GetByID(ctx, acct.TierID.String())
		if err == nil {
			detail.Tier = &tier
		} else if !errors.Is(err, tierdomain.ErrTierNotFound) {
			return domain.AccountDetail{}, err
		}
	}
	return detail, nil
}

func (s *loyaltyService) Deactivate(ctx context.Context, customerID string) error {
	return s.setStatus(ctx, customerID, ledgerdomain.AccountInactive)
}

func (s *loyaltyService) Reactivate(ctx context.Context, customerID string) error {
	return s.setStatus(ctx, customerID, ledgerdomain.AccountActive)
}

func (s *loyaltyService) setStatus(ctx context.Context, customerID, status string) error {
	acct, err := s.accounts.FindOne(ctx, &ledgerdomain.LoyaltyAccount{CustomerID: strings.TrimSpace(customerID)})
	if err != nil {
		return err
	}
	if acct == nil {
		return ledgerdomain.ErrAccountNotFound
	}
	if acct.Status == status {
		return nil
	}
	return s.accounts.Update(ctx, acct.ID.String(), map[string]any{"status": status})
}

func (s *loyaltyService) History(ctx context.Context, customerID string, p pagination.Pagination) ([]ledgerdomain.LedgerTransaction, *pagination.PageInfo, error) {
	acct, err := s.accounts.FindOne(ctx, &ledgerdomain.LoyaltyAccount{CustomerID: strings.TrimSpace(customerID)})
	if err != nil {
		return nil, nil, err
	}
	if acct == nil {
		return nil, nil, ledgerdomain.ErrAccountNotFound
	}
	return s.ledger.History(ctx, acct.ID, p)
}

func (s *loyaltyService) activeAccount(ctx context.Context, customerID string) (*ledgerdomain.LoyaltyAccount, error) {
	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, domain.ErrInvalidCustomerID
	}
	acct, err := s.accounts.FindOne(ctx, &ledgerdomain.LoyaltyAccount{CustomerID: customerID})
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, ledgerdomain.ErrAccountNotFound
	}
	if acct.Status != ledgerdomain.AccountActive {
		return nil, ledgerdomain.ErrAccountInactive
	}
	return acct, nil
}

type tierUpgrade struct {
	From *snowflake.ID
	To   tierdomain.Tier
}

// maybeUpgradeTier re-resolves the tier after lifetime earned grew. Tiers
// only move up; a deactivated higher tier never demotes the member.
func (s *loyaltyService) maybeUpgradeTier(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, lifetimeEarned int64, settings config.LoyaltySettings) (*tierUpgrade, error) {
	if !settings.TiersEnabled {
		return nil, nil
	}

	tiers, err := s.tiers.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	resolved, err := tierdomain.ResolveTier(lifetimeEarned, tiers)
	if err != nil {
		if errors.Is(err, tierdomain.ErrMissingDefaultTier) {
			s.logger.Warn("tier resolution skipped", zap.Error(err))
			return nil, nil
		}
		return nil, err
	}

	var acct ledgerdomain.LoyaltyAccount
	if err := tx.WithContext(ctx).First(&acct, "id = ?", accountID).Error; err != nil {
		return nil, err
	}
	if acct.TierID != nil {
		if *acct.TierID == resolved.ID {
			return nil, nil
		}
		for _, t := range tiers {
			if t.ID == *acct.TierID && resolved.PointThreshold <= t.PointThreshold {
				return nil, nil
			}
		}
	}

	if err := tx.WithContext(ctx).Model(&ledgerdomain.LoyaltyAccount{}).
		Where("id = ?", accountID).
		Update("tier_id", resolved.ID).Error; err != nil {
		return nil, err
	}

	history := ledgerdomain.TierHistory{
		ID:             s.node.Generate(),
		AccountID:      accountID,
		FromTierID:     acct.TierID,
		ToTierID:       resolved.ID,
		LifetimeEarned: lifetimeEarned,
	}
	if err := s.histories.WithTrx(tx).Create(ctx, &history); err != nil {
		return nil, err
	}
	return &tierUpgrade{From: acct.TierID, To: resolved}, nil
}

func (s *loyaltyService) emitTierChange(ctx context.Context, accountID snowflake.ID, upgrade *tierUpgrade) {
	if upgrade == nil {
		return
	}
	payload := map[string]any{
		"account_id": accountID.String(),
		"tier_id":    upgrade.To.ID.String(),
		"tier_code":  upgrade.To.Code,
	}
	if upgrade.From != nil {
		payload["previous_tier_id"] = upgrade.From.String()
	}
	s.notifier.Emit(ctx, events.EventTierChanged, payload)
}

func (s *loyaltyService) expiryFrom(settings config.LoyaltySettings) *time.Time {
	if settings.PointsExpiryDays <= 0 {
		return nil
	}
	t := s.clock.Now().AddDate(0, 0, settings.PointsExpiryDays)
	return &t
}
