// Package service implements subscription billing.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/smallbiznis/perkway/internal/clock"
	"github.com/smallbiznis/perkway/internal/events"
	"github.com/smallbiznis/perkway/internal/payment"
	"github.com/smallbiznis/perkway/internal/subscription/domain"
	pkgdb "github.com/smallbiznis/perkway/pkg/db"
	"github.com/smallbiznis/perkway/pkg/db/option"
	"github.com/smallbiznis/perkway/pkg/repository"
)

const maxSweepBatch = 500

type Param struct {
	fx.In

	Logger        *zap.Logger
	DB            *gorm.DB
	Node          *snowflake.Node
	Clock         clock.Clock
	Notifier      events.Notifier
	Charger       payment.Charger
	Plans         repository.Repository[domain.SubscriptionPlan]
	Subscriptions repository.Repository[domain.Subscription]
	Billing       repository.Repository[domain.BillingRecord]
}

type subscriptionService struct {
	logger        *zap.Logger
	db            *gorm.DB
	node          *snowflake.Node
	clock         clock.Clock
	notifier      events.Notifier
	charger       payment.Charger
	plans         repository.Repository[domain.SubscriptionPlan]
	subscriptions repository.Repository[domain.Subscription]
	billing       repository.Repository[domain.BillingRecord]
}

func New(p Param) domain.Service {
	return &subscriptionService{
		logger:        p.Logger.Named("subscription.service"),
		db:            p.DB,
		node:          p.Node,
		clock:         p.Clock,
		notifier:      p.Notifier,
		charger:       p.Charger,
		plans:         p.Plans,
		subscriptions: p.Subscriptions,
		billing:       p.Billing,
	}
}

func (s *subscriptionService) CreatePlan(ctx context.Context, req domain.CreatePlanRequest) (domain.SubscriptionPlan, error) {
	code := strings.ToLower(strings.TrimSpace(req.Code))
	if code == "" {
		return domain.SubscriptionPlan{}, domain.ErrInvalidPlan
	}
	switch req.Interval {
	case domain.IntervalDay, domain.IntervalWeek, domain.IntervalMonth, domain.IntervalYear:
	default:
		return domain.SubscriptionPlan{}, domain.ErrInvalidPlan
	}
	if req.Amount < 0 || req.TrialDays < 0 || len(req.Currency) != 3 {
		return domain.SubscriptionPlan{}, domain.ErrInvalidPlan
	}

	count := req.IntervalCount
	if count <= 0 {
		count = 1
	}
	plan := domain.SubscriptionPlan{
		ID:            s.node.Generate(),
		Code:          code,
		Name:          req.Name,
		Amount:        req.Amount,
		Currency:      strings.ToUpper(req.Currency),
		Interval:      req.Interval,
		IntervalCount: count,
		TrialDays:     req.TrialDays,
		Active:        true,
	}
	if err := s.plans.Create(ctx, &plan); err != nil {
		return domain.SubscriptionPlan{}, err
	}

	s.logger.Info("plan created",
		zap.String("plan_id", plan.ID.String()),
		zap.String("code", plan.Code),
		zap.Int64("amount", plan.Amount),
	)
	return plan, nil
}

func (s *subscriptionService) UpdatePlan(ctx context.Context, req domain.UpdatePlanRequest) (domain.SubscriptionPlan, error) {
	existing, err := s.plans.FindOne(ctx, &domain.SubscriptionPlan{ID: parseID(req.PlanID)})
	if err != nil {
		return domain.SubscriptionPlan{}, err
	}
	if existing == nil {
		return domain.SubscriptionPlan{}, domain.ErrPlanNotFound
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Amount != nil {
		if *req.Amount < 0 {
			return domain.SubscriptionPlan{}, domain.ErrInvalidPlan
		}
		updates["amount"] = *req.Amount
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}
	if len(updates) == 0 {
		return *existing, nil
	}

	if err := s.plans.Update(ctx, req.PlanID, updates); err != nil {
		return domain.SubscriptionPlan{}, err
	}
	updated, err := s.plans.FindOne(ctx, &domain.SubscriptionPlan{ID: existing.ID})
	if err != nil {
		return domain.SubscriptionPlan{}, err
	}
	return *updated, nil
}

func (s *subscriptionService) GetPlan(ctx context.Context, code string) (domain.SubscriptionPlan, error) {
	plan, err := s.plans.FindOne(ctx, &domain.SubscriptionPlan{Code: strings.ToLower(strings.TrimSpace(code))})
	if err != nil {
		return domain.SubscriptionPlan{}, err
	}
	if plan == nil {
		return domain.SubscriptionPlan{}, domain.ErrPlanNotFound
	}
	return *plan, nil
}

func (s *subscriptionService) ListPlans(ctx context.Context) ([]domain.SubscriptionPlan, error) {
	rows, err := s.plans.Find(ctx, &domain.SubscriptionPlan{}, option.WithOrder("created_at ASC"))
	if err != nil {
		return nil, err
	}
	out := make([]domain.SubscriptionPlan, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out, nil
}

func (s *subscriptionService) Subscribe(ctx context.Context, req domain.SubscribeRequest) (domain.Subscription, error) {
	customerID := strings.TrimSpace(req.CustomerID)
	if customerID == "" {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}

	plan, err := s.GetPlan(ctx, req.PlanCode)
	if err != nil {
		return domain.Subscription{}, err
	}
	if !plan.Active {
		return domain.Subscription{}, domain.ErrPlanInactive
	}

	var blocking int64
	err = s.db.WithContext(ctx).Model(&domain.Subscription{}).
		Where("customer_id = ? AND status IN ?", customerID,
			[]string{domain.StatusTrial, domain.StatusActive, domain.StatusPastDue, domain.StatusPaused}).
		Count(&blocking).Error
	if err != nil {
		return domain.Subscription{}, err
	}
	if blocking > 0 {
		return domain.Subscription{}, domain.ErrAlreadySubscribed
	}

	now := s.clock.Now()
	sub := domain.Subscription{
		ID:         s.node.Generate(),
		CustomerID: customerID,
		PlanID:     plan.ID,
	}

	if plan.TrialDays > 0 {
		trialEnd := now.AddDate(0, 0, plan.TrialDays)
		sub.Status = domain.StatusTrial
		sub.TrialEnd = &trialEnd
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = trialEnd
		if err := s.subscriptions.Create(ctx, &sub); err != nil {
			return domain.Subscription{}, err
		}
	} else {
		charge, err := s.charger.Charge(ctx, customerID, plan.Amount, plan.Currency)
		if err != nil {
			return domain.Subscription{}, err
		}
		if !charge.Success {
			return domain.Subscription{}, fmt.Errorf("%w: %s", domain.ErrPaymentFailed, charge.FailureReason)
		}

		sub.Status = domain.StatusActive
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd = plan.NextPeriod(now)
		err = s.db.Transaction(func(tx *gorm.DB) error {
			if err := s.subscriptions.WithTrx(tx).Create(ctx, &sub); err != nil {
				return err
			}
			return s.billing.WithTrx(tx).Create(ctx, &domain.BillingRecord{
				ID:             s.node.Generate(),
				SubscriptionID: sub.ID,
				PlanID:         plan.ID,
				Amount:         plan.Amount,
				Currency:       plan.Currency,
				Status:         domain.BillingPaid,
				ChargeRef:      charge.TransactionRef,
				PeriodStart:    sub.CurrentPeriodStart,
				PeriodEnd:      sub.CurrentPeriodEnd,
			})
		})
		if err != nil {
			return domain.Subscription{}, err
		}
	}

	s.notifier.Emit(ctx, events.EventSubscriptionCreated, map[string]any{
		"subscription_id": sub.ID.String(),
		"customer_id":     customerID,
		"plan_code":       plan.Code,
		"status":          sub.Status,
	})
	s.logger.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("customer_id", customerID),
		zap.String("status", sub.Status),
	)
	return sub, nil
}

func (s *subscriptionService) Cancel(ctx context.Context, req domain.CancelRequest) (domain.Subscription, error) {
	sub, err := s.GetSubscription(ctx, req.SubscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if domain.Terminal(sub.Status) {
		return domain.Subscription{}, domain.ErrNotCancellable
	}

	now := s.clock.Now()
	updates := map[string]any{"cancel_at_period_end": true}
	if req.Immediately {
		updates = map[string]any{
			"status":               domain.StatusCancelled,
			"cancelled_at":         now,
			"ended_at":             now,
			"cancel_at_period_end": false,
		}
	}
	if err := s.subscriptions.Update(ctx, req.SubscriptionID, updates); err != nil {
		return domain.Subscription{}, err
	}

	updated, err := s.GetSubscription(ctx, req.SubscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if req.Immediately {
		s.notifier.Emit(ctx, events.EventSubscriptionCancelled, map[string]any{
			"subscription_id": updated.ID.String(),
			"customer_id":     updated.CustomerID,
			"immediate":       true,
		})
	}
	return updated, nil
}

// Reactivate undoes a cancellation. A pending cancel is simply cleared; a
// subscription already cancelled can come back only while its service end
// has not passed.
func (s *subscriptionService) Reactivate(ctx context.Context, subscriptionID string) (domain.Subscription, error) {
	sub, err := s.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}

	switch {
	case !domain.Terminal(sub.Status) && sub.CancelAtPeriodEnd:
		err = s.subscriptions.Update(ctx, subscriptionID, map[string]any{"cancel_at_period_end": false})
	case sub.Status == domain.StatusCancelled && sub.EndedAt != nil && !sub.EndedAt.Before(s.clock.Now()):
		err = s.subscriptions.Update(ctx, subscriptionID, map[string]any{
			"status":               domain.StatusActive,
			"cancelled_at":         nil,
			"ended_at":             nil,
			"cancel_at_period_end": false,
		})
	default:
		return domain.Subscription{}, domain.ErrNotReactivatable
	}
	if err != nil {
		return domain.Subscription{}, err
	}
	return s.GetSubscription(ctx, subscriptionID)
}

func (s *subscriptionService) Pause(ctx context.Context, subscriptionID string) (domain.Subscription, error) {
	return s.transition(ctx, subscriptionID, domain.StatusActive, domain.StatusPaused)
}

func (s *subscriptionService) Resume(ctx context.Context, subscriptionID string) (domain.Subscription, error) {
	return s.transition(ctx, subscriptionID, domain.StatusPaused, domain.StatusActive)
}

func (s *subscriptionService) transition(ctx context.Context, subscriptionID, from, to string) (domain.Subscription, error) {
	sub, err := s.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if sub.Status != from {
		return domain.Subscription{}, domain.ErrInvalidStatus
	}
	if err := s.subscriptions.Update(ctx, subscriptionID, map[string]any{"status": to}); err != nil {
		return domain.Subscription{}, err
	}
	return s.GetSubscription(ctx, subscriptionID)
}

func (s *subscriptionService) ChangePlan(ctx context.Context, req domain.ChangePlanRequest) (domain.Subscription, error) {
	sub, err := s.GetSubscription(ctx, req.SubscriptionID)
	if err != nil {
		return domain.Subscription{}, err
	}
	if sub.Status != domain.StatusActive {
		return domain.Subscription{}, domain.ErrInvalidStatus
	}

	newPlan, err := s.GetPlan(ctx, req.PlanCode)
	if err != nil {
		return domain.Subscription{}, err
	}
	if !newPlan.Active {
		return domain.Subscription{}, domain.ErrPlanInactive
	}
	if newPlan.ID == sub.PlanID {
		return domain.Subscription{}, domain.ErrSamePlan
	}

	if req.Deferred {
		meta := sub.Metadata
		if meta == nil {
			meta = datatypes.JSONMap{}
		}
		meta[domain.MetaPendingPlanChange] = newPlan.ID.String()
		if err := s.subscriptions.Update(ctx, req.SubscriptionID, map[string]any{"metadata": meta}); err != nil {
			return domain.Subscription{}, err
		}
	} else {
		oldPlan, err := s.plans.FindOne(ctx, &domain.SubscriptionPlan{ID: sub.PlanID})
		if err != nil {
			return domain.Subscription{}, err
		}
		if oldPlan == nil {
			return domain.Subscription{}, domain.ErrPlanNotFound
		}

		now := s.clock.Now()
		prorated := proratedDifference(*oldPlan, newPlan, sub, now)

		var chargeRef string
		if prorated > 0 {
			charge, err := s.charger.Charge(ctx, sub.CustomerID, prorated, newPlan.Currency)
			if err != nil {
				return domain.Subscription{}, err
			}
			if !charge.Success {
				return domain.Subscription{}, fmt.Errorf("%w: %s", domain.ErrPaymentFailed, charge.FailureReason)
			}
			chargeRef = charge.TransactionRef
		}

		// An immediate change restarts the billing period on the new plan.
		newStart, newEnd := newPlan.NextPeriod(now)
		meta := sub.Metadata
		delete(meta, domain.MetaPendingPlanChange)
		err = s.db.Transaction(func(tx *gorm.DB) error {
			err := s.subscriptions.WithTrx(tx).Update(ctx, req.SubscriptionID, map[string]any{
				"plan_id":              newPlan.ID,
				"current_period_start": newStart,
				"current_period_end":   newEnd,
				"metadata":             meta,
			})
			if err != nil {
				return err
			}
			if chargeRef == "" {
				return nil
			}
			return s.billing.WithTrx(tx).Create(ctx, &domain.BillingRecord{
				ID:             s.node.Generate(),
				SubscriptionID: sub.ID,
				PlanID:         newPlan.ID,
				Amount:         prorated,
				Currency:       newPlan.Currency,
				Status:         domain.BillingPaid,
				ChargeRef:      chargeRef,
				PeriodStart:    newStart,
				PeriodEnd:      newEnd,
			})
		})
		if err != nil {
			return domain.Subscription{}, err
		}
	}

	s.notifier.Emit(ctx, events.EventSubscriptionPlanChanged, map[string]any{
		"subscription_id": sub.ID.String(),
		"customer_id":     sub.CustomerID,
		"plan_code":       newPlan.Code,
		"deferred":        req.Deferred,
	})
	return s.GetSubscription(ctx, req.SubscriptionID)
}

// proratedDifference is the price gap between plans for the unused part of
// the current period, in minor units. Downgrades yield zero; unused value is
// not refunded.
func proratedDifference(oldPlan, newPlan domain.SubscriptionPlan, sub domain.Subscription, now time.Time) int64 {
	diff := newPlan.Amount - oldPlan.Amount
	if diff <= 0 {
		return 0
	}
	total := sub.CurrentPeriodEnd.Sub(sub.CurrentPeriodStart)
	remaining := sub.CurrentPeriodEnd.Sub(now)
	if total <= 0 || remaining <= 0 {
		return 0
	}
	if remaining > total {
		remaining = total
	}
	ratio := decimal.NewFromInt(int64(remaining)).Div(decimal.NewFromInt(int64(total)))
	return decimal.NewFromInt(diff).Mul(ratio).Floor().IntPart()
}

func (s *subscriptionService) GetSubscription(ctx context.Context, subscriptionID string) (domain.Subscription, error) {
	sub, err := s.subscriptions.FindOne(ctx, &domain.Subscription{ID: parseID(subscriptionID)})
	if err != nil {
		return domain.Subscription{}, err
	}
	if sub == nil {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	return *sub, nil
}

func (s *subscriptionService) ListByCustomer(ctx context.Context, customerID string) ([]domain.Subscription, error) {
	rows, err := s.subscriptions.Find(ctx,
		&domain.Subscription{CustomerID: strings.TrimSpace(customerID)},
		option.WithOrder("created_at DESC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Subscription, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out, nil
}

func (s *subscriptionService) BillingHistory(ctx context.Context, subscriptionID string) ([]domain.BillingRecord, error) {
	if _, err := s.GetSubscription(ctx, subscriptionID); err != nil {
		return nil, err
	}
	rows, err := s.billing.Find(ctx,
		&domain.BillingRecord{SubscriptionID: parseID(subscriptionID)},
		option.WithOrder("created_at DESC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]domain.BillingRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out, nil
}

func (s *subscriptionService) ProcessRenewal(ctx context.Context, subscriptionID string) (domain.RenewalResult, error) {
	now := s.clock.Now()
	var result domain.RenewalResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		sub, err := s.lockSubscription(ctx, tx, parseID(subscriptionID))
		if err != nil {
			return err
		}
		result, err = s.renewLocked(ctx, tx, sub, now)
		return err
	})
	if err != nil {
		return domain.RenewalResult{}, err
	}
	s.emitRenewal(ctx, result)
	return result, nil
}

func (s *subscriptionService) ProcessAllDueRenewals(ctx context.Context) (domain.SweepSummary, error) {
	now := s.clock.Now()

	var summary domain.SweepSummary
	var errs []error
	seen := make([]snowflake.ID, 0, 16)

	for i := 0; i < maxSweepBatch; i++ {
		var claimed bool
		var result domain.RenewalResult
		var claimedID snowflake.ID

		err := s.db.Transaction(func(tx *gorm.DB) error {
			sub, ok, err := s.claimDue(ctx, tx, now, seen)
			if err != nil || !ok {
				return err
			}
			claimed = true
			claimedID = sub.ID
			result, err = s.renewLocked(ctx, tx, sub, now)
			return err
		})
		if !claimed {
			if err != nil {
				errs = append(errs, err)
			}
			break
		}

		seen = append(seen, claimedID)
		summary.Due++
		if err != nil {
			summary.Failures++
			errs = append(errs, fmt.Errorf("renew subscription %s: %w", claimedID, err))
			continue
		}

		switch {
		case result.Renewed:
			summary.Renewed++
		case result.Ended:
			summary.Ended++
		default:
			summary.Failures++
		}
		s.emitRenewal(ctx, result)
	}
	return summary, errors.Join(errs...)
}

func (s *subscriptionService) lockSubscription(ctx context.Context, tx *gorm.DB, id snowflake.ID) (domain.Subscription, error) {
	var sub domain.Subscription
	err := tx.WithContext(ctx).
		Raw("SELECT * FROM subscriptions WHERE id = ?"+pkgdb.LockClause(tx), id).
		Scan(&sub).Error
	if err != nil {
		return domain.Subscription{}, err
	}
	if sub.ID == 0 {
		return domain.Subscription{}, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *subscriptionService) claimDue(ctx context.Context, tx *gorm.DB, now time.Time, exclude []snowflake.ID) (domain.Subscription, bool, error) {
	retryCutoff := now.Add(-24 * time.Hour)

	query := "SELECT * FROM subscriptions WHERE status IN ? AND current_period_end <= ? AND (last_attempt_at IS NULL OR last_attempt_at <= ?)"
	args := []any{
		[]string{domain.StatusTrial, domain.StatusActive, domain.StatusPastDue},
		now.Add(domain.RenewalWindow), retryCutoff,
	}
	if len(exclude) > 0 {
		query += " AND id NOT IN ?"
		args = append(args, exclude)
	}
	query += " ORDER BY current_period_end ASC LIMIT 1" + pkgdb.SkipLockedClause(tx)

	var sub domain.Subscription
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&sub).Error; err != nil {
		return domain.Subscription{}, false, err
	}
	return sub, sub.ID != 0, nil
}

// renewLocked settles one due subscription. The row is already locked in tx.
func (s *subscriptionService) renewLocked(ctx context.Context, tx *gorm.DB, sub domain.Subscription, now time.Time) (domain.RenewalResult, error) {
	result := domain.RenewalResult{SubscriptionID: sub.ID.String(), Status: sub.Status}

	if !domain.Renewable(sub.Status) {
		return domain.RenewalResult{}, domain.ErrNotDue
	}

	subs := s.subscriptions.WithTrx(tx)

	if sub.CancelAtPeriodEnd {
		// Service still runs to the period end; the subscription stays
		// reactivatable until then.
		err := subs.Update(ctx, sub.ID.String(), map[string]any{
			"status":       domain.StatusCancelled,
			"cancelled_at": now,
			"ended_at":     sub.CurrentPeriodEnd,
		})
		if err != nil {
			return domain.RenewalResult{}, err
		}
		result.Status = domain.StatusCancelled
		result.Ended = true
		return result, nil
	}

	if sub.CurrentPeriodEnd.Sub(now) > domain.RenewalWindow {
		return domain.RenewalResult{}, domain.ErrNotDue
	}

	plan, err := s.plans.WithTrx(tx).FindOne(ctx, &domain.SubscriptionPlan{ID: sub.PlanID})
	if err != nil {
		return domain.RenewalResult{}, err
	}
	if plan == nil {
		return domain.RenewalResult{}, domain.ErrPlanNotFound
	}

	// A deferred plan change takes effect at this boundary.
	planChanged := false
	if raw, ok := sub.Metadata[domain.MetaPendingPlanChange].(string); ok && raw != "" {
		pending, err := s.plans.WithTrx(tx).FindOne(ctx, &domain.SubscriptionPlan{ID: parseID(raw)})
		if err != nil {
			return domain.RenewalResult{}, err
		}
		if pending != nil && pending.Active {
			plan = pending
			planChanged = true
		}
	}

	charge, err := s.charger.Charge(ctx, sub.CustomerID, plan.Amount, plan.Currency)
	if err != nil {
		return domain.RenewalResult{}, err
	}

	nextStart, nextEnd := plan.NextPeriod(sub.CurrentPeriodEnd)

	if !charge.Success {
		attempts := sub.FailedAttempts + 1
		status := domain.StatusPastDue
		if attempts >= domain.MaxFailedAttempts {
			status = domain.StatusUnpaid
		}
		err := subs.Update(ctx, sub.ID.String(), map[string]any{
			"status":          status,
			"failed_attempts": attempts,
			"last_attempt_at": now,
		})
		if err != nil {
			return domain.RenewalResult{}, err
		}
		err = s.billing.WithTrx(tx).Create(ctx, &domain.BillingRecord{
			ID:             s.node.Generate(),
			SubscriptionID: sub.ID,
			PlanID:         plan.ID,
			Amount:         plan.Amount,
			Currency:       plan.Currency,
			Status:         domain.BillingFailed,
			FailureReason:  charge.FailureReason,
			PeriodStart:    nextStart,
			PeriodEnd:      nextEnd,
		})
		if err != nil {
			return domain.RenewalResult{}, err
		}
		result.Status = status
		result.FailureReason = charge.FailureReason
		return result, nil
	}

	meta := sub.Metadata
	if planChanged {
		delete(meta, domain.MetaPendingPlanChange)
	}
	err = subs.Update(ctx, sub.ID.String(), map[string]any{
		"status":               domain.StatusActive,
		"plan_id":              plan.ID,
		"current_period_start": nextStart,
		"current_period_end":   nextEnd,
		"failed_attempts":      0,
		"last_attempt_at":      now,
		"trial_end":            nil,
		"metadata":             meta,
	})
	if err != nil {
		return domain.RenewalResult{}, err
	}
	err = s.billing.WithTrx(tx).Create(ctx, &domain.BillingRecord{
		ID:             s.node.Generate(),
		SubscriptionID: sub.ID,
		PlanID:         plan.ID,
		Amount:         plan.Amount,
		Currency:       plan.Currency,
		Status:         domain.BillingPaid,
		ChargeRef:      charge.TransactionRef,
		PeriodStart:    nextStart,
		PeriodEnd:      nextEnd,
	})
	if err != nil {
		return domain.RenewalResult{}, err
	}

	result.Status = domain.StatusActive
	result.Renewed = true
	result.PlanChanged = planChanged
	result.PeriodEnd = &nextEnd
	return result, nil
}

func (s *subscriptionService) emitRenewal(ctx context.Context, result domain.RenewalResult) {
	switch {
	case result.Renewed:
		s.notifier.Emit(ctx, events.EventSubscriptionRenewed, map[string]any{
			"subscription_id": result.SubscriptionID,
			"period_end":      result.PeriodEnd,
			"plan_changed":    result.PlanChanged,
		})
	case result.Ended:
		s.notifier.Emit(ctx, events.EventSubscriptionCancelled, map[string]any{
			"subscription_id": result.SubscriptionID,
			"status":          result.Status,
			"immediate":       false,
		})
	case result.FailureReason != "":
		s.notifier.Emit(ctx, events.EventSubscriptionPaymentFailed, map[string]any{
			"subscription_id": result.SubscriptionID,
			"status":          result.Status,
			"reason":          result.FailureReason,
		})
	}
}

func parseID(raw string) snowflake.ID {
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0
	}
	return id
}
