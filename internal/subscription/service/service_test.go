package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/perkway/internal/clock"
	"github.com/smallbiznis/perkway/internal/events"
	"github.com/smallbiznis/perkway/internal/payment"
	"github.com/smallbiznis/perkway/internal/subscription/domain"
	"github.com/smallbiznis/perkway/pkg/repository"
)

type fixture struct {
	svc      domain.Service
	db       *gorm.DB
	clk      *clock.FakeClock
	charger  *payment.FakeCharger
	recorder *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.SubscriptionPlan{},
		&domain.Subscription{},
		&domain.BillingRecord{},
	))

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
	charger := &payment.FakeCharger{}
	recorder := events.NewRecorder()

	svc := New(Param{
		Logger:        zap.NewNop(),
		DB:            db,
		Node:          node,
		Clock:         clk,
		Notifier:      recorder,
		Charger:       charger,
		Plans:         repository.ProvideStore[domain.SubscriptionPlan](db),
		Subscriptions: repository.ProvideStore[domain.Subscription](db),
		Billing:       repository.ProvideStore[domain.BillingRecord](db),
	})
	return &fixture{svc: svc, db: db, clk: clk, charger: charger, recorder: recorder}
}

func (f *fixture) seedPlan(t *testing.T, code string, amount int64, trialDays int) domain.SubscriptionPlan {
	t.Helper()
	plan, err := f.svc.CreatePlan(context.Background(), domain.CreatePlanRequest{
		Code:      code,
		Name:      code,
		Amount:    amount,
		Currency:  "USD",
		Interval:  domain.IntervalMonth,
		TrialDays: trialDays,
	})
	require.NoError(t, err)
	return plan
}

func (f *fixture) subscribe(t *testing.T, customerID, planCode string) domain.Subscription {
	t.Helper()
	sub, err := f.svc.Subscribe(context.Background(), domain.SubscribeRequest{
		CustomerID: customerID,
		PlanCode:   planCode,
	})
	require.NoError(t, err)
	return sub
}

func TestSubscribeChargesFirstPeriod(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)

	sub := f.subscribe(t, "cust-1", "basic")
	assert.Equal(t, domain.StatusActive, sub.Status)
	assert.Equal(t, f.clk.Now(), sub.CurrentPeriodStart)
	assert.Equal(t, f.clk.Now().AddDate(0, 1, 0), sub.CurrentPeriodEnd)

	require.Len(t, f.charger.Charges, 1)
	assert.Equal(t, int64(1999), f.charger.Charges[0].Amount)

	records, err := f.svc.BillingHistory(context.Background(), sub.ID.String())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.BillingPaid, records[0].Status)
	assert.Equal(t, 1, f.recorder.CountOf(events.EventSubscriptionCreated))
}

func TestSubscribeTrialSkipsCharge(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "pro", 4999, 14)

	sub := f.subscribe(t, "cust-1", "pro")
	assert.Equal(t, domain.StatusTrial, sub.Status)
	require.NotNil(t, sub.TrialEnd)
	assert.Equal(t, f.clk.Now().AddDate(0, 0, 14), *sub.TrialEnd)
	assert.Equal(t, *sub.TrialEnd, sub.CurrentPeriodEnd)
	assert.Empty(t, f.charger.Charges)
}

func TestSubscribePaymentFailure(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)
	f.charger.Fail = true

	_, err := f.svc.Subscribe(context.Background(), domain.SubscribeRequest{
		CustomerID: "cust-1",
		PlanCode:   "basic",
	})
	assert.ErrorIs(t, err, domain.ErrPaymentFailed)

	var count int64
	require.NoError(t, f.db.Model(&domain.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSubscribeRejectsSecondSubscription(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)
	f.subscribe(t, "cust-1", "basic")

	_, err := f.svc.Subscribe(context.Background(), domain.SubscribeRequest{
		CustomerID: "cust-1",
		PlanCode:   "basic",
	})
	assert.ErrorIs(t, err, domain.ErrAlreadySubscribed)
}

func TestProcessRenewalAdvancesPeriod(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)
	sub := f.subscribe(t, "cust-1", "basic")
	firstEnd := sub.CurrentPeriodEnd

	f.clk.Set(firstEnd.Add(time.Hour))

	result, err := f.svc.ProcessRenewal(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.True(t, result.Renewed)
	assert.Equal(t, domain.StatusActive, result.Status)

	renewed, err := f.svc.GetSubscription(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.WithinDuration(t, firstEnd, renewed.CurrentPeriodStart, time.Second)
	assert.WithinDuration(t, firstEnd.AddDate(0, 1, 0), renewed.CurrentPeriodEnd, time.Second)
	assert.Equal(t, 1, f.recorder.CountOf(events.EventSubscriptionRenewed))
}

func TestProcessRenewalWithinTrailingWindow(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)
	sub := f.subscribe(t, "cust-1", "basic")
	firstEnd := sub.CurrentPeriodEnd

	// The sweep may run a little ahead of the boundary; the new period
	// still starts where the old one ends.
	f.clk.Set(firstEnd.Add(-2 * time.Hour))

	result, err := f.svc.ProcessRenewal(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.True(t, result.Renewed)

	renewed, err := f.svc.GetSubscription(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.WithinDuration(t, firstEnd, renewed.CurrentPeriodStart, time.Second)
	assert.WithinDuration(t, firstEnd.AddDate(0, 1, 0), renewed.CurrentPeriodEnd, time.Second)
}

func TestProcessRenewalNotDue(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)
	sub := f.subscribe(t, "cust-1", "basic")

	_, err := f.svc.ProcessRenewal(context.Background(), sub.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotDue)
}

func TestTrialConvertsOnFirstRenewal(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "pro", 4999, 14)
	sub := f.subscribe(t, "cust-1", "pro")

	f.clk.Set(sub.CurrentPeriodEnd.Add(time.Minute))

	result, err := f.svc.ProcessRenewal(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.True(t, result.Renewed)

	converted, err := f.svc.GetSubscription(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, converted.Status)
	assert.Nil(t, converted.TrialEnd)
	require.Len(t, f.charger.Charges, 1)
	assert.Equal(t, int64(4999), f.charger.Charges[0].Amount)
}

func TestFailedRenewalGoesPastDueThenUnpaid(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)
	sub := f.subscribe(t, "cust-1", "basic")

	f.charger.Fail = true
	f.charger.Reason = "card_expired"

	due := sub.CurrentPeriodEnd
	for attempt := 1; attempt <= domain.MaxFailedAttempts; attempt++ {
		f.clk.Set(due.Add(time.Duration(attempt) * 25 * time.Hour))

		result, err := f.svc.ProcessRenewal(context.Background(), sub.ID.String())
		require.NoError(t, err)
		assert.False(t, result.Renewed)
		assert.Equal(t, "card_expired", result.FailureReason)

		reloaded, err := f.svc.GetSubscription(context.Background(), sub.ID.String())
		require.NoError(t, err)
		assert.Equal(t, attempt, reloaded.FailedAttempts)
		if attempt < domain.MaxFailedAttempts {
			assert.Equal(t, domain.StatusPastDue, reloaded.Status)
		} else {
			assert.Equal(t, domain.StatusUnpaid, reloaded.Status)
		}
	}
	assert.Equal(t, domain.MaxFailedAttempts, f.recorder.CountOf(events.EventSubscriptionPaymentFailed))

	// Unpaid subscriptions leave the renewal pool.
	_, err := f.svc.ProcessRenewal(context.Background(), sub.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotDue)
}

func TestRecoveryAfterPastDue(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)
	sub := f.subscribe(t, "cust-1", "basic")

	f.charger.Fail = true
	f.clk.Set(sub.CurrentPeriodEnd.Add(time.Hour))
	_, err := f.svc.ProcessRenewal(context.Background(), sub.ID.String())
	require.NoError(t, err)

	f.charger.Fail = false
	f.clk.Advance(25 * time.Hour)
	result, err := f.svc.ProcessRenewal(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.True(t, result.Renewed)

	reloaded, err := f.svc.GetSubscription(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, reloaded.Status)
	assert.Zero(t, reloaded.FailedAttempts)
}

func TestCancelAtPeriodEnd(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)
	sub := f.subscribe(t, "cust-1", "basic")

	cancelled, err := f.svc.Cancel(context.Background(), domain.CancelRequest{SubscriptionID: sub.ID.String()})
	require.NoError(t, err)
	assert.True(t, cancelled.CancelAtPeriodEnd)
	assert.Equal(t, domain.StatusActive, cancelled.Status)

	f.clk.Set(sub.CurrentPeriodEnd.Add(time.Hour))
	result, err := f.svc.ProcessRenewal(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.True(t, result.Ended)
	assert.Equal(t, domain.StatusCancelled, result.Status)

	// No charge was attempted for the period that never started.
	assert.Len(t, f.charger.Charges, 1)
	assert.Equal(t, 1, f.recorder.CountOf(events.EventSubscriptionCancelled))
}

func TestCancelImmediately(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)
	sub := f.subscribe(t, "cust-1", "basic")

	cancelled, err := f.svc.Cancel(context.Background(), domain.CancelRequest{
		SubscriptionID: sub.ID.String(),
		Immediately:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.NotNil(t, cancelled.EndedAt)

	// Service ended on the spot, so there is no way back.
	f.clk.Advance(time.Hour)
	_, err = f.svc.Reactivate(context.Background(), sub.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotReactivatable)
}

func TestReactivateCancelledBeforeServiceEnd(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)
	sub := f.subscribe(t, "cust-1", "basic")

	_, err := f.svc.Cancel(context.Background(), domain.CancelRequest{SubscriptionID: sub.ID.String()})
	require.NoError(t, err)

	// The sweep runs just before the boundary and settles the cancel.
	f.clk.Set(sub.CurrentPeriodEnd.Add(-2 * time.Hour))
	result, err := f.svc.ProcessRenewal(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.True(t, result.Ended)

	settled, err := f.svc.GetSubscription(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, settled.Status)
	require.NotNil(t, settled.EndedAt)
	assert.WithinDuration(t, sub.CurrentPeriodEnd, *settled.EndedAt, time.Second)

	// Paid-through time remains, so the customer can change their mind.
	reactivated, err := f.svc.Reactivate(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, reactivated.Status)
	assert.Nil(t, reactivated.EndedAt)
	assert.Nil(t, reactivated.CancelledAt)
}

func TestReactivateClearsPendingCancel(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)
	sub := f.subscribe(t, "cust-1", "basic")

	_, err := f.svc.Cancel(context.Background(), domain.CancelRequest{SubscriptionID: sub.ID.String()})
	require.NoError(t, err)

	reactivated, err := f.svc.Reactivate(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.False(t, reactivated.CancelAtPeriodEnd)

	// Without a pending cancel there is nothing to reactivate.
	_, err = f.svc.Reactivate(context.Background(), sub.ID.String())
	assert.ErrorIs(t, err, domain.ErrNotReactivatable)
}

func TestChangePlanDeferred(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)
	premium := f.seedPlan(t, "premium", 4999, 0)
	sub := f.subscribe(t, "cust-1", "basic")

	changed, err := f.svc.ChangePlan(context.Background(), domain.ChangePlanRequest{
		SubscriptionID: sub.ID.String(),
		PlanCode:       "premium",
		Deferred:       true,
	})
	require.NoError(t, err)
	// Plan switches at the boundary, not now.
	assert.Equal(t, sub.PlanID, changed.PlanID)
	assert.Equal(t, premium.ID.String(), changed.Metadata[domain.MetaPendingPlanChange])

	f.clk.Set(sub.CurrentPeriodEnd.Add(time.Hour))
	result, err := f.svc.ProcessRenewal(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.True(t, result.Renewed)
	assert.True(t, result.PlanChanged)

	renewed, err := f.svc.GetSubscription(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, premium.ID, renewed.PlanID)
	_, pending := renewed.Metadata[domain.MetaPendingPlanChange]
	assert.False(t, pending)

	// The renewal billed the new plan's price.
	require.Len(t, f.charger.Charges, 2)
	assert.Equal(t, int64(4999), f.charger.Charges[1].Amount)
}

func TestChangePlanImmediateProrates(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1000, 0)
	premium := f.seedPlan(t, "premium", 4000, 0)
	sub := f.subscribe(t, "cust-1", "basic")

	// Halfway through the period, half the difference is due.
	halfway := sub.CurrentPeriodStart.Add(sub.CurrentPeriodEnd.Sub(sub.CurrentPeriodStart) / 2)
	f.clk.Set(halfway)

	changed, err := f.svc.ChangePlan(context.Background(), domain.ChangePlanRequest{
		SubscriptionID: sub.ID.String(),
		PlanCode:       "premium",
	})
	require.NoError(t, err)
	assert.Equal(t, premium.ID, changed.PlanID)

	require.Len(t, f.charger.Charges, 2)
	assert.Equal(t, int64(1500), f.charger.Charges[1].Amount)

	// The billing period restarts on the new plan.
	assert.WithinDuration(t, halfway, changed.CurrentPeriodStart, time.Second)
	assert.WithinDuration(t, halfway.AddDate(0, 1, 0), changed.CurrentPeriodEnd, time.Second)

	records, err := f.svc.BillingHistory(context.Background(), sub.ID.String())
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestProratedDifferenceFloorsFraction(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := domain.Subscription{
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   start.Add(30 * 24 * time.Hour),
	}
	basic := domain.SubscriptionPlan{Amount: 1000}
	premium := domain.SubscriptionPlan{Amount: 2000}

	// 10 of 30 days remain: a third of the difference, floored to whole
	// minor units.
	now := start.Add(20 * 24 * time.Hour)
	assert.Equal(t, int64(333), proratedDifference(basic, premium, sub, now))

	// Downgrades never charge.
	assert.Equal(t, int64(0), proratedDifference(premium, basic, sub, now))
}

func TestChangePlanDowngradeChargesNothing(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1000, 0)
	f.seedPlan(t, "premium", 4000, 0)
	sub := f.subscribe(t, "cust-1", "premium")

	_, err := f.svc.ChangePlan(context.Background(), domain.ChangePlanRequest{
		SubscriptionID: sub.ID.String(),
		PlanCode:       "basic",
	})
	require.NoError(t, err)
	assert.Len(t, f.charger.Charges, 1)
}

func TestChangePlanSamePlan(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1000, 0)
	sub := f.subscribe(t, "cust-1", "basic")

	_, err := f.svc.ChangePlan(context.Background(), domain.ChangePlanRequest{
		SubscriptionID: sub.ID.String(),
		PlanCode:       "basic",
	})
	assert.ErrorIs(t, err, domain.ErrSamePlan)
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)
	sub := f.subscribe(t, "cust-1", "basic")

	paused, err := f.svc.Pause(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, paused.Status)

	// Paused subscriptions are not swept.
	f.clk.Set(sub.CurrentPeriodEnd.Add(time.Hour))
	summary, err := f.svc.ProcessAllDueRenewals(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Due)

	resumed, err := f.svc.Resume(context.Background(), sub.ID.String())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, resumed.Status)
}

func TestProcessAllDueRenewals(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)

	due1 := f.subscribe(t, "cust-1", "basic")
	f.subscribe(t, "cust-2", "basic")
	_, err := f.svc.Cancel(context.Background(), domain.CancelRequest{SubscriptionID: due1.ID.String()})
	require.NoError(t, err)

	f.clk.Set(due1.CurrentPeriodEnd.Add(time.Hour))

	summary, err := f.svc.ProcessAllDueRenewals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Due)
	assert.Equal(t, 1, summary.Renewed)
	assert.Equal(t, 1, summary.Ended)

	// Everything settled; a second sweep is a no-op.
	summary, err = f.svc.ProcessAllDueRenewals(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Due)
}

func TestSweepSkipsRecentlyAttempted(t *testing.T) {
	f := newFixture(t)
	f.seedPlan(t, "basic", 1999, 0)
	sub := f.subscribe(t, "cust-1", "basic")

	f.charger.Fail = true
	f.clk.Set(sub.CurrentPeriodEnd.Add(time.Hour))

	summary, err := f.svc.ProcessAllDueRenewals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failures)

	// Retried only after the daily backoff.
	f.clk.Advance(2 * time.Hour)
	summary, err = f.svc.ProcessAllDueRenewals(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.Due)

	f.clk.Advance(23 * time.Hour)
	summary, err = f.svc.ProcessAllDueRenewals(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Due)
}
