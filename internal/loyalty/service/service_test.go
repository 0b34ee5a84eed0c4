package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/smallbiznis/perkway/internal/clock"
	"github.com/smallbiznis/perkway/internal/config"
	"github.com/smallbiznis/perkway/internal/events"
	ledgerdomain "github.com/smallbiznis/perkway/internal/ledger/domain"
	ledgersvc "github.com/smallbiznis/perkway/internal/ledger/service"
	"github.com/smallbiznis/perkway/internal/loyalty/domain"
	ruledomain "github.com/smallbiznis/perkway/internal/pointsrule/domain"
	rulesvc "github.com/smallbiznis/perkway/internal/pointsrule/service"
	tierdomain "github.com/smallbiznis/perkway/internal/tier/domain"
	tiersvc "github.com/smallbiznis/perkway/internal/tier/service"
	"github.com/smallbiznis/perkway/pkg/db/pagination"
	"github.com/smallbiznis/perkway/pkg/repository"
)

type fixture struct {
	svc      domain.Service
	db       *gorm.DB
	node     *snowflake.Node
	clk      *clock.FakeClock
	recorder *events.Recorder
	tiers    tierdomain.Service
	rules    ruledomain.Service
}

func testSettings() config.LoyaltySettings {
	return config.LoyaltySettings{
		PointsEnabled:       true,
		AutoEnroll:          true,
		PointValue:          decimal.NewFromFloat(0.01),
		MinimumRedemption:   100,
		PointsExpiryDays:    0,
		TiersEnabled:        true,
		ReferralEnabled:     true,
		ReferrerBonusPoints: 500,
		ReferredBonusPoints: 250,
	}
}

func newFixture(t *testing.T, settings config.LoyaltySettings) *fixture {
	t.Helper()

	// A shared-cache named database keeps every pooled connection on the
	// same schema, so reads issued while a transaction is open still see
	// the migrated tables.
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&ledgerdomain.LoyaltyAccount{},
		&ledgerdomain.LedgerTransaction{},
		&ledgerdomain.TierHistory{},
		&tierdomain.Tier{},
		&ruledomain.PointsRule{},
		&domain.RedemptionRecord{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	clk := clock.NewFakeClock(time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC))
	recorder := events.NewRecorder()
	logger := zap.NewNop()

	ledgerSvc := ledgersvc.New(ledgersvc.Param{
		Logger:       logger,
		DB:           db,
		Node:         node,
		Transactions: repository.ProvideStore[ledgerdomain.LedgerTransaction](db),
	})
	tierSvc := tiersvc.New(tiersvc.Param{
		Logger: logger,
		DB:     db,
		Node:   node,
		Tiers:  repository.ProvideStore[tierdomain.Tier](db),
	})
	ruleSvc := rulesvc.New(rulesvc.Param{
		Logger: logger,
		Node:   node,
		Rules:  repository.ProvideStore[ruledomain.PointsRule](db),
	})

	svc := New(Param{
		Logger:      logger,
		DB:          db,
		Node:        node,
		Clock:       clk,
		Settings:    config.NewStaticLoyaltySettingsHolder(settings),
		Notifier:    recorder,
		Ledger:      ledgerSvc,
		Tiers:       tierSvc,
		Rules:       ruleSvc,
		Accounts:    repository.ProvideStore[ledgerdomain.LoyaltyAccount](db),
		Histories:   repository.ProvideStore[ledgerdomain.TierHistory](db),
		Redemptions: repository.ProvideStore[domain.RedemptionRecord](db),
	})

	return &fixture{
		svc:      svc,
		db:       db,
		node:     node,
		clk:      clk,
		recorder: recorder,
		tiers:    tierSvc,
		rules:    ruleSvc,
	}
}

func (f *fixture) seedTier(t *testing.T, code string, threshold int64, multiplier string) tierdomain.Tier {
	t.Helper()
	tier, err := f.tiers.Create(context.Background(), tierdomain.CreateTierRequest{
		Code:             code,
		Name:             code,
		PointThreshold:   threshold,
		PointsMultiplier: decimal.RequireFromString(multiplier),
	})
	require.NoError(t, err)
	return tier
}

func (f *fixture) seedOrderRule(t *testing.T, value string) {
	t.Helper()
	_, err := f.rules.Create(context.Background(), ruledomain.CreateRuleRequest{
		Name:        "order earning",
		RuleType:    ruledomain.RuleTypePurchase,
		Calculation: ruledomain.CalculationPercentage,
		Value:       decimal.RequireFromString(value),
	})
	require.NoError(t, err)
}

func (f *fixture) enroll(t *testing.T, customerID string) ledgerdomain.LoyaltyAccount {
	t.Helper()
	result, err := f.svc.Enroll(context.Background(), domain.EnrollRequest{CustomerID: customerID})
	require.NoError(t, err)
	return result.Account
}

func TestEnroll(t *testing.T) {
	f := newFixture(t, testSettings())

	result, err := f.svc.Enroll(context.Background(), domain.EnrollRequest{CustomerID: "cust-1"})
	require.NoError(t, err)
	assert.False(t, result.AlreadyEnrolled)
	assert.Equal(t, ledgerdomain.AccountActive, result.Account.Status)
	assert.NotEmpty(t, result.Account.ReferralCode)
	assert.Equal(t, 1, f.recorder.CountOf(events.EventEnrolled))

	again, err := f.svc.Enroll(context.Background(), domain.EnrollRequest{CustomerID: "cust-1"})
	require.NoError(t, err)
	assert.True(t, again.AlreadyEnrolled)
	assert.Equal(t, result.Account.ID, again.Account.ID)
	assert.Equal(t, 1, f.recorder.CountOf(events.EventEnrolled))
}

func TestEnrollAssignsDefaultTier(t *testing.T) {
	f := newFixture(t, testSettings())
	bronze := f.seedTier(t, "bronze", 0, "1")
	f.seedTier(t, "gold", 1000, "1.5")

	f.enroll(t, "cust-1")

	detail, err := f.svc.GetAccount(context.Background(), "cust-1")
	require.NoError(t, err)
	require.NotNil(t, detail.Tier)
	assert.Equal(t, bronze.ID, detail.Tier.ID)

	// The starting tier is not a tier change.
	var histories int64
	require.NoError(t, f.db.Model(&ledgerdomain.TierHistory{}).Count(&histories).Error)
	assert.Zero(t, histories)
}

func TestEnrollSignupBonus(t *testing.T) {
	f := newFixture(t, testSettings())
	_, err := f.rules.Create(context.Background(), ruledomain.CreateRuleRequest{
		Name:        "welcome points",
		RuleType:    ruledomain.RuleTypeSignup,
		Calculation: ruledomain.CalculationFixed,
		Value:       decimal.NewFromInt(100),
	})
	require.NoError(t, err)

	acct := f.enroll(t, "cust-1")
	assert.Equal(t, int64(100), acct.Balance)
	assert.Equal(t, int64(100), acct.LifetimeEarned)
}

func TestEnrollReferralBonuses(t *testing.T) {
	f := newFixture(t, testSettings())
	referrer := f.enroll(t, "referrer")

	result, err := f.svc.Enroll(context.Background(), domain.EnrollRequest{
		CustomerID:   "referred",
		ReferralCode: referrer.ReferralCode,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Account.ReferredBy)
	assert.Equal(t, referrer.ID, *result.Account.ReferredBy)
	assert.Equal(t, int64(250), result.Account.Balance)

	detail, err := f.svc.GetAccount(context.Background(), "referrer")
	require.NoError(t, err)
	assert.Equal(t, int64(500), detail.Account.Balance)
}

func TestEnrollBadReferralCodeIsIgnored(t *testing.T) {
	f := newFixture(t, testSettings())

	result, err := f.svc.Enroll(context.Background(), domain.EnrollRequest{
		CustomerID:   "cust-1",
		ReferralCode: "no-such-code",
	})
	require.NoError(t, err)
	assert.Nil(t, result.Account.ReferredBy)
	assert.Zero(t, result.Account.Balance)
}

func TestProcessOrderPoints(t *testing.T) {
	f := newFixture(t, testSettings())
	f.seedOrderRule(t, "1")
	f.enroll(t, "cust-1")

	result, err := f.svc.ProcessOrderPoints(context.Background(), domain.ProcessOrderRequest{
		CustomerID: "cust-1",
		OrderID:    "order-1",
		Amount:     decimal.RequireFromString("100.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), result.Points)
	assert.Equal(t, int64(100), result.Balance)
	assert.False(t, result.Duplicate)

	// Replayed order webhooks must not double-award.
	replay, err := f.svc.ProcessOrderPoints(context.Background(), domain.ProcessOrderRequest{
		CustomerID: "cust-1",
		OrderID:    "order-1",
		Amount:     decimal.RequireFromString("100.00"),
	})
	require.NoError(t, err)
	assert.True(t, replay.Duplicate)
	assert.Equal(t, int64(100), replay.Balance)
	assert.Equal(t, 1, f.recorder.CountOf(events.EventPointsAwarded))
}

func TestProcessOrderPointsFloorsFractions(t *testing.T) {
	f := newFixture(t, testSettings())
	f.seedOrderRule(t, "1")
	f.enroll(t, "cust-1")

	result, err := f.svc.ProcessOrderPoints(context.Background(), domain.ProcessOrderRequest{
		CustomerID: "cust-1",
		OrderID:    "order-1",
		Amount:     decimal.RequireFromString("99.99"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(99), result.Points)
}

func TestProcessOrderPointsTierMultiplier(t *testing.T) {
	f := newFixture(t, testSettings())
	f.seedTier(t, "bronze", 0, "1")
	gold := f.seedTier(t, "gold", 1000, "1.5")
	f.seedOrderRule(t, "1")
	f.enroll(t, "cust-1")

	// Cross the gold threshold first.
	_, err := f.svc.AwardPoints(context.Background(), domain.AwardRequest{
		CustomerID: "cust-1",
		Points:     1000,
		Source:     ledgerdomain.SourceAdjustment,
	})
	require.NoError(t, err)

	detail, err := f.svc.GetAccount(context.Background(), "cust-1")
	require.NoError(t, err)
	require.NotNil(t, detail.Tier)
	assert.Equal(t, gold.ID, detail.Tier.ID)

	result, err := f.svc.ProcessOrderPoints(context.Background(), domain.ProcessOrderRequest{
		CustomerID: "cust-1",
		OrderID:    "order-1",
		Amount:     decimal.RequireFromString("100.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), result.Points)
}

func TestProcessOrderPointsAutoEnrolls(t *testing.T) {
	f := newFixture(t, testSettings())
	f.seedOrderRule(t, "1")

	result, err := f.svc.ProcessOrderPoints(context.Background(), domain.ProcessOrderRequest{
		CustomerID: "new-customer",
		OrderID:    "order-1",
		Amount:     decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	assert.True(t, result.AutoEnrolled)
	assert.Equal(t, int64(50), result.Points)

	detail, err := f.svc.GetAccount(context.Background(), "new-customer")
	require.NoError(t, err)
	assert.Equal(t, int64(50), detail.Account.Balance)
}

func TestProcessOrderPointsAutoEnrollDisabled(t *testing.T) {
	settings := testSettings()
	settings.AutoEnroll = false
	f := newFixture(t, settings)
	f.seedOrderRule(t, "1")

	_, err := f.svc.ProcessOrderPoints(context.Background(), domain.ProcessOrderRequest{
		CustomerID: "stranger",
		OrderID:    "order-1",
		Amount:     decimal.NewFromInt(50),
	})
	assert.ErrorIs(t, err, ledgerdomain.ErrAccountNotFound)
}

func TestProcessOrderPointsNoRule(t *testing.T) {
	f := newFixture(t, testSettings())
	f.enroll(t, "cust-1")

	result, err := f.svc.ProcessOrderPoints(context.Background(), domain.ProcessOrderRequest{
		CustomerID: "cust-1",
		OrderID:    "order-1",
		Amount:     decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	assert.Zero(t, result.Points)
}

func TestRedeemPoints(t *testing.T) {
	f := newFixture(t, testSettings())
	f.enroll(t, "cust-1")
	_, err := f.svc.AwardPoints(context.Background(), domain.AwardRequest{
		CustomerID: "cust-1",
		Points:     500,
	})
	require.NoError(t, err)

	result, err := f.svc.RedeemPoints(context.Background(), domain.RedeemRequest{
		CustomerID:  "cust-1",
		Points:      200,
		Description: "gift card",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300), result.Balance)
	assert.True(t, decimal.NewFromInt(2).Equal(result.Value))

	var record domain.RedemptionRecord
	require.NoError(t, f.db.First(&record).Error)
	assert.Equal(t, int64(200), record.Points)
	assert.True(t, decimal.NewFromInt(2).Equal(record.Value))
	assert.Equal(t, 1, f.recorder.CountOf(events.EventPointsRedeemed))
}

func TestRedeemPointsBelowMinimum(t *testing.T) {
	f := newFixture(t, testSettings())
	f.enroll(t, "cust-1")
	_, err := f.svc.AwardPoints(context.Background(), domain.AwardRequest{CustomerID: "cust-1", Points: 500})
	require.NoError(t, err)

	_, err = f.svc.RedeemPoints(context.Background(), domain.RedeemRequest{CustomerID: "cust-1", Points: 50})
	assert.ErrorIs(t, err, domain.ErrBelowMinimumRedemption)
}

func TestRedeemPointsInsufficientBalance(t *testing.T) {
	f := newFixture(t, testSettings())
	f.enroll(t, "cust-1")
	_, err := f.svc.AwardPoints(context.Background(), domain.AwardRequest{CustomerID: "cust-1", Points: 150})
	require.NoError(t, err)

	_, err = f.svc.RedeemPoints(context.Background(), domain.RedeemRequest{CustomerID: "cust-1", Points: 200})
	assert.ErrorIs(t, err, ledgerdomain.ErrInsufficientBalance)

	// Failed redemption leaves no partial writes behind.
	var records int64
	require.NoError(t, f.db.Model(&domain.RedemptionRecord{}).Count(&records).Error)
	assert.Zero(t, records)

	detail, err := f.svc.GetAccount(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(150), detail.Account.Balance)
}

func TestAwardPointsDisabledProgram(t *testing.T) {
	settings := testSettings()
	settings.PointsEnabled = false
	f := newFixture(t, settings)

	_, err := f.svc.AwardPoints(context.Background(), domain.AwardRequest{CustomerID: "cust-1", Points: 10})
	assert.ErrorIs(t, err, domain.ErrLoyaltyDisabled)
}

func TestAwardPointsAutoEnrolls(t *testing.T) {
	f := newFixture(t, testSettings())

	result, err := f.svc.AwardPoints(context.Background(), domain.AwardRequest{
		CustomerID: "new-customer",
		Points:     75,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(75), result.Balance)

	detail, err := f.svc.GetAccount(context.Background(), "new-customer")
	require.NoError(t, err)
	assert.Equal(t, int64(75), detail.Account.Balance)
}

func TestAwardPointsInactiveAccount(t *testing.T) {
	f := newFixture(t, testSettings())
	f.enroll(t, "cust-1")
	require.NoError(t, f.svc.Deactivate(context.Background(), "cust-1"))

	_, err := f.svc.AwardPoints(context.Background(), domain.AwardRequest{CustomerID: "cust-1", Points: 10})
	assert.ErrorIs(t, err, ledgerdomain.ErrAccountInactive)

	require.NoError(t, f.svc.Reactivate(context.Background(), "cust-1"))
	_, err = f.svc.AwardPoints(context.Background(), domain.AwardRequest{CustomerID: "cust-1", Points: 10})
	assert.NoError(t, err)
}

func TestTierUpgradeNeverDowngrades(t *testing.T) {
	f := newFixture(t, testSettings())
	f.seedTier(t, "bronze", 0, "1")
	silver := f.seedTier(t, "silver", 1000, "1.25")

	f.enroll(t, "cust-1")
	_, err := f.svc.AwardPoints(context.Background(), domain.AwardRequest{CustomerID: "cust-1", Points: 1200})
	require.NoError(t, err)

	detail, err := f.svc.GetAccount(context.Background(), "cust-1")
	require.NoError(t, err)
	require.NotNil(t, detail.Tier)
	assert.Equal(t, silver.ID, detail.Tier.ID)
	assert.Equal(t, 1, f.recorder.CountOf(events.EventTierChanged))

	// Redeeming drops the balance but lifetime earned keeps the tier.
	_, err = f.svc.RedeemPoints(context.Background(), domain.RedeemRequest{CustomerID: "cust-1", Points: 1100})
	require.NoError(t, err)

	detail, err = f.svc.GetAccount(context.Background(), "cust-1")
	require.NoError(t, err)
	require.NotNil(t, detail.Tier)
	assert.Equal(t, silver.ID, detail.Tier.ID)

	var histories int64
	require.NoError(t, f.db.Model(&ledgerdomain.TierHistory{}).Count(&histories).Error)
	assert.Equal(t, int64(1), histories)
}

func TestClearExpiredPoints(t *testing.T) {
	settings := testSettings()
	settings.PointsExpiryDays = 30
	f := newFixture(t, settings)
	f.enroll(t, "cust-1")

	_, err := f.svc.AwardPoints(context.Background(), domain.AwardRequest{
		CustomerID:  "cust-1",
		Points:      100,
		ReferenceID: "bonus-1",
	})
	require.NoError(t, err)

	// Nothing expires before the window passes.
	summary, err := f.svc.ClearExpiredPoints(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.AccountsSwept)

	f.clk.Advance(31 * 24 * time.Hour)

	summary, err = f.svc.ClearExpiredPoints(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.AccountsSwept)
	assert.Equal(t, int64(100), summary.PointsExpired)
	assert.Equal(t, 1, f.recorder.CountOf(events.EventPointsExpired))

	detail, err := f.svc.GetAccount(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Zero(t, detail.Account.Balance)
	assert.Equal(t, int64(100), detail.Account.LifetimeEarned)

	// A second sweep finds nothing to do.
	summary, err = f.svc.ClearExpiredPoints(context.Background())
	require.NoError(t, err)
	assert.Zero(t, summary.AccountsSwept)
	assert.Equal(t, 1, f.recorder.CountOf(events.EventPointsExpired))
}

func TestClearExpiredPointsCapsAtBalance(t *testing.T) {
	settings := testSettings()
	settings.PointsExpiryDays = 30
	settings.MinimumRedemption = 10
	f := newFixture(t, settings)
	f.enroll(t, "cust-1")

	_, err := f.svc.AwardPoints(context.Background(), domain.AwardRequest{
		CustomerID:  "cust-1",
		Points:      100,
		ReferenceID: "bonus-1",
	})
	require.NoError(t, err)
	_, err = f.svc.RedeemPoints(context.Background(), domain.RedeemRequest{CustomerID: "cust-1", Points: 60})
	require.NoError(t, err)

	f.clk.Advance(31 * 24 * time.Hour)

	summary, err := f.svc.ClearExpiredPoints(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(40), summary.PointsExpired)

	detail, err := f.svc.GetAccount(context.Background(), "cust-1")
	require.NoError(t, err)
	assert.Zero(t, detail.Account.Balance)
}

func TestHistory(t *testing.T) {
	f := newFixture(t, testSettings())
	f.enroll(t, "cust-1")
	for i := 0; i < 3; i++ {
		_, err := f.svc.AwardPoints(context.Background(), domain.AwardRequest{CustomerID: "cust-1", Points: 10})
		require.NoError(t, err)
	}

	txns, pageInfo, err := f.svc.History(context.Background(), "cust-1", pagination.Pagination{PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, txns, 3)
	assert.False(t, pageInfo.HasMore)
}

func TestGetAccountUnknownCustomer(t *testing.T) {
	f := newFixture(t, testSettings())

	_, err := f.svc.GetAccount(context.Background(), "nobody")
	assert.ErrorIs(t, err, ledgerdomain.ErrAccountNotFound)
}
