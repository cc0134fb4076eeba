package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fabriko/fabriko/internal/clock"
	companydomain "github.com/fabriko/fabriko/internal/company/domain"
	companyrepository "github.com/fabriko/fabriko/internal/company/repository"
	subscriptiondomain "github.com/fabriko/fabriko/internal/subscription/domain"
	subscriptionrepository "github.com/fabriko/fabriko/internal/subscription/repository"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// lockFreeRepo delegates to the real repository but serves the FOR UPDATE
// reads with plain queries, since sqlite has no row locks.
type lockFreeRepo struct {
	subscriptiondomain.Repository
}

func (r lockFreeRepo) FindByCompanyIDForUpdate(ctx context.Context, db *gorm.DB, companyID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	return r.Repository.FindByCompanyID(ctx, db, companyID)
}

func (r lockFreeRepo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var subscription subscriptiondomain.Subscription
	err := db.WithContext(ctx).Where("id = ?", id).Limit(1).Find(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(&subscriptiondomain.Subscription{}, &companydomain.Company{}); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}
	return db
}

type fixture struct {
	db        *gorm.DB
	svc       subscriptiondomain.Service
	clock     *clock.FakeClock
	companyID snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	companies := companyrepository.Provide()
	companyID := node.Generate()

	now := fake.Now()
	if err := companies.Create(context.Background(), db, &companydomain.Company{
		ID:            companyID,
		Name:          "Bolt & Brace Fabrication",
		BillingStatus: companydomain.BillingStatusSuspended,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		t.Fatalf("create company: %v", err)
	}

	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fake,
		Repo:      lockFreeRepo{subscriptionrepository.Provide()},
		Companies: companies,
	})

	return &fixture{db: db, svc: svc, clock: fake, companyID: companyID}
}

func (f *fixture) companyStatus(t *testing.T) companydomain.BillingStatus {
	t.Helper()
	var c companydomain.Company
	if err := f.db.Where("id = ?", f.companyID).First(&c).Error; err != nil {
		t.Fatalf("load company: %v", err)
	}
	return c.BillingStatus
}

func (f *fixture) activeSubscription(t *testing.T, planID snowflake.ID) *subscriptiondomain.Subscription {
	t.Helper()
	ctx := context.Background()
	sub, err := f.svc.StartCheckout(ctx, f.companyID, planID, subscriptiondomain.CycleMonthly)
	if err != nil {
		t.Fatalf("start checkout: %v", err)
	}
	sub, err = f.svc.ConfirmCheckout(ctx, sub.ID, subscriptiondomain.ProviderRefs{})
	if err != nil {
		t.Fatalf("confirm checkout: %v", err)
	}
	return sub
}

func TestStartCheckoutCreatesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	planID := snowflake.ID(101)

	sub, err := f.svc.StartCheckout(ctx, f.companyID, planID, subscriptiondomain.CycleMonthly)
	if err != nil {
		t.Fatalf("start checkout: %v", err)
	}
	if sub.Status != subscriptiondomain.StatusPending {
		t.Fatalf("expected PENDING, got %s", sub.Status)
	}
	if sub.CurrentPeriodEnd != nil {
		t.Fatalf("period must not open before confirmation")
	}
	if got := f.companyStatus(t); got != companydomain.BillingStatusSuspended {
		t.Fatalf("checkout must not activate the company, got %s", got)
	}
}

func TestConfirmCheckoutActivates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sub, err := f.svc.StartCheckout(ctx, f.companyID, snowflake.ID(101), subscriptiondomain.CycleMonthly)
	if err != nil {
		t.Fatalf("start checkout: %v", err)
	}

	providerSub := "sub_ext_123"
	sub, err = f.svc.ConfirmCheckout(ctx, sub.ID, subscriptiondomain.ProviderRefs{SubscriptionID: &providerSub})
	if err != nil {
		t.Fatalf("confirm checkout: %v", err)
	}
	if sub.Status != subscriptiondomain.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", sub.Status)
	}
	if sub.CurrentPeriodEnd == nil {
		t.Fatalf("expected period end to be set")
	}
	wantEnd := f.clock.Now().AddDate(0, 1, 0)
	if !sub.CurrentPeriodEnd.Equal(wantEnd) {
		t.Fatalf("expected period end %v, got %v", wantEnd, *sub.CurrentPeriodEnd)
	}
	if sub.ProviderSubscriptionID == nil || *sub.ProviderSubscriptionID != providerSub {
		t.Fatalf("provider subscription id not recorded")
	}
	if got := f.companyStatus(t); got != companydomain.BillingStatusActive {
		t.Fatalf("expected company ACTIVE, got %s", got)
	}
}

func TestConfirmCheckoutReplayIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.activeSubscription(t, snowflake.ID(101))

	firstEnd := *sub.CurrentPeriodEnd
	again, err := f.svc.ConfirmCheckout(ctx, sub.ID, subscriptiondomain.ProviderRefs{})
	if err != nil {
		t.Fatalf("replayed confirmation: %v", err)
	}
	if again.Status != subscriptiondomain.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", again.Status)
	}
	if !again.CurrentPeriodEnd.Equal(firstEnd) {
		t.Fatalf("replay must not move the period end")
	}
}

func TestMarkInvoicePaidExtendsPeriod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.activeSubscription(t, snowflake.ID(101))
	firstEnd := *sub.CurrentPeriodEnd

	sub, err := f.svc.MarkInvoicePaid(ctx, sub.ID, f.clock.Now())
	if err != nil {
		t.Fatalf("mark invoice paid: %v", err)
	}
	wantEnd := firstEnd.AddDate(0, 1, 0)
	if !sub.CurrentPeriodEnd.Equal(wantEnd) {
		t.Fatalf("expected new period end %v, got %v", wantEnd, *sub.CurrentPeriodEnd)
	}
}

func TestMarkInvoicePaidRecoversPastDue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.activeSubscription(t, snowflake.ID(101))

	sub, err := f.svc.MarkPaymentFailed(ctx, sub.ID)
	if err != nil {
		t.Fatalf("mark payment failed: %v", err)
	}
	if sub.Status != subscriptiondomain.StatusPastDue {
		t.Fatalf("expected PAST_DUE, got %s", sub.Status)
	}
	if got := f.companyStatus(t); got != companydomain.BillingStatusActive {
		t.Fatalf("grace period must keep the company active, got %s", got)
	}

	sub, err = f.svc.MarkInvoicePaid(ctx, sub.ID, f.clock.Now())
	if err != nil {
		t.Fatalf("mark invoice paid: %v", err)
	}
	if sub.Status != subscriptiondomain.StatusActive {
		t.Fatalf("expected ACTIVE after payment, got %s", sub.Status)
	}
}

func TestCancelledIsStickyAgainstInvoicePaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.activeSubscription(t, snowflake.ID(101))

	sub, err := f.svc.Cancel(ctx, f.companyID, true, nil)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if sub.Status != subscriptiondomain.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", sub.Status)
	}

	// A stale invoice from before the cancellation is acknowledged but must
	// not resurrect the subscription.
	staleInvoiceTime := f.clock.Now().Add(-time.Hour)
	after, err := f.svc.MarkInvoicePaid(ctx, sub.ID, staleInvoiceTime)
	if err != nil {
		t.Fatalf("stale invoice must be accepted: %v", err)
	}
	if after.Status != subscriptiondomain.StatusCancelled {
		t.Fatalf("stale invoice resurrected the subscription: %s", after.Status)
	}
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeSubscription(t, snowflake.ID(101))

	cancelled, err := f.svc.Cancel(ctx, f.companyID, true, nil)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.CancelledAt == nil || !cancelled.CancelAtPeriodEnd {
		t.Fatalf("cancel bookkeeping missing: %+v", cancelled)
	}
	if got := f.companyStatus(t); got != companydomain.BillingStatusActive {
		t.Fatalf("company must stay active until period end, got %s", got)
	}

	if _, err := f.svc.Cancel(ctx, f.companyID, true, nil); err != subscriptiondomain.ErrAlreadyCancelled {
		t.Fatalf("expected ErrAlreadyCancelled, got %v", err)
	}
}

func TestCancelPendingRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.StartCheckout(ctx, f.companyID, snowflake.ID(101), subscriptiondomain.CycleMonthly); err != nil {
		t.Fatalf("start checkout: %v", err)
	}
	if _, err := f.svc.Cancel(ctx, f.companyID, true, nil); err != subscriptiondomain.ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestReactivateBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.activeSubscription(t, snowflake.ID(101))
	periodEnd := *sub.CurrentPeriodEnd

	if _, err := f.svc.Cancel(ctx, f.companyID, true, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// Exactly at the period end the window is still open.
	f.clock.Advance(periodEnd.Sub(f.clock.Now()))
	sub, err := f.svc.Reactivate(ctx, f.companyID)
	if err != nil {
		t.Fatalf("reactivate at period end: %v", err)
	}
	if sub.Status != subscriptiondomain.StatusActive {
		t.Fatalf("expected ACTIVE, got %s", sub.Status)
	}
	if sub.CancelledAt != nil || sub.CancelAtPeriodEnd {
		t.Fatalf("cancel bookkeeping must be cleared")
	}

	// One second past the period end the window is closed.
	if _, err := f.svc.Cancel(ctx, f.companyID, true, nil); err != nil {
		t.Fatalf("cancel again: %v", err)
	}
	f.clock.Advance(time.Second)
	if _, err := f.svc.Reactivate(ctx, f.companyID); err != subscriptiondomain.ErrReactivationExpired {
		t.Fatalf("expected ErrReactivationExpired, got %v", err)
	}
}

func TestReactivateRequiresCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeSubscription(t, snowflake.ID(101))

	if _, err := f.svc.Reactivate(ctx, f.companyID); err != subscriptiondomain.ErrNotCancelled {
		t.Fatalf("expected ErrNotCancelled, got %v", err)
	}
}

func TestExpireSuspendsCompany(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.activeSubscription(t, snowflake.ID(101))

	sub, err := f.svc.Expire(ctx, sub.ID)
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if sub.Status != subscriptiondomain.StatusExpired {
		t.Fatalf("expected EXPIRED, got %s", sub.Status)
	}
	if got := f.companyStatus(t); got != companydomain.BillingStatusSuspended {
		t.Fatalf("expected company SUSPENDED, got %s", got)
	}
}

func TestChangePlanKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.activeSubscription(t, snowflake.ID(101))

	yearly := subscriptiondomain.CycleYearly
	sub, err := f.svc.ChangePlan(ctx, f.companyID, snowflake.ID(202), &yearly)
	if err != nil {
		t.Fatalf("change plan: %v", err)
	}
	if sub.Status != subscriptiondomain.StatusActive {
		t.Fatalf("plan change must not move the status, got %s", sub.Status)
	}
	if sub.PlanID != snowflake.ID(202) || sub.BillingCycle != subscriptiondomain.CycleYearly {
		t.Fatalf("plan reference not updated: %+v", sub)
	}
}

func TestCheckoutAfterExpiredReusesRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sub := f.activeSubscription(t, snowflake.ID(101))

	if _, err := f.svc.Expire(ctx, sub.ID); err != nil {
		t.Fatalf("expire: %v", err)
	}

	again, err := f.svc.StartCheckout(ctx, f.companyID, snowflake.ID(202), subscriptiondomain.CycleYearly)
	if err != nil {
		t.Fatalf("re-checkout: %v", err)
	}
	if again.ID != sub.ID {
		t.Fatalf("expected the company row to be reused")
	}
	if again.Status != subscriptiondomain.StatusPending {
		t.Fatalf("expected PENDING, got %s", again.Status)
	}

	var count int64
	if err := f.db.Model(&subscriptiondomain.Subscription{}).Where("company_id = ?", f.companyID).Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one subscription row, got %d", count)
	}
}
