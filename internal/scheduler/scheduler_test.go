package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fabriko/fabriko/internal/clock"
	companydomain "github.com/fabriko/fabriko/internal/company/domain"
	companyrepository "github.com/fabriko/fabriko/internal/company/repository"
	subscriptiondomain "github.com/fabriko/fabriko/internal/subscription/domain"
	subscriptionrepository "github.com/fabriko/fabriko/internal/subscription/repository"
	subscriptionservice "github.com/fabriko/fabriko/internal/subscription/service"
)

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

type fixture struct {
	db      *gorm.DB
	sched   *Scheduler
	subs    subscriptiondomain.Service
	clock   *clock.FakeClock
	company snowflake.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := db.AutoMigrate(
		&subscriptiondomain.Subscription{},
		&companydomain.Company{},
	); err != nil {
		t.Fatalf("failed to migrate database: %v", err)
	}

	node, err := snowflake.NewNode(5)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	now := fake.Now()

	companies := companyrepository.Provide()
	companyID := node.Generate()
	if err := companies.Create(context.Background(), db, &companydomain.Company{
		ID:            companyID,
		Name:          "Anvil & Axle Works",
		BillingStatus: companydomain.BillingStatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}); err != nil {
		t.Fatalf("create company: %v", err)
	}

	repo := lockFreeRepo{subscriptionrepository.Provide()}
	subs := subscriptionservice.New(subscriptionservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Clock:     fake,
		Repo:      repo,
		Companies: companies,
	})

	sched, err := New(Params{
		DB:              db,
		Log:             zap.NewNop(),
		Clock:           fake,
		SubscriptionSvc: subs,
		Repo:            repo,
		Config:          Config{BatchSize: 10},
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}

	return &fixture{db: db, sched: sched, subs: subs, clock: fake, company: companyID}
}

func (f *fixture) cancelledSubscription(t *testing.T) *subscriptiondomain.Subscription {
	t.Helper()
	ctx := context.Background()

	pending, err := f.subs.StartCheckout(ctx, f.company, snowflake.ID(101), subscriptiondomain.CycleMonthly)
	if err != nil {
		t.Fatalf("start checkout: %v", err)
	}
	if _, err := f.subs.ConfirmCheckout(ctx, pending.ID, subscriptiondomain.ProviderRefs{}); err != nil {
		t.Fatalf("confirm checkout: %v", err)
	}
	sub, err := f.subs.Cancel(ctx, f.company, true, nil)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	return sub
}

func (f *fixture) reload(t *testing.T, id snowflake.ID) *subscriptiondomain.Subscription {
	t.Helper()
	var sub subscriptiondomain.Subscription
	if err := f.db.Where("id = ?", id).First(&sub).Error; err != nil {
		t.Fatalf("load subscription: %v", err)
	}
	return &sub
}

func TestExpireLapsedJob(t *testing.T) {
	f := newFixture(t)
	sub := f.cancelledSubscription(t)

	// still inside the paid period: nothing to do
	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if got := f.reload(t, sub.ID); got.Status != subscriptiondomain.StatusCancelled {
		t.Fatalf("expected CANCELLED inside the period, got %s", got.Status)
	}

	f.clock.Advance(32 * 24 * time.Hour)
	if err := f.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}

	got := f.reload(t, sub.ID)
	if got.Status != subscriptiondomain.StatusExpired {
		t.Fatalf("expected EXPIRED after period lapse, got %s", got.Status)
	}

	var company companydomain.Company
	if err := f.db.Where("id = ?", f.company).First(&company).Error; err != nil {
		t.Fatalf("load company: %v", err)
	}
	if company.BillingStatus != companydomain.BillingStatusSuspended {
		t.Fatalf("expected suspended company, got %s", company.BillingStatus)
	}
}

func TestExpireLapsedJobLeavesActiveAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending, err := f.subs.StartCheckout(ctx, f.company, snowflake.ID(101), subscriptiondomain.CycleMonthly)
	if err != nil {
		t.Fatalf("start checkout: %v", err)
	}
	sub, err := f.subs.ConfirmCheckout(ctx, pending.ID, subscriptiondomain.ProviderRefs{})
	if err != nil {
		t.Fatalf("confirm checkout: %v", err)
	}

	f.clock.Advance(32 * 24 * time.Hour)
	if err := f.sched.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	// renewal is the provider's business; the sweep only ends cancellations
	if got := f.reload(t, sub.ID); got.Status != subscriptiondomain.StatusActive {
		t.Fatalf("expected ACTIVE untouched, got %s", got.Status)
	}
}
