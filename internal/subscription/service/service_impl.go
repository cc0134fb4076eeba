package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/fabriko/fabriko/internal/clock"
	companydomain "github.com/fabriko/fabriko/internal/company/domain"
	"github.com/fabriko/fabriko/internal/observability/metrics"
	subscriptiondomain "github.com/fabriko/fabriko/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      subscriptiondomain.Repository
	Companies companydomain.Repository
	Metrics   *metrics.Metrics `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      subscriptiondomain.Repository
	companies companydomain.Repository
	metrics   *metrics.Metrics
}

func New(p Params) subscriptiondomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("subscription.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		companies: p.Companies,
		metrics:   p.Metrics,
	}
}

func (s *Service) StartCheckout(ctx context.Context, companyID, planID snowflake.ID, cycle subscriptiondomain.BillingCycle) (*subscriptiondomain.Subscription, error) {
	if companyID == 0 {
		return nil, subscriptiondomain.ErrInvalidCompany
	}

	var result *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()

		existing, err := s.repo.FindByCompanyIDForUpdate(ctx, tx, companyID)
		if err != nil {
			return err
		}

		if existing == nil {
			subscription := &subscriptiondomain.Subscription{
				ID:           s.genID.Generate(),
				CompanyID:    companyID,
				PlanID:       planID,
				BillingCycle: cycle,
				Status:       subscriptiondomain.StatusPending,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := s.repo.Insert(ctx, tx, subscription); err != nil {
				return err
			}
			s.metrics.RecordTransition(ctx, "", string(subscriptiondomain.StatusPending))
			result = subscription
			return nil
		}

		// The single row per company is reused: a fresh checkout resets it
		// back to PENDING with the newly chosen plan and cycle.
		prior := existing.Status
		existing.PlanID = planID
		existing.BillingCycle = cycle
		existing.Status = subscriptiondomain.StatusPending
		existing.CurrentPeriodStart = nil
		existing.CurrentPeriodEnd = nil
		existing.CancelAtPeriodEnd = false
		existing.CancelledAt = nil
		existing.CancelReason = nil
		existing.ProviderSubscriptionID = nil
		existing.ProviderCustomerID = nil
		existing.UpdatedAt = now

		if err := s.repo.UpdateLifecycle(ctx, tx, existing, prior); err != nil {
			return err
		}
		s.metrics.RecordTransition(ctx, string(prior), string(subscriptiondomain.StatusPending))
		result = existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("checkout started",
		zap.String("company_id", companyID.String()),
		zap.String("plan_id", planID.String()),
		zap.String("billing_cycle", string(cycle)),
	)
	return result, nil
}

func (s *Service) ConfirmCheckout(ctx context.Context, subscriptionID snowflake.ID, refs subscriptiondomain.ProviderRefs) (*subscriptiondomain.Subscription, error) {
	var result *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrNotFound
		}

		if subscription.Status == subscriptiondomain.StatusActive {
			// Confirmation already applied; replays land here.
			result = subscription
			return nil
		}
		if subscription.Status != subscriptiondomain.StatusPending {
			return subscriptiondomain.ErrInvalidTransition
		}

		now := s.clock.Now()
		periodEnd := subscription.BillingCycle.PeriodEnd(now)

		prior := subscription.Status
		subscription.Status = subscriptiondomain.StatusActive
		subscription.CurrentPeriodStart = &now
		subscription.CurrentPeriodEnd = &periodEnd
		if refs.SubscriptionID != nil {
			subscription.ProviderSubscriptionID = refs.SubscriptionID
		}
		if refs.CustomerID != nil {
			subscription.ProviderCustomerID = refs.CustomerID
		}
		subscription.UpdatedAt = now

		if err := s.repo.UpdateLifecycle(ctx, tx, subscription, prior); err != nil {
			return err
		}
		if err := s.companies.UpdateBillingStatus(ctx, tx, int64(subscription.CompanyID), companydomain.BillingStatusActive); err != nil {
			return err
		}
		s.metrics.RecordTransition(ctx, string(prior), string(subscriptiondomain.StatusActive))
		result = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) MarkInvoicePaid(ctx context.Context, subscriptionID snowflake.ID, eventTime time.Time) (*subscriptiondomain.Subscription, error) {
	var result *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrNotFound
		}

		// A cancelled subscription stays cancelled: a late invoice for an
		// older period must not resurrect access. The event is acknowledged
		// without a transition.
		if subscription.Status == subscriptiondomain.StatusCancelled {
			s.log.Info("invoice payment ignored for cancelled subscription",
				zap.String("subscription_id", subscription.ID.String()),
				zap.Time("event_time", eventTime),
			)
			result = subscription
			return nil
		}
		if subscription.Status.Terminal() {
			return subscriptiondomain.ErrInvalidTransition
		}

		now := s.clock.Now()
		prior := subscription.Status

		periodStart := now
		if subscription.CurrentPeriodEnd != nil && subscription.CurrentPeriodEnd.After(now) {
			periodStart = *subscription.CurrentPeriodEnd
		}
		periodEnd := subscription.BillingCycle.PeriodEnd(periodStart)

		subscription.Status = subscriptiondomain.StatusActive
		if subscription.CurrentPeriodStart == nil {
			subscription.CurrentPeriodStart = &now
		}
		subscription.CurrentPeriodEnd = &periodEnd
		subscription.UpdatedAt = now

		if err := s.repo.UpdateLifecycle(ctx, tx, subscription, prior); err != nil {
			return err
		}
		if err := s.companies.UpdateBillingStatus(ctx, tx, int64(subscription.CompanyID), companydomain.BillingStatusActive); err != nil {
			return err
		}
		if prior != subscriptiondomain.StatusActive {
			s.metrics.RecordTransition(ctx, string(prior), string(subscriptiondomain.StatusActive))
		}
		result = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) MarkPaymentFailed(ctx context.Context, subscriptionID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var result *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrNotFound
		}
		if subscription.Status.Terminal() {
			return subscriptiondomain.ErrInvalidTransition
		}
		if subscription.Status == subscriptiondomain.StatusPastDue {
			result = subscription
			return nil
		}

		now := s.clock.Now()
		prior := subscription.Status
		subscription.Status = subscriptiondomain.StatusPastDue
		subscription.UpdatedAt = now

		// Grace period: the company keeps access while PAST_DUE.
		if err := s.repo.UpdateLifecycle(ctx, tx, subscription, prior); err != nil {
			return err
		}
		s.metrics.RecordTransition(ctx, string(prior), string(subscriptiondomain.StatusPastDue))
		result = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) Expire(ctx context.Context, subscriptionID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var result *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrNotFound
		}
		if subscription.Status == subscriptiondomain.StatusExpired {
			result = subscription
			return nil
		}

		now := s.clock.Now()
		prior := subscription.Status
		subscription.Status = subscriptiondomain.StatusExpired
		subscription.UpdatedAt = now

		if err := s.repo.UpdateLifecycle(ctx, tx, subscription, prior); err != nil {
			return err
		}
		if err := s.companies.UpdateBillingStatus(ctx, tx, int64(subscription.CompanyID), companydomain.BillingStatusSuspended); err != nil {
			return err
		}
		s.metrics.RecordTransition(ctx, string(prior), string(subscriptiondomain.StatusExpired))
		result = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) Cancel(ctx context.Context, companyID snowflake.ID, cancelAtPeriodEnd bool, reason *string) (*subscriptiondomain.Subscription, error) {
	if companyID == 0 {
		return nil, subscriptiondomain.ErrInvalidCompany
	}

	var result *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByCompanyIDForUpdate(ctx, tx, companyID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrNotFound
		}
		if subscription.Status == subscriptiondomain.StatusCancelled {
			return subscriptiondomain.ErrAlreadyCancelled
		}
		if subscription.Status != subscriptiondomain.StatusActive && subscription.Status != subscriptiondomain.StatusPastDue {
			return subscriptiondomain.ErrInvalidTransition
		}

		now := s.clock.Now()
		prior := subscription.Status
		subscription.Status = subscriptiondomain.StatusCancelled
		subscription.CancelAtPeriodEnd = cancelAtPeriodEnd
		subscription.CancelledAt = &now
		subscription.CancelReason = reason
		subscription.UpdatedAt = now

		// The company stays active until the paid period runs out.
		if err := s.repo.UpdateLifecycle(ctx, tx, subscription, prior); err != nil {
			return err
		}
		s.metrics.RecordTransition(ctx, string(prior), string(subscriptiondomain.StatusCancelled))
		result = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription cancelled",
		zap.String("company_id", companyID.String()),
		zap.Bool("cancel_at_period_end", cancelAtPeriodEnd),
	)
	return result, nil
}

func (s *Service) Reactivate(ctx context.Context, companyID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if companyID == 0 {
		return nil, subscriptiondomain.ErrInvalidCompany
	}

	var result *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByCompanyIDForUpdate(ctx, tx, companyID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrNotFound
		}
		if subscription.Status != subscriptiondomain.StatusCancelled {
			return subscriptiondomain.ErrNotCancelled
		}

		now := s.clock.Now()
		if reactivationDeadlineExceeded(now, subscription.CurrentPeriodEnd) {
			return subscriptiondomain.ErrReactivationExpired
		}

		prior := subscription.Status
		subscription.Status = subscriptiondomain.StatusActive
		subscription.CancelAtPeriodEnd = false
		subscription.CancelledAt = nil
		subscription.CancelReason = nil
		subscription.UpdatedAt = now

		if err := s.repo.UpdateLifecycle(ctx, tx, subscription, prior); err != nil {
			return err
		}
		if err := s.companies.UpdateBillingStatus(ctx, tx, int64(subscription.CompanyID), companydomain.BillingStatusActive); err != nil {
			return err
		}
		s.metrics.RecordTransition(ctx, string(prior), string(subscriptiondomain.StatusActive))
		result = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("subscription reactivated", zap.String("company_id", companyID.String()))
	return result, nil
}

func (s *Service) ChangePlan(ctx context.Context, companyID, newPlanID snowflake.ID, newCycle *subscriptiondomain.BillingCycle) (*subscriptiondomain.Subscription, error) {
	if companyID == 0 {
		return nil, subscriptiondomain.ErrInvalidCompany
	}

	var result *subscriptiondomain.Subscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByCompanyIDForUpdate(ctx, tx, companyID)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrNotFound
		}
		if subscription.Status.Terminal() {
			return subscriptiondomain.ErrInvalidTransition
		}

		// Plan changes never touch the lifecycle status.
		subscription.PlanID = newPlanID
		if newCycle != nil {
			subscription.BillingCycle = *newCycle
		}
		subscription.UpdatedAt = s.clock.Now()

		if err := s.repo.UpdateLifecycle(ctx, tx, subscription, subscription.Status); err != nil {
			return err
		}
		result = subscription
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) GetByCompanyID(ctx context.Context, companyID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	if companyID == 0 {
		return nil, subscriptiondomain.ErrInvalidCompany
	}

	subscription, err := s.repo.FindByCompanyID(ctx, s.db, companyID)
	if err != nil {
		return nil, err
	}
	if subscription == nil {
		return nil, subscriptiondomain.ErrNotFound
	}
	return subscription, nil
}

// reactivationDeadlineExceeded encodes the reactivation window boundary:
// reactivating exactly at the period end still succeeds, one instant past it
// does not.
func reactivationDeadlineExceeded(now time.Time, periodEnd *time.Time) bool {
	if periodEnd == nil {
		return true
	}
	return now.After(*periodEnd)
}
