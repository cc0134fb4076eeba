package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	billingdomain "github.com/fabriko/fabriko/internal/billing/domain"
	"github.com/fabriko/fabriko/internal/config"
	"github.com/fabriko/fabriko/internal/observability/metrics"
	"github.com/fabriko/fabriko/internal/payment/gateway"
	plandomain "github.com/fabriko/fabriko/internal/plan/domain"
	subscriptiondomain "github.com/fabriko/fabriko/internal/subscription/domain"
	"github.com/fabriko/fabriko/internal/tenantctx"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	Billing       config.BillingConfig
	Policy        *config.BillingPolicyHolder
	Plans         plandomain.Repository
	PlanSvc       plandomain.Service
	Subscriptions subscriptiondomain.Service
	Gateway       gateway.Client
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	billing       config.BillingConfig
	policy        *config.BillingPolicyHolder
	plans         plandomain.Repository
	planSvc       plandomain.Service
	subscriptions subscriptiondomain.Service
	gateway       gateway.Client
	metrics       *metrics.Metrics
}

func New(p Params) billingdomain.Service {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("billing.service"),
		billing:       p.Billing,
		policy:        p.Policy,
		plans:         p.Plans,
		planSvc:       p.PlanSvc,
		subscriptions: p.Subscriptions,
		gateway:       p.Gateway,
		metrics:       p.Metrics,
	}
}

func (s *Service) ListPlans(ctx context.Context) ([]plandomain.Response, error) {
	return s.planSvc.List(ctx)
}

func (s *Service) Checkout(ctx context.Context, req billingdomain.CheckoutRequest) (*billingdomain.CheckoutResult, error) {
	companyID, ok := tenantctx.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return nil, subscriptiondomain.ErrInvalidCompany
	}

	planID, err := snowflake.ParseString(strings.TrimSpace(req.PlanID))
	if err != nil {
		return nil, plandomain.ErrInvalidID
	}
	plan, err := s.plans.FindByID(ctx, s.db, planID.Int64())
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrNotFound
	}
	if !plan.Active {
		return nil, plandomain.ErrInactive
	}

	cycle, err := subscriptiondomain.ParseBillingCycle(req.BillingCycle)
	if err != nil {
		return nil, err
	}

	subscription, err := s.subscriptions.StartCheckout(ctx, companyID, planID, cycle)
	if err != nil {
		return nil, err
	}

	if s.billing.SkipPayment {
		// Development bypass: activate synchronously, no provider involved.
		if _, err := s.subscriptions.ConfirmCheckout(ctx, subscription.ID, subscriptiondomain.ProviderRefs{}); err != nil {
			return nil, err
		}
		s.metrics.RecordCheckout(ctx, "bypass")
		status, err := s.Status(ctx)
		if err != nil {
			return nil, err
		}
		return &billingdomain.CheckoutResult{
			Outcome:     billingdomain.CheckoutOutcomeActivated,
			RedirectURL: s.billing.FrontendBaseURL + "/billing/success?local=1",
			Status:      status,
		}, nil
	}

	if !s.billing.GatewayConfigured() {
		s.metrics.RecordCheckout(ctx, "not_configured")
		return &billingdomain.CheckoutResult{
			Outcome: billingdomain.CheckoutOutcomeNotConfigured,
			Message: "payment provider is not configured; contact your administrator",
		}, nil
	}

	currency := strings.TrimSpace(plan.Currency)
	if currency == "" {
		currency = s.policy.Get().DefaultCurrency
	}

	successURL := strings.TrimSpace(req.SuccessURL)
	if successURL == "" {
		successURL = s.billing.FrontendBaseURL + "/billing/success"
	}
	cancelURL := strings.TrimSpace(req.CancelURL)
	if cancelURL == "" {
		cancelURL = s.billing.FrontendBaseURL + "/billing/cancelled"
	}

	timeout := s.billing.CheckoutTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	// The checkout row is committed before the outbound call: no lock is held
	// across the network, and a gateway failure leaves a retryable PENDING row.
	gatewayCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	redirectURL, err := s.gateway.CreateCheckoutSession(gatewayCtx, gateway.CheckoutSessionRequest{
		AmountCents: plan.PriceCents(string(cycle)),
		Currency:    currency,
		SuccessURL:  successURL,
		CancelURL:   cancelURL,
		Metadata: map[string]string{
			"company_id":      companyID.String(),
			"subscription_id": subscription.ID.String(),
			"plan_id":         planID.String(),
		},
	})
	if err != nil {
		s.log.Warn("checkout session failed",
			zap.String("company_id", companyID.String()),
			zap.Error(err),
		)
		s.metrics.RecordCheckout(ctx, "gateway_failed")
		return &billingdomain.CheckoutResult{
			Outcome: billingdomain.CheckoutOutcomeGatewayFailed,
			Message: "the payment provider could not be reached; please try again",
		}, nil
	}

	s.metrics.RecordCheckout(ctx, "redirect")
	return &billingdomain.CheckoutResult{
		Outcome:     billingdomain.CheckoutOutcomeRedirect,
		RedirectURL: redirectURL,
	}, nil
}

func (s *Service) ChangePlan(ctx context.Context, req billingdomain.ChangePlanRequest) (*billingdomain.StatusProjection, error) {
	companyID, ok := tenantctx.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return nil, subscriptiondomain.ErrInvalidCompany
	}

	planID, err := snowflake.ParseString(strings.TrimSpace(req.PlanID))
	if err != nil {
		return nil, plandomain.ErrInvalidID
	}
	plan, err := s.plans.FindByID(ctx, s.db, planID.Int64())
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, plandomain.ErrNotFound
	}
	if !plan.Active {
		return nil, plandomain.ErrInactive
	}

	var cycle *subscriptiondomain.BillingCycle
	if req.BillingCycle != nil {
		parsed, err := subscriptiondomain.ParseBillingCycle(*req.BillingCycle)
		if err != nil {
			return nil, err
		}
		cycle = &parsed
	}

	if _, err := s.subscriptions.ChangePlan(ctx, companyID, planID, cycle); err != nil {
		return nil, err
	}
	return s.Status(ctx)
}

func (s *Service) Cancel(ctx context.Context, req billingdomain.CancelRequest) (*billingdomain.StatusProjection, error) {
	companyID, ok := tenantctx.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return nil, subscriptiondomain.ErrInvalidCompany
	}

	cancelAtPeriodEnd := true
	if req.CancelAtPeriodEnd != nil {
		cancelAtPeriodEnd = *req.CancelAtPeriodEnd
	}

	if _, err := s.subscriptions.Cancel(ctx, companyID, cancelAtPeriodEnd, req.Reason); err != nil {
		return nil, err
	}
	return s.Status(ctx)
}

func (s *Service) Reactivate(ctx context.Context) (*billingdomain.StatusProjection, error) {
	companyID, ok := tenantctx.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return nil, subscriptiondomain.ErrInvalidCompany
	}

	if _, err := s.subscriptions.Reactivate(ctx, companyID); err != nil {
		return nil, err
	}
	return s.Status(ctx)
}

func (s *Service) Status(ctx context.Context) (*billingdomain.StatusProjection, error) {
	companyID, ok := tenantctx.CompanyIDFromContext(ctx)
	if !ok || companyID == 0 {
		return nil, subscriptiondomain.ErrInvalidCompany
	}

	subscription, err := s.subscriptions.GetByCompanyID(ctx, companyID)
	if err != nil {
		return nil, err
	}

	projection := &billingdomain.StatusProjection{
		Subscription: toView(subscription),
		Warning:      s.warningFor(subscription.Status),
	}

	if plan, err := s.planSvc.Get(ctx, subscription.PlanID.String()); err == nil {
		projection.Plan = plan
	} else if err != plandomain.ErrNotFound {
		return nil, err
	}

	return projection, nil
}

func (s *Service) warningFor(status subscriptiondomain.Status) string {
	policy := s.policy.Get()
	switch status {
	case subscriptiondomain.StatusPastDue:
		return policy.PastDueWarning
	case subscriptiondomain.StatusCancelled:
		return policy.CanceledWarning
	default:
		return ""
	}
}

func toView(sub *subscriptiondomain.Subscription) *billingdomain.SubscriptionView {
	return &billingdomain.SubscriptionView{
		ID:                 sub.ID.String(),
		PlanID:             sub.PlanID.String(),
		BillingCycle:       string(sub.BillingCycle),
		Status:             string(sub.Status),
		CurrentPeriodStart: sub.CurrentPeriodStart,
		CurrentPeriodEnd:   sub.CurrentPeriodEnd,
		CancelAtPeriodEnd:  sub.CancelAtPeriodEnd,
		CancelledAt:        sub.CancelledAt,
	}
}
