package webhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/fabriko/fabriko/internal/clock"
	"github.com/fabriko/fabriko/internal/observability/metrics"
	paymentdomain "github.com/fabriko/fabriko/internal/payment/domain"
	"github.com/fabriko/fabriko/internal/payment/signature"
	subscriptiondomain "github.com/fabriko/fabriko/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Clock         clock.Clock
	Verifier      *signature.Verifier
	Repo          paymentdomain.Repository
	Subscriptions subscriptiondomain.Service
	SubRepo       subscriptiondomain.Repository
	Metrics       *metrics.Metrics `optional:"true"`
}

type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	clock         clock.Clock
	verifier      *signature.Verifier
	repo          paymentdomain.Repository
	subscriptions subscriptiondomain.Service
	subRepo       subscriptiondomain.Repository
	metrics       *metrics.Metrics
}

func New(p Params) paymentdomain.WebhookService {
	return &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.webhook"),
		genID:         p.GenID,
		clock:         p.Clock,
		verifier:      p.Verifier,
		repo:          p.Repo,
		subscriptions: p.Subscriptions,
		subRepo:       p.SubRepo,
		metrics:       p.Metrics,
	}
}

func (s *Service) Handle(ctx context.Context, rawBody []byte, signatureHeader string) error {
	// Unauthenticated payloads are not trusted enough to record.
	if !s.verifier.Verify(rawBody, signatureHeader) {
		s.metrics.RecordWebhookEvent(ctx, "unknown", "rejected")
		return paymentdomain.ErrInvalidSignature
	}

	event, err := paymentdomain.ParseProviderEvent(rawBody)
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, "unknown", "malformed")
		return err
	}

	log := s.log.With(
		zap.String("provider_event_id", event.ID),
		zap.String("event_type", event.Type),
	)

	record, duplicate, err := s.recordSeen(ctx, event, rawBody)
	if err != nil {
		return err
	}
	if duplicate {
		log.Info("duplicate webhook delivery skipped")
		s.metrics.RecordWebhookEvent(ctx, event.Type, "duplicate")
		return nil
	}

	now := s.clock.Now()
	if err := s.dispatch(ctx, event); err != nil {
		if markErr := s.repo.MarkFailed(ctx, s.db, record.ID, err.Error(), now); markErr != nil {
			log.Error("failed to record webhook failure", zap.Error(markErr))
		}
		log.Warn("webhook processing failed", zap.Error(err))
		s.metrics.RecordWebhookEvent(ctx, event.Type, "failed")
		return err
	}

	if err := s.repo.MarkProcessed(ctx, s.db, record.ID, now); err != nil {
		return err
	}
	log.Info("webhook processed")
	s.metrics.RecordWebhookEvent(ctx, event.Type, "processed")
	return nil
}

// recordSeen performs the idempotency check. The conditional insert is the
// arbiter under concurrent deliveries: exactly one insert wins, everyone else
// reads the existing row. PROCESSED rows short-circuit; FAILED and stuck
// PROCESSING rows are re-entered with the retry counter bumped. The state
// machine's guarded transitions make a replayed dispatch safe.
func (s *Service) recordSeen(ctx context.Context, event *paymentdomain.ProviderEvent, rawBody []byte) (*paymentdomain.WebhookEvent, bool, error) {
	now := s.clock.Now()
	record := &paymentdomain.WebhookEvent{
		ID:              s.genID.Generate(),
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(rawBody),
		Status:          paymentdomain.EventStatusProcessing,
		ReceivedAt:      now,
		UpdatedAt:       now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, record)
	if err != nil {
		return nil, false, err
	}
	if inserted {
		return record, false, nil
	}

	existing, err := s.repo.FindByProviderEventID(ctx, s.db, event.ID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, paymentdomain.ErrInvalidEvent
	}
	if existing.Status == paymentdomain.EventStatusProcessed {
		return existing, true, nil
	}

	if err := s.repo.MarkProcessing(ctx, s.db, existing.ID, now); err != nil {
		return nil, false, err
	}
	existing.Status = paymentdomain.EventStatusProcessing
	existing.RetryCount++
	return existing, false, nil
}

func (s *Service) dispatch(ctx context.Context, event *paymentdomain.ProviderEvent) error {
	switch {
	case event.Checkout != nil:
		return s.handleCheckoutCompleted(ctx, event)
	case event.Invoice != nil:
		return s.handleInvoice(ctx, event)
	case event.Subscription != nil:
		return s.handleSubscription(ctx, event)
	default:
		// Unknown event types are acknowledged without a state change so new
		// provider events do not break ingestion.
		s.log.Info("ignoring unknown webhook event type", zap.String("event_type", event.Type))
		return nil
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *paymentdomain.ProviderEvent) error {
	data := event.Checkout

	companyRaw := strings.TrimSpace(data.Metadata["company_id"])
	subscriptionRaw := strings.TrimSpace(data.Metadata["subscription_id"])
	if companyRaw == "" || subscriptionRaw == "" {
		// Without the metadata the confirmation cannot be attributed.
		return paymentdomain.ErrUnknownCompany
	}
	subscriptionID, err := snowflake.ParseString(subscriptionRaw)
	if err != nil {
		return paymentdomain.ErrUnknownCompany
	}

	refs := subscriptiondomain.ProviderRefs{}
	if v := strings.TrimSpace(data.SubscriptionID); v != "" {
		refs.SubscriptionID = &v
	}
	if v := strings.TrimSpace(data.CustomerID); v != "" {
		refs.CustomerID = &v
	}

	_, err = s.subscriptions.ConfirmCheckout(ctx, subscriptionID, refs)
	return err
}

func (s *Service) handleInvoice(ctx context.Context, event *paymentdomain.ProviderEvent) error {
	subscriptionID, err := s.resolveSubscription(ctx, event.Invoice.SubscriptionID, event.Invoice.Metadata)
	if err != nil {
		return err
	}

	switch event.Type {
	case paymentdomain.EventInvoicePaid:
		_, err = s.subscriptions.MarkInvoicePaid(ctx, subscriptionID, event.Created)
	case paymentdomain.EventInvoiceFailed:
		_, err = s.subscriptions.MarkPaymentFailed(ctx, subscriptionID)
	default:
		err = fmt.Errorf("unroutable invoice event %q", event.Type)
	}
	return err
}

func (s *Service) handleSubscription(ctx context.Context, event *paymentdomain.ProviderEvent) error {
	subscriptionID, err := s.resolveSubscription(ctx, event.Subscription.SubscriptionID, event.Subscription.Metadata)
	if err != nil {
		return err
	}

	if event.Type == paymentdomain.EventSubscriptionDeleted {
		_, err = s.subscriptions.Expire(ctx, subscriptionID)
		return err
	}

	// subscription.updated: mirror the provider-side status.
	switch strings.ToLower(strings.TrimSpace(event.Subscription.Status)) {
	case "past_due":
		_, err = s.subscriptions.MarkPaymentFailed(ctx, subscriptionID)
	case "canceled", "unpaid":
		_, err = s.subscriptions.Expire(ctx, subscriptionID)
	default:
		// Nothing to mirror.
	}
	return err
}

// resolveSubscription finds the local row for a provider subscription id,
// falling back to the subscription_id echoed in the event metadata.
func (s *Service) resolveSubscription(ctx context.Context, providerSubscriptionID string, metadata map[string]string) (snowflake.ID, error) {
	if v := strings.TrimSpace(providerSubscriptionID); v != "" {
		// The dispatcher only needs the id; the transition re-reads the row
		// under lock.
		sub, err := s.subRepo.FindByProviderSubscriptionID(ctx, s.db, v)
		if err != nil {
			return 0, err
		}
		if sub != nil {
			return sub.ID, nil
		}
	}

	if raw := strings.TrimSpace(metadata["subscription_id"]); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err == nil && id != 0 {
			return id, nil
		}
	}

	return 0, paymentdomain.ErrUnknownTarget
}
