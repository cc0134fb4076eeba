package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// Event types delivered by the payment provider.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventInvoicePaid         = "invoice.paid"
	EventInvoiceFailed       = "invoice.payment_failed"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// ProviderEvent is the parsed webhook payload. Exactly one variant pointer is
// populated for the event types this core understands; anything else is the
// Unknown variant, which is acknowledged without a state change.
type ProviderEvent struct {
	ID      string
	Type    string
	Created time.Time

	Checkout     *CheckoutSessionData
	Invoice      *InvoiceData
	Subscription *SubscriptionData
	Unknown      bool
}

// CheckoutSessionData carries the provider's checkout confirmation. The
// metadata echoes what the gateway sent when the session was created.
type CheckoutSessionData struct {
	SessionID      string
	SubscriptionID string
	CustomerID     string
	Metadata       map[string]string
}

// InvoiceData identifies the provider subscription an invoice belongs to.
type InvoiceData struct {
	InvoiceID      string
	SubscriptionID string
	Metadata       map[string]string
}

// SubscriptionData mirrors the provider's view of a subscription object.
type SubscriptionData struct {
	SubscriptionID string
	Status         string
	Metadata       map[string]string
}

type eventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type checkoutSessionObject struct {
	ID           string            `json:"id"`
	Subscription string            `json:"subscription"`
	Customer     string            `json:"customer"`
	Metadata     map[string]string `json:"metadata"`
}

type invoiceObject struct {
	ID           string            `json:"id"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type subscriptionObject struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
}

// ParseProviderEvent decodes a raw webhook body into the tagged union.
func ParseProviderEvent(raw []byte) (*ProviderEvent, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, ErrInvalidPayload
	}
	if strings.TrimSpace(envelope.ID) == "" || strings.TrimSpace(envelope.Type) == "" {
		return nil, ErrInvalidEvent
	}

	event := &ProviderEvent{
		ID:      strings.TrimSpace(envelope.ID),
		Type:    strings.TrimSpace(envelope.Type),
		Created: time.Unix(envelope.Created, 0).UTC(),
	}

	switch event.Type {
	case EventCheckoutCompleted:
		var obj checkoutSessionObject
		if err := json.Unmarshal(envelope.Data.Object, &obj); err != nil {
			return nil, ErrInvalidPayload
		}
		event.Checkout = &CheckoutSessionData{
			SessionID:      obj.ID,
			SubscriptionID: obj.Subscription,
			CustomerID:     obj.Customer,
			Metadata:       obj.Metadata,
		}
	case EventInvoicePaid, EventInvoiceFailed:
		var obj invoiceObject
		if err := json.Unmarshal(envelope.Data.Object, &obj); err != nil {
			return nil, ErrInvalidPayload
		}
		event.Invoice = &InvoiceData{
			InvoiceID:      obj.ID,
			SubscriptionID: obj.Subscription,
			Metadata:       obj.Metadata,
		}
	case EventSubscriptionUpdated, EventSubscriptionDeleted:
		var obj subscriptionObject
		if err := json.Unmarshal(envelope.Data.Object, &obj); err != nil {
			return nil, ErrInvalidPayload
		}
		event.Subscription = &SubscriptionData{
			SubscriptionID: obj.ID,
			Status:         obj.Status,
			Metadata:       obj.Metadata,
		}
	default:
		event.Unknown = true
	}

	return event, nil
}
