package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProviderEventCheckout(t *testing.T) {
	raw := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"created": 1709294400,
		"data": {"object": {
			"id": "cs_1",
			"subscription": "sub_ext_1",
			"customer": "cus_ext_1",
			"metadata": {"company_id": "42", "subscription_id": "7"}
		}}
	}`)

	event, err := ParseProviderEvent(raw)
	require.NoError(t, err)

	assert.Equal(t, "evt_1", event.ID)
	assert.Equal(t, EventCheckoutCompleted, event.Type)
	assert.Equal(t, time.Unix(1709294400, 0).UTC(), event.Created)

	require.NotNil(t, event.Checkout)
	assert.Nil(t, event.Invoice)
	assert.Nil(t, event.Subscription)
	assert.False(t, event.Unknown)

	assert.Equal(t, "cs_1", event.Checkout.SessionID)
	assert.Equal(t, "sub_ext_1", event.Checkout.SubscriptionID)
	assert.Equal(t, "cus_ext_1", event.Checkout.CustomerID)
	assert.Equal(t, "42", event.Checkout.Metadata["company_id"])
}

func TestParseProviderEventInvoiceVariants(t *testing.T) {
	for _, eventType := range []string{EventInvoicePaid, EventInvoiceFailed} {
		raw := []byte(`{"id":"evt_2","type":"` + eventType + `","created":1,"data":{"object":{"id":"in_1","subscription":"sub_ext_1"}}}`)

		event, err := ParseProviderEvent(raw)
		require.NoError(t, err, eventType)

		require.NotNil(t, event.Invoice, eventType)
		assert.Nil(t, event.Checkout)
		assert.Equal(t, "in_1", event.Invoice.InvoiceID)
		assert.Equal(t, "sub_ext_1", event.Invoice.SubscriptionID)
	}
}

func TestParseProviderEventSubscriptionVariant(t *testing.T) {
	raw := []byte(`{"id":"evt_3","type":"customer.subscription.deleted","created":1,"data":{"object":{"id":"sub_ext_1","status":"canceled"}}}`)

	event, err := ParseProviderEvent(raw)
	require.NoError(t, err)

	require.NotNil(t, event.Subscription)
	assert.Equal(t, "sub_ext_1", event.Subscription.SubscriptionID)
	assert.Equal(t, "canceled", event.Subscription.Status)
}

func TestParseProviderEventUnknownType(t *testing.T) {
	raw := []byte(`{"id":"evt_4","type":"customer.updated","created":1,"data":{"object":{}}}`)

	event, err := ParseProviderEvent(raw)
	require.NoError(t, err)

	assert.True(t, event.Unknown)
	assert.Nil(t, event.Checkout)
	assert.Nil(t, event.Invoice)
	assert.Nil(t, event.Subscription)
}

func TestParseProviderEventRejectsGarbage(t *testing.T) {
	_, err := ParseProviderEvent([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = ParseProviderEvent([]byte(`{"type":"invoice.paid"}`))
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = ParseProviderEvent([]byte(`{"id":"evt_5","created":1}`))
	assert.ErrorIs(t, err, ErrInvalidEvent)
}
