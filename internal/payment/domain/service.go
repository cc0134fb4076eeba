package domain

import "context"

// WebhookService accepts one provider delivery: verify, parse, dedupe,
// dispatch, record the outcome. Errors map onto the endpoint's responses:
// ErrInvalidSignature rejects without a ledger entry, ErrInvalidPayload and
// ErrInvalidEvent reject as malformed, anything else is a processing failure
// the provider should retry.
type WebhookService interface {
	Handle(ctx context.Context, rawBody []byte, signatureHeader string) error
}
