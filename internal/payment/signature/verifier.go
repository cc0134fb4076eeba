// Package signature authenticates inbound webhook payloads.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/fabriko/fabriko/internal/config"
)

// Verifier checks the provider's HMAC-SHA256 signature over the exact raw
// request bytes. It fails closed: without a configured secret every payload
// is rejected.
type Verifier struct {
	secret []byte
}

func New(cfg config.BillingConfig) *Verifier {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" {
		return &Verifier{}
	}
	return &Verifier{secret: []byte(secret)}
}

// Verify reports whether signatureHeader matches the HMAC of rawBody. The
// comparison is constant time.
func (v *Verifier) Verify(rawBody []byte, signatureHeader string) bool {
	if len(v.secret) == 0 {
		return false
	}

	provided := strings.TrimSpace(signatureHeader)
	provided = strings.TrimPrefix(provided, "sha256=")
	if provided == "" {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	_, _ = mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(strings.ToLower(provided)), []byte(expected))
}
