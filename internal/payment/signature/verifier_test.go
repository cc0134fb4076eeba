package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/fabriko/fabriko/internal/config"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerify(t *testing.T) {
	secret := "whsec_test_secret"
	v := New(config.BillingConfig{WebhookSecret: secret})
	body := []byte(`{"id":"evt_1","type":"invoice.paid"}`)

	if !v.Verify(body, sign(secret, body)) {
		t.Fatalf("valid signature rejected")
	}
	if !v.Verify(body, "sha256="+sign(secret, body)) {
		t.Fatalf("prefixed signature rejected")
	}
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	secret := "whsec_test_secret"
	v := New(config.BillingConfig{WebhookSecret: secret})
	body := []byte(`{"id":"evt_1"}`)
	signature := sign(secret, body)

	tampered := []byte(`{"id":"evt_2"}`)
	if v.Verify(tampered, signature) {
		t.Fatalf("tampered body accepted")
	}
}

func TestVerifyRejectsWrongSignature(t *testing.T) {
	v := New(config.BillingConfig{WebhookSecret: "whsec_test_secret"})
	body := []byte(`{"id":"evt_1"}`)

	if v.Verify(body, sign("other_secret", body)) {
		t.Fatalf("signature from wrong secret accepted")
	}
	if v.Verify(body, "") {
		t.Fatalf("empty signature accepted")
	}
}

func TestVerifyFailsClosedWithoutSecret(t *testing.T) {
	v := New(config.BillingConfig{})
	body := []byte(`{"id":"evt_1"}`)

	if v.Verify(body, sign("", body)) {
		t.Fatalf("verification must fail when no secret is configured")
	}
}
