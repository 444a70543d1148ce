package mercadopago

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/docuflow/billing/internal/gateway/domain"
)

func TestVerifyNotification(t *testing.T) {
	secret := "mp_secret"
	payload := []byte(`{"type":"payment","action":"payment.updated","data":{"id":"987654"}}`)
	requestID := "req-abc"
	ts := fmt.Sprintf("%d", time.Now().Unix())

	reqHeader := http.Header{}
	reqHeader.Set("x-request-id", requestID)
	reqHeader.Set("x-signature", buildSignatureHeader(secret, "987654", requestID, ts))

	adapter := &Adapter{webhookSecret: secret}
	if err := adapter.VerifyNotification(context.Background(), payload, reqHeader); err != nil {
		t.Fatalf("expected valid signature, got error: %v", err)
	}

	reqHeader.Set("x-signature", buildSignatureHeader("wrong", "987654", requestID, ts))
	if err := adapter.VerifyNotification(context.Background(), payload, reqHeader); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestVerifyNotificationTamperedBody(t *testing.T) {
	secret := "mp_secret"
	requestID := "req-abc"
	ts := fmt.Sprintf("%d", time.Now().Unix())

	reqHeader := http.Header{}
	reqHeader.Set("x-request-id", requestID)
	reqHeader.Set("x-signature", buildSignatureHeader(secret, "987654", requestID, ts))

	// Signature was computed for payment 987654; body claims another id.
	tampered := []byte(`{"type":"payment","action":"payment.updated","data":{"id":"111111"}}`)
	adapter := &Adapter{webhookSecret: secret}
	if err := adapter.VerifyNotification(context.Background(), tampered, reqHeader); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature for tampered body, got %v", err)
	}
}

func TestVerifyNotificationMissingSecret(t *testing.T) {
	adapter := &Adapter{}
	err := adapter.VerifyNotification(context.Background(), []byte(`{}`), http.Header{})
	if !errors.Is(err, domain.ErrSecretNotConfigured) {
		t.Fatalf("expected secret not configured, got %v", err)
	}
}

func TestParseNotification(t *testing.T) {
	adapter := &Adapter{webhookSecret: "mp_secret"}

	payload := []byte(`{"type":"payment","action":"payment.updated","data":{"id":987654}}`)
	notification, err := adapter.ParseNotification(context.Background(), payload)
	if err != nil {
		t.Fatalf("parse notification: %v", err)
	}
	if notification.Type != domain.NotificationPayment {
		t.Fatalf("expected payment notification, got %s", notification.Type)
	}
	if notification.GatewayPaymentID != "987654" {
		t.Fatalf("expected payment id 987654, got %s", notification.GatewayPaymentID)
	}

	ignored := []byte(`{"type":"plan","data":{"id":"1"}}`)
	if _, err := adapter.ParseNotification(context.Background(), ignored); !errors.Is(err, domain.ErrEventIgnored) {
		t.Fatalf("expected event ignored, got %v", err)
	}
}

func TestFetchPayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/987654" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer mp_token" {
			t.Fatalf("missing bearer token")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":                 987654,
			"status":             "approved",
			"transaction_amount": 49.90,
			"currency_id":        "ars",
			"metadata": map[string]any{
				"user_id":   "1234567890",
				"kind":      "subscription",
				"plan_slug": "pro",
			},
		})
	}))
	defer server.Close()

	adapter, err := NewFactory().NewAdapter(domain.AdapterConfig{
		Gateway:       "mercadopago",
		WebhookSecret: "mp_secret",
		APIBaseURL:    server.URL,
		APIToken:      "mp_token",
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	details, err := adapter.FetchPayment(context.Background(), "987654")
	if err != nil {
		t.Fatalf("fetch payment: %v", err)
	}
	if details.Status != domain.StatusApproved {
		t.Fatalf("expected approved, got %s", details.Status)
	}
	if details.Currency != "ARS" {
		t.Fatalf("expected currency ARS, got %s", details.Currency)
	}
	if details.Kind != domain.KindSubscription || details.PlanSlug != "pro" {
		t.Fatalf("unexpected metadata mapping: kind=%s plan=%s", details.Kind, details.PlanSlug)
	}
}

func TestMapStatus(t *testing.T) {
	tests := map[string]domain.Status{
		"approved":     domain.StatusApproved,
		"pending":      domain.StatusPending,
		"in_process":   domain.StatusPending,
		"rejected":     domain.StatusFailed,
		"cancelled":    domain.StatusFailed,
		"refunded":     domain.StatusRefunded,
		"charged_back": domain.StatusRefunded,
	}
	for raw, want := range tests {
		if got := mapStatus(raw); got != want {
			t.Fatalf("mapStatus(%q) = %s, want %s", raw, got, want)
		}
	}
}

func buildSignatureHeader(secret, dataID, requestID, ts string) string {
	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", dataID, requestID, ts)
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(manifest))
	return fmt.Sprintf("ts=%s,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
