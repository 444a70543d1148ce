// Package mercadopago implements the Mercado Pago webhook adapter.
//
// Mercado Pago notifications are thin: the body only names a payment id, and
// the signature covers a manifest assembled from the body id, the
// x-request-id header and the signature timestamp. The authoritative payment
// state always comes from a follow-up GET /v1/payments/{id}.
package mercadopago

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"

	"github.com/docuflow/billing/internal/gateway/domain"
)

const defaultAPIBaseURL = "https://api.mercadopago.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Gateway() string {
	return "mercadopago"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	secret := strings.TrimSpace(cfg.WebhookSecret)
	if secret == "" && !cfg.AllowUnverified {
		return nil, domain.ErrInvalidConfig
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil

	return &Adapter{
		webhookSecret: secret,
		apiBaseURL:    baseURL,
		apiToken:      strings.TrimSpace(cfg.APIToken),
		client:        client,
	}, nil
}

type Adapter struct {
	webhookSecret string
	apiBaseURL    string
	apiToken      string
	client        *retryablehttp.Client
}

func (a *Adapter) Gateway() string {
	return "mercadopago"
}

// VerifyNotification checks the x-signature header against the manifest
// "id:<data.id>;request-id:<x-request-id>;ts:<ts>;" documented by Mercado
// Pago. Comparison is constant time.
func (a *Adapter) VerifyNotification(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return domain.ErrSecretNotConfigured
	}

	sigHeader := strings.TrimSpace(headers.Get("x-signature"))
	requestID := strings.TrimSpace(headers.Get("x-request-id"))
	if sigHeader == "" || requestID == "" {
		return domain.ErrInvalidSignature
	}

	ts, signature, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	dataID, err := payloadDataID(payload)
	if err != nil {
		return domain.ErrInvalidPayload
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", strings.ToLower(dataID), requestID, ts)
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(manifest))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return domain.ErrInvalidSignature
	}
	return nil
}

func (a *Adapter) ParseNotification(ctx context.Context, payload []byte) (*domain.Notification, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	if strings.TrimSpace(event.Type) != "payment" {
		return nil, domain.ErrEventIgnored
	}
	paymentID := event.Data.ID.String()
	if paymentID == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.Notification{
		Gateway:          "mercadopago",
		Type:             domain.NotificationPayment,
		GatewayPaymentID: paymentID,
	}, nil
}

func (a *Adapter) FetchPayment(ctx context.Context, gatewayPaymentID string) (*domain.PaymentDetails, error) {
	gatewayPaymentID = strings.TrimSpace(gatewayPaymentID)
	if gatewayPaymentID == "" {
		return nil, domain.ErrInvalidEvent
	}

	url := fmt.Sprintf("%s/v1/payments/%s", a.apiBaseURL, gatewayPaymentID)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+a.apiToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: mercadopago returned %d", domain.ErrFetchFailed, resp.StatusCode)
	}

	var payment paymentResponse
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}

	details := &domain.PaymentDetails{
		Gateway:          "mercadopago",
		GatewayPaymentID: payment.ID.String(),
		Status:           mapStatus(payment.Status),
		Amount:           decimal.NewFromFloat(payment.TransactionAmount),
		Currency:         strings.ToUpper(strings.TrimSpace(payment.CurrencyID)),
	}
	if err := domain.ApplyMetadata(details, payment.Metadata); err != nil {
		return nil, err
	}
	return details, nil
}

type webhookEvent struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

type paymentResponse struct {
	ID                json.Number    `json:"id"`
	Status            string         `json:"status"`
	TransactionAmount float64        `json:"transaction_amount"`
	CurrencyID        string         `json:"currency_id"`
	Metadata          map[string]any `json:"metadata"`
}

func mapStatus(status string) domain.Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "approved":
		return domain.StatusApproved
	case "pending", "in_process", "in_mediation", "authorized":
		return domain.StatusPending
	case "refunded", "charged_back":
		return domain.StatusRefunded
	default:
		// rejected, cancelled, expired and anything unrecognized
		return domain.StatusFailed
	}
}

// parseSignatureHeader splits "ts=...,v1=..." into its parts.
func parseSignatureHeader(header string) (string, string, error) {
	var ts, v1 string
	for _, part := range strings.Split(header, ",") {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		switch strings.TrimSpace(keyValue[0]) {
		case "ts":
			ts = strings.TrimSpace(keyValue[1])
		case "v1":
			v1 = strings.TrimSpace(keyValue[1])
		}
	}
	if ts == "" || v1 == "" {
		return "", "", domain.ErrInvalidSignature
	}
	return ts, v1, nil
}

func payloadDataID(payload []byte) (string, error) {
	var event webhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", err
	}
	id := event.Data.ID.String()
	if id == "" {
		return "", domain.ErrInvalidEvent
	}
	return id, nil
}
