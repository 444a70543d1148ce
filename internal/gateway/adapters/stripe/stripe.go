// Package stripe implements the Stripe webhook adapter.
package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"

	"github.com/docuflow/billing/internal/gateway/domain"
)

const defaultAPIBaseURL = "https://api.stripe.com"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Gateway() string {
	return "stripe"
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
	return "stripe"
}

// VerifyNotification checks the Stripe-Signature header: HMAC-SHA256 of
// "<t>.<body>" with the endpoint secret, compared in constant time against
// every v1 candidate in the header.
func (a *Adapter) VerifyNotification(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return domain.ErrSecretNotConfigured
	}

	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return domain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return domain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}
	return domain.ErrInvalidSignature
}

func (a *Adapter) ParseNotification(ctx context.Context, payload []byte) (*domain.Notification, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, domain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "payment_intent.succeeded", "payment_intent.processing", "payment_intent.payment_failed", "charge.refunded":
		return a.parsePayment(event)
	case "customer.subscription.deleted":
		return a.parseSubscription(event, domain.NotificationSubscriptionCanceled)
	case "invoice.payment_failed":
		return a.parseSubscription(event, domain.NotificationSubscriptionPastDue)
	default:
		return nil, domain.ErrEventIgnored
	}
}

func (a *Adapter) parsePayment(event stripeEvent) (*domain.Notification, error) {
	var object stripePaymentObject
	if err := json.Unmarshal(event.Data.Object, &object); err != nil {
		return nil, domain.ErrInvalidPayload
	}

	// charge.refunded carries the charge, not the intent; reconcile against
	// the owning payment intent so the record key stays stable.
	paymentID := strings.TrimSpace(object.ID)
	if strings.HasPrefix(paymentID, "ch_") && strings.TrimSpace(object.PaymentIntent) != "" {
		paymentID = strings.TrimSpace(object.PaymentIntent)
	}
	if paymentID == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.Notification{
		Gateway:           "stripe",
		Type:              domain.NotificationPayment,
		GatewayPaymentID:  paymentID,
		GatewayCustomerID: strings.TrimSpace(object.Customer),
	}, nil
}

func (a *Adapter) parseSubscription(event stripeEvent, notificationType domain.NotificationType) (*domain.Notification, error) {
	var object stripePaymentObject
	if err := json.Unmarshal(event.Data.Object, &object); err != nil {
		return nil, domain.ErrInvalidPayload
	}
	customerID := strings.TrimSpace(object.Customer)
	if customerID == "" {
		return nil, domain.ErrInvalidEvent
	}

	return &domain.Notification{
		Gateway:           "stripe",
		Type:              notificationType,
		GatewayCustomerID: customerID,
	}, nil
}

func (a *Adapter) FetchPayment(ctx context.Context, gatewayPaymentID string) (*domain.PaymentDetails, error) {
	gatewayPaymentID = strings.TrimSpace(gatewayPaymentID)
	if gatewayPaymentID == "" {
		return nil, domain.ErrInvalidEvent
	}

	url := fmt.Sprintf("%s/v1/payment_intents/%s", a.apiBaseURL, gatewayPaymentID)
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
		return nil, fmt.Errorf("%w: stripe returned %d", domain.ErrFetchFailed, resp.StatusCode)
	}

	var intent paymentIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&intent); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err)
	}

	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}

	details := &domain.PaymentDetails{
		Gateway:           "stripe",
		GatewayPaymentID:  strings.TrimSpace(intent.ID),
		Status:            mapStatus(intent),
		Amount:            decimal.New(amount, -2),
		Currency:          strings.ToUpper(strings.TrimSpace(intent.Currency)),
		GatewayCustomerID: strings.TrimSpace(intent.Customer),
	}
	if err := domain.ApplyMetadata(details, intent.Metadata); err != nil {
		return nil, err
	}
	return details, nil
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type stripePaymentObject struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	PaymentIntent string `json:"payment_intent"`
}

type paymentIntentResponse struct {
	ID             string         `json:"id"`
	Status         string         `json:"status"`
	Amount         int64          `json:"amount"`
	AmountReceived int64          `json:"amount_received"`
	Currency       string         `json:"currency"`
	Customer       string         `json:"customer"`
	Metadata       map[string]any `json:"metadata"`
	LatestCharge   struct {
		Refunded       bool  `json:"refunded"`
		AmountRefunded int64 `json:"amount_refunded"`
	} `json:"latest_charge"`
}

func mapStatus(intent paymentIntentResponse) domain.Status {
	if intent.LatestCharge.Refunded || intent.LatestCharge.AmountRefunded > 0 {
		return domain.StatusRefunded
	}
	switch strings.ToLower(strings.TrimSpace(intent.Status)) {
	case "succeeded":
		return domain.StatusApproved
	case "processing", "requires_action", "requires_confirmation", "requires_capture":
		return domain.StatusPending
	default:
		// canceled, requires_payment_method after a failed attempt
		return domain.StatusFailed
	}
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}
