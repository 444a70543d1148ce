package domain

import "errors"

var (
	ErrGatewayNotFound     = errors.New("gateway_not_found")
	ErrInvalidSignature    = errors.New("invalid_signature")
	ErrSecretNotConfigured = errors.New("webhook_secret_not_configured")
	ErrInvalidPayload      = errors.New("invalid_payload")
	ErrInvalidEvent        = errors.New("invalid_event")
	ErrInvalidConfig       = errors.New("invalid_adapter_config")
	ErrInvalidMetadata     = errors.New("invalid_payment_metadata")
	ErrEventIgnored        = errors.New("event_ignored")
	ErrFetchFailed         = errors.New("payment_fetch_failed")
)
