package domain

import "errors"

var (
	ErrInvalidProvider       = errors.New("invalid_provider")
	ErrProviderNotFound      = errors.New("provider_not_found")
	ErrInvalidConfig         = errors.New("invalid_config")
	ErrInvalidSignature      = errors.New("invalid_signature")
	ErrMalformedPayload      = errors.New("malformed_payload")
	ErrInvalidEvent          = errors.New("invalid_event")
	ErrEventAlreadyProcessed = errors.New("event_already_processed")
	ErrPaymentNotFound       = errors.New("payment_not_found")
)
