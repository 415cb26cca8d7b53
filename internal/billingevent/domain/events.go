// Package domain defines the closed set of billing events produced from
// provider webhook payloads. Nothing past the normalizer sees provider shapes.
package domain

import "time"

type Kind string

const (
	KindPaymentSucceeded     Kind = "payment.succeeded"
	KindPaymentFailed        Kind = "payment.failed"
	KindPaymentRefunded      Kind = "payment.refunded"
	KindSubscriptionUpdated  Kind = "subscription.updated"
	KindSubscriptionCanceled Kind = "subscription.canceled"
	KindIgnored              Kind = "ignored"
)

// Event is implemented only by the variants in this package.
type Event interface {
	Kind() Kind
	sealed()
}

// Envelope carries a normalized event with its delivery identity.
type Envelope struct {
	Provider        string
	ProviderEventID string
	ProviderType    string
	OccurredAt      time.Time
	Event           Event
}

func (e Envelope) Ignored() bool {
	if e.Event == nil {
		return true
	}
	return e.Event.Kind() == KindIgnored
}

type PaymentSucceeded struct {
	PaymentRef  string
	Amount      int64
	Currency    string
	CustomerRef string
	// UserSubject is the identity-provider subject from metadata user_id.
	UserSubject string
	Courses     []string
	Metadata    map[string]string
}

type PaymentFailed struct {
	PaymentRef  string
	Amount      int64
	Currency    string
	CustomerRef string
	UserSubject string
	Reason      string
	Metadata    map[string]string
}

type PaymentRefunded struct {
	PaymentRef     string
	AmountRefunded int64
	Currency       string
}

type SubscriptionStatus string

const (
	SubscriptionStatusActive  SubscriptionStatus = "active"
	SubscriptionStatusPastDue SubscriptionStatus = "past_due"
)

type SubscriptionUpdated struct {
	CustomerRef    string
	SubscriptionID string
	Status         SubscriptionStatus
	// Plan is the tier name, empty when the provider did not carry one.
	Plan        string
	PeriodEnd   time.Time
	UserSubject string
}

type SubscriptionCanceled struct {
	CustomerRef    string
	SubscriptionID string
	UserSubject    string
}

// Ignored stands in for provider event types that are not modeled.
type Ignored struct {
	Type string
}

func (PaymentSucceeded) Kind() Kind     { return KindPaymentSucceeded }
func (PaymentFailed) Kind() Kind        { return KindPaymentFailed }
func (PaymentRefunded) Kind() Kind      { return KindPaymentRefunded }
func (SubscriptionUpdated) Kind() Kind  { return KindSubscriptionUpdated }
func (SubscriptionCanceled) Kind() Kind { return KindSubscriptionCanceled }
func (Ignored) Kind() Kind              { return KindIgnored }

func (PaymentSucceeded) sealed()     {}
func (PaymentFailed) sealed()        {}
func (PaymentRefunded) sealed()      {}
func (SubscriptionUpdated) sealed()  {}
func (SubscriptionCanceled) sealed() {}
func (Ignored) sealed()              {}
