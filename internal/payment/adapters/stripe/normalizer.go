package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	eventdomain "github.com/smallbiznis/kelas/internal/billingevent/domain"
	paymentdomain "github.com/smallbiznis/kelas/internal/payment/domain"
	stripeapi "github.com/stripe/stripe-go/v79"
)

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripePaymentIntent struct {
	ID               string          `json:"id"`
	Amount           int64           `json:"amount"`
	AmountReceived   int64           `json:"amount_received"`
	Currency         string          `json:"currency"`
	Customer         json.RawMessage `json:"customer"`
	Metadata         map[string]any  `json:"metadata"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type stripeCharge struct {
	ID             string          `json:"id"`
	Amount         int64           `json:"amount"`
	AmountRefunded int64           `json:"amount_refunded"`
	Currency       string          `json:"currency"`
	PaymentIntent  json.RawMessage `json:"payment_intent"`
}

type stripeSubscription struct {
	ID               string          `json:"id"`
	Customer         json.RawMessage `json:"customer"`
	Status           string          `json:"status"`
	CurrentPeriodEnd int64           `json:"current_period_end"`
	Metadata         map[string]any  `json:"metadata"`
	Items            struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// Parse normalizes a verified payload. Unmodeled types become Ignored; a
// recognized type missing required fields fails with ErrMalformedPayload.
func (a *Adapter) Parse(ctx context.Context, payload []byte) (*eventdomain.Envelope, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrMalformedPayload, err)
	}
	if strings.TrimSpace(event.ID) == "" || strings.TrimSpace(event.Type) == "" {
		return nil, fmt.Errorf("%w: missing event id or type", paymentdomain.ErrMalformedPayload)
	}

	env := &eventdomain.Envelope{
		Provider:        providerName,
		ProviderEventID: strings.TrimSpace(event.ID),
		ProviderType:    strings.TrimSpace(event.Type),
		OccurredAt:      optionalTimestamp(event.Created),
	}

	var (
		parsed eventdomain.Event
		err    error
	)
	switch stripeapi.EventType(env.ProviderType) {
	case stripeapi.EventTypePaymentIntentSucceeded:
		parsed, err = parsePaymentSucceeded(event)
	case stripeapi.EventTypePaymentIntentPaymentFailed:
		parsed, err = parsePaymentFailed(event)
	case stripeapi.EventTypeChargeRefunded:
		parsed, err = parseChargeRefunded(event)
	case stripeapi.EventTypeCustomerSubscriptionCreated,
		stripeapi.EventTypeCustomerSubscriptionUpdated,
		stripeapi.EventTypeCustomerSubscriptionDeleted:
		parsed, err = a.parseSubscription(event)
	default:
		parsed = eventdomain.Ignored{Type: env.ProviderType}
	}
	if err != nil {
		return nil, err
	}

	env.Event = parsed
	return env, nil
}

func parsePaymentSucceeded(event stripeEvent) (eventdomain.Event, error) {
	intent, err := decodePaymentIntent(event)
	if err != nil {
		return nil, err
	}
	amount := intent.AmountReceived
	if amount <= 0 {
		amount = intent.Amount
	}
	if amount <= 0 {
		return nil, malformed(event, "amount")
	}
	currency := strings.ToUpper(strings.TrimSpace(intent.Currency))
	if currency == "" {
		return nil, malformed(event, "currency")
	}

	return eventdomain.PaymentSucceeded{
		PaymentRef:  intent.ID,
		Amount:      amount,
		Currency:    currency,
		CustomerRef: expandableID(intent.Customer),
		UserSubject: readMetadataValue(intent.Metadata, "user_id"),
		Courses:     ParseCourses(intent.Metadata["courses"]),
		Metadata:    stringifyMetadata(intent.Metadata),
	}, nil
}

func parsePaymentFailed(event stripeEvent) (eventdomain.Event, error) {
	intent, err := decodePaymentIntent(event)
	if err != nil {
		return nil, err
	}
	reason := ""
	if intent.LastPaymentError != nil {
		reason = strings.TrimSpace(intent.LastPaymentError.Message)
		if reason == "" {
			reason = strings.TrimSpace(intent.LastPaymentError.Code)
		}
	}
	return eventdomain.PaymentFailed{
		PaymentRef:  intent.ID,
		Amount:      intent.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(intent.Currency)),
		CustomerRef: expandableID(intent.Customer),
		UserSubject: readMetadataValue(intent.Metadata, "user_id"),
		Reason:      reason,
		Metadata:    stringifyMetadata(intent.Metadata),
	}, nil
}

func parseChargeRefunded(event stripeEvent) (eventdomain.Event, error) {
	var charge stripeCharge
	if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrMalformedPayload, err)
	}
	paymentRef := expandableID(charge.PaymentIntent)
	if paymentRef == "" {
		return nil, malformed(event, "payment_intent")
	}
	amount := charge.AmountRefunded
	if amount <= 0 {
		amount = charge.Amount
	}
	return eventdomain.PaymentRefunded{
		PaymentRef:     paymentRef,
		AmountRefunded: amount,
		Currency:       strings.ToUpper(strings.TrimSpace(charge.Currency)),
	}, nil
}

func (a *Adapter) parseSubscription(event stripeEvent) (eventdomain.Event, error) {
	var sub stripeSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return nil, fmt.Errorf("%w: %v", paymentdomain.ErrMalformedPayload, err)
	}
	sub.ID = strings.TrimSpace(sub.ID)
	if sub.ID == "" {
		return nil, malformed(event, "id")
	}
	customerRef := expandableID(sub.Customer)
	if customerRef == "" {
		return nil, malformed(event, "customer")
	}
	userSubject := readMetadataValue(sub.Metadata, "user_id")

	if stripeapi.EventType(event.Type) == stripeapi.EventTypeCustomerSubscriptionDeleted {
		return eventdomain.SubscriptionCanceled{
			CustomerRef:    customerRef,
			SubscriptionID: sub.ID,
			UserSubject:    userSubject,
		}, nil
	}

	switch stripeapi.SubscriptionStatus(strings.TrimSpace(sub.Status)) {
	case stripeapi.SubscriptionStatusActive, stripeapi.SubscriptionStatusTrialing:
		plan := a.resolvePlan(sub)
		if plan == "" {
			return nil, malformed(event, "plan")
		}
		return eventdomain.SubscriptionUpdated{
			CustomerRef:    customerRef,
			SubscriptionID: sub.ID,
			Status:         eventdomain.SubscriptionStatusActive,
			Plan:           plan,
			PeriodEnd:      optionalTimestamp(sub.CurrentPeriodEnd),
			UserSubject:    userSubject,
		}, nil
	case stripeapi.SubscriptionStatusPastDue, stripeapi.SubscriptionStatusUnpaid:
		return eventdomain.SubscriptionUpdated{
			CustomerRef:    customerRef,
			SubscriptionID: sub.ID,
			Status:         eventdomain.SubscriptionStatusPastDue,
			Plan:           a.resolvePlan(sub),
			PeriodEnd:      optionalTimestamp(sub.CurrentPeriodEnd),
			UserSubject:    userSubject,
		}, nil
	case stripeapi.SubscriptionStatusCanceled, stripeapi.SubscriptionStatusIncompleteExpired:
		return eventdomain.SubscriptionCanceled{
			CustomerRef:    customerRef,
			SubscriptionID: sub.ID,
			UserSubject:    userSubject,
		}, nil
	case "":
		return nil, malformed(event, "status")
	default:
		// incomplete and paused carry no local transition
		return eventdomain.Ignored{Type: event.Type + ":" + sub.Status}, nil
	}
}

// resolvePlan prefers metadata.plan and falls back to the price catalog.
func (a *Adapter) resolvePlan(sub stripeSubscription) string {
	if plan := strings.ToUpper(readMetadataValue(sub.Metadata, "plan")); plan != "" {
		return plan
	}
	catalog := a.plans.Get()
	for _, item := range sub.Items.Data {
		if tier, ok := catalog.TierForPrice(item.Price.ID); ok {
			return tier
		}
	}
	return ""
}

func decodePaymentIntent(event stripeEvent) (stripePaymentIntent, error) {
	var intent stripePaymentIntent
	if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
		return intent, fmt.Errorf("%w: %v", paymentdomain.ErrMalformedPayload, err)
	}
	intent.ID = strings.TrimSpace(intent.ID)
	if intent.ID == "" {
		return intent, malformed(event, "id")
	}
	return intent, nil
}

func malformed(event stripeEvent, field string) error {
	return fmt.Errorf("%w: %s missing %s", paymentdomain.ErrMalformedPayload, event.Type, field)
}

// expandableID reads a field Stripe sends either as an id string or an expanded object.
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return strings.TrimSpace(id)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strings.TrimSpace(obj.ID)
	}
	return ""
}

func optionalTimestamp(value int64) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	return time.Unix(value, 0).UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	}
	return ""
}

func stringifyMetadata(metadata map[string]any) map[string]string {
	out := make(map[string]string, len(metadata))
	for key, value := range metadata {
		switch cast := value.(type) {
		case string:
			out[key] = cast
		case nil:
		default:
			encoded, err := json.Marshal(cast)
			if err != nil {
				continue
			}
			out[key] = string(encoded)
		}
	}
	return out
}

// ParseCourses accepts a JSON array, a JSON-encoded array string, or a
// comma-separated list. Blank and repeated ids are dropped, order kept.
func ParseCourses(value any) []string {
	var raw []string
	switch cast := value.(type) {
	case []any:
		for _, item := range cast {
			switch v := item.(type) {
			case string:
				raw = append(raw, v)
			case float64:
				raw = append(raw, strconv.FormatInt(int64(v), 10))
			}
		}
	case []string:
		raw = cast
	case string:
		trimmed := strings.TrimSpace(cast)
		if strings.HasPrefix(trimmed, "[") {
			var decoded []any
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return ParseCourses(decoded)
			}
		}
		raw = strings.Split(trimmed, ",")
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
