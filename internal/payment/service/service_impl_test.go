package service_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kelas/internal/clock"
	"github.com/smallbiznis/kelas/internal/config"
	"github.com/smallbiznis/kelas/internal/events"
	"github.com/smallbiznis/kelas/internal/payment/adapters"
	"github.com/smallbiznis/kelas/internal/payment/adapters/stripe"
	paymentdomain "github.com/smallbiznis/kelas/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/kelas/internal/payment/repository"
	paymentservice "github.com/smallbiznis/kelas/internal/payment/service"
	paymentwebhook "github.com/smallbiznis/kelas/internal/payment/webhook"
	registrationrepo "github.com/smallbiznis/kelas/internal/registration/repository"
	registrationservice "github.com/smallbiznis/kelas/internal/registration/service"
	subscriptiondomain "github.com/smallbiznis/kelas/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/kelas/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/kelas/internal/subscription/service"
	"github.com/smallbiznis/kelas/internal/testdb"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const stripeSecret = "whsec_test"

type harness struct {
	db      *gorm.DB
	node    *snowflake.Node
	users   subscriptiondomain.Service
	webhook paymentdomain.Service
	pub     *events.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := testdb.Open(t)
	node := testdb.Node(t)
	clk := clock.Provide()
	pub := events.NewRecorder()

	users := subscriptionservice.NewService(subscriptionservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      subscriptionrepo.Provide(),
		Clock:     clk,
		Publisher: pub,
	})
	registrations := registrationservice.NewService(registrationservice.Params{
		DB:        db,
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      registrationrepo.Provide(),
		Clock:     clk,
		Publisher: pub,
	})
	paymentSvc := paymentservice.NewService(paymentservice.Params{
		DB:            db,
		Log:           zap.NewNop(),
		GenID:         node,
		Repo:          paymentrepo.Provide(),
		Users:         users,
		Registrations: registrations,
		Clock:         clk,
	})

	adapter, err := stripe.New(config.Config{Stripe: config.StripeConfig{WebhookSecret: stripeSecret}}, config.NewStaticPlanCatalog(nil))
	if err != nil {
		t.Fatalf("stripe adapter: %v", err)
	}
	webhookSvc := paymentwebhook.NewService(paymentwebhook.Params{
		Log:        zap.NewNop(),
		PaymentSvc: paymentSvc,
		Adapters:   adapters.NewRegistry(adapter),
	})

	return &harness{db: db, node: node, users: users, webhook: webhookSvc, pub: pub}
}

func (h *harness) deliver(t *testing.T, secret string, payload []byte) (paymentdomain.Outcome, error) {
	t.Helper()
	header := http.Header{}
	header.Set("Stripe-Signature", buildStripeSignatureHeader(secret, payload, time.Now().Unix()))
	return h.webhook.IngestWebhook(context.Background(), "stripe", payload, header)
}

func (h *harness) seedDiscount(t *testing.T, minCourses int, pct float64) {
	t.Helper()
	err := h.db.Exec(
		`INSERT INTO discount_rules (id, min_courses, discount_percent, is_active, created_at) VALUES (?, ?, ?, ?, ?)`,
		h.node.Generate(), minCourses, pct, true, time.Now().UTC(),
	).Error
	if err != nil {
		t.Fatalf("seed discount rule: %v", err)
	}
}

func paymentSucceededPayload(eventID, paymentRef string, amount int64, courses string) []byte {
	now := time.Now().Unix()
	return []byte(fmt.Sprintf(`{"id":%q,"type":"payment_intent.succeeded","created":%d,"data":{"object":{"id":%q,"amount":%d,"amount_received":%d,"currency":"usd","customer":"cus_1","metadata":{"user_id":"user_1","courses":%q}}}}`,
		eventID, now, paymentRef, amount, amount, courses))
}

func paymentFailedPayload(eventID, paymentRef string) []byte {
	now := time.Now().Unix()
	return []byte(fmt.Sprintf(`{"id":%q,"type":"payment_intent.payment_failed","created":%d,"data":{"object":{"id":%q,"amount":10000,"currency":"usd","customer":"cus_1","metadata":{"user_id":"user_1"},"last_payment_error":{"code":"card_declined","message":"Your card was declined."}}}}`,
		eventID, now, paymentRef))
}

func refundPayload(eventID, paymentRef string) []byte {
	now := time.Now().Unix()
	return []byte(fmt.Sprintf(`{"id":%q,"type":"charge.refunded","created":%d,"data":{"object":{"id":"ch_1","amount":10000,"amount_refunded":10000,"currency":"usd","payment_intent":%q}}}`,
		eventID, now, paymentRef))
}

func subscriptionPayload(eventID, eventType, status, metadata string) []byte {
	now := time.Now().Unix()
	return []byte(fmt.Sprintf(`{"id":%q,"type":%q,"created":%d,"data":{"object":{"id":"sub_1","customer":"cus_1","status":%q,"current_period_end":%d,"metadata":%s}}}`,
		eventID, eventType, now, status, now+30*24*3600, metadata))
}

func TestIngestWebhookReconcilesBundle(t *testing.T) {
	h := newHarness(t)
	h.seedDiscount(t, 2, 10)

	outcome, err := h.deliver(t, stripeSecret, paymentSucceededPayload("evt_1", "pi_123", 10000, `["c1","c2"]`))
	if err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}
	if outcome != paymentdomain.OutcomeProcessed {
		t.Fatalf("expected outcome processed, got %s", outcome)
	}

	assertCount(t, h.db, "SELECT COUNT(1) FROM payment_events WHERE processed_at IS NOT NULL", 1)
	assertCount(t, h.db, "SELECT COUNT(1) FROM payments WHERE provider_payment_id = 'pi_123' AND status = 'SUCCEEDED'", 1)
	assertCount(t, h.db, "SELECT COUNT(1) FROM registrations WHERE status = 'CONFIRMED'", 2)
	assertCount(t, h.db, "SELECT COALESCE(SUM(amount), 0) FROM registrations", 9000)
	assertCount(t, h.db, "SELECT COUNT(DISTINCT course_id) FROM registrations WHERE course_id IN ('c1','c2')", 2)

	if got := len(h.pub.ByRoutingKey(events.RoutingRegistrationConfirmed)); got != 1 {
		t.Fatalf("expected 1 registration.confirmed message, got %d", got)
	}
}

func TestIngestWebhookDuplicateDelivery(t *testing.T) {
	h := newHarness(t)
	payload := paymentSucceededPayload("evt_1", "pi_123", 10000, "c1,c2")

	for i, want := range []paymentdomain.Outcome{
		paymentdomain.OutcomeProcessed,
		paymentdomain.OutcomeDuplicate,
		paymentdomain.OutcomeDuplicate,
	} {
		outcome, err := h.deliver(t, stripeSecret, payload)
		if err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
		if outcome != want {
			t.Fatalf("delivery %d: expected %s, got %s", i, want, outcome)
		}
	}

	assertCount(t, h.db, "SELECT COUNT(1) FROM payment_events", 1)
	assertCount(t, h.db, "SELECT COUNT(1) FROM registrations", 2)
}

func TestIngestWebhookSameIntentDifferentEvents(t *testing.T) {
	h := newHarness(t)

	for _, eventID := range []string{"evt_1", "evt_2"} {
		if _, err := h.deliver(t, stripeSecret, paymentSucceededPayload(eventID, "pi_123", 10000, `["c1","c2"]`)); err != nil {
			t.Fatalf("deliver %s: %v", eventID, err)
		}
	}

	assertCount(t, h.db, "SELECT COUNT(1) FROM payment_events", 2)
	assertCount(t, h.db, "SELECT COUNT(1) FROM registrations", 2)
}

func TestIngestWebhookConcurrentDeliveries(t *testing.T) {
	h := newHarness(t)
	payload := paymentSucceededPayload("evt_1", "pi_123", 10000, `["c1","c2"]`)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			header := http.Header{}
			header.Set("Stripe-Signature", buildStripeSignatureHeader(stripeSecret, payload, time.Now().Unix()))
			_, err := h.webhook.IngestWebhook(context.Background(), "stripe", payload, header)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent delivery: %v", err)
		}
	}
	assertCount(t, h.db, "SELECT COUNT(1) FROM registrations", 2)
	assertCount(t, h.db, "SELECT COUNT(1) FROM payments", 1)
	assertCount(t, h.db, "SELECT COUNT(1) FROM users", 1)
}

func TestIngestWebhookInvalidSignature(t *testing.T) {
	h := newHarness(t)

	outcome, err := h.deliver(t, "whsec_wrong", paymentSucceededPayload("evt_1", "pi_123", 10000, `["c1"]`))
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
	if outcome != paymentdomain.OutcomeRejected {
		t.Fatalf("expected rejected, got %s", outcome)
	}

	_, err = h.webhook.IngestWebhook(context.Background(), "stripe", paymentSucceededPayload("evt_2", "pi_123", 10000, `["c1"]`), http.Header{})
	if !errors.Is(err, paymentdomain.ErrInvalidSignature) {
		t.Fatalf("expected invalid signature without header, got %v", err)
	}

	assertCount(t, h.db, "SELECT COUNT(1) FROM payment_events", 0)
	assertCount(t, h.db, "SELECT COUNT(1) FROM payments", 0)
	assertCount(t, h.db, "SELECT COUNT(1) FROM registrations", 0)
	assertCount(t, h.db, "SELECT COUNT(1) FROM users", 0)
}

func TestIngestWebhookMalformedRecognizedEvent(t *testing.T) {
	h := newHarness(t)
	payload := []byte(fmt.Sprintf(`{"id":"evt_1","type":"payment_intent.succeeded","created":%d,"data":{"object":{"id":"pi_1","currency":"usd"}}}`, time.Now().Unix()))

	outcome, err := h.deliver(t, stripeSecret, payload)
	if !errors.Is(err, paymentdomain.ErrMalformedPayload) {
		t.Fatalf("expected malformed payload, got %v", err)
	}
	if outcome != paymentdomain.OutcomeRejected {
		t.Fatalf("expected rejected, got %s", outcome)
	}
	assertCount(t, h.db, "SELECT COUNT(1) FROM payment_events", 0)
}

func TestIngestWebhookIgnoresUnknownType(t *testing.T) {
	h := newHarness(t)
	payload := []byte(fmt.Sprintf(`{"id":"evt_1","type":"invoice.finalized","created":%d,"data":{"object":{"id":"in_1"}}}`, time.Now().Unix()))

	outcome, err := h.deliver(t, stripeSecret, payload)
	if err != nil {
		t.Fatalf("ingest webhook: %v", err)
	}
	if outcome != paymentdomain.OutcomeIgnored {
		t.Fatalf("expected ignored, got %s", outcome)
	}
	assertCount(t, h.db, "SELECT COUNT(1) FROM payment_events", 0)
}

func TestIngestWebhookUnknownProvider(t *testing.T) {
	h := newHarness(t)
	_, err := h.webhook.IngestWebhook(context.Background(), "paypal", []byte(`{}`), http.Header{})
	if !errors.Is(err, paymentdomain.ErrProviderNotFound) {
		t.Fatalf("expected provider not found, got %v", err)
	}
}

func TestIngestWebhookFailedThenSucceeded(t *testing.T) {
	h := newHarness(t)

	if _, err := h.deliver(t, stripeSecret, paymentFailedPayload("evt_f", "pi_123")); err != nil {
		t.Fatalf("deliver failed payment: %v", err)
	}
	assertCount(t, h.db, "SELECT COUNT(1) FROM payments WHERE status = 'FAILED' AND failure_reason = 'Your card was declined.'", 1)
	assertCount(t, h.db, "SELECT COUNT(1) FROM registrations", 0)

	if _, err := h.deliver(t, stripeSecret, paymentSucceededPayload("evt_s", "pi_123", 10000, `["c1"]`)); err != nil {
		t.Fatalf("deliver succeeded payment: %v", err)
	}
	assertCount(t, h.db, "SELECT COUNT(1) FROM payments WHERE status = 'SUCCEEDED'", 1)
	assertCount(t, h.db, "SELECT COUNT(1) FROM registrations", 1)

	// a late failure never downgrades a succeeded payment
	if _, err := h.deliver(t, stripeSecret, paymentFailedPayload("evt_f2", "pi_123")); err != nil {
		t.Fatalf("deliver late failure: %v", err)
	}
	assertCount(t, h.db, "SELECT COUNT(1) FROM payments WHERE status = 'SUCCEEDED'", 1)
}

func TestIngestWebhookRefund(t *testing.T) {
	h := newHarness(t)

	if _, err := h.deliver(t, stripeSecret, paymentSucceededPayload("evt_1", "pi_123", 10000, `["c1","c2"]`)); err != nil {
		t.Fatalf("deliver payment: %v", err)
	}
	if _, err := h.deliver(t, stripeSecret, refundPayload("evt_r", "pi_123")); err != nil {
		t.Fatalf("deliver refund: %v", err)
	}

	assertCount(t, h.db, "SELECT COUNT(1) FROM payments WHERE status = 'REFUNDED'", 1)
	assertCount(t, h.db, "SELECT COUNT(1) FROM registrations WHERE status = 'CONFIRMED'", 2)
}

func TestIngestWebhookRefundForUnknownPaymentIsRetried(t *testing.T) {
	h := newHarness(t)

	outcome, err := h.deliver(t, stripeSecret, refundPayload("evt_r", "pi_missing"))
	if !errors.Is(err, paymentdomain.ErrPaymentNotFound) {
		t.Fatalf("expected payment not found, got %v", err)
	}
	if outcome != paymentdomain.OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}
	assertCount(t, h.db, "SELECT COUNT(1) FROM payment_events WHERE processed_at IS NULL", 1)
}

func TestIngestWebhookSubscriptionLifecycle(t *testing.T) {
	h := newHarness(t)

	outcome, err := h.deliver(t, stripeSecret, subscriptionPayload("evt_s1", "customer.subscription.created", "active", `{"user_id":"user_1","plan":"premium"}`))
	if err != nil {
		t.Fatalf("deliver subscription created: %v", err)
	}
	if outcome != paymentdomain.OutcomeProcessed {
		t.Fatalf("expected processed, got %s", outcome)
	}

	snap, err := h.users.Current(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("current subscription: %v", err)
	}
	if snap.Plan != subscriptiondomain.PlanPremium || snap.SubscriptionStatus == nil || *snap.SubscriptionStatus != subscriptiondomain.StatusActive {
		t.Fatalf("expected ACTIVE PREMIUM, got %+v", snap)
	}
	if snap.StripeCustomerID == nil || *snap.StripeCustomerID != "cus_1" {
		t.Fatalf("expected customer ref bound, got %+v", snap.StripeCustomerID)
	}

	if _, err := h.deliver(t, stripeSecret, subscriptionPayload("evt_s2", "customer.subscription.deleted", "canceled", `{}`)); err != nil {
		t.Fatalf("deliver subscription deleted: %v", err)
	}
	snap, err = h.users.Current(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("current subscription: %v", err)
	}
	if snap.Plan != subscriptiondomain.PlanFree || *snap.SubscriptionStatus != subscriptiondomain.StatusCanceled || snap.SubscriptionID != nil {
		t.Fatalf("expected CANCELED FREE, got %+v", snap)
	}
	if got := len(h.pub.ByRoutingKey(events.RoutingSubscriptionChanged)); got != 2 {
		t.Fatalf("expected 2 subscription.changed messages, got %d", got)
	}
}

func TestIngestWebhookRetriesUnprocessedEvent(t *testing.T) {
	h := newHarness(t)
	payload := subscriptionPayload("evt_s1", "customer.subscription.updated", "active", `{"plan":"basic"}`)

	// the customer is not known yet, so the first attempt fails
	outcome, err := h.deliver(t, stripeSecret, payload)
	if !errors.Is(err, subscriptiondomain.ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
	if outcome != paymentdomain.OutcomeFailed {
		t.Fatalf("expected failed, got %s", outcome)
	}

	if _, err := h.deliver(t, stripeSecret, paymentSucceededPayload("evt_p", "pi_1", 5000, `["c1"]`)); err != nil {
		t.Fatalf("deliver payment: %v", err)
	}

	outcome, err = h.deliver(t, stripeSecret, payload)
	if err != nil {
		t.Fatalf("redeliver subscription: %v", err)
	}
	if outcome != paymentdomain.OutcomeProcessed {
		t.Fatalf("expected processed on retry, got %s", outcome)
	}
	assertCount(t, h.db, "SELECT COUNT(1) FROM users WHERE subscription_status = 'ACTIVE' AND plan = 'BASIC'", 1)
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	signedPayload := fmt.Sprintf("%d.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(signedPayload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signature)
}

func assertCount(t *testing.T, db *gorm.DB, query string, expected int64) {
	t.Helper()

	var count int64
	if err := db.Raw(query).Scan(&count).Error; err != nil {
		t.Fatalf("query count: %v", err)
	}
	if count != expected {
		t.Fatalf("%s: expected %d, got %d", query, expected, count)
	}
}
