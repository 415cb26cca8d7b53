package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/kelas/internal/billingevent/domain"
	"github.com/smallbiznis/kelas/internal/clock"
	"github.com/smallbiznis/kelas/internal/observability/logger"
	paymentdomain "github.com/smallbiznis/kelas/internal/payment/domain"
	registrationdomain "github.com/smallbiznis/kelas/internal/registration/domain"
	subscriptiondomain "github.com/smallbiznis/kelas/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	Repo          paymentdomain.Repository
	Users         subscriptiondomain.Service
	Registrations registrationdomain.Service
	Clock         clock.Clock
}

// Service applies normalized billing events to payments, subscriptions and
// registrations. Every delivery is recorded in the event ledger first.
type Service struct {
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	repo          paymentdomain.Repository
	users         subscriptiondomain.Service
	registrations registrationdomain.Service
	clock         clock.Clock
}

func NewService(p Params) *Service {
	svc := &Service{
		db:            p.DB,
		log:           p.Log.Named("payment.service"),
		genID:         p.GenID,
		repo:          p.Repo,
		users:         p.Users,
		registrations: p.Registrations,
		clock:         p.Clock,
	}
	if svc.clock == nil {
		svc.clock = clock.SystemClock{}
	}
	return svc
}

// ProcessEvent returns ErrEventAlreadyProcessed when the delivery was handled
// before. A record left unprocessed by a failed attempt is processed again.
func (s *Service) ProcessEvent(ctx context.Context, env *eventdomain.Envelope, payload []byte) error {
	if err := validateEnvelope(env); err != nil {
		return err
	}
	if !json.Valid(payload) {
		return paymentdomain.ErrMalformedPayload
	}

	now := s.clock.Now().UTC()
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        env.Provider,
		ProviderEventID: env.ProviderEventID,
		EventType:       env.ProviderType,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      now,
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, env.Provider, env.ProviderEventID)
		if err != nil {
			return err
		}
		if stored == nil {
			return paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			return paymentdomain.ErrEventAlreadyProcessed
		}
	}

	log := logger.WithContext(ctx, s.log).With(
		zap.String("provider", env.Provider),
		zap.String("provider_event_id", env.ProviderEventID),
		zap.String("event_type", env.ProviderType),
	)
	if !inserted {
		log.Info("retrying unprocessed webhook event")
	}

	if err := s.dispatch(ctx, log, env); err != nil {
		return err
	}
	return s.repo.MarkProcessed(ctx, s.db, stored.ID, s.clock.Now().UTC())
}

func validateEnvelope(env *eventdomain.Envelope) error {
	if env == nil || env.Event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	env.Provider = strings.ToLower(strings.TrimSpace(env.Provider))
	if env.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	env.ProviderEventID = strings.TrimSpace(env.ProviderEventID)
	if env.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if strings.TrimSpace(env.ProviderType) == "" {
		env.ProviderType = string(env.Event.Kind())
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, log *zap.Logger, env *eventdomain.Envelope) error {
	switch ev := env.Event.(type) {
	case eventdomain.PaymentSucceeded:
		return s.settlePayment(ctx, log, ev)
	case eventdomain.PaymentFailed:
		return s.failPayment(ctx, log, ev)
	case eventdomain.PaymentRefunded:
		return s.refundPayment(ctx, log, ev)
	case eventdomain.SubscriptionUpdated, eventdomain.SubscriptionCanceled:
		return s.users.Apply(ctx, *env)
	case eventdomain.Ignored:
		return nil
	default:
		return paymentdomain.ErrInvalidEvent
	}
}

func (s *Service) settlePayment(ctx context.Context, log *zap.Logger, ev eventdomain.PaymentSucceeded) error {
	user, err := s.users.ResolveUser(ctx, ev.CustomerRef, ev.UserSubject)
	if err != nil {
		return fmt.Errorf("resolve payment owner: %w", err)
	}

	payment, err := s.ensurePayment(ctx, ev.PaymentRef, user.ID, ev.Amount, ev.Currency, ev.Metadata)
	if err != nil {
		return err
	}

	moved, err := s.repo.TransitionStatus(
		ctx, s.db, payment.ID,
		paymentdomain.TransitionSources(paymentdomain.PaymentStatusSucceeded),
		paymentdomain.PaymentStatusSucceeded,
		nil,
		s.clock.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if moved {
		log.Info("payment succeeded", zap.String("payment_ref", ev.PaymentRef), zap.Int64("amount", ev.Amount))
	} else {
		payment, err = s.repo.FindPayment(ctx, s.db, ev.PaymentRef)
		if err != nil {
			return err
		}
		if payment == nil {
			return paymentdomain.ErrPaymentNotFound
		}
		if payment.Status != paymentdomain.PaymentStatusSucceeded {
			log.Info("payment success discarded",
				zap.String("payment_ref", ev.PaymentRef),
				zap.String("status", string(payment.Status)),
			)
			return nil
		}
	}

	_, err = s.registrations.Reconcile(ctx, registrationdomain.ReconcileInput{
		UserID:     payment.UserID,
		PaymentID:  payment.ID,
		PaymentRef: payment.ProviderPaymentID,
		Amount:     ev.Amount,
		Currency:   ev.Currency,
		Courses:    ev.Courses,
	})
	return err
}

func (s *Service) failPayment(ctx context.Context, log *zap.Logger, ev eventdomain.PaymentFailed) error {
	user, err := s.users.ResolveUser(ctx, ev.CustomerRef, ev.UserSubject)
	if err != nil {
		return fmt.Errorf("resolve payment owner: %w", err)
	}

	payment, err := s.ensurePayment(ctx, ev.PaymentRef, user.ID, ev.Amount, ev.Currency, ev.Metadata)
	if err != nil {
		return err
	}

	var reason *string
	if r := strings.TrimSpace(ev.Reason); r != "" {
		reason = &r
	}
	moved, err := s.repo.TransitionStatus(
		ctx, s.db, payment.ID,
		paymentdomain.TransitionSources(paymentdomain.PaymentStatusFailed),
		paymentdomain.PaymentStatusFailed,
		reason,
		s.clock.Now().UTC(),
	)
	if err != nil {
		return err
	}
	log.Info("payment failed",
		zap.String("payment_ref", ev.PaymentRef),
		zap.Bool("applied", moved),
		zap.String("reason", ev.Reason),
	)
	return nil
}

func (s *Service) refundPayment(ctx context.Context, log *zap.Logger, ev eventdomain.PaymentRefunded) error {
	payment, err := s.repo.FindPayment(ctx, s.db, ev.PaymentRef)
	if err != nil {
		return err
	}
	if payment == nil {
		return paymentdomain.ErrPaymentNotFound
	}

	moved, err := s.repo.TransitionStatus(
		ctx, s.db, payment.ID,
		paymentdomain.TransitionSources(paymentdomain.PaymentStatusRefunded),
		paymentdomain.PaymentStatusRefunded,
		nil,
		s.clock.Now().UTC(),
	)
	if err != nil {
		return err
	}
	log.Info("payment refunded",
		zap.String("payment_ref", ev.PaymentRef),
		zap.Int64("amount_refunded", ev.AmountRefunded),
		zap.Bool("applied", moved),
	)
	return nil
}

// ensurePayment inserts a PENDING payment on first sight and returns the stored row.
func (s *Service) ensurePayment(
	ctx context.Context,
	ref string,
	userID snowflake.ID,
	amount int64,
	currency string,
	metadata map[string]string,
) (*paymentdomain.Payment, error) {
	existing, err := s.repo.FindPayment(ctx, s.db, ref)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := s.clock.Now().UTC()
	candidate := &paymentdomain.Payment{
		ID:                s.genID.Generate(),
		ProviderPaymentID: ref,
		UserID:            userID,
		Amount:            amount,
		Currency:          strings.ToUpper(strings.TrimSpace(currency)),
		Status:            paymentdomain.PaymentStatusPending,
		Metadata:          toJSONMap(metadata),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	inserted, err := s.repo.InsertPayment(ctx, s.db, candidate)
	if err != nil {
		return nil, err
	}
	if inserted {
		return candidate, nil
	}

	existing, err = s.repo.FindPayment(ctx, s.db, ref)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, errors.Join(paymentdomain.ErrPaymentNotFound, fmt.Errorf("payment %s vanished after insert conflict", ref))
	}
	return existing, nil
}

func toJSONMap(metadata map[string]string) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range metadata {
		out[k] = v
	}
	return out
}

