package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/kelas/internal/clock"
	"github.com/smallbiznis/kelas/internal/events"
	"github.com/smallbiznis/kelas/internal/observability/logger"
	"github.com/smallbiznis/kelas/internal/observability/metrics"
	"github.com/smallbiznis/kelas/internal/registration/discount"
	"github.com/smallbiznis/kelas/internal/registration/domain"
	"github.com/smallbiznis/kelas/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	latestWindow = time.Hour
	latestLimit  = 10
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      domain.Repository
	Clock     clock.Clock
	Metrics   *metrics.Metrics `optional:"true"`
	Publisher events.Publisher `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	repo      domain.Repository
	clock     clock.Clock
	metrics   *metrics.Metrics
	publisher events.Publisher
}

func NewService(p Params) domain.Service {
	svc := &Service{
		db:        p.DB,
		log:       p.Log.Named("registration.reconciler"),
		genID:     p.GenID,
		repo:      p.Repo,
		clock:     p.Clock,
		metrics:   p.Metrics,
		publisher: p.Publisher,
	}
	if svc.clock == nil {
		svc.clock = clock.SystemClock{}
	}
	if svc.publisher == nil {
		svc.publisher = events.NewNoop(svc.log)
	}
	return svc
}

// Reconcile creates one CONFIRMED registration per course of a succeeded
// payment. Repeated calls for the same payment return the first result.
func (s *Service) Reconcile(ctx context.Context, in domain.ReconcileInput) (domain.ReconcileResult, error) {
	if in.PaymentID == 0 {
		return domain.ReconcileResult{}, domain.ErrInvalidPayment
	}
	if in.UserID == 0 {
		return domain.ReconcileResult{}, domain.ErrInvalidUser
	}
	courses := normalizeCourses(in.Courses)
	log := logger.WithContext(ctx, s.log).With(
		zap.String("payment_ref", in.PaymentRef),
		zap.Int("courses", len(courses)),
	)
	if len(courses) == 0 {
		log.Info("payment carries no courses, nothing to reconcile")
		return domain.ReconcileResult{}, nil
	}

	existing, err := s.repo.ListByPayment(ctx, s.db, in.PaymentID)
	if err != nil {
		return domain.ReconcileResult{}, err
	}
	if len(existing) > 0 {
		log.Debug("payment already reconciled")
		return domain.ReconcileResult{Registrations: existing}, nil
	}

	rules, err := s.repo.ListActiveDiscountRules(ctx, s.db)
	if err != nil {
		return domain.ReconcileResult{}, err
	}
	quote := discount.Price(in.Amount, len(courses), rules)
	items := s.build(in, courses, quote)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.repo.InsertBatch(ctx, tx, items)
	})
	if err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return domain.ReconcileResult{}, err
		}
		// a concurrent delivery won; return its registrations
		winner, readErr := s.repo.ListByPayment(ctx, s.db, in.PaymentID)
		if readErr != nil {
			return domain.ReconcileResult{}, readErr
		}
		if len(winner) == 0 {
			return domain.ReconcileResult{}, fmt.Errorf("%w: payment %s", domain.ErrConstraintConflict, in.PaymentRef)
		}
		log.Info("concurrent reconcile resolved by store", zap.Int("registrations", len(winner)))
		return domain.ReconcileResult{Registrations: winner}, nil
	}

	created, err := s.repo.ListByPayment(ctx, s.db, in.PaymentID)
	if err != nil {
		return domain.ReconcileResult{}, err
	}

	fields := []zap.Field{
		zap.Int64("total", quote.Total),
		zap.Int64("charged", quote.Discounted),
	}
	if quote.Rule != nil {
		fields = append(fields, zap.String("discount_rule_id", quote.Rule.ID.String()))
	}
	log.Info("registrations confirmed", fields...)
	s.metrics.RecordRegistrationsCreated(ctx, len(created))

	msg := domain.Confirmed{
		UserID:        in.UserID,
		PaymentRef:    in.PaymentRef,
		Amount:        quote.Discounted,
		Currency:      in.Currency,
		Registrations: created,
		OccurredAt:    s.clock.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, events.RoutingRegistrationConfirmed, msg); err != nil {
		log.Warn("publish registration confirmed failed", zap.Error(err))
	}

	return domain.ReconcileResult{Registrations: created, Created: true}, nil
}

func (s *Service) build(in domain.ReconcileInput, courses []string, quote discount.Quote) []domain.Registration {
	now := s.clock.Now().UTC()
	paymentID := in.PaymentID

	var currency *string
	if c := strings.ToUpper(strings.TrimSpace(in.Currency)); c != "" {
		currency = &c
	}
	var ruleID *snowflake.ID
	if quote.Rule != nil {
		id := quote.Rule.ID
		ruleID = &id
	}

	items := make([]domain.Registration, 0, len(courses))
	for i, course := range courses {
		items = append(items, domain.Registration{
			ID:             s.genID.Generate(),
			UserID:         in.UserID,
			CourseID:       course,
			PaymentID:      &paymentID,
			PaymentRef:     in.PaymentRef,
			Amount:         quote.Shares[i],
			Currency:       currency,
			DiscountRuleID: ruleID,
			Status:         domain.StatusConfirmed,
			CreatedAt:      now,
		})
	}
	return items
}

func (s *Service) ByPayment(ctx context.Context, userID snowflake.ID, paymentRef string) ([]domain.Registration, error) {
	paymentRef = strings.TrimSpace(paymentRef)
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if paymentRef == "" {
		return nil, domain.ErrInvalidPayment
	}
	items, err := s.repo.ListByPaymentRef(ctx, s.db, userID, paymentRef)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Registration{}
	}
	return items, nil
}

func (s *Service) Latest(ctx context.Context, userID snowflake.ID) ([]domain.Registration, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	since := s.clock.Now().UTC().Add(-latestWindow)
	items, err := s.repo.ListRecent(ctx, s.db, userID, since, latestLimit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.Registration{}
	}
	return items, nil
}

func normalizeCourses(courses []string) []string {
	seen := make(map[string]struct{}, len(courses))
	out := make([]string, 0, len(courses))
	for _, c := range courses {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
