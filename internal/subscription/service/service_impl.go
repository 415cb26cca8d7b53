package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/kelas/internal/billingevent/domain"
	"github.com/smallbiznis/kelas/internal/clock"
	"github.com/smallbiznis/kelas/internal/events"
	"github.com/smallbiznis/kelas/internal/observability/logger"
	"github.com/smallbiznis/kelas/internal/observability/metrics"
	"github.com/smallbiznis/kelas/internal/subscription/domain"
	"github.com/smallbiznis/kelas/internal/subscription/machine"
	"github.com/smallbiznis/kelas/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxSwapAttempts bounds compare-and-set retries when concurrent writers
// move the subscription version.
const maxSwapAttempts = 3

const (
	sourceWebhook     = "webhook"
	sourceLocalCancel = "local_cancel"
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
		log:       p.Log.Named("subscription.service"),
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

func (s *Service) EnsureUser(ctx context.Context, subject string) (*domain.User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, domain.ErrInvalidSubject
	}

	user, err := s.repo.FindBySubject(ctx, s.db, subject)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	now := s.clock.Now().UTC()
	candidate := &domain.User{
		ID:        s.genID.Generate(),
		Subject:   subject,
		Plan:      domain.PlanFree,
		CreatedAt: now,
		UpdatedAt: now,
	}
	inserted, err := s.repo.InsertUser(ctx, s.db, candidate)
	if err != nil {
		return nil, err
	}
	if inserted {
		logger.WithContext(ctx, s.log).Info("user created on first contact", zap.String("user_id", candidate.ID.String()))
		return candidate, nil
	}

	// lost the first-contact race; the winner's row is authoritative
	user, err = s.repo.FindBySubject(ctx, s.db, subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) FindBySubject(ctx context.Context, subject string) (*domain.User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, domain.ErrInvalidSubject
	}
	user, err := s.repo.FindBySubject(ctx, s.db, subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) ResolveUser(ctx context.Context, customerRef, subject string) (*domain.User, error) {
	customerRef = strings.TrimSpace(customerRef)
	if customerRef != "" {
		user, err := s.repo.FindByCustomerRef(ctx, s.db, customerRef)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}

	if strings.TrimSpace(subject) == "" {
		return nil, domain.ErrUserNotFound
	}
	user, err := s.EnsureUser(ctx, subject)
	if err != nil {
		return nil, err
	}
	if customerRef == "" || user.StripeCustomerID != nil {
		return user, nil
	}

	if err := s.repo.BindCustomerRef(ctx, s.db, user.ID, customerRef, s.clock.Now().UTC()); err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		// another user already owns the customer ref
		owner, findErr := s.repo.FindByCustomerRef(ctx, s.db, customerRef)
		if findErr != nil {
			return nil, findErr
		}
		if owner != nil {
			return owner, nil
		}
		return nil, fmt.Errorf("%w: customer ref %s", domain.ErrConstraintConflict, customerRef)
	}
	return s.reload(ctx, user.ID)
}

func (s *Service) Current(ctx context.Context, subject string) (domain.Snapshot, error) {
	user, err := s.EnsureUser(ctx, subject)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return user.Snapshot(), nil
}

func (s *Service) Apply(ctx context.Context, env eventdomain.Envelope) error {
	var (
		in          machine.Input
		customerRef string
		subject     string
	)
	at := env.OccurredAt
	if at.IsZero() {
		at = s.clock.Now()
	}

	switch ev := env.Event.(type) {
	case eventdomain.SubscriptionUpdated:
		status, ok := statusFromEvent(ev.Status)
		if !ok {
			return nil
		}
		in = machine.Input{
			Kind:           machine.InputUpdated,
			Status:         status,
			Plan:           domain.Plan(ev.Plan),
			SubscriptionID: ev.SubscriptionID,
			At:             at.UTC(),
		}
		if !ev.PeriodEnd.IsZero() {
			end := ev.PeriodEnd.UTC()
			in.PeriodEnd = &end
		}
		customerRef, subject = ev.CustomerRef, ev.UserSubject
	case eventdomain.SubscriptionCanceled:
		in = machine.Input{
			Kind:           machine.InputCanceled,
			SubscriptionID: ev.SubscriptionID,
			At:             at.UTC(),
		}
		customerRef, subject = ev.CustomerRef, ev.UserSubject
	default:
		return nil
	}

	user, err := s.ResolveUser(ctx, customerRef, subject)
	if err != nil {
		return err
	}
	_, err = s.transition(ctx, user, in, sourceWebhook)
	return err
}

func (s *Service) ApplyLocalCancel(ctx context.Context, user *domain.User) (*domain.User, error) {
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	in := machine.Input{Kind: machine.InputLocalCancel}
	if user.SubscriptionID != nil {
		in.SubscriptionID = strings.TrimSpace(*user.SubscriptionID)
	}
	return s.transition(ctx, user, in, sourceLocalCancel)
}

// transition runs the state machine against the stored state and writes the
// result with a compare-and-set, reloading the user when the version moved.
func (s *Service) transition(ctx context.Context, user *domain.User, in machine.Input, source string) (*domain.User, error) {
	log := logger.WithContext(ctx, s.log).With(
		zap.String("user_id", user.ID.String()),
		zap.String("source", source),
	)

	for attempt := 1; attempt <= maxSwapAttempts; attempt++ {
		cur := user.State()
		result, err := machine.Transition(cur, in)
		if err != nil {
			return nil, err
		}
		if !result.Applied() {
			log.Debug("subscription transition skipped", zap.String("decision", string(result.Decision)))
			return user, nil
		}

		swapped, err := s.repo.CompareAndSwapState(ctx, s.db, user.ID, user.SubscriptionVersion, result.Next, s.clock.Now().UTC())
		if err != nil {
			return nil, err
		}
		if swapped {
			s.afterTransition(ctx, log, user, cur, result.Next, source)
			return s.reload(ctx, user.ID)
		}

		log.Debug("subscription version moved, retrying", zap.Int("attempt", attempt))
		user, err = s.reload(ctx, user.ID)
		if err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: subscription version kept moving", domain.ErrConstraintConflict)
}

func (s *Service) afterTransition(ctx context.Context, log *zap.Logger, user *domain.User, from, to domain.State, source string) {
	log.Info("subscription transition applied",
		zap.String("from", from.Status.String()),
		zap.String("to", to.Status.String()),
		zap.String("plan", string(to.Plan)),
	)
	if from.Status != to.Status {
		s.metrics.RecordSubscriptionTransition(ctx, from.Status.String(), to.Status.String())
	}

	change := domain.Change{
		UserID:         user.ID,
		Subject:        user.Subject,
		From:           from.Status.String(),
		To:             to.Status.String(),
		Plan:           to.Plan,
		SubscriptionID: to.SubscriptionID,
		Source:         source,
		OccurredAt:     eventTime(to.EventAt, s.clock.Now()),
	}
	if change.SubscriptionID == "" {
		change.SubscriptionID = to.CanceledSubscriptionID
	}
	if err := s.publisher.Publish(ctx, events.RoutingSubscriptionChanged, change); err != nil {
		log.Warn("publish subscription change failed", zap.Error(err))
	}
}

func (s *Service) reload(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	user, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func statusFromEvent(status eventdomain.SubscriptionStatus) (domain.Status, bool) {
	switch status {
	case eventdomain.SubscriptionStatusActive:
		return domain.StatusActive, true
	case eventdomain.SubscriptionStatusPastDue:
		return domain.StatusPastDue, true
	default:
		return "", false
	}
}

func eventTime(at *time.Time, fallback time.Time) time.Time {
	if at != nil {
		return at.UTC()
	}
	return fallback.UTC()
}
