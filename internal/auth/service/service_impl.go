package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/kelas/internal/auth/domain"
	"github.com/smallbiznis/kelas/internal/clock"
	"github.com/smallbiznis/kelas/internal/config"
	"github.com/smallbiznis/kelas/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const clockSkew = 30 * time.Second

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Clock  clock.Clock `optional:"true"`
}

type Service struct {
	log    *zap.Logger
	secret []byte
	issuer string
	clock  clock.Clock
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		log:    p.Log.Named("auth.service"),
		secret: []byte(strings.TrimSpace(p.Config.AuthJWTSecret)),
		issuer: strings.TrimSpace(p.Config.AuthJWTIssuer),
		clock:  clk,
	}
}

// Authenticate verifies an HS256 token and returns the caller identity.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, domain.ErrMissingToken
	}
	if len(s.secret) == 0 {
		return nil, domain.ErrNotConfigured
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(s.clock.Now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &domain.Claims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		logger.WithContext(ctx, s.log).Debug("token rejected", zap.String("reason", rejectReason(err)))
		return nil, domain.ErrInvalidToken
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return nil, domain.ErrInvalidToken
	}

	identity := &domain.Identity{
		Subject: subject,
		Email:   strings.TrimSpace(claims.Email),
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time.UTC()
	}
	return identity, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", domain.ErrMissingToken
	}
	if strings.EqualFold(header, "bearer") {
		return "", domain.ErrMissingToken
	}
	if len(header) < 7 ||!strings.EqualFold(header[:7], "bearer ") {
		return "", domain.ErrInvalidToken
	}
	token := strings.TrimSpace(header[7:])
	if token == "" {
		return "", domain.ErrMissingToken
	}
	return token, nil
}

func rejectReason(err error) string {
	switch {
	case err == nil:
		return "invalid"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return "not_yet_valid"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "issuer"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable"
	default:
		return "invalid"
	}
}
