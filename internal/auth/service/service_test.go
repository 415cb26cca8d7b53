package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/kelas/internal/auth/domain"
	"github.com/smallbiznis/kelas/internal/clock"
	"github.com/smallbiznis/kelas/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret = "test-jwt-secret-please-change"
	testIssuer = "https://id.kelas.test"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, issuer string) domain.Service {
	t.Helper()
	return NewService(Params{
		Config: config.Config{AuthJWTSecret: testSecret, AuthJWTIssuer: issuer},
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(testNow),
	})
}

func mint(t *testing.T, method jwt.SigningMethod, secret string, claims domain.Claims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims(subject string) domain.Claims {
	return domain.Claims{
		Email: "dewi@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    testIssuer,
			IssuedAt:  jwt.NewNumericDate(testNow.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
		},
	}
}

func TestAuthenticateValidToken(t *testing.T) {
	svc := newTestService(t, testIssuer)
	token := mint(t, jwt.SigningMethodHS256, testSecret, validClaims("user_2abc"))

	identity, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user_2abc", identity.Subject)
	assert.Equal(t, "dewi@example.com", identity.Email)
	assert.True(t, identity.ExpiresAt.Equal(testNow.Add(time.Hour)))
}

func TestAuthenticateRejects(t *testing.T) {
	svc := newTestService(t, testIssuer)

	expired := validClaims("user_2abc")
	expired.ExpiresAt = jwt.NewNumericDate(testNow.Add(-time.Hour))

	noExpiry := validClaims("user_2abc")
	noExpiry.ExpiresAt = nil

	otherIssuer := validClaims("user_2abc")
	otherIssuer.Issuer = "https://elsewhere.test"

	cases := []struct {
		name  string
		token string
		want  error
	}{
		{name: "empty", token: "  ", want: domain.ErrMissingToken},
		{name: "garbage", token: "invalid.jwt.token", want: domain.ErrInvalidToken},
		{name: "wrong secret", token: mint(t, jwt.SigningMethodHS256, "other-secret", validClaims("user_2abc")), want: domain.ErrInvalidToken},
		{name: "wrong algorithm", token: mint(t, jwt.SigningMethodHS512, testSecret, validClaims("user_2abc")), want: domain.ErrInvalidToken},
		{name: "expired", token: mint(t, jwt.SigningMethodHS256, testSecret, expired), want: domain.ErrInvalidToken},
		{name: "no expiry", token: mint(t, jwt.SigningMethodHS256, testSecret, noExpiry), want: domain.ErrInvalidToken},
		{name: "issuer mismatch", token: mint(t, jwt.SigningMethodHS256, testSecret, otherIssuer), want: domain.ErrInvalidToken},
		{name: "missing subject", token: mint(t, jwt.SigningMethodHS256, testSecret, validClaims("")), want: domain.ErrInvalidToken},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			identity, err := svc.Authenticate(context.Background(), tc.token)
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, identity)
		})
	}
}

func TestAuthenticateLeewayOnExpiry(t *testing.T) {
	svc := newTestService(t, testIssuer)
	claims := validClaims("user_2abc")
	claims.ExpiresAt = jwt.NewNumericDate(testNow.Add(-10 * time.Second))

	identity, err := svc.Authenticate(context.Background(), mint(t, jwt.SigningMethodHS256, testSecret, claims))
	require.NoError(t, err)
	assert.Equal(t, "user_2abc", identity.Subject)
}

func TestAuthenticateWithoutIssuerCheck(t *testing.T) {
	svc := newTestService(t, "")
	claims := validClaims("user_2abc")
	claims.Issuer = "anything"

	_, err := svc.Authenticate(context.Background(), mint(t, jwt.SigningMethodHS256, testSecret, claims))
	require.NoError(t, err)
}

func TestAuthenticateWithoutSecret(t *testing.T) {
	svc := NewService(Params{Log: zap.NewNop()})
	_, err := svc.Authenticate(context.Background(), "a.b.c")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestBearerToken(t *testing.T) {
	cases := []struct {
		header string
		token  string
		err    error
	}{
		{header: "Bearer abc.def.ghi", token: "abc.def.ghi"},
		{header: "bearer   abc.def.ghi ", token: "abc.def.ghi"},
		{header: "", err: domain.ErrMissingToken},
		{header: "Bearer   ", err: domain.ErrMissingToken},
		{header: "Basic dXNlcjpwYXNz", err: domain.ErrInvalidToken},
		{header: "abc.def.ghi", err: domain.ErrInvalidToken},
	}

	for _, tc := range cases {
		token, err := BearerToken(tc.header)
		if tc.err != nil {
			assert.ErrorIs(t, err, tc.err, tc.header)
			continue
		}
		require.NoError(t, err, tc.header)
		assert.Equal(t, tc.token, token)
	}
}
