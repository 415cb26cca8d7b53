package domain

import (
	"context"
	"net/http"

	eventdomain "github.com/smallbiznis/kelas/internal/billingevent/domain"
)

// Verifier authenticates a raw webhook body against its signature header.
type Verifier interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
}

// Normalizer maps a verified provider payload to exactly one billing event.
type Normalizer interface {
	Parse(ctx context.Context, payload []byte) (*eventdomain.Envelope, error)
}

type PaymentAdapter interface {
	Verifier
	Normalizer
	Provider() string
}
