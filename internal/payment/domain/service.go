package domain

import (
	"context"
	"net/http"
)

type Service interface {
	IngestWebhook(ctx context.Context, provider string, payload []byte, headers http.Header) (Outcome, error)
}
