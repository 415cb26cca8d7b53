package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Reconcile(ctx context.Context, in ReconcileInput) (ReconcileResult, error)
	ByPayment(ctx context.Context, userID snowflake.ID, paymentRef string) ([]Registration, error)
	Latest(ctx context.Context, userID snowflake.ID) ([]Registration, error)
}
