package domain

import "errors"

var (
	ErrInvalidPayment     = errors.New("invalid_payment")
	ErrInvalidUser        = errors.New("invalid_user")
	ErrConstraintConflict = errors.New("constraint_conflict")
)
