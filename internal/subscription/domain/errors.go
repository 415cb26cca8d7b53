package domain

import "errors"

var (
	ErrUserNotFound         = errors.New("user_not_found")
	ErrNoActiveSubscription = errors.New("no_active_subscription")
	ErrInvalidSubject       = errors.New("invalid_subject")
	ErrConstraintConflict   = errors.New("constraint_conflict")
	ErrInvalidPlan          = errors.New("invalid_plan")
)
