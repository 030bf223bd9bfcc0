package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrConflict           = errors.New("conflicting state")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrPlanUnavailable    = errors.New("plan is not available for purchase")
	ErrPlanHasSubscribers = errors.New("plan still has subscriptions")
	ErrNotRefundable      = errors.New("payment is not refundable")
	ErrRefundExceedsPaid  = errors.New("refund amount exceeds refundable remainder")
	ErrSubscriptionState  = errors.New("operation not allowed in current subscription status")

	// Infrastructure-level errors surfaced through repositories
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid transaction execution context")
)
