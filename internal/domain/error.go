package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrOperationFailed      = errors.New("operation failed")
	ErrInvalidExecContext   = errors.New("invalid executor context")
	ErrReadDatabaseRow      = errors.New("failed reading database row")
	ErrIllegalTransition    = errors.New("illegal status transition")
	ErrDuplicateEvent       = errors.New("webhook event already processed")
	ErrAmountTooSmall       = errors.New("order total below minimum")
	ErrPendingOrderExists   = errors.New("user already has a pending order")
	ErrAlreadyOwned         = errors.New("all requested courses are already owned")
	ErrActiveSubscription   = errors.New("user already has an active subscription")
	ErrNoActiveSubscription = errors.New("no active subscription")
)
