package ledger

import "errors"

var (
	// ErrUnauthorized is returned when an account lacks the role an event requires.
	ErrUnauthorized = errors.New("account not authorized")
	// ErrInsufficientBalance is returned when a transfer or burn exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrNotRegistered is returned when a substation distributes to a consumer
	// it has not registered.
	ErrNotRegistered = errors.New("consumer not registered with substation")
	// ErrInvalidEvent is returned for unknown kinds or negative amounts.
	ErrInvalidEvent = errors.New("invalid event")
)
