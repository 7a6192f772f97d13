package ledger

import "errors"

var (
	// ErrMissingEntity means a referenced market, token or protocol is not in
	// the store. The transition is abandoned with nothing applied.
	ErrMissingEntity = errors.New("missing entity")
	// ErrNegativeBalance means a flow would drive a market balance below zero.
	// The flow is rejected with nothing applied.
	ErrNegativeBalance = errors.New("negative balance")
	// ErrInvalidPayload means an event field could not be parsed.
	ErrInvalidPayload = errors.New("invalid event payload")
	// ErrIncompleteListing means a market could not be created because its
	// token identity reads were unavailable.
	ErrIncompleteListing = errors.New("incomplete market listing")
	// ErrTransitionPanic wraps a recovered panic inside a transition.
	ErrTransitionPanic = errors.New("transition panicked")
)
