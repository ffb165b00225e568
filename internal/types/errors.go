package types

import "errors"

// Domain error taxonomy. State-machine operations surface these to the HTTP
// layer; webhook processing logs them and acknowledges regardless.
var (
	ErrUnauthorized     = errors.New("actor is not a party to this operation")
	ErrInvalidState     = errors.New("transition not legal from current status")
	ErrNotFound         = errors.New("entity not found")
	ErrEscrowExpired    = errors.New("escrow has expired")
	ErrUpstreamFailure  = errors.New("upstream provider call failed")
	ErrSignatureInvalid = errors.New("webhook signature verification failed")
)
