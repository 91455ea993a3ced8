package studio

import "errors"

var (
	// ErrSubscriptionNotFound means the caller has no subscription row.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrCreditsExhausted means the monthly allotment is used up.
	ErrCreditsExhausted = errors.New("credits exhausted")
	// ErrJewelryNotFound means the jewelry reference does not resolve to a
	// record owned by the caller.
	ErrJewelryNotFound = errors.New("jewelry not found")
	// ErrDispatchFailed means the workflow engine was unreachable or
	// answered with a non-success status.
	ErrDispatchFailed = errors.New("workflow dispatch failed")
	// ErrGenerationNotFound means the callback referenced an unknown id.
	ErrGenerationNotFound = errors.New("generation not found")
	// ErrDuplicateCallback means the generation already reached a terminal
	// state; the callback is rejected without touching any state.
	ErrDuplicateCallback = errors.New("generation already finalized")
	// ErrInvalidCallback means the callback payload was malformed, e.g. a
	// completed status without a result image URL.
	ErrInvalidCallback = errors.New("invalid callback payload")
)
