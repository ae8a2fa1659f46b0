package usecase

import "errors"

var (
	// ErrStateMismatch covers every handshake failure: missing, mismatched, expired or replayed state.
	ErrStateMismatch = errors.New("oauth state mismatch")
	// ErrProviderExchangeFailed indicates the provider rejected the authorization code.
	ErrProviderExchangeFailed = errors.New("provider code exchange failed")
	// ErrProfileFetchFailed indicates the provider profile could not be read or was incomplete.
	ErrProfileFetchFailed = errors.New("provider profile fetch failed")
	// ErrAccountResolutionFailed indicates the account could not be created or refreshed.
	ErrAccountResolutionFailed = errors.New("account resolution failed")
	// ErrSessionIssueFailed indicates the session could not be persisted.
	ErrSessionIssueFailed = errors.New("session issuance failed")
	// ErrAllowanceDepleted indicates the identity has no votes left.
	ErrAllowanceDepleted = errors.New("vote allowance depleted")
	// ErrNothingToRefund indicates a refund without a previously spent vote.
	ErrNothingToRefund = errors.New("no spent vote to refund")
	// ErrRandomnessUnavailable indicates the secure random source failed.
	ErrRandomnessUnavailable = errors.New("secure randomness unavailable")
	// ErrInvalidGrantAmount indicates a non-positive grant.
	ErrInvalidGrantAmount = errors.New("grant amount must be positive")
	// ErrInvalidIdentity indicates an empty or unknown allowance identity.
	ErrInvalidIdentity = errors.New("invalid allowance identity")
)
