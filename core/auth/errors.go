package auth

import "errors"

// Authentication failures are distinguished internally; the HTTP layer
// collapses account-related ones into a single message so callers cannot
// enumerate accounts.
var (
	ErrUnknownAccount  = errors.New("unknown account")
	ErrBadCredentials  = errors.New("bad credentials")
	ErrAccountDisabled = errors.New("account disabled")
	ErrRateLimited     = errors.New("rate limited")
)

func IsCredentialFailure(err error) bool {
	return errors.Is(err, ErrUnknownAccount) ||
		errors.Is(err, ErrBadCredentials) ||
		errors.Is(err, ErrAccountDisabled)
}
