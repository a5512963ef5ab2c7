package linkage

import "errors"

// Expected outcomes of normal use. Callers show them to the user.
var (
	ErrInvalidCode   = errors.New("invalid or unknown invitation code")
	ErrCodeExpired   = errors.New("invitation code expired")
	ErrSelfLinkage   = errors.New("can not accept own invitation")
	ErrAlreadyLinked = errors.New("already linked with a partner")
)

// Infrastructure failures. Returned errors wrap one of these and the cause.
var (
	ErrProfileUnavailable = errors.New("inviter profile unavailable")
	ErrCreation           = errors.New("failed to create invitation")
	ErrCoupleCreation     = errors.New("failed to create couple")
	ErrLookup             = errors.New("lookup failed")
)

// IsValidation reports whether err is a user facing validation outcome.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrCodeExpired) ||
		errors.Is(err, ErrSelfLinkage) ||
		errors.Is(err, ErrAlreadyLinked)
}
