package errs

import "errors"

// Kind classifies an error into the coarse taxonomy callers branch on.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindAuthorization
	KindConflict
	KindStorage
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindConflict:
		return "conflict"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrInvalidFormat, KindValidation},
	{ErrUnauthorized, KindAuthorization},
	{ErrRateLimited, KindAuthorization},
	{ErrForbidden, KindAuthorization},
	{ErrSessionInactive, KindAuthorization},
	{ErrNotRegistered, KindAuthorization},
	{ErrNotFound, KindConflict},
	{ErrAlreadyExists, KindConflict},
	{ErrAlreadyVoted, KindConflict},
	{ErrUnknownCandidate, KindConflict},
	{ErrCapacityExceeded, KindConflict},
	{ErrAlreadyActive, KindConflict},
	{ErrNotActive, KindConflict},
	{ErrStorage, KindStorage},
	{ErrBusy, KindStorage},
}

// KindOf reports the taxonomy kind of err, following wrapped chains.
// A nil error is KindNone; errors outside the sentinel set are KindUnknown.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}
