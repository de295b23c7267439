package remote

import "errors"

// Terminal send rejections. Retrying cannot change these outcomes, so the
// queue fails the entry immediately without consuming retry budget.
var (
	ErrUnauthenticated = errors.New("not authenticated")
	ErrNotFriends      = errors.New("recipient is not a friend")
	ErrBlocked         = errors.New("blocked by recipient")
)

// IsTerminal reports whether err is a permanent rejection rather than a
// transient failure.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrUnauthenticated) ||
		errors.Is(err, ErrNotFriends) ||
		errors.Is(err, ErrBlocked)
}
