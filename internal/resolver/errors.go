package resolver

import (
	"errors"
	"fmt"

	"github.com/thinesjs/tag2sha/internal/github"
)

var (
	// ErrRefNotFound means neither a tag nor a branch with the resolved name
	// exists.
	ErrRefNotFound = errors.New("no tag or branch found")
	// ErrNoReleaseAvailable means a release was required but the repository
	// has neither releases nor tags.
	ErrNoReleaseAvailable = errors.New("no release available")
)

// Error describes a failed resolution. Err is ErrRefNotFound,
// ErrNoReleaseAvailable, a *github.TransportError or a context error.
type Error struct {
	Repository github.Repository
	Specifier  string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolve %s@%s: %v", e.Repository, e.Specifier, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
