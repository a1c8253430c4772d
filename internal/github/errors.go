package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v58/github"
	slogcontext "github.com/veqryn/slog-context"
)

// ErrNotFound is returned when the requested release, ref or tag object does
// not exist.
var ErrNotFound = errors.New("not found")

// TransportError is any failed API call that is not a plain 404. StatusCode
// is zero when no response was received.
type TransportError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func classify(ctx context.Context, op string, resp *github.Response, err error) error {
	if resp != nil && resp.Response != nil && resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	terr := &TransportError{Op: op, Err: err, Body: errorBody(err)}
	if resp != nil && resp.Response != nil {
		terr.StatusCode = resp.StatusCode
	}

	slogcontext.FromCtx(ctx).Warn("github request failed",
		"op", op, "status", terr.StatusCode, "body", terr.Body)
	return terr
}

func errorBody(err error) string {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) {
		if errResp.Response != nil && errResp.Response.Body != nil {
			if data, rerr := io.ReadAll(errResp.Response.Body); rerr == nil && len(data) > 0 {
				return strings.TrimSpace(string(data))
			}
		}
		return errResp.Message
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return rateErr.Message
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return abuseErr.Message
	}

	if err == nil {
		return ""
	}
	return err.Error()
}
