// Package upstream classifies failures of the external collaborators
// (market-data and AI analysis services) so callers can tell the user what
// went wrong without inspecting provider-specific error types.
package upstream

import "errors"

var (
	// ErrUnavailable covers network failures, timeouts, and 5xx responses.
	ErrUnavailable = errors.New("upstream: service unavailable")

	// ErrAuth is returned when the collaborator rejects our credentials.
	ErrAuth = errors.New("upstream: authentication rejected")

	// ErrRateLimited is returned when the collaborator throttles us.
	ErrRateLimited = errors.New("upstream: rate limited")
)
