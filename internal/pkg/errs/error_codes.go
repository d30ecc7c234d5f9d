/*
Package errs provides custom error types and application-level error code constants.

These error codes classify failures of backend calls and provider handshakes so that
callers can map them to a recoverable state (not-found view, notification) or abort
the current route.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that the backend rejected the request parameters (400/422).
	ErrInvalidParams = 1001

	// ErrInvalidJSONFormat indicates that a response body could not be decoded.
	ErrInvalidJSONFormat = 1003

	// ErrRateLimitExceeded indicates that the client-side limiter refused the call.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Fetch and Friend Request Errors
const (
	// ErrTransientFetch indicates a network failure, a 429 or a 5xx response. It is surfaced
	// as a single notification and never retried automatically.
	ErrTransientFetch = 2001

	// ErrNotFound indicates that the requested resource (peer, request) does not exist.
	ErrNotFound = 2002

	// ErrConflict indicates that the resource state already changed server-side,
	// e.g. a friend request that is no longer pending.
	ErrConflict = 2003
)

// 3xxx: Session and Permission Errors
const (
	// ErrUnauthorized indicates that the session is no longer valid and the user
	// must authenticate again.
	ErrUnauthorized = 3001

	// ErrNotPermitted indicates that the session is valid but may not act on the resource.
	ErrNotPermitted = 3002
)

// 4xxx: Session Bootstrap Errors
const (
	// ErrFatalBootstrap indicates that token fetch or provider connect failed and the
	// route must be aborted without exposing a partial session.
	ErrFatalBootstrap = 4001

	// ErrProviderRejected indicates that a chat or video provider answered a request
	// with an error frame.
	ErrProviderRejected = 4002

	// ErrProviderClosed indicates that the provider connection is gone.
	ErrProviderClosed = 4003
)

// 5xxx: Internal Errors
const (
	// ErrUnknown represents an unclassified error.
	ErrUnknown = 5000
)
