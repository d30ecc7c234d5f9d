/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError template, which carries
the user-facing message and the HTTP status the code is associated with.
*/
package errs

import "net/http"

// errorMap stores the CustomError template corresponding to every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrInvalidJSONFormat: {Code: ErrInvalidJSONFormat, Message: "Unexpected response from server."},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Fetch and Friend Request Errors
	ErrTransientFetch: {Code: ErrTransientFetch, Message: "Sorry we have problem in our server. Please try again later!", Status: http.StatusServiceUnavailable},
	ErrNotFound:       {Code: ErrNotFound, Message: "The page you are looking for does not exist.", Status: http.StatusNotFound},
	ErrConflict:       {Code: ErrConflict, Message: "This friend request is no longer pending.", Status: http.StatusConflict},

	// 3xxx: Session and Permission Errors
	ErrUnauthorized: {Code: ErrUnauthorized, Message: "Please sign in to continue.", Status: http.StatusUnauthorized},
	ErrNotPermitted: {Code: ErrNotPermitted, Message: "You are not allowed to do this.", Status: http.StatusForbidden},

	// 4xxx: Session Bootstrap Errors
	ErrFatalBootstrap:   {Code: ErrFatalBootstrap, Message: "Unable to start the session. Please try again later."},
	ErrProviderRejected: {Code: ErrProviderRejected, Message: "The realtime provider rejected the request."},
	ErrProviderClosed:   {Code: ErrProviderClosed, Message: "The realtime connection was closed."},

	// 5xxx: Internal Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again."},
}
