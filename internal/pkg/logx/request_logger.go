/*
Package logx provides a structured logging wrapper based on zerolog.

This file contains an http.RoundTripper that logs the lifecycle of outbound backend
requests such as method, path, response status, and latency. Every request is tagged
with a request id that is also forwarded to the backend in the X-Request-ID header.
*/
package logx

import (
	"net/http"
	"time"

	"streamify/internal/pkg/randx"
)

// RequestIDHeader is the header used to correlate client and backend logs.
const RequestIDHeader = "X-Request-ID"

type loggingTransport struct {
	next http.RoundTripper
}

// Transport wraps next with request logging. A nil next uses http.DefaultTransport.
func Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &loggingTransport{next: next}
}

// RoundTrip implements http.RoundTripper. The request is cloned before the
// request id header is set, as required by the RoundTripper contract.
func (t *loggingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = randx.RequestID()
		r = r.Clone(r.Context())
		r.Header.Set(RequestIDHeader, requestID)
	}

	logger := Logger().With().
		Str("component", "http").
		Str("request_id", requestID).
		Str("request_method", r.Method).
		Str("request_path", r.URL.Path).
		Logger()

	t1 := time.Now()
	res, err := t.next.RoundTrip(r)
	if err != nil {
		logger.Warn().
			Err(err).
			Dur("latency", time.Since(t1)).
			Msg("Request failed")
		return nil, err
	}

	logEvent := logger.Debug()
	if res.StatusCode >= 500 {
		logEvent = logger.Error()
	} else if res.StatusCode >= 400 {
		logEvent = logger.Warn()
	}

	logEvent.
		Int("status", res.StatusCode).
		Int64("bytes", res.ContentLength).
		Dur("latency", time.Since(t1)).
		Msg("Request completed")

	return res, nil
}
