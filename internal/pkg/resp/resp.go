/*
Package resp provides helper functions for reading backend HTTP responses.

It maps response statuses to the application error codes, extracts the backend's
`{"error": ...}` envelope as the error detail, and decodes successful JSON payloads.
*/
package resp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"streamify/internal/pkg/errs"
)

// MaxBodyBytes bounds the number of bytes read from a single backend response.
const MaxBodyBytes int64 = 4 << 20 // 4 MB

// errorEnvelope is the shape of backend error responses. The error value is a string
// for most failures and an object of field messages for failed validation.
type errorEnvelope struct {
	Error json.RawMessage `json:"error"`
}

// CodeForStatus maps an HTTP status to an application error code.
func CodeForStatus(status int) int {
	switch {
	case status == http.StatusUnauthorized:
		return errs.ErrUnauthorized
	case status == http.StatusForbidden:
		return errs.ErrNotPermitted
	case status == http.StatusNotFound:
		return errs.ErrNotFound
	case status == http.StatusConflict:
		return errs.ErrConflict
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return errs.ErrInvalidParams
	case status == http.StatusTooManyRequests, status >= 500:
		return errs.ErrTransientFetch
	default:
		return errs.ErrUnknown
	}
}

// ErrorFromResponse builds the *errs.CustomError for a non-2xx response.
// The backend's error detail, if any, becomes the wrapped cause.
func ErrorFromResponse(res *http.Response) *errs.CustomError {
	body, _ := io.ReadAll(io.LimitReader(res.Body, MaxBodyBytes))

	detail := strings.TrimSpace(string(body))
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var msg string
		if err := json.Unmarshal(envelope.Error, &msg); err == nil {
			detail = msg
		} else {
			detail = string(envelope.Error)
		}
	}
	if detail == "" {
		detail = http.StatusText(res.StatusCode)
	}

	customErr := errs.Wrap(CodeForStatus(res.StatusCode), fmt.Errorf("backend responded %d: %s", res.StatusCode, detail))
	customErr.Status = res.StatusCode
	return customErr
}

// DecodeJSON checks the response status and decodes a successful JSON body into dst.
// The body is always closed. A nil dst discards the payload.
func DecodeJSON(res *http.Response, dst any) error {
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return ErrorFromResponse(res)
	}

	if dst == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, MaxBodyBytes))
		return nil
	}

	decoder := json.NewDecoder(io.LimitReader(res.Body, MaxBodyBytes))
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errs.Wrap(errs.ErrInvalidJSONFormat, errors.New("empty response body"))
		}
		return errs.Wrap(errs.ErrInvalidJSONFormat, err)
	}

	return nil
}
