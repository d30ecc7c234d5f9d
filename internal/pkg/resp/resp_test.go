package resp

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamify/internal/pkg/errs"
)

func newResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestCodeForStatus(t *testing.T) {
	cases := map[int]int{
		http.StatusUnauthorized:        errs.ErrUnauthorized,
		http.StatusForbidden:           errs.ErrNotPermitted,
		http.StatusNotFound:            errs.ErrNotFound,
		http.StatusConflict:            errs.ErrConflict,
		http.StatusTooManyRequests:     errs.ErrTransientFetch,
		http.StatusBadRequest:          errs.ErrInvalidParams,
		http.StatusUnprocessableEntity: errs.ErrInvalidParams,
		http.StatusInternalServerError: errs.ErrTransientFetch,
		http.StatusBadGateway:          errs.ErrTransientFetch,
		http.StatusTeapot:              errs.ErrUnknown,
	}
	for status, code := range cases {
		assert.Equal(t, code, CodeForStatus(status), "status %d", status)
	}
}

func TestDecodeJSON_Success(t *testing.T) {
	var out struct {
		Token string `json:"token"`
	}
	require.NoError(t, DecodeJSON(newResponse(http.StatusOK, `{"token":"abc"}`), &out))
	assert.Equal(t, "abc", out.Token)
}

func TestDecodeJSON_ErrorEnvelope(t *testing.T) {
	err := DecodeJSON(newResponse(http.StatusNotFound, `{"error":"the requested resource could not be found"}`), nil)

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrNotFound))
	assert.Contains(t, err.Error(), "could not be found")
}

func TestDecodeJSON_ValidationObject(t *testing.T) {
	err := DecodeJSON(newResponse(http.StatusUnprocessableEntity, `{"error":{"page":"must be positive"}}`), nil)

	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrInvalidParams))
	assert.Contains(t, err.Error(), "must be positive")
}

func TestDecodeJSON_EmptyBody(t *testing.T) {
	var out map[string]any
	err := DecodeJSON(newResponse(http.StatusOK, ``), &out)

	assert.True(t, errs.Is(err, errs.ErrInvalidJSONFormat))
}
