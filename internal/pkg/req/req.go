/*
Package req provides helper functions for building outbound HTTP requests to the backend.

It encapsulates JSON body encoding, query construction and the common headers every
backend call carries, so that the API client only states endpoints and payloads.
*/
package req

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"streamify/internal/pkg/errs"
)

// Query collects query parameters in insertion order for readable request logs.
type Query struct {
	keys   []string
	values url.Values
}

// NewQuery returns an empty Query.
func NewQuery() *Query {
	return &Query{values: url.Values{}}
}

// Set adds key=value. Empty values are skipped.
func (q *Query) Set(key, value string) *Query {
	if value == "" {
		return q
	}
	if _, ok := q.values[key]; !ok {
		q.keys = append(q.keys, key)
	}
	q.values.Set(key, value)
	return q
}

// SetInt adds key=value for positive values only.
func (q *Query) SetInt(key string, value int) *Query {
	if value <= 0 {
		return q
	}
	return q.Set(key, strconv.Itoa(value))
}

// Encode renders the query with keys in insertion order.
func (q *Query) Encode() string {
	var buf bytes.Buffer
	for _, k := range q.keys {
		if buf.Len() > 0 {
			buf.WriteByte('&')
		}
		buf.WriteString(url.QueryEscape(k))
		buf.WriteByte('=')
		buf.WriteString(url.QueryEscape(q.values.Get(k)))
	}
	return buf.String()
}

// NewJSON builds a request for method and target. A non-nil body is encoded as JSON
// and the Content-Type header set accordingly.
func NewJSON(ctx context.Context, method, target string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errs.Wrap(errs.ErrInvalidParams, err)
		}
		reader = bytes.NewReader(payload)
	}

	r, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidParams, err)
	}

	r.Header.Set("Accept", "application/json")
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}

	return r, nil
}

// SetBearer sets the Authorization header when token is not empty.
func SetBearer(r *http.Request, token string) {
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
}
