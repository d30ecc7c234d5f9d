/*
Package backend is the client of the platform's REST API.

It covers the endpoints the friend-request and session flows consume: user profiles,
provider tokens, the paginated friend-request feeds, the accept and reject mutations
and sign-out. Every call is context aware, rate limited per endpoint on the client
side, logged, and never retried; failures are classified with the errs codes.
*/
package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"streamify/internal/pkg/errs"
	"streamify/internal/pkg/limiter"
	"streamify/internal/pkg/logx"
	"streamify/internal/pkg/req"
	"streamify/internal/pkg/resp"
)

// Options configures a Client.
type Options struct {
	// BaseURL is the API root, e.g. https://api.example.com/v1.
	BaseURL string

	// SessionToken authenticates the local user. It is sent as a bearer token.
	SessionToken string

	// Timeout bounds every single request. Zero means no client-side timeout.
	Timeout time.Duration

	// Rate and Burst configure the per-endpoint token bucket. A non-positive Rate disables limiting.
	Rate  float64
	Burst int

	// Transport overrides the underlying round tripper, mainly for tests.
	Transport http.RoundTripper
}

// Client talks to the backend REST API. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	session string
	http    *http.Client
	limits  *limiter.KeyedLimiter
	logger  zerolog.Logger
}

// New constructs a Client from opts.
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errs.Wrap(errs.ErrInvalidParams, errors.New("backend base URL must be absolute"))
	}

	return &Client{
		baseURL: base,
		session: opts.SessionToken,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: logx.Transport(opts.Transport),
		},
		limits: limiter.NewKeyedLimiter(rate.Limit(opts.Rate), opts.Burst),
		logger: logx.Component("backend"),
	}, nil
}

// Close releases background resources held by the client.
func (c *Client) Close() {
	c.limits.Stop()
}

// endpoint joins path segments onto the base URL, escaping each segment.
func (c *Client) endpoint(query *req.Query, segments ...string) string {
	u := c.baseURL.JoinPath(segments...)
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends one request for the named endpoint and decodes the JSON response into dst.
func (c *Client) do(ctx context.Context, name, method, target string, body, dst any) error {
	if err := c.limits.Wait(ctx, name); err != nil {
		return err
	}

	r, err := req.NewJSON(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.SetBearer(r, c.session)

	res, err := c.http.Do(r)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errs.Wrap(errs.ErrTransientFetch, err)
	}

	if err := resp.DecodeJSON(res, dst); err != nil {
		if errs.Is(err, errs.ErrUnauthorized) {
			c.logger.Warn().Str("endpoint", name).Msg("Session rejected by backend.")
		}
		return err
	}

	return nil
}
