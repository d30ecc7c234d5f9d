package backend

import (
	"context"
	"net/http"

	"streamify/internal/app/feed"
	"streamify/internal/app/user"
	"streamify/internal/pkg/errs"
	"streamify/internal/pkg/req"
)

// userPage is the list response of the friends and recommended listings.
type userPage struct {
	Users    []user.User   `json:"users"`
	Metadata feed.Metadata `json:"metadata"`
}

// GetUser resolves a user profile by id. A 404 or 400 (malformed id) maps to
// ErrNotFound so callers can render a not-found view.
func (c *Client) GetUser(ctx context.Context, id string) (user.User, error) {
	var out struct {
		User user.User `json:"user"`
	}

	err := c.do(ctx, "users.get", http.MethodGet, c.endpoint(nil, "users", id), nil, &out)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) || errs.Is(err, errs.ErrInvalidParams) {
			return user.User{}, errs.Wrap(errs.ErrNotFound, err)
		}
		return user.User{}, err
	}

	return out.User, nil
}

// FetchFriends implements feed.FriendSource with GET /users/friends.
// The route name is assumed; the backend only documents the handler.
func (c *Client) FetchFriends(ctx context.Context, page, pageSize int) (feed.Page[user.User], error) {
	return c.fetchUsers(ctx, "users.friends", "friends", page, pageSize)
}

// FetchRecommended implements feed.RecommendationSource with GET /users/recommended.
func (c *Client) FetchRecommended(ctx context.Context, page, pageSize int) (feed.Page[user.User], error) {
	return c.fetchUsers(ctx, "users.recommended", "recommended", page, pageSize)
}

func (c *Client) fetchUsers(ctx context.Context, name, segment string, page, pageSize int) (feed.Page[user.User], error) {
	query := req.NewQuery().
		SetInt("page", page).
		SetInt("page_size", pageSize)

	var out userPage
	if err := c.do(ctx, name, http.MethodGet, c.endpoint(query, "users", segment), nil, &out); err != nil {
		return feed.Page[user.User]{}, err
	}

	if out.Users == nil {
		out.Users = []user.User{}
	}

	return feed.Page[user.User]{Items: out.Users, Metadata: out.Metadata}, nil
}

// ChatToken obtains a short-lived provider token scoped to the session user.
// The same token class authorizes both chat and video providers.
func (c *Client) ChatToken(ctx context.Context) (string, error) {
	var out struct {
		Token string `json:"token"`
	}

	if err := c.do(ctx, "chat.token", http.MethodGet, c.endpoint(nil, "chat", "token"), nil, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errs.NewError(errs.ErrInvalidJSONFormat)
	}

	return out.Token, nil
}

// SignOut ends the backend session. Invalidating local state is up to the caller.
func (c *Client) SignOut(ctx context.Context) (string, error) {
	var out struct {
		Message string `json:"message"`
	}

	if err := c.do(ctx, "auth.signout", http.MethodPost, c.endpoint(nil, "auth", "signout"), nil, &out); err != nil {
		return "", err
	}

	return out.Message, nil
}
