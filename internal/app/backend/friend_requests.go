package backend

import (
	"context"
	"fmt"
	"net/http"

	"streamify/internal/app/feed"
	"streamify/internal/pkg/errs"
	"streamify/internal/pkg/req"
)

// friendRequestEnvelope wraps single friend-request mutation responses.
type friendRequestEnvelope struct {
	FriendRequest feed.FriendRequest `json:"friend_request"`
}

// friendRequestPage is the list response of both request feeds.
type friendRequestPage struct {
	FriendRequests []feed.FriendRequest `json:"friend_requests"`
	Metadata       feed.Metadata        `json:"metadata"`
}

// FetchFriendRequests implements feed.RequestSource. Only pending requests are listed.
// Incoming: GET /users/friends-request, outgoing: GET /users/friends-request/send.
func (c *Client) FetchFriendRequests(ctx context.Context, dir feed.Direction, page, pageSize int) (feed.Page[feed.FriendRequest], error) {
	query := req.NewQuery().
		Set("status", string(feed.StatusPending)).
		SetInt("page_size", pageSize).
		SetInt("page", page)

	segments := []string{"users", "friends-request"}
	name := "friend_requests.incoming"
	if dir == feed.Outgoing {
		segments = append(segments, "send")
		name = "friend_requests.outgoing"
	}

	var out friendRequestPage
	if err := c.do(ctx, name, http.MethodGet, c.endpoint(query, segments...), nil, &out); err != nil {
		return feed.Page[feed.FriendRequest]{}, err
	}

	if out.FriendRequests == nil {
		out.FriendRequests = []feed.FriendRequest{}
	}

	return feed.Page[feed.FriendRequest]{Items: out.FriendRequests, Metadata: out.Metadata}, nil
}

// AcceptFriendRequest marks the request as accepted. A request that vanished or is
// no longer pending yields ErrConflict.
func (c *Client) AcceptFriendRequest(ctx context.Context, id string) (feed.FriendRequest, error) {
	return c.mutateFriendRequest(ctx, "accept", id, feed.StatusAccepted)
}

// RejectFriendRequest marks the request as rejected, with the same error mapping as accept.
//
// The route POST /users/friends-request/reject/{id} is assumed to mirror accept;
// the backend does not publish it yet.
func (c *Client) RejectFriendRequest(ctx context.Context, id string) (feed.FriendRequest, error) {
	return c.mutateFriendRequest(ctx, "reject", id, feed.StatusRejected)
}

func (c *Client) mutateFriendRequest(ctx context.Context, action, id string, want feed.Status) (feed.FriendRequest, error) {
	var out friendRequestEnvelope

	target := c.endpoint(nil, "users", "friends-request", action, id)
	err := c.do(ctx, "friend_requests."+action, http.MethodPost, target, nil, &out)
	if err != nil {
		if errs.Is(err, errs.ErrNotFound) {
			return feed.FriendRequest{}, errs.Wrap(errs.ErrConflict, err)
		}
		return feed.FriendRequest{}, err
	}

	if out.FriendRequest.Status != "" && out.FriendRequest.Status != want {
		return out.FriendRequest, errs.Wrap(errs.ErrConflict,
			fmt.Errorf("friend request %s is %s, expected %s", id, out.FriendRequest.Status, want))
	}

	return out.FriendRequest, nil
}
