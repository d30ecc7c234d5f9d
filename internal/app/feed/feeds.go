package feed

import (
	"context"

	"streamify/internal/app/events"
	"streamify/internal/app/user"
)

// RequestSource lists pending friend requests. *backend.Client implements it.
type RequestSource interface {
	FetchFriendRequests(ctx context.Context, dir Direction, page, pageSize int) (Page[FriendRequest], error)
}

// FriendSource lists the local user's friends. *backend.Client implements it.
type FriendSource interface {
	FetchFriends(ctx context.Context, page, pageSize int) (Page[user.User], error)
}

// RecommendationSource lists users the local user may want to befriend.
type RecommendationSource interface {
	FetchRecommended(ctx context.Context, page, pageSize int) (Page[user.User], error)
}

// NewRequests creates the pending request feed for dir. The outgoing feed uses
// OutgoingPageSize, the incoming feed the backend default.
func NewRequests(src RequestSource, dir Direction, opts ...Option) *Paginator[FriendRequest] {
	fetcher := FetcherFunc[FriendRequest](func(ctx context.Context, page, pageSize int) (Page[FriendRequest], error) {
		return src.FetchFriendRequests(ctx, dir, page, pageSize)
	})

	if dir == Outgoing {
		opts = append([]Option{WithPageSize(OutgoingPageSize)}, opts...)
	}
	return New[FriendRequest](fetcher, dir.Key(), opts...)
}

// NewFriends creates the friends list, invalidated whenever a request is accepted.
func NewFriends(src FriendSource, opts ...Option) *Paginator[user.User] {
	return New[user.User](FetcherFunc[user.User](src.FetchFriends), events.Friends, opts...)
}

// NewRecommended creates the list of recommended users.
func NewRecommended(src RecommendationSource, opts ...Option) *Paginator[user.User] {
	return New[user.User](FetcherFunc[user.User](src.FetchRecommended), events.Recommended, opts...)
}
