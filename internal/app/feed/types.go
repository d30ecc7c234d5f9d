package feed

import (
	"fmt"
	"time"

	"streamify/internal/app/events"
	"streamify/internal/app/user"
)

// Direction selects which side of a friend request a feed lists.
type Direction string

const (
	// Incoming lists requests received by the local user.
	Incoming Direction = "incoming"

	// Outgoing lists requests sent by the local user.
	Outgoing Direction = "outgoing"
)

// Key returns the invalidation key of the feed for d.
func (d Direction) Key() events.Key {
	if d == Outgoing {
		return events.OutgoingRequests
	}
	return events.IncomingRequests
}

// Status is the lifecycle state of a friend request.
type Status string

const (
	StatusPending  Status = "Pending"
	StatusAccepted Status = "Accepted"
	StatusRejected Status = "Rejected"
)

// FriendRequest is a request from Sender to Recipient. Incoming feeds populate
// Sender, outgoing feeds populate Recipient; the ids are always present.
type FriendRequest struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"sender_id,omitempty"`
	RecipientID string    `json:"recipient_id,omitempty"`
	Sender      user.User `json:"sender"`
	Recipient   user.User `json:"recipient"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Counterparty returns the other user of the request as seen from a feed in direction d.
func (r FriendRequest) Counterparty(d Direction) user.User {
	if d == Outgoing {
		if r.Recipient.ID == "" {
			return user.User{ID: r.RecipientID}
		}
		return r.Recipient
	}
	if r.Sender.ID == "" {
		return user.User{ID: r.SenderID}
	}
	return r.Sender
}

// Metadata describes where a page sits in the paginated result.
type Metadata struct {
	CurrentPage  int `json:"current_page"`
	FirstPage    int `json:"first_page,omitempty"`
	LastPage     int `json:"last_page"`
	PageSize     int `json:"page_size,omitempty"`
	TotalRecords int `json:"total_records"`
}

// HasNext reports whether a page after CurrentPage exists.
func (m Metadata) HasNext() bool {
	return m.CurrentPage < m.LastPage
}

// Validate checks the invariants of backend metadata. An empty result may report
// last_page 0, which is accepted as a terminal page.
func (m Metadata) Validate() error {
	if m.CurrentPage < 0 || m.LastPage < 0 || m.TotalRecords < 0 {
		return fmt.Errorf("negative pagination metadata %+v", m)
	}
	if m.TotalRecords > 0 && m.CurrentPage > m.LastPage {
		return fmt.Errorf("current_page %d exceeds last_page %d", m.CurrentPage, m.LastPage)
	}
	return nil
}

// Page is one bounded slice of a feed.
type Page[T any] struct {
	Items    []T
	Metadata Metadata
}

// State is a snapshot of a feed for rendering.
type State[T any] struct {
	// Items is the concatenation of all fetched pages in page order.
	Items []T

	// Loaded is true once page 1 has been fetched.
	Loaded bool

	// HasNext is true when another page exists; the presentation layer renders the
	// end-of-list sentinel only in that case.
	HasNext bool

	// Fetching is true while a page request is outstanding.
	Fetching bool

	// Empty is true when page 1 was fetched and the feed has no items.
	Empty bool

	// TotalRecords as reported with page 1.
	TotalRecords int

	// Err is the error of the most recent failed fetch, cleared on success.
	Err error
}
