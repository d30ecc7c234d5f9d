/*
Package chat is the client of the realtime chat provider.

This file defines the chat data exchanged with the provider and the frame payloads
used to query, watch and post to channels.
*/
package chat

import (
	"time"

	"streamify/internal/app/user"
)

// Message is a chat message as delivered by the provider.
type Message struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"cid"`
	UserID    string    `json:"user_id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// CID returns the provider-wide channel id for a channel type and id.
func CID(channelType, id string) string {
	return channelType + ":" + id
}

type connectPayload struct {
	User  user.Identity `json:"user"`
	Token string        `json:"token"`
}

type connectReply struct {
	ConnectionID string `json:"connection_id"`
}

type channelQueryPayload struct {
	Type    string   `json:"type"`
	ID      string   `json:"id"`
	Members []string `json:"members"`
}

type channelReply struct {
	Members []string `json:"members"`
}

type watchPayload struct {
	CID string `json:"cid"`
}

type watchReply struct {
	Messages []Message `json:"messages"`
}

type sendPayload struct {
	CID  string `json:"cid"`
	Text string `json:"text"`
}

type sendReply struct {
	Message Message `json:"message"`
}

type messageEvent struct {
	CID     string  `json:"cid"`
	Message Message `json:"message"`
}
