/*
Package randx provides helpers for generating unique identifiers.

It is used to tag outbound backend requests and to correlate realtime frames
with their replies.
*/
package randx

import (
	"strings"

	"github.com/google/uuid"
)

// RequestID generates a UUID v4 string used as the X-Request-ID of a backend call.
func RequestID() string {
	return uuid.NewString()
}

// FrameID generates a compact UUID v4 (without dashes) used to correlate a
// realtime request frame with its reply.
func FrameID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsValidFrameID reports whether id looks like a value produced by FrameID.
func IsValidFrameID(id string) bool {
	if len(id) != 32 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
