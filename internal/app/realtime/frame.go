/*
Package realtime implements the JSON frame transport shared by the chat and video providers.

Every frame is a JSON object `{type, id, payload, error}` sent as one websocket text
message. Requests carry a unique id and the provider answers with an ack or error
frame bearing the same id. Frames without a pending id are events.
*/
package realtime

import (
	"encoding/json"
	"fmt"

	"streamify/internal/pkg/errs"
)

// FrameType identifies the operation or event carried by a frame.
type FrameType string

const (
	TypeConnect      FrameType = "connect"
	TypeChannelQuery FrameType = "channel.query"
	TypeChannelWatch FrameType = "channel.watch"
	TypeMessageSend  FrameType = "message.send"
	TypeMessageNew   FrameType = "message.new"
	TypeCallJoin     FrameType = "call.join"
	TypeCallLeave    FrameType = "call.leave"
	TypeCallState    FrameType = "call.state"

	// TypeAck is the successful reply to a request frame.
	TypeAck FrameType = "ack"

	// TypeError is the failed reply to a request frame.
	TypeError FrameType = "error"
)

// Frame is the unit exchanged with a provider.
type Frame struct {
	Type    FrameType       `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

// ErrorPayload describes why the provider rejected a request.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewFrame builds a frame, marshaling payload when it is not nil.
func NewFrame(frameType FrameType, id string, payload any) (Frame, error) {
	f := Frame{Type: frameType, ID: id}
	if payload == nil {
		return f, nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", frameType, err)
	}
	f.Payload = raw

	return f, nil
}

// Decode unmarshals the payload of f into dst. An empty payload leaves dst untouched.
func (f Frame) Decode(dst any) error {
	if len(f.Payload) == 0 || dst == nil {
		return nil
	}
	if err := json.Unmarshal(f.Payload, dst); err != nil {
		return errs.Wrap(errs.ErrInvalidJSONFormat, fmt.Errorf("decode %s payload: %w", f.Type, err))
	}
	return nil
}

// Err converts an error reply into an ErrProviderRejected error. Other frames yield nil.
func (f Frame) Err() error {
	if f.Type != TypeError && f.Error == nil {
		return nil
	}

	detail := ErrorPayload{Message: "unspecified provider error"}
	if f.Error != nil {
		detail = *f.Error
	}

	return errs.Wrap(errs.ErrProviderRejected, fmt.Errorf("provider error %d: %s", detail.Code, detail.Message))
}
