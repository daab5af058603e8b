package feed

import (
	"encoding/json"
	"fmt"
	"strings"

	"ChatSync/module/chat/model"
)

// frame types on the wire
const (
	FrameJoin    = "join_channel"
	FrameLeave   = "leave_channel"
	FrameCreated = "chat_message_created"
	FrameUpdated = "chat_message_updated"
	FrameDeleted = "chat_message_deleted"
)

// OutFrame is what the client writes.
type OutFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Token   string `json:"token,omitempty"`
}

// InFrame is what the server pushes. Either Type+Payload or Error is set.
type InFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func BuildJoinFrame(topic, credential string) OutFrame {
	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	return OutFrame{Type: FrameJoin, Channel: topic, Token: "Bearer " + credential}
}

func BuildLeaveFrame() OutFrame {
	return OutFrame{Type: FrameLeave}
}

func ParseFrameJSON(raw []byte) (*InFrame, error) {
	f := &InFrame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	if f.Type == "" && f.Error == "" {
		return nil, fmt.Errorf("frame has neither type nor error")
	}
	return f, nil
}

// BuildEventFrame encodes a message event the way the server does. Used by the NATS
// relay side and by tests.
func BuildEventFrame(ev model.Event) ([]byte, error) {
	var typ string
	switch ev.Kind {
	case model.EventCreated:
		typ = FrameCreated
	case model.EventUpdated:
		typ = FrameUpdated
	case model.EventDeleted:
		typ = FrameDeleted
	default:
		return nil, fmt.Errorf("unknown event kind %d", ev.Kind)
	}
	payload, err := json.Marshal(ev.Message)
	if err != nil {
		return nil, err
	}
	return json.Marshal(InFrame{Type: typ, Payload: payload})
}
