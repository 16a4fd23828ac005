package record

import "encoding/json"

// Payload is the closed union of payload shapes. Only types in this package
// implement it.
type Payload interface {
	allowedFor(EventType) bool
}

// MemberChange is the subset of payloads carried by member_update records.
type MemberChange interface {
	Payload
	memberChange()
}

// Empty is the payload of events that carry no extra data. It encodes as {}.
type Empty struct{}

func (Empty) allowedFor(t EventType) bool {
	switch t {
	case MessageDelete, VoiceJoin, VoiceLeave, VoiceMove,
		MemberJoin, MemberLeave, MemberBan, MemberUnban:
		return true
	}
	return false
}

// MessageContent is the payload of message_create and message_update.
type MessageContent struct {
	Content string `json:"content"`
}

func (MessageContent) allowedFor(t EventType) bool {
	return t == MessageCreate || t == MessageUpdate
}

// Member update sub-event names.
const (
	EventGateAccept     = "member_gate_accept"
	EventNicknameChange = "nickname_change"
	EventRoleChange     = "role_change"
)

// GateAccept records a member leaving the pending (membership screening) state.
type GateAccept struct{}

func (GateAccept) allowedFor(t EventType) bool { return t == MemberUpdate }
func (GateAccept) memberChange()                {}

func (GateAccept) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Event string `json:"event"`
	}{EventGateAccept})
}

// NicknameChange records a nickname transition. A nil side means no nickname.
type NicknameChange struct {
	Before *string
	After  *string
}

func (NicknameChange) allowedFor(t EventType) bool { return t == MemberUpdate }
func (NicknameChange) memberChange()                {}

func (c NicknameChange) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Event  string  `json:"event"`
		Before *string `json:"before"`
		After  *string `json:"after"`
	}{EventNicknameChange, c.Before, c.After})
}

// RoleChange records the member's role ids before and after the update.
type RoleChange struct {
	Before []int64
	After  []int64
}

func (RoleChange) allowedFor(t EventType) bool { return t == MemberUpdate }
func (RoleChange) memberChange()                {}

func (c RoleChange) MarshalJSON() ([]byte, error) {
	// Empty role sets encode as [] rather than null.
	before, after := c.Before, c.After
	if before == nil {
		before = []int64{}
	}
	if after == nil {
		after = []int64{}
	}
	return json.Marshal(struct {
		Event  string  `json:"event"`
		Before []int64 `json:"before"`
		After  []int64 `json:"after"`
	}{EventRoleChange, before, after})
}
