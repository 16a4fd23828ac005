// Package record defines the normalized guild event persisted by the recorder.
//
// An EventRecord is built through one of the per-type constructors below so the
// pairing between EventType and payload shape holds by construction. Records are
// plain values: they are handed to the store once and then discarded.
package record

import (
	"encoding/json"
	"fmt"
)

// EventType is the discriminant of a record's payload.
type EventType string

const (
	MessageCreate EventType = "message_create"
	MessageUpdate EventType = "message_update"
	MessageDelete EventType = "message_delete"
	VoiceJoin     EventType = "voice_join"
	VoiceLeave    EventType = "voice_leave"
	VoiceMove     EventType = "voice_move"
	MemberJoin    EventType = "member_join"
	MemberLeave   EventType = "member_leave"
	MemberUpdate  EventType = "member_update"
	MemberBan     EventType = "member_ban"
	MemberUnban   EventType = "member_unban"
)

// EventTypes lists the closed set of event types in a stable order.
var EventTypes = []EventType{
	MessageCreate, MessageUpdate, MessageDelete,
	VoiceJoin, VoiceLeave, VoiceMove,
	MemberJoin, MemberLeave, MemberUpdate, MemberBan, MemberUnban,
}

// Valid reports whether t belongs to the closed set.
func (t EventType) Valid() bool {
	for _, v := range EventTypes {
		if v == t {
			return true
		}
	}
	return false
}

func (t EventType) String() string { return string(t) }

// EventRecord is one normalized guild event.
// Optional ids are nil when the event has no such association.
type EventRecord struct {
	Type         EventType
	Payload      Payload
	ChannelID    *int64
	CategoryID   *int64
	UserID       *int64
	AssociatedID *int64
}

// Validate checks the record's type and that the payload shape matches it.
func (r EventRecord) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("unknown event type %q", r.Type)
	}
	if r.Payload == nil {
		return fmt.Errorf("%s: nil payload", r.Type)
	}
	if !r.Payload.allowedFor(r.Type) {
		return fmt.Errorf("%s: payload %T not allowed", r.Type, r.Payload)
	}
	return nil
}

// EncodePayload serializes the payload to its canonical JSON text form.
func (r EventRecord) EncodePayload() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(r.Payload)
	if err != nil {
		return "", fmt.Errorf("marshal %s payload: %w", r.Type, err)
	}
	return string(b), nil
}

// NewMessageCreate builds a message_create record.
func NewMessageCreate(content string, channelID int64, categoryID *int64, authorID, messageID int64) EventRecord {
	return EventRecord{
		Type:         MessageCreate,
		Payload:      MessageContent{Content: content},
		ChannelID:    Int64(channelID),
		CategoryID:   categoryID,
		UserID:       Int64(authorID),
		AssociatedID: Int64(messageID),
	}
}

// NewMessageUpdate builds a message_update record. authorID may be nil when the
// edit payload carries no author.
func NewMessageUpdate(content string, channelID int64, categoryID, authorID *int64, messageID int64) EventRecord {
	return EventRecord{
		Type:         MessageUpdate,
		Payload:      MessageContent{Content: content},
		ChannelID:    Int64(channelID),
		CategoryID:   categoryID,
		UserID:       authorID,
		AssociatedID: Int64(messageID),
	}
}

// NewMessageDelete builds a message_delete record. The deleting user is unknown.
func NewMessageDelete(channelID int64, categoryID *int64, messageID int64) EventRecord {
	return EventRecord{
		Type:         MessageDelete,
		Payload:      Empty{},
		ChannelID:    Int64(channelID),
		CategoryID:   categoryID,
		AssociatedID: Int64(messageID),
	}
}

// NewVoice builds a voice_join, voice_leave or voice_move record.
func NewVoice(t EventType, channelID int64, categoryID *int64, userID int64) EventRecord {
	return EventRecord{
		Type:       t,
		Payload:    Empty{},
		ChannelID:  Int64(channelID),
		CategoryID: categoryID,
		UserID:     Int64(userID),
	}
}

// NewMember builds a member-level record with an empty payload
// (member_join, member_leave, member_ban, member_unban).
func NewMember(t EventType, userID int64) EventRecord {
	return EventRecord{Type: t, Payload: Empty{}, UserID: Int64(userID)}
}

// NewMemberUpdate builds a member_update record carrying one of the member
// update payload shapes.
func NewMemberUpdate(userID int64, change MemberChange) EventRecord {
	return EventRecord{Type: MemberUpdate, Payload: change, UserID: Int64(userID)}
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
