// Package events fans stored records out to subscribers. Publishing is best
// effort and happens only after the row has been written.
package events

import (
	"context"

	"github.com/onnwee/guild-recorder/record"
)

// SubjectPrefix prefixes every published subject; the event type completes it,
// e.g. "guild.events.member_join". Subscribers can use "guild.events.>".
const SubjectPrefix = "guild.events."

// Subject returns the subject a record of type t is published on.
func Subject(t record.EventType) string { return SubjectPrefix + string(t) }

// Message is the JSON body published for each stored record.
type Message struct {
	GuildID      int64          `json:"guild_id"`
	EventType    string         `json:"event_type"`
	Payload      record.Payload `json:"payload"`
	ChannelID    *int64         `json:"channel_id"`
	CategoryID   *int64         `json:"category_id"`
	UserID       *int64         `json:"user_id"`
	AssociatedID *int64         `json:"associated_id"`
}

// NewMessage wraps rec for publication.
func NewMessage(guildID int64, rec record.EventRecord) Message {
	return Message{
		GuildID:      guildID,
		EventType:    string(rec.Type),
		Payload:      rec.Payload,
		ChannelID:    rec.ChannelID,
		CategoryID:   rec.CategoryID,
		UserID:       rec.UserID,
		AssociatedID: rec.AssociatedID,
	}
}

// Publisher is the interface for emitting stored events.
type Publisher interface {
	Publish(ctx context.Context, subject string, msg Message) error
	Close() error
}
