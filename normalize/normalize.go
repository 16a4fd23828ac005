// Package normalize turns gateway notifications into event records.
//
// Every operation returns (record, true) when the notification is in scope and
// (zero, false) when it is dropped. Drops are ordinary control flow: a
// notification from another guild, a bot message, an edit without content or a
// member update with no recognized change are all silently ignored.
//
// A Normalizer holds only the designated guild id and a channel resolver, so it
// is safe for concurrent use and every operation is a pure function of its input.
package normalize

import (
	"slices"

	"github.com/onnwee/guild-recorder/record"
)

// Normalizer classifies notifications for one designated guild.
type Normalizer struct {
	guildID  int64
	channels ChannelResolver
}

// New returns a Normalizer bound to guildID. channels resolves raw edit and
// delete notifications, which carry only a channel id.
func New(guildID int64, channels ChannelResolver) *Normalizer {
	return &Normalizer{guildID: guildID, channels: channels}
}

// GuildID returns the designated guild id.
func (n *Normalizer) GuildID() int64 { return n.guildID }

// MessageCreated handles a new message. Bot authors are ignored.
func (n *Normalizer) MessageCreated(m MessageCreate) (record.EventRecord, bool) {
	if m.GuildID != n.guildID || m.AuthorBot {
		return record.EventRecord{}, false
	}
	return record.NewMessageCreate(m.Content, m.ChannelID, m.CategoryID, m.AuthorID, m.MessageID), true
}

// MessageEdited handles a raw message edit. Edits that do not carry content
// are dropped.
func (n *Normalizer) MessageEdited(m MessageEdit) (record.EventRecord, bool) {
	ch, ok := n.guildChannel(m.ChannelID)
	if !ok || m.Content == nil {
		return record.EventRecord{}, false
	}
	return record.NewMessageUpdate(*m.Content, m.ChannelID, ch.ParentID, m.AuthorID, m.MessageID), true
}

// MessageDeleted handles a raw message deletion.
func (n *Normalizer) MessageDeleted(m MessageDelete) (record.EventRecord, bool) {
	ch, ok := n.guildChannel(m.ChannelID)
	if !ok {
		return record.EventRecord{}, false
	}
	return record.NewMessageDelete(m.ChannelID, ch.ParentID, m.MessageID), true
}

// VoiceStateChanged classifies a voice state update as a join, leave or move.
// Updates that keep the member in the same presence (mute, deafen) are dropped.
func (n *Normalizer) VoiceStateChanged(v VoiceStateChange) (record.EventRecord, bool) {
	if v.GuildID != n.guildID {
		return record.EventRecord{}, false
	}
	var (
		typ record.EventType
		ch  *VoiceChannel
	)
	switch {
	case v.Before != nil && v.After != nil:
		typ, ch = record.VoiceMove, v.After
	case v.Before != nil:
		typ, ch = record.VoiceLeave, v.Before
	case v.After != nil:
		typ, ch = record.VoiceJoin, v.After
	default:
		return record.EventRecord{}, false
	}
	return record.NewVoice(typ, ch.ID, ch.CategoryID, v.UserID), true
}

// MemberJoined handles a member joining the guild.
func (n *Normalizer) MemberJoined(m MemberEvent) (record.EventRecord, bool) {
	return n.member(record.MemberJoin, m)
}

// MemberLeft handles a member leaving or being removed from the guild.
func (n *Normalizer) MemberLeft(m MemberEvent) (record.EventRecord, bool) {
	return n.member(record.MemberLeave, m)
}

// MemberBanned handles a ban.
func (n *Normalizer) MemberBanned(m MemberEvent) (record.EventRecord, bool) {
	return n.member(record.MemberBan, m)
}

// MemberUnbanned handles an unban.
func (n *Normalizer) MemberUnbanned(m MemberEvent) (record.EventRecord, bool) {
	return n.member(record.MemberUnban, m)
}

// MemberUpdated classifies a member attribute change. Status and activity
// changes are ignored outright. Otherwise the first matching change wins, in
// order: gate acceptance, nickname, roles.
func (n *Normalizer) MemberUpdated(m MemberUpdate) (record.EventRecord, bool) {
	if m.GuildID != n.guildID {
		return record.EventRecord{}, false
	}
	before, after := m.Before, m.After
	if before.Status != after.Status || before.Activity != after.Activity {
		return record.EventRecord{}, false
	}

	var change record.MemberChange
	switch {
	case before.Pending && !after.Pending:
		change = record.GateAccept{}
	case !sameNick(before.Nick, after.Nick):
		change = record.NicknameChange{Before: cloneString(before.Nick), After: cloneString(after.Nick)}
	case !sameRoles(before.Roles, after.Roles):
		change = record.RoleChange{Before: sortedRoles(before.Roles), After: sortedRoles(after.Roles)}
	default:
		return record.EventRecord{}, false
	}
	return record.NewMemberUpdate(after.UserID, change), true
}

func (n *Normalizer) member(t record.EventType, m MemberEvent) (record.EventRecord, bool) {
	if m.GuildID != n.guildID {
		return record.EventRecord{}, false
	}
	return record.NewMember(t, m.UserID), true
}

// guildChannel resolves a channel and checks it belongs to the designated guild.
func (n *Normalizer) guildChannel(id int64) (Channel, bool) {
	if n.channels == nil {
		return Channel{}, false
	}
	ch, ok := n.channels.Channel(id)
	if !ok || ch.GuildID != n.guildID {
		return Channel{}, false
	}
	return ch, true
}

func sameNick(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// sameRoles compares role sets, ignoring order.
func sameRoles(a, b []int64) bool {
	return slices.Equal(sortedRoles(a), sortedRoles(b))
}

func sortedRoles(roles []int64) []int64 {
	out := slices.Clone(roles)
	slices.Sort(out)
	return slices.Compact(out)
}
