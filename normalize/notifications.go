package normalize

// Notifications are gateway-agnostic views of the raw events delivered by the
// gateway client. Ids are Discord snowflakes; optional ids are nil when absent.

// MessageCreate is a newly posted message.
type MessageCreate struct {
	GuildID    int64
	ChannelID  int64
	CategoryID *int64
	MessageID  int64
	AuthorID   int64
	AuthorBot  bool
	Content    string
}

// MessageEdit is a raw message update. Content is nil when the update did not
// touch the message text (embed expansion or suppression). AuthorID is nil
// when the raw payload carried no author.
type MessageEdit struct {
	ChannelID int64
	MessageID int64
	Content   *string
	AuthorID  *int64
}

// MessageDelete is a raw message deletion.
type MessageDelete struct {
	ChannelID int64
	MessageID int64
}

// VoiceChannel identifies a voice channel and its category.
type VoiceChannel struct {
	ID         int64
	CategoryID *int64
}

// VoiceStateChange is a member's voice state before and after an update.
// A nil side means the member was not connected to a channel.
type VoiceStateChange struct {
	GuildID int64
	UserID  int64
	Before  *VoiceChannel
	After   *VoiceChannel
}

// MemberEvent covers join, leave, ban and unban.
type MemberEvent struct {
	GuildID int64
	UserID  int64
}

// MemberSnapshot is the state of a member on one side of an update.
type MemberSnapshot struct {
	UserID   int64
	Status   string
	Activity string
	Pending  bool
	Nick     *string
	Roles    []int64
}

// MemberUpdate is a member attribute change.
type MemberUpdate struct {
	GuildID int64
	Before  MemberSnapshot
	After   MemberSnapshot
}

// Channel is a resolved guild channel.
type Channel struct {
	ID       int64
	GuildID  int64
	ParentID *int64
}

// ChannelResolver looks up a channel the gateway client already knows about.
type ChannelResolver interface {
	Channel(id int64) (Channel, bool)
}
