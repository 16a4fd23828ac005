package gateway

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/guild-recorder/normalize"
)

// stateCache is the part of *discordgo.State the adapter reads.
type stateCache interface {
	Channel(channelID string) (*discordgo.Channel, error)
	Presence(guildID, userID string) (*discordgo.Presence, error)
}

// parseSnowflake converts a Discord id. Empty or malformed ids yield ok=false.
func parseSnowflake(id string) (int64, bool) {
	if id == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(id, 10, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// snowflake is parseSnowflake without the flag; absent ids become 0, which
// never matches a configured guild.
func snowflake(id string) int64 {
	v, _ := parseSnowflake(id)
	return v
}

func optionalSnowflake(id string) *int64 {
	v, ok := parseSnowflake(id)
	if !ok {
		return nil
	}
	return &v
}

// stateChannels resolves channels from the gateway state cache.
type stateChannels struct {
	state stateCache
}

// Channels returns a normalize.ChannelResolver backed by the session state.
// Threads report the category of their parent channel.
func Channels(state *discordgo.State) normalize.ChannelResolver {
	return stateChannels{state: state}
}

func (c stateChannels) Channel(id int64) (normalize.Channel, bool) {
	ch, err := c.state.Channel(strconv.FormatInt(id, 10))
	if err != nil || ch == nil {
		return normalize.Channel{}, false
	}
	guildID, ok := parseSnowflake(ch.GuildID)
	if !ok {
		return normalize.Channel{}, false
	}
	return normalize.Channel{ID: id, GuildID: guildID, ParentID: categoryOf(c.state, ch)}, true
}

// categoryOf returns the category id of ch, looking through a thread to its parent.
func categoryOf(state stateCache, ch *discordgo.Channel) *int64 {
	if ch == nil {
		return nil
	}
	if ch.IsThread() {
		parent, err := state.Channel(ch.ParentID)
		if err != nil || parent == nil {
			return nil
		}
		return optionalSnowflake(parent.ParentID)
	}
	return optionalSnowflake(ch.ParentID)
}

func channelCategory(state stateCache, channelID string) *int64 {
	ch, err := state.Channel(channelID)
	if err != nil {
		return nil
	}
	return categoryOf(state, ch)
}

func toMessageCreate(state stateCache, m *discordgo.MessageCreate) normalize.MessageCreate {
	out := normalize.MessageCreate{
		GuildID:    snowflake(m.GuildID),
		ChannelID:  snowflake(m.ChannelID),
		CategoryID: channelCategory(state, m.ChannelID),
		MessageID:  snowflake(m.ID),
		Content:    m.Content,
	}
	if m.Author != nil {
		out.AuthorID = snowflake(m.Author.ID)
		out.AuthorBot = m.Author.Bot
	}
	return out
}

// rawMessageUpdate is the subset of a MESSAGE_UPDATE dispatch we read. Content
// is a pointer so an omitted field stays distinguishable from an empty one.
type rawMessageUpdate struct {
	ID        string  `json:"id"`
	ChannelID string  `json:"channel_id"`
	Content   *string `json:"content"`
	Author    *struct {
		ID string `json:"id"`
	} `json:"author"`
}

func parseMessageEdit(raw json.RawMessage) (normalize.MessageEdit, error) {
	var u rawMessageUpdate
	if err := json.Unmarshal(raw, &u); err != nil {
		return normalize.MessageEdit{}, fmt.Errorf("decode MESSAGE_UPDATE: %w", err)
	}
	out := normalize.MessageEdit{
		ChannelID: snowflake(u.ChannelID),
		MessageID: snowflake(u.ID),
		Content:   u.Content,
	}
	if u.Author != nil {
		out.AuthorID = optionalSnowflake(u.Author.ID)
	}
	return out, nil
}

func toMessageDelete(m *discordgo.MessageDelete) normalize.MessageDelete {
	return normalize.MessageDelete{ChannelID: snowflake(m.ChannelID), MessageID: snowflake(m.ID)}
}

func voiceChannel(state stateCache, vs *discordgo.VoiceState) *normalize.VoiceChannel {
	if vs == nil {
		return nil
	}
	id, ok := parseSnowflake(vs.ChannelID)
	if !ok {
		return nil
	}
	return &normalize.VoiceChannel{ID: id, CategoryID: channelCategory(state, vs.ChannelID)}
}

func toVoiceStateChange(state stateCache, v *discordgo.VoiceStateUpdate) normalize.VoiceStateChange {
	return normalize.VoiceStateChange{
		GuildID: snowflake(v.GuildID),
		UserID:  snowflake(v.UserID),
		Before:  voiceChannel(state, v.BeforeUpdate),
		After:   voiceChannel(state, v.VoiceState),
	}
}

func toMemberEvent(guildID string, user *discordgo.User) normalize.MemberEvent {
	out := normalize.MemberEvent{GuildID: snowflake(guildID)}
	if user != nil {
		out.UserID = snowflake(user.ID)
	}
	return out
}

func memberEvent(m *discordgo.Member) normalize.MemberEvent {
	if m == nil {
		return normalize.MemberEvent{}
	}
	return toMemberEvent(m.GuildID, m.User)
}

// toMemberUpdate needs the cached pre-update member; ok is false without it.
// Members cached from GUILD_CREATE carry no guild id, so both snapshots use
// the guild id of the update itself.
func toMemberUpdate(state stateCache, m *discordgo.GuildMemberUpdate) (normalize.MemberUpdate, bool) {
	if m.Member == nil || m.BeforeUpdate == nil {
		return normalize.MemberUpdate{}, false
	}
	return normalize.MemberUpdate{
		GuildID: snowflake(m.GuildID),
		Before:  memberSnapshot(state, m.GuildID, m.BeforeUpdate),
		After:   memberSnapshot(state, m.GuildID, m.Member),
	}, true
}

func memberSnapshot(state stateCache, guildID string, m *discordgo.Member) normalize.MemberSnapshot {
	snap := normalize.MemberSnapshot{Pending: m.Pending}
	if m.Nick != "" {
		nick := m.Nick
		snap.Nick = &nick
	}
	for _, r := range m.Roles {
		if id, ok := parseSnowflake(r); ok {
			snap.Roles = append(snap.Roles, id)
		}
	}
	if m.User == nil {
		return snap
	}
	snap.UserID = snowflake(m.User.ID)
	if p, err := state.Presence(guildID, m.User.ID); err == nil && p != nil {
		snap.Status = string(p.Status)
		if len(p.Activities) > 0 && p.Activities[0] != nil {
			snap.Activity = p.Activities[0].Name
		}
	}
	return snap
}
