// Package gateway connects to the Discord gateway and feeds notifications to the recorder.
//
// discordgo owns the websocket, heartbeats, reconnects and the state cache. This
// package only chooses the intents, translates each dispatched event into the
// gateway-agnostic notification types of package normalize, and hands it to a
// recorder.Recorder. discordgo runs each handler on its own goroutine, so a slow
// insert never holds up other notifications.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/onnwee/guild-recorder/recorder"
)

const eventMessageUpdate = "MESSAGE_UPDATE"

// drainTimeout bounds how long Run waits for in-flight handlers after closing the session.
const drainTimeout = 10 * time.Second

// Intents returns the gateway intents the recorder needs. Presence data is
// privileged and only requested when enabled.
func Intents(presence bool) discordgo.Intent {
	in := discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentMessageContent |
		discordgo.IntentGuildVoiceStates |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildModeration
	if presence {
		in |= discordgo.IntentGuildPresences
	}
	return in
}

// NewSession creates (but does not open) a bot session with the state cache enabled.
func NewSession(token string, presence bool) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = Intents(presence)
	s.StateEnabled = true
	s.SyncEvents = false
	s.State.TrackChannels = true
	s.State.TrackMembers = true
	s.State.TrackVoice = true
	s.State.TrackPresences = presence
	return s, nil
}

// memberRequester is the part of *discordgo.Session used to load the member list.
type memberRequester interface {
	RequestGuildMembers(guildID, query string, limit int, nonce string, presences bool) error
}

// requestMembers asks the gateway for every member of the designated guild so
// that member updates find a cached before-state. Chunks are merged into the
// state cache by discordgo.
func requestMembers(req memberRequester, guildID int64, presence bool, g *discordgo.GuildCreate) bool {
	if g == nil || g.Guild == nil || snowflake(g.ID) != guildID {
		return false
	}
	if err := req.RequestGuildMembers(g.ID, "", 0, "", presence); err != nil {
		slog.Error("discord: request guild members", slog.Any("err", err), slog.String("guild", g.ID), slog.String("component", "gateway"))
		return false
	}
	slog.Info("discord: requested guild members", slog.String("guild", g.ID), slog.Int("member_count", g.MemberCount), slog.String("component", "gateway"))
	return true
}

// inflight tracks running handlers so shutdown can wait for them.
type inflight struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// enter reports whether a handler may run; every true must be paired with leave.
func (f *inflight) enter() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.wg.Add(1)
	return true
}

func (f *inflight) leave() { f.wg.Done() }

// drain rejects new handlers and waits up to timeout for running ones.
// It reports whether all of them finished.
func (f *inflight) drain(timeout time.Duration) bool {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Register attaches one handler per notification kind and returns a drain
// function that waits for handlers still running. Handlers keep the values of
// ctx but not its cancellation, so an insert already under way completes
// during shutdown.
func Register(ctx context.Context, s *discordgo.Session, rec *recorder.Recorder) (drain func(time.Duration) bool) {
	state := s.State
	hctx := context.WithoutCancel(ctx)
	track := &inflight{}
	presence := s.Identify.Intents&discordgo.IntentGuildPresences != 0
	guildID := strconv.FormatInt(rec.GuildID(), 10)

	// handle wraps fn so it is counted as in flight.
	handle := func(fn func()) {
		if !track.enter() {
			return
		}
		defer track.leave()
		fn()
	}

	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		handle(func() { rec.HandleMessageCreate(hctx, toMessageCreate(state, m)) })
	})
	// Edits are read from the raw dispatch so a missing content field survives decoding.
	s.AddHandler(func(_ *discordgo.Session, e *discordgo.Event) {
		if e.Type != eventMessageUpdate {
			return
		}
		handle(func() {
			edit, err := parseMessageEdit(e.RawData)
			if err != nil {
				slog.Warn("discord: bad message update payload", slog.Any("err", err), slog.String("component", "gateway"))
				rec.Drop(hctx, recorder.KindMessageUpdate, "undecodable payload")
				return
			}
			rec.HandleMessageEdit(hctx, edit)
		})
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageDelete) {
		handle(func() { rec.HandleMessageDelete(hctx, toMessageDelete(m)) })
	})
	s.AddHandler(func(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
		handle(func() { rec.HandleVoiceState(hctx, toVoiceStateChange(state, v)) })
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
		handle(func() { rec.HandleMemberJoin(hctx, memberEvent(m.Member)) })
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
		handle(func() { rec.HandleMemberLeave(hctx, memberEvent(m.Member)) })
	})
	s.AddHandler(func(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
		handle(func() {
			upd, ok := toMemberUpdate(state, m)
			if !ok {
				rec.Drop(hctx, recorder.KindMemberUpdate, "member not cached")
				return
			}
			rec.HandleMemberUpdate(hctx, upd)
		})
	})
	s.AddHandler(func(_ *discordgo.Session, b *discordgo.GuildBanAdd) {
		handle(func() { rec.HandleMemberBan(hctx, toMemberEvent(b.GuildID, b.User)) })
	})
	s.AddHandler(func(_ *discordgo.Session, b *discordgo.GuildBanRemove) {
		handle(func() { rec.HandleMemberUnban(hctx, toMemberEvent(b.GuildID, b.User)) })
	})
	s.AddHandler(func(s *discordgo.Session, g *discordgo.GuildCreate) {
		requestMembers(s, rec.GuildID(), presence, g)
	})
	s.AddHandler(func(_ *discordgo.Session, c *discordgo.GuildMembersChunk) {
		if c.GuildID == guildID && c.ChunkIndex == c.ChunkCount-1 {
			slog.Info("discord: member cache loaded", slog.String("guild", c.GuildID), slog.Int("chunks", c.ChunkCount), slog.String("component", "gateway"))
		}
	})
	s.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
		slog.Info("discord gateway ready", slog.String("session", r.SessionID), slog.Int("guilds", len(r.Guilds)), slog.String("component", "gateway"))
	})

	return track.drain
}

// Run registers the handlers, opens the session and blocks until ctx is
// cancelled. It returns once the session is closed and in-flight handlers
// have finished or drainTimeout has passed.
func Run(ctx context.Context, s *discordgo.Session, rec *recorder.Recorder) error {
	drain := Register(ctx, s, rec)
	if err := s.Open(); err != nil {
		return fmt.Errorf("discord gateway connect: %w", err)
	}
	slog.Info("discord gateway connected", slog.String("component", "gateway"))

	<-ctx.Done()
	if err := s.Close(); err != nil {
		slog.Error("discord gateway close", slog.Any("err", err), slog.String("component", "gateway"))
	}
	if !drain(drainTimeout) {
		slog.Warn("discord: handlers still running after drain timeout", slog.Duration("timeout", drainTimeout), slog.String("component", "gateway"))
	}
	return nil
}
