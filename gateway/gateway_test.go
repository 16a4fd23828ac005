package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
)

type memberRequest struct {
	guildID   string
	query     string
	limit     int
	presences bool
}

type fakeRequester struct {
	err   error
	calls []memberRequest
}

func (f *fakeRequester) RequestGuildMembers(guildID, query string, limit int, nonce string, presences bool) error {
	f.calls = append(f.calls, memberRequest{guildID: guildID, query: query, limit: limit, presences: presences})
	return f.err
}

func TestRequestMembers(t *testing.T) {
	tests := []struct {
		name     string
		guild    *discordgo.GuildCreate
		presence bool
		err      error
		want     bool
		calls    []memberRequest
	}{
		{
			name:     "designated guild with presences",
			guild:    &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "100", MemberCount: 5000}},
			presence: true,
			want:     true,
			calls:    []memberRequest{{guildID: "100", query: "", limit: 0, presences: true}},
		},
		{
			name:  "designated guild without presences",
			guild: &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "100"}},
			want:  true,
			calls: []memberRequest{{guildID: "100"}},
		},
		{
			name:  "other guild",
			guild: &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "200"}},
		},
		{
			name:  "missing guild",
			guild: &discordgo.GuildCreate{},
		},
		{
			name:  "request fails",
			guild: &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "100"}},
			err:   errors.New("no websocket connection exists"),
			calls: []memberRequest{{guildID: "100"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &fakeRequester{err: tt.err}
			if got := requestMembers(req, 100, tt.presence, tt.guild); got != tt.want {
				t.Errorf("requestMembers() = %v, want %v", got, tt.want)
			}
			if len(req.calls) != len(tt.calls) {
				t.Fatalf("calls = %+v, want %+v", req.calls, tt.calls)
			}
			for i := range tt.calls {
				if req.calls[i] != tt.calls[i] {
					t.Errorf("call %d = %+v, want %+v", i, req.calls[i], tt.calls[i])
				}
			}
		})
	}
}

func TestSessionSatisfiesMemberRequester(t *testing.T) {
	var _ memberRequester = (*discordgo.Session)(nil)
}

func TestInflightDrainWaitsForHandlers(t *testing.T) {
	f := &inflight{}
	if !f.enter() {
		t.Fatal("enter before drain should succeed")
	}

	result := make(chan bool, 1)
	go func() { result <- f.drain(5 * time.Second) }()

	select {
	case <-result:
		t.Fatal("drain returned while a handler was running")
	case <-time.After(50 * time.Millisecond):
	}

	f.leave()
	if !<-result {
		t.Error("drain reported a timeout after the handler finished")
	}
	if f.enter() {
		t.Error("enter after drain should be rejected")
	}
}

func TestInflightDrainTimeout(t *testing.T) {
	f := &inflight{}
	f.enter()
	defer f.leave()

	if f.drain(10 * time.Millisecond) {
		t.Error("expected drain to time out with a stuck handler")
	}
}
