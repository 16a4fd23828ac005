package normalize

import (
	"reflect"
	"testing"

	"github.com/onnwee/guild-recorder/record"
)

const (
	testGuild  int64 = 1000
	otherGuild int64 = 2000
)

type fakeChannels map[int64]Channel

func (f fakeChannels) Channel(id int64) (Channel, bool) {
	ch, ok := f[id]
	return ch, ok
}

func newTestNormalizer() *Normalizer {
	return New(testGuild, fakeChannels{
		10: {ID: 10, GuildID: testGuild, ParentID: record.Int64(90)},
		11: {ID: 11, GuildID: testGuild},
		20: {ID: 20, GuildID: otherGuild},
	})
}

func strPtr(s string) *string { return &s }

func payloadJSON(t *testing.T, rec record.EventRecord) string {
	t.Helper()
	s, err := rec.EncodePayload()
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	return s
}

func TestForeignGuildDroppedForEveryKind(t *testing.T) {
	n := newTestNormalizer()
	cases := map[string]func() bool{
		"message create": func() bool {
			_, ok := n.MessageCreated(MessageCreate{GuildID: otherGuild, ChannelID: 20, AuthorID: 1, MessageID: 2, Content: "x"})
			return ok
		},
		"message edit": func() bool {
			_, ok := n.MessageEdited(MessageEdit{ChannelID: 20, MessageID: 2, Content: strPtr("x")})
			return ok
		},
		"message delete": func() bool {
			_, ok := n.MessageDeleted(MessageDelete{ChannelID: 20, MessageID: 2})
			return ok
		},
		"voice": func() bool {
			_, ok := n.VoiceStateChanged(VoiceStateChange{GuildID: otherGuild, UserID: 1, After: &VoiceChannel{ID: 30}})
			return ok
		},
		"member join": func() bool {
			_, ok := n.MemberJoined(MemberEvent{GuildID: otherGuild, UserID: 1})
			return ok
		},
		"member leave": func() bool {
			_, ok := n.MemberLeft(MemberEvent{GuildID: otherGuild, UserID: 1})
			return ok
		},
		"member update": func() bool {
			_, ok := n.MemberUpdated(MemberUpdate{GuildID: otherGuild,
				Before: MemberSnapshot{UserID: 1, Pending: true},
				After:  MemberSnapshot{UserID: 1}})
			return ok
		},
		"member ban": func() bool {
			_, ok := n.MemberBanned(MemberEvent{GuildID: otherGuild, UserID: 1})
			return ok
		},
		"member unban": func() bool {
			_, ok := n.MemberUnbanned(MemberEvent{GuildID: otherGuild, UserID: 1})
			return ok
		},
	}
	for name, fn := range cases {
		t.Run(name, func(t *testing.T) {
			if fn() {
				t.Errorf("%s from foreign guild produced a record", name)
			}
		})
	}
}

func TestMessageCreated(t *testing.T) {
	n := newTestNormalizer()

	rec, ok := n.MessageCreated(MessageCreate{GuildID: testGuild, ChannelID: 10, CategoryID: record.Int64(90), MessageID: 5, AuthorID: 7, Content: "hi"})
	if !ok {
		t.Fatal("expected record")
	}
	want := record.NewMessageCreate("hi", 10, record.Int64(90), 7, 5)
	if !reflect.DeepEqual(rec, want) {
		t.Errorf("got %+v, want %+v", rec, want)
	}

	for _, content := range []string{"", "hi", "!command"} {
		if _, ok := n.MessageCreated(MessageCreate{GuildID: testGuild, ChannelID: 10, MessageID: 5, AuthorID: 7, AuthorBot: true, Content: content}); ok {
			t.Errorf("bot message %q produced a record", content)
		}
	}
}

func TestMessageEdited(t *testing.T) {
	n := newTestNormalizer()

	if _, ok := n.MessageEdited(MessageEdit{ChannelID: 10, MessageID: 5, AuthorID: record.Int64(7)}); ok {
		t.Error("edit without content produced a record")
	}
	if _, ok := n.MessageEdited(MessageEdit{ChannelID: 99, MessageID: 5, Content: strPtr("hello")}); ok {
		t.Error("edit in unknown channel produced a record")
	}

	rec, ok := n.MessageEdited(MessageEdit{ChannelID: 10, MessageID: 5, Content: strPtr("hello"), AuthorID: record.Int64(7)})
	if !ok {
		t.Fatal("expected record")
	}
	if rec.Type != record.MessageUpdate {
		t.Errorf("type = %s", rec.Type)
	}
	if got := payloadJSON(t, rec); got != `{"content":"hello"}` {
		t.Errorf("payload = %s", got)
	}
	if *rec.ChannelID != 10 || *rec.CategoryID != 90 || *rec.UserID != 7 || *rec.AssociatedID != 5 {
		t.Errorf("columns = %+v", rec)
	}

	// Empty string content is still a content edit.
	rec, ok = n.MessageEdited(MessageEdit{ChannelID: 11, MessageID: 6, Content: strPtr("")})
	if !ok {
		t.Fatal("expected record for empty content")
	}
	if rec.CategoryID != nil || rec.UserID != nil {
		t.Errorf("expected nil category and user, got %+v", rec)
	}
}

func TestMessageDeleted(t *testing.T) {
	n := newTestNormalizer()
	rec, ok := n.MessageDeleted(MessageDelete{ChannelID: 10, MessageID: 5})
	if !ok {
		t.Fatal("expected record")
	}
	want := record.NewMessageDelete(10, record.Int64(90), 5)
	if !reflect.DeepEqual(rec, want) {
		t.Errorf("got %+v, want %+v", rec, want)
	}
	if rec.UserID != nil {
		t.Error("delete should not carry a user")
	}
	if _, ok := n.MessageDeleted(MessageDelete{ChannelID: 404, MessageID: 5}); ok {
		t.Error("delete in unresolvable channel produced a record")
	}
}

func TestNilResolverDropsRawEvents(t *testing.T) {
	n := New(testGuild, nil)
	if _, ok := n.MessageDeleted(MessageDelete{ChannelID: 10, MessageID: 5}); ok {
		t.Error("expected drop without resolver")
	}
}

func TestVoiceStateChanged(t *testing.T) {
	n := newTestNormalizer()
	c1 := &VoiceChannel{ID: 31, CategoryID: record.Int64(90)}
	c2 := &VoiceChannel{ID: 32}

	tests := []struct {
		name        string
		before      *VoiceChannel
		after       *VoiceChannel
		wantOK      bool
		wantType    record.EventType
		wantChannel int64
	}{
		{"join", nil, c1, true, record.VoiceJoin, 31},
		{"leave", c1, nil, true, record.VoiceLeave, 31},
		{"move", c1, c2, true, record.VoiceMove, 32},
		{"no transition", nil, nil, false, "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := n.VoiceStateChanged(VoiceStateChange{GuildID: testGuild, UserID: 7, Before: tt.before, After: tt.after})
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if rec.Type != tt.wantType || *rec.ChannelID != tt.wantChannel || *rec.UserID != 7 {
				t.Errorf("got %+v", rec)
			}
			if rec.AssociatedID != nil {
				t.Error("voice records carry no associated id")
			}
			if got := payloadJSON(t, rec); got != `{}` {
				t.Errorf("payload = %s", got)
			}
		})
	}

	rec, _ := n.VoiceStateChanged(VoiceStateChange{GuildID: testGuild, UserID: 7, Before: c1, After: nil})
	if rec.CategoryID == nil || *rec.CategoryID != 90 {
		t.Errorf("leave should carry source category, got %+v", rec.CategoryID)
	}
}

func TestMemberEvents(t *testing.T) {
	n := newTestNormalizer()
	tests := []struct {
		fn   func(MemberEvent) (record.EventRecord, bool)
		want record.EventType
	}{
		{n.MemberJoined, record.MemberJoin},
		{n.MemberLeft, record.MemberLeave},
		{n.MemberBanned, record.MemberBan},
		{n.MemberUnbanned, record.MemberUnban},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			rec, ok := tt.fn(MemberEvent{GuildID: testGuild, UserID: 42})
			if !ok {
				t.Fatal("expected record")
			}
			if !reflect.DeepEqual(rec, record.NewMember(tt.want, 42)) {
				t.Errorf("got %+v", rec)
			}
		})
	}
}

func TestMemberUpdated(t *testing.T) {
	n := newTestNormalizer()
	base := MemberSnapshot{UserID: 42, Status: "online", Activity: "", Nick: strPtr("old"), Roles: []int64{3, 1}}

	with := func(mut func(*MemberSnapshot)) MemberSnapshot {
		s := base
		s.Roles = append([]int64(nil), base.Roles...)
		mut(&s)
		return s
	}

	tests := []struct {
		name        string
		before      MemberSnapshot
		after       MemberSnapshot
		wantOK      bool
		wantPayload string
	}{
		{"status only", base, with(func(s *MemberSnapshot) { s.Status = "idle" }), false, ""},
		{"activity only", base, with(func(s *MemberSnapshot) { s.Activity = "Playing chess" }), false, ""},
		{"status masks nickname", base, with(func(s *MemberSnapshot) { s.Status = "dnd"; s.Nick = strPtr("new") }), false, ""},
		{"gate accept", with(func(s *MemberSnapshot) { s.Pending = true }), base, true, `{"event":"member_gate_accept"}`},
		{"gate beats nickname", with(func(s *MemberSnapshot) { s.Pending = true }), with(func(s *MemberSnapshot) { s.Nick = strPtr("new") }), true, `{"event":"member_gate_accept"}`},
		{"pending set is not gate", base, with(func(s *MemberSnapshot) { s.Pending = true }), false, ""},
		{"nickname", base, with(func(s *MemberSnapshot) { s.Nick = strPtr("new") }), true, `{"event":"nickname_change","before":"old","after":"new"}`},
		{"nickname cleared", base, with(func(s *MemberSnapshot) { s.Nick = nil }), true, `{"event":"nickname_change","before":"old","after":null}`},
		{"nickname and roles", base, with(func(s *MemberSnapshot) { s.Nick = strPtr("new"); s.Roles = []int64{1} }), true, `{"event":"nickname_change","before":"old","after":"new"}`},
		{"roles", base, with(func(s *MemberSnapshot) { s.Roles = []int64{1, 2, 3} }), true, `{"event":"role_change","before":[1,3],"after":[1,2,3]}`},
		{"roles reordered only", base, with(func(s *MemberSnapshot) { s.Roles = []int64{1, 3} }), false, ""},
		{"nothing", base, base, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, ok := n.MemberUpdated(MemberUpdate{GuildID: testGuild, Before: tt.before, After: tt.after})
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if rec.Type != record.MemberUpdate || *rec.UserID != 42 {
				t.Errorf("got %+v", rec)
			}
			if rec.ChannelID != nil || rec.CategoryID != nil || rec.AssociatedID != nil {
				t.Errorf("member update should only carry user: %+v", rec)
			}
			if got := payloadJSON(t, rec); got != tt.wantPayload {
				t.Errorf("payload = %s, want %s", got, tt.wantPayload)
			}
		})
	}
}

func TestMemberUpdatedDoesNotAliasInput(t *testing.T) {
	n := newTestNormalizer()
	before := MemberSnapshot{UserID: 1, Roles: []int64{2, 1}}
	after := MemberSnapshot{UserID: 1, Roles: []int64{3}}
	rec, ok := n.MemberUpdated(MemberUpdate{GuildID: testGuild, Before: before, After: after})
	if !ok {
		t.Fatal("expected record")
	}
	before.Roles[0] = 99
	rc := rec.Payload.(record.RoleChange)
	if !reflect.DeepEqual(rc.Before, []int64{1, 2}) {
		t.Errorf("payload aliases input roles: %v", rc.Before)
	}
}

func TestClassificationIsPure(t *testing.T) {
	n := newTestNormalizer()
	upd := MemberUpdate{GuildID: testGuild,
		Before: MemberSnapshot{UserID: 5, Nick: strPtr("a"), Roles: []int64{1}},
		After:  MemberSnapshot{UserID: 5, Nick: strPtr("b"), Roles: []int64{1}}}
	first, ok1 := n.MemberUpdated(upd)
	second, ok2 := n.MemberUpdated(upd)
	if !ok1 || !ok2 {
		t.Fatal("expected records")
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("records differ: %+v vs %+v", first, second)
	}

	msg := MessageCreate{GuildID: testGuild, ChannelID: 10, MessageID: 1, AuthorID: 2, Content: "same"}
	a, _ := n.MessageCreated(msg)
	b, _ := n.MessageCreated(msg)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("message records differ: %+v vs %+v", a, b)
	}
}
