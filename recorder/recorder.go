// Package recorder wires normalized notifications to the event store.
//
// Each Handle method processes one notification independently: classify it,
// insert the resulting record once, then publish it. A failed insert is logged
// and the notification is dropped; it never stops later notifications from
// being handled. Handlers keep no state between calls and may run concurrently.
package recorder

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/onnwee/guild-recorder/events"
	"github.com/onnwee/guild-recorder/normalize"
	"github.com/onnwee/guild-recorder/record"
	"github.com/onnwee/guild-recorder/telemetry"
)

// Notification kinds, used as metric labels and span names.
const (
	KindMessageCreate = "message_create"
	KindMessageUpdate = "message_update"
	KindMessageDelete = "message_delete"
	KindVoiceState    = "voice_state_update"
	KindMemberAdd     = "member_add"
	KindMemberRemove  = "member_remove"
	KindMemberUpdate  = "member_update"
	KindBanAdd        = "ban_add"
	KindBanRemove     = "ban_remove"
)

// Inserter appends one record. *store.Store implements it.
type Inserter interface {
	Insert(ctx context.Context, rec record.EventRecord) error
}

// Recorder routes notifications through the normalizer into the store.
type Recorder struct {
	norm  *normalize.Normalizer
	store Inserter
	pub   events.Publisher
}

// New returns a Recorder. A nil publisher disables fan-out.
func New(n *normalize.Normalizer, ins Inserter, pub events.Publisher) *Recorder {
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	return &Recorder{norm: n, store: ins, pub: pub}
}

// GuildID returns the designated guild the recorder is scoped to.
func (r *Recorder) GuildID() int64 { return r.norm.GuildID() }

func (r *Recorder) HandleMessageCreate(ctx context.Context, m normalize.MessageCreate) {
	r.dispatch(ctx, KindMessageCreate, func() (record.EventRecord, bool) { return r.norm.MessageCreated(m) })
}

func (r *Recorder) HandleMessageEdit(ctx context.Context, m normalize.MessageEdit) {
	r.dispatch(ctx, KindMessageUpdate, func() (record.EventRecord, bool) { return r.norm.MessageEdited(m) })
}

func (r *Recorder) HandleMessageDelete(ctx context.Context, m normalize.MessageDelete) {
	r.dispatch(ctx, KindMessageDelete, func() (record.EventRecord, bool) { return r.norm.MessageDeleted(m) })
}

func (r *Recorder) HandleVoiceState(ctx context.Context, v normalize.VoiceStateChange) {
	r.dispatch(ctx, KindVoiceState, func() (record.EventRecord, bool) { return r.norm.VoiceStateChanged(v) })
}

func (r *Recorder) HandleMemberJoin(ctx context.Context, m normalize.MemberEvent) {
	r.dispatch(ctx, KindMemberAdd, func() (record.EventRecord, bool) { return r.norm.MemberJoined(m) })
}

func (r *Recorder) HandleMemberLeave(ctx context.Context, m normalize.MemberEvent) {
	r.dispatch(ctx, KindMemberRemove, func() (record.EventRecord, bool) { return r.norm.MemberLeft(m) })
}

func (r *Recorder) HandleMemberUpdate(ctx context.Context, m normalize.MemberUpdate) {
	r.dispatch(ctx, KindMemberUpdate, func() (record.EventRecord, bool) { return r.norm.MemberUpdated(m) })
}

func (r *Recorder) HandleMemberBan(ctx context.Context, m normalize.MemberEvent) {
	r.dispatch(ctx, KindBanAdd, func() (record.EventRecord, bool) { return r.norm.MemberBanned(m) })
}

func (r *Recorder) HandleMemberUnban(ctx context.Context, m normalize.MemberEvent) {
	r.dispatch(ctx, KindBanRemove, func() (record.EventRecord, bool) { return r.norm.MemberUnbanned(m) })
}

// Drop counts a notification the gateway adapter could not translate
// (e.g. a member update with no cached before-state).
func (r *Recorder) Drop(ctx context.Context, kind, reason string) {
	telemetry.IncVec(telemetry.EventsReceived, kind)
	telemetry.IncVec(telemetry.EventsDropped, kind)
	telemetry.LoggerWithCorr(ctx).Debug("notification dropped", slog.String("kind", kind), slog.String("reason", reason), slog.String("component", "recorder"))
}

func (r *Recorder) dispatch(ctx context.Context, kind string, classify func() (record.EventRecord, bool)) {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerRecorder, "recorder."+kind, telemetry.NotificationKindAttr(kind))
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("kind", kind), slog.String("component", "recorder"))

	telemetry.IncVec(telemetry.EventsReceived, kind)
	rec, ok := classify()
	if !ok {
		telemetry.IncVec(telemetry.EventsDropped, kind)
		log.Debug("notification dropped")
		return
	}

	if err := r.store.Insert(ctx, rec); err != nil {
		telemetry.RecordError(span, err)
		log.Error("failed to insert event", slog.String("event_type", rec.Type.String()), slog.Any("err", err))
		return
	}
	telemetry.IncVec(telemetry.EventsRecorded, rec.Type.String())
	log.Debug("event recorded", slog.String("event_type", rec.Type.String()))

	if err := r.pub.Publish(ctx, events.Subject(rec.Type), events.NewMessage(r.norm.GuildID(), rec)); err != nil {
		telemetry.IncPublishFailures()
		log.Warn("failed to publish event", slog.String("event_type", rec.Type.String()), slog.Any("err", err))
	}
}
