// Package store appends event records to the events table.
//
// Every Insert is a single best-effort statement on a connection acquired from
// the pool for that call only. There are no retries, no batching and no
// idempotency key; a failure is reported to the caller as a *StorageError.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/onnwee/guild-recorder/record"
	"github.com/onnwee/guild-recorder/telemetry"
)

const insertEventSQL = `INSERT INTO events (event_type, event_data, channel_id, category_id, user_id, associated_id) VALUES ($1, $2, $3, $4, $5, $6)`

// Failing steps reported in StorageError.Op.
const (
	OpEncode  = "encode"
	OpAcquire = "acquire"
	OpInsert  = "insert"
)

// StorageError reports a failed insert.
type StorageError struct {
	Op        string
	EventType record.EventType
	Err       error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.EventType, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// Store writes event records through a pooled *sql.DB.
type Store struct {
	db *sql.DB
}

// New returns a Store backed by db.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert serializes rec's payload and appends one row. The pooled connection is
// released before Insert returns, whatever the outcome.
func (s *Store) Insert(ctx context.Context, rec record.EventRecord) (err error) {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerStore, "store.insert", telemetry.EventTypeAttr(rec.Type.String()))
	defer func() {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.SetSpanSuccess(span)
		}
		span.End()
	}()

	data, err := rec.EncodePayload()
	if err != nil {
		return s.fail(OpEncode, rec, err)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return s.fail(OpAcquire, rec, err)
	}
	defer func() {
		_ = conn.Close() // returns the connection to the pool
	}()

	telemetry.TimeFunc(telemetry.InsertDuration, func() {
		_, err = conn.ExecContext(ctx, insertEventSQL,
			string(rec.Type), data,
			nullInt64(rec.ChannelID), nullInt64(rec.CategoryID),
			nullInt64(rec.UserID), nullInt64(rec.AssociatedID))
	})
	if err != nil {
		return s.fail(OpInsert, rec, err)
	}
	return nil
}

func (s *Store) fail(op string, rec record.EventRecord, err error) error {
	telemetry.IncVec(telemetry.InsertFailures, op)
	return &StorageError{Op: op, EventType: rec.Type, Err: err}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
