package testutil

import (
	"context"
	"sync"

	"github.com/onnwee/guild-recorder/events"
	"github.com/onnwee/guild-recorder/record"
)

// RecordingStore captures inserted records. Errors queued with FailNext are
// returned by subsequent inserts, one per call, before recording resumes.
type RecordingStore struct {
	mu       sync.Mutex
	records  []record.EventRecord
	failures []error
	calls    int
}

// FailNext queues err to be returned by the next Insert.
func (s *RecordingStore) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
}

// Insert implements recorder.Inserter.
func (s *RecordingStore) Insert(ctx context.Context, rec record.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return err
	}
	s.records = append(s.records, rec)
	return nil
}

// Records returns a copy of the stored records.
func (s *RecordingStore) Records() []record.EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]record.EventRecord(nil), s.records...)
}

// Calls returns how many times Insert was invoked.
func (s *RecordingStore) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// PublishedMessage is one call captured by RecordingPublisher.
type PublishedMessage struct {
	Subject string
	Message events.Message
}

// RecordingPublisher captures published messages and optionally fails every publish.
type RecordingPublisher struct {
	mu       sync.Mutex
	Err      error
	messages []PublishedMessage
}

func (p *RecordingPublisher) Publish(ctx context.Context, subject string, msg events.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.messages = append(p.messages, PublishedMessage{Subject: subject, Message: msg})
	return nil
}

func (p *RecordingPublisher) Close() error { return nil }

// Messages returns a copy of the published messages.
func (p *RecordingPublisher) Messages() []PublishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishedMessage(nil), p.messages...)
}
