// Package esnats persists event streams in NATS JetStream, one stream
// per aggregate type. Optimistic concurrency is enforced by the broker:
// every publish declares the last stream sequence it expects for its
// aggregate's subjects, so a stale writer is rejected without a lock.
package esnats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/synadia-io/orbit.go/jetstreamext"

	"github.com/clinicore/eventkit/pkg/event"
	"github.com/clinicore/eventkit/pkg/store"
)

const maxAckPending = 1000

type StoreType jetstream.StorageType

const (
	Disk StoreType = iota
	Memory
)

// Stream implements store.EventStore over one JetStream stream.
type Stream struct {
	dedupe    time.Duration
	storeType StoreType
	aggrType  string
	js        jetstream.JetStream
	stream    jetstream.Stream
}

type Option func(*Stream)

func WithInMemory() Option {
	return func(s *Stream) {
		s.storeType = Memory
	}
}

// WithDedupeWindow sets the broker-side message-id deduplication window
// used for idempotent appends.
func WithDedupeWindow(d time.Duration) Option {
	return func(s *Stream) {
		s.dedupe = d
	}
}

// NewStream creates or updates the JetStream stream for aggrType.
func NewStream(ctx context.Context, js jetstream.JetStream, aggrType string, opts ...Option) (*Stream, error) {
	s := &Stream{
		js:       js,
		aggrType: aggrType,
		dedupe:   2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}

	jss, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        s.streamName(),
		Subjects:    []string{s.allSubjects()},
		Storage:     jetstream.StorageType(s.storeType),
		Duplicates:  s.dedupe,
		AllowDirect: true,
	})
	if err != nil {
		return nil, fmt.Errorf("esnats: create stream: %w", err)
	}
	s.stream = jss
	return s, nil
}

func (s *Stream) streamName() string {
	return "es-" + s.aggrType
}

func (s *Stream) allSubjects() string {
	return fmt.Sprintf("es.%s.>", s.aggrType)
}

func (s *Stream) subjectFor(aggrID, kind string) string {
	return fmt.Sprintf("es.%s.%s.%s", s.aggrType, aggrID, kind)
}

func (s *Stream) subjectsForID(aggrID string) string {
	return fmt.Sprintf("es.%s.%s.*", s.aggrType, aggrID)
}

// last returns the logical version and stream sequence of the newest
// message for one aggregate, or zeros for an unknown aggregate.
func (s *Stream) last(ctx context.Context, aggrID string) (version, seq uint64, err error) {
	raw, err := s.stream.GetLastMsgForSubject(ctx, s.subjectsForID(aggrID))
	if err != nil {
		if errors.Is(err, jetstream.ErrMsgNotFound) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("esnats: last message: %w", err)
	}
	var envel event.Envelope
	if err := json.Unmarshal(raw.Data, &envel); err != nil {
		return 0, 0, fmt.Errorf("esnats: last message: %w", err)
	}
	return envel.Version, raw.Sequence, nil
}

// Append publishes the batch. The first publish expects the stream
// sequence observed for this aggregate's subjects; each following
// publish expects the acked sequence of the previous one, so a
// concurrent writer anywhere in the batch trips the broker's
// wrong-last-sequence check and the append surfaces a ConflictError.
func (s *Stream) Append(ctx context.Context, aggregateID string, events []*event.Envelope, expectedVersion uint64) error {
	current, lastSeq, err := s.last(ctx, aggregateID)
	if err != nil {
		return err
	}
	if current != expectedVersion {
		return &store.ConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: current}
	}
	if err := event.ValidateSequence(current, events); err != nil {
		return fmt.Errorf("esnats: append: %w", err)
	}

	for _, envel := range events {
		data, err := json.Marshal(envel)
		if err != nil {
			return fmt.Errorf("esnats: append: %w", err)
		}
		msg := nats.NewMsg(s.subjectFor(aggregateID, envel.Kind))
		msg.Header.Add(jetstream.MsgIDHeader, envel.ID.String())
		msg.Data = data

		ack, err := s.js.PublishMsg(ctx, msg,
			jetstream.WithExpectLastSequenceForSubject(lastSeq, s.subjectsForID(aggregateID)))
		if err != nil {
			var apierr *jetstream.APIError
			if errors.As(err, &apierr) && apierr.ErrorCode == jetstream.JSErrCodeStreamWrongLastSequence {
				return &store.ConflictError{AggregateID: aggregateID, Expected: expectedVersion, Actual: current}
			}
			return fmt.Errorf("esnats: append: %w", err)
		}
		lastSeq = ack.Sequence
		slog.Debug("event stored", "kind", envel.Kind, "version", envel.Version, "stream", s.streamName())
	}
	return nil
}

// ReadEvents returns the aggregate's events with version > fromVersion.
func (s *Stream) ReadEvents(ctx context.Context, aggregateID string, fromVersion uint64) ([]*event.Envelope, error) {
	msgs, err := jetstreamext.GetBatch(ctx, s.js, s.streamName(), math.MaxInt,
		jetstreamext.GetBatchSubject(s.subjectsForID(aggregateID)))
	if err != nil {
		if errors.Is(err, jetstreamext.ErrNoMessages) {
			return nil, store.ErrNoAggregate
		}
		return nil, fmt.Errorf("esnats: read events: %w", err)
	}

	var envelopes []*event.Envelope
	for msg, err := range msgs {
		if err != nil {
			if errors.Is(err, jetstreamext.ErrNoMessages) {
				if envelopes == nil && fromVersion == 0 {
					return nil, store.ErrNoAggregate
				}
				break
			}
			return nil, fmt.Errorf("esnats: read events: %w", err)
		}
		var envel event.Envelope
		if err := json.Unmarshal(msg.Data, &envel); err != nil {
			return nil, fmt.Errorf("esnats: read events: %w", err)
		}
		if envel.Version > fromVersion {
			envelopes = append(envelopes, &envel)
		}
	}
	if envelopes == nil && fromVersion == 0 {
		return nil, store.ErrNoAggregate
	}
	return envelopes, nil
}
