package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/assistant-engine/internal/model"
	"github.com/capitalize-ai/assistant-engine/pkg/logger"
	"github.com/capitalize-ai/assistant-engine/pkg/metrics"
)

const (
	// DefaultStreamName is used when no stream name is configured.
	DefaultStreamName = "ASSISTANT"

	// SubjectPrefix is the prefix for all journal subjects.
	SubjectPrefix = "assistant"

	publishTimeout = 2 * time.Second
	maxRecent      = 500
)

// Journal publishes action and turn entries to a JetStream stream and
// reads back the most recent ones.
type Journal struct {
	client *Client
	stream string
	log    *logger.Logger
}

// NewJournal creates a Journal on stream.
func NewJournal(client *Client, stream string, log *logger.Logger) *Journal {
	if stream == "" {
		stream = DefaultStreamName
	}
	return &Journal{client: client, stream: stream, log: log.With("component", "journal")}
}

// EnsureStream creates the journal stream when it does not exist.
func (j *Journal) EnsureStream(ctx context.Context) error {
	js := j.client.JetStream()

	if _, err := js.Stream(ctx, j.stream); err == nil {
		return nil
	} else if !errors.Is(err, jetstream.ErrStreamNotFound) {
		return fmt.Errorf("failed to look up stream: %w", err)
	}

	_, err := js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        j.stream,
		Subjects:    []string{SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		DenyDelete:  true,
		DenyPurge:   true,
		Description: "Assistant action and turn journal",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// Subject returns the subject an entry is published on.
func Subject(e model.JournalEntry) string {
	if e.Kind == model.JournalTurn {
		return fmt.Sprintf("%s.turn.%s", SubjectPrefix, token(e.Outcome))
	}
	return fmt.Sprintf("%s.action.%s.%s", SubjectPrefix, token(e.Resource), token(e.Outcome))
}

// Record publishes e. Failures are logged and counted, never returned.
func (j *Journal) Record(ctx context.Context, e model.JournalEntry) {
	data, err := json.Marshal(e)
	if err != nil {
		j.log.Error("failed to marshal journal entry", "error", err)
		metrics.JournalPublishTotal.WithLabelValues("error").Inc()
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	var opts []jetstream.PublishOpt
	if e.ID != "" {
		opts = append(opts, jetstream.WithMsgID(e.ID))
	}
	if _, err := j.client.JetStream().Publish(pubCtx, Subject(e), data, opts...); err != nil {
		j.log.Warn("failed to publish journal entry", "subject", Subject(e), "error", err)
		metrics.JournalPublishTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.JournalPublishTotal.WithLabelValues("ok").Inc()
}

// Recent returns up to limit of the latest entries, oldest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]model.JournalEntry, error) {
	if limit <= 0 || limit > maxRecent {
		limit = 50
	}
	js := j.client.JetStream()

	stream, err := js.Stream(ctx, j.stream)
	if err != nil {
		return nil, fmt.Errorf("failed to look up stream: %w", err)
	}
	info, err := stream.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read stream info: %w", err)
	}
	if info.State.Msgs == 0 {
		return []model.JournalEntry{}, nil
	}

	start := info.State.FirstSeq
	if info.State.LastSeq >= uint64(limit) && info.State.LastSeq-uint64(limit)+1 > start {
		start = info.State.LastSeq - uint64(limit) + 1
	}

	// Ephemeral consumer; the server removes it once idle.
	consumer, err := js.CreateConsumer(ctx, j.stream, jetstream.ConsumerConfig{
		FilterSubject:     SubjectPrefix + ".>",
		AckPolicy:         jetstream.AckNonePolicy,
		DeliverPolicy:     jetstream.DeliverByStartSequencePolicy,
		OptStartSeq:       start,
		InactiveThreshold: 30 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}

	batch, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch entries: %w", err)
	}

	entries := make([]model.JournalEntry, 0, limit)
	for msg := range batch.Messages() {
		var e model.JournalEntry
		if err := json.Unmarshal(msg.Data(), &e); err != nil {
			continue
		}
		if meta, err := msg.Metadata(); err == nil {
			e.Sequence = meta.Sequence.Stream
		}
		entries = append(entries, e)
	}
	if err := batch.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, jetstream.ErrNoMessages) {
		return nil, fmt.Errorf("batch error: %w", err)
	}
	return entries, nil
}

// token makes s safe as a single subject token.
func token(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, strings.ToLower(s))
}
