// Package publish sends the flat profile of a session to Kafka.
package publish

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/getsentry/rtprofile/internal/analyzer"
	"github.com/getsentry/rtprofile/internal/session"
)

type (
	// Writer is satisfied by *kafka.Writer.
	Writer interface {
		WriteMessages(ctx context.Context, msgs ...kafka.Message) error
		Close() error
	}

	// FunctionsMessage is what we send to Kafka for every stored session.
	FunctionsMessage struct {
		DurationNS    uint64                     `json:"duration_ns"`
		Environment   string                     `json:"environment,omitempty"`
		Functions     []analyzer.FunctionMetrics `json:"functions"`
		ID            string                     `json:"profile_id"`
		RetentionDays int                        `json:"retention_days"`
		Threads       int                        `json:"threads"`
		Timestamp     int64                      `json:"timestamp"`
	}
)

func NewFunctionsMessage(s session.Session, environment string, retentionDays int) FunctionsMessage {
	return FunctionsMessage{
		DurationNS:    s.DurationNS,
		Environment:   environment,
		Functions:     s.Functions,
		ID:            s.ID,
		RetentionDays: retentionDays,
		Threads:       len(s.Threads),
		Timestamp:     s.StartedAt.Unix(),
	}
}

// Functions writes the message keyed by the session id.
func Functions(ctx context.Context, w Writer, m FunctionsMessage) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	err = w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.ID),
		Value: b,
	})
	if err != nil {
		return fmt.Errorf("publish: write functions message: %w", err)
	}
	return nil
}
