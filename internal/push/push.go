// Package push delivers notifications to device tokens. Senders are
// at-most-once: a failed send is reported, never retried.
package push

import (
	"context"
	"log/slog"
)

// Message is one notification addressed to a set of device tokens.
type Message struct {
	Tokens []string          `json:"tokens"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
}

// Result counts per-token outcomes of a Send.
type Result struct {
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
}

// Sender delivers a Message. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// LogSender writes messages to the log instead of delivering them.
// Used in development when no push transport is configured.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender returns a Sender that only logs.
func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, msg Message) (Result, error) {
	s.log.InfoContext(ctx, "push notification",
		"title", msg.Title,
		"body", msg.Body,
		"recipients", len(msg.Tokens),
	)
	return Result{SuccessCount: len(msg.Tokens)}, nil
}
