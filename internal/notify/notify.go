// Package notify is the out-of-scope notifier boundary (spec 1, 7):
// Discord/email sinks themselves are excluded external collaborators,
// but both the Brain and the Gate produce a structured payload and
// hand it to a Sink. Grounded on internal/alerts/slack.go's sink
// interface and original_source/brain/src/notifier.py's structured
// (kind, symbol, strategy, summary, detail) shape (SPEC_FULL.md 12.6).
package notify

import (
	"context"

	"github.com/optionsdesk/trading-engine/internal/observ"
)

// Kind tags the type of notification.
type Kind string

const (
	ProposalApproved Kind = "PROPOSAL_APPROVED"
	ProposalRejected Kind = "PROPOSAL_REJECTED"
	SystemLocked     Kind = "SYSTEM_LOCKED"
	EndOfDayReport   Kind = "END_OF_DAY_REPORT"
)

// Message is the structured notifier payload both processes emit.
type Message struct {
	Kind     Kind
	Symbol   string
	Strategy string
	Summary  string
	Detail   map[string]any
}

// Sink is a fire-and-forget outbound notification target. A real
// Discord/email sink is the excluded external collaborator; this repo
// ships only a logging implementation.
type Sink interface {
	Notify(ctx context.Context, msg Message)
}

// LoggingSink records every notification via internal/observ instead
// of delivering it anywhere. Failures here are impossible by
// construction, matching spec 7's "heartbeat/notification failure:
// logged, not retried; never impact trading".
type LoggingSink struct{}

func (LoggingSink) Notify(ctx context.Context, msg Message) {
	observ.Log("notification", map[string]any{
		"kind":     msg.Kind,
		"symbol":   msg.Symbol,
		"strategy": msg.Strategy,
		"summary":  msg.Summary,
		"detail":   msg.Detail,
	})
}

// MultiSink fans a notification out to several sinks, each best-effort.
type MultiSink struct {
	Sinks []Sink
}

func (m MultiSink) Notify(ctx context.Context, msg Message) {
	for _, s := range m.Sinks {
		s.Notify(ctx, msg)
	}
}
