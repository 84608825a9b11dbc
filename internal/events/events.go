// Package events publishes the audit trail of authentication and account management.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Type names an audit event.
type Type string

// Audit event types.
const (
	LoginSucceeded   Type = "auth.login.succeeded"
	LoginFailed      Type = "auth.login.failed"
	LockoutTriggered Type = "auth.lockout.triggered"
	LoggedOut        Type = "auth.logout"
	SessionExpired   Type = "auth.session.expired"

	AccountCreated       Type = "account.created"
	AccountUpdated       Type = "account.updated"
	AccountDeleted       Type = "account.deleted"
	AccountActivated     Type = "account.activated"
	AccountDeactivated   Type = "account.deactivated"
	AccountSecretChanged Type = "account.password_changed"
	AdministratorSeeded  Type = "account.bootstrap"

	BackupCreated  Type = "backup.created"
	BackupRestored Type = "backup.restored"
	BackupPruned   Type = "backup.pruned"
)

// Event is one audit record. It never carries secrets or hashes.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`

	// Actor is the username of the session performing the action, empty when anonymous.
	Actor string `json:"actor,omitempty"`

	// Subject is the identifier or username the event is about.
	Subject string `json:"subject,omitempty"`

	// SubjectID is the account ID the event is about, 0 when unknown.
	SubjectID int64 `json:"subject_id,omitempty"`

	Details map[string]string `json:"details,omitempty"`
}

// New creates an event with a fresh ID.
func New(t Type, at time.Time, actor, subject string, subjectID int64) Event {
	return Event{
		ID:         uuid.New(),
		Type:       t,
		OccurredAt: at.UTC(),
		Actor:      actor,
		Subject:    subject,
		SubjectID:  subjectID,
	}
}

// With returns a copy of e with an extra detail.
func (e Event) With(key, value string) Event {
	details := make(map[string]string, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	e.Details = details
	return e
}

// Publisher delivers audit events. Publish failures never change the outcome of
// the operation that produced the event.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// LogPublisher writes events to a zerolog logger.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a publisher that logs each event at info level.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "audit").Logger()}
}

// Publish logs the event.
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	ev := p.logger.Info().
		Str("event_id", event.ID.String()).
		Str("event", string(event.Type)).
		Time("occurred_at", event.OccurredAt)
	if event.Actor != "" {
		ev = ev.Str("actor", event.Actor)
	}
	if event.Subject != "" {
		ev = ev.Str("subject", event.Subject)
	}
	if event.SubjectID != 0 {
		ev = ev.Int64("subject_id", event.SubjectID)
	}
	for k, v := range event.Details {
		ev = ev.Str(k, v)
	}
	ev.Msg("audit event")
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }

// NoopPublisher discards events.
type NoopPublisher struct{}

// Publish discards the event.
func (NoopPublisher) Publish(context.Context, Event) error { return nil }

// Close is a no-op.
func (NoopPublisher) Close() error { return nil }

var (
	_ Publisher = (*LogPublisher)(nil)
	_ Publisher = NoopPublisher{}
)
