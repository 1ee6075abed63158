// Package calendar connects users to an external calendar and mirrors the
// important dates of their syllabi into it.
package calendar

import (
	"context"
	"errors"

	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
)

// Failure classes a Provider reports. Wrap them with %w.
var (
	// ErrTransient marks rate limiting, timeouts and 5xx responses.
	ErrTransient = errors.New("transient calendar error")
	// ErrCredentialRejected marks a revoked or expired credential.
	ErrCredentialRejected = errors.New("calendar credential rejected")
	// ErrEventGone marks an external event that no longer exists.
	ErrEventGone = errors.New("calendar event not found")
)

// Event is the provider-neutral payload of an all-day event.
type Event struct {
	Summary     string
	Description string
	Location    string
	Date        entity.Date
}

// Provider is an OAuth-backed calendar service.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for an opaque credential.
	Exchange(ctx context.Context, code string) ([]byte, error)
	Session(ctx context.Context, credential []byte) (Session, error)
}

// Session is a calendar client bound to one credential.
type Session interface {
	AccountEmail(ctx context.Context) (string, error)
	// EnsureCalendar returns the id of the calendar named name, creating it if needed.
	EnsureCalendar(ctx context.Context, name, timeZone string) (string, error)
	CreateEvent(ctx context.Context, calendarID string, ev Event) (string, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, ev Event) error
	// Credential returns the current credential and whether it changed since
	// the session was opened.
	Credential() ([]byte, bool, error)
}
