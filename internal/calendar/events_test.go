package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/joseph-ayodele/syllabus-sync/constants"
	"github.com/joseph-ayodele/syllabus-sync/internal/common"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
)

func TestPlanEvents(t *testing.T) {
	rec := fullRecord("u1")
	planned := PlanEvents(rec)
	require.Len(t, planned, 5)

	var summaries []string
	for _, p := range planned {
		summaries = append(summaries, p.Event.Summary)
		assert.Equal(t, "Hall 2", p.Event.Location)
		assert.Equal(t, rec.ID, p.Key.SyllabusID)
	}
	assert.Equal(t, []string{
		"CS 101 - First Class",
		"CS 101 - Last Class",
		"CS 101 - Midterm 1",
		"CS 101 - Midterm 2",
		"CS 101 - Final Exam",
	}, summaries)
	assert.Equal(t, "First class for Intro to Computing", planned[0].Event.Description)
	assert.Equal(t, "Midterm 2 for Intro to Computing", planned[3].Event.Description)
	assert.Equal(t, constants.FieldMidterm, planned[3].Key.FieldKind)
	assert.Equal(t, 1, planned[3].Key.OccurrenceIndex)
}

func TestPlanEventsSkipsAbsentDates(t *testing.T) {
	rec := fullRecord("u1")
	rec.ImportantDates = entity.ImportantDates{FinalExam: datePtr(2026, time.May, 4)}
	planned := PlanEvents(rec)
	require.Len(t, planned, 1)
	assert.Equal(t, constants.FieldFinalExam, planned[0].Key.FieldKind)
}

func TestGoogleEventIsAllDay(t *testing.T) {
	ev := toGoogleEvent(Event{Summary: "CS 101 - Final Exam", Date: entity.NewDate(2026, time.December, 31)})
	assert.Equal(t, "2026-12-31", ev.Start.Date)
	assert.Equal(t, "2027-01-01", ev.End.Date)
	assert.Empty(t, ev.Start.DateTime)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{"unauthorized", &googleapi.Error{Code: http.StatusUnauthorized}, ErrCredentialRejected},
		{"insufficient permissions", &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "insufficientPermissions"}}}, ErrCredentialRejected},
		{"auth error", &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "authError"}}}, ErrCredentialRejected},
		{"rate limit reason", &googleapi.Error{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "rateLimitExceeded"}}}, ErrTransient},
		{"too many requests", &googleapi.Error{Code: http.StatusTooManyRequests}, ErrTransient},
		{"server error", &googleapi.Error{Code: http.StatusBadGateway}, ErrTransient},
		{"not found", &googleapi.Error{Code: http.StatusNotFound}, ErrEventGone},
		{"gone", &googleapi.Error{Code: http.StatusGone}, ErrEventGone},
		{"invalid grant", &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadRequest}, ErrorCode: "invalid_grant"}, ErrCredentialRejected},
		{"token endpoint down", &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusServiceUnavailable}}, ErrTransient},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tc.err), tc.want)
		})
	}

	// these fail one event and leave the connection alone
	for _, bad := range []*googleapi.Error{
		{Code: http.StatusBadRequest},
		{Code: http.StatusForbidden},
		{Code: http.StatusForbidden, Errors: []googleapi.ErrorItem{{Reason: "forbiddenForNonOrganizer"}}},
	} {
		got := classify(bad)
		assert.False(t, errors.Is(got, ErrTransient) || errors.Is(got, ErrCredentialRejected) || errors.Is(got, ErrEventGone), bad.Error())
	}
	assert.Nil(t, classify(nil))
}

func TestRetryPolicy(t *testing.T) {
	var slept []time.Duration
	p := retryPolicy{
		maxRetries: 3,
		backoff:    100 * time.Millisecond,
		maxBackoff: 250 * time.Millisecond,
		sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}

	calls := 0
	err := p.do(context.Background(), func(context.Context) error {
		calls++
		return ErrTransient
	})
	require.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond}, slept)

	calls = 0
	err = p.do(context.Background(), func(context.Context) error {
		calls++
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestRetryTreatsCallTimeoutAsTransient(t *testing.T) {
	p := retryPolicy{maxRetries: 1, callTimeout: 5 * time.Millisecond, sleep: func(context.Context, time.Duration) error { return nil }}
	calls := 0
	err := p.do(context.Background(), func(ctx context.Context) error {
		calls++
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, ErrTransient)
	assert.Equal(t, 2, calls)
}

func TestStateSigner(t *testing.T) {
	now := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	signer, err := NewStateSigner("secret", 30*time.Minute, clock)
	require.NoError(t, err)

	token, err := signer.Sign("u1", "google")
	require.NoError(t, err)
	user, provider, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", user)
	assert.Equal(t, "google", provider)

	other, err := NewStateSigner("other", 30*time.Minute, clock)
	require.NoError(t, err)
	_, _, err = other.Verify(token)
	require.ErrorIs(t, err, common.ErrAuthorizationRequired)

	now = now.Add(31 * time.Minute)
	_, _, err = signer.Verify(token)
	require.ErrorIs(t, err, common.ErrAuthorizationRequired)

	_, err = NewStateSigner("", time.Minute, nil)
	require.Error(t, err)
}

func TestTransitionGuards(t *testing.T) {
	now := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	st := &entity.CalendarSyncState{Status: constants.StatusDisconnected}

	require.ErrorIs(t, transition(st, constants.StatusConnected, now), common.ErrInvalidTransition)
	require.NoError(t, transition(st, constants.StatusPendingAuthorization, now))
	require.NotNil(t, st.PendingSince)
	assert.False(t, pendingExpired(st, 30*time.Minute, now.Add(30*time.Minute)))
	assert.True(t, pendingExpired(st, 30*time.Minute, now.Add(30*time.Minute+time.Second)))

	st.Credential = []byte("x")
	require.NoError(t, transition(st, constants.StatusConnected, now))
	assert.Nil(t, st.PendingSince)
	require.ErrorIs(t, transition(st, constants.StatusPendingAuthorization, now), common.ErrInvalidTransition)
	require.NoError(t, transition(st, constants.StatusDisconnected, now))
	assert.Nil(t, st.Credential)
}
