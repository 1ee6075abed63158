package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/syllabus-sync/internal/common"
	"github.com/joseph-ayodele/syllabus-sync/internal/crypto"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
	"github.com/joseph-ayodele/syllabus-sync/internal/repository"
	"github.com/joseph-ayodele/syllabus-sync/internal/testutil"
)

type fakeProvider struct {
	session   *fakeSession
	lastCreds [][]byte
}

func (p *fakeProvider) Name() string { return "google" }

func (p *fakeProvider) AuthCodeURL(state string) string {
	return "https://auth.test/authorize?state=" + url.QueryEscape(state)
}

func (p *fakeProvider) Exchange(_ context.Context, code string) ([]byte, error) {
	if code == "bad-code" {
		return nil, fmt.Errorf("exchange: %w", ErrCredentialRejected)
	}
	return []byte("token:" + code), nil
}

func (p *fakeProvider) Session(_ context.Context, credential []byte) (Session, error) {
	p.lastCreds = append(p.lastCreds, append([]byte(nil), credential...))
	return p.session, nil
}

// fakeSession is an in-memory calendar. hook, when set, runs before every
// create or update with the per-operation call number and may fail the call.
// afterCreate runs once a create has been stored.
type fakeSession struct {
	mu          sync.Mutex
	events      map[string]Event
	nextID      int
	creates     int
	updates     int
	hook        func(op string, n int, ev Event) error
	afterCreate func(n int)
	credential  []byte
	refreshed   bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: map[string]Event{}, credential: []byte("token:good-code")}
}

func (s *fakeSession) AccountEmail(context.Context) (string, error) {
	return "student@example.edu", nil
}

func (s *fakeSession) EnsureCalendar(_ context.Context, name, _ string) (string, error) {
	return "cal-" + name, nil
}

func (s *fakeSession) CreateEvent(ctx context.Context, _ string, ev Event) (string, error) {
	s.mu.Lock()
	s.creates++
	n, hook := s.creates, s.hook
	s.mu.Unlock()
	if hook != nil {
		if err := hook("create", n, ev); err != nil {
			return "", err
		}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("evt-%d", s.nextID)
	s.events[id] = ev
	after := s.afterCreate
	s.mu.Unlock()
	if after != nil {
		after(n)
	}
	return id, nil
}

func (s *fakeSession) UpdateEvent(_ context.Context, _ string, eventID string, ev Event) error {
	s.mu.Lock()
	s.updates++
	n, hook := s.updates, s.hook
	s.mu.Unlock()
	if hook != nil {
		if err := hook("update", n, ev); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[eventID]; !ok {
		return fmt.Errorf("update %s: %w", eventID, ErrEventGone)
	}
	s.events[eventID] = ev
	return nil
}

func (s *fakeSession) Credential() ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.credential...), s.refreshed, nil
}

func (s *fakeSession) counts() (creates, updates, events int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates, s.updates, len(s.events)
}

type countingRecorder struct {
	mu          sync.Mutex
	events      map[string]int
	transitions []string
}

func (r *countingRecorder) SyncEvent(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.events == nil {
		r.events = map[string]int{}
	}
	r.events[result]++
}

func (r *countingRecorder) Transition(from, to string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, from+"->"+to)
}

type harness struct {
	sync     *Synchronizer
	states   repository.CalendarStateRepository
	mappings repository.MappingRepository
	provider *fakeProvider
	session  *fakeSession
	clock    *testutil.Clock
	recorder *countingRecorder
	signer   *StateSigner
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := repository.OpenSQLite(ctx, fmt.Sprintf("file:%s?mode=memory", uuid.NewString()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	require.NoError(t, repository.Migrate(ctx, db, nil))

	clock := testutil.NewClock(time.Time{})
	signer, err := NewStateSigner("state-secret", 30*time.Minute, clock.NowFunc())
	require.NoError(t, err)

	h := &harness{
		states:   repository.NewCalendarStateRepository(db, nil, repository.WithClock(clock.NowFunc())),
		mappings: repository.NewMappingRepository(db, nil, repository.WithClock(clock.NowFunc())),
		session:  newFakeSession(),
		clock:    clock,
		recorder: &countingRecorder{},
		signer:   signer,
	}
	h.provider = &fakeProvider{session: h.session}
	base := []Option{
		WithClock(clock.NowFunc()),
		WithRecorder(h.recorder),
		WithRetry(3, time.Millisecond),
		WithLocks(common.NewKeyedMutex()),
	}
	h.sync = NewSynchronizer(h.provider, h.states, h.mappings, crypto.NewPlainEncryptor(), signer, nil, append(base, opts...)...)
	return h
}

func (h *harness) connect(t *testing.T, userID string) {
	t.Helper()
	ctx := context.Background()
	_, err := h.sync.InitiateAuthorization(ctx, userID)
	require.NoError(t, err)
	require.NoError(t, h.sync.CompleteAuthorization(ctx, userID, "good-code"))
}

func datePtr(y int, m time.Month, d int) *entity.Date {
	v := entity.NewDate(y, m, d)
	return &v
}

func fullRecord(owner string) *entity.Syllabus {
	return &entity.Syllabus{
		ID:          uuid.New(),
		OwnerID:     owner,
		Course:      entity.Course{Code: "CS 101", Name: "Intro to Computing"},
		MeetingInfo: entity.MeetingInfo{Location: "Hall 2"},
		ImportantDates: entity.ImportantDates{
			FirstClass: datePtr(2026, time.January, 12),
			LastClass:  datePtr(2026, time.April, 24),
			Midterms:   []entity.Date{entity.NewDate(2026, time.February, 20), entity.NewDate(2026, time.March, 27)},
			FinalExam:  datePtr(2026, time.May, 4),
		},
	}
}

var errBoom = errors.New("boom")
