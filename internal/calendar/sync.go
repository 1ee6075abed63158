package calendar

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/syllabus-sync/constants"
	"github.com/joseph-ayodele/syllabus-sync/internal/common"
	"github.com/joseph-ayodele/syllabus-sync/internal/crypto"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
	"github.com/joseph-ayodele/syllabus-sync/internal/repository"
)

// Per-event results.
const (
	ResultCreated   = "created"
	ResultUpdated   = "updated"
	ResultUnchanged = "unchanged"
	ResultFailed    = "failed"
)

// Recorder receives sync and state-machine counters. *metrics.Metrics
// satisfies it.
type Recorder interface {
	SyncEvent(result string)
	Transition(from, to string)
}

type nopRecorder struct{}

func (nopRecorder) SyncEvent(string)          {}
func (nopRecorder) Transition(string, string) {}

// SyncResult aggregates one SyncRecord batch. Events skipped after an abort
// are not counted.
type SyncResult struct {
	Created   int            `json:"created"`
	Updated   int            `json:"updated"`
	Unchanged int            `json:"unchanged"`
	Failed    int            `json:"failed"`
	Failures  []EventFailure `json:"failures,omitempty"`
}

type EventFailure struct {
	FieldKind       constants.DateFieldKind `json:"field_kind"`
	OccurrenceIndex int                     `json:"occurrence_index"`
	Message         string                  `json:"message"`
}

// Synchronizer owns the calendar connection state machine and mirrors
// syllabus dates into the connected calendar.
type Synchronizer struct {
	provider Provider
	states   repository.CalendarStateRepository
	mappings repository.MappingRepository
	enc      crypto.Encryptor
	signer   *StateSigner
	locks    *common.KeyedMutex
	recorder Recorder
	now      func() time.Time
	logger   *slog.Logger

	window       time.Duration
	calendarName string
	timeZone     string
	concurrency  int
	retry        retryPolicy
}

type Option func(*Synchronizer)

// WithConcurrency bounds how many events of one batch are in flight.
func WithConcurrency(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRetry sets the retry budget and initial backoff for transient failures.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(s *Synchronizer) {
		if maxRetries >= 0 {
			s.retry.maxRetries = maxRetries
		}
		if backoff > 0 {
			s.retry.backoff = backoff
		}
	}
}

// WithCallTimeout bounds every single provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(s *Synchronizer) { s.retry.callTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLocks(l *common.KeyedMutex) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.locks = l
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(s *Synchronizer) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithAuthorizationWindow sets how long a pending authorization stays valid.
func WithAuthorizationWindow(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.window = d
		}
	}
}

// WithCalendar names the calendar events are written to.
func WithCalendar(name, timeZone string) Option {
	return func(s *Synchronizer) {
		if name != "" {
			s.calendarName = name
		}
		if timeZone != "" {
			s.timeZone = timeZone
		}
	}
}

func NewSynchronizer(
	provider Provider,
	states repository.CalendarStateRepository,
	mappings repository.MappingRepository,
	enc crypto.Encryptor,
	signer *StateSigner,
	logger *slog.Logger,
	opts ...Option,
) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Synchronizer{
		provider:     provider,
		states:       states,
		mappings:     mappings,
		enc:          enc,
		signer:       signer,
		locks:        common.NewKeyedMutex(),
		recorder:     nopRecorder{},
		now:          time.Now,
		logger:       logger,
		window:       30 * time.Minute,
		calendarName: "School",
		timeZone:     "UTC",
		concurrency:  1,
		retry:        defaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Synchronizer) stateKey(userID string) string {
	return "calendar:" + s.provider.Name() + ":" + userID
}

// InitiateAuthorization moves the user to pending_authorization and returns
// the provider URL to send them to. Restarting a pending authorization is
// allowed; a connected user must disconnect first.
func (s *Synchronizer) InitiateAuthorization(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", common.NewAppError("INVALID_INPUT", "user id is required", common.ErrInvalidInput)
	}
	unlock := s.locks.Lock(s.stateKey(userID))
	defer unlock()

	st, err := s.states.Get(ctx, userID, s.provider.Name())
	if err != nil {
		return "", err
	}
	from := st.Status
	if err := transition(st, constants.StatusPendingAuthorization, s.now()); err != nil {
		return "", err
	}
	state, err := s.signer.Sign(userID, s.provider.Name())
	if err != nil {
		return "", common.NewAppError("INTERNAL", "sign oauth state", errors.Join(common.ErrInternal, err))
	}
	if err := s.states.Save(ctx, st); err != nil {
		return "", err
	}
	s.recorder.Transition(string(from), string(st.Status))
	s.logger.Info("calendar.auth.initiated", "user_id", userID, "provider", s.provider.Name(), "from", from)
	return s.provider.AuthCodeURL(state), nil
}

// CompleteAuthorizationWithState resolves the user from a signed state token
// and completes their authorization.
func (s *Synchronizer) CompleteAuthorizationWithState(ctx context.Context, state, code string) (string, error) {
	userID, provider, err := s.signer.Verify(state)
	if err != nil {
		return "", err
	}
	if provider != s.provider.Name() {
		return "", common.NewAppError("AUTHORIZATION_REQUIRED", "oauth state is for another provider", common.ErrAuthorizationRequired)
	}
	return userID, s.CompleteAuthorization(ctx, userID, code)
}

// CompleteAuthorization exchanges code for a credential and connects the
// user. It fails with ErrAuthorizationRequired unless an authorization is
// pending and inside its window; an expired window reverts to disconnected.
func (s *Synchronizer) CompleteAuthorization(ctx context.Context, userID, code string) error {
	if code == "" {
		return common.NewAppError("INVALID_INPUT", "authorization code is required", common.ErrInvalidInput)
	}
	start := time.Now()
	pendingSince, err := s.checkPending(ctx, userID)
	if err != nil {
		return err
	}

	// No lock is held while talking to the provider.
	cred, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return providerError("exchange authorization code", err)
	}
	sess, err := s.provider.Session(ctx, cred)
	if err != nil {
		return providerError("open calendar session", err)
	}
	var email, calendarID string
	if err := s.retry.do(ctx, func(c context.Context) (err error) {
		email, err = sess.AccountEmail(c)
		return err
	}); err != nil {
		return providerError("read account email", err)
	}
	if err := s.retry.do(ctx, func(c context.Context) (err error) {
		calendarID, err = sess.EnsureCalendar(c, s.calendarName, s.timeZone)
		return err
	}); err != nil {
		return providerError("find or create calendar", err)
	}
	if latest, _, err := sess.Credential(); err == nil {
		cred = latest
	}
	sealed, err := s.enc.Encrypt(ctx, cred)
	if err != nil {
		return common.NewAppError("INTERNAL", "encrypt calendar credential", errors.Join(common.ErrInternal, err))
	}

	unlock := s.locks.Lock(s.stateKey(userID))
	defer unlock()
	st, err := s.states.Get(ctx, userID, s.provider.Name())
	if err != nil {
		return err
	}
	if st.Status != constants.StatusPendingAuthorization || st.PendingSince == nil || !st.PendingSince.Equal(pendingSince) {
		return common.NewAppError("CONFLICTING_UPDATE", "calendar authorization changed while completing", common.ErrConflictingUpdate)
	}
	if pendingExpired(st, s.window, s.now()) {
		return s.expirePending(ctx, st)
	}
	if err := transition(st, constants.StatusConnected, s.now()); err != nil {
		return err
	}
	st.Credential = sealed
	st.AccountEmail = email
	st.CalendarID = calendarID
	if err := s.states.Save(ctx, st); err != nil {
		return err
	}
	s.recorder.Transition(string(constants.StatusPendingAuthorization), string(constants.StatusConnected))
	s.logger.Info("calendar.auth.completed", "user_id", userID, "account", email, "calendar_id", calendarID,
		"elapsed_ms", time.Since(start).Milliseconds())
	return nil
}

// checkPending returns the pending timestamp of a live authorization.
func (s *Synchronizer) checkPending(ctx context.Context, userID string) (time.Time, error) {
	unlock := s.locks.Lock(s.stateKey(userID))
	defer unlock()
	st, err := s.states.Get(ctx, userID, s.provider.Name())
	if err != nil {
		return time.Time{}, err
	}
	if st.Status != constants.StatusPendingAuthorization {
		return time.Time{}, common.NewAppError("AUTHORIZATION_REQUIRED",
			"no calendar authorization is pending", common.ErrAuthorizationRequired)
	}
	if pendingExpired(st, s.window, s.now()) {
		return time.Time{}, s.expirePending(ctx, st)
	}
	return *st.PendingSince, nil
}

// expirePending reverts st to disconnected and returns the error to surface.
// Callers hold the state lock.
func (s *Synchronizer) expirePending(ctx context.Context, st *entity.CalendarSyncState) error {
	if err := transition(st, constants.StatusDisconnected, s.now()); err != nil {
		return err
	}
	if err := s.states.Save(ctx, st); err != nil {
		return err
	}
	s.recorder.Transition(string(constants.StatusPendingAuthorization), string(constants.StatusDisconnected))
	s.logger.Info("calendar.auth.window_expired", "user_id", st.UserID, "window", s.window)
	return common.NewAppError("AUTHORIZATION_REQUIRED", "calendar authorization window expired", common.ErrAuthorizationRequired)
}

// Status returns the user's connection without its credential. A pending
// authorization past its window is reported, and stored, as disconnected.
func (s *Synchronizer) Status(ctx context.Context, userID string) (*entity.CalendarSyncState, error) {
	unlock := s.locks.Lock(s.stateKey(userID))
	defer unlock()
	st, err := s.states.Get(ctx, userID, s.provider.Name())
	if err != nil {
		return nil, err
	}
	if pendingExpired(st, s.window, s.now()) {
		if err := s.expirePending(ctx, st); !errors.Is(err, common.ErrAuthorizationRequired) {
			s.logger.Error("calendar.auth.expire_failed", "user_id", userID, "error", err)
			return nil, err
		}
	}
	out := *st
	out.Credential = nil
	return &out, nil
}

// Disconnect drops the stored credential. Disconnecting twice is a no-op.
// Event mappings are kept so a later reconnect updates the same events.
func (s *Synchronizer) Disconnect(ctx context.Context, userID string) error {
	unlock := s.locks.Lock(s.stateKey(userID))
	defer unlock()
	st, err := s.states.Get(ctx, userID, s.provider.Name())
	if err != nil {
		return err
	}
	if st.Status == constants.StatusDisconnected {
		return nil
	}
	from := st.Status
	if err := transition(st, constants.StatusDisconnected, s.now()); err != nil {
		return err
	}
	if err := s.states.Save(ctx, st); err != nil {
		return err
	}
	s.recorder.Transition(string(from), string(st.Status))
	s.logger.Info("calendar.disconnected", "user_id", userID, "from", from)
	return nil
}

// SyncRecord mirrors the important dates of rec into the owner's calendar.
// Per-event failures are counted in the result. A rejected credential aborts
// the batch, disconnects the user and returns the partial result together
// with ErrAuthorizationExpired. A second concurrent sync of the same record
// fails with ErrConflictingUpdate.
func (s *Synchronizer) SyncRecord(ctx context.Context, rec *entity.Syllabus) (SyncResult, error) {
	if rec == nil {
		return SyncResult{}, common.NewAppError("INVALID_INPUT", "record is required", common.ErrInvalidInput)
	}
	unlock, ok := s.locks.TryLock("sync:" + rec.ID.String())
	if !ok {
		return SyncResult{}, common.NewAppError("CONFLICTING_UPDATE", "record is already syncing", common.ErrConflictingUpdate)
	}
	defer unlock()

	start := time.Now()
	st, err := s.states.Get(ctx, rec.OwnerID, s.provider.Name())
	if err != nil {
		return SyncResult{}, err
	}
	if st.Status != constants.StatusConnected {
		return SyncResult{}, common.NewAppError("AUTHORIZATION_REQUIRED", "calendar is not connected", common.ErrAuthorizationRequired)
	}
	cred, err := s.enc.Decrypt(ctx, st.Credential)
	if err != nil {
		return SyncResult{}, common.NewAppError("INTERNAL", "decrypt calendar credential", errors.Join(common.ErrInternal, err))
	}
	sess, err := s.provider.Session(ctx, cred)
	if err != nil {
		if errors.Is(err, ErrCredentialRejected) {
			return SyncResult{}, s.expireConnection(ctx, rec.OwnerID, err)
		}
		return SyncResult{}, providerError("open calendar session", err)
	}

	planned := PlanEvents(rec)
	s.logger.Info("calendar.sync.start", "syllabus_id", rec.ID, "user_id", rec.OwnerID, "events", len(planned))
	result, authErr := s.runBatch(ctx, sess, st.CalendarID, planned)

	// State writes below must land even when ctx was cancelled mid-batch.
	persistCtx := context.WithoutCancel(ctx)
	if authErr != nil {
		s.logger.Warn("calendar.sync.credential_rejected", "syllabus_id", rec.ID, "user_id", rec.OwnerID,
			"created", result.Created, "updated", result.Updated, "failed", result.Failed, "error", authErr)
		return result, s.expireConnection(persistCtx, rec.OwnerID, authErr)
	}
	s.persistRefreshed(persistCtx, rec.OwnerID, sess)

	s.logger.Info("calendar.sync.done", "syllabus_id", rec.ID,
		"created", result.Created, "updated", result.Updated, "unchanged", result.Unchanged, "failed", result.Failed,
		"elapsed_ms", time.Since(start).Milliseconds())
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

type eventOutcome struct {
	result string
	err    error
}

// runBatch pushes planned through a bounded worker pool. Outcomes are kept in
// plan order; an event that never ran leaves a nil slot. Cancellation is only
// observed between events.
func (s *Synchronizer) runBatch(ctx context.Context, sess Session, calendarID string, planned []PlannedEvent) (SyncResult, error) {
	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make([]*eventOutcome, len(planned))
	jobs := make(chan int)
	var (
		wg      sync.WaitGroup
		abort   sync.Once
		authErr error
	)
	workers := min(s.concurrency, len(planned))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if batchCtx.Err() != nil {
					continue
				}
				res, err := s.syncEvent(batchCtx, sess, calendarID, planned[i])
				if errors.Is(err, ErrCredentialRejected) {
					abort.Do(func() {
						authErr = err
						cancel()
					})
				}
				outcomes[i] = &eventOutcome{result: res, err: err}
			}
		}()
	}
feed:
	for i := range planned {
		select {
		case <-batchCtx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	var result SyncResult
	for i, o := range outcomes {
		if o == nil {
			continue
		}
		if o.err != nil {
			o.result = ResultFailed
			result.Failures = append(result.Failures, EventFailure{
				FieldKind:       planned[i].Key.FieldKind,
				OccurrenceIndex: planned[i].Key.OccurrenceIndex,
				Message:         o.err.Error(),
			})
			s.logger.Warn("calendar.sync.event_failed", "syllabus_id", planned[i].Key.SyllabusID,
				"field", planned[i].Key.FieldKind, "index", planned[i].Key.OccurrenceIndex, "error", o.err)
		}
		switch o.result {
		case ResultCreated:
			result.Created++
		case ResultUpdated:
			result.Updated++
		case ResultUnchanged:
			result.Unchanged++
		case ResultFailed:
			result.Failed++
		}
		s.recorder.SyncEvent(o.result)
	}
	return result, authErr
}

// syncEvent runs one event to completion. It ignores cancellation of ctx so an
// accepted external create is always followed by its mapping write; provider
// calls stay bounded by the per-call timeout.
func (s *Synchronizer) syncEvent(ctx context.Context, sess Session, calendarID string, p PlannedEvent) (string, error) {
	ctx = context.WithoutCancel(ctx)
	m, found, err := s.mappings.Get(ctx, p.Key)
	if err != nil {
		return "", err
	}
	if found && m.SyncedDate == p.Event.Date {
		return ResultUnchanged, nil
	}

	result := ResultCreated
	if found {
		result = ResultUpdated
		err = s.retry.do(ctx, func(c context.Context) error {
			return sess.UpdateEvent(c, calendarID, m.ExternalEventID, p.Event)
		})
		if errors.Is(err, ErrEventGone) {
			s.logger.Info("calendar.sync.event_recreated", "syllabus_id", p.Key.SyllabusID, "field", p.Key.FieldKind,
				"index", p.Key.OccurrenceIndex, "old_event_id", m.ExternalEventID)
			found = false
		} else if err != nil {
			return "", err
		}
	}
	if !found {
		var id string
		if err := s.retry.do(ctx, func(c context.Context) (err error) {
			id, err = sess.CreateEvent(c, calendarID, p.Event)
			return err
		}); err != nil {
			return "", err
		}
		m = &entity.SyncEventMapping{
			SyllabusID:      p.Key.SyllabusID,
			FieldKind:       p.Key.FieldKind,
			OccurrenceIndex: p.Key.OccurrenceIndex,
			ExternalEventID: id,
		}
	}
	m.SyncedDate = p.Event.Date
	m.SyncedAt = s.now().UTC()
	if err := s.mappings.Upsert(ctx, m); err != nil {
		return "", err
	}
	return result, nil
}

// expireConnection disconnects a user whose credential was rejected and
// returns ErrAuthorizationExpired.
func (s *Synchronizer) expireConnection(ctx context.Context, userID string, cause error) error {
	unlock := s.locks.Lock(s.stateKey(userID))
	defer unlock()
	st, err := s.states.Get(ctx, userID, s.provider.Name())
	if err == nil && st.Status == constants.StatusConnected {
		if err := transition(st, constants.StatusDisconnected, s.now()); err == nil {
			if err := s.states.Save(ctx, st); err != nil {
				s.logger.Error("calendar.sync.disconnect_failed", "user_id", userID, "error", err)
			} else {
				s.recorder.Transition(string(constants.StatusConnected), string(constants.StatusDisconnected))
			}
		}
	}
	return common.NewAppError("AUTHORIZATION_EXPIRED", "calendar authorization expired, reconnect to continue",
		errors.Join(common.ErrAuthorizationExpired, cause))
}

// persistRefreshed writes back a credential the provider refreshed during
// the batch. Failures are logged; the old refresh token stays usable.
func (s *Synchronizer) persistRefreshed(ctx context.Context, userID string, sess Session) {
	cred, changed, err := sess.Credential()
	if err != nil || !changed {
		return
	}
	sealed, err := s.enc.Encrypt(ctx, cred)
	if err != nil {
		s.logger.Warn("calendar.sync.token_persist_failed", "user_id", userID, "error", err)
		return
	}
	unlock := s.locks.Lock(s.stateKey(userID))
	defer unlock()
	st, err := s.states.Get(ctx, userID, s.provider.Name())
	if err != nil || st.Status != constants.StatusConnected {
		return
	}
	st.Credential = sealed
	if err := s.states.Save(ctx, st); err != nil {
		s.logger.Warn("calendar.sync.token_persist_failed", "user_id", userID, "error", err)
		return
	}
	s.logger.Debug("calendar.sync.token_refreshed", "user_id", userID)
}

// providerError maps a provider failure onto the caller-facing error.
func providerError(op string, err error) error {
	switch {
	case errors.Is(err, ErrCredentialRejected):
		return common.NewAppError("AUTHORIZATION_REQUIRED", op, errors.Join(common.ErrAuthorizationRequired, err))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTransient):
		return err
	}
	return common.NewAppError("CAPABILITY_UNAVAILABLE", op, errors.Join(common.ErrCapabilityUnavailable, err))
}
