package syllabus

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/syllabus-sync/internal/blob"
	"github.com/joseph-ayodele/syllabus-sync/internal/calendar"
	"github.com/joseph-ayodele/syllabus-sync/internal/common"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
	"github.com/joseph-ayodele/syllabus-sync/internal/export"
	"github.com/joseph-ayodele/syllabus-sync/internal/pipeline"
	"github.com/joseph-ayodele/syllabus-sync/internal/repository"
)

// Ingestor is satisfied by *pipeline.Processor.
type Ingestor interface {
	Ingest(ctx context.Context, in pipeline.Input) (*entity.Syllabus, []entity.Warning, error)
}

// CalendarSync is satisfied by *calendar.Synchronizer.
type CalendarSync interface {
	InitiateAuthorization(ctx context.Context, userID string) (string, error)
	CompleteAuthorization(ctx context.Context, userID, code string) error
	CompleteAuthorizationWithState(ctx context.Context, state, code string) (string, error)
	Status(ctx context.Context, userID string) (*entity.CalendarSyncState, error)
	Disconnect(ctx context.Context, userID string) error
	SyncRecord(ctx context.Context, rec *entity.Syllabus) (calendar.SyncResult, error)
}

// Service is the caller-facing surface over ingest, records and calendar sync.
type Service struct {
	ingestor Ingestor
	repo     repository.SyllabusRepository
	blobs    blob.Store
	sync     CalendarSync
	exporter *export.Service
	urlTTL   time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Service)

// WithURLTTL sets how long FileURL links stay valid.
func WithURLTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.urlTTL = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(
	ingestor Ingestor,
	repo repository.SyllabusRepository,
	blobs blob.Store,
	sync CalendarSync,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		ingestor: ingestor,
		repo:     repo,
		blobs:    blobs,
		sync:     sync,
		exporter: export.NewService(logger),
		urlTTL:   15 * time.Minute,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestInput is an uploaded document.
type IngestInput = pipeline.Input

// Ingest turns a document into a stored record plus any warnings.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (*entity.Syllabus, []entity.Warning, error) {
	return s.ingestor.Ingest(ctx, in)
}

func (s *Service) GetRecord(ctx context.Context, id string) (*entity.Syllabus, error) {
	rid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, rid)
}

// ListRecords returns the owner's records oldest first.
func (s *Service) ListRecords(ctx context.Context, ownerID string) ([]*entity.Syllabus, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, common.NewAppError("INVALID_INPUT", "owner_id is required", common.ErrInvalidInput)
	}
	return s.repo.ListForOwner(ctx, ownerID)
}

// PatchRecord applies a partial update. Identity, owner and source document
// are never touched.
func (s *Service) PatchRecord(ctx context.Context, id string, p entity.SyllabusPatch) (*entity.Syllabus, error) {
	rid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	return s.repo.Patch(ctx, rid, p)
}

// DeleteRecord removes the record, its sync mappings and its source
// document. Deleting a record that does not exist succeeds.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	rid, err := parseID(id)
	if err != nil {
		return err
	}
	rec, err := s.repo.Get(ctx, rid)
	if errors.Is(err, common.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, rid); err != nil {
		return err
	}
	if rec.SourceDocumentRef != "" {
		if err := s.blobs.Delete(context.WithoutCancel(ctx), rec.SourceDocumentRef); err != nil {
			s.logger.Warn("source document not removed", "id", rid, "ref", rec.SourceDocumentRef, "error", err)
		}
	}
	return nil
}

// FileURL returns a time-limited link to the record's source document.
func (s *Service) FileURL(ctx context.Context, id string) (string, time.Time, error) {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return "", time.Time{}, err
	}
	if rec.SourceDocumentRef == "" {
		return "", time.Time{}, common.NewAppError("NOT_FOUND", "record has no source document", common.ErrNotFound)
	}
	url, err := s.blobs.URLFor(ctx, rec.SourceDocumentRef, s.urlTTL)
	if err != nil {
		return "", time.Time{}, err
	}
	return url, s.now().Add(s.urlTTL).UTC(), nil
}

func (s *Service) InitiateCalendarAuthorization(ctx context.Context, userID string) (string, error) {
	return s.sync.InitiateAuthorization(ctx, strings.TrimSpace(userID))
}

func (s *Service) CompleteCalendarAuthorization(ctx context.Context, userID, code string) error {
	return s.sync.CompleteAuthorization(ctx, strings.TrimSpace(userID), strings.TrimSpace(code))
}

// CompleteCalendarAuthorizationWithState is the OAuth redirect path, where
// the user is known only from the signed state.
func (s *Service) CompleteCalendarAuthorizationWithState(ctx context.Context, state, code string) (string, error) {
	return s.sync.CompleteAuthorizationWithState(ctx, state, strings.TrimSpace(code))
}

func (s *Service) CalendarStatus(ctx context.Context, userID string) (*entity.CalendarSyncState, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, common.NewAppError("INVALID_INPUT", "user_id is required", common.ErrInvalidInput)
	}
	return s.sync.Status(ctx, userID)
}

func (s *Service) DisconnectCalendar(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return common.NewAppError("INVALID_INPUT", "user_id is required", common.ErrInvalidInput)
	}
	return s.sync.Disconnect(ctx, userID)
}

// SyncRecord pushes the record's important dates to its owner's calendar.
// On ErrAuthorizationExpired the partial result is returned alongside the
// error.
func (s *Service) SyncRecord(ctx context.Context, id string) (calendar.SyncResult, error) {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return calendar.SyncResult{}, err
	}
	return s.sync.SyncRecord(ctx, rec)
}

// ExportDates renders every important date of the owner's records as XLSX.
func (s *Service) ExportDates(ctx context.Context, ownerID string) ([]byte, error) {
	recs, err := s.ListRecords(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.exporter.DatesXLSX(recs)
}

// ExportCalendar renders one record's important dates as an iCalendar file.
func (s *Service) ExportCalendar(ctx context.Context, id string) ([]byte, error) {
	rec, err := s.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.exporter.CalendarICS([]*entity.Syllabus{rec}, s.now())
}

func parseID(id string) (uuid.UUID, error) {
	rid, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return uuid.Nil, common.NewAppError("INVALID_INPUT", "id must be a UUID", common.ErrInvalidInput)
	}
	return rid, nil
}
