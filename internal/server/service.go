package server

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc"

	"github.com/joseph-ayodele/syllabus-sync/constants"
	"github.com/joseph-ayodele/syllabus-sync/internal/calendar"
	"github.com/joseph-ayodele/syllabus-sync/internal/common"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
	"github.com/joseph-ayodele/syllabus-sync/internal/pipeline"
)

const ServiceName = "syllabussync.v1.SyllabusService"

// Backend is satisfied by *syllabus.Service.
type Backend interface {
	Ingest(ctx context.Context, in pipeline.Input) (*entity.Syllabus, []entity.Warning, error)
	GetRecord(ctx context.Context, id string) (*entity.Syllabus, error)
	ListRecords(ctx context.Context, ownerID string) ([]*entity.Syllabus, error)
	PatchRecord(ctx context.Context, id string, p entity.SyllabusPatch) (*entity.Syllabus, error)
	DeleteRecord(ctx context.Context, id string) error
	FileURL(ctx context.Context, id string) (string, time.Time, error)
	InitiateCalendarAuthorization(ctx context.Context, userID string) (string, error)
	CompleteCalendarAuthorization(ctx context.Context, userID, code string) error
	CompleteCalendarAuthorizationWithState(ctx context.Context, state, code string) (string, error)
	CalendarStatus(ctx context.Context, userID string) (*entity.CalendarSyncState, error)
	DisconnectCalendar(ctx context.Context, userID string) error
	SyncRecord(ctx context.Context, id string) (calendar.SyncResult, error)
	ExportDates(ctx context.Context, ownerID string) ([]byte, error)
	ExportCalendar(ctx context.Context, id string) ([]byte, error)
}

type SyllabusServer struct {
	backend  Backend
	validate *validator.Validate
	logger   *slog.Logger
}

func NewSyllabusServer(backend Backend, logger *slog.Logger) *SyllabusServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SyllabusServer{backend: backend, validate: validator.New(), logger: logger}
}

// Register attaches the service to s.
func (s *SyllabusServer) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

func (s *SyllabusServer) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" failed "+fe.Tag())
			}
			return common.InvalidArgumentErrorf("invalid request: %s", strings.Join(fields, "; "))
		}
		return common.InvalidArgumentError(err.Error())
	}
	return nil
}

func (s *SyllabusServer) Ingest(ctx context.Context, req *IngestRequest) (*IngestResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	rec, warnings, err := s.backend.Ingest(ctx, pipeline.Input{
		Data:     req.Data,
		Format:   constants.DocumentFormat(strings.TrimSpace(req.Format)),
		OwnerID:  strings.TrimSpace(req.OwnerID),
		Filename: req.Filename,
	})
	if err != nil {
		return nil, s.fail(ctx, "Ingest", err)
	}
	if warnings == nil {
		warnings = []entity.Warning{}
	}
	return &IngestResponse{Record: rec, Warnings: warnings}, nil
}

func (s *SyllabusServer) GetRecord(ctx context.Context, req *RecordRequest) (*RecordResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	rec, err := s.backend.GetRecord(ctx, req.ID)
	if err != nil {
		return nil, s.fail(ctx, "GetRecord", err)
	}
	return &RecordResponse{Record: rec}, nil
}

func (s *SyllabusServer) ListRecords(ctx context.Context, req *ListRecordsRequest) (*ListRecordsResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	recs, err := s.backend.ListRecords(ctx, req.OwnerID)
	if err != nil {
		return nil, s.fail(ctx, "ListRecords", err)
	}
	if recs == nil {
		recs = []*entity.Syllabus{}
	}
	return &ListRecordsResponse{Records: recs}, nil
}

func (s *SyllabusServer) PatchRecord(ctx context.Context, req *PatchRecordRequest) (*RecordResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	rec, err := s.backend.PatchRecord(ctx, req.ID, req.Patch)
	if err != nil {
		return nil, s.fail(ctx, "PatchRecord", err)
	}
	return &RecordResponse{Record: rec}, nil
}

func (s *SyllabusServer) DeleteRecord(ctx context.Context, req *RecordRequest) (*Empty, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := s.backend.DeleteRecord(ctx, req.ID); err != nil {
		return nil, s.fail(ctx, "DeleteRecord", err)
	}
	return &Empty{}, nil
}

func (s *SyllabusServer) FileURL(ctx context.Context, req *RecordRequest) (*FileURLResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	url, expires, err := s.backend.FileURL(ctx, req.ID)
	if err != nil {
		return nil, s.fail(ctx, "FileURL", err)
	}
	return &FileURLResponse{URL: url, ExpiresAt: expires}, nil
}

func (s *SyllabusServer) InitiateCalendarAuthorization(ctx context.Context, req *UserRequest) (*InitiateAuthorizationResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	url, err := s.backend.InitiateCalendarAuthorization(ctx, req.UserID)
	if err != nil {
		return nil, s.fail(ctx, "InitiateCalendarAuthorization", err)
	}
	return &InitiateAuthorizationResponse{AuthURL: url}, nil
}

func (s *SyllabusServer) CompleteCalendarAuthorization(ctx context.Context, req *CompleteAuthorizationRequest) (*Empty, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := s.backend.CompleteCalendarAuthorization(ctx, req.UserID, req.Code); err != nil {
		return nil, s.fail(ctx, "CompleteCalendarAuthorization", err)
	}
	return &Empty{}, nil
}

func (s *SyllabusServer) CalendarStatus(ctx context.Context, req *UserRequest) (*CalendarStatusResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	st, err := s.backend.CalendarStatus(ctx, req.UserID)
	if err != nil {
		return nil, s.fail(ctx, "CalendarStatus", err)
	}
	return &CalendarStatusResponse{
		Status:       string(st.Status),
		AccountEmail: st.AccountEmail,
		CalendarID:   st.CalendarID,
		PendingSince: st.PendingSince,
	}, nil
}

func (s *SyllabusServer) DisconnectCalendar(ctx context.Context, req *UserRequest) (*Empty, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	if err := s.backend.DisconnectCalendar(ctx, req.UserID); err != nil {
		return nil, s.fail(ctx, "DisconnectCalendar", err)
	}
	return &Empty{}, nil
}

func (s *SyllabusServer) SyncRecord(ctx context.Context, req *RecordRequest) (*SyncRecordResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	res, err := s.backend.SyncRecord(ctx, req.ID)
	if errors.Is(err, common.ErrAuthorizationExpired) {
		s.logger.Warn("sync aborted, authorization expired", "id", req.ID, "created", res.Created, "failed", res.Failed)
		return &SyncRecordResponse{Result: res, ErrorCode: common.ErrorCode(err)}, nil
	}
	if err != nil {
		return nil, s.fail(ctx, "SyncRecord", err)
	}
	return &SyncRecordResponse{Result: res}, nil
}

func (s *SyllabusServer) ExportDates(ctx context.Context, req *ListRecordsRequest) (*ExportResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	data, err := s.backend.ExportDates(ctx, req.OwnerID)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "owner_id", req.OwnerID, "error", err)
		return nil, s.fail(ctx, "ExportDates", err)
	}
	return &ExportResponse{
		Filename:    "key-dates.xlsx",
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Data:        data,
	}, nil
}

func (s *SyllabusServer) ExportCalendar(ctx context.Context, req *RecordRequest) (*ExportResponse, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}
	data, err := s.backend.ExportCalendar(ctx, req.ID)
	if err != nil {
		return nil, s.fail(ctx, "ExportCalendar", err)
	}
	return &ExportResponse{Filename: req.ID + ".ics", ContentType: "text/calendar", Data: data}, nil
}

func (s *SyllabusServer) fail(ctx context.Context, method string, err error) error {
	s.logger.Warn("rpc failed",
		"method", method,
		"request_id", common.RequestIDFromContext(ctx),
		"code", common.ErrorCode(err),
		"error", err,
	)
	return common.ToStatus(err)
}
