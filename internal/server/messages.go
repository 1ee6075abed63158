package server

import (
	"time"

	"github.com/joseph-ayodele/syllabus-sync/internal/calendar"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
)

type Empty struct{}

type IngestRequest struct {
	OwnerID  string `json:"owner_id" validate:"required"`
	Filename string `json:"filename" validate:"max=255"`
	// Format is PDF, DOCX or TXT; when empty it is taken from Filename.
	Format string `json:"format"`
	Data   []byte `json:"data" validate:"required"`
}

type IngestResponse struct {
	Record   *entity.Syllabus `json:"record"`
	Warnings []entity.Warning `json:"warnings"`
}

type RecordRequest struct {
	ID string `json:"id" validate:"required,uuid"`
}

type RecordResponse struct {
	Record *entity.Syllabus `json:"record"`
}

type ListRecordsRequest struct {
	OwnerID string `json:"owner_id" validate:"required"`
}

type ListRecordsResponse struct {
	Records []*entity.Syllabus `json:"records"`
}

type PatchRecordRequest struct {
	ID    string               `json:"id" validate:"required,uuid"`
	Patch entity.SyllabusPatch `json:"patch"`
}

type FileURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type UserRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

type InitiateAuthorizationResponse struct {
	AuthURL string `json:"auth_url"`
}

type CompleteAuthorizationRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Code   string `json:"code" validate:"required"`
}

type CalendarStatusResponse struct {
	Status       string     `json:"status"`
	AccountEmail string     `json:"account_email,omitempty"`
	CalendarID   string     `json:"calendar_id,omitempty"`
	PendingSince *time.Time `json:"pending_since,omitempty"`
}

// SyncRecordResponse carries the partial result of an aborted sync together
// with ErrorCode AUTHORIZATION_EXPIRED; other failures are returned as
// status errors.
type SyncRecordResponse struct {
	Result    calendar.SyncResult `json:"result"`
	ErrorCode string              `json:"error_code,omitempty"`
}

type ExportResponse struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}
