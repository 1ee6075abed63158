package repository

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/syllabus-sync/constants"
	"github.com/joseph-ayodele/syllabus-sync/internal/common"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
)

type CalendarStateRepository interface {
	// Get returns the stored state, or a fresh disconnected one when none exists.
	Get(ctx context.Context, userID, provider string) (*entity.CalendarSyncState, error)
	Save(ctx context.Context, st *entity.CalendarSyncState) error
}

type calendarStateRepository struct {
	db     *DB
	now    func() time.Time
	logger *slog.Logger
}

func NewCalendarStateRepository(db *DB, logger *slog.Logger, opts ...Option) CalendarStateRepository {
	if logger == nil {
		logger = slog.Default()
	}
	o := buildOptions(opts)
	return &calendarStateRepository{db: db, now: o.now, logger: logger}
}

var connectionColumns = []string{
	"user_id", "provider", "status", "account_email", "calendar_id", "credential", "pending_since", "updated_at",
}

func (r *calendarStateRepository) Get(ctx context.Context, userID, provider string) (*entity.CalendarSyncState, error) {
	query, args := entsql.Dialect(r.db.dialect).
		Select(connectionColumns...).
		From(entsql.Table(connectionsTable)).
		Where(entsql.And(entsql.EQ("user_id", userID), entsql.EQ("provider", provider))).
		Query()

	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, query, args, rows); err != nil {
		return nil, common.NewAppError("DB_ERROR", "query calendar state", errors.Join(common.ErrDatabase, err))
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, common.NewAppError("DB_ERROR", "query calendar state", errors.Join(common.ErrDatabase, err))
		}
		return &entity.CalendarSyncState{
			UserID:   userID,
			Provider: provider,
			Status:   constants.StatusDisconnected,
		}, nil
	}

	var (
		st      entity.CalendarSyncState
		status  string
		pending stdsql.NullTime
	)
	if err := rows.Scan(&st.UserID, &st.Provider, &status, &st.AccountEmail, &st.CalendarID,
		&st.Credential, &pending, &st.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan calendar state: %w", err)
	}
	st.Status = constants.ConnectionStatus(status)
	if !st.Status.Valid() {
		r.logger.Warn("unknown calendar status in storage, treating as disconnected", "user_id", userID, "status", status)
		st.Status = constants.StatusDisconnected
	}
	if pending.Valid {
		t := pending.Time.UTC()
		st.PendingSince = &t
	}
	st.UpdatedAt = st.UpdatedAt.UTC()
	return &st, nil
}

// Save upserts the state row. Transition rules are enforced by the caller.
func (r *calendarStateRepository) Save(ctx context.Context, st *entity.CalendarSyncState) error {
	st.UpdatedAt = r.now().UTC()
	var pending any
	if st.PendingSince != nil {
		pending = st.PendingSince.UTC()
	}
	var credential any
	if len(st.Credential) > 0 {
		credential = st.Credential
	}

	query, args := entsql.Dialect(r.db.dialect).
		Insert(connectionsTable).
		Columns(connectionColumns...).
		Values(st.UserID, st.Provider, string(st.Status), st.AccountEmail, st.CalendarID, credential, pending, st.UpdatedAt).
		OnConflict(entsql.ConflictColumns("user_id", "provider"), entsql.ResolveWithNewValues()).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.logger.Error("failed to save calendar state", "user_id", st.UserID, "error", err)
		return common.NewAppError("DB_ERROR", "save calendar state", errors.Join(common.ErrDatabase, err))
	}
	r.logger.Debug("calendar state saved", "user_id", st.UserID, "provider", st.Provider, "status", st.Status)
	return nil
}
