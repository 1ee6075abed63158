package repository

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/syllabus-sync/constants"
	"github.com/joseph-ayodele/syllabus-sync/internal/common"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
	"github.com/joseph-ayodele/syllabus-sync/internal/normalize"
)

type SyllabusRepository interface {
	Create(ctx context.Context, s *entity.Syllabus) (*entity.Syllabus, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Syllabus, error)
	ListForOwner(ctx context.Context, ownerID string) ([]*entity.Syllabus, error)
	Patch(ctx context.Context, id uuid.UUID, p entity.SyllabusPatch) (*entity.Syllabus, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type syllabusRepository struct {
	db     *DB
	locks  *common.KeyedMutex
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*options)

type options struct {
	now   func() time.Time
	locks *common.KeyedMutex
}

// WithClock overrides time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLocks shares a KeyedMutex between repositories.
func WithLocks(k *common.KeyedMutex) Option {
	return func(o *options) { o.locks = k }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.locks == nil {
		o.locks = common.NewKeyedMutex()
	}
	return o
}

func NewSyllabusRepository(db *DB, logger *slog.Logger, opts ...Option) SyllabusRepository {
	if logger == nil {
		logger = slog.Default()
	}
	o := buildOptions(opts)
	return &syllabusRepository{db: db, locks: o.locks, now: o.now, logger: logger}
}

var syllabusColumns = []string{
	"id", "owner_id", "course_code", "course_name", "instructor_name", "instructor_email",
	"semester", "term_year", "meeting_days", "meeting_time", "meeting_location",
	"first_class", "last_class", "final_exam", "midterms", "description", "grading_policy",
	"schedule_summary", "accent_color", "source_document_ref", "source_filename", "warnings",
	"version", "created_at", "updated_at",
}

// Create assigns identity, timestamps and version 1.
func (r *syllabusRepository) Create(ctx context.Context, s *entity.Syllabus) (*entity.Syllabus, error) {
	rec := s.Clone()
	rec.ID = uuid.New()
	rec.Version = 1
	now := r.now().UTC()
	rec.CreatedAt, rec.UpdatedAt = now, now
	if rec.AccentColor == "" {
		rec.AccentColor = constants.DefaultAccentColor
	}
	if rec.ImportantDates.Midterms == nil {
		rec.ImportantDates.Midterms = []entity.Date{}
	}

	values, err := syllabusValues(rec)
	if err != nil {
		return nil, err
	}
	query, args := entsql.Dialect(r.db.dialect).
		Insert(syllabiTable).
		Columns(syllabusColumns...).
		Values(values...).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.logger.Error("failed to create syllabus", "owner_id", rec.OwnerID, "error", err)
		return nil, common.NewAppError("DB_ERROR", "create syllabus", errors.Join(common.ErrDatabase, err))
	}
	r.logger.Info("syllabus created", "id", rec.ID, "owner_id", rec.OwnerID, "course", rec.Course.Code)
	return rec, nil
}

func (r *syllabusRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Syllabus, error) {
	recs, err := r.query(ctx, func(s *entsql.Selector) {
		s.Where(entsql.EQ("id", id.String()))
	})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, common.NewAppError("NOT_FOUND", "syllabus "+id.String(), common.ErrNotFound)
	}
	return recs[0], nil
}

// ListForOwner returns the owner's records oldest first.
func (r *syllabusRepository) ListForOwner(ctx context.Context, ownerID string) ([]*entity.Syllabus, error) {
	return r.query(ctx, func(s *entsql.Selector) {
		s.Where(entsql.EQ("owner_id", ownerID)).OrderBy("created_at", "id")
	})
}

// Patch merges the set fields of p into the stored record under the
// record's lock. Soft violations become warnings, never rejections.
func (r *syllabusRepository) Patch(ctx context.Context, id uuid.UUID, p entity.SyllabusPatch) (*entity.Syllabus, error) {
	unlock := r.locks.Lock(lockKey(id))
	defer unlock()

	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.ExpectedVersion != 0 && p.ExpectedVersion != cur.Version {
		return nil, common.NewAppError("CONFLICTING_UPDATE",
			fmt.Sprintf("record is at version %d, patch expected %d", cur.Version, p.ExpectedVersion),
			common.ErrConflictingUpdate)
	}

	next, extra, err := applyPatch(cur, p)
	if err != nil {
		return nil, err
	}
	next.Warnings = append(normalize.Validate(next), extra...)
	next.Version = cur.Version + 1
	next.UpdatedAt = r.now().UTC()

	values, err := syllabusValues(next)
	if err != nil {
		return nil, err
	}
	upd := entsql.Dialect(r.db.dialect).Update(syllabiTable)
	// identity, owner, source and creation time never change
	for i, col := range syllabusColumns {
		switch col {
		case "id", "owner_id", "source_document_ref", "source_filename", "created_at":
			continue
		}
		upd.Set(col, values[i])
	}
	query, args := upd.Where(entsql.And(
		entsql.EQ("id", id.String()),
		entsql.EQ("version", cur.Version),
	)).Query()

	var res stdsql.Result
	if err := r.db.drv.Exec(ctx, query, args, &res); err != nil {
		r.logger.Error("failed to patch syllabus", "id", id, "error", err)
		return nil, common.NewAppError("DB_ERROR", "patch syllabus", errors.Join(common.ErrDatabase, err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// another process wrote between our read and update
		return nil, common.NewAppError("CONFLICTING_UPDATE", "record changed concurrently", common.ErrConflictingUpdate)
	}

	r.logger.Info("syllabus patched", "id", id, "version", next.Version, "warnings", len(next.Warnings))
	return next, nil
}

// Delete removes the record and its sync mappings. Deleting a missing
// record succeeds.
func (r *syllabusRepository) Delete(ctx context.Context, id uuid.UUID) error {
	unlock := r.locks.Lock(lockKey(id))
	defer unlock()

	tx, err := r.db.drv.Tx(ctx)
	if err != nil {
		return common.NewAppError("DB_ERROR", "begin delete", errors.Join(common.ErrDatabase, err))
	}
	b := entsql.Dialect(r.db.dialect)
	for _, del := range []*entsql.DeleteBuilder{
		b.Delete(mappingsTable).Where(entsql.EQ("syllabus_id", id.String())),
		b.Delete(syllabiTable).Where(entsql.EQ("id", id.String())),
	} {
		query, args := del.Query()
		if err := tx.Exec(ctx, query, args, nil); err != nil {
			_ = tx.Rollback()
			r.logger.Error("failed to delete syllabus", "id", id, "error", err)
			return common.NewAppError("DB_ERROR", "delete syllabus", errors.Join(common.ErrDatabase, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return common.NewAppError("DB_ERROR", "commit delete", errors.Join(common.ErrDatabase, err))
	}
	r.logger.Info("syllabus deleted", "id", id)
	return nil
}

func (r *syllabusRepository) query(ctx context.Context, where func(*entsql.Selector)) ([]*entity.Syllabus, error) {
	sel := entsql.Dialect(r.db.dialect).Select(syllabusColumns...).From(entsql.Table(syllabiTable))
	where(sel)
	query, args := sel.Query()

	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, query, args, rows); err != nil {
		return nil, common.NewAppError("DB_ERROR", "query syllabi", errors.Join(common.ErrDatabase, err))
	}
	defer rows.Close()

	var out []*entity.Syllabus
	for rows.Next() {
		s, err := scanSyllabus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewAppError("DB_ERROR", "iterate syllabi", errors.Join(common.ErrDatabase, err))
	}
	return out, nil
}

func syllabusValues(s *entity.Syllabus) ([]any, error) {
	midterms, err := json.Marshal(s.ImportantDates.Midterms)
	if err != nil {
		return nil, err
	}
	grading, err := json.Marshal(s.GradingPolicy)
	if err != nil {
		return nil, err
	}
	warnings := s.Warnings
	if warnings == nil {
		warnings = []entity.Warning{}
	}
	warnJSON, err := json.Marshal(warnings)
	if err != nil {
		return nil, err
	}
	return []any{
		s.ID.String(), s.OwnerID, s.Course.Code, s.Course.Name, s.Instructor.Name, s.Instructor.Email,
		s.Term.Semester, s.Term.Year, s.MeetingInfo.Days, s.MeetingInfo.Time, s.MeetingInfo.Location,
		nullDate(s.ImportantDates.FirstClass), nullDate(s.ImportantDates.LastClass), nullDate(s.ImportantDates.FinalExam),
		string(midterms), s.Description, string(grading), s.ScheduleSummary, string(s.AccentColor),
		s.SourceDocumentRef, s.SourceFilename, string(warnJSON), s.Version, s.CreatedAt, s.UpdatedAt,
	}, nil
}

func scanSyllabus(rows *entsql.Rows) (*entity.Syllabus, error) {
	var (
		s                           entity.Syllabus
		id                          string
		first, last, final          stdsql.NullString
		midterms, grading, warnings string
		accent                      string
	)
	err := rows.Scan(
		&id, &s.OwnerID, &s.Course.Code, &s.Course.Name, &s.Instructor.Name, &s.Instructor.Email,
		&s.Term.Semester, &s.Term.Year, &s.MeetingInfo.Days, &s.MeetingInfo.Time, &s.MeetingInfo.Location,
		&first, &last, &final, &midterms, &s.Description, &grading, &s.ScheduleSummary, &accent,
		&s.SourceDocumentRef, &s.SourceFilename, &warnings, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan syllabus: %w", err)
	}
	if s.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("scan syllabus id: %w", err)
	}
	s.AccentColor = constants.AccentColor(accent)
	for _, d := range []struct {
		src stdsql.NullString
		dst **entity.Date
	}{
		{first, &s.ImportantDates.FirstClass},
		{last, &s.ImportantDates.LastClass},
		{final, &s.ImportantDates.FinalExam},
	} {
		if !d.src.Valid || d.src.String == "" {
			continue
		}
		parsed, err := entity.ParseISODate(d.src.String)
		if err != nil {
			return nil, fmt.Errorf("scan syllabus %s: %w", id, err)
		}
		*d.dst = &parsed
	}
	if err := json.Unmarshal([]byte(midterms), &s.ImportantDates.Midterms); err != nil {
		return nil, fmt.Errorf("scan syllabus midterms: %w", err)
	}
	if err := json.Unmarshal([]byte(grading), &s.GradingPolicy); err != nil {
		return nil, fmt.Errorf("scan syllabus grading policy: %w", err)
	}
	if err := json.Unmarshal([]byte(warnings), &s.Warnings); err != nil {
		return nil, fmt.Errorf("scan syllabus warnings: %w", err)
	}
	s.CreatedAt, s.UpdatedAt = s.CreatedAt.UTC(), s.UpdatedAt.UTC()
	return &s, nil
}

// applyPatch returns a merged copy plus warnings for fields it had to ignore.
func applyPatch(cur *entity.Syllabus, p entity.SyllabusPatch) (*entity.Syllabus, []entity.Warning, error) {
	next := cur.Clone()
	var extra []entity.Warning

	str := func(dst *string, o entity.Optional[string]) {
		if o.Set {
			*dst = strings.TrimSpace(o.OrElse(""))
		}
	}
	date := func(dst **entity.Date, o entity.Optional[entity.Date]) {
		if !o.Set {
			return
		}
		if v, ok := o.Get(); ok {
			*dst = &v
		} else {
			*dst = nil
		}
	}

	str(&next.Course.Code, p.CourseCode)
	str(&next.Course.Name, p.CourseName)
	if next.Course.Code == "" || next.Course.Name == "" {
		return nil, nil, common.NewAppError("INVALID_INPUT", "course code and name cannot be cleared", common.ErrInvalidInput)
	}
	str(&next.Instructor.Name, p.InstructorName)
	str(&next.Instructor.Email, p.InstructorEmail)
	str(&next.Term.Semester, p.Semester)
	str(&next.Term.Year, p.Year)
	str(&next.MeetingInfo.Days, p.MeetingDays)
	str(&next.MeetingInfo.Time, p.MeetingTime)
	str(&next.MeetingInfo.Location, p.MeetingLocation)
	str(&next.Description, p.Description)
	str(&next.ScheduleSummary, p.ScheduleSummary)
	if p.GradingPolicy.Set {
		next.GradingPolicy = p.GradingPolicy.OrElse(nil)
	}
	if p.AccentColor.Set {
		raw := p.AccentColor.OrElse("")
		if c, ok := constants.CanonicalizeAccentColor(raw); ok {
			next.AccentColor = c
		} else if raw == "" {
			next.AccentColor = constants.DefaultAccentColor
		} else {
			extra = append(extra, entity.Warning{Code: entity.WarnUnknownAccentColor, Field: "accent_color",
				Message: fmt.Sprintf("%q is not a known color; kept %s", raw, next.AccentColor)})
		}
	}
	date(&next.ImportantDates.FirstClass, p.FirstClass)
	date(&next.ImportantDates.LastClass, p.LastClass)
	date(&next.ImportantDates.FinalExam, p.FinalExam)
	if p.Midterms.Set {
		next.ImportantDates.Midterms = append([]entity.Date{}, p.Midterms.OrElse(nil)...)
	}
	return next, extra, nil
}

func nullDate(d *entity.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func lockKey(id uuid.UUID) string {
	return "syllabus:" + id.String()
}
