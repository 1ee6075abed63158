package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/syllabus-sync/constants"
	"github.com/joseph-ayodele/syllabus-sync/internal/common"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
)

// MappingRepository stores at most one SyncEventMapping per key.
type MappingRepository interface {
	Get(ctx context.Context, key entity.MappingKey) (*entity.SyncEventMapping, bool, error)
	Upsert(ctx context.Context, m *entity.SyncEventMapping) error
	ListForSyllabus(ctx context.Context, syllabusID uuid.UUID) ([]*entity.SyncEventMapping, error)
	DeleteForSyllabus(ctx context.Context, syllabusID uuid.UUID) error
}

type mappingRepository struct {
	db     *DB
	now    func() time.Time
	logger *slog.Logger
}

func NewMappingRepository(db *DB, logger *slog.Logger, opts ...Option) MappingRepository {
	if logger == nil {
		logger = slog.Default()
	}
	o := buildOptions(opts)
	return &mappingRepository{db: db, now: o.now, logger: logger}
}

var mappingColumns = []string{
	"syllabus_id", "field_kind", "occurrence_index", "external_event_id", "synced_date", "synced_at",
}

func (r *mappingRepository) Get(ctx context.Context, key entity.MappingKey) (*entity.SyncEventMapping, bool, error) {
	out, err := r.list(ctx, entsql.And(
		entsql.EQ("syllabus_id", key.SyllabusID.String()),
		entsql.EQ("field_kind", string(key.FieldKind)),
		entsql.EQ("occurrence_index", key.OccurrenceIndex),
	))
	if err != nil || len(out) == 0 {
		return nil, false, err
	}
	return out[0], true, nil
}

// Upsert writes m keyed by (syllabus, field kind, occurrence index).
func (r *mappingRepository) Upsert(ctx context.Context, m *entity.SyncEventMapping) error {
	if m.SyncedAt.IsZero() {
		m.SyncedAt = r.now().UTC()
	}
	query, args := entsql.Dialect(r.db.dialect).
		Insert(mappingsTable).
		Columns(mappingColumns...).
		Values(m.SyllabusID.String(), string(m.FieldKind), m.OccurrenceIndex, m.ExternalEventID, m.SyncedDate.String(), m.SyncedAt.UTC()).
		OnConflict(
			entsql.ConflictColumns("syllabus_id", "field_kind", "occurrence_index"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		r.logger.Error("failed to upsert sync mapping", "syllabus_id", m.SyllabusID, "field", m.FieldKind, "error", err)
		return common.NewAppError("DB_ERROR", "upsert sync mapping", errors.Join(common.ErrDatabase, err))
	}
	return nil
}

// ListForSyllabus returns mappings ordered by field kind and occurrence.
func (r *mappingRepository) ListForSyllabus(ctx context.Context, syllabusID uuid.UUID) ([]*entity.SyncEventMapping, error) {
	return r.list(ctx, entsql.EQ("syllabus_id", syllabusID.String()))
}

func (r *mappingRepository) DeleteForSyllabus(ctx context.Context, syllabusID uuid.UUID) error {
	query, args := entsql.Dialect(r.db.dialect).
		Delete(mappingsTable).
		Where(entsql.EQ("syllabus_id", syllabusID.String())).
		Query()
	if err := r.db.drv.Exec(ctx, query, args, nil); err != nil {
		return common.NewAppError("DB_ERROR", "delete sync mappings", errors.Join(common.ErrDatabase, err))
	}
	return nil
}

func (r *mappingRepository) list(ctx context.Context, where *entsql.Predicate) ([]*entity.SyncEventMapping, error) {
	query, args := entsql.Dialect(r.db.dialect).
		Select(mappingColumns...).
		From(entsql.Table(mappingsTable)).
		Where(where).
		OrderBy("field_kind", "occurrence_index").
		Query()

	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, query, args, rows); err != nil {
		return nil, common.NewAppError("DB_ERROR", "query sync mappings", errors.Join(common.ErrDatabase, err))
	}
	defer rows.Close()

	var out []*entity.SyncEventMapping
	for rows.Next() {
		var (
			m        entity.SyncEventMapping
			id, kind string
			synced   string
		)
		if err := rows.Scan(&id, &kind, &m.OccurrenceIndex, &m.ExternalEventID, &synced, &m.SyncedAt); err != nil {
			return nil, fmt.Errorf("scan sync mapping: %w", err)
		}
		var err error
		if m.SyllabusID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("scan sync mapping id: %w", err)
		}
		if m.SyncedDate, err = entity.ParseISODate(synced); err != nil {
			return nil, fmt.Errorf("scan sync mapping date: %w", err)
		}
		m.FieldKind = constants.DateFieldKind(kind)
		m.SyncedAt = m.SyncedAt.UTC()
		out = append(out, &m)
	}
	return out, rows.Err()
}
