package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/syllabus-sync/constants"
	"github.com/joseph-ayodele/syllabus-sync/internal/common"
	"github.com/joseph-ayodele/syllabus-sync/internal/entity"
	"github.com/joseph-ayodele/syllabus-sync/internal/testutil"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	ctx := context.Background()
	db, err := OpenSQLite(ctx, fmt.Sprintf("file:%s?mode=memory", uuid.NewString()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(nil) })
	require.NoError(t, Migrate(ctx, db, nil))
	// migrating twice is a no-op
	require.NoError(t, Migrate(ctx, db, nil))
	return db
}

func datePtr(y int, m time.Month, d int) *entity.Date {
	v := entity.NewDate(y, m, d)
	return &v
}

func sampleSyllabus(owner string) *entity.Syllabus {
	return &entity.Syllabus{
		OwnerID:    owner,
		Course:     entity.Course{Code: "CS 101", Name: "Intro to Computing"},
		Instructor: entity.Instructor{Name: "Dr. Ada Lovelace", Email: "ada@example.edu"},
		Term:       entity.Term{Semester: "Spring", Year: "2026"},
		ImportantDates: entity.ImportantDates{
			FirstClass: datePtr(2026, time.January, 12),
			LastClass:  datePtr(2026, time.April, 24),
			Midterms:   []entity.Date{entity.NewDate(2026, time.February, 20), entity.NewDate(2026, time.March, 27)},
			FinalExam:  datePtr(2026, time.May, 4),
		},
		Description:       "Programs, data and machines.",
		GradingPolicy:     map[string]string{"Homework": "30%", "Exams": "70%"},
		SourceDocumentRef: "syllabi/u1/abc_cs101.pdf",
		SourceFilename:    "cs101.pdf",
	}
}

func countRows(t *testing.T, db *DB, query string, args ...any) int {
	t.Helper()
	rows := &entsql.Rows{}
	require.NoError(t, db.Driver().Query(context.Background(), query, args, rows))
	defer rows.Close()
	n, err := entsql.ScanInt(rows)
	require.NoError(t, err)
	return n
}

func TestMigrateIsAdditive(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	assert.Equal(t, 1, countRows(t, db, "PRAGMA foreign_keys"))
	for _, name := range []string{syllabiTable, connectionsTable, mappingsTable} {
		assert.Equal(t, 1, countRows(t, db,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name), name)
	}
	assert.Equal(t, 1, countRows(t, db,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?", "syllabi_owner_created"))

	repo := NewSyllabusRepository(db, nil)
	rec, err := repo.Create(ctx, sampleSyllabus("u1"))
	require.NoError(t, err)

	require.NoError(t, Migrate(ctx, db, nil))
	got, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "CS 101", got.Course.Code)

	stats, err := Stats(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{syllabiTable: 1, connectionsTable: 0, mappingsTable: 0}, stats)
}

func TestWithForeignKeys(t *testing.T) {
	assert.Equal(t, "file:a?mode=memory&_pragma=foreign_keys(1)", withForeignKeys("file:a?mode=memory"))
	assert.Equal(t, "file:dev.db?_pragma=foreign_keys(1)", withForeignKeys("file:dev.db"))
	assert.Equal(t, "file:dev.db?_pragma=foreign_keys(0)", withForeignKeys("file:dev.db?_pragma=foreign_keys(0)"))
}

func TestSyllabusCreateGetList(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewClock(time.Time{}).WithStep(time.Second)
	repo := NewSyllabusRepository(newTestDB(t), nil, WithClock(clock.NowFunc()))

	first, err := repo.Create(ctx, sampleSyllabus("u1"))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, 1, first.Version)
	assert.Equal(t, constants.DefaultAccentColor, first.AccentColor)

	second, err := repo.Create(ctx, sampleSyllabus("u1"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, sampleSyllabus("u2"))
	require.NoError(t, err)

	got, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Course, got.Course)
	assert.Equal(t, first.ImportantDates, got.ImportantDates)
	assert.Equal(t, first.GradingPolicy, got.GradingPolicy)
	assert.Equal(t, "syllabi/u1/abc_cs101.pdf", got.SourceDocumentRef)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))

	list, err := repo.ListForOwner(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, first.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	empty, err := repo.ListForOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = repo.Get(ctx, uuid.New())
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSyllabusPatchLeavesIdentityAndDates(t *testing.T) {
	ctx := context.Background()
	repo := NewSyllabusRepository(newTestDB(t), nil)

	rec, err := repo.Create(ctx, sampleSyllabus("u1"))
	require.NoError(t, err)

	patched, err := repo.Patch(ctx, rec.ID, entity.SyllabusPatch{Description: entity.Some("Updated description")})
	require.NoError(t, err)
	assert.Equal(t, "Updated description", patched.Description)
	assert.Equal(t, rec.ID, patched.ID)
	assert.Equal(t, rec.SourceDocumentRef, patched.SourceDocumentRef)
	assert.Equal(t, rec.ImportantDates, patched.ImportantDates)
	assert.Equal(t, 2, patched.Version)

	stored, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Updated description", stored.Description)
	assert.Equal(t, rec.ImportantDates, stored.ImportantDates)
	assert.Equal(t, rec.Instructor, stored.Instructor)
	assert.Equal(t, 2, stored.Version)
}

func TestSyllabusPatchSoftViolationsAreWarnings(t *testing.T) {
	ctx := context.Background()
	repo := NewSyllabusRepository(newTestDB(t), nil)

	rec, err := repo.Create(ctx, sampleSyllabus("u1"))
	require.NoError(t, err)

	patched, err := repo.Patch(ctx, rec.ID, entity.SyllabusPatch{
		FinalExam:   entity.Some(entity.NewDate(2026, time.January, 1)),
		Midterms:    entity.Some([]entity.Date{entity.NewDate(2026, time.June, 1)}),
		AccentColor: entity.Some("chartreuse"),
	})
	require.NoError(t, err)

	codes := map[string]int{}
	for _, w := range patched.Warnings {
		codes[w.Code]++
	}
	assert.Equal(t, map[string]int{
		entity.WarnDateOrderViolation: 1,
		entity.WarnMidtermOutOfRange:  1,
		entity.WarnUnknownAccentColor: 1,
	}, codes)
	assert.Equal(t, constants.DefaultAccentColor, patched.AccentColor)

	stored, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Warnings, 3)
	assert.Equal(t, "2026-01-01", stored.ImportantDates.FinalExam.String())

	// clearing a date and fixing the color drops those warnings
	patched, err = repo.Patch(ctx, rec.ID, entity.SyllabusPatch{
		FinalExam:   entity.Clear[entity.Date](),
		Midterms:    entity.Some([]entity.Date{}),
		AccentColor: entity.Some("Emerald"),
	})
	require.NoError(t, err)
	assert.Empty(t, patched.Warnings)
	assert.Nil(t, patched.ImportantDates.FinalExam)
	assert.Equal(t, constants.ColorGreen, patched.AccentColor)
}

func TestSyllabusPatchErrors(t *testing.T) {
	ctx := context.Background()
	repo := NewSyllabusRepository(newTestDB(t), nil)

	rec, err := repo.Create(ctx, sampleSyllabus("u1"))
	require.NoError(t, err)

	_, err = repo.Patch(ctx, uuid.New(), entity.SyllabusPatch{Description: entity.Some("x")})
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = repo.Patch(ctx, rec.ID, entity.SyllabusPatch{Description: entity.Some("x"), ExpectedVersion: 7})
	require.ErrorIs(t, err, common.ErrConflictingUpdate)

	_, err = repo.Patch(ctx, rec.ID, entity.SyllabusPatch{CourseCode: entity.Some("  ")})
	require.ErrorIs(t, err, common.ErrInvalidInput)

	patched, err := repo.Patch(ctx, rec.ID, entity.SyllabusPatch{Description: entity.Some("x"), ExpectedVersion: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, patched.Version)
}

func TestSyllabusConcurrentPatchesAreSerialized(t *testing.T) {
	ctx := context.Background()
	locks := common.NewKeyedMutex()
	repo := NewSyllabusRepository(newTestDB(t), nil, WithLocks(locks))

	rec, err := repo.Create(ctx, sampleSyllabus("u1"))
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Patch(ctx, rec.ID, entity.SyllabusPatch{ScheduleSummary: entity.Some(fmt.Sprintf("writer %d", i))})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	stored, err := repo.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 1+writers, stored.Version)
	assert.Zero(t, locks.Len(), "per-record locks are reaped once released")
}

func TestSyllabusDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSyllabusRepository(db, nil)
	mappings := NewMappingRepository(db, nil)

	rec, err := repo.Create(ctx, sampleSyllabus("u1"))
	require.NoError(t, err)
	require.NoError(t, mappings.Upsert(ctx, &entity.SyncEventMapping{
		SyllabusID: rec.ID, FieldKind: constants.FieldFirstClass, ExternalEventID: "evt-1",
		SyncedDate: *rec.ImportantDates.FirstClass,
	}))

	require.NoError(t, repo.Delete(ctx, rec.ID))
	require.NoError(t, repo.Delete(ctx, rec.ID))

	_, err = repo.Get(ctx, rec.ID)
	require.ErrorIs(t, err, common.ErrNotFound)
	left, err := mappings.ListForSyllabus(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestCalendarStateRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewCalendarStateRepository(newTestDB(t), nil)

	st, err := repo.Get(ctx, "u1", constants.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusDisconnected, st.Status)
	assert.Nil(t, st.Credential)

	pending := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC)
	st.Status = constants.StatusPendingAuthorization
	st.PendingSince = &pending
	require.NoError(t, repo.Save(ctx, st))

	got, err := repo.Get(ctx, "u1", constants.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusPendingAuthorization, got.Status)
	require.NotNil(t, got.PendingSince)
	assert.True(t, pending.Equal(*got.PendingSince))

	got.Status = constants.StatusConnected
	got.PendingSince = nil
	got.AccountEmail = "student@example.edu"
	got.CalendarID = "cal-123"
	got.Credential = []byte("sealed-token")
	require.NoError(t, repo.Save(ctx, got))

	got, err = repo.Get(ctx, "u1", constants.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusConnected, got.Status)
	assert.Nil(t, got.PendingSince)
	assert.Equal(t, "cal-123", got.CalendarID)
	assert.Equal(t, []byte("sealed-token"), got.Credential)

	other, err := repo.Get(ctx, "u2", constants.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusDisconnected, other.Status)
}

func TestMappingRepository(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewMappingRepository(db, nil)
	id := uuid.New()

	key := entity.MappingKey{SyllabusID: id, FieldKind: constants.FieldMidterm, OccurrenceIndex: 1}
	_, ok, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	for i, d := range []entity.Date{entity.NewDate(2026, time.February, 20), entity.NewDate(2026, time.March, 27)} {
		require.NoError(t, repo.Upsert(ctx, &entity.SyncEventMapping{
			SyllabusID: id, FieldKind: constants.FieldMidterm, OccurrenceIndex: i,
			ExternalEventID: fmt.Sprintf("evt-%d", i), SyncedDate: d,
		}))
	}

	m, ok, err := repo.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "evt-1", m.ExternalEventID)
	assert.Equal(t, "2026-03-27", m.SyncedDate.String())

	// same key replaces, never duplicates
	m.SyncedDate = entity.NewDate(2026, time.March, 30)
	m.SyncedAt = time.Time{}
	require.NoError(t, repo.Upsert(ctx, m))
	all, err := repo.ListForSyllabus(ctx, id)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 0, all[0].OccurrenceIndex)
	assert.Equal(t, "2026-03-30", all[1].SyncedDate.String())

	stats, err := Stats(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 2, stats[mappingsTable])

	require.NoError(t, repo.DeleteForSyllabus(ctx, id))
	all, err = repo.ListForSyllabus(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, all)
}
