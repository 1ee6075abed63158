package repository

import (
	"context"
	"fmt"
	"log/slog"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	syllabiTable     = "syllabi"
	connectionsTable = "calendar_connections"
	mappingsTable    = "sync_event_mappings"
)

// text columns are unbounded on postgres; ent would pick varchar otherwise
var textType = map[string]string{dialect.Postgres: "text"}

func textColumn(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeString, SchemaType: textType}
}

func nullable(c *schema.Column) *schema.Column {
	c.Nullable = true
	return c
}

func timeColumn(name string) *schema.Column {
	return &schema.Column{Name: name, Type: field.TypeTime}
}

// schemaTables builds the table definitions. The migrate engine annotates the
// values it is given, so every call gets its own copy.
func schemaTables() []*schema.Table {
	syllabi := schema.NewTable(syllabiTable).AddPrimary(textColumn("id"))
	for _, name := range []string{
		"owner_id", "course_code", "course_name", "instructor_name", "instructor_email",
		"semester", "term_year", "meeting_days", "meeting_time", "meeting_location",
	} {
		syllabi.AddColumn(textColumn(name))
	}
	syllabi.
		AddColumn(nullable(textColumn("first_class"))).
		AddColumn(nullable(textColumn("last_class"))).
		AddColumn(nullable(textColumn("final_exam")))
	for _, name := range []string{
		"midterms", "description", "grading_policy", "schedule_summary", "accent_color",
		"source_document_ref", "source_filename", "warnings",
	} {
		syllabi.AddColumn(textColumn(name))
	}
	syllabi.
		AddColumn(&schema.Column{Name: "version", Type: field.TypeInt64}).
		AddColumn(timeColumn("created_at")).
		AddColumn(timeColumn("updated_at")).
		AddIndex("syllabi_owner_created", false, []string{"owner_id", "created_at"})

	connections := schema.NewTable(connectionsTable).
		AddPrimary(textColumn("user_id")).
		AddPrimary(textColumn("provider")).
		AddColumn(textColumn("status")).
		AddColumn(textColumn("account_email")).
		AddColumn(textColumn("calendar_id")).
		AddColumn(&schema.Column{Name: "credential", Type: field.TypeBytes, Nullable: true}).
		AddColumn(nullable(timeColumn("pending_since"))).
		AddColumn(timeColumn("updated_at"))

	mappings := schema.NewTable(mappingsTable).
		AddPrimary(textColumn("syllabus_id")).
		AddPrimary(textColumn("field_kind")).
		AddPrimary(&schema.Column{Name: "occurrence_index", Type: field.TypeInt64}).
		AddColumn(textColumn("external_event_id")).
		AddColumn(textColumn("synced_date")).
		AddColumn(timeColumn("synced_at"))

	return []*schema.Table{syllabi, connections, mappings}
}

// Migrate creates any missing tables, columns and indexes. It is additive only:
// nothing is dropped and existing rows are left alone.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	m, err := schema.NewMigrate(db.drv,
		schema.WithDropColumn(false),
		schema.WithDropIndex(false),
		schema.WithForeignKeys(false),
	)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	tables := schemaTables()
	if err := m.Create(ctx, tables...); err != nil {
		logger.Error("migrate: schema create failed", "error", err)
		return fmt.Errorf("migrate schema: %w", err)
	}
	logger.Info("migrate: schema up to date", "tables", len(tables))
	return nil
}

// Stats counts rows per table.
func Stats(ctx context.Context, db *DB) (map[string]int, error) {
	tables := schemaTables()
	out := make(map[string]int, len(tables))
	for _, t := range tables {
		query, args := entsql.Dialect(db.dialect).Select(entsql.Count("*")).From(entsql.Table(t.Name)).Query()
		rows := &entsql.Rows{}
		if err := db.drv.Query(ctx, query, args, rows); err != nil {
			return nil, fmt.Errorf("count %s: %w", t.Name, err)
		}
		n, err := entsql.ScanInt(rows)
		_ = rows.Close()
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", t.Name, err)
		}
		out[t.Name] = n
	}
	return out, nil
}
