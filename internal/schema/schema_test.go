package schema_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hourglassapp/hourglass/internal/hosterr"
	"github.com/hourglassapp/hourglass/internal/registry"
	"github.com/hourglassapp/hourglass/internal/schema"
	"github.com/hourglassapp/hourglass/internal/store"
	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

func newEngine(t *testing.T) (*schema.Engine, *store.Store, *registry.Registry) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	reg := registry.New()
	eng := schema.New(s, reg)
	require.NoError(t, eng.EnsureLedger(context.Background()))
	return eng, s, reg
}

func tasksCreateTable() []pluginapi.SchemaChange {
	return []pluginapi.SchemaChange{{
		Kind: pluginapi.KindCreateTable,
		CreateTable: &pluginapi.CreateTableChange{
			Name: "tasks",
			Columns: []pluginapi.Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "title", Type: "TEXT"},
				{Name: "done", Type: "INTEGER", Nullable: true},
				{Name: "created_at", Type: "INTEGER", AutoTimestamp: pluginapi.AutoTimestampCreated},
				{Name: "updated_at", Type: "INTEGER", AutoTimestamp: pluginapi.AutoTimestampUpdated},
			},
		},
	}}
}

func commitOwnedTable(t *testing.T, reg *registry.Registry, pluginID, table string) {
	t.Helper()
	s := reg.BeginStaging(pluginID)
	s.AddSchemaChanges([]pluginapi.SchemaChange{{
		Kind: pluginapi.KindCreateTable,
		CreateTable: &pluginapi.CreateTableChange{
			Name:    table,
			Columns: []pluginapi.Column{{Name: "id", Type: "INTEGER", PrimaryKey: true}},
		},
	}})
	reg.Commit(s)
}

func TestApplyCreatesTable(t *testing.T) {
	eng, s, _ := newEngine(t)
	ctx := context.Background()

	require.NoError(t, eng.Apply(ctx, "tasks", tasksCreateTable()))

	_, err := s.Exec(ctx, "INSERT INTO tasks (title) VALUES ('A')")
	assert.NoError(t, err)
}

func TestApplyIsIdempotentAcrossCalls(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()
	changes := tasksCreateTable()

	require.NoError(t, eng.Apply(ctx, "tasks", changes))
	// A second Apply with the identical change set must be a no-op, not
	// a "table already exists" failure.
	assert.NoError(t, eng.Apply(ctx, "tasks", changes))
}

func TestValidateRejectsCoreTableCollision(t *testing.T) {
	eng, _, _ := newEngine(t)
	changes := []pluginapi.SchemaChange{{
		Kind: pluginapi.KindCreateTable,
		CreateTable: &pluginapi.CreateTableChange{
			Name:    "activities",
			Columns: []pluginapi.Column{{Name: "id", Type: "INTEGER", PrimaryKey: true}},
		},
	}}

	err := eng.Validate("tasks", changes)
	require.Error(t, err)
	assert.Equal(t, hosterr.ManifestInvalid, hosterr.KindOf(err))
}

func TestValidateRejectsCrossPluginTableCollision(t *testing.T) {
	eng, _, reg := newEngine(t)
	commitOwnedTable(t, reg, "billing", "invoices")

	err := eng.Validate("tasks", []pluginapi.SchemaChange{{
		Kind: pluginapi.KindCreateTable,
		CreateTable: &pluginapi.CreateTableChange{
			Name:    "invoices",
			Columns: []pluginapi.Column{{Name: "id", Type: "INTEGER", PrimaryKey: true}},
		},
	}})
	require.Error(t, err)
	assert.Equal(t, hosterr.ManifestInvalid, hosterr.KindOf(err))
}

func TestValidateRejectsAddColumnOnUnownedTable(t *testing.T) {
	eng, _, reg := newEngine(t)
	commitOwnedTable(t, reg, "billing", "invoices")

	err := eng.Validate("tasks", []pluginapi.SchemaChange{{
		Kind: pluginapi.KindAddColumn,
		AddColumn: &pluginapi.AddColumnChange{
			Table:  "invoices",
			Column: "priority",
			Type:   "INTEGER",
		},
	}})
	require.Error(t, err)
	assert.Equal(t, hosterr.PermissionDenied, hosterr.KindOf(err))
}

func TestValidateRejectsAddColumnOnMissingTable(t *testing.T) {
	eng, _, _ := newEngine(t)
	err := eng.Validate("tasks", []pluginapi.SchemaChange{{
		Kind: pluginapi.KindAddColumn,
		AddColumn: &pluginapi.AddColumnChange{
			Table:  "ghost_table",
			Column: "x",
			Type:   "INTEGER",
		},
	}})
	require.Error(t, err)
	assert.Equal(t, hosterr.NotFound, hosterr.KindOf(err))
}

func TestValidateAllowsAddColumnOnCoreTable(t *testing.T) {
	eng, _, _ := newEngine(t)
	err := eng.Validate("tasks", []pluginapi.SchemaChange{{
		Kind: pluginapi.KindAddColumn,
		AddColumn: &pluginapi.AddColumnChange{
			Table:  "activities",
			Column: "priority",
			Type:   "INTEGER",
		},
	}})
	assert.NoError(t, err)
}

func TestValidateRejectsInvalidIdentifier(t *testing.T) {
	eng, _, _ := newEngine(t)
	err := eng.Validate("tasks", []pluginapi.SchemaChange{{
		Kind: pluginapi.KindCreateTable,
		CreateTable: &pluginapi.CreateTableChange{
			Name:    "tasks; DROP TABLE activities",
			Columns: []pluginapi.Column{{Name: "id", Type: "INTEGER", PrimaryKey: true}},
		},
	}})
	require.Error(t, err)
	assert.Equal(t, hosterr.ManifestInvalid, hosterr.KindOf(err))
}

// TestApplyRebuildsTableToAddForeignKey exercises the rename/create/
// copy/drop/rename sequence Apply runs for AddForeignKey against a table
// that already exists: the rebuilt table keeps its prior row, gains a
// working foreign key (enforced by the store's _foreign_keys=on DSN
// setting), and survives a second Apply of the identical change
// idempotently.
func TestApplyRebuildsTableToAddForeignKey(t *testing.T) {
	eng, s, reg := newEngine(t)
	ctx := context.Background()

	for _, ddl := range schema.CoreSchemaDDL() {
		_, err := s.Exec(ctx, ddl)
		require.NoError(t, err)
	}
	_, err := s.Exec(ctx, "INSERT INTO categories (id, name, color, sort_order) VALUES (1, 'Work', '#fff', 0)")
	require.NoError(t, err)

	createTasks := []pluginapi.SchemaChange{{
		Kind: pluginapi.KindCreateTable,
		CreateTable: &pluginapi.CreateTableChange{
			Name: "tasks",
			Columns: []pluginapi.Column{
				{Name: "id", Type: "INTEGER", PrimaryKey: true},
				{Name: "title", Type: "TEXT"},
				{Name: "category_id", Type: "INTEGER", Nullable: true},
			},
		},
	}}
	require.NoError(t, eng.Apply(ctx, "tasks", createTasks))
	staging := reg.BeginStaging("tasks")
	staging.AddSchemaChanges(createTasks)
	reg.Commit(staging)

	_, err = s.Exec(ctx, "INSERT INTO tasks (id, title, category_id) VALUES (1, 'Write docs', 1)")
	require.NoError(t, err)

	fkChange := []pluginapi.SchemaChange{{
		Kind: pluginapi.KindAddForeignKey,
		AddForeignKey: &pluginapi.AddForeignKeyChange{
			Table:         "tasks",
			Column:        "category_id",
			ForeignTable:  "categories",
			ForeignColumn: "id",
		},
	}}
	require.NoError(t, eng.Apply(ctx, "tasks", fkChange))

	rows, err := s.Query(ctx, "SELECT title, category_id FROM tasks WHERE id = 1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Write docs", rows[0]["title"])

	_, err = s.Exec(ctx, "INSERT INTO tasks (id, title, category_id) VALUES (2, 'Orphan', 999)")
	assert.Error(t, err, "inserting a row referencing a nonexistent category must violate the new foreign key")

	// Re-applying the same change must stay idempotent against the
	// migration ledger rather than trying to rebuild again.
	assert.NoError(t, eng.Apply(ctx, "tasks", fkChange))
}

func TestCoreSchemaDDLCreatesExpectedTables(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	for _, ddl := range schema.CoreSchemaDDL() {
		_, err := s.Exec(ctx, ddl)
		require.NoError(t, err)
	}

	for _, table := range []string{"categories", "activities", "manual_entries"} {
		_, err := s.Exec(ctx, "SELECT * FROM "+table+" LIMIT 0")
		assert.NoError(t, err, "expected table %s to exist", table)
	}
}
