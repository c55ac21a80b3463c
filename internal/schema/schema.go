// Package schema is the Schema Engine (C3): it translates a stream of
// declarative SchemaChange values into store DDL within a single
// transaction per plugin initialize call, validates them against the
// ownership rules that keep one plugin from colliding with another's
// tables or the core schema, and owns the migration ledger that
// makes initialize idempotent across restarts.
package schema

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/hourglassapp/hourglass/internal/hosterr"
	"github.com/hourglassapp/hourglass/internal/metrics"
	"github.com/hourglassapp/hourglass/internal/registry"
	"github.com/hourglassapp/hourglass/internal/store"
	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

var identifierRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// CoreTables are the host-owned tables any plugin may extend (but never
// create, since they already exist) via AddColumn/AddIndex/AddForeignKey.
var CoreTables = map[string]bool{
	"categories":     true,
	"activities":     true,
	"manual_entries": true,
}

const ledgerTable = "_plugin_schema_applied"

// Engine applies schema changes against s, tracking ownership via reg and
// idempotence via the migration ledger.
type Engine struct {
	s   *store.Store
	reg *registry.Registry
}

func New(s *store.Store, reg *registry.Registry) *Engine {
	return &Engine{s: s, reg: reg}
}

// EnsureLedger creates the migration ledger table if it doesn't already
// exist. Called once at host startup before any plugin initializes.
func (e *Engine) EnsureLedger(ctx context.Context) error {
	_, err := e.s.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+ledgerTable+` (
		plugin_id TEXT NOT NULL,
		change_hash TEXT NOT NULL,
		applied_at INTEGER NOT NULL,
		PRIMARY KEY (plugin_id, change_hash)
	)`)
	if err != nil {
		return hosterr.Wrap(hosterr.Internal, err, "creating migration ledger")
	}
	return nil
}

// Validate checks changes against the ownership and naming rules
// before any SQL is issued. pluginID is the plugin registering
// these changes; owned is its current owned-table set (including tables
// it is creating earlier in this same batch).
func (e *Engine) Validate(pluginID string, changes []pluginapi.SchemaChange) error {
	owned := make(map[string]bool)
	if entry := e.reg.Entry(pluginID); entry != nil {
		for t := range entry.OwnedTables {
			owned[t] = true
		}
	}

	for _, c := range changes {
		switch c.Kind {
		case pluginapi.KindCreateTable:
			ct := c.CreateTable
			if !identifierRE.MatchString(ct.Name) {
				return hosterr.New(hosterr.ManifestInvalid, "invalid table name %q", ct.Name)
			}
			if CoreTables[ct.Name] {
				return hosterr.New(hosterr.ManifestInvalid, "table %q collides with a core table", ct.Name)
			}
			if owner, ok := e.reg.TableOwner(ct.Name); ok && owner != pluginID {
				return hosterr.New(hosterr.ManifestInvalid, "table %q already owned by plugin %q", ct.Name, owner)
			}
			for _, col := range ct.Columns {
				if !identifierRE.MatchString(col.Name) {
					return hosterr.New(hosterr.ManifestInvalid, "invalid column name %q on table %q", col.Name, ct.Name)
				}
			}
			owned[ct.Name] = true

		case pluginapi.KindAddColumn:
			if err := e.validateTargetTable(pluginID, c.AddColumn.Table, owned); err != nil {
				return err
			}
			if !identifierRE.MatchString(c.AddColumn.Column) {
				return hosterr.New(hosterr.ManifestInvalid, "invalid column name %q", c.AddColumn.Column)
			}

		case pluginapi.KindAddIndex:
			if err := e.validateTargetTable(pluginID, c.AddIndex.Table, owned); err != nil {
				return err
			}
			for _, col := range c.AddIndex.Columns {
				if !identifierRE.MatchString(col) {
					return hosterr.New(hosterr.ManifestInvalid, "invalid index column %q", col)
				}
			}

		case pluginapi.KindAddForeignKey:
			if err := e.validateTargetTable(pluginID, c.AddForeignKey.Table, owned); err != nil {
				return err
			}

		default:
			return hosterr.New(hosterr.ManifestInvalid, "unknown schema change kind %q", c.Kind)
		}
	}
	return nil
}

func (e *Engine) validateTargetTable(pluginID, table string, owned map[string]bool) error {
	if CoreTables[table] {
		return nil
	}
	if owned[table] {
		return nil
	}
	if owner, ok := e.reg.TableOwner(table); ok {
		return hosterr.New(hosterr.PermissionDenied, "table %q is owned by plugin %q, not %q", table, owner, pluginID)
	}
	return hosterr.New(hosterr.NotFound, "table %q does not exist", table)
}

// Apply runs changes for pluginID inside a single transaction, skipping
// any whose canonical hash is already recorded in the migration ledger.
// On any failure the whole transaction rolls back and the error is
// returned; already-applied ledger entries from prior successful calls
// are untouched regardless.
func (e *Engine) Apply(ctx context.Context, pluginID string, changes []pluginapi.SchemaChange) error {
	if err := e.Validate(pluginID, changes); err != nil {
		return err
	}

	return e.s.Transaction(ctx, func(tx *store.Tx) error {
		for _, c := range changes {
			hash, err := hashChange(pluginID, c)
			if err != nil {
				return hosterr.Wrap(hosterr.Internal, err, "hashing schema change")
			}

			applied, err := alreadyApplied(ctx, tx, pluginID, hash)
			if err != nil {
				return err
			}
			if applied {
				continue
			}

			if c.Kind == pluginapi.KindAddForeignKey {
				if err := e.rebuildWithForeignKey(ctx, tx, pluginID, changes, c.AddForeignKey); err != nil {
					return err
				}
			} else {
				ddl, args, err := toDDL(c)
				if err != nil {
					return err
				}
				if _, err := tx.Exec(ctx, ddl, args...); err != nil {
					return hosterr.Wrap(hosterr.ConstraintViolation, err, "applying schema change on %s", targetTable(c))
				}
			}
			metrics.Global().SchemaChangesApplied.WithLabelValues(pluginID).Inc()

			if _, err := tx.Exec(ctx,
				"INSERT INTO "+ledgerTable+" (plugin_id, change_hash, applied_at) VALUES (?, ?, strftime('%s','now'))",
				pluginID, hash,
			); err != nil {
				return hosterr.Wrap(hosterr.Internal, err, "recording ledger entry")
			}
		}
		return nil
	})
}

// rebuildWithForeignKey adds fk to an already-existing table using
// SQLite's standard rename/create/copy/drop/rename rebuild sequence,
// since SQLite's ALTER TABLE cannot attach a new foreign key to a table
// that already exists. The rebuilt table keeps every column and index
// the table currently has (indexes from the Extension Registry's
// committed state plus any earlier in this same batch), with fk.Column
// now carrying a REFERENCES clause.
func (e *Engine) rebuildWithForeignKey(ctx context.Context, tx *store.Tx, pluginID string, batch []pluginapi.SchemaChange, fk *pluginapi.AddForeignKeyChange) error {
	table := fk.Table
	cols := e.columnsForTable(pluginID, table)
	if len(cols) == 0 {
		return hosterr.New(hosterr.NotFound, "table %q has no known columns to rebuild", table)
	}
	idx, ok := columnIndex(cols, fk.Column)
	if !ok {
		return hosterr.New(hosterr.InvalidArgument, "unknown column %q on table %q", fk.Column, table)
	}

	rebuilt := append([]pluginapi.Column(nil), cols...)
	rebuilt[idx].ForeignKey = &pluginapi.ForeignKeyRef{Table: fk.ForeignTable, Column: fk.ForeignColumn}

	tmpTable := "_hourglass_rebuild_" + table
	if _, err := tx.Exec(ctx, buildCreateTableDDL(tmpTable, rebuilt, false)); err != nil {
		return hosterr.Wrap(hosterr.ConstraintViolation, err, "creating rebuild table for %s", table)
	}

	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	colList := strings.Join(names, ", ")
	if _, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", tmpTable, colList, colList, table)); err != nil {
		return hosterr.Wrap(hosterr.ConstraintViolation, err, "copying rows while adding foreign key on %s", table)
	}
	if _, err := tx.Exec(ctx, "DROP TABLE "+table); err != nil {
		return hosterr.Wrap(hosterr.Internal, err, "dropping original table %s", table)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tmpTable, table)); err != nil {
		return hosterr.Wrap(hosterr.Internal, err, "renaming rebuilt table to %s", table)
	}

	for _, ai := range indexesForTable(e.reg, batch, table) {
		if _, err := tx.Exec(ctx, addIndexDDL(ai)); err != nil {
			return hosterr.Wrap(hosterr.Internal, err, "recreating index %s on %s", ai.Name, table)
		}
	}
	return nil
}

// columnsForTable resolves table's current column set: CoreTableColumns
// for a core table (contributions from every plugin), or TableColumns
// scoped to pluginID for a plugin-owned one — Validate has already
// confirmed pluginID owns table by the time this runs.
func (e *Engine) columnsForTable(pluginID, table string) []pluginapi.Column {
	if CoreTables[table] {
		return CoreTableColumns(e.reg, table)
	}
	return TableColumns(e.reg, pluginID, table)
}

func columnIndex(cols []pluginapi.Column, name string) (int, bool) {
	for i, c := range cols {
		if c.Name == name {
			return i, true
		}
	}
	return 0, false
}

// indexesForTable collects every AddIndex change on record for table,
// from the Extension Registry's committed state plus batch (the current,
// not-yet-committed Apply call), deduplicated by index name.
func indexesForTable(reg *registry.Registry, batch []pluginapi.SchemaChange, table string) []*pluginapi.AddIndexChange {
	seen := make(map[string]bool)
	var out []*pluginapi.AddIndexChange
	add := func(ai *pluginapi.AddIndexChange) {
		if ai == nil || ai.Table != table || seen[ai.Name] {
			return
		}
		seen[ai.Name] = true
		out = append(out, ai)
	}
	for _, pluginID := range reg.CommittedPluginIDs() {
		entry := reg.Entry(pluginID)
		if entry == nil {
			continue
		}
		for _, c := range entry.SchemaChanges {
			if c.Kind == pluginapi.KindAddIndex {
				add(c.AddIndex)
			}
		}
	}
	for _, c := range batch {
		if c.Kind == pluginapi.KindAddIndex {
			add(c.AddIndex)
		}
	}
	return out
}

func alreadyApplied(ctx context.Context, tx *store.Tx, pluginID, hash string) (bool, error) {
	rows, err := tx.Query(ctx,
		"SELECT 1 FROM "+ledgerTable+" WHERE plugin_id = ? AND change_hash = ?", pluginID, hash)
	if err != nil {
		return false, hosterr.Wrap(hosterr.Internal, err, "checking migration ledger")
	}
	return len(rows) > 0, nil
}

// hashChange canonically serializes a change plus its owning plugin to
// JSON and hashes it, giving the ledger a stable idempotence key.
func hashChange(pluginID string, c pluginapi.SchemaChange) (string, error) {
	b, err := json.Marshal(struct {
		Plugin string
		Change pluginapi.SchemaChange
	}{pluginID, c})
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func targetTable(c pluginapi.SchemaChange) string {
	switch c.Kind {
	case pluginapi.KindCreateTable:
		return c.CreateTable.Name
	case pluginapi.KindAddColumn:
		return c.AddColumn.Table
	case pluginapi.KindAddIndex:
		return c.AddIndex.Table
	case pluginapi.KindAddForeignKey:
		return c.AddForeignKey.Table
	}
	return ""
}

// toDDL is never called for KindAddForeignKey: rebuildWithForeignKey
// handles that case with a multi-statement sequence instead of a single
// DDL string.
func toDDL(c pluginapi.SchemaChange) (string, []any, error) {
	switch c.Kind {
	case pluginapi.KindCreateTable:
		return createTableDDL(c.CreateTable)
	case pluginapi.KindAddColumn:
		return addColumnDDL(c.AddColumn)
	case pluginapi.KindAddIndex:
		return addIndexDDL(c.AddIndex), nil, nil
	}
	return "", nil, hosterr.New(hosterr.ManifestInvalid, "unknown schema change kind")
}

func createTableDDL(ct *pluginapi.CreateTableChange) (string, []any, error) {
	return buildCreateTableDDL(ct.Name, ct.Columns, false), nil, nil
}

func buildCreateTableDDL(name string, cols []pluginapi.Column, ifNotExists bool) string {
	ddl := "CREATE TABLE "
	if ifNotExists {
		ddl += "IF NOT EXISTS "
	}
	ddl += name + " ("
	for i, col := range cols {
		if i > 0 {
			ddl += ", "
		}
		ddl += columnDDL(col)
	}
	ddl += ")"
	return ddl
}

func columnDDL(col pluginapi.Column) string {
	d := col.Name + " " + col.Type
	if col.PrimaryKey {
		d += " PRIMARY KEY"
		if col.Type == "INTEGER" {
			d += " AUTOINCREMENT"
		}
	}
	if !col.Nullable && !col.PrimaryKey {
		d += " NOT NULL"
	}
	if col.Default != nil {
		d += " DEFAULT " + *col.Default
	}
	if col.ForeignKey != nil {
		d += fmt.Sprintf(" REFERENCES %s(%s)", col.ForeignKey.Table, col.ForeignKey.Column)
	}
	return d
}

func addColumnDDL(ac *pluginapi.AddColumnChange) (string, []any, error) {
	ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", ac.Table, ac.Column, ac.Type)
	if ac.Default != nil {
		ddl += " DEFAULT " + *ac.Default
	}
	if ac.ForeignKey != nil {
		ddl += fmt.Sprintf(" REFERENCES %s(%s)", ac.ForeignKey.Table, ac.ForeignKey.Column)
	}
	return ddl, nil, nil
}

func addIndexDDL(ai *pluginapi.AddIndexChange) string {
	ddl := "CREATE INDEX IF NOT EXISTS " + ai.Name + " ON " + ai.Table + " ("
	for i, c := range ai.Columns {
		if i > 0 {
			ddl += ", "
		}
		ddl += c
	}
	ddl += ")"
	return ddl
}

func strp(s string) *string { return &s }

// coreTableOrder fixes CoreSchemaDDL's creation order: activities and
// manual_entries reference categories(id).
var coreTableOrder = []string{"categories", "activities", "manual_entries"}

// coreColumnDefs is the base (plugin-extension-free) column set for each
// host-owned core table, expressed the same way a plugin's CreateTable
// change is, so CoreSchemaDDL and CoreTableColumns can share columnDDL
// instead of hand-written SQL strings.
var coreColumnDefs = map[string][]pluginapi.Column{
	"categories": {
		{Name: "id", Type: "INTEGER", PrimaryKey: true},
		{Name: "name", Type: "TEXT"},
		{Name: "color", Type: "TEXT"},
		{Name: "icon", Type: "TEXT", Nullable: true},
		{Name: "is_productive", Type: "INTEGER", Nullable: true},
		{Name: "sort_order", Type: "INTEGER", Default: strp("0")},
		{Name: "is_system", Type: "INTEGER", Default: strp("0")},
		{Name: "is_pinned", Type: "INTEGER", Default: strp("0")},
	},
	"activities": {
		{Name: "id", Type: "INTEGER", PrimaryKey: true},
		{Name: "app_name", Type: "TEXT"},
		{Name: "window_title", Type: "TEXT", Nullable: true},
		{Name: "domain", Type: "TEXT", Nullable: true},
		{Name: "category_id", Type: "INTEGER", Nullable: true, ForeignKey: &pluginapi.ForeignKeyRef{Table: "categories", Column: "id"}},
		{Name: "started_at", Type: "INTEGER"},
		{Name: "duration_sec", Type: "INTEGER", Default: strp("0")},
		{Name: "is_idle", Type: "INTEGER", Default: strp("0")},
	},
	"manual_entries": {
		{Name: "id", Type: "INTEGER", PrimaryKey: true},
		{Name: "description", Type: "TEXT", Nullable: true},
		{Name: "category_id", Type: "INTEGER", Nullable: true, ForeignKey: &pluginapi.ForeignKeyRef{Table: "categories", Column: "id"}},
		{Name: "started_at", Type: "INTEGER"},
		{Name: "ended_at", Type: "INTEGER"},
	},
}

// CoreSchemaDDL is the bootstrap DDL for the three core entity tables,
// run once at host startup before any plugin initializes.
func CoreSchemaDDL() []string {
	ddls := make([]string, 0, len(coreTableOrder))
	for _, t := range coreTableOrder {
		ddls = append(ddls, buildCreateTableDDL(t, coreColumnDefs[t], true))
	}
	return ddls
}

// CoreTableColumns returns table's full column set: its base columns
// plus every AddColumn extension any plugin has committed against it.
// Unlike TableColumns (scoped to one plugin, for plugin-owned tables),
// core tables can be extended by many different plugins, so their
// column allowlist has to be assembled across all of them.
func CoreTableColumns(reg *registry.Registry, table string) []pluginapi.Column {
	cols := append([]pluginapi.Column(nil), coreColumnDefs[table]...)
	for _, pluginID := range reg.CommittedPluginIDs() {
		entry := reg.Entry(pluginID)
		if entry == nil {
			continue
		}
		for _, c := range entry.SchemaChanges {
			if c.Kind == pluginapi.KindAddColumn && c.AddColumn.Table == table {
				cols = append(cols, pluginapi.Column{Name: c.AddColumn.Column, Type: c.AddColumn.Type})
			}
		}
	}
	return cols
}
