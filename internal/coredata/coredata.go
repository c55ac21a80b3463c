// Package coredata implements CRUD for the host-owned core entities
// (Category, Activity, ManualEntry) backing the Host API's core-entity
// operations. It always selects every column on the underlying table, so
// columns added to these tables by a plugin's AddColumn extension are
// returned automatically without this package knowing about them.
package coredata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hourglassapp/hourglass/internal/hosterr"
	"github.com/hourglassapp/hourglass/internal/registry"
	"github.com/hourglassapp/hourglass/internal/schema"
	"github.com/hourglassapp/hourglass/internal/store"
	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

const (
	TableCategories    = "categories"
	TableActivities    = "activities"
	TableManualEntries = "manual_entries"
)

// Store is the narrow store surface coredata needs.
type Store interface {
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	Query(ctx context.Context, query string, args ...any) ([]store.Row, error)
}

// Dispatcher is the narrow surface of the Orchestrator coredata needs to
// invoke registered data hooks and query filters — the same
// invoke_command round trip the Host API's CallPlugin uses, set
// post-construction via SetDispatcher the same deferred-wiring way
// hostapi.Prod's own dispatcher is (the Orchestrator needs the Host API,
// which holds this CoreData, to exist first).
type Dispatcher interface {
	Dispatch(ctx context.Context, pluginID, command string, params []byte) ([]byte, error)
}

// CoreData implements core-entity CRUD against s, validating writes
// against reg's committed column extensions and running reg's
// registered data hooks and query filters around every write/read.
type CoreData struct {
	s          Store
	reg        *registry.Registry
	dispatcher Dispatcher
	logger     *slog.Logger
}

func New(s Store, reg *registry.Registry) *CoreData {
	return &CoreData{s: s, reg: reg, logger: slog.Default()}
}

// SetDispatcher wires the Orchestrator for hook/filter dispatch.
func (c *CoreData) SetDispatcher(d Dispatcher) { c.dispatcher = d }

func toObj(r store.Row) pluginapi.Obj { return pluginapi.Obj(r) }

// --- Categories ---

func (c *CoreData) GetCategories(ctx context.Context) ([]pluginapi.Obj, error) {
	rows, err := c.s.Query(ctx, "SELECT * FROM "+TableCategories+" ORDER BY sort_order ASC, id ASC")
	if err != nil {
		return nil, hosterr.Wrap(hosterr.Internal, err, "querying categories")
	}
	return c.applyQueryFilters(ctx, pluginapi.EntityCategory, toObjs(rows)), nil
}

func (c *CoreData) CreateCategory(ctx context.Context, obj pluginapi.Obj) (pluginapi.Obj, error) {
	if err := c.validateWriteKeys(TableCategories, obj); err != nil {
		return nil, err
	}
	obj = c.runHooks(ctx, pluginapi.EntityCategory, obj)
	cols, placeholders, vals := buildInsert(obj)
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", TableCategories, cols, placeholders)
	id, err := c.insertReturningID(ctx, q, vals)
	if err != nil {
		return nil, err
	}
	return c.getByID(ctx, TableCategories, id)
}

func (c *CoreData) UpdateCategory(ctx context.Context, obj pluginapi.Obj) (pluginapi.Obj, error) {
	if err := c.validateWriteKeys(TableCategories, obj); err != nil {
		return nil, err
	}
	obj = c.runHooks(ctx, pluginapi.EntityCategory, obj)
	return c.updateByID(ctx, TableCategories, obj)
}

func (c *CoreData) DeleteCategory(ctx context.Context, id int64) error {
	return c.deleteByID(ctx, TableCategories, id)
}

// --- Activities ---

func (c *CoreData) GetActivities(ctx context.Context, start, end int64, limit, offset *int, filters *pluginapi.ActivityFilters) ([]pluginapi.Obj, error) {
	if end < start {
		return []pluginapi.Obj{}, nil
	}

	q := "SELECT * FROM " + TableActivities + " WHERE started_at >= ? AND started_at <= ?"
	args := []any{start, end}

	if filters != nil {
		if filters.ExcludeIdle != nil && *filters.ExcludeIdle {
			q += " AND is_idle = 0"
		}
		if len(filters.CategoryIDs) > 0 {
			q += " AND category_id IN (" + placeholdersFor(len(filters.CategoryIDs)) + ")"
			for _, id := range filters.CategoryIDs {
				args = append(args, id)
			}
		}
	}

	q += " ORDER BY started_at DESC, id DESC"

	if limit != nil {
		q += " LIMIT ?"
		args = append(args, *limit)
		if offset != nil {
			q += " OFFSET ?"
			args = append(args, *offset)
		}
	}

	rows, err := c.s.Query(ctx, q, args...)
	if err != nil {
		return nil, hosterr.Wrap(hosterr.Internal, err, "querying activities")
	}
	return c.applyQueryFilters(ctx, pluginapi.EntityActivity, toObjs(rows)), nil
}

// --- ManualEntries ---

func (c *CoreData) GetManualEntries(ctx context.Context, start, end int64) ([]pluginapi.Obj, error) {
	if end < start {
		return []pluginapi.Obj{}, nil
	}
	rows, err := c.s.Query(ctx,
		"SELECT * FROM "+TableManualEntries+" WHERE started_at >= ? AND ended_at <= ? ORDER BY started_at DESC, id DESC",
		start, end)
	if err != nil {
		return nil, hosterr.Wrap(hosterr.Internal, err, "querying manual entries")
	}
	return c.applyQueryFilters(ctx, pluginapi.EntityManualEntry, toObjs(rows)), nil
}

func (c *CoreData) CreateManualEntry(ctx context.Context, obj pluginapi.Obj) (pluginapi.Obj, error) {
	if err := c.validateWriteKeys(TableManualEntries, obj); err != nil {
		return nil, err
	}
	obj = c.runHooks(ctx, pluginapi.EntityManualEntry, obj)
	cols, placeholders, vals := buildInsert(obj)
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", TableManualEntries, cols, placeholders)
	id, err := c.insertReturningID(ctx, q, vals)
	if err != nil {
		return nil, err
	}
	return c.getByID(ctx, TableManualEntries, id)
}

func (c *CoreData) UpdateManualEntry(ctx context.Context, obj pluginapi.Obj) (pluginapi.Obj, error) {
	if err := c.validateWriteKeys(TableManualEntries, obj); err != nil {
		return nil, err
	}
	obj = c.runHooks(ctx, pluginapi.EntityManualEntry, obj)
	return c.updateByID(ctx, TableManualEntries, obj)
}

func (c *CoreData) DeleteManualEntry(ctx context.Context, id int64) error {
	return c.deleteByID(ctx, TableManualEntries, id)
}

// --- shared helpers ---

func (c *CoreData) insertReturningID(ctx context.Context, q string, args []any) (int64, error) {
	// SQLite's database/sql driver reports LastInsertId via Exec, but the
	// Store's Exec only surfaces RowsAffected; run the insert through a
	// dedicated query using RETURNING id, supported since SQLite 3.35.
	rows, err := c.s.Query(ctx, q+" RETURNING id", args...)
	if err != nil {
		return 0, hosterr.Wrap(hosterr.Internal, err, "inserting row")
	}
	if len(rows) == 0 {
		return 0, hosterr.New(hosterr.Internal, "insert returned no id")
	}
	return toInt64(rows[0]["id"]), nil
}

func (c *CoreData) getByID(ctx context.Context, table string, id int64) (pluginapi.Obj, error) {
	rows, err := c.s.Query(ctx, "SELECT * FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return nil, hosterr.Wrap(hosterr.Internal, err, "fetching %s", table)
	}
	if len(rows) == 0 {
		return nil, hosterr.New(hosterr.NotFound, "%s %d not found", table, id)
	}
	return toObj(rows[0]), nil
}

func (c *CoreData) updateByID(ctx context.Context, table string, obj pluginapi.Obj) (pluginapi.Obj, error) {
	idRaw, ok := obj["id"]
	if !ok {
		return nil, hosterr.New(hosterr.InvalidArgument, "update requires an id")
	}
	id := toInt64(idRaw)

	set, vals := buildSet(obj, "id")
	if set == "" {
		return c.getByID(ctx, table, id)
	}
	vals = append(vals, id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, set)
	n, err := c.s.Exec(ctx, q, vals...)
	if err != nil {
		return nil, hosterr.Wrap(hosterr.Internal, err, "updating %s", table)
	}
	if n == 0 {
		return nil, hosterr.New(hosterr.NotFound, "%s %d not found", table, id)
	}
	return c.getByID(ctx, table, id)
}

func (c *CoreData) deleteByID(ctx context.Context, table string, id int64) error {
	n, err := c.s.Exec(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return hosterr.Wrap(hosterr.Internal, err, "deleting from %s", table)
	}
	if n == 0 {
		return hosterr.New(hosterr.NotFound, "%s %d not found", table, id)
	}
	return nil
}

func toObjs(rows []store.Row) []pluginapi.Obj {
	out := make([]pluginapi.Obj, len(rows))
	for i, r := range rows {
		out[i] = toObj(r)
	}
	return out
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

// validateWriteKeys rejects any obj key that isn't "id" or a known
// column of table — a write-time allowlist built from table's base
// columns plus every AddColumn extension any plugin has committed
// against it, mirroring internal/hostapi/own_table.go's
// validateWriteKeys for plugin-owned tables.
func (c *CoreData) validateWriteKeys(table string, obj pluginapi.Obj) error {
	if c.reg == nil {
		return nil
	}
	cols := schema.CoreTableColumns(c.reg, table)
	for k := range obj {
		if k == "id" {
			continue
		}
		if _, ok := schema.ColumnByName(cols, k); !ok {
			return hosterr.New(hosterr.InvalidArgument, "unknown column %q", k)
		}
	}
	return nil
}

// runHooks invokes every data hook registered against entity, in
// registration order, each handed the record produced by the previous
// one. A hook is invoked as invoke_command(plugin_id, "__hook_<name>",
// record) per pluginapi.DataHook's documented convention; a hook whose
// invocation errors, or whose response doesn't decode back into an Obj,
// is logged and skipped — hooks may mutate the in-flight record but can
// never reject the write.
func (c *CoreData) runHooks(ctx context.Context, entity pluginapi.EntityType, obj pluginapi.Obj) pluginapi.Obj {
	if c.reg == nil || c.dispatcher == nil {
		return obj
	}
	for _, ph := range c.reg.DataHooksFor(entity) {
		body, err := json.Marshal(obj)
		if err != nil {
			c.logger.Warn("marshaling record for data hook", "plugin", ph.PluginID, "hook", ph.Hook.Name, "error", err)
			continue
		}
		out, err := c.dispatcher.Dispatch(ctx, ph.PluginID, "__hook_"+ph.Hook.Name, body)
		if err != nil {
			c.logger.Warn("data hook invocation failed", "plugin", ph.PluginID, "hook", ph.Hook.Name, "error", err)
			continue
		}
		var mutated pluginapi.Obj
		if err := json.Unmarshal(out, &mutated); err != nil {
			c.logger.Warn("data hook returned an unusable record", "plugin", ph.PluginID, "hook", ph.Hook.Name, "error", err)
			continue
		}
		obj = mutated
	}
	return obj
}

// applyQueryFilters drops any row a registered query filter excludes,
// invoking each as invoke_command(plugin_id, "__filter_<name>", row) and
// expecting a {"include": bool} response — the read-side counterpart of
// runHooks's "__hook_<name>" convention. A filter whose invocation
// errors, or whose response doesn't parse, fails open: the row is kept,
// the same best-effort posture runHooks takes on its own failures.
func (c *CoreData) applyQueryFilters(ctx context.Context, entity pluginapi.EntityType, rows []pluginapi.Obj) []pluginapi.Obj {
	if c.reg == nil || c.dispatcher == nil {
		return rows
	}
	filters := c.reg.QueryFiltersFor(entity)
	if len(filters) == 0 {
		return rows
	}
	out := rows[:0:0]
	for _, row := range rows {
		keep := true
		for _, pf := range filters {
			body, err := json.Marshal(row)
			if err != nil {
				c.logger.Warn("marshaling record for query filter", "plugin", pf.PluginID, "filter", pf.Filter.Name, "error", err)
				continue
			}
			res, err := c.dispatcher.Dispatch(ctx, pf.PluginID, "__filter_"+pf.Filter.Name, body)
			if err != nil {
				c.logger.Warn("query filter invocation failed", "plugin", pf.PluginID, "filter", pf.Filter.Name, "error", err)
				continue
			}
			var decision struct {
				Include bool `json:"include"`
			}
			if err := json.Unmarshal(res, &decision); err != nil {
				c.logger.Warn("query filter returned an unusable response", "plugin", pf.PluginID, "filter", pf.Filter.Name, "error", err)
				continue
			}
			if !decision.Include {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out
}

func placeholdersFor(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += "?"
	}
	return s
}

func buildInsert(obj pluginapi.Obj) (cols, placeholders string, vals []any) {
	first := true
	for k, v := range obj {
		if !first {
			cols += ", "
			placeholders += ", "
		}
		cols += k
		placeholders += "?"
		vals = append(vals, v)
		first = false
	}
	return cols, placeholders, vals
}

func buildSet(obj pluginapi.Obj, skip ...string) (set string, vals []any) {
	skipSet := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipSet[s] = true
	}
	first := true
	for k, v := range obj {
		if skipSet[k] {
			continue
		}
		if !first {
			set += ", "
		}
		set += k + " = ?"
		vals = append(vals, v)
		first = false
	}
	return set, vals
}
