package hostapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hourglassapp/hourglass/internal/hosterr"
	"github.com/hourglassapp/hourglass/internal/permission"
	"github.com/hourglassapp/hourglass/internal/pluginlog"
	"github.com/hourglassapp/hourglass/internal/schema"
	"github.com/hourglassapp/hourglass/pkg/pluginapi"
)

var _ permission.TableQuerier = (*Prod)(nil)

var orderColumnRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (p *Prod) logPlugin(pluginID, level, msg string, fields map[string]any) {
	p.logger.Info(msg, "plugin", pluginID, "level", level)
	if p.pluginLogs != nil {
		p.pluginLogsAppend(pluginID, level, msg, fields)
	}
}

func (p *Prod) pluginLogsAppend(pluginID, level, msg string, fields map[string]any) {
	p.pluginLogs.Append(pluginID, pluginlog.Line{Level: level, Msg: msg, Fields: fields})
}

// --- Plugin-table CRUD ---

func (v *View) InsertOwnTable(table string, data pluginapi.Obj) (pluginapi.Obj, error) {
	if !v.prod.reg.OwnsTable(v.pluginID, table) {
		return nil, hosterr.New(hosterr.PermissionDenied, "plugin %q does not own table %q", v.pluginID, table)
	}
	cols := schema.TableColumns(v.prod.reg, v.pluginID, table)

	if err := validateWriteKeys(cols, data); err != nil {
		return nil, err
	}

	data = applyAutoTimestamps(cols, data, true)

	colNames, placeholders, vals := buildInsertSQL(data)
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id", table, colNames, placeholders)
	rows, err := v.prod.store.Query(v.ctx(), q, vals...)
	if err != nil {
		return nil, hosterr.Wrap(hosterr.ConstraintViolation, err, "inserting into %s", table)
	}
	if len(rows) == 0 {
		return nil, hosterr.New(hosterr.Internal, "insert into %s returned no id", table)
	}
	return pluginapi.Obj{"id": rows[0]["id"]}, nil
}

func (v *View) QueryOwnTable(table string, filters pluginapi.Filters, orderBy string, limit *int) ([]pluginapi.Obj, error) {
	if !v.prod.reg.OwnsTable(v.pluginID, table) {
		return nil, hosterr.New(hosterr.PermissionDenied, "plugin %q does not own table %q", v.pluginID, table)
	}
	return v.prod.queryTable(v.ctx(), v.pluginID, table, filters, orderBy, limit)
}

// QueryOwnTableAs implements permission.TableQuerier: it runs
// query_own_table logic under principalPluginID as the ownership
// context, without re-checking that the *caller* owns the table — the
// Permission Broker has already authorized the read by this point.
func (p *Prod) QueryOwnTableAs(principalPluginID, table string, filters pluginapi.Filters, orderBy string, limit *int) ([]pluginapi.Obj, error) {
	return p.queryTable(context.Background(), principalPluginID, table, filters, orderBy, limit)
}

func (v *View) UpdateOwnTable(table string, id int64, data pluginapi.Obj) (bool, error) {
	if !v.prod.reg.OwnsTable(v.pluginID, table) {
		return false, hosterr.New(hosterr.PermissionDenied, "plugin %q does not own table %q", v.pluginID, table)
	}
	cols := schema.TableColumns(v.prod.reg, v.pluginID, table)
	if err := validateWriteKeys(cols, data); err != nil {
		return false, err
	}
	data = applyAutoTimestamps(cols, data, false)
	if len(data) == 0 {
		return true, nil
	}

	set, vals := buildSetSQL(data)
	vals = append(vals, id)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, set)
	n, err := v.prod.store.Exec(v.ctx(), q, vals...)
	if err != nil {
		return false, hosterr.Wrap(hosterr.ConstraintViolation, err, "updating %s", table)
	}
	if n == 0 {
		return false, hosterr.New(hosterr.NotFound, "%s %d not found", table, id)
	}
	return true, nil
}

func (v *View) DeleteOwnTable(table string, id int64) (bool, error) {
	if !v.prod.reg.OwnsTable(v.pluginID, table) {
		return false, hosterr.New(hosterr.PermissionDenied, "plugin %q does not own table %q", v.pluginID, table)
	}
	n, err := v.prod.store.Exec(v.ctx(), "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return false, hosterr.Wrap(hosterr.Internal, err, "deleting from %s", table)
	}
	if n == 0 {
		return false, hosterr.New(hosterr.NotFound, "%s %d not found", table, id)
	}
	return true, nil
}

func (v *View) AggregateOwnTable(table string, filters pluginapi.Filters, agg pluginapi.Aggregations) (pluginapi.Obj, error) {
	if !v.prod.reg.OwnsTable(v.pluginID, table) {
		return nil, hosterr.New(hosterr.PermissionDenied, "plugin %q does not own table %q", v.pluginID, table)
	}
	cols := schema.TableColumns(v.prod.reg, v.pluginID, table)
	return v.prod.aggregateTable(v.ctx(), cols, table, filters, agg)
}

func (v *View) QueryPluginTable(ownerPluginID, table string, filters pluginapi.Filters, orderBy string, limit *int) ([]pluginapi.Obj, error) {
	if ownerPluginID == v.pluginID {
		// Self-reads skip the broker entirely.
		return v.QueryOwnTable(table, filters, orderBy, limit)
	}
	return v.prod.broker.QueryPluginTable(v.pluginID, ownerPluginID, table, filters, orderBy, limit)
}

// --- shared query/aggregate machinery ---

func (p *Prod) queryTable(ctx context.Context, ownerPluginID, table string, filters pluginapi.Filters, orderBy string, limit *int) ([]pluginapi.Obj, error) {
	cols := schema.TableColumns(p.reg, ownerPluginID, table)

	where, args, err := buildWhereSQL(cols, filters)
	if err != nil {
		return nil, err
	}

	q := "SELECT * FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	if orderBy != "" {
		clause, err := validateOrderBy(cols, orderBy)
		if err != nil {
			return nil, err
		}
		q += " ORDER BY " + clause
	}
	if limit != nil {
		q += " LIMIT ?"
		args = append(args, *limit)
	}

	rows, err := p.store.Query(ctx, q, args...)
	if err != nil {
		return nil, hosterr.Wrap(hosterr.Internal, err, "querying %s", table)
	}
	out := make([]pluginapi.Obj, len(rows))
	for i, r := range rows {
		out[i] = pluginapi.Obj(r)
	}
	return out, nil
}

func (p *Prod) aggregateTable(ctx context.Context, cols []pluginapi.Column, table string, filters pluginapi.Filters, agg pluginapi.Aggregations) (pluginapi.Obj, error) {
	where, args, err := buildWhereSQL(cols, filters)
	if err != nil {
		return nil, err
	}
	whereClause := ""
	if where != "" {
		whereClause = " WHERE " + where
	}

	if len(agg.GroupBy) == 0 {
		selectExpr, err := aggregateSelectExpr(cols, agg)
		if err != nil {
			return nil, err
		}
		rows, err := p.store.Query(ctx, "SELECT "+selectExpr+" FROM "+table+whereClause, args...)
		if err != nil {
			return nil, hosterr.Wrap(hosterr.Internal, err, "aggregating %s", table)
		}
		if len(rows) == 0 {
			return pluginapi.Obj{}, nil
		}
		return pluginapi.Obj(rows[0]), nil
	}

	for _, g := range agg.GroupBy {
		if !orderColumnRE.MatchString(g) {
			return nil, hosterr.New(hosterr.InvalidArgument, "invalid group_by column %q", g)
		}
		if _, ok := schema.ColumnByName(cols, g); !ok {
			return nil, hosterr.New(hosterr.InvalidArgument, "unknown group_by column %q", g)
		}
	}

	selectExpr, err := aggregateSelectExpr(cols, agg)
	if err != nil {
		return nil, err
	}
	q := "SELECT " + strings.Join(agg.GroupBy, ", ") + ", " + selectExpr + " FROM " + table + whereClause +
		" GROUP BY " + strings.Join(agg.GroupBy, ", ")
	rows, err := p.store.Query(ctx, q, args...)
	if err != nil {
		return nil, hosterr.Wrap(hosterr.Internal, err, "aggregating %s", table)
	}

	groups := make([]pluginapi.Obj, len(rows))
	for i, r := range rows {
		groups[i] = pluginapi.Obj(r)
	}

	totals, err := p.store.Query(ctx, "SELECT "+selectExpr+" FROM "+table+whereClause, args...)
	if err != nil {
		return nil, hosterr.Wrap(hosterr.Internal, err, "aggregating %s", table)
	}
	result := pluginapi.Obj{"groups": groups}
	if len(totals) > 0 {
		for k, v := range totals[0] {
			result[k] = v
		}
	}
	return result, nil
}

func aggregateSelectExpr(cols []pluginapi.Column, agg pluginapi.Aggregations) (string, error) {
	var parts []string
	if agg.Count != "" {
		if agg.Count != "*" {
			if _, ok := schema.ColumnByName(cols, agg.Count); !ok {
				return "", hosterr.New(hosterr.InvalidArgument, "unknown count column %q", agg.Count)
			}
		}
		parts = append(parts, fmt.Sprintf("COUNT(%s) AS total_count", agg.Count))
	}
	type namedFn struct{ name, fn string }
	for _, nf := range []namedFn{{agg.Sum, "sum"}, {agg.Avg, "avg"}, {agg.Min, "min"}, {agg.Max, "max"}} {
		if nf.name == "" {
			continue
		}
		if _, ok := schema.ColumnByName(cols, nf.name); !ok {
			return "", hosterr.New(hosterr.InvalidArgument, "unknown %s column %q", nf.fn, nf.name)
		}
		parts = append(parts, fmt.Sprintf("%s(%s) AS %s_%s", strings.ToUpper(nf.fn), nf.name, nf.fn, nf.name))
	}
	if len(parts) == 0 {
		return "1 AS total_count", nil
	}
	return strings.Join(parts, ", "), nil
}

func validateOrderBy(cols []pluginapi.Column, orderBy string) (string, error) {
	fields := strings.Fields(orderBy)
	if len(fields) != 2 {
		return "", hosterr.New(hosterr.InvalidArgument, "order_by must be \"<col> ASC|DESC\", got %q", orderBy)
	}
	col, dir := fields[0], strings.ToUpper(fields[1])
	if dir != "ASC" && dir != "DESC" {
		return "", hosterr.New(hosterr.InvalidArgument, "order_by direction must be ASC or DESC, got %q", fields[1])
	}
	if !orderColumnRE.MatchString(col) {
		return "", hosterr.New(hosterr.InvalidArgument, "invalid order_by column %q", col)
	}
	if _, ok := schema.ColumnByName(cols, col); !ok && col != "id" {
		return "", hosterr.New(hosterr.InvalidArgument, "unknown order_by column %q", col)
	}
	return col + " " + dir, nil
}

func buildWhereSQL(cols []pluginapi.Column, filters pluginapi.Filters) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	var clauses []string
	var args []any
	for col, val := range filters {
		if !orderColumnRE.MatchString(col) {
			return "", nil, hosterr.New(hosterr.InvalidArgument, "invalid filter column %q", col)
		}
		colDef, known := schema.ColumnByName(cols, col)
		if !known && col != "id" {
			return "", nil, hosterr.New(hosterr.InvalidArgument, "unknown filter column %q", col)
		}

		switch v := val.(type) {
		case map[string]any:
			clause, clauseArgs, err := buildOpClause(col, colDef, v)
			if err != nil {
				return "", nil, err
			}
			clauses = append(clauses, clause)
			args = append(args, clauseArgs...)
		default:
			clauses = append(clauses, col+" = ?")
			args = append(args, v)
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

// buildOpClause decodes raw (a filter object's value position, e.g.
// {"gte": 60}) into the documented pluginapi.FilterOp shape and builds
// the matching SQL fragment from its typed fields. DisallowUnknownFields
// rejects any key that isn't one of FilterOp's own json tags, so the
// "unknown filter operator" error and the recognized-operator set both
// come from the same struct instead of a hand-maintained string list.
func buildOpClause(col string, colDef pluginapi.Column, raw map[string]any) (string, []any, error) {
	present := make(map[string]bool, len(raw))
	for k := range raw {
		present[k] = true
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return "", nil, hosterr.New(hosterr.InvalidArgument, "invalid filter operator object for column %q", col)
	}
	var op pluginapi.FilterOp
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&op); err != nil {
		return "", nil, hosterr.New(hosterr.InvalidArgument, "invalid filter operator for column %q: %v", col, err)
	}

	numeric := func(name string) bool {
		switch name {
		case "gte", "lte", "gt", "lt":
			return true
		}
		return false
	}
	for name := range present {
		if numeric(name) && colDef.Name != "" && !schema.IsNumericType(colDef.Type) {
			return "", nil, hosterr.New(hosterr.InvalidArgument, "operator %q is not valid against non-numeric column %q", name, col)
		}
	}

	var clauses []string
	var args []any
	if present["eq"] {
		clauses = append(clauses, col+" = ?")
		args = append(args, op.Eq)
	}
	if present["gte"] {
		clauses = append(clauses, col+" >= ?")
		args = append(args, op.Gte)
	}
	if present["lte"] {
		clauses = append(clauses, col+" <= ?")
		args = append(args, op.Lte)
	}
	if present["gt"] {
		clauses = append(clauses, col+" > ?")
		args = append(args, op.Gt)
	}
	if present["lt"] {
		clauses = append(clauses, col+" < ?")
		args = append(args, op.Lt)
	}
	if present["ne"] {
		clauses = append(clauses, col+" != ?")
		args = append(args, op.Ne)
	}
	if present["like"] {
		clauses = append(clauses, col+" LIKE ?")
		args = append(args, op.Like)
	}
	if present["in"] {
		if len(op.In) == 0 {
			return "", nil, hosterr.New(hosterr.InvalidArgument, "operator \"in\" requires a non-empty array")
		}
		ph := strings.TrimSuffix(strings.Repeat("?,", len(op.In)), ",")
		clauses = append(clauses, col+" IN ("+ph+")")
		args = append(args, op.In...)
	}
	return "(" + strings.Join(clauses, " AND ") + ")", args, nil
}

func validateWriteKeys(cols []pluginapi.Column, data pluginapi.Obj) error {
	for k := range data {
		if k == "id" {
			continue
		}
		if _, ok := schema.ColumnByName(cols, k); !ok {
			return hosterr.New(hosterr.InvalidArgument, "unknown column %q", k)
		}
	}
	return nil
}

// applyAutoTimestamps substitutes the current unix-second timestamp for
// any missing column whose auto-timestamp role applies. On insert both
// Created and Updated roles are filled when absent; on update only
// Updated is. Explicit caller-supplied values always win.
func applyAutoTimestamps(cols []pluginapi.Column, data pluginapi.Obj, isInsert bool) pluginapi.Obj {
	now := time.Now().Unix()
	out := make(pluginapi.Obj, len(data))
	for k, v := range data {
		out[k] = v
	}
	for _, c := range cols {
		if _, present := out[c.Name]; present {
			continue
		}
		switch c.AutoTimestamp {
		case pluginapi.AutoTimestampCreated:
			if isInsert {
				out[c.Name] = now
			}
		case pluginapi.AutoTimestampUpdated:
			out[c.Name] = now
		}
	}
	return out
}

func buildInsertSQL(data pluginapi.Obj) (cols, placeholders string, vals []any) {
	var names []string
	for k := range data {
		names = append(names, k)
	}
	for i, k := range names {
		if i > 0 {
			cols += ", "
			placeholders += ", "
		}
		cols += k
		placeholders += "?"
		vals = append(vals, data[k])
	}
	return cols, placeholders, vals
}

func buildSetSQL(data pluginapi.Obj) (set string, vals []any) {
	first := true
	for k, v := range data {
		if !first {
			set += ", "
		}
		set += k + " = ?"
		vals = append(vals, v)
		first = false
	}
	return set, vals
}
