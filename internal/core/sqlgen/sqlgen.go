// Package sqlgen implements the SQL Builder (spec.md §4.3): rendering one
// graph.Op into dialect-specific SQL text plus its ordered bind-parameter
// list. Nothing here executes anything; Render is a pure function of an Op
// and a dialect.Capability. Modeled on the teacher's statement renderer in
// v3/internal/core/query/builder, generalized from three dialects to the
// capability-record dispatch spec.md §4.5 describes.
package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"github.com/relionix/queryc/internal/core/dialect"
	"github.com/relionix/queryc/internal/core/query/ast"
	"github.com/relionix/queryc/internal/core/query/graph"
	"github.com/relionix/queryc/internal/core/schema"
	"github.com/relionix/queryc/internal/core/types"
)

// normalizedFieldValue canonicalizes a literal against its field's scalar
// type (Decimal/Uuid round-tripping, spec.md §4.6) before it is bound as a
// parameter. Relation and computed fields have no domain.Field entry and
// pass through unchanged.
func normalizedFieldValue(reg *schema.Registry, model, field string, v ast.Literal) (ast.Literal, error) {
	f, err := reg.Field(model, field)
	if err != nil {
		return v, nil
	}
	return types.NormalizeLiteral(f, v)
}

// Param is one bound value in positional order. BindFrom is empty for a
// plain literal parameter, or the upstream op ID the program assembler must
// substitute a runtime value for (spec.md §4.4 binding names).
type Param struct {
	Literal   ast.Literal
	BindFrom  string // non-empty when this parameter's value comes from another op
	BindField string // the field of BindFrom's resolved row this parameter takes
}

// Statement is one rendered SQL statement and its parameters.
type Statement struct {
	SQL    string
	Params []Param
}

// Render compiles one graph.Op into a Statement.
func Render(op *graph.Op, reg *schema.Registry, cap dialect.Capability) (Statement, error) {
	switch op.Kind {
	case graph.OpRead:
		return renderRead(op, reg, cap)
	case graph.OpInsert:
		return renderInsert(op, reg, cap)
	case graph.OpInsertMany:
		return renderInsertMany(op, reg, cap)
	case graph.OpUpdate:
		return renderUpdate(op, reg, cap)
	case graph.OpUpdateMany:
		return renderUpdate(op, reg, cap)
	case graph.OpDelete, graph.OpDeleteMany:
		return renderDelete(op, reg, cap)
	case graph.OpJoinInsert:
		return renderJoinInsert(op, cap)
	case graph.OpJoinDelete:
		return renderJoinDelete(op, cap)
	case graph.OpAggregate:
		return renderAggregate(op, reg, cap)
	case graph.OpGroupBy:
		return renderGroupBy(op, reg, cap)
	case graph.OpRawExec, graph.OpRawQuery:
		return renderRaw(op)
	default:
		return Statement{}, fmt.Errorf("sqlgen: unsupported op kind %q", op.Kind)
	}
}

type paramBuilder struct {
	cap    dialect.Capability
	params []Param
}

func (pb *paramBuilder) bind(lit ast.Literal) string {
	pb.params = append(pb.params, Param{Literal: lit})
	return pb.cap.Placeholder(len(pb.params))
}

func (pb *paramBuilder) bindFrom(opID, field string) string {
	pb.params = append(pb.params, Param{BindFrom: opID, BindField: field})
	return pb.cap.Placeholder(len(pb.params))
}

func columnsOf(reg *schema.Registry, model string, sel ast.Selection) ([]string, error) {
	if sel.AllScalars || len(sel.Entries) == 0 {
		return reg.ScalarFieldNames(model)
	}
	var cols []string
	for _, e := range sel.Entries {
		if e.Kind == ast.SelectScalar {
			cols = append(cols, e.Name)
		}
	}
	if len(cols) == 0 {
		return reg.ScalarFieldNames(model)
	}
	return cols, nil
}

func renderRead(op *graph.Op, reg *schema.Registry, cap dialect.Capability) (Statement, error) {
	table, err := reg.TableName(op.Model)
	if err != nil {
		return Statement{}, err
	}
	cols, err := columnsOf(reg, op.Model, op.Node.Selection)
	if err != nil {
		return Statement{}, err
	}

	pb := &paramBuilder{cap: cap}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		colName, err := reg.ColumnName(op.Model, c)
		if err != nil {
			return Statement{}, err
		}
		quoted[i] = cap.QuoteIdentifier(colName)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(cap.QuoteIdentifier(table))

	if op.Node.Arguments.Where != nil {
		clause, err := renderFilter(op.Node.Arguments.Where, op.Model, reg, cap, pb)
		if err != nil {
			return Statement{}, err
		}
		if clause != "" {
			sb.WriteString(" WHERE ")
			sb.WriteString(clause)
		}
	}

	if len(op.Node.Arguments.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		parts := make([]string, len(op.Node.Arguments.OrderBy))
		for i, ob := range op.Node.Arguments.OrderBy {
			col, err := reg.ColumnName(op.Model, ob.Field)
			if err != nil {
				return Statement{}, err
			}
			parts[i] = cap.QuoteIdentifier(col) + " " + strings.ToUpper(string(ob.Direction))
		}
		sb.WriteString(strings.Join(parts, ", "))
	}

	if op.Node.Arguments.Take != nil {
		sb.WriteString(fmt.Sprintf(" LIMIT %s", pb.bind(*op.Node.Arguments.Take)))
	}
	if op.Node.Arguments.Skip != nil {
		sb.WriteString(fmt.Sprintf(" OFFSET %s", pb.bind(*op.Node.Arguments.Skip)))
	}

	return Statement{SQL: sb.String(), Params: pb.params}, nil
}

func renderInsert(op *graph.Op, reg *schema.Registry, cap dialect.Capability) (Statement, error) {
	table, err := reg.TableName(op.Model)
	if err != nil {
		return Statement{}, err
	}
	pb := &paramBuilder{cap: cap}

	fields := make([]string, 0, len(op.Node.Arguments.Data)+len(op.FKBindings))
	for f := range op.Node.Arguments.Data {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var cols, placeholders []string
	for _, f := range fields {
		col, err := reg.ColumnName(op.Model, f)
		if err != nil {
			return Statement{}, err
		}
		val, err := normalizedFieldValue(reg, op.Model, f, op.Node.Arguments.Data[f].Value)
		if err != nil {
			return Statement{}, err
		}
		cols = append(cols, cap.QuoteIdentifier(col))
		placeholders = append(placeholders, pb.bind(val))
	}

	var fkCols []string
	for col := range op.FKBindings {
		fkCols = append(fkCols, col)
	}
	sort.Strings(fkCols)
	for _, col := range fkCols {
		ref := op.FKBindings[col]
		cols = append(cols, cap.QuoteIdentifier(col))
		placeholders = append(placeholders, pb.bindFrom(ref.OpID, ref.Field))
	}

	var returningCols []string
	if cap.Returning {
		if op.ReturnRow {
			names, err := reg.ScalarFieldNames(op.Model)
			if err != nil {
				return Statement{}, err
			}
			for _, f := range names {
				c, _ := reg.ColumnName(op.Model, f)
				returningCols = append(returningCols, cap.QuoteIdentifier(c))
			}
		} else if pk, err := reg.PrimaryKey(op.Model); err == nil {
			for _, f := range pk.Fields {
				c, _ := reg.ColumnName(op.Model, f)
				returningCols = append(returningCols, cap.QuoteIdentifier(c))
			}
		}
	} else if op.ReturnRow {
		return Statement{}, fmt.Errorf("sqlgen: dialect %s has no RETURNING/OUTPUT support, createManyAndReturn is not renderable", cap.Name)
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(cap.QuoteIdentifier(table))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(cols, ", "))
	sb.WriteString(")")

	if len(returningCols) > 0 && cap.OutputBeforeValues {
		sb.WriteString(" ")
		sb.WriteString(cap.ReturningClause(returningCols))
	}

	sb.WriteString(" VALUES (")
	sb.WriteString(strings.Join(placeholders, ", "))
	sb.WriteString(")")

	if len(returningCols) > 0 && !cap.OutputBeforeValues {
		sb.WriteString(" ")
		sb.WriteString(cap.ReturningClause(returningCols))
	}

	return Statement{SQL: sb.String(), Params: pb.params}, nil
}

func renderInsertMany(op *graph.Op, reg *schema.Registry, cap dialect.Capability) (Statement, error) {
	return renderInsert(op, reg, cap)
}

func renderUpdate(op *graph.Op, reg *schema.Registry, cap dialect.Capability) (Statement, error) {
	table, err := reg.TableName(op.Model)
	if err != nil {
		return Statement{}, err
	}
	pb := &paramBuilder{cap: cap}

	fields := make([]string, 0, len(op.Node.Arguments.Data))
	for f := range op.Node.Arguments.Data {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var sets []string
	for _, f := range fields {
		col, err := reg.ColumnName(op.Model, f)
		if err != nil {
			return Statement{}, err
		}
		val, err := normalizedFieldValue(reg, op.Model, f, op.Node.Arguments.Data[f].Value)
		if err != nil {
			return Statement{}, err
		}
		sets = append(sets, fmt.Sprintf("%s = %s", cap.QuoteIdentifier(col), pb.bind(val)))
	}
	fkCols := make([]string, 0, len(op.FKBindings))
	for col := range op.FKBindings {
		fkCols = append(fkCols, col)
	}
	sort.Strings(fkCols)
	for _, col := range fkCols {
		ref := op.FKBindings[col]
		sets = append(sets, fmt.Sprintf("%s = %s", cap.QuoteIdentifier(col), pb.bindFrom(ref.OpID, ref.Field)))
	}

	var returningCols []string
	if op.ReturnRow {
		if !cap.Returning {
			return Statement{}, fmt.Errorf("sqlgen: dialect %s has no RETURNING/OUTPUT support, updateManyAndReturn is not renderable", cap.Name)
		}
		names, err := reg.ScalarFieldNames(op.Model)
		if err != nil {
			return Statement{}, err
		}
		for _, f := range names {
			c, _ := reg.ColumnName(op.Model, f)
			returningCols = append(returningCols, cap.QuoteIdentifier(c))
		}
	}

	var sb strings.Builder
	sb.WriteString("UPDATE ")
	sb.WriteString(cap.QuoteIdentifier(table))
	sb.WriteString(" SET ")
	sb.WriteString(strings.Join(sets, ", "))

	if len(returningCols) > 0 && cap.OutputBeforeValues {
		sb.WriteString(" ")
		sb.WriteString(cap.ReturningClause(returningCols))
	}

	if op.Node.Arguments.Where != nil {
		clause, err := renderFilter(op.Node.Arguments.Where, op.Model, reg, cap, pb)
		if err != nil {
			return Statement{}, err
		}
		if clause != "" {
			sb.WriteString(" WHERE ")
			sb.WriteString(clause)
		}
	}

	if len(returningCols) > 0 && !cap.OutputBeforeValues {
		sb.WriteString(" ")
		sb.WriteString(cap.ReturningClause(returningCols))
	}

	return Statement{SQL: sb.String(), Params: pb.params}, nil
}

func renderDelete(op *graph.Op, reg *schema.Registry, cap dialect.Capability) (Statement, error) {
	table, err := reg.TableName(op.Model)
	if err != nil {
		return Statement{}, err
	}
	pb := &paramBuilder{cap: cap}

	var sb strings.Builder
	sb.WriteString("DELETE FROM ")
	sb.WriteString(cap.QuoteIdentifier(table))

	if op.Node.Arguments.Where != nil {
		clause, err := renderFilter(op.Node.Arguments.Where, op.Model, reg, cap, pb)
		if err != nil {
			return Statement{}, err
		}
		if clause != "" {
			sb.WriteString(" WHERE ")
			sb.WriteString(clause)
		}
	}

	return Statement{SQL: sb.String(), Params: pb.params}, nil
}

func renderJoinInsert(op *graph.Op, cap dialect.Capability) (Statement, error) {
	pb := &paramBuilder{cap: cap}
	left := pb.bindFrom(op.DependsOn[0], "id")
	right := pb.bindFrom(op.DependsOn[1], "id")

	var sql string
	switch cap.Name {
	case dialect.Postgres, dialect.CockroachDB, dialect.SQLite:
		sql = fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s) ON CONFLICT DO NOTHING",
			cap.QuoteIdentifier(op.JoinTable), cap.QuoteIdentifier("A"), cap.QuoteIdentifier("B"), left, right)
	case dialect.MySQL:
		sql = fmt.Sprintf("INSERT IGNORE INTO %s (%s, %s) VALUES (%s, %s)",
			cap.QuoteIdentifier(op.JoinTable), cap.QuoteIdentifier("A"), cap.QuoteIdentifier("B"), left, right)
	default:
		sql = fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
			cap.QuoteIdentifier(op.JoinTable), cap.QuoteIdentifier("A"), cap.QuoteIdentifier("B"), left, right)
	}
	return Statement{SQL: sql, Params: pb.params}, nil
}

func renderJoinDelete(op *graph.Op, cap dialect.Capability) (Statement, error) {
	pb := &paramBuilder{cap: cap}
	left := pb.bindFrom(op.DependsOn[0], "id")
	if len(op.DependsOn) == 1 {
		// A many-to-many `set` clears every link of the parent row.
		sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
			cap.QuoteIdentifier(op.JoinTable), cap.QuoteIdentifier("A"), left)
		return Statement{SQL: sql, Params: pb.params}, nil
	}
	right := pb.bindFrom(op.DependsOn[1], "id")
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s = %s",
		cap.QuoteIdentifier(op.JoinTable), cap.QuoteIdentifier("A"), left, cap.QuoteIdentifier("B"), right)
	return Statement{SQL: sql, Params: pb.params}, nil
}

func renderAggregate(op *graph.Op, reg *schema.Registry, cap dialect.Capability) (Statement, error) {
	table, err := reg.TableName(op.Model)
	if err != nil {
		return Statement{}, err
	}
	pb := &paramBuilder{cap: cap}

	exprs := make([]string, 0, len(op.Node.Arguments.Aggregations))
	for _, agg := range op.Node.Arguments.Aggregations {
		col := "*"
		if agg.Field != "" {
			c, err := reg.ColumnName(op.Model, agg.Field)
			if err != nil {
				return Statement{}, err
			}
			col = cap.QuoteIdentifier(c)
		}
		alias := agg.Alias
		if alias == "" {
			alias = string(agg.Function) + "_" + agg.Field
		}
		exprs = append(exprs, fmt.Sprintf("%s(%s) AS %s", strings.ToUpper(string(agg.Function)), col, cap.QuoteIdentifier(alias)))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(exprs, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(cap.QuoteIdentifier(table))

	if op.Node.Arguments.Where != nil {
		clause, err := renderFilter(op.Node.Arguments.Where, op.Model, reg, cap, pb)
		if err != nil {
			return Statement{}, err
		}
		if clause != "" {
			sb.WriteString(" WHERE ")
			sb.WriteString(clause)
		}
	}

	return Statement{SQL: sb.String(), Params: pb.params}, nil
}

func renderGroupBy(op *graph.Op, reg *schema.Registry, cap dialect.Capability) (Statement, error) {
	table, err := reg.TableName(op.Model)
	if err != nil {
		return Statement{}, err
	}
	pb := &paramBuilder{cap: cap}

	groupCols := make([]string, len(op.Node.Arguments.GroupByFields))
	for i, f := range op.Node.Arguments.GroupByFields {
		c, err := reg.ColumnName(op.Model, f)
		if err != nil {
			return Statement{}, err
		}
		groupCols[i] = cap.QuoteIdentifier(c)
	}

	selectExprs := append([]string{}, groupCols...)
	for _, agg := range op.Node.Arguments.Aggregations {
		col := "*"
		if agg.Field != "" {
			c, err := reg.ColumnName(op.Model, agg.Field)
			if err != nil {
				return Statement{}, err
			}
			col = cap.QuoteIdentifier(c)
		}
		alias := agg.Alias
		if alias == "" {
			alias = string(agg.Function) + "_" + agg.Field
		}
		selectExprs = append(selectExprs, fmt.Sprintf("%s(%s) AS %s", strings.ToUpper(string(agg.Function)), col, cap.QuoteIdentifier(alias)))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selectExprs, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(cap.QuoteIdentifier(table))

	if op.Node.Arguments.Where != nil {
		clause, err := renderFilter(op.Node.Arguments.Where, op.Model, reg, cap, pb)
		if err != nil {
			return Statement{}, err
		}
		if clause != "" {
			sb.WriteString(" WHERE ")
			sb.WriteString(clause)
		}
	}

	sb.WriteString(" GROUP BY ")
	sb.WriteString(strings.Join(groupCols, ", "))

	if op.Node.Arguments.Having != nil {
		clause, err := renderFilter(op.Node.Arguments.Having, op.Model, reg, cap, pb)
		if err != nil {
			return Statement{}, err
		}
		if clause != "" {
			sb.WriteString(" HAVING ")
			sb.WriteString(clause)
		}
	}

	return Statement{SQL: sb.String(), Params: pb.params}, nil
}

func renderRaw(op *graph.Op) (Statement, error) {
	params := make([]Param, len(op.Node.Arguments.RawParams))
	for i, p := range op.Node.Arguments.RawParams {
		params[i] = Param{Literal: p}
	}
	return Statement{SQL: op.Node.Arguments.RawSQL, Params: params}, nil
}

func renderFilter(f *ast.Filter, model string, reg *schema.Registry, cap dialect.Capability, pb *paramBuilder) (string, error) {
	var parts []string
	for _, c := range f.Conditions {
		part, err := renderCondition(c, model, reg, cap, pb)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	for _, nf := range f.NestedFilters {
		inner, err := renderFilter(&nf, model, reg, cap, pb)
		if err != nil {
			return "", err
		}
		if inner == "" {
			continue
		}
		if nf.Operator == ast.Not {
			parts = append(parts, "NOT ("+inner+")")
		} else {
			parts = append(parts, "("+inner+")")
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	sep := " AND "
	if f.Operator == ast.Or {
		sep = " OR "
	}
	return strings.Join(parts, sep), nil
}

func renderCondition(c ast.Condition, model string, reg *schema.Registry, cap dialect.Capability, pb *paramBuilder) (string, error) {
	col, err := reg.ColumnName(model, c.Field)
	if err != nil {
		return "", err
	}
	q := cap.QuoteIdentifier(col)

	if ref, ok := c.Value.(ast.BindRef); ok {
		if c.Operator != ast.Equals {
			return "", fmt.Errorf("sqlgen: operator %q cannot bind to an upstream op's field", c.Operator)
		}
		return fmt.Sprintf("%s = %s", q, pb.bindFrom(ref.OpID, ref.Field)), nil
	}

	switch c.Operator {
	case ast.Equals:
		return fmt.Sprintf("%s = %s", q, pb.bind(c.Value)), nil
	case ast.NotEquals:
		return fmt.Sprintf("%s <> %s", q, pb.bind(c.Value)), nil
	case ast.Lt:
		return fmt.Sprintf("%s < %s", q, pb.bind(c.Value)), nil
	case ast.Lte:
		return fmt.Sprintf("%s <= %s", q, pb.bind(c.Value)), nil
	case ast.Gt:
		return fmt.Sprintf("%s > %s", q, pb.bind(c.Value)), nil
	case ast.Gte:
		return fmt.Sprintf("%s >= %s", q, pb.bind(c.Value)), nil
	case ast.In:
		return fmt.Sprintf("%s IN (%s)", q, bindList(c.Value, pb)), nil
	case ast.NotIn:
		return fmt.Sprintf("%s NOT IN (%s)", q, bindList(c.Value, pb)), nil
	case ast.Contains:
		return fmt.Sprintf("%s LIKE %s", q, pb.bind(likePattern(c.Value, "%", "%"))), nil
	case ast.StartsWith:
		return fmt.Sprintf("%s LIKE %s", q, pb.bind(likePattern(c.Value, "", "%"))), nil
	case ast.EndsWith:
		return fmt.Sprintf("%s LIKE %s", q, pb.bind(likePattern(c.Value, "%", ""))), nil
	case ast.IsNull:
		if b, ok := c.Value.(bool); ok && !b {
			return fmt.Sprintf("%s IS NOT NULL", q), nil
		}
		return fmt.Sprintf("%s IS NULL", q), nil
	case ast.Search:
		return renderFullTextSearch(q, c.Value, cap, pb), nil
	case ast.Has, ast.HasSome, ast.HasEvery, ast.IsEmpty:
		// Array-membership operators; rendered generically as an equality
		// probe against the bound value, refined per-dialect by callers
		// that know the native array type (out of scope here).
		return fmt.Sprintf("%s = %s", q, pb.bind(c.Value)), nil
	default:
		return "", fmt.Errorf("sqlgen: operator %q requires relation-aware rendering outside a flat filter", c.Operator)
	}
}

func bindList(v ast.Literal, pb *paramBuilder) string {
	items, ok := v.([]interface{})
	if !ok {
		return pb.bind(v)
	}
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = pb.bind(it)
	}
	return strings.Join(out, ", ")
}

func likePattern(v ast.Literal, prefix, suffix string) string {
	s, _ := v.(string)
	return prefix + s + suffix
}

// renderFullTextSearch renders the `search` operator. Postgres uses its
// native to_tsvector/to_tsquery pair; dialects without full-text support
// fall back to a LIKE-based approximation (spec.md §4.3's per-dialect
// fallback table).
func renderFullTextSearch(col string, v ast.Literal, cap dialect.Capability, pb *paramBuilder) string {
	switch cap.Name {
	case dialect.Postgres, dialect.CockroachDB:
		return fmt.Sprintf("to_tsvector(%s) @@ plainto_tsquery(%s)", col, pb.bind(v))
	case dialect.MySQL:
		return fmt.Sprintf("MATCH(%s) AGAINST(%s IN NATURAL LANGUAGE MODE)", col, pb.bind(v))
	default:
		return fmt.Sprintf("%s LIKE %s", col, pb.bind(likePattern(v, "%", "%")))
	}
}
