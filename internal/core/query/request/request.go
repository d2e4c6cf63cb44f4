// Package request implements Request Decoding (SPEC_FULL.md §4.8): turning
// the wire JSON request shape described in spec.md §6 into a query AST node,
// and rejecting structurally malformed input (spec.md §7 "Shape errors")
// before it ever reaches the graph builder. Schema-binding errors (a field
// or model absent from the schema) remain the graph builder's job, since
// only it holds the schema reference.
package request

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jellydator/validation"

	"github.com/relionix/queryc/internal/core/query/ast"
)

// allowedActions is the closed set of actions spec.md §4.1 names.
var allowedActions = map[string]ast.Action{
	"findUnique":          ast.FindUnique,
	"findFirst":           ast.FindFirst,
	"findMany":            ast.FindMany,
	"createOne":           ast.CreateOne,
	"createMany":          ast.CreateMany,
	"createManyAndReturn": ast.CreateManyAndReturn,
	"updateOne":           ast.UpdateOne,
	"updateMany":          ast.UpdateMany,
	"updateManyAndReturn": ast.UpdateManyAndReturn,
	"upsertOne":           ast.UpsertOne,
	"deleteOne":           ast.DeleteOne,
	"deleteMany":          ast.DeleteMany,
	"aggregate":           ast.Aggregate,
	"groupBy":             ast.GroupBy,
	"executeRaw":          ast.ExecuteRaw,
	"queryRaw":            ast.QueryRaw,
}

// Raw is the wire shape of a single query request (spec.md §6).
type Raw struct {
	ModelName string          `json:"modelName"`
	Action    string          `json:"action"`
	Query     RawQuery        `json:"query"`
}

// RawQuery is the `query` object of a Raw request.
type RawQuery struct {
	Arguments json.RawMessage `json:"arguments"`
	Selection json.RawMessage `json:"selection"`
}

// RawBatch is the wire shape of a batch request (spec.md §6).
type RawBatch struct {
	Batch       []Raw               `json:"batch"`
	Transaction *RawBatchTransaction `json:"transaction"`
}

// RawBatchTransaction carries the optional isolation level for a batch.
type RawBatchTransaction struct {
	IsolationLevel string `json:"isolationLevel"`
}

// ShapeError is a structural (non-schema) problem with a request, the
// "Shape errors" category from spec.md §7.
type ShapeError struct {
	Path   string
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Path == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Reason)
}

// Validate checks the Raw request's shape without consulting the schema.
func (r Raw) Validate(ctx context.Context) error {
	return validation.ValidateStructWithContext(ctx, &r,
		validation.Field(&r.Action, validation.Required),
	)
}

// Decode turns a validated Raw request into a query AST node.
func Decode(raw Raw) (*ast.Node, error) {
	if err := raw.Validate(context.Background()); err != nil {
		return nil, &ShapeError{Reason: err.Error()}
	}

	action, ok := allowedActions[raw.Action]
	if !ok {
		return nil, &ShapeError{Path: "action", Reason: fmt.Sprintf("unknown action %q", raw.Action)}
	}

	if raw.ModelName == "" && action != ast.ExecuteRaw && action != ast.QueryRaw {
		return nil, &ShapeError{Path: "modelName", Reason: "required for all actions except executeRaw/queryRaw"}
	}

	node := &ast.Node{Action: action, Model: raw.ModelName}

	args, err := decodeArguments(raw.Query.Arguments, action)
	if err != nil {
		return nil, err
	}
	node.Arguments = args

	sel, err := decodeSelection(raw.Query.Selection)
	if err != nil {
		return nil, err
	}
	node.Selection = sel

	if err := checkShape(node); err != nil {
		return nil, err
	}

	return node, nil
}

// DecodeBatch turns a validated RawBatch into AST nodes plus the batch's
// optional isolation level.
func DecodeBatch(raw RawBatch) ([]*ast.Node, string, error) {
	nodes := make([]*ast.Node, 0, len(raw.Batch))
	for i, r := range raw.Batch {
		n, err := Decode(r)
		if err != nil {
			return nil, "", fmt.Errorf("batch[%d]: %w", i, err)
		}
		nodes = append(nodes, n)
	}
	isolation := ""
	if raw.Transaction != nil {
		isolation = raw.Transaction.IsolationLevel
	}
	return nodes, isolation, nil
}

func decodeArguments(raw json.RawMessage, action ast.Action) (ast.Arguments, error) {
	var args ast.Arguments
	if len(raw) == 0 {
		return args, nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return args, &ShapeError{Path: "query.arguments", Reason: err.Error()}
	}

	if w, ok := m["where"]; ok {
		f, err := decodeFilter(w)
		if err != nil {
			return args, err
		}
		args.Where = f
	}
	if ob, ok := m["orderBy"]; ok {
		var raws []map[string]string
		if err := json.Unmarshal(ob, &raws); err != nil {
			return args, &ShapeError{Path: "query.arguments.orderBy", Reason: err.Error()}
		}
		for _, entry := range raws {
			for field, dir := range entry {
				d := ast.Asc
				if dir == string(ast.Desc) {
					d = ast.Desc
				}
				args.OrderBy = append(args.OrderBy, ast.OrderBy{Field: field, Direction: d})
			}
		}
	}
	if t, ok := m["take"]; ok {
		var v int
		if err := json.Unmarshal(t, &v); err != nil {
			return args, &ShapeError{Path: "query.arguments.take", Reason: err.Error()}
		}
		args.Take = &v
	}
	if s, ok := m["skip"]; ok {
		var v int
		if err := json.Unmarshal(s, &v); err != nil {
			return args, &ShapeError{Path: "query.arguments.skip", Reason: err.Error()}
		}
		args.Skip = &v
	}
	if c, ok := m["cursor"]; ok {
		var v map[string]ast.Literal
		if err := json.Unmarshal(c, &v); err != nil {
			return args, &ShapeError{Path: "query.arguments.cursor", Reason: err.Error()}
		}
		args.Cursor = v
	}
	if d, ok := m["distinct"]; ok {
		var v []string
		if err := json.Unmarshal(d, &v); err != nil {
			return args, &ShapeError{Path: "query.arguments.distinct", Reason: err.Error()}
		}
		args.Distinct = v
	}
	if data, ok := m["data"]; ok {
		switch action {
		case ast.CreateMany, ast.CreateManyAndReturn:
			var rows []map[string]json.RawMessage
			if err := json.Unmarshal(data, &rows); err != nil {
				return args, &ShapeError{Path: "query.arguments.data", Reason: err.Error()}
			}
			for _, row := range rows {
				fv, err := decodeFieldValueMap(row)
				if err != nil {
					return args, err
				}
				args.CreateMany = append(args.CreateMany, fv)
			}
		default:
			var row map[string]json.RawMessage
			if err := json.Unmarshal(data, &row); err != nil {
				return args, &ShapeError{Path: "query.arguments.data", Reason: err.Error()}
			}
			fv, err := decodeFieldValueMap(row)
			if err != nil {
				return args, err
			}
			args.Data = fv
		}
	}
	if c, ok := m["create"]; ok && action == ast.UpsertOne {
		var row map[string]json.RawMessage
		if err := json.Unmarshal(c, &row); err != nil {
			return args, &ShapeError{Path: "query.arguments.create", Reason: err.Error()}
		}
		fv, err := decodeFieldValueMap(row)
		if err != nil {
			return args, err
		}
		args.UpsertCreate = fv
	}
	if u, ok := m["update"]; ok && action == ast.UpsertOne {
		var row map[string]json.RawMessage
		if err := json.Unmarshal(u, &row); err != nil {
			return args, &ShapeError{Path: "query.arguments.update", Reason: err.Error()}
		}
		fv, err := decodeFieldValueMap(row)
		if err != nil {
			return args, err
		}
		args.UpsertUpdate = fv
	}
	if gb, ok := m["groupBy"]; ok {
		var v []string
		if err := json.Unmarshal(gb, &v); err != nil {
			return args, &ShapeError{Path: "query.arguments.groupBy", Reason: err.Error()}
		}
		args.GroupByFields = v
	}
	if h, ok := m["having"]; ok {
		f, err := decodeFilter(h)
		if err != nil {
			return args, err
		}
		args.Having = f
	}
	if agg, ok := m["aggregations"]; ok {
		var v []ast.Aggregation
		if err := json.Unmarshal(agg, &v); err != nil {
			return args, &ShapeError{Path: "query.arguments.aggregations", Reason: err.Error()}
		}
		args.Aggregations = v
	}
	if raw, ok := m["sql"]; ok {
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return args, &ShapeError{Path: "query.arguments.sql", Reason: err.Error()}
		}
		args.RawSQL = v
	}
	if p, ok := m["params"]; ok {
		var v []ast.Literal
		if err := json.Unmarshal(p, &v); err != nil {
			return args, &ShapeError{Path: "query.arguments.params", Reason: err.Error()}
		}
		args.RawParams = v
	}

	return args, nil
}

// nestedWriteKeys lists the reserved keys under a create/update field value
// that indicate a nested operation rather than a plain literal.
var nestedWriteKeys = map[string]ast.NestedWriteOp{
	"create":          ast.NestedCreate,
	"createMany":      ast.NestedCreateMany,
	"connect":         ast.NestedConnect,
	"connectOrCreate": ast.NestedConnectOrCreate,
	"disconnect":      ast.NestedDisconnect,
	"set":             ast.NestedSet,
	"update":          ast.NestedUpdate,
	"updateMany":      ast.NestedUpdateMany,
	"delete":          ast.NestedDelete,
	"deleteMany":      ast.NestedDeleteMany,
	"upsert":          ast.NestedUpsert,
}

func decodeFieldValueMap(row map[string]json.RawMessage) (map[string]ast.FieldValue, error) {
	out := make(map[string]ast.FieldValue, len(row))
	for field, raw := range row {
		fv, err := decodeFieldValue(field, raw)
		if err != nil {
			return nil, err
		}
		out[field] = fv
	}
	return out, nil
}

func decodeFieldValue(field string, raw json.RawMessage) (ast.FieldValue, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil || !looksLikeNestedOp(probe) {
		var lit ast.Literal
		if err := json.Unmarshal(raw, &lit); err != nil {
			return ast.FieldValue{}, &ShapeError{Path: "query.arguments.data." + field, Reason: err.Error()}
		}
		return ast.FieldValue{Kind: ast.ValueLiteral, Value: lit}, nil
	}

	nested, err := decodeNestedWrite(field, probe)
	if err != nil {
		return ast.FieldValue{}, err
	}
	return ast.FieldValue{Kind: ast.ValueNested, Nested: nested}, nil
}

func looksLikeNestedOp(m map[string]json.RawMessage) bool {
	if len(m) == 0 {
		return false
	}
	for k := range m {
		if _, ok := nestedWriteKeys[k]; !ok {
			return false
		}
	}
	return true
}

func decodeNestedWrite(field string, m map[string]json.RawMessage) (*ast.NestedWrite, error) {
	// A single field value may only carry one nested operation keyword;
	// spec.md §7 "Shape errors" — mixing incompatible operations on one
	// field is rejected here rather than silently picking one.
	var op ast.NestedWriteOp
	var raw json.RawMessage
	count := 0
	for k, v := range m {
		op = nestedWriteKeys[k]
		raw = v
		count++
	}
	if count != 1 {
		return nil, &ShapeError{Path: "query.arguments.data." + field, Reason: "exactly one nested write operation is required"}
	}

	nw := &ast.NestedWrite{Op: op}

	// Batchable ops accept either a single object or an array of objects.
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		arr = []json.RawMessage{raw}
	}

	for _, item := range arr {
		nwi, err := decodeNestedWriteItem(field, op, item)
		if err != nil {
			return nil, err
		}
		nw.Items = append(nw.Items, nwi)
	}
	return nw, nil
}

func decodeNestedWriteItem(field string, op ast.NestedWriteOp, raw json.RawMessage) (ast.NestedWriteItem, error) {
	var item ast.NestedWriteItem

	switch op {
	case ast.NestedCreate, ast.NestedCreateMany:
		var row map[string]json.RawMessage
		if err := json.Unmarshal(raw, &row); err != nil {
			return item, &ShapeError{Path: "query.arguments.data." + field, Reason: err.Error()}
		}
		fv, err := decodeFieldValueMap(row)
		if err != nil {
			return item, err
		}
		item.Create = fv

	case ast.NestedConnect, ast.NestedDisconnect, ast.NestedSet, ast.NestedDelete, ast.NestedDeleteMany:
		f, err := decodeFilter(raw)
		if err != nil {
			return item, err
		}
		item.Where = f

	case ast.NestedUpdate, ast.NestedUpdateMany:
		var wrapper struct {
			Where json.RawMessage            `json:"where"`
			Data  map[string]json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return item, &ShapeError{Path: "query.arguments.data." + field, Reason: err.Error()}
		}
		if len(wrapper.Where) > 0 {
			f, err := decodeFilter(wrapper.Where)
			if err != nil {
				return item, err
			}
			item.Where = f
		}
		fv, err := decodeFieldValueMap(wrapper.Data)
		if err != nil {
			return item, err
		}
		item.Update = fv

	case ast.NestedConnectOrCreate:
		var wrapper struct {
			Where  json.RawMessage            `json:"where"`
			Create map[string]json.RawMessage `json:"create"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return item, &ShapeError{Path: "query.arguments.data." + field, Reason: err.Error()}
		}
		f, err := decodeFilter(wrapper.Where)
		if err != nil {
			return item, err
		}
		item.Where = f
		fv, err := decodeFieldValueMap(wrapper.Create)
		if err != nil {
			return item, err
		}
		item.Create = fv

	case ast.NestedUpsert:
		var wrapper struct {
			Where  json.RawMessage            `json:"where"`
			Create map[string]json.RawMessage `json:"create"`
			Update map[string]json.RawMessage `json:"update"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return item, &ShapeError{Path: "query.arguments.data." + field, Reason: err.Error()}
		}
		f, err := decodeFilter(wrapper.Where)
		if err != nil {
			return item, err
		}
		item.Where = f
		if cfv, err := decodeFieldValueMap(wrapper.Create); err == nil {
			item.Create = cfv
		}
		if ufv, err := decodeFieldValueMap(wrapper.Update); err == nil {
			item.Update = ufv
		}
	}

	return item, nil
}

var logicalKeys = map[string]ast.LogicalOperator{"AND": ast.And, "OR": ast.Or, "NOT": ast.Not}

func decodeFilter(raw json.RawMessage) (*ast.Filter, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &ShapeError{Path: "query.arguments.where", Reason: err.Error()}
	}

	f := &ast.Filter{Operator: ast.And}

	// Deterministic field order for snapshot-stable output (spec.md §9).
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := m[key]
		if op, ok := logicalKeys[key]; ok {
			var group []json.RawMessage
			if err := json.Unmarshal(v, &group); err != nil {
				return nil, &ShapeError{Path: "query.arguments.where." + key, Reason: err.Error()}
			}
			var subs []ast.Filter
			for _, g := range group {
				sub, err := decodeFilter(g)
				if err != nil {
					return nil, err
				}
				if sub != nil {
					subs = append(subs, *sub)
				}
			}
			if op == ast.Or {
				// One group whose members are joined with OR.
				if len(subs) > 0 {
					f.NestedFilters = append(f.NestedFilters, ast.Filter{Operator: ast.Or, NestedFilters: subs})
				}
				continue
			}
			for _, sub := range subs {
				sub.Operator = op
				f.NestedFilters = append(f.NestedFilters, sub)
			}
			continue
		}

		cond, err := decodeCondition(key, v)
		if err != nil {
			return nil, err
		}
		f.Conditions = append(f.Conditions, cond)
	}

	return f, nil
}

func decodeCondition(field string, raw json.RawMessage) (ast.Condition, error) {
	var opMap map[string]json.RawMessage
	if err := json.Unmarshal(raw, &opMap); err == nil && isOperatorMap(opMap) {
		for opName, v := range opMap {
			op := ast.ComparisonOperator(opName)
			switch op {
			case ast.Some, ast.Every, ast.None:
				sub, err := decodeFilter(v)
				if err != nil {
					return ast.Condition{}, err
				}
				return ast.Condition{Field: field, Operator: op, RelationFilter: sub}, nil
			case ast.Equals, ast.NotEquals, ast.In, ast.NotIn, ast.Lt, ast.Lte, ast.Gt, ast.Gte,
				ast.Contains, ast.StartsWith, ast.EndsWith, ast.IsEmpty, ast.Has, ast.HasEvery,
				ast.HasSome, ast.IsNull, ast.Search:
				var lit ast.Literal
				if err := json.Unmarshal(v, &lit); err != nil {
					return ast.Condition{}, &ShapeError{Path: "query.arguments.where." + field, Reason: err.Error()}
				}
				return ast.Condition{Field: field, Operator: op, Value: lit}, nil
			}
		}
	}

	// Equals shorthand: { field: value }.
	var lit ast.Literal
	if err := json.Unmarshal(raw, &lit); err != nil {
		return ast.Condition{}, &ShapeError{Path: "query.arguments.where." + field, Reason: err.Error()}
	}
	return ast.Condition{Field: field, Operator: ast.Equals, Value: lit}, nil
}

func isOperatorMap(m map[string]json.RawMessage) bool {
	if len(m) == 0 {
		return false
	}
	known := map[string]bool{
		"equals": true, "not": true, "in": true, "notIn": true, "lt": true, "lte": true,
		"gt": true, "gte": true, "contains": true, "startsWith": true, "endsWith": true,
		"isEmpty": true, "has": true, "hasEvery": true, "hasSome": true, "isNull": true,
		"search": true, "some": true, "every": true, "none": true,
	}
	for k := range m {
		if !known[k] {
			return false
		}
	}
	return true
}

func decodeSelection(raw json.RawMessage) (ast.Selection, error) {
	var sel ast.Selection
	if len(raw) == 0 {
		return sel, nil
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return sel, &ShapeError{Path: "query.selection", Reason: err.Error()}
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := m[key]
		switch key {
		case "$scalars":
			var b bool
			json.Unmarshal(v, &b)
			sel.AllScalars = b
			continue
		case "$composites":
			var b bool
			json.Unmarshal(v, &b)
			sel.AllComposites = b
			continue
		}

		var isScalar bool
		if err := json.Unmarshal(v, &isScalar); err == nil {
			if isScalar {
				sel.Entries = append(sel.Entries, ast.SelectionEntry{Name: key, Kind: ast.SelectScalar})
			}
			continue
		}

		var nestedRaw struct {
			Arguments json.RawMessage `json:"arguments"`
			Selection json.RawMessage `json:"selection"`
		}
		if err := json.Unmarshal(v, &nestedRaw); err != nil {
			return sel, &ShapeError{Path: "query.selection." + key, Reason: err.Error()}
		}
		nestedArgs, err := decodeArguments(nestedRaw.Arguments, ast.FindMany)
		if err != nil {
			return sel, err
		}
		nestedSel, err := decodeSelection(nestedRaw.Selection)
		if err != nil {
			return sel, err
		}
		sel.Entries = append(sel.Entries, ast.SelectionEntry{
			Name: key,
			Kind: ast.SelectRelation,
			Nested: &ast.Node{
				Action:    ast.FindMany,
				Arguments: nestedArgs,
				Selection: nestedSel,
			},
		})
	}

	return sel, nil
}

// checkShape rejects request shapes that are internally inconsistent
// without needing the schema (spec.md §7 "Shape errors").
func checkShape(n *ast.Node) error {
	switch n.Action {
	case ast.CreateMany, ast.CreateManyAndReturn:
		if len(n.Arguments.CreateMany) == 0 {
			return &ShapeError{Path: "query.arguments.data", Reason: "createMany requires a non-empty array"}
		}
	case ast.CreateOne:
		if len(n.Arguments.Data) == 0 {
			return &ShapeError{Path: "query.arguments.data", Reason: "createOne requires data"}
		}
	case ast.UpdateOne, ast.UpdateMany, ast.UpdateManyAndReturn:
		if len(n.Arguments.Data) == 0 {
			return &ShapeError{Path: "query.arguments.data", Reason: "update requires data"}
		}
		if n.Arguments.Where == nil {
			return &ShapeError{Path: "query.arguments.where", Reason: "update requires a where clause"}
		}
	case ast.DeleteOne, ast.DeleteMany:
		if n.Arguments.Where == nil {
			return &ShapeError{Path: "query.arguments.where", Reason: "delete requires a where clause"}
		}
	case ast.UpsertOne:
		if n.Arguments.Where == nil {
			return &ShapeError{Path: "query.arguments.where", Reason: "upsert requires a where clause"}
		}
		if len(n.Arguments.UpsertCreate) == 0 {
			return &ShapeError{Path: "query.arguments.create", Reason: "upsert requires a create payload"}
		}
	case ast.ExecuteRaw, ast.QueryRaw:
		if n.Arguments.RawSQL == "" {
			return &ShapeError{Path: "query.arguments.sql", Reason: "raw operations require sql"}
		}
	}
	return nil
}
