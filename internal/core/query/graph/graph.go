// Package graph implements the Query Graph Builder (spec.md §4.2): turning
// one validated ast.Node into an ordered dataflow graph of primitive
// operations (reads, writes, join-table mutations) connected by dependency
// edges, with the automatic validations nested writes require already
// attached. Nothing here renders SQL or decides transaction scope; that is
// the SQL Builder's (internal/core/sqlgen) and the Expression Assembler's
// (internal/core/program) job respectively. Modeled on the teacher's
// query/compiler tree (v3/internal/core/query/compiler/compiler.go), which
// walked a Query into a slice of statements; generalized here into an
// explicit node+edge graph so branch operations (connectOrCreate, upsert)
// and their validations are first-class instead of inlined control flow.
package graph

import (
	"fmt"
	"sort"

	"github.com/relionix/queryc/internal/core/dialect"
	"github.com/relionix/queryc/internal/core/query/ast"
	"github.com/relionix/queryc/internal/core/schema"
	"github.com/relionix/queryc/internal/core/schema/domain"
)

// ErrorCode names one of the automatic validation failures spec.md §4.2
// attaches to nested-write operations.
type ErrorCode string

const (
	MissingRelatedRecord    ErrorCode = "MISSING_RELATED_RECORD"
	RecordNotFound          ErrorCode = "RECORD_NOT_FOUND"
	IncompleteConnectOutput ErrorCode = "INCOMPLETE_CONNECT_OUTPUT"
	IncompleteConnectInput  ErrorCode = "INCOMPLETE_CONNECT_INPUT"
)

// ValidationKind is the predicate an automatic Validation checks against an
// operation's execution result.
type ValidationKind string

const (
	// RowCountNeq0 checks a preceding read found at least one row; used
	// before trusting a connect target exists.
	RowCountNeq0 ValidationKind = "rowCountNeq0"
	// AffectedRowCountEq1 checks an update/delete touched exactly one row;
	// used after targeting a record by a (supposedly) unique filter.
	AffectedRowCountEq1 ValidationKind = "affectedRowCountEq1"
	// RowCountEq1 checks a read returned exactly one row; used when a
	// connect target is expected to resolve unambiguously.
	RowCountEq1 ValidationKind = "rowCountEq1"
)

// Validation is one guard attached to an Op: a runtime check the program
// evaluates against that op's execution result, raising ErrorCode if it
// fails (spec.md §4.2's "validate ... orRaise ..." nodes).
type Validation struct {
	Kind    ValidationKind
	OrRaise ErrorCode
}

// OpKind is the primitive operation kind a graph Op performs.
type OpKind string

const (
	OpRead       OpKind = "read"
	OpInsert     OpKind = "insert"
	OpInsertMany OpKind = "insertMany"
	OpUpdate     OpKind = "update"
	OpUpdateMany OpKind = "updateMany"
	OpDelete     OpKind = "delete"
	OpDeleteMany OpKind = "deleteMany"
	OpJoinInsert OpKind = "joinInsert" // many-to-many connect row
	OpJoinDelete OpKind = "joinDelete" // many-to-many disconnect row
	OpAggregate  OpKind = "aggregate"
	OpGroupBy    OpKind = "groupBy"
	OpRawExec    OpKind = "rawExec"
	OpRawQuery   OpKind = "rawQuery"
)

// Op is one primitive operation in the graph.
type Op struct {
	ID    string
	Kind  OpKind
	Model string // target model; empty for raw/join ops

	JoinTable   string // populated for OpJoinInsert/OpJoinDelete
	JoinLeftFK  string
	JoinRightFK string

	Node *ast.Node // the read/write this op executes, carrying Arguments

	// FKBindings names, for a write op, which of its columns must be bound
	// to another op's result rather than to a literal in Node (e.g. a
	// child insert's parent-id foreign key). Keyed by column name.
	FKBindings map[string]FKRef

	// Joins holds one child Read per relation selected alongside this op
	// (OpRead only): spec.md §4.2, "selected relations become child Read
	// nodes joined on the link keys".
	Joins []*Join

	DependsOn   []string
	Validations []Validation

	// ReturnRow marks an OpInsert/OpUpdateMany produced by a *AndReturn
	// action: sqlgen must render a RETURNING/OUTPUT clause carrying every
	// scalar column, not just the primary key.
	ReturnRow bool
}

// FKRef names an upstream op and the field of its resolved row a column
// must be bound to once that op executes.
type FKRef struct {
	OpID  string
	Field string
}

// Join compiles one selected relation into a child Read joined on the
// relation's link keys. ParentFields[i] on this op equals ChildFields[i] on
// Child, paired by index (composite links carry more than one pair).
type Join struct {
	Alias        string // relation field name; the assembler binds it @nested$<Alias>
	Child        *Op
	ParentFields []string
	ChildFields  []string
	Single       bool // true when at most one child row is expected (the to-one side)
}

// Kind distinguishes a plain Op from a Branch in the graph's node list.
type Kind string

const (
	KindOp     Kind = "op"
	KindBranch Kind = "branch"
)

// GraphNode is one entry in a Graph's ordered node list.
type GraphNode struct {
	Kind   Kind
	Op     *Op     // populated when Kind == KindOp
	Branch *Branch // populated when Kind == KindBranch
}

// Branch compiles a connectOrCreate/upsert decision: Check runs first, and
// its row count decides whether Then or Else executes (spec.md §4.2,
// "connectOrCreate ... compiles into an if/then/else branch").
type Branch struct {
	ID    string
	Check *Op // a read whose row count is the branch predicate
	Then  *Graph
	Else  *Graph
}

// Graph is the ordered (topologically sorted, document-order tie-broken)
// dataflow graph for one request.
type Graph struct {
	Nodes []*GraphNode
}

func (g *Graph) addOp(op *Op) *Op {
	g.Nodes = append(g.Nodes, &GraphNode{Kind: KindOp, Op: op})
	return op
}

func (g *Graph) addBranch(b *Branch) {
	g.Nodes = append(g.Nodes, &GraphNode{Kind: KindBranch, Branch: b})
}

// builder carries the shared state (registry + id counter) through the
// recursive Build passes.
type builder struct {
	reg     *schema.Registry
	counter int
}

func (b *builder) nextID() string {
	b.counter++
	return fmt.Sprintf("op%d", b.counter)
}

// Build compiles one validated ast.Node into a Graph.
func Build(n *ast.Node, reg *schema.Registry) (*Graph, error) {
	b := &builder{reg: reg}
	g := &Graph{}

	if n.Action != ast.ExecuteRaw && n.Action != ast.QueryRaw {
		if _, err := reg.Model(n.Model); err != nil {
			return nil, err
		}
	}

	switch n.Action {
	case ast.FindUnique, ast.FindFirst, ast.FindMany:
		if _, err := b.buildRead(g, n, nil); err != nil {
			return nil, err
		}
	case ast.CreateOne:
		if _, err := b.buildCreateOne(g, n.Model, n.Arguments.Data, nil); err != nil {
			return nil, err
		}
	case ast.CreateMany:
		for _, row := range n.Arguments.CreateMany {
			if _, err := b.buildCreateOne(g, n.Model, row, nil); err != nil {
				return nil, err
			}
		}
	case ast.CreateManyAndReturn:
		for _, row := range n.Arguments.CreateMany {
			op, err := b.buildCreateOne(g, n.Model, row, nil)
			if err != nil {
				return nil, err
			}
			op.ReturnRow = true
		}
	case ast.UpdateOne:
		if err := b.buildUpdateOne(g, n); err != nil {
			return nil, err
		}
	case ast.UpdateMany:
		b.buildUpdateMany(g, n)
	case ast.UpdateManyAndReturn:
		b.buildUpdateMany(g, n)
		g.Nodes[len(g.Nodes)-1].Op.ReturnRow = true
	case ast.DeleteOne:
		b.buildDeleteOne(g, n)
	case ast.DeleteMany:
		b.buildDeleteMany(g, n)
	case ast.UpsertOne:
		if err := b.buildUpsert(g, n); err != nil {
			return nil, err
		}
	case ast.Aggregate:
		g.addOp(&Op{ID: b.nextID(), Kind: OpAggregate, Model: n.Model, Node: n})
	case ast.GroupBy:
		g.addOp(&Op{ID: b.nextID(), Kind: OpGroupBy, Model: n.Model, Node: n})
	case ast.ExecuteRaw:
		g.addOp(&Op{ID: b.nextID(), Kind: OpRawExec, Node: n})
	case ast.QueryRaw:
		g.addOp(&Op{ID: b.nextID(), Kind: OpRawQuery, Node: n})
	default:
		return nil, fmt.Errorf("graph: unsupported action %q", n.Action)
	}

	return g, nil
}

// buildRead compiles a top-level read into its own Graph node, recursively
// resolving any selected relations into joins (spec.md §4.2).
func (b *builder) buildRead(g *Graph, n *ast.Node, dependsOn []string) (*Op, error) {
	op, err := b.compileRead(n, dependsOn)
	if err != nil {
		return nil, err
	}
	g.addOp(op)
	return op, nil
}

// compileRead builds one Read op and its Joins without registering it as a
// Graph node: used both for the top-level read (via buildRead) and for a
// join's child read, which is reachable only through its parent's Joins
// slice, not as an independent statement.
func (b *builder) compileRead(n *ast.Node, dependsOn []string) (*Op, error) {
	op := &Op{ID: b.nextID(), Kind: OpRead, Model: n.Model, Node: n, DependsOn: dependsOn}

	for _, e := range n.Selection.Entries {
		if e.Kind != ast.SelectRelation {
			continue
		}
		ep, err := b.reg.Relation(n.Model, e.Name)
		if err != nil {
			return nil, fmt.Errorf("graph: read %s.%s: %w", n.Model, e.Name, err)
		}
		join, err := b.buildJoin(ep, e)
		if err != nil {
			return nil, err
		}
		op.Joins = append(op.Joins, join)
	}
	return op, nil
}

// buildJoin compiles one selected relation entry into a child Read scoped to
// the parent's link keys.
func (b *builder) buildJoin(ep schema.RelationEndpoint, e ast.SelectionEntry) (*Join, error) {
	childNode := e.Nested
	if childNode == nil {
		childNode = &ast.Node{Action: ast.FindMany}
	}
	childNode.Model = ep.OtherModel()

	child, err := b.compileRead(childNode, nil)
	if err != nil {
		return nil, err
	}

	parentCols, childCols := make([]string, 0, len(fkColumns(ep))), make([]string, 0, len(fkColumns(ep)))
	for _, p := range fkColumns(ep) {
		parentCols = append(parentCols, p.Column)
		childCols = append(childCols, p.Ref)
	}
	// fkColumns orients Column/Ref to whichever side physically owns the FK;
	// reorient to this join's parent/child roles.
	if linkOwnedByChild(ep) {
		parentCols, childCols = childCols, parentCols
	}

	return &Join{
		Alias:        e.Name,
		Child:        child,
		ParentFields: parentCols,
		ChildFields:  childCols,
		Single:       singleSide(ep),
	}, nil
}

// singleSide reports whether at most one child row can match a given
// parent row for this relation (a to-one join, rendered with `unique`).
func singleSide(ep schema.RelationEndpoint) bool {
	switch ep.Relation.Kind {
	case domain.OneToOne:
		return true
	case domain.OneToMany:
		// The endpoint's own field names the "one" side's pointer to the
		// single related row exactly when the child (other model) doesn't
		// own the FK back to it, i.e. ep's own model is on the "many" side
		// looking at the single "one" parent.
		return !linkOwnedByChild(ep)
	default:
		return false
	}
}

// buildCreateOne compiles a create, including every nested write embedded in
// its Data map. parentFK, when non-nil, binds a foreign key column on this
// insert to an upstream op (the case where this model is the child side of
// a relation and must be inserted after its parent).
func (b *builder) buildCreateOne(g *Graph, model string, data map[string]ast.FieldValue, parentFK map[string]FKRef) (*Op, error) {
	insert := &Op{ID: b.nextID(), Kind: OpInsert, Model: model, FKBindings: map[string]FKRef{}}
	for col, ref := range parentFK {
		insert.FKBindings[col] = ref
		insert.DependsOn = append(insert.DependsOn, ref.OpID)
	}

	// Plain literal columns go straight onto the eventual Node; relation
	// fields are handled by nestedWriteOrder below and never become
	// literal columns on Node itself.
	literal := map[string]ast.FieldValue{}
	var relFields []string
	for field, fv := range data {
		if fv.Kind == ast.ValueNested {
			relFields = append(relFields, field)
			continue
		}
		literal[field] = fv
	}
	insert.Node = &ast.Node{Action: ast.CreateOne, Model: model, Arguments: ast.Arguments{Data: literal}}

	g.addOp(insert)

	sort.Strings(relFields)
	for _, field := range relFields {
		ep, err := b.reg.Relation(model, field)
		if err != nil {
			return nil, fmt.Errorf("graph: create %s.%s: %w", model, field, err)
		}
		if err := b.buildNestedWrite(g, model, field, ep, data[field].Nested, insert); err != nil {
			return nil, err
		}
	}

	return insert, nil
}

// buildNestedWrite dispatches one relation field's nested write operation,
// attaching the automatic validations spec.md §4.2 names.
func (b *builder) buildNestedWrite(g *Graph, parentModel, field string, ep schema.RelationEndpoint, nw *ast.NestedWrite, parentOp *Op) error {
	other := ep.OtherModel()

	switch nw.Op {
	case ast.NestedCreate, ast.NestedCreateMany:
		for _, item := range nw.Items {
			if linkOwnedByChild(ep) {
				// The child carries the FK referencing the parent: insert
				// the parent first (already done), then the child with
				// the FK bound to the parent's result.
				fk := map[string]FKRef{}
				for _, p := range fkColumns(ep) {
					fk[p.Column] = FKRef{OpID: parentOp.ID, Field: p.Ref}
				}
				if _, err := b.buildCreateOne(g, other, item.Create, fk); err != nil {
					return err
				}
			} else {
				// The parent carries the FK: the child must exist first;
				// this direction is rare for create (would require a
				// circular dependency) and is rejected defensively.
				return fmt.Errorf("graph: %s.%s: nested create requires the child to own the foreign key", parentModel, field)
			}
		}

	case ast.NestedConnect:
		for _, item := range nw.Items {
			check, err := b.buildRead(g, &ast.Node{Action: ast.FindFirst, Model: other, Arguments: ast.Arguments{Where: item.Where}}, nil)
			if err != nil {
				return err
			}
			check.Validations = append(check.Validations, Validation{Kind: RowCountNeq0, OrRaise: MissingRelatedRecord})

			switch ep.Relation.Kind {
			case domain.ManyToMany:
				g.addOp(joinInsertOp(b, ep, parentOp.ID, check.ID))
			default:
				b.connectViaFK(g, ep, parentOp, check)
			}
		}

	case ast.NestedConnectOrCreate:
		for _, item := range nw.Items {
			check, err := b.buildRead(g, &ast.Node{Action: ast.FindFirst, Model: other, Arguments: ast.Arguments{Where: item.Where}}, nil)
			if err != nil {
				return err
			}

			thenGraph := &Graph{}
			if ep.Relation.Kind == domain.ManyToMany {
				thenGraph.addOp(joinInsertOp(b, ep, parentOp.ID, check.ID))
			} else {
				b.connectViaFK(thenGraph, ep, parentOp, check)
			}

			elseGraph := &Graph{}
			savedCounter := b.counter
			_ = savedCounter
			if _, err := b.buildCreateOneInto(elseGraph, other, item.Create, linkFKFor(ep, parentOp)); err != nil {
				return err
			}

			g.addBranch(&Branch{ID: b.nextID(), Check: check, Then: thenGraph, Else: elseGraph})
		}

	case ast.NestedDisconnect:
		for _, item := range nw.Items {
			switch ep.Relation.Kind {
			case domain.ManyToMany:
				check, err := b.buildRead(g, &ast.Node{Action: ast.FindFirst, Model: other, Arguments: ast.Arguments{Where: item.Where}}, nil)
				if err != nil {
					return err
				}
				g.addOp(joinDeleteOp(b, ep, parentOp.ID, check.ID))
			default:
				data := map[string]ast.FieldValue{}
				for _, p := range fkColumns(ep) {
					data[p.Column] = ast.FieldValue{Kind: ast.ValueLiteral, Value: nil}
				}
				if !linkOwnedByChild(ep) {
					// parentOp itself carries the FK: clear it directly on
					// the already-built insert/update rather than issuing a
					// separate statement against other's table.
					for col, fv := range data {
						parentOp.Node.Arguments.Data[col] = fv
					}
					continue
				}
				upd := g.addOp(&Op{
					ID:    b.nextID(),
					Kind:  OpUpdate,
					Model: other,
					Node: &ast.Node{Action: ast.UpdateOne, Model: other, Arguments: ast.Arguments{
						Where: item.Where,
						Data:  data,
					}},
					DependsOn: []string{parentOp.ID},
				})
				upd.Validations = append(upd.Validations, Validation{Kind: AffectedRowCountEq1, OrRaise: IncompleteConnectOutput})
			}
		}

	case ast.NestedSet:
		// Replace the entire related set: clear existing links, then
		// connect each item named in the batch.
		clear := &Op{ID: b.nextID(), Kind: OpUpdateMany, Model: other}
		if ep.Relation.Kind == domain.ManyToMany {
			clear.Kind = OpJoinDelete
			clear.JoinTable = joinTable(ep)
			clear.DependsOn = []string{parentOp.ID}
		} else {
			data := map[string]ast.FieldValue{}
			conds := make([]ast.Condition, 0, len(fkColumns(ep)))
			for _, p := range fkColumns(ep) {
				data[p.Column] = ast.FieldValue{Kind: ast.ValueLiteral, Value: nil}
				conds = append(conds, ast.Condition{Field: p.Column, Operator: ast.Equals, Value: ast.BindRef{OpID: parentOp.ID, Field: p.Ref}})
			}
			clear.Node = &ast.Node{Action: ast.UpdateMany, Model: other, Arguments: ast.Arguments{
				Where: &ast.Filter{Operator: ast.And, Conditions: conds},
				Data:  data,
			}}
			clear.DependsOn = []string{parentOp.ID}
		}
		g.addOp(clear)
		for _, item := range nw.Items {
			check, err := b.buildRead(g, &ast.Node{Action: ast.FindFirst, Model: other, Arguments: ast.Arguments{Where: item.Where}}, nil)
			if err != nil {
				return err
			}
			check.Validations = append(check.Validations, Validation{Kind: RowCountNeq0, OrRaise: MissingRelatedRecord})
			if ep.Relation.Kind == domain.ManyToMany {
				g.addOp(joinInsertOp(b, ep, parentOp.ID, check.ID))
			} else {
				b.connectViaFK(g, ep, parentOp, check)
			}
		}

	case ast.NestedUpdate:
		for _, item := range nw.Items {
			where := scopeToParent(item.Where, ep, parentOp)
			upd := g.addOp(&Op{
				ID: b.nextID(), Kind: OpUpdate, Model: other,
				Node:      &ast.Node{Action: ast.UpdateOne, Model: other, Arguments: ast.Arguments{Where: where, Data: item.Update}},
				DependsOn: []string{parentOp.ID},
			})
			upd.Validations = append(upd.Validations, Validation{Kind: AffectedRowCountEq1, OrRaise: RecordNotFound})
		}

	case ast.NestedUpdateMany:
		for _, item := range nw.Items {
			where := scopeToParent(item.Where, ep, parentOp)
			g.addOp(&Op{
				ID: b.nextID(), Kind: OpUpdateMany, Model: other,
				Node:      &ast.Node{Action: ast.UpdateMany, Model: other, Arguments: ast.Arguments{Where: where, Data: item.Update}},
				DependsOn: []string{parentOp.ID},
			})
		}

	case ast.NestedDelete:
		for _, item := range nw.Items {
			where := scopeToParent(item.Where, ep, parentOp)
			del := g.addOp(&Op{
				ID: b.nextID(), Kind: OpDelete, Model: other,
				Node:      &ast.Node{Action: ast.DeleteOne, Model: other, Arguments: ast.Arguments{Where: where}},
				DependsOn: []string{parentOp.ID},
			})
			del.Validations = append(del.Validations, Validation{Kind: AffectedRowCountEq1, OrRaise: RecordNotFound})
		}

	case ast.NestedDeleteMany:
		for _, item := range nw.Items {
			where := scopeToParent(item.Where, ep, parentOp)
			g.addOp(&Op{
				ID: b.nextID(), Kind: OpDeleteMany, Model: other,
				Node:      &ast.Node{Action: ast.DeleteMany, Model: other, Arguments: ast.Arguments{Where: where}},
				DependsOn: []string{parentOp.ID},
			})
		}

	case ast.NestedUpsert:
		for _, item := range nw.Items {
			where := scopeToParent(item.Where, ep, parentOp)
			check, err := b.buildRead(g, &ast.Node{Action: ast.FindFirst, Model: other, Arguments: ast.Arguments{Where: where}}, []string{parentOp.ID})
			if err != nil {
				return err
			}

			thenGraph := &Graph{}
			thenGraph.addOp(&Op{
				ID: b.nextID(), Kind: OpUpdate, Model: other,
				Node: &ast.Node{Action: ast.UpdateOne, Model: other, Arguments: ast.Arguments{Where: where, Data: item.Update}},
			})

			elseGraph := &Graph{}
			if _, err := b.buildCreateOneInto(elseGraph, other, item.Create, linkFKFor(ep, parentOp)); err != nil {
				return err
			}

			g.addBranch(&Branch{ID: b.nextID(), Check: check, Then: thenGraph, Else: elseGraph})
		}
	}

	return nil
}

// buildCreateOneInto is buildCreateOne targeting an explicit sub-graph
// (used inside branch arms, which carry their own node list).
func (b *builder) buildCreateOneInto(g *Graph, model string, data map[string]ast.FieldValue, fk map[string]FKRef) (*Op, error) {
	return b.buildCreateOne(g, model, data, fk)
}

// connectViaFK realizes a one-to-one/one-to-many connect by updating the
// FK-owning side once the related record's existence is confirmed.
func (b *builder) connectViaFK(g *Graph, ep schema.RelationEndpoint, parentOp *Op, check *Op) {
	if !linkOwnedByChild(ep) {
		// parentOp itself carries the FK: bind its columns to check's result.
		if parentOp.FKBindings == nil {
			parentOp.FKBindings = map[string]FKRef{}
		}
		for _, p := range fkColumns(ep) {
			parentOp.FKBindings[p.Column] = FKRef{OpID: check.ID, Field: p.Ref}
		}
		parentOp.DependsOn = append(parentOp.DependsOn, check.ID)
		return
	}
	// The related (child) model carries the FK: update it to point at parent.
	fk := map[string]FKRef{}
	for _, p := range fkColumns(ep) {
		fk[p.Column] = FKRef{OpID: parentOp.ID, Field: p.Ref}
	}
	upd := g.addOp(&Op{
		ID: b.nextID(), Kind: OpUpdate, Model: ep.OtherModel(),
		FKBindings: fk,
		Node:       &ast.Node{Action: ast.UpdateOne, Model: ep.OtherModel(), Arguments: ast.Arguments{Where: check.Node.Arguments.Where}},
		DependsOn:  []string{parentOp.ID, check.ID},
	})
	upd.Validations = append(upd.Validations, Validation{Kind: AffectedRowCountEq1, OrRaise: IncompleteConnectOutput})
}

func linkFKFor(ep schema.RelationEndpoint, parentOp *Op) map[string]FKRef {
	if !linkOwnedByChild(ep) {
		return nil
	}
	fk := map[string]FKRef{}
	for _, p := range fkColumns(ep) {
		fk[p.Column] = FKRef{OpID: parentOp.ID, Field: p.Ref}
	}
	return fk
}

// linkOwnedByChild reports whether the relation's FK lives on the "other"
// (child, from this endpoint's perspective) side of a one-to-one/one-to-many
// link.
func linkOwnedByChild(ep schema.RelationEndpoint) bool {
	switch ep.Relation.Link {
	case domain.InlineFKOnFrom:
		return !ep.IsFrom
	case domain.InlineFKOnTo:
		return ep.IsFrom
	default:
		return false
	}
}

// fkPair is one physical FK column of a (possibly composite) relation link,
// paired with the field on the other side it must equal.
type fkPair struct {
	Column string
	Ref    string
}

// fkColumns names every physical FK column realizing ep's relation, in
// link-declaration order (composite links carry more than one). When the
// child (other model, from ep's perspective) carries the FK, the columns are
// ep.ForeignFields(); when ep's own model carries it, they are
// ep.LocalFields() (see linkOwnedByChild). Ref names the corresponding field
// on the other side each column must equal.
func fkColumns(ep schema.RelationEndpoint) []fkPair {
	cols, refs := ep.LocalFields(), ep.ForeignFields()
	if linkOwnedByChild(ep) {
		cols, refs = refs, cols
	}
	pairs := make([]fkPair, len(cols))
	for i := range cols {
		pairs[i] = fkPair{Column: cols[i], Ref: refs[i]}
	}
	return pairs
}

// joinTable names the physical many-to-many join table for ep, deriving the
// conventional `_AtoB` name via dialect.JoinTableName when the relation is an
// ImplicitJoinTable link (domain.Relation.JoinModel is legitimately empty in
// that case; it's only populated for an ExplicitJoinModel link).
func joinTable(ep schema.RelationEndpoint) string {
	if ep.Relation.JoinModel != "" {
		return ep.Relation.JoinModel
	}
	if ep.Relation.Link == domain.ImplicitJoinTable {
		return dialect.JoinTableName(ep.Relation.FromModel, ep.Relation.ToModel)
	}
	return ""
}

func joinInsertOp(b *builder, ep schema.RelationEndpoint, parentOpID, targetOpID string) *Op {
	return &Op{
		ID: b.nextID(), Kind: OpJoinInsert, JoinTable: joinTable(ep),
		DependsOn: []string{parentOpID, targetOpID},
	}
}

func joinDeleteOp(b *builder, ep schema.RelationEndpoint, parentOpID, targetOpID string) *Op {
	return &Op{
		ID: b.nextID(), Kind: OpJoinDelete, JoinTable: joinTable(ep),
		DependsOn: []string{parentOpID, targetOpID},
	}
}

// scopeToParent rewrites a nested where into one scoped to rows actually
// belonging to the parent, by AND-ing in the relation's FK equality (every
// column of a composite link). The FK value itself is resolved from the
// parent op at SQL-rendering time via ast.BindRef, not bound as a literal
// here.
func scopeToParent(where *ast.Filter, ep schema.RelationEndpoint, parentOp *Op) *ast.Filter {
	fkConds := make([]ast.Condition, 0, len(fkColumns(ep)))
	for _, p := range fkColumns(ep) {
		fkConds = append(fkConds, ast.Condition{Field: p.Column, Operator: ast.Equals, Value: ast.BindRef{OpID: parentOp.ID, Field: p.Ref}})
	}
	if where == nil {
		return &ast.Filter{Operator: ast.And, Conditions: fkConds}
	}
	return &ast.Filter{
		Operator:      ast.And,
		Conditions:    fkConds,
		NestedFilters: []ast.Filter{*where},
	}
}

func (b *builder) buildUpdateOne(g *Graph, n *ast.Node) error {
	literal, relFields := splitData(n.Arguments.Data)
	upd := &Op{ID: b.nextID(), Kind: OpUpdate, Model: n.Model, Node: &ast.Node{
		Action: ast.UpdateOne, Model: n.Model, Arguments: ast.Arguments{Where: n.Arguments.Where, Data: literal},
	}}
	upd.Validations = append(upd.Validations, Validation{Kind: AffectedRowCountEq1, OrRaise: RecordNotFound})
	g.addOp(upd)

	sort.Strings(relFields)
	for _, field := range relFields {
		ep, err := b.reg.Relation(n.Model, field)
		if err != nil {
			return fmt.Errorf("graph: update %s.%s: %w", n.Model, field, err)
		}
		if err := b.buildNestedWrite(g, n.Model, field, ep, n.Arguments.Data[field].Nested, upd); err != nil {
			return err
		}
	}
	return nil
}

func (b *builder) buildUpdateMany(g *Graph, n *ast.Node) {
	literal, _ := splitData(n.Arguments.Data)
	g.addOp(&Op{ID: b.nextID(), Kind: OpUpdateMany, Model: n.Model, Node: &ast.Node{
		Action: ast.UpdateMany, Model: n.Model, Arguments: ast.Arguments{Where: n.Arguments.Where, Data: literal},
	}})
}

func (b *builder) buildDeleteOne(g *Graph, n *ast.Node) {
	del := &Op{ID: b.nextID(), Kind: OpDelete, Model: n.Model, Node: n}
	del.Validations = append(del.Validations, Validation{Kind: AffectedRowCountEq1, OrRaise: RecordNotFound})
	g.addOp(del)
}

func (b *builder) buildDeleteMany(g *Graph, n *ast.Node) {
	g.addOp(&Op{ID: b.nextID(), Kind: OpDeleteMany, Model: n.Model, Node: n})
}

// buildUpsert compiles upsertOne into a check/then/else branch (spec.md
// §4.2): Then updates the existing row, Else creates it.
func (b *builder) buildUpsert(g *Graph, n *ast.Node) error {
	check, err := b.buildRead(g, &ast.Node{Action: ast.FindFirst, Model: n.Model, Arguments: ast.Arguments{Where: n.Arguments.Where}}, nil)
	if err != nil {
		return err
	}

	thenGraph := &Graph{}
	literal, relFields := splitData(n.Arguments.UpsertUpdate)
	upd := thenGraph.addOp(&Op{ID: b.nextID(), Kind: OpUpdate, Model: n.Model, Node: &ast.Node{
		Action: ast.UpdateOne, Model: n.Model, Arguments: ast.Arguments{Where: n.Arguments.Where, Data: literal},
	}})
	sort.Strings(relFields)
	for _, field := range relFields {
		ep, err := b.reg.Relation(n.Model, field)
		if err != nil {
			return fmt.Errorf("graph: upsert %s.%s: %w", n.Model, field, err)
		}
		if err := b.buildNestedWrite(thenGraph, n.Model, field, ep, n.Arguments.UpsertUpdate[field].Nested, upd); err != nil {
			return err
		}
	}

	elseGraph := &Graph{}
	if _, err := b.buildCreateOneInto(elseGraph, n.Model, n.Arguments.UpsertCreate, nil); err != nil {
		return err
	}

	g.addBranch(&Branch{ID: b.nextID(), Check: check, Then: thenGraph, Else: elseGraph})
	return nil
}

func splitData(data map[string]ast.FieldValue) (map[string]ast.FieldValue, []string) {
	literal := map[string]ast.FieldValue{}
	var relFields []string
	for field, fv := range data {
		if fv.Kind == ast.ValueNested {
			relFields = append(relFields, field)
			continue
		}
		literal[field] = fv
	}
	return literal, relFields
}
