// Package program implements the Expression Assembler (spec.md §4.4): it
// walks a graph.Graph, renders each Op through sqlgen, and assembles the
// result into the program's expression tree — let-bindings, an optional
// transaction wrapper, if/then/else branches, and validate/orRaise guards.
// Modeled on the teacher's execution-plan assembly in
// v3/internal/core/query/executor, generalized from a fixed read/write split
// into the general expression-tree shape spec.md §4.4 names.
package program

import (
	"fmt"

	"github.com/relionix/queryc/internal/core/dialect"
	"github.com/relionix/queryc/internal/core/query/graph"
	"github.com/relionix/queryc/internal/core/schema"
	"github.com/relionix/queryc/internal/core/sqlgen"
)

// ExprKind tags one node of the assembled expression tree.
type ExprKind string

const (
	ExprLet         ExprKind = "let"
	ExprTransaction ExprKind = "transaction"
	ExprIf          ExprKind = "if"
	ExprExecute     ExprKind = "execute"
	ExprQuery       ExprKind = "query"
	ExprValidate    ExprKind = "validate"
	ExprGet         ExprKind = "get"
	ExprConst       ExprKind = "const"
	ExprVar         ExprKind = "var"
	ExprUnique      ExprKind = "unique"
	ExprSum         ExprKind = "sum"
	ExprMapField    ExprKind = "mapField"
	ExprProduct     ExprKind = "product"
	ExprJoin        ExprKind = "join"
)

// JoinKey is one column-equality pair a Join tests between its parent and
// child rows (composite relation keys carry more than one).
type JoinKey struct {
	Left  string
	Right string
}

// Expr is one node of the expression tree. Only the fields relevant to Kind
// are populated.
type Expr struct {
	Kind ExprKind

	// Let
	Binding string
	Value   *Expr
	Body    *Expr

	// Transaction
	IsolationLevel       string
	IsolationBeforeBegin bool
	Statements           []*Expr

	// If
	Cond *Expr
	Then *Expr
	Else *Expr

	// Execute/Query: a rendered SQL statement with its parameter exprs.
	SQL    string
	Params []*Expr

	// Validate
	Target  *Expr
	Check   graph.ValidationKind
	OrRaise graph.ErrorCode

	// Get/MapField
	Field string
	Of    *Expr

	// Const/Var
	Literal interface{}
	Name    string

	// Product: Cartesian product of bound id arrays, used to expand a
	// batched many-to-many connect/disconnect into one row per pair.
	Sources []*Expr

	// Join: `join <parent> with <child> on [unique] left.(...) = right.(...)
	// as <alias>` (spec.md §4.2/§4.3). JoinBody chains a further Join under
	// the same parent when more than one relation was selected alongside it.
	JoinParent *Expr
	JoinChild  *Expr
	JoinKeys   []JoinKey
	JoinAlias  string
	JoinUnique bool
	JoinBody   *Expr
}

// Program is the compiled output for one request: its expression body and
// the deterministic `dataMap` side-table (spec.md §4.4, §9 "Determinism").
// The `enums` section is added later by serialize.Build.
type Program struct {
	Body  *Expr
	Binds []BindEntry // dataMap, in assembly order
}

// BindEntry is one entry of the `dataMap` section: a binding name and the
// literal or op-relative expression it resolves to.
type BindEntry struct {
	Name  string
	Value *Expr
}

// bindingNamer assigns sequential integer binding names ("0", "1", ...) to
// statements in assembly order. The `@parent` and `@nested$<field>` names
// of a joined read are assigned by assembleJoinedRead, not here.
type bindingNamer struct {
	next int
}

func (n *bindingNamer) forOp(op *graph.Op) string {
	name := fmt.Sprintf("%d", n.next)
	n.next++
	return name
}

// Assemble renders every Op in g through sqlgen and wires the results into
// an expression tree, wrapping in a transaction when spec.md §4.4's
// transaction-scope rule requires it (two or more mutating statements, or a
// mutation with a dependent read), and always when an isolation level is
// given.
func Assemble(g *graph.Graph, reg *schema.Registry, cap dialect.Capability, isolation string) (*Program, error) {
	namer := &bindingNamer{}
	binds := map[string]*graph.Op{}
	order := []string{}

	stmts, err := assembleNodes(g.Nodes, reg, cap, namer, binds, &order)
	if err != nil {
		return nil, err
	}

	body := chain(stmts)
	if isolation != "" || needsTransaction(countMutations(g.Nodes), hasDependency(g.Nodes)) {
		body = &Expr{
			Kind:                 ExprTransaction,
			IsolationLevel:       isolation,
			IsolationBeforeBegin: cap.IsolationBeforeBegin,
			Statements:           stmts,
		}
	}

	p := &Program{Body: body}
	for _, name := range order {
		op := binds[name]
		p.Binds = append(p.Binds, BindEntry{Name: name, Value: &Expr{Kind: ExprVar, Name: name, Literal: op.Kind}})
	}
	return p, nil
}

func assembleNodes(nodes []*graph.GraphNode, reg *schema.Registry, cap dialect.Capability, namer *bindingNamer, binds map[string]*graph.Op, order *[]string) ([]*Expr, error) {
	var exprs []*Expr
	for _, gn := range nodes {
		switch gn.Kind {
		case graph.KindOp:
			e, err := assembleOp(gn.Op, reg, cap, namer, binds, order)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, e)
		case graph.KindBranch:
			e, err := assembleBranch(gn.Branch, reg, cap, namer, binds, order)
			if err != nil {
				return nil, err
			}
			exprs = append(exprs, e)
		}
	}
	return exprs, nil
}

func assembleOp(op *graph.Op, reg *schema.Registry, cap dialect.Capability, namer *bindingNamer, binds map[string]*graph.Op, order *[]string) (*Expr, error) {
	if op.Kind == graph.OpRead && len(op.Joins) > 0 {
		return assembleJoinedRead(op, reg, cap, namer, binds, order)
	}
	return assembleOpNamed(op, namer.forOp(op), reg, cap, binds, order)
}

// assembleJoinedRead compiles a Read carrying selected relations into
// `let @parent = <read> in join @parent with <child> ... as @nested$<alias>`
// (spec.md §4.2's worked example), recursively assembling each join's child
// Read directly (never through assembleNodes, so it is never registered as
// an independent top-level statement) and folding multiple joins under the
// same parent right-to-left into a JoinBody chain.
func assembleJoinedRead(op *graph.Op, reg *schema.Registry, cap dialect.Capability, namer *bindingNamer, binds map[string]*graph.Op, order *[]string) (*Expr, error) {
	const parentName = "@parent"
	parentExpr, err := assembleOpNamed(op, parentName, reg, cap, binds, order)
	if err != nil {
		return nil, err
	}

	joinChain, err := assembleJoins(op.Joins, parentName, reg, cap, namer, binds, order)
	if err != nil {
		return nil, err
	}

	return &Expr{Kind: ExprLet, Binding: parentName, Value: parentExpr, Body: joinChain}, nil
}

func assembleJoins(joins []*graph.Join, parentName string, reg *schema.Registry, cap dialect.Capability, namer *bindingNamer, binds map[string]*graph.Op, order *[]string) (*Expr, error) {
	if len(joins) == 0 {
		return nil, nil
	}
	j := joins[0]
	alias := "@nested$" + j.Alias

	childExpr, err := assembleOpNamed(j.Child, alias, reg, cap, binds, order)
	if err != nil {
		return nil, err
	}

	keys := make([]JoinKey, len(j.ParentFields))
	for i := range j.ParentFields {
		keys[i] = JoinKey{Left: j.ParentFields[i], Right: j.ChildFields[i]}
	}

	body, err := assembleJoins(joins[1:], parentName, reg, cap, namer, binds, order)
	if err != nil {
		return nil, err
	}

	return &Expr{
		Kind:       ExprJoin,
		JoinParent: &Expr{Kind: ExprVar, Name: parentName},
		JoinChild:  childExpr,
		JoinKeys:   keys,
		JoinAlias:  alias,
		JoinUnique: j.Single,
		JoinBody:   body,
	}, nil
}

// assembleOpNamed renders op through sqlgen and wires it into an Execute or
// Query expr bound to an explicit name, bypassing the sequential namer for
// callers that must use a spec-mandated binding name (@parent, @nested$...).
func assembleOpNamed(op *graph.Op, name string, reg *schema.Registry, cap dialect.Capability, binds map[string]*graph.Op, order *[]string) (*Expr, error) {
	binds[name] = op
	*order = append(*order, name)

	stmt, err := sqlgen.Render(op, reg, cap)
	if err != nil {
		return nil, err
	}

	kind := ExprExecute
	if op.Kind == graph.OpRead || op.Kind == graph.OpAggregate || op.Kind == graph.OpGroupBy || op.Kind == graph.OpRawQuery {
		kind = ExprQuery
	}

	params := make([]*Expr, len(stmt.Params))
	for i, p := range stmt.Params {
		if p.BindFrom != "" {
			params[i] = &Expr{Kind: ExprGet, Of: &Expr{Kind: ExprVar, Name: p.BindFrom}, Field: p.BindField}
		} else {
			params[i] = &Expr{Kind: ExprConst, Literal: p.Literal}
		}
	}

	base := &Expr{Kind: kind, Binding: name, SQL: stmt.SQL, Params: params}
	return wrapValidations(op, base), nil
}

func wrapValidations(op *graph.Op, base *Expr) *Expr {
	expr := base
	for _, v := range op.Validations {
		expr = &Expr{
			Kind:    ExprValidate,
			Target:  expr,
			Check:   v.Kind,
			OrRaise: v.OrRaise,
		}
	}
	return expr
}

func assembleBranch(b *graph.Branch, reg *schema.Registry, cap dialect.Capability, namer *bindingNamer, binds map[string]*graph.Op, order *[]string) (*Expr, error) {
	checkExpr, err := assembleOp(b.Check, reg, cap, namer, binds, order)
	if err != nil {
		return nil, err
	}

	thenStmts, err := assembleNodes(b.Then.Nodes, reg, cap, namer, binds, order)
	if err != nil {
		return nil, err
	}
	elseStmts, err := assembleNodes(b.Else.Nodes, reg, cap, namer, binds, order)
	if err != nil {
		return nil, err
	}

	return &Expr{
		Kind: ExprIf,
		Cond: checkExpr,
		Then: chain(thenStmts),
		Else: chain(elseStmts),
	}, nil
}

// chain folds a statement list into nested let-bindings: `let _ = s1 in let
// _ = s2 in ... in sN`, mirroring spec.md §4.4's sequencing shape.
func chain(stmts []*Expr) *Expr {
	if len(stmts) == 0 {
		return nil
	}
	if len(stmts) == 1 {
		return stmts[0]
	}
	body := stmts[len(stmts)-1]
	for i := len(stmts) - 2; i >= 0; i-- {
		body = &Expr{Kind: ExprLet, Binding: stmts[i].Binding, Value: stmts[i], Body: body}
	}
	return body
}

func countMutations(nodes []*graph.GraphNode) int {
	count := 0
	for _, gn := range nodes {
		switch gn.Kind {
		case graph.KindOp:
			switch gn.Op.Kind {
			case graph.OpInsert, graph.OpInsertMany, graph.OpUpdate, graph.OpUpdateMany,
				graph.OpDelete, graph.OpDeleteMany, graph.OpJoinInsert, graph.OpJoinDelete, graph.OpRawExec:
				count++
			}
		case graph.KindBranch:
			count += countMutations(gn.Branch.Then.Nodes) + countMutations(gn.Branch.Else.Nodes) + 1
		}
	}
	return count
}

// needsTransaction applies spec.md §4.4's transaction-scope rule: wrap when
// there are two or more mutating statements, or a mutation paired with a
// dependent read (branches always count as needing one, since a branch's
// check-then-act sequence is itself a dependent read plus mutation).
func needsTransaction(mutationCount int, dependentRead bool) bool {
	return mutationCount >= 2 || (mutationCount == 1 && dependentRead)
}

// hasDependency reports whether any top-level op consumes another op's
// result (e.g. an insert binding the row its connect-check read resolved).
func hasDependency(nodes []*graph.GraphNode) bool {
	for _, gn := range nodes {
		if gn.Kind == graph.KindOp && len(gn.Op.DependsOn) > 0 {
			return true
		}
	}
	return false
}
