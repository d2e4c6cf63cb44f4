// Package compiler ties the pipeline together: Request Decoding → Query
// Graph Builder → Expression Assembler → Program Serialization, against a
// schema.Registry and a chosen dialect.Capability. It also owns the typed
// error taxonomy the rest of the compiler raises into, grounded on the
// teacher's PrismaError shape (v3/internal/core/errors or equivalent
// top-level error type the teacher's CLI renders).
package compiler

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/relionix/queryc/internal/core/dialect"
	"github.com/relionix/queryc/internal/core/program"
	"github.com/relionix/queryc/internal/core/query/graph"
	"github.com/relionix/queryc/internal/core/query/request"
	"github.com/relionix/queryc/internal/core/schema"
	"github.com/relionix/queryc/internal/core/serialize"
	"github.com/relionix/queryc/internal/core/types"
)

// InvariantError reports a request that is well-formed but violates a
// schema-level invariant the graph builder enforces (an unknown model,
// field, or relation).
type InvariantError struct {
	Op      string
	Cause   error
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("compiler: %s: %v", e.Op, e.Cause)
}

func (e *InvariantError) Unwrap() error { return e.Cause }

// RaisedError mirrors one of the automatic validations the graph builder
// attaches (spec.md §4.2): it is not compiled away, it is surfaced to the
// caller as the error the *executed* program would raise if the guard's
// condition fails at runtime. The compiler itself only documents which
// guards exist; whether one actually fires is an executor-time concern
// outside this module's scope.
type RaisedError struct {
	Code graph.ErrorCode
}

func (e *RaisedError) Error() string {
	return fmt.Sprintf("compiler: conditional runtime guard for %s", e.Code)
}

// Compiler holds the shared, read-only inputs every compilation needs: the
// schema registry and a structured logger. A Compiler is safe for
// concurrent use; Compile/CompileBatch allocate no shared mutable state.
type Compiler struct {
	Registry *schema.Registry
	Dialect  dialect.Capability
	Log      *logrus.Entry
}

// New builds a Compiler bound to a schema registry and dialect.
func New(reg *schema.Registry, dialectName dialect.Name, log *logrus.Logger) (*Compiler, error) {
	cap, err := dialect.For(dialectName)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.New()
	}
	return &Compiler{
		Registry: reg,
		Dialect:  cap,
		Log:      log.WithField("component", "compiler"),
	}, nil
}

// Result is one compiled request: its serialized program plus the guard
// list a caller may want to inspect without re-walking the expression tree.
type Result struct {
	Document *serialize.Document
	Guards   []graph.ErrorCode
}

// Compile runs the full pipeline for a single raw request.
func (c *Compiler) Compile(raw request.Raw) (*Result, error) {
	node, err := request.Decode(raw)
	if err != nil {
		return nil, err
	}

	g, err := graph.Build(node, c.Registry)
	if err != nil {
		return nil, &InvariantError{Op: string(node.Action), Cause: err}
	}

	prog, err := program.Assemble(g, c.Registry, c.Dialect, "")
	if err != nil {
		return nil, fmt.Errorf("compiler: assemble %s: %w", node.Action, err)
	}

	enums := c.enumMappings()
	doc := serialize.Build(prog, enums)

	c.Log.WithFields(logrus.Fields{
		"action": node.Action,
		"model":  node.Model,
		"ops":    len(prog.Binds),
	}).Debug("compiled request")

	return &Result{Document: doc, Guards: collectGuards(g)}, nil
}

// CompileBatch compiles a batch request, wrapping every nested graph into a
// single transaction scope when an isolation level is supplied (spec.md §6
// "batch", §4.4 "Scenario F").
func (c *Compiler) CompileBatch(raw request.RawBatch) (*Result, error) {
	nodes, isolation, err := request.DecodeBatch(raw)
	if err != nil {
		return nil, err
	}

	merged := &graph.Graph{}
	var allGuards []graph.ErrorCode
	for _, n := range nodes {
		g, err := graph.Build(n, c.Registry)
		if err != nil {
			return nil, &InvariantError{Op: string(n.Action), Cause: err}
		}
		merged.Nodes = append(merged.Nodes, g.Nodes...)
		allGuards = append(allGuards, collectGuards(g)...)
	}

	prog, err := program.Assemble(merged, c.Registry, c.Dialect, isolation)
	if err != nil {
		return nil, fmt.Errorf("compiler: assemble batch: %w", err)
	}

	enums := c.enumMappings()
	doc := serialize.Build(prog, enums)

	c.Log.WithFields(logrus.Fields{
		"batchSize": len(nodes),
		"isolation": isolation,
	}).Debug("compiled batch")

	return &Result{Document: doc, Guards: allGuards}, nil
}

func (c *Compiler) enumMappings() []types.EnumMapping {
	s := c.Registry.Schema()
	out := make([]types.EnumMapping, len(s.Enums))
	for i := range s.Enums {
		out[i] = types.ResolveEnum(&s.Enums[i])
	}
	return out
}

func collectGuards(g *graph.Graph) []graph.ErrorCode {
	var out []graph.ErrorCode
	for _, gn := range g.Nodes {
		switch gn.Kind {
		case graph.KindOp:
			for _, v := range gn.Op.Validations {
				out = append(out, v.OrRaise)
			}
		case graph.KindBranch:
			out = append(out, collectGuards(gn.Branch.Then)...)
			out = append(out, collectGuards(gn.Branch.Else)...)
			for _, v := range gn.Branch.Check.Validations {
				out = append(out, v.OrRaise)
			}
		}
	}
	return out
}
