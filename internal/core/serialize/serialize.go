// Package serialize implements Program Serialization (SPEC_FULL.md §4.7):
// rendering an assembled program.Program into the wire form a runtime
// consumes, as JSON or as msgpack. The `dataMap` and `enums` sections use
// insertion-ordered maps rather than plain Go maps so re-serializing the
// same program byte-for-byte is deterministic (spec.md §9 "Determinism"),
// grounded on the teacher's JSON-RPC payload shaping in v3/internal/cli and
// generalized with wk8/go-ordered-map/v2 for the ordering guarantee plain
// map[string]any cannot give.
package serialize

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/relionix/queryc/internal/core/program"
	"github.com/relionix/queryc/internal/core/types"
)

// Document is the top-level wire shape: the expression body, the ordered
// dataMap of bindings, and the ordered enums table.
type Document struct {
	Body    interface{}                                  `json:"body" msgpack:"body"`
	DataMap *orderedmap.OrderedMap[string, interface{}]   `json:"dataMap" msgpack:"dataMap"`
	Enums   *orderedmap.OrderedMap[string, interface{}]   `json:"enums" msgpack:"enums"`
}

// Build assembles the wire Document for a compiled program, given the
// resolved enum tables it should carry alongside it.
func Build(p *program.Program, enums []types.EnumMapping) *Document {
	dataMap := orderedmap.New[string, interface{}]()
	for _, b := range p.Binds {
		dataMap.Set(b.Name, exprToWire(b.Value))
	}

	enumMap := orderedmap.New[string, interface{}]()
	for _, e := range enums {
		variants := make([]map[string]string, len(e.Variants))
		for i, v := range e.Variants {
			variants[i] = map[string]string{"dbValue": v.DBValue, "variant": v.Variant}
		}
		enumMap.Set(e.Name, variants)
	}

	return &Document{
		Body:    exprToWire(p.Body),
		DataMap: dataMap,
		Enums:   enumMap,
	}
}

// exprToWire renders one program.Expr into a plain, JSON/msgpack-friendly
// tagged-variant map. Kept as a single recursive function, mirroring the
// way the expression tree itself is a single recursive type.
func exprToWire(e *program.Expr) map[string]interface{} {
	if e == nil {
		return nil
	}

	out := map[string]interface{}{"kind": string(e.Kind)}

	switch e.Kind {
	case program.ExprLet:
		out["binding"] = e.Binding
		out["value"] = exprToWire(e.Value)
		out["body"] = exprToWire(e.Body)
	case program.ExprTransaction:
		out["isolationLevel"] = e.IsolationLevel
		out["isolationBeforeBegin"] = e.IsolationBeforeBegin
		stmts := make([]map[string]interface{}, len(e.Statements))
		for i, s := range e.Statements {
			stmts[i] = exprToWire(s)
		}
		out["statements"] = stmts
	case program.ExprIf:
		out["cond"] = exprToWire(e.Cond)
		out["then"] = exprToWire(e.Then)
		out["else"] = exprToWire(e.Else)
	case program.ExprExecute, program.ExprQuery:
		out["binding"] = e.Binding
		out["sql"] = e.SQL
		params := make([]map[string]interface{}, len(e.Params))
		for i, p := range e.Params {
			params[i] = exprToWire(p)
		}
		out["params"] = params
	case program.ExprValidate:
		out["target"] = exprToWire(e.Target)
		out["check"] = string(e.Check)
		out["orRaise"] = string(e.OrRaise)
	case program.ExprGet:
		out["of"] = exprToWire(e.Of)
		out["field"] = e.Field
	case program.ExprMapField:
		out["of"] = exprToWire(e.Of)
		out["field"] = e.Field
	case program.ExprConst:
		out["value"] = e.Literal
	case program.ExprVar:
		out["name"] = e.Name
	case program.ExprUnique, program.ExprSum:
		out["of"] = exprToWire(e.Of)
	case program.ExprProduct:
		sources := make([]map[string]interface{}, len(e.Sources))
		for i, s := range e.Sources {
			sources[i] = exprToWire(s)
		}
		out["sources"] = sources
	case program.ExprJoin:
		out["parent"] = exprToWire(e.JoinParent)
		out["child"] = exprToWire(e.JoinChild)
		keys := make([]map[string]string, len(e.JoinKeys))
		for i, k := range e.JoinKeys {
			keys[i] = map[string]string{"left": k.Left, "right": k.Right}
		}
		out["keys"] = keys
		out["alias"] = e.JoinAlias
		out["unique"] = e.JoinUnique
		out["body"] = exprToWire(e.JoinBody)
	}

	return out
}

// MarshalJSON renders a Document as JSON.
func MarshalJSON(doc *Document) ([]byte, error) {
	return json.Marshal(doc)
}

// MarshalMsgpack renders a Document as msgpack, for the transport path the
// runtime uses instead of JSON when size matters (SPEC_FULL.md §4.7).
func MarshalMsgpack(doc *Document) ([]byte, error) {
	return msgpack.Marshal(doc)
}
