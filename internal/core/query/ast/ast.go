// Package ast represents a declarative query request as a tagged-variant
// tree (spec.md §4.1). The AST is assumed well-typed with respect to the
// schema: validation happens before it reaches this package (see
// internal/core/query/request), so the graph builder may assume every
// referenced name exists. Modeled on the teacher's query/domain.Query
// (v3/internal/core/query/domain/query.go), split so a single struct no
// longer carries every operation's fields loosely typed as map[string]any —
// instead write payloads and nested operations get their own shapes so the
// "Operation's Arguments" contract in spec.md §4.1 is explicit.
package ast

// Action is the request's top-level operation kind.
type Action string

const (
	FindUnique          Action = "findUnique"
	FindFirst           Action = "findFirst"
	FindMany            Action = "findMany"
	CreateOne           Action = "createOne"
	CreateMany          Action = "createMany"
	CreateManyAndReturn Action = "createManyAndReturn"
	UpdateOne           Action = "updateOne"
	UpdateMany          Action = "updateMany"
	UpdateManyAndReturn Action = "updateManyAndReturn"
	UpsertOne           Action = "upsertOne"
	DeleteOne           Action = "deleteOne"
	DeleteMany          Action = "deleteMany"
	Aggregate           Action = "aggregate"
	GroupBy             Action = "groupBy"
	ExecuteRaw          Action = "executeRaw"
	QueryRaw            Action = "queryRaw"
)

// IsWrite reports whether the action mutates data.
func (a Action) IsWrite() bool {
	switch a {
	case CreateOne, CreateMany, CreateManyAndReturn, UpdateOne, UpdateMany, UpdateManyAndReturn, UpsertOne, DeleteOne, DeleteMany, ExecuteRaw:
		return true
	default:
		return false
	}
}

// Node is one request: an action against a model (or none, for raw
// operations), its arguments, and its selection set.
type Node struct {
	Action    Action
	Model     string
	Arguments Arguments
	Selection Selection
}

// Arguments holds every named argument an operation can carry. Only the
// fields relevant to Node.Action are populated; the rest are the zero value.
type Arguments struct {
	Where    *Filter
	OrderBy  []OrderBy
	Take     *int
	Skip     *int
	Cursor   map[string]Literal
	Distinct []string

	// Create/update payloads. Values may themselves be NestedWrite entries
	// when they target a relation field.
	Data       map[string]FieldValue
	CreateMany []map[string]FieldValue

	// Upsert: Create is the insert-branch payload, Update the update-branch.
	UpsertCreate map[string]FieldValue
	UpsertUpdate map[string]FieldValue

	GroupByFields []string
	Having        *Filter
	Aggregations  []Aggregation

	RawSQL    string
	RawParams []Literal
}

// Literal is a bare scalar/enum/list value carried in arguments (filter
// values, create/update column values, cursor values).
type Literal = interface{}

// FieldValueKind tags what shape a create/update field value takes.
type FieldValueKind string

const (
	ValueLiteral FieldValueKind = "literal"
	ValueNested  FieldValueKind = "nested" // a relation's nested write operation
)

// FieldValue is one entry in a create/update Data map: either a plain
// literal or a nested write against a relation field.
type FieldValue struct {
	Kind   FieldValueKind
	Value  Literal
	Nested *NestedWrite
}

// NestedWriteOp is the kind of nested operation named in spec.md §4.1.
type NestedWriteOp string

const (
	NestedCreate          NestedWriteOp = "create"
	NestedCreateMany      NestedWriteOp = "createMany"
	NestedConnect         NestedWriteOp = "connect"
	NestedConnectOrCreate NestedWriteOp = "connectOrCreate"
	NestedDisconnect      NestedWriteOp = "disconnect"
	NestedSet             NestedWriteOp = "set"
	NestedUpdate          NestedWriteOp = "update"
	NestedUpdateMany      NestedWriteOp = "updateMany"
	NestedDelete          NestedWriteOp = "delete"
	NestedDeleteMany      NestedWriteOp = "deleteMany"
	NestedUpsert          NestedWriteOp = "upsert"
)

// NestedWrite is a single nested operation against a relation field,
// possibly a batch of them (e.g. `create: [{...}, {...}]`).
type NestedWrite struct {
	Op NestedWriteOp

	// One entry per item in the batch; len==1 for singular relations.
	Items []NestedWriteItem
}

// NestedWriteItem is one element of a nested write's batch.
type NestedWriteItem struct {
	Where  *Filter               // connect/disconnect/update/delete/upsert target
	Create map[string]FieldValue // create / connectOrCreate create-branch / upsert create-branch
	Update map[string]FieldValue // update / upsert update-branch
}

// OrderBy is one sort key.
type OrderBy struct {
	Field     string
	Direction SortDirection
}

// SortDirection is the direction of one OrderBy entry.
type SortDirection string

const (
	Asc  SortDirection = "asc"
	Desc SortDirection = "desc"
)

// AggregateFunc is an aggregation function name.
type AggregateFunc string

const (
	Count AggregateFunc = "count"
	Sum   AggregateFunc = "sum"
	Avg   AggregateFunc = "avg"
	Min   AggregateFunc = "min"
	Max   AggregateFunc = "max"
)

// Aggregation is one requested aggregate expression.
type Aggregation struct {
	Function AggregateFunc
	Field    string
	Alias    string
}

// LogicalOperator combines Filter conditions/nested filters.
type LogicalOperator string

const (
	And LogicalOperator = "AND"
	Or  LogicalOperator = "OR"
	Not LogicalOperator = "NOT"
)

// ComparisonOperator is a single condition's comparison kind.
type ComparisonOperator string

const (
	Equals     ComparisonOperator = "equals"
	NotEquals  ComparisonOperator = "not"
	In         ComparisonOperator = "in"
	NotIn      ComparisonOperator = "notIn"
	Lt         ComparisonOperator = "lt"
	Lte        ComparisonOperator = "lte"
	Gt         ComparisonOperator = "gt"
	Gte        ComparisonOperator = "gte"
	Contains   ComparisonOperator = "contains"
	StartsWith ComparisonOperator = "startsWith"
	EndsWith   ComparisonOperator = "endsWith"
	IsEmpty    ComparisonOperator = "isEmpty"
	Has        ComparisonOperator = "has"
	HasEvery   ComparisonOperator = "hasEvery"
	HasSome    ComparisonOperator = "hasSome"
	IsNull     ComparisonOperator = "isNull"
	Search     ComparisonOperator = "search"
	Some       ComparisonOperator = "some"
	Every      ComparisonOperator = "every"
	None       ComparisonOperator = "none"
)

// FilterMode selects case sensitivity for string comparisons.
type FilterMode string

const (
	ModeDefault     FilterMode = "default"
	ModeInsensitive FilterMode = "insensitive"
)

// BindRef is a placeholder Literal naming an upstream op's result field
// instead of a literal value: the graph builder uses it to scope a
// nested-write filter to its parent (spec.md §4.4), leaving resolution to
// the SQL builder/assembler rather than binding a literal at graph time.
type BindRef struct {
	OpID  string
	Field string
}

// Condition is a single field-level predicate.
type Condition struct {
	Field    string
	Operator ComparisonOperator
	Value    Literal
	Mode     FilterMode

	// RelationFilter is populated when Operator is Some/Every/None: the
	// nested Filter applies to rows of the related model.
	RelationFilter *Filter
}

// Filter is a tree of conditions combined by a logical operator, with
// support for nested filter groups (spec.md §4.1).
type Filter struct {
	Operator      LogicalOperator
	Conditions    []Condition
	NestedFilters []Filter
}

// SelectionKind tags how a selection set entry was requested.
type SelectionKind string

const (
	SelectScalar   SelectionKind = "scalar"
	SelectRelation SelectionKind = "relation"
)

// Selection is the ordered set of requested fields (spec.md §4.1 and §6).
type Selection struct {
	AllScalars    bool // `$scalars: true`
	AllComposites bool // `$composites: true`

	// Entries preserves AST document order for deterministic dataMap output
	// (spec.md §9 "Determinism").
	Entries []SelectionEntry
}

// SelectionEntry is one requested field: a scalar marker, or a nested
// operation (its own Arguments/Selection) for a relation.
type SelectionEntry struct {
	Name   string
	Kind   SelectionKind
	Nested *Node // populated when Kind == SelectRelation
}
