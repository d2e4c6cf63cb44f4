// Package domain contains the in-memory schema model the compiler reads.
// Nothing here parses or validates a schema source; a schema arrives
// already validated (see Request Decoding and the external schema parser
// this package has a contract with but does not implement).
package domain

// Provider identifies a SQL dialect family a datasource targets.
type Provider string

const (
	Postgres    Provider = "postgres"
	MySQL       Provider = "mysql"
	SQLite      Provider = "sqlite"
	SQLServer   Provider = "mssql"
	CockroachDB Provider = "cockroachdb"
)

// Datasource describes a connection target and the namespaces it exposes.
type Datasource struct {
	Name     string
	Provider Provider
	Schemas  []string // multi-schema namespace list; empty means the default namespace
}

// Schema is the read-only root of the schema model. It is loaded once per
// session and shared freely across concurrent compilations.
type Schema struct {
	Datasources []Datasource
	Models      []Model
	Enums       []Enum
	Relations   []Relation
}

// Model is a unique-named entity within its namespace.
type Model struct {
	Name      string
	Namespace string // empty means the datasource default
	Table     string // mapped table name; defaults to Name when empty
	Fields    []Field
	PK        *PrimaryKey
	Uniques   [][]string
	Indices   []Index
}

// FieldKind distinguishes a plain column from a relation or a composite type.
type FieldKind string

const (
	FieldScalar   FieldKind = "scalar"
	FieldRelation FieldKind = "relation"
	FieldComposite FieldKind = "composite"
)

// ScalarType is the field-level type vocabulary before dialect mapping.
type ScalarType string

const (
	Int32    ScalarType = "Int32"
	Int64    ScalarType = "Int64"
	Float    ScalarType = "Float"
	Double   ScalarType = "Double"
	Decimal  ScalarType = "Decimal"
	Boolean  ScalarType = "Boolean"
	String   ScalarType = "String"
	Bytes    ScalarType = "Bytes"
	Date     ScalarType = "Date"
	Time     ScalarType = "Time"
	DateTime ScalarType = "DateTime"
	Json     ScalarType = "Json"
	Uuid     ScalarType = "Uuid"
	EnumRef  ScalarType = "Enum" // EnumName on Field carries the referenced enum
)

// Cardinality is how many values a field can hold.
type Cardinality string

const (
	Required Cardinality = "required"
	Optional Cardinality = "optional"
	List     Cardinality = "list"
)

// DefaultKind distinguishes the shape of a field's default value.
type DefaultKind string

const (
	NoDefault      DefaultKind = ""
	DefaultLiteral DefaultKind = "literal"
	DefaultFunc    DefaultKind = "function"
	DefaultEnum    DefaultKind = "enumVariant"
)

// Default is a field's default value, respecting the field's type.
type Default struct {
	Kind    DefaultKind
	Literal interface{}
	Func    string // e.g. "now", "autoincrement", "uuid", "cuid"
	Variant string // enum variant name, when Kind == DefaultEnum
}

// Field is a single column, relation endpoint, or composite aggregate on a Model.
type Field struct {
	Name        string
	Kind        FieldKind
	Scalar      ScalarType // meaningful when Kind == FieldScalar
	EnumName    string     // meaningful when Scalar == EnumRef
	CompositeOf string     // composite type name, when Kind == FieldComposite
	Cardinality Cardinality
	Default     *Default
	UpdatedAt   bool
	Column      string // mapped column name; defaults to Name when empty
	Relation    string // Relation.Name this field is an endpoint of, when Kind == FieldRelation
}

// PrimaryKey is a model's primary key. Composite keys have at least two
// fields; field order is part of the key's identity.
type PrimaryKey struct {
	Name   string
	Fields []string
}

func (pk *PrimaryKey) Composite() bool {
	return pk != nil && len(pk.Fields) >= 2
}

// IndexType is the storage strategy for an Index.
type IndexType string

const (
	BTreeIndex IndexType = "BTree"
	HashIndex  IndexType = "Hash"
)

// Index is a non-primary-key index on a model.
type Index struct {
	Name   string
	Fields []string
	Unique bool
	Type   IndexType
}

// RelationKind is the cardinality shape of a relation.
type RelationKind string

const (
	OneToOne   RelationKind = "one-to-one"
	OneToMany  RelationKind = "one-to-many"
	ManyToMany RelationKind = "many-to-many"
)

// LinkStrategy is where the relation's foreign key(s) physically live.
type LinkStrategy string

const (
	InlineFKOnFrom    LinkStrategy = "inline-fk-on-from"
	InlineFKOnTo      LinkStrategy = "inline-fk-on-to"
	ImplicitJoinTable LinkStrategy = "implicit-join-table"
	ExplicitJoinModel LinkStrategy = "explicit-join-model"
)

// ReferentialAction is a foreign-key action for delete or update.
type ReferentialAction string

const (
	Cascade    ReferentialAction = "Cascade"
	SetNull    ReferentialAction = "SetNull"
	SetDefault ReferentialAction = "SetDefault"
	Restrict   ReferentialAction = "Restrict"
	NoAction   ReferentialAction = "NoAction"
)

// Relation is the single authoritative description of a link between two
// models. Every relation field on either model's Field.Relation points back
// to a Relation.Name here; there is exactly one Relation per link, never one
// per side, so the FK location (link side) is never ambiguous.
type Relation struct {
	Name       string
	FromModel  string
	ToModel    string
	FieldOnFrom string // name of the relation field on FromModel
	FieldOnTo   string // name of the relation field on ToModel; empty if the back-relation isn't exposed
	FromFields  []string // link columns on FromModel (the FK when Link == InlineFKOnFrom); >=2 for a composite link
	ToFields    []string // link columns on ToModel (the FK when Link == InlineFKOnTo)
	Kind        RelationKind
	Link        LinkStrategy
	JoinModel   string // explicit join model name, when Link == ExplicitJoinModel
	OnDelete    ReferentialAction
	OnUpdate    ReferentialAction
}

// Enum is an ordered set of (variant, mapped-db-value) pairs.
type Enum struct {
	Name     string
	Variants []EnumVariant
}

// EnumVariant pairs a Go-facing variant name with its on-the-wire database value.
type EnumVariant struct {
	Name    string
	DBValue string
}
