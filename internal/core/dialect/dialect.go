// Package dialect implements the capability-record dispatch table described
// in spec.md §4.5: one record per SQL dialect, passed as a plain parameter
// into every emission pass so the same query graph renders different SQL
// without any per-dialect branching living in the SQL builder or the
// expression assembler. Modeled on the teacher's placeholder/dialect switch
// in v3/internal/core/query/compiler/compiler.go, generalized from three
// dialects to the five spec.md names and promoted from a handful of
// switch-cases into a capability struct so new dialects are additive.
package dialect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/relionix/queryc/internal/core/schema/domain"
)

// Name is a SQL dialect identifier, matching domain.Provider.
type Name string

const (
	Postgres    Name = "postgres"
	MySQL       Name = "mysql"
	SQLite      Name = "sqlite"
	SQLServer   Name = "mssql"
	CockroachDB Name = "cockroachdb"
)

// JSONRepresentation is how a dialect physically stores/renders JSON values.
type JSONRepresentation string

const (
	JSONB JSONRepresentation = "jsonb"
	JSONText JSONRepresentation = "text"
	JSONNative JSONRepresentation = "json"
)

// Capability is the dispatch table for one dialect's rendering rules.
// Every field is a pure function of the dialect; none of them touch a
// connection or I/O.
type Capability struct {
	Name Name

	// QuoteIdentifier quotes a single identifier (table, column, alias).
	QuoteIdentifier func(ident string) string

	// Placeholder renders the parameter placeholder for the n-th (1-based)
	// bound parameter.
	Placeholder func(n int) string

	// Returning reports whether INSERT/UPDATE/DELETE can carry a RETURNING
	// (or OUTPUT) clause.
	Returning bool

	// ReturningClause renders the RETURNING/OUTPUT clause for the given
	// column list; only called when Returning is true. SQL Server's OUTPUT
	// clause is positioned differently (before VALUES) — callers check
	// OutputBeforeValues to place it correctly.
	ReturningClause func(columns []string) string
	OutputBeforeValues bool

	// UpsertNative reports whether the dialect's native ON CONFLICT / ON
	// DUPLICATE KEY clause should be preferred. Per spec.md §4.3, upserts
	// are always compiled as an if/then/else branch regardless, so this
	// flag is informational only (kept for dialects that may special-case
	// conflict-target rendering inside that branch).
	UpsertNative bool

	// EnumCast renders an enum value reference cast to the dialect's native
	// enum-adjacent representation (spec.md §4.3 dialect quirks table).
	EnumCast func(expr string) string

	// IdentityColumnDDL names the auto-increment column type, used when
	// describing a model's generated default (informational; DDL itself is
	// the out-of-scope migration subsystem's job).
	IdentityColumnDDL string

	// JSONRepresentation names how JSON values are stored.
	JSONRepresentation JSONRepresentation

	// SupportsBoolean reports a native BOOLEAN type (SQLite and older MSSQL
	// represent booleans as 0/1 integers instead).
	SupportsBoolean bool

	// SupportsLateralJoin reports whether the join-read mode (spec.md §4.3,
	// lateral-style subselects) is available. Informational only: the SQL
	// builder does not read it, and joined relations are always compiled as
	// separate reads combined by a join expression.
	SupportsLateralJoin bool

	// IsolationBeforeBegin reports whether `SET TRANSACTION ISOLATION
	// LEVEL ...` must be emitted before BEGIN (MySQL) rather than after
	// (Postgres and the rest) — spec.md §9 open question, resolved here.
	IsolationBeforeBegin bool

	// LastInsertIDFunc names the dialect's last-insert-id function on
	// dialects without RETURNING (e.g. "LAST_INSERT_ID()" for MySQL).
	// Informational only: the SQL builder emits no follow-up read with it.
	LastInsertIDFunc string
}

// For returns the capability record for a dialect name.
func For(n Name) (Capability, error) {
	switch n {
	case Postgres:
		return postgresCapability, nil
	case MySQL:
		return mysqlCapability, nil
	case SQLite:
		return sqliteCapability, nil
	case SQLServer:
		return mssqlCapability, nil
	case CockroachDB:
		return cockroachCapability, nil
	default:
		return Capability{}, fmt.Errorf("dialect: unsupported dialect %q", n)
	}
}

// FromProvider maps a schema datasource provider to a dialect name.
func FromProvider(p domain.Provider) Name {
	return Name(p)
}

func doubleQuote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func backtick(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func bracket(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

var postgresCapability = Capability{
	Name:               Postgres,
	QuoteIdentifier:    doubleQuote,
	Placeholder:        func(n int) string { return fmt.Sprintf("$%d", n) },
	Returning:          true,
	ReturningClause:    func(cols []string) string { return "RETURNING " + strings.Join(cols, ", ") },
	EnumCast:           func(expr string) string { return expr + "::text" },
	IdentityColumnDDL:  "SERIAL",
	JSONRepresentation: JSONB,
	SupportsBoolean:    true,
	SupportsLateralJoin: true,
	IsolationBeforeBegin: false,
}

var cockroachCapability = func() Capability {
	c := postgresCapability
	c.Name = CockroachDB
	c.IdentityColumnDDL = "INT8 DEFAULT unique_rowid()"
	return c
}()

var mysqlCapability = Capability{
	Name:                MySQL,
	QuoteIdentifier:     backtick,
	Placeholder:         func(int) string { return "?" },
	Returning:           false,
	EnumCast:            func(expr string) string { return "CAST(" + expr + " AS CHAR)" },
	IdentityColumnDDL:   "AUTO_INCREMENT",
	JSONRepresentation:  JSONNative,
	SupportsBoolean:     true,
	SupportsLateralJoin: false,
	IsolationBeforeBegin: true,
	LastInsertIDFunc:    "LAST_INSERT_ID()",
}

var sqliteCapability = Capability{
	Name:                SQLite,
	QuoteIdentifier:     doubleQuote,
	Placeholder:         func(int) string { return "?" },
	Returning:           true,
	ReturningClause:     func(cols []string) string { return "RETURNING " + strings.Join(cols, ", ") },
	EnumCast:            func(expr string) string { return "CAST(" + expr + " AS TEXT)" },
	IdentityColumnDDL:   "INTEGER PRIMARY KEY",
	JSONRepresentation:  JSONText,
	SupportsBoolean:     false,
	SupportsLateralJoin: false,
	IsolationBeforeBegin: false,
}

var mssqlCapability = Capability{
	Name:            SQLServer,
	QuoteIdentifier: bracket,
	Placeholder:     func(n int) string { return fmt.Sprintf("@P%d", n) },
	Returning:       true,
	ReturningClause: func(cols []string) string {
		out := make([]string, len(cols))
		for i, c := range cols {
			out[i] = "INSERTED." + c
		}
		return "OUTPUT " + strings.Join(out, ", ")
	},
	OutputBeforeValues:  true,
	EnumCast:            func(expr string) string { return "CAST(" + expr + " AS NVARCHAR(MAX))" },
	IdentityColumnDDL:   "IDENTITY",
	JSONRepresentation:  JSONText,
	SupportsBoolean:     false,
	SupportsLateralJoin: false,
	IsolationBeforeBegin: false,
}

// JoinTableName derives the conventional implicit many-to-many join table
// name: the two related model names sorted lexicographically, joined with
// "to", prefixed with an underscore (the `_AtoB` convention named
// in spec.md §4.3's dialect table). Uses go-openapi/inflect to normalize
// each model name into its singular, capitalized form first, so join-table
// naming is stable regardless of how a model's own name was cased or
// pluralized in the schema source.
func JoinTableName(modelA, modelB string) string {
	a := inflect.Capitalize(inflect.Singularize(modelA))
	b := inflect.Capitalize(inflect.Singularize(modelB))
	names := []string{a, b}
	sort.Strings(names)
	return "_" + names[0] + "to" + names[1]
}
