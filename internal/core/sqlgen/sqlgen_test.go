package sqlgen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relionix/queryc/internal/core/dialect"
	"github.com/relionix/queryc/internal/core/query/ast"
	"github.com/relionix/queryc/internal/core/query/graph"
	"github.com/relionix/queryc/internal/core/schema"
	"github.com/relionix/queryc/internal/core/schema/domain"
)

func userRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	s := &domain.Schema{
		Models: []domain.Model{{
			Name: "User",
			Fields: []domain.Field{
				{Name: "id", Kind: domain.FieldScalar, Scalar: domain.Int64},
				{Name: "email", Kind: domain.FieldScalar, Scalar: domain.String},
			},
			PK: &domain.PrimaryKey{Fields: []string{"id"}},
		}},
	}
	reg, err := schema.New(s)
	require.NoError(t, err)
	return reg
}

func TestRenderRead_PlaceholdersPerDialect(t *testing.T) {
	reg := userRegistry(t)
	op := &graph.Op{
		Kind: graph.OpRead, Model: "User",
		Node: &ast.Node{Action: ast.FindMany, Model: "User", Arguments: ast.Arguments{
			Where: &ast.Filter{Operator: ast.And, Conditions: []ast.Condition{{Field: "email", Operator: ast.Equals, Value: "a@b.com"}}},
		}},
	}

	pg, _ := dialect.For(dialect.Postgres)
	stmt, err := Render(op, reg, pg)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `"email" = $1`)
	require.Len(t, stmt.Params, 1)
	assert.Equal(t, "a@b.com", stmt.Params[0].Literal)

	my, _ := dialect.For(dialect.MySQL)
	stmt, err = Render(op, reg, my)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "`email` = ?")

	ms, _ := dialect.For(dialect.SQLServer)
	stmt, err = Render(op, reg, ms)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "[email] = @P1")
}

func TestRenderInsert_ReturningOnlyWhenSupported(t *testing.T) {
	reg := userRegistry(t)
	op := &graph.Op{
		Kind: graph.OpInsert, Model: "User",
		Node: &ast.Node{Action: ast.CreateOne, Model: "User", Arguments: ast.Arguments{
			Data: map[string]ast.FieldValue{"email": {Kind: ast.ValueLiteral, Value: "a@b.com"}},
		}},
	}

	pg, _ := dialect.For(dialect.Postgres)
	stmt, err := Render(op, reg, pg)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "RETURNING")

	my, _ := dialect.For(dialect.MySQL)
	stmt, err = Render(op, reg, my)
	require.NoError(t, err)
	assert.NotContains(t, stmt.SQL, "RETURNING")
}

func TestRenderInsert_FKBoundFromUpstreamOp(t *testing.T) {
	reg := userRegistry(t)
	op := &graph.Op{
		Kind: graph.OpInsert, Model: "User",
		Node:       &ast.Node{Action: ast.CreateOne, Model: "User", Arguments: ast.Arguments{Data: map[string]ast.FieldValue{}}},
		FKBindings: map[string]graph.FKRef{"email": {OpID: "op1", Field: "id"}},
	}
	pg, _ := dialect.For(dialect.Postgres)
	stmt, err := Render(op, reg, pg)
	require.NoError(t, err)
	require.Len(t, stmt.Params, 1)
	assert.Equal(t, "op1", stmt.Params[0].BindFrom)
	assert.Equal(t, "id", stmt.Params[0].BindField)
}

func TestRenderInsert_ReturnRowReturnsAllColumns(t *testing.T) {
	reg := userRegistry(t)
	op := &graph.Op{
		Kind: graph.OpInsert, Model: "User", ReturnRow: true,
		Node: &ast.Node{Action: ast.CreateManyAndReturn, Model: "User", Arguments: ast.Arguments{
			Data: map[string]ast.FieldValue{"email": {Kind: ast.ValueLiteral, Value: "a@b.com"}},
		}},
	}

	pg, _ := dialect.For(dialect.Postgres)
	stmt, err := Render(op, reg, pg)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `RETURNING "id", "email"`)

	ms, _ := dialect.For(dialect.SQLServer)
	stmt, err = Render(op, reg, ms)
	require.NoError(t, err)
	assert.True(t, strings.Index(stmt.SQL, "OUTPUT") < strings.Index(stmt.SQL, "VALUES"))

	my, _ := dialect.For(dialect.MySQL)
	_, err = Render(op, reg, my)
	assert.Error(t, err)
}

func TestRenderUpdate_ReturnRowPlacesOutputBeforeWhere(t *testing.T) {
	reg := userRegistry(t)
	op := &graph.Op{
		Kind: graph.OpUpdateMany, Model: "User", ReturnRow: true,
		Node: &ast.Node{Action: ast.UpdateManyAndReturn, Model: "User", Arguments: ast.Arguments{
			Data:  map[string]ast.FieldValue{"email": {Kind: ast.ValueLiteral, Value: "new@b.com"}},
			Where: &ast.Filter{Conditions: []ast.Condition{{Field: "id", Operator: ast.Equals, Value: int64(1)}}},
		}},
	}

	ms, _ := dialect.For(dialect.SQLServer)
	stmt, err := Render(op, reg, ms)
	require.NoError(t, err)
	assert.True(t, strings.Index(stmt.SQL, "OUTPUT") < strings.Index(stmt.SQL, "WHERE"))

	pg, _ := dialect.For(dialect.Postgres)
	stmt, err = Render(op, reg, pg)
	require.NoError(t, err)
	assert.True(t, strings.Index(stmt.SQL, "WHERE") < strings.Index(stmt.SQL, "RETURNING"))
}

func TestRenderJoinInsert_OnConflictPerDialect(t *testing.T) {
	op := &graph.Op{Kind: graph.OpJoinInsert, JoinTable: "_PosttoTag", DependsOn: []string{"op1", "op2"}}

	pg, _ := dialect.For(dialect.Postgres)
	stmt, err := Render(op, nil, pg)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "ON CONFLICT DO NOTHING")

	my, _ := dialect.For(dialect.MySQL)
	stmt, err = Render(op, nil, my)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "INSERT IGNORE")
}

func TestRenderUpdate_BindRefConditionReferencesUpstreamOp(t *testing.T) {
	reg := userRegistry(t)
	op := &graph.Op{
		Kind: graph.OpUpdateMany, Model: "User",
		Node: &ast.Node{Action: ast.UpdateMany, Model: "User", Arguments: ast.Arguments{
			Data: map[string]ast.FieldValue{"email": {Kind: ast.ValueLiteral, Value: nil}},
			Where: &ast.Filter{Operator: ast.And, Conditions: []ast.Condition{
				{Field: "id", Operator: ast.Equals, Value: ast.BindRef{OpID: "op1", Field: "id"}},
			}},
		}},
	}
	pg, _ := dialect.For(dialect.Postgres)
	stmt, err := Render(op, reg, pg)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, `"id" = $2`)
	require.Len(t, stmt.Params, 2)
	assert.Equal(t, "op1", stmt.Params[1].BindFrom)
	assert.Equal(t, "id", stmt.Params[1].BindField)
}

func TestRenderDelete(t *testing.T) {
	reg := userRegistry(t)
	op := &graph.Op{
		Kind: graph.OpDelete, Model: "User",
		Node: &ast.Node{Action: ast.DeleteOne, Model: "User", Arguments: ast.Arguments{
			Where: &ast.Filter{Operator: ast.And, Conditions: []ast.Condition{{Field: "id", Operator: ast.Equals, Value: int64(1)}}},
		}},
	}
	pg, _ := dialect.For(dialect.Postgres)
	stmt, err := Render(op, reg, pg)
	require.NoError(t, err)
	assert.Contains(t, stmt.SQL, "DELETE FROM")
	assert.Contains(t, stmt.SQL, `"id" = $1`)
}
