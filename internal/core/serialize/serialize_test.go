package serialize

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relionix/queryc/internal/core/program"
	"github.com/relionix/queryc/internal/core/types"
)

func sampleProgram() *program.Program {
	exec := &program.Expr{
		Kind:    program.ExprExecute,
		Binding: "0",
		SQL:     `INSERT INTO "User" ("name") VALUES ($1) RETURNING "id"`,
		Params:  []*program.Expr{{Kind: program.ExprConst, Literal: "a"}},
	}
	return &program.Program{
		Body:  exec,
		Binds: []program.BindEntry{{Name: "0", Value: exec}},
	}
}

func TestBuild_PreservesBindOrder(t *testing.T) {
	p := &program.Program{
		Body: &program.Expr{Kind: program.ExprConst, Literal: nil},
		Binds: []program.BindEntry{
			{Name: "0", Value: &program.Expr{Kind: program.ExprConst, Literal: "a"}},
			{Name: "1", Value: &program.Expr{Kind: program.ExprConst, Literal: "b"}},
			{Name: "2", Value: &program.Expr{Kind: program.ExprConst, Literal: "c"}},
		},
	}

	doc := Build(p, nil)
	keys := []string{}
	for pair := doc.DataMap.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	assert.Equal(t, []string{"0", "1", "2"}, keys)
}

func TestBuild_EnumsPreserveDeclarationOrder(t *testing.T) {
	enums := []types.EnumMapping{
		{Name: "Role", Variants: []types.EnumValuePair{{DBValue: "admin", Variant: "Admin"}, {DBValue: "user", Variant: "User"}}},
		{Name: "Status", Variants: []types.EnumValuePair{{DBValue: "active", Variant: "Active"}}},
	}

	doc := Build(sampleProgram(), enums)
	keys := []string{}
	for pair := doc.Enums.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	assert.Equal(t, []string{"Role", "Status"}, keys)
}

func TestMarshalJSON_RoundTripsShape(t *testing.T) {
	doc := Build(sampleProgram(), nil)
	b, err := MarshalJSON(doc)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Contains(t, out, "body")
	assert.Contains(t, out, "dataMap")
	assert.Contains(t, out, "enums")

	body := out["body"].(map[string]interface{})
	assert.Equal(t, string(program.ExprExecute), body["kind"])
	assert.Equal(t, `INSERT INTO "User" ("name") VALUES ($1) RETURNING "id"`, body["sql"])
}

func TestMarshalJSON_IsDeterministicAcrossCalls(t *testing.T) {
	doc := Build(sampleProgram(), []types.EnumMapping{
		{Name: "Role", Variants: []types.EnumValuePair{{DBValue: "admin", Variant: "Admin"}}},
	})
	a, err := MarshalJSON(doc)
	require.NoError(t, err)
	b, err := MarshalJSON(doc)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestMarshalMsgpack_Succeeds(t *testing.T) {
	doc := Build(sampleProgram(), nil)
	b, err := MarshalMsgpack(doc)
	require.NoError(t, err)
	assert.NotEmpty(t, b)
}

// TestBuild_JoinExprCarriesItsFieldsOnTheWire guards against a join expr
// serializing down to a bare {"kind": "join"} with everything else dropped.
func TestBuild_JoinExprCarriesItsFieldsOnTheWire(t *testing.T) {
	join := &program.Expr{
		Kind:       program.ExprJoin,
		JoinParent: &program.Expr{Kind: program.ExprVar, Name: "@parent"},
		JoinChild:  &program.Expr{Kind: program.ExprQuery, Binding: "@nested$posts", SQL: "SELECT 1"},
		JoinKeys:   []program.JoinKey{{Left: "id", Right: "authorId"}},
		JoinAlias:  "@nested$posts",
		JoinUnique: false,
	}
	p := &program.Program{Body: join}

	doc := Build(p, nil)
	body := doc.Body.(map[string]interface{})
	assert.Equal(t, string(program.ExprJoin), body["kind"])
	assert.Equal(t, "@nested$posts", body["alias"])
	assert.Equal(t, false, body["unique"])

	parent := body["parent"].(map[string]interface{})
	assert.Equal(t, "@parent", parent["name"])
	child := body["child"].(map[string]interface{})
	assert.Equal(t, "SELECT 1", child["sql"])

	keys := body["keys"].([]map[string]string)
	require.Len(t, keys, 1)
	assert.Equal(t, "id", keys[0]["left"])
	assert.Equal(t, "authorId", keys[0]["right"])

	assert.Nil(t, body["body"])
}
