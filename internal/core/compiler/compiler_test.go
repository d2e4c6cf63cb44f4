package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relionix/queryc/internal/core/dialect"
	"github.com/relionix/queryc/internal/core/query/graph"
	"github.com/relionix/queryc/internal/core/query/request"
	"github.com/relionix/queryc/internal/core/schema"
	"github.com/relionix/queryc/internal/core/schema/domain"
)

func testSchema(t *testing.T) *schema.Registry {
	t.Helper()
	s := &domain.Schema{
		Datasources: []domain.Datasource{{Name: "db", Provider: domain.Postgres}},
		Models: []domain.Model{
			{
				Name: "User",
				Fields: []domain.Field{
					{Name: "id", Kind: domain.FieldScalar, Scalar: domain.Int64, Cardinality: domain.Required},
					{Name: "name", Kind: domain.FieldScalar, Scalar: domain.String, Cardinality: domain.Required},
					{Name: "posts", Kind: domain.FieldRelation, Relation: "PostAuthor"},
				},
				PK: &domain.PrimaryKey{Fields: []string{"id"}},
			},
			{
				Name: "Post",
				Fields: []domain.Field{
					{Name: "id", Kind: domain.FieldScalar, Scalar: domain.Int64, Cardinality: domain.Required},
					{Name: "title", Kind: domain.FieldScalar, Scalar: domain.String, Cardinality: domain.Required},
					{Name: "authorId", Kind: domain.FieldScalar, Scalar: domain.Int64, Cardinality: domain.Required},
					{Name: "author", Kind: domain.FieldRelation, Relation: "PostAuthor"},
				},
				PK: &domain.PrimaryKey{Fields: []string{"id"}},
			},
		},
		Enums: []domain.Enum{{
			Name: "Role",
			Variants: []domain.EnumVariant{{Name: "Admin", DBValue: "admin"}, {Name: "Member", DBValue: "member"}},
		}},
		Relations: []domain.Relation{{
			Name: "PostAuthor", FromModel: "Post", ToModel: "User",
			FieldOnFrom: "author", FieldOnTo: "posts",
			FromFields: []string{"authorId"}, ToFields: []string{"id"},
			Kind: domain.OneToMany, Link: domain.InlineFKOnFrom,
		}},
	}
	reg, err := schema.New(s)
	require.NoError(t, err)
	return reg
}

func TestCompile_SimpleFindMany(t *testing.T) {
	reg := testSchema(t)
	c, err := New(reg, dialect.Postgres, nil)
	require.NoError(t, err)

	res, err := c.Compile(request.Raw{
		ModelName: "User", Action: "findMany",
		Query: request.RawQuery{Arguments: []byte(`{"where":{"name":{"equals":"a"}}}`)},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Document)
	assert.Empty(t, res.Guards)

	body := res.Document.Body.(map[string]interface{})
	assert.Equal(t, "query", body["kind"])
	assert.Contains(t, body["sql"], "SELECT")
}

func TestCompile_NestedConnectProducesGuard(t *testing.T) {
	reg := testSchema(t)
	c, err := New(reg, dialect.Postgres, nil)
	require.NoError(t, err)

	res, err := c.Compile(request.Raw{
		ModelName: "Post", Action: "createOne",
		Query: request.RawQuery{Arguments: []byte(`{"data":{"title":"hi","author":{"connect":{"id":1}}}}`)},
	})
	require.NoError(t, err)
	require.Contains(t, res.Guards, graph.MissingRelatedRecord)

	// One mutating statement (the create) plus the author existence read it
	// depends on, so the program is transactional; the dataMap carries both
	// ops in assembly order.
	assert.Equal(t, 2, res.Document.DataMap.Len())
}

func TestCompile_UnknownModelIsInvariantError(t *testing.T) {
	reg := testSchema(t)
	c, err := New(reg, dialect.Postgres, nil)
	require.NoError(t, err)

	_, err = c.Compile(request.Raw{
		ModelName: "Nope", Action: "findMany",
		Query: request.RawQuery{Arguments: []byte(`{}`)},
	})
	require.Error(t, err)
	var invErr *InvariantError
	require.ErrorAs(t, err, &invErr)
}

func TestCompileBatch_WrapsInTransaction(t *testing.T) {
	reg := testSchema(t)
	c, err := New(reg, dialect.Postgres, nil)
	require.NoError(t, err)

	res, err := c.CompileBatch(request.RawBatch{
		Batch: []request.Raw{
			{ModelName: "User", Action: "createOne", Query: request.RawQuery{Arguments: []byte(`{"data":{"name":"a"}}`)}},
			{ModelName: "User", Action: "createOne", Query: request.RawQuery{Arguments: []byte(`{"data":{"name":"b"}}`)}},
		},
		Transaction: &request.RawBatchTransaction{IsolationLevel: "Serializable"},
	})
	require.NoError(t, err)
	body := res.Document.Body.(map[string]interface{})
	assert.Equal(t, "transaction", body["kind"])
	assert.Equal(t, "Serializable", body["isolationLevel"])
}

func TestEnumMappings_IncludedInDocument(t *testing.T) {
	reg := testSchema(t)
	c, err := New(reg, dialect.Postgres, nil)
	require.NoError(t, err)

	res, err := c.Compile(request.Raw{
		ModelName: "User", Action: "findMany",
		Query: request.RawQuery{Arguments: []byte(`{}`)},
	})
	require.NoError(t, err)
	pair := res.Document.Enums.Oldest()
	require.NotNil(t, pair)
	assert.Equal(t, "Role", pair.Key)
}
