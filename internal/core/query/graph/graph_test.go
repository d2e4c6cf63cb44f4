package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relionix/queryc/internal/core/query/ast"
	"github.com/relionix/queryc/internal/core/schema"
	"github.com/relionix/queryc/internal/core/schema/domain"
)

// testRegistry builds a small User/Post/Tag schema: Post.author is a
// one-to-many relation FK-owned by Post itself, Post.tags is an implicit
// many-to-many relation to Tag.
func testRegistry(t *testing.T) *schema.Registry {
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
					{Name: "tags", Kind: domain.FieldRelation, Relation: "PostTags"},
				},
				PK: &domain.PrimaryKey{Fields: []string{"id"}},
			},
			{
				Name: "Tag",
				Fields: []domain.Field{
					{Name: "id", Kind: domain.FieldScalar, Scalar: domain.Int64, Cardinality: domain.Required},
					{Name: "name", Kind: domain.FieldScalar, Scalar: domain.String, Cardinality: domain.Required},
					{Name: "posts", Kind: domain.FieldRelation, Relation: "PostTags"},
				},
				PK: &domain.PrimaryKey{Fields: []string{"id"}},
			},
		},
		Relations: []domain.Relation{
			{
				Name: "PostAuthor", FromModel: "Post", ToModel: "User",
				FieldOnFrom: "author", FieldOnTo: "posts",
				FromFields: []string{"authorId"}, ToFields: []string{"id"},
				Kind: domain.OneToMany, Link: domain.InlineFKOnFrom,
			},
			{
				Name: "PostTags", FromModel: "Post", ToModel: "Tag",
				FieldOnFrom: "tags", FieldOnTo: "posts",
				FromFields: []string{"id"}, ToFields: []string{"id"},
				Kind: domain.ManyToMany, Link: domain.ImplicitJoinTable,
			},
		},
	}
	reg, err := schema.New(s)
	require.NoError(t, err)
	return reg
}

func TestBuild_CreateWithNestedConnect(t *testing.T) {
	reg := testRegistry(t)

	n := &ast.Node{
		Action: ast.CreateOne,
		Model:  "Post",
		Arguments: ast.Arguments{
			Data: map[string]ast.FieldValue{
				"title": {Kind: ast.ValueLiteral, Value: "hello"},
				"author": {Kind: ast.ValueNested, Nested: &ast.NestedWrite{
					Op:    ast.NestedConnect,
					Items: []ast.NestedWriteItem{{Where: &ast.Filter{Conditions: []ast.Condition{{Field: "id", Operator: ast.Equals, Value: int64(1)}}}}},
				}},
			},
		},
	}

	g, err := Build(n, reg)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)

	insert := g.Nodes[0].Op
	assert.Equal(t, OpInsert, insert.Kind)
	assert.Equal(t, "Post", insert.Model)

	check := g.Nodes[1].Op
	assert.Equal(t, OpRead, check.Kind)
	require.Len(t, check.Validations, 1)
	assert.Equal(t, RowCountNeq0, check.Validations[0].Kind)
	assert.Equal(t, MissingRelatedRecord, check.Validations[0].OrRaise)

	// The insert's FK column is bound to the connect-check's result, not a
	// literal, since Post itself carries authorId.
	assert.Equal(t, FKRef{OpID: check.ID, Field: "id"}, insert.FKBindings["authorId"])
	assert.Contains(t, insert.DependsOn, check.ID)
}

func TestBuild_CreateWithManyToManyConnect(t *testing.T) {
	reg := testRegistry(t)

	n := &ast.Node{
		Action: ast.CreateOne,
		Model:  "Post",
		Arguments: ast.Arguments{
			Data: map[string]ast.FieldValue{
				"title": {Kind: ast.ValueLiteral, Value: "hello"},
				"tags": {Kind: ast.ValueNested, Nested: &ast.NestedWrite{
					Op: ast.NestedConnect,
					Items: []ast.NestedWriteItem{
						{Where: &ast.Filter{Conditions: []ast.Condition{{Field: "id", Operator: ast.Equals, Value: int64(1)}}}},
						{Where: &ast.Filter{Conditions: []ast.Condition{{Field: "id", Operator: ast.Equals, Value: int64(2)}}}},
					},
				}},
			},
		},
	}

	g, err := Build(n, reg)
	require.NoError(t, err)
	// insert + (check, joinInsert) * 2
	require.Len(t, g.Nodes, 5)

	insert := g.Nodes[0].Op
	assert.Equal(t, OpInsert, insert.Kind)

	for _, i := range []int{1, 3} {
		check := g.Nodes[i].Op
		assert.Equal(t, OpRead, check.Kind)
		require.Len(t, check.Validations, 1)
		assert.Equal(t, MissingRelatedRecord, check.Validations[0].OrRaise)
	}
	for _, i := range []int{2, 4} {
		join := g.Nodes[i].Op
		assert.Equal(t, OpJoinInsert, join.Kind)
		assert.Equal(t, "_PosttoTag", join.JoinTable)
		assert.Equal(t, insert.ID, join.DependsOn[0])
	}
}

func TestBuild_Upsert(t *testing.T) {
	reg := testRegistry(t)

	n := &ast.Node{
		Action: ast.UpsertOne,
		Model:  "User",
		Arguments: ast.Arguments{
			Where:        &ast.Filter{Conditions: []ast.Condition{{Field: "id", Operator: ast.Equals, Value: int64(1)}}},
			UpsertCreate: map[string]ast.FieldValue{"name": {Kind: ast.ValueLiteral, Value: "new"}},
			UpsertUpdate: map[string]ast.FieldValue{"name": {Kind: ast.ValueLiteral, Value: "updated"}},
		},
	}

	g, err := Build(n, reg)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)
	assert.Equal(t, KindOp, g.Nodes[0].Kind)
	assert.Equal(t, KindBranch, g.Nodes[1].Kind)

	branch := g.Nodes[1].Branch
	require.NotNil(t, branch.Then)
	require.NotNil(t, branch.Else)
	require.Len(t, branch.Then.Nodes, 1)
	assert.Equal(t, OpUpdate, branch.Then.Nodes[0].Op.Kind)
	require.Len(t, branch.Else.Nodes, 1)
	assert.Equal(t, OpInsert, branch.Else.Nodes[0].Op.Kind)
}

func TestBuild_DeleteOneValidatesAffectedRowCount(t *testing.T) {
	reg := testRegistry(t)
	n := &ast.Node{Action: ast.DeleteOne, Model: "User", Arguments: ast.Arguments{
		Where: &ast.Filter{Conditions: []ast.Condition{{Field: "id", Operator: ast.Equals, Value: int64(1)}}},
	}}

	g, err := Build(n, reg)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 1)
	del := g.Nodes[0].Op
	require.Len(t, del.Validations, 1)
	assert.Equal(t, AffectedRowCountEq1, del.Validations[0].Kind)
	assert.Equal(t, RecordNotFound, del.Validations[0].OrRaise)
}

func TestBuild_CreateManyAndReturnMarksEveryOp(t *testing.T) {
	reg := testRegistry(t)
	n := &ast.Node{
		Action: ast.CreateManyAndReturn,
		Model:  "Tag",
		Arguments: ast.Arguments{
			CreateMany: []map[string]ast.FieldValue{
				{"name": {Kind: ast.ValueLiteral, Value: "a"}},
				{"name": {Kind: ast.ValueLiteral, Value: "b"}},
			},
		},
	}

	g, err := Build(n, reg)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)
	for _, gn := range g.Nodes {
		assert.True(t, gn.Op.ReturnRow)
	}
}

func TestBuild_UpdateManyAndReturnMarksOp(t *testing.T) {
	reg := testRegistry(t)
	n := &ast.Node{
		Action: ast.UpdateManyAndReturn,
		Model:  "Tag",
		Arguments: ast.Arguments{
			Data: map[string]ast.FieldValue{"name": {Kind: ast.ValueLiteral, Value: "x"}},
		},
	}

	g, err := Build(n, reg)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 1)
	assert.True(t, g.Nodes[0].Op.ReturnRow)
}

func TestBuild_FindManyWithRelationSelectionJoinsChildRead(t *testing.T) {
	reg := testRegistry(t)

	n := &ast.Node{
		Action: ast.FindMany,
		Model:  "Post",
		Selection: ast.Selection{
			AllScalars: true,
			Entries: []ast.SelectionEntry{
				{Name: "author", Kind: ast.SelectRelation, Nested: &ast.Node{
					Action:    ast.FindMany,
					Selection: ast.Selection{AllScalars: true},
				}},
			},
		},
	}

	g, err := Build(n, reg)
	require.NoError(t, err)
	// The selected relation must not spawn a second top-level statement: it
	// is only reachable through the parent's Joins slice.
	require.Len(t, g.Nodes, 1)

	parent := g.Nodes[0].Op
	require.Len(t, parent.Joins, 1)
	join := parent.Joins[0]
	assert.Equal(t, "author", join.Alias)
	assert.Equal(t, "User", join.Child.Model)
	assert.Equal(t, OpRead, join.Child.Kind)
	assert.Equal(t, []string{"authorId"}, join.ParentFields)
	assert.Equal(t, []string{"id"}, join.ChildFields)
	assert.True(t, join.Single)
}

func TestBuild_FindManyWithToManyRelationSelectionIsNotSingle(t *testing.T) {
	reg := testRegistry(t)

	n := &ast.Node{
		Action: ast.FindMany,
		Model:  "User",
		Selection: ast.Selection{
			AllScalars: true,
			Entries: []ast.SelectionEntry{
				{Name: "posts", Kind: ast.SelectRelation, Nested: &ast.Node{
					Action:    ast.FindMany,
					Selection: ast.Selection{AllScalars: true},
				}},
			},
		},
	}

	g, err := Build(n, reg)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 1)

	join := g.Nodes[0].Op.Joins[0]
	assert.Equal(t, "Post", join.Child.Model)
	assert.Equal(t, []string{"id"}, join.ParentFields)
	assert.Equal(t, []string{"authorId"}, join.ChildFields)
	assert.False(t, join.Single)
}

// compositeRegistry builds a Tenant/Ticket schema where Ticket's relation to
// Tenant is carried by a two-column composite key, to exercise fkColumns
// threading every column through instead of truncating to the first.
func compositeRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	s := &domain.Schema{
		Datasources: []domain.Datasource{{Name: "db", Provider: domain.Postgres}},
		Models: []domain.Model{
			{
				Name: "Tenant",
				Fields: []domain.Field{
					{Name: "id", Kind: domain.FieldScalar, Scalar: domain.Int64, Cardinality: domain.Required},
					{Name: "region", Kind: domain.FieldScalar, Scalar: domain.String, Cardinality: domain.Required},
					{Name: "tickets", Kind: domain.FieldRelation, Relation: "TicketTenant"},
				},
				PK: &domain.PrimaryKey{Fields: []string{"id", "region"}},
			},
			{
				Name: "Ticket",
				Fields: []domain.Field{
					{Name: "id", Kind: domain.FieldScalar, Scalar: domain.Int64, Cardinality: domain.Required},
					{Name: "tenantId", Kind: domain.FieldScalar, Scalar: domain.Int64, Cardinality: domain.Required},
					{Name: "tenantRegion", Kind: domain.FieldScalar, Scalar: domain.String, Cardinality: domain.Required},
					{Name: "tenant", Kind: domain.FieldRelation, Relation: "TicketTenant"},
				},
				PK: &domain.PrimaryKey{Fields: []string{"id"}},
			},
		},
		Relations: []domain.Relation{
			{
				Name: "TicketTenant", FromModel: "Ticket", ToModel: "Tenant",
				FieldOnFrom: "tenant", FieldOnTo: "tickets",
				FromFields: []string{"tenantId", "tenantRegion"}, ToFields: []string{"id", "region"},
				Kind: domain.OneToMany, Link: domain.InlineFKOnFrom,
			},
		},
	}
	reg, err := schema.New(s)
	require.NoError(t, err)
	return reg
}

func TestBuild_CompositeRelationKeyBindsEveryColumn(t *testing.T) {
	reg := compositeRegistry(t)

	n := &ast.Node{
		Action: ast.CreateOne,
		Model:  "Ticket",
		Arguments: ast.Arguments{
			Data: map[string]ast.FieldValue{
				"tenant": {Kind: ast.ValueNested, Nested: &ast.NestedWrite{
					Op: ast.NestedConnect,
					Items: []ast.NestedWriteItem{{Where: &ast.Filter{Conditions: []ast.Condition{
						{Field: "id", Operator: ast.Equals, Value: int64(1)},
						{Field: "region", Operator: ast.Equals, Value: "us"},
					}}}},
				}},
			},
		},
	}

	g, err := Build(n, reg)
	require.NoError(t, err)
	require.Len(t, g.Nodes, 2)

	insert := g.Nodes[0].Op
	check := g.Nodes[1].Op
	assert.Equal(t, FKRef{OpID: check.ID, Field: "id"}, insert.FKBindings["tenantId"])
	assert.Equal(t, FKRef{OpID: check.ID, Field: "region"}, insert.FKBindings["tenantRegion"])
}

func TestBuild_UnknownRelationField(t *testing.T) {
	reg := testRegistry(t)
	n := &ast.Node{
		Action: ast.CreateOne, Model: "Post",
		Arguments: ast.Arguments{Data: map[string]ast.FieldValue{
			"nope": {Kind: ast.ValueNested, Nested: &ast.NestedWrite{Op: ast.NestedConnect}},
		}},
	}
	_, err := Build(n, reg)
	assert.Error(t, err)
}
