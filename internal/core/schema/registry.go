// Package schema indexes a parsed Schema for fast lookup by the compiler.
// Modeled on the teacher's MetadataRegistry, generalized so relations are
// looked up by (model, field name) from either endpoint and so composite
// primary keys and mapped table/column names are first-class.
package schema

import (
	"fmt"
	"sync"

	"github.com/relionix/queryc/internal/core/schema/domain"
)

// Registry is a read-only, concurrency-safe index over a Schema. It is
// built once per session and shared across compilations; nothing here
// mutates after New returns.
type Registry struct {
	mu sync.RWMutex

	schema *domain.Schema
	models map[string]*domain.Model
	enums  map[string]*domain.Enum

	// relationsByField[model][fieldName] resolves a relation field on a
	// model to its Relation plus which endpoint that model occupies.
	relationsByField map[string]map[string]RelationEndpoint
	relationsByName  map[string]*domain.Relation
}

// RelationEndpoint names which side of a Relation a model sits on, from the
// point of view of the field that was looked up.
type RelationEndpoint struct {
	Relation *domain.Relation
	IsFrom   bool // true when the looked-up model is Relation.FromModel
}

// LocalFields returns the columns on the looked-up model's side that carry
// the link (FK columns when IsFrom matches the link strategy's FK side).
func (e RelationEndpoint) LocalFields() []string {
	if e.IsFrom {
		return e.Relation.FromFields
	}
	return e.Relation.ToFields
}

// ForeignFields returns the columns on the other model referenced by the link.
func (e RelationEndpoint) ForeignFields() []string {
	if e.IsFrom {
		return e.Relation.ToFields
	}
	return e.Relation.FromFields
}

// OtherModel returns the model name on the far side of the relation.
func (e RelationEndpoint) OtherModel() string {
	if e.IsFrom {
		return e.Relation.ToModel
	}
	return e.Relation.FromModel
}

// New builds a Registry from an already-validated Schema.
func New(s *domain.Schema) (*Registry, error) {
	r := &Registry{
		schema:           s,
		models:           make(map[string]*domain.Model),
		enums:            make(map[string]*domain.Enum),
		relationsByField: make(map[string]map[string]RelationEndpoint),
		relationsByName:  make(map[string]*domain.Relation),
	}

	for i := range s.Models {
		m := &s.Models[i]
		if _, dup := r.models[m.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate model %q", m.Name)
		}
		r.models[m.Name] = m
	}
	for i := range s.Enums {
		e := &s.Enums[i]
		r.enums[e.Name] = e
	}
	for i := range s.Relations {
		rel := &s.Relations[i]
		r.relationsByName[rel.Name] = rel

		if rel.FieldOnFrom != "" {
			if r.relationsByField[rel.FromModel] == nil {
				r.relationsByField[rel.FromModel] = make(map[string]RelationEndpoint)
			}
			r.relationsByField[rel.FromModel][rel.FieldOnFrom] = RelationEndpoint{Relation: rel, IsFrom: true}
		}
		if rel.FieldOnTo != "" {
			if r.relationsByField[rel.ToModel] == nil {
				r.relationsByField[rel.ToModel] = make(map[string]RelationEndpoint)
			}
			r.relationsByField[rel.ToModel][rel.FieldOnTo] = RelationEndpoint{Relation: rel, IsFrom: false}
		}
	}

	return r, nil
}

// Schema returns the underlying schema (read-only).
func (r *Registry) Schema() *domain.Schema { return r.schema }

// Model looks up a model by name.
func (r *Registry) Model(name string) (*domain.Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("schema: model %q not found", name)
	}
	return m, nil
}

// Field looks up a field on a model by name.
func (r *Registry) Field(modelName, fieldName string) (*domain.Field, error) {
	m, err := r.Model(modelName)
	if err != nil {
		return nil, err
	}
	for i := range m.Fields {
		if m.Fields[i].Name == fieldName {
			return &m.Fields[i], nil
		}
	}
	return nil, fmt.Errorf("schema: field %q not found on model %q", fieldName, modelName)
}

// Enum looks up an enum by name.
func (r *Registry) Enum(name string) (*domain.Enum, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.enums[name]
	if !ok {
		return nil, fmt.Errorf("schema: enum %q not found", name)
	}
	return e, nil
}

// Relation resolves a relation field on a model to its Relation and endpoint.
func (r *Registry) Relation(modelName, fieldName string) (RelationEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byField, ok := r.relationsByField[modelName]
	if !ok {
		return RelationEndpoint{}, fmt.Errorf("schema: model %q has no relations", modelName)
	}
	ep, ok := byField[fieldName]
	if !ok {
		return RelationEndpoint{}, fmt.Errorf("schema: relation field %q not found on model %q", fieldName, modelName)
	}
	return ep, nil
}

// RelationByName resolves a relation by its own name.
func (r *Registry) RelationByName(name string) (*domain.Relation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rel, ok := r.relationsByName[name]
	if !ok {
		return nil, fmt.Errorf("schema: relation %q not found", name)
	}
	return rel, nil
}

// TableName returns the mapped table name for a model.
func (r *Registry) TableName(modelName string) (string, error) {
	m, err := r.Model(modelName)
	if err != nil {
		return "", err
	}
	if m.Table != "" {
		return m.Table, nil
	}
	return m.Name, nil
}

// ColumnName returns the mapped column name for a field.
func (r *Registry) ColumnName(modelName, fieldName string) (string, error) {
	f, err := r.Field(modelName, fieldName)
	if err != nil {
		return "", err
	}
	if f.Column != "" {
		return f.Column, nil
	}
	return f.Name, nil
}

// PrimaryKey returns a model's primary key fields, in declared order.
func (r *Registry) PrimaryKey(modelName string) (*domain.PrimaryKey, error) {
	m, err := r.Model(modelName)
	if err != nil {
		return nil, err
	}
	if m.PK == nil {
		return nil, fmt.Errorf("schema: model %q has no primary key", modelName)
	}
	return m.PK, nil
}

// ScalarFieldNames returns the ordered list of scalar field names on a
// model, used to expand a `$scalars: true` selection.
func (r *Registry) ScalarFieldNames(modelName string) ([]string, error) {
	m, err := r.Model(modelName)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, f := range m.Fields {
		if f.Kind == domain.FieldScalar {
			names = append(names, f.Name)
		}
	}
	return names, nil
}

// RelationFieldNames returns the ordered list of relation field names on a
// model, used to expand a `$composites: true` selection.
func (r *Registry) RelationFieldNames(modelName string) ([]string, error) {
	m, err := r.Model(modelName)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, f := range m.Fields {
		if f.Kind == domain.FieldRelation {
			names = append(names, f.Name)
		}
	}
	return names, nil
}
