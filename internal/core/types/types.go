// Package types implements the Type & Enum Resolution component (spec.md
// §4.6): mapping schema scalar types to the canonical type tags the
// executor's dataMap section carries, and resolving enum value mappings.
// Grounded on the teacher's schema.TypeMapper (v3/internal/core/schema/type_mapper.go)
// but inverted in purpose: the teacher maps Prisma types to Go source types
// for codegen, this maps schema scalar types to the wire-level canonical
// tags named in spec.md §3/§4.6, and keeps Decimal/Uuid as distinct,
// non-float, non-string tags for round-trip fidelity (see SPEC_FULL.md §4.6).
package types

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/relionix/queryc/internal/core/schema/domain"
)

// Tag is a canonical result type, independent of any SQL dialect's native
// column type.
type Tag string

const (
	TagInt32    Tag = "Int32"
	TagInt64    Tag = "Int64"
	TagFloat    Tag = "Float"
	TagDouble   Tag = "Double"
	TagNumeric  Tag = "Numeric" // arbitrary-precision Decimal
	TagBoolean  Tag = "Boolean"
	TagChar     Tag = "Char"
	TagText     Tag = "Text"
	TagDate     Tag = "Date"
	TagTime     Tag = "Time"
	TagDateTime Tag = "DateTime"
	TagJson     Tag = "Json"
	TagBytes    Tag = "Bytes"
	TagUuid     Tag = "Uuid"
)

// Resolved is a field's resolved result type: either a plain Tag, an
// Enum<Name> reference, or Array(T) for list-cardinality fields.
type Resolved struct {
	Tag     Tag
	Enum    string // set when the field is Enum(ref); Tag is ignored in that case
	IsArray bool
}

// String renders the resolved type the way the program header names it:
// "Enum<Name>", "Array(Tag)", or a bare Tag.
func (r Resolved) String() string {
	base := string(r.Tag)
	if r.Enum != "" {
		base = "Enum<" + r.Enum + ">"
	}
	if r.IsArray {
		return "Array(" + base + ")"
	}
	return base
}

// Resolve maps a schema Field to its canonical result type.
func Resolve(f *domain.Field) (Resolved, error) {
	if f.Kind != domain.FieldScalar {
		return Resolved{}, fmt.Errorf("types: field %q is not a scalar field", f.Name)
	}

	r := Resolved{IsArray: f.Cardinality == domain.List}

	if f.Scalar == domain.EnumRef {
		if f.EnumName == "" {
			return Resolved{}, fmt.Errorf("types: field %q declares Enum scalar with no EnumName", f.Name)
		}
		r.Enum = f.EnumName
		return r, nil
	}

	tag, err := scalarTag(f.Scalar)
	if err != nil {
		return Resolved{}, err
	}
	r.Tag = tag
	return r, nil
}

func scalarTag(s domain.ScalarType) (Tag, error) {
	switch s {
	case domain.Int32:
		return TagInt32, nil
	case domain.Int64:
		return TagInt64, nil
	case domain.Float:
		return TagFloat, nil
	case domain.Double:
		return TagDouble, nil
	case domain.Decimal:
		return TagNumeric, nil
	case domain.Boolean:
		return TagBoolean, nil
	case domain.String:
		return TagText, nil
	case domain.Bytes:
		return TagBytes, nil
	case domain.Date:
		return TagDate, nil
	case domain.Time:
		return TagTime, nil
	case domain.DateTime:
		return TagDateTime, nil
	case domain.Json:
		return TagJson, nil
	case domain.Uuid:
		return TagUuid, nil
	default:
		return "", fmt.Errorf("types: unknown scalar type %q", s)
	}
}

// NormalizeLiteral canonicalizes a decoded literal against a field's scalar
// type before it is bound as a SQL parameter, so Numeric and Uuid values
// round-trip exactly regardless of how the caller encoded them (a Decimal
// field may arrive as a decoded JSON number (float64) or a plain string; a Uuid field as a
// hyphenated or bare-hex string). Non-Numeric/Uuid scalars pass through
// unchanged.
func NormalizeLiteral(f *domain.Field, v interface{}) (interface{}, error) {
	if f.Kind != domain.FieldScalar || v == nil {
		return v, nil
	}

	switch f.Scalar {
	case domain.Decimal:
		switch val := v.(type) {
		case decimal.Decimal:
			return val, nil
		case string:
			d, err := decimal.NewFromString(val)
			if err != nil {
				return nil, fmt.Errorf("types: field %q: invalid decimal %q: %w", f.Name, val, err)
			}
			return d, nil
		case float64:
			return decimal.NewFromFloat(val), nil
		default:
			return nil, fmt.Errorf("types: field %q: value %v is not decimal-convertible", f.Name, v)
		}
	case domain.Uuid:
		switch val := v.(type) {
		case uuid.UUID:
			return val, nil
		case string:
			id, err := uuid.Parse(val)
			if err != nil {
				return nil, fmt.Errorf("types: field %q: invalid uuid %q: %w", f.Name, val, err)
			}
			return id, nil
		default:
			return nil, fmt.Errorf("types: field %q: value %v is not uuid-convertible", f.Name, v)
		}
	default:
		return v, nil
	}
}

// EnumMapping is the `enums` section entry for one enum: an ordered list of
// (db-value, variant) pairs the executor uses for round-trip conversion.
type EnumMapping struct {
	Name     string
	Variants []EnumValuePair
}

// EnumValuePair pairs a raw database value with its canonical variant name.
type EnumValuePair struct {
	DBValue string
	Variant string
}

// ResolveEnum builds the round-trip mapping table for one schema enum,
// preserving declaration order (spec.md §9 "Determinism").
func ResolveEnum(e *domain.Enum) EnumMapping {
	m := EnumMapping{Name: e.Name}
	for _, v := range e.Variants {
		m.Variants = append(m.Variants, EnumValuePair{DBValue: v.DBValue, Variant: v.Name})
	}
	return m
}
