package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
)

func testSchemas(t *testing.T) ir.Schemas {
	t.Helper()
	s, err := ir.NewSchemas(
		ir.ComponentSchema{Name: "Owner", Fields: map[string]ir.FieldType{"address": ir.FieldString}},
		ir.ComponentSchema{Name: "TradeStatus", Fields: map[string]ir.FieldType{"value": ir.FieldInt}},
		ir.ComponentSchema{Name: "Trade", Keys: []string{"maker", "nonce"}, Fields: map[string]ir.FieldType{
			"maker": ir.FieldString,
			"nonce": ir.FieldInt,
			"chest": ir.FieldString,
			"offer": ir.FieldArray,
		}},
		ir.ComponentSchema{Name: "ChestEntry", Fields: map[string]ir.FieldType{"amount": ir.FieldInt}},
	)
	require.NoError(t, err)
	return s
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateComponentValid(t *testing.T) {
	for _, schema := range testSchemas(t) {
		assert.Empty(t, ValidateComponent(schema), schema.Name)
	}
}

func TestValidateComponentErrors(t *testing.T) {
	tests := []struct {
		name   string
		schema ir.ComponentSchema
		want   []string
	}{
		{
			name:   "bad name",
			schema: ir.ComponentSchema{Name: "9lives", Fields: map[string]ir.FieldType{"a": ir.FieldInt}},
			want:   []string{ErrComponentName},
		},
		{
			name:   "no fields",
			schema: ir.ComponentSchema{Name: "Empty"},
			want:   []string{ErrComponentNoFields},
		},
		{
			name: "undeclared key",
			schema: ir.ComponentSchema{Name: "Balance", Keys: []string{"holder"},
				Fields: map[string]ir.FieldType{"amount": ir.FieldInt}},
			want: []string{ErrKeyNotField},
		},
		{
			name: "array key",
			schema: ir.ComponentSchema{Name: "Bag", Keys: []string{"items"},
				Fields: map[string]ir.FieldType{"items": ir.FieldArray}},
			want: []string{ErrKeyNotPrimitive},
		},
		{
			name: "duplicate key",
			schema: ir.ComponentSchema{Name: "Balance", Keys: []string{"holder", "holder"},
				Fields: map[string]ir.FieldType{"holder": ir.FieldString}},
			want: []string{ErrDuplicateKey},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codes(ValidateComponent(tt.schema)))
		})
	}
}

func TestValidateQuery(t *testing.T) {
	schemas := testSchemas(t)
	tests := []struct {
		name  string
		chain []queryir.Fragment
		want  []string
	}{
		{
			name: "valid",
			chain: []queryir.Fragment{
				queryir.Has{Component: "Trade"},
				queryir.HasValue{Component: "TradeStatus", Value: ir.IRObject{"value": ir.IRInt(0)}},
				queryir.Covers{Component: "Trade", Holder: "chest", Items: "offer", Entry: "ChestEntry"},
				queryir.ProxyRead{Via: "Trade", Field: "maker", Match: []queryir.Fragment{queryir.Has{Component: "Owner"}}},
			},
		},
		{
			name:  "malformed",
			chain: []queryir.Fragment{queryir.Not{Component: "Trade"}},
			want:  []string{ErrQueryMalformed},
		},
		{
			name:  "unknown component",
			chain: []queryir.Fragment{queryir.Has{Component: "Trade"}, queryir.Not{Component: "Ghost"}},
			want:  []string{ErrUnknownComponent},
		},
		{
			name: "value type",
			chain: []queryir.Fragment{
				queryir.HasValue{Component: "TradeStatus", Value: ir.IRObject{"value": ir.IRString("open")}},
			},
			want: []string{ErrValueMismatch},
		},
		{
			name: "unknown reference field",
			chain: []queryir.Fragment{
				queryir.Has{Component: "Trade"},
				queryir.ProxyExpand{Via: "Trade", Field: "taker"},
			},
			want: []string{ErrUnknownField},
		},
		{
			name: "items not an array",
			chain: []queryir.Fragment{
				queryir.Has{Component: "Trade"},
				queryir.Covers{Component: "Trade", Holder: "chest", Items: "maker", Entry: "ChestEntry"},
			},
			want: []string{ErrFieldTypeMismatch},
		},
		{
			name: "nested match value",
			chain: []queryir.Fragment{
				queryir.Has{Component: "Trade"},
				queryir.ProxyRead{Via: "Trade", Field: "maker", Match: []queryir.Fragment{
					queryir.HasValue{Component: "Owner", Value: ir.IRObject{"address": ir.IRInt(1)}},
				}},
			},
			want: []string{ErrValueMismatch},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateQuery(NamedQuery{Name: "Q", Chain: tt.chain}, schemas)
			if tt.want == nil {
				assert.Empty(t, errs)
				return
			}
			assert.Equal(t, tt.want, codes(errs))
		})
	}
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "query.Q[1]", Message: "unknown component \"Ghost\"", Code: ErrUnknownComponent}
	assert.Equal(t, `[E111] query.Q[1]: unknown component "Ghost"`, err.Error())
}
