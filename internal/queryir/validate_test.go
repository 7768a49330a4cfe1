package queryir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/realmsync/internal/ir"
)

func TestValidate_ValidChain(t *testing.T) {
	result := Validate([]Fragment{Has{Component: "TradeStatus"}, statusIs(1)})
	assert.True(t, result.OK())
	assert.Empty(t, result.Warnings)
}

func TestValidate_FirstFragment(t *testing.T) {
	tests := []struct {
		name  string
		first Fragment
		ok    bool
	}{
		{"has", Has{Component: "A"}, true},
		{"has value", HasValue{Component: "A", Value: ir.Obj(ir.O("x", ir.IRInt(1)))}, true},
		{"has pointer", &Has{Component: "A"}, true},
		{"not", Not{Component: "A"}, false},
		{"not value", NotValue{Component: "A", Value: ir.Obj(ir.O("x", ir.IRInt(1)))}, false},
		{"proxy read", ProxyRead{Via: "A", Field: "f"}, false},
		{"proxy expand", ProxyExpand{Via: "A", Field: "f"}, false},
		{"covers", Covers{Component: "A", Holder: "h", Items: "i", Entry: "E"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Validate([]Fragment{tt.first})
			assert.Equal(t, tt.ok, result.OK())
			if !tt.ok {
				require.NotEmpty(t, result.Problems)
				assert.Equal(t, CodeInvalidFirstFragment, result.Problems[0].Code)
				assert.Equal(t, 0, result.Problems[0].Index)
			}
		})
	}
}

func TestValidate_Empty(t *testing.T) {
	result := Validate(nil)
	require.Len(t, result.Problems, 1)
	assert.Equal(t, CodeEmptyQuery, result.Problems[0].Code)
}

func TestValidate_MissingNames(t *testing.T) {
	result := Validate([]Fragment{
		Has{Component: "A"},
		Not{},
		ProxyRead{Via: "Owner"},
		Covers{Component: "Trade"},
	})
	require.False(t, result.OK())

	codes := make([]string, 0, len(result.Problems))
	indexes := make([]int, 0, len(result.Problems))
	for _, p := range result.Problems {
		codes = append(codes, p.Code)
		indexes = append(indexes, p.Index)
	}
	assert.Equal(t, []string{
		CodeMissingComponent,
		CodeMissingField,
		CodeMissingComponent,
		CodeMissingField,
		CodeMissingField,
	}, codes)
	assert.Equal(t, []int{1, 2, 3, 3, 3}, indexes)
}

func TestValidate_NestedProblemsUseOuterIndex(t *testing.T) {
	result := Validate([]Fragment{
		Has{Component: "A"},
		ProxyRead{Via: "Owner", Field: "owner", Match: []Fragment{Has{}}},
	})
	require.Len(t, result.Problems, 1)
	assert.Equal(t, CodeMissingComponent, result.Problems[0].Code)
	assert.Equal(t, 1, result.Problems[0].Index)
}

func TestValidate_Depth(t *testing.T) {
	result := Validate([]Fragment{
		Has{Component: "A"},
		ProxyExpand{Via: "Owner", Field: "owner", Depth: MaxDepth + 1},
		ProxyRead{Via: "Owner", Field: "owner", Depth: -1, Match: []Fragment{Has{Component: "B"}}},
	})
	require.Len(t, result.Problems, 2)
	assert.Equal(t, CodeInvalidDepth, result.Problems[0].Code)
	assert.Equal(t, CodeInvalidDepth, result.Problems[1].Code)
}

func TestValidate_NilFragment(t *testing.T) {
	var nilHas *Has
	result := Validate([]Fragment{Has{Component: "A"}, nilHas})
	require.Len(t, result.Problems, 1)
	assert.Equal(t, CodeNilFragment, result.Problems[0].Code)
}

func TestValidate_Warnings(t *testing.T) {
	result := Validate([]Fragment{
		HasValue{Component: "A"},
		NotValue{Component: "B", Value: ir.Obj(ir.O("x", ir.IRNull{}))},
		ProxyRead{Via: "Owner", Field: "owner"},
	})
	assert.True(t, result.OK())
	require.Len(t, result.Warnings, 3)
	assert.Contains(t, result.Warnings[0], "behaves like Has")
	assert.Contains(t, result.Warnings[1], "null")
	assert.Contains(t, result.Warnings[2], "reachability")
}

func TestProblem_String(t *testing.T) {
	p := Problem{Code: CodeInvalidFirstFragment, Index: 0, Message: "first fragment must be Has or HasValue, got Not"}
	assert.Equal(t, "[INVALID_FIRST_FRAGMENT] fragment 0: first fragment must be Has or HasValue, got Not", p.String())
}

func TestValidate_NestedExpand(t *testing.T) {
	result := Validate([]Fragment{
		Has{Component: "A"},
		ProxyRead{Via: "Owner", Field: "owner", Match: []Fragment{
			ProxyExpand{Via: "Owner", Field: "owner"},
		}},
	})
	require.Len(t, result.Problems, 1)
	assert.Equal(t, CodeNestedExpand, result.Problems[0].Code)
	assert.Equal(t, 1, result.Problems[0].Index)
}
