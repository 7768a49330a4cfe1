package querysql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
)

// DefaultTable is the component table of the devnet indexer.
const DefaultTable = "components"

// ErrUnsupported marks chains that cannot be expressed in SQL. Callers
// fall back to in-memory evaluation.
var ErrUnsupported = errors.New("fragment chain not expressible in SQL")

var identRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLCompiler compiles direct fragment chains (Has, HasValue, Not,
// NotValue) to parameterized SQLite selecting matching entity ids.
//
// The table must have columns entity_id, component and value, where value
// holds the component as a JSON object.
//
// CRITICAL: every query ends in ORDER BY entity_id for deterministic results.
// CRITICAL: all values, including JSON paths, are bound as parameters.
type SQLCompiler struct {
	Table string
}

// NewSQLCompiler creates a compiler for DefaultTable.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{Table: DefaultTable}
}

// Compile converts a chain to (sql, params). The chain must already pass
// queryir.Validate; proxy and composite fragments yield ErrUnsupported.
func (c *SQLCompiler) Compile(chain []queryir.Fragment) (string, []any, error) {
	if len(chain) == 0 {
		return "", nil, fmt.Errorf("cannot compile empty chain")
	}
	if !identRE.MatchString(c.Table) {
		return "", nil, fmt.Errorf("invalid table name %q", c.Table)
	}

	base, params, err := c.compileFirst(chain[0])
	if err != nil {
		return "", nil, fmt.Errorf("fragment 0: %w", err)
	}
	clauses := []string{base}

	for i, f := range chain[1:] {
		clause, p, err := c.compileFilter(f)
		if err != nil {
			return "", nil, fmt.Errorf("fragment %d: %w", i+1, err)
		}
		clauses = append(clauses, clause)
		params = append(params, p...)
	}

	sql := fmt.Sprintf("SELECT c0.entity_id FROM %s c0 WHERE %s ORDER BY c0.entity_id ASC COLLATE BINARY",
		c.Table, strings.Join(clauses, " AND "))
	return sql, params, nil
}

// compileFirst builds the candidate predicate on the c0 alias.
func (c *SQLCompiler) compileFirst(f queryir.Fragment) (string, []any, error) {
	switch frag := queryir.Deref(f).(type) {
	case queryir.Has:
		return "c0.component = ?", []any{frag.Component}, nil
	case queryir.HasValue:
		return c.match("c0", frag.Component, frag.Value)
	default:
		return "", nil, fmt.Errorf("%w: %s cannot start a chain", ErrUnsupported, queryir.Name(f))
	}
}

// compileFilter builds an EXISTS or NOT EXISTS subquery correlated on
// c0.entity_id.
func (c *SQLCompiler) compileFilter(f queryir.Fragment) (string, []any, error) {
	var (
		component string
		value     ir.IRObject
		negate    bool
	)
	switch frag := queryir.Deref(f).(type) {
	case queryir.Has:
		component = frag.Component
	case queryir.HasValue:
		component, value = frag.Component, frag.Value
	case queryir.Not:
		component, negate = frag.Component, true
	case queryir.NotValue:
		component, value, negate = frag.Component, frag.Value, true
	default:
		return "", nil, fmt.Errorf("%w: %s", ErrUnsupported, queryir.Name(f))
	}

	pred, params, err := c.match("c", component, value)
	if err != nil {
		return "", nil, err
	}
	op := "EXISTS"
	if negate {
		op = "NOT EXISTS"
	}
	sql := fmt.Sprintf("%s (SELECT 1 FROM %s c WHERE c.entity_id = c0.entity_id AND %s)", op, c.Table, pred)
	return sql, params, nil
}

// match builds "alias.component = ? AND json_extract(alias.value, ?) = ? ..."
// with fields in sorted order.
func (c *SQLCompiler) match(alias, component string, value ir.IRObject) (string, []any, error) {
	parts := []string{alias + ".component = ?"}
	params := []any{component}
	for _, field := range value.SortedKeys() {
		if !identRE.MatchString(field) {
			return "", nil, fmt.Errorf("%w: field name %q", ErrUnsupported, field)
		}
		param, err := irValueToParam(value[field])
		if err != nil {
			return "", nil, fmt.Errorf("field %s: %w", field, err)
		}
		parts = append(parts, fmt.Sprintf("json_extract(%s.value, ?) = ?", alias))
		params = append(params, "$."+field, param)
	}
	return strings.Join(parts, " AND "), params, nil
}

// irValueToParam converts a scalar IRValue to a SQL parameter. Booleans
// become 0/1 because json_extract returns JSON true and false as integers.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.IRNull:
		return nil, nil
	case ir.IRArray, ir.IRObject:
		return nil, fmt.Errorf("%w: %T cannot be compared in SQL", ErrUnsupported, v)
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}
