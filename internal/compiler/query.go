package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"cuelang.org/go/cue"

	"github.com/roach88/realmsync/internal/queryir"
)

// NamedQuery is a fragment chain declared under `query:` in CUE.
type NamedQuery struct {
	Name  string
	Chain []queryir.Fragment
}

// CompileQuery parses a CUE list of fragment specs into a NamedQuery.
//
//	query: OpenTrades: [
//		{has: "Trade"},
//		{has_value: {component: "TradeStatus", value: {value: 0}}},
//	]
//
// The list goes through JSON so values use the same float-free decoding as
// every other IR object.
func CompileQuery(v cue.Value) (*NamedQuery, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	q := &NamedQuery{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		q.Name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	if v.IncompleteKind() != cue.ListKind {
		return nil, &CompileError{
			Field:   "query",
			Message: "query must be a list of fragments",
			Pos:     v.Pos(),
		}
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	data, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var specs []queryir.Spec
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&specs); err != nil {
		return nil, &CompileError{
			Field:   "query",
			Message: fmt.Sprintf("decoding fragments: %v", err),
			Pos:     v.Pos(),
		}
	}
	chain, err := queryir.FromSpecs(specs)
	if err != nil {
		return nil, &CompileError{Field: "query", Message: err.Error(), Pos: v.Pos()}
	}
	q.Chain = chain
	return q, nil
}
