package queryir

import (
	"errors"
	"fmt"

	"github.com/roach88/realmsync/internal/ir"
)

// Spec is the serialised form of one fragment, used in YAML query files and
// in the devnet resync request body. Exactly one field must be set.
//
//	- has: TradeStatus
//	- has_value: {component: TradeStatus, value: {value: 1}}
//	- proxy_read: {via: Owner, field: owner, depth: 2, match: [{has: Faction}]}
type Spec struct {
	Has         string           `yaml:"has,omitempty" json:"has,omitempty"`
	HasValue    *ValueSpec       `yaml:"has_value,omitempty" json:"has_value,omitempty"`
	Not         string           `yaml:"not,omitempty" json:"not,omitempty"`
	NotValue    *ValueSpec       `yaml:"not_value,omitempty" json:"not_value,omitempty"`
	ProxyRead   *ProxyReadSpec   `yaml:"proxy_read,omitempty" json:"proxy_read,omitempty"`
	ProxyExpand *ProxyExpandSpec `yaml:"proxy_expand,omitempty" json:"proxy_expand,omitempty"`
	Covers      *CoversSpec      `yaml:"covers,omitempty" json:"covers,omitempty"`
}

// ValueSpec carries HasValue and NotValue.
type ValueSpec struct {
	Component string      `yaml:"component" json:"component"`
	Value     ir.IRObject `yaml:"value" json:"value"`
}

// ProxyReadSpec carries ProxyRead.
type ProxyReadSpec struct {
	Via   string `yaml:"via" json:"via"`
	Field string `yaml:"field" json:"field"`
	Depth int    `yaml:"depth,omitempty" json:"depth,omitempty"`
	Match []Spec `yaml:"match,omitempty" json:"match,omitempty"`
}

// ProxyExpandSpec carries ProxyExpand.
type ProxyExpandSpec struct {
	Via   string `yaml:"via" json:"via"`
	Field string `yaml:"field" json:"field"`
	Depth int    `yaml:"depth,omitempty" json:"depth,omitempty"`
}

// CoversSpec carries Covers.
type CoversSpec struct {
	Component string `yaml:"component" json:"component"`
	Holder    string `yaml:"holder" json:"holder"`
	Items     string `yaml:"items" json:"items"`
	Entry     string `yaml:"entry" json:"entry"`
}

// ErrEmptySpec is returned for a Spec with no variant set.
var ErrEmptySpec = errors.New("fragment spec sets no variant")

// Fragment converts the spec into its fragment.
func (s Spec) Fragment() (Fragment, error) {
	var out []Fragment
	if s.Has != "" {
		out = append(out, Has{Component: s.Has})
	}
	if s.HasValue != nil {
		out = append(out, HasValue{Component: s.HasValue.Component, Value: s.HasValue.Value})
	}
	if s.Not != "" {
		out = append(out, Not{Component: s.Not})
	}
	if s.NotValue != nil {
		out = append(out, NotValue{Component: s.NotValue.Component, Value: s.NotValue.Value})
	}
	if s.ProxyRead != nil {
		match, err := FromSpecs(s.ProxyRead.Match)
		if err != nil {
			return nil, fmt.Errorf("proxy_read match: %w", err)
		}
		out = append(out, ProxyRead{
			Via:   s.ProxyRead.Via,
			Field: s.ProxyRead.Field,
			Depth: s.ProxyRead.Depth,
			Match: match,
		})
	}
	if s.ProxyExpand != nil {
		out = append(out, ProxyExpand{Via: s.ProxyExpand.Via, Field: s.ProxyExpand.Field, Depth: s.ProxyExpand.Depth})
	}
	if s.Covers != nil {
		out = append(out, Covers{
			Component: s.Covers.Component,
			Holder:    s.Covers.Holder,
			Items:     s.Covers.Items,
			Entry:     s.Covers.Entry,
		})
	}

	switch len(out) {
	case 0:
		return nil, ErrEmptySpec
	case 1:
		return out[0], nil
	default:
		return nil, fmt.Errorf("fragment spec sets %d variants, want exactly one", len(out))
	}
}

// FromSpecs converts a list of specs into a chain.
func FromSpecs(specs []Spec) ([]Fragment, error) {
	chain := make([]Fragment, 0, len(specs))
	for i, s := range specs {
		f, err := s.Fragment()
		if err != nil {
			return nil, fmt.Errorf("fragment %d: %w", i, err)
		}
		chain = append(chain, f)
	}
	return chain, nil
}

// ToSpecs converts a chain into its serialised form.
func ToSpecs(chain []Fragment) ([]Spec, error) {
	specs := make([]Spec, 0, len(chain))
	for i, f := range chain {
		s, err := ToSpec(f)
		if err != nil {
			return nil, fmt.Errorf("fragment %d: %w", i, err)
		}
		specs = append(specs, s)
	}
	return specs, nil
}

// ToSpec converts one fragment into its serialised form.
func ToSpec(f Fragment) (Spec, error) {
	switch frag := Deref(f).(type) {
	case Has:
		return Spec{Has: frag.Component}, nil
	case HasValue:
		return Spec{HasValue: &ValueSpec{Component: frag.Component, Value: frag.Value}}, nil
	case Not:
		return Spec{Not: frag.Component}, nil
	case NotValue:
		return Spec{NotValue: &ValueSpec{Component: frag.Component, Value: frag.Value}}, nil
	case ProxyRead:
		match, err := ToSpecs(frag.Match)
		if err != nil {
			return Spec{}, err
		}
		return Spec{ProxyRead: &ProxyReadSpec{Via: frag.Via, Field: frag.Field, Depth: frag.Depth, Match: match}}, nil
	case ProxyExpand:
		return Spec{ProxyExpand: &ProxyExpandSpec{Via: frag.Via, Field: frag.Field, Depth: frag.Depth}}, nil
	case Covers:
		return Spec{Covers: &CoversSpec{
			Component: frag.Component,
			Holder:    frag.Holder,
			Items:     frag.Items,
			Entry:     frag.Entry,
		}}, nil
	default:
		return Spec{}, fmt.Errorf("unknown fragment type %T", f)
	}
}
