package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
	"github.com/roach88/realmsync/internal/realm"
)

// Scenario defines a conformance test scenario.
// A scenario builds a fresh store, registers queries, applies a sequence of
// canonical writes, overrides and optimistic commands, and asserts on the
// resulting query event trace and final state.
type Scenario struct {
	// Name uniquely identifies this scenario. Used as the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Realm registers the realm component schemas.
	Realm bool `yaml:"realm,omitempty"`

	// Schemas declares additional component schemas inline.
	Schemas []SchemaDecl `yaml:"schemas,omitempty"`

	// Queries are registered in order before the first step.
	Queries []QueryDecl `yaml:"queries"`

	// Steps run in order. Each step sets exactly one action.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: matching_set, read_value, event_count, override_count
	Assertions []Assertion `yaml:"assertions"`

	// OverridePrefix prefixes the override ids minted for commands.
	// Defaults to "op", giving op-1, op-2, ...
	OverridePrefix string `yaml:"override_prefix,omitempty"`
}

// SchemaDecl is a component schema written inline.
type SchemaDecl struct {
	Name   string            `yaml:"name"`
	Keys   []string          `yaml:"keys,omitempty"`
	Fields map[string]string `yaml:"fields"`
}

// QueryDecl names a fragment chain.
type QueryDecl struct {
	Name      string         `yaml:"name"`
	Fragments []queryir.Spec `yaml:"fragments"`
}

// Step is one scenario action.
type Step struct {
	Write          *WriteStep    `yaml:"write,omitempty"`
	Override       *OverrideStep `yaml:"override,omitempty"`
	RemoveOverride string        `yaml:"remove_override,omitempty"`
	Command        *CommandStep  `yaml:"command,omitempty"`
}

// WriteStep replaces a canonical value. A null or missing value removes
// the component.
type WriteStep struct {
	Entity    EntityRef   `yaml:"entity"`
	Component string      `yaml:"component"`
	Value     ir.IRObject `yaml:"value"`
}

// OverrideStep pushes a speculative patch. A null or missing value predicts
// the component absent.
type OverrideStep struct {
	ID        string      `yaml:"id"`
	Entity    EntityRef   `yaml:"entity"`
	Component string      `yaml:"component"`
	Value     ir.IRObject `yaml:"value"`
}

// CommandStep runs one optimistic realm command against a scripted ledger.
type CommandStep struct {
	CreateTrade *realm.CreateTradeArgs `yaml:"create_trade,omitempty"`
	AcceptTrade *AcceptTradeDecl       `yaml:"accept_trade,omitempty"`

	// Fail makes the ledger reject the submission.
	Fail bool `yaml:"fail,omitempty"`

	// During runs while the call is in flight, before the ledger answers.
	// Only write steps are allowed.
	During []Step `yaml:"during,omitempty"`
}

// AcceptTradeDecl mirrors realm.AcceptTradeArgs with an EntityRef.
type AcceptTradeDecl struct {
	Trade EntityRef `yaml:"trade"`
	Taker string    `yaml:"taker"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "matching_set": the query's live set equals Entities
	// - "read_value": the (canonical when Canonical is set) value equals Value
	// - "event_count": the query emitted Count events, of Kind if set
	// - "override_count": Count override ids are still live
	Type string `yaml:"type"`

	Query     string      `yaml:"query,omitempty"`
	Entities  []EntityRef `yaml:"entities,omitempty"`
	Entity    EntityRef   `yaml:"entity,omitempty"`
	Component string      `yaml:"component,omitempty"`
	Value     ir.IRObject `yaml:"value,omitempty"`
	Canonical bool        `yaml:"canonical,omitempty"`
	Kind      string      `yaml:"kind,omitempty"`
	Count     int         `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertMatchingSet   = "matching_set"
	AssertReadValue     = "read_value"
	AssertEventCount    = "event_count"
	AssertOverrideCount = "override_count"
)

// EntityRef is an entity id written either literally or as the natural key
// it hashes from:
//
//	entity: "0x1"
//	entity: {keys: ["0xa11ce", 1]}
//	entity: {keys: [{keys: ["0xa11ce", 1]}, 3]}
type EntityRef struct {
	ID ir.EntityID
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (r *EntityRef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		r.ID = ir.EntityID(s)
		return nil
	case yaml.MappingNode:
		var raw struct {
			Keys []yaml.Node `yaml:"keys"`
		}
		if err := node.Decode(&raw); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		keys := make([]ir.IRValue, 0, len(raw.Keys))
		for i := range raw.Keys {
			k := &raw.Keys[i]
			if k.Kind == yaml.MappingNode {
				var nested EntityRef
				if err := nested.UnmarshalYAML(k); err != nil {
					return err
				}
				keys = append(keys, ir.IRString(nested.ID))
				continue
			}
			var v any
			if err := k.Decode(&v); err != nil {
				return fmt.Errorf("line %d: %w", k.Line, err)
			}
			iv, err := ir.FromAny(v)
			if err != nil {
				return fmt.Errorf("line %d: key %d: %w", k.Line, i, err)
			}
			keys = append(keys, iv)
		}
		id, err := ir.EntityIDFromKeys(keys...)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		r.ID = id
		return nil
	default:
		return fmt.Errorf("line %d: entity must be an id or {keys: [...]}", node.Line)
	}
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if !s.Realm && len(s.Schemas) == 0 {
		return fmt.Errorf("schemas are required (set realm: true or declare schemas)")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	queries := make(map[string]bool, len(s.Queries))
	for i, q := range s.Queries {
		if q.Name == "" {
			return fmt.Errorf("queries[%d]: name is required", i)
		}
		if queries[q.Name] {
			return fmt.Errorf("queries[%d]: duplicate query %q", i, q.Name)
		}
		queries[q.Name] = true
		if len(q.Fragments) == 0 {
			return fmt.Errorf("queries[%d]: fragments are required", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(step, false); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a, queries); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(step Step, nested bool) error {
	set := 0
	if step.Write != nil {
		set++
		if step.Write.Entity.ID == "" || step.Write.Component == "" {
			return fmt.Errorf("write: entity and component are required")
		}
	}
	if step.Override != nil {
		set++
		if step.Override.ID == "" || step.Override.Entity.ID == "" || step.Override.Component == "" {
			return fmt.Errorf("override: id, entity and component are required")
		}
	}
	if step.RemoveOverride != "" {
		set++
	}
	if step.Command != nil {
		set++
		if err := validateCommand(step.Command); err != nil {
			return err
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one of write, override, remove_override, command is required")
	}
	if nested && step.Write == nil {
		return fmt.Errorf("only write steps may run during a command")
	}
	return nil
}

func validateCommand(c *CommandStep) error {
	if (c.CreateTrade == nil) == (c.AcceptTrade == nil) {
		return fmt.Errorf("command: exactly one of create_trade, accept_trade is required")
	}
	for i, step := range c.During {
		if err := validateStep(step, true); err != nil {
			return fmt.Errorf("command.during[%d]: %w", i, err)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, queries map[string]bool) error {
	switch a.Type {
	case AssertMatchingSet, AssertEventCount:
		if a.Query == "" {
			return fmt.Errorf("assertions[%d]: %s requires query", index, a.Type)
		}
		if !queries[a.Query] {
			return fmt.Errorf("assertions[%d]: unknown query %q", index, a.Query)
		}
		if a.Type == AssertEventCount && a.Kind != "" {
			if _, err := parseKind(a.Kind); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertReadValue:
		if a.Entity.ID == "" || a.Component == "" {
			return fmt.Errorf("assertions[%d]: read_value requires entity and component", index)
		}
	case AssertOverrideCount:
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

func parseKind(s string) (ir.UpdateKind, error) {
	switch s {
	case "enter":
		return ir.Enter, nil
	case "update":
		return ir.Update, nil
	case "exit":
		return ir.Exit, nil
	default:
		return 0, fmt.Errorf("unknown event kind %q (want enter, update or exit)", s)
	}
}

// buildSchemas assembles the scenario's schema registry.
func buildSchemas(s *Scenario) (ir.Schemas, error) {
	var list []ir.ComponentSchema
	if s.Realm {
		rs := realm.Schemas()
		for _, name := range rs.Names() {
			list = append(list, rs[name])
		}
	}
	for _, d := range s.Schemas {
		cs := ir.ComponentSchema{Name: d.Name, Keys: d.Keys, Fields: make(map[string]ir.FieldType, len(d.Fields))}
		for field, t := range d.Fields {
			ft := ir.FieldType(t)
			switch ft {
			case ir.FieldString, ir.FieldInt, ir.FieldBool, ir.FieldArray, ir.FieldObject:
			default:
				return nil, fmt.Errorf("schema %s: field %s: unsupported type %q", d.Name, field, t)
			}
			cs.Fields[field] = ft
		}
		list = append(list, cs)
	}
	return ir.NewSchemas(list...)
}
