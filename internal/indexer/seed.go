package indexer

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/roach88/realmsync/internal/ir"
)

// SeedEntry is one apply in a seed file, a YAML list of entries such as
//
//	entity: "0xa11ce"
//	components:
//	  Balance: {holder: "0xa11ce", kind: 1, amount: 100}
type SeedEntry struct {
	Entity     ir.EntityID            `yaml:"entity"`
	Components map[string]ir.IRObject `yaml:"components"`
}

// ReadSeed decodes a YAML list of seed entries.
func ReadSeed(r io.Reader) ([]SeedEntry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var entries []SeedEntry
	if err := dec.Decode(&entries); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	return entries, nil
}

// ApplySeed applies entries in order and returns the last seq.
func (x *Indexer) ApplySeed(ctx context.Context, entries []SeedEntry) (int64, error) {
	var seq int64
	for i, e := range entries {
		s, err := x.Apply(ctx, e.Entity, e.Components)
		if err != nil {
			return seq, fmt.Errorf("seed entry %d (%s): %w", i, e.Entity, err)
		}
		seq = s
	}
	return seq, nil
}
