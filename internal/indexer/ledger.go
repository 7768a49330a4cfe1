package indexer

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/roach88/realmsync/internal/engine"
	"github.com/roach88/realmsync/internal/indexclient"
	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
	"github.com/roach88/realmsync/internal/querysql"
	"github.com/roach88/realmsync/internal/store"
)

var (
	// ErrInvalidApply marks applies rejected before touching the ledger.
	ErrInvalidApply = errors.New("invalid apply")
	// ErrInvalidQuery marks resync filters that fail validation.
	ErrInvalidQuery = errors.New("invalid query")
)

// Indexer is the devnet ledger mirror.
type Indexer struct {
	db       *sql.DB
	schemas  ir.Schemas
	compiler *querysql.SQLCompiler
	hub      *hub
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithSchemas validates applied values against schemas.
func WithSchemas(s ir.Schemas) Option {
	return func(x *Indexer) { x.schemas = s }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(x *Indexer) { x.logger = l }
}

// Open opens or creates the ledger at path.
func Open(path string, opts ...Option) (*Indexer, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	x := &Indexer{
		db:       db,
		compiler: querysql.NewSQLCompiler(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(x)
	}
	x.hub = newHub(x.logger)
	return x, nil
}

// Close disconnects subscribers and closes the database.
func (x *Indexer) Close() error {
	x.hub.close()
	return x.db.Close()
}

// Subscribers returns the number of connected push subscribers.
func (x *Indexer) Subscribers() int {
	return x.hub.size()
}

// Apply writes component values for one entity in a single transaction and
// publishes a notification naming them. A nil value deletes the component.
// Returns the ledger seq of the apply.
func (x *Indexer) Apply(ctx context.Context, entity ir.EntityID, values map[string]ir.IRObject) (int64, error) {
	if entity == "" {
		return 0, fmt.Errorf("%w: empty entity id", ErrInvalidApply)
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: no components", ErrInvalidApply)
	}

	names := make([]string, 0, len(values))
	encoded := make(map[string]string, len(values))
	for name, v := range values {
		if err := x.validate(name, v); err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidApply, name, err)
		}
		names = append(names, name)
		if v == nil {
			continue
		}
		b, err := ir.MarshalCanonical(v)
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrInvalidApply, name, err)
		}
		encoded[name] = string(b)
	}
	slices.Sort(names)

	seq, err := x.applyTx(ctx, entity, names, encoded)
	if err != nil {
		return 0, err
	}

	x.hub.publish(indexclient.Notification{EntityID: entity, Changed: names})
	x.logger.Debug("applied",
		"entity_id", entity,
		"components", names,
		"seq", seq)
	return seq, nil
}

func (x *Indexer) applyTx(ctx context.Context, entity ir.EntityID, names []string, encoded map[string]string) (int64, error) {
	namesJSON, err := json.Marshal(names)
	if err != nil {
		return 0, fmt.Errorf("encode component names: %w", err)
	}

	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin apply: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO applies (entity_id, components, applied_at) VALUES (?, ?, ?)`,
		string(entity), string(namesJSON), x.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("journal apply: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("journal seq: %w", err)
	}

	for _, name := range names {
		value, ok := encoded[name]
		if !ok {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM components WHERE entity_id = ? AND component = ?`,
				string(entity), name)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO components (entity_id, component, value, seq) VALUES (?, ?, ?, ?)
				ON CONFLICT (entity_id, component) DO UPDATE SET value = excluded.value, seq = excluded.seq`,
				string(entity), name, value, seq)
		}
		if err != nil {
			return 0, fmt.Errorf("write %s/%s: %w", entity, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit apply: %w", err)
	}
	return seq, nil
}

func (x *Indexer) validate(name string, v ir.IRObject) error {
	if name == "" {
		return errors.New("empty component name")
	}
	if x.schemas == nil {
		return nil
	}
	schema, ok := x.schemas[name]
	if !ok {
		return errors.New("unknown component")
	}
	if v == nil {
		return nil
	}
	return schema.Validate(v)
}

// Get returns the named components of an entity, or all of them when names
// is empty. Absent components are missing from the result.
func (x *Indexer) Get(ctx context.Context, entity ir.EntityID, names []string) (map[string]ir.IRObject, error) {
	q := `SELECT component, value FROM components WHERE entity_id = ?`
	args := []any{string(entity)}
	if len(names) > 0 {
		q += ` AND component IN (` + strings.TrimSuffix(strings.Repeat("?, ", len(names)), ", ") + `)`
		for _, n := range names {
			args = append(args, n)
		}
	}
	q += ` ORDER BY component ASC COLLATE BINARY`

	rows, err := x.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", entity, err)
	}
	defer rows.Close()

	out := make(map[string]ir.IRObject)
	for rows.Next() {
		var name, raw string
		if err := rows.Scan(&name, &raw); err != nil {
			return nil, fmt.Errorf("scan %s: %w", entity, err)
		}
		v, err := decodeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", entity, name, err)
		}
		out[name] = v
	}
	return out, rows.Err()
}

// Query returns ids of entities matching the chain in id order. Chains the
// SQL compiler cannot express are evaluated in memory over a full load.
func (x *Indexer) Query(ctx context.Context, chain []queryir.Fragment) ([]ir.EntityID, error) {
	if res := queryir.Validate(chain); !res.OK() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuery, res.Problems[0])
	}

	sqlText, params, err := x.compiler.Compile(chain)
	if errors.Is(err, querysql.ErrUnsupported) {
		x.logger.Debug("evaluating resync filter in memory", "reason", err)
		return x.queryInMemory(ctx, chain)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	rows, err := x.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer rows.Close()

	ids := []ir.EntityID{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan query row: %w", err)
		}
		ids = append(ids, ir.EntityID(id))
	}
	return ids, rows.Err()
}

func (x *Indexer) queryInMemory(ctx context.Context, chain []queryir.Fragment) ([]ir.EntityID, error) {
	s := store.New(store.WithLogger(x.logger))
	err := x.scan(ctx, nil, func(entity ir.EntityID, name string, v ir.IRObject) error {
		return s.Write(entity, name, v)
	})
	if err != nil {
		return nil, err
	}
	return engine.RunQuery(s, chain)
}

// Snapshot returns every entity matching chain, or every entity when chain
// is empty, with all of its components.
func (x *Indexer) Snapshot(ctx context.Context, chain []queryir.Fragment) ([]indexclient.EntitySnapshot, error) {
	var keep map[ir.EntityID]bool
	if len(chain) > 0 {
		ids, err := x.Query(ctx, chain)
		if err != nil {
			return nil, err
		}
		keep = make(map[ir.EntityID]bool, len(ids))
		for _, id := range ids {
			keep[id] = true
		}
	}

	out := []indexclient.EntitySnapshot{}
	err := x.scan(ctx, keep, func(entity ir.EntityID, name string, v ir.IRObject) error {
		if n := len(out); n == 0 || out[n-1].EntityID != entity {
			out = append(out, indexclient.EntitySnapshot{EntityID: entity, Components: map[string]ir.IRObject{}})
		}
		out[len(out)-1].Components[name] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// scan visits every stored component ordered by entity then component.
// A non-nil keep restricts the visit to its entities.
func (x *Indexer) scan(ctx context.Context, keep map[ir.EntityID]bool, fn func(ir.EntityID, string, ir.IRObject) error) error {
	rows, err := x.db.QueryContext(ctx,
		`SELECT entity_id, component, value FROM components ORDER BY entity_id ASC COLLATE BINARY, component ASC COLLATE BINARY`)
	if err != nil {
		return fmt.Errorf("scan components: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name, raw string
		if err := rows.Scan(&id, &name, &raw); err != nil {
			return fmt.Errorf("scan components: %w", err)
		}
		entity := ir.EntityID(id)
		if keep != nil && !keep[entity] {
			continue
		}
		v, err := decodeValue(raw)
		if err != nil {
			return fmt.Errorf("decode %s/%s: %w", id, name, err)
		}
		if err := fn(entity, name, v); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Applied is one journal entry.
type Applied struct {
	Seq        int64       `json:"seq"`
	Entity     ir.EntityID `json:"entity_id"`
	Components []string    `json:"components"`
	AppliedAt  time.Time   `json:"applied_at"`
}

// History returns the journal entries for an entity, oldest first.
func (x *Indexer) History(ctx context.Context, entity ir.EntityID) ([]Applied, error) {
	rows, err := x.db.QueryContext(ctx,
		`SELECT seq, components, applied_at FROM applies WHERE entity_id = ? ORDER BY seq ASC`,
		string(entity))
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", entity, err)
	}
	defer rows.Close()

	out := []Applied{}
	for rows.Next() {
		var (
			a       = Applied{Entity: entity}
			names   string
			applied string
		)
		if err := rows.Scan(&a.Seq, &names, &applied); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if err := json.Unmarshal([]byte(names), &a.Components); err != nil {
			return nil, fmt.Errorf("decode history names: %w", err)
		}
		if a.AppliedAt, err = time.Parse(time.RFC3339Nano, applied); err != nil {
			return nil, fmt.Errorf("decode history time: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func decodeValue(raw string) (ir.IRObject, error) {
	var v ir.IRObject
	if err := v.UnmarshalJSON([]byte(raw)); err != nil {
		return nil, err
	}
	return v, nil
}
