package realm

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/optimistic"
	"github.com/roach88/realmsync/internal/store"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUnknownTrade        = errors.New("unknown trade")
	ErrTradeNotOpen        = errors.New("trade is not open")
	ErrWrongTaker          = errors.New("trade is reserved for another taker")
)

// CreateTradeArgs opens a trade. The offered resources move from the
// maker's balances into the trade's chest.
type CreateTradeArgs struct {
	Maker string     `yaml:"maker" json:"maker"`
	Nonce int64      `yaml:"nonce" json:"nonce"`
	Taker string     `yaml:"taker,omitempty" json:"taker,omitempty"`
	Offer []Resource `yaml:"offer" json:"offer"`
	Want  []Resource `yaml:"want" json:"want"`
}

// AcceptTradeArgs accepts an open trade, paying its wanted resources.
type AcceptTradeArgs struct {
	Trade ir.EntityID `yaml:"trade" json:"trade"`
	Taker string      `yaml:"taker" json:"taker"`
}

// PredictCreateTrade predicts the maker's decremented balances, the new
// Trade and TradeStatus records, and the funded chest.
func PredictCreateTrade(r store.Reader, args CreateTradeArgs) ([]optimistic.Effect, error) {
	if args.Maker == "" {
		return nil, errors.New("create trade: maker is required")
	}
	if len(args.Offer) == 0 {
		return nil, errors.New("create trade: offer is empty")
	}
	offer, err := totals(args.Offer)
	if err != nil {
		return nil, fmt.Errorf("create trade: offer: %w", err)
	}
	if _, err := totals(args.Want); err != nil {
		return nil, fmt.Errorf("create trade: want: %w", err)
	}

	effects, err := debit(r, args.Maker, offer)
	if err != nil {
		return nil, fmt.Errorf("create trade: %w", err)
	}

	id := TradeID(args.Maker, args.Nonce)
	trade := ir.Obj(
		ir.O("maker", ir.IRString(args.Maker)),
		ir.O("nonce", ir.IRInt(args.Nonce)),
		ir.O("chest", ir.IRString(string(id))),
		ir.O("offer", resourceArray(args.Offer)),
		ir.O("want", resourceArray(args.Want)),
	)
	if args.Taker != "" {
		trade["taker"] = ir.IRString(args.Taker)
	}
	effects = append(effects,
		optimistic.Effect{Entity: id, Component: Trade, Value: trade},
		optimistic.Effect{Entity: id, Component: TradeStatus, Value: StatusValue(StatusOpen)},
	)
	for _, kind := range sortedKinds(offer) {
		effects = append(effects, optimistic.Effect{
			Entity:    ChestEntryID(id, kind),
			Component: ChestEntry,
			Value:     ChestEntryValue(id, kind, offer[kind]),
		})
	}
	return effects, nil
}

// PredictAcceptTrade predicts the bumped status and the taker's
// decremented balances.
func PredictAcceptTrade(r store.Reader, args AcceptTradeArgs) ([]optimistic.Effect, error) {
	trade := r.Read(args.Trade, Trade)
	if trade == nil {
		return nil, fmt.Errorf("accept trade %s: %w", args.Trade, ErrUnknownTrade)
	}
	status := r.Read(args.Trade, TradeStatus)
	if v, _ := status["value"].(ir.IRInt); status == nil || int64(v) != StatusOpen {
		return nil, fmt.Errorf("accept trade %s: %w", args.Trade, ErrTradeNotOpen)
	}
	if reserved, _ := trade["taker"].(ir.IRString); reserved != "" && string(reserved) != args.Taker {
		return nil, fmt.Errorf("accept trade %s: %w", args.Trade, ErrWrongTaker)
	}

	want, err := totals(resourcesOf(trade["want"]))
	if err != nil {
		return nil, fmt.Errorf("accept trade %s: want: %w", args.Trade, err)
	}
	effects, err := debit(r, args.Taker, want)
	if err != nil {
		return nil, fmt.Errorf("accept trade %s: %w", args.Trade, err)
	}
	return append(effects, optimistic.Effect{
		Entity:    args.Trade,
		Component: TradeStatus,
		Value:     StatusValue(StatusAccepted),
	}), nil
}

// debit returns Balance effects taking need[kind] from holder.
func debit(r store.Reader, holder string, need map[int64]int64) ([]optimistic.Effect, error) {
	effects := make([]optimistic.Effect, 0, len(need))
	for _, kind := range sortedKinds(need) {
		id := BalanceID(holder, kind)
		have := Amount(r.Read(id, Balance))
		if have < need[kind] {
			return nil, fmt.Errorf("%w: %s kind %d: have %d, need %d",
				ErrInsufficientBalance, holder, kind, have, need[kind])
		}
		effects = append(effects, optimistic.Effect{
			Entity:    id,
			Component: Balance,
			Value:     BalanceValue(holder, kind, have-need[kind]),
		})
	}
	return effects, nil
}

func totals(rs []Resource) (map[int64]int64, error) {
	out := make(map[int64]int64, len(rs))
	for _, r := range rs {
		if r.Amount <= 0 {
			return nil, fmt.Errorf("kind %d: amount must be positive", r.Kind)
		}
		out[r.Kind] += r.Amount
	}
	return out, nil
}

func sortedKinds(m map[int64]int64) []int64 {
	kinds := make([]int64, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Ledger accepts component writes for one entity at a time.
type Ledger interface {
	Apply(ctx context.Context, entity ir.EntityID, components map[string]ir.IRObject) error
}

// Commands are the trade commands, wrapped so their predicted effects show
// while the ledger call is in flight.
type Commands struct {
	CreateTrade optimistic.Call[CreateTradeArgs, ir.EntityID]
	AcceptTrade optimistic.Call[AcceptTradeArgs, ir.EntityID]
}

// NewCommands wires the commands to a devnet-style ledger that accepts the
// outcome computed from canonical state.
func NewCommands(w *optimistic.Wrapper, s *store.Store, ledger Ledger) *Commands {
	create := func(ctx context.Context, args CreateTradeArgs) (ir.EntityID, error) {
		effects, err := PredictCreateTrade(s.Canonical(), args)
		if err != nil {
			return "", err
		}
		return TradeID(args.Maker, args.Nonce), submit(ctx, ledger, effects)
	}
	accept := func(ctx context.Context, args AcceptTradeArgs) (ir.EntityID, error) {
		effects, err := PredictAcceptTrade(s.Canonical(), args)
		if err != nil {
			return "", err
		}
		return args.Trade, submit(ctx, ledger, effects)
	}
	return &Commands{
		CreateTrade: optimistic.Wrap(w, "create_trade", PredictCreateTrade, create),
		AcceptTrade: optimistic.Wrap(w, "accept_trade", PredictAcceptTrade, accept),
	}
}

// submit groups effects per entity, in first-seen order, and applies them.
func submit(ctx context.Context, ledger Ledger, effects []optimistic.Effect) error {
	var order []ir.EntityID
	byEntity := make(map[ir.EntityID]map[string]ir.IRObject)
	for _, e := range effects {
		if byEntity[e.Entity] == nil {
			byEntity[e.Entity] = make(map[string]ir.IRObject)
			order = append(order, e.Entity)
		}
		byEntity[e.Entity][e.Component] = e.Value
	}
	for _, id := range order {
		if err := ledger.Apply(ctx, id, byEntity[id]); err != nil {
			return fmt.Errorf("submit %s: %w", id, err)
		}
	}
	return nil
}
