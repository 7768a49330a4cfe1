package realm

import (
	"github.com/roach88/realmsync/internal/ir"
	"github.com/roach88/realmsync/internal/queryir"
)

// OpenTrades matches trades awaiting a taker.
func OpenTrades() []queryir.Fragment {
	return []queryir.Fragment{
		queryir.HasValue{Component: TradeStatus, Value: StatusValue(StatusOpen)},
		queryir.Has{Component: Trade},
	}
}

// FundedTrades matches open trades whose chest holds everything offered.
func FundedTrades() []queryir.Fragment {
	return append(OpenTrades(), queryir.Covers{
		Component: Trade,
		Holder:    "chest",
		Items:     "offer",
		Entry:     ChestEntry,
	})
}

// TradesBy matches trades opened by maker, whatever their status.
func TradesBy(maker string) []queryir.Fragment {
	return []queryir.Fragment{
		queryir.HasValue{Component: Trade, Value: ir.Obj(ir.O("maker", ir.IRString(maker)))},
	}
}

// SettlementsOf matches fully formed settlements owned by address.
func SettlementsOf(address string) []queryir.Fragment {
	return []queryir.Fragment{
		queryir.HasValue{Component: Owner, Value: ir.Obj(ir.O("address", ir.IRString(address)))},
		queryir.Has{Component: Identity},
		queryir.Has{Component: Position},
	}
}
