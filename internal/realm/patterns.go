package realm

import "github.com/roach88/realmsync/internal/feed"

// DefaultPatterns are the notifications surfaced in the activity feed.
func DefaultPatterns() []feed.Pattern {
	return []feed.Pattern{
		{Name: "settlement_created", Mode: feed.ModeBundle, Components: []string{Identity, Owner, Metadata, Position}},
		{Name: "balance_changed", Mode: feed.ModeExact, Components: []string{Balance}},
		{Name: "trade_created", Mode: feed.ModeBundle, Components: []string{Trade, TradeStatus}},
		{Name: "trade_status_changed", Mode: feed.ModeExact, Components: []string{TradeStatus}},
	}
}
