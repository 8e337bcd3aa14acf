// Package sentinel is the concurrent risk/liquidation engine. It owns all
// account and position state exclusively (spec.md §3 Ownership);
// external readers only ever see read-only Snapshot views.
//
// Margin/PnL arithmetic follows the pattern used throughout the pack's
// perp-style risk modules (other_examples billygk-alpha-trading
// internal/watcher/risk.go, uhyunpark-hyperlicked pkg/app/perp-app.go):
// github.com/shopspring/decimal end to end, never float64.
package sentinel

import (
	"citadel/internal/common"
	"github.com/shopspring/decimal"
)

// PositionSide mirrors common.Side but is named for readability at call
// sites that talk about Long/Short rather than Buy/Sell.
type PositionSide = common.Side

const (
	Long  = common.Buy
	Short = common.Sell
)

// Position is one account's exposure to one symbol.
type Position struct {
	Symbol           common.Symbol
	Side             PositionSide
	Size             common.Quantity
	EntryPrice       common.Price
	Leverage         uint32
	LiquidationPrice common.Price
	Mark             common.Price // last tick's mark price for this symbol
	UnrealizedPnl    common.Price // signed, recomputed on every tick
}

// unrealizedPnl computes size*(mark-entry) for Long or size*(entry-mark)
// for Short (spec.md §4.4).
func (p *Position) unrealizedPnl() common.Price {
	diff := p.Mark.Decimal.Sub(p.EntryPrice.Decimal)
	if p.Side == Short {
		diff = diff.Neg()
	}
	return common.NewPrice(p.Size.Decimal.Mul(diff))
}

// notional is size*mark, the denominator of the account margin ratio.
func (p *Position) notional() common.Price {
	return common.NewPrice(p.Size.Decimal.Mul(p.Mark.Decimal))
}

// Account is one user's collateral and open positions. Collateral may go
// negative during liquidation (spec.md §9 Open Question b) — this
// implementation's decision, recorded in DESIGN.md, is that accounts are
// NOT suspended on negative collateral; they simply can no longer satisfy
// margin on any position and will be fully liquidated at the next tick
// that touches a symbol they still hold.
type Account struct {
	UserId     uint64
	Collateral common.Price // signed
	Positions  map[common.Symbol]*Position
}

// TotalUnrealizedPnl sums unrealized PnL across every open position.
func (a *Account) TotalUnrealizedPnl() common.Price {
	total := decimal.Zero
	for _, p := range a.Positions {
		total = total.Add(p.UnrealizedPnl.Decimal)
	}
	return common.NewPrice(total)
}

// Equity is collateral plus the sum of unrealized PnL across all
// positions.
func (a *Account) Equity() common.Price {
	return common.NewPrice(a.Collateral.Decimal.Add(a.TotalUnrealizedPnl().Decimal))
}

func (a *Account) totalNotional() common.Price {
	total := common.Price{}
	for _, p := range a.Positions {
		total = common.NewPrice(total.Decimal.Add(p.notional().Decimal))
	}
	return total
}

// MarginRatio is equity / notional. An account with no open positions
// (zero notional) has no meaningful ratio; ok is false in that case.
func (a *Account) MarginRatio() (ratio common.Price, ok bool) {
	notional := a.totalNotional()
	if notional.Decimal.IsZero() {
		return common.Price{}, false
	}
	return common.NewPrice(a.Equity().Decimal.Div(notional.Decimal)), true
}

// LiquidationEvent is the outcome of closing one position by force.
type LiquidationEvent struct {
	UserId       uint64
	Symbol       common.Symbol
	Size         common.Quantity
	MarkPrice    common.Price
	RealizedLoss common.Price // signed; positive debits collateral
	TimestampMs  uint64
}
