// Package titan is the in-memory, per-symbol, price-time-priority limit
// order book and matcher. It is grounded on the teacher's
// internal/engine/orderbook.go: an ordered map from price to level,
// implemented with github.com/tidwall/btree, one tree per side per
// symbol, generalized here from a single hardcoded asset to
// map[Symbol]*OrderBook.
//
// The only structural addition beyond the teacher is a side-table from
// OrderId to a resting handle (spec.md §9 "Book representation"), so
// Cancel does not need a tree scan.
package titan

import (
	"citadel/internal/common"
	"github.com/tidwall/btree"
)

// PriceLevel is a FIFO queue of resting orders at one price. Every order
// in Orders carries this exact price.
type PriceLevel struct {
	Price  common.Price
	Orders []*common.Order
}

type priceLevels = btree.BTreeG[*PriceLevel]

// orderHandle lets Cancel locate a resting order's level without
// scanning the book.
type orderHandle struct {
	side  common.Side
	level *PriceLevel
}

// OrderBook is one symbol's bids and asks.
type OrderBook struct {
	symbol common.Symbol
	bids   *priceLevels // sorted highest-first
	asks   *priceLevels // sorted lowest-first
	byID   map[common.OrderId]*orderHandle
}

func newOrderBook(symbol common.Symbol) *OrderBook {
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.Decimal.GreaterThan(b.Price.Decimal)
	})
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price.Decimal.LessThan(b.Price.Decimal)
	})
	return &OrderBook{
		symbol: symbol,
		bids:   bids,
		asks:   asks,
		byID:   make(map[common.OrderId]*orderHandle),
	}
}

func (b *OrderBook) levelsFor(side common.Side) *priceLevels {
	if side == common.Buy {
		return b.bids
	}
	return b.asks
}

// bestOpposite returns the best resting level on the side opposite to
// side, or (nil, false) if that side is empty.
func (b *OrderBook) bestOpposite(side common.Side) (*PriceLevel, bool) {
	return b.levelsFor(side.Opposite()).Min()
}

// BestBid returns the highest resting bid price, if any.
func (b *OrderBook) BestBid() (common.Price, bool) {
	lvl, ok := b.bids.Min()
	if !ok {
		return common.Price{}, false
	}
	return lvl.Price, true
}

// BestAsk returns the lowest resting ask price, if any.
func (b *OrderBook) BestAsk() (common.Price, bool) {
	lvl, ok := b.asks.Min()
	if !ok {
		return common.Price{}, false
	}
	return lvl.Price, true
}

// marketable reports whether the best opposite level is at a price the
// aggressor is willing to trade at (spec.md §4.1 step 2).
func marketable(order *common.Order, level *PriceLevel) bool {
	if order.Marketable {
		return true
	}
	if order.Side == common.Buy {
		return level.Price.Decimal.LessThanOrEqual(order.Price.Decimal)
	}
	return level.Price.Decimal.GreaterThanOrEqual(order.Price.Decimal)
}

// rest appends order to its side's level at order.Price, creating the
// level if necessary, and registers it in the cancel side-table.
func (b *OrderBook) rest(order *common.Order) {
	levels := b.levelsFor(order.Side)
	lookup := &PriceLevel{Price: order.Price}
	level, ok := levels.Get(lookup)
	if !ok {
		level = &PriceLevel{Price: order.Price}
		levels.Set(level)
	}
	level.Orders = append(level.Orders, order)
	b.byID[order.OrderId] = &orderHandle{side: order.Side, level: level}
}

// removeHead drops the FIFO head of level (already fully consumed) and
// deletes the level from its tree if now empty. levels is the tree level
// belongs to.
func (b *OrderBook) removeHead(levels *priceLevels, level *PriceLevel) {
	head := level.Orders[0]
	delete(b.byID, head.OrderId)
	level.Orders = level.Orders[1:]
	if len(level.Orders) == 0 {
		levels.Delete(level)
	}
}

// Cancel removes a resting order. Returns false if unknown.
func (b *OrderBook) Cancel(id common.OrderId) bool {
	handle, ok := b.byID[id]
	if !ok {
		return false
	}
	delete(b.byID, id)
	for i, o := range handle.level.Orders {
		if o.OrderId == id {
			handle.level.Orders = append(handle.level.Orders[:i], handle.level.Orders[i+1:]...)
			break
		}
	}
	if len(handle.level.Orders) == 0 {
		b.levelsFor(handle.side).Delete(handle.level)
	}
	return true
}

// Snapshot returns an aggregated, best-first view of both sides.
func (b *OrderBook) Snapshot() common.BookView {
	view := common.BookView{Symbol: b.symbol}
	b.bids.Scan(func(level *PriceLevel) bool {
		view.Bids = append(view.Bids, aggregate(level))
		return true
	})
	b.asks.Scan(func(level *PriceLevel) bool {
		view.Asks = append(view.Asks, aggregate(level))
		return true
	})
	return view
}

func aggregate(level *PriceLevel) common.PriceLevelView {
	total := common.Quantity{}
	for _, o := range level.Orders {
		total = total.Add(o.QuantityRemain)
	}
	return common.PriceLevelView{Price: level.Price, Quantity: total}
}
