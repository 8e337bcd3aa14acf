// Package common holds the domain types shared by every subsystem: Titan,
// Oracle, Sentinel and the price feed. Nothing here owns behavior beyond
// simple invariants — the owning packages mutate these values.
package common

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the fixed-point scale (number of decimal places) used for every
// Price and Quantity in the system. All arithmetic on these types is exact
// decimal arithmetic; floating point is never used for money.
const Scale int32 = 8

// Price is a fixed-point, scale-8 decimal. Zero or negative prices are
// invalid for limit orders (see Order.Validate).
type Price struct {
	decimal.Decimal
}

// NewPrice truncates d to Scale and wraps it.
func NewPrice(d decimal.Decimal) Price {
	return Price{d.Truncate(Scale)}
}

// PriceFromString parses a decimal string into a Price.
func PriceFromString(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, fmt.Errorf("parsing price %q: %w", s, err)
	}
	return NewPrice(d), nil
}

func (p Price) IsPositive() bool { return p.Decimal.IsPositive() }

// Quantity is a fixed-point, scale-8, non-negative decimal. Zero means
// "filled" or "empty" depending on context.
type Quantity struct {
	decimal.Decimal
}

func NewQuantity(d decimal.Decimal) Quantity {
	return Quantity{d.Truncate(Scale)}
}

func QuantityFromString(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Quantity{}, fmt.Errorf("parsing quantity %q: %w", s, err)
	}
	return NewQuantity(d), nil
}

func (q Quantity) IsZero() bool     { return q.Decimal.IsZero() }
func (q Quantity) IsPositive() bool { return q.Decimal.IsPositive() }
func (q Quantity) IsNegative() bool { return q.Decimal.IsNegative() }

func (q Quantity) Sub(o Quantity) Quantity { return NewQuantity(q.Decimal.Sub(o.Decimal)) }
func (q Quantity) Add(o Quantity) Quantity { return NewQuantity(q.Decimal.Add(o.Decimal)) }

// MinQuantity returns the smaller of two quantities.
func MinQuantity(a, b Quantity) Quantity {
	if a.Decimal.LessThan(b.Decimal) {
		return a
	}
	return b
}

// Side is the direction of an order or a position.
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType distinguishes resting limit orders from sweep-only market
// orders. Market orders never rest (see spec.md §4.1 edge cases).
type OrderType uint8

const (
	LimitOrder OrderType = iota
	MarketOrder
)

// OrderId is a submitter-assigned, monotonically increasing, process-unique
// identifier.
type OrderId uint64

// Symbol identifies the traded instrument, e.g. "BTC-USD".
type Symbol string

// Order is a resting or in-flight order. SubmitSeq establishes strict time
// priority among orders resting at the same price and is assigned by Titan
// at submission time.
type Order struct {
	OrderId          OrderId
	Symbol           Symbol
	Side             Side
	OrderType        OrderType
	Price            Price // ignored (Marketable) for market orders
	Marketable       bool  // true => sweep only, never rests, price is irrelevant
	QuantityRemain   Quantity
	QuantityOriginal Quantity
	SubmitSeq        uint64
	Owner            string
}

// Validate rejects structurally invalid orders before they reach the book.
// Validation failures are synchronous and never produce events (spec.md §7).
func (o Order) Validate() error {
	if o.QuantityRemain.IsZero() || o.QuantityRemain.IsNegative() {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	if !o.Marketable && !o.Price.IsPositive() {
		return fmt.Errorf("%w: limit price must be positive", ErrValidation)
	}
	return nil
}

// Execution is a single match between a resting maker and an incoming
// taker. Price is always the maker's resting price.
type Execution struct {
	ExecId      uint64
	Symbol      Symbol
	MakerId     OrderId
	TakerId     OrderId
	Price       Price
	Quantity    Quantity
	TimestampMs uint64
}

// RestState describes the terminal disposition of a submitted order.
type RestState uint8

const (
	FullyFilled RestState = iota
	RestedFully
	RestedPartial
	RemainderCancelled // market order swept partially, remainder dropped
)

// ExecutionReport is the synchronous result of Titan.Submit.
type ExecutionReport struct {
	Order      Order
	Executions []Execution
	State      RestState
}

// PriceLevelView is one aggregated level in a BookView snapshot.
type PriceLevelView struct {
	Price    Price
	Quantity Quantity
}

// BookView is a point-in-time, best-first snapshot of one symbol's book.
type BookView struct {
	Symbol Symbol
	Bids   []PriceLevelView
	Asks   []PriceLevelView
}
