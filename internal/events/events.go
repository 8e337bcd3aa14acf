// Package events defines the SystemEvent variants that flow from Titan and
// Sentinel into Oracle, and their canonical, deterministic byte encoding.
//
// Canonical serialization (spec.md §4.2 / §6): fixed field order, decimals
// encoded as (sign byte, scale int32, coefficient length-prefixed big-endian
// bytes), strings length-prefixed UTF-8, variants tagged by a stable 1-byte
// discriminant. This is intentionally hand-rolled rather than gob/protobuf:
// the state hash is a pure function of these exact bytes, so the encoding
// must never change shape across Go versions or library releases the way a
// reflection-based encoder's wire format can. See DESIGN.md.
package events

import (
	"citadel/internal/common"
)

// Kind is the 1-byte discriminant tag for a SystemEvent variant.
type Kind uint8

const (
	KindOrderPlaced Kind = iota + 1
	KindOrderExecuted
	KindPositionOpened
	KindPositionLiquidated
	KindPriceUpdate
	KindAccountUpdated
)

// SystemEvent is the tagged union of every domain fact that can be
// appended to Oracle. Exactly one of the payload fields is meaningful,
// selected by Kind.
type SystemEvent struct {
	Kind Kind

	OrderPlaced        *OrderPlaced
	OrderExecuted      *OrderExecuted
	PositionOpened     *PositionOpened
	PositionLiquidated *PositionLiquidated
	PriceUpdate        *PriceUpdate
	AccountUpdated     *AccountUpdated
}

// OrderPlaced records a newly submitted order, before any matching.
type OrderPlaced struct {
	OrderId   uint64
	Symbol    string
	Side      uint8 // 0=Buy, 1=Sell
	Price     common.Price
	Quantity  common.Quantity
	SubmitSeq uint64
	TsMs      uint64
}

// OrderExecuted records a single maker/taker match.
type OrderExecuted struct {
	ExecId   uint64
	Symbol   string
	MakerId  uint64
	TakerId  uint64
	Price    common.Price
	Quantity common.Quantity
	TsMs     uint64
}

// PositionOpened records a new or increased position.
type PositionOpened struct {
	UserId          uint64
	Symbol          string
	Side            uint8
	Size            common.Quantity
	EntryPrice      common.Price
	Leverage        uint32
	LiquidationPrice common.Price
	TsMs            uint64
}

// PositionLiquidated records a forced close. RealizedLoss is signed:
// positive means collateral was debited.
type PositionLiquidated struct {
	UserId       uint64
	Symbol       string
	Size         common.Quantity
	MarkPrice    common.Price
	RealizedLoss common.Price // signed decimal, reuses Price's (sign,scale,coeff) shape
	TsMs         uint64
}

// PriceUpdate records one ingested tick.
type PriceUpdate struct {
	Symbol      string
	Price       common.Price
	InternalSeq uint64
	TsMs        uint64
}

// AccountUpdated records the post-event state of a single account's
// collateral and aggregate unrealized PnL.
type AccountUpdated struct {
	UserId         uint64
	Collateral     common.Price
	UnrealizedPnl  common.Price // signed
	TsMs           uint64
}
