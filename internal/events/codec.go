package events

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"

	"citadel/internal/common"
	"github.com/shopspring/decimal"
)

// Encode produces the canonical byte representation of ev. The layout is
// part of the external contract (spec.md §6): changing field order or
// widths changes every downstream state hash.
func Encode(ev SystemEvent) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(ev.Kind))

	var err error
	switch ev.Kind {
	case KindOrderPlaced:
		err = encodeOrderPlaced(&buf, ev.OrderPlaced)
	case KindOrderExecuted:
		err = encodeOrderExecuted(&buf, ev.OrderExecuted)
	case KindPositionOpened:
		err = encodePositionOpened(&buf, ev.PositionOpened)
	case KindPositionLiquidated:
		err = encodePositionLiquidated(&buf, ev.PositionLiquidated)
	case KindPriceUpdate:
		err = encodePriceUpdate(&buf, ev.PriceUpdate)
	case KindAccountUpdated:
		err = encodeAccountUpdated(&buf, ev.AccountUpdated)
	default:
		return nil, fmt.Errorf("encode: unknown event kind %d", ev.Kind)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses the canonical byte representation produced by Encode.
func Decode(b []byte) (SystemEvent, error) {
	if len(b) < 1 {
		return SystemEvent{}, fmt.Errorf("decode: empty record")
	}
	r := bytes.NewReader(b[1:])
	kind := Kind(b[0])
	ev := SystemEvent{Kind: kind}

	var err error
	switch kind {
	case KindOrderPlaced:
		ev.OrderPlaced, err = decodeOrderPlaced(r)
	case KindOrderExecuted:
		ev.OrderExecuted, err = decodeOrderExecuted(r)
	case KindPositionOpened:
		ev.PositionOpened, err = decodePositionOpened(r)
	case KindPositionLiquidated:
		ev.PositionLiquidated, err = decodePositionLiquidated(r)
	case KindPriceUpdate:
		ev.PriceUpdate, err = decodePriceUpdate(r)
	case KindAccountUpdated:
		ev.AccountUpdated, err = decodeAccountUpdated(r)
	default:
		return SystemEvent{}, fmt.Errorf("decode: unknown event kind %d", kind)
	}
	if err != nil {
		return SystemEvent{}, err
	}
	return ev, nil
}

// --- primitive encoders -----------------------------------------------

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint32(buf, uint32(len(s)))
	buf.WriteString(s)
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readByte(r *bytes.Reader) (byte, error) {
	return r.ReadByte()
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return "", err
		}
	}
	return string(b), nil
}

// writeDecimal encodes a decimal as (sign byte: 0=non-negative,1=negative,
// scale int32, coefficient-length-prefixed big-endian bytes of |coeff|).
func writeDecimal(buf *bytes.Buffer, d decimal.Decimal) {
	coeff := d.Coefficient() // *big.Int, absolute value semantics via sign below
	sign := byte(0)
	if d.Sign() < 0 {
		sign = 1
	}
	buf.WriteByte(sign)

	var scaleBuf [4]byte
	binary.BigEndian.PutUint32(scaleBuf[:], uint32(-d.Exponent()))
	buf.Write(scaleBuf[:])

	coeffBytes := coeff.Bytes()
	writeUint32(buf, uint32(len(coeffBytes)))
	buf.Write(coeffBytes)
}

func readDecimal(r *bytes.Reader) (decimal.Decimal, error) {
	sign, err := readByte(r)
	if err != nil {
		return decimal.Decimal{}, err
	}
	scaleBits, err := readUint32(r)
	if err != nil {
		return decimal.Decimal{}, err
	}
	exp := -int32(scaleBits)

	n, err := readUint32(r)
	if err != nil {
		return decimal.Decimal{}, err
	}
	coeffBytes := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, coeffBytes); err != nil {
			return decimal.Decimal{}, err
		}
	}

	d := decimal.NewFromBigInt(new(big.Int).SetBytes(coeffBytes), exp)
	if sign == 1 {
		d = d.Neg()
	}
	return d, nil
}

func writePrice(buf *bytes.Buffer, p common.Price) { writeDecimal(buf, p.Decimal) }
func writeQty(buf *bytes.Buffer, q common.Quantity) { writeDecimal(buf, q.Decimal) }

func readPrice(r *bytes.Reader) (common.Price, error) {
	d, err := readDecimal(r)
	if err != nil {
		return common.Price{}, err
	}
	return common.NewPrice(d), nil
}

func readQty(r *bytes.Reader) (common.Quantity, error) {
	d, err := readDecimal(r)
	if err != nil {
		return common.Quantity{}, err
	}
	return common.NewQuantity(d), nil
}

// --- per-variant codecs -------------------------------------------------

func encodeOrderPlaced(buf *bytes.Buffer, e *OrderPlaced) error {
	writeUint64(buf, e.OrderId)
	writeString(buf, e.Symbol)
	buf.WriteByte(e.Side)
	writePrice(buf, e.Price)
	writeQty(buf, e.Quantity)
	writeUint64(buf, e.SubmitSeq)
	writeUint64(buf, e.TsMs)
	return nil
}

func decodeOrderPlaced(r *bytes.Reader) (*OrderPlaced, error) {
	e := &OrderPlaced{}
	var err error
	if e.OrderId, err = readUint64(r); err != nil {
		return nil, err
	}
	if e.Symbol, err = readString(r); err != nil {
		return nil, err
	}
	if e.Side, err = readByte(r); err != nil {
		return nil, err
	}
	if e.Price, err = readPrice(r); err != nil {
		return nil, err
	}
	if e.Quantity, err = readQty(r); err != nil {
		return nil, err
	}
	if e.SubmitSeq, err = readUint64(r); err != nil {
		return nil, err
	}
	if e.TsMs, err = readUint64(r); err != nil {
		return nil, err
	}
	return e, nil
}

func encodeOrderExecuted(buf *bytes.Buffer, e *OrderExecuted) error {
	writeUint64(buf, e.ExecId)
	writeString(buf, e.Symbol)
	writeUint64(buf, e.MakerId)
	writeUint64(buf, e.TakerId)
	writePrice(buf, e.Price)
	writeQty(buf, e.Quantity)
	writeUint64(buf, e.TsMs)
	return nil
}

func decodeOrderExecuted(r *bytes.Reader) (*OrderExecuted, error) {
	e := &OrderExecuted{}
	var err error
	if e.ExecId, err = readUint64(r); err != nil {
		return nil, err
	}
	if e.Symbol, err = readString(r); err != nil {
		return nil, err
	}
	if e.MakerId, err = readUint64(r); err != nil {
		return nil, err
	}
	if e.TakerId, err = readUint64(r); err != nil {
		return nil, err
	}
	if e.Price, err = readPrice(r); err != nil {
		return nil, err
	}
	if e.Quantity, err = readQty(r); err != nil {
		return nil, err
	}
	if e.TsMs, err = readUint64(r); err != nil {
		return nil, err
	}
	return e, nil
}

func encodePositionOpened(buf *bytes.Buffer, e *PositionOpened) error {
	writeUint64(buf, e.UserId)
	writeString(buf, e.Symbol)
	buf.WriteByte(e.Side)
	writeQty(buf, e.Size)
	writePrice(buf, e.EntryPrice)
	writeUint32(buf, e.Leverage)
	writePrice(buf, e.LiquidationPrice)
	writeUint64(buf, e.TsMs)
	return nil
}

func decodePositionOpened(r *bytes.Reader) (*PositionOpened, error) {
	e := &PositionOpened{}
	var err error
	if e.UserId, err = readUint64(r); err != nil {
		return nil, err
	}
	if e.Symbol, err = readString(r); err != nil {
		return nil, err
	}
	if e.Side, err = readByte(r); err != nil {
		return nil, err
	}
	if e.Size, err = readQty(r); err != nil {
		return nil, err
	}
	if e.EntryPrice, err = readPrice(r); err != nil {
		return nil, err
	}
	if e.Leverage, err = readUint32(r); err != nil {
		return nil, err
	}
	if e.LiquidationPrice, err = readPrice(r); err != nil {
		return nil, err
	}
	if e.TsMs, err = readUint64(r); err != nil {
		return nil, err
	}
	return e, nil
}

func encodePositionLiquidated(buf *bytes.Buffer, e *PositionLiquidated) error {
	writeUint64(buf, e.UserId)
	writeString(buf, e.Symbol)
	writeQty(buf, e.Size)
	writePrice(buf, e.MarkPrice)
	writePrice(buf, e.RealizedLoss)
	writeUint64(buf, e.TsMs)
	return nil
}

func decodePositionLiquidated(r *bytes.Reader) (*PositionLiquidated, error) {
	e := &PositionLiquidated{}
	var err error
	if e.UserId, err = readUint64(r); err != nil {
		return nil, err
	}
	if e.Symbol, err = readString(r); err != nil {
		return nil, err
	}
	if e.Size, err = readQty(r); err != nil {
		return nil, err
	}
	if e.MarkPrice, err = readPrice(r); err != nil {
		return nil, err
	}
	if e.RealizedLoss, err = readPrice(r); err != nil {
		return nil, err
	}
	if e.TsMs, err = readUint64(r); err != nil {
		return nil, err
	}
	return e, nil
}

func encodePriceUpdate(buf *bytes.Buffer, e *PriceUpdate) error {
	writeString(buf, e.Symbol)
	writePrice(buf, e.Price)
	writeUint64(buf, e.InternalSeq)
	writeUint64(buf, e.TsMs)
	return nil
}

func decodePriceUpdate(r *bytes.Reader) (*PriceUpdate, error) {
	e := &PriceUpdate{}
	var err error
	if e.Symbol, err = readString(r); err != nil {
		return nil, err
	}
	if e.Price, err = readPrice(r); err != nil {
		return nil, err
	}
	if e.InternalSeq, err = readUint64(r); err != nil {
		return nil, err
	}
	if e.TsMs, err = readUint64(r); err != nil {
		return nil, err
	}
	return e, nil
}

func encodeAccountUpdated(buf *bytes.Buffer, e *AccountUpdated) error {
	writeUint64(buf, e.UserId)
	writePrice(buf, e.Collateral)
	writePrice(buf, e.UnrealizedPnl)
	writeUint64(buf, e.TsMs)
	return nil
}

func decodeAccountUpdated(r *bytes.Reader) (*AccountUpdated, error) {
	e := &AccountUpdated{}
	var err error
	if e.UserId, err = readUint64(r); err != nil {
		return nil, err
	}
	if e.Collateral, err = readPrice(r); err != nil {
		return nil, err
	}
	if e.UnrealizedPnl, err = readPrice(r); err != nil {
		return nil, err
	}
	if e.TsMs, err = readUint64(r); err != nil {
		return nil, err
	}
	return e, nil
}
