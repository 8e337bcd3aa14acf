// Package wire is the length-prefixed binary protocol spoken between
// citadeld's ingress server and its clients (orderctl, or any other TCP
// client). Grounded on the teacher's internal/net/messages.go, generalized
// from fixed-width float64 fields and in-process enums to a framed
// protocol carrying decimal strings so both client and server share one
// definition of the wire shape.
package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"citadel/internal/common"
	"github.com/google/uuid"
)

// MsgType tags the payload that follows a Frame's header.
type MsgType uint8

const (
	MsgNewOrder MsgType = iota + 1
	MsgCancelOrder
	MsgSnapshot
	MsgExecutionReport
	MsgCancelAck
	MsgSnapshotReport
	MsgErrorReport
)

var (
	ErrMessageTooShort = errors.New("wire: message too short")
	ErrUnknownMessage  = errors.New("wire: unknown message type")
	ErrFrameTooLarge   = errors.New("wire: frame exceeds maximum size")
)

// maxFrameLen bounds a single frame's payload so a corrupt length prefix
// can never make a reader allocate unbounded memory.
const maxFrameLen = 64 * 1024

// Frame is [4-byte big-endian length][1-byte type][16-byte correlation
// uuid][payload]. length counts everything after itself. The correlation
// id lets a client match a reply to the request that produced it even
// over a connection carrying several in-flight requests.
type Frame struct {
	Type MsgType
	Corr uuid.UUID
	Body []byte
}

func ReadFrame(r *bufio.Reader) (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxFrameLen {
		return Frame{}, ErrFrameTooLarge
	}
	if n < 17 {
		return Frame{}, ErrMessageTooShort
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Frame{}, err
	}
	typ := MsgType(buf[0])
	corr, err := uuid.FromBytes(buf[1:17])
	if err != nil {
		return Frame{}, fmt.Errorf("wire: correlation id: %w", err)
	}
	return Frame{Type: typ, Corr: corr, Body: buf[17:]}, nil
}

func WriteFrame(w io.Writer, f Frame) error {
	total := 1 + 16 + len(f.Body)
	buf := make([]byte, 4+total)
	binary.BigEndian.PutUint32(buf[:4], uint32(total))
	buf[4] = byte(f.Type)
	copy(buf[5:21], f.Corr[:])
	copy(buf[21:], f.Body)
	_, err := w.Write(buf)
	return err
}

func writeLenPrefixed(buf []byte, offset int, s string) int {
	binary.BigEndian.PutUint16(buf[offset:], uint16(len(s)))
	offset += 2
	copy(buf[offset:], s)
	return offset + len(s)
}

func readLenPrefixed(buf []byte, offset int) (string, int, error) {
	if offset+2 > len(buf) {
		return "", 0, ErrMessageTooShort
	}
	n := int(binary.BigEndian.Uint16(buf[offset:]))
	offset += 2
	if offset+n > len(buf) {
		return "", 0, ErrMessageTooShort
	}
	return string(buf[offset : offset+n]), offset + n, nil
}

// NewOrderWire is the client->server payload for MsgNewOrder. Price and
// Quantity travel as decimal strings, not floats (spec.md §4.1: floats
// are never used for money anywhere in this system, including the wire).
type NewOrderWire struct {
	Symbol     string
	Side       uint8
	OrderType  uint8
	Marketable bool
	Price      string
	Quantity   string
	Owner      string
}

func EncodeNewOrder(o NewOrderWire) []byte {
	marketable := byte(0)
	if o.Marketable {
		marketable = 1
	}
	size := 1 + 1 + 1 + 2 + len(o.Symbol) + 2 + len(o.Price) + 2 + len(o.Quantity) + 2 + len(o.Owner)
	buf := make([]byte, size)
	off := 0
	buf[off] = o.Side
	off++
	buf[off] = o.OrderType
	off++
	buf[off] = marketable
	off++
	off = writeLenPrefixed(buf, off, o.Symbol)
	off = writeLenPrefixed(buf, off, o.Price)
	off = writeLenPrefixed(buf, off, o.Quantity)
	off = writeLenPrefixed(buf, off, o.Owner)
	return buf
}

func DecodeNewOrder(body []byte) (NewOrderWire, error) {
	if len(body) < 3 {
		return NewOrderWire{}, ErrMessageTooShort
	}
	o := NewOrderWire{Side: body[0], OrderType: body[1], Marketable: body[2] == 1}
	off := 3
	var err error
	if o.Symbol, off, err = readLenPrefixed(body, off); err != nil {
		return NewOrderWire{}, err
	}
	if o.Price, off, err = readLenPrefixed(body, off); err != nil {
		return NewOrderWire{}, err
	}
	if o.Quantity, off, err = readLenPrefixed(body, off); err != nil {
		return NewOrderWire{}, err
	}
	if o.Owner, _, err = readLenPrefixed(body, off); err != nil {
		return NewOrderWire{}, err
	}
	return o, nil
}

// CancelOrderWire is the client->server payload for MsgCancelOrder.
type CancelOrderWire struct {
	Symbol  string
	OrderId uint64
}

func EncodeCancelOrder(c CancelOrderWire) []byte {
	buf := make([]byte, 8+2+len(c.Symbol))
	binary.BigEndian.PutUint64(buf[:8], c.OrderId)
	writeLenPrefixed(buf, 8, c.Symbol)
	return buf
}

func DecodeCancelOrder(body []byte) (CancelOrderWire, error) {
	if len(body) < 8 {
		return CancelOrderWire{}, ErrMessageTooShort
	}
	c := CancelOrderWire{OrderId: binary.BigEndian.Uint64(body[:8])}
	sym, _, err := readLenPrefixed(body, 8)
	if err != nil {
		return CancelOrderWire{}, err
	}
	c.Symbol = sym
	return c, nil
}

// SnapshotWire is the client->server payload for MsgSnapshot.
type SnapshotWire struct {
	Symbol string
}

func EncodeSnapshot(s SnapshotWire) []byte {
	buf := make([]byte, 2+len(s.Symbol))
	writeLenPrefixed(buf, 0, s.Symbol)
	return buf
}

func DecodeSnapshot(body []byte) (SnapshotWire, error) {
	sym, _, err := readLenPrefixed(body, 0)
	if err != nil {
		return SnapshotWire{}, err
	}
	return SnapshotWire{Symbol: sym}, nil
}

// ExecutionReportWire is the server->client payload for MsgExecutionReport.
type ExecutionReportWire struct {
	State      uint8
	OrderId    uint64
	SubmitSeq  uint64
	Executions []ExecutionWire
}

type ExecutionWire struct {
	ExecId   uint64
	MakerId  uint64
	TakerId  uint64
	Price    string
	Quantity string
}

func EncodeExecutionReport(r ExecutionReportWire) []byte {
	size := 1 + 8 + 8 + 4
	for _, e := range r.Executions {
		size += 8 + 8 + 8 + 2 + len(e.Price) + 2 + len(e.Quantity)
	}
	buf := make([]byte, size)
	off := 0
	buf[off] = r.State
	off++
	binary.BigEndian.PutUint64(buf[off:], r.OrderId)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], r.SubmitSeq)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], uint32(len(r.Executions)))
	off += 4
	for _, e := range r.Executions {
		binary.BigEndian.PutUint64(buf[off:], e.ExecId)
		off += 8
		binary.BigEndian.PutUint64(buf[off:], e.MakerId)
		off += 8
		binary.BigEndian.PutUint64(buf[off:], e.TakerId)
		off += 8
		off = writeLenPrefixed(buf, off, e.Price)
		off = writeLenPrefixed(buf, off, e.Quantity)
	}
	return buf
}

func DecodeExecutionReport(body []byte) (ExecutionReportWire, error) {
	if len(body) < 21 {
		return ExecutionReportWire{}, ErrMessageTooShort
	}
	r := ExecutionReportWire{State: body[0]}
	off := 1
	r.OrderId = binary.BigEndian.Uint64(body[off:])
	off += 8
	r.SubmitSeq = binary.BigEndian.Uint64(body[off:])
	off += 8
	count := binary.BigEndian.Uint32(body[off:])
	off += 4
	for i := uint32(0); i < count; i++ {
		if off+24 > len(body) {
			return ExecutionReportWire{}, ErrMessageTooShort
		}
		var e ExecutionWire
		e.ExecId = binary.BigEndian.Uint64(body[off:])
		off += 8
		e.MakerId = binary.BigEndian.Uint64(body[off:])
		off += 8
		e.TakerId = binary.BigEndian.Uint64(body[off:])
		off += 8
		var err error
		if e.Price, off, err = readLenPrefixed(body, off); err != nil {
			return ExecutionReportWire{}, err
		}
		if e.Quantity, off, err = readLenPrefixed(body, off); err != nil {
			return ExecutionReportWire{}, err
		}
		r.Executions = append(r.Executions, e)
	}
	return r, nil
}

func ErrorBody(msg string) []byte { return []byte(msg) }

// BookLevelWire is one aggregated price level in a snapshot report.
type BookLevelWire struct {
	Price    string
	Quantity string
}

func EncodeBookView(v common.BookView) []byte {
	bids, asks := wireLevels(v.Bids), wireLevels(v.Asks)

	size := 2 + len(v.Symbol) + 4 + 4
	for _, l := range bids {
		size += 2 + len(l.Price) + 2 + len(l.Quantity)
	}
	for _, l := range asks {
		size += 2 + len(l.Price) + 2 + len(l.Quantity)
	}

	buf := make([]byte, size)
	off := writeLenPrefixed(buf, 0, string(v.Symbol))
	binary.BigEndian.PutUint32(buf[off:], uint32(len(bids)))
	off += 4
	for _, l := range bids {
		off = writeLenPrefixed(buf, off, l.Price)
		off = writeLenPrefixed(buf, off, l.Quantity)
	}
	binary.BigEndian.PutUint32(buf[off:], uint32(len(asks)))
	off += 4
	for _, l := range asks {
		off = writeLenPrefixed(buf, off, l.Price)
		off = writeLenPrefixed(buf, off, l.Quantity)
	}
	return buf[:off]
}

func wireLevels(levels []common.PriceLevelView) []BookLevelWire {
	out := make([]BookLevelWire, 0, len(levels))
	for _, l := range levels {
		out = append(out, BookLevelWire{Price: l.Price.Decimal.String(), Quantity: l.Quantity.Decimal.String()})
	}
	return out
}

func DecodeBookView(body []byte) (symbol string, bids, asks []BookLevelWire, err error) {
	off := 0
	if symbol, off, err = readLenPrefixed(body, 0); err != nil {
		return "", nil, nil, err
	}
	if off+4 > len(body) {
		return "", nil, nil, ErrMessageTooShort
	}
	nBids := binary.BigEndian.Uint32(body[off:])
	off += 4
	for i := uint32(0); i < nBids; i++ {
		var l BookLevelWire
		if l.Price, off, err = readLenPrefixed(body, off); err != nil {
			return "", nil, nil, err
		}
		if l.Quantity, off, err = readLenPrefixed(body, off); err != nil {
			return "", nil, nil, err
		}
		bids = append(bids, l)
	}
	if off+4 > len(body) {
		return "", nil, nil, ErrMessageTooShort
	}
	nAsks := binary.BigEndian.Uint32(body[off:])
	off += 4
	for i := uint32(0); i < nAsks; i++ {
		var l BookLevelWire
		if l.Price, off, err = readLenPrefixed(body, off); err != nil {
			return "", nil, nil, err
		}
		if l.Quantity, off, err = readLenPrefixed(body, off); err != nil {
			return "", nil, nil, err
		}
		asks = append(asks, l)
	}
	return symbol, bids, asks, nil
}
