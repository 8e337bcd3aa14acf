package wire

import (
	"bufio"
	"bytes"
	"testing"

	"citadel/internal/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTrips(t *testing.T) {
	f := Frame{Type: MsgNewOrder, Corr: uuid.New(), Body: []byte("payload")}

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, f))

	got, err := ReadFrame(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, f, got)
}

func TestReadFrame_RejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, Frame{Type: MsgNewOrder, Corr: uuid.New(), Body: make([]byte, maxFrameLen)}))
	_, err := ReadFrame(bufio.NewReader(&buf))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestNewOrderWire_RoundTrips(t *testing.T) {
	o := NewOrderWire{
		Symbol: "BTC-USD", Side: 1, OrderType: 0, Marketable: false,
		Price: "50000.5", Quantity: "1.25", Owner: "alice",
	}
	decoded, err := DecodeNewOrder(EncodeNewOrder(o))
	require.NoError(t, err)
	assert.Equal(t, o, decoded)
}

func TestCancelOrderWire_RoundTrips(t *testing.T) {
	c := CancelOrderWire{Symbol: "ETH-USD", OrderId: 42}
	decoded, err := DecodeCancelOrder(EncodeCancelOrder(c))
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestSnapshotWire_RoundTrips(t *testing.T) {
	s := SnapshotWire{Symbol: "BTC-USD"}
	decoded, err := DecodeSnapshot(EncodeSnapshot(s))
	require.NoError(t, err)
	assert.Equal(t, s, decoded)
}

func TestExecutionReportWire_RoundTrips(t *testing.T) {
	r := ExecutionReportWire{
		State: 1, OrderId: 7, SubmitSeq: 3,
		Executions: []ExecutionWire{
			{ExecId: 1, MakerId: 2, TakerId: 7, Price: "100", Quantity: "0.5"},
			{ExecId: 2, MakerId: 3, TakerId: 7, Price: "101", Quantity: "0.5"},
		},
	}
	decoded, err := DecodeExecutionReport(EncodeExecutionReport(r))
	require.NoError(t, err)
	assert.Equal(t, r, decoded)
}

func TestExecutionReportWire_EmptyExecutions(t *testing.T) {
	r := ExecutionReportWire{State: 0, OrderId: 1, SubmitSeq: 1}
	decoded, err := DecodeExecutionReport(EncodeExecutionReport(r))
	require.NoError(t, err)
	assert.Equal(t, r, decoded)
	assert.Empty(t, decoded.Executions)
}

func TestBookView_RoundTrips(t *testing.T) {
	view := common.BookView{
		Symbol: "BTC-USD",
		Bids: []common.PriceLevelView{
			{Price: common.NewPrice(decimal.RequireFromString("100")), Quantity: common.NewQuantity(decimal.RequireFromString("2"))},
		},
		Asks: []common.PriceLevelView{
			{Price: common.NewPrice(decimal.RequireFromString("101")), Quantity: common.NewQuantity(decimal.RequireFromString("3"))},
		},
	}

	symbol, bids, asks, err := DecodeBookView(EncodeBookView(view))
	require.NoError(t, err)
	assert.Equal(t, "BTC-USD", symbol)
	require.Len(t, bids, 1)
	assert.Equal(t, "100", bids[0].Price)
	assert.Equal(t, "2", bids[0].Quantity)
	require.Len(t, asks, 1)
	assert.Equal(t, "101", asks[0].Price)
}

func TestDecodeNewOrder_RejectsShortBody(t *testing.T) {
	_, err := DecodeNewOrder([]byte{1, 2})
	assert.ErrorIs(t, err, ErrMessageTooShort)
}
