package titan

import (
	"context"
	"testing"

	"citadel/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMatcher(t *testing.T, onExec func(common.Execution)) (*Matcher, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return New(ctx, []common.Symbol{"BTC-USD"}, onExec), ctx
}

func TestSubmit_RestsWhenNoMatch(t *testing.T) {
	m, ctx := newTestMatcher(t, nil)

	report, err := m.Submit(ctx, common.Order{
		OrderId: 1, Symbol: "BTC-USD", Side: common.Buy, OrderType: common.LimitOrder,
		Price: price("100"), QuantityRemain: qty("1"), QuantityOriginal: qty("1"),
	})
	require.NoError(t, err)
	assert.Equal(t, common.RestedFully, report.State)
	assert.Empty(t, report.Executions)

	view, err := m.Snapshot(ctx, "BTC-USD")
	require.NoError(t, err)
	require.Len(t, view.Bids, 1)
	assert.Equal(t, price("100"), view.Bids[0].Price)
}

func TestSubmit_FullMatch(t *testing.T) {
	var execs []common.Execution
	m, ctx := newTestMatcher(t, func(e common.Execution) { execs = append(execs, e) })

	_, err := m.Submit(ctx, common.Order{
		OrderId: 1, Symbol: "BTC-USD", Side: common.Sell, OrderType: common.LimitOrder,
		Price: price("100"), QuantityRemain: qty("1"), QuantityOriginal: qty("1"),
	})
	require.NoError(t, err)

	report, err := m.Submit(ctx, common.Order{
		OrderId: 2, Symbol: "BTC-USD", Side: common.Buy, OrderType: common.LimitOrder,
		Price: price("100"), QuantityRemain: qty("1"), QuantityOriginal: qty("1"),
	})
	require.NoError(t, err)

	assert.Equal(t, common.FullyFilled, report.State)
	require.Len(t, report.Executions, 1)
	assert.Equal(t, common.OrderId(1), report.Executions[0].MakerId)
	assert.Equal(t, common.OrderId(2), report.Executions[0].TakerId)
	assert.True(t, report.Executions[0].Price.Decimal.Equal(price("100").Decimal), "execution price is the maker's resting price")
	assert.Len(t, execs, 1, "onExec fired once")

	view, err := m.Snapshot(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Empty(t, view.Asks, "fully consumed maker level is removed")
}

func TestSubmit_PartialMatchRests(t *testing.T) {
	m, ctx := newTestMatcher(t, nil)

	_, err := m.Submit(ctx, common.Order{
		OrderId: 1, Symbol: "BTC-USD", Side: common.Sell, OrderType: common.LimitOrder,
		Price: price("100"), QuantityRemain: qty("1"), QuantityOriginal: qty("1"),
	})
	require.NoError(t, err)

	report, err := m.Submit(ctx, common.Order{
		OrderId: 2, Symbol: "BTC-USD", Side: common.Buy, OrderType: common.LimitOrder,
		Price: price("100"), QuantityRemain: qty("3"), QuantityOriginal: qty("3"),
	})
	require.NoError(t, err)

	assert.Equal(t, common.RestedPartial, report.State)
	require.Len(t, report.Executions, 1)
	assert.True(t, report.Order.QuantityRemain.Decimal.Equal(qty("2").Decimal))

	view, err := m.Snapshot(ctx, "BTC-USD")
	require.NoError(t, err)
	require.Len(t, view.Bids, 1)
	assert.True(t, view.Bids[0].Quantity.Decimal.Equal(qty("2").Decimal))
}

func TestSubmit_MarketOrderSweepsAndDropsRemainder(t *testing.T) {
	m, ctx := newTestMatcher(t, nil)

	_, err := m.Submit(ctx, common.Order{
		OrderId: 1, Symbol: "BTC-USD", Side: common.Sell, OrderType: common.LimitOrder,
		Price: price("100"), QuantityRemain: qty("1"), QuantityOriginal: qty("1"),
	})
	require.NoError(t, err)

	report, err := m.Submit(ctx, common.Order{
		OrderId: 2, Symbol: "BTC-USD", Side: common.Buy, OrderType: common.MarketOrder,
		Marketable: true, QuantityRemain: qty("5"), QuantityOriginal: qty("5"),
	})
	require.NoError(t, err)

	assert.Equal(t, common.RemainderCancelled, report.State)
	require.Len(t, report.Executions, 1)
	assert.True(t, report.Executions[0].Quantity.Decimal.Equal(qty("1").Decimal))

	view, err := m.Snapshot(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Empty(t, view.Bids, "market orders never rest")
}

func TestSubmit_PriceTimePriority(t *testing.T) {
	m, ctx := newTestMatcher(t, nil)

	_, err := m.Submit(ctx, common.Order{
		OrderId: 1, Symbol: "BTC-USD", Side: common.Sell, OrderType: common.LimitOrder,
		Price: price("101"), QuantityRemain: qty("1"), QuantityOriginal: qty("1"),
	})
	require.NoError(t, err)
	_, err = m.Submit(ctx, common.Order{
		OrderId: 2, Symbol: "BTC-USD", Side: common.Sell, OrderType: common.LimitOrder,
		Price: price("100"), QuantityRemain: qty("1"), QuantityOriginal: qty("1"),
	})
	require.NoError(t, err)

	report, err := m.Submit(ctx, common.Order{
		OrderId: 3, Symbol: "BTC-USD", Side: common.Buy, OrderType: common.LimitOrder,
		Price: price("101"), QuantityRemain: qty("1"), QuantityOriginal: qty("1"),
	})
	require.NoError(t, err)
	require.Len(t, report.Executions, 1)
	assert.Equal(t, common.OrderId(2), report.Executions[0].MakerId, "best price (100) fills before 101 despite arriving second")
}

func TestSubmit_SamePriceMakersFillInSubmitOrder(t *testing.T) {
	m, ctx := newTestMatcher(t, nil)

	_, err := m.Submit(ctx, common.Order{
		OrderId: 1, Symbol: "BTC-USD", Side: common.Sell, OrderType: common.LimitOrder,
		Price: price("100"), QuantityRemain: qty("1"), QuantityOriginal: qty("1"),
	})
	require.NoError(t, err)
	_, err = m.Submit(ctx, common.Order{
		OrderId: 2, Symbol: "BTC-USD", Side: common.Sell, OrderType: common.LimitOrder,
		Price: price("100"), QuantityRemain: qty("1"), QuantityOriginal: qty("1"),
	})
	require.NoError(t, err)

	report, err := m.Submit(ctx, common.Order{
		OrderId: 3, Symbol: "BTC-USD", Side: common.Buy, OrderType: common.LimitOrder,
		Price: price("100"), QuantityRemain: qty("2"), QuantityOriginal: qty("2"),
	})
	require.NoError(t, err)

	require.Len(t, report.Executions, 2, "one submit sweeping two same-price makers")
	assert.Equal(t, common.OrderId(1), report.Executions[0].MakerId,
		"maker submitted first (lower submit_seq) fills first among equal-price resting orders")
	assert.Equal(t, common.OrderId(2), report.Executions[1].MakerId,
		"maker submitted second fills second despite resting at the same price")
}

func TestCancel_RemovesRestingOrder(t *testing.T) {
	m, ctx := newTestMatcher(t, nil)

	_, err := m.Submit(ctx, common.Order{
		OrderId: 1, Symbol: "BTC-USD", Side: common.Buy, OrderType: common.LimitOrder,
		Price: price("100"), QuantityRemain: qty("1"), QuantityOriginal: qty("1"),
	})
	require.NoError(t, err)

	ok, err := m.Cancel(ctx, "BTC-USD", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Cancel(ctx, "BTC-USD", 1)
	assert.False(t, ok, "second cancel of the same id reports false")
	assert.ErrorIs(t, err, common.ErrUnknownOrder)

	view, err := m.Snapshot(ctx, "BTC-USD")
	require.NoError(t, err)
	assert.Empty(t, view.Bids)
}

func TestSubmit_RejectsUnknownSymbol(t *testing.T) {
	m, ctx := newTestMatcher(t, nil)

	_, err := m.Submit(ctx, common.Order{
		OrderId: 1, Symbol: "ETH-USD", Side: common.Buy, OrderType: common.LimitOrder,
		Price: price("100"), QuantityRemain: qty("1"), QuantityOriginal: qty("1"),
	})
	assert.ErrorIs(t, err, common.ErrUnknownSymbol)
}

func TestSubmit_RejectsInvalidQuantity(t *testing.T) {
	m, ctx := newTestMatcher(t, nil)

	_, err := m.Submit(ctx, common.Order{
		OrderId: 1, Symbol: "BTC-USD", Side: common.Buy, OrderType: common.LimitOrder,
		Price: price("100"), QuantityRemain: qty("0"), QuantityOriginal: qty("0"),
	})
	assert.ErrorIs(t, err, common.ErrValidation)
}
