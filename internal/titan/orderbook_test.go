package titan

import (
	"testing"

	"citadel/internal/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func price(s string) common.Price {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return common.NewPrice(d)
}

func qty(s string) common.Quantity {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return common.NewQuantity(d)
}

// restOrder directly rests an order on book, bypassing the matcher, for
// tests that only exercise book structure (grounded on the teacher's
// placeTestOrders helper in internal/tests/orderbook_test.go).
func restOrder(book *OrderBook, id common.OrderId, side common.Side, px, q string) {
	o := &common.Order{
		OrderId:          id,
		Symbol:           book.symbol,
		Side:             side,
		OrderType:        common.LimitOrder,
		Price:            price(px),
		QuantityRemain:   qty(q),
		QuantityOriginal: qty(q),
	}
	book.rest(o)
}

func TestOrderBook_RestMultipleLevels(t *testing.T) {
	book := newOrderBook("BTC-USD")

	restOrder(book, 1, common.Buy, "99", "100")
	restOrder(book, 2, common.Buy, "99", "90")
	restOrder(book, 3, common.Buy, "98", "50")

	restOrder(book, 4, common.Sell, "100", "100")
	restOrder(book, 5, common.Sell, "101", "20")

	view := book.Snapshot()
	require.Len(t, view.Bids, 2)
	assert.Equal(t, price("99"), view.Bids[0].Price)
	assert.True(t, view.Bids[0].Quantity.Decimal.Equal(qty("190").Decimal))
	assert.Equal(t, price("98"), view.Bids[1].Price)

	require.Len(t, view.Asks, 2)
	assert.Equal(t, price("100"), view.Asks[0].Price)
	assert.Equal(t, price("101"), view.Asks[1].Price)
}

func TestOrderBook_CancelRemovesOrderAndEmptyLevel(t *testing.T) {
	book := newOrderBook("BTC-USD")
	restOrder(book, 1, common.Buy, "99", "100")
	restOrder(book, 2, common.Buy, "99", "50")

	assert.True(t, book.Cancel(1))
	view := book.Snapshot()
	require.Len(t, view.Bids, 1)
	assert.True(t, view.Bids[0].Quantity.Decimal.Equal(qty("50").Decimal))

	assert.True(t, book.Cancel(2))
	view = book.Snapshot()
	assert.Empty(t, view.Bids)

	assert.False(t, book.Cancel(2), "cancelling an already-removed order reports false")
	assert.False(t, book.Cancel(999), "cancelling an unknown order reports false")
}

func TestOrderBook_BestBidAsk(t *testing.T) {
	book := newOrderBook("BTC-USD")
	_, ok := book.BestBid()
	assert.False(t, ok)

	restOrder(book, 1, common.Buy, "99", "10")
	restOrder(book, 2, common.Buy, "100", "10")
	restOrder(book, 3, common.Sell, "105", "10")
	restOrder(book, 4, common.Sell, "102", "10")

	bid, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, price("100"), bid)

	ask, ok := book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, price("102"), ask)
}

func TestMarketable(t *testing.T) {
	level := &PriceLevel{Price: price("100")}

	buyAtOrAbove := &common.Order{Side: common.Buy, Price: price("100")}
	assert.True(t, marketable(buyAtOrAbove, level))

	buyBelow := &common.Order{Side: common.Buy, Price: price("99")}
	assert.False(t, marketable(buyBelow, level))

	sellAtOrBelow := &common.Order{Side: common.Sell, Price: price("100")}
	assert.True(t, marketable(sellAtOrBelow, level))

	sellAbove := &common.Order{Side: common.Sell, Price: price("101")}
	assert.False(t, marketable(sellAbove, level))

	marketOrder := &common.Order{Marketable: true, Side: common.Sell, Price: price("1000000")}
	assert.True(t, marketable(marketOrder, level))
}
