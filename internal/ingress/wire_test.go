package ingress

import (
	"testing"

	"citadel/internal/common"
	"citadel/internal/wire"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestFromWire_Limit(t *testing.T) {
	req, err := requestFromWire(wire.NewOrderWire{
		Symbol: "BTC-USD", Side: uint8(common.Sell), OrderType: uint8(common.LimitOrder),
		Marketable: false, Price: "50000", Quantity: "1.5", Owner: "bob",
	})
	require.NoError(t, err)
	assert.Equal(t, common.Symbol("BTC-USD"), req.Symbol)
	assert.Equal(t, common.Sell, req.Side)
	assert.False(t, req.Marketable)
	assert.True(t, req.Price.Decimal.Equal(decimal.RequireFromString("50000")))
	assert.Equal(t, "bob", req.Owner)
}

func TestRequestFromWire_Market(t *testing.T) {
	req, err := requestFromWire(wire.NewOrderWire{
		Symbol: "BTC-USD", Side: uint8(common.Buy), OrderType: uint8(common.MarketOrder),
		Marketable: true, Price: "", Quantity: "2", Owner: "carol",
	})
	require.NoError(t, err)
	assert.True(t, req.Marketable)
	assert.True(t, req.Quantity.Decimal.Equal(decimal.RequireFromString("2")))
}

func TestRequestFromWire_RejectsBadLimitPrice(t *testing.T) {
	_, err := requestFromWire(wire.NewOrderWire{
		Symbol: "BTC-USD", Side: uint8(common.Buy), OrderType: uint8(common.LimitOrder),
		Marketable: false, Price: "not-a-number", Quantity: "1", Owner: "dave",
	})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestRequestFromWire_RejectsBadQuantity(t *testing.T) {
	_, err := requestFromWire(wire.NewOrderWire{
		Symbol: "BTC-USD", Side: uint8(common.Buy), OrderType: uint8(common.LimitOrder),
		Marketable: false, Price: "100", Quantity: "not-a-number", Owner: "dave",
	})
	assert.ErrorIs(t, err, common.ErrValidation)
}
