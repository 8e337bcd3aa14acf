package events

import (
	"testing"

	"citadel/internal/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCodec_RoundTripsEveryVariant(t *testing.T) {
	cases := []SystemEvent{
		{Kind: KindOrderPlaced, OrderPlaced: &OrderPlaced{
			OrderId: 1, Symbol: "BTC-USD", Side: 0,
			Price: common.NewPrice(dec("50000.12345678")), Quantity: common.NewQuantity(dec("1.5")),
			SubmitSeq: 7, TsMs: 1000,
		}},
		{Kind: KindOrderExecuted, OrderExecuted: &OrderExecuted{
			ExecId: 1, Symbol: "BTC-USD", MakerId: 1, TakerId: 2,
			Price: common.NewPrice(dec("50000")), Quantity: common.NewQuantity(dec("0.5")), TsMs: 1001,
		}},
		{Kind: KindPositionOpened, PositionOpened: &PositionOpened{
			UserId: 9, Symbol: "BTC-USD", Side: 0, Size: common.NewQuantity(dec("1")),
			EntryPrice: common.NewPrice(dec("50000")), Leverage: 10,
			LiquidationPrice: common.NewPrice(dec("45000")), TsMs: 1002,
		}},
		{Kind: KindPositionLiquidated, PositionLiquidated: &PositionLiquidated{
			UserId: 9, Symbol: "BTC-USD", Size: common.NewQuantity(dec("1")),
			MarkPrice: common.NewPrice(dec("45000")), RealizedLoss: common.NewPrice(dec("-1000")), TsMs: 1003,
		}},
		{Kind: KindPriceUpdate, PriceUpdate: &PriceUpdate{
			Symbol: "BTC-USD", Price: common.NewPrice(dec("50000")), InternalSeq: 42, TsMs: 1004,
		}},
		{Kind: KindAccountUpdated, AccountUpdated: &AccountUpdated{
			UserId: 9, Collateral: common.NewPrice(dec("999")), UnrealizedPnl: common.NewPrice(dec("-1")), TsMs: 1005,
		}},
	}

	for _, ev := range cases {
		encoded, err := Encode(ev)
		require.NoError(t, err)

		decoded, err := Decode(encoded)
		require.NoError(t, err)

		assert.Equal(t, ev, decoded)
	}
}

func TestCodec_NegativeDecimalsRoundTrip(t *testing.T) {
	ev := SystemEvent{Kind: KindPositionLiquidated, PositionLiquidated: &PositionLiquidated{
		UserId: 1, Symbol: "BTC-USD", Size: common.NewQuantity(dec("1")),
		MarkPrice: common.NewPrice(dec("100")), RealizedLoss: common.NewPrice(dec("-123.45")), TsMs: 1,
	}}
	encoded, err := Encode(ev)
	require.NoError(t, err)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.PositionLiquidated.RealizedLoss.Decimal.Equal(dec("-123.45")))
}

func TestDecode_RejectsEmptyRecord(t *testing.T) {
	_, err := Decode(nil)
	assert.Error(t, err)
}

func TestDecode_RejectsUnknownKind(t *testing.T) {
	_, err := Decode([]byte{0xFF})
	assert.Error(t, err)
}

func TestEncode_RejectsUnknownKind(t *testing.T) {
	_, err := Encode(SystemEvent{Kind: Kind(0xFF)})
	assert.Error(t, err)
}
