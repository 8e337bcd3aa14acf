package ingress

import (
	"fmt"

	"citadel/internal/common"
	"citadel/internal/orchestrator"
	"citadel/internal/wire"
)

// requestFromWire converts a decoded wire.NewOrderWire into the request
// shape Orchestrator.SubmitOrder expects, parsing decimal strings into
// common.Price / common.Quantity.
func requestFromWire(o wire.NewOrderWire) (orchestrator.OrderRequest, error) {
	price, err := common.PriceFromString(o.Price)
	if err != nil && !o.Marketable {
		return orchestrator.OrderRequest{}, fmt.Errorf("%w: price", common.ErrValidation)
	}
	qty, err := common.QuantityFromString(o.Quantity)
	if err != nil {
		return orchestrator.OrderRequest{}, fmt.Errorf("%w: quantity", common.ErrValidation)
	}
	return orchestrator.OrderRequest{
		Symbol:     common.Symbol(o.Symbol),
		Side:       common.Side(o.Side),
		OrderType:  common.OrderType(o.OrderType),
		Price:      price,
		Marketable: o.Marketable,
		Quantity:   qty,
		Owner:      o.Owner,
	}, nil
}
