package bybit

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"bybit-trader/internal/common"

	"github.com/rs/zerolog/log"
)

type leverageBody struct {
	Category     string `json:"category"`
	Symbol       string `json:"symbol"`
	BuyLeverage  string `json:"buyLeverage"`
	SellLeverage string `json:"sellLeverage"`
}

// SetLeverage sets the same leverage for both sides of symbol. A "leverage
// not modified" answer counts as success.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	lev := strconv.Itoa(leverage)
	resp, err := c.doSigned(ctx, http.MethodPost, pathLeverage, nil, leverageBody{
		Category:     common.CategoryLinear,
		Symbol:       symbol,
		BuyLeverage:  lev,
		SellLeverage: lev,
	})
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Int("leverage", leverage).Msg("Failed to set leverage")
		return err
	}
	if respErr := respHasError(resp); respErr != nil {
		var apiErr *APIError
		if errors.As(respErr, &apiErr) && apiErr.Code == RetCodeLeverageNotModified {
			log.Debug().Str("symbol", symbol).Int("leverage", leverage).Msg("Leverage already set")
			return nil
		}
		log.Warn().Err(respErr).Str("symbol", symbol).Int("leverage", leverage).Msg("Exchange rejected leverage change")
		return respErr
	}
	return nil
}
