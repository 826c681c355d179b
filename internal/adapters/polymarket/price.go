package polymarket

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// priceResponse es la respuesta de /price. El CLOB devuelve el precio como string.
type priceResponse struct {
	Price string `json:"price"`
}

// FetchPrice obtiene el precio BUY actual de un token vía GET /price.
// Una sola llamada con timeout corto y sin retries: para la selección de lado,
// un precio viejo es peor que saltarse el trade.
func (c *Client) FetchPrice(ctx context.Context, tokenID string) (float64, error) {
	u := fmt.Sprintf("%s/price?token_id=%s&side=BUY", c.clobBase, url.QueryEscape(tokenID))

	var resp priceResponse
	if err := c.getOnce(ctx, c.clobLimiter, u, &resp); err != nil {
		return 0, fmt.Errorf("polymarket.FetchPrice: %w", err)
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket.FetchPrice: parse %q: %w", resp.Price, err)
	}
	return price, nil
}
