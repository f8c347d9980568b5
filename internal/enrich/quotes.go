package enrich

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/dmaher/quotehub/internal/model"
)

// LatestQuote fetches the most recent NBBO for a symbol from the
// primary data API. Returns ErrNoData if the response carries no
// usable prices.
func (c *Client) LatestQuote(ctx context.Context, symbol string) (model.Quote, error) {
	var resp LatestQuoteResponse
	path := fmt.Sprintf("/v2/stocks/%s/quotes/latest", url.PathEscape(symbol))
	if err := c.get(ctx, path, nil, &resp); err != nil {
		return model.Quote{}, err
	}

	if resp.Quote.BidPrice == 0 && resp.Quote.AskPrice == 0 {
		return model.Quote{}, ErrNoData
	}

	q := model.Quote{
		Symbol:     symbol,
		BidPrice:   resp.Quote.BidPrice,
		AskPrice:   resp.Quote.AskPrice,
		BidSize:    resp.Quote.BidSize,
		AskSize:    resp.Quote.AskSize,
		Timestamp:  resp.Quote.Timestamp,
		DataSource: model.SourceRestAPI,
	}

	// Mid price when both sides are present, otherwise whichever side
	// exists.
	switch {
	case q.BidPrice > 0 && q.AskPrice > 0:
		q.Price = (q.BidPrice + q.AskPrice) / 2
	case q.AskPrice > 0:
		q.Price = q.AskPrice
	default:
		q.Price = q.BidPrice
	}

	return q, nil
}

// Bars fetches up to limit recent OHLCV aggregates for a symbol.
// Returns ErrNoData when the symbol has no bars for the window.
func (c *Client) Bars(ctx context.Context, symbol, timeframe string, limit int) ([]model.Bar, error) {
	query := url.Values{}
	query.Set("timeframe", timeframe)
	query.Set("limit", strconv.Itoa(limit))

	var resp BarsResponse
	path := fmt.Sprintf("/v2/stocks/%s/bars", url.PathEscape(symbol))
	if err := c.get(ctx, path, query, &resp); err != nil {
		return nil, err
	}

	if len(resp.Bars) == 0 {
		return nil, ErrNoData
	}
	return resp.Bars, nil
}
