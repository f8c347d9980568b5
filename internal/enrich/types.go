package enrich

import (
	"errors"
	"time"

	"github.com/dmaher/quotehub/internal/model"
)

// ErrNoData indicates a source answered but had nothing for the symbol.
var ErrNoData = errors.New("no data for symbol")

// LatestQuoteResponse from GET /v2/stocks/{symbol}/quotes/latest
type LatestQuoteResponse struct {
	Symbol string   `json:"symbol"`
	Quote  APIQuote `json:"quote"`
}

// APIQuote is the NBBO payload of the latest-quote endpoint.
type APIQuote struct {
	BidPrice  float64   `json:"bp"`
	AskPrice  float64   `json:"ap"`
	BidSize   float64   `json:"bs"`
	AskSize   float64   `json:"as"`
	Timestamp time.Time `json:"t"`
}

// BarsResponse from GET /v2/stocks/{symbol}/bars
type BarsResponse struct {
	Symbol        string      `json:"symbol"`
	Bars          []model.Bar `json:"bars"`
	NextPageToken *string     `json:"next_page_token"`
}

// ChartResponse from GET /v8/finance/chart/{symbol}
type ChartResponse struct {
	Chart struct {
		Result []ChartResult `json:"result"`
		Error  *ChartError   `json:"error"`
	} `json:"chart"`
}

// ChartResult carries the session-aware price metadata; the indicator
// series is ignored.
type ChartResult struct {
	Meta ChartMeta `json:"meta"`
}

// ChartMeta is the subset of chart metadata the resolver consumes.
type ChartMeta struct {
	Symbol               string  `json:"symbol"`
	RegularMarketPrice   float64 `json:"regularMarketPrice"`
	PreMarketPrice       float64 `json:"preMarketPrice"`
	PostMarketPrice      float64 `json:"postMarketPrice"`
	ChartPreviousClose   float64 `json:"chartPreviousClose"`
	RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
	RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
	RegularMarketVolume  int64   `json:"regularMarketVolume"`
	RegularMarketTime    int64   `json:"regularMarketTime"`
	MarketState          string  `json:"marketState"` // "PRE", "REGULAR", "POST", "CLOSED"
}

// ChartError is the provider's error envelope.
type ChartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}
