package model

import (
	"strings"
	"time"
)

// Data source labels identifying which upstream produced the most
// recent value for a quote.
const (
	SourceLiveFeed = "live_feed"
	SourceRestAPI  = "rest_api"
	SourceChart    = "chart"
	SourceBars     = "bars"
)

// Quote is the last-value state for a single symbol. Fields are merged
// per event: a trade update sets Price/Volume without touching bid/ask,
// a quote update sets bid/ask without touching Price/Volume.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	BidPrice      float64   `json:"bidPrice"`
	AskPrice      float64   `json:"askPrice"`
	BidSize       float64   `json:"bidSize"`
	AskSize       float64   `json:"askSize"`
	Volume        int64     `json:"volume"`
	DayHigh       float64   `json:"dayHigh"`
	DayLow        float64   `json:"dayLow"`
	PreviousClose float64   `json:"previousClose"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"changePercent"`
	Timestamp     time.Time `json:"timestamp"`
	DataSource    string    `json:"dataSource"`
}

// Bar is a single OHLCV aggregate returned by the bars endpoint.
type Bar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    int64     `json:"v"`
}

// NormalizeSymbol canonicalizes a user-supplied symbol: trimmed,
// uppercased. Returns "" for blank input.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
