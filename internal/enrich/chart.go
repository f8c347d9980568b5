package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/dmaher/quotehub/internal/model"
)

// ChartClient queries the secondary chart endpoint. It needs no
// credentials and is preferred outside regular hours because its
// metadata carries pre/post session prices.
type ChartClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// ChartOption configures a ChartClient.
type ChartOption func(*ChartClient)

// WithChartTimeout sets the HTTP client timeout.
func WithChartTimeout(d time.Duration) ChartOption {
	return func(c *ChartClient) {
		c.httpClient.Timeout = d
	}
}

// WithChartLogger sets the logger.
func WithChartLogger(logger *slog.Logger) ChartOption {
	return func(c *ChartClient) {
		c.logger = logger
	}
}

// WithChartHTTPClient sets a custom HTTP client.
func WithChartHTTPClient(hc *http.Client) ChartOption {
	return func(c *ChartClient) {
		c.httpClient = hc
	}
}

// NewChartClient creates a chart endpoint client.
func NewChartClient(baseURL string, opts ...ChartOption) *ChartClient {
	c := &ChartClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot fetches session-aware price metadata for a symbol and maps
// it onto a Quote. The price field is chosen by the provider-reported
// market state: pre/post session prices when present, the regular
// price otherwise. Returns ErrNoData when the provider has nothing.
func (c *ChartClient) Snapshot(ctx context.Context, symbol string) (model.Quote, error) {
	fullURL := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d",
		c.baseURL, url.PathEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return model.Quote{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; quotehub)")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Quote{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Quote{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return model.Quote{}, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	var decoded ChartResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return model.Quote{}, fmt.Errorf("unmarshal chart response: %w", err)
	}

	if decoded.Chart.Error != nil {
		return model.Quote{}, fmt.Errorf("chart error %s: %s",
			decoded.Chart.Error.Code, decoded.Chart.Error.Description)
	}
	if len(decoded.Chart.Result) == 0 {
		return model.Quote{}, ErrNoData
	}

	meta := decoded.Chart.Result[0].Meta
	if meta.RegularMarketPrice == 0 && meta.PreMarketPrice == 0 && meta.PostMarketPrice == 0 {
		return model.Quote{}, ErrNoData
	}

	price := meta.RegularMarketPrice
	switch meta.MarketState {
	case "PRE":
		if meta.PreMarketPrice > 0 {
			price = meta.PreMarketPrice
		}
	case "POST", "POSTPOST", "CLOSED":
		if meta.PostMarketPrice > 0 {
			price = meta.PostMarketPrice
		}
	}

	q := model.Quote{
		Symbol:        symbol,
		Price:         price,
		Volume:        meta.RegularMarketVolume,
		DayHigh:       meta.RegularMarketDayHigh,
		DayLow:        meta.RegularMarketDayLow,
		PreviousClose: meta.ChartPreviousClose,
		Timestamp:     time.Unix(meta.RegularMarketTime, 0).UTC(),
		DataSource:    model.SourceChart,
	}
	if meta.RegularMarketTime == 0 {
		q.Timestamp = time.Now().UTC()
	}

	return q, nil
}
