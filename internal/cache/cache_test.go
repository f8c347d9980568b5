package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/dmaher/quotehub/internal/model"
)

func TestGet_Absent(t *testing.T) {
	c := New()

	if _, ok := c.Get("AAPL"); ok {
		t.Error("expected no quote for unseen symbol")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestApplyTrade_ThenQuote_PreservesFields(t *testing.T) {
	c := New()
	ts := time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC)

	c.ApplyTrade("AAPL", 150.00, 100, ts)
	got := c.ApplyQuote("AAPL", 149.95, 150.05, 300, 200, ts.Add(time.Second))

	if got.Price != 150.00 {
		t.Errorf("Price = %v, want 150.00", got.Price)
	}
	if got.Volume != 100 {
		t.Errorf("Volume = %d, want 100", got.Volume)
	}
	if got.BidPrice != 149.95 || got.AskPrice != 150.05 {
		t.Errorf("bid/ask = %v/%v, want 149.95/150.05", got.BidPrice, got.AskPrice)
	}
	if got.BidSize != 300 || got.AskSize != 200 {
		t.Errorf("bid/ask size = %v/%v, want 300/200", got.BidSize, got.AskSize)
	}
	if got.DataSource != model.SourceLiveFeed {
		t.Errorf("DataSource = %q, want %q", got.DataSource, model.SourceLiveFeed)
	}
}

func TestApplyQuote_ThenTrade_PreservesFields(t *testing.T) {
	c := New()
	ts := time.Date(2024, 1, 16, 14, 30, 0, 0, time.UTC)

	c.ApplyQuote("MSFT", 410.10, 410.20, 50, 75, ts)
	got := c.ApplyTrade("MSFT", 410.15, 25, ts.Add(time.Second))

	if got.BidPrice != 410.10 || got.AskPrice != 410.20 {
		t.Errorf("bid/ask = %v/%v, want 410.10/410.20", got.BidPrice, got.AskPrice)
	}
	if got.Price != 410.15 {
		t.Errorf("Price = %v, want 410.15", got.Price)
	}
	if got.Volume != 25 {
		t.Errorf("Volume = %d, want 25", got.Volume)
	}
}

func TestApplyTrade_AccumulatesVolume(t *testing.T) {
	c := New()
	ts := time.Now()

	c.ApplyTrade("SPY", 500.00, 100, ts)
	c.ApplyTrade("SPY", 500.10, 50, ts)
	got := c.ApplyTrade("SPY", 500.05, 10, ts)

	if got.Volume != 160 {
		t.Errorf("Volume = %d, want 160", got.Volume)
	}
	if got.Price != 500.05 {
		t.Errorf("Price = %v, want 500.05", got.Price)
	}
}

func TestApplyTrade_ComputesChange(t *testing.T) {
	c := New()

	c.ApplySnapshot(model.Quote{Symbol: "AAPL", PreviousClose: 100.00, DataSource: model.SourceRestAPI})
	got := c.ApplyTrade("AAPL", 110.00, 10, time.Now())

	if got.Change != 10.00 {
		t.Errorf("Change = %v, want 10.00", got.Change)
	}
	if got.ChangePercent != 10.00 {
		t.Errorf("ChangePercent = %v, want 10.00", got.ChangePercent)
	}
}

func TestApplySnapshot_DoesNotOverwriteLiveFields(t *testing.T) {
	c := New()
	ts := time.Now()

	// Live events arrive while enrichment is in flight.
	c.ApplyTrade("TSLA", 250.00, 500, ts)
	c.ApplyQuote("TSLA", 249.90, 250.10, 10, 20, ts)

	got := c.ApplySnapshot(model.Quote{
		Symbol:        "TSLA",
		Price:         245.00, // stale
		BidPrice:      244.00,
		AskPrice:      246.00,
		Volume:        100,
		DayHigh:       255.00,
		DayLow:        240.00,
		PreviousClose: 248.00,
		DataSource:    model.SourceRestAPI,
	})

	if got.Price != 250.00 {
		t.Errorf("Price = %v, want live 250.00", got.Price)
	}
	if got.BidPrice != 249.90 || got.AskPrice != 250.10 {
		t.Errorf("bid/ask = %v/%v, want live 249.90/250.10", got.BidPrice, got.AskPrice)
	}
	if got.Volume != 500 {
		t.Errorf("Volume = %d, want live 500", got.Volume)
	}
	if got.DayHigh != 255.00 || got.DayLow != 240.00 {
		t.Errorf("day range = %v/%v, want 255.00/240.00", got.DayHigh, got.DayLow)
	}
	if got.PreviousClose != 248.00 {
		t.Errorf("PreviousClose = %v, want 248.00", got.PreviousClose)
	}
	if got.DataSource != model.SourceLiveFeed {
		t.Errorf("DataSource = %q, want %q", got.DataSource, model.SourceLiveFeed)
	}
}

func TestApplySnapshot_ColdStart(t *testing.T) {
	c := New()
	ts := time.Date(2024, 1, 16, 21, 0, 0, 0, time.UTC)

	got := c.ApplySnapshot(model.Quote{
		Symbol:        "NVDA",
		Price:         600.00,
		PreviousClose: 590.00,
		Volume:        1000,
		Timestamp:     ts,
		DataSource:    model.SourceChart,
	})

	if got.Price != 600.00 {
		t.Errorf("Price = %v, want 600.00", got.Price)
	}
	if got.Change != 10.00 {
		t.Errorf("Change = %v, want 10.00", got.Change)
	}
	if got.DataSource != model.SourceChart {
		t.Errorf("DataSource = %q, want %q", got.DataSource, model.SourceChart)
	}
	if !got.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
	}
}

func TestUpdate_ConcurrentSameSymbol(t *testing.T) {
	c := New()
	ts := time.Now()

	const writers = 8
	const perWriter = 200

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				if j%2 == 0 {
					c.ApplyTrade("AAPL", 150.00, 1, ts)
				} else {
					c.ApplyQuote("AAPL", 149.99, 150.01, 5, 5, ts)
				}
			}
		}()
	}
	wg.Wait()

	got, ok := c.Get("AAPL")
	if !ok {
		t.Fatal("quote missing after concurrent writes")
	}
	// Every trade added volume 1; interleaved merges must not lose any.
	wantVolume := int64(writers * perWriter / 2)
	if got.Volume != wantVolume {
		t.Errorf("Volume = %d, want %d (lost updates)", got.Volume, wantVolume)
	}
	if got.BidPrice != 149.99 || got.AskPrice != 150.01 {
		t.Errorf("bid/ask = %v/%v, want 149.99/150.01", got.BidPrice, got.AskPrice)
	}
}
