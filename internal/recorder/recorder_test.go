package recorder

import (
	"context"
	"testing"
	"time"

	"github.com/dmaher/quotehub/internal/config"
	"github.com/dmaher/quotehub/internal/model"
)

func testRecorderConfig() config.RecorderConfig {
	return config.RecorderConfig{
		Enabled:       true,
		BatchSize:     100,
		FlushInterval: time.Second,
		BufferSize:    1000,
	}
}

func TestRecorder_EnqueueBuffers(t *testing.T) {
	r := New(testRecorderConfig(), nil, nil)

	r.Enqueue(model.Quote{Symbol: "AAPL", Price: 150.0})
	r.Enqueue(model.Quote{Symbol: "MSFT", Price: 410.0})

	if got := r.buffer.len(); got != 2 {
		t.Errorf("buffered = %d, want 2", got)
	}
	if got := r.Stats().Dropped; got != 0 {
		t.Errorf("Dropped = %d, want 0", got)
	}
}

func TestRecorder_EnqueueAfterCloseCountsDropped(t *testing.T) {
	r := New(testRecorderConfig(), nil, nil)
	r.buffer.close()

	r.Enqueue(model.Quote{Symbol: "AAPL"})
	r.Enqueue(model.Quote{Symbol: "MSFT"})

	if got := r.Stats().Dropped; got != 2 {
		t.Errorf("Dropped = %d, want 2", got)
	}
}

func TestRecorder_FlushEmptyIsNoop(t *testing.T) {
	// A nil pool is safe here: flush returns before touching the
	// database when nothing is buffered.
	r := New(testRecorderConfig(), nil, nil)

	if !r.flush(context.Background()) {
		t.Error("empty flush reported failure")
	}
	st := r.Stats()
	if st.Flushes != 0 || st.Errors != 0 {
		t.Errorf("stats after empty flush = %+v, want zeroes", st)
	}
}
