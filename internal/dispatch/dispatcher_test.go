package dispatch

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmaher/quotehub/internal/model"
	"github.com/dmaher/quotehub/internal/registry"
)

// recordingSubscriber collects pushed quotes; optionally fails sends.
type recordingSubscriber struct {
	id   string
	fail bool

	mu       sync.Mutex
	quotes   []model.Quote
	statuses []bool
}

func (s *recordingSubscriber) ID() string { return s.id }

func (s *recordingSubscriber) SendQuote(q model.Quote) error {
	if s.fail {
		return errors.New("send failed")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes = append(s.quotes, q)
	return nil
}

func (s *recordingSubscriber) SendFeedStatus(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, connected)
}

func (s *recordingSubscriber) received() []model.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Quote(nil), s.quotes...)
}

func TestPublish_FansOutToAllSubscribers(t *testing.T) {
	reg := registry.New()
	d := New(reg, nil)

	h1 := &recordingSubscriber{id: "h1"}
	h2 := &recordingSubscriber{id: "h2"}
	reg.Add("AAPL", h1)
	reg.Add("AAPL", h2)

	q := model.Quote{Symbol: "AAPL", Price: 150.00, Volume: 100, Timestamp: time.Now()}
	d.Publish("AAPL", q)

	for _, sub := range []*recordingSubscriber{h1, h2} {
		got := sub.received()
		if len(got) != 1 {
			t.Fatalf("%s received %d quotes, want 1", sub.id, len(got))
		}
		if got[0].Price != 150.00 {
			t.Errorf("%s Price = %v, want 150.00", sub.id, got[0].Price)
		}
	}
}

func TestPublish_NoSubscribers(t *testing.T) {
	reg := registry.New()
	d := New(reg, nil)

	// Must not panic or error; races with unsubscribe are expected.
	d.Publish("GONE", model.Quote{Symbol: "GONE", Price: 1})
}

func TestPublish_IsolatesFailures(t *testing.T) {
	reg := registry.New()
	d := New(reg, nil)

	bad := &recordingSubscriber{id: "bad", fail: true}
	good := &recordingSubscriber{id: "good"}
	reg.Add("MSFT", bad)
	reg.Add("MSFT", good)

	d.Publish("MSFT", model.Quote{Symbol: "MSFT", Price: 410.00})

	if got := good.received(); len(got) != 1 {
		t.Errorf("good subscriber received %d quotes, want 1 despite bad peer", len(got))
	}
}

func TestPublishFeedStatus(t *testing.T) {
	reg := registry.New()
	d := New(reg, nil)

	h1 := &recordingSubscriber{id: "h1"}
	h2 := &recordingSubscriber{id: "h2"}
	reg.Add("AAPL", h1)
	reg.Add("MSFT", h2)

	d.PublishFeedStatus(false)
	d.PublishFeedStatus(true)

	for _, sub := range []*recordingSubscriber{h1, h2} {
		sub.mu.Lock()
		statuses := append([]bool(nil), sub.statuses...)
		sub.mu.Unlock()
		if len(statuses) != 2 || statuses[0] != false || statuses[1] != true {
			t.Errorf("%s statuses = %v, want [false true]", sub.id, statuses)
		}
	}
}
