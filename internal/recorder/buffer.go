package recorder

import (
	"sync"

	"github.com/dmaher/quotehub/internal/model"
)

// quoteBuffer is a thread-safe ring buffer of quote events that
// doubles its capacity when it reaches 70% full, so a slow database
// never backpressures the feed receive loop.
type quoteBuffer struct {
	mu       sync.Mutex
	buf      []model.Quote
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	totalEnqueued int64
	totalDrained  int64
	resizeCount   int
}

func newQuoteBuffer(initialCapacity int) *quoteBuffer {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &quoteBuffer{
		buf:      make([]model.Quote, initialCapacity),
		capacity: initialCapacity,
	}
}

// push adds a quote. Grows the buffer if at 70% capacity. Returns
// false if the buffer is closed.
func (b *quoteBuffer) push(q model.Quote) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := (b.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.grow()
	}

	b.buf[b.tail] = q
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	b.totalEnqueued++
	return true
}

// drain removes up to max quotes, oldest first. Returns nil when empty.
func (b *quoteBuffer) drain(max int) []model.Quote {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}

	n := b.count
	if max > 0 && max < n {
		n = max
	}

	result := make([]model.Quote, n)
	for i := 0; i < n; i++ {
		result[i] = b.buf[b.head]
		b.buf[b.head] = model.Quote{}
		b.head = (b.head + 1) % b.capacity
		b.count--
		b.totalDrained++
	}

	return result
}

// close rejects further pushes; already-buffered quotes stay drainable.
func (b *quoteBuffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func (b *quoteBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// grow doubles the buffer capacity. Must be called with lock held.
func (b *quoteBuffer) grow() {
	newCapacity := b.capacity * 2
	newBuf := make([]model.Quote, newCapacity)

	if b.count > 0 {
		if b.head < b.tail {
			copy(newBuf, b.buf[b.head:b.tail])
		} else {
			n := copy(newBuf, b.buf[b.head:])
			copy(newBuf[n:], b.buf[:b.tail])
		}
	}

	b.buf = newBuf
	b.head = 0
	b.tail = b.count
	b.capacity = newCapacity
	b.resizeCount++
}
