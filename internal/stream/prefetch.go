// Package stream reads task listings from storage on a background goroutine
// and hands them to the caller through a pull iterator with batched
// enrichment.
package stream

import "groupware/internal/models"

const (
	// DefaultMinimumBatch is how many tasks Take(true) waits for before
	// returning, so batched enrichment amortizes its round trips.
	DefaultMinimumBatch = 10
	defaultCapacity     = 1024
)

// Prefetch is the single synchronization point between the producing
// goroutine and the consumer: a bounded single-producer/single-consumer queue
// with minimum-batch wait semantics. The producer closes it via Finish; an
// empty take after Finish is an empty result, not an error.
type Prefetch struct {
	ch  chan *models.Task
	min int

	// one-item lookahead, owned by the consumer side
	head    *models.Task
	hasHead bool
}

func NewPrefetch(capacity, minimum int) *Prefetch {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if minimum <= 0 {
		minimum = DefaultMinimumBatch
	}
	return &Prefetch{ch: make(chan *models.Task, capacity), min: minimum}
}

// Offer hands one task to the buffer. It returns false when cancel fires
// before the buffer accepts the item.
func (p *Prefetch) Offer(t *models.Task, cancel <-chan struct{}) bool {
	select {
	case p.ch <- t:
		return true
	case <-cancel:
		return false
	}
}

// Finish signals that no more items will be offered. One-shot, producer side.
func (p *Prefetch) Finish() { close(p.ch) }

// HasNext blocks until the buffer holds at least one item or Finish was
// called; it returns false only when the buffer is empty and finished.
func (p *Prefetch) HasNext() bool {
	if p.hasHead {
		return true
	}
	t, ok := <-p.ch
	if ok {
		p.head = t
		p.hasHead = true
	}
	return ok
}

// Take atomically drains everything buffered. With requireMinimum it first
// waits until the minimum batch size accumulated or the producer finished;
// without it, it waits only for the first item.
func (p *Prefetch) Take(requireMinimum bool) []*models.Task {
	var batch []*models.Task
	if p.hasHead {
		batch = append(batch, p.head)
		p.head = nil
		p.hasHead = false
	}
	need := 1
	if requireMinimum {
		need = p.min
	}
	for len(batch) < need {
		t, ok := <-p.ch
		if !ok {
			return batch
		}
		batch = append(batch, t)
	}
	for {
		select {
		case t, ok := <-p.ch:
			if !ok {
				return batch
			}
			batch = append(batch, t)
		default:
			return batch
		}
	}
}
