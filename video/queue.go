package video

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// DefaultQueueDepth keeps a live feed no more than three frames behind.
const DefaultQueueDepth = 3

// QueueOptions configures a Queue.
type QueueOptions[T any] struct {
	// MaxDepth bounds the queue. Zero means unbounded (lossless). Negative
	// selects DefaultQueueDepth.
	MaxDepth int
	Logger   log.FieldLogger
	// OnDrop receives every item discarded by the overflow policy, outside
	// the queue lock. The queue owned the item, so OnDrop must release it.
	OnDrop func(T)
}

// QueueStats counts queue traffic since creation.
type QueueStats struct {
	Pushed  uint64
	Popped  uint64
	Dropped uint64
}

// Queue hands items from one goroutine to another in FIFO order.
//
// When MaxDepth > 0 a push that overflows the queue discards the oldest items,
// so a slow consumer always sees the freshest suffix of what was pushed. With
// MaxDepth == 0 nothing is ever discarded and the queue grows without bound.
// Push never blocks; Pop blocks until an item is available.
type Queue[T any] struct {
	mu       sync.Mutex
	notEmpty *sync.Cond

	items    []T
	maxDepth int
	stats    QueueStats

	log    log.FieldLogger
	onDrop func(T)
}

func NewQueue[T any](opts QueueOptions[T]) *Queue[T] {
	if opts.MaxDepth < 0 {
		opts.MaxDepth = DefaultQueueDepth
	}
	if opts.Logger == nil {
		opts.Logger = log.StandardLogger()
	}
	q := &Queue[T]{
		maxDepth: opts.MaxDepth,
		log:      opts.Logger,
		onDrop:   opts.OnDrop,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Push appends item and applies the overflow policy. It returns false when
// the queue is at its maximum depth afterwards, meaning the consumer is not
// keeping up and the next push will drop.
func (q *Queue[T]) Push(item T) bool {
	var dropped []T

	q.mu.Lock()
	q.items = append(q.items, item)
	q.stats.Pushed++
	q.log.WithField("queued", len(q.items)).Debug("Pushed item")

	for q.maxDepth > 0 && len(q.items) > q.maxDepth {
		var zero T
		dropped = append(dropped, q.items[0])
		q.items[0] = zero
		q.items = q.items[1:]
		q.stats.Dropped++
		q.log.WithField("queued", len(q.items)).Warn("Dropped oldest item, consumer is not keeping up")
	}
	maxed := q.maxDepth > 0 && len(q.items) == q.maxDepth
	q.mu.Unlock()

	q.notEmpty.Signal()

	if q.onDrop != nil {
		for _, d := range dropped {
			q.onDrop(d)
		}
	}
	return !maxed
}

// Pop removes and returns the oldest item, blocking until there is one.
func (q *Queue[T]) Pop() T {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 {
		q.notEmpty.Wait()
	}

	var zero T
	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	q.stats.Popped++
	q.log.WithField("queued", len(q.items)).Debug("Popped item")
	return item
}

// Drain removes everything queued without blocking.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	q.stats.Popped += uint64(len(items))
	return items
}

// SetDepth changes the maximum depth. The new limit applies from the next
// push; items already queued are not trimmed. Zero disables dropping.
func (q *Queue[T]) SetDepth(n int) {
	if n < 0 {
		n = 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.maxDepth = n
}

// MaxDepth returns the configured limit.
func (q *Queue[T]) MaxDepth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.maxDepth
}

// Len returns the number of items currently queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}
