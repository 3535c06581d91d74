// Package embedbatch implements the priority-queued embedding batcher:
// callers enqueue a text and a priority, the batcher coalesces pending
// requests into bounded-size batches, flushes on a size or time
// trigger, and resolves each caller's callback once its batch's
// EmbeddingService call completes, retrying transient failures with
// exponential backoff.
package embedbatch

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/aman-cerp/ragcore/internal/config"
	"github.com/aman-cerp/ragcore/internal/ragerr"
	"github.com/aman-cerp/ragcore/internal/ragtypes"
)

// Stats is a snapshot of the batcher's running counters.
type Stats struct {
	TotalRequests   int64
	BatchesProcessed int64
	SumBatchSize    int64
	SumLatencyMs    int64
	Errors          int64
	Retries         int64
}

// AverageBatchSize returns SumBatchSize/BatchesProcessed, or 0 when no
// batch has been processed yet.
func (s Stats) AverageBatchSize() float64 {
	if s.BatchesProcessed == 0 {
		return 0
	}
	return float64(s.SumBatchSize) / float64(s.BatchesProcessed)
}

// AverageLatencyMs returns SumLatencyMs/BatchesProcessed, or 0 when no
// batch has been processed yet.
func (s Stats) AverageLatencyMs() float64 {
	if s.BatchesProcessed == 0 {
		return 0
	}
	return float64(s.SumLatencyMs) / float64(s.BatchesProcessed)
}

type request struct {
	text      string
	priority  int
	seq       int64 // enqueue order, for FIFO tie-break within a priority
	resultCh  chan result
	heapIndex int
}

type result struct {
	vector []float32
	err    error
}

// priorityQueue is a max-heap on (priority desc, seq asc).
type priorityQueue []*request

func (pq priorityQueue) Len() int { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority > pq[j].priority
	}
	return pq[i].seq < pq[j].seq
}
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].heapIndex = i
	pq[j].heapIndex = j
}
func (pq *priorityQueue) Push(x any) {
	r := x.(*request)
	r.heapIndex = len(*pq)
	*pq = append(*pq, r)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.heapIndex = -1
	*pq = old[:n-1]
	return r
}

// Batcher is the priority-queued embedding batcher described in this
// package's doc comment. When disabled, Embed bypasses the queue
// entirely and calls the underlying EmbeddingService directly.
type Batcher struct {
	cfg     config.BatcherConfig
	enabled bool
	service ragtypes.EmbeddingService

	mu         sync.Mutex
	queue      priorityQueue
	nextSeq    int64
	processing bool
	flushTimer *time.Timer
	firstWait  time.Time
	closed     bool

	sem *semaphore.Weighted

	statsMu sync.Mutex
	stats   Stats
}

// New constructs a Batcher over service, using cfg's batch_size,
// flush_interval_ms, max_parallel_batches, retry_attempts, and
// retry_delay_ms. enabled=false makes Embed bypass batching entirely.
func New(cfg config.BatcherConfig, service ragtypes.EmbeddingService, enabled bool) *Batcher {
	maxParallel := cfg.MaxParallelBatches
	if maxParallel <= 0 {
		maxParallel = 1
	}
	b := &Batcher{
		cfg:     cfg,
		enabled: enabled,
		service: service,
		sem:     semaphore.NewWeighted(int64(maxParallel)),
	}
	heap.Init(&b.queue)
	return b
}

// Embed enqueues text with the given priority (higher drains first) and
// blocks until its batch resolves or ctx is cancelled. When the batcher
// is disabled, it calls the underlying service directly, bypassing the
// queue per spec.md §4.3's bypass clause.
func (b *Batcher) Embed(ctx context.Context, text string, priority int) ([]float32, error) {
	if !b.enabled {
		return b.service.Embed(ctx, text)
	}

	req := &request{text: text, priority: priority, resultCh: make(chan result, 1)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ragerr.Cancelled("batcher queue is closed")
	}
	req.seq = b.nextSeq
	b.nextSeq++
	if b.queue.Len() == 0 {
		b.firstWait = time.Now()
	}
	heap.Push(&b.queue, req)
	b.statsMu.Lock()
	b.stats.TotalRequests++
	b.statsMu.Unlock()

	b.armTimerLocked()
	shouldFlush := b.queue.Len() >= b.cfg.BatchSize && !b.processing
	b.mu.Unlock()

	if shouldFlush {
		go b.flush(context.Background())
	}

	select {
	case r := <-req.resultCh:
		return r.vector, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// armTimerLocked starts the flush timer for the oldest waiting item if
// one isn't already running. Caller must hold b.mu.
func (b *Batcher) armTimerLocked() {
	if b.flushTimer != nil || b.queue.Len() == 0 {
		return
	}
	interval := time.Duration(b.cfg.FlushIntervalMs) * time.Millisecond
	b.flushTimer = time.AfterFunc(interval, func() {
		b.mu.Lock()
		b.flushTimer = nil
		shouldFlush := b.queue.Len() > 0 && !b.processing
		b.mu.Unlock()
		if shouldFlush {
			b.flush(context.Background())
		}
	})
}

// flush drains up to batch_size items and resolves them, honoring the
// "only one flush at a time" processing latch and the max_parallel_batches
// semaphore cap. Triggers received while a flush is in progress coalesce:
// the next flush call after release picks up whatever accumulated.
func (b *Batcher) flush(ctx context.Context) {
	b.mu.Lock()
	if b.processing || b.queue.Len() == 0 {
		b.mu.Unlock()
		return
	}
	b.processing = true

	n := b.cfg.BatchSize
	if n <= 0 || n > b.queue.Len() {
		n = b.queue.Len()
	}
	batch := make([]*request, 0, n)
	for i := 0; i < n; i++ {
		batch = append(batch, heap.Pop(&b.queue).(*request))
	}
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	b.mu.Unlock()

	if err := b.sem.Acquire(ctx, 1); err != nil {
		b.resolveAll(batch, nil, ragerr.Wrap(ragerr.ErrCodeBatchExhausted, err))
		b.mu.Lock()
		b.processing = false
		b.mu.Unlock()
		return
	}

	go func() {
		b.executeBatch(ctx, batch)
		b.sem.Release(1)

		b.mu.Lock()
		b.processing = false
		more := b.queue.Len() > 0
		b.armTimerLocked()
		b.mu.Unlock()

		// Pull another batch immediately if work remains; flush re-acquires
		// a slot itself, so this only proceeds once the cap has room, per
		// spec.md §4.3's parallelism clause.
		if more {
			b.flush(ctx)
		}
	}()
}

func (b *Batcher) executeBatch(ctx context.Context, batch []*request) {
	texts := make([]string, len(batch))
	for i, r := range batch {
		texts[i] = r.text
	}

	start := time.Now()
	vectors, err, retries := b.embedWithRetry(ctx, texts)
	elapsed := time.Since(start)

	b.statsMu.Lock()
	b.stats.BatchesProcessed++
	b.stats.SumBatchSize += int64(len(batch))
	b.stats.SumLatencyMs += elapsed.Milliseconds()
	b.stats.Retries += int64(retries)
	if err != nil {
		b.stats.Errors++
	}
	b.statsMu.Unlock()

	if err != nil {
		b.resolveAll(batch, nil, ragerr.BatchExhausted(err))
		return
	}
	for i, r := range batch {
		r.resultCh <- result{vector: vectors[i]}
	}
}

// embedWithRetry calls EmbedBatch, retrying with exponential backoff
// retry_delay*(attempt+1) up to retry_attempts on failure.
func (b *Batcher) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error, int) {
	var lastErr error
	retries := 0
	delay := time.Duration(b.cfg.RetryDelayMs) * time.Millisecond

	for attempt := 0; attempt <= b.cfg.RetryAttempts; attempt++ {
		vectors, err := b.service.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil, retries
		}
		lastErr = err
		if attempt >= b.cfg.RetryAttempts {
			break
		}
		retries++
		wait := delay * time.Duration(attempt+1)
		select {
		case <-ctx.Done():
			return nil, ctx.Err(), retries
		case <-time.After(wait):
		}
	}
	return nil, lastErr, retries
}

func (b *Batcher) resolveAll(batch []*request, vectors [][]float32, err error) {
	for i, r := range batch {
		if err != nil {
			r.resultCh <- result{err: err}
			continue
		}
		r.resultCh <- result{vector: vectors[i]}
	}
}

// ClearQueue rejects every pending (not yet batched) callback with a
// cancelled error. Batches already in flight are allowed to complete.
func (b *Batcher) ClearQueue() {
	b.mu.Lock()
	pending := make([]*request, b.queue.Len())
	copy(pending, b.queue)
	b.queue = b.queue[:0]
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	b.mu.Unlock()

	for _, r := range pending {
		r.resultCh <- result{err: ragerr.Cancelled("batcher queue cleared")}
	}
}

// Close clears the queue and stops accepting new requests.
func (b *Batcher) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.ClearQueue()
}

// Stats returns a snapshot of the running counters.
func (b *Batcher) Stats() Stats {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	return b.stats
}
