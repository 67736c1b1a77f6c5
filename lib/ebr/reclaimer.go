package ebr

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/benz9527/xbsl/lib/hrtime"
)

const defaultGCInterval = 1 * time.Second

// gcItem pairs a retired object's deleter with the monotonic
// timestamp of its retirement. Mark reads the clock before taking the
// queue lock, so concurrent marks can be appended slightly out of
// timestamp order.
type gcItem struct {
	ts      int64
	deleter func()
}

// Reclaimer defers destruction of retired objects until every context
// registered at retirement time has passed through a quiescent state.
// One background goroutine sweeps the queue on a fixed interval;
// PerformGCPass runs the same sweep synchronously.
type Reclaimer struct {
	lock      sync.Mutex
	queue     []gcItem
	registry  *Registry
	interval  time.Duration
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	doneC     chan struct{}
	running   int32
	reclaimed atomic.Int64
}

type ReclaimerOption func(*Reclaimer)

func WithGCInterval(d time.Duration) ReclaimerOption {
	return func(r *Reclaimer) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithGCLogger(logger *zap.Logger) ReclaimerOption {
	return func(r *Reclaimer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func NewReclaimer(registry *Registry, opts ...ReclaimerOption) *Reclaimer {
	r := &Reclaimer{
		registry: registry,
		interval: defaultGCInterval,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reclaimer) Registry() *Registry {
	return r.registry
}

// Mark hands a retired object over for deferred destruction. The
// deleter runs at most once, from a GC pass, never from the caller's
// goroutine.
func (r *Reclaimer) Mark(deleter func()) {
	ts := hrtime.MonotonicNanos()
	r.lock.Lock()
	r.queue = append(r.queue, gcItem{ts: ts, deleter: deleter})
	r.lock.Unlock()
}

func (r *Reclaimer) QueueDepth() int64 {
	r.lock.Lock()
	defer r.lock.Unlock()
	return int64(len(r.queue))
}

// Reclaimed reports the total number of items freed so far.
func (r *Reclaimer) Reclaimed() int64 {
	return r.reclaimed.Load()
}

// PerformGCPass frees the queue prefix whose timestamps fall strictly
// before the epoch frontier and returns the number of items freed.
// The sweep stops at the first item at or past the frontier; an item
// queued behind it stays queued until a later pass, even when its own
// timestamp is already behind the frontier.
func (r *Reclaimer) PerformGCPass() int {
	tSafe := r.registry.MinEpoch(hrtime.MonotonicNanos())

	r.lock.Lock()
	n := 0
	for n < len(r.queue) && r.queue[n].ts < tSafe {
		n++
	}
	batch := r.queue[:n:n]
	r.queue = r.queue[n:]
	remaining := len(r.queue)
	r.lock.Unlock()

	for i := 0; i < len(batch); i++ {
		batch[i].deleter()
	}
	if n > 0 {
		r.reclaimed.Add(int64(n))
		r.logger.Debug("[x-bsl-gc] pass",
			zap.Int("freed", n),
			zap.Int("pending", remaining),
			zap.Int64("tSafe", tSafe),
		)
	}
	return n
}

// Start spawns the background sweeper. Idempotent; a second Start is a
// no-op until Stop has completed.
func (r *Reclaimer) Start() {
	if !atomic.CompareAndSwapInt32(&r.running, 0, 1) {
		return
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.doneC = make(chan struct{})
	go func(ctx context.Context, doneC chan struct{}) {
		defer close(doneC)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.PerformGCPass()
			}
		}
	}(r.ctx, r.doneC)
}

// Stop cancels the sweeper and waits for it to drain. Items still
// queued stay queued; a later Start resumes freeing them.
func (r *Reclaimer) Stop() {
	if !atomic.CompareAndSwapInt32(&r.running, 1, 0) {
		return
	}
	r.cancel()
	<-r.doneC
}
