package ebr

import (
	"sync"
	"sync/atomic"

	"github.com/benz9527/xbsl/lib/hrtime"
	"github.com/benz9527/xbsl/lib/id"
	"github.com/benz9527/xbsl/lib/kv"
)

// ThreadContext is one goroutine's slot in the epoch registry. A
// non-zero epoch means the holder is inside a critical section that
// may still observe blocks retired before that timestamp; zero means
// quiescent.
type ThreadContext struct {
	epoch atomic.Int64
	id    uint64
}

func (tc *ThreadContext) ID() uint64 {
	return tc.id
}

func (tc *ThreadContext) Epoch() int64 {
	return tc.epoch.Load()
}

// Enter publishes the current monotonic timestamp as this context's
// epoch. Must be paired with Exit.
func (tc *ThreadContext) Enter() {
	tc.epoch.Store(hrtime.MonotonicNanos())
}

func (tc *ThreadContext) Exit() {
	tc.epoch.Store(0)
}

// Registry tracks the contexts whose epochs bound the reclamation
// frontier. Goroutines do not own a fixed context; Acquire hands out a
// registered one per critical section from a sync.Pool and Release
// returns it there. Contexts the pool drops during a garbage collection
// are not deregistered: they stay in the registry as quiescent entries,
// and the next Acquire on an empty pool registers a fresh context, so
// the registered set is not bounded by the peak concurrency.
type Registry struct {
	ctxs kv.ThreadSafeStorer[uint64, *ThreadContext]
	gen  id.UUIDGen
	pool sync.Pool
}

func NewRegistry() *Registry {
	gen, err := id.MonotonicNonZeroID()
	if err != nil {
		panic(err)
	}
	r := &Registry{
		ctxs: kv.NewThreadSafeMap[uint64, *ThreadContext](),
		gen:  gen,
	}
	r.pool.New = func() any {
		return r.Register()
	}
	return r
}

// Register creates and tracks a fresh quiescent context.
func (r *Registry) Register() *ThreadContext {
	tc := &ThreadContext{id: r.gen.Number()}
	r.ctxs.AddOrUpdate(tc.id, tc)
	return tc
}

// Deregister removes tc so it no longer constrains the frontier. The
// caller must be quiescent (Exit called) before deregistering.
func (r *Registry) Deregister(tc *ThreadContext) {
	r.ctxs.Delete(tc.id)
}

// Acquire fetches a registered context and enters the critical
// section in one step.
func (r *Registry) Acquire() *ThreadContext {
	tc := r.pool.Get().(*ThreadContext)
	tc.Enter()
	return tc
}

// Release exits the critical section and recycles the context.
func (r *Registry) Release(tc *ThreadContext) {
	tc.Exit()
	r.pool.Put(tc)
}

// MinEpoch returns the smallest non-zero epoch across the registered
// contexts, or now when every context is quiescent. Anything retired
// strictly before the returned timestamp is unreachable.
func (r *Registry) MinEpoch(now int64) int64 {
	min := now
	for _, tc := range r.ctxs.ListValues() {
		if e := tc.Epoch(); e != 0 && e < min {
			min = e
		}
	}
	return min
}
