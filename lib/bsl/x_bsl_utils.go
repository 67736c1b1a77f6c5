package bsl

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/benz9527/xbsl/lib/infra"
)

const unlocked = uint64(0)

type mutexImpl uint8

const (
	xBslSpinMutex mutexImpl = 1 + iota // Lock-free, spin-lock, optimistic-lock
	xBslGoMutex                        // Go native sync mutex
)

func (mu mutexImpl) String() string {
	switch mu {
	case xBslSpinMutex:
		return "spin"
	case xBslGoMutex:
		return "native"
	default:
		return "unknown"
	}
}

// segmentMutex guards one block. The version is the writer's identity;
// a spin mutex stores it as the lock word so unlock only succeeds for
// the holder.
type segmentMutex interface {
	lock(version uint64)
	tryLock(version uint64) bool
	unlock(version uint64) bool
}

type spinMutex uint64

func (m *spinMutex) lock(version uint64) {
	backoff := uint8(1)
	for !atomic.CompareAndSwapUint64((*uint64)(m), unlocked, version) {
		if backoff <= 32 {
			for i := uint8(0); i < backoff; i++ {
				infra.ProcYield(20)
			}
		} else {
			runtime.Gosched()
		}
		if backoff <= 32 {
			backoff <<= 1
		}
	}
}

func (m *spinMutex) tryLock(version uint64) bool {
	return atomic.CompareAndSwapUint64((*uint64)(m), unlocked, version)
}

func (m *spinMutex) unlock(version uint64) bool {
	return atomic.CompareAndSwapUint64((*uint64)(m), version, unlocked)
}

type goSyncMutex struct {
	mu sync.Mutex
}

func (m *goSyncMutex) lock(version uint64) {
	m.mu.Lock()
}

func (m *goSyncMutex) tryLock(version uint64) bool {
	return m.mu.TryLock()
}

func (m *goSyncMutex) unlock(version uint64) bool {
	m.mu.Unlock()
	return true
}

func mutexFactory(e mutexImpl) segmentMutex {
	if e == xBslGoMutex {
		return &goSyncMutex{}
	}
	return new(spinMutex)
}

// bslAux carries the per-level (prev, curr) block pairs and their
// observed versions collected by a descent, plus the coalesced set of
// blocks the writer currently holds locked.
type bslAux struct {
	prev []*bslBlock
	curr []*bslBlock
	pv   []int64
	cv   []int64
	held []*bslBlock
}

func newBslAux(levels int32) *bslAux {
	return &bslAux{
		prev: make([]*bslBlock, levels),
		curr: make([]*bslBlock, levels),
		pv:   make([]int64, levels),
		cv:   make([]int64, levels),
		held: make([]*bslBlock, 0, 2*levels),
	}
}

// lockOrCoalesce try-locks blk unless this writer already holds it.
// A block reappearing across levels is locked exactly once.
func (aux *bslAux) lockOrCoalesce(blk *bslBlock, ver uint64) bool {
	for i := 0; i < len(aux.held); i++ {
		if aux.held[i] == blk {
			return true
		}
	}
	if blk.mu.tryLock(ver) {
		aux.held = append(aux.held, blk)
		return true
	}
	return false
}

func (aux *bslAux) unlockAll(ver uint64) {
	for i := len(aux.held) - 1; i >= 0; i-- {
		aux.held[i].mu.unlock(ver)
	}
	aux.held = aux.held[:0]
}

type bslAuxPool struct {
	auxPool *sync.Pool
}

func newBslAuxPool(levels int32) *bslAuxPool {
	return &bslAuxPool{
		auxPool: &sync.Pool{
			New: func() any {
				return newBslAux(levels)
			},
		},
	}
}

func (p *bslAuxPool) loadAux() *bslAux {
	return p.auxPool.Get().(*bslAux)
}

func (p *bslAuxPool) releaseAux(aux *bslAux) {
	aux.held = aux.held[:0]
	p.auxPool.Put(aux)
}
