package bsl

// References:
// https://people.csail.mit.edu/shanir/publications/LazySkipList.pdf
// https://www.cl.cam.ac.uk/teaching/0506/Algorithms/skiplists.pdf
//
// github:
// https://github.com/zhangyunhao116/skipmap
// https://github.com/dgraph-io/badger/tree/master/skl
//
// A block skip-list stores sorted-by-anchor, fixed-capacity blocks of
// (key, value) entries instead of one entry per node. The skip-list
// indexes route a key to the single block whose anchor interval covers
// it; all entry storage and mutation happens inside that block under
// its segmented lock.
//
// Head block        Index blocks
// +----+   +----+   +----+                    +----+
// |MIN |-->|base|-->|a=17|------------------->|MAX |->null
// +----+   +----+   +----+                    +----+
//   | down   |        |                         |
//   v        v        v                         v
// +----+   +----+   +----+   +----+   +----+  +----+
// |MIN |-->|base|-->|a=17|-->|a=33|-->|a=60|->|MAX |->null
// +----+   +----+   +----+   +----+   +----+  +----+
//          {5,9}    {17,21}  {40,33}  {77,60}

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/benz9527/xbsl/lib/ebr"
	"github.com/benz9527/xbsl/lib/id"
)

const (
	xBslMaxLevel         = 32 // level 0 is the block data level.
	xBslDefaultMaxLevel  = int32(16)
	xBslDefaultBlockSize = int64(1024)
	xBslDefaultP         = 0.25 // P = 1/4, a split block has 1/4 probability to gain a level.

	// NotFound is returned by Find and Remove for an absent key. The
	// value -1 is reserved; callers must not insert it as a payload.
	NotFound = int64(-1)
)

var (
	ErrBslInvalidProbability = errors.New("[x-bsl] branching probability out of range (0.0, 1.0)")
	ErrBslInvalidMaxLevel    = errors.New("[x-bsl] max level out of range [2, 32]")
	ErrBslInvalidBlockSize   = errors.New("[x-bsl] max block size must be at least 2")
)

// BlockSkipList is a linearizable ordered int64 -> int64 index.
// Lookups are optimistic and writers coordinate through per-block
// versioned locks, so all methods are safe for concurrent use, except
// Dump which takes no locks at all and must run quiesced.
type BlockSkipList interface {
	Insert(key, val int64)
	Find(key int64) int64
	Remove(key int64) int64
	Len() int64
	Size() uint64
	Empty() bool
	Levels() int32
	BlockCount() int64
	GCQueueDepth() int64
	Dump(w io.Writer)
	Close() error
}

type bslOptions struct {
	p            float64
	maxLevel     int32
	maxBlockSize int64
	mu           mutexImpl
	logger       *zap.Logger
	reclaimer    *ebr.Reclaimer
}

type BslOption func(*bslOptions) error

func WithProbability(p float64) BslOption {
	return func(o *bslOptions) error {
		if p <= 0.0 || p >= 1.0 {
			return ErrBslInvalidProbability
		}
		o.p = p
		return nil
	}
}

func WithMaxLevel(level int32) BslOption {
	return func(o *bslOptions) error {
		if level < 2 || level > xBslMaxLevel {
			return ErrBslInvalidMaxLevel
		}
		o.maxLevel = level
		return nil
	}
}

func WithMaxBlockSize(size int64) BslOption {
	return func(o *bslOptions) error {
		if size < 2 {
			return ErrBslInvalidBlockSize
		}
		o.maxBlockSize = size
		return nil
	}
}

// WithConcByGoNative replaces the default spin lock with sync.Mutex.
func WithConcByGoNative() BslOption {
	return func(o *bslOptions) error {
		o.mu = xBslGoMutex
		return nil
	}
}

func WithConcBySpin() BslOption {
	return func(o *bslOptions) error {
		o.mu = xBslSpinMutex
		return nil
	}
}

func WithLogger(logger *zap.Logger) BslOption {
	return func(o *bslOptions) error {
		o.logger = logger
		return nil
	}
}

// WithReclaimer shares an externally owned garbage collector instead of
// letting the list spawn its own. The caller keeps the start/stop
// responsibility.
func WithReclaimer(rec *ebr.Reclaimer) BslOption {
	return func(o *bslOptions) error {
		o.reclaimer = rec
		return nil
	}
}

type xBsl struct {
	head         *bslBlock
	tail         *bslBlock
	pool         *bslAuxPool
	optVer       id.UUIDGen // optimistic lock version generator
	registry     *ebr.Registry
	reclaimer    *ebr.Reclaimer
	logger       *zap.Logger
	p            float64
	maxLevel     int32
	maxBlockSize int64
	muType       mutexImpl
	cardinality  int64
	blocks       int64 // level-0 data block count, diagnostic only
	ownReclaimer bool
}

func New(opts ...BslOption) (BlockSkipList, error) {
	o := &bslOptions{
		p:            xBslDefaultP,
		maxLevel:     xBslDefaultMaxLevel,
		maxBlockSize: xBslDefaultBlockSize,
		mu:           xBslSpinMutex,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	optVer, err := id.MonotonicNonZeroID()
	if err != nil {
		return nil, err
	}

	t := &xBsl{
		optVer:       optVer,
		logger:       o.logger,
		p:            o.p,
		maxLevel:     o.maxLevel,
		maxBlockSize: o.maxBlockSize,
		muType:       o.mu,
	}
	if o.reclaimer != nil {
		t.reclaimer = o.reclaimer
		t.registry = o.reclaimer.Registry()
	} else {
		t.registry = ebr.NewRegistry()
		t.reclaimer = ebr.NewReclaimer(t.registry, ebr.WithGCLogger(o.logger))
		t.reclaimer.Start()
		t.ownReclaimer = true
	}
	t.pool = newBslAuxPool(t.maxLevel)

	// The three immortal blocks bracket every user key:
	// head anchor < any key, base may hold the first keys, tail anchor
	// is strictly above any key and terminates each level.
	t.head = newBslBlock(math.MinInt64, t.maxLevel, 0, t.muType)
	base := newBslBlock(math.MinInt64+1, t.maxLevel, t.maxBlockSize, t.muType)
	t.tail = newBslBlock(math.MaxInt64, t.maxLevel, 0, t.muType)
	for l := int32(0); l < t.maxLevel; l++ {
		t.head.storeForward(l, base)
		base.storeForward(l, t.tail)
	}
	t.blocks = 1

	t.logger.Debug("[x-bsl] initialized",
		zap.Float64("p", t.p),
		zap.Int32("maxLevel", t.maxLevel),
		zap.Int64("maxBlockSize", t.maxBlockSize),
		zap.String("mutex", t.muType.String()),
	)
	return t, nil
}

func (t *xBsl) Len() int64 {
	return atomic.LoadInt64(&t.cardinality)
}

func (t *xBsl) Size() uint64 {
	return uint64(t.Len())
}

func (t *xBsl) Empty() bool {
	return t.Len() == 0
}

func (t *xBsl) Levels() int32 {
	return t.maxLevel
}

func (t *xBsl) BlockCount() int64 {
	return atomic.LoadInt64(&t.blocks)
}

func (t *xBsl) GCQueueDepth() int64 {
	return t.reclaimer.QueueDepth()
}

// Close stops the list-owned garbage collector. A shared reclaimer
// injected through WithReclaimer is left running.
func (t *xBsl) Close() error {
	if t.ownReclaimer {
		t.reclaimer.Stop()
	}
	return nil
}

// Dump writes the level-0 chain with per-block forward anchors and
// keys. It takes no locks and reads plain fields; run it only while no
// writer is active.
func (t *xBsl) Dump(w io.Writer) {
	for blk := t.head; blk != nil; blk = blk.forward[0] {
		_, _ = fmt.Fprintf(w, "[anchor=%d forward={", blk.anchor)
		for l := int32(0); l < t.maxLevel && blk.forward[l] != nil; l++ {
			_, _ = fmt.Fprintf(w, " %d", blk.forward[l].anchor)
		}
		_, _ = fmt.Fprintf(w, " } values={")
		for i := 0; i < len(blk.values); i++ {
			_, _ = fmt.Fprintf(w, " %d", blk.values[i].key)
		}
		_, _ = fmt.Fprintln(w, " }]")
	}
}
