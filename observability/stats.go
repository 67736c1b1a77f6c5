package observability

import (
	"context"
	"runtime"
	"strings"
	"sync"

	"github.com/samber/lo"
	otelruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	once sync.Once
)

// IndexStatsSource is the read-only view an index exposes for metric
// callbacks. All methods must be safe for concurrent use.
type IndexStatsSource interface {
	Len() int64
	BlockCount() int64
	GCQueueDepth() int64
}

type indexStats struct {
	ctx              context.Context
	shutdownCallback func(ctx context.Context) error
	cardinality      metric.Int64ObservableUpDownCounter
	blocks           metric.Int64ObservableUpDownCounter
	gcQueueDepth     metric.Int64ObservableUpDownCounter
	goroutines       metric.Int64ObservableUpDownCounter
}

func (stats *indexStats) waitForShutdown() {
	if stats == nil || stats.shutdownCallback == nil {
		return
	}
	go func() {
		select {
		case <-stats.ctx.Done():
			_ = stats.shutdownCallback(context.Background())
		}
	}()
}

// InitIndexStats registers observable gauges over one index. Only the
// first call takes effect.
func InitIndexStats(ctx context.Context, name string, src IndexStatsSource) {
	once.Do(func() {
		builder := &strings.Builder{}
		builder.WriteString("xbsl/index")
		if len(strings.TrimSpace(name)) > 0 {
			builder.Write([]byte("/"))
			builder.WriteString(name)
		} else {
			builder.Write([]byte("/"))
			builder.WriteString("default")
		}
		name = builder.String()
		meter := otel.Meter(
			name,
			metric.WithInstrumentationVersion(otelruntime.Version()),
		)
		stats := &indexStats{
			ctx: ctx,
			cardinality: lo.Must[metric.Int64ObservableUpDownCounter](meter.Int64ObservableUpDownCounter(
				"index.cardinality",
				metric.WithDescription(`The number of live entries in the index.`),
				metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
					ob.Observe(src.Len())
					return nil
				}),
			)),
			blocks: lo.Must[metric.Int64ObservableUpDownCounter](meter.Int64ObservableUpDownCounter(
				"index.blocks",
				metric.WithDescription(`The number of data blocks in the index.`),
				metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
					ob.Observe(src.BlockCount())
					return nil
				}),
			)),
			gcQueueDepth: lo.Must[metric.Int64ObservableUpDownCounter](meter.Int64ObservableUpDownCounter(
				"ebr.queue.depth",
				metric.WithDescription(`The number of retired objects awaiting reclamation.`),
				metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
					ob.Observe(src.GCQueueDepth())
					return nil
				}),
			)),
			goroutines: lo.Must[metric.Int64ObservableUpDownCounter](meter.Int64ObservableUpDownCounter(
				"app.core.goroutines",
				metric.WithDescription(`The application goroutines' info.`),
				metric.WithInt64Callback(func(ctx context.Context, ob metric.Int64Observer) error {
					gNum := runtime.NumGoroutine()
					ob.Observe(int64(gNum))
					return nil
				}),
			)),
		}
		_ = otelruntime.Start()
		stats.waitForShutdown()
	})
}
