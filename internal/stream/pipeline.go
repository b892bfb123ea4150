package stream

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/slipstream/slipstream/internal/detector"
	"github.com/slipstream/slipstream/internal/monitoring"
	"github.com/slipstream/slipstream/pkg/models"
)

// defaultDrainTimeout bounds the wait for in-flight records on shutdown.
const defaultDrainTimeout = 10 * time.Second

// Pipeline runs the record-level topology: decode, score, observe, encode,
// route to the all-results sink and, when flagged, to the alerts sink.
// Each Source is owned by exactly one worker.
type Pipeline struct {
	detector detector.Detector
	metrics  *monitoring.Collector
	sources  []Source
	results  Sink
	alerts   Sink
	logger   *zap.Logger

	drainTimeout time.Duration
}

// NewPipeline wires the topology. Sources, sinks, detector and metrics are
// injected so tests can swap the transport.
func NewPipeline(
	det detector.Detector,
	metrics *monitoring.Collector,
	sources []Source,
	results Sink,
	alerts Sink,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		detector:     det,
		metrics:      metrics,
		sources:      sources,
		results:      results,
		alerts:       alerts,
		logger:       logger,
		drainTimeout: defaultDrainTimeout,
	}
}

// Run blocks until the context is cancelled and then until all workers have
// drained or the drain timeout has passed, whichever comes first.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline starting",
		zap.Int("workers", len(p.sources)),
		zap.String("detector", p.detector.Name()))
	p.metrics.SetActiveDetectors(int32(len(p.sources)))

	done := make(chan struct{})
	remaining := make(chan int, len(p.sources))
	for i, src := range p.sources {
		go func(id int, src Source) {
			p.worker(ctx, id, src)
			remaining <- id
		}(i, src)
	}
	go func() {
		for range p.sources {
			<-remaining
		}
		close(done)
	}()

	<-ctx.Done()

	// Bounded drain: workers abort their blocking Fetch on cancellation,
	// but give in-flight records time to finish.
	select {
	case <-done:
	case <-time.After(p.drainTimeout):
		p.logger.Warn("drain timeout exceeded, abandoning in-flight records",
			zap.Duration("timeout", p.drainTimeout))
	}

	p.metrics.SetActiveDetectors(0)
	p.closeAll()
	p.logger.Info("pipeline stopped")
	return nil
}

func (p *Pipeline) closeAll() {
	for _, src := range p.sources {
		if err := src.Close(); err != nil {
			p.logger.Warn("source close failed", zap.Error(err))
		}
	}
	if err := p.results.Close(); err != nil {
		p.logger.Warn("results sink close failed", zap.Error(err))
	}
	if err := p.alerts.Close(); err != nil {
		p.logger.Warn("alerts sink close failed", zap.Error(err))
	}
}

// worker pulls records from its source until cancellation. Any failure is
// per-record: the worker itself never dies.
func (p *Pipeline) worker(ctx context.Context, id int, src Source) {
	log := p.logger.With(zap.Int("worker", id))
	log.Info("worker started")

	for {
		rec, err := src.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker stopping")
				return
			}
			log.Error("fetch failed", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		p.handle(ctx, log, rec)
	}
}

// handle processes one record end to end. A panic anywhere inside skips the
// record; the next one processes normally.
func (p *Pipeline) handle(ctx context.Context, log *zap.Logger, rec *Record) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.RecordDrop()
			log.Error("record processing panicked", zap.Any("panic", r),
				zap.ByteString("key", rec.Key))
		}
	}()

	start := time.Now()

	var tx models.Transaction
	if err := json.Unmarshal(rec.Value, &tx); err != nil {
		p.metrics.RecordDrop()
		log.Warn("dropping undecodable record", zap.Error(err),
			zap.ByteString("key", rec.Key))
		return
	}
	if err := tx.Validate(); err != nil {
		p.metrics.RecordDrop()
		log.Warn("dropping invalid record", zap.Error(err),
			zap.String("transaction_id", tx.TransactionID))
		return
	}

	// Score strictly before Observe so the judgement never sees its own
	// record in the baseline.
	result := p.detector.Score(&tx)
	if err := p.detector.Observe(&tx); err != nil {
		log.Warn("model update failed", zap.Error(err),
			zap.String("transaction_id", tx.TransactionID))
	}

	p.metrics.RecordTransaction(time.Since(start))

	data, err := json.Marshal(result)
	if err != nil {
		log.Error("dropping unencodable result", zap.Error(err),
			zap.String("transaction_id", tx.TransactionID))
		return
	}

	if err := p.results.Emit(ctx, rec.Key, data); err != nil {
		log.Error("results publish failed", zap.Error(err),
			zap.String("transaction_id", tx.TransactionID))
	}

	if result.IsAnomaly {
		p.metrics.RecordAnomaly(result)
		log.Info("anomaly detected",
			zap.String("transaction_id", result.TransactionID),
			zap.Float64("score", result.AnomalyScore),
			zap.String("type", string(result.AnomalyType)))
		if err := p.alerts.Emit(ctx, rec.Key, data); err != nil {
			log.Error("alert publish failed", zap.Error(err),
				zap.String("transaction_id", tx.TransactionID))
		} else {
			p.metrics.RecordAlert()
		}
	}
}
