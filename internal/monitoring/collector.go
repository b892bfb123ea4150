package monitoring

import (
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/slipstream/slipstream/pkg/models"
)

const recentAnomalyLimit = 100

// Prometheus mirrors of the JSON metrics surface.
var (
	promTransactions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "slipstream",
		Name:      "transactions_processed_total",
		Help:      "Total transactions scored by the pipeline",
	})
	promAnomalies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "slipstream",
		Name:      "anomalies_detected_total",
		Help:      "Total transactions flagged as anomalous",
	}, []string{"type"})
	promAlerts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "slipstream",
		Name:      "alerts_published_total",
		Help:      "Total alerts emitted to the alerts sink",
	})
	promDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "slipstream",
		Name:      "records_dropped_total",
		Help:      "Total records dropped before scoring",
	})
	promProcessing = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "slipstream",
		Name:      "record_processing_seconds",
		Help:      "Per-record processing latency",
		Buckets:   prometheus.DefBuckets,
	})
)

// AnomalySummary is one entry of the recent-anomaly FIFO.
type AnomalySummary struct {
	TransactionID string    `json:"transaction_id"`
	Score         float64   `json:"score"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
}

// Snapshot is the JSON view served by /api/metrics.
type Snapshot struct {
	TotalTransactions     int64     `json:"totalTransactions"`
	TotalAnomalies        int64     `json:"totalAnomalies"`
	TotalAlerts           int64     `json:"totalAlerts"`
	DroppedRecords        int64     `json:"droppedRecords"`
	AnomalyRate           float64   `json:"anomalyRate"`
	AverageProcessingTime float64   `json:"averageProcessingTime"`
	ProcessingRate        float64   `json:"processingRate"`
	ActiveDetectors       int32     `json:"activeDetectors"`
	SystemLoad            float64   `json:"systemLoad"`
	MemoryUsage           uint64    `json:"memoryUsage"`
	LastUpdate            time.Time `json:"lastUpdate"`
}

// Collector aggregates pipeline counters and health gauges. All write paths
// are safe for concurrent use from every worker.
type Collector struct {
	now func() time.Time

	totalTransactions atomic.Int64
	totalAnomalies    atomic.Int64
	totalAlerts       atomic.Int64
	droppedRecords    atomic.Int64
	processingMs      atomic.Int64
	activeDetectors   atomic.Int32
	systemLoad        atomic.Uint64 // float64 bits
	memoryUsed        atomic.Uint64
	lastUpdate        atomic.Int64 // unix nanos

	mu         sync.Mutex
	recent     []AnomalySummary
	typeCounts map[string]int64
	buckets    [60]rateBucket
}

type rateBucket struct {
	sec int64
	n   int64
}

// NewCollector builds a collector on the wall clock.
func NewCollector() *Collector {
	return NewCollectorWithClock(time.Now)
}

// NewCollectorWithClock injects the time source for deterministic tests.
func NewCollectorWithClock(now func() time.Time) *Collector {
	c := &Collector{
		now:        now,
		typeCounts: make(map[string]int64),
	}
	c.lastUpdate.Store(now().UnixNano())
	return c
}

// RecordTransaction counts one processed record and its latency.
func (c *Collector) RecordTransaction(elapsed time.Duration) {
	c.totalTransactions.Add(1)
	c.processingMs.Add(elapsed.Milliseconds())
	c.lastUpdate.Store(c.now().UnixNano())

	promTransactions.Inc()
	promProcessing.Observe(elapsed.Seconds())

	sec := c.now().Unix()
	idx := sec % 60
	c.mu.Lock()
	if c.buckets[idx].sec != sec {
		c.buckets[idx] = rateBucket{sec: sec}
	}
	c.buckets[idx].n++
	c.mu.Unlock()
}

// RecordAnomaly counts a flagged record and appends it to the recent FIFO.
func (c *Collector) RecordAnomaly(result *models.AnomalyResult) {
	c.totalAnomalies.Add(1)
	promAnomalies.WithLabelValues(string(result.AnomalyType)).Inc()

	c.mu.Lock()
	c.typeCounts[string(result.AnomalyType)]++
	c.recent = append(c.recent, AnomalySummary{
		TransactionID: result.TransactionID,
		Score:         result.AnomalyScore,
		Type:          string(result.AnomalyType),
		Timestamp:     c.now(),
	})
	if len(c.recent) > recentAnomalyLimit {
		c.recent = c.recent[len(c.recent)-recentAnomalyLimit:]
	}
	c.mu.Unlock()
}

// RecordAlert counts a record published to the alerts sink.
func (c *Collector) RecordAlert() {
	c.totalAlerts.Add(1)
	promAlerts.Inc()
}

// RecordDrop counts a record rejected before scoring.
func (c *Collector) RecordDrop() {
	c.droppedRecords.Add(1)
	promDropped.Inc()
}

// SetActiveDetectors publishes the current worker count.
func (c *Collector) SetActiveDetectors(n int32) {
	c.activeDetectors.Store(n)
}

// UpdateSystemHealth refreshes memory and load gauges from the runtime.
func (c *Collector) UpdateSystemHealth() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	c.memoryUsed.Store(ms.HeapAlloc)

	load := 0.0
	if ms.Sys > 0 {
		load = float64(ms.HeapAlloc) / float64(ms.Sys)
	}
	c.systemLoad.Store(math.Float64bits(load))
	c.lastUpdate.Store(c.now().UnixNano())
}

// ProcessingRate returns transactions per second over the trailing minute.
func (c *Collector) ProcessingRate() float64 {
	cutoff := c.now().Unix() - 60
	var n int64
	c.mu.Lock()
	for _, b := range c.buckets {
		if b.sec > cutoff {
			n += b.n
		}
	}
	c.mu.Unlock()
	return float64(n) / 60.0
}

// Healthy reports liveness: metrics updated within 5 minutes and load
// below 0.9.
func (c *Collector) Healthy() bool {
	last := time.Unix(0, c.lastUpdate.Load())
	load := math.Float64frombits(c.systemLoad.Load())
	return c.now().Sub(last) < 5*time.Minute && load < 0.9
}

// Snapshot returns the current counter/gauge view.
func (c *Collector) Snapshot() Snapshot {
	txns := c.totalTransactions.Load()
	anomalies := c.totalAnomalies.Load()

	var rate, avg float64
	if txns > 0 {
		rate = float64(anomalies) / float64(txns)
		avg = float64(c.processingMs.Load()) / float64(txns)
	}

	return Snapshot{
		TotalTransactions:     txns,
		TotalAnomalies:        anomalies,
		TotalAlerts:           c.totalAlerts.Load(),
		DroppedRecords:        c.droppedRecords.Load(),
		AnomalyRate:           rate,
		AverageProcessingTime: avg,
		ProcessingRate:        c.ProcessingRate(),
		ActiveDetectors:       c.activeDetectors.Load(),
		SystemLoad:            math.Float64frombits(c.systemLoad.Load()),
		MemoryUsage:           c.memoryUsed.Load(),
		LastUpdate:            time.Unix(0, c.lastUpdate.Load()),
	}
}

// RecentAnomalies returns up to 100 recent flagged records, newest first.
func (c *Collector) RecentAnomalies() []AnomalySummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]AnomalySummary, len(c.recent))
	for i, s := range c.recent {
		out[len(c.recent)-1-i] = s
	}
	return out
}

// Distribution returns anomaly counts keyed by type name.
func (c *Collector) Distribution() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]int64, len(c.typeCounts))
	for k, v := range c.typeCounts {
		out[k] = v
	}
	return out
}
