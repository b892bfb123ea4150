package detector

import (
	"github.com/slipstream/slipstream/pkg/models"
)

// Detector scores transactions against learned baselines and folds observed
// records back into those baselines. Implementations are safe for concurrent
// use: any number of Score callers may run alongside the single Observe
// caller for a given user partition.
type Detector interface {
	// Score judges a transaction. It never fails: internal errors degrade
	// to a safe "normal" result.
	Score(tx *models.Transaction) *models.AnomalyResult
	// Observe folds a transaction into the learned state.
	Observe(tx *models.Transaction) error
	// Name identifies the detector variant.
	Name() string
	// SupportsOnlineLearning reports whether Observe updates the model.
	SupportsOnlineLearning() bool
}

// Clock abstracts "now" so detection timestamps are deterministic under
// test. Velocity windows do not use it: they are measured back from the
// scored transaction's own timestamp.
type Clock interface {
	Now() models.CivilTime
}

type systemClock struct{}

func (systemClock) Now() models.CivilTime { return models.CivilNow() }

// SystemClock returns a Clock backed by the wall clock.
func SystemClock() Clock { return systemClock{} }

// Config carries the tunable parameters of the detection engine.
type Config struct {
	// AnomalyThreshold is the base decision threshold before per-user
	// adaptation.
	AnomalyThreshold float64
	// MinTrainingSamples gates scoring until this many observations have
	// been folded in system-wide.
	MinTrainingSamples int
	// Ensemble weights; they must sum to 1.
	WeightStatistical float64
	WeightBehavioural float64
	WeightTemporal    float64
	// VelocityWindowMinutes bounds the look-back for the velocity sub-score.
	VelocityWindowMinutes float64
	// VelocityBurstCount normalises the velocity sub-score.
	VelocityBurstCount int
	// GlobalWindowCapacity sizes the process-wide amount/hour windows.
	GlobalWindowCapacity int
}

// DefaultConfig returns the standard engine parameters.
func DefaultConfig() Config {
	return Config{
		AnomalyThreshold:      0.75,
		MinTrainingSamples:    50,
		WeightStatistical:     0.3,
		WeightBehavioural:     0.4,
		WeightTemporal:        0.3,
		VelocityWindowMinutes: 5,
		VelocityBurstCount:    3,
		GlobalWindowCapacity:  1000,
	}
}
