package detector

import (
	"go.uber.org/zap"

	"github.com/slipstream/slipstream/pkg/models"
)

// EnhancedDetector is the ensemble variant. Until the model has seen
// MinTrainingSamples observations it returns a fixed "normal" result rather
// than guessing from rules.
type EnhancedDetector struct {
	*Engine
}

// NewEnhancedDetector builds the ensemble variant.
func NewEnhancedDetector(cfg Config, logger *zap.Logger, clock Clock) *EnhancedDetector {
	return &EnhancedDetector{Engine: newEngine(cfg, logger, clock)}
}

// Name implements Detector.
func (d *EnhancedDetector) Name() string { return "enhanced-ml" }

// SupportsOnlineLearning implements Detector.
func (d *EnhancedDetector) SupportsOnlineLearning() bool { return true }

// Score implements Detector.
func (d *EnhancedDetector) Score(tx *models.Transaction) *models.AnomalyResult {
	if !d.Trained() {
		return &models.AnomalyResult{
			TransactionID:       tx.TransactionID,
			IsAnomaly:           false,
			AnomalyScore:        0.1,
			Confidence:          0.8,
			AnomalyType:         models.AnomalyUnknown,
			DetectedAt:          d.clock.Now(),
			OriginalTransaction: tx,
			FeaturesUsed:        map[string]float64{},
			Reason:              "model-not-trained: default normal",
		}
	}
	return d.scoreEnsemble(tx)
}
