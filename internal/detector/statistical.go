package detector

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/slipstream/slipstream/pkg/models"
)

const (
	ruleLargeAmount = 5000.0
	ruleNightStart  = 22
	ruleNightEnd    = 6
)

// StatisticalDetector falls back to simple rules while the model is still
// warming up, then scores with the shared ensemble. This is the default
// variant for the pipeline: it can flag from the very first record.
type StatisticalDetector struct {
	*Engine
}

// NewStatisticalDetector builds the rule-bootstrapped variant.
func NewStatisticalDetector(cfg Config, logger *zap.Logger, clock Clock) *StatisticalDetector {
	return &StatisticalDetector{Engine: newEngine(cfg, logger, clock)}
}

// Name implements Detector.
func (d *StatisticalDetector) Name() string { return "statistical" }

// SupportsOnlineLearning implements Detector.
func (d *StatisticalDetector) SupportsOnlineLearning() bool { return true }

// Score implements Detector.
func (d *StatisticalDetector) Score(tx *models.Transaction) *models.AnomalyResult {
	if !d.Trained() {
		return d.scoreRules(tx)
	}
	return d.scoreEnsemble(tx)
}

// scoreRules applies the warm-up rules: large amounts and night-time hours
// flag immediately, everything else passes as normal with high confidence.
func (d *StatisticalDetector) scoreRules(tx *models.Transaction) *models.AnomalyResult {
	var (
		isAnomaly bool
		score     float64
		anomaly   = models.AnomalyUnknown
		reasons   []string
	)

	if tx.Amount > ruleLargeAmount {
		isAnomaly = true
		anomaly = models.AnomalyUnusualAmount
		score = 0.8
		reasons = append(reasons, fmt.Sprintf("large amount %.2f", tx.Amount))
	}

	hour := tx.Timestamp.Hour()
	if hour < ruleNightEnd || hour > ruleNightStart {
		isAnomaly = true
		anomaly = models.AnomalyTimePattern
		score = math.Max(score, 0.7)
		reasons = append(reasons, fmt.Sprintf("unusual hour %d", hour))
	}

	confidence := 0.9
	reason := "rule-based: normal transaction"
	if isAnomaly {
		confidence = 0.6
		reason = "rule-based: " + reasons[0]
		for _, r := range reasons[1:] {
			reason += ", " + r
		}
	}

	return &models.AnomalyResult{
		TransactionID:       tx.TransactionID,
		IsAnomaly:           isAnomaly,
		AnomalyScore:        score,
		Confidence:          confidence,
		AnomalyType:         anomaly,
		DetectedAt:          d.clock.Now(),
		OriginalTransaction: tx,
		FeaturesUsed:        d.extractFeatures(tx, d.userProfile(tx.UserID, false)),
		Reason:              reason,
	}
}

var _ Detector = (*StatisticalDetector)(nil)
var _ Detector = (*EnhancedDetector)(nil)
