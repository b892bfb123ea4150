package models

// AnomalyType labels a flagged record for downstream routing. Values are
// serialised as the lower-snake strings below.
type AnomalyType string

const (
	AnomalyFraud              AnomalyType = "fraud"
	AnomalyUnusualAmount      AnomalyType = "unusual_amount"
	AnomalyVelocity           AnomalyType = "velocity"
	AnomalyLocation           AnomalyType = "location"
	AnomalyTimePattern        AnomalyType = "time_pattern"
	AnomalyMerchantPattern    AnomalyType = "merchant_pattern"
	AnomalyStatisticalOutlier AnomalyType = "statistical_outlier"
	AnomalyUnknown            AnomalyType = "unknown"
)

// AnomalyResult is the judgement emitted for every scored transaction.
type AnomalyResult struct {
	TransactionID       string             `json:"transaction_id"`
	IsAnomaly           bool               `json:"is_anomaly"`
	AnomalyScore        float64            `json:"anomaly_score"`
	Confidence          float64            `json:"confidence"`
	AnomalyType         AnomalyType        `json:"anomaly_type"`
	DetectedAt          CivilTime          `json:"detected_at"`
	OriginalTransaction *Transaction       `json:"original_transaction"`
	FeaturesUsed        map[string]float64 `json:"features_used"`
	Reason              string             `json:"reason"`
}
