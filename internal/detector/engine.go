package detector

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/slipstream/slipstream/pkg/models"
)

// maxThreshold caps the adaptive per-user decision threshold.
const maxThreshold = 0.95

// Engine is the shared scoring core behind both detector variants. It owns
// the per-user and per-merchant profile maps, the process-wide windows and
// the adaptive-threshold cache.
type Engine struct {
	cfg    Config
	logger *zap.Logger
	clock  Clock

	usersMu sync.RWMutex
	users   map[string]*UserProfile

	merchantsMu sync.RWMutex
	merchants   map[string]*MerchantProfile

	globalMu      sync.Mutex
	globalAmounts *StatsWindow
	globalHours   *StatsWindow

	thresholds sync.Map // user id -> float64

	totalObserved atomic.Int64
}

func newEngine(cfg Config, logger *zap.Logger, clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:           cfg,
		logger:        logger,
		clock:         clock,
		users:         make(map[string]*UserProfile),
		merchants:     make(map[string]*MerchantProfile),
		globalAmounts: NewStatsWindow(cfg.GlobalWindowCapacity),
		globalHours:   NewStatsWindow(cfg.GlobalWindowCapacity),
	}
}

// Observe folds a transaction into global windows, both profiles, and the
// adaptive-threshold cache.
func (e *Engine) Observe(tx *models.Transaction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observe panic: %v", r)
			e.logger.Error("model update failed",
				zap.String("transaction_id", tx.TransactionID),
				zap.Any("panic", r))
		}
	}()

	e.globalMu.Lock()
	e.globalAmounts.Add(tx.Amount)
	e.globalHours.Add(float64(tx.Timestamp.Hour()))
	e.globalMu.Unlock()

	user := e.userProfile(tx.UserID, true)
	user.Observe(tx)

	merchant := e.merchantProfile(tx.MerchantID, true)
	merchant.Observe(tx)

	e.refreshThreshold(tx.UserID, user)

	total := e.totalObserved.Add(1)
	if total == int64(e.cfg.MinTrainingSamples) {
		e.logger.Info("model trained", zap.Int64("samples", total))
	}
	return nil
}

// Trained reports whether enough samples have been observed system-wide.
func (e *Engine) Trained() bool {
	return e.totalObserved.Load() >= int64(e.cfg.MinTrainingSamples)
}

// TotalObserved returns the system-wide observation count.
func (e *Engine) TotalObserved() int64 {
	return e.totalObserved.Load()
}

func (e *Engine) userProfile(id string, create bool) *UserProfile {
	e.usersMu.RLock()
	p := e.users[id]
	e.usersMu.RUnlock()
	if p != nil || !create {
		return p
	}

	e.usersMu.Lock()
	defer e.usersMu.Unlock()
	if p = e.users[id]; p == nil {
		p = NewUserProfile(id)
		e.users[id] = p
	}
	return p
}

func (e *Engine) merchantProfile(id string, create bool) *MerchantProfile {
	e.merchantsMu.RLock()
	p := e.merchants[id]
	e.merchantsMu.RUnlock()
	if p != nil || !create {
		return p
	}

	e.merchantsMu.Lock()
	defer e.merchantsMu.Unlock()
	if p = e.merchants[id]; p == nil {
		p = NewMerchantProfile(id)
		e.merchants[id] = p
	}
	return p
}

// refreshThreshold recomputes the cached per-user threshold after Observe.
// Users with volatile spending get more headroom before flagging.
func (e *Engine) refreshThreshold(userID string, p *UserProfile) {
	if p.TransactionCount() < 10 {
		return
	}
	adjusted := math.Min(e.cfg.AnomalyThreshold+0.2*p.VariabilityScore(), maxThreshold)
	e.thresholds.Store(userID, adjusted)
}

// Threshold returns the decision threshold for a user, the base threshold
// when nothing is cached.
func (e *Engine) Threshold(userID string) float64 {
	if v, ok := e.thresholds.Load(userID); ok {
		return v.(float64)
	}
	return e.cfg.AnomalyThreshold
}

// subScores carries the ensemble components of one scoring pass.
type subScores struct {
	statistical float64
	behavioural float64
	temporal    float64

	amount   float64
	velocity float64
}

// scoreEnsemble runs the full ensemble path. Any panic degrades to a safe
// normal result; the record is never dropped here.
func (e *Engine) scoreEnsemble(tx *models.Transaction) (result *models.AnomalyResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("scoring failed",
				zap.String("transaction_id", tx.TransactionID),
				zap.Any("panic", r))
			result = &models.AnomalyResult{
				TransactionID:       tx.TransactionID,
				IsAnomaly:           false,
				AnomalyScore:        0,
				Confidence:          0.1,
				AnomalyType:         models.AnomalyUnknown,
				DetectedAt:          e.clock.Now(),
				OriginalTransaction: tx,
				FeaturesUsed:        map[string]float64{},
				Reason:              fmt.Sprintf("scoring error: %v", r),
			}
		}
	}()

	p := e.userProfile(tx.UserID, false)
	sub := e.computeSubScores(tx, p)

	score := clamp(
		e.cfg.WeightStatistical*sub.statistical+
			e.cfg.WeightBehavioural*sub.behavioural+
			e.cfg.WeightTemporal*sub.temporal,
		0, 1)

	threshold := e.Threshold(tx.UserID)
	isAnomaly := score > threshold

	return &models.AnomalyResult{
		TransactionID:       tx.TransactionID,
		IsAnomaly:           isAnomaly,
		AnomalyScore:        score,
		Confidence:          math.Min(0.9, 0.5+math.Abs(score-threshold)),
		AnomalyType:         classify(sub, tx.Amount),
		DetectedAt:          e.clock.Now(),
		OriginalTransaction: tx,
		FeaturesUsed:        e.extractFeatures(tx, p),
		Reason:              e.explain(score, threshold, sub),
	}
}

func (e *Engine) computeSubScores(tx *models.Transaction, p *UserProfile) subScores {
	var sub subScores
	if p == nil {
		return sub
	}

	// Statistical: amount z-score plus the reserved frequency component.
	sub.amount = sanitize(math.Min(p.AmountZScore(tx.Amount)/3, 1))
	freq := e.frequencyAnomaly(tx, p)
	sub.statistical = (sub.amount + freq) / 2

	// Behavioural: category, payment method, and location when present.
	behav := sanitize(p.CategoryAnomaly(tx.MerchantCategory)) +
		sanitize(p.PaymentAnomaly(tx.PaymentMethod))
	behavComponents := 2.0
	if tx.Location != nil {
		behav += sanitize(p.LocationAnomaly(tx.Location))
		behavComponents++
	}
	sub.behavioural = behav / behavComponents

	// Temporal: hour, day-of-week, and burst velocity.
	k := p.VelocityCount(tx.Timestamp, e.cfg.VelocityWindowMinutes)
	sub.velocity = math.Min(float64(k)/float64(e.cfg.VelocityBurstCount), 1)
	sub.temporal = (sanitize(p.HourAnomaly(tx.Timestamp.Hour())) +
		sanitize(p.DayAnomaly(tx.Timestamp.ISOWeekday())) +
		sub.velocity) / 3

	sub.statistical = clamp(sub.statistical, 0, 1)
	sub.behavioural = clamp(sub.behavioural, 0, 1)
	sub.temporal = clamp(sub.temporal, 0, 1)
	return sub
}

// frequencyAnomaly is reserved for a future transaction-frequency model and
// currently always contributes 0.
func (e *Engine) frequencyAnomaly(_ *models.Transaction, _ *UserProfile) float64 {
	return 0
}

// classify picks the anomaly label; first match wins so ties resolve
// deterministically.
func classify(sub subScores, amount float64) models.AnomalyType {
	switch {
	case sub.velocity > 0.5:
		return models.AnomalyVelocity
	case sub.amount > 0.6:
		return models.AnomalyUnusualAmount
	case sub.temporal > 0.5:
		return models.AnomalyTimePattern
	case amount > 10000:
		return models.AnomalyFraud
	default:
		return models.AnomalyStatisticalOutlier
	}
}

func (e *Engine) extractFeatures(tx *models.Transaction, p *UserProfile) map[string]float64 {
	features := map[string]float64{
		"amount":      tx.Amount,
		"hour_of_day": float64(tx.Timestamp.Hour()),
		"day_of_week": float64(tx.Timestamp.ISOWeekday()),
	}
	if tx.Location != nil {
		features["latitude"] = tx.Location.Latitude
		features["longitude"] = tx.Location.Longitude
	}
	if p != nil {
		features["user_avg_amount"] = p.AverageAmount()
		features["user_transaction_count"] = float64(p.TransactionCount())
	}
	if m := e.merchantProfile(tx.MerchantID, false); m != nil {
		features["merchant_risk_score"] = m.RiskScore()
	}
	return features
}

// explain names the dominating weighted component.
func (e *Engine) explain(score, threshold float64, sub subScores) string {
	if score <= threshold {
		return fmt.Sprintf("normal transaction pattern (score %.3f)", score)
	}

	ws := e.cfg.WeightStatistical * sub.statistical
	wb := e.cfg.WeightBehavioural * sub.behavioural
	wt := e.cfg.WeightTemporal * sub.temporal

	dominant := "statistical deviation"
	switch {
	case wb >= ws && wb >= wt:
		dominant = "behavioural pattern deviation"
	case wt >= ws && wt >= wb:
		dominant = "temporal pattern deviation"
	}
	return fmt.Sprintf("anomalous transaction: %s (score %.3f)", dominant, score)
}

// Stats summarises engine state for periodic logging.
func (e *Engine) Stats() map[string]any {
	e.usersMu.RLock()
	users := len(e.users)
	e.usersMu.RUnlock()
	e.merchantsMu.RLock()
	merchants := len(e.merchants)
	e.merchantsMu.RUnlock()

	return map[string]any{
		"total_transactions": e.totalObserved.Load(),
		"model_trained":      e.Trained(),
		"unique_users":       users,
		"unique_merchants":   merchants,
	}
}

// sanitize collapses malformed numeric inputs to a zero contribution.
func sanitize(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
