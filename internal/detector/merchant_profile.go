package detector

import (
	"math"
	"sync"

	"github.com/slipstream/slipstream/pkg/models"
)

const (
	merchantAmountWindow   = 100
	merchantIntervalWindow = 100
	newMerchantThreshold   = 50
)

// MerchantProfile tracks merchant-side patterns and risk indicators.
type MerchantProfile struct {
	mu sync.RWMutex

	merchantID string
	amounts    *StatsWindow
	payments   map[string]int
	intervals  *StatsWindow

	txnCount  int
	firstSeen models.CivilTime
	lastSeen  models.CivilTime
	riskScore float64
}

// NewMerchantProfile creates an empty profile for the given merchant.
func NewMerchantProfile(merchantID string) *MerchantProfile {
	return &MerchantProfile{
		merchantID: merchantID,
		amounts:    NewStatsWindow(merchantAmountWindow),
		payments:   make(map[string]int),
		intervals:  NewStatsWindow(merchantIntervalWindow),
	}
}

// Observe folds a transaction into the merchant baseline and refreshes the
// risk score.
func (p *MerchantProfile) Observe(tx *models.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.amounts.Add(tx.Amount)
	p.payments[tx.PaymentMethod]++

	if p.firstSeen.IsZero() {
		p.firstSeen = tx.Timestamp
	} else {
		minutes := tx.Timestamp.MinutesSince(p.lastSeen)
		if minutes > 0 {
			p.intervals.Add(minutes)
		}
	}
	p.lastSeen = tx.Timestamp
	p.txnCount++

	p.riskScore = p.computeRiskLocked()
}

// computeRiskLocked applies the additive risk rules; caller holds mu.
func (p *MerchantProfile) computeRiskLocked() float64 {
	score := 0.0

	// Sub-minute cadence suggests automated card testing.
	if p.intervals.N() > 10 && p.intervals.Mean() < 1.0 {
		score += 0.3
	}

	if p.amounts.N() > 10 {
		mean := p.amounts.Mean()
		if mean > 0 && p.amounts.StdDev()/mean > 2.0 {
			score += 0.2
		}
	}

	if len(p.payments) > 0 {
		maxCount := 0
		for _, n := range p.payments {
			if n > maxCount {
				maxCount = n
			}
		}
		if float64(maxCount)/float64(p.txnCount) < 0.3 {
			score += 0.2
		}
	}

	if p.txnCount < newMerchantThreshold {
		score += 0.1
	}

	return math.Min(1, score)
}

// AmountAnomaly scores how far an amount sits from this merchant's baseline;
// fewer than 5 samples give 0.
func (p *MerchantProfile) AmountAnomaly(amount float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.amounts.N() < 5 {
		return 0
	}
	mean := p.amounts.Mean()
	std := p.amounts.StdDev()
	var z float64
	if std == 0 {
		if amount == mean {
			return 0
		}
		z = 3
	} else {
		z = math.Abs(amount-mean) / std
	}
	return math.Min(1, z/3)
}

// RiskScore returns the current merchant risk in [0,1].
func (p *MerchantProfile) RiskScore() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.riskScore
}

// Suspicious reports whether the merchant's risk score crossed 0.7.
func (p *MerchantProfile) Suspicious() bool {
	return p.RiskScore() > 0.7
}

// TransactionCount returns the total observed transactions.
func (p *MerchantProfile) TransactionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.txnCount
}

// FirstSeen returns the timestamp of the first observation.
func (p *MerchantProfile) FirstSeen() models.CivilTime {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.firstSeen
}

// LastSeen returns the timestamp of the most recent observation.
func (p *MerchantProfile) LastSeen() models.CivilTime {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeen
}

// AverageInterval returns the mean inter-arrival gap in minutes.
func (p *MerchantProfile) AverageInterval() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.intervals.Mean()
}
