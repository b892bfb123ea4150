package detector

import (
	"math"
	"sync"

	"github.com/slipstream/slipstream/pkg/models"
)

const (
	userAmountWindow  = 100
	maxLocations      = 50
	maxRecentTxns     = 100
	earthRadiusKm     = 6371.0
	locationScaleKm   = 100.0
	minCategorySample = 5
	minTemporalSample = 10
)

// UserProfile is the per-user behavioural baseline. One goroutine observes
// (the pipeline worker owning the user's partition) while any number score
// concurrently; a RWMutex keeps the two sides consistent.
type UserProfile struct {
	mu sync.RWMutex

	userID     string
	amounts    *StatsWindow
	categories map[string]int
	payments   map[string]int
	hours      map[int]int
	days       map[int]int
	locations  []models.Location
	recent     []*models.Transaction

	txnCount    int
	lastSeen    models.CivilTime
	variability float64
}

// NewUserProfile creates an empty profile for the given user.
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		userID:     userID,
		amounts:    NewStatsWindow(userAmountWindow),
		categories: make(map[string]int),
		payments:   make(map[string]int),
		hours:      make(map[int]int),
		days:       make(map[int]int),
	}
}

// Observe folds a transaction into the baseline.
func (p *UserProfile) Observe(tx *models.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.amounts.Add(tx.Amount)
	p.categories[tx.MerchantCategory]++
	p.payments[tx.PaymentMethod]++
	p.hours[tx.Timestamp.Hour()]++
	p.days[tx.Timestamp.ISOWeekday()]++

	if tx.Location != nil {
		p.locations = append(p.locations, *tx.Location)
		if len(p.locations) > maxLocations {
			p.locations = p.locations[1:]
		}
	}

	p.recent = append(p.recent, tx)
	if len(p.recent) > maxRecentTxns {
		p.recent = p.recent[1:]
	}

	p.txnCount++
	p.lastSeen = tx.Timestamp

	if p.amounts.N() > 5 {
		mean := p.amounts.Mean()
		if mean <= 0 {
			p.variability = 1
		} else {
			p.variability = clamp(p.amounts.StdDev()/mean/2, 0, 1)
		}
	}
}

// AmountZScore returns |a - mean| / stddev over the amount window.
// Fewer than 3 samples give 0; a zero stddev gives 0 on an exact match
// and 3 otherwise.
func (p *UserProfile) AmountZScore(amount float64) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.amounts.N() < 3 {
		return 0
	}
	mean := p.amounts.Mean()
	std := p.amounts.StdDev()
	if std == 0 {
		if amount == mean {
			return 0
		}
		return 3
	}
	return math.Abs(amount-mean) / std
}

// CategoryAnomaly scores how unusual a merchant category is for this user.
func (p *UserProfile) CategoryAnomaly(category string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.txnCount < minCategorySample {
		return 0
	}
	f := float64(p.categories[category]) / float64(p.txnCount)
	return math.Max(0, 0.8-f*4)
}

// PaymentAnomaly scores how unusual a payment method is for this user.
func (p *UserProfile) PaymentAnomaly(method string) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.txnCount < minCategorySample {
		return 0
	}
	f := float64(p.payments[method]) / float64(p.txnCount)
	return math.Max(0, 0.7-f*3)
}

// HourAnomaly scores how unusual an hour of day (0..23) is for this user.
func (p *UserProfile) HourAnomaly(hour int) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.txnCount < minTemporalSample {
		return 0
	}
	f := float64(p.hours[hour]) / float64(p.txnCount)
	return math.Max(0, 0.6-f*10)
}

// DayAnomaly scores how unusual a day of week (Mon=1..Sun=7) is for this user.
func (p *UserProfile) DayAnomaly(day int) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.txnCount < minTemporalSample {
		return 0
	}
	f := float64(p.days[day]) / float64(p.txnCount)
	return math.Max(0, 0.5-f*7)
}

// LocationAnomaly scales the minimum great-circle distance from loc to any
// stored prior location; 100km or more saturates at 1.
func (p *UserProfile) LocationAnomaly(loc *models.Location) float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.locations) == 0 {
		return 0
	}
	minKm := math.MaxFloat64
	for i := range p.locations {
		if d := haversineKm(loc.Latitude, loc.Longitude, p.locations[i].Latitude, p.locations[i].Longitude); d < minKm {
			minKm = d
		}
	}
	return math.Min(1, minKm/locationScaleKm)
}

// VelocityCount returns the number of recent transactions whose timestamp
// falls within windowMinutes at or before t.
func (p *UserProfile) VelocityCount(t models.CivilTime, windowMinutes float64) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	k := 0
	for _, tx := range p.recent {
		delta := t.MinutesSince(tx.Timestamp)
		if delta >= 0 && delta <= windowMinutes {
			k++
		}
	}
	return k
}

// TransactionCount returns the total number of observed transactions.
func (p *UserProfile) TransactionCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.txnCount
}

// AverageAmount returns the mean of the amount window.
func (p *UserProfile) AverageAmount() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.amounts.Mean()
}

// VariabilityScore reports spending variability in [0,1].
func (p *UserProfile) VariabilityScore() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.variability
}

// LastSeen returns the timestamp of the most recent observation.
func (p *UserProfile) LastSeen() models.CivilTime {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastSeen
}

// MostFrequentCategory returns the user's dominant merchant category,
// "unknown" when nothing has been observed.
func (p *UserProfile) MostFrequentCategory() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maxKey(p.categories)
}

// MostFrequentPaymentMethod returns the user's dominant payment method,
// "unknown" when nothing has been observed.
func (p *UserProfile) MostFrequentPaymentMethod() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return maxKey(p.payments)
}

func maxKey(m map[string]int) string {
	best, bestN := "unknown", -1
	for k, n := range m {
		if n > bestN {
			best, bestN = k, n
		}
	}
	return best
}

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}
