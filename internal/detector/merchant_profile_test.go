package detector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/slipstream/slipstream/pkg/models"
)

func merchantTxn(amount float64, method string, ts models.CivilTime) *models.Transaction {
	return &models.Transaction{
		TransactionID:    "tx",
		UserID:           "user_1",
		MerchantID:       "merchant_1",
		Amount:           amount,
		Currency:         "USD",
		Timestamp:        ts,
		PaymentMethod:    method,
		MerchantCategory: "retail",
	}
}

func TestMerchantProfile_ObserveTracksSeenTimes(t *testing.T) {
	p := NewMerchantProfile("merchant_1")
	first := models.NewCivilTime(2024, time.February, 1, 9, 0, 0)
	second := models.CivilTime{Time: first.Add(30 * time.Minute)}

	p.Observe(merchantTxn(100, "credit_card", first))
	p.Observe(merchantTxn(110, "credit_card", second))

	assert.Equal(t, 2, p.TransactionCount())
	assert.Equal(t, first, p.FirstSeen())
	assert.Equal(t, second, p.LastSeen())
	assert.InDelta(t, 30.0, p.AverageInterval(), 1e-9)
}

func TestMerchantProfile_InterArrivalIgnoresNonPositiveGaps(t *testing.T) {
	p := NewMerchantProfile("merchant_1")
	ts := models.NewCivilTime(2024, time.February, 1, 9, 0, 0)

	p.Observe(merchantTxn(100, "credit_card", ts))
	p.Observe(merchantTxn(100, "credit_card", ts)) // zero gap
	p.Observe(merchantTxn(100, "credit_card", models.CivilTime{Time: ts.Add(-time.Hour)}))

	assert.Equal(t, 0, p.intervals.N())
}

func TestMerchantProfile_NewMerchantRisk(t *testing.T) {
	p := NewMerchantProfile("merchant_1")
	p.Observe(merchantTxn(100, "credit_card", models.NewCivilTime(2024, time.February, 1, 9, 0, 0)))

	// Only the young-merchant rule applies.
	assert.InDelta(t, 0.1, p.RiskScore(), 1e-9)
	assert.False(t, p.Suspicious())
}

func TestMerchantProfile_RapidFireRaisesRisk(t *testing.T) {
	p := NewMerchantProfile("merchant_1")
	base := models.NewCivilTime(2024, time.February, 1, 9, 0, 0)

	// 13 transactions 30 seconds apart: 12 intervals of 0.5 minutes.
	for i := 0; i < 13; i++ {
		p.Observe(merchantTxn(100, "credit_card", models.CivilTime{Time: base.Add(time.Duration(i) * 30 * time.Second)}))
	}

	// +0.3 rapid-fire, +0.1 young merchant.
	assert.InDelta(t, 0.4, p.RiskScore(), 1e-9)
}

func TestMerchantProfile_ScatteredPaymentMethodsRaiseRisk(t *testing.T) {
	p := NewMerchantProfile("merchant_1")
	base := models.NewCivilTime(2024, time.February, 1, 9, 0, 0)
	methods := []string{"credit_card", "debit_card", "mobile_wallet", "bank_transfer", "crypto"}

	for i := 0; i < 20; i++ {
		p.Observe(merchantTxn(100, methods[i%len(methods)], models.CivilTime{Time: base.Add(time.Duration(i) * time.Hour)}))
	}

	// Max method share is 4/20 = 0.2 < 0.3: +0.2, plus +0.1 young merchant.
	assert.InDelta(t, 0.3, p.RiskScore(), 1e-9)
}

func TestMerchantProfile_RiskCappedAtOne(t *testing.T) {
	p := NewMerchantProfile("merchant_1")
	base := models.NewCivilTime(2024, time.February, 1, 9, 0, 0)
	methods := []string{"a", "b", "c", "d", "e"}

	// Rapid fire, erratic amounts, scattered methods, young merchant.
	for i := 0; i < 30; i++ {
		amount := 1.0
		if i%10 == 0 {
			amount = 100000.0
		}
		p.Observe(merchantTxn(amount, methods[i%len(methods)], models.CivilTime{Time: base.Add(time.Duration(i) * 10 * time.Second)}))
	}

	assert.LessOrEqual(t, p.RiskScore(), 1.0)
	assert.InDelta(t, 0.8, p.RiskScore(), 1e-9)
	assert.True(t, p.Suspicious())
}

func TestMerchantProfile_AmountAnomaly(t *testing.T) {
	p := NewMerchantProfile("merchant_1")
	base := models.NewCivilTime(2024, time.February, 1, 9, 0, 0)

	// Below the minimum sample: 0.
	for i := 0; i < 4; i++ {
		p.Observe(merchantTxn(100, "credit_card", models.CivilTime{Time: base.Add(time.Duration(i) * time.Hour)}))
	}
	assert.Equal(t, 0.0, p.AmountAnomaly(100000))

	// Constant amounts: stddev-zero rule.
	p.Observe(merchantTxn(100, "credit_card", models.CivilTime{Time: base.Add(5 * time.Hour)}))
	assert.Equal(t, 0.0, p.AmountAnomaly(100))
	assert.Equal(t, 1.0, p.AmountAnomaly(101))
}
