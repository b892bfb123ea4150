package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// CivilTime is a civil local date-time without a zone. Transaction timestamps
// carry no zone on the wire and are never converted to instants; arithmetic
// between two CivilTimes treats both as being in the same unspecified zone.
type CivilTime struct {
	time.Time
}

const civilLayout = "2006-01-02T15:04:05"

// NewCivilTime builds a CivilTime from clock fields.
func NewCivilTime(year int, month time.Month, day, hour, min, sec int) CivilTime {
	return CivilTime{time.Date(year, month, day, hour, min, sec, 0, time.UTC)}
}

// CivilNow returns the current wall clock as a CivilTime.
func CivilNow() CivilTime {
	n := time.Now()
	return NewCivilTime(n.Year(), n.Month(), n.Day(), n.Hour(), n.Minute(), n.Second())
}

// ParseCivilTime accepts ISO-8601 local date-times, with or without
// fractional seconds. A trailing "Z" is tolerated and ignored.
func ParseCivilTime(s string) (CivilTime, error) {
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range []string{civilLayout, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return CivilTime{t}, nil
		}
	}
	return CivilTime{}, fmt.Errorf("invalid civil date-time %q", s)
}

func (c CivilTime) MarshalJSON() ([]byte, error) {
	layout := civilLayout
	if c.Nanosecond() != 0 {
		layout = "2006-01-02T15:04:05.999999999"
	}
	return []byte(`"` + c.Format(layout) + `"`), nil
}

func (c *CivilTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		return nil
	}
	parsed, err := ParseCivilTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ISOWeekday returns the day of week with Monday=1 .. Sunday=7.
func (c CivilTime) ISOWeekday() int {
	wd := int(c.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// MinutesSince returns the civil difference c - other in minutes.
func (c CivilTime) MinutesSince(other CivilTime) float64 {
	return c.Sub(other.Time).Minutes()
}

// Location is the optional geographic context of a transaction.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Country   string  `json:"country"`
	City      string  `json:"city"`
}

// Valid reports whether the coordinates are inside WGS-84 bounds.
func (l *Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180
}

// Transaction is the primary input record of the pipeline.
type Transaction struct {
	TransactionID    string         `json:"transaction_id"`
	UserID           string         `json:"user_id"`
	MerchantID       string         `json:"merchant_id"`
	Amount           float64        `json:"amount"`
	Currency         string         `json:"currency"`
	Timestamp        CivilTime      `json:"timestamp"`
	Location         *Location      `json:"location"`
	PaymentMethod    string         `json:"payment_method"`
	MerchantCategory string         `json:"merchant_category"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Validate enforces the required wire fields. Records failing validation are
// dropped by the pipeline.
func (t *Transaction) Validate() error {
	if t.TransactionID == "" {
		return fmt.Errorf("transaction_id is required")
	}
	if t.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if t.MerchantID == "" {
		return fmt.Errorf("merchant_id is required")
	}
	if t.Amount < 0 || math.IsNaN(t.Amount) || math.IsInf(t.Amount, 0) {
		return fmt.Errorf("amount must be a non-negative number, got %v", t.Amount)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	if t.Location != nil && !t.Location.Valid() {
		return fmt.Errorf("location coordinates out of range: %v,%v",
			t.Location.Latitude, t.Location.Longitude)
	}
	return nil
}
