package fraud

import (
	"strconv"
	"time"
)

type RiskLevel int

const (
	RiskLow RiskLevel = iota + 1
	RiskMedium
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "Low"
	case RiskMedium:
		return "Medium"
	case RiskHigh:
		return "High"
	}
	return "Unknown"
}

// Transaction is the raw payload under evaluation. Rules read it through
// the typed accessors below; a missing or malformed field reads as the
// zero value.
type Transaction map[string]any

func (t Transaction) ID() string {
	if id := t.str("id"); id != "" {
		return id
	}
	return "unknown"
}

func (t Transaction) Amount() float64 {
	switch v := t["amount"].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func (t Transaction) Country() string     { return t.str("country") }
func (t Transaction) CardID() string      { return t.str("card_id") }
func (t Transaction) Merchant() string    { return t.str("merchant") }
func (t Transaction) Description() string { return t.str("description") }

// Timestamp returns the transaction's own timestamp when it carries one,
// falling back to the supplied clock.
func (t Transaction) Timestamp(fallback time.Time) time.Time {
	switch v := t["timestamp"].(type) {
	case time.Time:
		return v
	case string:
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts
		}
	}
	return fallback
}

func (t Transaction) str(key string) string {
	s, _ := t[key].(string)
	return s
}

// Flag is one rule's verdict on a transaction.
type Flag struct {
	RuleName string    `json:"rule_name"`
	Risk     RiskLevel `json:"risk_level"`
	Message  string    `json:"message"`
}

// Rule inspects a transaction and reports whether it triggered, at what
// risk, and why. Implementations must be safe for concurrent use.
type Rule interface {
	Name() string
	Description() string
	Evaluate(txn Transaction, now time.Time) (bool, RiskLevel, string)
}
