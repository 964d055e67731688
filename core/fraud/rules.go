package fraud

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
)

const (
	RuleAmountThreshold   = "Amount Threshold"
	RuleGeographicAnomaly = "Geographic Anomaly"
	RuleVelocityCheck     = "Velocity Check"
	RulePatternMatching   = "Pattern Matching"
)

// AmountThresholdRule flags transactions strictly above a fixed amount.
type AmountThresholdRule struct {
	threshold float64
}

func NewAmountThresholdRule(threshold float64) *AmountThresholdRule {
	return &AmountThresholdRule{threshold: threshold}
}

func (r *AmountThresholdRule) Name() string { return RuleAmountThreshold }

func (r *AmountThresholdRule) Description() string {
	return fmt.Sprintf("Flags transactions with amount greater than $%g", r.threshold)
}

func (r *AmountThresholdRule) Evaluate(txn Transaction, _ time.Time) (bool, RiskLevel, string) {
	amount := txn.Amount()
	if amount > r.threshold {
		return true, RiskMedium, fmt.Sprintf("Transaction amount ($%g) exceeds threshold ($%g)", amount, r.threshold)
	}
	return false, RiskLow, ""
}

// GeographicAnomalyRule flags transactions whose country is outside the
// allow-list. A transaction with no country never triggers.
type GeographicAnomalyRule struct {
	allowed map[string]struct{}
}

func NewGeographicAnomalyRule(allowedCountries []string) *GeographicAnomalyRule {
	allowed := make(map[string]struct{}, len(allowedCountries))
	for _, c := range allowedCountries {
		allowed[strings.ToUpper(strings.TrimSpace(c))] = struct{}{}
	}
	return &GeographicAnomalyRule{allowed: allowed}
}

func (r *GeographicAnomalyRule) Name() string { return RuleGeographicAnomaly }

func (r *GeographicAnomalyRule) Description() string {
	return "Flags transactions from countries outside the allowed list"
}

func (r *GeographicAnomalyRule) Evaluate(txn Transaction, _ time.Time) (bool, RiskLevel, string) {
	country := strings.ToUpper(txn.Country())
	if country == "" {
		return false, RiskLow, ""
	}
	if _, ok := r.allowed[country]; !ok {
		return true, RiskHigh, "Transaction from non-allowed country: " + country
	}
	return false, RiskLow, ""
}

// VelocityCheckRule keeps a sliding window of transaction timestamps per
// card and flags when the window holds more than the allowed count. The
// evaluated transaction itself is part of the window.
type VelocityCheckRule struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	history map[string][]time.Time
}

func NewVelocityCheckRule(maxTransactions int, window time.Duration) *VelocityCheckRule {
	return &VelocityCheckRule{
		max:     maxTransactions,
		window:  window,
		history: map[string][]time.Time{},
	}
}

func (r *VelocityCheckRule) Name() string { return RuleVelocityCheck }

func (r *VelocityCheckRule) Description() string {
	return fmt.Sprintf("Flags if more than %d transactions occur within %g minutes", r.max, r.window.Minutes())
}

func (r *VelocityCheckRule) Evaluate(txn Transaction, now time.Time) (bool, RiskLevel, string) {
	cardID := txn.CardID()
	if cardID == "" {
		return false, RiskLow, ""
	}
	ts := txn.Timestamp(now)

	r.mu.Lock()
	defer r.mu.Unlock()
	entries := append(r.history[cardID], ts)
	cutoff := ts.Add(-r.window)
	recent := entries[:0]
	for _, t := range entries {
		if !t.Before(cutoff) {
			recent = append(recent, t)
		}
	}
	r.history[cardID] = recent

	if len(recent) > r.max {
		return true, RiskHigh, fmt.Sprintf("Velocity check: %d transactions in %g minutes", len(recent), r.window.Minutes())
	}
	return false, RiskLow, ""
}

// Sweep drops card histories whose newest entry predates the retention
// horizon. Returns the number of cards evicted.
func (r *VelocityCheckRule) Sweep(now time.Time, retention time.Duration) int {
	cutoff := now.Add(-retention)
	evicted := 0
	r.mu.Lock()
	defer r.mu.Unlock()
	for cardID, entries := range r.history {
		if len(entries) == 0 || entries[len(entries)-1].Before(cutoff) {
			delete(r.history, cardID)
			evicted++
		}
	}
	return evicted
}

// TrackedCards reports how many cards currently hold history.
func (r *VelocityCheckRule) TrackedCards() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}

var suspiciousDescription = regexp.MustCompile(`(?i)test|dummy|unauthorized`)

// PatternMatchingRule flags known-bad merchant substrings and suspicious
// keywords in the description.
type PatternMatchingRule struct {
	suspiciousMerchants []string
}

func NewPatternMatchingRule() *PatternMatchingRule {
	return &PatternMatchingRule{
		suspiciousMerchants: []string{"test-merchant", "unauthorized-vendor"},
	}
}

func (r *PatternMatchingRule) Name() string { return RulePatternMatching }

func (r *PatternMatchingRule) Description() string {
	return "Detects suspicious patterns in transaction data"
}

func (r *PatternMatchingRule) Evaluate(txn Transaction, _ time.Time) (bool, RiskLevel, string) {
	merchant := strings.ToLower(txn.Merchant())
	for _, sm := range r.suspiciousMerchants {
		if strings.Contains(merchant, sm) {
			return true, RiskHigh, "Suspicious merchant detected: " + merchant
		}
	}
	description := txn.Description()
	if suspiciousDescription.MatchString(description) {
		return true, RiskMedium, "Suspicious keywords in description: " + strings.ToLower(description)
	}
	return false, RiskLow, ""
}
