package fraud

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"fintechx-ops/config"
	"fintechx-ops/core/utils"
)

// sweeper is implemented by rules that hold per-entity history and can
// evict stale entries.
type sweeper interface {
	Sweep(now time.Time, retention time.Duration) int
}

// Engine runs an ordered rule chain over transactions. Rules are evaluated
// in registration order; a panicking rule is skipped for that transaction
// and the chain continues.
type Engine struct {
	cfg    config.FraudConfig
	logger *utils.Logger
	now    func() time.Time

	mu        sync.RWMutex
	rules     []Rule
	evaluated uint64
	flagged   uint64

	cronMu sync.Mutex
	sched  *cron.Cron
}

func NewEngine(cfg config.FraudConfig, logger *utils.Logger) *Engine {
	if cfg.AmountThreshold == 0 {
		cfg.AmountThreshold = 1000.0
	}
	if len(cfg.AllowedCountries) == 0 {
		cfg.AllowedCountries = []string{"US", "CA", "GB", "AU"}
	}
	if cfg.VelocityMax <= 0 {
		cfg.VelocityMax = 3
	}
	if cfg.VelocityWindow <= 0 {
		cfg.VelocityWindow = 5 * time.Minute
	}
	if cfg.HistoryRetention <= 0 {
		cfg.HistoryRetention = time.Hour
	}
	e := &Engine{
		cfg:    cfg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	e.AddRule(NewAmountThresholdRule(cfg.AmountThreshold))
	e.AddRule(NewGeographicAnomalyRule(cfg.AllowedCountries))
	e.AddRule(NewVelocityCheckRule(cfg.VelocityMax, cfg.VelocityWindow))
	e.AddRule(NewPatternMatchingRule())
	return e
}

func (e *Engine) AddRule(rule Rule) {
	e.mu.Lock()
	e.rules = append(e.rules, rule)
	e.mu.Unlock()
	e.logger.Printf("added fraud detection rule: %s", rule.Name())
}

// RemoveRule drops every rule with the given name. Reports whether
// anything was removed.
func (e *Engine) RemoveRule(name string) bool {
	e.mu.Lock()
	kept := e.rules[:0]
	for _, r := range e.rules {
		if r.Name() != name {
			kept = append(kept, r)
		}
	}
	removed := len(kept) < len(e.rules)
	e.rules = kept
	e.mu.Unlock()
	if removed {
		e.logger.Printf("removed fraud detection rule: %s", name)
	}
	return removed
}

func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]Rule(nil), e.rules...)
}

// EvaluateTransaction runs the chain and returns one flag per triggered
// rule, in rule order. An empty slice means the transaction passed.
func (e *Engine) EvaluateTransaction(txn Transaction) []Flag {
	e.mu.RLock()
	rules := append([]Rule(nil), e.rules...)
	e.mu.RUnlock()

	now := e.now()
	var flags []Flag
	highest := RiskLow
	for _, rule := range rules {
		triggered, risk, message := e.evaluateRule(rule, txn, now)
		if !triggered {
			continue
		}
		flags = append(flags, Flag{RuleName: rule.Name(), Risk: risk, Message: message})
		if risk > highest {
			highest = risk
		}
	}

	e.mu.Lock()
	e.evaluated++
	if len(flags) > 0 {
		e.flagged++
	}
	e.mu.Unlock()

	if len(flags) > 0 {
		e.logger.Errorf("transaction %s flagged by %d fraud rules, highest risk: %s", txn.ID(), len(flags), highest)
	} else {
		e.logger.Printf("transaction %s passed all fraud checks", txn.ID())
	}
	return flags
}

func (e *Engine) evaluateRule(rule Rule, txn Transaction, now time.Time) (triggered bool, risk RiskLevel, message string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorf("fraud rule %s panicked: %v", rule.Name(), r)
			triggered = false
		}
	}()
	return rule.Evaluate(txn, now)
}

// StartSweeper schedules periodic eviction of stale velocity history on
// the configured cron spec.
func (e *Engine) StartSweeper() error {
	e.cronMu.Lock()
	defer e.cronMu.Unlock()
	if e.sched != nil {
		return nil
	}
	sched := cron.New()
	if _, err := sched.AddFunc(e.cfg.HistorySweepSpec, e.sweepHistory); err != nil {
		return err
	}
	sched.Start()
	e.sched = sched
	e.logger.Printf("fraud history sweeper scheduled: %s", e.cfg.HistorySweepSpec)
	return nil
}

func (e *Engine) StopSweeper() {
	e.cronMu.Lock()
	sched := e.sched
	e.sched = nil
	e.cronMu.Unlock()
	if sched != nil {
		<-sched.Stop().Done()
	}
}

func (e *Engine) sweepHistory() {
	now := e.now()
	evicted := 0
	for _, rule := range e.Rules() {
		if s, ok := rule.(sweeper); ok {
			evicted += s.Sweep(now, e.cfg.HistoryRetention)
		}
	}
	if evicted > 0 {
		e.logger.Printf("fraud history sweep evicted %d entities", evicted)
	}
}

type Stats struct {
	Rules     int
	Evaluated uint64
	Flagged   uint64
}

func (e *Engine) CurrentStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{Rules: len(e.rules), Evaluated: e.evaluated, Flagged: e.flagged}
}
