package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fintechx-ops/core/fraud"
)

func (s *Server) handleEvaluateTransaction(w http.ResponseWriter, r *http.Request) {
	var txn fraud.Transaction
	if err := readJSON(r, &txn); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	flags := s.fraud.EvaluateTransaction(txn)
	highest := fraud.RiskLow
	out := make([]map[string]any, 0, len(flags))
	for _, f := range flags {
		if f.Risk > highest {
			highest = f.Risk
		}
		out = append(out, map[string]any{
			"rule_name":  f.RuleName,
			"risk_level": f.Risk.String(),
			"message":    f.Message,
		})
	}
	resp := map[string]any{
		"transaction_id": txn.ID(),
		"flagged":        len(flags) > 0,
		"flags":          out,
		"evaluated_at":   time.Now().UTC().Format(time.RFC3339),
	}
	if len(flags) > 0 {
		resp["highest_risk"] = highest.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListFraudRules(w http.ResponseWriter, r *http.Request) {
	rules := s.fraud.Rules()
	out := make([]map[string]string, 0, len(rules))
	for _, rule := range rules {
		out = append(out, map[string]string{
			"name":        rule.Name(),
			"description": rule.Description(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": out})
}

type addFraudRuleRequest struct {
	Type             string   `json:"type"`
	Threshold        float64  `json:"threshold"`
	AllowedCountries []string `json:"allowed_countries"`
	MaxTransactions  int      `json:"max_transactions"`
	WindowMinutes    float64  `json:"window_minutes"`
}

func (s *Server) handleAddFraudRule(w http.ResponseWriter, r *http.Request) {
	var req addFraudRuleRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	var rule fraud.Rule
	switch req.Type {
	case "amount_threshold":
		if req.Threshold <= 0 {
			writeError(w, http.StatusBadRequest, "threshold must be positive")
			return
		}
		rule = fraud.NewAmountThresholdRule(req.Threshold)
	case "geographic_anomaly":
		if len(req.AllowedCountries) == 0 {
			writeError(w, http.StatusBadRequest, "allowed_countries must not be empty")
			return
		}
		rule = fraud.NewGeographicAnomalyRule(req.AllowedCountries)
	case "velocity_check":
		if req.MaxTransactions <= 0 || req.WindowMinutes <= 0 {
			writeError(w, http.StatusBadRequest, "max_transactions and window_minutes must be positive")
			return
		}
		rule = fraud.NewVelocityCheckRule(req.MaxTransactions, time.Duration(req.WindowMinutes*float64(time.Minute)))
	case "pattern_matching":
		rule = fraud.NewPatternMatchingRule()
	default:
		writeError(w, http.StatusBadRequest, "unknown rule type: "+req.Type)
		return
	}
	s.fraud.AddRule(rule)
	writeJSON(w, http.StatusCreated, map[string]any{
		"name":        rule.Name(),
		"description": rule.Description(),
	})
}

func (s *Server) handleRemoveFraudRule(w http.ResponseWriter, r *http.Request) {
	// Rule names contain spaces, so the path segment arrives escaped.
	name, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rule name")
		return
	}
	if !s.fraud.RemoveRule(name) {
		writeError(w, http.StatusNotFound, "no rule named "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if action := q.Get("action"); action != "" {
		records, err := s.audits.ListByAction(r.Context(), action, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "audit query failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"records": records})
		return
	}
	records, err := s.audits.List(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}
