package api

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fintechx-ops/core/auth"
	"fintechx-ops/core/batch"
	"fintechx-ops/core/fraud"
)

type authMetricsCollector struct {
	authority *auth.Authority

	usersDesc    *prometheus.Desc
	sessionsDesc *prometheus.Desc
	lockedDesc   *prometheus.Desc
}

func newAuthMetricsCollector(authority *auth.Authority) prometheus.Collector {
	return &authMetricsCollector{
		authority: authority,
		usersDesc: prometheus.NewDesc(
			"fintechx_users_total",
			"Number of registered users.",
			nil, nil,
		),
		sessionsDesc: prometheus.NewDesc(
			"fintechx_sessions_active",
			"Number of live sessions.",
			nil, nil,
		),
		lockedDesc: prometheus.NewDesc(
			"fintechx_users_locked",
			"Number of currently locked users.",
			nil, nil,
		),
	}
}

func (c *authMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.usersDesc
	ch <- c.sessionsDesc
	ch <- c.lockedDesc
}

func (c *authMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.authority == nil {
		return
	}
	st := c.authority.CurrentStats()
	ch <- prometheus.MustNewConstMetric(c.usersDesc, prometheus.GaugeValue, float64(st.Users))
	ch <- prometheus.MustNewConstMetric(c.sessionsDesc, prometheus.GaugeValue, float64(st.ActiveSessions))
	ch <- prometheus.MustNewConstMetric(c.lockedDesc, prometheus.GaugeValue, float64(st.LockedUsers))
}

type batchMetricsCollector struct {
	engine *batch.Engine

	jobsDesc    *prometheus.Desc
	runningDesc *prometheus.Desc
}

func newBatchMetricsCollector(engine *batch.Engine) prometheus.Collector {
	return &batchMetricsCollector{
		engine: engine,
		jobsDesc: prometheus.NewDesc(
			"fintechx_batch_jobs",
			"Number of batch jobs by status.",
			[]string{"status"}, nil,
		),
		runningDesc: prometheus.NewDesc(
			"fintechx_batch_jobs_running",
			"Number of batch job goroutines currently running.",
			nil, nil,
		),
	}
}

func (c *batchMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsDesc
	ch <- c.runningDesc
}

func (c *batchMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.engine == nil {
		return
	}
	st := c.engine.CurrentStats()
	for status, n := range st.ByStatus {
		ch <- prometheus.MustNewConstMetric(c.jobsDesc, prometheus.GaugeValue, float64(n), string(status))
	}
	ch <- prometheus.MustNewConstMetric(c.runningDesc, prometheus.GaugeValue, float64(st.Running))
}

type fraudMetricsCollector struct {
	engine *fraud.Engine

	rulesDesc     *prometheus.Desc
	evaluatedDesc *prometheus.Desc
	flaggedDesc   *prometheus.Desc
}

func newFraudMetricsCollector(engine *fraud.Engine) prometheus.Collector {
	return &fraudMetricsCollector{
		engine: engine,
		rulesDesc: prometheus.NewDesc(
			"fintechx_fraud_rules",
			"Number of active fraud detection rules.",
			nil, nil,
		),
		evaluatedDesc: prometheus.NewDesc(
			"fintechx_fraud_transactions_evaluated_total",
			"Transactions run through the fraud rule chain.",
			nil, nil,
		),
		flaggedDesc: prometheus.NewDesc(
			"fintechx_fraud_transactions_flagged_total",
			"Transactions flagged by at least one rule.",
			nil, nil,
		),
	}
}

func (c *fraudMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rulesDesc
	ch <- c.evaluatedDesc
	ch <- c.flaggedDesc
}

func (c *fraudMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.engine == nil {
		return
	}
	st := c.engine.CurrentStats()
	ch <- prometheus.MustNewConstMetric(c.rulesDesc, prometheus.GaugeValue, float64(st.Rules))
	ch <- prometheus.MustNewConstMetric(c.evaluatedDesc, prometheus.CounterValue, float64(st.Evaluated))
	ch <- prometheus.MustNewConstMetric(c.flaggedDesc, prometheus.CounterValue, float64(st.Flagged))
}

type archiveMetricsCollector struct {
	db *sql.DB

	archivedDesc *prometheus.Desc
}

func newArchiveMetricsCollector(db *sql.DB) prometheus.Collector {
	return &archiveMetricsCollector{
		db: db,
		archivedDesc: prometheus.NewDesc(
			"fintechx_batch_archived",
			"Number of archived batch jobs by status.",
			[]string{"status"}, nil,
		),
	}
}

func (c *archiveMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.archivedDesc
}

func (c *archiveMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()

	rows, err := c.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM batch_archive GROUP BY status`)
	if err != nil {
		return
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n float64
		if scanErr := rows.Scan(&status, &n); scanErr == nil {
			ch <- prometheus.MustNewConstMetric(c.archivedDesc, prometheus.GaugeValue, n, status)
		}
	}
}
