package gateway

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aizenshtat/autonomous-coding-agent/internal/health"
)

// statusCollector exports the status file as gauges. It reads the file on
// every scrape, so values from other processes are current.
type statusCollector struct {
	source     StatusSource
	staleAfter time.Duration
	now        func() time.Time

	up           *prometheus.Desc
	heartbeatAge *prometheus.Desc
	gauges       []snapshotGauge
	errors       *prometheus.Desc
}

type snapshotGauge struct {
	key  string
	desc *prometheus.Desc
}

func newStatusCollector(source StatusSource, staleAfter time.Duration, now func() time.Time) *statusCollector {
	gauge := func(key, name, help string) snapshotGauge {
		return snapshotGauge{key: key, desc: prometheus.NewDesc(name, help, nil, nil)}
	}
	return &statusCollector{
		source:     source,
		staleAfter: staleAfter,
		now:        now,
		up: prometheus.NewDesc("vps_agent_healthy",
			"1 when the health probe reports no error", []string{"session_id", "status"}, nil),
		heartbeatAge: prometheus.NewDesc("vps_agent_heartbeat_age_seconds",
			"Seconds since the last heartbeat", nil, nil),
		errors: prometheus.NewDesc("vps_agent_errors_recorded",
			"Errors kept in the status file history", nil, nil),
		gauges: []snapshotGauge{
			gauge("total_commits", "vps_agent_commits_pushed", "Commits pushed this session"),
			gauge("total_screenshots", "vps_agent_screenshots_announced", "Screenshots announced this session"),
			gauge("elapsed_hours", "vps_agent_elapsed_hours", "Hours since session start"),
			gauge("remaining_hours", "vps_agent_remaining_hours", "Hours left in the session budget"),
			gauge("cost_usd", "vps_agent_cost_usd", "Reported agent cost in USD"),
			gauge("api_calls", "vps_agent_api_calls", "Reported agent API calls"),
			gauge("input_tokens", "vps_agent_input_tokens", "Reported agent input tokens"),
			gauge("output_tokens", "vps_agent_output_tokens", "Reported agent output tokens"),
		},
	}
}

func (c *statusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.up
	ch <- c.heartbeatAge
	ch <- c.errors
	for _, g := range c.gauges {
		ch <- g.desc
	}
}

func (c *statusCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.source.Read()
	now := c.now()
	report := health.Evaluate(snap, now, c.staleAfter)

	up := 0.0
	if report.Healthy() {
		up = 1
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, up, snap.String("session_id"), snap.String("status"))

	if hb, ok := snap.Time("last_heartbeat"); ok {
		ch <- prometheus.MustNewConstMetric(c.heartbeatAge, prometheus.GaugeValue, now.Sub(hb).Seconds())
	}
	ch <- prometheus.MustNewConstMetric(c.errors, prometheus.GaugeValue, float64(len(snap.List("errors"))))

	for _, g := range c.gauges {
		if _, ok := snap[g.key]; !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(g.desc, prometheus.GaugeValue, snap.Float(g.key))
	}
}
