package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes the trader's run counters to Prometheus.
type Recorder struct {
	outliers  *prometheus.CounterVec
	files     *prometheus.CounterVec
	trades    *prometheus.CounterVec
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	portfolio *prometheus.GaugeVec
}

// New registers the trader metrics with reg. Pass prometheus.DefaultRegisterer
// to serve them from promhttp.Handler().
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		outliers: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "options_outliers_total",
				Help: "Outlier events detected, by category and signal bucket",
			},
			[]string{"category", "bucket"},
		),
		files: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "options_outlier_files_total",
				Help: "Outlier files handled by the persistence gateway, by status",
			},
			[]string{"category", "status"},
		),
		trades: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "options_trades_total",
				Help: "Paper trades executed or rejected",
			},
			[]string{"action", "result"},
		),
		runs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "options_runs_total",
				Help: "Pipeline cycles by outcome",
			},
			[]string{"result"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "options_stage_duration_seconds",
				Help:    "Duration of pipeline stages in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		portfolio: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "options_portfolio_value",
				Help: "Paper account value by component",
			},
			[]string{"component"},
		),
	}
}

func (r *Recorder) RecordOutlier(category, bucket string) {
	r.outliers.WithLabelValues(category, bucket).Inc()
}

func (r *Recorder) RecordFile(category, status string) {
	r.files.WithLabelValues(category, status).Inc()
}

func (r *Recorder) RecordTrade(action, result string) {
	r.trades.WithLabelValues(action, result).Inc()
}

func (r *Recorder) RecordRun(result string) {
	r.runs.WithLabelValues(result).Inc()
}

// ObserveStage records how long a stage took since start.
func (r *Recorder) ObserveStage(stage string, start time.Time) {
	r.duration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// SetPortfolio records the account's cash, stock and total values.
func (r *Recorder) SetPortfolio(cash, stock, total float64) {
	r.portfolio.WithLabelValues("cash").Set(cash)
	r.portfolio.WithLabelValues("stock").Set(stock)
	r.portfolio.WithLabelValues("total").Set(total)
}
