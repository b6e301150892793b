// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 記事選択1試行ごとの結果ラベル。
const (
	OutcomeServed      = "served"
	OutcomeNonStandard = "non_standard"
	OutcomeMalformed   = "malformed"
	OutcomeSeen        = "seen"
	OutcomeRaceLost    = "race_lost"
)

// 本文取得の結果ラベル。
const (
	ContentOK          = "ok"
	ContentUpstreamErr = "upstream_error"
	ContentRejected    = "rejected"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層から利用する。
type MetricsCollector interface {
	RecordSelectionAttempt(outcome string)
	RecordSelectionExhausted()
	RecordSummaryLatency(duration time.Duration)
	RecordContentFetch(outcome string)
	RecordReaction(reaction string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	selectionAttempts  *prometheus.CounterVec
	selectionExhausted prometheus.Counter
	summaryLatency     prometheus.Histogram
	contentFetches     *prometheus.CounterVec
	reactions          *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		selectionAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wikifeed_selection_attempts_total",
			Help: "ランダム記事選択の試行数（結果別）",
		}, []string{"outcome"}),
		selectionExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wikifeed_selection_exhausted_total",
			Help: "リトライ上限までに未配信記事が見つからなかった回数",
		}),
		summaryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wikifeed_summary_latency_seconds",
			Help:    "ランダム記事サマリーAPIのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		contentFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wikifeed_content_fetches_total",
			Help: "記事本文取得の回数（結果別）",
		}, []string{"outcome"}),
		reactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wikifeed_reactions_total",
			Help: "記録された反応の数（種類別）",
		}, []string{"reaction"}),
	}

	reg.MustRegister(
		c.selectionAttempts,
		c.selectionExhausted,
		c.summaryLatency,
		c.contentFetches,
		c.reactions,
	)

	return c
}

// RecordSelectionAttempt は記事選択1試行の結果を記録する。
func (c *Collector) RecordSelectionAttempt(outcome string) {
	c.selectionAttempts.WithLabelValues(outcome).Inc()
}

// RecordSelectionExhausted はリトライ上限到達を記録する。
func (c *Collector) RecordSelectionExhausted() {
	c.selectionExhausted.Inc()
}

// RecordSummaryLatency はサマリーAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordSummaryLatency(duration time.Duration) {
	c.summaryLatency.Observe(duration.Seconds())
}

// RecordContentFetch は本文取得の結果を記録する。
func (c *Collector) RecordContentFetch(outcome string) {
	c.contentFetches.WithLabelValues(outcome).Inc()
}

// RecordReaction は反応の記録を数える。
func (c *Collector) RecordReaction(reaction string) {
	c.reactions.WithLabelValues(reaction).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordSelectionAttempt(string)      {}
func (Nop) RecordSelectionExhausted()          {}
func (Nop) RecordSummaryLatency(time.Duration) {}
func (Nop) RecordContentFetch(string)          {}
func (Nop) RecordReaction(string)              {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
