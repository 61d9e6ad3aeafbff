// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証オーケストレータとコマンドラッパーから利用する。
type MetricsCollector interface {
	RecordConnectorCall(operation, outcome string)
	RecordConnectorLatency(operation string, duration time.Duration)
	RecordLoginAttempt(method, outcome string)
	RecordFloodWait(seconds int)
	RecordSessionOpened()
	RecordSessionTerminated()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	connectorCalls   *prometheus.CounterVec
	connectorLatency *prometheus.HistogramVec
	loginAttempts    *prometheus.CounterVec
	floodWaits       prometheus.Counter
	floodWaitSecs    prometheus.Histogram
	sessionsOpened   prometheus.Counter
	sessionsClosed   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		connectorCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gramlink_connector_calls_total",
			Help: "コネクタ呼び出しの操作別・結果別の合計数",
		}, []string{"operation", "outcome"}),
		connectorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gramlink_connector_latency_seconds",
			Help:    "コネクタ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gramlink_login_attempts_total",
			Help: "ログイン試行の方式別・結果別の合計数",
		}, []string{"method", "outcome"}),
		floodWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gramlink_flood_waits_total",
			Help: "コネクタから通知されたレート制限の合計数",
		}),
		floodWaitSecs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gramlink_flood_wait_seconds",
			Help:    "レート制限で要求された待機秒数の分布",
			Buckets: []float64{1, 5, 15, 60, 300, 1800, 3600, 86400},
		}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gramlink_sessions_opened_total",
			Help: "作成されたセッションの合計数",
		}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gramlink_sessions_terminated_total",
			Help: "終了されたセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.connectorCalls,
		c.connectorLatency,
		c.loginAttempts,
		c.floodWaits,
		c.floodWaitSecs,
		c.sessionsOpened,
		c.sessionsClosed,
	)

	return c
}

// RecordConnectorCall はコネクタ呼び出しの結果を記録する。
// outcomeは success / failure / rate_limited のいずれか。
func (c *Collector) RecordConnectorCall(operation, outcome string) {
	c.connectorCalls.WithLabelValues(operation, outcome).Inc()
}

// RecordConnectorLatency はコネクタ呼び出しのレイテンシを記録する。
func (c *Collector) RecordConnectorLatency(operation string, duration time.Duration) {
	c.connectorLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordLoginAttempt はログイン試行を記録する。methodは qr / phone / code。
func (c *Collector) RecordLoginAttempt(method, outcome string) {
	c.loginAttempts.WithLabelValues(method, outcome).Inc()
}

// RecordFloodWait はコネクタのレート制限通知を記録する。
func (c *Collector) RecordFloodWait(seconds int) {
	c.floodWaits.Inc()
	c.floodWaitSecs.Observe(float64(seconds))
}

// RecordSessionOpened はセッション作成を記録する。
func (c *Collector) RecordSessionOpened() {
	c.sessionsOpened.Inc()
}

// RecordSessionTerminated はセッション終了を記録する。
func (c *Collector) RecordSessionTerminated() {
	c.sessionsClosed.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。テストで使用する。
type NopCollector struct{}

func (NopCollector) RecordConnectorCall(string, string)           {}
func (NopCollector) RecordConnectorLatency(string, time.Duration) {}
func (NopCollector) RecordLoginAttempt(string, string)            {}
func (NopCollector) RecordFloodWait(int)                          {}
func (NopCollector) RecordSessionOpened()                         {}
func (NopCollector) RecordSessionTerminated()                     {}

// compile-time interface checks
var _ MetricsCollector = (*Collector)(nil)
var _ MetricsCollector = NopCollector{}
