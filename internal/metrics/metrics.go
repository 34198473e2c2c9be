// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層・ミドルウェア・ワーカーから利用する。
type MetricsCollector interface {
	RecordDirectorySync(created bool)
	RecordTokenIssued()
	RecordTokenFailure(reason string)
	RecordCallCreated()
	RecordCallJoin()
	RecordCallJoinFailure(reason string)
	RecordCallLeave()
	RecordCallEnded(reason string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordSessionsPurged(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	directorySync  *prometheus.CounterVec
	tokensIssued   prometheus.Counter
	tokenFailures  *prometheus.CounterVec
	callsCreated   prometheus.Counter
	callJoins      prometheus.Counter
	joinFailures   *prometheus.CounterVec
	callLeaves     prometheus.Counter
	callsEnded     *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	requestLatency prometheus.Histogram
	sessionsPurged prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		directorySync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codemeet_directory_sync_total",
			Help: "ディレクトリ同期の合計数（created/updated）",
		}, []string{"result"}),
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codemeet_video_tokens_issued_total",
			Help: "発行したビデオ通話トークンの合計数",
		}),
		tokenFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codemeet_video_token_failures_total",
			Help: "ビデオ通話トークン発行・検証失敗の理由別合計数",
		}, []string{"reason"}),
		callsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codemeet_calls_created_total",
			Help: "作成された通話セッションの合計数",
		}),
		callJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codemeet_call_joins_total",
			Help: "通話参加の合計数",
		}),
		joinFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codemeet_call_join_failures_total",
			Help: "通話参加失敗の理由別合計数",
		}, []string{"reason"}),
		callLeaves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codemeet_call_leaves_total",
			Help: "通話退出の合計数",
		}),
		callsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codemeet_calls_ended_total",
			Help: "終了した通話セッションの理由別合計数",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "codemeet_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "codemeet_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "codemeet_sessions_purged_total",
			Help: "クリーンアップで削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.directorySync,
		c.tokensIssued,
		c.tokenFailures,
		c.callsCreated,
		c.callJoins,
		c.joinFailures,
		c.callLeaves,
		c.callsEnded,
		c.httpStatus,
		c.requestLatency,
		c.sessionsPurged,
	)
	return c
}

// RecordDirectorySync はディレクトリ同期を記録する。
func (c *Collector) RecordDirectorySync(created bool) {
	result := "updated"
	if created {
		result = "created"
	}
	c.directorySync.WithLabelValues(result).Inc()
}

// RecordTokenIssued はトークン発行を記録する。
func (c *Collector) RecordTokenIssued() {
	c.tokensIssued.Inc()
}

// RecordTokenFailure はトークン発行・検証の失敗を記録する。
func (c *Collector) RecordTokenFailure(reason string) {
	c.tokenFailures.WithLabelValues(reason).Inc()
}

// RecordCallCreated は通話作成を記録する。
func (c *Collector) RecordCallCreated() {
	c.callsCreated.Inc()
}

// RecordCallJoin は通話参加を記録する。
func (c *Collector) RecordCallJoin() {
	c.callJoins.Inc()
}

// RecordCallJoinFailure は通話参加の失敗を記録する。
func (c *Collector) RecordCallJoinFailure(reason string) {
	c.joinFailures.WithLabelValues(reason).Inc()
}

// RecordCallLeave は通話退出を記録する。
func (c *Collector) RecordCallLeave() {
	c.callLeaves.Inc()
}

// RecordCallEnded は通話終了を記録する。reasonは "host" か "idle"。
func (c *Collector) RecordCallEnded(reason string) {
	c.callsEnded.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエスト処理時間を記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordSessionsPurged は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsPurged(count int64) {
	c.sessionsPurged.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordDirectorySync(bool)           {}
func (Nop) RecordTokenIssued()                 {}
func (Nop) RecordTokenFailure(string)          {}
func (Nop) RecordCallCreated()                 {}
func (Nop) RecordCallJoin()                    {}
func (Nop) RecordCallJoinFailure(string)       {}
func (Nop) RecordCallLeave()                   {}
func (Nop) RecordCallEnded(string)             {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordSessionsPurged(int64)         {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface checks
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
