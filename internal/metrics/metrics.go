// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ログイン結果のラベル値。
const (
	LoginResultCreated  = "created"
	LoginResultExisting = "existing"
	LoginResultFailed   = "failed"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービス、Discordクライアント、HTTPミドルウェア、クリーンアップワーカーから利用する。
type MetricsCollector interface {
	RecordLogin(result string)
	RecordGuildFetch(success bool, duration time.Duration)
	RecordHTTPStatus(statusCode int)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	logins         *prometheus.CounterVec
	guildFetches   *prometheus.CounterVec
	guildLatency   prometheus.Histogram
	httpStatus     *prometheus.CounterVec
	sessionCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildview_logins_total",
			Help: "OAuthコールバック処理の結果別件数",
		}, []string{"result"}),
		guildFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildview_guild_fetch_total",
			Help: "Discordギルド一覧取得の結果別件数",
		}, []string{"result"}),
		guildLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "guildview_guild_fetch_latency_seconds",
			Help:    "Discordギルド一覧取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildview_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		sessionCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guildview_sessions_cleaned_total",
			Help: "削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.logins,
		c.guildFetches,
		c.guildLatency,
		c.httpStatus,
		c.sessionCleaned,
	)

	return c
}

// RecordLogin はログイン結果を記録する。
func (c *Collector) RecordLogin(result string) {
	c.logins.WithLabelValues(result).Inc()
}

// RecordGuildFetch はギルド取得の結果とレイテンシを記録する。
func (c *Collector) RecordGuildFetch(success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.guildFetches.WithLabelValues(result).Inc()
	c.guildLatency.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordSessionsCleaned は削除したセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionCleaned.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordLogin(string)                   {}
func (Nop) RecordGuildFetch(bool, time.Duration) {}
func (Nop) RecordHTTPStatus(int)                 {}
func (Nop) RecordSessionsCleaned(int64)          {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
