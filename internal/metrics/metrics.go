// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はクライアント動作のメトリクスを収集する。
// ゲートウェイ・ダウンローダー・WhatsAppポーラーから利用する。
type Collector struct {
	apiRequests   *prometheus.CounterVec
	forcedLogouts prometheus.Counter
	authFailures  prometheus.Counter
	downloads     prometheus.Counter
	pollCycles    prometheus.Counter
	pollErrors    prometheus.Counter
	pollLatency   prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "catman_api_requests_total",
			Help: "バックエンドAPIリクエストのHTTPステータスコード別合計数",
		}, []string{"status_code"}),
		forcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catman_forced_logouts_total",
			Help: "401応答の横取りによる強制ログアウトの合計数",
		}),
		authFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catman_auth_failures_total",
			Help: "認証操作（ログイン・登録・検証）失敗の合計数",
		}),
		downloads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catman_downloads_total",
			Help: "完了したカタログダウンロードの合計数",
		}),
		pollCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catman_whatsapp_poll_cycles_total",
			Help: "WhatsAppステータスポーリングサイクルの合計数",
		}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "catman_whatsapp_poll_errors_total",
			Help: "WhatsAppステータスポーリング失敗の合計数",
		}),
		pollLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "catman_whatsapp_poll_latency_seconds",
			Help:    "WhatsAppステータスポーリングのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.forcedLogouts,
		c.authFailures,
		c.downloads,
		c.pollCycles,
		c.pollErrors,
		c.pollLatency,
	)

	return c
}

// RecordRequest はAPIリクエストのHTTPステータスコードを記録する。
func (c *Collector) RecordRequest(statusCode int) {
	c.apiRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordForcedLogout は401横取りによる強制ログアウトを記録する。
func (c *Collector) RecordForcedLogout() {
	c.forcedLogouts.Inc()
}

// RecordAuthFailure は認証操作の失敗を記録する。
func (c *Collector) RecordAuthFailure() {
	c.authFailures.Inc()
}

// RecordDownload は完了したダウンロードを記録する。
func (c *Collector) RecordDownload() {
	c.downloads.Inc()
}

// RecordPollCycle はポーリングサイクルの完了とレイテンシを記録する。
func (c *Collector) RecordPollCycle(duration time.Duration) {
	c.pollCycles.Inc()
	c.pollLatency.Observe(duration.Seconds())
}

// RecordPollError はポーリング失敗を記録する。
func (c *Collector) RecordPollError() {
	c.pollErrors.Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
