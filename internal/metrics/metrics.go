// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/campusbuzz/internal/bootstrap"
)

// outcomeSuccess は成功時のoutcome/resultラベル値。
const outcomeSuccess = "success"

// Collector はPrometheusメトリクスを収集する実装。
// bootstrap.Observerとchat.Recorderを実装する。
type Collector struct {
	transportInit *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	stepLatency   *prometheus.HistogramVec
	outcomes      *prometheus.CounterVec
	attempts      prometheus.Histogram
	coalesced     prometheus.Counter
	chatRequests  *prometheus.CounterVec
	chatLatency   *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transportInit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusbuzz_transport_init_total",
			Help: "チャットトランスポート初期化の実行回数（結果別）",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusbuzz_bootstrap_transitions_total",
			Help: "チャットID連携のフェーズ遷移回数",
		}, []string{"from", "to"}),
		stepLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campusbuzz_bootstrap_step_seconds",
			Help:    "チャットID連携の各フェーズの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase", "result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusbuzz_bootstrap_outcomes_total",
			Help: "チャットID連携の最終結果（失敗種別別）",
		}, []string{"outcome"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "campusbuzz_bootstrap_login_attempts",
			Help:    "1回の連携処理で行ったログイン試行回数",
			Buckets: []float64{0, 1, 2},
		}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusbuzz_bootstrap_coalesced_total",
			Help: "実行中の連携処理に相乗りした呼び出しの合計数",
		}),
		chatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusbuzz_chat_requests_total",
			Help: "チャットAPI呼び出し数（操作・HTTPステータス別）",
		}, []string{"operation", "status_code"}),
		chatLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campusbuzz_chat_request_seconds",
			Help:    "チャットAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.transportInit,
		c.transitions,
		c.stepLatency,
		c.outcomes,
		c.attempts,
		c.coalesced,
		c.chatRequests,
		c.chatLatency,
	)

	return c
}

// TransportInitialized はトランスポート初期化の結果を記録する。
func (c *Collector) TransportInitialized(err error) {
	c.transportInit.WithLabelValues(resultLabel(err)).Inc()
}

// PhaseChanged はフェーズ遷移を記録する。
func (c *Collector) PhaseChanged(from, to bootstrap.Phase) {
	c.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// StepCompleted はフェーズごとの処理時間を記録する。
func (c *Collector) StepCompleted(phase bootstrap.Phase, elapsed time.Duration, err error) {
	c.stepLatency.WithLabelValues(string(phase), resultLabel(err)).Observe(elapsed.Seconds())
}

// Finished は連携処理の最終結果とログイン試行回数を記録する。
func (c *Collector) Finished(err error, attempts int) {
	c.outcomes.WithLabelValues(resultLabel(err)).Inc()
	c.attempts.Observe(float64(attempts))
}

// Coalesced は相乗りした呼び出しを記録する。
func (c *Collector) Coalesced() {
	c.coalesced.Inc()
}

// ObserveChatRequest はチャットAPI呼び出しを記録する。statusが0の場合は通信エラー。
func (c *Collector) ObserveChatRequest(operation string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	if status == 0 {
		code = "error"
	}
	c.chatRequests.WithLabelValues(operation, code).Inc()
	c.chatLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// resultLabel はエラーをラベル値に変換する。連携とトランスポートのエラーは種別名、それ以外は"error"。
func resultLabel(err error) string {
	if err == nil {
		return outcomeSuccess
	}
	var bridgeErr *bootstrap.BridgeError
	if errors.As(err, &bridgeErr) {
		return bridgeErr.Kind.String()
	}
	var initErr *bootstrap.InitError
	if errors.As(err, &initErr) {
		return initErr.Kind.String()
	}
	return "error"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var _ bootstrap.Observer = (*Collector)(nil)
