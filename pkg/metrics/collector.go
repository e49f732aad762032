package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace はメトリクス名の接頭辞。
const Namespace = "edgegate"

// Collector はゲートウェイのメトリクスを保持する。
// proxy.Observer、session.Observer、auth.Observer を満たす。
type Collector struct {
	registry *prometheus.Registry

	forwardTotal    *prometheus.CounterVec
	forwardDuration *prometheus.HistogramVec
	refreshTotal    *prometheus.CounterVec
	loginTotal      *prometheus.CounterVec
	requestTotal    *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成してregistryに登録する。
// registryがnilの場合は新しいレジストリを作成する。
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		forwardTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "proxy",
			Name:      "forward_total",
			Help:      "Total number of upstream forwards by upstream and outcome.",
		}, []string{"upstream", "outcome"}),
		forwardDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "proxy",
			Name:      "forward_duration_seconds",
			Help:      "Upstream round trip duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"upstream"}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "session",
			Name:      "refresh_total",
			Help:      "Total number of token refresh attempts by outcome.",
		}, []string{"outcome"}),
		loginTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "auth",
			Name:      "login_total",
			Help:      "Total number of login attempts by outcome.",
		}, []string{"outcome"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound requests by route and status code.",
		}, []string{"route", "code"}),
	}

	registry.MustRegister(
		c.forwardTotal,
		c.forwardDuration,
		c.refreshTotal,
		c.loginTotal,
		c.requestTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveForward は1回の転送の結果と所要時間を記録する。
func (c *Collector) ObserveForward(upstream, outcome string, d time.Duration) {
	c.forwardTotal.WithLabelValues(upstream, outcome).Inc()
	c.forwardDuration.WithLabelValues(upstream).Observe(d.Seconds())
}

// ObserveRefresh はトークンリフレッシュの結果を記録する。
func (c *Collector) ObserveRefresh(outcome string) {
	c.refreshTotal.WithLabelValues(outcome).Inc()
}

// ObserveLogin はログインの結果を記録する。
func (c *Collector) ObserveLogin(outcome string) {
	c.loginTotal.WithLabelValues(outcome).Inc()
}

// ObserveRequest は受信リクエストのルートとステータスを記録する。
// routeには実パスではなくルートのパターンを渡すこと。
func (c *Collector) ObserveRequest(route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	c.requestTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// Handler は /metrics 用のHTTPハンドラを返す。
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
