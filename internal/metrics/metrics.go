// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/coachcal/internal/availability"
	"github.com/hitoshi/coachcal/internal/model"
)

// コンパイル時にRecorderの実装を検証する。
var _ availability.Recorder = (*Collector)(nil)

// Collector は空き時間検索エンジンとHTTP層のPrometheusメトリクスを収集する。
type Collector struct {
	queries        *prometheus.CounterVec
	queryLatency   *prometheus.HistogramVec
	memberSources  *prometheus.CounterVec
	memberFailures *prometheus.CounterVec
	groupSlots     prometheus.Histogram
	httpStatus     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachcal_availability_queries_total",
			Help: "空き時間検索の種別・結果別の合計数",
		}, []string{"kind", "result"}),
		queryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coachcal_availability_query_seconds",
			Help:    "空き時間検索のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		memberSources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachcal_member_source_total",
			Help: "グループ検索でのメンバーの空き時間取得元別の合計数",
		}, []string{"source"}),
		memberFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachcal_provider_failures_total",
			Help: "グループ検索で除外されたメンバーのエラー分類別の合計数",
		}, []string{"kind"}),
		groupSlots: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coachcal_group_slots_found",
			Help:    "グループ検索で見つかった共通スロット数（切り詰め前）",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coachcal_http_responses_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.queries,
		c.queryLatency,
		c.memberSources,
		c.memberFailures,
		c.groupSlots,
		c.httpStatus,
	)

	return c
}

// ObserveQuery は検索1件の結果とレイテンシを記録する。
// resultは成功時 "ok"、失敗時はエラー分類（分類のないエラーは "internal"）。
func (c *Collector) ObserveQuery(kind string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "internal"
		if k, ok := availability.KindOf(err); ok {
			result = string(k)
		}
	}
	c.queries.WithLabelValues(kind, result).Inc()
	c.queryLatency.WithLabelValues(kind).Observe(d.Seconds())
}

// CountMemberSource はメンバーの取得元を記録する。
func (c *Collector) CountMemberSource(source model.SourceType) {
	c.memberSources.WithLabelValues(string(source)).Inc()
}

// CountMemberFailure は除外されたメンバーを記録する。
func (c *Collector) CountMemberFailure(kind string) {
	c.memberFailures.WithLabelValues(kind).Inc()
}

func (c *Collector) ObserveGroupSlotsFound(n int) {
	c.groupSlots.Observe(float64(n))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
