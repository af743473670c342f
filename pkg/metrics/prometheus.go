// Prometheus 指标定义
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/biovalue-ai/fairvalue/pkg/errors"
)

var (
	// ActivityDuration 活动执行时长
	ActivityDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fairvalue_activity_duration_seconds",
			Help:    "Activity execution duration",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"activity_name", "status"},
	)

	// CacheHitRate 缓存命中率
	CacheHitRate = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairvalue_cache_operations_total",
			Help: "Cache operations count",
		},
		[]string{"operation", "result"}, // result: hit/miss/error
	)

	// ModelAvailability 单模型是否产出有效值
	ModelAvailability = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairvalue_model_results_total",
			Help: "Per-model valuation outcomes",
		},
		[]string{"model", "available"},
	)

	// ConfidenceScore 模型一致性评分分布
	ConfidenceScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fairvalue_confidence_score",
			Help:    "Distribution of model-agreement confidence scores",
			Buckets: prometheus.LinearBuckets(0, 1, 11),
		},
	)

	// MonteCarloTrials 蒙特卡洛试验数
	MonteCarloTrials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairvalue_monte_carlo_trials_total",
			Help: "Monte Carlo trials by outcome",
		},
		[]string{"result"}, // result: accepted/discarded
	)

	// HTTPRequestDuration API 请求时长
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fairvalue_http_request_duration_seconds",
			Help:    "HTTP API request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method", "status"},
	)

	// ErrorsTotal 错误计数
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fairvalue_errors_total",
			Help: "Total errors by level and code",
		},
		[]string{"level", "code"},
	)
)

// RecordError 按分类累计错误
func RecordError(err error) {
	classified := apperrors.ClassifyError(err)
	if classified == nil {
		return
	}
	ErrorsTotal.WithLabelValues(classified.Level.String(), classified.Code).Inc()
}

// Status 指标中的执行状态标签
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
