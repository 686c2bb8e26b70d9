package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ronpa_ai_requests_total",
			Help: "Total number of requests to the AI API.",
		},
		[]string{"model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ronpa_ai_request_duration_seconds",
			Help:    "Histogram of AI API request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"model"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ronpa_ai_prompt_tokens",
			Help:    "Histogram of prompt token counts.",
			Buckets: prometheus.LinearBuckets(500, 500, 16), // 500 ... 8000
		},
		[]string{"model"},
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ronpa_ai_completion_tokens",
			Help:    "Histogram of completion token counts.",
			Buckets: prometheus.LinearBuckets(128, 128, 16), // 128 ... 2048
		},
		[]string{"model"},
	)
	aiFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ronpa_ai_fallbacks_total",
			Help: "Number of times the fallback model replaced a failed primary request.",
		},
		[]string{"operation"},
	)
	avatarsGeneratedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ronpa_avatars_generated_total",
			Help: "Avatar generation attempts by outcome.",
		},
		[]string{"status"},
	)
)

func observeRequest(model, status string, seconds float64) {
	aiRequestsTotal.WithLabelValues(model, status).Inc()
	if seconds > 0 {
		aiRequestDuration.WithLabelValues(model).Observe(seconds)
	}
}

func observeUsage(model string, usage UsageInfo) {
	if usage.PromptTokens > 0 {
		aiPromptTokens.WithLabelValues(model).Observe(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		aiCompletionTokens.WithLabelValues(model).Observe(float64(usage.CompletionTokens))
	}
}
