// Package metrics 提供工具调用相关的 Prometheus 指标，通过 /metrics 暴露。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 工具调用
	ToolInvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tetris_tool_invocations_total",
			Help: "Total number of tool invocations by tool and envelope status",
		},
		[]string{"tool", "status"},
	)

	ToolErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tetris_tool_errors_total",
			Help: "Tool error envelopes by reason code",
		},
		[]string{"tool", "reason"},
	)

	// 图片处理
	ImageSourcesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tetris_image_sources_total",
			Help: "Resolved image inputs by source kind",
		},
		[]string{"kind"},
	)

	ImageValidationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tetris_image_validation_failures_total",
			Help: "Image resolve/validate failures by reason code",
		},
		[]string{"reason"},
	)

	ImageBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tetris_image_bytes",
			Help:    "Size of accepted images in bytes",
			Buckets: prometheus.ExponentialBuckets(16*1024, 2, 10),
		},
	)

	// 模型响应解析
	ExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tetris_extractions_total",
			Help: "Structured extraction outcomes by parsing status",
		},
		[]string{"status"},
	)

	// 模型调用
	ModelCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tetris_model_call_duration_seconds",
			Help:    "Latency of model invocations in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
		[]string{"tool", "result"},
	)
)
