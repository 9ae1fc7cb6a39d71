package model

import (
	"encoding/json"
	"time"
)

// Metric 附着在评测运行上的单个指标
type Metric struct {
	MetricName   string          `json:"metric_name"`
	MetricValue  float64         `json:"metric_value"`
	MetricConfig json.RawMessage `json:"metric_config,omitempty"`
}

// MetricRecord 服务端返回的指标记录
type MetricRecord struct {
	ID           int64           `json:"id"`
	RunID        int64           `json:"run_id"`
	MetricName   string          `json:"metric_name"`
	MetricValue  float64         `json:"metric_value"`
	MetricConfig json.RawMessage `json:"metric_config,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RunMetrics 对比视图里单个运行的指标集合
type RunMetrics struct {
	RunName      string             `json:"run_name"`
	ModelVersion string             `json:"model_version"`
	CreatedAt    time.Time          `json:"created_at"`
	Metrics      map[string]float64 `json:"metrics"`
}

// MetricComparison 多运行指标对比，键为运行 ID 的字符串形式
type MetricComparison map[string]RunMetrics

// MetricTrendPoint 指标趋势的单个时间点
type MetricTrendPoint struct {
	Date   string             `json:"date"`
	Values map[string]float64 `json:"values"`
}

// TrendDirection 趋势方向
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// MetricSummary 任务维度的指标汇总
type MetricSummary struct {
	MetricName  string         `json:"metric_name"`
	AvgValue    float64        `json:"avg_value"`
	MaxValue    float64        `json:"max_value"`
	MinValue    float64        `json:"min_value"`
	LatestValue float64        `json:"latest_value"`
	Trend       TrendDirection `json:"trend"`
}
