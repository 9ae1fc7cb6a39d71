package metricutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"eval-console/internal/model"
)

func TestOverallScore(t *testing.T) {
	t.Run("全部指标在场", func(t *testing.T) {
		metrics := map[string]float64{
			"accuracy":  0.9,
			"precision": 0.8,
			"recall":    0.7,
			"f1_score":  0.75,
		}
		// 0.9*0.4 + 0.8*0.2 + 0.7*0.2 + 0.75*0.2 = 0.81
		assert.InDelta(t, 0.81, OverallScore(metrics, nil), 1e-9)
	})

	t.Run("缺失指标按在场权重归一", func(t *testing.T) {
		metrics := map[string]float64{
			"accuracy": 0.9,
			"recall":   0.6,
		}
		// (0.9*0.4 + 0.6*0.2) / 0.6 = 0.8
		assert.InDelta(t, 0.8, OverallScore(metrics, nil), 1e-9)
	})

	t.Run("无任何加权指标返回零", func(t *testing.T) {
		assert.Zero(t, OverallScore(map[string]float64{"pass_rate": 0.5}, nil))
		assert.Zero(t, OverallScore(nil, nil))
	})

	t.Run("自定义权重", func(t *testing.T) {
		metrics := map[string]float64{"pass_rate": 0.5}
		weights := map[string]float64{"pass_rate": 1.0}
		assert.InDelta(t, 0.5, OverallScore(metrics, weights), 1e-9)
	})
}

func TestChange(t *testing.T) {
	assert.InDelta(t, 25.0, Change(1.25, 1.0), 1e-9)
	assert.InDelta(t, -50.0, Change(0.5, 1.0), 1e-9)
	assert.Zero(t, Change(1.0, 0)) // 除零保护
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name   string
		value  float64
		metric string
		want   string
	}{
		{"百分比", 0.8567, "accuracy", "85.67%"},
		{"百分比大小写不敏感", 0.5, "Pass_Rate", "50.00%"},
		{"分数四位", 0.75125, "f1_score", "0.7513"},
		{"计数取整", 128, "total_count", "128"},
		{"默认两位", 3.14159, "latency", "3.14"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.value, tt.metric))
		})
	}
}

func TestColor(t *testing.T) {
	assert.Equal(t, "#52c41a", Color(0.85, DefaultThreshold))
	assert.Equal(t, "#52c41a", Color(0.8, DefaultThreshold)) // 含端点
	assert.Equal(t, "#faad14", Color(0.7, DefaultThreshold))
	assert.Equal(t, "#f5222d", Color(0.3, DefaultThreshold))
}

func TestDescription(t *testing.T) {
	assert.Contains(t, Description("accuracy"), "准确率")
	assert.Contains(t, Description("F1_Score"), "F1分数")
	assert.Equal(t, "暂无描述", Description("unknown_metric"))
}

func TestDetectTrend(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   model.TrendDirection
	}{
		{"上升", []float64{0.5, 0.55, 0.8, 0.9}, model.TrendUp},
		{"下降", []float64{0.9, 0.85, 0.5, 0.4}, model.TrendDown},
		{"平稳", []float64{0.8, 0.81, 0.8, 0.82}, model.TrendStable},
		{"单点", []float64{0.9}, model.TrendStable},
		{"空序列", nil, model.TrendStable},
		{"前半段为零", []float64{0, 0, 1, 1}, model.TrendStable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectTrend(tt.values))
		})
	}
}

func TestBestModel(t *testing.T) {
	comparison := model.MetricComparison{
		"1": {ModelVersion: "gpt-4o", Metrics: map[string]float64{"accuracy": 0.85}},
		"2": {ModelVersion: "claude-3", Metrics: map[string]float64{"accuracy": 0.92}},
		"3": {ModelVersion: "qwen", Metrics: map[string]float64{"recall": 0.7}},
	}
	ids := []string{"1", "2", "3"}

	assert.Equal(t, "2", BestModel(comparison, "accuracy", ids))
	assert.Equal(t, "3", BestModel(comparison, "recall", ids))
	// 所有运行都没有该指标
	assert.Equal(t, "", BestModel(comparison, "f1_score", ids))

	// 并列时先遇到的胜出
	tied := model.MetricComparison{
		"a": {Metrics: map[string]float64{"accuracy": 0.9}},
		"b": {Metrics: map[string]float64{"accuracy": 0.9}},
	}
	assert.Equal(t, "a", BestModel(tied, "accuracy", []string{"a", "b"}))

	// 负值也能当最佳
	negative := model.MetricComparison{
		"x": {Metrics: map[string]float64{"delta": -0.2}},
		"y": {Metrics: map[string]float64{"delta": -0.5}},
	}
	assert.Equal(t, "x", BestModel(negative, "delta", []string{"x", "y"}))
}

func TestBuildReport(t *testing.T) {
	records := []model.MetricRecord{
		{MetricName: "accuracy", MetricValue: 0.9},
		{MetricName: "f1_score", MetricValue: 0.85},
		{MetricName: "total_count", MetricValue: 100},
	}

	report := BuildReport(42, records)
	assert.Equal(t, int64(42), report.RunID)
	assert.Equal(t, 3, report.TotalMetrics)
	assert.Equal(t, "90.00%", report.Metrics[0].FormattedValue)
	assert.Equal(t, "0.8500", report.Metrics[1].FormattedValue)
	assert.Equal(t, "100", report.Metrics[2].FormattedValue)
	// accuracy 0.4 + f1 0.2 → (0.9*0.4 + 0.85*0.2) / 0.6
	assert.InDelta(t, (0.9*0.4+0.85*0.2)/0.6, report.OverallScore, 1e-9)
	assert.False(t, report.GeneratedAt.IsZero())
}
