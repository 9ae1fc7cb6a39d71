// Package metricutil 指标计算与展示的纯函数
//
// 不发网络请求、不持状态，输入输出都是值。综合评分、趋势判断、
// 格式化规则与服务端展示约定保持一致。
package metricutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"eval-console/internal/model"
)

// DefaultWeights 综合评分默认权重
var DefaultWeights = map[string]float64{
	"accuracy":  0.4,
	"precision": 0.2,
	"recall":    0.2,
	"f1_score":  0.2,
}

// OverallScore 按权重计算综合评分
//
// weights 为 nil 时用默认权重。只累计实际存在的指标，并按在场
// 权重重新归一；一个都不在场时返回 0，不做除零。
func OverallScore(metrics map[string]float64, weights map[string]float64) float64 {
	if weights == nil {
		weights = DefaultWeights
	}

	var totalScore, totalWeight float64
	for name, weight := range weights {
		value, ok := metrics[name]
		if !ok {
			continue
		}
		totalScore += value * weight
		totalWeight += weight
	}
	if totalWeight == 0 {
		return 0
	}
	return totalScore / totalWeight
}

// Change 计算变化率（百分比）
//
// previous 为 0 时返回 0，避免除零。
func Change(current, previous float64) float64 {
	if previous == 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// 按名称划分的格式化类别
var (
	percentageMetrics = map[string]bool{
		"accuracy": true, "precision": true, "recall": true, "pass_rate": true,
	}
	scoreMetrics = map[string]bool{
		"f1_score": true, "average_score": true,
	}
	integerMetrics = map[string]bool{
		"total_count": true, "correct_count": true, "pass_count": true,
	}
)

// FormatValue 按指标名称格式化指标值
//
// 百分比类乘 100 保留两位，分数类保留四位，计数类取整，
// 其余默认保留两位小数。
func FormatValue(value float64, metricName string) string {
	name := strings.ToLower(metricName)
	switch {
	case percentageMetrics[name]:
		return fmt.Sprintf("%.2f%%", value*100)
	case scoreMetrics[name]:
		return strconv.FormatFloat(value, 'f', 4, 64)
	case integerMetrics[name]:
		return strconv.FormatInt(int64(value), 10)
	default:
		return strconv.FormatFloat(value, 'f', 2, 64)
	}
}

// Threshold 颜色阈值
type Threshold struct {
	Good    float64
	Warning float64
}

// DefaultThreshold 常用的 0.8 / 0.6 阈值
var DefaultThreshold = Threshold{Good: 0.8, Warning: 0.6}

// Color 按阈值返回展示颜色
func Color(value float64, t Threshold) string {
	switch {
	case value >= t.Good:
		return "#52c41a" // 绿
	case value >= t.Warning:
		return "#faad14" // 黄
	default:
		return "#f5222d" // 红
	}
}

// descriptions 指标说明
var descriptions = map[string]string{
	"accuracy":      "准确率：预测正确的样本数占总样本数的比例",
	"precision":     "精确率：预测为正的样本中实际为正的比例",
	"recall":        "召回率：实际为正的样本中被预测为正的比例",
	"f1_score":      "F1分数：精确率和召回率的调和平均值",
	"average_score": "平均分：所有评分的平均值",
	"pass_rate":     "通过率：评分达到阈值的样本比例",
	"total_count":   "总数：评测的样本总数",
	"correct_count": "正确数：预测正确的样本数",
	"pass_count":    "通过数：评分达到阈值的样本数",
}

// Description 返回指标的中文说明，未知指标返回"暂无描述"
func Description(metricName string) string {
	if d, ok := descriptions[strings.ToLower(metricName)]; ok {
		return d
	}
	return "暂无描述"
}

// DetectTrend 判断时间序列的趋势方向
//
// 前半段均值与后半段均值相比，变化超过 ±5% 判升降，否则平稳。
// 少于两个点视为平稳。
func DetectTrend(values []float64) model.TrendDirection {
	if len(values) < 2 {
		return model.TrendStable
	}

	mid := len(values) / 2
	avgFirst := mean(values[:mid])
	avgSecond := mean(values[mid:])

	if avgFirst == 0 {
		return model.TrendStable
	}
	change := (avgSecond - avgFirst) / avgFirst
	switch {
	case change > 0.05:
		return model.TrendUp
	case change < -0.05:
		return model.TrendDown
	default:
		return model.TrendStable
	}
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// BestModel 找出某指标表现最好的运行
//
// 严格大于才替换，并列时先遇到的胜出；所有运行都没有该指标时
// 返回空字符串。遍历顺序取 ids 保证确定性。
func BestModel(comparison model.MetricComparison, metricName string, ids []string) string {
	best := ""
	bestValue := 0.0
	found := false

	for _, id := range ids {
		run, ok := comparison[id]
		if !ok {
			continue
		}
		value, ok := run.Metrics[metricName]
		if !ok {
			continue
		}
		if !found || value > bestValue {
			best = id
			bestValue = value
			found = true
		}
	}
	if !found {
		return ""
	}
	return best
}

// ============================================================================
// 报告
// ============================================================================

// ReportEntry 报告中的单个指标
type ReportEntry struct {
	Name           string  `json:"name"`
	Value          float64 `json:"value"`
	FormattedValue string  `json:"formatted_value"`
	Description    string  `json:"description"`
}

// Report 某次运行的指标报告
type Report struct {
	RunID        int64         `json:"run_id"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Metrics      []ReportEntry `json:"metrics"`
	TotalMetrics int           `json:"total_metrics"`
	OverallScore float64       `json:"overall_score"`
}

// BuildReport 由指标记录列表组装报告
func BuildReport(runID int64, records []model.MetricRecord) Report {
	entries := make([]ReportEntry, 0, len(records))
	values := make(map[string]float64, len(records))
	for _, r := range records {
		entries = append(entries, ReportEntry{
			Name:           r.MetricName,
			Value:          r.MetricValue,
			FormattedValue: FormatValue(r.MetricValue, r.MetricName),
			Description:    Description(r.MetricName),
		})
		values[r.MetricName] = r.MetricValue
	}

	return Report{
		RunID:        runID,
		GeneratedAt:  time.Now(),
		Metrics:      entries,
		TotalMetrics: len(entries),
		OverallScore: OverallScore(values, nil),
	}
}
