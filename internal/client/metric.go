package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"eval-console/internal/model"
)

// GetRunMetrics 获取指定评测运行的所有指标
func (c *Client) GetRunMetrics(ctx context.Context, runID int64) ([]model.MetricRecord, error) {
	var metrics []model.MetricRecord
	if err := c.get(ctx, fmt.Sprintf("/metrics/runs/%d", runID), nil, &metrics); err != nil {
		return nil, err
	}
	return metrics, nil
}

// CompareMetrics 对比多个评测运行的指标
func (c *Client) CompareMetrics(ctx context.Context, runIDs []int64) (model.MetricComparison, error) {
	query := url.Values{}
	for _, id := range runIDs {
		query.Add("run_ids", strconv.FormatInt(id, 10))
	}

	var comparison model.MetricComparison
	if err := c.get(ctx, "/metrics/compare", query, &comparison); err != nil {
		return nil, err
	}
	return comparison, nil
}

// RecalculateMetrics 触发服务端重算指标
func (c *Client) RecalculateMetrics(ctx context.Context, runID int64) error {
	return c.post(ctx, fmt.Sprintf("/metrics/recalculate/%d", runID), nil, nil)
}

// GetMetricTrend 获取指标趋势数据
func (c *Client) GetMetricTrend(ctx context.Context, taskID int64, metricName string, limit int) ([]model.MetricTrendPoint, error) {
	if limit <= 0 {
		limit = 10
	}
	query := url.Values{
		"task_id":     {strconv.FormatInt(taskID, 10)},
		"metric_name": {metricName},
		"limit":       {strconv.Itoa(limit)},
	}

	var trend []model.MetricTrendPoint
	if err := c.get(ctx, "/metrics/trend", query, &trend); err != nil {
		return nil, err
	}
	return trend, nil
}

// GetMetricSummary 获取任务的指标汇总
func (c *Client) GetMetricSummary(ctx context.Context, taskID int64) ([]model.MetricSummary, error) {
	var summary []model.MetricSummary
	if err := c.get(ctx, fmt.Sprintf("/metrics/tasks/%d/summary", taskID), nil, &summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// GetMetric 获取单条指标记录
func (c *Client) GetMetric(ctx context.Context, metricID int64) (*model.MetricRecord, error) {
	var record model.MetricRecord
	if err := c.get(ctx, fmt.Sprintf("/metrics/%d", metricID), nil, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// ExportMetricsCSV 导出指标数据为 CSV 文件
func (c *Client) ExportMetricsCSV(ctx context.Context, runID int64, destPath string) error {
	if destPath == "" {
		destPath = fmt.Sprintf("metrics_run_%d.csv", runID)
	}
	return c.downloadGET(ctx, fmt.Sprintf("/metrics/runs/%d/export", runID), nil, destPath)
}
