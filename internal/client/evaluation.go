package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"eval-console/internal/model"
)

// ListTasks 获取任务列表
func (c *Client) ListTasks(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := c.get(ctx, "/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListTaskRules 获取任务的评测规则
func (c *Client) ListTaskRules(ctx context.Context, taskID int64) ([]model.EvaluationRule, error) {
	var rules []model.EvaluationRule
	if err := c.get(ctx, fmt.Sprintf("/tasks/%d/rules", taskID), nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// CreateEvaluation 创建评测运行
func (c *Client) CreateEvaluation(ctx context.Context, req model.CreateEvaluationRequest) (*model.EvaluationRun, error) {
	var run model.EvaluationRun
	if err := c.post(ctx, "/evaluations/runs", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// EvaluationQuery 评测列表查询参数
type EvaluationQuery struct {
	TaskID int64
	Limit  int
	Offset int
}

// ListEvaluations 获取评测列表
func (c *Client) ListEvaluations(ctx context.Context, q *EvaluationQuery) ([]model.EvaluationRun, error) {
	query := url.Values{}
	if q != nil {
		if q.TaskID > 0 {
			query.Set("task_id", strconv.FormatInt(q.TaskID, 10))
		}
		if q.Limit > 0 {
			query.Set("limit", strconv.Itoa(q.Limit))
		}
		if q.Offset > 0 {
			query.Set("offset", strconv.Itoa(q.Offset))
		}
	}

	var runs []model.EvaluationRun
	if err := c.get(ctx, "/evaluations/runs", query, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetEvaluation 获取评测详情
func (c *Client) GetEvaluation(ctx context.Context, runID int64) (*model.EvaluationRun, error) {
	var run model.EvaluationRun
	if err := c.get(ctx, fmt.Sprintf("/evaluations/runs/%d", runID), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// DeleteEvaluation 删除评测运行
func (c *Client) DeleteEvaluation(ctx context.Context, runID int64) error {
	return c.delete(ctx, fmt.Sprintf("/evaluations/runs/%d", runID))
}

// GetEvaluationProgress 获取评测进度
func (c *Client) GetEvaluationProgress(ctx context.Context, runID int64, limit, offset int) (*model.EvaluationProgress, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		query.Set("offset", strconv.Itoa(offset))
	}

	var progress model.EvaluationProgress
	if err := c.get(ctx, fmt.Sprintf("/evaluations/runs/%d/progress", runID), query, &progress); err != nil {
		return nil, err
	}
	return &progress, nil
}
