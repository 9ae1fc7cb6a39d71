package model

import (
	"encoding/json"
	"time"
)

// ============================================================================
// RunStatus - 评测运行状态
// ============================================================================

// RunStatus 表示一次评测运行的状态
//
// 状态由服务端推进，客户端只做镜像，绝不本地推演：
//
//	pending → running → completed | failed
type RunStatus string

const (
	// RunStatusPending 等待中：已创建，尚未开始执行
	RunStatusPending RunStatus = "pending"

	// RunStatusRunning 执行中：服务端正在跑评测
	RunStatusRunning RunStatus = "running"

	// RunStatusCompleted 已完成：全部条目评测结束
	RunStatusCompleted RunStatus = "completed"

	// RunStatusFailed 已失败：评测过程出错终止
	RunStatusFailed RunStatus = "failed"
)

// IsTerminal 是否为终止状态
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Valid 是否为已知状态值
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusPending, RunStatusRunning, RunStatusCompleted, RunStatusFailed:
		return true
	}
	return false
}

// ============================================================================
// EvaluationRun - 评测运行
// ============================================================================

// EvaluationRun 一次针对某模型版本的评测运行
//
// 计数字段与 ProgressPercent 均为服务端真值。更新途中
// completed+failed+pending 未必等于 total，客户端不得假设恒等式成立，
// 也不得用计数反推 ProgressPercent。
type EvaluationRun struct {
	ID              int64      `json:"id"`
	TaskID          int64      `json:"task_id"`
	RuleID          int64      `json:"rule_id"`
	ModelVersion    string     `json:"model_version"`
	RunName         *string    `json:"run_name"`
	Status          RunStatus  `json:"status"`
	TotalCount      int        `json:"total_count"`
	CompletedCount  int        `json:"completed_count"`
	FailedCount     int        `json:"failed_count"`
	ProgressPercent float64    `json:"progress_percent"`
	StartTime       *time.Time `json:"start_time"`
	EndTime         *time.Time `json:"end_time"`
	CreatedAt       time.Time  `json:"created_at"`
}

// PendingCount 展示用的未完成数（total - completed - failed，不小于 0）
func (r *EvaluationRun) PendingCount() int {
	n := r.TotalCount - r.CompletedCount - r.FailedCount
	if n < 0 {
		n = 0
	}
	return n
}

// EvaluationResult 单条数据的评测结果
type EvaluationResult struct {
	ID               int64           `json:"id"`
	DatasetID        int64           `json:"dataset_id"`
	Status           RunStatus       `json:"status"`
	ModelOutput      json.RawMessage `json:"model_output"`
	EvaluationResult json.RawMessage `json:"evaluation_result"`
	ErrorMessage     *string         `json:"error_message"`
	ExecutionTime    *float64        `json:"execution_time"`
}

// EvaluationProgress 运行进度视图
//
// 瞬态数据：整体重新拉取，不做增量 diff。
type EvaluationProgress struct {
	RunID           int64              `json:"run_id"`
	Status          RunStatus          `json:"status"`
	TotalCount      int                `json:"total_count"`
	CompletedCount  int                `json:"completed_count"`
	FailedCount     int                `json:"failed_count"`
	PendingCount    int                `json:"pending_count"`
	ProgressPercent float64            `json:"progress_percent"`
	Results         []EvaluationResult `json:"results"`
}

// CreateEvaluationRequest 创建评测请求
type CreateEvaluationRequest struct {
	TaskID       int64  `json:"task_id"`
	RuleID       int64  `json:"rule_id"`
	ModelVersion string `json:"model_version"`
	RunName      string `json:"run_name,omitempty"`
}

// ============================================================================
// Task / EvaluationRule - 评测任务与规则
// ============================================================================

// Task 评测任务（如图像分类、报告解读）
type Task struct {
	ID          int64     `json:"id"`
	TaskName    string    `json:"task_name"`
	TaskType    string    `json:"task_type"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// EvaluationRule 评测规则，归属于某个任务
type EvaluationRule struct {
	ID          int64           `json:"id"`
	TaskID      int64           `json:"task_id"`
	RuleName    string          `json:"rule_name"`
	RuleType    string          `json:"rule_type"`
	RuleConfig  json.RawMessage `json:"rule_config"`
	Description string          `json:"description"`
}
