package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatusIsTerminal(t *testing.T) {
	assert.False(t, RunStatusPending.IsTerminal())
	assert.False(t, RunStatusRunning.IsTerminal())
	assert.True(t, RunStatusCompleted.IsTerminal())
	assert.True(t, RunStatusFailed.IsTerminal())
}

func TestRunStatusValid(t *testing.T) {
	assert.True(t, RunStatusRunning.Valid())
	assert.False(t, RunStatus("cancelled").Valid())
	assert.False(t, RunStatus("").Valid())
}

func TestPendingCount(t *testing.T) {
	run := EvaluationRun{TotalCount: 100, CompletedCount: 60, FailedCount: 5}
	assert.Equal(t, 35, run.PendingCount())

	// 更新途中计数可能暂时超出 total，展示值不为负
	run = EvaluationRun{TotalCount: 10, CompletedCount: 9, FailedCount: 3}
	assert.Equal(t, 0, run.PendingCount())
}

func TestEvaluationRunDecode(t *testing.T) {
	// progress_percent 取服务端值，不从计数反推
	raw := `{
		"id": 7, "task_id": 1, "rule_id": 2, "model_version": "gpt-4o-2024",
		"run_name": null, "status": "running",
		"total_count": 100, "completed_count": 60, "failed_count": 5,
		"progress_percent": 65.0,
		"start_time": "2025-03-01T10:00:00Z", "end_time": null,
		"created_at": "2025-03-01T09:59:00Z"
	}`

	var run EvaluationRun
	require.NoError(t, json.Unmarshal([]byte(raw), &run))
	assert.Equal(t, RunStatusRunning, run.Status)
	assert.Nil(t, run.RunName)
	assert.Equal(t, 65.0, run.ProgressPercent)
	assert.Equal(t, 35, run.PendingCount())
	require.NotNil(t, run.StartTime)
	assert.Nil(t, run.EndTime)
}
