package mockserver

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"eval-console/internal/model"
)

// ListTasks 任务列表
//
// 路由: GET /api/v1/tasks
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	h.state.mu.RLock()
	tasks := append([]model.Task(nil), h.state.tasks...)
	h.state.mu.RUnlock()
	writeJSON(w, http.StatusOK, tasks)
}

// ListTaskRules 任务的评测规则
//
// 路由: GET /api/v1/tasks/{id}/rules
func (h *Handler) ListTaskRules(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的任务 ID")
		return
	}

	h.state.mu.RLock()
	rules := append([]model.EvaluationRule(nil), h.state.rules[id]...)
	h.state.mu.RUnlock()
	writeJSON(w, http.StatusOK, rules)
}

// ListEvaluations 评测列表（按创建时间倒序）
//
// 路由: GET /api/v1/evaluations/runs
func (h *Handler) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	taskID, _ := strconv.ParseInt(r.URL.Query().Get("task_id"), 10, 64)

	h.state.mu.RLock()
	out := make([]model.EvaluationRun, 0, len(h.state.runs))
	for _, run := range h.state.runs {
		if taskID > 0 && run.TaskID != taskID {
			continue
		}
		out = append(out, *run)
	}
	h.state.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	writeJSON(w, http.StatusOK, paginate(out, queryInt(r, "limit", 0), queryInt(r, "offset", 0)))
}

// CreateEvaluation 创建评测运行
//
// 路由: POST /api/v1/evaluations/runs
// 新运行从 pending 起步，由进度推进器接管后续状态。
func (h *Handler) CreateEvaluation(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEvaluationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体格式错误")
		return
	}
	if req.TaskID <= 0 || req.RuleID <= 0 || req.ModelVersion == "" {
		writeError(w, http.StatusUnprocessableEntity, "task_id、rule_id 和 model_version 不能为空")
		return
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	ruleOK := false
	for _, rule := range h.state.rules[req.TaskID] {
		if rule.ID == req.RuleID {
			ruleOK = true
			break
		}
	}
	if !ruleOK {
		writeError(w, http.StatusUnprocessableEntity, "规则不属于该任务")
		return
	}

	total := 0
	for _, ds := range h.state.datasets {
		if ds.TaskID == req.TaskID {
			total += ds.DataCount
		}
	}
	if total == 0 {
		total = 50
	}

	run := &model.EvaluationRun{
		ID:           h.state.nextIDLocked(),
		TaskID:       req.TaskID,
		RuleID:       req.RuleID,
		ModelVersion: req.ModelVersion,
		Status:       model.RunStatusPending,
		TotalCount:   total,
		CreatedAt:    time.Now(),
	}
	if req.RunName != "" {
		run.RunName = &req.RunName
	}
	h.state.runs[run.ID] = run

	h.logger.WithRunID(run.ID).Info("创建评测运行", "model_version", req.ModelVersion)
	writeJSON(w, http.StatusCreated, run)
}

// GetEvaluation 评测详情
//
// 路由: GET /api/v1/evaluations/runs/{id}
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// DeleteEvaluation 删除评测运行
//
// 路由: DELETE /api/v1/evaluations/runs/{id}
func (h *Handler) DeleteEvaluation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的运行 ID")
		return
	}

	h.state.mu.Lock()
	run, ok := h.state.runs[id]
	if !ok {
		h.state.mu.Unlock()
		writeError(w, http.StatusNotFound, "运行不存在")
		return
	}
	if run.Status == model.RunStatusRunning {
		h.state.mu.Unlock()
		writeError(w, http.StatusConflict, "运行中的评测不能删除")
		return
	}
	delete(h.state.runs, id)
	delete(h.state.results, id)
	delete(h.state.metrics, id)
	h.state.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"message": "已删除"})
}

// EvaluationProgress 评测进度
//
// 路由: GET /api/v1/evaluations/runs/{id}/progress
func (h *Handler) EvaluationProgress(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	h.state.mu.RLock()
	results := append([]model.EvaluationResult(nil), h.state.results[run.ID]...)
	h.state.mu.RUnlock()

	progress := model.EvaluationProgress{
		RunID:           run.ID,
		Status:          run.Status,
		TotalCount:      run.TotalCount,
		CompletedCount:  run.CompletedCount,
		FailedCount:     run.FailedCount,
		PendingCount:    run.PendingCount(),
		ProgressPercent: run.ProgressPercent,
		Results:         paginate(results, queryInt(r, "limit", 20), queryInt(r, "offset", 0)),
	}
	writeJSON(w, http.StatusOK, progress)
}

// lookupRun 解析路径 ID 并读出运行副本，失败时写好错误响应
func (h *Handler) lookupRun(w http.ResponseWriter, r *http.Request) (model.EvaluationRun, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的运行 ID")
		return model.EvaluationRun{}, false
	}
	h.state.mu.RLock()
	defer h.state.mu.RUnlock()
	run, ok := h.state.runs[id]
	if !ok {
		writeError(w, http.StatusNotFound, "运行不存在")
		return model.EvaluationRun{}, false
	}
	return *run, true
}
