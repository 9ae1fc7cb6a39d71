package mockserver

import (
	"encoding/csv"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"eval-console/internal/metricutil"
	"eval-console/internal/model"
)

// RunMetrics 某次运行的全部指标
//
// 路由: GET /api/v1/metrics/runs/{id}
func (h *Handler) RunMetrics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的运行 ID")
		return
	}

	h.state.mu.RLock()
	_, exists := h.state.runs[id]
	records := append([]model.MetricRecord(nil), h.state.metrics[id]...)
	h.state.mu.RUnlock()

	if !exists {
		writeError(w, http.StatusNotFound, "运行不存在")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// GetMetric 单条指标记录
//
// 路由: GET /api/v1/metrics/{id}
func (h *Handler) GetMetric(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的指标 ID")
		return
	}

	h.state.mu.RLock()
	defer h.state.mu.RUnlock()
	for _, records := range h.state.metrics {
		for _, rec := range records {
			if rec.ID == id {
				writeJSON(w, http.StatusOK, rec)
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, "指标不存在")
}

// CompareMetrics 多运行指标对比
//
// 路由: GET /api/v1/metrics/compare?run_ids=1&run_ids=2
func (h *Handler) CompareMetrics(w http.ResponseWriter, r *http.Request) {
	rawIDs := r.URL.Query()["run_ids"]
	if len(rawIDs) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "至少指定一个 run_ids")
		return
	}

	h.state.mu.RLock()
	defer h.state.mu.RUnlock()

	comparison := make(model.MetricComparison, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		run, ok := h.state.runs[id]
		if !ok {
			continue
		}
		values := make(map[string]float64)
		for _, rec := range h.state.metrics[id] {
			values[rec.MetricName] = rec.MetricValue
		}
		name := ""
		if run.RunName != nil {
			name = *run.RunName
		}
		comparison[raw] = model.RunMetrics{
			RunName:      name,
			ModelVersion: run.ModelVersion,
			CreatedAt:    run.CreatedAt,
			Metrics:      values,
		}
	}

	writeJSON(w, http.StatusOK, comparison)
}

// RecalculateMetrics 重算运行指标
//
// 路由: POST /api/v1/metrics/recalculate/{id}
// 仅管理员可用；模拟实现是在现值附近做微扰。
func (h *Handler) RecalculateMetrics(w http.ResponseWriter, r *http.Request) {
	user, err := h.authenticate(r)
	if err != nil || user.Role != model.UserRoleAdmin {
		writeError(w, http.StatusForbidden, "仅管理员可重算指标")
		return
	}

	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的运行 ID")
		return
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	run, exists := h.state.runs[id]
	if !exists {
		writeError(w, http.StatusNotFound, "运行不存在")
		return
	}
	if !run.Status.IsTerminal() {
		writeError(w, http.StatusConflict, "运行尚未结束，不能重算")
		return
	}

	records := h.state.metrics[id]
	for i := range records {
		jitter := (rand.Float64() - 0.5) * 0.02
		v := records[i].MetricValue + jitter
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		records[i].MetricValue = v
		records[i].CreatedAt = time.Now()
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "指标已重新计算"})
}

// MetricTrend 指标趋势
//
// 路由: GET /api/v1/metrics/trend?task_id=&metric_name=&limit=
// 以该任务已完成运行的指标为末端值，往前合成带噪声的序列。
func (h *Handler) MetricTrend(w http.ResponseWriter, r *http.Request) {
	taskID, _ := strconv.ParseInt(r.URL.Query().Get("task_id"), 10, 64)
	metricName := r.URL.Query().Get("metric_name")
	limit := queryInt(r, "limit", 10)
	if taskID <= 0 || metricName == "" {
		writeError(w, http.StatusUnprocessableEntity, "task_id 和 metric_name 不能为空")
		return
	}

	latest := h.latestMetricValue(taskID, metricName)

	points := make([]model.MetricTrendPoint, 0, limit)
	for i := 0; i < limit; i++ {
		day := time.Now().AddDate(0, 0, i-limit+1)
		noise := (rand.Float64() - 0.5) * 0.04
		drift := float64(i-limit+1) * 0.005
		v := latest + drift + noise
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		points = append(points, model.MetricTrendPoint{
			Date:   day.Format("2006-01-02"),
			Values: map[string]float64{metricName: v},
		})
	}

	writeJSON(w, http.StatusOK, points)
}

// latestMetricValue 取任务最近一次完成运行的指标值，缺省 0.85
func (h *Handler) latestMetricValue(taskID int64, metricName string) float64 {
	h.state.mu.RLock()
	defer h.state.mu.RUnlock()

	latest := 0.85
	var latestAt time.Time
	for id, run := range h.state.runs {
		if run.TaskID != taskID || !run.Status.IsTerminal() {
			continue
		}
		for _, rec := range h.state.metrics[id] {
			if rec.MetricName == metricName && run.CreatedAt.After(latestAt) {
				latest = rec.MetricValue
				latestAt = run.CreatedAt
			}
		}
	}
	return latest
}

// MetricSummary 任务维度指标汇总
//
// 路由: GET /api/v1/metrics/tasks/{id}/summary
func (h *Handler) MetricSummary(w http.ResponseWriter, r *http.Request) {
	taskID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的任务 ID")
		return
	}

	h.state.mu.RLock()
	// 按指标名聚合该任务所有已结束运行的取值（按创建时间排序）
	type sample struct {
		at    time.Time
		value float64
	}
	byName := make(map[string][]sample)
	for id, run := range h.state.runs {
		if run.TaskID != taskID || !run.Status.IsTerminal() {
			continue
		}
		for _, rec := range h.state.metrics[id] {
			byName[rec.MetricName] = append(byName[rec.MetricName], sample{run.CreatedAt, rec.MetricValue})
		}
	}
	h.state.mu.RUnlock()

	summaries := make([]model.MetricSummary, 0, len(byName))
	for name, samples := range byName {
		values := make([]float64, len(samples))
		s := model.MetricSummary{MetricName: name, MinValue: samples[0].value, MaxValue: samples[0].value}
		var sum float64
		var latestAt time.Time
		for i, sp := range samples {
			values[i] = sp.value
			sum += sp.value
			if sp.value > s.MaxValue {
				s.MaxValue = sp.value
			}
			if sp.value < s.MinValue {
				s.MinValue = sp.value
			}
			if sp.at.After(latestAt) || latestAt.IsZero() {
				latestAt = sp.at
				s.LatestValue = sp.value
			}
		}
		s.AvgValue = sum / float64(len(samples))
		s.Trend = metricutil.DetectTrend(values)
		summaries = append(summaries, s)
	}

	writeJSON(w, http.StatusOK, summaries)
}

// ExportMetricsCSV 导出运行指标为 CSV
//
// 路由: GET /api/v1/metrics/runs/{id}/export
func (h *Handler) ExportMetricsCSV(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的运行 ID")
		return
	}

	h.state.mu.RLock()
	records := append([]model.MetricRecord(nil), h.state.metrics[id]...)
	h.state.mu.RUnlock()

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="metrics_run_%d.csv"`, id))

	cw := csv.NewWriter(w)
	cw.Write([]string{"metric_name", "metric_value", "formatted", "created_at"})
	for _, rec := range records {
		cw.Write([]string{
			rec.MetricName,
			strconv.FormatFloat(rec.MetricValue, 'f', -1, 64),
			metricutil.FormatValue(rec.MetricValue, rec.MetricName),
			rec.CreatedAt.Format(time.RFC3339),
		})
	}
	cw.Flush()
}
