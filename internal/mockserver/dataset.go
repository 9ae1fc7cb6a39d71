package mockserver

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"eval-console/internal/model"
)

// ListDatasets 数据集列表
//
// 路由: GET /api/v1/datasets
// 查询参数: task_id, keyword, limit, offset, sort_by, sort_order
func (h *Handler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	taskID, _ := strconv.ParseInt(r.URL.Query().Get("task_id"), 10, 64)
	keyword := strings.ToLower(r.URL.Query().Get("keyword"))
	sortBy := r.URL.Query().Get("sort_by")
	sortOrder := r.URL.Query().Get("sort_order")

	h.state.mu.RLock()
	out := make([]model.Dataset, 0, len(h.state.datasets))
	for _, ds := range h.state.datasets {
		if taskID > 0 && ds.TaskID != taskID {
			continue
		}
		if keyword != "" && !strings.Contains(strings.ToLower(ds.Name), keyword) &&
			!strings.Contains(strings.ToLower(ds.Description), keyword) {
			continue
		}
		out = append(out, *ds)
	}
	h.state.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		if sortOrder != "asc" {
			a, b = b, a
		}
		switch sortBy {
		case "name":
			return a.Name < b.Name
		case "updated_at":
			au, bu := a.CreatedAt, b.CreatedAt
			if a.UpdatedAt != nil {
				au = *a.UpdatedAt
			}
			if b.UpdatedAt != nil {
				bu = *b.UpdatedAt
			}
			return au.Before(bu)
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})

	writeJSON(w, http.StatusOK, paginate(out, queryInt(r, "limit", 0), queryInt(r, "offset", 0)))
}

// CreateDataset 创建数据集（可带初始条目）
//
// 路由: POST /api/v1/datasets
func (h *Handler) CreateDataset(w http.ResponseWriter, r *http.Request) {
	var req model.CreateDatasetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体格式错误")
		return
	}
	if req.TaskID <= 0 || req.Name == "" {
		writeError(w, http.StatusUnprocessableEntity, "task_id 和 name 不能为空")
		return
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	taskName := ""
	for _, t := range h.state.tasks {
		if t.ID == req.TaskID {
			taskName = t.TaskName
			break
		}
	}
	if taskName == "" {
		writeError(w, http.StatusUnprocessableEntity, "任务不存在")
		return
	}

	ds := &model.Dataset{
		ID:          h.state.nextIDLocked(),
		TaskID:      req.TaskID,
		TaskName:    taskName,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   time.Now(),
	}
	for _, in := range req.Items {
		h.state.items[ds.ID] = append(h.state.items[ds.ID], model.DatasetItem{
			ID:          h.state.nextIDLocked(),
			TaskID:      req.TaskID,
			DatasetID:   ds.ID,
			InputData:   in.InputData,
			GroundTruth: in.GroundTruth,
			Metadata:    in.Metadata,
			CreatedAt:   time.Now(),
		})
	}
	ds.DataCount = len(h.state.items[ds.ID])
	h.state.datasets[ds.ID] = ds

	writeJSON(w, http.StatusCreated, ds)
}

// GetDataset 数据集详情
//
// 路由: GET /api/v1/datasets/{id}
func (h *Handler) GetDataset(w http.ResponseWriter, r *http.Request) {
	ds, ok := h.lookupDataset(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

// UpdateDataset 更新数据集基础信息
//
// 路由: PUT /api/v1/datasets/{id}
func (h *Handler) UpdateDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的数据集 ID")
		return
	}
	var req model.UpdateDatasetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体格式错误")
		return
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	ds, ok := h.state.datasets[id]
	if !ok {
		writeError(w, http.StatusNotFound, "数据集不存在")
		return
	}
	if req.Name != nil {
		ds.Name = *req.Name
	}
	if req.Description != nil {
		ds.Description = *req.Description
	}
	now := time.Now()
	ds.UpdatedAt = &now

	writeJSON(w, http.StatusOK, ds)
}

// DeleteDataset 删除数据集及其条目
//
// 路由: DELETE /api/v1/datasets/{id}
func (h *Handler) DeleteDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的数据集 ID")
		return
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	if _, ok := h.state.datasets[id]; !ok {
		writeError(w, http.StatusNotFound, "数据集不存在")
		return
	}
	delete(h.state.datasets, id)
	delete(h.state.items, id)

	writeJSON(w, http.StatusOK, map[string]string{"message": "已删除"})
}

// ListDatasetItems 条目列表
//
// 路由: GET /api/v1/datasets/{id}/items
func (h *Handler) ListDatasetItems(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的数据集 ID")
		return
	}

	h.state.mu.RLock()
	items := append([]model.DatasetItem(nil), h.state.items[id]...)
	h.state.mu.RUnlock()

	writeJSON(w, http.StatusOK, paginate(items, queryInt(r, "limit", 0), queryInt(r, "offset", 0)))
}

// GetDatasetItem 条目详情
//
// 路由: GET /api/v1/datasets/{id}/items/{itemId}
func (h *Handler) GetDatasetItem(w http.ResponseWriter, r *http.Request) {
	id, ok1 := pathID(r, "id")
	itemID, ok2 := pathID(r, "itemId")
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, "非法的 ID")
		return
	}

	h.state.mu.RLock()
	defer h.state.mu.RUnlock()
	for _, item := range h.state.items[id] {
		if item.ID == itemID {
			writeJSON(w, http.StatusOK, item)
			return
		}
	}
	writeError(w, http.StatusNotFound, "条目不存在")
}

// AddDatasetItem 新增条目
//
// 路由: POST /api/v1/datasets/{id}/items
func (h *Handler) AddDatasetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的数据集 ID")
		return
	}
	var in model.DatasetItemInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "请求体格式错误")
		return
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	ds, ok := h.state.datasets[id]
	if !ok {
		writeError(w, http.StatusNotFound, "数据集不存在")
		return
	}
	item := model.DatasetItem{
		ID:          h.state.nextIDLocked(),
		TaskID:      ds.TaskID,
		DatasetID:   id,
		InputData:   in.InputData,
		GroundTruth: in.GroundTruth,
		Metadata:    in.Metadata,
		CreatedAt:   time.Now(),
	}
	h.state.items[id] = append(h.state.items[id], item)
	ds.DataCount = len(h.state.items[id])

	writeJSON(w, http.StatusCreated, item)
}

// BatchAddItems 批量新增条目
//
// 路由: POST /api/v1/datasets/{id}/items/batch
func (h *Handler) BatchAddItems(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的数据集 ID")
		return
	}
	var inputs []model.DatasetItemInput
	if err := decodeBody(r, &inputs); err != nil {
		writeError(w, http.StatusBadRequest, "请求体格式错误")
		return
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	ds, ok := h.state.datasets[id]
	if !ok {
		writeError(w, http.StatusNotFound, "数据集不存在")
		return
	}
	created := make([]model.DatasetItem, 0, len(inputs))
	for _, in := range inputs {
		item := model.DatasetItem{
			ID:          h.state.nextIDLocked(),
			TaskID:      ds.TaskID,
			DatasetID:   id,
			InputData:   in.InputData,
			GroundTruth: in.GroundTruth,
			Metadata:    in.Metadata,
			CreatedAt:   time.Now(),
		}
		h.state.items[id] = append(h.state.items[id], item)
		created = append(created, item)
	}
	ds.DataCount = len(h.state.items[id])

	writeJSON(w, http.StatusCreated, created)
}

// UpdateDatasetItem 更新条目
//
// 路由: PUT /api/v1/datasets/{id}/items/{itemId}
func (h *Handler) UpdateDatasetItem(w http.ResponseWriter, r *http.Request) {
	id, ok1 := pathID(r, "id")
	itemID, ok2 := pathID(r, "itemId")
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, "非法的 ID")
		return
	}
	var in model.DatasetItemInput
	if err := decodeBody(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "请求体格式错误")
		return
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	items := h.state.items[id]
	for i := range items {
		if items[i].ID == itemID {
			if in.InputData != nil {
				items[i].InputData = in.InputData
			}
			if in.GroundTruth != nil {
				items[i].GroundTruth = in.GroundTruth
			}
			if in.Metadata != nil {
				items[i].Metadata = in.Metadata
			}
			writeJSON(w, http.StatusOK, items[i])
			return
		}
	}
	writeError(w, http.StatusNotFound, "条目不存在")
}

// DeleteDatasetItem 删除条目
//
// 路由: DELETE /api/v1/datasets/{id}/items/{itemId}
func (h *Handler) DeleteDatasetItem(w http.ResponseWriter, r *http.Request) {
	id, ok1 := pathID(r, "id")
	itemID, ok2 := pathID(r, "itemId")
	if !ok1 || !ok2 {
		writeError(w, http.StatusBadRequest, "非法的 ID")
		return
	}

	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	items := h.state.items[id]
	for i := range items {
		if items[i].ID == itemID {
			h.state.items[id] = append(items[:i], items[i+1:]...)
			if ds, ok := h.state.datasets[id]; ok {
				ds.DataCount = len(h.state.items[id])
			}
			writeJSON(w, http.StatusOK, map[string]string{"message": "已删除"})
			return
		}
	}
	writeError(w, http.StatusNotFound, "条目不存在")
}

// DatasetStatistics 数据集统计
//
// 路由: GET /api/v1/datasets/{id}/statistics
func (h *Handler) DatasetStatistics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的数据集 ID")
		return
	}

	h.state.mu.RLock()
	items := h.state.items[id]
	stats := model.DatasetStatistics{
		TotalCount:        len(items),
		LabelDistribution: labelDistribution(items),
	}
	h.state.mu.RUnlock()

	writeJSON(w, http.StatusOK, stats)
}

// labelDistribution 统计 ground_truth.label 的取值分布
func labelDistribution(items []model.DatasetItem) map[string]int {
	dist := make(map[string]int)
	for _, item := range items {
		var gt struct {
			Label string `json:"label"`
		}
		if json.Unmarshal(item.GroundTruth, &gt) == nil && gt.Label != "" {
			dist[gt.Label]++
		}
	}
	return dist
}

// ValidateDataset 校验数据集条目完整性
//
// 路由: POST /api/v1/datasets/{id}/validate
func (h *Handler) ValidateDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的数据集 ID")
		return
	}

	h.state.mu.RLock()
	items := append([]model.DatasetItem(nil), h.state.items[id]...)
	h.state.mu.RUnlock()

	var result model.DatasetValidationResult
	result.Errors = []model.ValidationIssue{}
	result.Warnings = []model.ValidationIssue{}
	for i, item := range items {
		valid := true
		if len(item.InputData) == 0 || string(item.InputData) == "null" {
			result.Errors = append(result.Errors, model.ValidationIssue{
				ItemIndex: i, Field: "input_data", Message: "输入数据为空"})
			valid = false
		}
		if len(item.GroundTruth) == 0 || string(item.GroundTruth) == "null" {
			result.Errors = append(result.Errors, model.ValidationIssue{
				ItemIndex: i, Field: "ground_truth", Message: "标准答案为空"})
			valid = false
		}
		if len(item.Metadata) == 0 {
			result.Warnings = append(result.Warnings, model.ValidationIssue{
				ItemIndex: i, Field: "metadata", Message: "缺少元数据"})
		}
		if valid {
			result.Statistics.ValidItems++
		} else {
			result.Statistics.InvalidItems++
		}
	}
	result.Statistics.TotalItems = len(items)
	result.IsValid = result.Statistics.InvalidItems == 0

	writeJSON(w, http.StatusOK, result)
}

// SplitDataset 按比例划分数据集
//
// 路由: POST /api/v1/datasets/{id}/split
func (h *Handler) SplitDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的数据集 ID")
		return
	}
	var cfg model.DatasetSplitConfig
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "请求体格式错误")
		return
	}
	total := cfg.TrainRatio + cfg.ValRatio + cfg.TestRatio
	if total < 0.999 || total > 1.001 {
		writeError(w, http.StatusUnprocessableEntity, "划分比例之和必须为 1")
		return
	}

	h.state.mu.RLock()
	ids := make([]int64, 0, len(h.state.items[id]))
	for _, item := range h.state.items[id] {
		ids = append(ids, item.ID)
	}
	h.state.mu.RUnlock()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	if cfg.RandomSeed != nil {
		rng = rand.New(rand.NewSource(*cfg.RandomSeed))
	}
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	trainEnd := int(float64(len(ids)) * cfg.TrainRatio)
	valEnd := trainEnd + int(float64(len(ids))*cfg.ValRatio)

	var result model.DatasetSplitResult
	result.Train = ids[:trainEnd]
	result.Validation = ids[trainEnd:valEnd]
	result.Test = ids[valEnd:]
	result.Statistics.TrainCount = len(result.Train)
	result.Statistics.ValCount = len(result.Validation)
	result.Statistics.TestCount = len(result.Test)

	writeJSON(w, http.StatusOK, result)
}

// ExportDataset 导出数据集
//
// 路由: POST /api/v1/datasets/{id}/export
// 按请求里的 format 返回 JSON 或 CSV 文件流。
func (h *Handler) ExportDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的数据集 ID")
		return
	}
	var cfg model.DatasetExportConfig
	if err := decodeBody(r, &cfg); err != nil {
		writeError(w, http.StatusBadRequest, "请求体格式错误")
		return
	}

	h.state.mu.RLock()
	items := append([]model.DatasetItem(nil), h.state.items[id]...)
	h.state.mu.RUnlock()

	switch cfg.Format {
	case "csv", "excel":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="dataset_%d.csv"`, id))
		cw := csv.NewWriter(w)
		header := []string{"id", "input_data", "ground_truth"}
		if cfg.IncludeMetadata {
			header = append(header, "metadata")
		}
		cw.Write(header)
		for _, item := range items {
			row := []string{
				strconv.FormatInt(item.ID, 10),
				string(item.InputData),
				string(item.GroundTruth),
			}
			if cfg.IncludeMetadata {
				row = append(row, string(item.Metadata))
			}
			cw.Write(row)
		}
		cw.Flush()
	default:
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="dataset_%d.json"`, id))
		writeJSON(w, http.StatusOK, items)
	}
}

// DuplicateDataset 复制数据集
//
// 路由: POST /api/v1/datasets/{id}/duplicate
func (h *Handler) DuplicateDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的数据集 ID")
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	decodeBody(r, &req)

	h.state.mu.Lock()
	defer h.state.mu.Unlock()

	src, ok := h.state.datasets[id]
	if !ok {
		writeError(w, http.StatusNotFound, "数据集不存在")
		return
	}

	dup := *src
	dup.ID = h.state.nextIDLocked()
	dup.CreatedAt = time.Now()
	dup.UpdatedAt = nil
	if req.Name != "" {
		dup.Name = req.Name
	} else {
		dup.Name = src.Name + " (副本)"
	}
	for _, item := range h.state.items[id] {
		cp := item
		cp.ID = h.state.nextIDLocked()
		cp.DatasetID = dup.ID
		cp.CreatedAt = time.Now()
		h.state.items[dup.ID] = append(h.state.items[dup.ID], cp)
	}
	dup.DataCount = len(h.state.items[dup.ID])
	h.state.datasets[dup.ID] = &dup

	writeJSON(w, http.StatusCreated, &dup)
}

// LabelDistribution 标签分布
//
// 路由: GET /api/v1/datasets/{id}/label-distribution
func (h *Handler) LabelDistribution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的数据集 ID")
		return
	}

	h.state.mu.RLock()
	dist := labelDistribution(h.state.items[id])
	h.state.mu.RUnlock()

	writeJSON(w, http.StatusOK, dist)
}

// SearchDatasetItems 条目全文检索（对序列化后的 JSON 做子串匹配）
//
// 路由: GET /api/v1/datasets/{id}/search?q=...
func (h *Handler) SearchDatasetItems(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的数据集 ID")
		return
	}
	q := strings.ToLower(r.URL.Query().Get("q"))

	h.state.mu.RLock()
	out := []model.DatasetItem{}
	for _, item := range h.state.items[id] {
		if q == "" ||
			strings.Contains(strings.ToLower(string(item.InputData)), q) ||
			strings.Contains(strings.ToLower(string(item.GroundTruth)), q) {
			out = append(out, item)
		}
	}
	h.state.mu.RUnlock()

	writeJSON(w, http.StatusOK, paginate(out, queryInt(r, "limit", 0), queryInt(r, "offset", 0)))
}

// PreviewDataset 预览前若干条
//
// 路由: GET /api/v1/datasets/{id}/preview?limit=10
func (h *Handler) PreviewDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的数据集 ID")
		return
	}
	limit := queryInt(r, "limit", 10)

	h.state.mu.RLock()
	items := append([]model.DatasetItem(nil), h.state.items[id]...)
	h.state.mu.RUnlock()

	writeJSON(w, http.StatusOK, paginate(items, limit, 0))
}

// BatchOperation 条目批量操作
//
// 路由: POST /api/v1/datasets/batch-operation
// 当前支持 delete，其余操作按逐条成功返回（联调占位语义）。
func (h *Handler) BatchOperation(w http.ResponseWriter, r *http.Request) {
	var req model.BatchOperationRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "请求体格式错误")
		return
	}

	var result model.BatchOperationResult
	switch req.Operation {
	case "delete":
		h.state.mu.Lock()
		wanted := make(map[int64]bool, len(req.ItemIDs))
		for _, id := range req.ItemIDs {
			wanted[id] = true
		}
		for dsID, items := range h.state.items {
			kept := items[:0]
			for _, item := range items {
				if wanted[item.ID] {
					result.SuccessCount++
					delete(wanted, item.ID)
					continue
				}
				kept = append(kept, item)
			}
			h.state.items[dsID] = kept
			if ds, ok := h.state.datasets[dsID]; ok {
				ds.DataCount = len(kept)
			}
		}
		h.state.mu.Unlock()
		result.FailedCount = len(wanted)
	default:
		result.SuccessCount = len(req.ItemIDs)
	}

	writeJSON(w, http.StatusOK, result)
}

// lookupDataset 解析路径 ID 并读出数据集，失败时写好错误响应
func (h *Handler) lookupDataset(w http.ResponseWriter, r *http.Request) (*model.Dataset, bool) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "非法的数据集 ID")
		return nil, false
	}
	h.state.mu.RLock()
	defer h.state.mu.RUnlock()
	ds, ok := h.state.datasets[id]
	if !ok {
		writeError(w, http.StatusNotFound, "数据集不存在")
		return nil, false
	}
	cp := *ds
	return &cp, true
}
