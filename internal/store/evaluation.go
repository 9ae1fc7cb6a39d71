package store

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"eval-console/internal/model"
	"eval-console/internal/store/persist"
	"eval-console/pkg/logging"
)

// 持久化 key
const (
	keyEvalFilter = "evaluation.filter"
	keyEvalSort   = "evaluation.sort"
	keyEvalPage   = "evaluation.page"
)

// 选中对比的数量限制
const (
	minCompareCount = 2
	maxCompareCount = 5
)

// RunFilter 评测列表筛选条件
//
// 各条件按序叠加；零值条件不生效，全零值即恒等筛选。
type RunFilter struct {
	Statuses     []model.RunStatus `json:"statuses"`      // 状态集合，空为全部
	TaskID       int64             `json:"task_id"`       // 0 为全部
	ModelVersion string            `json:"model_version"` // 模型版本子串匹配
	DateFrom     *time.Time        `json:"date_from"`     // 创建时间下界（含）
	DateTo       *time.Time        `json:"date_to"`       // 创建时间上界（含）
}

// IsZero 是否为恒等筛选
func (f RunFilter) IsZero() bool {
	return len(f.Statuses) == 0 && f.TaskID == 0 && f.ModelVersion == "" &&
		f.DateFrom == nil && f.DateTo == nil
}

// matches 单条运行是否通过筛选
func (f RunFilter) matches(run *model.EvaluationRun) bool {
	if len(f.Statuses) > 0 {
		ok := false
		for _, st := range f.Statuses {
			if run.Status == st {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.TaskID != 0 && run.TaskID != f.TaskID {
		return false
	}
	if f.ModelVersion != "" && !strings.Contains(run.ModelVersion, f.ModelVersion) {
		return false
	}
	if f.DateFrom != nil && run.CreatedAt.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && run.CreatedAt.After(*f.DateTo) {
		return false
	}
	return true
}

// SortField 排序字段
type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByProgress  SortField = "progress_percent"
	SortByTotal     SortField = "total_count"
)

// SortOrder 排序方向
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// SortSpec 排序说明
type SortSpec struct {
	Field SortField `json:"field"`
	Order SortOrder `json:"order"`
}

// DefaultSort 默认排序：创建时间倒序
func DefaultSort() SortSpec {
	return SortSpec{Field: SortByCreatedAt, Order: OrderDesc}
}

// Pagination 分页状态
type Pagination struct {
	Page     int `json:"page"`      // 从 1 开始
	PageSize int `json:"page_size"`
}

// DefaultPagination 默认分页
func DefaultPagination() Pagination {
	return Pagination{Page: 1, PageSize: 10}
}

// RunPatch 运行的部分更新
//
// nil 字段表示未携带，不覆盖现值。
type RunPatch struct {
	Status          *model.RunStatus `json:"status"`
	TotalCount      *int             `json:"total_count"`
	CompletedCount  *int             `json:"completed_count"`
	FailedCount     *int             `json:"failed_count"`
	ProgressPercent *float64         `json:"progress_percent"`
	EndTime         *time.Time       `json:"end_time"`
}

// EvaluationStore 评测运行列表状态
//
// 轮询和推送的更新都经过 ApplyUpdate 合并，按 run 维护单调递增的
// 序号，迟到的旧更新直接丢弃。状态永远镜像服务端，不在本地推进。
type EvaluationStore struct {
	mu      sync.RWMutex
	persist persist.Persister
	logger  *logging.Logger

	runs       []model.EvaluationRun
	appliedSeq map[int64]uint64
	seqCounter atomic.Uint64

	filter RunFilter
	sort   SortSpec
	page   Pagination

	selected map[int64]struct{}

	current  *model.EvaluationRun
	progress map[int64]*model.EvaluationProgress

	tasks []model.Task
	rules map[int64][]model.EvaluationRule

	watching map[int64]bool
}

// NewEvaluation 创建评测 store 并恢复持久化的筛选、排序与分页
func NewEvaluation(p persist.Persister, logger *logging.Logger) *EvaluationStore {
	if logger == nil {
		logger = logging.Default("evaluation-store")
	}
	s := &EvaluationStore{
		persist:    p,
		logger:     logger,
		appliedSeq: make(map[int64]uint64),
		sort:       DefaultSort(),
		page:       DefaultPagination(),
		selected:   make(map[int64]struct{}),
		progress:   make(map[int64]*model.EvaluationProgress),
		rules:      make(map[int64][]model.EvaluationRule),
		watching:   make(map[int64]bool),
	}

	var filter RunFilter
	if err := p.Get(keyEvalFilter, &filter); err == nil {
		s.filter = filter
	}
	var sortSpec SortSpec
	if err := p.Get(keyEvalSort, &sortSpec); err == nil && sortSpec.Field != "" {
		s.sort = sortSpec
	}
	var page Pagination
	if err := p.Get(keyEvalPage, &page); err == nil && page.Page > 0 && page.PageSize > 0 {
		s.page = page
	}
	return s
}

// ============================================================================
// 运行列表
// ============================================================================

// SetRuns 整体替换运行列表（列表接口返回的服务端真值）
//
// 已消失的 run 连同其序号记录一起清掉。
func (s *EvaluationStore) SetRuns(runs []model.EvaluationRun) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append([]model.EvaluationRun(nil), runs...)

	alive := make(map[int64]struct{}, len(runs))
	for i := range runs {
		alive[runs[i].ID] = struct{}{}
	}
	for id := range s.appliedSeq {
		if _, ok := alive[id]; !ok {
			delete(s.appliedSeq, id)
		}
	}
	for id := range s.selected {
		if _, ok := alive[id]; !ok {
			delete(s.selected, id)
		}
	}
}

// Runs 返回全部运行的副本
func (s *EvaluationStore) Runs() []model.EvaluationRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.EvaluationRun(nil), s.runs...)
}

// Run 按 id 查找运行
func (s *EvaluationStore) Run(id int64) (model.EvaluationRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.runs {
		if s.runs[i].ID == id {
			return s.runs[i], true
		}
	}
	return model.EvaluationRun{}, false
}

// UpsertRun 插入或整体替换单条运行（详情接口返回的服务端真值）
//
// 详情重取视为最新状态，序号基线一并前移。
func (s *EvaluationStore) UpsertRun(run model.EvaluationRun, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq > s.appliedSeq[run.ID] {
		s.appliedSeq[run.ID] = seq
	}
	for i := range s.runs {
		if s.runs[i].ID == run.ID {
			s.runs[i] = run
			if s.current != nil && s.current.ID == run.ID {
				cp := run
				s.current = &cp
			}
			return
		}
	}
	s.runs = append(s.runs, run)
}

// ApplyUpdate 合并一条运行的部分更新
//
// 轮询与推送共用同一入口。seq 不大于已应用序号的更新视为迟到
// 丢弃；未知 id 同样丢弃。返回是否实际应用。
func (s *EvaluationStore) ApplyUpdate(id int64, patch RunPatch, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var run *model.EvaluationRun
	for i := range s.runs {
		if s.runs[i].ID == id {
			run = &s.runs[i]
			break
		}
	}
	if run == nil {
		return false
	}
	if seq <= s.appliedSeq[id] {
		return false
	}
	s.appliedSeq[id] = seq

	if patch.Status != nil {
		run.Status = *patch.Status
	}
	if patch.TotalCount != nil {
		run.TotalCount = *patch.TotalCount
	}
	if patch.CompletedCount != nil {
		run.CompletedCount = *patch.CompletedCount
	}
	if patch.FailedCount != nil {
		run.FailedCount = *patch.FailedCount
	}
	if patch.ProgressPercent != nil {
		run.ProgressPercent = *patch.ProgressPercent
	}
	if patch.EndTime != nil {
		run.EndTime = patch.EndTime
	}

	if s.current != nil && s.current.ID == id {
		cp := *run
		s.current = &cp
	}
	return true
}

// NextSeq 领取下一个合并序号
//
// 轮询方在发起请求前领号，推送方在收到帧时领号。这样晚到的旧
// 轮询响应拿着小号，合并时会被丢弃，不会覆盖更新的推送数据。
func (s *EvaluationStore) NextSeq() uint64 {
	return s.seqCounter.Add(1)
}

// AppliedSeq 返回某 run 已应用的最大序号
func (s *EvaluationStore) AppliedSeq(id int64) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appliedSeq[id]
}

// ============================================================================
// 筛选、排序、分页
// ============================================================================

// SetFilter 设置筛选条件并持久化，页码复位到第 1 页
func (s *EvaluationStore) SetFilter(f RunFilter) {
	s.mu.Lock()
	s.filter = f
	s.page.Page = 1
	page := s.page
	s.mu.Unlock()

	if err := s.persist.Set(keyEvalFilter, f); err != nil {
		s.logger.WithError(err).Warn("持久化筛选条件失败")
	}
	if err := s.persist.Set(keyEvalPage, page); err != nil {
		s.logger.WithError(err).Warn("持久化分页失败")
	}
}

// Filter 返回当前筛选条件
func (s *EvaluationStore) Filter() RunFilter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filter
}

// SetSort 设置排序并持久化
func (s *EvaluationStore) SetSort(spec SortSpec) {
	s.mu.Lock()
	s.sort = spec
	s.mu.Unlock()
	if err := s.persist.Set(keyEvalSort, spec); err != nil {
		s.logger.WithError(err).Warn("持久化排序失败")
	}
}

// Sort 返回当前排序
func (s *EvaluationStore) Sort() SortSpec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sort
}

// SetPage 设置页码并持久化
func (s *EvaluationStore) SetPage(page int) {
	if page < 1 {
		page = 1
	}
	s.mu.Lock()
	s.page.Page = page
	p := s.page
	s.mu.Unlock()
	if err := s.persist.Set(keyEvalPage, p); err != nil {
		s.logger.WithError(err).Warn("持久化分页失败")
	}
}

// SetPageSize 设置每页数量并持久化，页码复位到第 1 页
func (s *EvaluationStore) SetPageSize(size int) {
	if size < 1 {
		size = DefaultPagination().PageSize
	}
	s.mu.Lock()
	s.page = Pagination{Page: 1, PageSize: size}
	p := s.page
	s.mu.Unlock()
	if err := s.persist.Set(keyEvalPage, p); err != nil {
		s.logger.WithError(err).Warn("持久化分页失败")
	}
}

// Page 返回当前分页状态
func (s *EvaluationStore) Page() Pagination {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.page
}

// FilteredRuns 返回通过筛选的运行（保持原顺序）
//
// 空筛选恒等于 Runs()。
func (s *EvaluationStore) FilteredRuns() []model.EvaluationRun {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.EvaluationRun, 0, len(s.runs))
	for i := range s.runs {
		if s.filter.matches(&s.runs[i]) {
			out = append(out, s.runs[i])
		}
	}
	return out
}

// SortedRuns 返回筛选后再排序的运行
//
// 不承诺稳定性：相等元素的相对顺序无约定。
func (s *EvaluationStore) SortedRuns() []model.EvaluationRun {
	runs := s.FilteredRuns()

	s.mu.RLock()
	spec := s.sort
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		a, b := &runs[i], &runs[j]
		if spec.Order == OrderDesc {
			a, b = b, a
		}
		switch spec.Field {
		case SortByProgress:
			return a.ProgressPercent < b.ProgressPercent
		case SortByTotal:
			return a.TotalCount < b.TotalCount
		default:
			return a.CreatedAt.Before(b.CreatedAt)
		}
	})
	return runs
}

// PageRuns 返回当前页的运行（筛选 → 排序 → 分页）
func (s *EvaluationStore) PageRuns() []model.EvaluationRun {
	runs := s.SortedRuns()

	s.mu.RLock()
	p := s.page
	s.mu.RUnlock()

	start := (p.Page - 1) * p.PageSize
	if start >= len(runs) {
		return nil
	}
	end := start + p.PageSize
	if end > len(runs) {
		end = len(runs)
	}
	return runs[start:end]
}

// ============================================================================
// 选中集
// ============================================================================

// ToggleSelect 切换单条运行的选中状态
func (s *EvaluationStore) ToggleSelect(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
	} else {
		s.selected[id] = struct{}{}
	}
}

// SelectAll 选中当前筛选结果中的全部运行
func (s *EvaluationStore) SelectAll() {
	runs := s.FilteredRuns()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range runs {
		s.selected[runs[i].ID] = struct{}{}
	}
}

// ClearSelection 清空选中集
func (s *EvaluationStore) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = make(map[int64]struct{})
}

// SelectedIDs 返回选中的运行 id（升序）
func (s *EvaluationStore) SelectedIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]int64, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CanCompare 是否允许发起对比（选中 2 至 5 条）
func (s *EvaluationStore) CanCompare() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.selected) >= minCompareCount && len(s.selected) <= maxCompareCount
}

// ============================================================================
// 当前运行与进度
// ============================================================================

// SetCurrent 设置当前查看的运行
func (s *EvaluationStore) SetCurrent(run *model.EvaluationRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run == nil {
		s.current = nil
		return
	}
	cp := *run
	s.current = &cp
}

// Current 返回当前查看的运行副本
func (s *EvaluationStore) Current() *model.EvaluationRun {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// SetProgress 缓存运行进度（整体替换，不做增量 diff）
func (s *EvaluationStore) SetProgress(p *model.EvaluationProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[p.RunID] = p
}

// Progress 返回缓存的运行进度
func (s *EvaluationStore) Progress(runID int64) *model.EvaluationProgress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress[runID]
}

// ============================================================================
// 任务与规则缓存
// ============================================================================

// SetTasks 缓存任务列表
func (s *EvaluationStore) SetTasks(tasks []model.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append([]model.Task(nil), tasks...)
}

// Tasks 返回缓存的任务列表
func (s *EvaluationStore) Tasks() []model.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Task(nil), s.tasks...)
}

// SetTaskRules 缓存某任务的评测规则
func (s *EvaluationStore) SetTaskRules(taskID int64, rules []model.EvaluationRule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[taskID] = append([]model.EvaluationRule(nil), rules...)
}

// TaskRules 返回缓存的任务规则
func (s *EvaluationStore) TaskRules(taskID int64) []model.EvaluationRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.EvaluationRule(nil), s.rules[taskID]...)
}

// ============================================================================
// 实时连接标记与统计
// ============================================================================

// SetWatching 标记某运行的实时连接状态
func (s *EvaluationStore) SetWatching(runID int64, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.watching[runID] = true
	} else {
		delete(s.watching, runID)
	}
}

// IsWatching 某运行是否有实时连接
func (s *EvaluationStore) IsWatching(runID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.watching[runID]
}

// Statistics 按状态统计运行数量
func (s *EvaluationStore) Statistics() map[model.RunStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := make(map[model.RunStatus]int)
	for i := range s.runs {
		stats[s.runs[i].Status]++
	}
	return stats
}
