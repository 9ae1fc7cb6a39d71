package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eval-console/internal/model"
	"eval-console/internal/store/persist"
)

func newEvalStore(t *testing.T) *EvaluationStore {
	t.Helper()
	return NewEvaluation(persist.NewMemory(), nil)
}

func sampleRuns() []model.EvaluationRun {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return []model.EvaluationRun{
		{ID: 1, TaskID: 10, ModelVersion: "gpt-4o-mini", Status: model.RunStatusRunning,
			TotalCount: 100, ProgressPercent: 65, CreatedAt: base},
		{ID: 2, TaskID: 10, ModelVersion: "claude-3-haiku", Status: model.RunStatusCompleted,
			TotalCount: 50, ProgressPercent: 100, CreatedAt: base.Add(24 * time.Hour)},
		{ID: 3, TaskID: 20, ModelVersion: "gpt-4o", Status: model.RunStatusFailed,
			TotalCount: 200, ProgressPercent: 12, CreatedAt: base.Add(48 * time.Hour)},
		{ID: 4, TaskID: 20, ModelVersion: "qwen-max", Status: model.RunStatusPending,
			TotalCount: 80, ProgressPercent: 0, CreatedAt: base.Add(72 * time.Hour)},
	}
}

func TestFilterIdentity(t *testing.T) {
	s := newEvalStore(t)
	s.SetRuns(sampleRuns())

	// 空筛选恒等于全量列表
	assert.Equal(t, s.Runs(), s.FilteredRuns())
}

func TestFilterPredicates(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := newEvalStore(t)
	s.SetRuns(sampleRuns())

	tests := []struct {
		name    string
		filter  RunFilter
		wantIDs []int64
	}{
		{"按状态", RunFilter{Statuses: []model.RunStatus{model.RunStatusRunning, model.RunStatusPending}}, []int64{1, 4}},
		{"按任务", RunFilter{TaskID: 20}, []int64{3, 4}},
		{"模型版本子串", RunFilter{ModelVersion: "gpt-4o"}, []int64{1, 3}},
		{"日期下界含端点", RunFilter{DateFrom: timePtr(base.Add(24 * time.Hour))}, []int64{2, 3, 4}},
		{"日期上界含端点", RunFilter{DateTo: timePtr(base.Add(24 * time.Hour))}, []int64{1, 2}},
		{"组合条件", RunFilter{TaskID: 10, ModelVersion: "haiku"}, []int64{2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.SetFilter(tt.filter)
			got := s.FilteredRuns()
			ids := make([]int64, len(got))
			for i, r := range got {
				ids[i] = r.ID
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func TestSortedRuns(t *testing.T) {
	s := newEvalStore(t)
	s.SetRuns(sampleRuns())

	s.SetSort(SortSpec{Field: SortByProgress, Order: OrderDesc})
	got := s.SortedRuns()
	require.Len(t, got, 4)
	assert.Equal(t, int64(2), got[0].ID) // 100%
	assert.Equal(t, int64(4), got[3].ID) // 0%

	s.SetSort(SortSpec{Field: SortByTotal, Order: OrderAsc})
	got = s.SortedRuns()
	assert.Equal(t, int64(2), got[0].ID) // 50
	assert.Equal(t, int64(3), got[3].ID) // 200

	s.SetSort(SortSpec{Field: SortByCreatedAt, Order: OrderDesc})
	got = s.SortedRuns()
	assert.Equal(t, int64(4), got[0].ID)
}

func TestPagination(t *testing.T) {
	s := newEvalStore(t)
	s.SetRuns(sampleRuns())
	s.SetSort(SortSpec{Field: SortByCreatedAt, Order: OrderAsc})
	s.SetPageSize(3)

	page := s.PageRuns()
	require.Len(t, page, 3)
	assert.Equal(t, int64(1), page[0].ID)

	s.SetPage(2)
	page = s.PageRuns()
	require.Len(t, page, 1)
	assert.Equal(t, int64(4), page[0].ID)

	// 筛选变化后页码复位到第 1 页
	s.SetFilter(RunFilter{TaskID: 20})
	assert.Equal(t, 1, s.Page().Page)

	// 越界页返回空
	s.SetPage(99)
	assert.Empty(t, s.PageRuns())
}

func TestApplyUpdateSeqGuard(t *testing.T) {
	s := newEvalStore(t)
	s.SetRuns(sampleRuns())

	running := model.RunStatusRunning
	completed := model.RunStatusCompleted

	// 正常推进
	assert.True(t, s.ApplyUpdate(1, RunPatch{ProgressPercent: floatPtr(70), Status: &running}, 1))
	run, _ := s.Run(1)
	assert.Equal(t, 70.0, run.ProgressPercent)

	// seq 相同视为迟到，丢弃
	assert.False(t, s.ApplyUpdate(1, RunPatch{ProgressPercent: floatPtr(68)}, 1))
	run, _ = s.Run(1)
	assert.Equal(t, 70.0, run.ProgressPercent)

	// seq 更小同样丢弃：先到的新进度不被旧轮询覆盖
	assert.True(t, s.ApplyUpdate(1, RunPatch{ProgressPercent: floatPtr(90), Status: &completed}, 5))
	assert.False(t, s.ApplyUpdate(1, RunPatch{ProgressPercent: floatPtr(75), Status: &running}, 3))
	run, _ = s.Run(1)
	assert.Equal(t, 90.0, run.ProgressPercent)
	assert.Equal(t, model.RunStatusCompleted, run.Status)

	// 未知 id 丢弃
	assert.False(t, s.ApplyUpdate(999, RunPatch{ProgressPercent: floatPtr(1)}, 1))

	// nil 字段不覆盖现值
	assert.True(t, s.ApplyUpdate(1, RunPatch{CompletedCount: intPtr(88)}, 6))
	run, _ = s.Run(1)
	assert.Equal(t, 90.0, run.ProgressPercent)
	assert.Equal(t, 88, run.CompletedCount)
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(n int) *int           { return &n }

func TestUpsertRunAdvancesSeq(t *testing.T) {
	s := newEvalStore(t)
	s.SetRuns(sampleRuns())

	// 详情重取覆盖全量状态，旧推送不得回退
	run, _ := s.Run(1)
	run.Status = model.RunStatusCompleted
	run.ProgressPercent = 100
	s.UpsertRun(run, 10)

	running := model.RunStatusRunning
	assert.False(t, s.ApplyUpdate(1, RunPatch{Status: &running}, 8))
	got, _ := s.Run(1)
	assert.Equal(t, model.RunStatusCompleted, got.Status)
}

func TestSelection(t *testing.T) {
	s := newEvalStore(t)
	s.SetRuns(sampleRuns())

	assert.False(t, s.CanCompare())

	s.ToggleSelect(1)
	assert.False(t, s.CanCompare()) // 1 条不够

	s.ToggleSelect(2)
	assert.True(t, s.CanCompare()) // 2 条可以
	assert.Equal(t, []int64{1, 2}, s.SelectedIDs())

	s.ToggleSelect(2)
	assert.Equal(t, []int64{1}, s.SelectedIDs()) // 再点取消

	s.SelectAll()
	assert.Len(t, s.SelectedIDs(), 4)
	assert.True(t, s.CanCompare())

	s.ClearSelection()
	assert.Empty(t, s.SelectedIDs())

	// 超过 5 条禁止对比
	many := make([]model.EvaluationRun, 6)
	for i := range many {
		many[i] = model.EvaluationRun{ID: int64(i + 1)}
	}
	s.SetRuns(many)
	s.SelectAll()
	assert.False(t, s.CanCompare())
}

func TestSelectionPrunedOnSetRuns(t *testing.T) {
	s := newEvalStore(t)
	s.SetRuns(sampleRuns())
	s.ToggleSelect(1)
	s.ToggleSelect(3)

	// 列表刷新后消失的 run 同时从选中集剔除
	s.SetRuns(sampleRuns()[:2])
	assert.Equal(t, []int64{1}, s.SelectedIDs())
}

func TestStatistics(t *testing.T) {
	s := newEvalStore(t)
	s.SetRuns(sampleRuns())

	stats := s.Statistics()
	assert.Equal(t, 1, stats[model.RunStatusRunning])
	assert.Equal(t, 1, stats[model.RunStatusCompleted])
	assert.Equal(t, 1, stats[model.RunStatusFailed])
	assert.Equal(t, 1, stats[model.RunStatusPending])
}

func TestFilterSortPersistence(t *testing.T) {
	p := persist.NewMemory()

	s := NewEvaluation(p, nil)
	s.SetFilter(RunFilter{TaskID: 10, ModelVersion: "gpt"})
	s.SetSort(SortSpec{Field: SortByProgress, Order: OrderAsc})
	s.SetPageSize(20)

	// 新实例恢复同样的筛选、排序与分页
	s2 := NewEvaluation(p, nil)
	assert.Equal(t, RunFilter{TaskID: 10, ModelVersion: "gpt"}, s2.Filter())
	assert.Equal(t, SortSpec{Field: SortByProgress, Order: OrderAsc}, s2.Sort())
	assert.Equal(t, Pagination{Page: 1, PageSize: 20}, s2.Page())
}

func TestWatchingFlags(t *testing.T) {
	s := newEvalStore(t)
	assert.False(t, s.IsWatching(1))
	s.SetWatching(1, true)
	assert.True(t, s.IsWatching(1))
	s.SetWatching(1, false)
	assert.False(t, s.IsWatching(1))
}
