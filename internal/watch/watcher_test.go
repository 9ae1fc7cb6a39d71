package watch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eval-console/internal/client"
	"eval-console/internal/model"
	"eval-console/internal/store"
	"eval-console/internal/store/persist"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// newWSServer 启动一个推送给定帧序列的 WebSocket 服务端
func newWSServer(t *testing.T, frames []frame) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteJSON(f); err != nil {
				return
			}
		}
		// 等对端处理完再关
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func newWatchStore(t *testing.T, runs ...model.EvaluationRun) *store.EvaluationStore {
	t.Helper()
	s := store.NewEvaluation(persist.NewMemory(), nil)
	s.SetRuns(runs)
	return s
}

func TestWatcherFrameFlow(t *testing.T) {
	// completed 帧的载荷声称 completed，详情接口却说 failed；
	// 最终以重取结果为准
	finalRun := model.EvaluationRun{
		ID: 1, Status: model.RunStatusFailed,
		TotalCount: 100, CompletedCount: 60, FailedCount: 40, ProgressPercent: 100,
	}
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(finalRun)
	}))
	t.Cleanup(apiSrv.Close)

	frames := []frame{
		{Type: frameInitial, Data: mustJSON(t, model.EvaluationRun{
			ID: 1, Status: model.RunStatusRunning, TotalCount: 100, ProgressPercent: 10})},
		{Type: frameProgress, Data: mustJSON(t, map[string]interface{}{
			"completed_count": 60, "failed_count": 5, "progress_percent": 65.0})},
		{Type: frameCompleted, Data: mustJSON(t, map[string]interface{}{
			"status": "completed", "progress_percent": 100.0})},
	}

	st := newWatchStore(t)
	api := client.New(client.Config{BaseURL: apiSrv.URL + "/api/v1"})

	var states []State
	w, err := New(Config{
		WSBaseURL: newWSServer(t, frames),
		RunID:     1,
		API:       api,
		Store:     st,
		OnState:   func(s State) { states = append(states, s) },
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Run(ctx))

	run, ok := st.Run(1)
	require.True(t, ok)
	// 重取的 failed 胜过推送里的 completed
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, 40, run.FailedCount)
	assert.Equal(t, 35, finalRunPending(run))

	assert.Equal(t, StateDisconnected, w.State())
	assert.Contains(t, states, StateConnecting)
	assert.Contains(t, states, StateConnected)
	assert.False(t, st.IsWatching(1))
}

func finalRunPending(r model.EvaluationRun) int { return r.PendingCount() }

func TestWatcherProgressMerge(t *testing.T) {
	frames := []frame{
		{Type: frameProgress, Data: mustJSON(t, map[string]interface{}{
			"completed_count": 30, "progress_percent": 30.0})},
		{Type: frameUpdate, Data: mustJSON(t, map[string]interface{}{
			"completed_count": 55, "progress_percent": 55.0})},
		{Type: frameCompleted, Data: mustJSON(t, map[string]interface{}{})},
	}

	st := newWatchStore(t, model.EvaluationRun{
		ID: 1, Status: model.RunStatusRunning, TotalCount: 100})

	w, err := New(Config{WSBaseURL: newWSServer(t, frames), RunID: 1, Store: st})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Run(ctx))

	run, _ := st.Run(1)
	assert.Equal(t, 55, run.CompletedCount)
	assert.Equal(t, 55.0, run.ProgressPercent)
	// 状态不本地推进，保持服务端上一次给的值
	assert.Equal(t, model.RunStatusRunning, run.Status)
}

func TestWatcherMalformedFrameSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		conn.WriteJSON(frame{Type: frameProgress, Data: mustJSON(t, map[string]interface{}{
			"progress_percent": 42.0})})
		conn.WriteJSON(frame{Type: frameCompleted, Data: mustJSON(t, map[string]interface{}{})})
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)

	st := newWatchStore(t, model.EvaluationRun{ID: 1, Status: model.RunStatusRunning})
	w, err := New(Config{
		WSBaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		RunID:     1,
		Store:     st,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Run(ctx))

	run, _ := st.Run(1)
	assert.Equal(t, 42.0, run.ProgressPercent)
}

func TestWatcherGiveUp(t *testing.T) {
	// 指向已关闭的地址，全部连接尝试失败
	srv := httptest.NewServer(http.NotFoundHandler())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	srv.Close()

	st := newWatchStore(t)
	w, err := New(Config{
		WSBaseURL:   wsURL,
		RunID:       1,
		Store:       st,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
		MaxRetries:  3,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = w.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, StateGaveUp, w.State())
	assert.Contains(t, err.Error(), "give up")
}

func TestWatcherContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// 不发任何帧，挂住连接
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	st := newWatchStore(t)
	w, err := New(Config{
		WSBaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		RunID:     1,
		Store:     st,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err = w.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateDisconnected, w.State())
}

func TestBackoffCap(t *testing.T) {
	w, err := New(Config{
		WSBaseURL:   "ws://localhost:0",
		RunID:       1,
		Store:       newWatchStore(t),
		BackoffBase: time.Second,
		BackoffMax:  30 * time.Second,
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, w.backoff(1), time.Second)
	assert.Less(t, w.backoff(1), 2*time.Second)
	// 2^(n-1) 超过上限后封顶
	for i := 6; i <= 12; i++ {
		assert.LessOrEqual(t, w.backoff(i), 30*time.Second)
	}
	assert.GreaterOrEqual(t, w.backoff(10), 16*time.Second)
}

func TestPollerSeqGuard(t *testing.T) {
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.EvaluationRun{
			ID: 1, Status: model.RunStatusRunning, TotalCount: 100,
			CompletedCount: 20, ProgressPercent: 20,
		})
	}))
	t.Cleanup(apiSrv.Close)

	st := newWatchStore(t, model.EvaluationRun{ID: 1, Status: model.RunStatusRunning, TotalCount: 100})
	api := client.New(client.Config{BaseURL: apiSrv.URL + "/api/v1"})
	p := NewPoller(api, st, 1, time.Second, nil)

	// 轮询先领号后请求；期间推送先行合并了更新的进度
	done := p.pollOnce(context.Background())
	assert.False(t, done)
	run, _ := st.Run(1)
	assert.Equal(t, 20.0, run.ProgressPercent)

	// 模拟：推送在下一轮轮询响应到达前写入了 80%
	seqBeforePoll := st.NextSeq()
	pushSeq := st.NextSeq()
	pct := 80.0
	require.True(t, st.ApplyUpdate(1, store.RunPatch{ProgressPercent: &pct}, pushSeq))

	// 持着旧号的轮询响应被丢弃
	old := 25.0
	assert.False(t, st.ApplyUpdate(1, store.RunPatch{ProgressPercent: &old}, seqBeforePoll))
	run, _ = st.Run(1)
	assert.Equal(t, 80.0, run.ProgressPercent)
}

func TestPollerStopsOnTerminal(t *testing.T) {
	calls := 0
	apiSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		status := model.RunStatusRunning
		if calls >= 2 {
			status = model.RunStatusCompleted
		}
		json.NewEncoder(w).Encode(model.EvaluationRun{
			ID: 1, Status: status, TotalCount: 10, CompletedCount: calls * 5,
		})
	}))
	t.Cleanup(apiSrv.Close)

	st := newWatchStore(t, model.EvaluationRun{ID: 1, Status: model.RunStatusRunning})
	api := client.New(client.Config{BaseURL: apiSrv.URL + "/api/v1"})
	p := NewPoller(api, st, 1, 10*time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	run, _ := st.Run(1)
	assert.Equal(t, model.RunStatusCompleted, run.Status)
	assert.GreaterOrEqual(t, calls, 2)
}
