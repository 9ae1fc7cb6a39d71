package mockserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eval-console/internal/client"
	"eval-console/internal/mockserver"
	"eval-console/internal/model"
)

// tokenBox 测试用的可变令牌来源
type tokenBox struct{ token string }

func (b *tokenBox) Token() string { return b.token }

func newServer(t *testing.T) (*client.Client, *mockserver.Handler, *tokenBox, *httptest.Server) {
	t.Helper()
	h := mockserver.New(mockserver.Config{DriveInterval: 10 * time.Millisecond})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)

	box := &tokenBox{}
	api := client.New(client.Config{
		BaseURL: srv.URL + "/api/v1",
		Timeout: 5 * time.Second,
		Tokens:  box,
	})
	return api, h, box, srv
}

// login 以指定账号登录并把令牌装进 box
func login(t *testing.T, api *client.Client, box *tokenBox, username, password string) {
	t.Helper()
	resp, err := api.Login(context.Background(), model.LoginRequest{Username: username, Password: password})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	box.token = resp.AccessToken
}

func TestLoginAndMe(t *testing.T) {
	api, _, box, _ := newServer(t)
	login(t, api, box, "admin", "admin123")

	user, err := api.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "admin", user.Username)
	assert.Equal(t, model.UserRoleAdmin, user.Role)
}

func TestLoginWrongPassword(t *testing.T) {
	api, _, _, _ := newServer(t)

	_, err := api.Login(context.Background(), model.LoginRequest{Username: "admin", Password: "nope"})
	require.Error(t, err)
	assert.True(t, client.IsAuthError(err))
}

func TestRequireAuth(t *testing.T) {
	api, _, _, _ := newServer(t)

	_, err := api.CurrentUser(context.Background())
	require.Error(t, err)
	assert.True(t, client.IsAuthError(err))
	assert.Equal(t, http.StatusUnauthorized, client.StatusOf(err))
}

func TestSeedData(t *testing.T) {
	api, _, box, _ := newServer(t)
	login(t, api, box, "admin", "admin123")
	ctx := context.Background()

	tasks, err := api.ListTasks(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, tasks)

	rules, err := api.ListTaskRules(ctx, tasks[0].ID)
	require.NoError(t, err)
	require.NotEmpty(t, rules)

	datasets, err := api.ListDatasets(ctx, nil)
	require.NoError(t, err)
	require.NotEmpty(t, datasets)

	runs, err := api.ListEvaluations(ctx, nil)
	require.NoError(t, err)
	require.NotEmpty(t, runs)
}

func TestDriverCompletesRun(t *testing.T) {
	api, h, box, _ := newServer(t)
	login(t, api, box, "admin", "admin123")
	ctx := context.Background()

	tasks, err := api.ListTasks(ctx)
	require.NoError(t, err)
	rules, err := api.ListTaskRules(ctx, tasks[0].ID)
	require.NoError(t, err)

	run, err := api.CreateEvaluation(ctx, model.CreateEvaluationRequest{
		TaskID:       tasks[0].ID,
		RuleID:       rules[0].ID,
		ModelVersion: "gpt-4o",
		RunName:      "driver-冒烟",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusPending, run.Status)

	h.StartDriver()
	defer h.StopDriver()

	require.Eventually(t, func() bool {
		got, err := api.GetEvaluation(ctx, run.ID)
		return err == nil && got.Status.IsTerminal()
	}, 10*time.Second, 20*time.Millisecond)

	final, err := api.GetEvaluation(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusCompleted, final.Status)
	assert.Equal(t, float64(100), final.ProgressPercent)
	require.NotNil(t, final.EndTime)
	assert.Equal(t, final.TotalCount, final.CompletedCount+final.FailedCount)

	records, err := api.GetRunMetrics(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, records, 4)
	for _, rec := range records {
		assert.GreaterOrEqual(t, rec.MetricValue, 0.0)
		assert.LessOrEqual(t, rec.MetricValue, 1.0)
	}
}

func TestDeleteRunningRunConflict(t *testing.T) {
	api, _, box, _ := newServer(t)
	login(t, api, box, "admin", "admin123")
	ctx := context.Background()

	runs, err := api.ListEvaluations(ctx, nil)
	require.NoError(t, err)
	var runningID int64
	for _, run := range runs {
		if run.Status == model.RunStatusRunning {
			runningID = run.ID
			break
		}
	}
	require.NotZero(t, runningID, "种子数据里应有运行中的评测")

	err = api.DeleteEvaluation(ctx, runningID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, client.StatusOf(err))
}

func TestRecalculateMetricsAdminOnly(t *testing.T) {
	api, _, box, _ := newServer(t)
	ctx := context.Background()

	login(t, api, box, "admin", "admin123")
	runs, err := api.ListEvaluations(ctx, nil)
	require.NoError(t, err)
	var completedID int64
	for _, run := range runs {
		if run.Status == model.RunStatusCompleted {
			completedID = run.ID
			break
		}
	}
	require.NotZero(t, completedID)

	// 普通用户拒绝
	login(t, api, box, "user", "user123")
	err = api.RecalculateMetrics(ctx, completedID)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, client.StatusOf(err))

	// 管理员放行
	login(t, api, box, "admin", "admin123")
	require.NoError(t, api.RecalculateMetrics(ctx, completedID))

	records, err := api.GetRunMetrics(ctx, completedID)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	for _, rec := range records {
		assert.GreaterOrEqual(t, rec.MetricValue, 0.0)
		assert.LessOrEqual(t, rec.MetricValue, 1.0)
	}
}

func TestCompareMetrics(t *testing.T) {
	api, _, box, _ := newServer(t)
	login(t, api, box, "admin", "admin123")
	ctx := context.Background()

	runs, err := api.ListEvaluations(ctx, nil)
	require.NoError(t, err)
	ids := make([]int64, 0, len(runs))
	for _, run := range runs {
		ids = append(ids, run.ID)
	}

	comparison, err := api.CompareMetrics(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, comparison, len(ids))
}

func TestWebSocketFrames(t *testing.T) {
	api, _, box, srv := newServer(t)
	login(t, api, box, "admin", "admin123")
	ctx := context.Background()

	runs, err := api.ListEvaluations(ctx, nil)
	require.NoError(t, err)
	var completed model.EvaluationRun
	for _, run := range runs {
		if run.Status == model.RunStatusCompleted {
			completed = run
			break
		}
	}
	require.NotZero(t, completed.ID)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") +
		"/api/v1/ws/evaluations/" + strconv.FormatInt(completed.ID, 10)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "initial", frame.Type)

	var got model.EvaluationRun
	require.NoError(t, json.Unmarshal(frame.Data, &got))
	assert.Equal(t, completed.ID, got.ID)
	assert.Equal(t, model.RunStatusCompleted, got.Status)

	// 已终止的运行连上后立刻补一帧 completed
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "completed", frame.Type)
}

func TestWebSocketUnknownRun(t *testing.T) {
	_, _, _, srv := newServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(srv.URL, "http")+"/api/v1/ws/evaluations/99999", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
