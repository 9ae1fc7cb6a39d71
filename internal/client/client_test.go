package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eval-console/internal/model"
)

// staticToken 测试用令牌源
type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestClient(t *testing.T, handler http.Handler, tokens TokenSource) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{
		BaseURL: srv.URL + "/api/v1",
		Timeout: 5 * time.Second,
		Tokens:  tokens,
	})
}

func TestTokenInjection(t *testing.T) {
	var gotAuth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(model.User{ID: 1, Username: "admin"})
	})

	t.Run("携带令牌", func(t *testing.T) {
		c := newTestClient(t, handler, staticToken("tok-abc"))
		_, err := c.CurrentUser(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Bearer tok-abc", gotAuth)
	})

	t.Run("空令牌不附加认证头", func(t *testing.T) {
		c := newTestClient(t, handler, staticToken(""))
		_, err := c.CurrentUser(context.Background())
		require.NoError(t, err)
		assert.Empty(t, gotAuth)
	})

	t.Run("无令牌源", func(t *testing.T) {
		c := newTestClient(t, handler, nil)
		_, err := c.CurrentUser(context.Background())
		require.NoError(t, err)
		assert.Empty(t, gotAuth)
	})
}

func TestErrorEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"error 字段", http.StatusNotFound, `{"error":"run not found"}`, "run not found"},
		{"detail 字段", http.StatusUnprocessableEntity, `{"detail":"invalid dataset_id"}`, "invalid dataset_id"},
		{"error 优先于 detail", http.StatusBadRequest, `{"error":"bad","detail":"other"}`, "bad"},
		{"非 JSON 响应体回退状态文本", http.StatusBadGateway, `<html>upstream dead</html>`, "Bad Gateway"},
		{"空响应体回退状态文本", http.StatusInternalServerError, ``, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}), nil)

			_, err := c.GetEvaluation(context.Background(), 42)
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Status)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
		})
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusBadRequest, errdefs.IsInvalidArgument},
		{http.StatusUnauthorized, errdefs.IsPermissionDenied},
		{http.StatusForbidden, errdefs.IsPermissionDenied},
		{http.StatusNotFound, errdefs.IsNotFound},
		{http.StatusConflict, errdefs.IsConflict},
		{http.StatusTooManyRequests, errdefs.IsResourceExhausted},
		{http.StatusServiceUnavailable, errdefs.IsUnavailable},
		{http.StatusInternalServerError, errdefs.IsInternal},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}), nil)

			_, err := c.ListTasks(context.Background())
			require.Error(t, err)
			assert.True(t, tt.check(err))
			assert.Equal(t, tt.status, StatusOf(err))
		})
	}

	t.Run("401 视为认证错误", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}), nil)
		_, err := c.CurrentUser(context.Background())
		assert.True(t, IsAuthError(err))
	})
}

func TestCompareMetricsQuery(t *testing.T) {
	var gotQuery []string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()["run_ids"]
		json.NewEncoder(w).Encode(model.MetricComparison{})
	}), nil)

	_, err := c.CompareMetrics(context.Background(), []int64{3, 7, 11})
	require.NoError(t, err)
	// run_ids 以重复参数形式传递，而不是逗号拼接
	assert.Equal(t, []string{"3", "7", "11"}, gotQuery)
}

func TestListEvaluationsQuery(t *testing.T) {
	var gotQuery map[string][]string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode([]model.EvaluationRun{})
	}), nil)

	_, err := c.ListEvaluations(context.Background(), &EvaluationQuery{TaskID: 5, Limit: 20, Offset: 40})
	require.NoError(t, err)
	assert.Equal(t, []string{"5"}, gotQuery["task_id"])
	assert.Equal(t, []string{"20"}, gotQuery["limit"])
	assert.Equal(t, []string{"40"}, gotQuery["offset"])
}

func TestTransportErrorNormalization(t *testing.T) {
	// 指向已关闭的服务端，触发连接错误
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	c := New(Config{BaseURL: srv.URL, Timeout: time.Second})
	_, err := c.ListTasks(context.Background())
	require.Error(t, err)
	assert.True(t, errdefs.IsUnavailable(err))
	assert.Equal(t, 0, StatusOf(err))
}

func TestContextCancelPassthrough(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.ListTasks(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidateFileHelpers(t *testing.T) {
	assert.True(t, ValidateFileType("photo.JPG", []string{".jpg", ".png"}))
	assert.False(t, ValidateFileType("doc.pdf", []string{".jpg", ".png"}))
	assert.True(t, ValidateFileSize(5*1024*1024, 10))
	assert.False(t, ValidateFileSize(11*1024*1024, 10))

	assert.Equal(t, "0 B", FormatFileSize(0))
	assert.Equal(t, "1.00 KB", FormatFileSize(1024))
	assert.Equal(t, "1.50 MB", FormatFileSize(1536*1024))
}
