// Package mockserver 开发联调用的模拟服务端
//
// 实现控制台消费的全部接口，数据存内存，进程退出即消失：
//   - common.go:     Handler 定义、路由注册、通用工具函数
//   - auth.go:       认证接口（bcrypt + JWT）
//   - dataset.go:    数据集接口
//   - evaluation.go: 任务、规则与评测运行接口
//   - driver.go:     模拟进度推进器
//   - file.go:       文件接口
//   - metric.go:     指标接口
//   - websocket.go:  评测进度推送网关
package mockserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eval-console/internal/model"
	"eval-console/pkg/logging"
)

// Config 模拟服务端配置
type Config struct {
	JWTSecret      string        // 为空时用内置默认值
	AccessTokenTTL time.Duration // 默认 24h
	DriveInterval  time.Duration // 进度推进间隔，默认 1s
	Logger         *logging.Logger
}

// Handler 模拟服务端的 HTTP 入口
type Handler struct {
	cfg     Config
	logger  *logging.Logger
	state   *memoryState
	gateway *EventGateway
	driver  *progressDriver
}

// memoryState 全部业务数据的内存存储
type memoryState struct {
	mu sync.RWMutex

	users     map[int64]*mockUser
	datasets  map[int64]*model.Dataset
	items     map[int64][]model.DatasetItem // 按数据集索引
	tasks     []model.Task
	rules     map[int64][]model.EvaluationRule // 按任务索引
	runs      map[int64]*model.EvaluationRun
	results   map[int64][]model.EvaluationResult // 按运行索引
	files     map[int64]*fileEntry
	metrics   map[int64][]model.MetricRecord // 按运行索引
	nextID    int64
	runSeq    map[int64]int // 推送帧计数，driver 用
}

type fileEntry struct {
	record  model.FileRecord
	content []byte
}

// mockUser 带密码哈希的用户
type mockUser struct {
	model.User
	PasswordHash string
}

// nextID 分配下一个全局自增 ID（调用方须持有写锁）
func (m *memoryState) nextIDLocked() int64 {
	m.nextID++
	return m.nextID
}

// New 创建模拟服务端
func New(cfg Config) *Handler {
	if cfg.JWTSecret == "" {
		cfg.JWTSecret = "mock-server-dev-secret"
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 24 * time.Hour
	}
	if cfg.DriveInterval <= 0 {
		cfg.DriveInterval = time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default("mockserver")
	}

	h := &Handler{
		cfg:    cfg,
		logger: logger,
		state: &memoryState{
			users:    make(map[int64]*mockUser),
			datasets: make(map[int64]*model.Dataset),
			items:    make(map[int64][]model.DatasetItem),
			rules:    make(map[int64][]model.EvaluationRule),
			runs:     make(map[int64]*model.EvaluationRun),
			results:  make(map[int64][]model.EvaluationResult),
			files:    make(map[int64]*fileEntry),
			metrics:  make(map[int64][]model.MetricRecord),
			runSeq:   make(map[int64]int),
		},
	}
	h.gateway = newEventGateway(h.state, logger)
	h.driver = newProgressDriver(h.state, h.gateway, cfg.DriveInterval, logger)
	h.seed()
	return h
}

// Routes 构造完整路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	// 认证
	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("GET /api/v1/auth/me", h.Me)

	// 数据集
	mux.HandleFunc("GET /api/v1/datasets", h.requireAuth(h.ListDatasets))
	mux.HandleFunc("POST /api/v1/datasets", h.requireAuth(h.CreateDataset))
	mux.HandleFunc("GET /api/v1/datasets/{id}", h.requireAuth(h.GetDataset))
	mux.HandleFunc("PUT /api/v1/datasets/{id}", h.requireAuth(h.UpdateDataset))
	mux.HandleFunc("DELETE /api/v1/datasets/{id}", h.requireAuth(h.DeleteDataset))
	mux.HandleFunc("GET /api/v1/datasets/{id}/items", h.requireAuth(h.ListDatasetItems))
	mux.HandleFunc("POST /api/v1/datasets/{id}/items", h.requireAuth(h.AddDatasetItem))
	mux.HandleFunc("POST /api/v1/datasets/{id}/items/batch", h.requireAuth(h.BatchAddItems))
	mux.HandleFunc("GET /api/v1/datasets/{id}/items/{itemId}", h.requireAuth(h.GetDatasetItem))
	mux.HandleFunc("PUT /api/v1/datasets/{id}/items/{itemId}", h.requireAuth(h.UpdateDatasetItem))
	mux.HandleFunc("DELETE /api/v1/datasets/{id}/items/{itemId}", h.requireAuth(h.DeleteDatasetItem))
	mux.HandleFunc("GET /api/v1/datasets/{id}/statistics", h.requireAuth(h.DatasetStatistics))
	mux.HandleFunc("POST /api/v1/datasets/{id}/validate", h.requireAuth(h.ValidateDataset))
	mux.HandleFunc("POST /api/v1/datasets/{id}/split", h.requireAuth(h.SplitDataset))
	mux.HandleFunc("POST /api/v1/datasets/{id}/export", h.requireAuth(h.ExportDataset))
	mux.HandleFunc("POST /api/v1/datasets/{id}/duplicate", h.requireAuth(h.DuplicateDataset))
	mux.HandleFunc("GET /api/v1/datasets/{id}/label-distribution", h.requireAuth(h.LabelDistribution))
	mux.HandleFunc("GET /api/v1/datasets/{id}/search", h.requireAuth(h.SearchDatasetItems))
	mux.HandleFunc("GET /api/v1/datasets/{id}/preview", h.requireAuth(h.PreviewDataset))
	mux.HandleFunc("POST /api/v1/datasets/batch-operation", h.requireAuth(h.BatchOperation))

	// 任务与评测
	mux.HandleFunc("GET /api/v1/tasks", h.requireAuth(h.ListTasks))
	mux.HandleFunc("GET /api/v1/tasks/{id}/rules", h.requireAuth(h.ListTaskRules))
	mux.HandleFunc("GET /api/v1/evaluations/runs", h.requireAuth(h.ListEvaluations))
	mux.HandleFunc("POST /api/v1/evaluations/runs", h.requireAuth(h.CreateEvaluation))
	mux.HandleFunc("GET /api/v1/evaluations/runs/{id}", h.requireAuth(h.GetEvaluation))
	mux.HandleFunc("DELETE /api/v1/evaluations/runs/{id}", h.requireAuth(h.DeleteEvaluation))
	mux.HandleFunc("GET /api/v1/evaluations/runs/{id}/progress", h.requireAuth(h.EvaluationProgress))

	// 文件
	mux.HandleFunc("POST /api/v1/files/upload/image", h.requireAuth(h.UploadImage))
	mux.HandleFunc("POST /api/v1/files/upload/images/batch", h.requireAuth(h.UploadImages))
	mux.HandleFunc("POST /api/v1/files/upload/document", h.requireAuth(h.UploadDocument))
	mux.HandleFunc("GET /api/v1/files/list", h.requireAuth(h.ListFiles))
	mux.HandleFunc("GET /api/v1/files/stats", h.requireAuth(h.FileStats))
	mux.HandleFunc("GET /api/v1/files/{id}/download", h.requireAuth(h.DownloadFile))
	mux.HandleFunc("DELETE /api/v1/files/{id}", h.requireAuth(h.DeleteFile))

	// 指标
	mux.HandleFunc("GET /api/v1/metrics/runs/{id}", h.requireAuth(h.RunMetrics))
	mux.HandleFunc("GET /api/v1/metrics/runs/{id}/export", h.requireAuth(h.ExportMetricsCSV))
	mux.HandleFunc("GET /api/v1/metrics/compare", h.requireAuth(h.CompareMetrics))
	mux.HandleFunc("POST /api/v1/metrics/recalculate/{id}", h.requireAuth(h.RecalculateMetrics))
	mux.HandleFunc("GET /api/v1/metrics/trend", h.requireAuth(h.MetricTrend))
	mux.HandleFunc("GET /api/v1/metrics/tasks/{id}/summary", h.requireAuth(h.MetricSummary))
	mux.HandleFunc("GET /api/v1/metrics/{id}", h.requireAuth(h.GetMetric))

	// 实时推送
	mux.HandleFunc("GET /api/v1/ws/evaluations/{id}", h.gateway.HandleWebSocket)

	return mux
}

// StartDriver 启动模拟进度推进器
func (h *Handler) StartDriver() { h.driver.Start() }

// StopDriver 停止模拟进度推进器
func (h *Handler) StopDriver() { h.driver.Stop() }

// Health 健康检查接口
//
// 路由: GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ============================================================================
// 通用工具函数
// ============================================================================

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 将错误信息以 JSON 格式写入 HTTP 响应
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// pathID 解析路径参数中的数字 ID
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

// queryInt 解析查询参数中的整数，缺失或非法时返回默认值
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// paginate 对切片做 limit/offset 截取
func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// decodeBody 解析 JSON 请求体
func decodeBody(r *http.Request, out interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}
