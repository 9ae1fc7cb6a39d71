// Package watch 评测运行的实时跟踪
//
// Watcher 维护单条运行的 WebSocket 连接并把推送帧合并进评测
// store；Poller 以固定间隔轮询详情接口作为兜底。两者共用 store
// 的序号机制，晚到的旧数据在合并时被丢弃。
package watch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"eval-console/internal/client"
	"eval-console/internal/model"
	"eval-console/internal/store"
	"eval-console/pkg/logging"
)

// State 连接状态机的状态
//
//	disconnected → connecting → connected → backoff → connecting → …
//
// 重试次数耗尽后进入 gave_up 终态，由上层提示数据可能过时。
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateBackoff      State = "backoff"
	StateGaveUp       State = "gave_up"
)

// 帧类型
const (
	frameInitial   = "initial"
	frameProgress  = "progress"
	frameUpdate    = "update"
	frameCompleted = "completed"
)

// frame 服务端推送的消息帧
type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Config 跟踪器配置
type Config struct {
	WSBaseURL string // ws://host:port，路径由 RunID 拼出
	RunID     int64

	API    *client.Client         // completed 帧触发详情重取
	Store  *store.EvaluationStore // 更新合并入口
	Tokens client.TokenSource     // 可为 nil
	Logger *logging.Logger

	BackoffBase time.Duration // 首次退避时长，默认 1s
	BackoffMax  time.Duration // 退避上限，默认 30s
	MaxRetries  int           // 连续失败上限，默认 8

	OnState func(State) // 状态变更回调（可选，同步调用）

	Dialer *websocket.Dialer
}

// Watcher 单条运行的 WebSocket 跟踪器
type Watcher struct {
	cfg    Config
	logger *logging.Logger

	mu    sync.RWMutex
	state State

	done chan struct{}
}

// New 创建跟踪器（不建连，调用 Run 后开始工作）
func New(cfg Config) (*Watcher, error) {
	if cfg.WSBaseURL == "" {
		return nil, errors.New("watch: ws base url required")
	}
	if cfg.Store == nil {
		return nil, errors.New("watch: store required")
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 8
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default("watch").WithRunID(cfg.RunID)
	}

	return &Watcher{
		cfg:    cfg,
		logger: logger,
		state:  StateDisconnected,
		done:   make(chan struct{}),
	}, nil
}

// State 返回当前连接状态
func (w *Watcher) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Done 跟踪结束后关闭（终止帧、放弃重连或上下文取消）
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	if w.cfg.OnState != nil {
		w.cfg.OnState(s)
	}
}

// Run 跟踪主循环，阻塞直到终止
//
// 连接失败按指数退避重连，连续失败 MaxRetries 次后进入 gave_up
// 终态返回。收到 completed 帧或上下文取消时正常退出。
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.done)
	defer w.cfg.Store.SetWatching(w.cfg.RunID, false)

	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			w.setState(StateDisconnected)
			return err
		}

		w.setState(StateConnecting)
		conn, err := w.dial(ctx)
		if err != nil {
			attempt++
			watchMetrics().Reconnects.Inc()
			if attempt > w.cfg.MaxRetries {
				w.logger.WithError(err).Error("重连次数耗尽，停止跟踪")
				w.setState(StateGaveUp)
				return fmt.Errorf("watch run %d: give up after %d attempts: %w",
					w.cfg.RunID, attempt-1, err)
			}
			delay := w.backoff(attempt)
			w.logger.WithError(err).Warn("连接失败，等待重连",
				"attempt", attempt, "delay", delay.String())
			w.setState(StateBackoff)
			select {
			case <-ctx.Done():
				w.setState(StateDisconnected)
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		attempt = 0
		w.setState(StateConnected)
		w.cfg.Store.SetWatching(w.cfg.RunID, true)
		w.logger.Info("连接建立")

		terminal, err := w.readLoop(ctx, conn)
		w.cfg.Store.SetWatching(w.cfg.RunID, false)
		if terminal {
			w.setState(StateDisconnected)
			return nil
		}
		if ctx.Err() != nil {
			w.setState(StateDisconnected)
			return ctx.Err()
		}
		w.logger.WithError(err).Warn("连接断开，准备重连")
		attempt = 1
		watchMetrics().Reconnects.Inc()
		delay := w.backoff(attempt)
		w.setState(StateBackoff)
		select {
		case <-ctx.Done():
			w.setState(StateDisconnected)
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// dial 建立 WebSocket 连接
func (w *Watcher) dial(ctx context.Context) (*websocket.Conn, error) {
	url := fmt.Sprintf("%s/api/v1/ws/evaluations/%d", w.cfg.WSBaseURL, w.cfg.RunID)

	var header http.Header
	if w.cfg.Tokens != nil {
		if token := w.cfg.Tokens.Token(); token != "" {
			header = http.Header{"Authorization": {"Bearer " + token}}
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, resp, err := w.cfg.Dialer.DialContext(dialCtx, url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return conn, nil
}

// backoff 计算第 attempt 次重试的等待时长（带抖动的指数退避）
func (w *Watcher) backoff(attempt int) time.Duration {
	d := w.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= w.cfg.BackoffMax {
			d = w.cfg.BackoffMax
			break
		}
	}
	// 抖动最多加四分之一，避免多个 watcher 同时重连
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	d += jitter
	if d > w.cfg.BackoffMax {
		d = w.cfg.BackoffMax
	}
	return d
}

// readLoop 读取并处理推送帧，直到出错或收到终止帧
//
// 返回值 terminal 表示是否正常终止（completed 帧或上下文取消
// 之外的正常结束），false 则由调用方走重连。
func (w *Watcher) readLoop(ctx context.Context, conn *websocket.Conn) (terminal bool, err error) {
	defer conn.Close()

	// 上下文取消时关闭连接解除读阻塞
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	// 心跳：30s 发 ping，10s 写超时，60s 内未收到 pong 判定死链
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return false, err
		}

		var f frame
		if err := json.Unmarshal(msg, &f); err != nil {
			w.logger.WithError(err).Warn("丢弃无法解析的帧")
			continue
		}
		watchMetrics().Frames.WithLabelValues(f.Type).Inc()
		w.logger.WSEventLog(w.cfg.RunID, f.Type)

		if done := w.handleFrame(ctx, f); done {
			return true, nil
		}
	}
}

// handleFrame 处理单个推送帧，返回是否应结束跟踪
func (w *Watcher) handleFrame(ctx context.Context, f frame) bool {
	switch f.Type {
	case frameInitial:
		// 完整状态，整体落位
		var run model.EvaluationRun
		if err := json.Unmarshal(f.Data, &run); err != nil {
			w.logger.WithError(err).Warn("initial 帧解析失败")
			return false
		}
		w.cfg.Store.UpsertRun(run, w.cfg.Store.NextSeq())
		return false

	case frameProgress, frameUpdate:
		var patch store.RunPatch
		if err := json.Unmarshal(f.Data, &patch); err != nil {
			w.logger.WithError(err).Warn("进度帧解析失败")
			return false
		}
		w.cfg.Store.ApplyUpdate(w.cfg.RunID, patch, w.cfg.Store.NextSeq())
		return false

	case frameCompleted:
		// 推送的最终载荷不作数，以详情接口重取的为准
		w.refetch(ctx)
		return true

	default:
		w.logger.Warn("未知帧类型", "type", f.Type)
		return false
	}
}

// refetch 终止后重取运行详情
func (w *Watcher) refetch(ctx context.Context) {
	if w.cfg.API == nil {
		return
	}
	seq := w.cfg.Store.NextSeq()
	run, err := w.cfg.API.GetEvaluation(ctx, w.cfg.RunID)
	if err != nil {
		w.logger.WithError(err).Warn("终止后重取详情失败")
		return
	}
	w.cfg.Store.UpsertRun(*run, seq)
}
