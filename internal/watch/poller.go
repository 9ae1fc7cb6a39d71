package watch

import (
	"context"
	"errors"
	"time"

	"eval-console/internal/client"
	"eval-console/internal/model"
	"eval-console/internal/store"
	"eval-console/pkg/logging"
)

// Poller 评测详情轮询器
//
// 推送链路的兜底：固定间隔重取运行详情并走 store 合并。序号在
// 发请求前领取，晚到的响应不会覆盖期间收到的推送数据。
type Poller struct {
	api      *client.Client
	store    *store.EvaluationStore
	logger   *logging.Logger
	runID    int64
	interval time.Duration
}

// NewPoller 创建轮询器，interval 不大于 0 时默认 3s
func NewPoller(api *client.Client, st *store.EvaluationStore, runID int64, interval time.Duration, logger *logging.Logger) *Poller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if logger == nil {
		logger = logging.Default("poll").WithRunID(runID)
	}
	return &Poller{api: api, store: st, logger: logger, runID: runID, interval: interval}
}

// Run 轮询主循环，阻塞直到运行终止或上下文取消
//
// 每轮错误只记日志不中断；进入终止状态后停止。
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if done := p.pollOnce(ctx); done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// pollOnce 执行一轮轮询，返回运行是否已终止
func (p *Poller) pollOnce(ctx context.Context) bool {
	seq := p.store.NextSeq()
	run, err := p.api.GetEvaluation(ctx, p.runID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return false
		}
		p.logger.WithError(err).Warn("轮询失败")
		return false
	}

	patch := store.RunPatch{
		Status:          &run.Status,
		TotalCount:      &run.TotalCount,
		CompletedCount:  &run.CompletedCount,
		FailedCount:     &run.FailedCount,
		ProgressPercent: &run.ProgressPercent,
	}
	if run.EndTime != nil {
		patch.EndTime = run.EndTime
	}
	if !p.store.ApplyUpdate(p.runID, patch, seq) {
		// 列表里还没有这条 run 时整体落位
		if _, ok := p.store.Run(p.runID); !ok {
			p.store.UpsertRun(*run, seq)
		}
	}

	return run.Status.IsTerminal()
}

// WatchRun 同时启动推送跟踪与轮询兜底，任一侧判定终止即收尾
//
// cmd/console 的 runs watch 用这个入口。推送不可用（GaveUp）时
// 轮询继续工作，数据只是延迟不丢失。
func WatchRun(ctx context.Context, cfg Config, pollInterval time.Duration) (model.EvaluationRun, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watcher, err := New(cfg)
	if err != nil {
		return model.EvaluationRun{}, err
	}

	poller := NewPoller(cfg.API, cfg.Store, cfg.RunID, pollInterval, cfg.Logger)

	watchErr := make(chan error, 1)
	pollErr := make(chan error, 1)
	go func() { watchErr <- watcher.Run(ctx) }()
	go func() { pollErr <- poller.Run(ctx) }()

	var firstErr error
	select {
	case err := <-watchErr:
		// 推送放弃重连时轮询还在，等它跑到终止
		if err != nil && watcher.State() == StateGaveUp {
			firstErr = err
			err = <-pollErr
			if err == nil {
				firstErr = nil
			}
		}
	case err := <-pollErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			firstErr = err
		}
	}
	cancel()

	run, ok := cfg.Store.Run(cfg.RunID)
	if !ok {
		if firstErr != nil {
			return model.EvaluationRun{}, firstErr
		}
		return model.EvaluationRun{}, errors.New("watch: run not found in store")
	}
	return run, firstErr
}
