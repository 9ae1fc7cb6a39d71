package mockserver

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"eval-console/internal/model"
	"eval-console/pkg/logging"
)

// progressDriver 模拟进度推进器
//
// 按固定间隔推进所有未结束的运行：pending 起跑、running 增量前进、
// 跑满后落终态并生成指标。每次推进通过网关广播对应的帧。
type progressDriver struct {
	state    *memoryState
	gateway  *EventGateway
	interval time.Duration
	logger   *logging.Logger

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

func newProgressDriver(state *memoryState, gateway *EventGateway, interval time.Duration, logger *logging.Logger) *progressDriver {
	return &progressDriver{
		state:    state,
		gateway:  gateway,
		interval: interval,
		logger:   logger,
	}
}

// Start 启动推进循环，重复调用无效果
func (d *progressDriver) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stop = make(chan struct{})
	d.done = make(chan struct{})

	go func() {
		defer close(d.done)
		ticker := time.NewTicker(d.interval)
		defer ticker.Stop()
		for {
			select {
			case <-d.stop:
				return
			case <-ticker.C:
				d.tick()
			}
		}
	}()
}

// Stop 停止推进循环并等待退出
func (d *progressDriver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return
	}
	close(d.stop)
	<-d.done
	d.running = false
}

// frameEvent 推进过程中积攒的待广播帧
type frameEvent struct {
	runID int64
	typ   string
	data  interface{}
}

// runPatch progress/update 帧的载荷，只带发生变化的字段
type runPatch struct {
	Status          *model.RunStatus `json:"status,omitempty"`
	CompletedCount  *int             `json:"completed_count,omitempty"`
	FailedCount     *int             `json:"failed_count,omitempty"`
	ProgressPercent *float64         `json:"progress_percent,omitempty"`
	EndTime         *time.Time       `json:"end_time,omitempty"`
}

// tick 推进一轮
//
// 持锁期间只改状态，广播放到锁外做。
func (d *progressDriver) tick() {
	var events []frameEvent

	d.state.mu.Lock()
	for id, run := range d.state.runs {
		switch run.Status {
		case model.RunStatusPending:
			now := time.Now()
			run.Status = model.RunStatusRunning
			run.StartTime = &now
			d.state.runSeq[id]++
			status := run.Status
			events = append(events, frameEvent{id, "update", runPatch{Status: &status}})

		case model.RunStatusRunning:
			d.advanceLocked(run)
			d.state.runSeq[id]++
			if run.Status.IsTerminal() {
				d.finishLocked(run)
				events = append(events, frameEvent{id, "completed", *run})
			} else {
				completed, failed, percent := run.CompletedCount, run.FailedCount, run.ProgressPercent
				events = append(events, frameEvent{id, "progress", runPatch{
					CompletedCount:  &completed,
					FailedCount:     &failed,
					ProgressPercent: &percent,
				}})
			}
		}
	}
	d.state.mu.Unlock()

	for _, ev := range events {
		d.gateway.Broadcast(ev.runID, ev.typ, ev.data)
	}
}

// advanceLocked 推进单个运行的计数（调用方须持有写锁）
func (d *progressDriver) advanceLocked(run *model.EvaluationRun) {
	step := run.TotalCount / 10
	if step < 1 {
		step = 1
	}
	step += rand.Intn(step + 1)

	for i := 0; i < step && run.CompletedCount+run.FailedCount < run.TotalCount; i++ {
		// 约 5% 的条目失败
		if rand.Intn(20) == 0 {
			run.FailedCount++
			d.appendResultLocked(run, model.RunStatusFailed)
		} else {
			run.CompletedCount++
			d.appendResultLocked(run, model.RunStatusCompleted)
		}
	}

	doneCount := run.CompletedCount + run.FailedCount
	run.ProgressPercent = float64(doneCount) / float64(run.TotalCount) * 100
	if doneCount >= run.TotalCount {
		run.Status = model.RunStatusCompleted
		run.ProgressPercent = 100
	}
}

// appendResultLocked 生成一条合成评测结果（调用方须持有写锁）
func (d *progressDriver) appendResultLocked(run *model.EvaluationRun, status model.RunStatus) {
	result := model.EvaluationResult{
		ID:     d.state.nextIDLocked(),
		Status: status,
	}
	if status == model.RunStatusFailed {
		msg := "模型调用超时"
		result.ErrorMessage = &msg
	} else {
		result.ModelOutput = json.RawMessage(fmt.Sprintf(`{"label":"class_%d"}`, rand.Intn(3)))
		result.EvaluationResult = json.RawMessage(`{"match":true}`)
		execTime := 0.2 + rand.Float64()*0.8
		result.ExecutionTime = &execTime
	}
	d.state.results[run.ID] = append(d.state.results[run.ID], result)
}

// finishLocked 落终态：记录结束时间并生成指标（调用方须持有写锁）
func (d *progressDriver) finishLocked(run *model.EvaluationRun) {
	now := time.Now()
	run.EndTime = &now

	// 以成功率为底生成四项指标
	base := float64(run.CompletedCount) / float64(run.TotalCount)
	for _, name := range []string{"accuracy", "precision", "recall", "f1_score"} {
		v := base + (rand.Float64()-0.5)*0.06
		if v < 0 {
			v = 0
		}
		if v > 1 {
			v = 1
		}
		d.state.metrics[run.ID] = append(d.state.metrics[run.ID], model.MetricRecord{
			ID:          d.state.nextIDLocked(),
			RunID:       run.ID,
			MetricName:  name,
			MetricValue: v,
			CreatedAt:   now,
		})
	}

	d.logger.WithRunID(run.ID).Info("评测运行结束",
		"completed", run.CompletedCount, "failed", run.FailedCount)
}
