package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"eval-console/internal/model"
	"eval-console/internal/store"
	"eval-console/internal/watch"
)

// cmdRuns 评测运行相关命令
func (a *app) cmdRuns(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("用法: console runs <list|show|create|delete|watch> [参数]")
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	switch args[0] {
	case "list":
		return a.runsList(args[1:])
	case "show":
		return a.runsShow(args[1:])
	case "create":
		return a.runsCreate(args[1:])
	case "delete":
		return a.runsDelete(args[1:])
	case "watch":
		return a.runsWatch(args[1:])
	default:
		return fmt.Errorf("未知子命令: runs %s", args[0])
	}
}

// runsList 评测列表（筛选、排序、分页都走 evaluation store）
func (a *app) runsList(args []string) error {
	fs := flag.NewFlagSet("runs list", flag.ExitOnError)
	status := fs.String("status", "", "状态筛选，逗号分隔（pending,running,completed,failed）")
	taskID := fs.Int64("task", 0, "任务 ID 筛选")
	modelVer := fs.String("model", "", "模型版本子串筛选")
	sortBy := fs.String("sort", "", "排序字段（created_at|progress_percent|total_count）")
	order := fs.String("order", "desc", "排序方向（asc|desc）")
	page := fs.Int("page", 0, "页码（从 1 开始）")
	size := fs.Int("size", 0, "每页条数")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
	defer cancel()

	runs, err := a.api.ListEvaluations(ctx, nil)
	if err != nil {
		return fmt.Errorf("获取评测列表失败: %w", err)
	}
	a.evals.SetRuns(runs)

	filter := a.evals.Filter()
	if *status != "" {
		filter.Statuses = nil
		for _, s := range strings.Split(*status, ",") {
			st := model.RunStatus(strings.TrimSpace(s))
			if !st.Valid() {
				return fmt.Errorf("未知状态: %s", s)
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}
	if *taskID > 0 {
		filter.TaskID = *taskID
	}
	if *modelVer != "" {
		filter.ModelVersion = *modelVer
	}
	a.evals.SetFilter(filter)

	if *sortBy != "" {
		a.evals.SetSort(store.SortSpec{
			Field: store.SortField(*sortBy),
			Order: store.SortOrder(*order),
		})
	}
	if *size > 0 {
		a.evals.SetPageSize(*size)
	}
	if *page > 0 {
		a.evals.SetPage(*page)
	}

	pageRuns := a.evals.PageRuns()
	if len(pageRuns) == 0 {
		fmt.Println("没有匹配的评测运行")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\t名称\t模型版本\t状态\t进度\t完成/失败/总数\t创建时间")
	for i := range pageRuns {
		run := &pageRuns[i]
		name := "-"
		if run.RunName != nil {
			name = *run.RunName
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.1f%%\t%d/%d/%d\t%s\n",
			run.ID, name, run.ModelVersion, run.Status, run.ProgressPercent,
			run.CompletedCount, run.FailedCount, run.TotalCount,
			run.CreatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()

	stats := a.evals.Statistics()
	pg := a.evals.Page()
	fmt.Printf("\n第 %d 页（每页 %d 条）| 运行中 %d | 已完成 %d | 已失败 %d | 等待中 %d\n",
		pg.Page, pg.PageSize,
		stats[model.RunStatusRunning], stats[model.RunStatusCompleted],
		stats[model.RunStatusFailed], stats[model.RunStatusPending])
	return nil
}

// runsShow 评测详情与进度
func (a *app) runsShow(args []string) error {
	id, err := argID(args, "runs show <运行 ID>")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
	defer cancel()

	run, err := a.api.GetEvaluation(ctx, id)
	if err != nil {
		return fmt.Errorf("获取评测详情失败: %w", err)
	}
	a.evals.SetCurrent(run)

	printRun(run)

	progress, err := a.api.GetEvaluationProgress(ctx, id, 10, 0)
	if err == nil && len(progress.Results) > 0 {
		a.evals.SetProgress(progress)
		fmt.Printf("\n最近结果（%d 条）:\n", len(progress.Results))
		for _, res := range progress.Results {
			line := fmt.Sprintf("  #%d %s", res.ID, res.Status)
			if res.ErrorMessage != nil {
				line += " " + *res.ErrorMessage
			}
			fmt.Println(line)
		}
	}
	return nil
}

// runsCreate 创建评测运行
func (a *app) runsCreate(args []string) error {
	fs := flag.NewFlagSet("runs create", flag.ExitOnError)
	taskID := fs.Int64("task", 0, "任务 ID")
	ruleID := fs.Int64("rule", 0, "规则 ID")
	modelVer := fs.String("model", "", "模型版本")
	name := fs.String("name", "", "运行名称（可选）")
	fs.Parse(args)

	if *taskID <= 0 || *ruleID <= 0 || *modelVer == "" {
		return fmt.Errorf("-task、-rule 和 -model 不能为空")
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
	defer cancel()

	run, err := a.api.CreateEvaluation(ctx, model.CreateEvaluationRequest{
		TaskID:       *taskID,
		RuleID:       *ruleID,
		ModelVersion: *modelVer,
		RunName:      *name,
	})
	if err != nil {
		return fmt.Errorf("创建评测失败: %w", err)
	}

	fmt.Printf("已创建评测运行 %d（%s），可执行 console runs watch %d 跟踪进度\n",
		run.ID, run.Status, run.ID)
	return nil
}

// runsDelete 删除评测运行
func (a *app) runsDelete(args []string) error {
	fs := flag.NewFlagSet("runs delete", flag.ExitOnError)
	yes := fs.Bool("y", false, "跳过确认")
	fs.Parse(args)

	id, err := argID(fs.Args(), "runs delete <运行 ID>")
	if err != nil {
		return err
	}

	if a.ui.Settings().Prefs.ConfirmDelete && !*yes {
		fmt.Printf("确认删除评测运行 %d? [y/N] ", id)
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("已取消")
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
	defer cancel()

	if err := a.api.DeleteEvaluation(ctx, id); err != nil {
		return fmt.Errorf("删除失败: %w", err)
	}
	fmt.Println("已删除")
	return nil
}

// runsWatch 实时跟踪评测进度
//
// WebSocket 推送与轮询兜底并行，合并都走 evaluation store 的
// 序号闸门；推送彻底失败只是退化成轮询，不中断跟踪。
func (a *app) runsWatch(args []string) error {
	id, err := argID(args, "runs watch <运行 ID>")
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := watch.Config{
		WSBaseURL:   a.cfg.API.WSURL,
		RunID:       id,
		API:         a.api,
		Store:       a.evals,
		Tokens:      a.session,
		Logger:      a.logger,
		BackoffBase: a.cfg.Watcher.BackoffBase,
		BackoffMax:  a.cfg.Watcher.BackoffMax,
		MaxRetries:  a.cfg.Watcher.MaxRetries,
		OnState: func(s watch.State) {
			switch s {
			case watch.StateConnected:
				fmt.Println("-- 已建立实时连接 --")
			case watch.StateBackoff:
				fmt.Println("-- 连接断开，稍后重连 --")
			case watch.StateGaveUp:
				fmt.Println("-- 实时连接不可用，改为轮询（数据可能有延迟）--")
			}
		},
	}

	// 进度打印协程：跟踪期间周期性读 store
	printDone := make(chan struct{})
	go func() {
		defer close(printDone)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		var last string
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run, ok := a.evals.Run(id)
				if !ok {
					continue
				}
				line := fmt.Sprintf("[%s] %.1f%% 完成 %d 失败 %d 待处理 %d",
					run.Status, run.ProgressPercent,
					run.CompletedCount, run.FailedCount, run.PendingCount())
				if line != last {
					fmt.Println(line)
					last = line
				}
				if run.Status.IsTerminal() {
					return
				}
			}
		}
	}()

	final, err := watch.WatchRun(ctx, cfg, a.cfg.Poll.Interval)
	cancel()
	<-printDone
	if err != nil {
		return fmt.Errorf("跟踪中断: %w", err)
	}

	fmt.Println()
	printRun(&final)
	if final.Status == model.RunStatusCompleted {
		fmt.Printf("\n指标: console metrics show %d\n", final.ID)
	}
	return nil
}

// printRun 打印单个运行的详情
func printRun(run *model.EvaluationRun) {
	name := "-"
	if run.RunName != nil {
		name = *run.RunName
	}
	fmt.Printf("运行 %d  %s\n", run.ID, name)
	fmt.Printf("  模型版本: %s\n", run.ModelVersion)
	fmt.Printf("  状态:     %s\n", run.Status)
	fmt.Printf("  进度:     %.1f%%（完成 %d / 失败 %d / 总数 %d，待处理 %d）\n",
		run.ProgressPercent, run.CompletedCount, run.FailedCount,
		run.TotalCount, run.PendingCount())
	fmt.Printf("  创建时间: %s\n", run.CreatedAt.Format(time.DateTime))
	if run.EndTime != nil {
		fmt.Printf("  结束时间: %s\n", run.EndTime.Format(time.DateTime))
	}
}

// argID 解析位置参数里的数字 ID
func argID(args []string, usage string) (int64, error) {
	if len(args) < 1 {
		return 0, fmt.Errorf("用法: console %s", usage)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("非法的 ID: %s", args[0])
	}
	return id, nil
}
