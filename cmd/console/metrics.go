package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"eval-console/internal/metricutil"
)

// cmdMetrics 指标相关命令
func (a *app) cmdMetrics(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("用法: console metrics <show|compare|trend|summary|export|recalculate> [参数]")
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	switch args[0] {
	case "show":
		return a.metricsShow(args[1:])
	case "compare":
		return a.metricsCompare(args[1:])
	case "trend":
		return a.metricsTrend(args[1:])
	case "summary":
		return a.metricsSummary(args[1:])
	case "export":
		return a.metricsExport(args[1:])
	case "recalculate":
		return a.metricsRecalculate(args[1:])
	default:
		return fmt.Errorf("未知子命令: metrics %s", args[0])
	}
}

// metricsShow 单个运行的指标报告
func (a *app) metricsShow(args []string) error {
	id, err := argID(args, "metrics show <运行 ID>")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
	defer cancel()

	records, err := a.api.GetRunMetrics(ctx, id)
	if err != nil {
		return fmt.Errorf("获取指标失败: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("该运行暂无指标（可能尚未完成）")
		return nil
	}

	report := metricutil.BuildReport(id, records)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "指标\t取值\t说明")
	for _, entry := range report.Metrics {
		fmt.Fprintf(w, "%s\t%s\t%s\n", entry.Name, entry.FormattedValue, entry.Description)
	}
	w.Flush()

	fmt.Printf("\n综合评分: %.4f\n", report.OverallScore)
	return nil
}

// metricsCompare 多运行指标对比
func (a *app) metricsCompare(args []string) error {
	fs := flag.NewFlagSet("metrics compare", flag.ExitOnError)
	rawIDs := fs.String("ids", "", "运行 ID，逗号分隔（2 到 5 个）")
	fs.Parse(args)

	parts := strings.Split(*rawIDs, ",")
	ids := make([]int64, 0, len(parts))
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("非法的运行 ID: %s", p)
		}
		ids = append(ids, id)
		keys = append(keys, p)
	}
	if len(ids) < 2 || len(ids) > 5 {
		return fmt.Errorf("对比需要 2 到 5 个运行 ID，当前 %d 个", len(ids))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
	defer cancel()

	comparison, err := a.api.CompareMetrics(ctx, ids)
	if err != nil {
		return fmt.Errorf("获取对比数据失败: %w", err)
	}

	// 指标名集合（并集）
	nameSet := map[string]struct{}{}
	for _, run := range comparison {
		for name := range run.Metrics {
			nameSet[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	header := "指标"
	for _, key := range keys {
		label := key
		if run, ok := comparison[key]; ok && run.RunName != "" {
			label = fmt.Sprintf("%s(#%s)", run.RunName, key)
		}
		header += "\t" + label
	}
	fmt.Fprintln(w, header+"\t最优")
	for _, name := range names {
		row := name
		for _, key := range keys {
			if run, ok := comparison[key]; ok {
				if v, ok := run.Metrics[name]; ok {
					row += "\t" + metricutil.FormatValue(v, name)
					continue
				}
			}
			row += "\t-"
		}
		best := metricutil.BestModel(comparison, name, keys)
		if best == "" {
			best = "-"
		} else {
			best = "#" + best
		}
		fmt.Fprintln(w, row+"\t"+best)
	}
	return w.Flush()
}

// metricsTrend 指标历史趋势
func (a *app) metricsTrend(args []string) error {
	fs := flag.NewFlagSet("metrics trend", flag.ExitOnError)
	taskID := fs.Int64("task", 0, "任务 ID")
	metricName := fs.String("metric", "accuracy", "指标名")
	limit := fs.Int("limit", 10, "数据点个数")
	fs.Parse(args)

	if *taskID <= 0 {
		return fmt.Errorf("-task 不能为空")
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
	defer cancel()

	points, err := a.api.GetMetricTrend(ctx, *taskID, *metricName, *limit)
	if err != nil {
		return fmt.Errorf("获取趋势失败: %w", err)
	}
	if len(points) == 0 {
		fmt.Println("暂无趋势数据")
		return nil
	}

	values := make([]float64, 0, len(points))
	for _, pt := range points {
		v := pt.Values[*metricName]
		values = append(values, v)
		// 简易条形图，40 列满格
		bar := strings.Repeat("█", int(v*40))
		fmt.Printf("%s  %-8s %s\n", pt.Date, metricutil.FormatValue(v, *metricName), bar)
	}

	fmt.Printf("\n趋势: %s\n", metricutil.DetectTrend(values))
	return nil
}

// metricsSummary 任务维度的指标汇总
func (a *app) metricsSummary(args []string) error {
	fs := flag.NewFlagSet("metrics summary", flag.ExitOnError)
	taskID := fs.Int64("task", 0, "任务 ID")
	fs.Parse(args)

	if *taskID <= 0 {
		return fmt.Errorf("-task 不能为空")
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
	defer cancel()

	summaries, err := a.api.GetMetricSummary(ctx, *taskID)
	if err != nil {
		return fmt.Errorf("获取汇总失败: %w", err)
	}
	if len(summaries) == 0 {
		fmt.Println("该任务暂无指标数据")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "指标\t最新\t平均\t最高\t最低\t趋势")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.MetricName,
			metricutil.FormatValue(s.LatestValue, s.MetricName),
			metricutil.FormatValue(s.AvgValue, s.MetricName),
			metricutil.FormatValue(s.MaxValue, s.MetricName),
			metricutil.FormatValue(s.MinValue, s.MetricName),
			s.Trend)
	}
	return w.Flush()
}

// metricsExport 导出运行指标为 CSV
func (a *app) metricsExport(args []string) error {
	fs := flag.NewFlagSet("metrics export", flag.ExitOnError)
	out := fs.String("o", "", "输出文件路径（默认 metrics_run_<ID>.csv）")
	fs.Parse(args)

	id, err := argID(fs.Args(), "metrics export <运行 ID>")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
	defer cancel()

	if err := a.api.ExportMetricsCSV(ctx, id, *out); err != nil {
		return fmt.Errorf("导出失败: %w", err)
	}
	dest := *out
	if dest == "" {
		dest = fmt.Sprintf("metrics_run_%d.csv", id)
	}
	fmt.Printf("已导出到 %s\n", dest)
	return nil
}

// metricsRecalculate 重算指标（仅管理员）
func (a *app) metricsRecalculate(args []string) error {
	if err := a.requireAdmin(); err != nil {
		return err
	}

	id, err := argID(args, "metrics recalculate <运行 ID>")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
	defer cancel()

	if err := a.api.RecalculateMetrics(ctx, id); err != nil {
		return fmt.Errorf("重算失败: %w", err)
	}
	fmt.Println("指标已重新计算")
	return nil
}
