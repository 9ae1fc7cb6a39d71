package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"eval-console/internal/model"
)

// cmdDatasets 数据集相关命令
func (a *app) cmdDatasets(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("用法: console datasets <list|show|export> [参数]")
	}
	if err := a.requireAuth(); err != nil {
		return err
	}

	switch args[0] {
	case "list":
		return a.datasetsList(args[1:])
	case "show":
		return a.datasetsShow(args[1:])
	case "export":
		return a.datasetsExport(args[1:])
	default:
		return fmt.Errorf("未知子命令: datasets %s", args[0])
	}
}

// datasetsList 数据集列表
func (a *app) datasetsList(args []string) error {
	fs := flag.NewFlagSet("datasets list", flag.ExitOnError)
	taskID := fs.Int64("task", 0, "任务 ID 筛选")
	keyword := fs.String("keyword", "", "名称关键字")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
	defer cancel()

	datasets, err := a.api.ListDatasets(ctx, &model.DatasetQuery{
		TaskID:  *taskID,
		Keyword: *keyword,
	})
	if err != nil {
		return fmt.Errorf("获取数据集列表失败: %w", err)
	}
	if len(datasets) == 0 {
		fmt.Println("没有匹配的数据集")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\t名称\t所属任务\t条目数\t创建时间")
	for _, ds := range datasets {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\n",
			ds.ID, ds.Name, ds.TaskName, ds.DataCount,
			ds.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

// datasetsShow 数据集详情、统计与标注分布
func (a *app) datasetsShow(args []string) error {
	id, err := argID(args, "datasets show <数据集 ID>")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
	defer cancel()

	ds, err := a.api.GetDataset(ctx, id)
	if err != nil {
		return fmt.Errorf("获取数据集失败: %w", err)
	}

	fmt.Printf("数据集 %d  %s\n", ds.ID, ds.Name)
	if ds.Description != "" {
		fmt.Printf("  描述:     %s\n", ds.Description)
	}
	fmt.Printf("  所属任务: %s\n", ds.TaskName)
	fmt.Printf("  条目数:   %d\n", ds.DataCount)
	fmt.Printf("  创建时间: %s\n", ds.CreatedAt.Format(time.DateTime))

	stats, err := a.api.GetDatasetStatistics(ctx, id)
	if err != nil || len(stats.LabelDistribution) == 0 {
		return nil
	}

	// 标注分布按数量倒序
	type labelCount struct {
		label string
		count int
	}
	dist := make([]labelCount, 0, len(stats.LabelDistribution))
	for label, count := range stats.LabelDistribution {
		dist = append(dist, labelCount{label, count})
	}
	sort.Slice(dist, func(i, j int) bool { return dist[i].count > dist[j].count })

	fmt.Println("  标注分布:")
	for _, lc := range dist {
		fmt.Printf("    %-12s %d\n", lc.label, lc.count)
	}
	return nil
}

// datasetsExport 导出数据集
func (a *app) datasetsExport(args []string) error {
	fs := flag.NewFlagSet("datasets export", flag.ExitOnError)
	format := fs.String("format", "json", "导出格式（json|csv|excel）")
	out := fs.String("o", "", "输出文件路径（默认 dataset_<ID>.<格式>）")
	fs.Parse(args)

	id, err := argID(fs.Args(), "datasets export <数据集 ID>")
	if err != nil {
		return err
	}

	dest := *out
	if dest == "" {
		dest = fmt.Sprintf("dataset_%d.%s", id, *format)
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
	defer cancel()

	cfg := &model.DatasetExportConfig{Format: *format, IncludeMetadata: true}
	if err := a.api.ExportDataset(ctx, id, cfg, dest); err != nil {
		return fmt.Errorf("导出失败: %w", err)
	}
	fmt.Printf("已导出到 %s\n", dest)
	return nil
}
