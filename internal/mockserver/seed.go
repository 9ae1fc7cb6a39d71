package mockserver

import (
	"encoding/json"
	"fmt"
	"time"

	"eval-console/internal/model"
)

// seed 写入内置演示数据
//
// 账号：admin/admin123（管理员）、user/user123（普通用户）。
// 任务、规则、数据集与两条评测运行，开箱即可联调。
func (h *Handler) seed() {
	s := h.state
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	// 账号
	for _, acct := range []struct {
		username string
		password string
		role     model.UserRole
	}{
		{"admin", "admin123", model.UserRoleAdmin},
		{"user", "user123", model.UserRoleUser},
	} {
		hash, err := hashPassword(acct.password)
		if err != nil {
			h.logger.WithError(err).Error("内置账号初始化失败", "username", acct.username)
			continue
		}
		u := &mockUser{
			User: model.User{
				ID:       s.nextIDLocked(),
				Username: acct.username,
				Email:    acct.username + "@example.com",
				Role:     acct.role,
				IsActive: true,
			},
			PasswordHash: hash,
		}
		s.users[u.ID] = u
	}

	// 任务
	taskCls := model.Task{
		ID: s.nextIDLocked(), TaskName: "图像分类", TaskType: "image_classification",
		Description: "判断输入图像的类别标签", CreatedAt: now.Add(-30 * 24 * time.Hour),
	}
	taskRep := model.Task{
		ID: s.nextIDLocked(), TaskName: "报告解读", TaskType: "report_interpretation",
		Description: "从检查报告中抽取结论", CreatedAt: now.Add(-20 * 24 * time.Hour),
	}
	s.tasks = append(s.tasks, taskCls, taskRep)

	// 规则
	s.rules[taskCls.ID] = []model.EvaluationRule{
		{ID: s.nextIDLocked(), TaskID: taskCls.ID, RuleName: "精确匹配", RuleType: "exact_match",
			RuleConfig: json.RawMessage(`{"case_sensitive": false}`)},
		{ID: s.nextIDLocked(), TaskID: taskCls.ID, RuleName: "Top-3 命中", RuleType: "top_k",
			RuleConfig: json.RawMessage(`{"k": 3}`)},
	}
	s.rules[taskRep.ID] = []model.EvaluationRule{
		{ID: s.nextIDLocked(), TaskID: taskRep.ID, RuleName: "关键词覆盖", RuleType: "keyword_coverage",
			RuleConfig: json.RawMessage(`{"threshold": 0.8}`)},
	}

	// 数据集与条目
	ds := &model.Dataset{
		ID: s.nextIDLocked(), TaskID: taskCls.ID, TaskName: taskCls.TaskName,
		Name: "胸片分类验证集", Description: "用于回归验证的标注集",
		CreatedAt: now.Add(-15 * 24 * time.Hour),
	}
	for i := 0; i < 20; i++ {
		s.items[ds.ID] = append(s.items[ds.ID], model.DatasetItem{
			ID:          s.nextIDLocked(),
			TaskID:      taskCls.ID,
			DatasetID:   ds.ID,
			InputData:   json.RawMessage(fmt.Sprintf(`{"image_url": "/fixtures/xray_%03d.png"}`, i)),
			GroundTruth: json.RawMessage(fmt.Sprintf(`{"label": %q}`, seedLabel(i))),
			CreatedAt:   now.Add(-15 * 24 * time.Hour),
		})
	}
	ds.DataCount = len(s.items[ds.ID])
	s.datasets[ds.ID] = ds

	// 一条运行中的评测 + 一条已完成的评测
	startRunning := now.Add(-10 * time.Minute)
	running := &model.EvaluationRun{
		ID: s.nextIDLocked(), TaskID: taskCls.ID, RuleID: s.rules[taskCls.ID][0].ID,
		ModelVersion: "gpt-4o-mini", RunName: strPtr("nightly-回归"),
		Status: model.RunStatusRunning, TotalCount: 100, CompletedCount: 42, FailedCount: 3,
		ProgressPercent: 45.0, StartTime: &startRunning, CreatedAt: startRunning,
	}
	s.runs[running.ID] = running

	startDone := now.Add(-2 * time.Hour)
	endDone := now.Add(-100 * time.Minute)
	done := &model.EvaluationRun{
		ID: s.nextIDLocked(), TaskID: taskCls.ID, RuleID: s.rules[taskCls.ID][0].ID,
		ModelVersion: "claude-3-haiku", RunName: strPtr("基线对照"),
		Status: model.RunStatusCompleted, TotalCount: 100, CompletedCount: 97, FailedCount: 3,
		ProgressPercent: 100.0, StartTime: &startDone, EndTime: &endDone, CreatedAt: startDone,
	}
	s.runs[done.ID] = done

	for _, m := range []struct {
		name  string
		value float64
	}{
		{"accuracy", 0.91}, {"precision", 0.89}, {"recall", 0.87}, {"f1_score", 0.88},
	} {
		s.metrics[done.ID] = append(s.metrics[done.ID], model.MetricRecord{
			ID: s.nextIDLocked(), RunID: done.ID,
			MetricName: m.name, MetricValue: m.value, CreatedAt: endDone,
		})
	}
}

// seedLabel 轮转三种标签，让标签分布统计有内容可看
func seedLabel(i int) string {
	labels := []string{"normal", "pneumonia", "nodule"}
	return labels[i%len(labels)]
}

func strPtr(s string) *string { return &s }
