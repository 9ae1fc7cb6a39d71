// Package main 评测控制台入口
//
// 终端版的评测平台前端，只做展示拼装，业务状态都在 internal/store：
//
//	console login -u admin
//	console runs list -status running
//	console runs watch 3
//	console metrics compare -ids 3,7
//	console prefs set theme dark
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"eval-console/internal/client"
	"eval-console/internal/config"
	"eval-console/internal/store"
	"eval-console/internal/store/persist"
	"eval-console/pkg/logging"
)

func usage() {
	fmt.Fprint(os.Stderr, `用法: console <命令> [参数]

命令:
  login     登录（-u 用户名 -p 密码 -remember）
  logout    退出登录
  whoami    当前用户信息
  runs      评测运行（list | show | create | delete | watch）
  datasets  数据集（list | show | export）
  metrics   指标（show | compare | trend | summary | export）
  prefs     界面偏好（get | set | reset）
`)
}

// app 控制台的运行期依赖
type app struct {
	cfg     *config.Config
	logger  *logging.Logger
	persist persist.Persister
	api     *client.Client
	session *store.SessionStore
	evals   *store.EvaluationStore
	ui      *store.UIStore
}

// newApp 装配全部依赖
//
// 本地状态库打不开时退化为纯内存，不阻塞使用。
func newApp() *app {
	cfg := config.Load()
	logger := logging.Default("console")

	var p persist.Persister
	if cfg.State.Path == ":memory:" {
		p = persist.NewMemory()
	} else {
		os.MkdirAll(filepath.Dir(cfg.State.Path), 0o755)
		var err error
		p, err = persist.Open(cfg.State.Path)
		if err != nil {
			logger.WithError(err).Warn("本地状态库打开失败，改用内存模式")
			p = persist.NewMemory()
		}
	}

	a := &app{cfg: cfg, logger: logger, persist: p}
	a.session = store.NewSession(nil, p, logger)
	a.api = client.New(client.Config{
		BaseURL: cfg.API.BaseURL,
		Timeout: cfg.API.Timeout,
		Tokens:  a.session,
		Logger:  logger,
	})
	a.session.SetClient(a.api)
	a.evals = store.NewEvaluation(p, logger)
	a.ui = store.NewUI(p, logger)
	return a
}

func (a *app) close() {
	a.persist.Close()
}

// requireAuth 路由守卫的终端版：未登录（或令牌已失效）直接拒绝
//
// 持久化只存令牌，每次进程启动都重新拉取用户信息；
// 拉取失败按未登录处理。
func (a *app) requireAuth() error {
	a.session.CheckExpiry()
	if a.session.Token() != "" && a.session.User() == nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.API.Timeout)
		a.session.FetchUser(ctx)
		cancel()
	}
	if !a.session.IsAuthenticated() {
		return fmt.Errorf("尚未登录，请先执行: console login -u <用户名>")
	}
	return nil
}

// requireAdmin 管理员命令守卫
func (a *app) requireAdmin() error {
	if err := a.requireAuth(); err != nil {
		return err
	}
	if !a.session.IsAdmin() {
		return fmt.Errorf("该操作仅管理员可用")
	}
	return nil
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	a := newApp()
	defer a.close()

	var err error
	switch os.Args[1] {
	case "login":
		err = a.cmdLogin(os.Args[2:])
	case "logout":
		err = a.cmdLogout(os.Args[2:])
	case "whoami":
		err = a.cmdWhoami(os.Args[2:])
	case "runs":
		err = a.cmdRuns(os.Args[2:])
	case "datasets":
		err = a.cmdDatasets(os.Args[2:])
	case "metrics":
		err = a.cmdMetrics(os.Args[2:])
	case "prefs":
		err = a.cmdPrefs(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "未知命令: %s\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}
