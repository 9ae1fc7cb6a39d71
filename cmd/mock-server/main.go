// Package main 模拟服务端入口
//
// 启动一个带种子数据的内存版评测平台后端，供控制台开发联调：
//
//	go run ./cmd/mock-server
//	MOCK_PORT=9000 go run ./cmd/mock-server
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eval-console/internal/mockserver"
	"eval-console/pkg/logging"
)

func main() {
	port := os.Getenv("MOCK_PORT")
	if port == "" {
		port = "8000"
	}

	logger := logging.Default("mock-server")

	h := mockserver.New(mockserver.Config{
		JWTSecret: os.Getenv("MOCK_JWT_SECRET"),
		Logger:    logger,
	})

	// 进度推进器让 pending 的运行自己跑起来
	h.StartDriver()
	defer h.StopDriver()

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      h.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 优雅关闭
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("正在关闭模拟服务端")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.WithError(err).Error("关闭失败")
		}
	}()

	logger.Info("模拟服务端已启动", "addr", srv.Addr, "账号", "admin/admin123")
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}
