// Package main 是应用程序的入口点。
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"legal-assistant-go/internal/config"
	"legal-assistant-go/internal/handler"
	"legal-assistant-go/internal/service"
	"legal-assistant-go/pkg/kafka"
	"legal-assistant-go/pkg/llm"
	"legal-assistant-go/pkg/log"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	if cfg.LLM.APIKey == "" {
		log.Warnf("未配置 LLM API Key，聊天请求将返回配置错误")
	}

	// 3. 初始化 Kafka 生产者（可选）
	producer := kafka.NewProducer(cfg.Kafka)
	var publisher service.EventPublisher
	if producer != nil {
		publisher = producer
	}

	// 4. 初始化 Service (依赖注入)
	llmClient := llm.NewClient(cfg.LLM)
	assistantService := service.NewAssistantService(llmClient, cfg.LLM, cfg.Assistant)
	uploadService := service.NewUploadService(cfg.Upload, publisher, nil)

	// 5. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := handler.NewRouter(assistantService, uploadService, cfg.Server.AllowedOrigins)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP 服务监听失败: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("接收到停机信号，正在关闭服务...")

		// 设置一个5秒的超时上下文
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP 服务器关闭失败: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Errorf("服务异常退出: %v", err)
	}

	// 停止所有模拟上传任务，再关闭生产者
	uploadService.Close()
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	log.Info("服务已优雅关闭")
}
