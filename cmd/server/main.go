package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clubexpense/internal/config"
	"clubexpense/internal/handler"
	"clubexpense/internal/infrastructure/cache"
	"clubexpense/internal/infrastructure/database"
	"clubexpense/internal/infrastructure/lock"
	"clubexpense/internal/infrastructure/logger"
	"clubexpense/internal/infrastructure/mq"
	"clubexpense/internal/infrastructure/storage"
	"clubexpense/internal/job"
	"clubexpense/internal/service"
	"clubexpense/pkg/idgen"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	workerID := flag.Int64("worker", 1, "ID 生成器的机器编号")
	flag.Parse()

	// 加载配置
	cfg := config.LoadConfig(*configPath)

	log := logger.New(&cfg.Log)
	defer log.Sync()

	// 初始化 ID 生成器
	if err := idgen.Init(*workerID); err != nil {
		log.Fatal("初始化 ID 生成器失败", zap.Error(err))
	}

	// 初始化记录存储
	db := database.Init(cfg)

	// 初始化 Redis（申请锁）
	var locker service.RequestLocker
	if redisClient := cache.InitRedis(&cfg.Redis); redisClient != nil {
		locker = lock.NewRequestLocker(redisClient)
		defer redisClient.Close()
	}

	// 初始化领收书存储
	var blobs service.BlobStore
	if store := storage.InitMinio(&cfg.Storage); store != nil {
		blobs = store
	}

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化 Kafka，启用时启动事件发送任务
	if publisher := mq.InitKafka(&cfg.Kafka); publisher != nil {
		defer publisher.Close()
		outboxSender := job.NewOutboxSender(db, publisher, cfg.Business.MaxRetryCount, log)
		go outboxSender.Start(ctx)
	}

	// 设置路由
	h := handler.NewHandler(db, blobs, locker, cfg, log)
	router := handler.SetupRouter(h, cfg, log)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 在 goroutine 中启动服务器
	go func() {
		log.Info("服务启动", zap.Int("port", cfg.Server.Port), zap.String("database", cfg.Database.Driver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("服务关闭异常", zap.Error(err))
	}

	log.Info("服务已关闭")
}
