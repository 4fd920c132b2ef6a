package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/handler"
	"marketplace/internal/infrastructure/cache"
	"marketplace/internal/infrastructure/database"
	"marketplace/internal/infrastructure/lock"
	"marketplace/internal/infrastructure/metrics"
	"marketplace/internal/infrastructure/mq"
	"marketplace/internal/job"
	"marketplace/internal/repository"
	"marketplace/internal/service"
	"marketplace/pkg/idgen"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		slog.Error("服务异常退出", "err", err)
		os.Exit(1)
	}
}

func run() error {
	// 加载配置
	cfg, err := config.LoadConfig("")
	if err != nil {
		return err
	}
	setupLogger(cfg.Log.Level)

	// 初始化 ID 生成器
	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return err
	}

	// 初始化 MySQL
	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		return err
	}

	// 初始化 Redis
	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// 初始化 Kafka
	publisher, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		return err
	}
	defer publisher.Close()

	m := metrics.New(nil)
	store := repository.NewStore(db)
	uow := service.NewUnitOfWork(store)

	attribution, err := service.NewAttributionService(uow, m, cfg.Affiliate.CodeLength, cfg.Affiliate.CodeMaxAttempts)
	if err != nil {
		return err
	}
	carts := service.NewCartService(cache.NewCartStore(redisClient, cfg.Cart.TTL()), uow)
	settlement := service.NewSettlementService(uow, cfg.Kafka.Topic.OrderSettled, m)
	locker := lock.NewUserLocker(redisClient, cfg.Withdrawal.LockTTL(), cfg.Withdrawal.LockRetryInterval(), cfg.Withdrawal.LockRetries)

	h := handler.NewHandler(handler.Services{
		Products:    service.NewProductService(uow),
		Attribution: attribution,
		Carts:       carts,
		Checkout:    service.NewCheckoutService(carts, service.NewOrderAssembler(), attribution, settlement),
		Settlement:  settlement,
		Withdrawals: service.NewWithdrawalService(uow, locker, cfg.Kafka.Topic.Withdrawal, m),
		Wallets:     service.NewWalletService(uow),
	})

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动后台任务
	outboxSender := job.NewOutboxSender(store.Outbox(), publisher,
		time.Duration(cfg.Business.OutboxIntervalMilli)*time.Millisecond,
		cfg.Business.OutboxBatchSize, cfg.Business.MaxRetryCount)
	go outboxSender.Start(ctx)

	reconcileJob := job.NewSettlementReconcileJob(settlement,
		time.Duration(cfg.Business.ReconcileIntervalSeconds)*time.Second,
		time.Duration(cfg.Business.ReconcileAfterMinutes)*time.Minute,
		cfg.Business.ReconcileBatchSize)
	go reconcileJob.Start(ctx)

	// 设置路由
	router := handler.SetupRouter(h, cfg, promhttp.Handler())

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("服务启动", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("服务启动失败: %w", err)
	}

	slog.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("服务关闭异常", "err", err)
	}

	slog.Info("服务已关闭")
	return nil
}

func setupLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
