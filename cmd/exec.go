package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/sirupsen/logrus"

	"ticket-settlement/config"
	"ticket-settlement/handlers"
	"ticket-settlement/internal/gateway"
	"ticket-settlement/ledger"
	"ticket-settlement/models"
	"ticket-settlement/monitoring"
	"ticket-settlement/queue"
	"ticket-settlement/scheduler"
	"ticket-settlement/security"
	"ticket-settlement/services"
	"ticket-settlement/utils"
)

// Start wires the settlement worker pool, the webhook ingress and the admin
// surface together and blocks until shutdown.
func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	if cfg.Server.Environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetLevel(logrus.DebugLevel)
	}

	redisClient, err := utils.NewRedisClient(cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	db, err := ledger.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	pnConfig := pubnub.NewConfig()
	pnConfig.PublishKey = cfg.PubNub.PublishKey
	pnConfig.SubscribeKey = cfg.PubNub.SubscribeKey
	pnConfig.SecretKey = cfg.PubNub.SecretKey
	pn := pubnub.NewPubNub(pnConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := monitoring.NewMonitor(redisClient, cfg.Queue.MainQueue, cfg.Queue.ProcessingQueue)
	gatewayClient := gateway.NewClient(cfg.Gateway)
	settlementQueue := queue.NewRedisQueue(redisClient, cfg.Queue, monitor)

	lockService := services.NewLockService(redisClient, cfg.Settlement.LockPaidTTL, cfg.Settlement.TrendingWindow)
	notifyService := services.NewNotifyService(pn, cfg.Notify)
	mailerService := services.NewMailerService(cfg.Mailer, nil)

	settlementService := services.NewSettlementService(
		db.Transactions, db.Tiers, db.Events, db.Tickets,
		lockService, gatewayClient, settlementQueue,
		notifyService, mailerService, monitor,
	)
	transferService := services.NewTransferService(
		db.Transactions, gatewayClient, redisClient, mailerService, monitor,
		cfg.Settlement.RetryKeyTTL, cfg.Settlement.FailedArchiveTTL,
	)
	refundService := services.NewRefundService(db.Transactions, mailerService, notifyService, monitor)

	settlementQueue.Register(models.JobTypeTransaction, settlementService.HandleTransactionJob)
	settlementQueue.Register(models.JobTypeTransfer, transferService.HandleTransferJob)
	settlementQueue.Register(models.JobTypeRefund, refundService.HandleRefundJob)
	settlementQueue.Register(models.JobTypeUnlock, settlementService.HandleUnlockJob)
	settlementQueue.Register(models.JobTypeInitiateRefund, settlementService.HandleInitiateRefund)
	settlementQueue.Start(ctx)

	statusScheduler := scheduler.New(db.Tiers, db.Events, cfg.Settlement.SchedulerInterval)
	statusScheduler.Start(ctx)

	webhookHandler := handlers.NewWebhookHandler(cfg.Gateway.WebhookSecret, settlementQueue)
	adminHandler := handlers.NewAdminHandler(settlementQueue, transferService, lockService)
	rateLimiter := security.NewRateLimiter(redisClient, 0)

	e := echo.New()

	e.POST("/api/v1/webhook/gateway", webhookHandler.Receive, rateLimiter.WebhookRateLimit())

	e.GET("/api/v1/admin/queue/stats", adminHandler.GetQueueStats)
	e.GET("/api/v1/admin/dlq", adminHandler.ListFailedJobs)
	e.POST("/api/v1/admin/dlq/:id/requeue", adminHandler.RequeueFailedJob)
	e.DELETE("/api/v1/admin/dlq/:id", adminHandler.DeleteFailedJob)
	e.POST("/api/v1/admin/transfers/:reference/retry", adminHandler.RetryTransfer)
	e.GET("/api/v1/admin/transfers/:reference/failure", adminHandler.GetArchivedTransfer)
	e.POST("/api/v1/admin/locks/:lockId/release", adminHandler.ReleaseLock)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/health", func(c echo.Context) error {
		if err := redisClient.Ping(c.Request().Context()).Err(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
	})

	go handleShutdown(cancel, settlementQueue, statusScheduler)

	logrus.WithField("port", cfg.Server.Port).Info("settlement server starting")
	if err := e.Start(":" + cfg.Server.Port); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func handleShutdown(cancel context.CancelFunc, q *queue.RedisQueue, s *scheduler.Scheduler) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logrus.Info("shutdown signal received, draining")

	q.Shutdown()
	s.Stop()
	cancel()
	os.Exit(0)
}
