// cmd/payment-service/main.go
package main

import (
	"context"

	"go.opentelemetry.io/otel"

	"washa/internal/pkg/bootstrap"
	"washa/internal/pkg/httpclient"
	"washa/internal/pkg/logger"
	"washa/internal/pkg/mq"
	"washa/internal/pkg/redis"
	orderapp "washa/internal/service/order/application"
	orderinfra "washa/internal/service/order/infrastructure"
	"washa/internal/service/payment/application"
	"washa/internal/service/payment/infrastructure"
	"washa/internal/service/payment/interfaces"
)

const serviceName = "payment-service"

// main 函数是应用的"组装根" (Composition Root)
// 它的核心职责是：创建并组装所有依赖项，然后启动应用。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	tracer := otel.Tracer(serviceName)

	// 1. 持久化：支付尝试与订单共用一个 MySQL 实例
	db, err := infrastructure.NewMysqlDB(cfg.Infra.Mysql.DSN)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to mysql")
	}
	attemptRepo, err := infrastructure.NewGormAttemptRepository(db)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to init attempt repository")
	}
	orderRepo, err := orderinfra.NewGormOrderRepository(db)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to init order repository")
	}

	// 2. Redis 在途守卫
	redisClient := redis.NewClient(cfg.Infra.Redis.Addr)
	guard, err := infrastructure.NewRedisInflightGuard(redisClient)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize inflight guard")
	}

	// 3. Kafka 事件生产者
	lifecycleWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Payment.Topics.Lifecycle)
	reconcileWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Payment.Topics.ReconcileJobs)
	manualWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Payment.Topics.ManualReview)
	notifier := infrastructure.NewEventProducerAdapter(lifecycleWriter, reconcileWriter, manualWriter)

	// 4. 支付网关适配器
	gateway := infrastructure.NewGatewayHTTPAdapter(httpclient.NewClient(tracer), cfg.Payment.Gateway.BaseURL)

	// 5. 组装应用服务
	materializer := orderapp.NewMaterializer(orderRepo, tracer)
	orchestrator := application.NewOrchestrator(
		attemptRepo,
		gateway,
		infrastructure.NewUUIDAllocator(),
		materializer,
		notifier,
		guard,
		tracer,
		application.Config{
			DefaultCountryCode: cfg.Payment.DefaultCountryCode,
			PollInterval:       cfg.Payment.Poll.Interval.Std(),
			PollMaxInterval:    cfg.Payment.Poll.MaxInterval.Std(),
			PollCeiling:        cfg.Payment.Poll.Ceiling.Std(),
			InflightTTL:        cfg.Payment.InflightTTL.Std(),
		},
	)
	reconciler := application.NewReconciler(attemptRepo, gateway, materializer, notifier, tracer)

	handler := interfaces.NewPaymentHandler(orchestrator, reconciler)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8083,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			lifecycleWriter.Close()
			reconcileWriter.Close()
			manualWriter.Close()
			redisClient.Close()
		},
	})
}
