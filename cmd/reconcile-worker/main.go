// cmd/reconcile-worker/main.go
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"

	"washa/internal/pkg/bootstrap"
	"washa/internal/pkg/httpclient"
	"washa/internal/pkg/logger"
	"washa/internal/pkg/mq"
	"washa/internal/pkg/zookeeper"
	orderapp "washa/internal/service/order/application"
	orderinfra "washa/internal/service/order/infrastructure"
	"washa/internal/service/payment/application"
	"washa/internal/service/payment/infrastructure"
	"washa/internal/service/payment/interfaces"
)

const (
	serviceName             = "reconcile-worker"
	reconcileConsumerGroup  = "reconcile-worker-group"
	staleScanInterval       = 5 * time.Minute
	staleThreshold          = 10 * time.Minute // 超过该时长未动的尝试视为需要恢复
)

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	tracer := otel.Tracer(serviceName)

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

	lifecycleWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Payment.Topics.Lifecycle)
	reconcileWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Payment.Topics.ReconcileJobs)
	manualWriter := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Payment.Topics.ManualReview)
	notifier := infrastructure.NewEventProducerAdapter(lifecycleWriter, reconcileWriter, manualWriter)

	gateway := infrastructure.NewGatewayHTTPAdapter(httpclient.NewClient(tracer), cfg.Payment.Gateway.BaseURL)
	materializer := orderapp.NewMaterializer(orderRepo, tracer)
	reconciler := application.NewReconciler(attemptRepo, gateway, materializer, notifier, tracer)

	policy, err := infrastructure.NewCELReconcilePolicy(cfg.Payment.ReconcilePolicy)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("invalid reconcile policy expression")
	}

	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 5*time.Second)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to connect to zookeeper")
	}

	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Payment.Topics.ReconcileJobs, reconcileConsumerGroup)
	consumer := interfaces.NewReconcileConsumerAdapter(reader, reconciler, attemptRepo, policy, notifier, zkConn)

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	consumer.Start(consumerCtx)

	// 崩溃恢复扫描：定期把长期未决的尝试重新投回对账队列
	go func() {
		ticker := time.NewTicker(staleScanInterval)
		defer ticker.Stop()
		for {
			select {
			case <-consumerCtx.Done():
				return
			case <-ticker.C:
				count, err := reconciler.RecoverStale(consumerCtx, staleThreshold)
				if err != nil {
					logger.Logger.Error().Err(err).Msg("stale attempt scan failed")
					continue
				}
				if count > 0 {
					logger.Logger.Info().Int("count", count).Msg("re-enqueued stale attempts for reconciliation")
				}
			}
		}
	}()

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8084,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
		},
		OnShutdown: func(ctx context.Context) {
			cancelConsumer()
			consumer.Stop()
			lifecycleWriter.Close()
			reconcileWriter.Close()
			manualWriter.Close()
			zkConn.Close()
		},
	})
}
