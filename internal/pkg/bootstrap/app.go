// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"

	"washa/internal/pkg/logger"
	"washa/internal/pkg/nacos"
	"washa/internal/pkg/tracing"
)

type AppCtx struct {
	Mux   *http.ServeMux
	Nacos *nacos.Client
}

// AppInfo 包含了启动一个服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx) // 一个函数，允许每个服务注册自己独特的 HTTP 路由
	OnShutdown       func(ctx context.Context)
}

// StartService 封装了所有服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	logger.Init(info.ServiceName)

	// 1. 从环境变量读取通用配置
	nacosServerAddrs := getEnv("NACOS_SERVER_ADDRS", "localhost:8848")
	nacosNamespace := getEnv("NACOS_NAMESPACE", "")
	nacosGroup := getEnv("NACOS_GROUP", "DEFAULT_GROUP")

	// 2. 初始化核心组件
	// a. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, GetCurrentConfig().Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	namingClient, err := nacos.NewClient(nacosServerAddrs, nacosNamespace, nacosGroup)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize nacos client")
	}

	// 3. 获取本机 IP 用于注册
	ip, err := getOutboundIP()
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to get outbound IP address")
	}

	// 4. 执行服务注册
	if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to register service with nacos")
	}

	// 5. 创建并启动 HTTP Server
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Nacos: namingClient})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	go func() {
		logger.Logger.Info().Msgf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	// 6. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// 阻塞主 goroutine，直到接收到退出信号
	<-quit
	logger.Logger.Info().Msgf("Shutting down service %s...", info.ServiceName)

	// 创建一个有超时的 context，用于关停流程
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 7. 在关停流程中，按顺序执行清理操作 (后进先出)
	// a. 业务层自定义清理（消费者、生产者、连接池）
	if info.OnShutdown != nil {
		info.OnShutdown(ctx)
	}

	// b. 从 Nacos 注销服务
	if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		logger.Logger.Error().Err(err).Msg("error deregistering from nacos")
	}

	if nacosConfigClient != nil {
		nacosConfigClient.CloseClient()
	}

	// c. 关闭 Tracer Provider，确保所有缓冲的 trace 都被发送出去
	if err := tp.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("error shutting down tracer provider")
	}

	// d. 关闭 HTTP 服务器
	if err := server.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("error shutting down http server")
	}

	logger.Logger.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

// getOutboundIP 通过向外拨号的方式获取本机对外 IP。
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

func parseNacosAddrs(addrs string) ([]constant.ServerConfig, error) {
	var serverConfigs []constant.ServerConfig
	for _, addr := range strings.Split(addrs, ",") {
		parts := strings.Split(addr, ":")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid nacos address format: %s", addr)
		}
		port, err := strconv.ParseUint(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid port in nacos address: %s", parts[1])
		}
		serverConfigs = append(serverConfigs, *constant.NewServerConfig(parts[0], port))
	}
	return serverConfigs, nil
}

// getEnv 是一个内部辅助函数，从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
