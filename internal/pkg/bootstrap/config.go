// internal/pkg/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"gopkg.in/yaml.v3"

	"washa/internal/pkg/logger"
)

// Duration 是可以从 "2s" / "5m" 这类字符串反序列化的时长。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std 转换为标准库的 time.Duration。
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config 是所有服务共享的配置根结构。
type Config struct {
	Infra   InfraConfig   `yaml:"infra"`
	Payment PaymentConfig `yaml:"payment"`
}

type InfraConfig struct {
	Jaeger struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"jaeger"`
	Mysql struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers []string `yaml:"brokers"`
	} `yaml:"kafka"`
	Zookeeper struct {
		Servers []string `yaml:"servers"`
	} `yaml:"zookeeper"`
}

type PaymentConfig struct {
	Gateway struct {
		// 支付网关（移动钱包服务商）的基础地址
		BaseURL string `yaml:"baseUrl"`
	} `yaml:"gateway"`

	// 手机号归一化使用的默认国家码（不带加号）
	DefaultCountryCode string `yaml:"defaultCountryCode"`

	Poll struct {
		Interval    Duration `yaml:"interval"`
		MaxInterval Duration `yaml:"maxInterval"`
		Ceiling     Duration `yaml:"ceiling"`
	} `yaml:"poll"`

	// 同一关联ID的在途守卫的过期时间
	InflightTTL Duration `yaml:"inflightTtl"`

	// 对账工作进程自动处理的准入规则（CEL 表达式）
	ReconcilePolicy string `yaml:"reconcilePolicy"`

	Topics struct {
		Lifecycle     string `yaml:"lifecycle"`
		ReconcileJobs string `yaml:"reconcileJobs"`
		ManualReview  string `yaml:"manualReview"`
	} `yaml:"topics"`
}

var (
	currentConfig     Config
	configLock        sync.RWMutex
	nacosConfigClient config_client.IConfigClient
)

// GetCurrentConfig 返回当前生效的配置快照。
func GetCurrentConfig() Config {
	configLock.RLock()
	defer configLock.RUnlock()
	return currentConfig
}

func setCurrentConfig(cfg Config) {
	configLock.Lock()
	defer configLock.Unlock()
	currentConfig = cfg
}

// Init 加载配置。优先级：Nacos 配置中心 > 本地文件 > 内置默认值。
// 连接了配置中心时还会监听变更，实现运行期热更新（例如调整轮询上限）。
func Init() {
	cfg := defaultConfig()

	path := getEnv("CONFIG_PATH", "configs/config.yaml")
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			logger.Logger.Fatal().Err(err).Str("path", path).Msg("failed to parse config file")
		}
		logger.Logger.Info().Str("path", path).Msg("config loaded from file")
	}

	setCurrentConfig(cfg)

	if addrs := os.Getenv("NACOS_SERVER_ADDRS"); addrs != "" {
		initNacosConfig(addrs)
	}
}

func defaultConfig() Config {
	var cfg Config
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces")
	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Infra.Kafka.Brokers = []string{getEnv("KAFKA_BROKERS", "localhost:9092")}
	cfg.Infra.Zookeeper.Servers = []string{getEnv("ZK_SERVERS", "localhost:2181")}
	cfg.Infra.Mysql.DSN = getEnv("MYSQL_DSN", "washa:washa@tcp(localhost:3306)/washa?charset=utf8mb4&parseTime=True")

	cfg.Payment.Gateway.BaseURL = getEnv("GATEWAY_BASE_URL", "http://localhost:9080")
	cfg.Payment.DefaultCountryCode = "256"
	cfg.Payment.Poll.Interval = Duration(2 * time.Second)
	cfg.Payment.Poll.MaxInterval = Duration(15 * time.Second)
	cfg.Payment.Poll.Ceiling = Duration(90 * time.Second)
	cfg.Payment.InflightTTL = Duration(5 * time.Minute)
	cfg.Payment.ReconcilePolicy = `amount <= 1000000.0 && age_seconds < 172800`
	cfg.Payment.Topics.Lifecycle = "payment-events-v1"
	cfg.Payment.Topics.ReconcileJobs = "payment-reconcile-jobs-v1"
	cfg.Payment.Topics.ManualReview = "payment-manual-review-v1"
	return cfg
}

const nacosConfigDataID = "washa.yaml"

// initNacosConfig 从配置中心拉取配置并注册监听。
func initNacosConfig(addrs string) {
	serverConfigs, err := parseNacosAddrs(addrs)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("invalid nacos server address format")
	}

	clientConfig := *constant.NewClientConfig(
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogDir("/tmp/nacos/log"),
		constant.WithCacheDir("/tmp/nacos/cache"),
		constant.WithLogLevel("warn"),
		constant.WithNamespaceId(os.Getenv("NACOS_NAMESPACE")),
	)

	nacosConfigClient, err = clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  &clientConfig,
		ServerConfigs: serverConfigs,
	})
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to create nacos config client")
	}

	group := getEnv("NACOS_GROUP", "DEFAULT_GROUP")
	content, err := nacosConfigClient.GetConfig(vo.ConfigParam{DataId: nacosConfigDataID, Group: group})
	if err == nil && content != "" {
		applyRemoteConfig(content)
	}

	err = nacosConfigClient.ListenConfig(vo.ConfigParam{
		DataId: nacosConfigDataID,
		Group:  group,
		OnChange: func(namespace, group, dataId, data string) {
			applyRemoteConfig(data)
		},
	})
	if err != nil {
		logger.Logger.Error().Err(err).Msg("failed to listen nacos config changes")
	}
}

func applyRemoteConfig(content string) {
	cfg := GetCurrentConfig()
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		logger.Logger.Error().Err(err).Msg("ignoring malformed config from nacos")
		return
	}
	setCurrentConfig(cfg)
	logger.Logger.Info().Msg("config refreshed from nacos")
}
