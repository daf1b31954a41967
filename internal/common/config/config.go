package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config 应用配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Consul   ConsulConfig   `json:"consul"`
	Jaeger   JaegerConfig   `json:"jaeger"`
	Log      LogConfig      `json:"log"`
	Auth     AuthConfig     `json:"auth"`
	Garage   GarageConfig   `json:"garage"`
	World    WorldConfig    `json:"world"`
}

// ServerConfig 服务配置。
type ServerConfig struct {
	Name     string `json:"name"`      // 服务名称（Consul 注册名）
	Host     string `json:"host"`      // 监听地址
	HTTPPort int    `json:"http_port"` // HTTP 端口
}

// DatabaseConfig 数据库配置。driver 支持 mysql / sqlite。
type DatabaseConfig struct {
	Driver   string `json:"driver"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	Path     string `json:"path"` // sqlite 文件路径
	MaxIdle  int    `json:"max_idle"`
	MaxOpen  int    `json:"max_open"`
}

// ConsulConfig Consul 配置。
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger 配置。
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// LogConfig 日志配置。
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

// AuthConfig JWT 鉴权与 RBAC 配置。
type AuthConfig struct {
	Enabled     bool                `json:"enabled"`
	JWTSecret   string              `json:"jwt_secret"`
	Issuer      string              `json:"issuer"`
	Audience    string              `json:"audience"`
	PublicPaths []string            `json:"public_paths"` // 免鉴权路径前缀
	RBAC        map[string][]string `json:"rbac"`         // 路径前缀 -> 要求角色
	AdminRole   string              `json:"admin_role"`   // 管理命令要求的角色
}

// GarageConfig 车辆生命周期的费用与车牌配置。
// 启动时注入编排器，运行期不变；不要当全局可变状态用。
type GarageConfig struct {
	ParkingCost   int64  `json:"parking_cost"`
	RetrievalCost int64  `json:"retrieval_cost"`
	ImpoundCost   int64  `json:"impound_cost"`
	PlatePrefix   string `json:"plate_prefix"`
}

// WorldConfig 世界放置服务（游戏侧 bridge）配置。
// base_url 为空时按 service 名走 Consul 解析。
type WorldConfig struct {
	BaseURL        string `json:"base_url"`
	Service        string `json:"service"`
	TimeoutMS      int    `json:"timeout_ms"`
	BreakerMaxFail int    `json:"breaker_max_failures"`
	BreakerResetMS int    `json:"breaker_reset_ms"`
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置；文件不存在时退回默认配置（开发环境）。
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = &Config{}
		if _, err = os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			globalConfig = defaultConfig()
			err = nil
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置。
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// defaultConfig 默认配置（开发环境）。
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:     "garage-service",
			Host:     "0.0.0.0",
			HTTPPort: 8080,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "garagelink",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "localhost:6831",
			Sampler:  1.0,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/app.log",
		},
		Auth: AuthConfig{
			Enabled:     false,
			Issuer:      "garagelink",
			Audience:    "garagelink",
			PublicPaths: []string{"/healthz", "/metrics", "/v1/login"},
			AdminRole:   "admin",
		},
		Garage: GarageConfig{
			ParkingCost:   100,
			RetrievalCost: 200,
			ImpoundCost:   300,
		},
		World: WorldConfig{
			Service:        "world-bridge",
			TimeoutMS:      5000,
			BreakerMaxFail: 5,
			BreakerResetMS: 10000,
		},
	}
}
