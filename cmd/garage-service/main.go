package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/GarageLink/GarageLink/internal/common/config"
	"github.com/GarageLink/GarageLink/internal/common/db"
	"github.com/GarageLink/GarageLink/internal/common/discovery"
	"github.com/GarageLink/GarageLink/internal/common/logger"
	"github.com/GarageLink/GarageLink/internal/common/server"
	"github.com/GarageLink/GarageLink/internal/common/tracing"
	"github.com/GarageLink/GarageLink/internal/garage"
	"github.com/GarageLink/GarageLink/internal/ledger"
	"github.com/GarageLink/GarageLink/internal/player"
	"github.com/GarageLink/GarageLink/internal/world"
	"github.com/gorilla/mux"
)

var (
	configPath  = flag.String("config", "configs/garage-service.json", "配置文件路径")
	consulKVKey = flag.String("consul-kv-key", "", "从 Consul KV 读取配置的 key（优先于 -config）")
	consulAddr  = flag.String("consul-addr", "localhost", "Consul 地址（配合 -consul-kv-key）")
	consulPort  = flag.Int("consul-port", 8500, "Consul 端口（配合 -consul-kv-key）")
)

func loadConfig() (*config.Config, error) {
	if *consulKVKey != "" {
		return config.LoadConfigFromConsulKV(*consulAddr, *consulPort, *consulKVKey)
	}
	return config.LoadConfig(*configPath)
}

func main() {
	flag.Parse()

	// 加载配置
	cfg, err := loadConfig()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	tracer, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}
	_ = tracer

	// 初始化数据库
	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		log.Fatalf("failed to init database: %v", err)
	}
	if err := gormDB.AutoMigrate(&garage.Vehicle{}, &ledger.Account{}, &player.Player{}); err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	// Consul 客户端供 world-bridge 解析用（失败不阻塞启动）
	consulClient, err := discovery.NewConsulClient(cfg.Consul.Host, cfg.Consul.Port)
	if err != nil {
		log.Warnf("failed to connect to Consul: %v", err)
		consulClient = nil
	}

	// 组装编排器及其协作者
	garageRepo := garage.NewRepo(gormDB)
	playerRepo := player.NewRepo(gormDB)
	resolver := player.NewResolver(playerRepo)
	worldClient := world.NewClient(cfg.World, consulClient, log)

	svc := garage.NewService(garage.Deps{
		Store:      garageRepo,
		Owners:     garage.NewRegistry(garageRepo, resolver),
		Ledger:     ledger.NewService(gormDB),
		World:      worldClient,
		Characters: resolver,
		Notifier:   world.NewNotifier(worldClient, log),
		Log:        log,
	}, garage.Config{
		Costs: garage.Costs{
			Parking:   cfg.Garage.ParkingCost,
			Retrieval: cfg.Garage.RetrievalCost,
			Impound:   cfg.Garage.ImpoundCost,
		},
		PlatePrefix:  cfg.Garage.PlatePrefix,
		SpawnTimeout: time.Duration(cfg.World.TimeoutMS) * time.Millisecond,
	})

	garageHTTP := garage.NewHTTPServer(svc)
	playerHTTP := player.NewHTTPServer(playerRepo, cfg.Auth, log)

	// 启动统一的 HTTP 服务模板
	if err := server.RunHTTPServer(cfg, log, func(r *mux.Router) error {
		garageHTTP.Register(r)
		playerHTTP.Register(r)
		return nil
	}); err != nil {
		log.Fatalf("garage-service exited with error: %v", err)
	}
}
