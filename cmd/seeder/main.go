package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/GarageLink/GarageLink/internal/common/config"
	"github.com/GarageLink/GarageLink/internal/common/db"
	"github.com/GarageLink/GarageLink/internal/garage"
	"github.com/GarageLink/GarageLink/internal/ledger"
	"github.com/GarageLink/GarageLink/internal/player"
	"github.com/google/uuid"
)

// 开发/演示环境的种子数据：两个玩家（一个带 admin 角色）、钱包余额、
// 几辆处于不同状态的车。重复执行时已存在的数据会报错跳过。

var (
	configPath = flag.String("config", "configs/garage-service.json", "配置文件路径")
)

type seedPlayer struct {
	username string
	password string
	roles    []string
	balance  int64
}

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	gormDB, err := db.Open(cfg.Database)
	if err != nil {
		panic(fmt.Sprintf("failed to init database: %v", err))
	}
	if err := gormDB.AutoMigrate(&garage.Vehicle{}, &ledger.Account{}, &player.Player{}); err != nil {
		panic(fmt.Sprintf("failed to migrate schema: %v", err))
	}

	ctx := context.Background()
	playerRepo := player.NewRepo(gormDB)
	garageRepo := garage.NewRepo(gormDB)
	ledgerSvc := ledger.NewService(gormDB)

	seeds := []seedPlayer{
		{username: "alice", password: "alice123", roles: []string{"player"}, balance: 50_000},
		{username: "bob", password: "bob123", roles: []string{"player", "admin"}, balance: 100_000},
	}

	chars := make(map[string]string, len(seeds))
	for _, sp := range seeds {
		salt, err := player.GenerateSaltHex()
		if err != nil {
			panic(fmt.Sprintf("salt: %v", err))
		}
		hash, err := player.HashPassword(sp.password, salt)
		if err != nil {
			panic(fmt.Sprintf("hash: %v", err))
		}
		p := &player.Player{
			ID:           uuid.NewString(),
			Username:     sp.username,
			PasswordHash: hash,
			PasswordSalt: salt,
			CharID:       uuid.NewString(),
			Roles:        player.RolesJoin(sp.roles),
		}
		if err := playerRepo.Create(ctx, p); err != nil {
			fmt.Printf("skip player %s: %v\n", sp.username, err)
			continue
		}
		if err := ledgerSvc.Deposit(ctx, p.ID, sp.balance); err != nil {
			fmt.Printf("deposit for %s failed: %v\n", sp.username, err)
		}
		chars[sp.username] = p.CharID
		fmt.Printf("seeded player %s actor=%s char=%s\n", sp.username, p.ID, p.CharID)
	}

	vehicles := []garage.Vehicle{
		{Plate: "ALICE001", Model: "sultan", OwnerID: chars["alice"], Status: garage.StatusStored},
		{Plate: "ALICE002", Model: "blista", OwnerID: chars["alice"], Status: garage.StatusImpound},
		{Plate: "BOB00001", Model: "dominator", OwnerID: chars["bob"], Status: garage.StatusOutside},
	}
	for i := range vehicles {
		v := vehicles[i]
		if v.OwnerID == "" {
			continue
		}
		if err := garageRepo.Create(ctx, &v); err != nil {
			fmt.Printf("skip vehicle %s: %v\n", v.Plate, err)
			continue
		}
		fmt.Printf("seeded vehicle id=%d plate=%s status=%s\n", v.ID, v.Plate, v.Status)
	}

	fmt.Println("seed complete")
}
