package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrInsufficientBalance 余额不足（包括预检通过后输掉并发竞态的情况）。
var ErrInsufficientBalance = errors.New("insufficient balance")

// Account 是 accounts 表的 GORM 模型，每个 actor 一个钱包。
// 金额单位：分。
type Account struct {
	ActorID   string    `gorm:"primaryKey;size:36"`
	Balance   int64     `gorm:"not null;default:0"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// Service 货币校验/扣费边界。余额永远现查现用，任何一层都不缓存。
type Service struct {
	db *gorm.DB
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

func (s *Service) withCtx(ctx context.Context) *gorm.DB {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx)
}

// Balance 查询当前余额；账户不存在按 0 处理。
func (s *Service) Balance(ctx context.Context, actorID string) (int64, error) {
	db := s.withCtx(ctx)
	if db == nil {
		return 0, fmt.Errorf("ledger db is nil")
	}
	var a Account
	if err := db.Where("actor_id = ?", actorID).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return a.Balance, nil
}

// HasFunds 只读预检，不产生任何变更。
func (s *Service) HasFunds(ctx context.Context, actorID string, amount int64) (bool, error) {
	if amount <= 0 {
		return true, nil
	}
	balance, err := s.Balance(ctx, actorID)
	if err != nil {
		return false, err
	}
	return balance >= amount, nil
}

// Charge 条件扣费：单条语句 `balance = balance - ? WHERE balance >= ?`，
// 由数据库保证原子性。预检通过后被并发消费抢先时这里返回
// ErrInsufficientBalance，调用方把它当作扣费失败处理。
func (s *Service) Charge(ctx context.Context, actorID string, amount int64) error {
	if amount <= 0 {
		return nil
	}
	db := s.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("ledger db is nil")
	}
	res := db.Model(&Account{}).
		Where("actor_id = ? AND balance >= ?", actorID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("actor %s charge %d: %w", actorID, amount, ErrInsufficientBalance)
	}
	return nil
}

// Deposit 入账（管理操作与 seeding 用）。账户不存在时自动开户。
func (s *Service) Deposit(ctx context.Context, actorID string, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit amount must be positive")
	}
	db := s.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("ledger db is nil")
	}
	res := db.Model(&Account{}).
		Where("actor_id = ?", actorID).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return db.Create(&Account{ActorID: actorID, Balance: amount}).Error
	}
	return nil
}
