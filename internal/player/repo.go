package player

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, p *Player) error {
	if r == nil || r.db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *Repo) FindByID(ctx context.Context, id string) (*Player, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var p Player
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) FindByUsername(ctx context.Context, username string) (*Player, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var p Player
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) List(ctx context.Context, offset, limit int) ([]Player, int64, error) {
	if r == nil || r.db == nil {
		return nil, 0, fmt.Errorf("repo db is nil")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&Player{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var players []Player
	if err := r.db.WithContext(ctx).Order("created_at desc").Offset(offset).Limit(limit).Find(&players).Error; err != nil {
		return nil, 0, err
	}
	return players, total, nil
}

// Resolver 把 actor（玩家账号）ID 解析成稳定角色 ID，实现 garage.CharacterResolver。
type Resolver struct {
	repo *Repo
}

func NewResolver(repo *Repo) *Resolver {
	return &Resolver{repo: repo}
}

func (r *Resolver) CharID(ctx context.Context, actorID string) (string, error) {
	if r == nil || r.repo == nil {
		return "", fmt.Errorf("resolver repo is nil")
	}
	p, err := r.repo.FindByID(ctx, actorID)
	if err != nil {
		return "", err
	}
	if p.CharID == "" {
		return "", fmt.Errorf("player %s has no character", actorID)
	}
	return p.CharID, nil
}
