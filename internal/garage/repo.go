package garage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Repo 是 Store 的 GORM 实现。所有写入都是单条记录、对调用方原子。
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

var _ Store = (*Repo)(nil)

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

func (r *Repo) Create(ctx context.Context, v *Vehicle) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	if v != nil && v.Status == "" {
		v.Status = StatusStored
	}
	return db.Create(v).Error
}

func (r *Repo) FindByID(ctx context.Context, id uint64) (*Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := db.Where("id = ?", id).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("vehicle %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &v, nil
}

func (r *Repo) FindByPlate(ctx context.Context, plate string) (*Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := db.Where("plate = ?", plate).First(&v).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("plate %s: %w", plate, ErrNotFound)
		}
		return nil, err
	}
	return &v, nil
}

// ListOwned 返回调用时刻的有限快照，按创建时间倒序。
func (r *Repo) ListOwned(ctx context.Context, ownerID string) ([]Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var vs []Vehicle
	if err := db.Where("owner_id = ?", ownerID).Order("created_at desc").Find(&vs).Error; err != nil {
		return nil, err
	}
	return vs, nil
}

// UpdateStatus 单语句更新状态及对应时间字段；目标行不存在视为写入失败。
func (r *Repo) UpdateStatus(ctx context.Context, id uint64, to Status, now time.Time) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	fields := map[string]interface{}{"status": to, "updated_at": now}
	switch to {
	case StatusStored:
		fields["stored_at"] = now
	case StatusImpound:
		fields["impounded_at"] = now
	}
	res := db.Model(&Vehicle{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("vehicle %d: %w", id, ErrRecordWrite)
	}
	return nil
}

func (r *Repo) DeleteByPlate(ctx context.Context, plate string) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	res := db.Where("plate = ?", plate).Delete(&Vehicle{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("plate %s: %w", plate, ErrNotFound)
	}
	return nil
}
