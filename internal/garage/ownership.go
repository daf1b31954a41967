package garage

import "context"

// Registry 是 OwnershipRegistry 的默认实现：
// 把 actor 解析成稳定角色 ID，与记录的 OwnerID 比对。
// 任何一步查不到都返回 false（fail-closed），调用方把 false 一律当“非车主”。
type Registry struct {
	store Store
	chars CharacterResolver
}

func NewRegistry(store Store, chars CharacterResolver) *Registry {
	return &Registry{store: store, chars: chars}
}

var _ OwnershipRegistry = (*Registry)(nil)

func (r *Registry) IsOwner(ctx context.Context, actorID string, vehicleID uint64) bool {
	if r == nil || r.store == nil || r.chars == nil {
		return false
	}
	charID, err := r.chars.CharID(ctx, actorID)
	if err != nil || charID == "" {
		return false
	}
	v, err := r.store.FindByID(ctx, vehicleID)
	if err != nil || v == nil {
		return false
	}
	return v.OwnerID == charID
}
