package player

import (
	"strings"
	"time"
)

// Player 是 players 表的 GORM 模型：游戏账号与它的稳定角色身份。
type Player struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Username     string    `gorm:"uniqueIndex;size:64;not null"`
	PasswordHash string    `gorm:"size:128;not null"`
	PasswordSalt string    `gorm:"size:64;not null"`
	CharID       string    `gorm:"uniqueIndex;size:36;not null"` // 角色 ID，车辆记录的 OwnerID 指向它
	Roles        string    `gorm:"size:256;not null"`            // 逗号分隔，例如 "player,admin"
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (p Player) RolesSlice() []string {
	if strings.TrimSpace(p.Roles) == "" {
		return nil
	}
	parts := strings.Split(p.Roles, ",")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func RolesJoin(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return strings.Join(out, ",")
}
