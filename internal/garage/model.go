package garage

import "time"

// Status 车辆生命周期状态枚举（持久化为字符串）。
type Status string

const (
	StatusStored  Status = "stored"  // 已入库（车库中，世界里无实体）
	StatusOutside Status = "outside" // 在外（世界里最多存在一个实体）
	StatusImpound Status = "impound" // 被扣押，需缴费取回
)

// Valid 判断是否是已知状态。
func (s Status) Valid() bool {
	switch s {
	case StatusStored, StatusOutside, StatusImpound:
		return true
	}
	return false
}

// Vehicle 是 vehicles 表的 GORM 模型。
// 记录是“车辆在哪”的唯一事实来源：status=outside 时世界里至多一个实体。
type Vehicle struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"`

	Plate   string `gorm:"uniqueIndex;size:16;not null"`    // 车牌，创建后不可变，管理命令按它检索
	Model   string `gorm:"size:64;not null"`                // 车型标识
	OwnerID string `gorm:"index;size:36"`                   // 归属角色（character）ID
	Status  Status `gorm:"type:varchar(16);index;not null"` // 当前状态

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`

	StoredAt    *time.Time // 最近一次入库时间
	ImpoundedAt *time.Time // 最近一次被扣押时间
}

// Position 世界坐标，由调用方（游戏侧）提供，本服务不做解释。
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// EntityHandle 世界实体句柄，由 placement 服务返回。
type EntityHandle struct {
	NetID int64 `json:"net_id"`
}

// Summary 是返回给前端/列表命令的快照行。
type Summary struct {
	ID     uint64 `json:"id"`
	Plate  string `json:"plate"`
	Model  string `json:"model"`
	Status Status `json:"status"`
}

// Summarize 把一批记录转成快照序列（调用时刻的有限快照，不是 live view）。
func Summarize(vs []Vehicle) []Summary {
	out := make([]Summary, 0, len(vs))
	for i := range vs {
		v := vs[i]
		out = append(out, Summary{ID: v.ID, Plate: v.Plate, Model: v.Model, Status: v.Status})
	}
	return out
}
