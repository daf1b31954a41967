package garage

import (
	"fmt"
	"time"
)

// AllowTransition 定义车辆状态机的允许流转关系。
// stored <-> outside 由入库/取车驱动；进入 impound 由外部扣押事件驱动；
// impound 只能缴费恢复到 stored。
var AllowTransition = map[Status][]Status{
	StatusStored:  {StatusOutside, StatusImpound},
	StatusOutside: {StatusStored, StatusImpound},
	StatusImpound: {StatusStored},
}

// CanTransition 判断 from -> to 是否是一个允许的状态流转。
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	allowed, ok := AllowTransition[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyTransition 对车辆记录应用状态变更，并维护关键时间字段。
// 仅在 CanTransition 返回 true 时生效。
func ApplyTransition(v *Vehicle, to Status, now time.Time) error {
	if v == nil {
		return fmt.Errorf("vehicle is nil")
	}
	from := v.Status
	if !CanTransition(from, to) {
		return fmt.Errorf("invalid vehicle status transition: %s -> %s", from, to)
	}

	v.Status = to

	switch to {
	case StatusStored:
		t := now
		v.StoredAt = &t
	case StatusImpound:
		t := now
		v.ImpoundedAt = &t
	}
	return nil
}
