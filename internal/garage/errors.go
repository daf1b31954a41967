package garage

import "errors"

// 编排器内部用哨兵错误短路，出边界统一折算成 ActionResult。
var (
	ErrNotOwner          = errors.New("actor does not own this vehicle")
	ErrNotFound          = errors.New("vehicle not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrChargeFailed      = errors.New("ledger charge failed")
	ErrRecordWrite       = errors.New("vehicle record write failed")
	ErrPlacementFailed   = errors.New("world placement failed")
	ErrAlreadyInState    = errors.New("vehicle is not in the required state")
	ErrNotInVehicle      = errors.New("actor is not inside a vehicle")
	ErrTargetNotFound    = errors.New("target player not found")
	ErrPrivilegeRequired = errors.New("privilege required")
)

// ErrorKind 是对外暴露的错误分类（出现在 ActionResult.reason 里）。
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindNotOwner          ErrorKind = "not_owner"
	KindNotFound          ErrorKind = "not_found"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindChargeFailed      ErrorKind = "ledger_charge_failed"
	KindRecordWriteFailed ErrorKind = "record_write_failed"
	KindPlacementFailed   ErrorKind = "world_placement_failed"
	KindAlreadyInState    ErrorKind = "already_in_state"
	KindNotInVehicle      ErrorKind = "not_in_vehicle"
	KindTargetNotFound    ErrorKind = "target_not_found"
	KindPrivilegeRequired ErrorKind = "privilege_required"
	KindInternal          ErrorKind = "internal"
)

// ActionResult 是每个动作同步返回给调度方的结果。
// 副作用只有在 Success=true 时才可观察（已记录的部分失败例外，见 service.go）。
type ActionResult struct {
	Success bool      `json:"success"`
	Reason  ErrorKind `json:"reason,omitempty"`
	Message string    `json:"message,omitempty"`
	Vehicle *Summary  `json:"vehicle,omitempty"`
}

// KindOf 把哨兵错误折算成 ErrorKind；未知错误归为 internal。
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotOwner):
		return KindNotOwner
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrChargeFailed):
		return KindChargeFailed
	case errors.Is(err, ErrRecordWrite):
		return KindRecordWriteFailed
	case errors.Is(err, ErrPlacementFailed):
		return KindPlacementFailed
	case errors.Is(err, ErrAlreadyInState):
		return KindAlreadyInState
	case errors.Is(err, ErrNotInVehicle):
		return KindNotInVehicle
	case errors.Is(err, ErrTargetNotFound):
		return KindTargetNotFound
	case errors.Is(err, ErrPrivilegeRequired):
		return KindPrivilegeRequired
	}
	return KindInternal
}

func failure(err error, msg string) ActionResult {
	return ActionResult{Success: false, Reason: KindOf(err), Message: msg}
}

func success(msg string) ActionResult {
	return ActionResult{Success: true, Message: msg}
}
