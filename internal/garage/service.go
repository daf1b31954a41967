package garage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GarageLink/GarageLink/internal/common/logger"
	"github.com/GarageLink/GarageLink/internal/common/metrics"
	"github.com/google/uuid"
)

// Store 是车辆记录的持久化契约（单条记录写入对调用方原子）。
type Store interface {
	Create(ctx context.Context, v *Vehicle) error
	FindByID(ctx context.Context, id uint64) (*Vehicle, error)
	FindByPlate(ctx context.Context, plate string) (*Vehicle, error)
	ListOwned(ctx context.Context, ownerID string) ([]Vehicle, error)
	UpdateStatus(ctx context.Context, id uint64, to Status, now time.Time) error
	DeleteByPlate(ctx context.Context, plate string) error
}

// OwnershipRegistry 判断 actor 是否合法持有某条车辆记录。
// 约定 fail-closed：任何查询失败都按 false 处理，不向上抛错。
type OwnershipRegistry interface {
	IsOwner(ctx context.Context, actorID string, vehicleID uint64) bool
}

// Ledger 是货币校验/扣费边界。HasFunds 只读预检；Charge 真正扣费，
// 可能在预检通过后因并发消费而失败（接受这个竞态，见 Charge 调用处）。
type Ledger interface {
	HasFunds(ctx context.Context, actorID string, amount int64) (bool, error)
	Charge(ctx context.Context, actorID string, amount int64) error
}

// Placement 负责在世界里生成车辆实体。spawn 是世界实例的唯一创建路径。
type Placement interface {
	Spawn(ctx context.Context, vehicleID uint64, at Position) (EntityHandle, error)
}

// CharacterResolver 把 actor 身份解析成稳定的角色 ID（车辆归属的主体）。
type CharacterResolver interface {
	CharID(ctx context.Context, actorID string) (string, error)
}

// Notifier 面向玩家的通知下沉口。fire-and-forget：结果不影响控制流。
type Notifier interface {
	Notify(actorID, message string)
}

// Costs 各动作的费用（单位：分），启动时从配置注入，运行期不变。
type Costs struct {
	Parking   int64
	Retrieval int64
	Impound   int64
}

// Config 编排器的不可变配置。
type Config struct {
	Costs        Costs
	PlatePrefix  string        // 生成车牌的前缀，可为空
	SpawnTimeout time.Duration // 单次 placement 调用的超时上限
}

// Deps 编排器的外部协作者（全部走窄接口，方便测试替换）。
type Deps struct {
	Store      Store
	Owners     OwnershipRegistry
	Ledger     Ledger
	World      Placement
	Characters CharacterResolver
	Notifier   Notifier
	Log        logger.Logger
}

// Service 是生命周期编排器：对每类动作按固定顺序串联
// 所有权校验 -> 费用闸 -> 记录写入 -> 世界放置，首个失败即短路。
// 顺序约定：扣费永远是第一个产生副作用的步骤，记录写入先于/伴随世界放置，
// 这样任何中途失败的最大代价只是“玩家多付了钱”，不会出现记录与世界不一致
// 之外不可恢复的腐坏。已知的部分失败（扣费成功、后续失败、不退款）沿用
// 既有行为，不做补偿回滚。
type Service struct {
	store  Store
	owners OwnershipRegistry
	ledger Ledger
	world  Placement
	chars  CharacterResolver
	notify Notifier
	log    logger.Logger
	cfg    Config

	// 按车辆 ID 的互斥域，覆盖 charge -> spawn -> setStatus 全程，
	// 所有退出路径都在返回前释放。
	locks sync.Map
}

func NewService(d Deps, cfg Config) *Service {
	if cfg.SpawnTimeout <= 0 {
		cfg.SpawnTimeout = 5 * time.Second
	}
	return &Service{
		store:  d.Store,
		owners: d.Owners,
		ledger: d.Ledger,
		world:  d.World,
		chars:  d.Characters,
		notify: d.Notifier,
		log:    d.Log,
		cfg:    cfg,
	}
}

func (s *Service) lockVehicle(id uint64) func() {
	m, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) send(actorID, msg string) {
	if s.notify == nil || msg == "" {
		return
	}
	s.notify.Notify(actorID, msg)
}

func (s *Service) finish(action, actorID string, res ActionResult) ActionResult {
	metrics.ObserveAction(action, res.Success, string(res.Reason))
	s.send(actorID, res.Message)
	if s.log != nil && !res.Success {
		s.log.WithFields(map[string]interface{}{
			"action": action,
			"actor":  actorID,
			"reason": string(res.Reason),
		}).Info("garage action rejected")
	}
	return res
}

// List 返回 actor 名下车辆的快照序列。没有车不算错误，返回空序列。
func (s *Service) List(ctx context.Context, actorID string) ([]Summary, ActionResult) {
	charID, err := s.chars.CharID(ctx, actorID)
	if err != nil {
		return nil, s.finish("list", actorID, failure(ErrNotFound, "You do not own any vehicles."))
	}
	vs, err := s.store.ListOwned(ctx, charID)
	if err != nil {
		return nil, s.finish("list", actorID, failure(fmt.Errorf("list owned: %w", err), "Failed to look up your vehicles."))
	}
	if len(vs) == 0 {
		return []Summary{}, s.finish("list", actorID, failure(ErrNotFound, "You do not own any vehicles."))
	}
	out := Summarize(vs)
	return out, s.finish("list", actorID, success(formatVehicleLines("Your Vehicles", out)))
}

// Park 把 actor 当前乘坐的车辆入库。currentVehicleID 由调度方提供
//（游戏侧知道玩家坐在哪辆车里），为 0 表示不在车内。
func (s *Service) Park(ctx context.Context, actorID string, currentVehicleID uint64) ActionResult {
	if currentVehicleID == 0 {
		return s.finish("park", actorID, failure(ErrNotInVehicle, "You are not inside of a vehicle."))
	}

	v, err := s.store.FindByID(ctx, currentVehicleID)
	if err != nil {
		return s.finish("park", actorID, failure(ErrNotFound, "You are not the owner of this vehicle."))
	}
	if !s.owners.IsOwner(ctx, actorID, v.ID) {
		msg := fmt.Sprintf("You are not the owner of this vehicle with plate number %s.", v.Plate)
		return s.finish("park", actorID, failure(ErrNotOwner, msg))
	}

	cost := s.cfg.Costs.Parking
	if ok, err := s.ledger.HasFunds(ctx, actorID, cost); err != nil || !ok {
		msg := fmt.Sprintf("You need $%d to park this vehicle.", cost)
		return s.finish("park", actorID, failure(ErrInsufficientFunds, msg))
	}

	unlock := s.lockVehicle(v.ID)
	defer unlock()

	// 扣费必须是第一个产生副作用的步骤：这里失败时其余状态原样未动。
	if err := s.ledger.Charge(ctx, actorID, cost); err != nil {
		msg := fmt.Sprintf("You need $%d to park this vehicle.", cost)
		return s.finish("park", actorID, failure(ErrChargeFailed, msg))
	}

	// 扣费成功后的写入失败：费用不退，按既有行为上报失败（已知部分失败）。
	now := time.Now()
	if err := ApplyTransition(v, StatusStored, now); err != nil {
		return s.finish("park", actorID, failure(ErrRecordWrite, "Failed to store your vehicle."))
	}
	if err := s.store.UpdateStatus(ctx, v.ID, v.Status, now); err != nil {
		return s.finish("park", actorID, failure(ErrRecordWrite, "Failed to store your vehicle."))
	}

	msg := fmt.Sprintf("You paid $%d to park your vehicle %s with plate number %s", cost, v.Model, v.Plate)
	res := success(msg)
	res.Vehicle = &Summary{ID: v.ID, Plate: v.Plate, Model: v.Model, Status: v.Status}
	return s.finish("park", actorID, res)
}

// Retrieve 把一辆已入库的车辆取出并在 actor 当前位置生成实体。
func (s *Service) Retrieve(ctx context.Context, actorID string, vehicleID uint64, at Position) ActionResult {
	v, err := s.store.FindByID(ctx, vehicleID)
	if err != nil {
		msg := fmt.Sprintf("Vehicle with id %d does not exist or is not stored.", vehicleID)
		return s.finish("retrieve", actorID, failure(ErrNotFound, msg))
	}
	if v.Status != StatusStored {
		msg := fmt.Sprintf("Vehicle with id %d does not exist or is not stored.", vehicleID)
		return s.finish("retrieve", actorID, failure(ErrAlreadyInState, msg))
	}
	if !s.owners.IsOwner(ctx, actorID, v.ID) {
		return s.finish("retrieve", actorID, failure(ErrNotOwner, "You are not the owner of this vehicle."))
	}

	cost := s.cfg.Costs.Retrieval
	if ok, err := s.ledger.HasFunds(ctx, actorID, cost); err != nil || !ok {
		msg := fmt.Sprintf("You need $%d to retrieve this vehicle.", cost)
		return s.finish("retrieve", actorID, failure(ErrInsufficientFunds, msg))
	}

	unlock := s.lockVehicle(v.ID)
	defer unlock()

	if err := s.ledger.Charge(ctx, actorID, cost); err != nil {
		msg := fmt.Sprintf("You need $%d to retrieve this vehicle.", cost)
		return s.finish("retrieve", actorID, failure(ErrChargeFailed, msg))
	}

	// spawn 在 setStatus 之前：spawn 失败时记录必须仍是 stored，
	// 绝不能出现 outside 记录却没有世界实体。
	spawnCtx, cancel := context.WithTimeout(ctx, s.cfg.SpawnTimeout)
	defer cancel()
	if _, err := s.world.Spawn(spawnCtx, v.ID, at); err != nil {
		return s.finish("retrieve", actorID, failure(ErrPlacementFailed, "Failed to spawn vehicle."))
	}

	now := time.Now()
	if err := ApplyTransition(v, StatusOutside, now); err != nil {
		return s.finish("retrieve", actorID, failure(ErrRecordWrite, "Failed to spawn vehicle."))
	}
	if err := s.store.UpdateStatus(ctx, v.ID, v.Status, now); err != nil {
		// 实体已生成而记录写入失败：上报失败，留给管理侧对账。
		if s.log != nil {
			s.log.Errorf("vehicle %d spawned but status write failed: %v", v.ID, err)
		}
		return s.finish("retrieve", actorID, failure(ErrRecordWrite, "Failed to spawn vehicle."))
	}

	msg := fmt.Sprintf("You paid $%d to retrieve your vehicle", cost)
	res := success(msg)
	res.Vehicle = &Summary{ID: v.ID, Plate: v.Plate, Model: v.Model, Status: v.Status}
	return s.finish("retrieve", actorID, res)
}

// RestoreFromImpound 缴费把被扣押的车辆恢复为已入库。
func (s *Service) RestoreFromImpound(ctx context.Context, actorID string, vehicleID uint64) ActionResult {
	v, err := s.store.FindByID(ctx, vehicleID)
	if err != nil {
		msg := fmt.Sprintf("Vehicle with id %d is not impounded.", vehicleID)
		return s.finish("restore", actorID, failure(ErrNotFound, msg))
	}
	if v.Status != StatusImpound {
		msg := fmt.Sprintf("Vehicle with id %d is not impounded.", vehicleID)
		return s.finish("restore", actorID, failure(ErrAlreadyInState, msg))
	}
	if !s.owners.IsOwner(ctx, actorID, v.ID) {
		return s.finish("restore", actorID, failure(ErrNotOwner, "You are not the owner of this vehicle."))
	}

	cost := s.cfg.Costs.Impound
	if ok, err := s.ledger.HasFunds(ctx, actorID, cost); err != nil || !ok {
		msg := fmt.Sprintf("You need $%d to restore this vehicle.", cost)
		return s.finish("restore", actorID, failure(ErrInsufficientFunds, msg))
	}

	unlock := s.lockVehicle(v.ID)
	defer unlock()

	if err := s.ledger.Charge(ctx, actorID, cost); err != nil {
		msg := fmt.Sprintf("You need $%d to restore this vehicle.", cost)
		return s.finish("restore", actorID, failure(ErrChargeFailed, msg))
	}
	now := time.Now()
	if err := ApplyTransition(v, StatusStored, now); err != nil {
		return s.finish("restore", actorID, failure(ErrRecordWrite, "Failed to restore your vehicle."))
	}
	if err := s.store.UpdateStatus(ctx, v.ID, v.Status, now); err != nil {
		return s.finish("restore", actorID, failure(ErrRecordWrite, "Failed to restore your vehicle."))
	}

	msg := fmt.Sprintf("Successfully restored vehicle with id %d", vehicleID)
	res := success(msg)
	res.Vehicle = &Summary{ID: v.ID, Plate: v.Plate, Model: v.Model, Status: v.Status}
	return s.finish("restore", actorID, res)
}

// AdminDelete 按车牌删除记录。权限由外部调度方（RBAC 中间件）预先确立，
// 编排器信任请求上的特权标记，不再重复校验（见 http_server.go 的路由挂载）。
func (s *Service) AdminDelete(ctx context.Context, actorID, plate string) ActionResult {
	plate = strings.TrimSpace(plate)
	if _, err := s.store.FindByPlate(ctx, plate); err != nil {
		msg := fmt.Sprintf("Vehicle with plate number %s does not exist.", plate)
		return s.finish("admin_delete", actorID, failure(ErrNotFound, msg))
	}
	if err := s.store.DeleteByPlate(ctx, plate); err != nil {
		return s.finish("admin_delete", actorID, failure(ErrRecordWrite, "Failed to delete vehicle."))
	}
	if s.log != nil {
		s.log.WithFields(map[string]interface{}{"actor": actorID, "plate": plate}).Warn("vehicle deleted by admin")
	}
	msg := fmt.Sprintf("Successfully deleted vehicle with plate number %s", plate)
	return s.finish("admin_delete", actorID, success(msg))
}

// AdminCreate 创建一条归 targetActor 所有的记录（targetActorID 为空时归
// 操作者本人），spawnNow 时随即在 at 处生成实体并置为 outside。
// 不走费用闸、不走所有权闸，但记录与世界放置仍然走同一套适配器契约。
func (s *Service) AdminCreate(ctx context.Context, actorID, targetActorID, model string, at Position, spawnNow bool) ActionResult {
	model = strings.TrimSpace(model)
	if model == "" {
		return s.finish("admin_create", actorID, failure(ErrNotFound, "Vehicle model is required."))
	}
	if targetActorID == "" {
		targetActorID = actorID
	}
	charID, err := s.chars.CharID(ctx, targetActorID)
	if err != nil {
		msg := fmt.Sprintf("No player found with id %s.", targetActorID)
		return s.finish("admin_create", actorID, failure(ErrTargetNotFound, msg))
	}

	v := &Vehicle{
		Plate:   s.newPlate(),
		Model:   model,
		OwnerID: charID,
		Status:  StatusStored,
	}
	if err := s.store.Create(ctx, v); err != nil {
		return s.finish("admin_create", actorID, failure(ErrRecordWrite, "Failed to create vehicle."))
	}

	if spawnNow {
		spawnCtx, cancel := context.WithTimeout(ctx, s.cfg.SpawnTimeout)
		defer cancel()
		if _, err := s.world.Spawn(spawnCtx, v.ID, at); err != nil {
			// 记录已创建（stored），只有放置失败，单独上报。
			return s.finish("admin_create", actorID, failure(ErrPlacementFailed, "Failed to spawn vehicle."))
		}
		now := time.Now()
		if err := ApplyTransition(v, StatusOutside, now); err != nil {
			return s.finish("admin_create", actorID, failure(ErrRecordWrite, "Failed to spawn vehicle."))
		}
		if err := s.store.UpdateStatus(ctx, v.ID, v.Status, now); err != nil {
			return s.finish("admin_create", actorID, failure(ErrRecordWrite, "Failed to spawn vehicle."))
		}
	}

	msg := fmt.Sprintf("Successfully spawned vehicle %s with plate number %s and set it as owned", v.Model, v.Plate)
	if !spawnNow {
		msg = fmt.Sprintf("Successfully created vehicle %s with plate number %s", v.Model, v.Plate)
	}
	res := success(msg)
	res.Vehicle = &Summary{ID: v.ID, Plate: v.Plate, Model: v.Model, Status: v.Status}
	return s.finish("admin_create", actorID, res)
}

// AdminGive 给目标玩家创建一辆已入库的车。不扣费、不校验来源所有权。
func (s *Service) AdminGive(ctx context.Context, actorID, targetActorID, model string) ActionResult {
	model = strings.TrimSpace(model)
	if model == "" {
		return s.finish("admin_give", actorID, failure(ErrNotFound, "Vehicle model is required."))
	}
	charID, err := s.chars.CharID(ctx, targetActorID)
	if err != nil {
		msg := fmt.Sprintf("No player found with id %s.", targetActorID)
		return s.finish("admin_give", actorID, failure(ErrTargetNotFound, msg))
	}

	v := &Vehicle{
		Plate:   s.newPlate(),
		Model:   model,
		OwnerID: charID,
		Status:  StatusStored,
	}
	if err := s.store.Create(ctx, v); err != nil {
		return s.finish("admin_give", actorID, failure(ErrRecordWrite, "Failed to create vehicle."))
	}

	msg := fmt.Sprintf("Successfully gave vehicle %s to player with id %s", model, targetActorID)
	res := success(msg)
	res.Vehicle = &Summary{ID: v.ID, Plate: v.Plate, Model: v.Model, Status: v.Status}
	return s.finish("admin_give", actorID, res)
}

// AdminListFor 查看目标玩家名下的车辆。
func (s *Service) AdminListFor(ctx context.Context, actorID, targetActorID string) ([]Summary, ActionResult) {
	charID, err := s.chars.CharID(ctx, targetActorID)
	if err != nil {
		msg := fmt.Sprintf("No player found with id %s.", targetActorID)
		return nil, s.finish("admin_list", actorID, failure(ErrTargetNotFound, msg))
	}
	vs, err := s.store.ListOwned(ctx, charID)
	if err != nil {
		return nil, s.finish("admin_list", actorID, failure(fmt.Errorf("list owned: %w", err), "Failed to look up vehicles."))
	}
	if len(vs) == 0 {
		msg := fmt.Sprintf("No vehicles found for player with id %s.", targetActorID)
		return []Summary{}, s.finish("admin_list", actorID, failure(ErrNotFound, msg))
	}
	out := Summarize(vs)
	header := fmt.Sprintf("Player (%s) Owned Vehicles", targetActorID)
	return out, s.finish("admin_list", actorID, success(formatVehicleLines(header, out)))
}

func (s *Service) newPlate() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	plate := raw[:8]
	if p := strings.TrimSpace(s.cfg.PlatePrefix); p != "" {
		n := len(p)
		if n > 4 {
			n = 4
		}
		plate = p[:n] + raw[:8-n]
	}
	return plate
}

func formatVehicleLines(header string, vs []Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--------- %s ---------", header)
	for _, v := range vs {
		fmt.Fprintf(&b, "\nID: %d | Plate: %s | Model: %s | Status: %s", v.ID, v.Plate, v.Model, v.Status)
	}
	return b.String()
}
