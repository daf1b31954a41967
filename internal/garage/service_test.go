package garage

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"
)

// callLog 按顺序记录各适配器被调用的动作，用于断言扣费先于一切写入。
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (c *callLog) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, name)
}

func (c *callLog) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

func (c *callLog) indexOf(name string) int {
	for i, v := range c.snapshot() {
		if v == name {
			return i
		}
	}
	return -1
}

type fakeStore struct {
	mu       sync.Mutex
	vehicles map[uint64]Vehicle
	nextID   uint64
	failSet  bool
	log      *callLog
}

func newFakeStore(log *callLog) *fakeStore {
	return &fakeStore{vehicles: make(map[uint64]Vehicle), log: log}
}

func (s *fakeStore) put(v Vehicle) Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == 0 {
		s.nextID++
		v.ID = s.nextID
	} else if v.ID > s.nextID {
		s.nextID = v.ID
	}
	s.vehicles[v.ID] = v
	return v
}

func (s *fakeStore) Create(ctx context.Context, v *Vehicle) error {
	s.log.add("create")
	*v = s.put(*v)
	return nil
}

func (s *fakeStore) FindByID(ctx context.Context, id uint64) (*Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := v
	return &out, nil
}

func (s *fakeStore) FindByPlate(ctx context.Context, plate string) (*Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.vehicles {
		if v.Plate == plate {
			out := v
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) ListOwned(ctx context.Context, ownerID string) ([]Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Vehicle
	for _, v := range s.vehicles {
		if v.OwnerID == ownerID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, id uint64, to Status, now time.Time) error {
	s.log.add("set_status:" + string(to))
	if s.failSet {
		return ErrRecordWrite
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return ErrRecordWrite
	}
	v.Status = to
	s.vehicles[id] = v
	return nil
}

func (s *fakeStore) DeleteByPlate(ctx context.Context, plate string) error {
	s.log.add("delete")
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, v := range s.vehicles {
		if v.Plate == plate {
			delete(s.vehicles, id)
			return nil
		}
	}
	return ErrNotFound
}

func (s *fakeStore) statusOf(t *testing.T, id uint64) Status {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		t.Fatalf("vehicle %d missing", id)
	}
	return v.Status
}

type fakeLedger struct {
	mu         sync.Mutex
	balances   map[string]int64
	failCharge bool
	log        *callLog
}

func (l *fakeLedger) HasFunds(ctx context.Context, actorID string, amount int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[actorID] >= amount, nil
}

func (l *fakeLedger) Charge(ctx context.Context, actorID string, amount int64) error {
	l.log.add("charge")
	if l.failCharge {
		return ErrChargeFailed
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[actorID] < amount {
		return ErrChargeFailed
	}
	l.balances[actorID] -= amount
	return nil
}

func (l *fakeLedger) balance(actorID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[actorID]
}

type fakePlacement struct {
	fail bool
	log  *callLog
}

func (p *fakePlacement) Spawn(ctx context.Context, vehicleID uint64, at Position) (EntityHandle, error) {
	p.log.add("spawn")
	if p.fail {
		return EntityHandle{}, ErrPlacementFailed
	}
	return EntityHandle{NetID: int64(vehicleID) + 1000}, nil
}

type fakeChars struct {
	chars map[string]string
}

func (c *fakeChars) CharID(ctx context.Context, actorID string) (string, error) {
	id, ok := c.chars[actorID]
	if !ok {
		return "", fmt.Errorf("no character for %s", actorID)
	}
	return id, nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Notify(actorID, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

type fixture struct {
	svc    *Service
	store  *fakeStore
	ledger *fakeLedger
	world  *fakePlacement
	notify *fakeNotifier
	log    *callLog
}

// 固定两个玩家：alice（角色 char-a）、bob（角色 char-b）。
func newFixture() *fixture {
	log := &callLog{}
	store := newFakeStore(log)
	led := &fakeLedger{balances: map[string]int64{"alice": 500, "bob": 500}, log: log}
	world := &fakePlacement{log: log}
	chars := &fakeChars{chars: map[string]string{"alice": "char-a", "bob": "char-b"}}
	notify := &fakeNotifier{}

	svc := NewService(Deps{
		Store:      store,
		Owners:     NewRegistry(store, chars),
		Ledger:     led,
		World:      world,
		Characters: chars,
		Notifier:   notify,
	}, Config{
		Costs: Costs{Parking: 100, Retrieval: 200, Impound: 300},
	})

	return &fixture{svc: svc, store: store, ledger: led, world: world, notify: notify, log: log}
}

func TestRetrieveSuccess(t *testing.T) {
	f := newFixture()
	v := f.store.put(Vehicle{ID: 7, Plate: "AAA111", Model: "sultan", OwnerID: "char-a", Status: StatusStored})

	res := f.svc.Retrieve(context.Background(), "alice", v.ID, Position{X: 1, Y: 2, Z: 3})
	if !res.Success {
		t.Fatalf("expected success, got reason=%s msg=%s", res.Reason, res.Message)
	}
	if got := f.ledger.balance("alice"); got != 300 {
		t.Fatalf("expected balance 300, got %d", got)
	}
	if got := f.store.statusOf(t, v.ID); got != StatusOutside {
		t.Fatalf("expected status outside, got %s", got)
	}

	// 扣费必须严格先于 spawn 和状态写入
	charge, spawn, set := f.log.indexOf("charge"), f.log.indexOf("spawn"), f.log.indexOf("set_status:outside")
	if charge == -1 || spawn == -1 || set == -1 {
		t.Fatalf("missing adapter calls: %v", f.log.snapshot())
	}
	if !(charge < spawn && spawn < set) {
		t.Fatalf("expected charge < spawn < set_status, got %v", f.log.snapshot())
	}
	if f.notify.count() != 1 {
		t.Fatalf("expected exactly one notification, got %d", f.notify.count())
	}
}

func TestRetrieveInsufficientFunds(t *testing.T) {
	f := newFixture()
	f.ledger.balances["alice"] = 50
	v := f.store.put(Vehicle{Plate: "AAA111", Model: "sultan", OwnerID: "char-a", Status: StatusStored})

	res := f.svc.Retrieve(context.Background(), "alice", v.ID, Position{})
	if res.Success || res.Reason != KindInsufficientFunds {
		t.Fatalf("expected insufficient_funds, got %+v", res)
	}
	if f.log.indexOf("charge") != -1 {
		t.Fatalf("expected no charge call, got %v", f.log.snapshot())
	}
	if got := f.ledger.balance("alice"); got != 50 {
		t.Fatalf("balance changed: %d", got)
	}
	if got := f.store.statusOf(t, v.ID); got != StatusStored {
		t.Fatalf("status changed: %s", got)
	}
}

func TestRetrieveNotStored(t *testing.T) {
	f := newFixture()
	v := f.store.put(Vehicle{Plate: "AAA111", Model: "sultan", OwnerID: "char-a", Status: StatusOutside})

	res := f.svc.Retrieve(context.Background(), "alice", v.ID, Position{})
	if res.Success || res.Reason != KindAlreadyInState {
		t.Fatalf("expected already_in_state, got %+v", res)
	}
	if f.log.indexOf("charge") != -1 {
		t.Fatalf("expected no charge call")
	}
}

func TestRetrieveNotOwner(t *testing.T) {
	f := newFixture()
	v := f.store.put(Vehicle{Plate: "AAA111", Model: "sultan", OwnerID: "char-a", Status: StatusStored})

	res := f.svc.Retrieve(context.Background(), "bob", v.ID, Position{})
	if res.Success || res.Reason != KindNotOwner {
		t.Fatalf("expected not_owner, got %+v", res)
	}
	if got := f.ledger.balance("bob"); got != 500 {
		t.Fatalf("balance changed: %d", got)
	}
	if got := f.store.statusOf(t, v.ID); got != StatusStored {
		t.Fatalf("status changed: %s", got)
	}
}

func TestRetrieveChargeRaceLost(t *testing.T) {
	f := newFixture()
	f.ledger.failCharge = true
	v := f.store.put(Vehicle{Plate: "AAA111", Model: "sultan", OwnerID: "char-a", Status: StatusStored})

	res := f.svc.Retrieve(context.Background(), "alice", v.ID, Position{})
	if res.Success || res.Reason != KindChargeFailed {
		t.Fatalf("expected ledger_charge_failed, got %+v", res)
	}
	if f.log.indexOf("spawn") != -1 {
		t.Fatalf("expected no spawn after failed charge, got %v", f.log.snapshot())
	}
	if got := f.store.statusOf(t, v.ID); got != StatusStored {
		t.Fatalf("status changed: %s", got)
	}
}

func TestRetrieveSpawnFailureKeepsStored(t *testing.T) {
	f := newFixture()
	f.world.fail = true
	v := f.store.put(Vehicle{Plate: "AAA111", Model: "sultan", OwnerID: "char-a", Status: StatusStored})

	res := f.svc.Retrieve(context.Background(), "alice", v.ID, Position{})
	if res.Success || res.Reason != KindPlacementFailed {
		t.Fatalf("expected world_placement_failed, got %+v", res)
	}
	// spawn 失败时状态必须仍是 stored；费用按既有行为不退
	if got := f.store.statusOf(t, v.ID); got != StatusStored {
		t.Fatalf("expected status stored after failed spawn, got %s", got)
	}
	if got := f.ledger.balance("alice"); got != 300 {
		t.Fatalf("expected charge kept (300), got %d", got)
	}
}

func TestParkSuccess(t *testing.T) {
	f := newFixture()
	v := f.store.put(Vehicle{Plate: "AAA111", Model: "sultan", OwnerID: "char-a", Status: StatusOutside})

	res := f.svc.Park(context.Background(), "alice", v.ID)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if got := f.store.statusOf(t, v.ID); got != StatusStored {
		t.Fatalf("expected stored, got %s", got)
	}
	if got := f.ledger.balance("alice"); got != 400 {
		t.Fatalf("expected balance 400, got %d", got)
	}
	charge, set := f.log.indexOf("charge"), f.log.indexOf("set_status:stored")
	if charge == -1 || set == -1 || charge > set {
		t.Fatalf("expected charge before set_status, got %v", f.log.snapshot())
	}
}

func TestParkNotInVehicle(t *testing.T) {
	f := newFixture()
	res := f.svc.Park(context.Background(), "alice", 0)
	if res.Success || res.Reason != KindNotInVehicle {
		t.Fatalf("expected not_in_vehicle, got %+v", res)
	}
}

func TestParkNotOwner(t *testing.T) {
	f := newFixture()
	v := f.store.put(Vehicle{Plate: "AAA111", Model: "sultan", OwnerID: "char-a", Status: StatusOutside})

	res := f.svc.Park(context.Background(), "bob", v.ID)
	if res.Success || res.Reason != KindNotOwner {
		t.Fatalf("expected not_owner, got %+v", res)
	}
	if got := f.store.statusOf(t, v.ID); got != StatusOutside {
		t.Fatalf("status changed: %s", got)
	}
	if got := f.ledger.balance("bob"); got != 500 {
		t.Fatalf("balance changed: %d", got)
	}
	if f.log.indexOf("charge") != -1 {
		t.Fatalf("expected no charge call")
	}
}

func TestParkRecordWriteFailureKeepsCharge(t *testing.T) {
	f := newFixture()
	f.store.failSet = true
	v := f.store.put(Vehicle{Plate: "AAA111", Model: "sultan", OwnerID: "char-a", Status: StatusOutside})

	res := f.svc.Park(context.Background(), "alice", v.ID)
	if res.Success || res.Reason != KindRecordWriteFailed {
		t.Fatalf("expected record_write_failed, got %+v", res)
	}
	// 已知的部分失败：扣费成功、写入失败、不退款
	if got := f.ledger.balance("alice"); got != 400 {
		t.Fatalf("expected charge kept (400), got %d", got)
	}
}

func TestRestoreFromImpound(t *testing.T) {
	f := newFixture()
	v := f.store.put(Vehicle{Plate: "AAA111", Model: "sultan", OwnerID: "char-a", Status: StatusImpound})

	res := f.svc.RestoreFromImpound(context.Background(), "alice", v.ID)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if got := f.store.statusOf(t, v.ID); got != StatusStored {
		t.Fatalf("expected stored, got %s", got)
	}
	if got := f.ledger.balance("alice"); got != 200 {
		t.Fatalf("expected balance 200, got %d", got)
	}
}

func TestRestoreNotImpounded(t *testing.T) {
	f := newFixture()
	v := f.store.put(Vehicle{Plate: "AAA111", Model: "sultan", OwnerID: "char-a", Status: StatusStored})

	res := f.svc.RestoreFromImpound(context.Background(), "alice", v.ID)
	if res.Success || res.Reason != KindAlreadyInState {
		t.Fatalf("expected already_in_state, got %+v", res)
	}
	if f.log.indexOf("charge") != -1 {
		t.Fatalf("expected no charge attempt")
	}
}

func TestAdminDelete(t *testing.T) {
	f := newFixture()
	f.store.put(Vehicle{Plate: "ABC123", Model: "sultan", OwnerID: "char-a", Status: StatusStored})

	res := f.svc.AdminDelete(context.Background(), "bob", "ABC123")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if _, err := f.store.FindByPlate(context.Background(), "ABC123"); err == nil {
		t.Fatalf("expected plate gone after delete")
	}

	res = f.svc.AdminDelete(context.Background(), "bob", "ABC123")
	if res.Success || res.Reason != KindNotFound {
		t.Fatalf("expected not_found on second delete, got %+v", res)
	}
}

func TestAdminGiveBypassesGates(t *testing.T) {
	f := newFixture()
	// 目标余额清零也必须成功：管理路径不走费用闸和所有权闸
	f.ledger.balances["alice"] = 0

	res := f.svc.AdminGive(context.Background(), "bob", "alice", "blista")
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if f.log.indexOf("charge") != -1 {
		t.Fatalf("admin path must not charge")
	}
	if res.Vehicle == nil || res.Vehicle.Status != StatusStored {
		t.Fatalf("expected stored vehicle summary, got %+v", res.Vehicle)
	}

	vs, err := f.store.ListOwned(context.Background(), "char-a")
	if err != nil || len(vs) != 1 {
		t.Fatalf("expected one vehicle for char-a, got %d err=%v", len(vs), err)
	}
}

func TestAdminGiveTargetNotFound(t *testing.T) {
	f := newFixture()
	res := f.svc.AdminGive(context.Background(), "bob", "ghost", "blista")
	if res.Success || res.Reason != KindTargetNotFound {
		t.Fatalf("expected target_not_found, got %+v", res)
	}
}

func TestAdminCreateWithSpawn(t *testing.T) {
	f := newFixture()
	res := f.svc.AdminCreate(context.Background(), "bob", "", "dominator", Position{X: 10}, true)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Vehicle == nil || res.Vehicle.Status != StatusOutside {
		t.Fatalf("expected outside vehicle, got %+v", res.Vehicle)
	}
	if res.Vehicle.Plate == "" {
		t.Fatalf("expected generated plate")
	}
}

func TestAdminCreateSpawnFailureLeavesStored(t *testing.T) {
	f := newFixture()
	f.world.fail = true
	res := f.svc.AdminCreate(context.Background(), "bob", "", "dominator", Position{}, true)
	if res.Success || res.Reason != KindPlacementFailed {
		t.Fatalf("expected world_placement_failed, got %+v", res)
	}
	// 记录已创建且仍为 stored
	vs, err := f.store.ListOwned(context.Background(), "char-b")
	if err != nil || len(vs) != 1 {
		t.Fatalf("expected created record, got %d err=%v", len(vs), err)
	}
	if vs[0].Status != StatusStored {
		t.Fatalf("expected stored after failed spawn, got %s", vs[0].Status)
	}
}

func TestListSnapshotIdempotent(t *testing.T) {
	f := newFixture()
	f.store.put(Vehicle{Plate: "AAA111", Model: "sultan", OwnerID: "char-a", Status: StatusStored})
	f.store.put(Vehicle{Plate: "AAA222", Model: "blista", OwnerID: "char-a", Status: StatusImpound})

	first, res := f.svc.List(context.Background(), "alice")
	if !res.Success || len(first) != 2 {
		t.Fatalf("expected 2 vehicles, got %d res=%+v", len(first), res)
	}
	second, _ := f.svc.List(context.Background(), "alice")

	sort := func(vs []Summary) map[uint64]Summary {
		m := make(map[uint64]Summary, len(vs))
		for _, v := range vs {
			m[v.ID] = v
		}
		return m
	}
	if !reflect.DeepEqual(sort(first), sort(second)) {
		t.Fatalf("snapshots differ: %v vs %v", first, second)
	}
}

func TestListEmptyIsNotAnError(t *testing.T) {
	f := newFixture()
	vs, res := f.svc.List(context.Background(), "alice")
	if vs == nil || len(vs) != 0 {
		t.Fatalf("expected empty snapshot, got %v", vs)
	}
	if res.Message == "" {
		t.Fatalf("expected a notification message")
	}
}

func TestAdminListFor(t *testing.T) {
	f := newFixture()
	f.store.put(Vehicle{Plate: "AAA111", Model: "sultan", OwnerID: "char-a", Status: StatusStored})

	vs, res := f.svc.AdminListFor(context.Background(), "bob", "alice")
	if !res.Success || len(vs) != 1 {
		t.Fatalf("expected 1 vehicle, got %d res=%+v", len(vs), res)
	}

	_, res = f.svc.AdminListFor(context.Background(), "bob", "ghost")
	if res.Success || res.Reason != KindTargetNotFound {
		t.Fatalf("expected target_not_found, got %+v", res)
	}
}
