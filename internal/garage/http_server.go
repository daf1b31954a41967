package garage

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/GarageLink/GarageLink/internal/common/server"
	"github.com/gorilla/mux"
)

// HTTPServer 是调度方（游戏侧 command bridge / web 面板）对接的 HTTP 入口。
// 鉴权与 RBAC 由 server 的 middleware 链完成：打到 /v1/admin 下的请求
// 已经被确立过特权，这里与编排器都不再重复校验。
type HTTPServer struct {
	svc *Service
}

func NewHTTPServer(svc *Service) *HTTPServer {
	return &HTTPServer{svc: svc}
}

// Register 挂载业务路由。
func (s *HTTPServer) Register(r *mux.Router) {
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/vehicles", s.handleList).Methods(http.MethodGet)
	v1.HandleFunc("/actions/park", s.handlePark).Methods(http.MethodPost)
	v1.HandleFunc("/actions/retrieve", s.handleRetrieve).Methods(http.MethodPost)
	v1.HandleFunc("/actions/restore", s.handleRestore).Methods(http.MethodPost)

	admin := r.PathPrefix("/v1/admin").Subrouter()
	admin.HandleFunc("/vehicles", s.handleAdminCreate).Methods(http.MethodPost)
	admin.HandleFunc("/vehicles/give", s.handleAdminGive).Methods(http.MethodPost)
	admin.HandleFunc("/vehicles/{plate}", s.handleAdminDelete).Methods(http.MethodDelete)
	admin.HandleFunc("/players/{actorId}/vehicles", s.handleAdminList).Methods(http.MethodGet)
}

// actorID 取已鉴权身份；未启用鉴权的部署退回 X-Actor-ID 头
//（调度方已验证过的身份，见配置 auth.enabled）。
func actorID(r *http.Request) string {
	if ai, ok := server.AuthFromContext(r.Context()); ok && ai.Subject != "" {
		return ai.Subject
	}
	return strings.TrimSpace(r.Header.Get("X-Actor-ID"))
}

func statusFor(res ActionResult) int {
	if res.Success {
		return http.StatusOK
	}
	switch res.Reason {
	case KindNotFound, KindTargetNotFound:
		return http.StatusNotFound
	case KindNotOwner, KindPrivilegeRequired:
		return http.StatusForbidden
	case KindInsufficientFunds, KindChargeFailed:
		return http.StatusPaymentRequired
	case KindAlreadyInState, KindNotInVehicle:
		return http.StatusConflict
	case KindPlacementFailed:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeResult(w http.ResponseWriter, res ActionResult) {
	writeJSON(w, statusFor(res), res)
}

type listResponse struct {
	ActionResult
	Vehicles []Summary `json:"vehicles"`
}

func (s *HTTPServer) handleList(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		http.Error(w, "actor required", http.StatusBadRequest)
		return
	}
	vehicles, res := s.svc.List(r.Context(), actor)
	// 没有车不是错误：返回 200 + 空序列
	if !res.Success && res.Reason == KindNotFound {
		writeJSON(w, http.StatusOK, listResponse{ActionResult: res, Vehicles: []Summary{}})
		return
	}
	writeJSON(w, statusFor(res), listResponse{ActionResult: res, Vehicles: vehicles})
}

type parkRequest struct {
	VehicleID uint64 `json:"vehicle_id"` // actor 当前乘坐的车辆，0 表示不在车内
}

func (s *HTTPServer) handlePark(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		http.Error(w, "actor required", http.StatusBadRequest)
		return
	}
	var req parkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	writeResult(w, s.svc.Park(r.Context(), actor, req.VehicleID))
}

type retrieveRequest struct {
	VehicleID uint64   `json:"vehicle_id"`
	Position  Position `json:"position"` // actor 当前位置，由游戏侧提供
}

func (s *HTTPServer) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		http.Error(w, "actor required", http.StatusBadRequest)
		return
	}
	var req retrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VehicleID == 0 {
		http.Error(w, "vehicle_id required", http.StatusBadRequest)
		return
	}
	writeResult(w, s.svc.Retrieve(r.Context(), actor, req.VehicleID, req.Position))
}

type restoreRequest struct {
	VehicleID uint64 `json:"vehicle_id"`
}

func (s *HTTPServer) handleRestore(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		http.Error(w, "actor required", http.StatusBadRequest)
		return
	}
	var req restoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.VehicleID == 0 {
		http.Error(w, "vehicle_id required", http.StatusBadRequest)
		return
	}
	writeResult(w, s.svc.RestoreFromImpound(r.Context(), actor, req.VehicleID))
}

type adminCreateRequest struct {
	Model         string   `json:"model"`
	TargetActorID string   `json:"target_actor_id"` // 为空时归操作者本人
	Spawn         bool     `json:"spawn"`           // 是否立即在世界里生成
	Position      Position `json:"position"`
}

func (s *HTTPServer) handleAdminCreate(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		http.Error(w, "actor required", http.StatusBadRequest)
		return
	}
	var req adminCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Model) == "" {
		http.Error(w, "model required", http.StatusBadRequest)
		return
	}
	writeResult(w, s.svc.AdminCreate(r.Context(), actor, req.TargetActorID, req.Model, req.Position, req.Spawn))
}

type adminGiveRequest struct {
	TargetActorID string `json:"target_actor_id"`
	Model         string `json:"model"`
}

func (s *HTTPServer) handleAdminGive(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		http.Error(w, "actor required", http.StatusBadRequest)
		return
	}
	var req adminGiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		strings.TrimSpace(req.Model) == "" || strings.TrimSpace(req.TargetActorID) == "" {
		http.Error(w, "target_actor_id/model required", http.StatusBadRequest)
		return
	}
	writeResult(w, s.svc.AdminGive(r.Context(), actor, req.TargetActorID, req.Model))
}

func (s *HTTPServer) handleAdminDelete(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		http.Error(w, "actor required", http.StatusBadRequest)
		return
	}
	plate := strings.TrimSpace(mux.Vars(r)["plate"])
	if plate == "" {
		http.Error(w, "plate required", http.StatusBadRequest)
		return
	}
	writeResult(w, s.svc.AdminDelete(r.Context(), actor, plate))
}

func (s *HTTPServer) handleAdminList(w http.ResponseWriter, r *http.Request) {
	actor := actorID(r)
	if actor == "" {
		http.Error(w, "actor required", http.StatusBadRequest)
		return
	}
	target := strings.TrimSpace(mux.Vars(r)["actorId"])
	vehicles, res := s.svc.AdminListFor(r.Context(), actor, target)
	writeJSON(w, statusFor(res), listResponse{ActionResult: res, Vehicles: vehicles})
}
