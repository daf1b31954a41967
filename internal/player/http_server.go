package player

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/GarageLink/GarageLink/internal/common/auth"
	"github.com/GarageLink/GarageLink/internal/common/config"
	"github.com/GarageLink/GarageLink/internal/common/logger"
	"github.com/gorilla/mux"
)

// HTTPServer 暴露玩家登录入口，签发供 web 面板 / 调度方使用的 JWT。
type HTTPServer struct {
	repo    *Repo
	authCfg config.AuthConfig
	log     logger.Logger
}

func NewHTTPServer(repo *Repo, authCfg config.AuthConfig, log logger.Logger) *HTTPServer {
	return &HTTPServer{repo: repo, authCfg: authCfg, log: log}
}

// Register 挂载路由。/v1/login 需要配置在 auth.public_paths 里。
func (s *HTTPServer) Register(r *mux.Router) {
	r.HandleFunc("/v1/login", s.handleLogin).Methods(http.MethodPost)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	ActorID   string `json:"actor_id"`
	CharID    string `json:"char_id"`
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		http.Error(w, "username/password required", http.StatusBadRequest)
		return
	}

	p, err := s.repo.FindByUsername(r.Context(), username)
	if err != nil || !VerifyPassword(req.Password, p.PasswordSalt, p.PasswordHash) {
		// 统一返回 401，不区分“用户不存在”和“密码错误”
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, expiresAt, err := auth.GenerateAccessToken(s.authCfg, p.ID, p.CharID, p.RolesSlice(), 24*time.Hour)
	if err != nil {
		if s.log != nil {
			s.log.Errorf("failed to issue token for %s: %v", username, err)
		}
		http.Error(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(loginResponse{
		Token:     token,
		ExpiresAt: expiresAt.Unix(),
		ActorID:   p.ID,
		CharID:    p.CharID,
	})
}
