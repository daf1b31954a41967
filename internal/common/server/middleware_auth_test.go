package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GarageLink/GarageLink/internal/common/config"
	"github.com/golang-jwt/jwt/v5"
)

func signTestToken(t *testing.T, cfg config.AuthConfig, subject, charID string, roles []string) string {
	t.Helper()
	now := time.Now()
	claims := struct {
		Roles  []string `json:"roles"`
		CharID string   `json:"char_id"`
		jwt.RegisteredClaims
	}{
		Roles:  roles,
		CharID: charID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestJWTAuthAndRBAC(t *testing.T) {
	authCfg := config.AuthConfig{
		Enabled:     true,
		JWTSecret:   "test-secret",
		Issuer:      "garagelink",
		Audience:    "garagelink",
		PublicPaths: []string{"/healthz"},
		RBAC: map[string][]string{
			"/v1/admin": {"admin"},
		},
	}

	var seen AuthInfo
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ai, ok := AuthFromContext(r.Context()); ok {
			seen = ai
		}
		w.WriteHeader(http.StatusOK)
	})
	h := Chain(inner, JWTAuth(authCfg, nil), RBAC(authCfg))

	// 管理员 token 走管理路径：放行并带上身份信息
	adminToken := signTestToken(t, authCfg, "u-1", "char-1", []string{"player", "admin"})
	req := httptest.NewRequest(http.MethodDelete, "/v1/admin/vehicles/ABC123", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if seen.Subject != "u-1" || seen.CharID != "char-1" {
		t.Fatalf("auth info mismatch: %+v", seen)
	}

	// 普通玩家 token 走管理路径：403
	playerToken := signTestToken(t, authCfg, "u-2", "char-2", []string{"player"})
	req = httptest.NewRequest(http.MethodDelete, "/v1/admin/vehicles/ABC123", nil)
	req.Header.Set("Authorization", "Bearer "+playerToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}

	// 普通玩家 token 走普通路径：放行
	req = httptest.NewRequest(http.MethodGet, "/v1/vehicles", nil)
	req.Header.Set("Authorization", "Bearer "+playerToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// 没有 token：401
	req = httptest.NewRequest(http.MethodGet, "/v1/vehicles", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	// 错误签名：401
	badCfg := authCfg
	badCfg.JWTSecret = "other-secret"
	badToken := signTestToken(t, badCfg, "u-3", "char-3", []string{"player"})
	req = httptest.NewRequest(http.MethodGet, "/v1/vehicles", nil)
	req.Header.Set("Authorization", "Bearer "+badToken)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}

	// 公开路径不需要 token
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for public path, got %d", rec.Code)
	}
}

func TestRBACUnconfiguredPathAllows(t *testing.T) {
	authCfg := config.AuthConfig{
		Enabled:   true,
		JWTSecret: "test-secret",
		RBAC:      map[string][]string{"/v1/admin": {"admin"}},
	}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RBAC(authCfg)(inner)

	// RBAC 单独使用时，未配置前缀的路径直接放行（鉴权在 JWTAuth 层）
	req := httptest.NewRequest(http.MethodGet, "/v1/vehicles", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	// 命中受限前缀但 ctx 里没有身份：401
	req = httptest.NewRequest(http.MethodGet, "/v1/admin/vehicles", nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
