package world

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/GarageLink/GarageLink/internal/common/config"
	"github.com/GarageLink/GarageLink/internal/common/discovery"
	"github.com/GarageLink/GarageLink/internal/common/logger"
	"github.com/GarageLink/GarageLink/internal/common/middleware"
	"github.com/GarageLink/GarageLink/internal/garage"
	"github.com/hashicorp/consul/api"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
)

// Client 是世界放置服务（游戏侧 bridge）的 HTTP 客户端，实现 garage.Placement。
// 下游不可靠：所有调用都有超时上限并包在熔断器里。
type Client struct {
	baseURL string
	service string
	consul  *api.Client
	http    *http.Client
	breaker *middleware.CircuitBreaker
	log     logger.Logger
}

var _ garage.Placement = (*Client)(nil)

// NewClient 创建 world-bridge 客户端。cfg.BaseURL 为空时按 cfg.Service
// 名走 Consul 解析健康实例。
func NewClient(cfg config.WorldConfig, consulClient *api.Client, log logger.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	maxFail := cfg.BreakerMaxFail
	if maxFail <= 0 {
		maxFail = 5
	}
	reset := time.Duration(cfg.BreakerResetMS) * time.Millisecond
	if reset <= 0 {
		reset = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		service: cfg.Service,
		consul:  consulClient,
		http:    &http.Client{Timeout: timeout},
		breaker: middleware.NewCircuitBreaker("world-bridge", maxFail, reset),
		log:     log,
	}
}

func (c *Client) endpoint() (string, error) {
	if c.baseURL != "" {
		return c.baseURL, nil
	}
	addr, err := discovery.HealthyInstance(c.consul, c.service)
	if err != nil {
		return "", err
	}
	return "http://" + addr, nil
}

type spawnRequest struct {
	VehicleID uint64          `json:"vehicle_id"`
	Position  garage.Position `json:"position"`
}

type spawnResponse struct {
	NetID int64  `json:"net_id"`
	Error string `json:"error,omitempty"`
}

// Spawn 请求 bridge 在 at 处生成车辆实体，返回实体句柄。
func (c *Client) Spawn(ctx context.Context, vehicleID uint64, at garage.Position) (garage.EntityHandle, error) {
	var handle garage.EntityHandle
	err := c.breaker.Call(ctx, func() error {
		base, err := c.endpoint()
		if err != nil {
			return fmt.Errorf("resolve world-bridge: %w", err)
		}

		body, err := json.Marshal(spawnRequest{VehicleID: vehicleID, Position: at})
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/spawn", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		// 向下游注入 span context，便于跨服务追踪
		if span := opentracing.SpanFromContext(ctx); span != nil {
			ext.SpanKindRPCClient.Set(span)
			_ = opentracing.GlobalTracer().Inject(
				span.Context(), opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(req.Header))
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("world-bridge spawn: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if err != nil {
			return fmt.Errorf("world-bridge read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("world-bridge spawn status %d: %s", resp.StatusCode, string(raw))
		}

		var out spawnResponse
		if err := json.Unmarshal(raw, &out); err != nil {
			return fmt.Errorf("world-bridge decode response: %w", err)
		}
		if out.Error != "" {
			return fmt.Errorf("world-bridge spawn rejected: %s", out.Error)
		}
		handle = garage.EntityHandle{NetID: out.NetID}
		return nil
	})
	if err != nil {
		if c.log != nil {
			c.log.Warnf("spawn vehicle %d failed: %v", vehicleID, err)
		}
		return garage.EntityHandle{}, fmt.Errorf("%w: %v", garage.ErrPlacementFailed, err)
	}
	return handle, nil
}
