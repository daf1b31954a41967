package world

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/GarageLink/GarageLink/internal/common/logger"
	"github.com/GarageLink/GarageLink/internal/garage"
)

// Notifier 把面向玩家的通知推给游戏侧 bridge。
// fire-and-forget：投递在后台进行，失败只记日志，绝不影响动作结果。
type Notifier struct {
	client *Client
	log    logger.Logger
}

var _ garage.Notifier = (*Notifier)(nil)

func NewNotifier(client *Client, log logger.Logger) *Notifier {
	return &Notifier{client: client, log: log}
}

type notifyRequest struct {
	ActorID string `json:"actor_id"`
	Message string `json:"message"`
}

func (n *Notifier) Notify(actorID, message string) {
	if n == nil || n.client == nil || actorID == "" || message == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		base, err := n.client.endpoint()
		if err != nil {
			if n.log != nil {
				n.log.Debugf("notify %s dropped: %v", actorID, err)
			}
			return
		}
		body, _ := json.Marshal(notifyRequest{ActorID: actorID, Message: message})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/notify", bytes.NewReader(body))
		if err != nil {
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := n.client.http.Do(req)
		if err != nil {
			if n.log != nil {
				n.log.Debugf("notify %s dropped: %v", actorID, err)
			}
			return
		}
		_ = resp.Body.Close()
	}()
}
