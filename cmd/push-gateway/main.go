// cmd/push-gateway/main.go
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"washa/internal/pkg/bootstrap"
	"washa/internal/pkg/logger"
	"washa/internal/pkg/mq"
	"washa/internal/pkg/session"
	"washa/internal/service/payment/domain"
)

const (
	serviceName   = "push-gateway"
	consumerGroup = "push-gateway-group"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var (
	nodeID   = "push-gateway-" + uuid.New().String()[:8]
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool { // 简化处理，允许所有跨域
			return true
		},
	}
)

// Hub 维护所有活跃的连接，并负责消息推送
type Hub struct {
	clients    map[string]*Client // 使用UserID作为Key
	register   chan *Client
	unregister chan *Client
	lock       sync.RWMutex
}

func newHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.lock.Lock()
			h.clients[client.userID] = client
			h.lock.Unlock()
			logger.Logger.Info().Str("user_id", client.userID).Str("node", nodeID).Msg("client registered")
		case client := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[client.userID]; ok {
				delete(h.clients, client.userID)
				close(client.send)
			}
			h.lock.Unlock()
			logger.Logger.Info().Str("user_id", client.userID).Msg("client unregistered")
		}
	}
}

// push 把一条消息投递给指定用户，用户不在本节点时返回 false。
func (h *Hub) push(userID string, message []byte) bool {
	h.lock.RLock()
	client, ok := h.clients[userID]
	h.lock.RUnlock()
	if !ok {
		return false
	}
	select {
	case client.send <- message:
		return true
	default:
		// 发送缓冲已满，视为连接不健康
		return false
	}
}

// Client 是一个WebSocket连接的代表
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		// 客户端只发心跳，业务消息一律忽略
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func serveWs(hub *Hub, sessionMgr *session.Manager, w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256), userID: userID}
	client.hub.register <- client

	// 在Redis中登记会话，其他节点据此知道用户连在哪个网关上
	if err := sessionMgr.SetUserGateway(r.Context(), userID, nodeID); err != nil {
		logger.Logger.Error().Err(err).Str("user_id", userID).Msg("failed to set session")
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// consumeLifecycleEvents 消费支付生命周期事件，推送给在线的下单用户。
// 用户不在线或不在本节点时直接丢弃：状态的权威来源是支付服务的查询接口，
// 推送只是加速客户端感知的旁路。
func consumeLifecycleEvents(ctx context.Context, hub *Hub, brokers []string, topic string) {
	reader := mq.NewKafkaReader(brokers, topic, consumerGroup)
	defer reader.Close()

	logger.Logger.Info().Str("topic", topic).Msg("✅ lifecycle event consumer started")
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Logger.Error().Err(err).Msg("could not fetch lifecycle event, retrying")
			time.Sleep(1 * time.Second)
			continue
		}

		var event domain.LifecycleEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Logger.Error().Err(err).Msg("failed to unmarshal lifecycle event, skipping")
		} else if event.UserID != "" {
			if hub.push(event.UserID, msg.Value) {
				logger.Logger.Debug().
					Str("user_id", event.UserID).
					Str("correlation_id", event.CorrelationID).
					Str("state", string(event.State)).
					Msg("lifecycle event pushed")
			}
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			logger.Logger.Error().Err(err).Msg("failed to commit lifecycle event offset")
		}
	}
}

func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	sessionMgr := session.NewManager(cfg.Infra.Redis.Addr)
	hub := newHub()
	go hub.run()

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	go consumeLifecycleEvents(consumerCtx, hub, cfg.Infra.Kafka.Brokers, cfg.Payment.Topics.Lifecycle)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8088,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			appCtx.Mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
				serveWs(hub, sessionMgr, w, r)
			})
		},
		OnShutdown: func(ctx context.Context) {
			cancelConsumer()
		},
	})
}
