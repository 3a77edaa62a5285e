package realtime

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lisafeets/callguard/internal/auth"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// 移动客户端不带 Origin；浏览器侧由 token 把关
		return true
	},
}

// Gateway websocket 接入层
type Gateway struct {
	registry *Registry
	authSvc  auth.Service
	logger   *zap.Logger
}

// NewGateway 创建 Gateway
func NewGateway(registry *Registry, authSvc auth.Service, logger *zap.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		authSvc:  authSvc,
		logger:   logger,
	}
}

// HandleWS 处理一条 websocket 连接的完整生命周期
// 协议：连接建立后处于 unauthenticated，第一个被接受的消息类型是
// authenticate；凭据有效 → authenticated 并按用户建立索引；无效 →
// 发送 authentication_failed 后关闭。未认证时收到其它类型一律拒绝，
// 状态不变。
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	conn := &connection{
		id:    uuid.New().String(),
		sock:  ws,
		state: stateUnauthenticated,
	}
	g.registry.track(conn)
	defer g.registry.remove(conn)

	ws.SetPongHandler(func(string) error {
		g.registry.markAlive(conn)
		return nil
	})

	g.logger.Debug("Websocket client connected", zap.String("conn_id", conn.id))

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			g.logger.Debug("Websocket client disconnected",
				zap.String("conn_id", conn.id),
				zap.Error(err),
			)
			return
		}
		g.registry.markAlive(conn)

		conn.mu.Lock()
		state := conn.state
		conn.mu.Unlock()

		switch state {
		case stateUnauthenticated:
			if msg.Type != TypeAuthenticate {
				_ = conn.writeJSON(g.registry.writeTimeout, NewMessage(TypeError, map[string]string{
					"reason": "authentication required",
				}))
				continue
			}
			if !g.handleAuthenticate(r.Context(), conn, msg) {
				return
			}
		case stateAuthenticated:
			g.handleAuthenticated(conn, msg)
		default:
			return
		}
	}
}

// handleAuthenticate 返回 false 表示连接应当关闭
func (g *Gateway) handleAuthenticate(ctx context.Context, conn *connection, msg Message) bool {
	var data AuthenticateData
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.Token == "" {
		_ = conn.writeJSON(g.registry.writeTimeout, NewMessage(TypeAuthFailed, nil))
		return false
	}

	claims, err := g.authSvc.ValidateToken(ctx, data.Token)
	if err != nil {
		g.logger.Info("Websocket authentication failed",
			zap.String("conn_id", conn.id),
			zap.Error(err),
		)
		_ = conn.writeJSON(g.registry.writeTimeout, NewMessage(TypeAuthFailed, nil))
		return false
	}

	g.registry.authenticate(conn, claims.UserID, claims.Role)
	g.logger.Info("Websocket client authenticated",
		zap.String("conn_id", conn.id),
		zap.String("user_id", claims.UserID),
		zap.String("role", claims.Role),
	)
	_ = conn.writeJSON(g.registry.writeTimeout, NewMessage(TypeAuthenticated, AuthenticatedData{
		UserID: claims.UserID,
		Role:   claims.Role,
	}))
	return true
}

func (g *Gateway) handleAuthenticated(conn *connection, msg Message) {
	switch msg.Type {
	case TypeHeartbeat:
		_ = conn.writeJSON(g.registry.writeTimeout, NewMessage(TypeHeartbeatAck, nil))
	case TypeAuthenticate:
		// 已认证连接重复 authenticate：忽略
	default:
		g.logger.Debug("Unhandled realtime message type",
			zap.String("conn_id", conn.id),
			zap.String("type", msg.Type),
		)
	}
}
