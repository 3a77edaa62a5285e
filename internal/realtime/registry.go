package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// connState 连接状态机：unauthenticated → authenticated → closed
type connState int

const (
	stateUnauthenticated connState = iota
	stateAuthenticated
	stateClosed
)

// socket 注册表对底层 websocket 连接的依赖（*websocket.Conn 满足；测试用 fake）
type socket interface {
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// connection 一条 push 连接
type connection struct {
	id     string
	sock   socket
	userID string
	role   string

	mu    sync.Mutex // 串行化写与状态变更
	state connState
	alive bool // 上个 ping 周期内收到过 pong
}

func (c *connection) writeJSON(timeout time.Duration, v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateClosed {
		return websocket.ErrCloseSent
	}
	_ = c.sock.SetWriteDeadline(time.Now().Add(timeout))
	return c.sock.WriteJSON(v)
}

// Registry 按用户索引全部在线连接并负责心跳保活
// 同一用户可以有多条并发连接（多设备）；connect/disconnect/send 持续交错，
// 索引由 RWMutex 保护。
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]map[string]*connection
	conns  map[string]*connection

	heartbeatInterval time.Duration
	writeTimeout      time.Duration
	logger            *zap.Logger
}

// NewRegistry 创建连接注册表
func NewRegistry(heartbeatInterval, writeTimeout time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		byUser:            make(map[string]map[string]*connection),
		conns:             make(map[string]*connection),
		heartbeatInterval: heartbeatInterval,
		writeTimeout:      writeTimeout,
		logger:            logger,
	}
}

// track 纳管一条尚未认证的连接
// 新连接视为存活，首个心跳周期只发 ping，不检查应答。
func (r *Registry) track(c *connection) {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.id] = c
}

// authenticate 连接通过认证后按用户建立索引
func (r *Registry) authenticate(c *connection, userID, role string) {
	c.mu.Lock()
	c.state = stateAuthenticated
	c.userID = userID
	c.role = role
	c.alive = true
	c.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]*connection)
	}
	r.byUser[userID][c.id] = c
}

// remove 关闭连接并将其从所有索引中摘除；重复调用安全
func (r *Registry) remove(c *connection) {
	c.mu.Lock()
	alreadyClosed := c.state == stateClosed
	c.state = stateClosed
	c.mu.Unlock()

	if !alreadyClosed {
		_ = c.sock.Close()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, c.id)
	if c.userID != "" {
		if userConns, ok := r.byUser[c.userID]; ok {
			delete(userConns, c.id)
			if len(userConns) == 0 {
				delete(r.byUser, c.userID)
			}
		}
	}
}

// SendToUser 向某用户的全部在线连接推送一条消息
// 没有在线连接是 no-op，不是错误；写失败的连接视为已死并摘除。
func (r *Registry) SendToUser(userID string, msg Message) int {
	r.mu.RLock()
	userConns := make([]*connection, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		userConns = append(userConns, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range userConns {
		c.mu.Lock()
		open := c.state == stateAuthenticated
		c.mu.Unlock()
		if !open {
			r.remove(c)
			continue
		}
		if err := c.writeJSON(r.writeTimeout, msg); err != nil {
			r.logger.Warn("Realtime send failed, dropping connection",
				zap.String("conn_id", c.id),
				zap.String("user_id", userID),
				zap.Error(err),
			)
			r.remove(c)
			continue
		}
		delivered++
	}
	return delivered
}

// ConnectionsForUser 某用户当前在线连接数
func (r *Registry) ConnectionsForUser(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID])
}

// Run 心跳循环：每个周期 ping 所有连接；上个周期没有应答 pong 的连接
// 视为已死，强制关闭并摘除。ctx 取消时退出。
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pingAll()
		}
	}
}

func (r *Registry) pingAll() {
	r.mu.RLock()
	all := make([]*connection, 0, len(r.conns))
	for _, c := range r.conns {
		all = append(all, c)
	}
	r.mu.RUnlock()

	for _, c := range all {
		c.mu.Lock()
		answered := c.alive
		c.alive = false // 由 pong handler 重新置位
		closed := c.state == stateClosed
		c.mu.Unlock()

		if closed {
			r.remove(c)
			continue
		}
		if !answered {
			r.logger.Info("Connection missed heartbeat, closing",
				zap.String("conn_id", c.id),
				zap.String("user_id", c.userID),
			)
			r.remove(c)
			continue
		}
		if err := c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(r.writeTimeout)); err != nil {
			r.remove(c)
		}
	}
}

// markAlive pong（或任意入站流量）证明连接存活
func (r *Registry) markAlive(c *connection) {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}
