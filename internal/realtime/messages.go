package realtime

import "encoding/json"

// 协议消息类型
const (
	TypeAuthenticate   = "authenticate"
	TypeAuthenticated  = "authenticated"
	TypeAuthFailed     = "authentication_failed"
	TypeAlert          = "alert"
	TypeHeartbeat      = "heartbeat"
	TypeHeartbeatAck   = "heartbeat_ack"
	TypeError          = "error"
)

// Message 协议帧（JSON）
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// AuthenticateData 客户端 authenticate 帧的 data
type AuthenticateData struct {
	Token string `json:"token"`
}

// AuthenticatedData 服务端 authenticated 帧的 data
type AuthenticatedData struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

// AlertData 服务端 alert 推送帧的 data
type AlertData struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	AlertType string `json:"alertType"`
	Severity  string `json:"severity"`
	Timestamp int64  `json:"timestamp"`
}

// NewMessage 构造一帧协议消息；data 为 nil 时省略 data 字段
func NewMessage(msgType string, data interface{}) Message {
	if data == nil {
		return Message{Type: msgType}
	}
	raw, _ := json.Marshal(data)
	return Message{Type: msgType, Data: raw}
}
