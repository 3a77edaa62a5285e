package domain

import "time"

// AlertType 警报类型
type AlertType string

const (
	AlertScamDetection        AlertType = "scam_detection"
	AlertFrequentUnknownCalls AlertType = "frequent_unknown_calls"
	AlertSuspiciousSMSPattern AlertType = "suspicious_sms_pattern"
	AlertUnusualActivity      AlertType = "unusual_activity"
	AlertFamilyMessage        AlertType = "family_message"
)

// Severity 警报级别
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DeliveryStatus 警报投递状态
type DeliveryStatus string

const (
	DeliveryPending      DeliveryStatus = "pending"
	DeliverySent         DeliveryStatus = "sent"
	DeliveryDelivered    DeliveryStatus = "delivered"
	DeliveryRead         DeliveryStatus = "read"
	DeliveryAcknowledged DeliveryStatus = "acknowledged"
	DeliveryDismissed    DeliveryStatus = "dismissed"
)

// Alert 发送给监护人的警报
// Metadata, when present, is ciphertext (encrypted by the privacy layer).
type Alert struct {
	ID             string         `json:"id"`
	SenderID       string         `json:"sender_id"`   // senior
	ReceiverID     string         `json:"receiver_id"` // guardian
	Type           AlertType      `json:"type"`
	Severity       Severity       `json:"severity"`
	Title          string         `json:"title"`
	Message        string         `json:"message"`
	Metadata       *string        `json:"metadata,omitempty"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	SentAt         time.Time      `json:"sent_at"`
	ReadAt         *time.Time     `json:"read_at,omitempty"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
}

// ConnectionStatus 家庭关系状态
type ConnectionStatus string

const (
	ConnectionPending    ConnectionStatus = "pending"
	ConnectionActive     ConnectionStatus = "active"
	ConnectionSuspended  ConnectionStatus = "suspended"
	ConnectionTerminated ConnectionStatus = "terminated"
)

// FamilyConnection senior 与 guardian 的授权关系
type FamilyConnection struct {
	ID          string           `json:"id"`
	SeniorID    string           `json:"senior_id"`
	GuardianID  string           `json:"guardian_id"`
	Status      ConnectionStatus `json:"status"`
	Permissions []string         `json:"permissions"`
}

// NotificationPreferences 监护人各通知渠道的开关
type NotificationPreferences struct {
	Email bool `json:"email"`
	SMS   bool `json:"sms"`
	Push  bool `json:"push"`
}
