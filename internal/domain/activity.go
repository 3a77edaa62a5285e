package domain

import (
	"fmt"
	"time"
)

// CallDirection 通话方向
type CallDirection string

const (
	CallIncoming CallDirection = "incoming"
	CallOutgoing CallDirection = "outgoing"
	CallMissed   CallDirection = "missed"
)

// ValidCallDirection reports whether d is one of the declared directions.
func ValidCallDirection(d CallDirection) bool {
	switch d {
	case CallIncoming, CallOutgoing, CallMissed:
		return true
	}
	return false
}

// ConversationDirection SMS 会话主方向
type ConversationDirection string

const (
	ConversationIncoming ConversationDirection = "incoming"
	ConversationOutgoing ConversationDirection = "outgoing"
	ConversationMixed    ConversationDirection = "mixed"
)

// CallRecord 通话记录（隐私化后）
// PhoneHash is the keyed hash of the normalized number; the raw number is
// never persisted. ContactName, when present, is ciphertext.
type CallRecord struct {
	ID           string        `json:"id"`
	OwnerID      string        `json:"owner_id"`
	PhoneHash    string        `json:"phone_hash"`
	ContactName  *string       `json:"contact_name,omitempty"`
	Duration     int64         `json:"duration"`
	Direction    CallDirection `json:"direction"`
	Timestamp    time.Time     `json:"timestamp"`
	KnownContact bool          `json:"known_contact"`
	RiskScore    float64       `json:"risk_score"`
	RiskFactors  []string      `json:"risk_factors"`
	SyncState    SyncState     `json:"sync_state"`
	RetryCount   int           `json:"retry_count"`
}

// DedupKey (owner, phone_hash, timestamp, duration) uniquely identifies one
// stored call record. Duplicate uploads collapse onto the same key.
func (c *CallRecord) DedupKey() string {
	return fmt.Sprintf("%s:%s:%d:%d", c.OwnerID, c.PhoneHash, c.Timestamp.Unix(), c.Duration)
}

// SmsConversation 短信会话（隐私化后，不含正文）
type SmsConversation struct {
	ID               string                `json:"id"`
	OwnerID          string                `json:"owner_id"`
	PhoneHash        string                `json:"phone_hash"`
	ThreadID         string                `json:"thread_id"`
	MessageCount     int                   `json:"message_count"`
	Direction        ConversationDirection `json:"direction"`
	LatestTimestamp  time.Time             `json:"latest_timestamp"`
	KnownContact     bool                  `json:"known_contact"`
	RiskScore        float64               `json:"risk_score"`
	ContentFlags     []string              `json:"content_flags"`
	FrequencyPattern []string              `json:"frequency_pattern"`
	SyncState        SyncState             `json:"sync_state"`
	RetryCount       int                   `json:"retry_count"`
}

// DedupKey (owner, phone_hash, thread, latest_timestamp) for conversations.
func (s *SmsConversation) DedupKey() string {
	return fmt.Sprintf("%s:%s:%s:%d", s.OwnerID, s.PhoneHash, s.ThreadID, s.LatestTimestamp.Unix())
}

// DailySummary 某一天的活动汇总
type DailySummary struct {
	Date            string  `json:"date"` // YYYY-MM-DD
	TotalCalls      int     `json:"total_calls"`
	TotalSMS        int     `json:"total_sms"`
	UnknownCalls    int     `json:"unknown_calls"`
	UnknownSMS      int     `json:"unknown_sms"`
	SuspiciousCount int     `json:"suspicious_count"`
	AvgCallDuration float64 `json:"avg_call_duration"`
}
