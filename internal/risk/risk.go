// Package risk scores call and SMS activity for fraud patterns.
//
// Scoring is referentially transparent: the same input yields the same
// score and factor list on the capture device and on the server. All
// weights live in one table on one canonical 0.0-1.0 scale.
package risk

import (
	"strings"
	"time"
)

// 权重表（唯一权威，两侧共用）
const (
	weightUnknownContact  = 0.30
	weightShortCall       = 0.20
	weightLongUnknownCall = 0.20
	weightOffHoursUnknown = 0.15
	weightFewDigits       = 0.20
	weightRepeatedDigits  = 0.25
	weightScamPrefix      = 0.20

	weightUnknownSender    = 0.25
	weightSuspiciousKw     = 0.20
	weightHighRiskKw       = 0.35
	weightURL              = 0.15
	weightEmbeddedPhone    = 0.10
	weightUrgentLanguage   = 0.15
	weightFinancialTerm    = 0.15
	weightVerificationCode = 0.20
	weightHighVolume       = 0.15
	weightOneWayInbound    = 0.15
	weightHighFrequency    = 0.20
	weightInternational    = 0.10
	weightShortCodeSender  = 0.15
)

// 阈值常量
const (
	shortCallSeconds    = 10
	longCallSeconds     = 1800
	offHoursStart       = 21 // exclusive
	offHoursEnd         = 7  // exclusive
	minNumberDigits     = 7
	repeatedRunLength   = 5
	volumeThreshold     = 30 // messages in one conversation
	oneWayThreshold     = 5
	frequencyThreshold  = 10 // recent unknown-sender messages (24h aggregate)
	shortCodeMinDigits  = 5
	shortCodeMaxDigits  = 6
)

// SuspiciousScore 达到该分数的记录计入每日可疑活动统计
const SuspiciousScore = 0.6

// Call factor 标签
const (
	FactorUnknownContact  = "unknown_contact"
	FactorShortCall       = "very_short_call"
	FactorLongUnknownCall = "long_unknown_call"
	FactorOffHours        = "off_hours_unknown"
	FactorFewDigits       = "abnormal_number_length"
	FactorRepeatedDigits  = "repeated_digit_run"
	FactorScamPrefix      = "known_scam_prefix"
)

// SMS factor 标签（内容类标签见 keywords.go）
const (
	FactorUnknownSender = "unknown_sender"
	FactorHighVolume    = "high_message_volume"
	FactorOneWayInbound = "one_way_inbound"
	FactorHighFrequency = "high_unknown_frequency"
	FactorInternational = "international_number"
	FactorShortCode     = "short_code_sender"
)

// CallInput 一次通话评分的输入
type CallInput struct {
	RawNumber    string    // 原始号码（仅用于数字模式启发，不落库）
	Duration     int64     // 秒
	Incoming     bool
	Timestamp    time.Time // 设备本地时间
	KnownContact bool
}

// SMSInput 一个会话评分的输入
// ContentFlags 由采集侧 ContentFlags() 提取后随记录传输；server 重评分
// 使用同一份标签，保证两侧分数一致。
type SMSInput struct {
	RawNumber            string
	KnownContact         bool
	MessageCount         int
	InboundOnly          bool
	ContentFlags         []string
	RecentUnknownCount   int // 24h 内未知发送者消息总数（ActivityStore 聚合）
}

// ScoreCall 通话评分（加法后 clamp 到 [0,1]）
func ScoreCall(in CallInput) (float64, []string) {
	var score float64
	var factors []string

	if !in.KnownContact {
		score += weightUnknownContact
		factors = append(factors, FactorUnknownContact)
	}
	if in.Incoming && in.Duration < shortCallSeconds {
		score += weightShortCall
		factors = append(factors, FactorShortCall)
	}
	if !in.KnownContact && in.Duration > longCallSeconds {
		score += weightLongUnknownCall
		factors = append(factors, FactorLongUnknownCall)
	}
	hour := in.Timestamp.Hour()
	if !in.KnownContact && (hour < offHoursEnd || hour > offHoursStart) {
		score += weightOffHoursUnknown
		factors = append(factors, FactorOffHours)
	}

	digits := digitsOf(in.RawNumber)
	if len(digits) > 0 && len(digits) < minNumberDigits {
		score += weightFewDigits
		factors = append(factors, FactorFewDigits)
	}
	if hasRepeatedDigitRun(digits) {
		score += weightRepeatedDigits
		factors = append(factors, FactorRepeatedDigits)
	}
	if hasScamPrefix(digits) {
		score += weightScamPrefix
		factors = append(factors, FactorScamPrefix)
	}

	return clamp(score), factors
}

// ScoreSMS 短信会话评分（加法后 clamp 到 [0,1]）
func ScoreSMS(in SMSInput) (float64, []string) {
	var score float64
	var factors []string

	if !in.KnownContact {
		score += weightUnknownSender
		factors = append(factors, FactorUnknownSender)
	}

	for _, flag := range in.ContentFlags {
		switch flag {
		case FlagSuspiciousKeyword:
			score += weightSuspiciousKw
		case FlagHighRiskKeyword:
			score += weightHighRiskKw
		case FlagContainsURL:
			score += weightURL
		case FlagContainsPhone:
			score += weightEmbeddedPhone
		case FlagUrgentLanguage:
			score += weightUrgentLanguage
		case FlagFinancialTerm:
			score += weightFinancialTerm
		case FlagVerificationCode:
			score += weightVerificationCode
		default:
			continue
		}
		factors = append(factors, flag)
	}

	if in.MessageCount > volumeThreshold {
		score += weightHighVolume
		factors = append(factors, FactorHighVolume)
	}
	if in.InboundOnly && in.MessageCount > oneWayThreshold {
		score += weightOneWayInbound
		factors = append(factors, FactorOneWayInbound)
	}
	if in.RecentUnknownCount >= frequencyThreshold {
		score += weightHighFrequency
		factors = append(factors, FactorHighFrequency)
	}
	if isInternational(in.RawNumber) {
		score += weightInternational
		factors = append(factors, FactorInternational)
	}
	digits := digitsOf(in.RawNumber)
	if !in.KnownContact && len(digits) >= shortCodeMinDigits && len(digits) <= shortCodeMaxDigits && !strings.HasPrefix(in.RawNumber, "+") {
		score += weightShortCodeSender
		factors = append(factors, FactorShortCode)
	}

	return clamp(score), factors
}

func clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func digitsOf(number string) string {
	var b strings.Builder
	for _, r := range number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// hasRepeatedDigitRun 检测连续 5 个及以上相同数字
func hasRepeatedDigitRun(digits string) bool {
	run := 0
	var prev byte
	for i := 0; i < len(digits); i++ {
		if i > 0 && digits[i] == prev {
			run++
		} else {
			run = 1
			prev = digits[i]
		}
		if run >= repeatedRunLength {
			return true
		}
	}
	return false
}

func hasScamPrefix(digits string) bool {
	// 北美格式：可选的 1 之后取三位区号
	area := digits
	if strings.HasPrefix(area, "1") && len(area) == 11 {
		area = area[1:]
	}
	if len(area) < 3 {
		return false
	}
	area = area[:3]
	for _, p := range scamPrefixes {
		if area == p {
			return true
		}
	}
	return false
}

func isInternational(number string) bool {
	return strings.HasPrefix(number, "+") && !strings.HasPrefix(number, "+1")
}
