package risk

import (
	"regexp"
	"strings"
)

// 可疑关键词（金融/紧迫/中奖类），命中记 content flag
var suspiciousKeywords = []string{
	"free", "winner", "prize", "lottery", "claim", "congratulations",
	"urgent", "act now", "limited time", "expires", "offer",
	"refund", "invoice", "payment due", "overdue",
	"gift card", "bitcoin", "crypto", "investment",
}

// 高风险关键词（索取凭据/转账类），权重高于普通可疑词
var highRiskKeywords = []string{
	"ssn", "social security", "one-time password", "otp",
	"bank account", "routing number", "wire transfer", "western union",
	"password", "pin number", "verify your account", "account suspended",
}

// 紧迫话术
var urgentPhrases = []string{
	"immediately", "right away", "within 24 hours", "final notice",
	"last chance", "don't delay", "respond now",
}

// 金融词汇
var financialTerms = []string{
	"bank", "credit card", "debit", "loan", "mortgage", "irs", "tax",
	"medicare", "social security",
}

// 已知免费号段诈骗前缀（北美）
var scamPrefixes = []string{"800", "888", "877", "866", "855", "844", "833"}

var (
	urlPattern   = regexp.MustCompile(`(?i)(https?://|www\.)\S+|\b[a-z0-9-]+\.(com|net|org|info|biz|xyz|link|click)\b`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s().-]{6,}\d`)
	codePattern  = regexp.MustCompile(`\b\d{4,8}\b`)
)

// Content flag 标签。这些标签随记录上传，server 端重评分只依赖标签，
// 不需要接触原始正文。
const (
	FlagSuspiciousKeyword = "suspicious_keyword"
	FlagHighRiskKeyword   = "high_risk_keyword"
	FlagContainsURL       = "contains_url"
	FlagContainsPhone     = "contains_phone_number"
	FlagUrgentLanguage    = "urgent_language"
	FlagFinancialTerm     = "financial_term"
	FlagVerificationCode  = "verification_code"
)

// ContentFlags 从短信正文提取内容标志（纯函数）
// 只在持有原始正文的一侧（采集设备）调用；输出随记录传输。
func ContentFlags(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var flags []string
	if containsAny(lower, suspiciousKeywords) {
		flags = append(flags, FlagSuspiciousKeyword)
	}
	if containsAny(lower, highRiskKeywords) {
		flags = append(flags, FlagHighRiskKeyword)
	}
	if urlPattern.MatchString(lower) {
		flags = append(flags, FlagContainsURL)
	}
	if phonePattern.MatchString(text) {
		flags = append(flags, FlagContainsPhone)
	}
	if containsAny(lower, urgentPhrases) {
		flags = append(flags, FlagUrgentLanguage)
	}
	if containsAny(lower, financialTerms) {
		flags = append(flags, FlagFinancialTerm)
	}
	// 数字验证码样式的 token 与 "code" 一词同时出现
	if strings.Contains(lower, "code") && codePattern.MatchString(lower) {
		flags = append(flags, FlagVerificationCode)
	}
	return flags
}

func containsAny(lower string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}
