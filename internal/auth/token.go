// Package auth validates the bearer credentials presented by REST requests
// and realtime connections. Token issuance lives in the account service;
// this package only needs the shared signing secret to verify.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// 角色
const (
	RoleSenior   = "senior"
	RoleGuardian = "guardian"
)

// ErrInvalidToken 凭据无效（格式错误、签名不符或已过期）
var ErrInvalidToken = errors.New("auth: invalid token")

// Claims 校验通过后的身份信息
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	Exp    int64  `json:"exp"`
}

// Service 凭据校验接口（外部协作方；server 内用 HMAC 实现）
type Service interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// TokenService HMAC-SHA256 签名 token 的签发与校验
// token 格式: base64url(payload) "." base64url(hmac)
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService 创建 TokenService
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

var _ Service = (*TokenService)(nil)

// Issue 为用户签发 token（测试与开发环境使用）
func (s *TokenService) Issue(userID, role string) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   role,
		Exp:    s.now().Add(s.ttl).Unix(),
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("auth: marshal claims: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + s.sign(encoded), nil
}

// ValidateToken 校验 token 并返回 Claims
// 签名或有效期任一不符即拒绝；不做静默重试。
func (s *TokenService) ValidateToken(_ context.Context, token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal([]byte(s.sign(parts[0])), []byte(parts[1])) {
		return nil, ErrInvalidToken
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || s.now().Unix() >= claims.Exp {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func (s *TokenService) sign(encodedPayload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encodedPayload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
