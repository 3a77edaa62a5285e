package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/lisafeets/callguard/internal/auth"

	"go.uber.org/zap"
)

type contextKey string

const claimsKey contextKey = "claims"

// ClaimsFromContext 取出认证中间件写入的身份信息
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok
}

// RequireAuth Bearer token 校验中间件
// 校验通过后把 Claims 放进请求 context；失败统一 401。
func RequireAuth(authSvc auth.Service, logger *zap.Logger, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, Unauthorized("missing credentials"))
			return
		}
		claims, err := authSvc.ValidateToken(r.Context(), token)
		if err != nil {
			logger.Debug("token rejected",
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			writeJSON(w, http.StatusUnauthorized, Unauthorized("invalid or expired token"))
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// websocket 客户端没法带自定义 header 时退化到 query 参数
	return r.URL.Query().Get("token")
}
