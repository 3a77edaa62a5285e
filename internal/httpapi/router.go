package httpapi

import (
	"net/http"
	"strings"

	"github.com/lisafeets/callguard/internal/auth"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

// HandleHandler 支持 http.Handler 接口
func (r *Router) HandleHandler(pattern string, h http.Handler) {
	r.mux.Handle(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterActivityRoutes 注册活动摄取与汇总路由
func (r *Router) RegisterActivityRoutes(h *ActivityHandler, authSvc auth.Service) {
	r.Handle("/activity/api/v1/calls", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		RequireAuth(authSvc, r.logger, h.IngestCalls)(w, req)
	})

	r.Handle("/activity/api/v1/sms", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		RequireAuth(authSvc, r.logger, h.IngestSMS)(w, req)
	})

	r.Handle("/activity/api/v1/summary", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		RequireAuth(authSvc, r.logger, h.Summary)(w, req)
	})

	r.Handle("/activity/api/v1/summary/export", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		RequireAuth(authSvc, r.logger, h.Export)(w, req)
	})
}

// RegisterAlertRoutes 注册警报查询与状态流转路由
func (r *Router) RegisterAlertRoutes(h *AlertHandler, authSvc auth.Service) {
	r.Handle("/alerts/api/v1/alerts", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		RequireAuth(authSvc, r.logger, h.List)(w, req)
	})

	// alerts/{id}/read 和 alerts/{id}/acknowledge
	r.Handle("/alerts/api/v1/alerts/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		rest := strings.TrimPrefix(req.URL.Path, "/alerts/api/v1/alerts/")
		RequireAuth(authSvc, r.logger, func(w http.ResponseWriter, req *http.Request) {
			h.UpdateStatus(w, req, rest)
		})(w, req)
	})
}

// RegisterHealthRoute 健康检查（无认证）
func (r *Router) RegisterHealthRoute() {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, Ok(map[string]string{"status": "ok"}))
	})
}
