package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/lisafeets/callguard/internal/domain"
	"github.com/lisafeets/callguard/internal/repository"

	"go.uber.org/zap"
)

// AlertHandler 监护人警报查询与状态流转 Handler
type AlertHandler struct {
	alertRepo repository.AlertRepository
	logger    *zap.Logger
}

// NewAlertHandler 创建警报 Handler
func NewAlertHandler(alertRepo repository.AlertRepository, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{alertRepo: alertRepo, logger: logger}
}

type alertListResponse struct {
	Alerts   []*domain.Alert `json:"alerts"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// List GET /alerts/api/v1/alerts?page=&page_size=
// 只返回请求者本人是接收人的警报。
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Unauthorized("missing credentials"))
		return
	}

	q := r.URL.Query()
	page := parseInt(q.Get("page"), 1)
	if page < 1 {
		page = 1
	}
	pageSize := parseInt(q.Get("page_size"), 20)
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	alerts, total, err := h.alertRepo.ListAlertsForReceiver(r.Context(), claims.UserID, page, pageSize)
	if err != nil {
		h.logger.Error("Alert list failed",
			zap.String("receiver_id", claims.UserID),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to load alerts"))
		return
	}
	if alerts == nil {
		alerts = []*domain.Alert{}
	}

	writeJSON(w, http.StatusOK, Ok(alertListResponse{
		Alerts:   alerts,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}))
}

// UpdateStatus PUT /alerts/api/v1/alerts/{id}/read | /acknowledge
// 状态流转只允许接收人本人；找不到（含非本人）统一 404。
func (h *AlertHandler) UpdateStatus(w http.ResponseWriter, r *http.Request, rest string) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Unauthorized("missing credentials"))
		return
	}

	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	alertID, action := parts[0], parts[1]

	var err error
	switch action {
	case "read":
		err = h.alertRepo.MarkRead(r.Context(), claims.UserID, alertID)
	case "acknowledge":
		err = h.alertRepo.Acknowledge(r.Context(), claims.UserID, alertID)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if errors.Is(err, repository.ErrAlertNotFound) {
		writeJSON(w, http.StatusNotFound, Fail("alert not found"))
		return
	}
	if err != nil {
		h.logger.Error("Alert status update failed",
			zap.String("alert_id", alertID),
			zap.String("action", action),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, Fail("failed to update alert"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"id": alertID, "status": action}))
}
