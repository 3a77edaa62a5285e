package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/lisafeets/callguard/internal/auth"
	"github.com/lisafeets/callguard/internal/service"

	"go.uber.org/zap"
)

// ActivityHandler 活动摄取与汇总 Handler
type ActivityHandler struct {
	activityService service.ActivityService
	summaryService  service.SummaryService
	logger          *zap.Logger
}

// NewActivityHandler 创建活动 Handler
func NewActivityHandler(
	activityService service.ActivityService,
	summaryService service.SummaryService,
	logger *zap.Logger,
) *ActivityHandler {
	return &ActivityHandler{
		activityService: activityService,
		summaryService:  summaryService,
		logger:          logger,
	}
}

type callBatchRequest struct {
	Records []service.CallRecordUpload `json:"records"`
}

type smsBatchRequest struct {
	Conversations []service.SmsConversationUpload `json:"conversations"`
}

type ingestResponse struct {
	Accepted int `json:"accepted"`
}

// IngestCalls POST /activity/api/v1/calls
// 采集端（senior 角色）批量上传通话记录。
func (h *ActivityHandler) IngestCalls(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok || claims.Role != auth.RoleSenior {
		writeJSON(w, http.StatusForbidden, Fail("only device owners may upload activity"))
		return
	}

	var req callBatchRequest
	if err := readBodyJSON(r, 4<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	accepted, err := h.activityService.IngestCalls(r.Context(), claims.UserID, req.Records)
	if err != nil {
		h.writeIngestError(w, claims.UserID, "calls", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(ingestResponse{Accepted: accepted}))
}

// IngestSMS POST /activity/api/v1/sms
func (h *ActivityHandler) IngestSMS(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok || claims.Role != auth.RoleSenior {
		writeJSON(w, http.StatusForbidden, Fail("only device owners may upload activity"))
		return
	}

	var req smsBatchRequest
	if err := readBodyJSON(r, 4<<20, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	accepted, err := h.activityService.IngestSMS(r.Context(), claims.UserID, req.Conversations)
	if err != nil {
		h.writeIngestError(w, claims.UserID, "sms", err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(ingestResponse{Accepted: accepted}))
}

// Summary GET /activity/api/v1/summary?senior_id=&start=&end=
// senior 查自己；guardian 带 senior_id 查被授权对象。
func (h *ActivityHandler) Summary(w http.ResponseWriter, r *http.Request) {
	req, ok := h.summaryRequest(w, r)
	if !ok {
		return
	}

	summaries, err := h.summaryService.DailySummaries(r.Context(), req)
	if err != nil {
		h.writeSummaryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(summaries))
}

// Export GET /activity/api/v1/summary/export
// 同一份汇总导出为 xlsx 附件。
func (h *ActivityHandler) Export(w http.ResponseWriter, r *http.Request) {
	req, ok := h.summaryRequest(w, r)
	if !ok {
		return
	}

	data, err := h.summaryService.ExportXLSX(r.Context(), req)
	if err != nil {
		h.writeSummaryError(w, err)
		return
	}

	filename := fmt.Sprintf("activity-%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *ActivityHandler) summaryRequest(w http.ResponseWriter, r *http.Request) (service.SummaryRequest, bool) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, Unauthorized("missing credentials"))
		return service.SummaryRequest{}, false
	}

	q := r.URL.Query()
	end := parseDate(q.Get("end"), time.Now().UTC())
	start := parseDate(q.Get("start"), end.AddDate(0, 0, -7))
	if start.After(end) {
		writeJSON(w, http.StatusBadRequest, Fail("start must not be after end"))
		return service.SummaryRequest{}, false
	}

	return service.SummaryRequest{
		RequesterID:   claims.UserID,
		RequesterRole: claims.Role,
		TargetID:      q.Get("senior_id"),
		Start:         start,
		End:           end.AddDate(0, 0, 1), // end 当天含在内
	}, true
}

func (h *ActivityHandler) writeIngestError(w http.ResponseWriter, ownerID, kind string, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, Fail(verr.Error()))
		return
	}
	h.logger.Error("Activity ingest failed",
		zap.String("owner_id", ownerID),
		zap.String("kind", kind),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, Fail("failed to store activity"))
}

func (h *ActivityHandler) writeSummaryError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrForbidden) {
		writeJSON(w, http.StatusForbidden, Fail("no active connection to this account"))
		return
	}
	h.logger.Error("Summary query failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, Fail("failed to load summary"))
}
