package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lisafeets/callguard/internal/auth"
	"github.com/lisafeets/callguard/internal/domain"
	"github.com/lisafeets/callguard/internal/repository"
	"github.com/lisafeets/callguard/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeActivityService struct {
	callsAccepted int
	smsAccepted   int
	lastOwner     string
	err           error
}

func (f *fakeActivityService) IngestCalls(_ context.Context, ownerID string, batch []service.CallRecordUpload) (int, error) {
	f.lastOwner = ownerID
	if f.err != nil {
		return 0, f.err
	}
	f.callsAccepted += len(batch)
	return len(batch), nil
}

func (f *fakeActivityService) IngestSMS(_ context.Context, ownerID string, batch []service.SmsConversationUpload) (int, error) {
	f.lastOwner = ownerID
	if f.err != nil {
		return 0, f.err
	}
	f.smsAccepted += len(batch)
	return len(batch), nil
}

type fakeSummaryService struct {
	summaries []domain.DailySummary
	xlsx      []byte
	err       error
	lastReq   service.SummaryRequest
}

func (f *fakeSummaryService) DailySummaries(_ context.Context, req service.SummaryRequest) ([]domain.DailySummary, error) {
	f.lastReq = req
	return f.summaries, f.err
}

func (f *fakeSummaryService) ExportXLSX(_ context.Context, req service.SummaryRequest) ([]byte, error) {
	f.lastReq = req
	return f.xlsx, f.err
}

type fakeAlertStore struct {
	alerts   []*domain.Alert
	read     []string
	acked    []string
	notFound bool
}

func (f *fakeAlertStore) CreateAlert(context.Context, *domain.Alert) error          { return nil }
func (f *fakeAlertStore) MarkSent(context.Context, string, time.Time) error         { return nil }
func (f *fakeAlertStore) DeleteAlertsOlderThan(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeAlertStore) ListAlertsForReceiver(context.Context, string, int, int) ([]*domain.Alert, int, error) {
	return f.alerts, len(f.alerts), nil
}

func (f *fakeAlertStore) MarkRead(_ context.Context, _, alertID string) error {
	if f.notFound {
		return repository.ErrAlertNotFound
	}
	f.read = append(f.read, alertID)
	return nil
}

func (f *fakeAlertStore) Acknowledge(_ context.Context, _, alertID string) error {
	if f.notFound {
		return repository.ErrAlertNotFound
	}
	f.acked = append(f.acked, alertID)
	return nil
}

func newTestServer(t *testing.T, activitySvc service.ActivityService, summarySvc service.SummaryService, alertStore repository.AlertRepository) (*httptest.Server, *auth.TokenService) {
	t.Helper()
	logger := zap.NewNop()
	tokens := auth.NewTokenService("test-secret", time.Hour)

	router := NewRouter(logger)
	router.RegisterActivityRoutes(NewActivityHandler(activitySvc, summarySvc, logger), tokens)
	router.RegisterAlertRoutes(NewAlertHandler(alertStore, logger), tokens)
	router.RegisterHealthRoute()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, tokens
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &fakeActivityService{}, &fakeSummaryService{}, &fakeAlertStore{})

	resp := doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestIngestCalls_RequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t, &fakeActivityService{}, &fakeSummaryService{}, &fakeAlertStore{})

	resp := doJSON(t, http.MethodPost, srv.URL+"/activity/api/v1/calls", "", map[string]any{"records": []any{}})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, http.MethodPost, srv.URL+"/activity/api/v1/calls", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestIngestCalls_SeniorOnly(t *testing.T) {
	srv, tokens := newTestServer(t, &fakeActivityService{}, &fakeSummaryService{}, &fakeAlertStore{})

	guardianToken, err := tokens.Issue("guardian-1", auth.RoleGuardian)
	require.NoError(t, err)

	resp := doJSON(t, http.MethodPost, srv.URL+"/activity/api/v1/calls", guardianToken, map[string]any{"records": []any{}})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestIngestCalls_OwnerFromToken(t *testing.T) {
	svc := &fakeActivityService{}
	srv, tokens := newTestServer(t, svc, &fakeSummaryService{}, &fakeAlertStore{})

	token, err := tokens.Issue("senior-7", auth.RoleSenior)
	require.NoError(t, err)

	body := map[string]any{"records": []map[string]any{{
		"phone":         "+15551234567",
		"duration":      30,
		"direction":     "incoming",
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
		"known_contact": true,
	}}}
	resp := doJSON(t, http.MethodPost, srv.URL+"/activity/api/v1/calls", token, body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	// owner 始终取自 token，不信任 body
	assert.Equal(t, "senior-7", svc.lastOwner)
	assert.Equal(t, 1, svc.callsAccepted)
}

func TestIngestCalls_ValidationErrorIs400(t *testing.T) {
	svc := &fakeActivityService{err: &service.ValidationError{Index: 0, Field: "duration", Msg: "must be non-negative"}}
	srv, tokens := newTestServer(t, svc, &fakeSummaryService{}, &fakeAlertStore{})

	token, _ := tokens.Issue("senior-1", auth.RoleSenior)
	resp := doJSON(t, http.MethodPost, srv.URL+"/activity/api/v1/calls", token, map[string]any{"records": []any{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestSMS_OK(t *testing.T) {
	svc := &fakeActivityService{}
	srv, tokens := newTestServer(t, svc, &fakeSummaryService{}, &fakeAlertStore{})

	token, _ := tokens.Issue("senior-1", auth.RoleSenior)
	body := map[string]any{"conversations": []map[string]any{{
		"phone":            "+15559876543",
		"thread_id":        "t1",
		"message_count":    2,
		"direction":        "incoming",
		"latest_timestamp": time.Now().UTC().Format(time.RFC3339),
		"known_contact":    false,
	}}}
	resp := doJSON(t, http.MethodPost, srv.URL+"/activity/api/v1/sms", token, body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, svc.smsAccepted)
}

func TestSummary_GuardianTargetForwarded(t *testing.T) {
	summarySvc := &fakeSummaryService{summaries: []domain.DailySummary{{Date: "2026-08-29"}}}
	srv, tokens := newTestServer(t, &fakeActivityService{}, summarySvc, &fakeAlertStore{})

	token, _ := tokens.Issue("guardian-1", auth.RoleGuardian)
	resp := doJSON(t, http.MethodGet, srv.URL+"/activity/api/v1/summary?senior_id=senior-9&start=2026-08-20&end=2026-08-29", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, "guardian-1", summarySvc.lastReq.RequesterID)
	assert.Equal(t, auth.RoleGuardian, summarySvc.lastReq.RequesterRole)
	assert.Equal(t, "senior-9", summarySvc.lastReq.TargetID)
}

func TestSummary_ForbiddenMapsTo403(t *testing.T) {
	summarySvc := &fakeSummaryService{err: service.ErrForbidden}
	srv, tokens := newTestServer(t, &fakeActivityService{}, summarySvc, &fakeAlertStore{})

	token, _ := tokens.Issue("guardian-1", auth.RoleGuardian)
	resp := doJSON(t, http.MethodGet, srv.URL+"/activity/api/v1/summary?senior_id=senior-9", token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSummary_InvalidRange(t *testing.T) {
	srv, tokens := newTestServer(t, &fakeActivityService{}, &fakeSummaryService{}, &fakeAlertStore{})

	token, _ := tokens.Issue("senior-1", auth.RoleSenior)
	resp := doJSON(t, http.MethodGet, srv.URL+"/activity/api/v1/summary?start=2026-08-29&end=2026-08-20", token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExport_XLSXHeaders(t *testing.T) {
	summarySvc := &fakeSummaryService{xlsx: []byte("PK\x03\x04stub")}
	srv, tokens := newTestServer(t, &fakeActivityService{}, summarySvc, &fakeAlertStore{})

	token, _ := tokens.Issue("senior-1", auth.RoleSenior)
	resp := doJSON(t, http.MethodGet, srv.URL+"/activity/api/v1/summary/export", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
}

func TestAlertList(t *testing.T) {
	store := &fakeAlertStore{alerts: []*domain.Alert{
		{ID: "a1", ReceiverID: "guardian-1", Type: domain.AlertFrequentUnknownCalls},
	}}
	srv, tokens := newTestServer(t, &fakeActivityService{}, &fakeSummaryService{}, store)

	token, _ := tokens.Issue("guardian-1", auth.RoleGuardian)
	resp := doJSON(t, http.MethodGet, srv.URL+"/alerts/api/v1/alerts?page=1&page_size=10", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out Result[alertListResponse]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, ResultSuccess, out.Code)
	assert.Equal(t, 1, out.Result.Total)
	require.Len(t, out.Result.Alerts, 1)
	assert.Equal(t, "a1", out.Result.Alerts[0].ID)
}

func TestAlertStatusTransitions(t *testing.T) {
	store := &fakeAlertStore{}
	srv, tokens := newTestServer(t, &fakeActivityService{}, &fakeSummaryService{}, store)
	token, _ := tokens.Issue("guardian-1", auth.RoleGuardian)

	resp := doJSON(t, http.MethodPut, srv.URL+"/alerts/api/v1/alerts/a1/read", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"a1"}, store.read)

	resp = doJSON(t, http.MethodPut, srv.URL+"/alerts/api/v1/alerts/a1/acknowledge", token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"a1"}, store.acked)

	resp = doJSON(t, http.MethodPut, srv.URL+"/alerts/api/v1/alerts/a1/dismiss-everything", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAlertStatus_NotFound(t *testing.T) {
	store := &fakeAlertStore{notFound: true}
	srv, tokens := newTestServer(t, &fakeActivityService{}, &fakeSummaryService{}, store)
	token, _ := tokens.Issue("guardian-1", auth.RoleGuardian)

	resp := doJSON(t, http.MethodPut, srv.URL+"/alerts/api/v1/alerts/missing/read", token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, tokens := newTestServer(t, &fakeActivityService{}, &fakeSummaryService{}, &fakeAlertStore{})
	token, _ := tokens.Issue("senior-1", auth.RoleSenior)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/activity/api/v1/calls"},
		{http.MethodGet, "/activity/api/v1/sms"},
		{http.MethodPost, "/activity/api/v1/summary"},
		{http.MethodPost, "/alerts/api/v1/alerts"},
	} {
		resp := doJSON(t, tc.method, srv.URL+tc.path, token, nil)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, fmt.Sprintf("%s %s", tc.method, tc.path))
	}
}
