package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/stablelab/growth-milestone-service/internal/forse"
	"github.com/stablelab/growth-milestone-service/internal/handler"
	"github.com/stablelab/growth-milestone-service/internal/repository"
	"github.com/stablelab/growth-milestone-service/internal/service/milestone"
)

const testAPIKey = "secret-key"

type mockForse struct {
	CreateFunc       func(ctx context.Context, req forse.CreateRequest) (string, error)
	UpdateTargetFunc func(ctx context.Context, remoteID string, target float64) (forse.Effect, error)
	DeleteFunc       func(ctx context.Context, remoteID string) bool
}

func (m *mockForse) Create(ctx context.Context, req forse.CreateRequest) (string, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, req)
	}
	return "forse-1", nil
}

func (m *mockForse) UpdateTarget(ctx context.Context, remoteID string, target float64) (forse.Effect, error) {
	if m.UpdateTargetFunc != nil {
		return m.UpdateTargetFunc(ctx, remoteID, target)
	}
	return nil, nil
}

func (m *mockForse) Delete(ctx context.Context, remoteID string) bool {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, remoteID)
	}
	return true
}

func newTestRouter(fc forse.Client) *Router {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	store := repository.NewMemoryStore()
	svc := milestone.NewService(store, fc, log)
	milestoneHandler := handler.NewMilestoneHandler(svc, log)
	webhookHandler := handler.NewWebhookHandler(svc, nil, log)
	return NewRouter(milestoneHandler, webhookHandler, testAPIKey, store, nil, log)
}

func doJSON(t *testing.T, router *Router, method, path string, body any, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	w := httptest.NewRecorder()
	router.Engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response not JSON: %v: %s", err, w.Body.String())
	}
	return out
}

func createBody() map[string]any {
	return map[string]any{
		"project_id": "p1",
		"kpi_id":     "tvl",
		"target":     1000000,
	}
}

func TestAuthRequired(t *testing.T) {
	router := newTestRouter(&mockForse{})

	cases := []struct {
		method, path string
	}{
		{http.MethodPost, "/milestones"},
		{http.MethodGet, "/milestones"},
		{http.MethodGet, "/milestones/ms_x"},
		{http.MethodPatch, "/milestones/ms_x"},
		{http.MethodDelete, "/milestones/ms_x"},
		{http.MethodPost, "/webhooks/milestone-complete"},
		{http.MethodGet, "/export"},
	}
	for _, tc := range cases {
		if w := doJSON(t, router, tc.method, tc.path, nil, ""); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s without key = %d, want 401", tc.method, tc.path, w.Code)
		}
		if w := doJSON(t, router, tc.method, tc.path, nil, "wrong-key"); w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s with bad key = %d, want 401", tc.method, tc.path, w.Code)
		}
	}
}

func TestHealthNeedsNoAuth(t *testing.T) {
	router := newTestRouter(&mockForse{})

	w := doJSON(t, router, http.MethodGet, "/health", nil, "")
	if w.Code != http.StatusOK {
		t.Fatalf("/health = %d, want 200", w.Code)
	}
	resp := decode(t, w)
	if resp["service"] != serviceName || resp["storage"] != "in-memory" {
		t.Errorf("health payload = %v", resp)
	}

	if w := doJSON(t, router, http.MethodGet, "/readyz", nil, ""); w.Code != http.StatusOK {
		t.Errorf("/readyz = %d, want 200", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/metrics", nil, ""); w.Code != http.StatusOK {
		t.Errorf("/metrics = %d, want 200", w.Code)
	}
}

func TestCreateMilestone(t *testing.T) {
	router := newTestRouter(&mockForse{})

	w := doJSON(t, router, http.MethodPost, "/milestones", createBody(), testAPIKey)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["status"] != "created" || resp["synced"] != true {
		t.Errorf("create payload = %v", resp)
	}
	if resp["internal_id"] == "" || resp["remote_id"] != "forse-1" {
		t.Errorf("create ids = %v", resp)
	}
}

func TestCreateMilestoneWithoutSync(t *testing.T) {
	router := newTestRouter(&mockForse{})

	body := createBody()
	body["sync_to_forse"] = false
	w := doJSON(t, router, http.MethodPost, "/milestones", body, testAPIKey)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["synced"] != false {
		t.Errorf("synced = %v, want false", resp["synced"])
	}
	if _, present := resp["remote_id"]; present {
		t.Errorf("remote_id present on unsynced create: %v", resp)
	}

	// Round-trip: stored record starts pending at zero progress.
	id := resp["internal_id"].(string)
	w = doJSON(t, router, http.MethodGet, "/milestones/"+id, nil, testAPIKey)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	record := decode(t, w)
	if record["status"] != "pending" || record["current_value"] != float64(0) {
		t.Errorf("stored record = %v", record)
	}
}

func TestCreateMilestoneValidation(t *testing.T) {
	router := newTestRouter(&mockForse{})

	for _, missing := range []string{"project_id", "kpi_id", "target"} {
		body := createBody()
		delete(body, missing)
		if w := doJSON(t, router, http.MethodPost, "/milestones", body, testAPIKey); w.Code != http.StatusBadRequest {
			t.Errorf("create without %s = %d, want 400", missing, w.Code)
		}
	}
}

func TestCreateMilestoneSyncFailure(t *testing.T) {
	router := newTestRouter(&mockForse{
		CreateFunc: func(ctx context.Context, req forse.CreateRequest) (string, error) {
			return "", errors.New("forse rejected the milestone")
		},
	})

	w := doJSON(t, router, http.MethodPost, "/milestones", createBody(), testAPIKey)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("create with failing sync = %d, want 500", w.Code)
	}
	resp := decode(t, w)
	if errMsg, _ := resp["error"].(string); errMsg == "" || errMsg == "internal error" {
		t.Errorf("sync failure should carry upstream detail, got %v", resp)
	}

	// Nothing persisted.
	w = doJSON(t, router, http.MethodGet, "/milestones", nil, testAPIKey)
	if total := decode(t, w)["total"]; total != float64(0) {
		t.Errorf("total = %v after failed create, want 0", total)
	}
}

func TestGetMilestoneNotFound(t *testing.T) {
	router := newTestRouter(&mockForse{})
	if w := doJSON(t, router, http.MethodGet, "/milestones/ms_missing", nil, testAPIKey); w.Code != http.StatusNotFound {
		t.Errorf("get unknown = %d, want 404", w.Code)
	}
}

func TestListMilestonesFiltered(t *testing.T) {
	router := newTestRouter(&mockForse{
		CreateFunc: func(ctx context.Context, req forse.CreateRequest) (string, error) {
			return "forse-" + req.ProjectID, nil
		},
	})

	for _, project := range []string{"p1", "p1", "p2"} {
		body := createBody()
		body["project_id"] = project
		doJSON(t, router, http.MethodPost, "/milestones", body, testAPIKey)
	}

	w := doJSON(t, router, http.MethodGet, "/milestones?project_id=p1", nil, testAPIKey)
	resp := decode(t, w)
	if resp["total"] != float64(2) {
		t.Errorf("filtered total = %v, want 2", resp["total"])
	}
	milestones := resp["milestones"].([]any)
	if len(milestones) != 2 {
		t.Errorf("total and list length disagree: %v", resp)
	}
}

func TestUpdateMilestone(t *testing.T) {
	router := newTestRouter(&mockForse{
		UpdateTargetFunc: func(ctx context.Context, remoteID string, target float64) (forse.Effect, error) {
			return forse.Effect{"status": "in_progress"}, nil
		},
	})

	created := decode(t, doJSON(t, router, http.MethodPost, "/milestones", createBody(), testAPIKey))
	id := created["internal_id"].(string)

	w := doJSON(t, router, http.MethodPatch, "/milestones/"+id, map[string]any{"target": 2000000}, testAPIKey)
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["status"] != "updated" || resp["old_target"] != float64(1000000) || resp["new_target"] != float64(2000000) {
		t.Errorf("update payload = %v", resp)
	}
	if effect, ok := resp["effect"].(map[string]any); !ok || effect["status"] != "in_progress" {
		t.Errorf("effect missing from payload: %v", resp)
	}

	if w := doJSON(t, router, http.MethodPatch, "/milestones/ms_missing", map[string]any{"target": 1}, testAPIKey); w.Code != http.StatusNotFound {
		t.Errorf("update unknown = %d, want 404", w.Code)
	}
}

func TestDeleteMilestone(t *testing.T) {
	router := newTestRouter(&mockForse{
		DeleteFunc: func(ctx context.Context, remoteID string) bool { return false },
	})

	created := decode(t, doJSON(t, router, http.MethodPost, "/milestones", createBody(), testAPIKey))
	id := created["internal_id"].(string)

	w := doJSON(t, router, http.MethodDelete, "/milestones/"+id, nil, testAPIKey)
	if w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}
	resp := decode(t, w)
	if resp["status"] != "deleted" || resp["remote_deleted"] != false {
		t.Errorf("delete payload = %v", resp)
	}

	if w := doJSON(t, router, http.MethodGet, "/milestones/"+id, nil, testAPIKey); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
}

func TestCompletionWebhook(t *testing.T) {
	router := newTestRouter(&mockForse{})

	created := decode(t, doJSON(t, router, http.MethodPost, "/milestones", createBody(), testAPIKey))
	id := created["internal_id"].(string)

	w := doJSON(t, router, http.MethodPost, "/webhooks/milestone-complete", map[string]any{
		"milestone_id":  "forse-1",
		"status":        "completed",
		"current_value": 1200000,
		"target":        1000000,
		"completed_at":  "2026-08-30T12:00:00Z",
	}, testAPIKey)
	if w.Code != http.StatusOK {
		t.Fatalf("webhook = %d: %s", w.Code, w.Body.String())
	}
	resp := decode(t, w)
	if resp["status"] != "received" || resp["updated"] != true || resp["internal_id"] != id {
		t.Errorf("webhook payload = %v", resp)
	}

	record := decode(t, doJSON(t, router, http.MethodGet, "/milestones/"+id, nil, testAPIKey))
	if record["status"] != "completed" || record["is_completed"] != true {
		t.Errorf("record after webhook = %v", record)
	}
	if record["completed_at"] != "2026-08-30T12:00:00Z" || record["current_value"] != float64(1200000) {
		t.Errorf("record after webhook = %v", record)
	}
}

func TestCompletionWebhookOrphan(t *testing.T) {
	router := newTestRouter(&mockForse{})

	w := doJSON(t, router, http.MethodPost, "/webhooks/milestone-complete", map[string]any{
		"milestone_id": "forse-unknown",
		"status":       "completed",
	}, testAPIKey)
	if w.Code != http.StatusNotFound {
		t.Errorf("orphan webhook = %d, want 404", w.Code)
	}
}

func TestExport(t *testing.T) {
	router := newTestRouter(&mockForse{})

	created := decode(t, doJSON(t, router, http.MethodPost, "/milestones", createBody(), testAPIKey))
	id := created["internal_id"].(string)

	w := doJSON(t, router, http.MethodGet, "/export", nil, testAPIKey)
	if w.Code != http.StatusOK {
		t.Fatalf("export = %d", w.Code)
	}
	resp := decode(t, w)
	milestones, ok := resp["milestones"].(map[string]any)
	if !ok || len(milestones) != 1 {
		t.Fatalf("export payload = %v", resp)
	}
	if _, present := milestones[id]; !present {
		t.Errorf("export missing record %s: %v", id, milestones)
	}
	if _, present := resp["metadata"]; !present {
		t.Errorf("export missing store metadata: %v", resp)
	}
}
