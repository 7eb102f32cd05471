package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pizzaportal/assignhub/internal/model"
)

// newAssignmentRouter はAssignmentHandlerのルーティングを組んだテスト用ルーターを返す。
func newAssignmentRouter(h *AssignmentHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/assignments", h.Create)
	r.Post("/api/assignments/remove", h.Remove)
	r.Post("/api/assignments/toggle", h.Toggle)
	r.Get("/api/assignments/stores/{storeID}", h.ListByStore)
	r.Get("/api/assignments/users/{userID}", h.ListByUser)
	return r
}

func TestAssignmentHandler_Create(t *testing.T) {
	id := int64(100)
	var gotMetadata map[string]string
	service := &mockWorkflowService{
		assignSingleFunc: func(ctx context.Context, userID, roleID int64, storeID string, metadata map[string]string) (*model.Assignment, error) {
			gotMetadata = metadata
			return &model.Assignment{
				ID: &id, UserID: userID, RoleID: roleID, StoreID: storeID,
				Metadata: metadata, IsActive: true,
			}, nil
		},
	}
	h := NewAssignmentHandler(service, 0)

	body := bytes.NewBufferString(`{"user_id": 1, "role_id": 2, "store_id": "S001", "metadata": {"notes": "manual"}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/assignments", body)
	rec := httptest.NewRecorder()
	newAssignmentRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if gotMetadata["notes"] != "manual" {
		t.Errorf("metadata notes = %q, want %q", gotMetadata["notes"], "manual")
	}

	var resp assignmentResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID == nil || *resp.ID != 100 {
		t.Errorf("id = %v, want 100", resp.ID)
	}
	if !resp.IsActive {
		t.Error("is_active = false, want true")
	}
}

func TestAssignmentHandler_Create_ValidationError(t *testing.T) {
	h := NewAssignmentHandler(&mockWorkflowService{}, 0)

	body := bytes.NewBufferString(`{"user_id": 1}`)
	req := httptest.NewRequest(http.MethodPost, "/api/assignments", body)
	rec := httptest.NewRecorder()
	newAssignmentRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}

	var resp struct {
		Code    string            `json:"code"`
		Details map[string]string `json:"details"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q, want VALIDATION_ERROR", resp.Code)
	}
	if _, ok := resp.Details["role_id"]; !ok {
		t.Errorf("details should contain field 'role_id': %v", resp.Details)
	}
	if _, ok := resp.Details["store_id"]; !ok {
		t.Errorf("details should contain field 'store_id': %v", resp.Details)
	}
}

func TestAssignmentHandler_Create_UpstreamNetworkError(t *testing.T) {
	service := &mockWorkflowService{
		assignSingleFunc: func(ctx context.Context, userID, roleID int64, storeID string, metadata map[string]string) (*model.Assignment, error) {
			return nil, model.NewNetworkError("connection refused")
		},
	}
	h := NewAssignmentHandler(service, 0)

	body := bytes.NewBufferString(`{"user_id": 1, "role_id": 2, "store_id": "S001"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/assignments", body)
	rec := httptest.NewRecorder()
	newAssignmentRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadGateway)
	}

	var resp map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["code"] != "NETWORK_ERROR" {
		t.Errorf("code = %v, want NETWORK_ERROR", resp["code"])
	}
}

func TestAssignmentHandler_Create_UpstreamUnauthorized(t *testing.T) {
	service := &mockWorkflowService{
		assignSingleFunc: func(ctx context.Context, userID, roleID int64, storeID string, metadata map[string]string) (*model.Assignment, error) {
			return nil, model.NewUnauthorizedError()
		},
	}
	h := NewAssignmentHandler(service, 0)

	body := bytes.NewBufferString(`{"user_id": 1, "role_id": 2, "store_id": "S001"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/assignments", body)
	rec := httptest.NewRecorder()
	newAssignmentRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestAssignmentHandler_Remove(t *testing.T) {
	var gotUserID, gotRoleID int64
	var gotStoreID string
	service := &mockWorkflowService{
		removeFunc: func(ctx context.Context, userID, roleID int64, storeID string) error {
			gotUserID, gotRoleID, gotStoreID = userID, roleID, storeID
			return nil
		},
	}
	h := NewAssignmentHandler(service, 0)

	body := bytes.NewBufferString(`{"user_id": 5, "role_id": 6, "store_id": "S009"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/assignments/remove", body)
	rec := httptest.NewRecorder()
	newAssignmentRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if gotUserID != 5 || gotRoleID != 6 || gotStoreID != "S009" {
		t.Errorf("remove args = (%d, %d, %q), want (5, 6, S009)", gotUserID, gotRoleID, gotStoreID)
	}
}

func TestAssignmentHandler_Remove_NotFound(t *testing.T) {
	service := &mockWorkflowService{
		removeFunc: func(ctx context.Context, userID, roleID int64, storeID string) error {
			return model.NewNotFoundError("割り当て")
		},
	}
	h := NewAssignmentHandler(service, 0)

	body := bytes.NewBufferString(`{"user_id": 5, "role_id": 6, "store_id": "S009"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/assignments/remove", body)
	rec := httptest.NewRecorder()
	newAssignmentRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestAssignmentHandler_Toggle(t *testing.T) {
	service := &mockWorkflowService{
		toggleFunc: func(ctx context.Context, userID, roleID int64, storeID string) (*model.Assignment, error) {
			return &model.Assignment{UserID: userID, RoleID: roleID, StoreID: storeID, IsActive: false}, nil
		},
	}
	h := NewAssignmentHandler(service, 0)

	body := bytes.NewBufferString(`{"user_id": 1, "role_id": 2, "store_id": "S001"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/assignments/toggle", body)
	rec := httptest.NewRecorder()
	newAssignmentRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp assignmentResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.IsActive {
		t.Error("is_active = true, want false")
	}
}

func TestAssignmentHandler_ListByStore(t *testing.T) {
	var gotStoreID string
	var gotMaxAge time.Duration
	service := &mockWorkflowService{
		fetchByStoreFunc: func(ctx context.Context, storeID string, maxAge time.Duration) ([]*model.Assignment, error) {
			gotStoreID = storeID
			gotMaxAge = maxAge
			return []*model.Assignment{
				{UserID: 1, RoleID: 2, StoreID: storeID, IsActive: true},
			}, nil
		},
	}
	h := NewAssignmentHandler(service, 10*time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/assignments/stores/S001", nil)
	rec := httptest.NewRecorder()
	newAssignmentRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotStoreID != "S001" {
		t.Errorf("storeID = %q, want %q", gotStoreID, "S001")
	}
	if gotMaxAge != 10*time.Minute {
		t.Errorf("maxAge = %v, want %v", gotMaxAge, 10*time.Minute)
	}

	var resp []assignmentResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Errorf("len(response) = %d, want 1", len(resp))
	}
}

func TestAssignmentHandler_ListByStore_EmptyIsArray(t *testing.T) {
	h := NewAssignmentHandler(&mockWorkflowService{}, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/assignments/stores/S999", nil)
	rec := httptest.NewRecorder()
	newAssignmentRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	// 空の場合もnullではなく空配列を返す
	if !strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "[") {
		t.Errorf("response should be a JSON array: %s", rec.Body.String())
	}
}

func TestAssignmentHandler_ListByUser(t *testing.T) {
	var gotUserID int64
	service := &mockWorkflowService{
		fetchByUserFunc: func(ctx context.Context, userID int64, maxAge time.Duration) ([]*model.Assignment, error) {
			gotUserID = userID
			return []*model.Assignment{}, nil
		},
	}
	h := NewAssignmentHandler(service, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/assignments/users/42", nil)
	rec := httptest.NewRecorder()
	newAssignmentRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if gotUserID != 42 {
		t.Errorf("userID = %d, want 42", gotUserID)
	}
}

func TestAssignmentHandler_ListByUser_InvalidID(t *testing.T) {
	h := NewAssignmentHandler(&mockWorkflowService{}, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/assignments/users/not-a-number", nil)
	rec := httptest.NewRecorder()
	newAssignmentRouter(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestNewAssignmentHandler_DefaultMaxAge(t *testing.T) {
	h := NewAssignmentHandler(&mockWorkflowService{}, 0)
	if h.cacheMaxAge != 5*time.Minute {
		t.Errorf("cacheMaxAge = %v, want %v", h.cacheMaxAge, 5*time.Minute)
	}
}
