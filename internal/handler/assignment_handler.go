package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pizzaportal/assignhub/internal/middleware"
	"github.com/pizzaportal/assignhub/internal/model"
)

// AssignmentServiceInterface は割り当てハンドラーが必要とするサービスインターフェース。
type AssignmentServiceInterface interface {
	// AssignSingle は単一割り当てを作成する。
	AssignSingle(ctx context.Context, userID, roleID int64, storeID string, metadata map[string]string) (*model.Assignment, error)
	// RemoveAssignment は割り当てを削除する。
	RemoveAssignment(ctx context.Context, userID, roleID int64, storeID string) error
	// ToggleAssignment は割り当ての有効/無効を切り替える。
	ToggleAssignment(ctx context.Context, userID, roleID int64, storeID string) (*model.Assignment, error)
	// FetchStoreAssignments は店舗別の割り当て一覧を返す（鮮度ウィンドウ内はキャッシュ）。
	FetchStoreAssignments(ctx context.Context, storeID string, maxAge time.Duration) ([]*model.Assignment, error)
	// FetchUserAssignments はユーザー別の割り当て一覧を返す（鮮度ウィンドウ内はキャッシュ）。
	FetchUserAssignments(ctx context.Context, userID int64, maxAge time.Duration) ([]*model.Assignment, error)
}

// AssignmentHandler は割り当て個別操作・一覧参照のHTTPハンドラー。
type AssignmentHandler struct {
	service     AssignmentServiceInterface
	cacheMaxAge time.Duration
}

// NewAssignmentHandler はAssignmentHandlerを生成する。
// cacheMaxAgeが0以下の場合は5分を使用する。
func NewAssignmentHandler(service AssignmentServiceInterface, cacheMaxAge time.Duration) *AssignmentHandler {
	if cacheMaxAge <= 0 {
		cacheMaxAge = 5 * time.Minute
	}
	return &AssignmentHandler{
		service:     service,
		cacheMaxAge: cacheMaxAge,
	}
}

// createAssignmentRequest は単一割り当て作成リクエストのボディ。
type createAssignmentRequest struct {
	UserID   int64             `json:"user_id" validate:"required"`
	RoleID   int64             `json:"role_id" validate:"required"`
	StoreID  string            `json:"store_id" validate:"required"`
	Metadata map[string]string `json:"metadata"`
}

// assignmentTripleRequest は削除/切り替えリクエストのボディ。
type assignmentTripleRequest struct {
	UserID  int64  `json:"user_id" validate:"required"`
	RoleID  int64  `json:"role_id" validate:"required"`
	StoreID string `json:"store_id" validate:"required"`
}

// assignmentResponse は割り当てのAPIレスポンス。
type assignmentResponse struct {
	ID        *int64            `json:"id,omitempty"`
	UserID    int64             `json:"user_id"`
	RoleID    int64             `json:"role_id"`
	StoreID   string            `json:"store_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	IsActive  bool              `json:"is_active"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Create は単一割り当ての作成を処理する。
// POST /api/assignments
func (h *AssignmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAssignmentRequest
	if portalErr := decodeAndValidate(r, &req); portalErr != nil {
		middleware.WriteErrorResponse(w, mapPortalErrorToHTTPStatus(portalErr), portalErr)
		return
	}

	created, err := h.service.AssignSingle(r.Context(), req.UserID, req.RoleID, req.StoreID, req.Metadata)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAssignmentResponse(created))
}

// Remove は割り当ての削除を処理する。
// POST /api/assignments/remove
func (h *AssignmentHandler) Remove(w http.ResponseWriter, r *http.Request) {
	var req assignmentTripleRequest
	if portalErr := decodeAndValidate(r, &req); portalErr != nil {
		middleware.WriteErrorResponse(w, mapPortalErrorToHTTPStatus(portalErr), portalErr)
		return
	}

	if err := h.service.RemoveAssignment(r.Context(), req.UserID, req.RoleID, req.StoreID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Toggle は割り当ての有効/無効切り替えを処理する。
// POST /api/assignments/toggle
func (h *AssignmentHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	var req assignmentTripleRequest
	if portalErr := decodeAndValidate(r, &req); portalErr != nil {
		middleware.WriteErrorResponse(w, mapPortalErrorToHTTPStatus(portalErr), portalErr)
		return
	}

	updated, err := h.service.ToggleAssignment(r.Context(), req.UserID, req.RoleID, req.StoreID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAssignmentResponse(updated))
}

// ListByStore は店舗別の割り当て一覧を返す。
// GET /api/assignments/stores/{storeID}
func (h *AssignmentHandler) ListByStore(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeID")

	assignments, err := h.service.FetchStoreAssignments(r.Context(), storeID, h.cacheMaxAge)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAssignmentListResponse(assignments))
}

// ListByUser はユーザー別の割り当て一覧を返す。
// GET /api/assignments/users/{userID}
func (h *AssignmentHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("ユーザーIDは整数で指定してください"))
		return
	}

	assignments, err := h.service.FetchUserAssignments(r.Context(), userID, h.cacheMaxAge)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAssignmentListResponse(assignments))
}

// --- ヘルパー関数 ---

// toAssignmentResponse はmodel.AssignmentからAPIレスポンスに変換する。
func toAssignmentResponse(a *model.Assignment) assignmentResponse {
	return assignmentResponse{
		ID:        a.ID,
		UserID:    a.UserID,
		RoleID:    a.RoleID,
		StoreID:   a.StoreID,
		Metadata:  a.Metadata,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

// toAssignmentListResponse は割り当てスライスからAPIレスポンスに変換する。
// 空の場合も空配列を返す（nullにはならない）。
func toAssignmentListResponse(assignments []*model.Assignment) []assignmentResponse {
	result := make([]assignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		result = append(result, toAssignmentResponse(a))
	}
	return result
}
