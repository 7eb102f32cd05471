package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pizzaportal/assignhub/internal/middleware"
	"github.com/pizzaportal/assignhub/internal/model"
	"github.com/pizzaportal/assignhub/internal/workflow"
)

// SelectionServiceInterface は選択状態ハンドラーが必要とするサービスインターフェース。
type SelectionServiceInterface interface {
	// ToggleUser はユーザーIDの選択状態を反転する。
	ToggleUser(id int64)
	// ToggleRole はロールIDの選択状態を反転する。
	ToggleRole(id int64)
	// ToggleStore は店舗IDの選択状態を反転する。
	ToggleStore(id string)
	// SelectAllUsers は表示中ユーザーに対する「すべて選択」トグルを実行する。
	SelectAllUsers(filtered []int64)
	// SelectAllRoles は表示中ロールに対する「すべて選択」トグルを実行する。
	SelectAllRoles(filtered []int64)
	// SelectAllStores は表示中店舗に対する「すべて選択」トグルを実行する。
	SelectAllStores(filtered []string)
	// ClearSelection は選択状態をすべてクリアする。
	ClearSelection()
	// State は現在の選択状態と進捗のスナップショットを返す。
	State() workflow.State
	// Submit は「割り当てを確定」操作を実行する。
	Submit(ctx context.Context, operator string) (*workflow.SubmissionResult, error)
}

// 選択対象の種別（URLパラメータ {kind}）
const (
	kindUsers  = "users"
	kindRoles  = "roles"
	kindStores = "stores"
)

// SelectionHandler は選択ワークフローのHTTPハンドラー。
type SelectionHandler struct {
	service SelectionServiceInterface
}

// NewSelectionHandler はSelectionHandlerを生成する。
func NewSelectionHandler(service SelectionServiceInterface) *SelectionHandler {
	return &SelectionHandler{service: service}
}

// toggleIDRequest はユーザー/ロールのトグルリクエストのボディ。
type toggleIDRequest struct {
	ID int64 `json:"id" validate:"required"`
}

// toggleStoreRequest は店舗のトグルリクエストのボディ。
type toggleStoreRequest struct {
	ID string `json:"id" validate:"required"`
}

// selectAllIDsRequest はユーザー/ロールの「すべて選択」リクエストのボディ。
// idsには現在表示中（フィルタ適用後）のID一覧を渡す。
type selectAllIDsRequest struct {
	IDs []int64 `json:"ids" validate:"required"`
}

// selectAllStoresRequest は店舗の「すべて選択」リクエストのボディ。
type selectAllStoresRequest struct {
	IDs []string `json:"ids" validate:"required"`
}

// submissionResultResponse はバルク送信結果のAPIレスポンス。
type submissionResultResponse struct {
	Success          bool      `json:"success"`
	SuccessCount     int       `json:"success_count"`
	FailureCount     int       `json:"failure_count"`
	UserCount        int       `json:"user_count"`
	RoleCount        int       `json:"role_count"`
	StoreCount       int       `json:"store_count"`
	TotalAssignments int       `json:"total_assignments"`
	Message          string    `json:"message"`
	SubmittedAt      time.Time `json:"submitted_at"`
}

// selectionStateResponse は選択状態スナップショットのAPIレスポンス。
type selectionStateResponse struct {
	Users          []int64                   `json:"users"`
	Roles          []int64                   `json:"roles"`
	Stores         []string                  `json:"stores"`
	UsersSelected  bool                      `json:"users_selected"`
	RolesSelected  bool                      `json:"roles_selected"`
	StoresSelected bool                      `json:"stores_selected"`
	CompletedSteps int                       `json:"completed_steps"`
	Progress       float64                   `json:"progress"`
	CanSubmit      bool                      `json:"can_submit"`
	LastResult     *submissionResultResponse `json:"last_result,omitempty"`
}

// Toggle は選択対象のトグルを処理する。
// POST /api/selection/{kind}/toggle
func (h *SelectionHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")

	switch kind {
	case kindUsers, kindRoles:
		var req toggleIDRequest
		if portalErr := decodeAndValidate(r, &req); portalErr != nil {
			middleware.WriteErrorResponse(w, mapPortalErrorToHTTPStatus(portalErr), portalErr)
			return
		}
		if kind == kindUsers {
			h.service.ToggleUser(req.ID)
		} else {
			h.service.ToggleRole(req.ID)
		}
	case kindStores:
		var req toggleStoreRequest
		if portalErr := decodeAndValidate(r, &req); portalErr != nil {
			middleware.WriteErrorResponse(w, mapPortalErrorToHTTPStatus(portalErr), portalErr)
			return
		}
		h.service.ToggleStore(req.ID)
	default:
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError("選択対象の種別 "+kind))
		return
	}

	writeJSON(w, http.StatusOK, toStateResponse(h.service.State()))
}

// SelectAll は表示中一覧に対する「すべて選択」トグルを処理する。
// 表示中の全件が選択済みであれば選択全体をクリアし、
// そうでなければ表示中の全件を選択に追加する。
// POST /api/selection/{kind}/select-all
func (h *SelectionHandler) SelectAll(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")

	switch kind {
	case kindUsers, kindRoles:
		var req selectAllIDsRequest
		if portalErr := decodeAndValidate(r, &req); portalErr != nil {
			middleware.WriteErrorResponse(w, mapPortalErrorToHTTPStatus(portalErr), portalErr)
			return
		}
		if kind == kindUsers {
			h.service.SelectAllUsers(req.IDs)
		} else {
			h.service.SelectAllRoles(req.IDs)
		}
	case kindStores:
		var req selectAllStoresRequest
		if portalErr := decodeAndValidate(r, &req); portalErr != nil {
			middleware.WriteErrorResponse(w, mapPortalErrorToHTTPStatus(portalErr), portalErr)
			return
		}
		h.service.SelectAllStores(req.IDs)
	default:
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNotFoundError("選択対象の種別 "+kind))
		return
	}

	writeJSON(w, http.StatusOK, toStateResponse(h.service.State()))
}

// Clear は明示的な「選択をクリア」操作を処理する。
// DELETE /api/selection
func (h *SelectionHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.service.ClearSelection()
	w.WriteHeader(http.StatusNoContent)
}

// GetState は現在の選択状態と進捗を返す。
// GET /api/selection
func (h *SelectionHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toStateResponse(h.service.State()))
}

// Confirm は「割り当てを確定」操作を処理する。
// 部分失敗も送信結果として200で返す（結果はエラーではなくデータとして扱う）。
// POST /api/assignments/confirm
func (h *SelectionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	operator, ok := requireOperator(w, r)
	if !ok {
		return
	}

	result, err := h.service.Submit(r.Context(), operator)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSubmissionResultResponse(result))
}

// --- ヘルパー関数 ---

// toStateResponse はworkflow.StateからAPIレスポンスに変換する。
func toStateResponse(state workflow.State) selectionStateResponse {
	return selectionStateResponse{
		Users:          state.Users,
		Roles:          state.Roles,
		Stores:         state.Stores,
		UsersSelected:  state.UsersSelected,
		RolesSelected:  state.RolesSelected,
		StoresSelected: state.StoresSelected,
		CompletedSteps: state.CompletedSteps,
		Progress:       state.Progress,
		CanSubmit:      state.CanSubmit,
		LastResult:     toSubmissionResultResponse(state.LastResult),
	}
}

// toSubmissionResultResponse はSubmissionResultからAPIレスポンスに変換する。
// nilの場合はnilを返す。
func toSubmissionResultResponse(result *workflow.SubmissionResult) *submissionResultResponse {
	if result == nil {
		return nil
	}
	return &submissionResultResponse{
		Success:          result.Success,
		SuccessCount:     result.SuccessCount,
		FailureCount:     result.FailureCount,
		UserCount:        result.UserCount,
		RoleCount:        result.RoleCount,
		StoreCount:       result.StoreCount,
		TotalAssignments: result.TotalAssignments,
		Message:          result.Message,
		SubmittedAt:      result.SubmittedAt,
	}
}
