package handler

import (
	"context"
	"net/http"

	"github.com/pizzaportal/assignhub/internal/middleware"
)

// PreferenceServiceInterface はオペレーター設定ハンドラーが必要とするサービスインターフェース。
type PreferenceServiceInterface interface {
	// GetSelectedStore はオペレーターが最後に選択した店舗IDを返す。未設定の場合は空文字。
	GetSelectedStore(ctx context.Context, operatorID string) (string, error)
	// SetSelectedStore は選択中店舗IDを保存する（upsert）。
	SetSelectedStore(ctx context.Context, operatorID, storeID string) error
}

// PreferenceHandler はオペレーター設定のHTTPハンドラー。
// 店舗選択はオペレーター単位で永続化され、次回アクセス時に復元される。
type PreferenceHandler struct {
	service PreferenceServiceInterface
}

// NewPreferenceHandler はPreferenceHandlerを生成する。
func NewPreferenceHandler(service PreferenceServiceInterface) *PreferenceHandler {
	return &PreferenceHandler{service: service}
}

// selectedStoreRequest は選択中店舗の更新リクエストのボディ。
type selectedStoreRequest struct {
	StoreID string `json:"store_id" validate:"required"`
}

// selectedStoreResponse は選択中店舗のAPIレスポンス。
// 未設定の場合store_idは空文字となる。
type selectedStoreResponse struct {
	StoreID string `json:"store_id"`
}

// GetSelectedStore は選択中店舗の取得を処理する。
// GET /api/preferences/selected-store
func (h *PreferenceHandler) GetSelectedStore(w http.ResponseWriter, r *http.Request) {
	operator, ok := requireOperator(w, r)
	if !ok {
		return
	}

	storeID, err := h.service.GetSelectedStore(r.Context(), operator)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, selectedStoreResponse{StoreID: storeID})
}

// PutSelectedStore は選択中店舗の保存を処理する。
// PUT /api/preferences/selected-store
func (h *PreferenceHandler) PutSelectedStore(w http.ResponseWriter, r *http.Request) {
	operator, ok := requireOperator(w, r)
	if !ok {
		return
	}

	var req selectedStoreRequest
	if portalErr := decodeAndValidate(r, &req); portalErr != nil {
		middleware.WriteErrorResponse(w, mapPortalErrorToHTTPStatus(portalErr), portalErr)
		return
	}

	if err := h.service.SetSelectedStore(r.Context(), operator, req.StoreID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
