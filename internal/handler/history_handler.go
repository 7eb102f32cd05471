package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/pizzaportal/assignhub/internal/model"
)

// 履歴一覧のデフォルト件数と上限。
const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// HistoryServiceInterface は送信履歴ハンドラーが必要とするサービスインターフェース。
type HistoryServiceInterface interface {
	// ListRecent は直近の送信履歴を新しい順に返す。
	ListRecent(ctx context.Context, limit int) ([]*model.SubmissionRecord, error)
}

// HistoryHandler はバルク送信履歴のHTTPハンドラー。
type HistoryHandler struct {
	service HistoryServiceInterface
}

// NewHistoryHandler はHistoryHandlerを生成する。
func NewHistoryHandler(service HistoryServiceInterface) *HistoryHandler {
	return &HistoryHandler{service: service}
}

// submissionRecordResponse は送信履歴レコードのAPIレスポンス。
type submissionRecordResponse struct {
	ID               string    `json:"id"`
	Operator         string    `json:"operator"`
	UserCount        int       `json:"user_count"`
	RoleCount        int       `json:"role_count"`
	StoreCount       int       `json:"store_count"`
	TotalAssignments int       `json:"total_assignments"`
	SucceededUsers   int       `json:"succeeded_users"`
	FailedUsers      int       `json:"failed_users"`
	CreatedAt        time.Time `json:"created_at"`
}

// List は直近の送信履歴一覧を返す。
// limitクエリパラメータで件数を指定できる（デフォルト20、上限100）。
// GET /api/history
func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	records, err := h.service.ListRecent(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result := make([]submissionRecordResponse, 0, len(records))
	for _, record := range records {
		result = append(result, submissionRecordResponse{
			ID:               record.ID,
			Operator:         record.Operator,
			UserCount:        record.UserCount,
			RoleCount:        record.RoleCount,
			StoreCount:       record.StoreCount,
			TotalAssignments: record.TotalAssignments,
			SucceededUsers:   record.SucceededUsers,
			FailedUsers:      record.FailedUsers,
			CreatedAt:        record.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, result)
}
