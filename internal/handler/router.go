package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pizzaportal/assignhub/internal/middleware"
)

// WorkflowService は選択ワークフローと割り当て操作をまとめたインターフェース。
// workflow.Controllerが実装する。
type WorkflowService interface {
	SelectionServiceInterface
	AssignmentServiceInterface
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ワークフロー
	Workflow    WorkflowService
	CacheMaxAge time.Duration

	// 設定・履歴
	Preferences PreferenceServiceInterface
	History     HistoryServiceInterface

	// メトリクスエンドポイント（nilの場合は公開しない）
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORS → SecurityHeaders → Logging → Recovery → Auth → RateLimit(General)
//
// /health と /metrics は認証チェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware())

	selectionHandler := NewSelectionHandler(deps.Workflow)
	assignmentHandler := NewAssignmentHandler(deps.Workflow, deps.CacheMaxAge)
	preferenceHandler := NewPreferenceHandler(deps.Preferences)
	historyHandler := NewHistoryHandler(deps.History)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 選択ワークフロー
		r.Route("/api/selection", func(r chi.Router) {
			r.Get("/", selectionHandler.GetState)
			r.Delete("/", selectionHandler.Clear)
			r.Post("/{kind}/toggle", selectionHandler.Toggle)
			r.Post("/{kind}/select-all", selectionHandler.SelectAll)
		})

		// 割り当て操作
		r.Route("/api/assignments", func(r chi.Router) {
			// POST /api/assignments/confirm - バルク確定（確定専用レート制限を追加）
			r.With(deps.RateLimiter.SubmitMiddleware()).Post("/confirm", selectionHandler.Confirm)

			r.Post("/", assignmentHandler.Create)
			r.Post("/remove", assignmentHandler.Remove)
			r.Post("/toggle", assignmentHandler.Toggle)

			r.Get("/stores/{storeID}", assignmentHandler.ListByStore)
			r.Get("/users/{userID}", assignmentHandler.ListByUser)
		})

		// オペレーター設定
		r.Route("/api/preferences", func(r chi.Router) {
			r.Get("/selected-store", preferenceHandler.GetSelectedStore)
			r.Put("/selected-store", preferenceHandler.PutSelectedStore)
		})

		// 送信履歴
		r.Get("/api/history", historyHandler.List)
	})

	return r
}
