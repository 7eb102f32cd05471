// Package portalapi はPizza PortalバックエンドのREST APIクライアントを提供する。
// /api/v1/user-role-store/* エンドポイントの呼び出し、Bearerトークンの付与、
// エラーの統一フォーマットへの正規化、リトライ/バックオフ戦略を含む。
package portalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pizzaportal/assignhub/internal/model"
)

const (
	// pathAssign は単一割り当て作成エンドポイントのパス。
	pathAssign = "/api/v1/user-role-store/assign"
	// pathRemove は割り当て削除エンドポイントのパス。
	pathRemove = "/api/v1/user-role-store/remove"
	// pathToggle は有効/無効切り替えエンドポイントのパス。
	pathToggle = "/api/v1/user-role-store/toggle"
	// pathBulkAssign はバルク割り当てエンドポイントのパス。
	pathBulkAssign = "/api/v1/user-role-store/bulk-assign"
	// pathStoreAssignments は店舗別割り当て一覧エンドポイントのパス。
	pathStoreAssignments = "/api/v1/user-role-store/store-assignments"
	// pathUserAssignments はユーザー別割り当て一覧エンドポイントのパス。
	pathUserAssignments = "/api/v1/user-role-store/user-assignments"
)

// MetricsRecorder はクライアントが記録するメトリクスのインターフェース。
// nilの場合は記録をスキップする。
type MetricsRecorder interface {
	RecordUpstreamRequest(operation string, statusCode int)
	RecordUpstreamRetry(operation string)
	RecordUpstreamLatency(operation string, duration time.Duration)
}

// Client はPizza Portal APIのクライアント。
// すべてのメソッドはcontext経由で渡されたBearerトークンをリクエストに付与する。
type Client struct {
	httpClient   *http.Client
	logger       *slog.Logger
	baseURL      string
	retryMax     int           // 失敗時の最大リトライ回数
	retryBackoff time.Duration // 線形バックオフの基準遅延（n回目の待機 = n × retryBackoff）
	metrics      MetricsRecorder
}

// ClientConfig はClientの生成パラメータ。
type ClientConfig struct {
	BaseURL      string
	Timeout      time.Duration // HTTPコールごとのタイムアウト（デフォルト30秒）
	RetryMax     int           // 最大リトライ回数（デフォルト3）
	RetryBackoff time.Duration // バックオフ基準遅延（デフォルト1秒）
	Metrics      MetricsRecorder
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retryMax := cfg.RetryMax
	if retryMax < 0 {
		retryMax = 3
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Client{
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
		baseURL:      cfg.BaseURL,
		retryMax:     retryMax,
		retryBackoff: backoff,
		metrics:      cfg.Metrics,
	}
}

// envelope はポータルAPIの共通レスポンスフォーマット。
type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Errors  map[string]string `json:"errors"`
}

// assignmentPayload はAPI上の割り当て表現。
type assignmentPayload struct {
	ID        *int64            `json:"id,omitempty"`
	UserID    int64             `json:"user_id"`
	RoleID    int64             `json:"role_id"`
	StoreID   string            `json:"store_id"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	IsActive  bool              `json:"is_active"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// toModel はassignmentPayloadからドメインモデルに変換する。
func (p *assignmentPayload) toModel() *model.Assignment {
	return &model.Assignment{
		ID:        p.ID,
		UserID:    p.UserID,
		RoleID:    p.RoleID,
		StoreID:   p.StoreID,
		Metadata:  p.Metadata,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// assignRequest は単一操作（assign/remove/toggle）のリクエストボディ。
type assignRequest struct {
	UserID   int64             `json:"user_id"`
	RoleID   int64             `json:"role_id"`
	StoreID  string            `json:"store_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
	IsActive bool              `json:"is_active"`
}

// bulkAssignRequest はバルク割り当てのリクエストボディ。
type bulkAssignRequest struct {
	UserID      int64             `json:"user_id"`
	Assignments []bulkItemPayload `json:"assignments"`
}

// bulkItemPayload はバルク割り当ての1タプル。
type bulkItemPayload struct {
	RoleID   int64             `json:"role_id"`
	StoreID  string            `json:"store_id"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Assign は単一割り当てを作成する。
// 作成されたAssignmentを返す。冪等キー付きでリトライされる。
func (c *Client) Assign(ctx context.Context, userID, roleID int64, storeID string, metadata map[string]string) (*model.Assignment, error) {
	body := assignRequest{
		UserID:   userID,
		RoleID:   roleID,
		StoreID:  storeID,
		Metadata: metadata,
		IsActive: true,
	}

	var payload assignmentPayload
	if err := c.doWrite(ctx, "assign", pathAssign, body, &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}

// Remove は(userID, roleID, storeID)で指定される割り当てを削除する。
// 呼び出し元から見て冪等であり、自動リトライされる。
func (c *Client) Remove(ctx context.Context, userID, roleID int64, storeID string) error {
	body := assignRequest{UserID: userID, RoleID: roleID, StoreID: storeID}
	return c.doWrite(ctx, "remove", pathRemove, body, nil)
}

// ToggleStatus は割り当ての有効/無効を切り替える。
// 更新後のAssignmentを返す。
func (c *Client) ToggleStatus(ctx context.Context, userID, roleID int64, storeID string) (*model.Assignment, error) {
	body := assignRequest{UserID: userID, RoleID: roleID, StoreID: storeID}

	var payload assignmentPayload
	if err := c.doWrite(ctx, "toggle", pathToggle, body, &payload); err != nil {
		return nil, err
	}
	return payload.toModel(), nil
}

// BulkAssign は1ユーザー分の(roleID, storeID, metadata)タプル群を一括作成する。
// バックエンドはバッチ単位でのみ成否を返すため、部分成功の粒度はユーザー単位となる。
func (c *Client) BulkAssign(ctx context.Context, userID int64, items []model.AssignmentItem) ([]*model.Assignment, error) {
	body := bulkAssignRequest{
		UserID:      userID,
		Assignments: make([]bulkItemPayload, 0, len(items)),
	}
	for _, item := range items {
		body.Assignments = append(body.Assignments, bulkItemPayload{
			RoleID:   item.RoleID,
			StoreID:  item.StoreID,
			Metadata: item.Metadata,
		})
	}

	var payloads []assignmentPayload
	if err := c.doWrite(ctx, "bulkAssign", pathBulkAssign, body, &payloads); err != nil {
		return nil, err
	}

	assignments := make([]*model.Assignment, 0, len(payloads))
	for i := range payloads {
		assignments = append(assignments, payloads[i].toModel())
	}
	return assignments, nil
}

// FetchByStore は指定店舗の割り当て一覧を取得する。
// 割り当てが存在しない店舗では空スライスを返す（エラーにはならない）。
func (c *Client) FetchByStore(ctx context.Context, storeID string) ([]*model.Assignment, error) {
	query := url.Values{"store_id": {storeID}}
	return c.fetchList(ctx, "fetchStoreAssignments", pathStoreAssignments, query)
}

// FetchByUser は指定ユーザーの割り当て一覧を取得する。
// 割り当てが存在しないユーザーでは空スライスを返す（エラーにはならない）。
func (c *Client) FetchByUser(ctx context.Context, userID int64) ([]*model.Assignment, error) {
	query := url.Values{"user_id": {strconv.FormatInt(userID, 10)}}
	return c.fetchList(ctx, "fetchUserAssignments", pathUserAssignments, query)
}

// fetchList はGET系エンドポイントから割り当て一覧を取得する。
func (c *Client) fetchList(ctx context.Context, operation, path string, query url.Values) ([]*model.Assignment, error) {
	var payloads []assignmentPayload
	if err := c.doWithRetry(ctx, operation, http.MethodGet, path, query, nil, "", &payloads); err != nil {
		return nil, err
	}

	assignments := make([]*model.Assignment, 0, len(payloads))
	for i := range payloads {
		assignments = append(assignments, payloads[i].toModel())
	}
	return assignments, nil
}

// doWrite はPOST系エンドポイントを冪等キー付きで呼び出す。
// 冪等キーは1回の論理呼び出しごとに生成され、リトライ間で不変となる。
// これにより一時的なネットワークエラーでのリトライが重複作成を引き起こさない。
func (c *Client) doWrite(ctx context.Context, operation, path string, body any, out any) error {
	idempotencyKey := uuid.New().String()
	return c.doWithRetry(ctx, operation, http.MethodPost, path, nil, body, idempotencyKey, out)
}

// doWithRetry はHTTPリクエストをリトライ付きで実行する。
// 読み取りは上流由来の失敗すべて、書き込みは一時的な失敗のみを
// リトライ対象とする（shouldRetryを参照）。
// バックオフはn回目の失敗後に n × retryBackoff 待機する線形方式。
func (c *Client) doWithRetry(ctx context.Context, operation, method, path string, query url.Values, body any, idempotencyKey string, out any) error {
	var lastErr error

	for attempt := 0; ; attempt++ {
		err := c.doOnce(ctx, operation, method, path, query, body, idempotencyKey, out)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= c.retryMax || !shouldRetry(method, err) {
			return lastErr
		}

		delay := backoffDelay(c.retryBackoff, attempt)
		c.logger.Warn("ポータルAPI呼び出しをリトライします",
			slog.String("operation", operation),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if c.metrics != nil {
			c.metrics.RecordUpstreamRetry(operation)
		}

		select {
		case <-ctx.Done():
			return model.NewNetworkError(ctx.Err().Error())
		case <-time.After(delay):
		}
	}
}

// doOnce はHTTPリクエストを1回実行し、レスポンスを正規化する。
func (c *Client) doOnce(ctx context.Context, operation, method, path string, query url.Values, body any, idempotencyKey string, out any) error {
	reqURL, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("リクエストURLの構築に失敗しました: %w", err)
	}
	if query != nil {
		reqURL.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Assignhub/1.0 Pizza Portal Gateway")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok := TokenFromContext(ctx); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// レスポンスがサーバーに到達しなかった場合（タイムアウト含む）
		c.logger.Error("ポータルAPIへのリクエストに失敗しました",
			slog.String("operation", operation),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return model.NewNetworkError(err.Error())
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordUpstreamRequest(operation, resp.StatusCode)
		c.metrics.RecordUpstreamLatency(operation, time.Since(start))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.NewNetworkError(fmt.Sprintf("レスポンスボディの読み取りに失敗しました: %s", err.Error()))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, respBody)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	if !env.Success {
		// 2xxだがsuccess=falseはサーバー側の契約違反として扱う
		return model.NewUnknownStatusError(resp.StatusCode)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("データ部のパースに失敗しました: %w", err)
		}
	}
	return nil
}
