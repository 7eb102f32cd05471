package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pizzaportal/assignhub/internal/model"
	"github.com/pizzaportal/assignhub/internal/store"
)

// defaultBulkNotes はバルク割り当て時にメタデータへ付与される備考の既定値。
const defaultBulkNotes = "Bulk assignment via Assignment Page"

// defaultClearDelay は送信成功後に選択状態を自動クリアするまでの表示遅延。
// ユーザーが結果バナーを読むための猶予であり、正しさには関与しない。
const defaultClearDelay = 3 * time.Second

// APIClient はコントローラが必要とするポータルAPIクライアントのインターフェース。
type APIClient interface {
	Assign(ctx context.Context, userID, roleID int64, storeID string, metadata map[string]string) (*model.Assignment, error)
	Remove(ctx context.Context, userID, roleID int64, storeID string) error
	ToggleStatus(ctx context.Context, userID, roleID int64, storeID string) (*model.Assignment, error)
	BulkAssign(ctx context.Context, userID int64, items []model.AssignmentItem) ([]*model.Assignment, error)
	FetchByStore(ctx context.Context, storeID string) ([]*model.Assignment, error)
	FetchByUser(ctx context.Context, userID int64) ([]*model.Assignment, error)
}

// HistoryRecorder はバルク送信履歴の記録インターフェース。
type HistoryRecorder interface {
	Record(ctx context.Context, record *model.SubmissionRecord) error
}

// MetricsRecorder はワークフローが記録するメトリクスのインターフェース。
// nilの場合は記録をスキップする。
type MetricsRecorder interface {
	RecordBulkSubmission(outcome string)
	RecordAssignmentsSubmitted(count int)
}

// SubmissionResult はバルク送信の集約結果を表す。
// 成否はユーザー単位の結果の集計であり、個々の失敗ユーザーは特定されない
// （バックエンドの契約上の制限）。
type SubmissionResult struct {
	Success          bool
	SuccessCount     int // 成功したユーザー数
	FailureCount     int // 失敗したユーザー数
	UserCount        int
	RoleCount        int
	StoreCount       int
	TotalAssignments int // UserCount × RoleCount × StoreCount
	Message          string
	SubmittedAt      time.Time
}

// Config はControllerの生成パラメータ。
type Config struct {
	ClearDelay time.Duration // 送信成功後の選択クリア遅延（デフォルト3秒）
	BulkNotes  string        // バルク割り当てのnotesメタデータ（デフォルトあり）
}

// Controller はバルク割り当てワークフローのコントローラ。
// 選択状態とキャッシュの仲介、送信アルゴリズムの実行を担う。
// キャッシュの変更は必ずstore.Store経由で行い、直接は保持しない。
type Controller struct {
	mu        sync.Mutex
	selection *Selection
	version   int // 選択状態の世代。遅延クリアの無効化判定に使う

	client  APIClient
	cache   *store.Store
	history HistoryRecorder
	metrics MetricsRecorder
	logger  *slog.Logger

	clearDelay time.Duration
	bulkNotes  string
	now        func() time.Time

	lastResult *SubmissionResult
}

// NewController はControllerの新しいインスタンスを生成する。
// historyとmetricsはnilを許容する。
func NewController(client APIClient, cache *store.Store, history HistoryRecorder, metrics MetricsRecorder, logger *slog.Logger, cfg Config) *Controller {
	clearDelay := cfg.ClearDelay
	if clearDelay <= 0 {
		clearDelay = defaultClearDelay
	}
	notes := cfg.BulkNotes
	if notes == "" {
		notes = defaultBulkNotes
	}
	return &Controller{
		selection:  NewSelection(),
		client:     client,
		cache:      cache,
		history:    history,
		metrics:    metrics,
		logger:     logger,
		clearDelay: clearDelay,
		bulkNotes:  notes,
		now:        time.Now,
	}
}

// --- 選択状態の操作 ---

// ToggleUser はユーザーIDの選択状態を反転する。
func (c *Controller) ToggleUser(id int64) { c.mutateSelection(func(s *Selection) { s.ToggleUser(id) }) }

// ToggleRole はロールIDの選択状態を反転する。
func (c *Controller) ToggleRole(id int64) { c.mutateSelection(func(s *Selection) { s.ToggleRole(id) }) }

// ToggleStore は店舗IDの選択状態を反転する。
func (c *Controller) ToggleStore(id string) {
	c.mutateSelection(func(s *Selection) { s.ToggleStore(id) })
}

// SelectAllUsers は表示中ユーザーに対する「すべて選択」トグルを実行する。
func (c *Controller) SelectAllUsers(filtered []int64) {
	c.mutateSelection(func(s *Selection) { s.SelectAllUsers(filtered) })
}

// SelectAllRoles は表示中ロールに対する「すべて選択」トグルを実行する。
func (c *Controller) SelectAllRoles(filtered []int64) {
	c.mutateSelection(func(s *Selection) { s.SelectAllRoles(filtered) })
}

// SelectAllStores は表示中店舗に対する「すべて選択」トグルを実行する。
func (c *Controller) SelectAllStores(filtered []string) {
	c.mutateSelection(func(s *Selection) { s.SelectAllStores(filtered) })
}

// ClearSelection は明示的な「選択をクリア」操作を実行する。
func (c *Controller) ClearSelection() {
	c.mutateSelection(func(s *Selection) { s.Clear() })
}

// mutateSelection は選択状態を変更し、世代カウンタを進める。
// 世代が進むと、送信済みの遅延クリアコールバックは無効化される。
func (c *Controller) mutateSelection(fn func(*Selection)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c.selection)
	c.version++
}

// State はハンドラへ公開する選択状態のスナップショットを返す。
type State struct {
	Users          []int64
	Roles          []int64
	Stores         []string
	UsersSelected  bool
	RolesSelected  bool
	StoresSelected bool
	CompletedSteps int
	Progress       float64
	CanSubmit      bool
	LastResult     *SubmissionResult
}

// State は現在の選択状態と進捗のスナップショットを返す。
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Users:          c.selection.Users(),
		Roles:          c.selection.Roles(),
		Stores:         c.selection.Stores(),
		UsersSelected:  c.selection.UsersSelected(),
		RolesSelected:  c.selection.RolesSelected(),
		StoresSelected: c.selection.StoresSelected(),
		CompletedSteps: c.selection.CompletedSteps(),
		Progress:       c.selection.ProgressPercentage(),
		CanSubmit:      c.selection.CanSubmit(),
		LastResult:     c.lastResult,
	}
}

// --- 送信アルゴリズム ---

// ExpandItems は選択ロール×選択店舗のデカルト積を割り当てタプルに展開する。
// 各タプルには固定メタデータ（start_date, notes）が付与される。
func ExpandItems(roles []int64, stores []string, notes string, now time.Time) []model.AssignmentItem {
	items := make([]model.AssignmentItem, 0, len(roles)*len(stores))
	for _, roleID := range roles {
		for _, storeID := range stores {
			items = append(items, model.AssignmentItem{
				RoleID:  roleID,
				StoreID: storeID,
				Metadata: map[string]string{
					model.MetadataKeyStartDate: now.Format(time.RFC3339),
					model.MetadataKeyNotes:     notes,
				},
			})
		}
	}
	return items
}

// Submit は「割り当てを確定」操作を実行する。
//
//  1. 選択ユーザーごとに選択ロール×選択店舗のデカルト積を展開する
//  2. ユーザーごとのBulkAssignをすべて並行に発行する（逐次ではない）
//  3. settle-allセマンティクスで全呼び出しの成否を収集する
//     （どの呼び出しの失敗も他をキャンセルしない）
//  4. 成功/失敗をユーザー単位で集計する
//  5. 全件成功の場合のみ、表示遅延の後に選択状態を自動クリアする
//
// 3ステップ未完了の場合はSUBMIT_INCOMPLETEエラーを返す。
func (c *Controller) Submit(ctx context.Context, operator string) (*SubmissionResult, error) {
	c.mu.Lock()
	if !c.selection.CanSubmit() {
		c.mu.Unlock()
		return nil, model.NewSubmitIncompleteError()
	}
	users := c.selection.Users()
	roles := c.selection.Roles()
	stores := c.selection.Stores()
	version := c.version
	c.mu.Unlock()

	items := ExpandItems(roles, stores, c.bulkNotes, c.now())

	c.cache.BeginOperation(model.OpBulkAssign)

	// ユーザーごとのバルク呼び出しをすべて並行に発行し、全結果を収集する。
	// 完了順序に保証はないが、集約は件数のみなので順序に依存しない。
	outcomes := make([]error, len(users))
	var wg sync.WaitGroup
	for i, userID := range users {
		wg.Add(1)
		go func(i int, userID int64) {
			defer wg.Done()
			_, err := c.client.BulkAssign(ctx, userID, items)
			outcomes[i] = err
			if err != nil {
				c.logger.Error("ユーザーのバルク割り当てに失敗しました",
					slog.Int64("user_id", userID),
					slog.Int("item_count", len(items)),
					slog.String("error", err.Error()),
				)
			}
		}(i, userID)
	}
	wg.Wait()

	successCount := 0
	for _, err := range outcomes {
		if err == nil {
			successCount++
		}
	}
	failureCount := len(users) - successCount

	result := &SubmissionResult{
		Success:          failureCount == 0,
		SuccessCount:     successCount,
		FailureCount:     failureCount,
		UserCount:        len(users),
		RoleCount:        len(roles),
		StoreCount:       len(stores),
		TotalAssignments: len(users) * len(roles) * len(stores),
		SubmittedAt:      c.now(),
	}
	if result.Success {
		result.Message = fmt.Sprintf(
			"%d人のユーザーへ合計%d件の割り当てを作成しました（店舗 %d件）。",
			result.UserCount, result.TotalAssignments, result.StoreCount,
		)
		c.cache.FinishOperation(model.OpBulkAssign, nil)
	} else {
		result.Message = fmt.Sprintf(
			"%d人分は成功、%d人分は失敗しました。失敗したユーザーの割り当てを再実行してください。",
			result.SuccessCount, result.FailureCount,
		)
		c.cache.FinishOperation(model.OpBulkAssign, fmt.Errorf("%d/%d人分のバルク割り当てに失敗", failureCount, len(users)))
	}

	if c.metrics != nil {
		if result.Success {
			c.metrics.RecordBulkSubmission("success")
		} else {
			c.metrics.RecordBulkSubmission("partial_failure")
		}
		c.metrics.RecordAssignmentsSubmitted(successCount * len(items))
	}

	// 影響を受けたキャッシュキーを無効化し、次回アクセスで再フェッチさせる
	for _, storeID := range stores {
		c.cache.Invalidate(store.StoreKey(storeID))
	}
	for _, userID := range users {
		c.cache.Invalidate(store.UserKey(userID))
	}

	c.recordHistory(ctx, operator, result)

	c.mu.Lock()
	c.lastResult = result
	c.mu.Unlock()

	// 全件成功時のみ、結果バナーの表示遅延の後に選択を自動クリアする。
	// 遅延中に選択が変更された場合、このコールバックは何もしない。
	if result.Success {
		time.AfterFunc(c.clearDelay, func() {
			c.clearIfUnchanged(version)
		})
	}

	return result, nil
}

// clearIfUnchanged は世代が一致する場合のみ選択状態をクリアする。
func (c *Controller) clearIfUnchanged(version int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.version != version {
		return
	}
	c.selection.Clear()
	c.version++
}

// recordHistory は送信履歴を永続化する。失敗はログのみで送信結果には影響しない。
func (c *Controller) recordHistory(ctx context.Context, operator string, result *SubmissionResult) {
	if c.history == nil {
		return
	}
	record := &model.SubmissionRecord{
		ID:               uuid.New().String(),
		Operator:         operator,
		UserCount:        result.UserCount,
		RoleCount:        result.RoleCount,
		StoreCount:       result.StoreCount,
		TotalAssignments: result.TotalAssignments,
		SucceededUsers:   result.SuccessCount,
		FailedUsers:      result.FailureCount,
		CreatedAt:        result.SubmittedAt,
	}
	if err := c.history.Record(ctx, record); err != nil {
		c.logger.Error("送信履歴の記録に失敗しました",
			slog.String("submission_id", record.ID),
			slog.String("error", err.Error()),
		)
	}
}

// --- 単一割り当て・個別操作 ---

// AssignSingle は単一割り当てパス（非バルクページ）を実行する。
// ちょうど1ユーザー・1ロール・1店舗に対する1回のassign呼び出しであり、
// デカルト積展開は行われない。
func (c *Controller) AssignSingle(ctx context.Context, userID, roleID int64, storeID string, metadata map[string]string) (*model.Assignment, error) {
	c.cache.BeginOperation(model.OpAssign)
	created, err := c.client.Assign(ctx, userID, roleID, storeID, metadata)
	c.cache.FinishOperation(model.OpAssign, err)
	if err != nil {
		return nil, err
	}
	c.cache.Upsert(created)
	c.cache.Invalidate(store.StoreKey(storeID))
	c.cache.Invalidate(store.UserKey(userID))
	return created, nil
}

// RemoveAssignment は割り当てを削除し、キャッシュから取り除く。
func (c *Controller) RemoveAssignment(ctx context.Context, userID, roleID int64, storeID string) error {
	c.cache.BeginOperation(model.OpRemove)
	err := c.client.Remove(ctx, userID, roleID, storeID)
	c.cache.FinishOperation(model.OpRemove, err)
	if err != nil {
		return err
	}
	c.cache.Delete(model.TripleKey{UserID: userID, RoleID: roleID, StoreID: storeID})
	return nil
}

// ToggleAssignment は割り当ての有効/無効を切り替え、キャッシュに反映する。
func (c *Controller) ToggleAssignment(ctx context.Context, userID, roleID int64, storeID string) (*model.Assignment, error) {
	c.cache.BeginOperation(model.OpToggle)
	updated, err := c.client.ToggleStatus(ctx, userID, roleID, storeID)
	c.cache.FinishOperation(model.OpToggle, err)
	if err != nil {
		return nil, err
	}
	c.cache.Upsert(updated)
	return updated, nil
}

// --- 鮮度を考慮したフェッチ ---

// FetchStoreAssignments は店舗別の割り当て一覧を返す。
// キャッシュが鮮度ウィンドウ内であれば再フェッチせずキャッシュを返す。
func (c *Controller) FetchStoreAssignments(ctx context.Context, storeID string, maxAge time.Duration) ([]*model.Assignment, error) {
	if c.cache.IsFresh(store.StoreKey(storeID), maxAge) {
		return c.cache.ByStore(storeID), nil
	}

	c.cache.BeginOperation(model.OpFetchStoreAssignments)
	assignments, err := c.client.FetchByStore(ctx, storeID)
	c.cache.FinishOperation(model.OpFetchStoreAssignments, err)
	if err != nil {
		return nil, err
	}
	c.cache.SetStoreAssignments(storeID, assignments)
	return c.cache.ByStore(storeID), nil
}

// FetchUserAssignments はユーザー別の割り当て一覧を返す。
// キャッシュが鮮度ウィンドウ内であれば再フェッチせずキャッシュを返す。
func (c *Controller) FetchUserAssignments(ctx context.Context, userID int64, maxAge time.Duration) ([]*model.Assignment, error) {
	if c.cache.IsFresh(store.UserKey(userID), maxAge) {
		return c.cache.ByUser(userID), nil
	}

	c.cache.BeginOperation(model.OpFetchUserAssignments)
	assignments, err := c.client.FetchByUser(ctx, userID)
	c.cache.FinishOperation(model.OpFetchUserAssignments, err)
	if err != nil {
		return nil, err
	}
	c.cache.SetUserAssignments(userID, assignments)
	return c.cache.ByUser(userID), nil
}
