// Package store は割り当てキャッシュ（状態ストア）を提供する。
//
// スペック上の「byStore / byUser の二重インデックス」は乖離しうる設計だったため、
// ここではTripleKeyをキーとする正規マップ1つと、
// そこから導出される店舗別・ユーザー別ビューに再設計している。
// 正規エントリへの更新は両ビューに即座に反映される。
//
// すべての変更は単一ライター規律（1つのミューテックス配下での
// アトミックなスライス差し替え）で行われる。
package store

import (
	"strconv"
	"sync"
	"time"

	"github.com/pizzaportal/assignhub/internal/model"
)

// DefaultMaxAge はキャッシュ鮮度の既定ウィンドウ（5分）。
const DefaultMaxAge = 5 * time.Minute

// CacheKey は鮮度追跡用のキャッシュキー。
type CacheKey string

// StoreKey は店舗別一覧のキャッシュキーを生成する。
func StoreKey(storeID string) CacheKey {
	return CacheKey("store:" + storeID)
}

// UserKey はユーザー別一覧のキャッシュキーを生成する。
func UserKey(userID int64) CacheKey {
	return CacheKey("user:" + strconv.FormatInt(userID, 10))
}

// OperationState は操作種別ごとの読み込み/エラー状態を表す。
// 操作種別間で独立しており、例えばバルク割り当ての失敗が
// 並行するフェッチをブロックすることはない。
type OperationState struct {
	Loading bool
	Err     error
}

// Sanitizer は自由形式メタデータのサニタイズインターフェース。
type Sanitizer interface {
	Sanitize(raw string) string
}

// Store は割り当てキャッシュの実装。
type Store struct {
	mu          sync.RWMutex
	canonical   map[model.TripleKey]*model.Assignment
	byStore     map[string][]model.TripleKey // 店舗別の順序付きインデックス
	byUser      map[int64][]model.TripleKey  // ユーザー別の順序付きインデックス
	lastUpdated map[CacheKey]time.Time
	ops         map[model.OperationKind]OperationState
	sanitizer   Sanitizer
	now         func() time.Time // テスト用に差し替え可能
}

// New はStoreの新しいインスタンスを生成する。
// sanitizerがnilでない場合、キャッシュに入るメタデータ値はすべてサニタイズされる。
func New(sanitizer Sanitizer) *Store {
	return &Store{
		canonical:   make(map[model.TripleKey]*model.Assignment),
		byStore:     make(map[string][]model.TripleKey),
		byUser:      make(map[int64][]model.TripleKey),
		lastUpdated: make(map[CacheKey]time.Time),
		ops:         make(map[model.OperationKind]OperationState),
		sanitizer:   sanitizer,
		now:         time.Now,
	}
}

// SetStoreAssignments は店舗別一覧のフェッチ結果でキャッシュを更新する。
// 店舗インデックスを丸ごと差し替え、正規エントリをアップサートする。
func (s *Store) SetStoreAssignments(storeID string, assignments []*model.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]model.TripleKey, 0, len(assignments))
	for _, a := range assignments {
		entry := s.cloneSanitized(a)
		s.canonical[entry.Key()] = entry
		keys = append(keys, entry.Key())
	}
	s.byStore[storeID] = keys
	s.lastUpdated[StoreKey(storeID)] = s.now()
}

// SetUserAssignments はユーザー別一覧のフェッチ結果でキャッシュを更新する。
func (s *Store) SetUserAssignments(userID int64, assignments []*model.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]model.TripleKey, 0, len(assignments))
	for _, a := range assignments {
		entry := s.cloneSanitized(a)
		s.canonical[entry.Key()] = entry
		keys = append(keys, entry.Key())
	}
	s.byUser[userID] = keys
	s.lastUpdated[UserKey(userID)] = s.now()
}

// Upsert は単一の割り当て（assign/toggleの結果）を正規エントリに反映する。
// 正規エントリの更新は店舗別・ユーザー別の両ビューに即座に反映される。
func (s *Store) Upsert(a *model.Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := s.cloneSanitized(a)
	s.canonical[entry.Key()] = entry
}

// Delete は正規エントリと各インデックスから割り当てを取り除く。
func (s *Store) Delete(key model.TripleKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.canonical, key)
	s.byStore[key.StoreID] = removeKey(s.byStore[key.StoreID], key)
	s.byUser[key.UserID] = removeKey(s.byUser[key.UserID], key)
}

// ByStore は店舗別の割り当て一覧を導出して返す。
// キャッシュに存在しない店舗では空スライスを返す。
func (s *Store) ByStore(storeID string) []*model.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolve(s.byStore[storeID])
}

// ByUser はユーザー別の割り当て一覧を導出して返す。
// キャッシュに存在しないユーザーでは空スライスを返す。
func (s *Store) ByUser(userID int64) []*model.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resolve(s.byUser[userID])
}

// Get は正規エントリから割り当てを取得する。見つからない場合はnilを返す。
func (s *Store) Get(key model.TripleKey) *model.Assignment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canonical[key]
}

// IsFresh はキャッシュキーの鮮度を判定する。
// これは助言的なチェックであり、呼び出し元がフェッチ前に確認する責務を持つ。
func (s *Store) IsFresh(key CacheKey, maxAge time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	updated, ok := s.lastUpdated[key]
	if !ok {
		return false
	}
	return s.now().Sub(updated) < maxAge
}

// Invalidate はキャッシュキーの鮮度タイムスタンプを破棄する。
// 次回のIsFreshはfalseを返し、呼び出し元に再フェッチを促す。
func (s *Store) Invalidate(key CacheKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.lastUpdated, key)
}

// StaleKeys は鮮度ウィンドウを超過した追跡中キャッシュキーの一覧を返す。
// バックグラウンドの再フェッチワーカーが使用する。
func (s *Store) StaleKeys(maxAge time.Duration) []CacheKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stale []CacheKey
	now := s.now()
	for key, updated := range s.lastUpdated {
		if now.Sub(updated) >= maxAge {
			stale = append(stale, key)
		}
	}
	return stale
}

// BeginOperation は操作の開始を記録する。前回のエラーはクリアされる。
func (s *Store) BeginOperation(kind model.OperationKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[kind] = OperationState{Loading: true}
}

// FinishOperation は操作の完了を記録する。errがnilなら成功扱いとなる。
func (s *Store) FinishOperation(kind model.OperationKind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops[kind] = OperationState{Loading: false, Err: err}
}

// OperationState は操作種別の現在の状態を返す。
func (s *Store) OperationState(kind model.OperationKind) OperationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ops[kind]
}

// --- 内部ヘルパー ---

// resolve はインデックスのキー列を正規エントリに解決する。
// 呼び出し元がロックを保持していること。
func (s *Store) resolve(keys []model.TripleKey) []*model.Assignment {
	result := make([]*model.Assignment, 0, len(keys))
	for _, key := range keys {
		if a, ok := s.canonical[key]; ok {
			result = append(result, a)
		}
	}
	return result
}

// cloneSanitized は外部からの変更と隔離するためにコピーを作り、
// メタデータ値をサニタイズする。
func (s *Store) cloneSanitized(a *model.Assignment) *model.Assignment {
	entry := *a
	if a.Metadata != nil {
		entry.Metadata = make(map[string]string, len(a.Metadata))
		for k, v := range a.Metadata {
			if s.sanitizer != nil {
				v = s.sanitizer.Sanitize(v)
			}
			entry.Metadata[k] = v
		}
	}
	return &entry
}

// removeKey はキー列から指定キーを取り除いた新しいスライスを返す。
func removeKey(keys []model.TripleKey, target model.TripleKey) []model.TripleKey {
	result := make([]model.TripleKey, 0, len(keys))
	for _, key := range keys {
		if key != target {
			result = append(result, key)
		}
	}
	return result
}
