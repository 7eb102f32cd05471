// Package model はドメインモデルを定義する。
package model

import "time"

// Assignment はユーザー・ロール・店舗の割り当てを表す。
// (UserID, RoleID, StoreID) の3つ組が自然キーとなるが、
// 一意性の強制はバックエンド側の責務であり、クライアント側では保証しない。
type Assignment struct {
	ID        *int64            // 永続化されるまではnil
	UserID    int64
	RoleID    int64
	StoreID   string
	Metadata  map[string]string // 自由形式（慣習的に start_date, notes を含む）
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TripleKey は割り当ての自然キー (UserID, RoleID, StoreID) を表す。
// 状態ストアの正規インデックスのキーとして使用する。
type TripleKey struct {
	UserID  int64
	RoleID  int64
	StoreID string
}

// Key はAssignmentのTripleKeyを返す。
func (a *Assignment) Key() TripleKey {
	return TripleKey{UserID: a.UserID, RoleID: a.RoleID, StoreID: a.StoreID}
}

// AssignmentItem はバルク割り当てリクエストに含まれる1件のタプル。
// 1ユーザーに対して選択ロール×選択店舗のデカルト積として生成される。
type AssignmentItem struct {
	RoleID   int64
	StoreID  string
	Metadata map[string]string
}

// MetadataKeyStartDate はバルク割り当て時に付与される開始日のメタデータキー。
const MetadataKeyStartDate = "start_date"

// MetadataKeyNotes はバルク割り当て時に付与される備考のメタデータキー。
const MetadataKeyNotes = "notes"

// OperationKind は状態ストアが独立に追跡する操作種別を表す。
type OperationKind string

const (
	// OpAssign は単一割り当て作成操作。
	OpAssign OperationKind = "assign"
	// OpRemove は割り当て削除操作。
	OpRemove OperationKind = "remove"
	// OpToggle は有効/無効の切り替え操作。
	OpToggle OperationKind = "toggle"
	// OpBulkAssign はバルク割り当て操作。
	OpBulkAssign OperationKind = "bulkAssign"
	// OpFetchStoreAssignments は店舗別割り当て一覧の取得操作。
	OpFetchStoreAssignments OperationKind = "fetchStoreAssignments"
	// OpFetchUserAssignments はユーザー別割り当て一覧の取得操作。
	OpFetchUserAssignments OperationKind = "fetchUserAssignments"
)

// SubmissionRecord はバルク割り当て送信の履歴レコードを表す。
// ゲートウェイの監査用に送信単位で永続化される。
type SubmissionRecord struct {
	ID               string // uuid
	Operator         string
	UserCount        int
	RoleCount        int
	StoreCount       int
	TotalAssignments int
	SucceededUsers   int
	FailedUsers      int
	CreatedAt        time.Time
}
