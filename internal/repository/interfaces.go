// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/pizzaportal/assignhub/internal/model"
)

// HistoryRepository はバルク送信履歴の永続化インターフェース。
type HistoryRepository interface {
	// Record は送信履歴レコードを作成する。
	Record(ctx context.Context, record *model.SubmissionRecord) error

	// ListRecent は作成日時の降順で直近の送信履歴を取得する。
	ListRecent(ctx context.Context, limit int) ([]*model.SubmissionRecord, error)
}

// PreferenceRepository はオペレーター設定の永続化インターフェース。
type PreferenceRepository interface {
	// GetSelectedStore はオペレーターが最後に選択した店舗IDを取得する。
	// 未設定の場合は空文字列を返す。
	GetSelectedStore(ctx context.Context, operatorID string) (string, error)

	// SetSelectedStore はオペレーターの選択店舗IDを保存する（upsert）。
	SetSelectedStore(ctx context.Context, operatorID, storeID string) error
}
