package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresPreferenceRepo はPostgreSQLを使用したオペレーター設定リポジトリ。
type PostgresPreferenceRepo struct {
	db *sql.DB
}

// NewPostgresPreferenceRepo はPostgresPreferenceRepoを生成する。
func NewPostgresPreferenceRepo(db *sql.DB) *PostgresPreferenceRepo {
	return &PostgresPreferenceRepo{db: db}
}

// GetSelectedStore はオペレーターが最後に選択した店舗IDを取得する。
// 未設定の場合は空文字列を返す。
func (r *PostgresPreferenceRepo) GetSelectedStore(ctx context.Context, operatorID string) (string, error) {
	var storeID string
	err := r.db.QueryRowContext(ctx,
		`SELECT selected_store_id FROM operator_preferences WHERE operator_id = $1`,
		operatorID,
	).Scan(&storeID)

	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("選択店舗の取得に失敗しました: %w", err)
	}

	return storeID, nil
}

// SetSelectedStore はオペレーターの選択店舗IDを保存する（upsert）。
func (r *PostgresPreferenceRepo) SetSelectedStore(ctx context.Context, operatorID, storeID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO operator_preferences (operator_id, selected_store_id, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (operator_id)
		 DO UPDATE SET selected_store_id = EXCLUDED.selected_store_id, updated_at = now()`,
		operatorID, storeID,
	)
	if err != nil {
		return fmt.Errorf("選択店舗の保存に失敗しました: %w", err)
	}
	return nil
}
