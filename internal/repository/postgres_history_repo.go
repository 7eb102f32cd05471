package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pizzaportal/assignhub/internal/model"
)

// PostgresHistoryRepo はPostgreSQLを使用した送信履歴リポジトリ。
type PostgresHistoryRepo struct {
	db *sql.DB
}

// NewPostgresHistoryRepo はPostgresHistoryRepoを生成する。
func NewPostgresHistoryRepo(db *sql.DB) *PostgresHistoryRepo {
	return &PostgresHistoryRepo{db: db}
}

// Record は送信履歴レコードを作成する。
func (r *PostgresHistoryRepo) Record(ctx context.Context, record *model.SubmissionRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO submission_history (id, operator, user_count, role_count, store_count,
		                                 total_assignments, succeeded_users, failed_users, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID, record.Operator, record.UserCount, record.RoleCount, record.StoreCount,
		record.TotalAssignments, record.SucceededUsers, record.FailedUsers, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("送信履歴の作成に失敗しました: %w", err)
	}
	return nil
}

// ListRecent は作成日時の降順で直近の送信履歴を取得する。
func (r *PostgresHistoryRepo) ListRecent(ctx context.Context, limit int) ([]*model.SubmissionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, operator, user_count, role_count, store_count,
		        total_assignments, succeeded_users, failed_users, created_at
		 FROM submission_history
		 ORDER BY created_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("送信履歴の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	records := []*model.SubmissionRecord{}
	for rows.Next() {
		record := &model.SubmissionRecord{}
		if err := rows.Scan(
			&record.ID, &record.Operator, &record.UserCount, &record.RoleCount, &record.StoreCount,
			&record.TotalAssignments, &record.SucceededUsers, &record.FailedUsers, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("送信履歴の読み取りに失敗しました: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("送信履歴の走査に失敗しました: %w", err)
	}

	return records, nil
}
