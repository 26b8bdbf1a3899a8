package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/taskman/internal/model"
)

// PostgresTaskLogRepo はPostgreSQLを使用した監査レコードリポジトリ。
type PostgresTaskLogRepo struct {
	db *sql.DB
}

// NewPostgresTaskLogRepo はPostgresTaskLogRepoを生成する。
func NewPostgresTaskLogRepo(db *sql.DB) *PostgresTaskLogRepo {
	return &PostgresTaskLogRepo{db: db}
}

// Append は監査レコードを追記する。
func (r *PostgresTaskLogRepo) Append(ctx context.Context, log *model.TaskLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO task_logs (id, action, user_id, task_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		log.ID, string(log.Action), log.UserID, log.TaskID, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append task log: %w", err)
	}
	return nil
}

// ListByTask は指定タスクの監査レコードを作成日時の昇順で返す。
func (r *PostgresTaskLogRepo) ListByTask(ctx context.Context, taskID string) ([]*model.TaskLog, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, action, user_id, task_id, created_at
		 FROM task_logs WHERE task_id = $1 ORDER BY created_at ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list task logs: %w", err)
	}
	defer rows.Close()

	var logs []*model.TaskLog
	for rows.Next() {
		log := &model.TaskLog{}
		if err := rows.Scan(&log.ID, &log.Action, &log.UserID, &log.TaskID, &log.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate task logs: %w", err)
	}

	return logs, nil
}

// DeleteOrphans は対応するタスクが存在しない監査レコードを削除し、削除件数を返す。
// 削除トランザクションが途中で失敗した場合の残骸を回収する。
func (r *PostgresTaskLogRepo) DeleteOrphans(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM task_logs
		 WHERE NOT EXISTS (SELECT 1 FROM tasks WHERE tasks.id = task_logs.task_id)`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan task logs: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ TaskLogRepository = (*PostgresTaskLogRepo)(nil)
