package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskman/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

const taskColumns = `id, user_id, title, description, due_date, priority, status, created_at, updated_at`

// scanTask はsql.Rowまたはsql.Rowsの1行分をスキャンする。
func scanTask(scan func(dest ...any) error) (*model.Task, error) {
	task := &model.Task{}
	var description sql.NullString
	var dueDate sql.NullTime

	err := scan(
		&task.ID, &task.UserID, &task.Title,
		&description, &dueDate,
		&task.Priority, &task.Status,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if description.Valid {
		task.Description = description.String
	}
	if dueDate.Valid {
		t := dueDate.Time
		task.DueDate = &t
	}
	return task, nil
}

// Create はタスクを作成する。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, description, due_date, priority, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID, task.UserID, task.Title,
		nullString(task.Description), nullTime(task.DueDate),
		string(task.Priority), string(task.Status),
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
func (r *PostgresTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)

	task, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find task by ID: %w", err)
	}
	return task, nil
}

// ListByUser は指定ユーザーのタスク一覧を作成日時の降順で返す。
// filterのnilフィールドは絞り込みなしとして扱う。
func (r *PostgresTaskRepo) ListByUser(ctx context.Context, userID string, filter model.TaskFilter) ([]*model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = $1`
	args := []any{userID}

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.Priority != nil {
		args = append(args, string(*filter.Priority))
		query += fmt.Sprintf(` AND priority = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// Update はタスクの全フィールドを上書き更新する。
func (r *PostgresTaskRepo) Update(ctx context.Context, task *model.Task) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET title = $2, description = $3, due_date = $4,
		    priority = $5, status = $6, updated_at = $7
		 WHERE id = $1`,
		task.ID, task.Title,
		nullString(task.Description), nullTime(task.DueDate),
		string(task.Priority), string(task.Status),
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("task not found: %s", task.ID)
	}
	return nil
}

// DeleteWithAudit はタスク削除を監査ログの整合を保って実行する。
// DELETEDレコードの追記、既存監査レコードの削除、タスク本体の削除を
// 同一トランザクションで順に行う。
func (r *PostgresTaskRepo) DeleteWithAudit(ctx context.Context, taskID, actingUserID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	// 1. DELETEDの監査レコードを追記
	// （直後に削除されるが、途中失敗時のロールバック単位を揃えるため先に書く）
	_, err = tx.ExecContext(ctx,
		`INSERT INTO task_logs (id, action, user_id, task_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), string(model.LogActionDeleted), actingUserID, taskID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to append deleted log: %w", err)
	}

	// 2. 対象タスクの監査レコードを削除（参照整合の後始末）
	_, err = tx.ExecContext(ctx,
		`DELETE FROM task_logs WHERE task_id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("failed to purge task logs: %w", err)
	}

	// 3. タスク本体を削除
	result, err := tx.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("task not found: %s", taskID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// nullTime はnilをNULLとして保存するための変換を行う。
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
