// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/taskman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByExternalSubject は外部IdPのsubjectでユーザーを検索する。
	// 見つからない場合はnilを返す。
	FindByExternalSubject(ctx context.Context, subject string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	// IdPアカウント再作成時のsubject付け替え判定に使用する。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// Update はユーザーの可変フィールド（subject、email、username、updated_at）を更新する。
	Update(ctx context.Context, user *model.User) error

	// DeleteCascade はユーザーと所有タスク、関連する監査ログを
	// 同一トランザクションで削除する。
	// 削除順序: 所有タスクのtask_logs → 本人が操作したtask_logs → tasks → user
	DeleteCascade(ctx context.Context, userID string) error
}

// TaskRepository はタスクデータの永続化インターフェース。
type TaskRepository interface {
	// Create はタスクを作成する。
	Create(ctx context.Context, task *model.Task) error

	// FindByID は指定IDのタスクを取得する。見つからない場合はnilを返す。
	// 所有者の判定は呼び出し側（サービス層）が行う。
	FindByID(ctx context.Context, id string) (*model.Task, error)

	// ListByUser は指定ユーザーのタスク一覧を作成日時の降順で返す。
	// filterのnilフィールドは絞り込みなしとして扱う。
	ListByUser(ctx context.Context, userID string, filter model.TaskFilter) ([]*model.Task, error)

	// Update はタスクの全フィールドを上書き更新する。
	// 部分更新のマージはサービス層で行う。
	Update(ctx context.Context, task *model.Task) error

	// DeleteWithAudit はタスク削除を監査ログの整合を保って実行する。
	// 同一トランザクションで以下を順に行う:
	//  1. DELETEDの監査レコードを追記
	//  2. 対象タスクの既存監査レコードを削除
	//  3. タスク本体を削除
	DeleteWithAudit(ctx context.Context, taskID, actingUserID string) error
}

// TaskLogRepository は監査レコードの永続化インターフェース。
// レコードは追記専用であり、更新操作は提供しない。
type TaskLogRepository interface {
	// Append は監査レコードを追記する。
	Append(ctx context.Context, log *model.TaskLog) error

	// ListByTask は指定タスクの監査レコードを作成日時の昇順で返す。
	ListByTask(ctx context.Context, taskID string) ([]*model.TaskLog, error)

	// DeleteOrphans は対応するタスクが存在しない監査レコードを削除し、
	// 削除件数を返す。クリーンアップワーカーから呼び出される。
	DeleteOrphans(ctx context.Context) (int64, error)
}
