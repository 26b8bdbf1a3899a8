// Package model はドメインモデルを定義する。
package model

import "time"

// TaskLog はタスクへの変更操作1回分の監査レコードを表す。
// 書き込み後は不変であり、更新されることはない。
type TaskLog struct {
	ID        string
	Action    LogAction
	UserID    string // 操作を行ったユーザー
	TaskID    string // 操作対象のタスク
	CreatedAt time.Time
}

// LogAction は監査レコードに記録される操作種別を表す。
type LogAction string

const (
	// LogActionCreated はタスク作成を表す。
	LogActionCreated LogAction = "CREATED"
	// LogActionUpdated はタスク更新を表す。
	LogActionUpdated LogAction = "UPDATED"
	// LogActionDeleted はタスク削除を表す。
	LogActionDeleted LogAction = "DELETED"
)
