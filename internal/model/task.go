// Package model はドメインモデルを定義する。
package model

import "time"

// Task はユーザーが所有するタスクを表す。
// タスクは必ず1人のユーザーに属し、所有者以外からは参照・変更できない。
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string // 空文字列は未設定を意味する
	DueDate     *time.Time
	Priority    Priority
	Status      Status
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Priority はタスクの優先度を表す。
type Priority string

const (
	// PriorityLow は低優先度。
	PriorityLow Priority = "LOW"
	// PriorityMedium は中優先度。未指定時のデフォルト。
	PriorityMedium Priority = "MEDIUM"
	// PriorityHigh は高優先度。
	PriorityHigh Priority = "HIGH"
)

// IsValid はPriorityが定義済みの値であるかを返す。
func (p Priority) IsValid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Status はタスクの進行状態を表す。
type Status string

const (
	// StatusPending は未着手状態。未指定時のデフォルト。
	StatusPending Status = "PENDING"
	// StatusInProgress は進行中状態。
	StatusInProgress Status = "IN_PROGRESS"
	// StatusCompleted は完了状態。
	StatusCompleted Status = "COMPLETED"
)

// IsValid はStatusが定義済みの値であるかを返す。
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// TaskFilter はタスク一覧の絞り込み条件を表す。
// nilのフィールドは絞り込みなしを意味する。
type TaskFilter struct {
	Status   *Status
	Priority *Priority
}
