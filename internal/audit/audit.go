// Package audit はタスク変更操作の監査レコード追記を提供する。
// レコードは追記専用であり、書き込み後に変更されることはない。
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// Logger は監査レコードの追記サービス。
type Logger struct {
	logRepo repository.TaskLogRepository
}

// NewLogger はLoggerを生成する。
func NewLogger(logRepo repository.TaskLogRepository) *Logger {
	return &Logger{logRepo: logRepo}
}

// Record は操作1回分の監査レコードを追記する。
// タイムスタンプは追記時点のUTCが採用される。
func (l *Logger) Record(ctx context.Context, action model.LogAction, userID, taskID string) error {
	log := &model.TaskLog{
		ID:        uuid.New().String(),
		Action:    action,
		UserID:    userID,
		TaskID:    taskID,
		CreatedAt: time.Now().UTC(),
	}

	if err := l.logRepo.Append(ctx, log); err != nil {
		return fmt.Errorf("failed to record audit log: %w", err)
	}
	return nil
}
