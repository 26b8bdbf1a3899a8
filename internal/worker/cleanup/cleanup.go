// Package cleanup は取り残された監査レコードの自動削除ジョブを提供する。
// task_logsはタスク本体と外部キーで結ばれていないため、削除トランザクションの
// 異常中断などで孤立した行が残り得る。日次バッチで回収する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// OrphanDeleter は孤立した監査レコードの削除インターフェース。
// repository.TaskLogRepositoryの部分集合として定義する。
type OrphanDeleter interface {
	DeleteOrphans(ctx context.Context) (int64, error)
}

// CleanupJob は孤立した監査レコードの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	logRepo OrphanDeleter
	logger  *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(logRepo OrphanDeleter, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		logRepo: logRepo,
		logger:  logger,
	}
}

// Run は対応するタスクが存在しない監査レコードを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.logRepo.DeleteOrphans(ctx)
	if err != nil {
		j.logger.Error("監査レコードクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("監査レコードクリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("監査レコードクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start はクリーンアップジョブをintervalごとに繰り返し実行する。
// 起動直後に1回実行し、以降はティッカーで回す。ctxのキャンセルで停止する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil {
		j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("cleanup job failed", slog.String("error", err.Error()))
			}
		}
	}
}
