// Package task はタスクライフサイクルのドメインロジックを提供する。
// リクエストごとに 認証済みユーザーの解決 → 入力検証 → ストア変更 → 監査記録
// の順で処理し、途中で失敗した段階以降は実行しない。
package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// CallerResolver は外部subjectからローカルユーザーを解決するインターフェース。
// identity.Serviceの部分集合として定義する。
type CallerResolver interface {
	// ResolveCaller はローカルユーザーを返す。未同期の場合はnilを返す。
	ResolveCaller(ctx context.Context, externalSubject string) (*model.User, error)
}

// AuditRecorder は監査レコードの追記インターフェース。
// audit.Loggerの部分集合として定義する。
type AuditRecorder interface {
	Record(ctx context.Context, action model.LogAction, userID, taskID string) error
}

// InputSanitizer はテキスト入力のサニタイズインターフェース。
type InputSanitizer interface {
	Sanitize(input string) string
}

// MetricsRecorder はタスク操作メトリクスの記録インターフェース。
type MetricsRecorder interface {
	RecordTaskCreated()
	RecordTaskUpdated()
	RecordTaskDeleted()
}

// Service はタスク管理のサービス層。
type Service struct {
	resolver  CallerResolver
	taskRepo  repository.TaskRepository
	auditor   AuditRecorder
	sanitizer InputSanitizer
	metrics   MetricsRecorder
}

// NewService はServiceを生成する。
// metricsはnilを許容する（テストや計測無効時）。
func NewService(
	resolver CallerResolver,
	taskRepo repository.TaskRepository,
	auditor AuditRecorder,
	sanitizer InputSanitizer,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		resolver:  resolver,
		taskRepo:  taskRepo,
		auditor:   auditor,
		sanitizer: sanitizer,
		metrics:   metrics,
	}
}

// CreateInput はタスク作成の入力。
type CreateInput struct {
	Title       string
	Description string
	DueDate     string // RFC3339。空文字列は未設定を意味する
	Priority    string // 空文字列はMEDIUM
	Status      string // 空文字列はPENDING
}

// UpdateInput はタスク部分更新の入力。
// nilのフィールドは変更しない。
type UpdateInput struct {
	Title       *string
	Description *string
	DueDate     *string
	Priority    *string
	Status      *string
}

// List は呼び出しユーザーのタスク一覧を作成日時の降順で返す。
// statusRaw/priorityRawが定義済みの値でない場合は絞り込みなしとして扱う
// （不正なフィルタ値はエラーにせず条件を広げる）。
func (s *Service) List(ctx context.Context, externalSubject, statusRaw, priorityRaw string) ([]*model.Task, error) {
	user, err := s.requireUser(ctx, externalSubject)
	if err != nil {
		return nil, err
	}

	filter := model.TaskFilter{}
	if st := model.Status(statusRaw); st.IsValid() {
		filter.Status = &st
	}
	if pr := model.Priority(priorityRaw); pr.IsValid() {
		filter.Priority = &pr
	}

	tasks, err := s.taskRepo.ListByUser(ctx, user.ID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// Create は入力を検証してタスクを作成し、CREATEDの監査レコードを追記する。
func (s *Service) Create(ctx context.Context, externalSubject string, input CreateInput) (*model.Task, error) {
	user, err := s.requireUser(ctx, externalSubject)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task := &model.Task{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Priority:  model.PriorityMedium,
		Status:    model.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	title := s.sanitizer.Sanitize(input.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	task.Title = title

	description := s.sanitizer.Sanitize(input.Description)
	if err := validateDescription(description); err != nil {
		return nil, err
	}
	task.Description = description

	dueDate, err := parseDueDate(input.DueDate)
	if err != nil {
		return nil, err
	}
	task.DueDate = dueDate

	if input.Priority != "" {
		pr := model.Priority(input.Priority)
		if !pr.IsValid() {
			return nil, model.NewValidationError("priority", "LOW、MEDIUM、HIGHのいずれかを指定してください")
		}
		task.Priority = pr
	}
	if input.Status != "" {
		st := model.Status(input.Status)
		if !st.IsValid() {
			return nil, model.NewValidationError("status", "PENDING、IN_PROGRESS、COMPLETEDのいずれかを指定してください")
		}
		task.Status = st
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	if err := s.auditor.Record(ctx, model.LogActionCreated, user.ID, task.ID); err != nil {
		return nil, fmt.Errorf("failed to record created log: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordTaskCreated()
	}
	return task, nil
}

// Get は所有タスクを取得する。
// 存在しない場合と所有者が異なる場合は同一のエラーを返す。
func (s *Service) Get(ctx context.Context, externalSubject, taskID string) (*model.Task, error) {
	user, err := s.requireUser(ctx, externalSubject)
	if err != nil {
		return nil, err
	}
	return s.getOwnedTask(ctx, user, taskID)
}

// Update は所有タスクを部分更新し、UPDATEDの監査レコードを追記する。
// 入力に含まれるフィールドのみ変更し、含まれないフィールドは維持する。
func (s *Service) Update(ctx context.Context, externalSubject, taskID string, input UpdateInput) (*model.Task, error) {
	user, err := s.requireUser(ctx, externalSubject)
	if err != nil {
		return nil, err
	}

	task, err := s.getOwnedTask(ctx, user, taskID)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		title := s.sanitizer.Sanitize(*input.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		task.Title = title
	}
	if input.Description != nil {
		description := s.sanitizer.Sanitize(*input.Description)
		if err := validateDescription(description); err != nil {
			return nil, err
		}
		task.Description = description
	}
	if input.DueDate != nil {
		dueDate, err := parseDueDate(*input.DueDate)
		if err != nil {
			return nil, err
		}
		// 空文字列は「未設定のまま変更しない」扱い。nil化はしない
		if dueDate != nil {
			task.DueDate = dueDate
		}
	}
	if input.Priority != nil {
		pr := model.Priority(*input.Priority)
		if !pr.IsValid() {
			return nil, model.NewValidationError("priority", "LOW、MEDIUM、HIGHのいずれかを指定してください")
		}
		task.Priority = pr
	}
	if input.Status != nil {
		st := model.Status(*input.Status)
		if !st.IsValid() {
			return nil, model.NewValidationError("status", "PENDING、IN_PROGRESS、COMPLETEDのいずれかを指定してください")
		}
		task.Status = st
	}

	task.UpdatedAt = time.Now().UTC()

	if err := s.taskRepo.Update(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}

	if err := s.auditor.Record(ctx, model.LogActionUpdated, user.ID, task.ID); err != nil {
		return nil, fmt.Errorf("failed to record updated log: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordTaskUpdated()
	}
	return task, nil
}

// Delete は所有タスクを削除する。
// DELETEDの監査レコード追記、既存監査レコードの削除、タスク削除を
// 1つのアトミックな単位として実行する。
func (s *Service) Delete(ctx context.Context, externalSubject, taskID string) error {
	user, err := s.requireUser(ctx, externalSubject)
	if err != nil {
		return err
	}

	task, err := s.getOwnedTask(ctx, user, taskID)
	if err != nil {
		return err
	}

	if err := s.taskRepo.DeleteWithAudit(ctx, task.ID, user.ID); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordTaskDeleted()
	}
	return nil
}

// requireUser は外部subjectからローカルユーザーを解決する。
// 未同期の場合はUSER_NOT_PROVISIONEDを返す。
func (s *Service) requireUser(ctx context.Context, externalSubject string) (*model.User, error) {
	user, err := s.resolver.ResolveCaller(ctx, externalSubject)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve caller: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotProvisionedError()
	}
	return user, nil
}

// getOwnedTask はタスクを取得し、所有者が一致することを確認する。
// 不在と所有者不一致はどちらもTASK_NOT_FOUNDとして返す。
func (s *Service) getOwnedTask(ctx context.Context, user *model.User, taskID string) (*model.Task, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	if task == nil || task.UserID != user.ID {
		return nil, model.NewTaskNotFoundError(taskID)
	}
	return task, nil
}
