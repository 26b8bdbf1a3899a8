package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// --- モック ---

type mockResolver struct {
	resolveCallerFn func(ctx context.Context, externalSubject string) (*model.User, error)
}

func (m *mockResolver) ResolveCaller(ctx context.Context, externalSubject string) (*model.User, error) {
	return m.resolveCallerFn(ctx, externalSubject)
}

type mockTaskRepo struct {
	createFn          func(ctx context.Context, task *model.Task) error
	findByIDFn        func(ctx context.Context, id string) (*model.Task, error)
	listByUserFn      func(ctx context.Context, userID string, filter model.TaskFilter) ([]*model.Task, error)
	updateFn          func(ctx context.Context, task *model.Task) error
	deleteWithAuditFn func(ctx context.Context, taskID, actingUserID string) error
}

func (m *mockTaskRepo) Create(ctx context.Context, task *model.Task) error {
	if m.createFn != nil {
		return m.createFn(ctx, task)
	}
	return nil
}
func (m *mockTaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	return m.findByIDFn(ctx, id)
}
func (m *mockTaskRepo) ListByUser(ctx context.Context, userID string, filter model.TaskFilter) ([]*model.Task, error) {
	return m.listByUserFn(ctx, userID, filter)
}
func (m *mockTaskRepo) Update(ctx context.Context, task *model.Task) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, task)
	}
	return nil
}
func (m *mockTaskRepo) DeleteWithAudit(ctx context.Context, taskID, actingUserID string) error {
	if m.deleteWithAuditFn != nil {
		return m.deleteWithAuditFn(ctx, taskID, actingUserID)
	}
	return nil
}

type mockAuditor struct {
	records []model.LogAction
	err     error
}

func (m *mockAuditor) Record(ctx context.Context, action model.LogAction, userID, taskID string) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, action)
	return nil
}

// passthroughSanitizer は入力をそのまま返すサニタイザ。
type passthroughSanitizer struct{}

func (passthroughSanitizer) Sanitize(input string) string { return input }

type mockMetrics struct {
	created, updated, deleted int
}

func (m *mockMetrics) RecordTaskCreated() { m.created++ }
func (m *mockMetrics) RecordTaskUpdated() { m.updated++ }
func (m *mockMetrics) RecordTaskDeleted() { m.deleted++ }

// --- ヘルパー ---

func resolverFor(user *model.User) *mockResolver {
	return &mockResolver{
		resolveCallerFn: func(ctx context.Context, externalSubject string) (*model.User, error) {
			return user, nil
		},
	}
}

func testUser() *model.User {
	return &model.User{
		ID:              "user-1",
		ExternalSubject: "sub-1",
		Email:           "hitoshi@example.com",
	}
}

func strPtr(s string) *string { return &s }

// --- Create ---

func TestCreate_AppliesDefaults(t *testing.T) {
	var created *model.Task
	repo := &mockTaskRepo{
		createFn: func(ctx context.Context, task *model.Task) error {
			created = task
			return nil
		},
	}
	auditor := &mockAuditor{}
	svc := NewService(resolverFor(testUser()), repo, auditor, passthroughSanitizer{}, nil)

	got, err := svc.Create(context.Background(), "sub-1", CreateInput{Title: "買い物"})
	if err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}

	if created == nil {
		t.Fatal("リポジトリのCreateが呼び出されなかった")
	}
	if got.Priority != model.PriorityMedium {
		t.Errorf("Priority = %q, want %q", got.Priority, model.PriorityMedium)
	}
	if got.Status != model.StatusPending {
		t.Errorf("Status = %q, want %q", got.Status, model.StatusPending)
	}
	if got.DueDate != nil {
		t.Errorf("DueDate = %v, want nil", got.DueDate)
	}
	if got.ID == "" {
		t.Error("IDが採番されていない")
	}
	if got.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", got.UserID, "user-1")
	}
}

func TestCreate_RecordsCreatedAuditLog(t *testing.T) {
	auditor := &mockAuditor{}
	svc := NewService(resolverFor(testUser()), &mockTaskRepo{}, auditor, passthroughSanitizer{}, nil)

	_, err := svc.Create(context.Background(), "sub-1", CreateInput{Title: "買い物"})
	if err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}

	if len(auditor.records) != 1 || auditor.records[0] != model.LogActionCreated {
		t.Errorf("監査レコード = %v, want [CREATED]", auditor.records)
	}
}

func TestCreate_RecordsMetrics(t *testing.T) {
	metrics := &mockMetrics{}
	svc := NewService(resolverFor(testUser()), &mockTaskRepo{}, &mockAuditor{}, passthroughSanitizer{}, metrics)

	_, err := svc.Create(context.Background(), "sub-1", CreateInput{Title: "買い物"})
	if err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}

	if metrics.created != 1 {
		t.Errorf("created metrics = %d, want 1", metrics.created)
	}
}

func TestCreate_ExplicitPriorityAndStatus(t *testing.T) {
	svc := NewService(resolverFor(testUser()), &mockTaskRepo{}, &mockAuditor{}, passthroughSanitizer{}, nil)

	got, err := svc.Create(context.Background(), "sub-1", CreateInput{
		Title:    "レポート提出",
		Priority: "HIGH",
		Status:   "IN_PROGRESS",
		DueDate:  "2026-09-15T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("Create がエラーを返した: %v", err)
	}

	if got.Priority != model.PriorityHigh {
		t.Errorf("Priority = %q, want HIGH", got.Priority)
	}
	if got.Status != model.StatusInProgress {
		t.Errorf("Status = %q, want IN_PROGRESS", got.Status)
	}
	want := time.Date(2026, 9, 15, 10, 0, 0, 0, time.UTC)
	if got.DueDate == nil || !got.DueDate.Equal(want) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, want)
	}
}

func TestCreate_InvalidPriority_ReturnsValidationError(t *testing.T) {
	svc := NewService(resolverFor(testUser()), &mockTaskRepo{}, &mockAuditor{}, passthroughSanitizer{}, nil)

	_, err := svc.Create(context.Background(), "sub-1", CreateInput{Title: "t", Priority: "URGENT"})
	assertAPIErrorCode(t, err, model.ErrCodeValidation)
}

func TestCreate_InvalidStatus_ReturnsValidationError(t *testing.T) {
	svc := NewService(resolverFor(testUser()), &mockTaskRepo{}, &mockAuditor{}, passthroughSanitizer{}, nil)

	_, err := svc.Create(context.Background(), "sub-1", CreateInput{Title: "t", Status: "DONE"})
	assertAPIErrorCode(t, err, model.ErrCodeValidation)
}

func TestCreate_EmptyTitle_ReturnsValidationError(t *testing.T) {
	svc := NewService(resolverFor(testUser()), &mockTaskRepo{}, &mockAuditor{}, passthroughSanitizer{}, nil)

	_, err := svc.Create(context.Background(), "sub-1", CreateInput{Title: ""})
	assertAPIErrorCode(t, err, model.ErrCodeValidation)
}

func TestCreate_UnprovisionedUser_ReturnsNotProvisioned(t *testing.T) {
	svc := NewService(resolverFor(nil), &mockTaskRepo{}, &mockAuditor{}, passthroughSanitizer{}, nil)

	_, err := svc.Create(context.Background(), "sub-unknown", CreateInput{Title: "t"})
	assertAPIErrorCode(t, err, model.ErrCodeUserNotProvisioned)
}

func TestCreate_AuditFailure_ReturnsError(t *testing.T) {
	auditor := &mockAuditor{err: errors.New("audit store down")}
	svc := NewService(resolverFor(testUser()), &mockTaskRepo{}, auditor, passthroughSanitizer{}, nil)

	_, err := svc.Create(context.Background(), "sub-1", CreateInput{Title: "t"})
	if err == nil {
		t.Fatal("監査記録の失敗は操作全体の失敗として返すべき")
	}
}

// --- List ---

func TestList_NoFilter(t *testing.T) {
	var gotFilter model.TaskFilter
	repo := &mockTaskRepo{
		listByUserFn: func(ctx context.Context, userID string, filter model.TaskFilter) ([]*model.Task, error) {
			gotFilter = filter
			return []*model.Task{{ID: "t1", UserID: userID}}, nil
		},
	}
	svc := NewService(resolverFor(testUser()), repo, &mockAuditor{}, passthroughSanitizer{}, nil)

	tasks, err := svc.List(context.Background(), "sub-1", "", "")
	if err != nil {
		t.Fatalf("List がエラーを返した: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("len(tasks) = %d, want 1", len(tasks))
	}
	if gotFilter.Status != nil || gotFilter.Priority != nil {
		t.Errorf("フィルタなしのはずが絞り込みが設定されている: %+v", gotFilter)
	}
}

func TestList_ValidFilterValues(t *testing.T) {
	var gotFilter model.TaskFilter
	repo := &mockTaskRepo{
		listByUserFn: func(ctx context.Context, userID string, filter model.TaskFilter) ([]*model.Task, error) {
			gotFilter = filter
			return nil, nil
		},
	}
	svc := NewService(resolverFor(testUser()), repo, &mockAuditor{}, passthroughSanitizer{}, nil)

	_, err := svc.List(context.Background(), "sub-1", "COMPLETED", "HIGH")
	if err != nil {
		t.Fatalf("List がエラーを返した: %v", err)
	}
	if gotFilter.Status == nil || *gotFilter.Status != model.StatusCompleted {
		t.Errorf("Status filter = %v, want COMPLETED", gotFilter.Status)
	}
	if gotFilter.Priority == nil || *gotFilter.Priority != model.PriorityHigh {
		t.Errorf("Priority filter = %v, want HIGH", gotFilter.Priority)
	}
}

func TestList_InvalidFilterValues_WidenToNoFilter(t *testing.T) {
	// 不正なフィルタ値はエラーにせず絞り込みなしとして扱う
	var gotFilter model.TaskFilter
	repo := &mockTaskRepo{
		listByUserFn: func(ctx context.Context, userID string, filter model.TaskFilter) ([]*model.Task, error) {
			gotFilter = filter
			return nil, nil
		},
	}
	svc := NewService(resolverFor(testUser()), repo, &mockAuditor{}, passthroughSanitizer{}, nil)

	_, err := svc.List(context.Background(), "sub-1", "done", "urgent")
	if err != nil {
		t.Fatalf("不正なフィルタ値でもエラーにしない: %v", err)
	}
	if gotFilter.Status != nil || gotFilter.Priority != nil {
		t.Errorf("不正なフィルタ値は無視されるべき: %+v", gotFilter)
	}
}

// --- Get ---

func TestGet_OwnedTask(t *testing.T) {
	repo := &mockTaskRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Task, error) {
			return &model.Task{ID: id, UserID: "user-1", Title: "買い物"}, nil
		},
	}
	svc := NewService(resolverFor(testUser()), repo, &mockAuditor{}, passthroughSanitizer{}, nil)

	got, err := svc.Get(context.Background(), "sub-1", "t1")
	if err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if got.Title != "買い物" {
		t.Errorf("Title = %q, want %q", got.Title, "買い物")
	}
}

func TestGet_MissingTask_ReturnsNotFound(t *testing.T) {
	repo := &mockTaskRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Task, error) {
			return nil, nil
		},
	}
	svc := NewService(resolverFor(testUser()), repo, &mockAuditor{}, passthroughSanitizer{}, nil)

	_, err := svc.Get(context.Background(), "sub-1", "missing")
	assertAPIErrorCode(t, err, model.ErrCodeTaskNotFound)
}

func TestGet_OtherUsersTask_IndistinguishableFromMissing(t *testing.T) {
	// 他ユーザーのタスクと存在しないタスクは同一のエラーを返す
	repo := &mockTaskRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Task, error) {
			return &model.Task{ID: id, UserID: "user-2"}, nil
		},
	}
	svc := NewService(resolverFor(testUser()), repo, &mockAuditor{}, passthroughSanitizer{}, nil)

	_, errOther := svc.Get(context.Background(), "sub-1", "t-other")
	assertAPIErrorCode(t, errOther, model.ErrCodeTaskNotFound)

	repo.findByIDFn = func(ctx context.Context, id string) (*model.Task, error) {
		return nil, nil
	}
	_, errMissing := svc.Get(context.Background(), "sub-1", "t-other")
	assertAPIErrorCode(t, errMissing, model.ErrCodeTaskNotFound)

	var apiOther, apiMissing *model.APIError
	errors.As(errOther, &apiOther)
	errors.As(errMissing, &apiMissing)
	if apiOther.Code != apiMissing.Code || apiOther.Message != apiMissing.Message {
		t.Error("所有者不一致と不在でレスポンスが区別できてしまう")
	}
}

// --- Update ---

func TestUpdate_PartialUpdate_PreservesUnsetFields(t *testing.T) {
	due := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	repo := &mockTaskRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Task, error) {
			return &model.Task{
				ID: id, UserID: "user-1",
				Title: "旧タイトル", Description: "旧説明",
				DueDate:  &due,
				Priority: model.PriorityHigh,
				Status:   model.StatusInProgress,
			}, nil
		},
	}
	svc := NewService(resolverFor(testUser()), repo, &mockAuditor{}, passthroughSanitizer{}, nil)

	got, err := svc.Update(context.Background(), "sub-1", "t1", UpdateInput{
		Status: strPtr("COMPLETED"),
	})
	if err != nil {
		t.Fatalf("Update がエラーを返した: %v", err)
	}

	if got.Status != model.StatusCompleted {
		t.Errorf("Status = %q, want COMPLETED", got.Status)
	}
	// 入力に含まれないフィールドは維持される
	if got.Title != "旧タイトル" {
		t.Errorf("Title = %q, want 旧タイトル", got.Title)
	}
	if got.Description != "旧説明" {
		t.Errorf("Description = %q, want 旧説明", got.Description)
	}
	if got.Priority != model.PriorityHigh {
		t.Errorf("Priority = %q, want HIGH", got.Priority)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("DueDate = %v, want %v", got.DueDate, due)
	}
}

func TestUpdate_RecordsUpdatedAuditLog(t *testing.T) {
	repo := &mockTaskRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Task, error) {
			return &model.Task{ID: id, UserID: "user-1", Title: "t"}, nil
		},
	}
	auditor := &mockAuditor{}
	svc := NewService(resolverFor(testUser()), repo, auditor, passthroughSanitizer{}, nil)

	_, err := svc.Update(context.Background(), "sub-1", "t1", UpdateInput{Title: strPtr("新タイトル")})
	if err != nil {
		t.Fatalf("Update がエラーを返した: %v", err)
	}

	if len(auditor.records) != 1 || auditor.records[0] != model.LogActionUpdated {
		t.Errorf("監査レコード = %v, want [UPDATED]", auditor.records)
	}
}

func TestUpdate_EmptyTitle_ReturnsValidationError(t *testing.T) {
	repo := &mockTaskRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Task, error) {
			return &model.Task{ID: id, UserID: "user-1", Title: "t"}, nil
		},
	}
	svc := NewService(resolverFor(testUser()), repo, &mockAuditor{}, passthroughSanitizer{}, nil)

	_, err := svc.Update(context.Background(), "sub-1", "t1", UpdateInput{Title: strPtr("")})
	assertAPIErrorCode(t, err, model.ErrCodeValidation)
}

func TestUpdate_OtherUsersTask_ReturnsNotFound(t *testing.T) {
	repo := &mockTaskRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Task, error) {
			return &model.Task{ID: id, UserID: "user-2", Title: "t"}, nil
		},
	}
	auditor := &mockAuditor{}
	svc := NewService(resolverFor(testUser()), repo, auditor, passthroughSanitizer{}, nil)

	_, err := svc.Update(context.Background(), "sub-1", "t1", UpdateInput{Title: strPtr("x")})
	assertAPIErrorCode(t, err, model.ErrCodeTaskNotFound)

	if len(auditor.records) != 0 {
		t.Error("失敗した更新で監査レコードが追記されてはならない")
	}
}

// --- Delete ---

func TestDelete_CallsDeleteWithAudit(t *testing.T) {
	var deletedTaskID, actingUser string
	repo := &mockTaskRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Task, error) {
			return &model.Task{ID: id, UserID: "user-1"}, nil
		},
		deleteWithAuditFn: func(ctx context.Context, taskID, actingUserID string) error {
			deletedTaskID = taskID
			actingUser = actingUserID
			return nil
		},
	}
	metrics := &mockMetrics{}
	svc := NewService(resolverFor(testUser()), repo, &mockAuditor{}, passthroughSanitizer{}, metrics)

	if err := svc.Delete(context.Background(), "sub-1", "t1"); err != nil {
		t.Fatalf("Delete がエラーを返した: %v", err)
	}

	if deletedTaskID != "t1" {
		t.Errorf("deletedTaskID = %q, want %q", deletedTaskID, "t1")
	}
	if actingUser != "user-1" {
		t.Errorf("actingUser = %q, want %q", actingUser, "user-1")
	}
	if metrics.deleted != 1 {
		t.Errorf("deleted metrics = %d, want 1", metrics.deleted)
	}
}

func TestDelete_OtherUsersTask_ReturnsNotFound(t *testing.T) {
	repo := &mockTaskRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Task, error) {
			return &model.Task{ID: id, UserID: "user-2"}, nil
		},
		deleteWithAuditFn: func(ctx context.Context, taskID, actingUserID string) error {
			t.Error("所有者不一致のタスクに対してDeleteWithAuditを呼び出してはならない")
			return nil
		},
	}
	svc := NewService(resolverFor(testUser()), repo, &mockAuditor{}, passthroughSanitizer{}, nil)

	err := svc.Delete(context.Background(), "sub-1", "t1")
	assertAPIErrorCode(t, err, model.ErrCodeTaskNotFound)
}

// --- ヘルパー ---

func assertAPIErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("エラー %s を期待したが nil が返った", code)
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("エラー型が *model.APIError ではない: %T (%v)", err, err)
	}
	if apiErr.Code != code {
		t.Fatalf("Code = %q, want %q", apiErr.Code, code)
	}
}
