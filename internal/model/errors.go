// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, task, webhook, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized           = "UNAUTHORIZED"
	ErrCodeUserNotProvisioned     = "USER_NOT_PROVISIONED"
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeTaskNotFound           = "TASK_NOT_FOUND"
	ErrCodeProviderAccountMissing = "PROVIDER_ACCOUNT_MISSING"
	ErrCodeInvalidSignature       = "INVALID_SIGNATURE"
	ErrCodeUserNotFound           = "USER_NOT_FOUND"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewUserNotProvisionedError はローカルユーザー未作成エラーを生成する。
// 認証済みだがローカルユーザーがまだ存在しない状態を表す。
func NewUserNotProvisionedError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotProvisioned,
		Message:  "ユーザーアカウントがまだ同期されていません。",
		Category: "auth",
		Action:   "アカウント同期（POST /api/users/sync）を実行してください。",
	}
}

// NewValidationError はフィールド単位の詳細を含む入力検証エラーを生成する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("%s: %s", field, reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
// 存在しない場合と所有者が異なる場合を区別せず同一のエラーを返すことで、
// 他ユーザーのタスクの存在を推測できないようにする。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "task",
		Action:   "タスクIDを確認してください。",
	}
}

// NewProviderAccountMissingError はIdP側アカウント未検出エラーを生成する。
func NewProviderAccountMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeProviderAccountMissing,
		Message:  "認証プロバイダーにアカウントが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidSignatureError はWebhook署名検証エラーを生成する。
func NewInvalidSignatureError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidSignature,
		Message:  "Webhookの署名検証に失敗しました。",
		Category: "webhook",
		Action:   "署名シークレットの設定を確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInternalError は内部エラーを生成する。
// 依存コンポーネントの障害詳細はログにのみ記録し、クライアントには返さない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
