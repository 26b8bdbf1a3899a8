package task

import (
	"time"
	"unicode/utf8"

	"github.com/hitoshi/taskman/internal/model"
)

const (
	// maxTitleLength はタイトルの最大文字数。
	maxTitleLength = 100
	// maxDescriptionLength は説明の最大文字数。
	maxDescriptionLength = 500
)

// validateTitle はタイトルの必須・長さ制約を検証する。
func validateTitle(title string) error {
	if title == "" {
		return model.NewValidationError("title", "タイトルは必須です")
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return model.NewValidationError("title", "タイトルは100文字以内で指定してください")
	}
	return nil
}

// validateDescription は説明の長さ制約を検証する。空文字列は未設定として許容する。
func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > maxDescriptionLength {
		return model.NewValidationError("description", "説明は500文字以内で指定してください")
	}
	return nil
}

// parseDueDate は期限文字列をUTCの絶対時刻にパースする。
// 空文字列は未設定としてnilを返す。RFC3339形式以外はエラーとする。
func parseDueDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, model.NewValidationError("dueDate", "日時はRFC3339形式で指定してください")
	}
	utc := t.UTC()
	return &utc, nil
}
