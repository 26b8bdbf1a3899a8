// Package security はアプリケーションのセキュリティ機能を提供する。
//
// InputSanitizerService はユーザーが入力したタスクのタイトル・説明から
// HTMLマークアップを除去し、保存値にタグが混入しないことを保証する。
// bluemondayライブラリのStrictPolicyを使用する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// InputSanitizerService はテキスト入力のサニタイズ機能のインターフェースを定義する。
// タスクの保存前に使用される。
type InputSanitizerService interface {
	// Sanitize は入力文字列から全てのHTMLタグを除去し、
	// エンティティを復元した平文を返す。
	// 前後の空白は除去される。空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(input string) string
}

// inputSanitizer はInputSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type inputSanitizer struct {
	policy *bluemonday.Policy
}

// NewInputSanitizer はInputSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは全てのタグと属性を除去する。
func NewInputSanitizer() *inputSanitizer {
	return &inputSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力文字列から全てのHTMLタグを除去した平文を返す。
func (s *inputSanitizer) Sanitize(input string) string {
	// StrictPolicyはタグ除去後にエンティティ参照（&amp;等）を残すため、
	// 平文として保存できるよう復元する。
	stripped := s.policy.Sanitize(input)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
