// Package webhook はIdPから配信されるWebhookの署名検証を提供する。
//
// IdPはsvix形式（svix-id / svix-timestamp / svix-signatureヘッダー、
// whsec_接頭辞の共有シークレット）でイベントを配信する。
// 検証は共有シークレットによるHMACで行い、タイムスタンプの許容範囲チェックを含む。
package webhook

import (
	"fmt"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"
)

// 必須ヘッダー名。いずれかが欠けているペイロードは検証前に拒否する。
const (
	HeaderID        = "svix-id"
	HeaderTimestamp = "svix-timestamp"
	HeaderSignature = "svix-signature"
)

// Verifier はWebhookペイロードの署名検証インターフェース。
type Verifier interface {
	// Verify はペイロードとヘッダーの組み合わせを検証する。
	// 署名不一致、タイムスタンプ超過、ヘッダー欠落の場合はエラーを返す。
	Verify(payload []byte, headers http.Header) error
}

// SvixVerifier はsvixライブラリによるVerifier実装。
type SvixVerifier struct {
	wh *svix.Webhook
}

// NewSvixVerifier は共有シークレットからSvixVerifierを生成する。
// シークレットが空の場合はエラーを返す（フェイルクローズ）。
func NewSvixVerifier(secret string) (*SvixVerifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is not configured")
	}

	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize webhook verifier: %w", err)
	}

	return &SvixVerifier{wh: wh}, nil
}

// Verify はペイロードの署名を検証する。
func (v *SvixVerifier) Verify(payload []byte, headers http.Header) error {
	if err := v.wh.Verify(payload, headers); err != nil {
		return fmt.Errorf("signature verification failed: %w", err)
	}
	return nil
}

// HasRequiredHeaders は必須ヘッダーが全て存在するかを返す。
// 欠落時は署名検証に進まず400を返すためのチェックに使用する。
func HasRequiredHeaders(headers http.Header) bool {
	return headers.Get(HeaderID) != "" &&
		headers.Get(HeaderTimestamp) != "" &&
		headers.Get(HeaderSignature) != ""
}

// compile-time interface check
var _ Verifier = (*SvixVerifier)(nil)
