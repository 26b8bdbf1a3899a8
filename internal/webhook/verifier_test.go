package webhook

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	svix "github.com/svix/svix-webhooks/go"
)

const testSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"

// signTestPayload はテスト用にIdPと同じ形式の署名ヘッダーを生成する。
func signTestPayload(t *testing.T, secret string, payload []byte) http.Header {
	t.Helper()

	wh, err := svix.NewWebhook(secret)
	if err != nil {
		t.Fatalf("failed to create signer: %v", err)
	}

	msgID := "msg_test_1"
	timestamp := time.Now()
	signature, err := wh.Sign(msgID, timestamp, payload)
	if err != nil {
		t.Fatalf("failed to sign payload: %v", err)
	}

	headers := http.Header{}
	headers.Set(HeaderID, msgID)
	headers.Set(HeaderTimestamp, fmt.Sprintf("%d", timestamp.Unix()))
	headers.Set(HeaderSignature, signature)
	return headers
}

func TestNewSvixVerifier_EmptySecret_ReturnsError(t *testing.T) {
	if _, err := NewSvixVerifier(""); err == nil {
		t.Fatal("空のシークレットはエラーを返すべき（フェイルクローズ）")
	}
}

func TestNewSvixVerifier_ValidSecret(t *testing.T) {
	v, err := NewSvixVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewSvixVerifier がエラーを返した: %v", err)
	}
	if v == nil {
		t.Fatal("expected non-nil verifier")
	}
}

func TestVerify_ValidSignature_Succeeds(t *testing.T) {
	v, err := NewSvixVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewSvixVerifier がエラーを返した: %v", err)
	}

	payload := []byte(`{"type":"user.created","data":{"id":"user_1"}}`)
	headers := signTestPayload(t, testSecret, payload)

	if err := v.Verify(payload, headers); err != nil {
		t.Errorf("正しい署名の検証に失敗した: %v", err)
	}
}

func TestVerify_TamperedPayload_Fails(t *testing.T) {
	v, err := NewSvixVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewSvixVerifier がエラーを返した: %v", err)
	}

	payload := []byte(`{"type":"user.created","data":{"id":"user_1"}}`)
	headers := signTestPayload(t, testSecret, payload)

	tampered := []byte(`{"type":"user.deleted","data":{"id":"user_1"}}`)
	if err := v.Verify(tampered, headers); err == nil {
		t.Error("改ざんされたペイロードの検証は失敗すべき")
	}
}

func TestVerify_WrongSecret_Fails(t *testing.T) {
	v, err := NewSvixVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewSvixVerifier がエラーを返した: %v", err)
	}

	payload := []byte(`{"type":"user.created","data":{"id":"user_1"}}`)
	headers := signTestPayload(t, "whsec_CGDpjjW8YLc6PsMxiUncTHTsBmIW6bmW", payload)

	if err := v.Verify(payload, headers); err == nil {
		t.Error("別のシークレットで署名されたペイロードの検証は失敗すべき")
	}
}

func TestVerify_MissingHeaders_Fails(t *testing.T) {
	v, err := NewSvixVerifier(testSecret)
	if err != nil {
		t.Fatalf("NewSvixVerifier がエラーを返した: %v", err)
	}

	payload := []byte(`{"type":"user.created"}`)
	if err := v.Verify(payload, http.Header{}); err == nil {
		t.Error("署名ヘッダーなしの検証は失敗すべき")
	}
}

func TestHasRequiredHeaders_AllPresent(t *testing.T) {
	headers := http.Header{}
	headers.Set(HeaderID, "msg_1")
	headers.Set(HeaderTimestamp, "1700000000")
	headers.Set(HeaderSignature, "v1,abc")

	if !HasRequiredHeaders(headers) {
		t.Error("全ヘッダーが存在する場合はtrueを返すべき")
	}
}

func TestHasRequiredHeaders_MissingAny(t *testing.T) {
	base := func() http.Header {
		h := http.Header{}
		h.Set(HeaderID, "msg_1")
		h.Set(HeaderTimestamp, "1700000000")
		h.Set(HeaderSignature, "v1,abc")
		return h
	}

	for _, name := range []string{HeaderID, HeaderTimestamp, HeaderSignature} {
		h := base()
		h.Del(name)
		if HasRequiredHeaders(h) {
			t.Errorf("%s 欠落時はfalseを返すべき", name)
		}
	}
}
