package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/taskman/internal/identity"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/webhook"
)

// maxWebhookBodySize はWebhookペイロードの最大サイズ。
const maxWebhookBodySize = 1 << 20 // 1MiB

// Reconciler はWebhookイベントのローカル反映インターフェース。
// identity.Serviceの部分集合として定義する。
type Reconciler interface {
	Reconcile(ctx context.Context, event identity.Event) error
}

// WebhookMetrics はWebhookイベントメトリクスの記録インターフェース。
type WebhookMetrics interface {
	RecordWebhookEvent(eventType string)
}

// WebhookHandler はIdPからのWebhook配信を受けるHTTPハンドラー。
// 呼び出しユーザーの認証ではなく、共有シークレットによる署名検証で保護される。
type WebhookHandler struct {
	verifier   webhook.Verifier
	reconciler Reconciler
	metrics    WebhookMetrics
}

// NewWebhookHandler はWebhookHandlerを生成する。
// verifierがnilの場合（シークレット未設定）は全イベントを拒否する（フェイルクローズ）。
// metricsはnilを許容する。
func NewWebhookHandler(verifier webhook.Verifier, reconciler Reconciler, metrics WebhookMetrics) *WebhookHandler {
	return &WebhookHandler{
		verifier:   verifier,
		reconciler: reconciler,
		metrics:    metrics,
	}
}

// webhookSuccessResponse はWebhook受理のレスポンス。
type webhookSuccessResponse struct {
	Success bool `json:"success"`
}

// HandleEvent はIdPのWebhookイベントを検証して反映する。
// POST /webhooks/identity
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	// シークレット未設定時は未検証データを一切処理しない
	if h.verifier == nil {
		slog.Error("webhook secret is not configured")
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidSignatureError())
		return
	}

	// 必須ヘッダーの欠落は署名検証に進まず拒否する
	if !webhook.HasRequiredHeaders(r.Header) {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidSignatureError())
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidSignatureError())
		return
	}

	if err := h.verifier.Verify(payload, r.Header); err != nil {
		slog.Warn("webhook signature verification failed",
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidSignatureError())
		return
	}

	event, err := identity.ParseEvent(payload)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("body", "ペイロードの解析に失敗しました"))
		return
	}

	if h.metrics != nil {
		h.metrics.RecordWebhookEvent(event.RawType)
	}

	if err := h.reconciler.Reconcile(r.Context(), event); err != nil {
		// 入力不備（email欠落等）は400、それ以外のストア障害は500
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeValidation {
			writeAPIErrorResponse(w, http.StatusBadRequest, apiErr)
			return
		}
		slog.Error("webhook reconcile failed",
			slog.String("type", event.RawType),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(webhookSuccessResponse{Success: true})
}
