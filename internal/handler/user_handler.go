package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/taskman/internal/identity"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
)

// AccountFetcher はIdPからのアカウント取得インターフェース。
// identity.ProviderClientの部分集合として定義する。
type AccountFetcher interface {
	// FetchAccount はIdP側のアカウント情報を返す。存在しない場合はnilを返す。
	FetchAccount(ctx context.Context, subject string) (*identity.ProviderAccount, error)
}

// UserProvisioner はローカルユーザーの冪等UPSERTインターフェース。
// identity.Serviceの部分集合として定義する。
type UserProvisioner interface {
	// Provision はIdPアカウントをローカルユーザーへ同期する。
	// 新規作成された場合はtrueを返す。
	Provision(ctx context.Context, account identity.ProviderAccount) (*model.User, bool, error)
}

// ProvisionMetrics は同期処理メトリクスの記録インターフェース。
type ProvisionMetrics interface {
	RecordUserProvisioned()
}

// UserHandler はユーザー同期のHTTPハンドラー。
type UserHandler struct {
	fetcher     AccountFetcher
	provisioner UserProvisioner
	metrics     ProvisionMetrics
}

// NewUserHandler はUserHandlerを生成する。metricsはnilを許容する。
func NewUserHandler(fetcher AccountFetcher, provisioner UserProvisioner, metrics ProvisionMetrics) *UserHandler {
	return &UserHandler{
		fetcher:     fetcher,
		provisioner: provisioner,
		metrics:     metrics,
	}
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  *string   `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// userDataResponse はユーザー同期のレスポンス。
type userDataResponse struct {
	Data    userResponse `json:"data"`
	Message string       `json:"message"`
}

// SyncUser は認証済みユーザーのローカルレコードをIdPと同期する。
// 同一入力で繰り返し呼んでも同じローカルユーザーIDが返る（冪等）。
// POST /api/users/sync
func (h *UserHandler) SyncUser(w http.ResponseWriter, r *http.Request) {
	subject, err := middleware.SubjectFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	// 1. IdPから最新のアカウント情報を取得
	account, err := h.fetcher.FetchAccount(r.Context(), subject)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if account == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewProviderAccountMissingError())
		return
	}

	// 2. ローカルユーザーへ冪等にUPSERT
	user, created, err := h.provisioner.Provision(r.Context(), *account)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordUserProvisioned()
	}

	status := http.StatusOK
	message := "ユーザーを同期しました。"
	if created {
		status = http.StatusCreated
		message = "ユーザーを作成しました。"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(userDataResponse{
		Data:    toUserResponse(user),
		Message: message,
	})
}

// toUserResponse はmodel.UserからAPIレスポンスに変換する。
func toUserResponse(u *model.User) userResponse {
	resp := userResponse{
		ID:        u.ID,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
	if u.Username != "" {
		name := u.Username
		resp.Username = &name
	}
	return resp
}

// SetupUserRoutes はユーザー同期関連のルーティングを設定したchi.Routerを返す。
func SetupUserRoutes(fetcher AccountFetcher, provisioner UserProvisioner) http.Handler {
	r := chi.NewRouter()
	h := NewUserHandler(fetcher, provisioner, nil)

	r.Route("/api/users", func(r chi.Router) {
		r.Post("/sync", h.SyncUser)
	})

	return r
}
