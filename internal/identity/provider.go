// Package identity は外部IdPとローカルユーザーの橋渡しを提供する。
// IdPのアカウントをローカルのusersレコードへミラーし、
// Webhookイベントによる追従（作成・更新・削除）を行う。
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// ProviderAccount はIdPから取得したアカウント情報を表す。
type ProviderAccount struct {
	Subject   string // IdPが発行する安定した識別子
	Email     string
	Username  string
	FirstName string
	LastName  string
}

// ProviderClient は外部IdPへの問い合わせインターフェース。
// トークン検証とアカウント取得はIdP側の責務であり、本体からはブラックボックスとして扱う。
type ProviderClient interface {
	// VerifyToken はアクセストークンを検証し、subjectを返す。
	// 無効なトークンの場合はエラーを返す。
	VerifyToken(ctx context.Context, token string) (string, error)

	// FetchAccount は指定subjectのアカウント情報を取得する。
	// IdP側にアカウントが存在しない場合はnilを返す。
	FetchAccount(ctx context.Context, subject string) (*ProviderAccount, error)
}

// HTTPProviderClient はIdPのREST APIを呼び出すProviderClient実装。
type HTTPProviderClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // テスト用にエンドポイントを差し替え可能
	apiKey     string
}

// NewHTTPProviderClient はHTTPProviderClientを生成する。
func NewHTTPProviderClient(httpClient *http.Client, logger *slog.Logger, baseURL, apiKey string) *HTTPProviderClient {
	return &HTTPProviderClient{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// introspectResponse はトークン検証APIのレスポンス。
type introspectResponse struct {
	Active  bool   `json:"active"`
	Subject string `json:"sub"`
}

// accountResponse はアカウント取得APIのレスポンス。
// email_addressesは優先順で並び、先頭が主アドレスとなる。
type accountResponse struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

// VerifyToken はアクセストークンをIdPのイントロスペクションAPIで検証する。
func (c *HTTPProviderClient) VerifyToken(ctx context.Context, token string) (string, error) {
	body, status, err := c.do(ctx, http.MethodPost, "/v1/tokens/introspect", map[string]string{"token": token})
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("IdPのトークン検証APIがステータス %d を返しました", status)
	}

	var resp introspectResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("トークン検証レスポンスのパースに失敗しました: %w", err)
	}
	if !resp.Active || resp.Subject == "" {
		return "", fmt.Errorf("トークンが無効です")
	}

	return resp.Subject, nil
}

// FetchAccount は指定subjectのアカウント情報を取得する。
// IdP側にアカウントが存在しない場合はnilを返す。
func (c *HTTPProviderClient) FetchAccount(ctx context.Context, subject string) (*ProviderAccount, error) {
	body, status, err := c.do(ctx, http.MethodGet, "/v1/users/"+subject, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, nil
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("IdPのアカウント取得APIがステータス %d を返しました", status)
	}

	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("アカウントレスポンスのパースに失敗しました: %w", err)
	}

	account := &ProviderAccount{
		Subject:   resp.ID,
		Username:  resp.Username,
		FirstName: resp.FirstName,
		LastName:  resp.LastName,
	}
	if len(resp.EmailAddresses) > 0 {
		account.Email = resp.EmailAddresses[0].EmailAddress
	}
	return account, nil
}

// do はIdPへのHTTPリクエストを実行し、レスポンスボディとステータスを返す。
func (c *HTTPProviderClient) do(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("リクエストボディの生成に失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("IdP APIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("レスポンスボディの読み込みに失敗しました: %w", err)
	}

	return body, resp.StatusCode, nil
}
