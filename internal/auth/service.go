// Package auth はバックエンドに対する認証操作とトークン管理を提供する。
// ログイン・登録・ログアウト・現在ユーザー取得の各呼び出しと、
// ローカル状態ストア上のトークン3スロットの所有権を持つ。
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/catman/internal/model"
)

const (
	// defaultCurrentUserTimeout は現在ユーザー取得のハードタイムアウト。
	defaultCurrentUserTimeout = 5 * time.Second
	// defaultLogoutTimeout はログアウトAPI呼び出しのハードタイムアウト。
	defaultLogoutTimeout = 3 * time.Second
)

// TokenStore はトークン3スロットの永続化インターフェース。
// 実装はinternal/storeのSQLiteストア。
type TokenStore interface {
	AccessToken(ctx context.Context) string
	RefreshToken(ctx context.Context) string
	StoredUser(ctx context.Context) *model.User
	SetTokens(ctx context.Context, tokens model.AuthTokens) error
	SetUser(ctx context.Context, user model.User) error
	ClearAuth(ctx context.Context) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	BaseURL            string        // バックエンドAPIのベースURL
	CurrentUserTimeout time.Duration // 0の場合は5秒
	LogoutTimeout      time.Duration // 0の場合は3秒
}

// Result はログイン/登録の結果（ユーザーとトークンペア）を表す。
type Result struct {
	User   model.User
	Tokens model.AuthTokens
}

// Service は認証操作を提供する。
// エラーは種別（ネットワーク失敗・タイムアウト・非2xx・トークン未保持）に
// かかわらずすべて*model.AuthErrorに集約される。
type Service struct {
	httpClient *http.Client
	store      TokenStore
	logger     *slog.Logger
	config     ServiceConfig
}

// NewService はServiceを生成する。
func NewService(httpClient *http.Client, store TokenStore, logger *slog.Logger, config ServiceConfig) *Service {
	if config.CurrentUserTimeout <= 0 {
		config.CurrentUserTimeout = defaultCurrentUserTimeout
	}
	if config.LogoutTimeout <= 0 {
		config.LogoutTimeout = defaultLogoutTimeout
	}
	return &Service{
		httpClient: httpClient,
		store:      store,
		logger:     logger,
		config:     config,
	}
}

// Login はメールアドレスとパスワードでログインする。
// 処理は2段階: トークン発行 → 認証付きプロフィール取得。
// 1段目の失敗時はサーバーのdetailメッセージを載せたAuthErrorを返す。
// 2段目の失敗時はトークンが保存済みのままエラーを返す（プロフィール無し・
// トークン有りの一時的な状態は呼び出し元が許容する）。
func (s *Service) Login(ctx context.Context, credentials model.Credentials) (*Result, error) {
	tokens, err := s.issueTokens(ctx, "/api/auth/login", credentials, "Login failed")
	if err != nil {
		return nil, err
	}

	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	return &Result{User: *user, Tokens: *tokens}, nil
}

// Register は新規アカウントを作成し、そのままログインする。
// Loginと同じ2段階パターンで、エラーハンドリングも対称。
func (s *Service) Register(ctx context.Context, data model.RegisterData) (*Result, error) {
	tokens, err := s.issueTokens(ctx, "/api/auth/register", data, "Registration failed")
	if err != nil {
		return nil, err
	}

	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	return &Result{User: *user, Tokens: *tokens}, nil
}

// issueTokens は資格情報をPOSTしてトークンペアを取得・保存する。
func (s *Service) issueTokens(ctx context.Context, path string, payload any, fallbackMessage string) (*model.AuthTokens, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, model.NewAuthError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, model.NewAuthError(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, model.NewAuthError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewAuthError(detailMessage(resp.Body, fallbackMessage))
	}

	var tokens model.AuthTokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil {
		return nil, model.NewAuthError(fmt.Sprintf("failed to decode token response: %v", err))
	}

	if err := s.store.SetTokens(ctx, tokens); err != nil {
		return nil, model.NewAuthError(err.Error())
	}

	return &tokens, nil
}

// Logout はセッションを破棄する。
// アクセストークンが存在する場合のみ、3秒のハードタイムアウト付きで
// ログアウトAPIをベストエフォート呼び出しする。ネットワーク失敗や
// タイムアウトはログ出力のみで握りつぶし、ローカルのトークン・ユーザーの
// クリアは常に実行する。呼び出し元から見て実質的に失敗しない操作。
func (s *Service) Logout(ctx context.Context) error {
	token := s.store.AccessToken(ctx)

	if token != "" {
		logoutCtx, cancel := context.WithTimeout(ctx, s.config.LogoutTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(logoutCtx, http.MethodPost, s.config.BaseURL+"/api/auth/logout", nil)
		if err == nil {
			req.Header.Set("Authorization", "Bearer "+token)
			resp, err := s.httpClient.Do(req)
			if err != nil {
				s.logger.Warn("ログアウトAPIの呼び出しに失敗しました（ローカルのクリアは続行）",
					slog.String("error", err.Error()),
				)
			} else {
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
			}
		}
	}

	return s.store.ClearAuth(ctx)
}

// CurrentUser は現在のユーザープロフィールを取得する。
// トークンが未保存の場合はネットワーク呼び出しを行わずに即座に失敗する。
// 呼び出しは5秒のハードタイムアウトで打ち切られる。
// 取得成功時はキャッシュ済みプロフィールを上書き保存する。
func (s *Service) CurrentUser(ctx context.Context) (*model.User, error) {
	token := s.store.AccessToken(ctx)
	if token == "" {
		return nil, model.NewAuthError("No access token available")
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.config.CurrentUserTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.config.BaseURL+"/api/auth/me", nil)
	if err != nil {
		return nil, model.NewAuthError(err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, model.NewAuthError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewAuthError("Failed to get user information")
	}

	var user model.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, model.NewAuthError(fmt.Sprintf("failed to decode user response: %v", err))
	}

	if err := s.store.SetUser(ctx, user); err != nil {
		s.logger.Warn("ユーザープロフィールのキャッシュ保存に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	return &user, nil
}

// CreateUser は管理者権限で新規ユーザーを作成する。
func (s *Service) CreateUser(ctx context.Context, data model.CreateUserData) (*model.User, error) {
	token := s.store.AccessToken(ctx)
	if token == "" {
		return nil, model.NewAuthError("No access token available")
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, model.NewAuthError(err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+"/api/auth/create-user", bytes.NewReader(body))
	if err != nil {
		return nil, model.NewAuthError(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, model.NewAuthError(err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewAuthError(detailMessage(resp.Body, "Failed to create user"))
	}

	var user model.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, model.NewAuthError(fmt.Sprintf("failed to decode user response: %v", err))
	}

	return &user, nil
}

// IsAuthenticated はアクセストークンがローカルに保存されているかを返す。
// プロフィールキャッシュの有無には依存しない純粋な述語。
func (s *Service) IsAuthenticated(ctx context.Context) bool {
	return s.store.AccessToken(ctx) != ""
}

// StoredUser はキャッシュ済みユーザープロフィールを返す。
// 未保存または破損している場合はnilを返す。
func (s *Service) StoredUser(ctx context.Context) *model.User {
	return s.store.StoredUser(ctx)
}

// AuthHeaders は認証ヘッダーを返す。
// トークンが保存されている場合は {"Authorization": "Bearer <token>"}、
// 未保存の場合は空のヘッダーセットを返す。
func (s *Service) AuthHeaders(ctx context.Context) map[string]string {
	token := s.store.AccessToken(ctx)
	if token == "" {
		return map[string]string{}
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

// detailMessage はエラーレスポンスボディから{"detail": ...}を取り出す。
// ボディが欠落・破損している場合はfallbackを返す。
func detailMessage(body io.Reader, fallback string) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(body).Decode(&parsed); err != nil || parsed.Detail == "" {
		return fallback
	}
	return parsed.Detail
}
