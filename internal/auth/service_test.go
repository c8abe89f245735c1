package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/catman/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// memStore はTokenStoreのインメモリ実装。
type memStore struct {
	access  string
	refresh string
	user    *model.User
}

func (m *memStore) AccessToken(ctx context.Context) string  { return m.access }
func (m *memStore) RefreshToken(ctx context.Context) string { return m.refresh }
func (m *memStore) StoredUser(ctx context.Context) *model.User {
	return m.user
}
func (m *memStore) SetTokens(ctx context.Context, tokens model.AuthTokens) error {
	m.access = tokens.AccessToken
	m.refresh = tokens.RefreshToken
	return nil
}
func (m *memStore) SetUser(ctx context.Context, user model.User) error {
	m.user = &user
	return nil
}
func (m *memStore) ClearAuth(ctx context.Context) error {
	m.access = ""
	m.refresh = ""
	m.user = nil
	return nil
}

func newTestService(t *testing.T, handler http.Handler) (*Service, *memStore, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := &memStore{}
	var buf bytes.Buffer
	svc := NewService(server.Client(), store, newTestLogger(&buf), ServiceConfig{
		BaseURL: server.URL,
	})
	return svc, store, server
}

// backendStub はログインバックエンドの最小スタブ。
func backendStub(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var creds model.Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
			t.Errorf("ログインボディのデコードに失敗: %v", err)
		}
		if creds.Email != "admin@example.com" || creds.Password != "Secret123" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "Credenciais inválidas"})
			return
		}
		json.NewEncoder(w).Encode(model.AuthTokens{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			TokenType:    "bearer",
		})
	})
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer access-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(model.User{
			Email:    "admin@example.com",
			FullName: "Admin",
			Role:     "admin",
			IsActive: true,
		})
	})
	return mux
}

// TestLogin_TwoStep はログインがトークン発行とプロフィール取得の
// 2段階で完了することを検証する。
func TestLogin_TwoStep(t *testing.T) {
	svc, store, _ := newTestService(t, backendStub(t))

	result, err := svc.Login(context.Background(), model.Credentials{
		Email:    "admin@example.com",
		Password: "Secret123",
	})
	if err != nil {
		t.Fatalf("Login がエラーを返した: %v", err)
	}

	if result.User.FullName != "Admin" {
		t.Errorf("FullName = %s, want Admin", result.User.FullName)
	}
	if result.Tokens.AccessToken != "access-1" {
		t.Errorf("AccessToken = %s, want access-1", result.Tokens.AccessToken)
	}
	if store.access != "access-1" || store.refresh != "refresh-1" {
		t.Errorf("トークンがストアに保存されていない: access=%s refresh=%s", store.access, store.refresh)
	}
	if store.user == nil || store.user.Email != "admin@example.com" {
		t.Error("プロフィールがストアにキャッシュされていない")
	}
}

// TestLogin_ServerDetailMessage は1段目の失敗でサーバーのdetailが
// そのままエラーメッセージになることを検証する。
func TestLogin_ServerDetailMessage(t *testing.T) {
	svc, store, _ := newTestService(t, backendStub(t))

	_, err := svc.Login(context.Background(), model.Credentials{
		Email:    "admin@example.com",
		Password: "wrong-password",
	})
	if err == nil {
		t.Fatal("誤ったパスワードでエラーが返らなかった")
	}
	if !model.IsAuthError(err) {
		t.Fatalf("エラー型 = %T, want *model.AuthError", err)
	}
	if err.Error() != "Credenciais inválidas" {
		t.Errorf("エラーメッセージ = %q, want %q", err.Error(), "Credenciais inválidas")
	}
	if store.access != "" {
		t.Error("失敗したログインでトークンが保存された")
	}
}

// TestLogin_MissingDetailFallsBack はdetailボディが欠落した失敗応答で
// フォールバックメッセージが使われることを検証する。
func TestLogin_MissingDetailFallsBack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		// ボディなし
	})
	svc, _, _ := newTestService(t, mux)

	_, err := svc.Login(context.Background(), model.Credentials{Email: "a@b.com", Password: "x"})
	if err == nil {
		t.Fatal("エラーが返らなかった")
	}
	if err.Error() != "Login failed" {
		t.Errorf("エラーメッセージ = %q, want %q", err.Error(), "Login failed")
	}
}

// TestLogin_SecondStepFailure_KeepsTokens は2段目の失敗でトークンが
// 保存されたままエラーが返ることを検証する（トークン有り・プロフィール無しの
// 一時的な状態）。
func TestLogin_SecondStepFailure_KeepsTokens(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.AuthTokens{AccessToken: "access-1", RefreshToken: "refresh-1"})
	})
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	svc, store, _ := newTestService(t, mux)

	_, err := svc.Login(context.Background(), model.Credentials{Email: "a@b.com", Password: "Secret123"})
	if err == nil {
		t.Fatal("2段目の失敗でエラーが返らなかった")
	}
	if err.Error() != "Failed to get user information" {
		t.Errorf("エラーメッセージ = %q, want %q", err.Error(), "Failed to get user information")
	}
	if store.access != "access-1" {
		t.Error("2段目の失敗でトークンが巻き戻された（保存されたままであるべき）")
	}
	if store.user != nil {
		t.Error("2段目の失敗でプロフィールが保存された")
	}
}

// TestCurrentUser_NoToken_SkipsNetwork はトークン未保存時にネットワーク
// 呼び出しを一切行わずに失敗することを検証する。
func TestCurrentUser_NoToken_SkipsNetwork(t *testing.T) {
	var calls atomic.Int64
	svc, _, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	_, err := svc.CurrentUser(context.Background())
	if err == nil {
		t.Fatal("トークン未保存でエラーが返らなかった")
	}
	if err.Error() != "No access token available" {
		t.Errorf("エラーメッセージ = %q, want %q", err.Error(), "No access token available")
	}
	if calls.Load() != 0 {
		t.Errorf("ネットワーク呼び出し回数 = %d, want 0", calls.Load())
	}
}

// TestCurrentUser_Timeout は取得が設定タイムアウトで打ち切られ、
// AuthErrorに集約されることを検証する。
func TestCurrentUser_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	store := &memStore{access: "access-1"}
	var buf bytes.Buffer
	svc := NewService(server.Client(), store, newTestLogger(&buf), ServiceConfig{
		BaseURL:            server.URL,
		CurrentUserTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	_, err := svc.CurrentUser(context.Background())
	if err == nil {
		t.Fatal("タイムアウトでエラーが返らなかった")
	}
	if !model.IsAuthError(err) {
		t.Errorf("エラー型 = %T, want *model.AuthError", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("タイムアウトまでの時間 = %v, want 50ms前後", elapsed)
	}
}

// TestLogout_AlwaysClearsLocalState はログアウトAPIの失敗にかかわらず
// ローカル状態が常にクリアされることを検証する。
func TestLogout_AlwaysClearsLocalState(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	svc, store, _ := newTestService(t, mux)
	store.access = "access-1"
	store.refresh = "refresh-1"
	store.user = &model.User{Email: "admin@example.com"}

	if err := svc.Logout(context.Background()); err != nil {
		t.Fatalf("Logout がエラーを返した: %v", err)
	}

	if store.access != "" || store.refresh != "" || store.user != nil {
		t.Error("ログアウト後にローカル状態が残っている")
	}
}

// TestLogout_NetworkFailureIsSwallowed はサーバー到達不能でも
// ログアウトが成功扱いになることを検証する。
func TestLogout_NetworkFailureIsSwallowed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // 即座に閉じて到達不能にする

	store := &memStore{access: "access-1"}
	var buf bytes.Buffer
	svc := NewService(http.DefaultClient, store, newTestLogger(&buf), ServiceConfig{
		BaseURL: server.URL,
	})

	if err := svc.Logout(context.Background()); err != nil {
		t.Fatalf("到達不能サーバーで Logout がエラーを返した: %v", err)
	}
	if store.access != "" {
		t.Error("ネットワーク失敗時にトークンがクリアされていない")
	}
}

// TestLogout_NoToken_SkipsAPICall はトークン未保存時にログアウトAPIを
// 呼び出さないことを検証する。
func TestLogout_NoToken_SkipsAPICall(t *testing.T) {
	var calls atomic.Int64
	svc, _, _ := newTestService(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	if err := svc.Logout(context.Background()); err != nil {
		t.Fatalf("Logout がエラーを返した: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("ログアウトAPI呼び出し回数 = %d, want 0", calls.Load())
	}
}

func TestIsAuthenticated_ReflectsTokenPresence(t *testing.T) {
	svc, store, _ := newTestService(t, http.NewServeMux())

	if svc.IsAuthenticated(context.Background()) {
		t.Error("トークン未保存で認証済みと判定された")
	}

	store.access = "access-1"
	if !svc.IsAuthenticated(context.Background()) {
		t.Error("トークン保存済みで未認証と判定された")
	}
}

func TestAuthHeaders(t *testing.T) {
	svc, store, _ := newTestService(t, http.NewServeMux())

	headers := svc.AuthHeaders(context.Background())
	if len(headers) != 0 {
		t.Errorf("トークン未保存時のヘッダー数 = %d, want 0", len(headers))
	}

	store.access = "access-1"
	headers = svc.AuthHeaders(context.Background())
	if headers["Authorization"] != "Bearer access-1" {
		t.Errorf("Authorization = %q, want %q", headers["Authorization"], "Bearer access-1")
	}
}

// TestCreateUser_SendsAuthorizedRequest は管理者のユーザー作成が
// 認証ヘッダー付きで実行されることを検証する。
func TestCreateUser_SendsAuthorizedRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/create-user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer admin-token" {
			t.Errorf("Authorization = %q, want Bearer admin-token", r.Header.Get("Authorization"))
		}
		var data model.CreateUserData
		json.NewDecoder(r.Body).Decode(&data)
		json.NewEncoder(w).Encode(model.User{
			Email:    data.Email,
			FullName: data.FullName,
			Role:     data.Role,
			IsActive: true,
		})
	})
	svc, store, _ := newTestService(t, mux)
	store.access = "admin-token"

	user, err := svc.CreateUser(context.Background(), model.CreateUserData{
		Email:    "vendedor@example.com",
		FullName: "Vendedor",
		Password: "Secret123",
		Role:     "user",
	})
	if err != nil {
		t.Fatalf("CreateUser がエラーを返した: %v", err)
	}
	if user.Email != "vendedor@example.com" || user.Role != "user" {
		t.Errorf("作成されたユーザー = %+v", user)
	}
}
