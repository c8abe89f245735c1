// Package session はプロセス全体のセッション状態を管理する。
// 元システムのグローバルな認証コンテキストを、明示的に構築して
// 依存注入するマネージャーとして再設計したもの。初期化順序と
// 破棄を明示的かつテスト可能に保つ。
package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hitoshi/catman/internal/auth"
	"github.com/hitoshi/catman/internal/model"
)

// AuthAPI はセッションマネージャーが必要とする認証操作のインターフェース。
// 実装はinternal/authのService。
type AuthAPI interface {
	Login(ctx context.Context, credentials model.Credentials) (*auth.Result, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*model.User, error)
	IsAuthenticated(ctx context.Context) bool
	StoredUser(ctx context.Context) *model.User
}

// Notifier はユーザー向け通知（トースト相当）のインターフェース。
type Notifier interface {
	Success(message string)
	Error(message string)
}

// Metrics は認証失敗の記録インターフェース。
// 実装はinternal/metricsのCollector。
type Metrics interface {
	RecordAuthFailure()
}

// Manager はセッション状態（ユーザー・ローディングフラグ）を保持し、
// ログイン・ログアウト・再取得の各操作をUI層に公開する。
// 状態はミューテックスで保護され、バックグラウンド検証の結果は
// 世代カウンタが一致する場合のみ反映される（古い結果が新しい
// ログアウト/ログインを上書きしないための仕掛け）。
type Manager struct {
	authAPI  AuthAPI
	notifier Notifier
	metrics  Metrics
	logger   *slog.Logger

	mu         sync.RWMutex
	user       *model.User
	loading    bool
	generation uint64

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgDone   chan struct{}
}

// NewManager はManagerを生成する。初期状態はローディング中。
// notifierがnilの場合は通知を、metricsがnilの場合はメトリクス記録を行わない。
func NewManager(authAPI AuthAPI, notifier Notifier, metrics Metrics, logger *slog.Logger) *Manager {
	bgCtx, bgCancel := context.WithCancel(context.Background())
	return &Manager{
		authAPI:  authAPI,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		loading:  true,
		bgCtx:    bgCtx,
		bgCancel: bgCancel,
	}
}

// Init は起動時のセッション復元を行う。
//
// トークンとキャッシュ済みユーザーの両方が存在する場合、ネットワーク
// 呼び出しなしで即座にログイン済み状態を復元し（楽観的リストア）、
// その後バックグラウンドでプロフィールの再検証を非同期に実行する。
// バックグラウンド検証の失敗では楽観的状態を巻き戻さない
// （一時的なネットワーク障害で再ログインを強いるより、古い
// セッションを残す方を優先する）。
//
// トークンまたはキャッシュ済みユーザーが欠けている場合は、部分的な
// 古いデータを掃除するためフルログアウトを実行してから初期化を完了する。
func (m *Manager) Init(ctx context.Context) {
	defer m.setLoading(false)

	storedUser := m.authAPI.StoredUser(ctx)

	if storedUser != nil && m.authAPI.IsAuthenticated(ctx) {
		m.mu.Lock()
		m.user = storedUser
		gen := m.generation
		m.mu.Unlock()

		m.bgDone = make(chan struct{})
		go m.verifyInBackground(gen)
		return
	}

	// 部分的・古いデータの掃除（タイムアウト付きのベストエフォート）
	if err := m.authAPI.Logout(ctx); err != nil {
		m.logger.Warn("初期化時のセッション掃除に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// verifyInBackground は楽観的リストア後のプロフィール再検証を行う。
// 成功時のみ、かつセッション世代が変わっていない場合のみ状態を更新する。
// 失敗は警告ログのみで、楽観的状態は維持する。
func (m *Manager) verifyInBackground(gen uint64) {
	defer close(m.bgDone)

	user, err := m.authAPI.CurrentUser(m.bgCtx)
	if err != nil {
		m.logger.Warn("バックグラウンドのトークン検証に失敗しました（キャッシュ済み状態を維持）",
			slog.String("error", err.Error()),
		)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation == gen {
		m.user = user
	}
}

// Login は資格情報でログインし、成功時はユーザー名入りの通知を表示する。
// 失敗時は失敗通知を表示した上でエラーを返し、呼び出し元の
// ローカルなエラーハンドリング（フォームを開いたままにする等）に委ねる。
// ローディングフラグは結果にかかわらず最後に必ずクリアされる。
func (m *Manager) Login(ctx context.Context, credentials model.Credentials) error {
	m.setLoading(true)
	defer m.setLoading(false)

	result, err := m.authAPI.Login(ctx, credentials)
	if err != nil {
		if m.metrics != nil {
			m.metrics.RecordAuthFailure()
		}
		message := "Erro ao fazer login"
		if model.IsAuthError(err) {
			message = err.Error()
		}
		m.notifyError(message)
		return err
	}

	m.mu.Lock()
	m.user = &result.User
	m.generation++
	m.mu.Unlock()

	m.notifySuccess("Bem-vindo, " + result.User.FullName + "!")
	return nil
}

// Logout はセッションを終了する。
// UIが即座に反応できるよう、バックエンド呼び出しを待たずに先に
// メモリ上のユーザーをクリアする（楽観的更新）。バックエンド側の
// ログアウト失敗はエンドユーザーには見せず、常に成功通知を表示する。
// この操作は失敗しない（常にnilを返す）。
func (m *Manager) Logout(ctx context.Context) error {
	m.setLoading(true)
	defer m.setLoading(false)

	m.mu.Lock()
	m.user = nil
	m.generation++
	m.mu.Unlock()

	if err := m.authAPI.Logout(ctx); err != nil {
		m.logger.Warn("ログアウト処理でエラーが発生しました",
			slog.String("error", err.Error()),
		)
		m.notifySuccess("Logout realizado localmente")
		return nil
	}

	m.notifySuccess("Logout realizado com sucesso")
	return nil
}

// RefreshUser は認証済みの場合にプロフィールを再取得して上書きする。
// 再取得に失敗した場合はフルログアウトに落とす。
// （初期化時のバックグラウンド検証失敗は許容するのに対し、明示的な
// リフレッシュの失敗はログアウトを強制する。この非対称は元システムの
// 挙動をそのまま保存したもの。）
func (m *Manager) RefreshUser(ctx context.Context) error {
	if !m.authAPI.IsAuthenticated(ctx) {
		return nil
	}

	user, err := m.authAPI.CurrentUser(ctx)
	if err != nil {
		m.logger.Warn("ユーザープロフィールの再取得に失敗したためログアウトします",
			slog.String("error", err.Error()),
		)
		return m.Logout(ctx)
	}

	m.mu.Lock()
	m.user = user
	m.mu.Unlock()
	return nil
}

// User は現在のメモリ上のユーザーを返す。未ログインの場合はnil。
func (m *Manager) User() *model.User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return nil
	}
	u := *m.user
	return &u
}

// IsAuthenticated はUI層の表示ゲートに使う認証状態を返す。
// メモリ上のユーザーが存在し、かつストアにトークンが保存されている
// 場合にtrue。キャッシュ済みで未確認のユーザーも認証済みとして扱う。
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	m.mu.RLock()
	hasUser := m.user != nil
	m.mu.RUnlock()
	return hasUser && m.authAPI.IsAuthenticated(ctx)
}

// IsLoading はローディングフラグを返す。
func (m *Manager) IsLoading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// Close はバックグラウンド検証をキャンセルし、完了を待つ。
func (m *Manager) Close() {
	m.bgCancel()
	if m.bgDone != nil {
		<-m.bgDone
	}
}

// WaitBackgroundVerify はバックグラウンド検証の完了を待つ。テスト用。
func (m *Manager) WaitBackgroundVerify() {
	if m.bgDone != nil {
		<-m.bgDone
	}
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

func (m *Manager) notifySuccess(message string) {
	if m.notifier != nil {
		m.notifier.Success(message)
	}
}

func (m *Manager) notifyError(message string) {
	if m.notifier != nil {
		m.notifier.Error(message)
	}
}
