// Package agent はローカルエージェントのHTTPサーフェスを提供する。
// 長時間稼働するエージェントモードで、セッション状態・WhatsApp接続状態・
// メトリクスをローカルのUI/ツールから読み取るための小さな読み取り専用APIを公開する。
// localhost以外からのアクセスは想定しない。
package agent

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/catman/internal/metrics"
	"github.com/hitoshi/catman/internal/middleware"
	"github.com/hitoshi/catman/internal/model"
	"github.com/hitoshi/catman/internal/whatsapp"
)

// SessionReader はセッション状態の読み取りインターフェース。
// 実装はinternal/sessionのManager。
type SessionReader interface {
	User() *model.User
	IsAuthenticated(ctx context.Context) bool
	IsLoading() bool
}

// StatusReader はWhatsApp接続状態の読み取りインターフェース。
// 実装はinternal/whatsappのPoller。
type StatusReader interface {
	Snapshot() whatsapp.Snapshot
}

// HealthChecker はローカル状態ストアの死活確認インターフェース。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Session  SessionReader
	Status   StatusReader
	Health   HealthChecker
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// statusResponse は GET /status のレスポンスボディ。
type statusResponse struct {
	Authenticated bool                  `json:"authenticated"`
	Loading       bool                  `json:"loading"`
	User          *model.User           `json:"user,omitempty"`
	WhatsApp      *whatsappStatusDetail `json:"whatsapp,omitempty"`
}

// whatsappStatusDetail はポーラーのスナップショットの公開形。
type whatsappStatusDetail struct {
	Status    *model.InstanceStatus `json:"status,omitempty"`
	Health    *model.WhatsAppHealth `json:"health,omitempty"`
	Error     string                `json:"error,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// NewRouter はローカルエージェントの全ルーティングとミドルウェアチェーンを
// 構成したchi.Routerを返す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	r.Get("/health", handleHealth(deps.Health))
	r.Get("/status", handleStatus(deps.Session, deps.Status))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	return r
}

// handleHealth はローカル状態ストアの死活を確認する。
// ストアに到達できない場合は503を返す。
func handleHealth(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if checker != nil {
			if err := checker.PingContext(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleStatus はセッション状態とWhatsApp接続状態のスナップショットを返す。
func handleStatus(session SessionReader, status StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{
			Authenticated: session.IsAuthenticated(r.Context()),
			Loading:       session.IsLoading(),
			User:          session.User(),
		}

		if status != nil {
			snap := status.Snapshot()
			if !snap.UpdatedAt.IsZero() {
				resp.WhatsApp = &whatsappStatusDetail{
					Status:    snap.Status,
					Health:    snap.Health,
					Error:     snap.Error,
					UpdatedAt: snap.UpdatedAt,
				}
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}
