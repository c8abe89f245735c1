package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"
)

// NewRecoveryMiddleware は配下のハンドラで発生したpanicを500応答に変換する
// ミドルウェアを生成する。ローカルエージェントはポーラーやクリーンアップ
// ジョブと同一プロセスで動くため、1リクエストのpanicでプロセス全体を
// 道連れにしない。
// loggerがnilの場合はデフォルトロガーを使用する。
func NewRecoveryMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				reason := recover()
				if reason == nil {
					return
				}
				logger.Error("リクエスト処理中にpanicが発生しました",
					slog.Any("reason", reason),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"internal server error"}`))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
