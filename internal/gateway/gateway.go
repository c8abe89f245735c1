// Package gateway はバックエンドAPIへの汎用リクエストラッパーを提供する。
// デフォルトJSONヘッダー・認証ヘッダー・呼び出し側の上書きヘッダーをマージし、
// エラーを正規化し、401応答を横取りして強制ログアウトとログイン画面への
// 遷移を実行する。
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/hitoshi/catman/internal/model"
)

// AuthProvider は認証ヘッダーの取得と強制ログアウトのインターフェース。
// 実装はinternal/authのService。
type AuthProvider interface {
	AuthHeaders(ctx context.Context) map[string]string
	Logout(ctx context.Context) error
}

// MetricsRecorder はゲートウェイのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordRequest(statusCode int)
	RecordForcedLogout()
}

// Navigator はクライアント側画面遷移のフック。
// 401横取り時に"/login"を引数に呼び出される。
type Navigator func(path string)

// Config はゲートウェイの設定。
type Config struct {
	BaseURL    string
	RatePerSec float64 // 0以下の場合はレート制限なし
	Burst      int
}

// Client はバックエンドAPIの汎用クライアント。
type Client struct {
	config     Config
	httpClient *http.Client
	auth       AuthProvider
	navigate   Navigator
	limiter    *rate.Limiter
	logger     *slog.Logger
	metrics    MetricsRecorder
}

// NewClient はClientを生成する。
// navigateがnilの場合、401横取り時の画面遷移は行わない（ログアウトのみ）。
// metricsがnilの場合、メトリクスは記録しない。
func NewClient(
	httpClient *http.Client,
	auth AuthProvider,
	navigate Navigator,
	logger *slog.Logger,
	metrics MetricsRecorder,
	config Config,
) *Client {
	var limiter *rate.Limiter
	if config.RatePerSec > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RatePerSec), burst)
	}
	return &Client{
		config:     config,
		httpClient: httpClient,
		auth:       auth,
		navigate:   navigate,
		limiter:    limiter,
		logger:     logger,
		metrics:    metrics,
	}
}

// RequestJSON は認証付きJSONリクエストを実行する。
// payloadがnilでない場合はJSONとしてシリアライズして送信し、
// outがnilでない場合は成功レスポンスをJSONとしてデコードする
// （スキーマ検証は行わず、受信したままの構造を返す）。
//
// ヘッダーはデフォルトJSONヘッダー → 認証ヘッダー → headersの順にマージされ、
// 同名ヘッダーは後勝ち（呼び出し側の指定が最優先）。
//
// 401応答はエンドポイントを問わず無条件に強制ログアウト（トークン3スロットの
// クリア）とログイン画面への遷移を実行し、セッション失効エラーを返す。
// リフレッシュトークンによる再発行は実装していないため、401は常に
// セッションの終端として扱う。
func (c *Client) RequestJSON(ctx context.Context, method, path string, payload any, out any, headers ...map[string]string) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to serialize request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, method, path, body, true, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return c.interceptUnauthorized(ctx, path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.normalizeError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response body: %w", err)
		}
	}

	return nil
}

// DownloadBlob は認証付きバイナリダウンロードを実行し、生のバイト列を返す。
// 401横取りポリシーはRequestJSONと同一。その他の失敗はHTTPステータス
// テキストを載せたエラーとして報告する。
func (c *Client) DownloadBlob(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil, false, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, c.interceptUnauthorized(ctx, path)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, model.NewDownloadFailedError(http.StatusText(resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read download body: %w", err)
	}

	return data, nil
}

// do はリクエストを組み立てて実行する。
// jsonHeadersがtrueの場合はContent-Type: application/jsonを付与する。
// extraのヘッダーはデフォルト・認証ヘッダーの後に適用され、同名を上書きする。
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, jsonHeaders bool, extra []map[string]string) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("request rate limit wait cancelled: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	if jsonHeaders {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range c.auth.AuthHeaders(ctx) {
		req.Header.Set(key, value)
	}
	for _, h := range extra {
		for key, value := range h {
			req.Header.Set(key, value)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("APIリクエストに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("API request failed: %w", err)
	}

	if c.metrics != nil {
		c.metrics.RecordRequest(resp.StatusCode)
	}

	return resp, nil
}

// interceptUnauthorized は401応答の共通処理。
// 強制ログアウト → ログイン画面へ遷移 → セッション失効エラーを返す。
// エラーは呼び出し元にも伝搬させ、呼び出し側のローカルな後始末
// （スピナー解除など）も実行させる。
func (c *Client) interceptUnauthorized(ctx context.Context, path string) error {
	c.logger.Warn("401応答を受信したためセッションを破棄します",
		slog.String("path", path),
	)

	if err := c.auth.Logout(ctx); err != nil {
		c.logger.Error("強制ログアウトに失敗しました", slog.String("error", err.Error()))
	}
	if c.metrics != nil {
		c.metrics.RecordForcedLogout()
	}
	if c.navigate != nil {
		c.navigate("/login")
	}

	return model.NewSessionExpiredError()
}

// normalizeError は非2xx応答をエラーに正規化する。
// JSONエラーボディのdetailをそのまま伝搬し、ボディが欠落・破損している
// 場合は汎用のHTTPステータスエラーを返す。
func (c *Client) normalizeError(resp *http.Response) error {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err == nil && parsed.Detail != "" {
		return model.NewServerDetailError(parsed.Detail)
	}
	return model.NewHTTPStatusError(resp.StatusCode)
}
