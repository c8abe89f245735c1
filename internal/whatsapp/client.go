// Package whatsapp はWhatsApp連携サービスのクライアントとステータスポーリングを提供する。
// メインのバックエンドとは別系統のAPIサーフェスで、Bearer認証ではなく
// テナント識別ヘッダー（x-tenant-id）で認可される読み取り中心のクライアント。
package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/hitoshi/catman/internal/model"
)

// Client はWhatsApp連携サービスのAPIクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string // 例: https://api-dev.lexgoia.com.br/whatsapp
	tenantID   string
}

// NewClient はClientの新しいインスタンスを生成する。
// baseURLには連携サービスのルート（/whatsappを含まない）を渡す。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL, tenantID string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    baseURL + "/whatsapp",
		tenantID:   tenantID,
	}
}

// Status は現在のインスタンス接続状態を取得する。
// テナントに対応するインスタンスが未作成の場合（404）は、
// 切断状態の合成レスポンスを返しエラーにしない。
func (c *Client) Status(ctx context.Context) (*model.InstanceStatus, error) {
	resp, err := c.get(ctx, "/instance/status", true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &model.InstanceStatus{
			Status:   model.InstanceStatusClose,
			TenantID: c.tenantID,
		}, nil
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("WhatsAppステータスAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("failed to get WhatsApp status: %s", http.StatusText(resp.StatusCode))
	}

	var status model.InstanceStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode WhatsApp status: %w", err)
	}

	return &status, nil
}

// Health は連携サービスのヘルス状態を取得する。テナントヘッダーは不要。
func (c *Client) Health(ctx context.Context) (*model.WhatsAppHealth, error) {
	resp, err := c.get(ctx, "/health", false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get health status: %s", http.StatusText(resp.StatusCode))
	}

	var health model.WhatsAppHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to decode health status: %w", err)
	}

	return &health, nil
}

// QRCode は接続用QRコードを取得する。
// ステータスコードごとに表示言語のエラーメッセージへ翻訳する。
func (c *Client) QRCode(ctx context.Context) (*model.QRCode, error) {
	resp, err := c.get(ctx, "/instance/qrcode", true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.translateQRCodeError(resp)
	}

	var qr model.QRCode
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("failed to decode QR code response: %w", err)
	}

	return &qr, nil
}

// Restart はインスタンスを再起動する。
func (c *Client) Restart(ctx context.Context) error {
	resp, err := c.send(ctx, http.MethodPost, "/instance/restart", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("Nenhuma instância WhatsApp encontrada para reiniciar")
		case http.StatusBadRequest:
			return fmt.Errorf("Não é possível reiniciar: instância em estado inválido")
		case http.StatusServiceUnavailable:
			return fmt.Errorf("Serviço WhatsApp temporariamente indisponível")
		default:
			return fmt.Errorf("Erro ao reiniciar: %s", responseMessage(resp))
		}
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}

// DeleteInstance はインスタンスを完全に削除する（恒久的な切断）。
// 削除操作には管理者アクションヘッダーが必要。
func (c *Client) DeleteInstance(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/instance", nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	c.setHeaders(req, true)
	req.Header.Set("x-admin-action", "true")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete WhatsApp instance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("Nenhuma instância WhatsApp encontrada para remover")
		case http.StatusForbidden:
			return fmt.Errorf("Sem permissão para remover a instância WhatsApp")
		case http.StatusBadRequest:
			return fmt.Errorf("Não é possível remover: instância em estado inválido")
		default:
			return fmt.Errorf("Erro ao remover instância: %s", responseMessage(resp))
		}
	}

	io.Copy(io.Discard, resp.Body)
	return nil
}

// translateQRCodeError はQRコード取得の失敗を表示言語のエラーへ翻訳する。
func (c *Client) translateQRCodeError(resp *http.Response) error {
	message := responseMessage(resp)

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("Erro de configuração: %s", message)
	case http.StatusUnauthorized:
		return fmt.Errorf("Erro de autenticação: Token inválido ou expirado")
	case http.StatusForbidden:
		return fmt.Errorf("Sem permissão para acessar WhatsApp")
	case http.StatusNotFound:
		return fmt.Errorf("Serviço WhatsApp não encontrado")
	case http.StatusInternalServerError:
		return fmt.Errorf("Erro interno do servidor WhatsApp")
	case http.StatusServiceUnavailable:
		return fmt.Errorf("Serviço WhatsApp temporariamente indisponível")
	default:
		return fmt.Errorf("Erro ao gerar QR Code: %s", message)
	}
}

// get はGETリクエストを実行する。
func (c *Client) get(ctx context.Context, path string, tenantHeader bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	c.setHeaders(req, tenantHeader)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("WhatsApp APIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return resp, nil
}

// send はボディなしの更新系リクエストを実行する。
func (c *Client) send(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	c.setHeaders(req, true)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("WhatsApp APIの呼び出しに失敗しました",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return resp, nil
}

// setHeaders は共通ヘッダーを設定する。
func (c *Client) setHeaders(req *http.Request, tenantHeader bool) {
	req.Header.Set("Content-Type", "application/json")
	if tenantHeader {
		req.Header.Set("x-tenant-id", c.tenantID)
	}
}

// responseMessage はエラーボディから{"message": ...}を取り出す。
// ボディが欠落・破損している場合はHTTPステータステキストを返す。
func responseMessage(resp *http.Response) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil || parsed.Message == "" {
		return http.StatusText(resp.StatusCode)
	}
	return parsed.Message
}
