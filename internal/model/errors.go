// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// AuthError は認証に関するエラーを表す。
// トークン未保持、ネットワーク失敗、タイムアウト、非2xxレスポンスを
// 単一のエラー型に集約し、メッセージ文字列のみで区別する。
// （元システムの観測挙動を保存したもので、推奨設計ではない。）
type AuthError struct {
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *AuthError) Error() string {
	return e.Message
}

// NewAuthError は認証エラーを生成する。
func NewAuthError(message string) *AuthError {
	return &AuthError{Message: message}
}

// IsAuthError はエラーがAuthErrorかどうかを判定する。
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ（表示言語はポルトガル語）
	Category string // カテゴリ: auth, validation, network, server
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeSessionExpired = "SESSION_EXPIRED"
	ErrCodeHTTPError      = "HTTP_ERROR"
	ErrCodeDownloadFailed = "DOWNLOAD_FAILED"
	ErrCodeInvalidImage   = "INVALID_IMAGE_URL"
	ErrCodeNetwork        = "NETWORK_ERROR"
)

// NewSessionExpiredError はセッション失効エラーを生成する。
// どのエンドポイントであっても401応答は一律このエラーに変換され、
// 強制ログアウトとログイン画面への遷移を伴う。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "Sessão expirada. Faça login novamente.",
		Category: "auth",
		Action:   "Faça login novamente para continuar.",
	}
}

// NewHTTPStatusError はエラーボディにdetailが含まれない非2xx応答のエラーを生成する。
func NewHTTPStatusError(statusCode int) *APIError {
	return &APIError{
		Code:     ErrCodeHTTPError,
		Message:  fmt.Sprintf("HTTP error! status: %d", statusCode),
		Category: "server",
		Action:   "Tente novamente em alguns instantes.",
	}
}

// NewServerDetailError はサーバーが返したdetailメッセージをそのまま伝搬するエラーを生成する。
func NewServerDetailError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeHTTPError,
		Message:  detail,
		Category: "server",
		Action:   "Verifique os dados e tente novamente.",
	}
}

// NewDownloadFailedError はバイナリダウンロード失敗のエラーを生成する。
// メッセージにはHTTPステータステキストを含める。
func NewDownloadFailedError(statusText string) *APIError {
	return &APIError{
		Code:     ErrCodeDownloadFailed,
		Message:  fmt.Sprintf("Download failed: %s", statusText),
		Category: "server",
		Action:   "Tente novamente. A seleção de produtos foi mantida.",
	}
}

// NewInvalidImageURLError はカタログ生成前の画像URL検証エラーを生成する。
func NewInvalidImageURLError(productName, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImage,
		Message:  fmt.Sprintf("Imagem inválida para o produto %q: %s", productName, reason),
		Category: "validation",
		Action:   "Corrija a URL da imagem do produto na base de dados.",
	}
}

// IsSessionExpired はエラーがセッション失効エラーかどうかを判定する。
func IsSessionExpired(err error) bool {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code == ErrCodeSessionExpired
	}
	return false
}
