package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestAuthError_MessageIsPreserved(t *testing.T) {
	err := NewAuthError("No access token available")
	if err.Error() != "No access token available" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestIsAuthError(t *testing.T) {
	if !IsAuthError(NewAuthError("x")) {
		t.Error("AuthError が判定されなかった")
	}
	// ラップされていても判定される
	wrapped := fmt.Errorf("login: %w", NewAuthError("x"))
	if !IsAuthError(wrapped) {
		t.Error("ラップされた AuthError が判定されなかった")
	}
	if IsAuthError(errors.New("plain")) {
		t.Error("一般エラーが AuthError と判定された")
	}
	if IsAuthError(nil) {
		t.Error("nil が AuthError と判定された")
	}
}

func TestSessionExpiredError(t *testing.T) {
	err := NewSessionExpiredError()

	if err.Code != ErrCodeSessionExpired {
		t.Errorf("Code = %s, want SESSION_EXPIRED", err.Code)
	}
	if err.Message != "Sessão expirada. Faça login novamente." {
		t.Errorf("Message = %q", err.Message)
	}
	if err.Category != "auth" {
		t.Errorf("Category = %s, want auth", err.Category)
	}
	if !IsSessionExpired(err) {
		t.Error("IsSessionExpired が false を返した")
	}
}

func TestIsSessionExpired_OtherErrors(t *testing.T) {
	if IsSessionExpired(NewHTTPStatusError(500)) {
		t.Error("HTTPエラーがセッション失効と判定された")
	}
	if IsSessionExpired(errors.New("plain")) {
		t.Error("一般エラーがセッション失効と判定された")
	}
	if IsSessionExpired(nil) {
		t.Error("nil がセッション失効と判定された")
	}
}

func TestHTTPStatusError_MessageFormat(t *testing.T) {
	err := NewHTTPStatusError(502)
	if err.Message != "HTTP error! status: 502" {
		t.Errorf("Message = %q, want %q", err.Message, "HTTP error! status: 502")
	}
}

func TestDownloadFailedError_MessageFormat(t *testing.T) {
	err := NewDownloadFailedError("Not Found")
	if err.Message != "Download failed: Not Found" {
		t.Errorf("Message = %q, want %q", err.Message, "Download failed: Not Found")
	}
	if err.Code != ErrCodeDownloadFailed {
		t.Errorf("Code = %s, want DOWNLOAD_FAILED", err.Code)
	}
}

func TestInvalidImageURLError_IncludesProductName(t *testing.T) {
	err := NewInvalidImageURLError("Cerveja Lata 350ml", "blocked IP address")

	if err.Code != ErrCodeInvalidImage {
		t.Errorf("Code = %s, want INVALID_IMAGE_URL", err.Code)
	}
	want := `Imagem inválida para o produto "Cerveja Lata 350ml": blocked IP address`
	if err.Message != want {
		t.Errorf("Message = %q, want %q", err.Message, want)
	}
}

func TestAPIError_ErrorIncludesCode(t *testing.T) {
	err := NewServerDetailError("Produto não encontrado")
	if err.Error() != "[HTTP_ERROR] Produto não encontrado" {
		t.Errorf("Error() = %q", err.Error())
	}
}
