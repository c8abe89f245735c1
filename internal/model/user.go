// Package model はドメインモデルを定義する。
package model

// User はバックエンドから取得したユーザープロフィールを表す。
// クライアント側では不変の値オブジェクトとして扱い、
// ログイン/登録のレスポンスエコー以外でクライアント側から生成しない。
type User struct {
	Email     string `json:"email"`
	FullName  string `json:"full_name"`
	Role      string `json:"role"` // "admin" または "user"
	IsActive  bool   `json:"is_active"`
	CreatedAt string `json:"created_at"`
}

// AuthTokens はログイン/登録で発行されるトークンペアを表す。
// トークンの中身は不透明な文字列として扱い、クライアント側で検証しない。
type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Credentials はログインフォームの入力値を表す。
// ネットワーク呼び出しの完了後に破棄される一時的な値オブジェクトで、永続化しない。
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// RegisterData は新規登録フォームの入力値を表す。永続化しない。
type RegisterData struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
}

// CreateUserData は管理者によるユーザー作成の入力値を表す。
type CreateUserData struct {
	Email    string `json:"email" validate:"required,email"`
	FullName string `json:"full_name" validate:"required"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=admin user"`
}
