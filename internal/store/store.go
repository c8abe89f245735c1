// Package store はローカル状態ストア（SQLite）を提供する。
// アクセストークン・リフレッシュトークン・ユーザープロフィールの3スロットと、
// 生成済みカタログのダウンロード履歴をページリロード（プロセス再起動）を跨いで保持する。
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hitoshi/catman/internal/model"
)

// 永続化する3つの論理キー。元システムのlocalStorageキー名をそのまま引き継ぐ。
const (
	// KeyAccessToken はアクセストークンのキー。
	KeyAccessToken = "ja_access_token"
	// KeyRefreshToken はリフレッシュトークンのキー。
	KeyRefreshToken = "ja_refresh_token"
	// KeyUser はシリアライズ済みユーザープロフィールのキー。
	KeyUser = "ja_user"
)

// Store はSQLiteベースのローカル状態ストア。
// トークンの中身は検証せず不透明な文字列として保存する。
type Store struct {
	db *sql.DB
}

// Open はローカル状態DBを開く。
// 親ディレクトリが存在しない場合は作成する。
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	// ローカル状態ストアは単一プロセスからの利用を想定する
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

// DB は内部の*sql.DBを返す。ヘルスチェックとクリーンアップジョブから利用する。
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close はDB接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Get は指定キーの値を返す。未設定の場合は空文字列を返す。
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read key %s: %w", key, err)
	}
	return value, nil
}

// Set は指定キーの値を保存する。既存の値は上書きする。
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, err)
	}
	return nil
}

// SetTokens はトークンペアを保存する。
func (s *Store) SetTokens(ctx context.Context, tokens model.AuthTokens) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for key, value := range map[string]string{
		KeyAccessToken:  tokens.AccessToken,
		KeyRefreshToken: tokens.RefreshToken,
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value,
		); err != nil {
			return fmt.Errorf("failed to write key %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// SetUser はユーザープロフィールをJSONシリアライズして保存する。
func (s *Store) SetUser(ctx context.Context, user model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to serialize user: %w", err)
	}
	return s.Set(ctx, KeyUser, string(data))
}

// StoredUser はキャッシュ済みユーザープロフィールをデシリアライズして返す。
// 未保存または破損している場合はnilを返す（エラーにしない）。
func (s *Store) StoredUser(ctx context.Context) *model.User {
	data, err := s.Get(ctx, KeyUser)
	if err != nil || data == "" {
		return nil
	}

	var user model.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil
	}
	return &user
}

// AccessToken はアクセストークンを返す。未保存の場合は空文字列を返す。
func (s *Store) AccessToken(ctx context.Context) string {
	token, _ := s.Get(ctx, KeyAccessToken)
	return token
}

// RefreshToken はリフレッシュトークンを返す。未保存の場合は空文字列を返す。
func (s *Store) RefreshToken(ctx context.Context) string {
	token, _ := s.Get(ctx, KeyRefreshToken)
	return token
}

// ClearAuth は3つの認証キーを1トランザクションでまとめて削除する。
// ログアウトおよび401応答時のセッション破棄で使用する。
func (s *Store) ClearAuth(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM kv WHERE key IN (?, ?, ?)`,
		KeyAccessToken, KeyRefreshToken, KeyUser,
	); err != nil {
		return fmt.Errorf("failed to clear auth keys: %w", err)
	}

	return tx.Commit()
}
