package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/catman/internal/model"
)

// AddDownload はダウンロード履歴に1件追加する。
func (s *Store) AddDownload(ctx context.Context, rec model.DownloadRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO downloads (id, file_name, size_bytes, product_count, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.FileName, rec.SizeBytes, rec.ProductCount, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert download record: %w", err)
	}
	return nil
}

// ListDownloads はダウンロード履歴を新しい順に返す。
func (s *Store) ListDownloads(ctx context.Context) ([]model.DownloadRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_name, size_bytes, product_count, created_at
		 FROM downloads ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list download records: %w", err)
	}
	defer rows.Close()

	var records []model.DownloadRecord
	for rows.Next() {
		var rec model.DownloadRecord
		if err := rows.Scan(&rec.ID, &rec.FileName, &rec.SizeBytes, &rec.ProductCount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan download record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate download records: %w", err)
	}

	return records, nil
}

// DeleteDownload は指定IDの履歴を削除する。対象が存在しない場合もエラーにしない。
func (s *Store) DeleteDownload(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM downloads WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete download record: %w", err)
	}
	return nil
}

// DeleteDownloadsBefore はcutoffより古い履歴を削除し、削除した行のファイル名を返す。
// 返されたファイル名は呼び出し元がディスク上の実ファイル削除に使用する。
func (s *Store) DeleteDownloadsBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT file_name FROM downloads WHERE created_at < ?`, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired download records: %w", err)
	}
	defer rows.Close()

	var fileNames []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan expired download record: %w", err)
		}
		fileNames = append(fileNames, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate expired download records: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM downloads WHERE created_at < ?`, cutoff); err != nil {
		return nil, fmt.Errorf("failed to delete expired download records: %w", err)
	}

	return fileNames, nil
}
