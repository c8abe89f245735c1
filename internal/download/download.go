// Package download はカタログPDFの取得と保存戦略の実行を提供する。
// 戦略選択はinternal/platformの純粋な分類関数に委ね、本パッケージは
// 選択された戦略でバイト列を配送する。リトライは行わず、途中の失敗は
// そのまま呼び出し元に伝搬する（ユーザー向けのエラー表示は呼び出し元の責務）。
package download

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/catman/internal/model"
	"github.com/hitoshi/catman/internal/platform"
)

// BlobFetcher は認証付きバイナリ取得のインターフェース。
// 実装はinternal/gatewayのClient。
type BlobFetcher interface {
	DownloadBlob(ctx context.Context, path string) ([]byte, error)
}

// HistoryRecorder はダウンロード履歴の記録インターフェース。
type HistoryRecorder interface {
	AddDownload(ctx context.Context, rec model.DownloadRecord) error
}

// Opener は保存済みファイルを新しい閲覧コンテキストで開くフック。
// window-open戦略で使用する。開けない場合はエラーを返す。
type Opener func(path string) error

// Downloader はカタログPDFのダウンロード実行を担う。
type Downloader struct {
	fetcher BlobFetcher
	history HistoryRecorder
	opener  Opener
	logger  *slog.Logger
	dir     string
}

// NewDownloader はDownloaderを生成する。
// openerがnilの場合、window-open戦略は保存のみにフォールバックする。
// historyがnilの場合、履歴は記録しない。
func NewDownloader(fetcher BlobFetcher, history HistoryRecorder, opener Opener, logger *slog.Logger, dir string) *Downloader {
	return &Downloader{
		fetcher: fetcher,
		history: history,
		opener:  opener,
		logger:  logger,
		dir:     dir,
	}
}

// Download は生成済みカタログを取得し、プロファイルから選択した戦略で
// 配送する。保存先のファイルパスを返す。成功時はダウンロード履歴に記録する。
func (d *Downloader) Download(ctx context.Context, filename string, profile platform.Profile, productCount int) (string, error) {
	data, err := d.fetcher.DownloadBlob(ctx, "/api/download/"+filename)
	if err != nil {
		return "", err
	}

	method := platform.DownloadMethod(profile)

	savedPath, err := d.deliver(filename, data, method)
	if err != nil {
		return "", err
	}

	d.recordHistory(ctx, filename, int64(len(data)), productCount)

	d.logger.Info("カタログをダウンロードしました",
		slog.String("file_name", filename),
		slog.String("method", string(method)),
		slog.Int("size_bytes", len(data)),
	)

	return savedPath, nil
}

// deliver は選択された戦略でバイト列を配送する。
func (d *Downloader) deliver(filename string, data []byte, method platform.Method) (string, error) {
	switch method {
	case platform.MethodWindowOpen:
		path, err := d.save(filename, data)
		if err != nil {
			return "", err
		}
		// 新しいコンテキストで開けない場合は保存のみにフォールバックする
		if d.opener != nil {
			if err := d.opener(path); err != nil {
				d.logger.Warn("新規コンテキストでのオープンに失敗しました（保存済みファイルにフォールバック）",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}
		}
		return path, nil

	case platform.MethodFallback:
		// 予約戦略。現状は保存のみ。
		return d.save(filename, data)

	default: // MethodProgrammatic
		return d.save(filename, data)
	}
}

// save はバイト列をダウンロードディレクトリにアトミックに書き込む。
// 一時ファイルに書いてからリネームすることで、部分書き込みの
// ファイルが残らないようにする。
func (d *Downloader) save(filename string, data []byte) (string, error) {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	finalPath := filepath.Join(d.dir, filename)
	tmpPath := finalPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write download file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to finalize download file: %w", err)
	}

	return finalPath, nil
}

// recordHistory は履歴をベストエフォートで記録する。失敗はログのみ。
func (d *Downloader) recordHistory(ctx context.Context, filename string, size int64, productCount int) {
	if d.history == nil {
		return
	}
	rec := model.DownloadRecord{
		ID:           uuid.New().String(),
		FileName:     filename,
		SizeBytes:    size,
		ProductCount: productCount,
		CreatedAt:    time.Now(),
	}
	if err := d.history.AddDownload(ctx, rec); err != nil {
		d.logger.Warn("ダウンロード履歴の記録に失敗しました",
			slog.String("file_name", filename),
			slog.String("error", err.Error()),
		)
	}
}
