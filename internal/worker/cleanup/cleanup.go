// Package cleanup はダウンロード履歴の自動削除ジョブを提供する。
// 保持期間（デフォルト90日）を超過した履歴レコードと、対応する
// ディスク上のPDFファイルを日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// HistoryPruner は期限切れ履歴の削除インターフェース。
// 実装はinternal/storeのStore。
type HistoryPruner interface {
	// DeleteDownloadsBefore はcutoffより古い履歴を削除し、
	// 削除した行のファイル名を返す。
	DeleteDownloadsBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// CleanupJob は保持期間を超過したダウンロード履歴の自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	pruner        HistoryPruner
	logger        *slog.Logger
	downloadDir   string
	RetentionDays int // 履歴の保持日数（デフォルト: 90）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトの保持日数は90日。
func NewCleanupJob(pruner HistoryPruner, logger *slog.Logger, downloadDir string) *CleanupJob {
	return &CleanupJob{
		pruner:        pruner,
		logger:        logger,
		downloadDir:   downloadDir,
		RetentionDays: 90,
	}
}

// Run は保持期間を超過した履歴とファイルを削除する。
// 履歴レコードを先に削除し、残ったファイル名でディスク上のPDFを消す。
// ファイルがすでに存在しない場合はエラーにしない。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := time.Now().AddDate(0, 0, -j.RetentionDays)

	fileNames, err := j.pruner.DeleteDownloadsBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("ダウンロード履歴クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("ダウンロード履歴クリーンアップの実行に失敗: %w", err)
	}

	removedFiles := 0
	for _, name := range fileNames {
		path := filepath.Join(j.downloadDir, name)
		if err := os.Remove(path); err != nil {
			if !os.IsNotExist(err) {
				j.logger.Warn("期限切れカタログファイルの削除に失敗しました",
					slog.String("path", path),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		removedFiles++
	}

	duration := time.Since(start)
	j.logger.Info("ダウンロード履歴クリーンアップジョブが完了しました",
		slog.Int("deleted_records", len(fileNames)),
		slog.Int("deleted_files", removedFiles),
		slog.Int("retention_days", j.RetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
