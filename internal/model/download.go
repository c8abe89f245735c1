// Package model はドメインモデルを定義する。
package model

import "time"

// DownloadRecord は生成済みカタログのダウンロード履歴を表す。
// ローカルの状態ストアに永続化され、Downloads画面の一覧に使用される。
type DownloadRecord struct {
	ID           string
	FileName     string
	SizeBytes    int64
	ProductCount int
	CreatedAt    time.Time
}
