// Package platform はクライアント環境の分類を提供する。
// 環境識別文字列（User-Agent相当）は呼び出し側から引数で注入し、
// グローバルな状態は参照しない。毎回の呼び出しで再計算される純粋関数のみ。
package platform

import "regexp"

var (
	mobilePattern  = regexp.MustCompile(`(?i)Android|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)
	iosPattern     = regexp.MustCompile(`(?i)iPhone|iPad|iPod`)
	androidPattern = regexp.MustCompile(`(?i)Android`)
	safariPattern  = regexp.MustCompile(`(?i)Safari`)
	chromePattern  = regexp.MustCompile(`(?i)Chrome`)
)

// Profile はクライアント環境の分類結果を表す。
// ライフサイクルを持たない導出値。
type Profile struct {
	IsMobile                 bool
	IsIOS                    bool
	IsAndroid                bool
	IsSafari                 bool
	IsChrome                 bool
	NeedsAlternativeDownload bool
}

// Detect は環境識別文字列からProfileを導出する。
func Detect(userAgent string) Profile {
	isMobile := mobilePattern.MatchString(userAgent)
	isIOS := iosPattern.MatchString(userAgent)
	isAndroid := androidPattern.MatchString(userAgent)
	// ChromeのUAは"Safari"も含むため、Safari判定はChrome文字列の不在を要求する
	isSafari := safariPattern.MatchString(userAgent) && !chromePattern.MatchString(userAgent)
	isChrome := chromePattern.MatchString(userAgent)

	return Profile{
		IsMobile:                 isMobile,
		IsIOS:                    isIOS,
		IsAndroid:                isAndroid,
		IsSafari:                 isSafari,
		IsChrome:                 isChrome,
		NeedsAlternativeDownload: isMobile && (isIOS || isSafari),
	}
}

// Method はダウンロード戦略の種別を表す。
type Method string

const (
	// MethodProgrammatic はデスクトップ向けのプログラム的保存。
	MethodProgrammatic Method = "programmatic"
	// MethodWindowOpen はモバイル/iOS/Safari向けの新規コンテキスト表示。
	MethodWindowOpen Method = "window-open"
	// MethodFallback は予約された代替戦略（現状の呼び出し元では未使用）。
	MethodFallback Method = "fallback"
)

// DownloadMethod はProfileからダウンロード戦略を選択する。
func DownloadMethod(p Profile) Method {
	if p.IsMobile && (p.IsIOS || p.IsSafari) {
		return MethodWindowOpen
	}
	if p.IsMobile {
		return MethodWindowOpen
	}
	return MethodProgrammatic
}
