// Package proxy はアップストリームへの透過転送を実装する。
package proxy

import "strings"

// Target は1回の転送先を表す。ルート登録時に静的に決まり、以後不変。
type Target struct {
	BaseURL      string // アップストリームのベースURL
	UpstreamPath string // ベースURLに連結するパス
	Service      string // ログ用のサービス名（例: "ollama", "speech"）
	Action       string // ログ用のアクション名（例: "chat", "audio-speech"）
}

// URL はクエリ文字列を連結した転送先URLを返す。
func (t Target) URL(rawQuery string) string {
	u := strings.TrimRight(t.BaseURL, "/") + t.UpstreamPath
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	return u
}
