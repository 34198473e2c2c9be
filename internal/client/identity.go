// Package client はビデオ通話基盤とディレクトリAPIを利用するクライアントライブラリ。
// UIシェル（デスクトップ、TUI、テストハーネス）がidentityの遷移を流し込み、
// 通話ハンドルのライフサイクル、ミーティング操作、通話検索、入室前セットアップを駆動する。
package client

import "strings"

// Identity は外部IdPから得たログイン中のidentityの状態。
// Loadedがfalseの間は判定できず、Loaded && !Presentはログアウト状態を表す。
type Identity struct {
	ID             string
	Loaded         bool
	Present        bool
	FirstName      string
	LastName       string
	ImageURL       string
	EmailAddresses []string
}

// Ready はidentityが読み込み済みかつ存在するかを返す。
func (i Identity) Ready() bool {
	return i.Loaded && i.Present && i.ID != ""
}

// DisplayName は姓名を連結した表示名を返す。姓名が無い場合はIDにフォールバックする。
func (i Identity) DisplayName() string {
	if full := strings.TrimSpace(i.FirstName + " " + i.LastName); full != "" {
		return full
	}
	return i.ID
}

// PrimaryEmail は最初のメールアドレスを返す。
func (i Identity) PrimaryEmail() string {
	if len(i.EmailAddresses) == 0 {
		return ""
	}
	return i.EmailAddresses[0]
}

// User は通話ハンドルに紐づく利用者情報。
type User struct {
	ID    string
	Name  string
	Image string
}

func userFromIdentity(i Identity) User {
	return User{ID: i.ID, Name: i.DisplayName(), Image: i.ImageURL}
}
