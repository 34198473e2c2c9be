// Package model はドメインモデルを定義する。
package model

import "time"

// Role はディレクトリレコードに付与される粗い権限区分。
type Role string

const (
	// RoleCandidate は候補者。新規同期されたユーザーの既定値。
	RoleCandidate Role = "candidate"
	// RoleInterviewer は面接官。管理CLIなど帯域外の手続きでのみ付与される。
	RoleInterviewer Role = "interviewer"
)

// Valid はロールが定義済みの値かどうかを返す。
func (r Role) Valid() bool {
	return r == RoleCandidate || r == RoleInterviewer
}

// User は外部IdPのidentityをミラーしたディレクトリレコードを表す。
// external_idで一意にキーされ、emailはセカンダリの検索キー。
type User struct {
	ID         string
	ExternalID string
	Email      string
	Name       string
	Image      string
	Role       Role
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RoleView はUIのゲーティングに使うロール判定結果。
type RoleView struct {
	IsLoading     bool `json:"isLoading"`
	IsInterviewer bool `json:"isInterviewer"`
	IsCandidate   bool `json:"isCandidate"`
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
