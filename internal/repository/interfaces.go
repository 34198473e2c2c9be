// Package repository はデータ永続化のインターフェースとPostgreSQL実装を提供する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/codemeet/internal/model"
)

// ErrNotFound は更新・削除対象の行が存在しない場合に返る。
var ErrNotFound = errors.New("record not found")

// UserRepository はディレクトリレコードの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByExternalID は外部identity idでユーザーを取得する。見つからない場合はnilを返す。
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// UpsertByExternalID はexternal_idをキーに冪等にUPSERTする。
	// 新規作成時はrole=candidateとなり、既存の場合はroleを変更しない。
	// 保存後のID・ロール・作成日時をuserに書き戻し、新規作成だったかを返す。
	UpsertByExternalID(ctx context.Context, user *model.User) (bool, error)

	// UpdateRole はexternal_idで指定したユーザーのロールを変更する。
	UpdateRole(ctx context.Context, externalID string, role model.Role) error

	// List は作成日時順にユーザー一覧を返す。
	List(ctx context.Context) ([]*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。セッションはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はログインセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// CallRepository はビデオ通話セッションと参加者の永続化インターフェース。
type CallRepository interface {
	// CreateIfNotExists は通話が存在しなければ作成する。作成した場合はtrueを返す。
	CreateIfNotExists(ctx context.Context, call *model.Call) (bool, error)

	// FindByID は通話を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, callType, id string) (*model.Call, error)

	// MarkEnded は未終了の通話を終了済みにする。既に終了済みの場合はfalseを返す。
	MarkEnded(ctx context.Context, callType, id string, at time.Time) (bool, error)

	// UpsertMember は参加者を登録する。再参加の場合はleft_atをクリアする。
	UpsertMember(ctx context.Context, member *model.CallMember) error

	// MarkMemberLeft は参加者を退出済みにする。ライブ参加者でなかった場合はfalseを返す。
	MarkMemberLeft(ctx context.Context, callType, callID, userID string, at time.Time) (bool, error)

	// MarkAllMembersLeft は通話の全ライブ参加者を退出済みにする。
	MarkAllMembersLeft(ctx context.Context, callType, callID string, at time.Time) error

	// ListLiveMembers は退出していない参加者を参加順に返す。
	ListLiveMembers(ctx context.Context, callType, callID string) ([]*model.CallMember, error)

	// ListIdle はライブ参加者がおらず、最後の活動がidleSinceより前の未終了通話を返す。
	ListIdle(ctx context.Context, idleSince time.Time, limit int) ([]*model.Call, error)
}

// InterviewRepository は面接とコメントの永続化インターフェース。
type InterviewRepository interface {
	// Create は面接を作成する。
	Create(ctx context.Context, iv *model.Interview) error

	// FindByID は面接を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Interview, error)

	// FindByCallID は通話IDに紐づく面接を取得する。見つからない場合はnilを返す。
	FindByCallID(ctx context.Context, callID string) (*model.Interview, error)

	// ListAll は全面接を開始日時順に返す。
	ListAll(ctx context.Context) ([]*model.Interview, error)

	// ListByParticipant は候補者または面接官として参加する面接を開始日時順に返す。
	ListByParticipant(ctx context.Context, externalID string) ([]*model.Interview, error)

	// UpdateStatus はステータスと終了日時を更新する。
	UpdateStatus(ctx context.Context, id string, status model.InterviewStatus, endTime *time.Time) error

	// CreateComment はコメントを作成する。
	CreateComment(ctx context.Context, c *model.Comment) error

	// ListComments は面接のコメントを作成日時順に返す。
	ListComments(ctx context.Context, interviewID string) ([]*model.Comment, error)
}
