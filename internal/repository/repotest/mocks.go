// Package repotest はリポジトリインターフェースの関数フィールド型モックを提供する。
// 未設定のメソッドはゼロ値を返す。
package repotest

import (
	"context"
	"time"

	"github.com/hitoshi/codemeet/internal/model"
	"github.com/hitoshi/codemeet/internal/repository"
)

// UserRepo はrepository.UserRepositoryのモック。
type UserRepo struct {
	FindByIDFn           func(ctx context.Context, id string) (*model.User, error)
	FindByExternalIDFn   func(ctx context.Context, externalID string) (*model.User, error)
	FindByEmailFn        func(ctx context.Context, email string) (*model.User, error)
	UpsertByExternalIDFn func(ctx context.Context, u *model.User) (bool, error)
	UpdateRoleFn         func(ctx context.Context, externalID string, role model.Role) error
	ListFn               func(ctx context.Context) ([]*model.User, error)
	DeleteByIDFn         func(ctx context.Context, id string) error
}

func (m *UserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.FindByIDFn != nil {
		return m.FindByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *UserRepo) FindByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	if m.FindByExternalIDFn != nil {
		return m.FindByExternalIDFn(ctx, externalID)
	}
	return nil, nil
}

func (m *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.FindByEmailFn != nil {
		return m.FindByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *UserRepo) UpsertByExternalID(ctx context.Context, u *model.User) (bool, error) {
	if m.UpsertByExternalIDFn != nil {
		return m.UpsertByExternalIDFn(ctx, u)
	}
	return false, nil
}

func (m *UserRepo) UpdateRole(ctx context.Context, externalID string, role model.Role) error {
	if m.UpdateRoleFn != nil {
		return m.UpdateRoleFn(ctx, externalID, role)
	}
	return nil
}

func (m *UserRepo) List(ctx context.Context) ([]*model.User, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx)
	}
	return nil, nil
}

func (m *UserRepo) DeleteByID(ctx context.Context, id string) error {
	if m.DeleteByIDFn != nil {
		return m.DeleteByIDFn(ctx, id)
	}
	return nil
}

// SessionRepo はrepository.SessionRepositoryのモック。
type SessionRepo struct {
	CreateFn         func(ctx context.Context, s *model.Session) error
	FindByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	DeleteByIDFn     func(ctx context.Context, id string) error
	DeleteByUserIDFn func(ctx context.Context, userID string) error
	DeleteExpiredFn  func(ctx context.Context) (int64, error)
}

func (m *SessionRepo) Create(ctx context.Context, s *model.Session) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, s)
	}
	return nil
}

func (m *SessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.FindByIDFn != nil {
		return m.FindByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *SessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.DeleteByIDFn != nil {
		return m.DeleteByIDFn(ctx, id)
	}
	return nil
}

func (m *SessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.DeleteByUserIDFn != nil {
		return m.DeleteByUserIDFn(ctx, userID)
	}
	return nil
}

func (m *SessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFn != nil {
		return m.DeleteExpiredFn(ctx)
	}
	return 0, nil
}

// CallRepo はrepository.CallRepositoryのモック。
type CallRepo struct {
	CreateIfNotExistsFn  func(ctx context.Context, c *model.Call) (bool, error)
	FindByIDFn           func(ctx context.Context, callType, id string) (*model.Call, error)
	MarkEndedFn          func(ctx context.Context, callType, id string, at time.Time) (bool, error)
	UpsertMemberFn       func(ctx context.Context, m *model.CallMember) error
	MarkMemberLeftFn     func(ctx context.Context, callType, callID, userID string, at time.Time) (bool, error)
	MarkAllMembersLeftFn func(ctx context.Context, callType, callID string, at time.Time) error
	ListLiveMembersFn    func(ctx context.Context, callType, callID string) ([]*model.CallMember, error)
	ListIdleFn           func(ctx context.Context, idleSince time.Time, limit int) ([]*model.Call, error)
}

func (m *CallRepo) CreateIfNotExists(ctx context.Context, c *model.Call) (bool, error) {
	if m.CreateIfNotExistsFn != nil {
		return m.CreateIfNotExistsFn(ctx, c)
	}
	return true, nil
}

func (m *CallRepo) FindByID(ctx context.Context, callType, id string) (*model.Call, error) {
	if m.FindByIDFn != nil {
		return m.FindByIDFn(ctx, callType, id)
	}
	return nil, nil
}

func (m *CallRepo) MarkEnded(ctx context.Context, callType, id string, at time.Time) (bool, error) {
	if m.MarkEndedFn != nil {
		return m.MarkEndedFn(ctx, callType, id, at)
	}
	return true, nil
}

func (m *CallRepo) UpsertMember(ctx context.Context, member *model.CallMember) error {
	if m.UpsertMemberFn != nil {
		return m.UpsertMemberFn(ctx, member)
	}
	return nil
}

func (m *CallRepo) MarkMemberLeft(ctx context.Context, callType, callID, userID string, at time.Time) (bool, error) {
	if m.MarkMemberLeftFn != nil {
		return m.MarkMemberLeftFn(ctx, callType, callID, userID, at)
	}
	return true, nil
}

func (m *CallRepo) MarkAllMembersLeft(ctx context.Context, callType, callID string, at time.Time) error {
	if m.MarkAllMembersLeftFn != nil {
		return m.MarkAllMembersLeftFn(ctx, callType, callID, at)
	}
	return nil
}

func (m *CallRepo) ListLiveMembers(ctx context.Context, callType, callID string) ([]*model.CallMember, error) {
	if m.ListLiveMembersFn != nil {
		return m.ListLiveMembersFn(ctx, callType, callID)
	}
	return nil, nil
}

func (m *CallRepo) ListIdle(ctx context.Context, idleSince time.Time, limit int) ([]*model.Call, error) {
	if m.ListIdleFn != nil {
		return m.ListIdleFn(ctx, idleSince, limit)
	}
	return nil, nil
}

// InterviewRepo はrepository.InterviewRepositoryのモック。
type InterviewRepo struct {
	CreateFn            func(ctx context.Context, iv *model.Interview) error
	FindByIDFn          func(ctx context.Context, id string) (*model.Interview, error)
	FindByCallIDFn      func(ctx context.Context, callID string) (*model.Interview, error)
	ListAllFn           func(ctx context.Context) ([]*model.Interview, error)
	ListByParticipantFn func(ctx context.Context, externalID string) ([]*model.Interview, error)
	UpdateStatusFn      func(ctx context.Context, id string, status model.InterviewStatus, endTime *time.Time) error
	CreateCommentFn     func(ctx context.Context, c *model.Comment) error
	ListCommentsFn      func(ctx context.Context, interviewID string) ([]*model.Comment, error)
}

func (m *InterviewRepo) Create(ctx context.Context, iv *model.Interview) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, iv)
	}
	return nil
}

func (m *InterviewRepo) FindByID(ctx context.Context, id string) (*model.Interview, error) {
	if m.FindByIDFn != nil {
		return m.FindByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *InterviewRepo) FindByCallID(ctx context.Context, callID string) (*model.Interview, error) {
	if m.FindByCallIDFn != nil {
		return m.FindByCallIDFn(ctx, callID)
	}
	return nil, nil
}

func (m *InterviewRepo) ListAll(ctx context.Context) ([]*model.Interview, error) {
	if m.ListAllFn != nil {
		return m.ListAllFn(ctx)
	}
	return nil, nil
}

func (m *InterviewRepo) ListByParticipant(ctx context.Context, externalID string) ([]*model.Interview, error) {
	if m.ListByParticipantFn != nil {
		return m.ListByParticipantFn(ctx, externalID)
	}
	return nil, nil
}

func (m *InterviewRepo) UpdateStatus(ctx context.Context, id string, status model.InterviewStatus, endTime *time.Time) error {
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, id, status, endTime)
	}
	return nil
}

func (m *InterviewRepo) CreateComment(ctx context.Context, c *model.Comment) error {
	if m.CreateCommentFn != nil {
		return m.CreateCommentFn(ctx, c)
	}
	return nil
}

func (m *InterviewRepo) ListComments(ctx context.Context, interviewID string) ([]*model.Comment, error) {
	if m.ListCommentsFn != nil {
		return m.ListCommentsFn(ctx, interviewID)
	}
	return nil, nil
}

// compile-time interface checks
var (
	_ repository.UserRepository      = (*UserRepo)(nil)
	_ repository.SessionRepository   = (*SessionRepo)(nil)
	_ repository.CallRepository      = (*CallRepo)(nil)
	_ repository.InterviewRepository = (*InterviewRepo)(nil)
)
