package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/codemeet/internal/call"
	"github.com/hitoshi/codemeet/internal/calltoken"
	"github.com/hitoshi/codemeet/internal/interview"
	"github.com/hitoshi/codemeet/internal/middleware"
	"github.com/hitoshi/codemeet/internal/model"
	"github.com/hitoshi/codemeet/internal/user"
)

// --- モック定義 ---

type mockUserService struct {
	syncFn     func(ctx context.Context, in user.SyncInput) (*model.User, error)
	lookupFn   func(ctx context.Context, externalID string) (*model.User, error)
	getByIDFn  func(ctx context.Context, id string) (*model.User, error)
	withdrawFn func(ctx context.Context, userID string) error
}

func (m *mockUserService) Sync(ctx context.Context, in user.SyncInput) (*model.User, error) {
	if m.syncFn != nil {
		return m.syncFn(ctx, in)
	}
	return &model.User{ID: "id-" + in.ExternalID, ExternalID: in.ExternalID}, nil
}

func (m *mockUserService) Lookup(ctx context.Context, externalID string) (*model.User, error) {
	if m.lookupFn != nil {
		return m.lookupFn(ctx, externalID)
	}
	return nil, nil
}

func (m *mockUserService) GetByID(ctx context.Context, id string) (*model.User, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, model.NewUserNotFoundError()
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

// FindByID はRequireInterviewerのUserFinderとして使う。
func (m *mockUserService) FindByID(ctx context.Context, id string) (*model.User, error) {
	u, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, nil
	}
	return u, nil
}

type mockCallService struct {
	getOrCreateFn  func(ctx context.Context, caller call.Caller, callType, id string, meta model.CallMetadata) (*model.Call, bool, error)
	getFn          func(ctx context.Context, callType, id string) (*model.Call, error)
	joinFn         func(ctx context.Context, caller call.Caller, callType, id string) (*model.Call, error)
	leaveFn        func(ctx context.Context, caller call.Caller, callType, id string) error
	endFn          func(ctx context.Context, caller call.Caller, callType, id string) (*model.Call, error)
	participantsFn func(ctx context.Context, callType, id string) ([]model.Participant, error)
	snapshotFn     func(ctx context.Context, callType, id string) (model.ParticipantSnapshot, error)
	subscribeFn    func(ctx context.Context, callType, id string) (<-chan model.ParticipantSnapshot, error)
}

func (m *mockCallService) GetOrCreate(ctx context.Context, caller call.Caller, callType, id string, meta model.CallMetadata) (*model.Call, bool, error) {
	if m.getOrCreateFn != nil {
		return m.getOrCreateFn(ctx, caller, callType, id, meta)
	}
	return &model.Call{Type: callType, ID: id, CreatedBy: caller.ExternalID}, true, nil
}

func (m *mockCallService) Get(ctx context.Context, callType, id string) (*model.Call, error) {
	if m.getFn != nil {
		return m.getFn(ctx, callType, id)
	}
	return nil, model.NewCallNotFoundError(id)
}

func (m *mockCallService) Join(ctx context.Context, caller call.Caller, callType, id string) (*model.Call, error) {
	if m.joinFn != nil {
		return m.joinFn(ctx, caller, callType, id)
	}
	return &model.Call{Type: callType, ID: id}, nil
}

func (m *mockCallService) Leave(ctx context.Context, caller call.Caller, callType, id string) error {
	if m.leaveFn != nil {
		return m.leaveFn(ctx, caller, callType, id)
	}
	return nil
}

func (m *mockCallService) End(ctx context.Context, caller call.Caller, callType, id string) (*model.Call, error) {
	if m.endFn != nil {
		return m.endFn(ctx, caller, callType, id)
	}
	return &model.Call{Type: callType, ID: id}, nil
}

func (m *mockCallService) Participants(ctx context.Context, callType, id string) ([]model.Participant, error) {
	if m.participantsFn != nil {
		return m.participantsFn(ctx, callType, id)
	}
	return []model.Participant{}, nil
}

func (m *mockCallService) Snapshot(ctx context.Context, callType, id string) (model.ParticipantSnapshot, error) {
	if m.snapshotFn != nil {
		return m.snapshotFn(ctx, callType, id)
	}
	return model.ParticipantSnapshot{CallType: callType, CallID: id, Participants: []model.Participant{}}, nil
}

func (m *mockCallService) Subscribe(ctx context.Context, callType, id string) (<-chan model.ParticipantSnapshot, error) {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, callType, id)
	}
	return nil, model.NewCallNotFoundError(id)
}

type mockInterviewService struct {
	scheduleFn     func(ctx context.Context, actor *model.User, in interview.ScheduleInput) (*model.Interview, error)
	listAllFn      func(ctx context.Context, actor *model.User) ([]*model.Interview, error)
	listMineFn     func(ctx context.Context, actor *model.User) ([]*model.Interview, error)
	getByCallIDFn  func(ctx context.Context, actor *model.User, callID string) (*model.Interview, error)
	updateStatusFn func(ctx context.Context, actor *model.User, id string, status model.InterviewStatus) (*model.Interview, error)
	addCommentFn   func(ctx context.Context, actor *model.User, interviewID string, in interview.CommentInput) (*model.Comment, error)
	listCommentsFn func(ctx context.Context, actor *model.User, interviewID string) ([]*model.Comment, error)
}

func (m *mockInterviewService) Schedule(ctx context.Context, actor *model.User, in interview.ScheduleInput) (*model.Interview, error) {
	if m.scheduleFn != nil {
		return m.scheduleFn(ctx, actor, in)
	}
	return &model.Interview{ID: "iv-1", Title: in.Title, Status: model.InterviewStatusScheduled}, nil
}

func (m *mockInterviewService) ListAll(ctx context.Context, actor *model.User) ([]*model.Interview, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx, actor)
	}
	return nil, nil
}

func (m *mockInterviewService) ListMine(ctx context.Context, actor *model.User) ([]*model.Interview, error) {
	if m.listMineFn != nil {
		return m.listMineFn(ctx, actor)
	}
	return nil, nil
}

func (m *mockInterviewService) GetByCallID(ctx context.Context, actor *model.User, callID string) (*model.Interview, error) {
	if m.getByCallIDFn != nil {
		return m.getByCallIDFn(ctx, actor, callID)
	}
	return nil, model.NewInterviewNotFoundError(callID)
}

func (m *mockInterviewService) UpdateStatus(ctx context.Context, actor *model.User, id string, status model.InterviewStatus) (*model.Interview, error) {
	if m.updateStatusFn != nil {
		return m.updateStatusFn(ctx, actor, id, status)
	}
	return &model.Interview{ID: id, Status: status}, nil
}

func (m *mockInterviewService) AddComment(ctx context.Context, actor *model.User, interviewID string, in interview.CommentInput) (*model.Comment, error) {
	if m.addCommentFn != nil {
		return m.addCommentFn(ctx, actor, interviewID, in)
	}
	return &model.Comment{ID: "c-1", InterviewID: interviewID, InterviewerID: actor.ExternalID, Content: in.Content, Rating: in.Rating}, nil
}

func (m *mockInterviewService) ListComments(ctx context.Context, actor *model.User, interviewID string) ([]*model.Comment, error) {
	if m.listCommentsFn != nil {
		return m.listCommentsFn(ctx, actor, interviewID)
	}
	return nil, nil
}

type mockTokenIssuer struct {
	issueFn func(ctx context.Context) (*calltoken.Credential, error)
}

func (m *mockTokenIssuer) Issue(ctx context.Context) (*calltoken.Credential, error) {
	return m.issueFn(ctx)
}

// --- compile-time interface checks ---

var (
	_ UserServiceInterface      = (*user.Service)(nil)
	_ CallServiceInterface      = (*call.Service)(nil)
	_ InterviewServiceInterface = (*interview.Service)(nil)
	_ TokenIssuer               = (*calltoken.TokenIssuer)(nil)
)

// --- ヘルパー ---

// withUserID はテスト用にセッション認証済みのユーザーIDをコンテキストに設定する。
func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}

// withCallClaims はテスト用にビデオトークンのクレームをコンテキストに設定する。
func withCallClaims(r *http.Request, externalID, name string) *http.Request {
	claims := &calltoken.Claims{UserID: externalID, Name: name}
	claims.Subject = externalID
	return r.WithContext(middleware.ContextWithCallClaims(r.Context(), claims))
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// usersByID はセッションIDからディレクトリレコードを返すモックを組み立てる。
func usersByID(users ...*model.User) *mockUserService {
	byID := make(map[string]*model.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return &mockUserService{
		getByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			if u, ok := byID[id]; ok {
				return u, nil
			}
			return nil, model.NewUserNotFoundError()
		},
	}
}

var (
	testInterviewer = &model.User{ID: "user-int", ExternalID: "int-1", Name: "Ivy", Role: model.RoleInterviewer}
	testCandidate   = &model.User{ID: "user-cand", ExternalID: "u1", Name: "Cody", Role: model.RoleCandidate}
)
