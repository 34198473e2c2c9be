package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/codemeet/internal/interview"
	"github.com/hitoshi/codemeet/internal/model"
)

// InterviewServiceInterface は面接ハンドラーが必要とするサービスインターフェース。
// すべての操作はログインユーザーのディレクトリレコードを操作者として受け取る。
type InterviewServiceInterface interface {
	Schedule(ctx context.Context, actor *model.User, in interview.ScheduleInput) (*model.Interview, error)
	ListAll(ctx context.Context, actor *model.User) ([]*model.Interview, error)
	ListMine(ctx context.Context, actor *model.User) ([]*model.Interview, error)
	GetByCallID(ctx context.Context, actor *model.User, callID string) (*model.Interview, error)
	UpdateStatus(ctx context.Context, actor *model.User, id string, status model.InterviewStatus) (*model.Interview, error)
	AddComment(ctx context.Context, actor *model.User, interviewID string, in interview.CommentInput) (*model.Comment, error)
	ListComments(ctx context.Context, actor *model.User, interviewID string) ([]*model.Comment, error)
}

// InterviewHandler は面接管理のHTTPハンドラー。
type InterviewHandler struct {
	service InterviewServiceInterface
	users   userGetter
	now     func() time.Time
}

// NewInterviewHandler はInterviewHandlerを生成する。
func NewInterviewHandler(service InterviewServiceInterface, users userGetter) *InterviewHandler {
	return &InterviewHandler{service: service, users: users, now: time.Now}
}

// interviewResponse は面接のAPIレスポンス。
type interviewResponse struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	StartTime      time.Time  `json:"startTime"`
	EndTime        *time.Time `json:"endTime,omitempty"`
	Status         string     `json:"status"`
	MeetingState   string     `json:"meetingState"`
	CallID         string     `json:"callId"`
	CandidateID    string     `json:"candidateId"`
	InterviewerIDs []string   `json:"interviewerIds"`
	CreatedAt      time.Time  `json:"createdAt"`
}

type commentResponse struct {
	ID            string    `json:"id"`
	InterviewID   string    `json:"interviewId"`
	InterviewerID string    `json:"interviewerId"`
	Content       string    `json:"content"`
	Rating        int       `json:"rating"`
	CreatedAt     time.Time `json:"createdAt"`
}

type commentListResponse struct {
	Comments      []commentResponse `json:"comments"`
	AverageRating float64           `json:"averageRating"`
}

type dashboardResponse struct {
	Upcoming  []interviewResponse `json:"upcoming"`
	Completed []interviewResponse `json:"completed"`
	Succeeded []interviewResponse `json:"succeeded"`
	Failed    []interviewResponse `json:"failed"`
	Stats     interview.Stats     `json:"stats"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *InterviewHandler) toInterviewResponse(iv *model.Interview) interviewResponse {
	ids := iv.InterviewerIDs
	if ids == nil {
		ids = []string{}
	}
	return interviewResponse{
		ID:             iv.ID,
		Title:          iv.Title,
		Description:    iv.Description,
		StartTime:      iv.StartTime,
		EndTime:        iv.EndTime,
		Status:         string(iv.Status),
		MeetingState:   string(interview.MeetingStatus(iv, h.now())),
		CallID:         iv.CallID,
		CandidateID:    iv.CandidateID,
		InterviewerIDs: ids,
		CreatedAt:      iv.CreatedAt,
	}
}

func (h *InterviewHandler) toInterviewList(list []*model.Interview) []interviewResponse {
	out := make([]interviewResponse, len(list))
	for i, iv := range list {
		out[i] = h.toInterviewResponse(iv)
	}
	return out
}

func toCommentResponse(c *model.Comment) commentResponse {
	return commentResponse{
		ID:            c.ID,
		InterviewID:   c.InterviewID,
		InterviewerID: c.InterviewerID,
		Content:       c.Content,
		Rating:        c.Rating,
		CreatedAt:     c.CreatedAt,
	}
}

// Schedule は面接を作成する。
// POST /api/interviews
func (h *InterviewHandler) Schedule(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(w, r, h.users)
	if actor == nil {
		return
	}

	var in interview.ScheduleInput
	if !decodeJSON(w, r, &in) {
		return
	}

	iv, err := h.service.Schedule(r.Context(), actor, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.toInterviewResponse(iv))
}

// ListAll は全面接を開始時刻順で返す。面接官のみ。
// GET /api/interviews
func (h *InterviewHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(w, r, h.users)
	if actor == nil {
		return
	}
	list, err := h.service.ListAll(r.Context(), actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toInterviewList(interview.SortByStartTime(list)))
}

// ListMine はログインユーザーが関わる面接を返す。
// GET /api/interviews/mine
func (h *InterviewHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(w, r, h.users)
	if actor == nil {
		return
	}
	list, err := h.service.ListMine(r.Context(), actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toInterviewList(interview.SortByStartTime(list)))
}

// Dashboard は面接を列ごとに振り分け、集計値とともに返す。
// 面接官は全面接、候補者は自分の面接が対象。
// GET /api/interviews/dashboard
func (h *InterviewHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(w, r, h.users)
	if actor == nil {
		return
	}

	var (
		list []*model.Interview
		err  error
	)
	if actor.Role == model.RoleInterviewer {
		list, err = h.service.ListAll(r.Context(), actor)
	} else {
		list, err = h.service.ListMine(r.Context(), actor)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	g := interview.Group(list, h.now())
	writeJSON(w, http.StatusOK, dashboardResponse{
		Upcoming:  h.toInterviewList(g.Upcoming),
		Completed: h.toInterviewList(g.Completed),
		Succeeded: h.toInterviewList(g.Succeeded),
		Failed:    h.toInterviewList(g.Failed),
		Stats:     interview.ComputeStats(g),
	})
}

// GetByCall は通話IDに紐づく面接を返す。
// GET /api/interviews/by-call/{callId}
func (h *InterviewHandler) GetByCall(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(w, r, h.users)
	if actor == nil {
		return
	}
	iv, err := h.service.GetByCallID(r.Context(), actor, chi.URLParam(r, "callId"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toInterviewResponse(iv))
}

// UpdateStatus は面接のステータスを更新する。面接官のみ。
// PATCH /api/interviews/{id}/status
func (h *InterviewHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(w, r, h.users)
	if actor == nil {
		return
	}

	var req updateStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	iv, err := h.service.UpdateStatus(r.Context(), actor, chi.URLParam(r, "id"), model.InterviewStatus(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.toInterviewResponse(iv))
}

// AddComment は面接にコメントと評価を追加する。面接官のみ。
// POST /api/interviews/{id}/comments
func (h *InterviewHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(w, r, h.users)
	if actor == nil {
		return
	}

	var in interview.CommentInput
	if !decodeJSON(w, r, &in) {
		return
	}

	c, err := h.service.AddComment(r.Context(), actor, chi.URLParam(r, "id"), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCommentResponse(c))
}

// ListComments は面接のコメントを平均評価とともに返す。
// GET /api/interviews/{id}/comments
func (h *InterviewHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	actor := currentUser(w, r, h.users)
	if actor == nil {
		return
	}

	comments, err := h.service.ListComments(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	out := make([]commentResponse, len(comments))
	for i, c := range comments {
		out[i] = toCommentResponse(c)
	}
	writeJSON(w, http.StatusOK, commentListResponse{Comments: out, AverageRating: interview.AverageRating(comments)})
}
