// Package interview は面接スケジュールと評価コメントのドメインロジックを提供する。
package interview

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/hitoshi/codemeet/internal/call"
	"github.com/hitoshi/codemeet/internal/model"
	"github.com/hitoshi/codemeet/internal/repository"
	"github.com/hitoshi/codemeet/internal/security"
)

// ScheduleInput は面接作成の入力。
type ScheduleInput struct {
	Title          string    `json:"title" validate:"required,max=200"`
	Description    string    `json:"description" validate:"max=5000"`
	StartTime      time.Time `json:"startTime" validate:"required"`
	CandidateID    string    `json:"candidateId" validate:"required,max=255"`
	InterviewerIDs []string  `json:"interviewerIds" validate:"dive,required,max=255"`
}

// CommentInput はコメント追加の入力。
type CommentInput struct {
	Content string `json:"content" validate:"required,max=5000"`
	Rating  int    `json:"rating" validate:"min=1,max=5"`
}

// CallCreator は面接用の通話セッションを作成する。
type CallCreator interface {
	GetOrCreate(ctx context.Context, caller call.Caller, callType, id string, meta model.CallMetadata) (*model.Call, bool, error)
}

// UserFinder は候補者・面接官の存在確認に使う。
type UserFinder interface {
	FindByExternalID(ctx context.Context, externalID string) (*model.User, error)
}

// Service は面接のサービス層。
type Service struct {
	repo      repository.InterviewRepository
	users     UserFinder
	calls     CallCreator
	sanitizer security.ContentSanitizer
	validate  *validator.Validate
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.InterviewRepository,
	users UserFinder,
	calls CallCreator,
	sanitizer security.ContentSanitizer,
) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		calls:     calls,
		sanitizer: sanitizer,
		validate:  validator.New(),
		now:       time.Now,
	}
}

func requireInterviewer(actor *model.User) error {
	if actor == nil {
		return model.NewUnauthenticatedError()
	}
	if actor.Role != model.RoleInterviewer {
		return model.NewInterviewerOnlyError()
	}
	return nil
}

// Schedule は面接を作成し、紐づく通話セッションを用意する。
// 作成者は面接官に含まれていなければ追加される。
func (s *Service) Schedule(ctx context.Context, actor *model.User, in ScheduleInput) (*model.Interview, error) {
	if err := requireInterviewer(actor); err != nil {
		return nil, err
	}

	in.Title = s.sanitizer.SanitizeText(in.Title)
	in.Description = s.sanitizer.SanitizeRichText(in.Description)
	in.CandidateID = strings.TrimSpace(in.CandidateID)
	if err := s.validate.Struct(in); err != nil {
		return nil, model.NewValidationError(err.Error())
	}

	candidate, err := s.users.FindByExternalID(ctx, in.CandidateID)
	if err != nil {
		return nil, fmt.Errorf("候補者の取得に失敗しました: %w", err)
	}
	if candidate == nil {
		return nil, model.NewValidationError(fmt.Sprintf("候補者が見つかりません: %s", in.CandidateID))
	}

	interviewerIDs := uniqueIDs(append([]string{actor.ExternalID}, in.InterviewerIDs...))
	for _, id := range interviewerIDs {
		if id == in.CandidateID {
			return nil, model.NewValidationError("候補者を面接官に指定することはできません")
		}
	}

	callID := uuid.NewString()
	caller := call.Caller{ExternalID: actor.ExternalID, Name: actor.Name, Image: actor.Image}
	if _, _, err := s.calls.GetOrCreate(ctx, caller, model.DefaultCallType, callID, model.CallMetadata{
		StartsAt:    in.StartTime,
		Description: in.Title,
	}); err != nil {
		return nil, fmt.Errorf("面接用ミーティングの作成に失敗しました: %w", err)
	}

	now := s.now().UTC()
	iv := &model.Interview{
		ID:             uuid.NewString(),
		Title:          in.Title,
		Description:    in.Description,
		StartTime:      in.StartTime.UTC(),
		Status:         model.InterviewStatusScheduled,
		CallID:         callID,
		CandidateID:    in.CandidateID,
		InterviewerIDs: interviewerIDs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, iv); err != nil {
		return nil, fmt.Errorf("面接の作成に失敗しました: %w", err)
	}

	slog.Info("面接を作成しました",
		slog.String("interview_id", iv.ID),
		slog.String("call_id", callID),
		slog.String("external_id", actor.ExternalID),
	)
	return iv, nil
}

// ListAll は全ての面接を返す。面接官のみ。
func (s *Service) ListAll(ctx context.Context, actor *model.User) ([]*model.Interview, error) {
	if err := requireInterviewer(actor); err != nil {
		return nil, err
	}
	list, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("面接一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// ListMine は候補者または面接官として参加する面接を返す。
func (s *Service) ListMine(ctx context.Context, actor *model.User) ([]*model.Interview, error) {
	if actor == nil {
		return nil, model.NewUnauthenticatedError()
	}
	list, err := s.repo.ListByParticipant(ctx, actor.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("面接一覧の取得に失敗しました: %w", err)
	}
	return list, nil
}

// GetByCallID は通話IDに紐づく面接を返す。
// 参加者でも面接官ロールでもない利用者には存在を明かさない。
func (s *Service) GetByCallID(ctx context.Context, actor *model.User, callID string) (*model.Interview, error) {
	if actor == nil {
		return nil, model.NewUnauthenticatedError()
	}
	iv, err := s.repo.FindByCallID(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("面接の取得に失敗しました: %w", err)
	}
	if iv == nil || !canView(actor, iv) {
		return nil, model.NewInterviewNotFoundError(callID)
	}
	return iv, nil
}

// UpdateStatus は面接のステータスを更新する。面接官のみ。
// scheduledから遷移する際に終了日時を記録する。
func (s *Service) UpdateStatus(ctx context.Context, actor *model.User, id string, status model.InterviewStatus) (*model.Interview, error) {
	if err := requireInterviewer(actor); err != nil {
		return nil, err
	}
	if !status.Valid() || status == model.InterviewStatusScheduled {
		return nil, model.NewInvalidStatusError(string(status))
	}

	iv, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	endTime := iv.EndTime
	if iv.Status == model.InterviewStatusScheduled || endTime == nil {
		now := s.now().UTC()
		endTime = &now
	}
	if err := s.repo.UpdateStatus(ctx, id, status, endTime); err != nil {
		return nil, fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}

	iv.Status = status
	iv.EndTime = endTime
	slog.Info("面接のステータスを更新しました",
		slog.String("interview_id", id),
		slog.String("status", string(status)),
	)
	return iv, nil
}

// AddComment は面接に評価コメントを追加する。面接官のみ。
func (s *Service) AddComment(ctx context.Context, actor *model.User, interviewID string, in CommentInput) (*model.Comment, error) {
	if err := requireInterviewer(actor); err != nil {
		return nil, err
	}
	in.Content = s.sanitizer.SanitizeRichText(in.Content)
	if err := s.validate.Struct(in); err != nil {
		return nil, model.NewValidationError(err.Error())
	}
	if _, err := s.find(ctx, interviewID); err != nil {
		return nil, err
	}

	c := &model.Comment{
		ID:            uuid.NewString(),
		InterviewID:   interviewID,
		InterviewerID: actor.ExternalID,
		Content:       in.Content,
		Rating:        in.Rating,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.CreateComment(ctx, c); err != nil {
		return nil, fmt.Errorf("コメントの作成に失敗しました: %w", err)
	}
	return c, nil
}

// ListComments は面接のコメントを返す。面接官のみ。
func (s *Service) ListComments(ctx context.Context, actor *model.User, interviewID string) ([]*model.Comment, error) {
	if err := requireInterviewer(actor); err != nil {
		return nil, err
	}
	if _, err := s.find(ctx, interviewID); err != nil {
		return nil, err
	}
	comments, err := s.repo.ListComments(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("コメント一覧の取得に失敗しました: %w", err)
	}
	return comments, nil
}

func (s *Service) find(ctx context.Context, id string) (*model.Interview, error) {
	iv, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("面接の取得に失敗しました: %w", err)
	}
	if iv == nil {
		return nil, model.NewInterviewNotFoundError(id)
	}
	return iv, nil
}

func canView(actor *model.User, iv *model.Interview) bool {
	return actor.Role == model.RoleInterviewer ||
		iv.CandidateID == actor.ExternalID ||
		iv.HasInterviewer(actor.ExternalID)
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
