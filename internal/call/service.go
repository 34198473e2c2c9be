// Package call はビデオ基盤のコントロールプレーン（通話セッションと参加者）を提供する。
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/hitoshi/codemeet/internal/model"
	"github.com/hitoshi/codemeet/internal/presence"
	"github.com/hitoshi/codemeet/internal/repository"
)

// 通話終了の理由。
const (
	EndReasonHost = "host"
	EndReasonIdle = "idle"
)

var callIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Caller はビデオトークンで認証された呼び出し元。
type Caller struct {
	ExternalID string
	Name       string
	Image      string
}

// Recorder は通話操作のメトリクス記録インターフェース。
type Recorder interface {
	RecordCallCreated()
	RecordCallJoin()
	RecordCallJoinFailure(reason string)
	RecordCallLeave()
	RecordCallEnded(reason string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCallCreated()           {}
func (nopRecorder) RecordCallJoin()              {}
func (nopRecorder) RecordCallJoinFailure(string) {}
func (nopRecorder) RecordCallLeave()             {}
func (nopRecorder) RecordCallEnded(string)       {}

// Service は通話セッションのサービス層。
type Service struct {
	repo     repository.CallRepository
	broker   presence.Broker
	recorder Recorder
	now      func() time.Time
}

// NewService はServiceを生成する。recorderはnilでもよい。
func NewService(repo repository.CallRepository, broker presence.Broker, recorder Recorder) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{repo: repo, broker: broker, recorder: recorder, now: time.Now}
}

// ValidateRef は通話の名前空間とIDを検証する。名前空間は "default" 固定。
func ValidateRef(callType, id string) error {
	if callType != model.DefaultCallType {
		return model.NewInvalidCallTypeError(callType)
	}
	if !callIDPattern.MatchString(id) {
		return model.NewValidationError("通話IDは英数字・ハイフン・アンダースコアの1〜64文字で指定してください")
	}
	return nil
}

// GetOrCreate は通話を冪等に作成する。既存の通話はメタデータを変更せずに返す。
// 2番目の戻り値は今回作成した場合にtrue。
func (s *Service) GetOrCreate(ctx context.Context, caller Caller, callType, id string, meta model.CallMetadata) (*model.Call, bool, error) {
	if err := ValidateRef(callType, id); err != nil {
		return nil, false, err
	}

	now := s.now().UTC()
	startsAt := meta.StartsAt
	if startsAt.IsZero() {
		startsAt = now
	}
	c := &model.Call{
		Type:        callType,
		ID:          id,
		CreatedBy:   caller.ExternalID,
		Description: meta.Description,
		StartsAt:    startsAt.UTC(),
		CreatedAt:   now,
	}

	created, err := s.repo.CreateIfNotExists(ctx, c)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create call: %w", err)
	}
	if !created {
		existing, err := s.Get(ctx, callType, id)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	s.recorder.RecordCallCreated()
	slog.Info("call created",
		slog.String("operation", "create_call"),
		slog.String("call_id", id),
		slog.String("external_id", caller.ExternalID),
	)
	return c, true, nil
}

// Get は通話を取得する。存在しない場合はCALL_NOT_FOUNDを返す。
func (s *Service) Get(ctx context.Context, callType, id string) (*model.Call, error) {
	if err := ValidateRef(callType, id); err != nil {
		return nil, err
	}
	c, err := s.repo.FindByID(ctx, callType, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find call: %w", err)
	}
	if c == nil {
		return nil, model.NewCallNotFoundError(id)
	}
	return c, nil
}

// Join は呼び出し元を通話のライブ参加者に加える。
// 存在しない通話はCALL_NOT_FOUND、終了済みはCALL_ENDEDとなる。
func (s *Service) Join(ctx context.Context, caller Caller, callType, id string) (*model.Call, error) {
	c, err := s.Get(ctx, callType, id)
	if err != nil {
		s.recorder.RecordCallJoinFailure(joinFailureReason(err))
		return nil, err
	}
	if c.Ended() {
		s.recorder.RecordCallJoinFailure("ended")
		return nil, model.NewCallEndedError(id)
	}

	member := &model.CallMember{
		CallType: callType,
		CallID:   id,
		UserID:   caller.ExternalID,
		Name:     caller.Name,
		Image:    caller.Image,
		JoinedAt: s.now().UTC(),
	}
	if err := s.repo.UpsertMember(ctx, member); err != nil {
		s.recorder.RecordCallJoinFailure("storage")
		return nil, fmt.Errorf("failed to join call: %w", err)
	}

	s.recorder.RecordCallJoin()
	slog.Info("call joined",
		slog.String("operation", "join_call"),
		slog.String("call_id", id),
		slog.String("external_id", caller.ExternalID),
	)
	s.publish(ctx, c)
	return c, nil
}

// Leave は呼び出し元を通話から退出させる。ライブ参加者でない場合は何もしない。
func (s *Service) Leave(ctx context.Context, caller Caller, callType, id string) error {
	c, err := s.Get(ctx, callType, id)
	if err != nil {
		return err
	}

	left, err := s.repo.MarkMemberLeft(ctx, callType, id, caller.ExternalID, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to leave call: %w", err)
	}
	if !left {
		return nil
	}

	s.recorder.RecordCallLeave()
	slog.Info("call left",
		slog.String("operation", "leave_call"),
		slog.String("call_id", id),
		slog.String("external_id", caller.ExternalID),
	)
	s.publish(ctx, c)
	return nil
}

// End は通話を終了する。作成者のみ実行できる。
func (s *Service) End(ctx context.Context, caller Caller, callType, id string) (*model.Call, error) {
	c, err := s.Get(ctx, callType, id)
	if err != nil {
		return nil, err
	}
	if c.CreatedBy != caller.ExternalID {
		return nil, model.NewForbiddenError("通話を終了できるのは作成者のみです")
	}
	return s.finish(ctx, c, EndReasonHost)
}

// Expire は放置された通話を終了する。バックグラウンドのクリーンアップから呼ばれる。
func (s *Service) Expire(ctx context.Context, callType, id string) (*model.Call, error) {
	c, err := s.Get(ctx, callType, id)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, c, EndReasonIdle)
}

func (s *Service) finish(ctx context.Context, c *model.Call, reason string) (*model.Call, error) {
	if c.Ended() {
		return c, nil
	}

	at := s.now().UTC()
	ended, err := s.repo.MarkEnded(ctx, c.Type, c.ID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to end call: %w", err)
	}
	if err := s.repo.MarkAllMembersLeft(ctx, c.Type, c.ID, at); err != nil {
		return nil, fmt.Errorf("failed to release call members: %w", err)
	}
	if !ended {
		return s.Get(ctx, c.Type, c.ID)
	}

	c.EndedAt = &at
	s.recorder.RecordCallEnded(reason)
	slog.Info("call ended",
		slog.String("operation", "end_call"),
		slog.String("call_id", c.ID),
		slog.String("reason", reason),
	)
	s.publish(ctx, c)
	return c, nil
}

// Participants は通話のライブ参加者を参加順に返す。
func (s *Service) Participants(ctx context.Context, callType, id string) ([]model.Participant, error) {
	if _, err := s.Get(ctx, callType, id); err != nil {
		return nil, err
	}
	return s.participants(ctx, callType, id)
}

// Snapshot は通話の現在の参加者スナップショットを返す。
func (s *Service) Snapshot(ctx context.Context, callType, id string) (model.ParticipantSnapshot, error) {
	c, err := s.Get(ctx, callType, id)
	if err != nil {
		return model.ParticipantSnapshot{}, err
	}
	return s.snapshot(ctx, c)
}

// Subscribe は通話の参加者スナップショットを購読する。
func (s *Service) Subscribe(ctx context.Context, callType, id string) (<-chan model.ParticipantSnapshot, error) {
	if _, err := s.Get(ctx, callType, id); err != nil {
		return nil, err
	}
	ch, err := s.broker.Subscribe(ctx, callType, id)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe participants: %w", err)
	}
	return ch, nil
}

func (s *Service) participants(ctx context.Context, callType, id string) ([]model.Participant, error) {
	members, err := s.repo.ListLiveMembers(ctx, callType, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list call members: %w", err)
	}
	out := make([]model.Participant, 0, len(members))
	for _, m := range members {
		out = append(out, model.Participant{
			UserID:   m.UserID,
			Name:     m.Name,
			Image:    m.Image,
			JoinedAt: m.JoinedAt,
		})
	}
	return out, nil
}

func (s *Service) snapshot(ctx context.Context, c *model.Call) (model.ParticipantSnapshot, error) {
	ps, err := s.participants(ctx, c.Type, c.ID)
	if err != nil {
		return model.ParticipantSnapshot{}, err
	}
	return model.ParticipantSnapshot{
		CallType:     c.Type,
		CallID:       c.ID,
		Participants: ps,
		Ended:        c.Ended(),
		At:           s.now().UTC(),
	}, nil
}

// publish は配信の失敗をログに残すのみで、呼び出し元の操作は成功として扱う。
func (s *Service) publish(ctx context.Context, c *model.Call) {
	if s.broker == nil {
		return
	}
	snap, err := s.snapshot(ctx, c)
	if err == nil {
		err = s.broker.Publish(ctx, snap)
	}
	if err != nil {
		slog.Warn("failed to publish participants",
			slog.String("call_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
}

func joinFailureReason(err error) string {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeCallNotFound:
			return "not_found"
		case model.ErrCodeInvalidCallType, model.ErrCodeValidationFailed:
			return "invalid"
		}
	}
	return "storage"
}
