// Package user はディレクトリレコード（ユーザー）のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/codemeet/internal/model"
	"github.com/hitoshi/codemeet/internal/repository"
)

// SyncInput はidentityからディレクトリへ同期する値。
// メールアドレスを持たないidentityもあるためEmailは空を許す。
type SyncInput struct {
	ExternalID string `json:"externalId" validate:"required,max=255"`
	Name       string `json:"name" validate:"required,max=255"`
	Email      string `json:"email" validate:"omitempty,email,max=255"`
	Image      string `json:"image,omitempty" validate:"omitempty,max=2048"`
}

// URLValidator はアバターURLの検証インターフェース。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// SyncRecorder は同期結果のメトリクス記録インターフェース。
type SyncRecorder interface {
	RecordDirectorySync(created bool)
}

// Service はディレクトリレコードのサービス層。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	urlGuard    URLValidator
	recorder    SyncRecorder
	validate    *validator.Validate
}

// NewService はServiceの新しいインスタンスを生成する。
// urlGuard、recorderはnilでもよい。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	urlGuard URLValidator,
	recorder SyncRecorder,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		urlGuard:    urlGuard,
		recorder:    recorder,
		validate:    validator.New(),
	}
}

// Sync はidentityをexternal_idキーで冪等にUPSERTする。
// 初回はrole=candidateで作成され、以降は名前・メール・アバターのみ更新される。
// 安全でないアバターURLは警告ログを出して破棄し、同期は継続する。
func (s *Service) Sync(ctx context.Context, in SyncInput) (*model.User, error) {
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Image = strings.TrimSpace(in.Image)

	if err := s.validate.Struct(in); err != nil {
		return nil, model.NewValidationError(describeValidation(err))
	}

	if in.Image != "" && s.urlGuard != nil {
		if err := s.urlGuard.ValidateURL(in.Image); err != nil {
			slog.Warn("アバターURLを破棄しました",
				slog.String("operation", "directory_sync"),
				slog.String("external_id", in.ExternalID),
				slog.String("error", err.Error()),
			)
			in.Image = ""
		}
	}

	u := &model.User{
		ExternalID: in.ExternalID,
		Name:       in.Name,
		Email:      in.Email,
		Image:      in.Image,
	}
	created, err := s.userRepo.UpsertByExternalID(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("ディレクトリレコードの同期に失敗しました: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordDirectorySync(created)
	}
	slog.Info("ディレクトリレコードを同期しました",
		slog.String("operation", "directory_sync"),
		slog.String("external_id", u.ExternalID),
		slog.Bool("created", created),
	)
	return u, nil
}

// Lookup はexternal_idでディレクトリレコードを取得する。
// SkipLookupが渡された場合とレコードが存在しない場合は (nil, nil) を返す。
func (s *Service) Lookup(ctx context.Context, externalID string) (*model.User, error) {
	if externalID == SkipLookup {
		return nil, nil
	}
	u, err := s.userRepo.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return u, nil
}

// FindByEmail はメールアドレスでディレクトリレコードを取得する。
func (s *Service) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	u, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return u, nil
}

// GetByID はストレージIDでディレクトリレコードを取得する。
func (s *Service) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// RoleOf はexternal_idのロール判定を返す。検索は同期的に完了する。
func (s *Service) RoleOf(ctx context.Context, externalID string) (model.RoleView, error) {
	u, err := s.Lookup(ctx, externalID)
	if err != nil {
		return model.RoleView{}, err
	}
	return ResolveRole(LookupResult{Done: true, Record: u}), nil
}

// SetRole はロールを変更する。面接官の付与は管理CLIから行う。
func (s *Service) SetRole(ctx context.Context, externalID string, role model.Role) error {
	if !role.Valid() {
		return model.NewValidationError(fmt.Sprintf("未定義のロールです: %s", role))
	}
	if err := s.userRepo.UpdateRole(ctx, externalID, role); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.NewUserNotFoundError()
		}
		return fmt.Errorf("ロールの更新に失敗しました: %w", err)
	}
	slog.Info("ロールを変更しました",
		slog.String("external_id", externalID),
		slog.String("role", string(role)),
	)
	return nil
}

// List はディレクトリレコードの一覧を返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Withdraw はユーザーの退会処理を実行する。
// セッションを削除してからディレクトリレコードを削除する。
// 面接記録はexternal_idで参照しているため履歴として残す。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	u, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します", slog.String("user_id", userID))

	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました", slog.String("user_id", userID))
	return nil
}

// describeValidation はvalidatorのエラーを利用者向けの文言に変換する。
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s は必須です", fe.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("%s の形式が不正です", fe.Field()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s は %s 文字以内で入力してください", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s が不正です", fe.Field()))
		}
	}
	return strings.Join(msgs, "; ")
}
