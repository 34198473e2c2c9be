// Package auth はOAuth認証フローとWebセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/codemeet/internal/model"
	"github.com/hitoshi/codemeet/internal/repository"
	"github.com/hitoshi/codemeet/internal/user"
)

// OAuthUserInfo はOAuthプロバイダーから取得したidentity情報を表す。
// ExternalIDはプロバイダーのsubject。
type OAuthUserInfo struct {
	ExternalID string
	Email      string
	Name       string
	FirstName  string
	LastName   string
	Picture    string
	Provider   string
}

// DisplayName は表示名を返す。姓名が無い場合はNameかExternalIDにフォールバックする。
func (u *OAuthUserInfo) DisplayName() string {
	if full := strings.TrimSpace(u.FirstName + " " + u.LastName); full != "" {
		return full
	}
	if u.Name != "" {
		return u.Name
	}
	return u.ExternalID
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// DirectorySyncer はidentityをディレクトリレコードへ同期する。
type DirectorySyncer interface {
	Sync(ctx context.Context, in user.SyncInput) (*model.User, error)
}

// ErrNoSession はセッションIDが空、未知、または期限切れであることを表す。
var ErrNoSession = errors.New("auth: no active session")

// ErrMissingSubject はプロバイダーがidentityのsubjectを返さなかったことを表す。
var ErrMissingSubject = errors.New("auth: identity has no subject")

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int              // 秒
	Now           func() time.Time // nilならtime.Now
}

// Service はGoogleログインからWebセッション発行までを扱う。
type Service struct {
	oauth       OAuthProvider
	directory   DirectorySyncer
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	maxAge      time.Duration
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	directory DirectorySyncer,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	now := config.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		oauth:       oauth,
		directory:   directory,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		maxAge:      time.Duration(config.SessionMaxAge) * time.Second,
		now:         now,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback は認可コードをidentityに交換し、ディレクトリへ同期してからセッションを発行する。
// 同期に失敗した場合はセッションを作らない。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	info, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}
	if info == nil || info.ExternalID == "" {
		return nil, ErrMissingSubject
	}

	u, err := s.directory.Sync(ctx, user.SyncInput{
		ExternalID: info.ExternalID,
		Name:       info.DisplayName(),
		Email:      info.Email,
		Image:      info.Picture,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to sync directory record for %s: %w", info.ExternalID, err)
	}

	id, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	now := s.now()
	session := &model.Session{
		ID:        id,
		UserID:    u.ID,
		ExpiresAt: now.Add(s.maxAge),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	slog.Info("user logged in",
		slog.String("user_id", u.ID),
		slog.String("external_id", u.ExternalID),
		slog.String("provider", info.Provider),
		slog.Time("expires_at", session.ExpiresAt),
	)
	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrNoSession
	}
	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	slog.Info("user logged out")
	return nil
}

// GetCurrentUser はセッションに紐づくディレクトリレコードを返す。
// セッションが無効ならErrNoSession、レコードが削除済みならUSER_NOT_FOUNDのAPIError。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || !session.ExpiresAt.After(s.now()) {
		return nil, ErrNoSession
	}

	u, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}

// newSessionID は32バイトの乱数を16進文字列にしたセッションIDを返す。
func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
