// Package calltoken はビデオ基盤向けの短命アクセストークンの発行と検証を行う。
// トークンは1つのidentityと1つのビデオアプリケーションキーにスコープされたHS256 JWT。
package calltoken

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/codemeet/internal/model"
)

// Issuer はトークンのissクレーム。
const Issuer = "codemeet"

var (
	// ErrUnauthenticated は認証済みidentityが無い状態で発行を要求された場合のエラー。
	ErrUnauthenticated = errors.New("calltoken: unauthenticated")
	// ErrTokenExpired は有効期限切れのトークン。
	ErrTokenExpired = errors.New("calltoken: token expired")
	// ErrTokenInvalid は署名・アルゴリズム・audienceのいずれかが不正なトークン。
	ErrTokenInvalid = errors.New("calltoken: token invalid")
)

// Claims はビデオトークンのクレーム。SubjectとUserIDはどちらもexternal_id。
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Image  string `json:"image,omitempty"`
	jwt.RegisteredClaims
}

// Credential は発行済みトークンとクライアント接続に必要な値。
type Credential struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	APIKey    string    `json:"apiKey"`
}

// Config はトークンの署名設定。
type Config struct {
	APIKey string
	Secret string
	TTL    time.Duration
}

// IdentityFunc はコンテキストから認証済みユーザーのストレージIDを取り出す。
type IdentityFunc func(ctx context.Context) (string, error)

// UserFinder はストレージIDでディレクトリレコードを取得する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// Recorder は発行結果のメトリクス記録インターフェース。
type Recorder interface {
	RecordTokenIssued()
	RecordTokenFailure(reason string)
}

// TokenIssuer はリクエストのidentityに対してトークンを発行する。
type TokenIssuer struct {
	cfg      Config
	identity IdentityFunc
	users    UserFinder
	recorder Recorder
	now      func() time.Time
}

// NewIssuer はTokenIssuerを生成する。recorderはnilでもよい。
func NewIssuer(cfg Config, identity IdentityFunc, users UserFinder, recorder Recorder) *TokenIssuer {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &TokenIssuer{
		cfg:      cfg,
		identity: identity,
		users:    users,
		recorder: recorder,
		now:      time.Now,
	}
}

// Issue はコンテキストの認証済みidentityに対してトークンを発行する。
// identityが無い場合とディレクトリレコードが無い場合はErrUnauthenticatedを返す。
// 状態を持たないため、何度呼んでもよい。
func (i *TokenIssuer) Issue(ctx context.Context) (*Credential, error) {
	if i.cfg.APIKey == "" || i.cfg.Secret == "" {
		i.recordFailure("not_configured")
		return nil, model.NewVideoNotConfiguredError()
	}

	userID, err := i.identity(ctx)
	if err != nil || userID == "" {
		i.recordFailure("unauthenticated")
		return nil, ErrUnauthenticated
	}

	u, err := i.users.FindByID(ctx, userID)
	if err != nil {
		i.recordFailure("lookup")
		return nil, fmt.Errorf("failed to load user for token: %w", err)
	}
	if u == nil {
		i.recordFailure("unauthenticated")
		return nil, ErrUnauthenticated
	}

	now := i.now()
	expiresAt := now.Add(i.cfg.TTL)
	claims := Claims{
		UserID: u.ExternalID,
		Name:   u.Name,
		Image:  u.Image,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ExternalID,
			Issuer:    Issuer,
			Audience:  jwt.ClaimStrings{i.cfg.APIKey},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(i.cfg.Secret))
	if err != nil {
		i.recordFailure("sign")
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	if i.recorder != nil {
		i.recorder.RecordTokenIssued()
	}
	slog.Info("video token issued",
		slog.String("operation", "issue_token"),
		slog.String("external_id", u.ExternalID),
		slog.Time("expires_at", expiresAt),
	)

	return &Credential{Token: signed, ExpiresAt: expiresAt, APIKey: i.cfg.APIKey}, nil
}

func (i *TokenIssuer) recordFailure(reason string) {
	if i.recorder != nil {
		i.recorder.RecordTokenFailure(reason)
	}
}

// Verifier はビデオAPIで受け取ったトークンを検証する。
type Verifier struct {
	apiKey string
	secret []byte
}

// NewVerifier はVerifierを生成する。
func NewVerifier(apiKey, secret string) *Verifier {
	return &Verifier{apiKey: apiKey, secret: []byte(secret)}
}

// Verify はトークンを検証してクレームを返す。
// HS256以外のアルゴリズム、他アプリケーション向けのaudience、subjectの欠落は拒否する。
func (v *Verifier) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method == nil || t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, ErrTokenInvalid
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(v.apiKey),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
