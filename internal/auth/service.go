// Package auth はDiscord OAuth認証フロー、ユーザーの検索・作成、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/guildview/internal/metrics"
	"github.com/hitoshi/guildview/internal/model"
	"github.com/hitoshi/guildview/internal/repository"
)

// ErrAuthenticationFailed はOAuthのコード交換やプロフィール取得に失敗したことを示す。
var ErrAuthenticationFailed = errors.New("authentication failed")

// OAuthProfile はOAuthプロバイダーから取得し正規化したプロフィール。
type OAuthProfile struct {
	DiscordID     string
	Username      string
	Discriminator string
	Avatar        *string
	AccessToken   string
	RefreshToken  string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 現在の実装はDiscordのみ。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、プロフィールを取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthProfile, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	serializer  *SessionSerializer
	metrics     metrics.MetricsCollector
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。mcがnilの場合はメトリクスを記録しない。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	mc metrics.MetricsCollector,
	config ServiceConfig,
) *Service {
	if mc == nil {
		mc = metrics.Nop{}
	}
	s := &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		metrics:     mc,
		config:      config,
		now:         time.Now,
	}
	s.serializer = NewSessionSerializer(s)
	return s
}

// ValidateUser はプロフィールのDiscord IDでユーザーを検索し、なければ作成する。
// 同一IDの同時初回ログインでユニーク制約に衝突した場合は、先に作成された行を返す。
func (s *Service) ValidateUser(ctx context.Context, profile *OAuthProfile) (*model.User, error) {
	user, _, err := s.validateUser(ctx, profile)
	return user, err
}

func (s *Service) validateUser(ctx context.Context, profile *OAuthProfile) (*model.User, bool, error) {
	if profile == nil || profile.DiscordID == "" {
		return nil, false, errors.New("profile has no discord id")
	}

	existing, err := s.userRepo.FindByDiscordID(ctx, profile.DiscordID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		return existing, false, nil
	}

	user := &model.User{
		DiscordID:     profile.DiscordID,
		Username:      profile.Username,
		Discriminator: profile.Discriminator,
		Avatar:        profile.Avatar,
		AccessToken:   optionalString(profile.AccessToken),
		RefreshToken:  optionalString(profile.RefreshToken),
	}
	err = s.userRepo.Create(ctx, user)
	if errors.Is(err, repository.ErrUserAlreadyExists) {
		winner, findErr := s.userRepo.FindByDiscordID(ctx, profile.DiscordID)
		if findErr != nil {
			return nil, false, fmt.Errorf("failed to re-fetch user after conflict: %w", findErr)
		}
		if winner == nil {
			return nil, false, fmt.Errorf("user %s vanished after conflict: %w", profile.DiscordID, err)
		}
		slog.Info("concurrent first login resolved to existing user",
			slog.String("discord_id", profile.DiscordID),
		)
		return winner, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	slog.Info("new user created",
		slog.String("discord_id", user.DiscordID),
		slog.String("username", user.Username),
	)
	return user, true, nil
}

// FindUser はDiscord IDでユーザーを取得する。見つからない場合はnil, nilを返す。
func (s *Service) FindUser(ctx context.Context, discordID string) (*model.User, error) {
	return s.userRepo.FindByDiscordID(ctx, discordID)
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// コード交換に失敗した場合はErrAuthenticationFailedを返し、ユーザーには触れない。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, *model.User, error) {
	profile, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginResultFailed)
		return nil, nil, fmt.Errorf("%w: %w", ErrAuthenticationFailed, err)
	}

	user, created, err := s.validateUser(ctx, profile)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginResultFailed)
		return nil, nil, err
	}

	session, err := s.createSession(ctx, user)
	if err != nil {
		s.metrics.RecordLogin(metrics.LoginResultFailed)
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	if created {
		s.metrics.RecordLogin(metrics.LoginResultCreated)
	} else {
		s.metrics.RecordLogin(metrics.LoginResultExisting)
		slog.Info("existing user logged in", slog.String("discord_id", user.DiscordID))
	}
	return session, user, nil
}

// ResolveSession はセッションIDから現在のユーザーを解決し、有効期限を延長する。
// セッションが存在しない・期限切れ・ユーザー削除済みの場合はnil, nilを返す。
func (s *Service) ResolveSession(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil || session.IsExpired(s.now()) {
		return nil, nil
	}

	user, err := s.serializer.Deserialize(ctx, session.Data)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}

	if err := s.sessionRepo.Touch(ctx, sessionID, s.expiry()); err != nil {
		slog.Warn("failed to extend session",
			slog.String("error", err.Error()),
			slog.String("discord_id", user.DiscordID),
		)
	}
	return user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return errors.New("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out")
	return nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, user *model.User) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}
	data, err := s.serializer.Serialize(user)
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		ID:        sessionID,
		Data:      data,
		ExpiresAt: s.expiry(),
		CreatedAt: s.now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

func (s *Service) expiry() time.Time {
	return s.now().Add(time.Duration(s.config.SessionMaxAge) * time.Second)
}

// GenerateState はOAuthのstateパラメータ用のランダム文字列を生成する。
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
