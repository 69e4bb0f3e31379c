package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

const (
	defaultDiscordAuthURL     = "https://discord.com/oauth2/authorize"
	defaultDiscordTokenURL    = "https://discord.com/api/oauth2/token"
	defaultDiscordUserInfoURL = "https://discord.com/api/v10/users/@me"
)

// discordScopes はログインとギルド一覧取得に必要なスコープ。
var discordScopes = []string{"identify", "guilds"}

// DiscordOAuthConfig はDiscord OAuthプロバイダーの設定。
type DiscordOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// テスト用にオーバーライド可能なURL
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	// HTTPClient はトークン交換とプロフィール取得に使う。nilの場合はhttp.DefaultClient。
	HTTPClient *http.Client
}

// DiscordOAuthProvider はDiscord OAuth 2.0による認証を提供する。
type DiscordOAuthProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// NewDiscordOAuthProvider はDiscordOAuthProviderを生成する。
func NewDiscordOAuthProvider(config DiscordOAuthConfig) *DiscordOAuthProvider {
	if config.AuthURL == "" {
		config.AuthURL = defaultDiscordAuthURL
	}
	if config.TokenURL == "" {
		config.TokenURL = defaultDiscordTokenURL
	}
	if config.UserInfoURL == "" {
		config.UserInfoURL = defaultDiscordUserInfoURL
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}
	return &DiscordOAuthProvider{
		oauth: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       discordScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   config.AuthURL,
				TokenURL:  config.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: config.UserInfoURL,
		httpClient:  config.HTTPClient,
	}
}

// GetLoginURL はDiscordの認可画面URLを生成する。
func (p *DiscordOAuthProvider) GetLoginURL(state string) string {
	return p.oauth.AuthCodeURL(state)
}

// discordUser は/users/@meのレスポンス。
type discordUser struct {
	ID            string  `json:"id"`
	Username      string  `json:"username"`
	Discriminator string  `json:"discriminator"`
	Avatar        *string `json:"avatar"`
}

// ExchangeCode は認可コードをトークンに交換し、Discordのプロフィールを取得する。
func (p *DiscordOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthProfile, error) {
	// 1. 認可コードをアクセストークンに交換
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, errors.New("empty access token in response")
	}

	// 2. アクセストークンでプロフィールを取得
	user, err := p.fetchUser(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	return &OAuthProfile{
		DiscordID:     user.ID,
		Username:      user.Username,
		Discriminator: user.Discriminator,
		Avatar:        user.Avatar,
		AccessToken:   token.AccessToken,
		RefreshToken:  token.RefreshToken,
	}, nil
}

// fetchUser はアクセストークンでDiscordのユーザー情報を取得する。
func (p *DiscordOAuthProvider) fetchUser(ctx context.Context, accessToken string) (*discordUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create user info request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read user info response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("user info fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var user discordUser
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("failed to parse user info response: %w", err)
	}
	if user.ID == "" {
		return nil, errors.New("empty id in user info response")
	}

	return &user, nil
}

// compile-time interface check
var _ OAuthProvider = (*DiscordOAuthProvider)(nil)
