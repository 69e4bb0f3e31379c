package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/guildview/internal/metrics"
	"github.com/hitoshi/guildview/internal/model"
)

// maxResponseBytes はDiscord APIレスポンスの読み取り上限。
const maxResponseBytes = 1 << 20

// GuildProvider はユーザーの所属ギルドを取得するインターフェース。
type GuildProvider interface {
	// FetchGuilds はアクセストークンの持ち主が所属するギルド一覧を取得する。
	FetchGuilds(ctx context.Context, accessToken string) ([]model.Guild, error)
	// FetchGuildRoles はギルドのロール一覧を取得する。未実装のため常にエラーを返す。
	FetchGuildRoles(ctx context.Context, guildID string) ([]model.Role, error)
}

// UpstreamError はDiscord APIが2xx以外を返したことを表す。
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("discord api returned status %d: %s", e.StatusCode, e.Body)
}

// Unwrap によりerrors.Is(err, model.ErrUpstream)が成立する。
func (e *UpstreamError) Unwrap() error {
	return model.ErrUpstream
}

// Client はDiscord REST APIのクライアント。
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    metrics.MetricsCollector
}

// NewClient はClientを生成する。baseURLが空の場合はDefaultAPIBaseURLを使う。
func NewClient(baseURL string, httpClient *http.Client, mc metrics.MetricsCollector) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	if httpClient == nil {
		httpClient = NewHTTPClient(0)
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		metrics:    mc,
	}
}

// guildResponse は/users/@me/guildsの要素。
type guildResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Icon        *string        `json:"icon"`
	Description *string        `json:"description"`
	Banner      *string        `json:"banner"`
	OwnerID     *string        `json:"owner_id"`
	Roles       []roleResponse `json:"roles"`
}

type roleResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Permissions string `json:"permissions"`
	Position    int    `json:"position"`
	Color       int    `json:"color"`
}

// FetchGuilds は/users/@me/guildsを呼び出し、結果をmodel.Guildに変換して返す。
// リトライ・ページング・キャッシュは行わない。
func (c *Client) FetchGuilds(ctx context.Context, accessToken string) ([]model.Guild, error) {
	if accessToken == "" {
		return nil, model.ErrNoAccessToken
	}

	start := time.Now()
	guilds, err := c.fetchGuilds(ctx, accessToken)
	c.metrics.RecordGuildFetch(err == nil, time.Since(start))
	if err != nil {
		slog.Warn("guild fetch failed",
			slog.String("error", err.Error()),
			slog.Duration("duration", time.Since(start)),
		)
		return nil, err
	}
	return guilds, nil
}

func (c *Client) fetchGuilds(ctx context.Context, accessToken string) ([]model.Guild, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/users/@me/guilds", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create guilds request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("guilds request failed: %w: %w", model.ErrUpstream, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read guilds response: %w: %w", model.ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var raw []guildResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse guilds response: %w: %w", model.ErrUpstream, err)
	}

	guilds := make([]model.Guild, 0, len(raw))
	for _, g := range raw {
		guilds = append(guilds, toGuild(g))
	}
	return guilds, nil
}

func toGuild(g guildResponse) model.Guild {
	guild := model.Guild{
		ID:          g.ID,
		Name:        g.Name,
		Icon:        g.Icon,
		Description: g.Description,
		Banner:      g.Banner,
		OwnerID:     g.OwnerID,
	}
	if g.Roles != nil {
		guild.Roles = make([]model.Role, 0, len(g.Roles))
		for _, r := range g.Roles {
			guild.Roles = append(guild.Roles, model.Role{
				ID:          r.ID,
				Name:        r.Name,
				Permissions: r.Permissions,
				Position:    r.Position,
				Color:       r.Color,
			})
		}
	}
	return guild
}

// FetchGuildRoles は未実装。呼び出されると常にmodel.ErrNotImplementedを返す。
func (c *Client) FetchGuildRoles(ctx context.Context, guildID string) ([]model.Role, error) {
	err := fmt.Errorf("fetch roles for guild %q: %w", guildID, model.ErrNotImplemented)
	slog.Error("guild role fetch is not implemented", slog.String("guild_id", guildID))
	return nil, err
}

// IsUpstreamError はerrがDiscord API起因の失敗かどうかを返す。
func IsUpstreamError(err error) bool {
	return errors.Is(err, model.ErrUpstream) || errors.Is(err, model.ErrNoAccessToken)
}

var _ GuildProvider = (*Client)(nil)
