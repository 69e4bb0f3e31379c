package graph

import (
	"context"
	"strconv"

	graphql "github.com/graph-gophers/graphql-go"

	"github.com/hitoshi/guildview/internal/discord"
	"github.com/hitoshi/guildview/internal/middleware"
	"github.com/hitoshi/guildview/internal/model"
)

// Resolver はQuery型のルートリゾルバー。
type Resolver struct {
	guilds discord.GuildProvider
}

// GetUser はリクエストに紐づくログイン中のユーザーを返す。未認証の場合はエラー。
func (r *Resolver) GetUser(ctx context.Context) (*userResolver, error) {
	user := middleware.UserFromContext(ctx)
	if user == nil {
		return nil, errUnauthenticated
	}
	return &userResolver{user: user, guilds: r.guilds}, nil
}

type userResolver struct {
	user   *model.User
	guilds discord.GuildProvider
}

// ID はBIGSERIALの値を切り詰めないよう文字列のIDとして返す。
func (u *userResolver) ID() graphql.ID { return graphql.ID(strconv.FormatInt(u.user.ID, 10)) }

func (u *userResolver) DiscordID() string     { return u.user.DiscordID }
func (u *userResolver) Username() string      { return u.user.Username }
func (u *userResolver) Discriminator() string { return u.user.Discriminator }
func (u *userResolver) Avatar() *string       { return u.user.Avatar }

// Guilds は選択された場合のみ呼ばれ、保存済みのアクセストークンでDiscordからギルド一覧を取得する。
// トークンのリフレッシュは行わない。
func (u *userResolver) Guilds(ctx context.Context) (*[]*guildResolver, error) {
	var token string
	if u.user.AccessToken != nil {
		token = *u.user.AccessToken
	}
	guilds, err := u.guilds.FetchGuilds(ctx, token)
	if err != nil {
		return nil, toGQLError(err)
	}

	out := make([]*guildResolver, 0, len(guilds))
	for i := range guilds {
		out = append(out, &guildResolver{guild: guilds[i]})
	}
	return &out, nil
}

type guildResolver struct {
	guild model.Guild
}

func (g *guildResolver) ID() string           { return g.guild.ID }
func (g *guildResolver) Name() string         { return g.guild.Name }
func (g *guildResolver) Icon() *string        { return g.guild.Icon }
func (g *guildResolver) Description() *string { return g.guild.Description }
func (g *guildResolver) Banner() *string      { return g.guild.Banner }
func (g *guildResolver) OwnerID() *string     { return g.guild.OwnerID }

func (g *guildResolver) Roles() *[]*roleResolver {
	if g.guild.Roles == nil {
		return nil
	}
	out := make([]*roleResolver, 0, len(g.guild.Roles))
	for _, r := range g.guild.Roles {
		out = append(out, &roleResolver{role: r})
	}
	return &out
}

type roleResolver struct {
	role model.Role
}

func (r *roleResolver) ID() string          { return r.role.ID }
func (r *roleResolver) Name() string        { return r.role.Name }
func (r *roleResolver) Permissions() string { return r.role.Permissions }
func (r *roleResolver) Position() int32     { return int32(r.role.Position) }
func (r *roleResolver) Color() int32        { return int32(r.role.Color) }
