// Package graph はGraphQL APIのスキーマとリゾルバーを提供する。
package graph

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"

	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/hitoshi/guildview/internal/discord"
)

//go:embed schema.graphql
var schemaSDL string

// maxQueryDepth はクエリのネスト上限。
const maxQueryDepth = 10

// NewSchema はリゾルバーを結び付けたGraphQLスキーマを生成する。
func NewSchema(guilds discord.GuildProvider) (*graphql.Schema, error) {
	schema, err := graphql.ParseSchema(schemaSDL, &Resolver{guilds: guilds},
		graphql.MaxDepth(maxQueryDepth),
		graphql.Logger(panicLogger{}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse graphql schema: %w", err)
	}
	return schema, nil
}

// NewHandler はGraphQLリクエストを処理するHTTPハンドラーを返す。
func NewHandler(schema *graphql.Schema) http.Handler {
	return &relay.Handler{Schema: schema}
}

// panicLogger はリゾルバー内のpanicをslogに出力する。
type panicLogger struct{}

func (panicLogger) LogPanic(_ context.Context, value interface{}) {
	slog.Error("panic in graphql resolver", slog.Any("panic", value))
}
