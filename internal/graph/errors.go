package graph

import (
	"errors"
	"log/slog"

	"github.com/hitoshi/guildview/internal/discord"
	"github.com/hitoshi/guildview/internal/model"
)

// GraphQLエラーのextensions.code
const (
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeUpstream        = "UPSTREAM_ERROR"
	CodeNotImplemented  = "NOT_IMPLEMENTED"
	CodeInternal        = "INTERNAL_ERROR"
)

// gqlError はextensions付きのGraphQLエラー。
type gqlError struct {
	code    string
	message string
}

func (e *gqlError) Error() string { return e.message }

// Extensions はGraphQLレスポンスのerrors[].extensionsに出力される。
func (e *gqlError) Extensions() map[string]interface{} {
	return map[string]interface{}{"code": e.code}
}

var errUnauthenticated = &gqlError{code: CodeUnauthenticated, message: "authentication required"}

// toGQLError はドメインエラーをクライアント向けのGraphQLエラーに変換する。
// 詳細はログにのみ残す。
func toGQLError(err error) error {
	switch {
	case errors.Is(err, model.ErrNotImplemented):
		return &gqlError{code: CodeNotImplemented, message: "not implemented"}
	case discord.IsUpstreamError(err):
		var upErr *discord.UpstreamError
		if errors.As(err, &upErr) {
			slog.Warn("discord api error in resolver", slog.Int("status", upErr.StatusCode))
		}
		return &gqlError{code: CodeUpstream, message: "failed to fetch data from discord"}
	default:
		slog.Error("resolver error", slog.String("error", err.Error()))
		return &gqlError{code: CodeInternal, message: "internal error"}
	}
}
