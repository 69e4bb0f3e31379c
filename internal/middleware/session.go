// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/guildview/internal/model"
)

// SessionCookieName はセッションIDを運ぶCookie名。値は署名付き。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	userContextKey      = contextKey("user")
	sessionIDContextKey = contextKey("session_id")
)

// SessionResolver はセッションIDからユーザーを解決するインターフェース。
// auth.Serviceが実装する。
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionID string) (*model.User, error)
}

// CookieVerifier は署名付きCookie値を検証するインターフェース。
type CookieVerifier interface {
	Verify(signed string) (string, bool)
}

// NewSessionMiddleware は署名付きCookieからセッションを読み取り、
// 解決できたユーザーをリクエストコンテキストに注入する。
// 未認証でもリクエストは拒否しない。拒否はRequireAuthやリゾルバーが行う。
func NewSessionMiddleware(resolver SessionResolver, verifier CookieVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			sessionID, ok := verifier.Verify(cookie.Value)
			if !ok {
				slog.Debug("session cookie signature mismatch")
				next.ServeHTTP(w, r)
				return
			}

			user, err := resolver.ResolveSession(r.Context(), sessionID)
			if err != nil {
				slog.Error("failed to resolve session",
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}
			if user == nil {
				next.ServeHTTP(w, r)
				return
			}

			setLoggedDiscordID(r.Context(), user.DiscordID)
			ctx := ContextWithUser(r.Context(), user)
			ctx = context.WithValue(ctx, sessionIDContextKey, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth はユーザーが解決されていないリクエストを401で拒否する。
// NewSessionMiddlewareの後に配置する。
func RequireAuth() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if UserFromContext(r.Context()) == nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext はリクエストコンテキストからログイン中のユーザーを取得する。
// 未認証の場合はnilを返す。
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(userContextKey).(*model.User)
	return user
}

// ContextWithUser はコンテキストにユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// SessionIDFromContext は検証済みのセッションIDを返す。
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDContextKey).(string)
	return id
}

// ContextWithSessionID はコンテキストにセッションIDを注入する。テスト用。
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}
