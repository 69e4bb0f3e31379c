// Package handler はHTTPハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/guildview/internal/auth"
	"github.com/hitoshi/guildview/internal/middleware"
	"github.com/hitoshi/guildview/internal/model"
)

const oauthStateCookie = "oauth_state"

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code string) (*model.Session, *model.User, error)
	Logout(ctx context.Context, sessionID string) error
}

// CookieSigner はセッションCookieの値に署名する。
type CookieSigner interface {
	Sign(value string) string
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain   string
	CookieSecure   bool
	// CookieSameSite はセッションCookieのSameSite属性。未指定はLax。
	// Noneの場合はSecureを強制する。
	CookieSameSite http.SameSite
	SessionMaxAge  int // セッションCookieの有効期間（秒）
}

// AuthHandler はDiscord OAuth認証関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	signer  CookieSigner
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, signer CookieSigner, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		signer:  signer,
		config:  config,
	}
}

// Login はDiscord OAuthフローを開始する。
// GET /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := auth.GenerateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/auth",
		MaxAge:   600, // 10分
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Redirect はDiscordからのOAuthコールバックを処理し、セッションを確立して200を返す。
// GET /api/auth/redirect?code=xxx&state=yyy
func (h *AuthHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// 1. stateの検証（CSRF対策）
	state := q.Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch")
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidStateError())
		return
	}

	// stateクッキーを削除
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    "",
		Path:     "/api/auth",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// 2. ユーザーが同意を拒否した場合
	if errParam := q.Get("error"); errParam != "" {
		slog.Info("oauth consent denied", slog.String("error", errParam))
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationFailedError())
		return
	}

	// 3. 認可コードの取得
	code := q.Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewMissingCodeError())
		return
	}

	// 4. 認証処理
	session, user, err := h.service.HandleCallback(r.Context(), code)
	if err != nil {
		if errors.Is(err, auth.ErrAuthenticationFailed) {
			slog.Warn("oauth authentication failed", slog.String("error", err.Error()))
			middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewAuthenticationFailedError())
			return
		}
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	// 5. 既存セッションを持ったまま再ログインした場合は古いセッションを破棄する
	if prev := middleware.SessionIDFromContext(r.Context()); prev != "" && prev != session.ID {
		if err := h.service.Logout(r.Context(), prev); err != nil {
			slog.Warn("failed to revoke previous session", slog.String("error", err.Error()))
		}
	}

	// 6. 署名付きセッションCookieを設定（HTTP Only）
	http.SetCookie(w, h.sessionCookie(h.signer.Sign(session.ID), h.config.SessionMaxAge))

	slog.Info("login succeeded", slog.String("discord_id", user.DiscordID))

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Status は現在のログインユーザーをJSONで返す。RequireAuthの後に配置する。
// GET /api/auth/status
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	if user == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// Logout はセッションを破棄し、Cookieをクリアする。RequireAuthの後に配置する。
// GET /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID := middleware.SessionIDFromContext(r.Context()); sessionID != "" {
		if err := h.service.Logout(r.Context(), sessionID); err != nil {
			// ログアウト失敗してもCookieはクリアする
			slog.Error("failed to logout", slog.String("error", err.Error()))
		}
	}

	http.SetCookie(w, h.sessionCookie("", -1))
	w.WriteHeader(http.StatusOK)
}

func (h *AuthHandler) sessionCookie(value string, maxAge int) *http.Cookie {
	sameSite := h.config.CookieSameSite
	if sameSite == 0 || sameSite == http.SameSiteDefaultMode {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    value,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure || sameSite == http.SameSiteNoneMode,
		SameSite: sameSite,
	}
}
