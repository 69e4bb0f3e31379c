package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotImplemented は未実装の機能が呼ばれたことを示す。
	ErrNotImplemented = errors.New("not implemented")
	// ErrUpstream はDiscord APIの呼び出しに失敗したことを示す。
	ErrUpstream = errors.New("upstream request failed")
	// ErrNoAccessToken はユーザーにアクセストークンが保存されていないことを示す。
	ErrNoAccessToken = errors.New("no access token stored for user")
)

// APIError は統一エラーフォーマットを表す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized         = "UNAUTHORIZED"
	ErrCodeAuthenticationFailed = "AUTHENTICATION_FAILED"
	ErrCodeInvalidState         = "INVALID_STATE"
	ErrCodeMissingCode          = "MISSING_CODE"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewAuthenticationFailedError はOAuth認証失敗エラーを生成する。
func NewAuthenticationFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthenticationFailed,
		Message:  "Discordでの認証に失敗しました。",
		Category: "auth",
		Action:   "もう一度ログインをお試しください。",
	}
}

// NewInvalidStateError はOAuth stateの不一致エラーを生成する。
func NewInvalidStateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidState,
		Message:  "stateパラメータが不正です。",
		Category: "auth",
		Action:   "ログインを最初からやり直してください。",
	}
}

// NewMissingCodeError は認可コード欠落エラーを生成する。
func NewMissingCodeError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingCode,
		Message:  "認可コードがありません。",
		Category: "validation",
		Action:   "ログインを最初からやり直してください。",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
