// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/guildview/internal/model"
)

// ErrUserAlreadyExists は同じDiscord IDのユーザーが既に存在する場合に返される。
// 同一IDでの同時初回ログインがユニーク制約で衝突したことを示す。
var ErrUserAlreadyExists = errors.New("user already exists")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByDiscordID はDiscord IDでユーザーを取得する。見つからない場合はnilを返す。
	FindByDiscordID(ctx context.Context, discordID string) (*model.User, error)

	// Create はユーザーを作成し、採番されたIDとCreatedAtをuserに設定する。
	// 同じDiscord IDが既に存在する場合はErrUserAlreadyExistsを返す。
	Create(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの永続化インターフェース。
// PostgreSQL実装とRedis実装がある。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Touch はセッションの有効期限を延長する。
	Touch(ctx context.Context, id string, expiresAt time.Time) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// Pinger は接続確認用のインターフェース。ヘルスチェックで使用する。
type Pinger interface {
	PingContext(ctx context.Context) error
}
