package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hitoshi/guildview/internal/model"
)

// UserFinder はDiscord IDでユーザーを引くインターフェース。Serviceが実装する。
type UserFinder interface {
	FindUser(ctx context.Context, discordID string) (*model.User, error)
}

// sessionPayload はセッションストアに保存するプリンシパルの表現。
// ユーザーレコード全体ではなくDiscord IDのみを保存し、リクエスト毎に再解決する。
type sessionPayload struct {
	DiscordID string `json:"discordId"`
}

// SessionSerializer はプリンシパルとセッション保存形式を相互変換する。
type SessionSerializer struct {
	finder UserFinder
}

// NewSessionSerializer はSessionSerializerを生成する。
func NewSessionSerializer(finder UserFinder) *SessionSerializer {
	return &SessionSerializer{finder: finder}
}

// Serialize はユーザーをセッション保存形式に変換する。
func (s *SessionSerializer) Serialize(user *model.User) ([]byte, error) {
	if user == nil || user.DiscordID == "" {
		return nil, errors.New("cannot serialize user without discord id")
	}
	return json.Marshal(sessionPayload{DiscordID: user.DiscordID})
}

// Deserialize は保存形式からユーザーを再解決する。
// ユーザーが既に存在しない場合はnil, nilを返す。
func (s *SessionSerializer) Deserialize(ctx context.Context, data []byte) (*model.User, error) {
	var p sessionPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode session payload: %w", err)
	}
	if p.DiscordID == "" {
		return nil, errors.New("session payload has no discord id")
	}

	user, err := s.finder.FindUser(ctx, p.DiscordID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session user: %w", err)
	}
	if user == nil {
		slog.Debug("session user no longer exists", slog.String("discord_id", p.DiscordID))
		return nil, nil
	}
	return user, nil
}
