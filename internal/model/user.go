// Package model はドメインモデルを定義する。
package model

import "time"

// User はDiscordでログインしたユーザーを表す。
// DiscordIDで一意に識別され、作成後は更新されない。
type User struct {
	ID            int64     `json:"id"`
	DiscordID     string    `json:"discordId"`
	Username      string    `json:"username"`
	Discriminator string    `json:"discriminator"`
	Avatar        *string   `json:"avatar"`
	AccessToken   *string   `json:"-"`
	RefreshToken  *string   `json:"-"`
	CreatedAt     time.Time `json:"-"`
}

// Session はサーバー側で保持するログインセッションを表す。
// Dataにはシリアライズ済みのプリンシパルが入る。
type Session struct {
	ID        string
	Data      []byte
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired はセッションが期限切れかどうかを返す。
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
