package model

// Guild はDiscordのギルド（サーバー）を表す。
// リクエストごとにDiscord APIから取得し、永続化もキャッシュもしない。
type Guild struct {
	ID          string
	Name        string
	Icon        *string
	Description *string
	Banner      *string
	OwnerID     *string
	Roles       []Role
}

// Role はギルド内のロールを表す。
type Role struct {
	ID          string
	Name        string
	Permissions string // ビットマスクを文字列で保持する
	Position    int
	Color       int
}
