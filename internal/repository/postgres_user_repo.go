package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/guildview/internal/model"
	"github.com/lib/pq"
)

// uniqueViolation はPostgreSQLのユニーク制約違反のエラーコード。
const uniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByDiscordID はDiscord IDでユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByDiscordID(ctx context.Context, discordID string) (*model.User, error) {
	user := &model.User{}
	var avatar, accessToken, refreshToken sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, discord_id, username, discriminator, avatar, access_token, refresh_token, created_at
		 FROM users
		 WHERE discord_id = $1`,
		discordID,
	).Scan(&user.ID, &user.DiscordID, &user.Username, &user.Discriminator,
		&avatar, &accessToken, &refreshToken, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by discord ID: %w", err)
	}

	user.Avatar = fromNullString(avatar)
	user.AccessToken = fromNullString(accessToken)
	user.RefreshToken = fromNullString(refreshToken)
	return user, nil
}

// Create はユーザーを作成する。
// ON CONFLICT DO NOTHINGで挿入されなかった場合はErrUserAlreadyExistsを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (discord_id, username, discriminator, avatar, access_token, refresh_token)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (discord_id) DO NOTHING
		 RETURNING id, created_at`,
		user.DiscordID, user.Username, user.Discriminator,
		toNullString(user.Avatar), toNullString(user.AccessToken), toNullString(user.RefreshToken),
	).Scan(&user.ID, &user.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserAlreadyExists
	}
	if isUniqueViolation(err) {
		return ErrUserAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// isUniqueViolation はerrがPostgreSQLのユニーク制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	return false
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
