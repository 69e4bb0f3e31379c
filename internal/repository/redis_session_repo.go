package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/guildview/internal/model"
	"github.com/redis/go-redis/v9"
)

const redisSessionKeyPrefix = "session:"

// redisSessionRecord はRedisに保存するセッションの表現。
type redisSessionRecord struct {
	Data      []byte    `json:"data"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// 期限切れのキーはRedisのTTLで自動的に削除される。
type RedisSessionRepo struct {
	rdb *redis.Client
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(rdb *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{rdb: rdb}
}

// Create はセッションを作成する。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return r.put(ctx, session.ID, redisSessionRecord{
		Data:      session.Data,
		ExpiresAt: session.ExpiresAt,
		CreatedAt: session.CreatedAt,
	})
}

// FindByID は指定IDのセッションを取得する。存在しないか期限切れの場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	rec, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil || !time.Now().Before(rec.ExpiresAt) {
		return nil, nil
	}

	return &model.Session{
		ID:        id,
		Data:      rec.Data,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// Touch はセッションの有効期限を延長する。セッションが既に存在しない場合は何もしない。
// 書き戻しはキーが残っている場合のみ行い（SET XX）、GETとSETの間にログアウトで
// 削除されたセッションを復活させない。
func (r *RedisSessionRepo) Touch(ctx context.Context, id string, expiresAt time.Time) error {
	rec, err := r.get(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.ExpiresAt = expiresAt

	raw, ttl, err := encodeSession(id, *rec)
	if err != nil {
		return err
	}
	err = r.rdb.SetArgs(ctx, redisSessionKeyPrefix+id, raw, redis.SetArgs{Mode: "XX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to extend session: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, redisSessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepo) get(ctx context.Context, id string) (*redisSessionRecord, error) {
	raw, err := r.rdb.Get(ctx, redisSessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	var rec redisSessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &rec, nil
}

func (r *RedisSessionRepo) put(ctx context.Context, id string, rec redisSessionRecord) error {
	raw, ttl, err := encodeSession(id, rec)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, redisSessionKeyPrefix+id, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func encodeSession(id string, rec redisSessionRecord) ([]byte, time.Duration, error) {
	ttl := time.Until(rec.ExpiresAt)
	if ttl <= 0 {
		return nil, 0, fmt.Errorf("session %s is already expired", id)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode session: %w", err)
	}
	return raw, ttl, nil
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
