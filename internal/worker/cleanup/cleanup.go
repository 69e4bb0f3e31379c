// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// PostgreSQLのsessionsテーブルを使う場合にのみ必要となる。
// Redisのセッションはキーの有効期限で自動的に消える。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/guildview/internal/metrics"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は有効期限を過ぎたセッションを削除するジョブ。
// 冪等であり、削除対象がなくてもエラーにならない。
type CleanupJob struct {
	db      Executor
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewCleanupJob は新しいCleanupJobを生成する。mcがnilの場合はメトリクスを記録しない。
func NewCleanupJob(db Executor, logger *slog.Logger, mc metrics.MetricsCollector) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &CleanupJob{
		db:      db,
		logger:  logger,
		metrics: mc,
	}
}

// Run は期限切れセッションを削除し、削除件数を返す。
func (j *CleanupJob) Run(ctx context.Context) (int64, error) {
	start := time.Now()

	result, err := j.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= now()`)
	if err != nil {
		j.logger.Error("failed to delete expired sessions",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}

	j.metrics.RecordSessionsCleaned(deleted)
	j.logger.Info("session cleanup completed",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Start はintervalごとにRunを実行する。起動直後にも1回実行する。
// コンテキストがキャンセルされるまで戻らない。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("session cleanup scheduler started", slog.Duration("interval", interval))

	j.runLogged(ctx)
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("session cleanup scheduler stopped")
			return
		case <-ticker.C:
			j.runLogged(ctx)
		}
	}
}

// runLogged はRunのエラーをログに残すのみで呼び出し元へは返さない。
func (j *CleanupJob) runLogged(ctx context.Context) {
	if _, err := j.Run(ctx); err != nil && ctx.Err() == nil {
		j.logger.Error("session cleanup cycle failed", slog.String("error", err.Error()))
	}
}
