package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/guildview/internal/repository"
)

// HealthHandler は依存サービスへの疎通を確認するヘルスチェックハンドラー。
type HealthHandler struct {
	checks map[string]repository.Pinger
}

// NewHealthHandler はHealthHandlerを生成する。checksのキーはレスポンスに出力する名前。
func NewHealthHandler(checks map[string]repository.Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// ServeHTTP は全ての依存先にpingし、すべて成功すれば200、いずれか失敗すれば503を返す。
// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, p := range h.checks {
		if err := p.PingContext(ctx); err != nil {
			slog.Warn("health check failed",
				slog.String("dependency", name),
				slog.String("error", err.Error()),
			)
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": overall,
		"checks": results,
	})
}
