package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"sourcehub/internal/auth"
	"sourcehub/internal/observability"
)

// Cleaner clears expired security state in bounded batches.
type Cleaner interface {
	CleanupExpiredSecurityState(ctx context.Context, batchSize int) (auth.CleanupResult, error)
}

// CleanupHandler is invoked by an external scheduler with a shared cron
// secret. It is disabled entirely when no secret is configured.
type CleanupHandler struct {
	cleaner    Cleaner
	logger     *observability.Logger
	cronSecret string
	batchSize  int
}

func NewCleanupHandler(cleaner Cleaner, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	return &CleanupHandler{
		cleaner:    cleaner,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	result, err := h.cleaner.CleanupExpiredSecurityState(r.Context(), h.batchSize)
	if err != nil {
		h.logger.Error("security_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("security_cleanup_completed", map[string]any{
		"cleared_reset_tokens": result.ClearedResetTokens,
		"cleared_locks":        result.ClearedLocks,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"result": result,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
