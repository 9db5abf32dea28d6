package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"auth-serverless/internal/observability"
)

// LockoutJanitor clears lockout state that has sat inert past the
// retention window. Implemented by the Postgres identity repository.
type LockoutJanitor interface {
	ClearStaleLockouts(ctx context.Context, retention time.Duration, batchSize int) (int64, error)
}

// CleanupHandler is a cron-invoked endpoint guarded by a shared secret.
// Without CRON_SECRET configured it answers 404 so the route does not
// advertise itself.
type CleanupHandler struct {
	janitor    LockoutJanitor
	logger     *observability.Logger
	cronSecret string
	retention  time.Duration
	batchSize  int
}

func NewCleanupHandler(janitor LockoutJanitor, logger *observability.Logger, cronSecret string, retention time.Duration, batchSize int) *CleanupHandler {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &CleanupHandler{
		janitor:    janitor,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		retention:  retention,
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	cleared, err := h.janitor.ClearStaleLockouts(r.Context(), h.retention, h.batchSize)
	if err != nil {
		h.logger.Error("lockout_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("lockout_cleanup_completed", map[string]any{"cleared_lockouts": cleared})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"cleared_lockouts": cleared,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
