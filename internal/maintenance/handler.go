package maintenance

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"cokmall-api/internal/auth"
	"cokmall-api/internal/response"
)

// CleanupHandler prunes expired rows from the token denylist. It is meant
// to be hit by a scheduler and is gated by a shared secret rather than a
// user token.
type CleanupHandler struct {
	repo       *auth.Repository
	logger     *zap.Logger
	cronSecret string
	batchSize  int
}

func NewCleanupHandler(repo *auth.Repository, logger *zap.Logger, cronSecret string, batchSize int) *CleanupHandler {
	return &CleanupHandler{
		repo:       repo,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	// Without a configured secret the endpoint does not exist.
	if h.cronSecret == "" {
		response.WriteError(w, h.logger, response.NotFound("Not found"))
		return
	}

	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		response.WriteError(w, h.logger, response.Unauthorized("Unauthorized"))
		return
	}

	deleted, err := h.repo.DeleteExpiredRevocations(r.Context(), h.batchSize)
	if err != nil {
		response.WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("auth_cleanup_completed", zap.Int64("deleted_revoked_tokens", deleted))

	response.Success(w, http.StatusOK, "Cleanup completed", map[string]int64{
		"deletedRevokedTokens": deleted,
	})
}
