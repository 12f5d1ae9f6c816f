package auth

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"cokmall-api/internal/response"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service
	logger  *zap.Logger
}

func NewHandler(service *Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type unlockRequest struct {
	Email string `json:"email"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !h.decode(w, r, &body) {
		return
	}

	tokens, err := h.service.Register(r.Context(), body.Email, body.Password)
	if err != nil {
		response.WriteError(w, h.logger, err)
		return
	}

	response.Success(w, http.StatusOK, "Registration successful", tokens)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if !h.decode(w, r, &body) {
		return
	}

	tokens, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		response.WriteError(w, h.logger, err)
		return
	}

	response.Success(w, http.StatusOK, "Login successful", tokens)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !h.decode(w, r, &body) {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		response.WriteError(w, h.logger, err)
		return
	}

	response.Success(w, http.StatusOK, "Token refreshed", tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !h.decode(w, r, &body) {
		return
	}

	if err := h.service.Logout(r.Context(), body.RefreshToken); err != nil {
		response.WriteError(w, h.logger, err)
		return
	}

	response.Success(w, http.StatusOK, "Logged out", nil)
}

// Me returns the caller's identity. The route runs behind RequireAuth,
// so an identity is always present by the time this executes.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		response.WriteError(w, h.logger, response.Unauthorized("Authentication required"))
		return
	}

	response.Success(w, http.StatusOK, "Authenticated user", identity)
}

// Unlock handles the admin-only lockout reset. Route-level authorization
// has already required the ADMIN role by the time this runs.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	var body unlockRequest
	if !h.decode(w, r, &body) {
		return
	}

	if err := h.service.Unlock(r.Context(), body.Email); err != nil {
		response.WriteError(w, h.logger, err)
		return
	}

	response.Success(w, http.StatusOK, "Account unlocked", nil)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		response.WriteError(w, h.logger, response.Validation(map[string]string{"body": "Invalid JSON body"}))
		return false
	}

	return true
}
