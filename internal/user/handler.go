package user

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"

	"sourcehub/internal/auth"
	"sourcehub/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	repo     *Repository
	logger   *observability.Logger
	validate *validator.Validate
}

func NewHandler(repo *Repository, logger *observability.Logger) *Handler {
	return &Handler{repo: repo, logger: logger, validate: validator.New()}
}

type setActiveRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

type updateProfileRequest struct {
	Name string `json:"name" validate:"required,min=2,max=50"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.repo.List(r.Context())
	if err != nil {
		h.internalError(w, "list_users_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// Get serves a public profile. Anonymous callers see the name and role
// only; an attached principal also sees the email.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	summary, err := h.repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.internalError(w, "get_user_failed", err)
		return
	}

	profile := map[string]any{
		"id":   summary.ID,
		"name": summary.Name,
		"role": summary.Role,
	}
	if _, ok := auth.PrincipalFromContext(r.Context()); ok {
		profile["email"] = summary.Email
		profile["is_active"] = summary.IsActive
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": profile})
}

func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	var body setActiveRequest
	if !h.decode(w, r, &body) {
		return
	}

	id := r.PathValue("id")
	if principal, ok := auth.PrincipalFromContext(r.Context()); ok && principal.ID == id {
		writeError(w, http.StatusBadRequest, "cannot change own activation")
		return
	}

	if err := h.repo.SetActive(r.Context(), id, *body.IsActive); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.internalError(w, "set_active_failed", err)
		return
	}

	h.logger.Info("account_activation_changed", map[string]any{
		"account_id": id,
		"is_active":  *body.IsActive,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	var body updateProfileRequest
	if !h.decode(w, r, &body) {
		return
	}

	summary, err := h.repo.UpdateProfile(r.Context(), principal.ID, body.Name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		h.internalError(w, "update_profile_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": summary})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, body any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	if err := h.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request payload")
		return false
	}

	return true
}

func (h *Handler) internalError(w http.ResponseWriter, message string, err error) {
	sentry.CaptureException(err)
	h.logger.Error(message, map[string]any{"error": err.Error()})
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
