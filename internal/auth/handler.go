package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/go-playground/validator/v10"

	"sourcehub/internal/observability"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service  *Service
	logger   *observability.Logger
	validate *validator.Validate
	devMode  bool
}

func NewHandler(service *Service, logger *observability.Logger, devMode bool) *Handler {
	return &Handler{
		service:  service,
		logger:   logger,
		validate: validator.New(),
		devMode:  devMode,
	}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=200"`
	Role     string `json:"role" validate:"omitempty,oneof=user manager admin"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=200"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=200"`
}

type accountResponse struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Role        Role       `json:"role"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newAccountResponse(account Account) accountResponse {
	return accountResponse{
		ID:          account.ID,
		Name:        account.Name,
		Email:       account.Email,
		Role:        account.Role,
		IsActive:    account.IsActive,
		LastLoginAt: account.LastLoginAt,
		CreatedAt:   account.CreatedAt,
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !h.decode(w, r, &body) {
		return
	}

	token, account, err := h.service.Register(r.Context(), body.Name, body.Email, body.Password, Role(body.Role))
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		h.internalError(w, "register_failed", err)
		return
	}

	h.logger.Info("account_registered", map[string]any{"email": account.Email})
	writeJSON(w, http.StatusCreated, map[string]any{
		"user":  newAccountResponse(account),
		"token": token,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !h.decode(w, r, &body) {
		return
	}

	token, principal, err := h.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		var locked ErrAccountLocked
		switch {
		case errors.As(err, &locked):
			// Rendered identically to a wrong password so lockout
			// state cannot be probed from outside.
			h.logger.Info("login_locked", map[string]any{
				"email": body.Email,
				"until": locked.Until.Format(time.RFC3339),
			})
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, ErrAccountInactive):
			writeError(w, http.StatusUnauthorized, "account is deactivated")
		default:
			h.internalError(w, "login_failed", err)
		}
		return
	}

	h.logger.Info("login_succeeded", map[string]any{"account_id": principal.ID})
	writeJSON(w, http.StatusOK, map[string]any{
		"token":     token,
		"principal": principal,
	})
}

// Refresh re-issues a session token for the already-verified principal.
// The route sits behind the authorization middleware.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	token, err := h.service.Refresh(r.Context(), principal)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
		case errors.Is(err, ErrAccountInactive):
			writeError(w, http.StatusUnauthorized, "account is deactivated")
		default:
			h.internalError(w, "refresh_failed", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Logout exists for client symmetry; tokens are stateless, so there is
// nothing to revoke server-side.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if principal, ok := PrincipalFromContext(r.Context()); ok {
		h.logger.Info("logout", map[string]any{"account_id": principal.ID})
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	account, err := h.service.Account(r.Context(), principal.ID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		h.internalError(w, "load_account_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": newAccountResponse(account)})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body forgotPasswordRequest
	if !h.decode(w, r, &body) {
		return
	}

	plaintext, err := h.service.IssueResetToken(r.Context(), body.Email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "there is no account with that email")
			return
		}
		h.internalError(w, "forgot_password_failed", err)
		return
	}

	h.logger.Info("reset_token_issued", map[string]any{"email": body.Email})

	response := map[string]string{"message": "password reset instructions sent"}
	if h.devMode {
		// Delivery is out-of-band in production; surfacing the token
		// here keeps local development usable without a mail sink.
		response["reset_token"] = plaintext
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !h.decode(w, r, &body) {
		return
	}

	token, err := h.service.ConsumeResetToken(r.Context(), body.Token, body.Password)
	if err != nil {
		if errors.Is(err, ErrResetTokenInvalid) || errors.Is(err, ErrResetTokenExpired) {
			writeError(w, http.StatusBadRequest, "invalid token or token has expired")
			return
		}
		h.internalError(w, "reset_password_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "password reset successful",
		"token":   token,
	})
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
