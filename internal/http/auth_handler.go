package http

import (
	"context"
	"encoding/json"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type AuthHandler struct {
	auth    Authenticator
	timeout time.Duration
	log     *zap.Logger
}

func NewAuthHandler(auth Authenticator, timeout time.Duration, log *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, timeout: timeout, log: log}
}

type RegisterRequestDTO struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

type LoginRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /api/v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req RegisterRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	user, err := h.auth.Register(ctx, req.Email, req.FullName, req.Password)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

// POST /api/v1/auth/token accepts an OAuth2 password form (username,
// password) or a JSON body.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req LoginRequestDTO
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid form body")
			return
		}
		req.Email = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	token, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		handleError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, token)
}

// GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, UserFromContext(r.Context()))
}
