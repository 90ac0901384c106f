package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/storefront/internal/auth"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/service"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings is checked in order; the first errors.Is match wins.
var errorMappings = []errorMapping{
	{service.ErrEmptyCart, http.StatusBadRequest, "empty_cart"},
	{service.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{service.ErrInvalidStatus, http.StatusBadRequest, "invalid_status"},
	{service.ErrOrderNotCancellable, http.StatusBadRequest, "not_cancellable"},
	{service.ErrIllegalTransition, http.StatusConflict, "illegal_transition"},
	{service.ErrOrderAccessDenied, http.StatusForbidden, "permission_denied"},
	{repository.ErrOrderNotFound, http.StatusNotFound, "not_found"},
	{repository.ErrCartNotFound, http.StatusNotFound, "not_found"},
	{repository.ErrItemNotFound, http.StatusNotFound, "not_found"},
	{repository.ErrUserNotFound, http.StatusNotFound, "not_found"},
	{catalog.ErrProductNotFound, http.StatusNotFound, "not_found"},
	{catalog.ErrInvalidProduct, http.StatusBadRequest, "invalid_argument"},
	{catalog.ErrCatalogUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
	{repository.ErrEmailTaken, http.StatusBadRequest, "email_taken"},
	{auth.ErrWeakPassword, http.StatusBadRequest, "invalid_argument"},
	{auth.ErrInvalidEmail, http.StatusBadRequest, "invalid_argument"},
	{auth.ErrInvalidCredentials, http.StatusUnauthorized, "unauthenticated"},
	{auth.ErrInvalidToken, http.StatusUnauthorized, "unauthenticated"},
	{auth.ErrInactiveUser, http.StatusForbidden, "inactive_user"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

// handleError converts a service error into an HTTP response. Unknown errors
// are logged and reported as 500 without their message.
func handleError(w http.ResponseWriter, log *zap.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			respondError(w, m.status, m.code, err.Error())
			return
		}
	}

	log.Error("request failed", zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
