package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"personalbank/models"
)

// ErrorResponse тело ответа с ошибкой
type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError переводит ошибку движка в HTTP-статус
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: validationErr.Reason, Field: validationErr.Field})
	case errors.Is(err, models.ErrAuthenticationFailed):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "неверный номер счета или пароль"})
	case errors.Is(err, models.ErrAccountNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "счет не найден"})
	case errors.Is(err, models.ErrInsufficientFunds):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "недостаточно средств"})
	case errors.Is(err, models.ErrAccountDeactivated):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "счет закрыт"})
	default:
		logger.Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "внутренняя ошибка сервера"})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return false
	}
	return true
}
