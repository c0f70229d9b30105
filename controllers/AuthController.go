package controllers

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"personalbank/middleware"
	"personalbank/services"
)

type AuthController struct {
	ledger    *services.LedgerService
	jwtKey    []byte
	expiresIn time.Duration
	revoker   middleware.TokenRevoker
	logger    *zap.Logger
}

type SignInRequest struct {
	AccountNumber string `json:"account_number"`
	Password      string `json:"password"`
}

type SignInResponse struct {
	Token         string    `json:"token"`
	AccountNumber string    `json:"account_number"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// NewAuthController создает контроллер авторизации. revoker может быть nil,
// тогда выход из системы не отзывает токен на сервере.
func NewAuthController(ledger *services.LedgerService, jwtKey []byte, expiresIn time.Duration, revoker middleware.TokenRevoker, logger *zap.Logger) *AuthController {
	return &AuthController{
		ledger:    ledger,
		jwtKey:    jwtKey,
		expiresIn: expiresIn,
		revoker:   revoker,
		logger:    logger,
	}
}

// SignIn проверяет номер счета и пароль и выдает токен
func (c *AuthController) SignIn(w http.ResponseWriter, r *http.Request) {
	var req SignInRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := c.ledger.Authenticate(r.Context(), req.AccountNumber, req.Password); err != nil {
		writeError(w, c.logger, err)
		return
	}

	token, expiresAt, err := middleware.NewToken(c.jwtKey, req.AccountNumber, c.expiresIn)
	if err != nil {
		writeError(w, c.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, SignInResponse{
		Token:         token,
		AccountNumber: req.AccountNumber,
		ExpiresAt:     expiresAt,
	})
}

// SignOut завершает сессию и отзывает текущий токен до истечения его срока
func (c *AuthController) SignOut(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if c.revoker != nil && ok && claims.ID != "" && claims.ExpiresAt != nil {
		if err := c.revoker.Revoke(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
			writeError(w, c.logger, err)
			return
		}
		c.logger.Info("token revoked", zap.String("account_number", claims.AccountNumber))
	}
	w.WriteHeader(http.StatusNoContent)
}

// Revoker возвращает хранилище отозванных токенов
func (c *AuthController) Revoker() middleware.TokenRevoker {
	return c.revoker
}

// GetJWTKey возвращает ключ для JWT
func (c *AuthController) GetJWTKey() []byte {
	return c.jwtKey
}
