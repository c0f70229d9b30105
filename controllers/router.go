package controllers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"personalbank/middleware"
	"personalbank/utils"
)

// NewRouter собирает публичный API
func NewRouter(auth *AuthController, bank *BankController, logger *zap.Logger, limiter *utils.RateLimiter) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RateLimitMiddleware(limiter))

	requireAuth := middleware.AuthMiddleware(auth.GetJWTKey(), auth.Revoker())

	router.HandleFunc("/api/auth/login", auth.SignIn).Methods("POST")
	router.Handle("/api/auth/logout", requireAuth(http.HandlerFunc(auth.SignOut))).Methods("POST")

	protected := router.PathPrefix("/api/me").Subrouter()
	protected.Use(requireAuth)

	bank.RegisterRoutes(router, protected)
	return router
}
