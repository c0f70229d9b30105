package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"personalbank/utils"
)

type contextKey string

const (
	accountNumberKey contextKey = "account_number"
	claimsKey        contextKey = "claims"
)

// Claims содержимое токена держателя счета
type Claims struct {
	AccountNumber string `json:"account_number"`
	jwt.RegisteredClaims
}

// NewToken выпускает подписанный HS256 токен для счета
func NewToken(secret []byte, accountNumber string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		AccountNumber: accountNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   accountNumber,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expiresAt, nil
}

// LoggingResponseWriter запоминает код ответа
type LoggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *LoggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware логирует информацию о запросе и ответе
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			lrw := &LoggingResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(lrw, r)

			duration := time.Since(start)
			utils.GetMetrics().RecordRequest(duration, lrw.statusCode >= http.StatusInternalServerError)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", lrw.statusCode),
				zap.Duration("duration", duration),
			)
		})
	}
}

// RateLimitMiddleware ограничивает частоту запросов с одного IP
func RateLimitMiddleware(limiter *utils.RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := remoteIP(r)

			if !limiter.Allow(clientIP) {
				w.Header().Set("Retry-After", limiter.GetResetTime(clientIP).UTC().Format(http.TimeFormat))
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.GetRemaining(clientIP)))
			next.ServeHTTP(w, r)
		})
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// AuthMiddleware проверяет JWT токен и кладет номер счета в контекст запроса.
// revoker может быть nil, тогда отзыв токенов не проверяется.
func AuthMiddleware(jwtKey []byte, revoker TokenRevoker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				http.Error(w, "Authorization header is required", http.StatusUnauthorized)
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return jwtKey, nil
			})
			if err != nil || !token.Valid {
				if errors.Is(err, jwt.ErrTokenExpired) {
					http.Error(w, "Token expired", http.StatusUnauthorized)
					return
				}
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			if claims.AccountNumber == "" {
				http.Error(w, "Invalid account_number in token", http.StatusUnauthorized)
				return
			}

			if revoker != nil {
				revoked, err := revoker.IsRevoked(r.Context(), claims.ID)
				if err != nil {
					http.Error(w, "Token check unavailable", http.StatusServiceUnavailable)
					return
				}
				if revoked {
					http.Error(w, "Token revoked", http.StatusUnauthorized)
					return
				}
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(WithAccountNumber(ctx, claims.AccountNumber)))
		})
	}
}

// AccountNumberFromContext получает номер счета, установленный AuthMiddleware
func AccountNumberFromContext(ctx context.Context) (string, bool) {
	accountNumber, ok := ctx.Value(accountNumberKey).(string)
	return accountNumber, ok && accountNumber != ""
}

// ClaimsFromContext возвращает проверенные claims текущего запроса
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*Claims)
	return claims, ok
}

// WithAccountNumber кладет номер счета в контекст
func WithAccountNumber(ctx context.Context, accountNumber string) context.Context {
	return context.WithValue(ctx, accountNumberKey, accountNumber)
}
