// Файл: internal/api/middleware.go
package api

import (
	"context"
	"log"
	"net/http"
	"strings"

	"refpay/internal/auth"
	"refpay/internal/db"
	"refpay/internal/models"
	"refpay/internal/utils"
)

// UserContextKey - ключ для сохранения данных пользователя в контексте запроса.
var UserContextKey = &contextKey{"User"}

type contextKey struct {
	name string
}

// AuthMiddleware проверяет заголовок Authorization с bearer-токеном и
// кладет пользователя в контекст запроса.
// AuthMiddleware validates the Authorization bearer token and stores
// the user in the request context.
func AuthMiddleware(secretKey string, store *db.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSONError(w, http.StatusUnauthorized, "Отсутствует заголовок Authorization")
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				writeJSONError(w, http.StatusUnauthorized, "Ожидается bearer-токен")
				return
			}

			claims, err := auth.ValidateToken(secretKey, tokenString)
			if err != nil {
				log.Printf("AuthMiddleware: некорректный токен: %v", err)
				writeJSONError(w, http.StatusUnauthorized, "Некорректный или истекший токен")
				return
			}

			// Роль берем из БД, а не из токена: отзыв прав действует сразу.
			// The role comes from the DB, not the token: revocation takes
			// effect immediately.
			user, err := store.GetUserByID(claims.UserID)
			if err != nil {
				log.Printf("AuthMiddleware: пользователь %d из токена не найден: %v", claims.UserID, err)
				writeJSONError(w, http.StatusUnauthorized, "Пользователь не найден")
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RoleMiddleware проверяет, соответствует ли роль пользователя требуемой.
// RoleMiddleware checks that the user's role meets the required one.
func RoleMiddleware(requiredRole string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := r.Context().Value(UserContextKey).(models.User)
			if !ok {
				writeJSONError(w, http.StatusForbidden, "Пользователь не найден в контексте запроса")
				return
			}

			if !utils.IsRoleOrHigher(user.Role, requiredRole) {
				writeJSONError(w, http.StatusForbidden, "Недостаточно прав")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
