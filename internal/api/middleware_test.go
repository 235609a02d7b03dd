package api

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"

	"refpay/internal/auth"
	"refpay/internal/constants"
	"refpay/internal/db"
)

func newProtectedRouter(t *testing.T, requiredRole string) (*chi.Mux, sqlmock.Sqlmock, func()) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	store := db.NewStore(conn)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware("test-secret", store))
		r.Use(RoleMiddleware(requiredRole))
		r.Get("/protected", func(w http.ResponseWriter, req *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})
	return r, mock, func() { conn.Close() }
}

func expectUserLookup(mock sqlmock.Sqlmock, id int64, role string) {
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id=$1`)).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "phone_number", "password", "status", "role", "subscription_id",
			"referral_code", "referred_by", "pending_referral", "active_referral", "created_at", "updated_at",
		}).AddRow(id, "Тест", "+79990000001", "hash", nil, role, nil,
			"abcdef123456", nil, 0, 0, now, now))
}

func TestAuthMiddlewareMissingHeader(t *testing.T) {
	r, _, closeFn := newProtectedRouter(t, constants.ROLE_USER)
	defer closeFn()

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидался 401, получен %d", rec.Code)
	}
}

func TestAuthMiddlewareInvalidToken(t *testing.T) {
	r, _, closeFn := newProtectedRouter(t, constants.ROLE_USER)
	defer closeFn()

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("ожидался 401, получен %d", rec.Code)
	}
}

func TestAuthMiddlewarePassesValidToken(t *testing.T) {
	r, mock, closeFn := newProtectedRouter(t, constants.ROLE_USER)
	defer closeFn()

	token, err := auth.GenerateToken("test-secret", 42, constants.ROLE_USER)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	expectUserLookup(mock, 42, constants.ROLE_USER)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d (%s)", rec.Code, rec.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func TestRoleMiddlewareForbidsUser(t *testing.T) {
	r, mock, closeFn := newProtectedRouter(t, constants.ROLE_ADMIN)
	defer closeFn()

	token, err := auth.GenerateToken("test-secret", 42, constants.ROLE_USER)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	expectUserLookup(mock, 42, constants.ROLE_USER)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("ожидался 403, получен %d", rec.Code)
	}
}
