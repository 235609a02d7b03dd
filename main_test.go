package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Preflight для каждого метода, который регистрирует роутер: CORS-политика
// не должна отставать от набора маршрутов.
func TestCORSPreflightCoversRouterMethods(t *testing.T) {
	r := chi.NewRouter()
	r.Use(cors.Handler(corsOptions()))
	handler := func(w http.ResponseWriter, req *http.Request) { w.WriteHeader(http.StatusOK) }
	r.Get("/resource", handler)
	r.Post("/resource", handler)
	r.Put("/resource", handler)
	r.Patch("/resource", handler)
	r.Delete("/resource", handler)

	for _, method := range []string{"GET", "POST", "PUT", "PATCH", "DELETE"} {
		req := httptest.NewRequest(http.MethodOptions, "/resource", nil)
		req.Header.Set("Origin", "https://admin.example.com")
		req.Header.Set("Access-Control-Request-Method", method)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)

		allowed := rec.Header().Get("Access-Control-Allow-Methods")
		if !strings.Contains(allowed, method) {
			t.Errorf("метод %s не разрешен CORS-политикой (Access-Control-Allow-Methods=%q)", method, allowed)
		}
	}
}
