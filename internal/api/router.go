package api

import (
	"github.com/go-chi/chi/v5"

	"refpay/internal/constants"
)

// SetupRoutes настраивает все маршруты для API. Пути публичного
// контракта сохранены; все изменяющие маршруты требуют аутентификации,
// административные — роли admin.
// SetupRoutes registers all API routes. Public contract paths are
// preserved; every mutating route requires authentication, admin ones
// the admin role.
func SetupRoutes(r *chi.Mux, h *Handlers) {
	// Публичные маршруты
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.Get("/subscriptions", h.ListSubscriptions)
	r.Get("/subscription/{id}", h.GetSubscription)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(h.Config.JWTSecret, h.Store))

		// --- Маршруты для обычных пользователей ---
		r.Get("/user/{id}", h.GetUser)
		r.Get("/user/{id}/referral-qr", h.ReferralQR)
		r.Get("/user/{id}/balance", h.GetUserBalance)
		r.Get("/user/{id}/payments", h.GetUserPayments)
		r.Get("/user/{id}/transactions", h.GetUserTransactions)
		r.Post("/transaction", h.CreateTransaction)

		// --- Маршруты для администраторов ---
		r.Group(func(r chi.Router) {
			r.Use(RoleMiddleware(constants.ROLE_ADMIN))

			r.Get("/users", h.ListUsers)
			r.Patch("/user/{id}/status", h.UpdateUserStatus)
			r.Patch("/user/{id}/update-plan", h.UpdateUserPlan)

			r.Post("/subscription", h.CreateSubscription)
			r.Put("/subscription/{id}", h.UpdateSubscription)
			r.Delete("/subscription/{id}", h.DeleteSubscription)

			r.Patch("/transaction/approve/{id}", h.ApproveTransaction)
			r.Get("/pending-payments", h.ListPendingPayments)
			r.Get("/completed-payments", h.ListCompletedPayments)
			r.Get("/all-balances", h.AllBalances)
			r.Get("/admin/reports/payments.xlsx", h.PaymentsReport)
		})
	})
}
