// Файл: internal/api/handlers.go
package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"refpay/internal/config"
	"refpay/internal/db"
	"refpay/internal/models"
	"refpay/internal/settlement"
	"refpay/internal/utils"
)

// Handlers содержит зависимости обработчиков API.
// Handlers carries the API handlers' dependencies.
type Handlers struct {
	Engine *settlement.Engine
	Store  *db.Store
	Config *config.Config
}

// --- Вспомогательные функции для JSON-ответов ---

func writeJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"message": message})
}

// statusForError переводит ошибку движка в HTTP-код: NotFound — 404,
// ошибки валидации и конфликты — 400, прочее — 500.
// statusForError maps an engine error to an HTTP code: NotFound is
// 404, validation and conflict errors are 400, the rest is 500.
func statusForError(err error) int {
	switch {
	case errors.Is(err, settlement.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, settlement.ErrInvalidReferralCode),
		errors.Is(err, settlement.ErrUserExists),
		errors.Is(err, settlement.ErrInvalidCredentials),
		errors.Is(err, settlement.ErrNoSubscriptionPlan),
		errors.Is(err, settlement.ErrNoDailyIncome),
		errors.Is(err, settlement.ErrInvalidAmount),
		errors.Is(err, settlement.ErrDuplicateRequest),
		errors.Is(err, settlement.ErrAlreadySettledToday),
		errors.Is(err, settlement.ErrPaymentFinalized),
		errors.Is(err, settlement.ErrInvalidStatus),
		errors.Is(err, settlement.ErrInvalidDecision),
		errors.Is(err, settlement.ErrSubscriptionNameUsed):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeEngineError(w http.ResponseWriter, err error) {
	code := statusForError(err)
	if code == http.StatusInternalServerError {
		log.Printf("Внутренняя ошибка: %v", err)
		writeJSONError(w, code, "Внутренняя ошибка сервера")
		return
	}
	writeJSONError(w, code, err.Error())
}

// --- Представления для ответов ---

func userView(u models.User) map[string]interface{} {
	return map[string]interface{}{
		"id":               u.ID,
		"name":             u.Name,
		"phone_number":     u.PhoneNumber,
		"status":           u.StatusOrNil(),
		"role":             u.Role,
		"referral_code":    u.ReferralCode,
		"referred_by":      u.ReferredByOrNil(),
		"pending_referral": u.PendingReferral,
		"active_referral":  u.ActiveReferral,
		"created_at":       u.CreatedAt,
	}
}

func userWithPlanView(u models.UserWithSubscription) map[string]interface{} {
	view := userView(u.User)
	view["subscription"] = u.SubscriptionView()
	return view
}

// --- Аутентификация ---

// Signup обрабатывает POST /signup.
func (h *Handlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name         string `json:"name"`
		PhoneNumber  string `json:"phone_number"`
		Password     string `json:"password"`
		ReferralCode string `json:"referralCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}
	if req.Name == "" || req.PhoneNumber == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "Поля name, phone_number и password обязательны")
		return
	}
	phone, err := utils.ValidatePhoneNumber(req.PhoneNumber)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := utils.ValidatePassword(req.Password); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, token, err := h.Engine.Signup(req.Name, phone, req.Password, req.ReferralCode)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Пользователь зарегистрирован",
		"token":   token,
		"user":    userView(user),
	})
}

// Login обрабатывает POST /login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PhoneNumber string `json:"phone_number"`
		Password    string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}
	if req.PhoneNumber == "" || req.Password == "" {
		writeJSONError(w, http.StatusBadRequest, "Поля phone_number и password обязательны")
		return
	}
	phone, err := utils.ValidatePhoneNumber(req.PhoneNumber)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, token, err := h.Engine.Login(phone, req.Password)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Вход выполнен",
		"token":   token,
		"user":    userWithPlanView(user),
	})
}

// --- Пользователи ---

// ListUsers обрабатывает GET /users.
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsersWithPlan()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	views := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		views = append(views, userWithPlanView(u))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": views})
}

// GetUser обрабатывает GET /user/{id}.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректный id пользователя")
		return
	}
	user, err := h.Store.GetUserWithPlan(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSONError(w, http.StatusNotFound, "Пользователь не найден")
			return
		}
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": userWithPlanView(user)})
}

// UpdateUserStatus обрабатывает PATCH /user/{id}/status. Переход в
// active запускает цепочку начислений расчетного движка.
// UpdateUserStatus handles PATCH /user/{id}/status. A transition to
// active triggers the settlement engine's accrual chain.
func (h *Handlers) UpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректный id пользователя")
		return
	}
	var req struct {
		Status *string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}
	var status sql.NullString
	if req.Status != nil {
		status = sql.NullString{String: *req.Status, Valid: true}
	}

	user, err := h.Engine.UpdateStatus(id, status)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Статус обновлен",
		"user":    userWithPlanView(user),
	})
}

// UpdateUserPlan обрабатывает PATCH /user/{id}/update-plan: тариф
// привязывается по plan_name.
// UpdateUserPlan handles PATCH /user/{id}/update-plan: the plan is
// looked up by plan_name.
func (h *Handlers) UpdateUserPlan(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректный id пользователя")
		return
	}
	var req struct {
		PlanName string `json:"plan_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanName == "" {
		writeJSONError(w, http.StatusBadRequest, "Поле plan_name обязательно")
		return
	}

	sub, err := h.Store.GetSubscriptionByName(req.PlanName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSONError(w, http.StatusNotFound, "Тариф не найден")
			return
		}
		writeEngineError(w, err)
		return
	}
	if err := h.Store.UpdateUserPlan(id, sub.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSONError(w, http.StatusNotFound, "Пользователь не найден")
			return
		}
		writeEngineError(w, err)
		return
	}

	user, err := h.Store.GetUserWithPlan(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Тариф обновлен",
		"user":    userWithPlanView(user),
	})
}

// ReferralQR обрабатывает GET /user/{id}/referral-qr: PNG с QR-кодом
// реферальной ссылки пользователя.
// ReferralQR handles GET /user/{id}/referral-qr: a PNG QR code of the
// user's referral link.
func (h *Handlers) ReferralQR(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректный id пользователя")
		return
	}
	user, err := h.Store.GetUserByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSONError(w, http.StatusNotFound, "Пользователь не найден")
			return
		}
		writeEngineError(w, err)
		return
	}

	png, err := utils.GenerateQRCode(h.Config.ReferralLinkBase, user.ReferralCode)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// GetUserBalance обрабатывает GET /user/{id}/balance: сумма и дневные
// строки начислений.
// GetUserBalance handles GET /user/{id}/balance: the total and the
// daily accrual rows.
func (h *Handlers) GetUserBalance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректный id пользователя")
		return
	}
	total, err := h.Store.GetTotalBalance(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	entries, err := h.Store.ListBalanceEntries(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":   total,
		"entries": entries,
	})
}

// GetUserPayments обрабатывает GET /user/{id}/payments: все запросы
// пользователя на выплату.
// GetUserPayments handles GET /user/{id}/payments: all of the user's
// payout requests.
func (h *Handlers) GetUserPayments(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректный id пользователя")
		return
	}
	payments, err := h.Store.ListPaymentsByUser(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.writePaymentList(w, "payments", payments)
}

// GetUserTransactions обрабатывает GET /user/{id}/transactions:
// завершенные выплаты пользователя.
// GetUserTransactions handles GET /user/{id}/transactions: the user's
// completed payouts.
func (h *Handlers) GetUserTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректный id пользователя")
		return
	}
	transactions, err := h.Store.ListTransactionsByUser(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transactions": transactions})
}

// --- Тарифы ---

// CreateSubscription обрабатывает POST /subscription.
func (h *Handlers) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlanName    string  `json:"plan_name"`
		Price       float64 `json:"price"`
		Description string  `json:"description"`
		DailyIncome float64 `json:"daily_income"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}
	if req.PlanName == "" || req.Price <= 0 || req.DailyIncome <= 0 {
		writeJSONError(w, http.StatusBadRequest, "Поля plan_name, price и daily_income обязательны и должны быть положительными")
		return
	}

	sub, err := h.Store.CreateSubscription(req.PlanName, req.Price, req.Description, req.DailyIncome)
	if err != nil {
		if errors.Is(err, db.ErrSubscriptionNameUsed) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":      "Тариф создан",
		"subscription": sub,
	})
}

// ListSubscriptions обрабатывает GET /subscriptions.
func (h *Handlers) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.Store.ListSubscriptions()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"subscriptions": subs})
}

// GetSubscription обрабатывает GET /subscription/{id}.
func (h *Handlers) GetSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректный id тарифа")
		return
	}
	sub, err := h.Store.GetSubscriptionByID(id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSONError(w, http.StatusNotFound, "Тариф не найден")
			return
		}
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"subscription": sub})
}

// UpdateSubscription обрабатывает PUT /subscription/{id}.
func (h *Handlers) UpdateSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректный id тарифа")
		return
	}
	var req struct {
		PlanName    string  `json:"plan_name"`
		Price       float64 `json:"price"`
		Description string  `json:"description"`
		DailyIncome float64 `json:"daily_income"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}
	if req.PlanName == "" || req.Price <= 0 || req.DailyIncome <= 0 {
		writeJSONError(w, http.StatusBadRequest, "Поля plan_name, price и daily_income обязательны и должны быть положительными")
		return
	}

	sub, err := h.Store.UpdateSubscription(id, req.PlanName, req.Price, req.Description, req.DailyIncome)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSONError(w, http.StatusNotFound, "Тариф не найден")
			return
		}
		if errors.Is(err, db.ErrSubscriptionNameUsed) {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":      "Тариф обновлен",
		"subscription": sub,
	})
}

// DeleteSubscription обрабатывает DELETE /subscription/{id}.
func (h *Handlers) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректный id тарифа")
		return
	}
	if err := h.Store.DeleteSubscription(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeJSONError(w, http.StatusNotFound, "Тариф не найден")
			return
		}
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Тариф удален"})
}

// --- Выплаты ---

// CreateTransaction обрабатывает POST /transaction: запрос на выплату.
// CreateTransaction handles POST /transaction: a payout request.
func (h *Handlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64   `json:"user_id"`
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}
	if req.UserID == 0 {
		// Без user_id в теле запрос относится к владельцу токена.
		// Without a user_id in the body the request is for the token's owner.
		if caller, ok := r.Context().Value(UserContextKey).(models.User); ok {
			req.UserID = caller.ID
		}
	}

	payment, err := h.Engine.RequestPayout(req.UserID, req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message": "Запрос на выплату создан",
		"payment": payment,
	})
}

// ApproveTransaction обрабатывает PATCH /transaction/approve/{id}.
func (h *Handlers) ApproveTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректный id запроса на выплату")
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Некорректное тело запроса")
		return
	}

	payment, err := h.Engine.DecidePayout(id, req.Status)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Решение применено",
		"payment": payment,
	})
}
