package models

import (
	"database/sql"
	"time"
)

// PendingPayment представляет запрос на выплату.
// PendingPayment represents a payout request.
type PendingPayment struct {
	ID          int64          `json:"id"`
	UserID      int64          `json:"user_id"`
	Amount      float64        `json:"amount"`
	Status      string         `json:"status"` // "pending", "completed", "rejected"
	Source      string         `json:"source"` // "user" — запрос пользователя, "referral" — системное начисление
	RequestDate time.Time      `json:"request_date"`
	ProcessedAt sql.NullTime   `json:"-"` // Дата решения администратора / admin decision timestamp
	CreatedAt   time.Time      `json:"created_at"`
	UserName    sql.NullString `json:"-"` // Заполняется в отчетных выборках / populated by report queries
	PhoneNumber sql.NullString `json:"-"`
}

// Transaction — завершенная выплата, создается только при одобрении
// запроса администратором и только внутри транзакции БД.
// Transaction is a completed payout. Rows are created only on admin
// approval, always inside a DB transaction.
type Transaction struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	Amount           float64   `json:"amount"`
	Status           string    `json:"status"` // всегда "completed" / always "completed"
	TransactionDate  time.Time `json:"transaction_date"`
	PendingPaymentID int64     `json:"pending_payment_id"`
	CreatedAt        time.Time `json:"created_at"`
}
