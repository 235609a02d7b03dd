package models

import "time"

// BalanceEntry — одна строка ежедневного начисления. Баланс
// пользователя — это сумма всех его строк; строки никогда не
// обновляются задним числом, на (user_id, entry_date) действует
// уникальное ограничение.
// BalanceEntry is a single daily accrual row. A user's balance is the
// sum of their rows; rows are never rewritten retroactively and
// (user_id, entry_date) is unique.
type BalanceEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Amount    float64   `json:"amount"`
	EntryDate time.Time `json:"entry_date"`
	CreatedAt time.Time `json:"created_at"`
}

// UserBalance — агрегированный баланс пользователя для отчетов.
// UserBalance is a user's aggregated balance for reporting.
type UserBalance struct {
	UserID      int64   `json:"user_id"`
	Name        string  `json:"name"`
	PhoneNumber string  `json:"phone_number"`
	Total       float64 `json:"total"`
}
