package models

import "time"

// Subscription represents a subscription plan.
// Тарифный план подписки.
type Subscription struct {
	ID          int64     `json:"id"`
	PlanName    string    `json:"plan_name"`
	Price       float64   `json:"price"`        // Стоимость подписки / plan price
	Description string    `json:"description"`  // Описание тарифа / plan description
	DailyIncome float64   `json:"daily_income"` // Сумма ежедневного начисления / daily accrual amount
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
