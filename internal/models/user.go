package models

import (
	"database/sql"
	"time"
)

// User represents a user in the system.
// Пользователь системы. referred_by заполняется один раз при
// регистрации и никогда не меняется.
type User struct {
	ID              int64          `json:"id"`
	Name            string         `json:"name"`
	PhoneNumber     string         `json:"phone_number"`
	Password        string         `json:"-"` // bcrypt-хеш, наружу не отдается / bcrypt hash, never serialized
	Status          sql.NullString `json:"-"`
	Role            string         `json:"role"`
	SubscriptionID  sql.NullInt64  `json:"-"`
	ReferralCode    string         `json:"referral_code"`
	ReferredBy      sql.NullInt64  `json:"-"`
	PendingReferral int            `json:"pending_referral"`
	ActiveReferral  int            `json:"active_referral"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// StatusOrNil возвращает статус пользователя для JSON-ответов
// (nil, если статус не установлен).
// StatusOrNil returns the user's status for JSON responses
// (nil when unset).
func (u User) StatusOrNil() interface{} {
	if u.Status.Valid {
		return u.Status.String
	}
	return nil
}

// ReferredByOrNil возвращает id пригласившего или nil.
// ReferredByOrNil returns the referrer's id or nil.
func (u User) ReferredByOrNil() interface{} {
	if u.ReferredBy.Valid {
		return u.ReferredBy.Int64
	}
	return nil
}

// UserWithSubscription — пользователь вместе с привязанным тарифом
// (LEFT JOIN subscriptions), как отдают /users и /user/:id.
// UserWithSubscription is a user joined with their plan, as returned
// by /users and /user/:id.
type UserWithSubscription struct {
	User
	PlanName    sql.NullString  `json:"-"`
	Price       sql.NullFloat64 `json:"-"`
	Description sql.NullString  `json:"-"`
	DailyIncome sql.NullFloat64 `json:"-"`
}

// SubscriptionView собирает вложенный объект subscription для ответа API.
// SubscriptionView builds the nested subscription object for API responses.
func (u UserWithSubscription) SubscriptionView() map[string]interface{} {
	view := map[string]interface{}{
		"plan_name":    nil,
		"price":        nil,
		"description":  nil,
		"daily_income": nil,
	}
	if u.PlanName.Valid {
		view["plan_name"] = u.PlanName.String
	}
	if u.Price.Valid {
		view["price"] = u.Price.Float64
	}
	if u.Description.Valid {
		view["description"] = u.Description.String
	}
	if u.DailyIncome.Valid {
		view["daily_income"] = u.DailyIncome.Float64
	}
	return view
}
