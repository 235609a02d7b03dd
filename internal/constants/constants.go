package constants

// User Roles
// Роли пользователей
const (
	ROLE_USER  = "user"
	ROLE_ADMIN = "admin"
)

// User Statuses
// Статусы пользователей (status может быть NULL в БД)
const (
	USER_STATUS_ACTIVE   = "active"
	USER_STATUS_INACTIVE = "inactive"
)

// Pending Payment Statuses
// Статусы запросов на выплату
const (
	PAYMENT_STATUS_PENDING   = "pending"
	PAYMENT_STATUS_COMPLETED = "completed"
	PAYMENT_STATUS_REJECTED  = "rejected"
)

// Pending Payment Sources
// Источник запроса на выплату: пользовательский запрос или системное
// начисление за активированного реферала.
// Source of a payout request: a user request or a system-generated
// seed for an activated referral. Only 'user' rows are subject to the
// one-request-per-day unique index.
const (
	PAYMENT_SOURCE_USER     = "user"
	PAYMENT_SOURCE_REFERRAL = "referral"
)

// Approval Decisions (PATCH /transaction/approve/:id)
// Решения администратора по запросу на выплату
const (
	DECISION_APPROVED = "approved"
	DECISION_REJECTED = "rejected"
)

// ReferralRewardMultiplier — коэффициент для расчета бонуса
// пригласившему: 2 × daily_income активированного реферала.
// ReferralRewardMultiplier — the referrer's seed payout equals
// 2 × the activated user's daily income.
const ReferralRewardMultiplier = 2.0
