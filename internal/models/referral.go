package models

import "time"

// UserReferral фиксирует однократное вознаграждение пригласившего:
// строка создается при первой активации приглашенного и служит
// защитой от повторного начисления.
// UserReferral records the one-time referrer reward: the row is
// created on the referee's first activation and guards against paying
// the reward twice.
type UserReferral struct {
	ID         int64     `json:"id"`
	ReferrerID int64     `json:"referrer_id"`
	ReferredID int64     `json:"referred_id"`
	CreatedAt  time.Time `json:"created_at"`
}
