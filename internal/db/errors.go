package db

import (
	"errors"

	"github.com/lib/pq"
)

// Ошибки уровня хранилища, возникающие из уникальных ограничений.
// Гонки конкурирующих запросов разрешаются именно здесь: проигравшая
// транзакция получает unique_violation, и слой хранилища переводит его
// в осмысленную ошибку.
// Store-level errors raised by unique constraints. Races between
// concurrent requests are resolved here: the losing transaction gets a
// unique_violation, which the store maps to a meaningful error.
var (
	ErrUserExists           = errors.New("пользователь с таким номером телефона уже существует")
	ErrDuplicateDailyEntry  = errors.New("начисление за эту дату уже существует")
	ErrDuplicateRequest     = errors.New("запрос на выплату за сегодня уже существует")
	ErrAlreadySettledToday  = errors.New("за сегодня уже есть завершенная транзакция")
	ErrReferralAlreadyPaid  = errors.New("вознаграждение за этого реферала уже начислено")
	ErrSubscriptionNameUsed = errors.New("тариф с таким названием уже существует")
)

// ErrPaymentFinalized возвращается при попытке решить судьбу запроса,
// который уже не в статусе pending: терминальные статусы окончательны.
// ErrPaymentFinalized is returned when deciding a request that is no
// longer pending: terminal statuses are final.
var ErrPaymentFinalized = errors.New("запрос на выплату уже обработан")

const pqUniqueViolation = "23505"

// mapUniqueViolation переводит pq unique_violation в доменную ошибку по
// имени нарушенного ограничения; прочие ошибки возвращает как есть.
// mapUniqueViolation translates a pq unique_violation into a domain
// error by the violated constraint's name; other errors pass through.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pqUniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case "users_phone_number_key":
		return ErrUserExists
	case "balance_user_id_entry_date_key":
		return ErrDuplicateDailyEntry
	case "uniq_pending_payments_user_request_date":
		return ErrDuplicateRequest
	case "uniq_transactions_user_completed_date":
		return ErrAlreadySettledToday
	case "user_referrals_referred_id_key":
		return ErrReferralAlreadyPaid
	case "subscriptions_plan_name_key":
		return ErrSubscriptionNameUsed
	}
	return err
}
