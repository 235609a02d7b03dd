package db

import (
	"log"

	"refpay/internal/constants"
)

// HasUserReferral сообщает, было ли уже начислено вознаграждение за
// этого приглашенного.
// HasUserReferral reports whether the reward for this referred user
// has already been credited.
func (s *Store) HasUserReferral(referredID int64) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(`SELECT EXISTS(SELECT 1 FROM user_referrals WHERE referred_id=$1)`, referredID).Scan(&exists)
	if err != nil {
		log.Printf("HasUserReferral: ошибка проверки для приглашенного %d: %v", referredID, err)
		return false, err
	}
	return exists, nil
}

// CreditReferral атомарно начисляет однократное вознаграждение
// пригласившему: увеличивает active_referral, создает запись
// user_referrals и, если seedAmount > 0, создает pending-выплату с
// source='referral' (такая строка не подпадает под лимит "один запрос
// в день"). Либо выполняются все три шага, либо ни один. При гонке
// двух активаций проигравшая транзакция получает unique_violation по
// user_referrals.referred_id и возвращает ErrReferralAlreadyPaid.
// CreditReferral atomically credits the one-time referrer reward:
// increments active_referral, inserts the user_referrals record and,
// when seedAmount > 0, seeds a pending payout with source='referral'
// (exempt from the one-request-per-day limit). All three steps happen
// or none. When two activations race, the losing transaction hits the
// unique_violation on user_referrals.referred_id and returns
// ErrReferralAlreadyPaid.
func (s *Store) CreditReferral(referrerID, referredID int64, seedAmount float64) error {
	tx, err := s.DB.Begin()
	if err != nil {
		log.Printf("CreditReferral: ошибка начала транзакции: %v", err)
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
        INSERT INTO user_referrals (referrer_id, referred_id, created_at)
        VALUES ($1, $2, NOW())`, referrerID, referredID)
	if err != nil {
		err = mapUniqueViolation(err)
		if err != ErrReferralAlreadyPaid {
			log.Printf("CreditReferral: ошибка записи вознаграждения %d->%d: %v", referrerID, referredID, err)
		}
		return err
	}

	_, err = tx.Exec(`UPDATE users SET active_referral = active_referral + 1, updated_at=NOW() WHERE id=$1`, referrerID)
	if err != nil {
		log.Printf("CreditReferral: ошибка увеличения active_referral для пользователя %d: %v", referrerID, err)
		return err
	}

	if seedAmount > 0 {
		_, err = tx.Exec(`
            INSERT INTO pending_payments (user_id, amount, status, source, request_date, created_at)
            VALUES ($1, $2, $3, $4, CURRENT_DATE, NOW())`,
			referrerID, seedAmount, constants.PAYMENT_STATUS_PENDING, constants.PAYMENT_SOURCE_REFERRAL)
		if err != nil {
			log.Printf("CreditReferral: ошибка создания реферальной выплаты для пользователя %d: %v", referrerID, err)
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		log.Printf("CreditReferral: ошибка коммита транзакции: %v", err)
		return err
	}
	log.Printf("Начислено реферальное вознаграждение: пригласивший %d, приглашенный %d, сумма %.2f", referrerID, referredID, seedAmount)
	return nil
}
