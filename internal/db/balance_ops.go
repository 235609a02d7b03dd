package db

import (
	"fmt"
	"log"

	"refpay/internal/models"
)

// UpsertDailyAccrual записывает начисление за текущую дату. Сумма за
// день перезаписывается, а не добавляется: дневная строка — единственный
// источник истины за дату, повторная активация в тот же день
// идемпотентна. Ограничение (user_id, entry_date) закрывает гонку двух
// конкурирующих активаций.
// UpsertDailyAccrual records today's accrual. The day's amount is
// overwritten, not added: the daily row is the single source of truth
// for its date, so re-activating on the same day is idempotent. The
// (user_id, entry_date) constraint closes the race between two
// concurrent activations.
func (s *Store) UpsertDailyAccrual(userID int64, amount float64) error {
	_, err := s.DB.Exec(`
        INSERT INTO balance (user_id, amount, entry_date, created_at)
        VALUES ($1, $2, CURRENT_DATE, NOW())
        ON CONFLICT (user_id, entry_date) DO UPDATE SET amount = EXCLUDED.amount`,
		userID, amount)
	if err != nil {
		log.Printf("UpsertDailyAccrual: ошибка начисления пользователю %d: %v", userID, err)
		return err
	}
	return nil
}

// GetTotalBalance возвращает сумму всех дневных строк пользователя.
// GetTotalBalance returns the sum of the user's daily rows.
func (s *Store) GetTotalBalance(userID int64) (float64, error) {
	var total float64
	err := s.DB.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM balance WHERE user_id=$1`, userID).Scan(&total)
	if err != nil {
		log.Printf("GetTotalBalance: ошибка подсчета баланса пользователя %d: %v", userID, err)
		return 0, err
	}
	return total, nil
}

// ListBalanceEntries возвращает дневные строки пользователя, новые
// первыми.
// ListBalanceEntries returns the user's daily rows, newest first.
func (s *Store) ListBalanceEntries(userID int64) ([]models.BalanceEntry, error) {
	rows, err := s.DB.Query(`
        SELECT id, user_id, amount, entry_date, created_at
        FROM balance WHERE user_id=$1 ORDER BY entry_date DESC`, userID)
	if err != nil {
		log.Printf("ListBalanceEntries: ошибка запроса начислений пользователя %d: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	var entries []models.BalanceEntry
	for rows.Next() {
		var e models.BalanceEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.EntryDate, &e.CreatedAt); err != nil {
			log.Printf("ListBalanceEntries: ошибка чтения строки: %v", err)
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по начислениям: %v", err)
	}
	return entries, nil
}

// ListUserBalances возвращает агрегированные балансы всех пользователей
// для административного отчета.
// ListUserBalances returns every user's aggregated balance for the
// admin report.
func (s *Store) ListUserBalances() ([]models.UserBalance, error) {
	rows, err := s.DB.Query(`
        SELECT u.id, u.name, u.phone_number, COALESCE(SUM(b.amount), 0) AS total
        FROM users u
        LEFT JOIN balance b ON b.user_id = u.id
        GROUP BY u.id, u.name, u.phone_number
        ORDER BY u.id`)
	if err != nil {
		log.Printf("ListUserBalances: ошибка запроса балансов: %v", err)
		return nil, err
	}
	defer rows.Close()

	var balances []models.UserBalance
	for rows.Next() {
		var b models.UserBalance
		if err := rows.Scan(&b.UserID, &b.Name, &b.PhoneNumber, &b.Total); err != nil {
			log.Printf("ListUserBalances: ошибка чтения строки: %v", err)
			return nil, err
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по балансам: %v", err)
	}
	return balances, nil
}
