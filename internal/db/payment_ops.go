package db

import (
	"database/sql"
	"fmt"
	"log"

	"refpay/internal/constants"
	"refpay/internal/models"
)

// CreatePendingPayment создает пользовательский запрос на выплату.
// Частичный уникальный индекс (user_id, request_date) WHERE
// source='user' гарантирует не больше одного запроса в день даже при
// конкурирующих вставках; проигравшая получает ErrDuplicateRequest.
// CreatePendingPayment creates a user payout request. The partial
// unique index on (user_id, request_date) WHERE source='user'
// guarantees at most one request per day even under concurrent
// inserts; the loser gets ErrDuplicateRequest.
func (s *Store) CreatePendingPayment(userID int64, amount float64) (models.PendingPayment, error) {
	var p models.PendingPayment
	err := s.DB.QueryRow(`
        INSERT INTO pending_payments (user_id, amount, status, source, request_date, created_at)
        VALUES ($1, $2, $3, $4, CURRENT_DATE, NOW())
        RETURNING id, user_id, amount, status, source, request_date, created_at`,
		userID, amount, constants.PAYMENT_STATUS_PENDING, constants.PAYMENT_SOURCE_USER).Scan(
		&p.ID, &p.UserID, &p.Amount, &p.Status, &p.Source, &p.RequestDate, &p.CreatedAt)
	if err != nil {
		err = mapUniqueViolation(err)
		if err != ErrDuplicateRequest {
			log.Printf("CreatePendingPayment: ошибка создания запроса пользователя %d: %v", userID, err)
		}
		return p, err
	}
	log.Printf("Создан запрос на выплату id=%d: пользователь %d, сумма %.2f", p.ID, p.UserID, p.Amount)
	return p, nil
}

// GetPendingPaymentByID извлекает запрос на выплату по id.
// GetPendingPaymentByID retrieves a payout request by id.
func (s *Store) GetPendingPaymentByID(id int64) (models.PendingPayment, error) {
	var p models.PendingPayment
	err := s.DB.QueryRow(`
        SELECT id, user_id, amount, status, source, request_date, processed_at, created_at
        FROM pending_payments WHERE id=$1`, id).Scan(
		&p.ID, &p.UserID, &p.Amount, &p.Status, &p.Source, &p.RequestDate, &p.ProcessedAt, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return p, err
		}
		log.Printf("GetPendingPaymentByID: ошибка получения запроса %d: %v", id, err)
		return p, err
	}
	return p, nil
}

// ApprovePendingPayment атомарно одобряет запрос: создает завершенную
// транзакцию, переводит запрос в completed и списывает сумму с баланса
// (upsert отрицательной строки за сегодня). Либо все три шага, либо ни
// один. Частичный уникальный индекс на transactions не дает одобрить
// две выплаты одному пользователю в один день: вторая вставка получает
// ErrAlreadySettledToday, и вся транзакция откатывается. Условие
// status='pending' в UPDATE закрывает гонку двух одобрений одного
// запроса.
// ApprovePendingPayment atomically approves a request: inserts the
// completed transaction, marks the request completed and deducts the
// amount from the balance (negative upsert into today's row). All
// three steps or none. The partial unique index on transactions blocks
// a second approved payout for the same user on the same day: the
// second insert gets ErrAlreadySettledToday and the whole transaction
// rolls back. The status='pending' guard in the UPDATE closes the race
// between two approvals of the same request.
func (s *Store) ApprovePendingPayment(paymentID int64) (models.Transaction, error) {
	var t models.Transaction

	tx, err := s.DB.Begin()
	if err != nil {
		log.Printf("ApprovePendingPayment: ошибка начала транзакции: %v", err)
		return t, err
	}
	defer tx.Rollback()

	var p models.PendingPayment
	err = tx.QueryRow(`
        SELECT id, user_id, amount, status FROM pending_payments WHERE id=$1 FOR UPDATE`, paymentID).Scan(
		&p.ID, &p.UserID, &p.Amount, &p.Status)
	if err != nil {
		if err == sql.ErrNoRows {
			return t, err
		}
		log.Printf("ApprovePendingPayment: ошибка чтения запроса %d: %v", paymentID, err)
		return t, err
	}
	if p.Status != constants.PAYMENT_STATUS_PENDING {
		return t, ErrPaymentFinalized
	}

	err = tx.QueryRow(`
        INSERT INTO transactions (user_id, amount, status, transaction_date, pending_payment_id, created_at)
        VALUES ($1, $2, $3, NOW(), $4, NOW())
        RETURNING id, user_id, amount, status, transaction_date, pending_payment_id, created_at`,
		p.UserID, p.Amount, constants.PAYMENT_STATUS_COMPLETED, p.ID).Scan(
		&t.ID, &t.UserID, &t.Amount, &t.Status, &t.TransactionDate, &t.PendingPaymentID, &t.CreatedAt)
	if err != nil {
		err = mapUniqueViolation(err)
		if err != ErrAlreadySettledToday {
			log.Printf("ApprovePendingPayment: ошибка создания транзакции для запроса %d: %v", paymentID, err)
		}
		return t, err
	}

	res, err := tx.Exec(`
        UPDATE pending_payments SET status=$1, processed_at=NOW()
        WHERE id=$2 AND status=$3`,
		constants.PAYMENT_STATUS_COMPLETED, p.ID, constants.PAYMENT_STATUS_PENDING)
	if err != nil {
		log.Printf("ApprovePendingPayment: ошибка обновления статуса запроса %d: %v", paymentID, err)
		return t, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return t, err
	}
	if rows == 0 {
		return t, ErrPaymentFinalized
	}

	// Списание ровно один раз: отрицательная строка за сегодня, сумма
	// всех строк уменьшается ровно на одобренную сумму.
	_, err = tx.Exec(`
        INSERT INTO balance (user_id, amount, entry_date, created_at)
        VALUES ($1, $2, CURRENT_DATE, NOW())
        ON CONFLICT (user_id, entry_date) DO UPDATE SET amount = balance.amount + EXCLUDED.amount`,
		p.UserID, -p.Amount)
	if err != nil {
		log.Printf("ApprovePendingPayment: ошибка списания с баланса пользователя %d: %v", p.UserID, err)
		return t, err
	}

	if err = tx.Commit(); err != nil {
		log.Printf("ApprovePendingPayment: ошибка коммита транзакции: %v", err)
		return t, err
	}
	log.Printf("Одобрен запрос на выплату %d: транзакция %d, пользователь %d, сумма %.2f", p.ID, t.ID, t.UserID, t.Amount)
	return t, nil
}

// RejectPendingPayment переводит запрос в rejected. Баланс не
// меняется. Запрос в терминальном статусе отклонить нельзя.
// RejectPendingPayment marks a request rejected. The balance is
// untouched. A finalized request cannot be rejected.
func (s *Store) RejectPendingPayment(paymentID int64) error {
	res, err := s.DB.Exec(`
        UPDATE pending_payments SET status=$1, processed_at=NOW()
        WHERE id=$2 AND status=$3`,
		constants.PAYMENT_STATUS_REJECTED, paymentID, constants.PAYMENT_STATUS_PENDING)
	if err != nil {
		log.Printf("RejectPendingPayment: ошибка отклонения запроса %d: %v", paymentID, err)
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		var exists bool
		if errCheck := s.DB.QueryRow(`SELECT EXISTS(SELECT 1 FROM pending_payments WHERE id=$1)`, paymentID).Scan(&exists); errCheck != nil {
			return errCheck
		}
		if !exists {
			return sql.ErrNoRows
		}
		return ErrPaymentFinalized
	}
	log.Printf("Отклонен запрос на выплату %d", paymentID)
	return nil
}

const pendingPaymentListQuery = `
        SELECT p.id, p.user_id, p.amount, p.status, p.source, p.request_date, p.processed_at, p.created_at,
               u.name, u.phone_number
        FROM pending_payments p
        JOIN users u ON u.id = p.user_id`

func (s *Store) queryPendingPayments(query string, args ...interface{}) ([]models.PendingPayment, error) {
	rows, err := s.DB.Query(query, args...)
	if err != nil {
		log.Printf("queryPendingPayments: ошибка запроса выплат: %v", err)
		return nil, err
	}
	defer rows.Close()

	var payments []models.PendingPayment
	for rows.Next() {
		var p models.PendingPayment
		if err := rows.Scan(
			&p.ID, &p.UserID, &p.Amount, &p.Status, &p.Source, &p.RequestDate, &p.ProcessedAt, &p.CreatedAt,
			&p.UserName, &p.PhoneNumber); err != nil {
			log.Printf("queryPendingPayments: ошибка чтения строки: %v", err)
			return nil, err
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по выплатам: %v", err)
	}
	return payments, nil
}

// ListPaymentsByStatus возвращает запросы в заданном статусе для
// административных списков.
// ListPaymentsByStatus returns requests in the given status for the
// admin lists.
func (s *Store) ListPaymentsByStatus(status string) ([]models.PendingPayment, error) {
	return s.queryPendingPayments(
		pendingPaymentListQuery+` WHERE p.status=$1 ORDER BY p.created_at`, status)
}

// ListPaymentsByUser возвращает все запросы пользователя, новые
// первыми.
// ListPaymentsByUser returns all of a user's requests, newest first.
func (s *Store) ListPaymentsByUser(userID int64) ([]models.PendingPayment, error) {
	return s.queryPendingPayments(
		pendingPaymentListQuery+` WHERE p.user_id=$1 ORDER BY p.created_at DESC`, userID)
}

// ListAllPayments возвращает все запросы на выплату для отчета.
// ListAllPayments returns every payout request for reporting.
func (s *Store) ListAllPayments() ([]models.PendingPayment, error) {
	return s.queryPendingPayments(pendingPaymentListQuery + ` ORDER BY p.created_at`)
}

// ListTransactionsByUser возвращает завершенные выплаты пользователя.
// ListTransactionsByUser returns the user's completed payouts.
func (s *Store) ListTransactionsByUser(userID int64) ([]models.Transaction, error) {
	rows, err := s.DB.Query(`
        SELECT id, user_id, amount, status, transaction_date, pending_payment_id, created_at
        FROM transactions WHERE user_id=$1 ORDER BY transaction_date DESC`, userID)
	if err != nil {
		log.Printf("ListTransactionsByUser: ошибка запроса транзакций пользователя %d: %v", userID, err)
		return nil, err
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		var t models.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Status, &t.TransactionDate, &t.PendingPaymentID, &t.CreatedAt); err != nil {
			log.Printf("ListTransactionsByUser: ошибка чтения строки: %v", err)
			return nil, err
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по транзакциям: %v", err)
	}
	return transactions, nil
}
