package db

import (
	"database/sql"
	"fmt"
	"log"

	"refpay/internal/models"
)

const userColumns = `id, name, phone_number, password, status, role, subscription_id,
               referral_code, referred_by, pending_referral, active_referral, created_at, updated_at`

func scanUser(row *sql.Row) (models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.Name, &u.PhoneNumber, &u.Password, &u.Status, &u.Role, &u.SubscriptionID,
		&u.ReferralCode, &u.ReferredBy, &u.PendingReferral, &u.ActiveReferral, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// CreateUser создает пользователя и, если указан пригласивший,
// атомарно увеличивает его счетчик pending_referral в той же
// транзакции. Возвращает созданного пользователя.
// CreateUser inserts a user and, when a referrer is attached,
// atomically increments the referrer's pending_referral counter in the
// same transaction. Returns the created user.
func (s *Store) CreateUser(name, phoneNumber, passwordHash, role, referralCode string, referredBy sql.NullInt64) (models.User, error) {
	var u models.User

	tx, err := s.DB.Begin()
	if err != nil {
		log.Printf("CreateUser: ошибка начала транзакции: %v", err)
		return u, err
	}
	defer tx.Rollback()

	err = tx.QueryRow(`
        INSERT INTO users (name, phone_number, password, role, referral_code, referred_by, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
        RETURNING `+userColumns,
		name, phoneNumber, passwordHash, role, referralCode, referredBy).Scan(
		&u.ID, &u.Name, &u.PhoneNumber, &u.Password, &u.Status, &u.Role, &u.SubscriptionID,
		&u.ReferralCode, &u.ReferredBy, &u.PendingReferral, &u.ActiveReferral, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		err = mapUniqueViolation(err)
		if err != ErrUserExists {
			log.Printf("CreateUser: ошибка вставки пользователя %s: %v", phoneNumber, err)
		}
		return u, err
	}

	if referredBy.Valid {
		_, err = tx.Exec(`UPDATE users SET pending_referral = pending_referral + 1, updated_at=NOW() WHERE id=$1`, referredBy.Int64)
		if err != nil {
			log.Printf("CreateUser: ошибка увеличения pending_referral для пользователя %d: %v", referredBy.Int64, err)
			return u, err
		}
	}

	if err = tx.Commit(); err != nil {
		log.Printf("CreateUser: ошибка коммита транзакции: %v", err)
		return u, err
	}
	log.Printf("Зарегистрирован новый пользователь id=%d (phone=%s)", u.ID, u.PhoneNumber)
	return u, nil
}

// GetUserByID извлекает пользователя по id.
// Возвращает sql.ErrNoRows, если пользователь не найден.
// GetUserByID retrieves a user by id.
// Returns sql.ErrNoRows when the user does not exist.
func (s *Store) GetUserByID(id int64) (models.User, error) {
	u, err := scanUser(s.DB.QueryRow(`SELECT `+userColumns+` FROM users WHERE id=$1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return u, err
		}
		log.Printf("GetUserByID: ошибка получения пользователя %d: %v", id, err)
		return u, err
	}
	return u, nil
}

// GetUserByPhone извлекает пользователя по номеру телефона.
// GetUserByPhone retrieves a user by phone number.
func (s *Store) GetUserByPhone(phoneNumber string) (models.User, error) {
	u, err := scanUser(s.DB.QueryRow(`SELECT `+userColumns+` FROM users WHERE phone_number=$1`, phoneNumber))
	if err != nil {
		if err == sql.ErrNoRows {
			return u, err
		}
		log.Printf("GetUserByPhone: ошибка получения пользователя %s: %v", phoneNumber, err)
		return u, err
	}
	return u, nil
}

// GetUserByReferralCode ищет пригласившего по реферальному коду.
// GetUserByReferralCode resolves a referrer by referral code.
func (s *Store) GetUserByReferralCode(code string) (models.User, error) {
	u, err := scanUser(s.DB.QueryRow(`SELECT `+userColumns+` FROM users WHERE referral_code=$1`, code))
	if err != nil {
		if err == sql.ErrNoRows {
			return u, err
		}
		log.Printf("GetUserByReferralCode: ошибка поиска по коду %s: %v", code, err)
		return u, err
	}
	return u, nil
}

// UpdateUserStatus обновляет статус пользователя (NULL допустим).
// UpdateUserStatus updates the user's status (NULL is allowed).
func (s *Store) UpdateUserStatus(userID int64, status sql.NullString) error {
	res, err := s.DB.Exec(`UPDATE users SET status=$1, updated_at=NOW() WHERE id=$2`, status, userID)
	if err != nil {
		log.Printf("UpdateUserStatus: ошибка обновления статуса для пользователя %d: %v", userID, err)
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateUserPlan привязывает тариф к пользователю.
// UpdateUserPlan attaches a subscription plan to the user.
func (s *Store) UpdateUserPlan(userID, subscriptionID int64) error {
	res, err := s.DB.Exec(`UPDATE users SET subscription_id=$1, updated_at=NOW() WHERE id=$2`, subscriptionID, userID)
	if err != nil {
		log.Printf("UpdateUserPlan: ошибка привязки тарифа %d пользователю %d: %v", subscriptionID, userID, err)
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

const userWithPlanQuery = `
        SELECT u.id, u.name, u.phone_number, u.password, u.status, u.role, u.subscription_id,
               u.referral_code, u.referred_by, u.pending_referral, u.active_referral, u.created_at, u.updated_at,
               s.plan_name, s.price, s.description, s.daily_income
        FROM users u
        LEFT JOIN subscriptions s ON s.id = u.subscription_id`

func scanUserWithPlan(scan func(dest ...interface{}) error) (models.UserWithSubscription, error) {
	var u models.UserWithSubscription
	err := scan(
		&u.ID, &u.Name, &u.PhoneNumber, &u.Password, &u.Status, &u.Role, &u.SubscriptionID,
		&u.ReferralCode, &u.ReferredBy, &u.PendingReferral, &u.ActiveReferral, &u.CreatedAt, &u.UpdatedAt,
		&u.PlanName, &u.Price, &u.Description, &u.DailyIncome)
	return u, err
}

// GetUserWithPlan возвращает пользователя вместе с привязанным тарифом.
// GetUserWithPlan returns a user joined with their plan.
func (s *Store) GetUserWithPlan(userID int64) (models.UserWithSubscription, error) {
	row := s.DB.QueryRow(userWithPlanQuery+` WHERE u.id=$1`, userID)
	u, err := scanUserWithPlan(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return u, err
		}
		log.Printf("GetUserWithPlan: ошибка получения пользователя %d: %v", userID, err)
		return u, err
	}
	return u, nil
}

// ListUsersWithPlan возвращает всех пользователей с тарифами для
// административного списка.
// ListUsersWithPlan returns all users with plans for the admin list.
func (s *Store) ListUsersWithPlan() ([]models.UserWithSubscription, error) {
	rows, err := s.DB.Query(userWithPlanQuery + ` ORDER BY u.id`)
	if err != nil {
		log.Printf("ListUsersWithPlan: ошибка запроса пользователей: %v", err)
		return nil, err
	}
	defer rows.Close()

	var users []models.UserWithSubscription
	for rows.Next() {
		u, err := scanUserWithPlan(rows.Scan)
		if err != nil {
			log.Printf("ListUsersWithPlan: ошибка чтения строки: %v", err)
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по пользователям: %v", err)
	}
	return users, nil
}
