package db

import (
	"database/sql"
	"fmt"
	"log"

	"refpay/internal/models"
)

const subscriptionColumns = `id, plan_name, price, description, daily_income, created_at, updated_at`

func scanSubscription(scan func(dest ...interface{}) error) (models.Subscription, error) {
	var sub models.Subscription
	var description sql.NullString
	err := scan(&sub.ID, &sub.PlanName, &sub.Price, &description, &sub.DailyIncome, &sub.CreatedAt, &sub.UpdatedAt)
	if description.Valid {
		sub.Description = description.String
	}
	return sub, err
}

// CreateSubscription создает тарифный план.
// CreateSubscription creates a subscription plan.
func (s *Store) CreateSubscription(planName string, price float64, description string, dailyIncome float64) (models.Subscription, error) {
	row := s.DB.QueryRow(`
        INSERT INTO subscriptions (plan_name, price, description, daily_income, created_at, updated_at)
        VALUES ($1, $2, $3, $4, NOW(), NOW())
        RETURNING `+subscriptionColumns,
		planName, price, description, dailyIncome)
	sub, err := scanSubscription(row.Scan)
	if err != nil {
		err = mapUniqueViolation(err)
		if err != ErrSubscriptionNameUsed {
			log.Printf("CreateSubscription: ошибка создания тарифа %s: %v", planName, err)
		}
		return sub, err
	}
	log.Printf("Создан тариф '%s' (id=%d)", sub.PlanName, sub.ID)
	return sub, nil
}

// GetSubscriptionByID извлекает тариф по id.
// GetSubscriptionByID retrieves a plan by id.
func (s *Store) GetSubscriptionByID(id int64) (models.Subscription, error) {
	row := s.DB.QueryRow(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id=$1`, id)
	sub, err := scanSubscription(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return sub, err
		}
		log.Printf("GetSubscriptionByID: ошибка получения тарифа %d: %v", id, err)
		return sub, err
	}
	return sub, nil
}

// GetSubscriptionByName извлекает тариф по названию. Привязка тарифа
// к пользователю идет по plan_name.
// GetSubscriptionByName retrieves a plan by name. Plan assignment to a
// user goes by plan_name.
func (s *Store) GetSubscriptionByName(planName string) (models.Subscription, error) {
	row := s.DB.QueryRow(`SELECT `+subscriptionColumns+` FROM subscriptions WHERE plan_name=$1`, planName)
	sub, err := scanSubscription(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return sub, err
		}
		log.Printf("GetSubscriptionByName: ошибка получения тарифа '%s': %v", planName, err)
		return sub, err
	}
	return sub, nil
}

// ListSubscriptions возвращает все тарифные планы.
// ListSubscriptions returns all subscription plans.
func (s *Store) ListSubscriptions() ([]models.Subscription, error) {
	rows, err := s.DB.Query(`SELECT ` + subscriptionColumns + ` FROM subscriptions ORDER BY price`)
	if err != nil {
		log.Printf("ListSubscriptions: ошибка запроса тарифов: %v", err)
		return nil, err
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows.Scan)
		if err != nil {
			log.Printf("ListSubscriptions: ошибка чтения строки: %v", err)
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации по тарифам: %v", err)
	}
	return subs, nil
}

// UpdateSubscription обновляет тарифный план.
// UpdateSubscription updates a subscription plan.
func (s *Store) UpdateSubscription(id int64, planName string, price float64, description string, dailyIncome float64) (models.Subscription, error) {
	row := s.DB.QueryRow(`
        UPDATE subscriptions
        SET plan_name=$1, price=$2, description=$3, daily_income=$4, updated_at=NOW()
        WHERE id=$5
        RETURNING `+subscriptionColumns,
		planName, price, description, dailyIncome, id)
	sub, err := scanSubscription(row.Scan)
	if err != nil {
		err = mapUniqueViolation(err)
		if err != sql.ErrNoRows && err != ErrSubscriptionNameUsed {
			log.Printf("UpdateSubscription: ошибка обновления тарифа %d: %v", id, err)
		}
		return sub, err
	}
	return sub, nil
}

// DeleteSubscription удаляет тарифный план.
// DeleteSubscription deletes a subscription plan.
func (s *Store) DeleteSubscription(id int64) error {
	res, err := s.DB.Exec(`DELETE FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		log.Printf("DeleteSubscription: ошибка удаления тарифа %d: %v", id, err)
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
