// Файл: internal/db/db.go
package db

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Store инкапсулирует подключение к базе данных. Все операции хранилища
// — методы Store; глобального состояния нет, движок и обработчики
// получают Store через внедрение зависимостей.
// Store wraps the database handle. All storage operations are Store
// methods; there is no global state — the engine and handlers receive
// the Store by injection.
type Store struct {
	DB *sql.DB
}

// NewStore оборачивает существующее подключение (используется в тестах
// с sqlmock).
// NewStore wraps an existing connection (used by sqlmock tests).
func NewStore(conn *sql.DB) *Store {
	return &Store{DB: conn}
}

// Open открывает соединение с базой данных и проверяет его.
// Open opens and verifies the database connection.
func Open(databaseURL string) (*Store, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к базе данных: %v", err)
	}

	conn.SetMaxOpenConns(50)
	conn.SetMaxIdleConns(20)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ошибка проверки соединения с базой данных: %v", err)
	}

	log.Println("Успешное подключение к базе данных.")
	return &Store{DB: conn}, nil
}

// Close закрывает подключение к базе данных.
// Close closes the database connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

// InitSchema создает таблицы, выполняет миграции и строит индексы.
// Идемпотентна: безопасно вызывать при каждом старте.
// InitSchema creates tables, runs migrations and builds indexes.
// Idempotent: safe to run on every start.
func (s *Store) InitSchema() (err error) {
	tx, err := s.DB.Begin()
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции для создания таблиц: %v", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			log.Printf("Откат транзакции из-за ошибки: %v", err)
			tx.Rollback()
		}
	}()

	createTablesSQL := `
        CREATE TABLE IF NOT EXISTS subscriptions (
            id SERIAL PRIMARY KEY,
            plan_name VARCHAR(100) UNIQUE NOT NULL,
            price FLOAT NOT NULL,
            description TEXT,
            daily_income FLOAT NOT NULL,
            created_at TIMESTAMP DEFAULT NOW(),
            updated_at TIMESTAMP DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            name VARCHAR(100) NOT NULL,
            phone_number VARCHAR(20) UNIQUE NOT NULL,
            password TEXT NOT NULL,
            status VARCHAR(20),
            role VARCHAR(20) NOT NULL DEFAULT 'user',
            subscription_id INTEGER REFERENCES subscriptions(id),
            referral_code VARCHAR(20) UNIQUE NOT NULL,
            referred_by INTEGER REFERENCES users(id),
            pending_referral INTEGER NOT NULL DEFAULT 0,
            active_referral INTEGER NOT NULL DEFAULT 0,
            created_at TIMESTAMP DEFAULT NOW(),
            updated_at TIMESTAMP DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS balance (
            id SERIAL PRIMARY KEY,
            user_id INTEGER NOT NULL REFERENCES users(id),
            amount FLOAT NOT NULL,
            entry_date DATE NOT NULL,
            created_at TIMESTAMP DEFAULT NOW(),
            CONSTRAINT balance_user_id_entry_date_key UNIQUE (user_id, entry_date)
        );
        CREATE TABLE IF NOT EXISTS pending_payments (
            id SERIAL PRIMARY KEY,
            user_id INTEGER NOT NULL REFERENCES users(id),
            amount FLOAT NOT NULL,
            status VARCHAR(20) NOT NULL DEFAULT 'pending',
            source VARCHAR(20) NOT NULL DEFAULT 'user',
            request_date DATE NOT NULL,
            processed_at TIMESTAMP,
            created_at TIMESTAMP DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS transactions (
            id SERIAL PRIMARY KEY,
            user_id INTEGER NOT NULL REFERENCES users(id),
            amount FLOAT NOT NULL,
            status VARCHAR(20) NOT NULL DEFAULT 'completed',
            transaction_date TIMESTAMP NOT NULL DEFAULT NOW(),
            pending_payment_id INTEGER NOT NULL REFERENCES pending_payments(id),
            created_at TIMESTAMP DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS user_referrals (
            id SERIAL PRIMARY KEY,
            referrer_id INTEGER NOT NULL REFERENCES users(id),
            referred_id INTEGER NOT NULL REFERENCES users(id),
            created_at TIMESTAMP DEFAULT NOW(),
            CONSTRAINT user_referrals_referred_id_key UNIQUE (referred_id)
        );
    `

	_, err = tx.Exec(createTablesSQL)
	if err != nil {
		return fmt.Errorf("ошибка создания таблиц: %v", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("ошибка коммита транзакции создания таблиц: %v", err)
	}
	log.Println("Создание таблиц (если не существуют) завершено.")

	err = s.migrateSchema()
	if err != nil {
		return fmt.Errorf("ошибка миграции схемы: %v", err)
	}

	// CREATE INDEX IF NOT EXISTS идемпотентен, транзакция не нужна.
	// Частичные уникальные индексы — защита от гонок: один запрос на
	// выплату в день (только source='user') и одна завершенная
	// транзакция в день на пользователя.
	createIndexesSQL := `
        CREATE INDEX IF NOT EXISTS idx_users_referral_code ON users(referral_code);
        CREATE INDEX IF NOT EXISTS idx_users_referred_by ON users(referred_by);
        CREATE INDEX IF NOT EXISTS idx_balance_user_id ON balance(user_id);
        CREATE INDEX IF NOT EXISTS idx_pending_payments_user_id ON pending_payments(user_id);
        CREATE INDEX IF NOT EXISTS idx_pending_payments_status ON pending_payments(status);
        CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id);
        CREATE INDEX IF NOT EXISTS idx_user_referrals_referrer_id ON user_referrals(referrer_id);
        CREATE UNIQUE INDEX IF NOT EXISTS uniq_pending_payments_user_request_date
            ON pending_payments(user_id, request_date) WHERE source = 'user';
        CREATE UNIQUE INDEX IF NOT EXISTS uniq_transactions_user_completed_date
            ON transactions(user_id, (transaction_date::date)) WHERE status = 'completed';
    `
	_, err = s.DB.Exec(createIndexesSQL)
	if err != nil {
		return fmt.Errorf("ошибка создания индексов: %v", err)
	}
	log.Println("Создание индексов (если не существуют) завершено.")

	log.Println("Инициализация базы данных успешно завершена.")
	return nil
}

// migrateSchema выполняет необходимые миграции схемы базы данных.
// This function should be idempotent.
func (s *Store) migrateSchema() error {
	migrations := []struct {
		name string
		sql  string
	}{
		{
			name: "users.referral_counters",
			sql: `ALTER TABLE users
                  ADD COLUMN IF NOT EXISTS pending_referral INTEGER NOT NULL DEFAULT 0,
                  ADD COLUMN IF NOT EXISTS active_referral INTEGER NOT NULL DEFAULT 0;`,
		},
		{
			name: "pending_payments.source",
			sql: `ALTER TABLE pending_payments
                  ADD COLUMN IF NOT EXISTS source VARCHAR(20) NOT NULL DEFAULT 'user';`,
		},
		{
			name: "pending_payments.processed_at",
			sql: `ALTER TABLE pending_payments
                  ADD COLUMN IF NOT EXISTS processed_at TIMESTAMP;`,
		},
		{
			name: "balance.user_date_unique",
			sql: `DO $$
                  BEGIN
                      IF NOT EXISTS (
                          SELECT 1 FROM pg_constraint
                          WHERE conrelid = 'balance'::regclass
                          AND conname = 'balance_user_id_entry_date_key'
                      ) THEN
                          ALTER TABLE balance ADD CONSTRAINT balance_user_id_entry_date_key UNIQUE (user_id, entry_date);
                      END IF;
                  END$$;`,
		},
		{
			name: "user_referrals.referred_id_unique",
			sql: `DO $$
                  BEGIN
                      IF NOT EXISTS (
                          SELECT 1 FROM pg_constraint
                          WHERE conrelid = 'user_referrals'::regclass
                          AND conname = 'user_referrals_referred_id_key'
                      ) THEN
                          ALTER TABLE user_referrals ADD CONSTRAINT user_referrals_referred_id_key UNIQUE (referred_id);
                      END IF;
                  END$$;`,
		},
	}

	for _, migration := range migrations {
		_, err := s.DB.Exec(migration.sql)
		if err != nil {
			if strings.Contains(err.Error(), "already exists") {
				log.Printf("INFO: Миграция '%s' пропущена (объект уже существует). Детали: %v", migration.name, err)
			} else {
				return fmt.Errorf("ошибка миграции схемы ('%s'): %v", migration.name, err)
			}
		}
	}
	log.Println("Миграции схемы выполнены.")
	return nil
}
