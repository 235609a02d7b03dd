// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

// Config хранит все конфигурационные параметры приложения.
// Config stores all application configuration parameters.
type Config struct {
	DatabaseURL string
	JWTSecret   string
	AppEnv      string
	Port        string

	// ReferralLinkBase — базовый URL, на который ведет реферальная
	// ссылка (страница регистрации фронтенда).
	// ReferralLinkBase — base URL the referral link points to (the
	// frontend signup page).
	ReferralLinkBase string

	// ReferralSeedPayout управляет тем, создается ли pending-выплата
	// для пригласившего при первой активации реферала.
	// ReferralSeedPayout controls whether the referrer gets a pending
	// payout seeded on the referee's first activation.
	ReferralSeedPayout bool

	// Telegram-уведомления администратору (необязательно).
	// Admin Telegram notifications (optional).
	TelegramToken string
	AdminChatID   int64
}

// LoadConfig загружает конфигурацию из переменных окружения.
// LoadConfig loads the configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		AppEnv:           os.Getenv("ENV"),
		Port:             os.Getenv("PORT"),
		ReferralLinkBase: os.Getenv("REFERRAL_LINK_BASE"),
		TelegramToken:    os.Getenv("TELEGRAM_APITOKEN"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL не установлен")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET не установлен")
	}

	if cfg.Port == "" {
		cfg.Port = "3000"
	}
	if cfg.ReferralLinkBase == "" {
		log.Printf("Предупреждение: REFERRAL_LINK_BASE не установлен, используется http://localhost:%s/signup", cfg.Port)
		cfg.ReferralLinkBase = "http://localhost:" + cfg.Port + "/signup"
	}

	seedStr := os.Getenv("REFERRAL_SEED_PAYOUT")
	if seedStr == "" {
		cfg.ReferralSeedPayout = true
	} else {
		seed, err := strconv.ParseBool(seedStr)
		if err != nil {
			log.Printf("Предупреждение: некорректное значение REFERRAL_SEED_PAYOUT ('%s'): %v. Используется true.", seedStr, err)
			seed = true
		}
		cfg.ReferralSeedPayout = seed
	}

	if chatIDStr := os.Getenv("ADMIN_CHAT_ID"); chatIDStr != "" {
		chatID, err := strconv.ParseInt(chatIDStr, 10, 64)
		if err != nil {
			log.Printf("Предупреждение: не удалось прочитать ADMIN_CHAT_ID: %v. Уведомления отключены.", err)
		} else {
			cfg.AdminChatID = chatID
		}
	}
	if cfg.TelegramToken == "" || cfg.AdminChatID == 0 {
		log.Println("Предупреждение: TELEGRAM_APITOKEN/ADMIN_CHAT_ID не заданы, Telegram-уведомления администратору отключены.")
	}

	log.Println("Конфигурация загружена.")
	return cfg, nil
}
