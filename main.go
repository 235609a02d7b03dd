package main

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"refpay/internal/api"
	"refpay/internal/config"
	"refpay/internal/db"
	"refpay/internal/notify"
	"refpay/internal/settlement"
)

func main() {
	// .env опционален: в продакшене переменные приходят из окружения.
	// .env is optional: in production the variables come from the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("Файл .env не найден, используются переменные окружения.")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	store, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Ошибка подключения к базе данных: %v", err)
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		log.Fatalf("Ошибка инициализации схемы базы данных: %v", err)
	}

	notifier, err := notify.NewTelegramNotifier(cfg.TelegramToken, cfg.AdminChatID)
	if err != nil {
		log.Fatalf("Ошибка инициализации Telegram-уведомлений: %v", err)
	}

	engine := settlement.NewEngine(store, cfg, notifierOrNil(notifier))

	r := chi.NewRouter()

	// ГЛОБАЛЬНЫЕ MIDDLEWARES ДОЛЖНЫ ИДТИ ПЕРЕД api.SetupRoutes
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions()))

	api.SetupRoutes(r, &api.Handlers{
		Engine: engine,
		Store:  store,
		Config: cfg,
	})

	log.Printf("Сервер запущен на порту %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatalf("Ошибка HTTP-сервера: %v", err)
	}
}

// corsOptions описывает CORS-политику API. Список методов должен
// покрывать все методы, зарегистрированные в api.SetupRoutes, иначе
// браузерные клиенты не пройдут preflight.
// corsOptions describes the API's CORS policy. The method list must
// cover every method api.SetupRoutes registers, or browser clients
// fail the preflight.
func corsOptions() cors.Options {
	return cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// notifierOrNil превращает нулевой *TelegramNotifier в nil-интерфейс,
// чтобы движок видел отключенные уведомления как nil.
// notifierOrNil turns a nil *TelegramNotifier into a nil interface so
// the engine sees disabled notifications as nil.
func notifierOrNil(n *notify.TelegramNotifier) settlement.Notifier {
	if n == nil {
		return nil
	}
	return n
}
