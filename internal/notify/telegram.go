package notify

import (
	"fmt"
	"log"

	tgbotapi "github.com/OvyFlash/telegram-bot-api"

	"refpay/internal/constants"
	"refpay/internal/models"
)

// TelegramNotifier отправляет администратору уведомления о жизненном
// цикле выплат. Уведомления — побочный эффект: их сбой логируется и не
// влияет на результат операции.
// TelegramNotifier sends the admin payout lifecycle notifications.
// Notifications are a side effect: a failure is logged and never
// affects the operation's outcome.
type TelegramNotifier struct {
	api         *tgbotapi.BotAPI
	adminChatID int64
}

// NewTelegramNotifier инициализирует Telegram-бота. Возвращает nil без
// ошибки, если token или adminChatID не заданы: уведомления просто
// отключены.
// NewTelegramNotifier initializes the Telegram bot. Returns nil with
// no error when token or adminChatID are unset: notifications are
// simply disabled.
func NewTelegramNotifier(token string, adminChatID int64) (*TelegramNotifier, error) {
	if token == "" || adminChatID == 0 {
		return nil, nil
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации Telegram Bot API: %w", err)
	}
	log.Printf("Telegram-уведомления включены, бот %s", api.Self.UserName)
	return &TelegramNotifier{api: api, adminChatID: adminChatID}, nil
}

func (n *TelegramNotifier) send(text string) {
	msg := tgbotapi.NewMessage(n.adminChatID, text)
	if _, err := n.api.Send(msg); err != nil {
		log.Printf("Ошибка отправки Telegram-уведомления: %v", err)
	}
}

// PayoutRequested уведомляет администратора о новом запросе на выплату.
// PayoutRequested notifies the admin about a new payout request.
func (n *TelegramNotifier) PayoutRequested(payment models.PendingPayment, user models.User) {
	n.send(fmt.Sprintf(
		"Новый запрос на выплату #%d\nПользователь: %s (%s)\nСумма: %.2f",
		payment.ID, user.Name, user.PhoneNumber, payment.Amount))
}

// PayoutDecided уведомляет администратора о принятом решении.
// PayoutDecided notifies the admin about the decision taken.
func (n *TelegramNotifier) PayoutDecided(payment models.PendingPayment, decision string) {
	verdict := "отклонен"
	if decision == constants.DECISION_APPROVED {
		verdict = "одобрен"
	}
	n.send(fmt.Sprintf("Запрос на выплату #%d %s (сумма %.2f)", payment.ID, verdict, payment.Amount))
}
