package settlement

import "errors"

// Ошибки расчетного движка. Обработчики API сопоставляют их с HTTP-кодами
// через errors.Is; внутрь движка коды статусов не просачиваются.
// Settlement engine errors. API handlers map them to HTTP codes with
// errors.Is; status codes never leak into the engine.
var (
	ErrInvalidReferralCode  = errors.New("реферальный код не найден")
	ErrUserExists           = errors.New("пользователь с таким номером телефона уже зарегистрирован")
	ErrInvalidCredentials   = errors.New("неверный номер телефона или пароль")
	ErrNotFound             = errors.New("запись не найдена")
	ErrNoSubscriptionPlan   = errors.New("у пользователя нет тарифного плана")
	ErrNoDailyIncome        = errors.New("у тарифа пользователя нет дневного дохода")
	ErrInvalidAmount        = errors.New("сумма выплаты должна быть положительной")
	ErrDuplicateRequest     = errors.New("запрос на выплату за сегодня уже создан")
	ErrAlreadySettledToday  = errors.New("у пользователя уже есть завершенная выплата за сегодня")
	ErrPaymentFinalized     = errors.New("запрос на выплату уже обработан")
	ErrInvalidStatus        = errors.New("недопустимое значение статуса")
	ErrInvalidDecision      = errors.New("решение должно быть approved или rejected")
	ErrSubscriptionNameUsed = errors.New("тариф с таким названием уже существует")
)
