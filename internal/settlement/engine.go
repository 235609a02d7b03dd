package settlement

import (
	"database/sql"
	"errors"
	"log"

	"refpay/internal/auth"
	"refpay/internal/config"
	"refpay/internal/constants"
	"refpay/internal/db"
	"refpay/internal/models"
	"refpay/internal/utils"
)

// Notifier получает события жизненного цикла выплат (обычно Telegram-
// уведомления администратору). Nil-получатель допустим.
// Notifier receives payout lifecycle events (usually Telegram admin
// notifications). A nil notifier is allowed.
type Notifier interface {
	PayoutRequested(payment models.PendingPayment, user models.User)
	PayoutDecided(payment models.PendingPayment, decision string)
}

// Engine — расчетный движок: регистрация с реферальной привязкой,
// активация с ежедневным начислением и однократным реферальным
// вознаграждением, запрос и одобрение выплат. Хранилище внедряется при
// создании; движок не держит собственного состояния.
// Engine is the settlement engine: signup with referral attribution,
// activation with daily accrual and the one-time referral reward,
// payout request and approval. The store is injected at construction;
// the engine holds no state of its own.
type Engine struct {
	store    *db.Store
	cfg      *config.Config
	notifier Notifier
}

// NewEngine создает движок поверх хранилища.
// NewEngine builds an engine over the store.
func NewEngine(store *db.Store, cfg *config.Config, notifier Notifier) *Engine {
	return &Engine{store: store, cfg: cfg, notifier: notifier}
}

// translateStoreErr переводит ошибки хранилища в ошибки движка.
// translateStoreErr maps store errors to engine errors.
func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case errors.Is(err, db.ErrUserExists):
		return ErrUserExists
	case errors.Is(err, db.ErrDuplicateRequest):
		return ErrDuplicateRequest
	case errors.Is(err, db.ErrAlreadySettledToday):
		return ErrAlreadySettledToday
	case errors.Is(err, db.ErrPaymentFinalized):
		return ErrPaymentFinalized
	case errors.Is(err, db.ErrSubscriptionNameUsed):
		return ErrSubscriptionNameUsed
	}
	return err
}

// Signup регистрирует пользователя. Если передан реферальный код, он
// должен принадлежать существующему пользователю: referred_by
// проставляется при создании и больше никогда не меняется, а счетчик
// pending_referral пригласившего увеличивается в той же транзакции
// хранилища. При неверном коде пользователь не создается вовсе.
// Возвращает пользователя и токен доступа.
// Signup registers a user. A supplied referral code must belong to an
// existing user: referred_by is set at creation and never changes, and
// the referrer's pending_referral counter is incremented in the same
// store transaction. With an invalid code no user row is created at
// all. Returns the user and an access token.
func (e *Engine) Signup(name, phoneNumber, password, referralCode string) (models.User, string, error) {
	var referredBy sql.NullInt64
	if referralCode != "" {
		referrer, err := e.store.GetUserByReferralCode(referralCode)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.User{}, "", ErrInvalidReferralCode
			}
			return models.User{}, "", err
		}
		referredBy = sql.NullInt64{Int64: referrer.ID, Valid: true}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return models.User{}, "", err
	}

	user, err := e.store.CreateUser(name, phoneNumber, hash, constants.ROLE_USER, utils.GenerateReferralCode(), referredBy)
	if err != nil {
		return models.User{}, "", translateStoreErr(err)
	}

	token, err := auth.GenerateToken(e.cfg.JWTSecret, user.ID, user.Role)
	if err != nil {
		return models.User{}, "", err
	}
	return user, token, nil
}

// Login проверяет учетные данные и выпускает токен доступа.
// Login verifies credentials and issues an access token.
func (e *Engine) Login(phoneNumber, password string) (models.UserWithSubscription, string, error) {
	user, err := e.store.GetUserByPhone(phoneNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UserWithSubscription{}, "", ErrInvalidCredentials
		}
		return models.UserWithSubscription{}, "", err
	}
	if !auth.CheckPassword(user.Password, password) {
		return models.UserWithSubscription{}, "", ErrInvalidCredentials
	}

	snapshot, err := e.store.GetUserWithPlan(user.ID)
	if err != nil {
		return models.UserWithSubscription{}, "", translateStoreErr(err)
	}
	token, err := auth.GenerateToken(e.cfg.JWTSecret, user.ID, user.Role)
	if err != nil {
		return models.UserWithSubscription{}, "", err
	}
	return snapshot, token, nil
}

// UpdateStatus персистит новый статус пользователя и, при переходе в
// active, запускает цепочку начислений:
//  1. перезапись дневной строки баланса суммой daily_income тарифа;
//  2. однократное реферальное вознаграждение пригласившему, если оно
//     еще не начислялось: active_referral+1, запись user_referrals и
//     (при включенной политике) pending-выплата 2 × daily_income.
//
// Переход в active без тарифа отклоняется; если пригласившему
// причитается вознаграждение, а daily_income тарифа не положителен,
// активация отклоняется до любых записей. Повторная активация в тот же
// день идемпотентна: строка баланса одна, вознаграждение не
// дублируется.
// UpdateStatus persists the user's new status and, on a transition to
// active, runs the accrual chain:
//  1. overwrite today's balance row with the plan's daily_income;
//  2. the one-time referrer reward when not yet credited:
//     active_referral+1, the user_referrals record and (policy
//     permitting) a pending payout of 2 × daily_income.
//
// Activating without a plan is rejected; when the referrer reward is
// due and the plan's daily_income is not positive, the activation is
// rejected before any writes. Re-activating on the same day is
// idempotent: one balance row, no duplicate reward.
func (e *Engine) UpdateStatus(userID int64, status sql.NullString) (models.UserWithSubscription, error) {
	if status.Valid && status.String != constants.USER_STATUS_ACTIVE && status.String != constants.USER_STATUS_INACTIVE {
		return models.UserWithSubscription{}, ErrInvalidStatus
	}

	user, err := e.store.GetUserWithPlan(userID)
	if err != nil {
		return models.UserWithSubscription{}, translateStoreErr(err)
	}

	activating := status.Valid && status.String == constants.USER_STATUS_ACTIVE
	if activating && !user.SubscriptionID.Valid {
		return models.UserWithSubscription{}, ErrNoSubscriptionPlan
	}

	settling := activating && user.Price.Valid && user.Price.Float64 > 0
	dailyIncome := 0.0
	if user.DailyIncome.Valid {
		dailyIncome = user.DailyIncome.Float64
	}

	// Все проверки до первой записи: отклоненная активация не оставляет
	// за собой ни статуса, ни строки баланса.
	// Every guard runs before the first write: a rejected activation
	// leaves neither the status nor a balance row behind.
	rewardDue := false
	if settling && user.ReferredBy.Valid {
		credited, err := e.store.HasUserReferral(user.ID)
		if err != nil {
			return models.UserWithSubscription{}, err
		}
		if !credited {
			if dailyIncome <= 0 {
				return models.UserWithSubscription{}, ErrNoDailyIncome
			}
			rewardDue = true
		}
	}

	if err := e.store.UpdateUserStatus(userID, status); err != nil {
		return models.UserWithSubscription{}, translateStoreErr(err)
	}

	if settling {
		if err := e.store.UpsertDailyAccrual(user.ID, dailyIncome); err != nil {
			return models.UserWithSubscription{}, err
		}
		if rewardDue {
			if err := e.creditReferralReward(user, dailyIncome); err != nil {
				return models.UserWithSubscription{}, err
			}
		}
	}

	updated, err := e.store.GetUserWithPlan(userID)
	if err != nil {
		return models.UserWithSubscription{}, translateStoreErr(err)
	}
	return updated, nil
}

// creditReferralReward начисляет однократное вознаграждение
// пригласившему активированного пользователя.
// creditReferralReward credits the one-time reward to the activated
// user's referrer.
func (e *Engine) creditReferralReward(user models.UserWithSubscription, dailyIncome float64) error {
	seed := 0.0
	if e.cfg.ReferralSeedPayout {
		seed = constants.ReferralRewardMultiplier * dailyIncome
	}
	err := e.store.CreditReferral(user.ReferredBy.Int64, user.ID, seed)
	if err != nil {
		if errors.Is(err, db.ErrReferralAlreadyPaid) {
			// Конкурирующая активация успела первой; результат тот же.
			// A concurrent activation got there first; same outcome.
			return nil
		}
		return err
	}
	return nil
}

// RequestPayout создает запрос на выплату от имени пользователя. Не
// больше одного запроса в календарный день; лимит обеспечивается
// уникальным индексом хранилища, а не предварительной проверкой.
// RequestPayout creates a payout request on the user's behalf. At most
// one request per calendar day; the limit is enforced by the store's
// unique index, not a pre-check.
func (e *Engine) RequestPayout(userID int64, amount float64) (models.PendingPayment, error) {
	if amount <= 0 {
		return models.PendingPayment{}, ErrInvalidAmount
	}

	user, err := e.store.GetUserByID(userID)
	if err != nil {
		return models.PendingPayment{}, translateStoreErr(err)
	}

	payment, err := e.store.CreatePendingPayment(userID, amount)
	if err != nil {
		return models.PendingPayment{}, translateStoreErr(err)
	}

	if e.notifier != nil {
		e.notifier.PayoutRequested(payment, user)
	}
	return payment, nil
}

// DecidePayout применяет решение администратора к запросу на выплату.
// Отклонение только переводит запрос в rejected. Одобрение — атомарный
// блок хранилища: транзакция, перевод запроса в completed и списание с
// баланса записываются все вместе или не записываются вовсе; вторая
// завершенная выплата тому же пользователю в тот же день невозможна.
// DecidePayout applies the admin's decision to a payout request.
// Rejection only marks the request rejected. Approval is the store's
// atomic block: the transaction row, the completed request and the
// balance deduction land together or not at all; a second completed
// payout for the same user on the same day is impossible.
func (e *Engine) DecidePayout(paymentID int64, decision string) (models.PendingPayment, error) {
	switch decision {
	case constants.DECISION_APPROVED:
		if _, err := e.store.ApprovePendingPayment(paymentID); err != nil {
			return models.PendingPayment{}, translateStoreErr(err)
		}
	case constants.DECISION_REJECTED:
		if err := e.store.RejectPendingPayment(paymentID); err != nil {
			return models.PendingPayment{}, translateStoreErr(err)
		}
	default:
		return models.PendingPayment{}, ErrInvalidDecision
	}

	payment, err := e.store.GetPendingPaymentByID(paymentID)
	if err != nil {
		return models.PendingPayment{}, translateStoreErr(err)
	}
	if e.notifier != nil {
		e.notifier.PayoutDecided(payment, decision)
	}
	log.Printf("Решение по запросу на выплату %d: %s", paymentID, decision)
	return payment, nil
}
