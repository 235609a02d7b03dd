package settlement

import (
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"refpay/internal/config"
	"refpay/internal/constants"
	"refpay/internal/db"
)

func newTestEngine(t *testing.T) (*Engine, sqlmock.Sqlmock, func()) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	cfg := &config.Config{JWTSecret: "test-secret", ReferralSeedPayout: true}
	engine := NewEngine(db.NewStore(conn), cfg, nil)
	return engine, mock, func() { conn.Close() }
}

var userColumns = []string{
	"id", "name", "phone_number", "password", "status", "role", "subscription_id",
	"referral_code", "referred_by", "pending_referral", "active_referral", "created_at", "updated_at",
}

var userWithPlanColumns = append(append([]string{}, userColumns...),
	"plan_name", "price", "description", "daily_income")

func userRow(id int64, referredBy interface{}) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userColumns).AddRow(
		id, "Тест", "+79990000001", "hash", nil, constants.ROLE_USER, nil,
		"abcdef123456", referredBy, 0, 0, now, now)
}

func TestSignupWithReferralAttribution(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE referral_code=$1`)).
		WithArgs("refcode12345").
		WillReturnRows(userRow(7, nil))

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow(
			42, "Новый", "+79990000002", "hash", nil, constants.ROLE_USER, nil,
			"fedcba654321", 7, 0, 0, now, now))
	mock.ExpectExec(regexp.QuoteMeta(`SET pending_referral = pending_referral + 1`)).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, token, err := engine.Signup("Новый", "+79990000002", "secret-pass", "refcode12345")
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if !user.ReferredBy.Valid || user.ReferredBy.Int64 != 7 {
		t.Fatalf("ожидался referred_by=7, получено %+v", user.ReferredBy)
	}
	if token == "" {
		t.Fatal("ожидался непустой токен")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func TestSignupInvalidReferralCode(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE referral_code=$1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, _, err := engine.Signup("Имя", "+79990000003", "secret-pass", "missing")
	if !errors.Is(err, ErrInvalidReferralCode) {
		t.Fatalf("ожидалась ErrInvalidReferralCode, получено %v", err)
	}
	// Пользователь не создается вовсе: вставки не ожидались.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func TestSignupDuplicatePhone(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO users`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "users_phone_number_key"})
	mock.ExpectRollback()

	_, _, err := engine.Signup("Имя", "+79990000004", "secret-pass", "")
	if !errors.Is(err, ErrUserExists) {
		t.Fatalf("ожидалась ErrUserExists, получено %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func userWithPlanRow(subscriptionID, referredBy interface{}, price, dailyIncome interface{}) *sqlmock.Rows {
	now := time.Now()
	var planName interface{}
	if subscriptionID != nil {
		planName = "Базовый"
	}
	return sqlmock.NewRows(userWithPlanColumns).AddRow(
		5, "Тест", "+79990000005", "hash", nil, constants.ROLE_USER, subscriptionID,
		"abcdef123456", referredBy, 0, 0, now, now,
		planName, price, nil, dailyIncome)
}

func TestActivateWithoutPlanFails(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN subscriptions`)).
		WithArgs(int64(5)).
		WillReturnRows(userWithPlanRow(nil, nil, nil, nil))

	_, err := engine.UpdateStatus(5, sql.NullString{String: constants.USER_STATUS_ACTIVE, Valid: true})
	if !errors.Is(err, ErrNoSubscriptionPlan) {
		t.Fatalf("ожидалась ErrNoSubscriptionPlan, получено %v", err)
	}
	// Статус, баланс и рефералы не тронуты.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func TestActivationAccruesAndSeedsReferralReward(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	// Пользователь 5 приглашен пользователем 7, тариф с daily_income=10.
	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN subscriptions`)).
		WithArgs(int64(5)).
		WillReturnRows(userWithPlanRow(3, 7, 100.0, 10.0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM user_referrals WHERE referred_id=$1`)).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET status=$1`)).
		WithArgs(sql.NullString{String: constants.USER_STATUS_ACTIVE, Valid: true}, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO balance`)).
		WithArgs(int64(5), 10.0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO user_referrals`)).
		WithArgs(int64(7), int64(5)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`SET active_referral = active_referral + 1`)).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO pending_payments`)).
		WithArgs(int64(7), 20.0, constants.PAYMENT_STATUS_PENDING, constants.PAYMENT_SOURCE_REFERRAL).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN subscriptions`)).
		WithArgs(int64(5)).
		WillReturnRows(userWithPlanRow(3, 7, 100.0, 10.0))

	_, err := engine.UpdateStatus(5, sql.NullString{String: constants.USER_STATUS_ACTIVE, Valid: true})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func TestSecondActivationSkipsReferralReward(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN subscriptions`)).
		WithArgs(int64(5)).
		WillReturnRows(userWithPlanRow(3, 7, 100.0, 10.0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM user_referrals WHERE referred_id=$1`)).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET status=$1`)).
		WithArgs(sql.NullString{String: constants.USER_STATUS_ACTIVE, Valid: true}, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO balance`)).
		WithArgs(int64(5), 10.0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN subscriptions`)).
		WithArgs(int64(5)).
		WillReturnRows(userWithPlanRow(3, 7, 100.0, 10.0))

	// Вознаграждение уже начислено: повторная активация — тихий успех.
	_, err := engine.UpdateStatus(5, sql.NullString{String: constants.USER_STATUS_ACTIVE, Valid: true})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func TestActivationNoDailyIncomeFails(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	// Пользователь 5 приглашен пользователем 7, тариф платный, но без
	// дневного дохода: вознаграждение пригласившему вычислить нельзя.
	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN subscriptions`)).
		WithArgs(int64(5)).
		WillReturnRows(userWithPlanRow(3, 7, 100.0, 0.0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM user_referrals WHERE referred_id=$1`)).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err := engine.UpdateStatus(5, sql.NullString{String: constants.USER_STATUS_ACTIVE, Valid: true})
	if !errors.Is(err, ErrNoDailyIncome) {
		t.Fatalf("ожидалась ErrNoDailyIncome, получено %v", err)
	}
	// Ни статус, ни баланс, ни рефералы не записаны.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	for _, status := range []string{"frozen", "ACTIVE", "deleted"} {
		_, err := engine.UpdateStatus(5, sql.NullString{String: status, Valid: true})
		if !errors.Is(err, ErrInvalidStatus) {
			t.Fatalf("статус %q: ожидалась ErrInvalidStatus, получено %v", status, err)
		}
	}
	// Проверка идет до обращения к хранилищу.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func TestDeactivationSkipsAccrual(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN subscriptions`)).
		WithArgs(int64(5)).
		WillReturnRows(userWithPlanRow(3, 7, 100.0, 10.0))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE users SET status=$1`)).
		WithArgs(sql.NullString{String: constants.USER_STATUS_INACTIVE, Valid: true}, int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`LEFT JOIN subscriptions`)).
		WithArgs(int64(5)).
		WillReturnRows(userWithPlanRow(3, 7, 100.0, 10.0))

	_, err := engine.UpdateStatus(5, sql.NullString{String: constants.USER_STATUS_INACTIVE, Valid: true})
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func TestRequestPayoutRejectsNonPositiveAmount(t *testing.T) {
	engine, _, closeFn := newTestEngine(t)
	defer closeFn()

	for _, amount := range []float64{0, -5} {
		if _, err := engine.RequestPayout(5, amount); !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("сумма %.2f: ожидалась ErrInvalidAmount, получено %v", amount, err)
		}
	}
}

func TestRequestPayoutDuplicateDaily(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM users WHERE id=$1`)).
		WithArgs(int64(5)).
		WillReturnRows(userRow(5, nil))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO pending_payments`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uniq_pending_payments_user_request_date"})

	_, err := engine.RequestPayout(5, 50)
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("ожидалась ErrDuplicateRequest, получено %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func pendingPaymentDetailRows() *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "user_id", "amount", "status", "source", "request_date", "processed_at", "created_at",
	}).AddRow(11, 7, 20.0, constants.PAYMENT_STATUS_COMPLETED, constants.PAYMENT_SOURCE_REFERRAL, now, now, now)
}

func TestApprovePayoutAtomicBlock(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM pending_payments WHERE id=$1 FOR UPDATE`)).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "status"}).
			AddRow(11, 7, 20.0, constants.PAYMENT_STATUS_PENDING))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO transactions`)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "amount", "status", "transaction_date", "pending_payment_id", "created_at",
		}).AddRow(3, 7, 20.0, constants.PAYMENT_STATUS_COMPLETED, now, 11, now))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE pending_payments SET status=$1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO balance`)).
		WithArgs(int64(7), -20.0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM pending_payments WHERE id=$1`)).
		WithArgs(int64(11)).
		WillReturnRows(pendingPaymentDetailRows())

	payment, err := engine.DecidePayout(11, constants.DECISION_APPROVED)
	if err != nil {
		t.Fatalf("DecidePayout: %v", err)
	}
	if payment.Status != constants.PAYMENT_STATUS_COMPLETED {
		t.Fatalf("ожидался статус completed, получен %s", payment.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func TestApproveRollsBackWhenAlreadySettledToday(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM pending_payments WHERE id=$1 FOR UPDATE`)).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "status"}).
			AddRow(11, 7, 20.0, constants.PAYMENT_STATUS_PENDING))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO transactions`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uniq_transactions_user_completed_date"})
	mock.ExpectRollback()

	_, err := engine.DecidePayout(11, constants.DECISION_APPROVED)
	if !errors.Is(err, ErrAlreadySettledToday) {
		t.Fatalf("ожидалась ErrAlreadySettledToday, получено %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func TestApproveRollsBackOnDeductionFailure(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM pending_payments WHERE id=$1 FOR UPDATE`)).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "status"}).
			AddRow(11, 7, 20.0, constants.PAYMENT_STATUS_PENDING))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO transactions`)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "amount", "status", "transaction_date", "pending_payment_id", "created_at",
		}).AddRow(3, 7, 20.0, constants.PAYMENT_STATUS_COMPLETED, now, 11, now))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE pending_payments SET status=$1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO balance`)).
		WillReturnError(errors.New("диск переполнен"))
	mock.ExpectRollback()

	_, err := engine.DecidePayout(11, constants.DECISION_APPROVED)
	if err == nil {
		t.Fatal("ожидалась ошибка при сбое списания")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func TestApproveNotFound(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM pending_payments WHERE id=$1 FOR UPDATE`)).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := engine.DecidePayout(99, constants.DECISION_APPROVED)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получено %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func TestApproveFinalizedPayment(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM pending_payments WHERE id=$1 FOR UPDATE`)).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "amount", "status"}).
			AddRow(11, 7, 20.0, constants.PAYMENT_STATUS_REJECTED))
	mock.ExpectRollback()

	_, err := engine.DecidePayout(11, constants.DECISION_APPROVED)
	if !errors.Is(err, ErrPaymentFinalized) {
		t.Fatalf("ожидалась ErrPaymentFinalized, получено %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func TestRejectPayout(t *testing.T) {
	engine, mock, closeFn := newTestEngine(t)
	defer closeFn()

	now := time.Now()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE pending_payments SET status=$1`)).
		WithArgs(constants.PAYMENT_STATUS_REJECTED, int64(11), constants.PAYMENT_STATUS_PENDING).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM pending_payments WHERE id=$1`)).
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "amount", "status", "source", "request_date", "processed_at", "created_at",
		}).AddRow(11, 7, 20.0, constants.PAYMENT_STATUS_REJECTED, constants.PAYMENT_SOURCE_USER, now, now, now))

	payment, err := engine.DecidePayout(11, constants.DECISION_REJECTED)
	if err != nil {
		t.Fatalf("DecidePayout: %v", err)
	}
	if payment.Status != constants.PAYMENT_STATUS_REJECTED {
		t.Fatalf("ожидался статус rejected, получен %s", payment.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("невыполненные ожидания: %v", err)
	}
}

func TestDecidePayoutInvalidDecision(t *testing.T) {
	engine, _, closeFn := newTestEngine(t)
	defer closeFn()

	if _, err := engine.DecidePayout(11, "maybe"); !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("ожидалась ErrInvalidDecision, получено %v", err)
	}
}
