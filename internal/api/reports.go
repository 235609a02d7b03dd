// Файл: internal/api/reports.go
package api

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/xuri/excelize/v2"

	"refpay/internal/constants"
	"refpay/internal/models"
)

func paymentView(p models.PendingPayment) map[string]interface{} {
	view := map[string]interface{}{
		"id":           p.ID,
		"user_id":      p.UserID,
		"amount":       p.Amount,
		"status":       p.Status,
		"source":       p.Source,
		"request_date": p.RequestDate,
		"created_at":   p.CreatedAt,
	}
	if p.UserName.Valid {
		view["user_name"] = p.UserName.String
	}
	if p.PhoneNumber.Valid {
		view["phone_number"] = p.PhoneNumber.String
	}
	if p.ProcessedAt.Valid {
		view["processed_at"] = p.ProcessedAt.Time
	} else {
		view["processed_at"] = nil
	}
	return view
}

func (h *Handlers) writePaymentList(w http.ResponseWriter, key string, payments []models.PendingPayment) {
	views := make([]map[string]interface{}, 0, len(payments))
	for _, p := range payments {
		views = append(views, paymentView(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{key: views})
}

// ListPendingPayments обрабатывает GET /pending-payments.
func (h *Handlers) ListPendingPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Store.ListPaymentsByStatus(constants.PAYMENT_STATUS_PENDING)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.writePaymentList(w, "pending_payments", payments)
}

// ListCompletedPayments обрабатывает GET /completed-payments.
func (h *Handlers) ListCompletedPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Store.ListPaymentsByStatus(constants.PAYMENT_STATUS_COMPLETED)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.writePaymentList(w, "completed_payments", payments)
}

// AllBalances обрабатывает GET /all-balances: агрегированные балансы
// всех пользователей.
// AllBalances handles GET /all-balances: every user's aggregated
// balance.
func (h *Handlers) AllBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.Store.ListUserBalances()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"balances": balances})
}

// PaymentsReport обрабатывает GET /admin/reports/payments.xlsx: выгрузка
// всех запросов на выплату в Excel.
// PaymentsReport handles GET /admin/reports/payments.xlsx: an Excel
// export of every payout request.
func (h *Handlers) PaymentsReport(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Store.ListAllPayments()
	if err != nil {
		writeEngineError(w, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Выплаты"
	if _, err := f.NewSheet(sheetName); err != nil {
		writeEngineError(w, err)
		return
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		log.Printf("PaymentsReport: не удалось удалить лист по умолчанию: %v", err)
	}

	headers := []string{"ID", "Пользователь", "Телефон", "Сумма", "Статус", "Источник", "Дата запроса", "Дата решения"}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIdx, p := range payments {
		name := ""
		if p.UserName.Valid {
			name = p.UserName.String
		}
		phone := ""
		if p.PhoneNumber.Valid {
			phone = p.PhoneNumber.String
		}
		processed := ""
		if p.ProcessedAt.Valid {
			processed = p.ProcessedAt.Time.Format("02.01.2006 15:04")
		}
		values := []interface{}{
			p.ID, name, phone, p.Amount, p.Status, p.Source,
			p.RequestDate.Format("02.01.2006"), processed,
		}
		for colIdx, value := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err != nil {
				writeEngineError(w, err)
				return
			}
			f.SetCellValue(sheetName, cell, value)
		}
	}

	filename := fmt.Sprintf("payments_%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	if err := f.Write(w); err != nil {
		log.Printf("PaymentsReport: ошибка записи файла отчета: %v", err)
	}
}
