package domain

import "time"

// PaymentStatus описывает состояние платежа по заказу.
type PaymentStatus string

const (
	// PaymentStatusPending: платёж ещё не подтверждён.
	PaymentStatusPending PaymentStatus = "PENDING"
	// PaymentStatusCompleted: деньги списаны.
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	// PaymentStatusFailed: провайдер отклонил платёж.
	PaymentStatusFailed PaymentStatus = "FAILED"
	// PaymentStatusRefunded: деньги возвращены покупателю.
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

// PaymentDetails: подсостояние оплаты внутри заказа.
type PaymentDetails struct {
	Method        string
	TransactionID string
	Status        PaymentStatus
	// PaidAt выставляется, когда статус становится COMPLETED.
	PaidAt *time.Time
}

// RefundPayment переводит завершённый платёж в REFUNDED, прочие статусы не трогает.
func (p PaymentDetails) RefundPayment() PaymentDetails {
	if p.Status == PaymentStatusCompleted {
		p.Status = PaymentStatusRefunded
	}
	return p
}
