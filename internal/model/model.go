// Package model содержит доменные сущности сервиса выставления счетов.
package model

import "time"

// User представляет зарегистрированного пользователя.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"-"`
}

// Session описывает открытую сессию пользователя.
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
}

// InvoiceStatus описывает статус оплаты счёта.
type InvoiceStatus string

const (
	InvoiceStatusPaid   InvoiceStatus = "Paid"
	InvoiceStatusUnpaid InvoiceStatus = "Unpaid"
)

// Valid сообщает, является ли статус одним из допустимых значений.
func (s InvoiceStatus) Valid() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusUnpaid
}

// Invoice описывает счёт, выставленный клиенту.
// VATAmount и Total всегда вычисляются из Amount и VAT.
type Invoice struct {
	ID          string        `json:"id"`
	ClientName  string        `json:"clientName"`
	ClientEmail string        `json:"clientEmail"`
	Amount      float64       `json:"amount"`
	VAT         float64       `json:"vat"`
	VATAmount   float64       `json:"vatAmount"`
	Total       float64       `json:"total"`
	DueDate     time.Time     `json:"-"`
	Status      InvoiceStatus `json:"status"`
	OwnerID     string        `json:"ownerId"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Stats содержит сводные показатели по набору счетов.
type Stats struct {
	TotalInvoice   float64 `json:"totalInvoice"`
	AmountPaid     float64 `json:"amountPaid"`
	PendingPayment float64 `json:"pendingPayment"`
	TotalVAT       float64 `json:"totalVAT"`
	InvoiceCount   int     `json:"invoiceCount"`
}

// ChartPoint - одна точка дневного графика доходов и ожидаемых выплат.
type ChartPoint struct {
	Date     string  `json:"date"`
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
}
