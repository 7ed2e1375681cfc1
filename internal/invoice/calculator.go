// Package invoice реализует правила жизненного цикла счёта: расчёт НДС и итога,
// валидацию, сводную статистику и дневной временной ряд для графика.
package invoice

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/invoicer/internal/model"
	"github.com/mmeshcher/invoicer/internal/validation"
)

// DefaultVATRate - ставка НДС в процентах, если она не указана.
const DefaultVATRate = 7.5

// DateLayout - формат календарной даты в API и в документах.
const DateLayout = "2006-01-02"

// Знаков после запятой у хранимых денежных значений.
const currencyPlaces = 2

var hundred = decimal.NewFromInt(100)

// Amounts - денежные поля счёта. Создаётся только через Compute, поэтому
// НДС и итог всегда согласованы с суммой и ставкой.
type Amounts struct {
	amount    decimal.Decimal
	vatRate   decimal.Decimal
	vatAmount decimal.Decimal
	total     decimal.Decimal
}

// Compute вычисляет НДС и итог. Сумма и НДС округляются до копеек,
// итог равен их точной сумме.
func Compute(amount, vatRate float64) (Amounts, error) {
	verr := &ValidationError{}
	var a decimal.Decimal
	if validation.IsValidAmount(amount) {
		a = decimal.NewFromFloat(amount).Round(currencyPlaces)
	}
	// Сумма меньше копейки после округления равна нулю.
	if !a.IsPositive() {
		verr.add("amount", "Amount must be greater than 0")
	}
	if !validation.IsValidVATRate(vatRate) {
		verr.add("vat", "VAT must be between 0 and 100")
	}
	if err := verr.orNil(); err != nil {
		return Amounts{}, err
	}

	rate := decimal.NewFromFloat(vatRate)
	vat := a.Mul(rate).Div(hundred).Round(currencyPlaces)

	return Amounts{
		amount:    a,
		vatRate:   rate,
		vatAmount: vat,
		total:     a.Add(vat),
	}, nil
}

// Amount возвращает базовую сумму.
func (a Amounts) Amount() float64 { return a.amount.InexactFloat64() }

// VATRate возвращает ставку НДС в процентах.
func (a Amounts) VATRate() float64 { return a.vatRate.InexactFloat64() }

// VATAmount возвращает сумму НДС.
func (a Amounts) VATAmount() float64 { return a.vatAmount.InexactFloat64() }

// Total возвращает итог к оплате.
func (a Amounts) Total() float64 { return a.total.InexactFloat64() }

// Input - данные формы создания счёта.
type Input struct {
	ClientName  string              `json:"clientName"`
	ClientEmail string              `json:"clientEmail"`
	Amount      float64             `json:"amount"`
	VAT         *float64            `json:"vat"`
	DueDate     string              `json:"dueDate"`
	Status      model.InvoiceStatus `json:"status"`
}

// UpdateInput - частичное изменение счёта. Не заданные поля сохраняют текущие значения.
type UpdateInput struct {
	ClientName  *string              `json:"clientName"`
	ClientEmail *string              `json:"clientEmail"`
	Amount      *float64             `json:"amount"`
	VAT         *float64             `json:"vat"`
	DueDate     *string              `json:"dueDate"`
	Status      *model.InvoiceStatus `json:"status"`
}

// Draft - проверенный счёт, готовый к записи в хранилище.
type Draft struct {
	ClientName  string
	ClientEmail string
	DueDate     time.Time
	Status      model.InvoiceStatus
	Amounts     Amounts
}

// Prepare проверяет данные формы и вычисляет производные поля.
// Возвращает *ValidationError со всеми нарушениями сразу.
// today задаёт текущий момент в поясе, в котором считаются календарные дни.
func Prepare(in Input, today time.Time) (Draft, error) {
	return prepare(in, today, true)
}

// PrepareUpdate накладывает изменения на сохранённый счёт и повторно вычисляет
// НДС и итог. Срок оплаты проверяется на прошедшую дату, только если он меняется.
func PrepareUpdate(current model.Invoice, upd UpdateInput, today time.Time) (Draft, error) {
	vat := current.VAT
	in := Input{
		ClientName:  current.ClientName,
		ClientEmail: current.ClientEmail,
		Amount:      current.Amount,
		VAT:         &vat,
		DueDate:     current.DueDate.Format(DateLayout),
		Status:      current.Status,
	}

	dueChanged := false
	if upd.ClientName != nil {
		in.ClientName = *upd.ClientName
	}
	if upd.ClientEmail != nil {
		in.ClientEmail = *upd.ClientEmail
	}
	if upd.Amount != nil {
		in.Amount = *upd.Amount
	}
	if upd.VAT != nil {
		in.VAT = upd.VAT
	}
	if upd.DueDate != nil {
		dueChanged = true
		if d, err := ParseDate(*upd.DueDate); err == nil {
			dueChanged = !d.Equal(civilDay(current.DueDate, time.UTC))
		}
		in.DueDate = *upd.DueDate
	}
	if upd.Status != nil {
		in.Status = *upd.Status
	}

	return prepare(in, today, dueChanged)
}

func prepare(in Input, today time.Time, checkPastDue bool) (Draft, error) {
	verr := &ValidationError{}

	name := strings.TrimSpace(in.ClientName)
	switch {
	case name == "":
		verr.add("clientName", "Client name is required")
	case !validation.IsValidClientName(name):
		verr.add("clientName", "Client name must be at least 2 characters")
	}

	email := strings.TrimSpace(in.ClientEmail)
	switch {
	case email == "":
		verr.add("clientEmail", "Client email is required")
	case !validation.IsValidEmail(email):
		verr.add("clientEmail", "Please enter a valid email address")
	}

	vatRate := DefaultVATRate
	if in.VAT != nil {
		vatRate = *in.VAT
	}
	amounts, err := Compute(in.Amount, vatRate)
	if err != nil {
		var cerr *ValidationError
		if errors.As(err, &cerr) {
			for field, msg := range cerr.Fields {
				verr.add(field, msg)
			}
		}
	}

	var due time.Time
	if strings.TrimSpace(in.DueDate) == "" {
		verr.add("dueDate", "Due date is required")
	} else if d, perr := ParseDate(in.DueDate); perr != nil {
		verr.add("dueDate", "Due date must be a valid date")
	} else {
		due = d
		if checkPastDue && due.Before(civilDay(today, today.Location())) {
			verr.add("dueDate", "Due date cannot be in the past")
		}
	}

	status := in.Status
	if status == "" {
		status = model.InvoiceStatusUnpaid
	}
	if !status.Valid() {
		verr.add("status", "Status must be Paid or Unpaid")
	}

	if err := verr.orNil(); err != nil {
		return Draft{}, err
	}

	return Draft{
		ClientName:  name,
		ClientEmail: email,
		DueDate:     due,
		Status:      status,
		Amounts:     amounts,
	}, nil
}

// ParseDate разбирает календарную дату в форматах YYYY-MM-DD или RFC 3339.
// Результат - полночь этого дня в UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return civilDay(t, time.UTC), nil
}

// civilDay возвращает полночь календарного дня t в поясе loc, выраженную как UTC-дата.
func civilDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
