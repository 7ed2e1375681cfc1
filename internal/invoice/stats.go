package invoice

import (
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/invoicer/internal/model"
)

// Aggregate сводит набор счетов в показатели панели.
// НДС учитывается только по оплаченным счетам. Суммирование ведётся в decimal,
// поэтому результат не зависит от порядка счетов.
func Aggregate(invoices []model.Invoice) model.Stats {
	var total, paid, pending, vat decimal.Decimal

	for _, inv := range invoices {
		t := decimal.NewFromFloat(inv.Total)
		total = total.Add(t)

		switch inv.Status {
		case model.InvoiceStatusPaid:
			paid = paid.Add(t)
			vat = vat.Add(decimal.NewFromFloat(inv.VATAmount))
		case model.InvoiceStatusUnpaid:
			pending = pending.Add(t)
		}
	}

	return model.Stats{
		TotalInvoice:   total.InexactFloat64(),
		AmountPaid:     paid.InexactFloat64(),
		PendingPayment: pending.InexactFloat64(),
		TotalVAT:       vat.InexactFloat64(),
		InvoiceCount:   len(invoices),
	}
}
