package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/invoicer/internal/invoice"
	"github.com/mmeshcher/invoicer/internal/model"
	"github.com/mmeshcher/invoicer/internal/service"
)

type invoiceResponse struct {
	ID          string              `json:"id"`
	ClientName  string              `json:"clientName"`
	ClientEmail string              `json:"clientEmail"`
	Amount      float64             `json:"amount"`
	VAT         float64             `json:"vat"`
	VATAmount   float64             `json:"vatAmount"`
	Total       float64             `json:"total"`
	DueDate     string              `json:"dueDate"`
	Status      model.InvoiceStatus `json:"status"`
	CreatedAt   string              `json:"createdAt"`
	UpdatedAt   string              `json:"updatedAt"`
}

func toInvoiceResponse(inv *model.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:          inv.ID,
		ClientName:  inv.ClientName,
		ClientEmail: inv.ClientEmail,
		Amount:      inv.Amount,
		VAT:         inv.VAT,
		VATAmount:   inv.VATAmount,
		Total:       inv.Total,
		DueDate:     inv.DueDate.Format(invoice.DateLayout),
		Status:      inv.Status,
		CreatedAt:   inv.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   inv.UpdatedAt.Format(time.RFC3339),
	}
}

// ListInvoices возвращает счета текущего пользователя.
// Параметры: status=Paid|Unpaid, search - подстрока имени клиента.
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	filter := service.ListFilter{Search: r.URL.Query().Get("search")}
	if v := r.URL.Query().Get("status"); v != "" && v != "all" {
		status := model.InvoiceStatus(v)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "Status must be Paid or Unpaid")
			return
		}
		filter.Status = &status
	}

	list, err := h.service.ListInvoices(r.Context(), ownerID, filter)
	if err != nil {
		h.writeDomainError(w, err, zap.String("ownerID", ownerID))
		return
	}

	resp := make([]invoiceResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toInvoiceResponse(&list[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateInvoice создаёт счёт. Переданные клиентом vatAmount и total игнорируются.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var in invoice.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	inv, err := h.service.CreateInvoice(r.Context(), ownerID, in)
	if err != nil {
		h.writeDomainError(w, err, zap.String("ownerID", ownerID))
		return
	}

	writeJSON(w, http.StatusCreated, toInvoiceResponse(inv))
}

// GetInvoice возвращает счёт по идентификатору.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	inv, err := h.service.GetInvoice(r.Context(), ownerID, id)
	if err != nil {
		h.writeDomainError(w, err, zap.String("ownerID", ownerID), zap.String("invoiceID", id))
		return
	}

	writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

// UpdateInvoice изменяет счёт. Не переданные поля сохраняют прежние значения.
func (h *Handler) UpdateInvoice(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	var upd invoice.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	inv, err := h.service.UpdateInvoice(r.Context(), ownerID, id, upd)
	if err != nil {
		h.writeDomainError(w, err, zap.String("ownerID", ownerID), zap.String("invoiceID", id))
		return
	}

	writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
}

// DeleteInvoice удаляет счёт.
func (h *Handler) DeleteInvoice(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteInvoice(r.Context(), ownerID, id); err != nil {
		h.writeDomainError(w, err, zap.String("ownerID", ownerID), zap.String("invoiceID", id))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetStats возвращает сводную статистику панели.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), ownerID)
	if err != nil {
		h.writeDomainError(w, err, zap.String("ownerID", ownerID))
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetChart возвращает дневной ряд графика за range=7d|30d|90d.
func (h *Handler) GetChart(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	days, err := invoice.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Range must be one of 7d, 30d, 90d")
		return
	}

	series, err := h.service.Chart(r.Context(), ownerID, days)
	if err != nil {
		h.writeDomainError(w, err, zap.String("ownerID", ownerID))
		return
	}

	writeJSON(w, http.StatusOK, series)
}
