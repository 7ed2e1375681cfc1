// Package handler содержит HTTP-обработчики API сервиса счетов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/invoicer/internal/invoice"
	"github.com/mmeshcher/invoicer/internal/middleware"
	"github.com/mmeshcher/invoicer/internal/model"
	"github.com/mmeshcher/invoicer/internal/service"
	"github.com/mmeshcher/invoicer/internal/session"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateInvoice(ctx context.Context, ownerID string, in invoice.Input) (*model.Invoice, error)
	ListInvoices(ctx context.Context, ownerID string, f service.ListFilter) ([]model.Invoice, error)
	GetInvoice(ctx context.Context, ownerID, id string) (*model.Invoice, error)
	UpdateInvoice(ctx context.Context, ownerID, id string, upd invoice.UpdateInput) (*model.Invoice, error)
	DeleteInvoice(ctx context.Context, ownerID, id string) error
	Stats(ctx context.Context, ownerID string) (model.Stats, error)
	Chart(ctx context.Context, ownerID string, days int) (invoice.Series, error)
}

// Accounts определяет контракт сервиса учётных записей и сессий.
type Accounts interface {
	Signup(ctx context.Context, email, password, name string) (*model.User, error)
	Login(ctx context.Context, email, password string) (*model.Session, *model.User, error)
	Current(ctx context.Context, token string) (*model.User, error)
	Logout(ctx context.Context, token string) error
}

// Handler реализует HTTP-обработчики API сервиса счетов.
type Handler struct {
	service        Service
	accounts       Accounts
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, accounts Accounts, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		accounts:       accounts,
		logger:         logger,
		authMiddleware: auth,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

type validationResponse struct {
	Errors map[string]string `json:"errors"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeDomainError отображает ошибки счёта и сессии на HTTP-статусы.
// Неожиданные ошибки логируются вместе с полями запроса.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, fields ...zap.Field) {
	var (
		verr *invoice.ValidationError
		nf   *invoice.NotFoundError
		perr *invoice.PersistenceError
		aerr *session.AuthError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Errors: verr.Fields})
	case errors.As(err, &nf):
		writeError(w, http.StatusNotFound, nf.Error())
	case errors.As(err, &aerr):
		writeError(w, http.StatusUnauthorized, "Not authenticated")
	case errors.As(err, &perr):
		h.logger.Error("invoice persistence error", append(fields, zap.Error(err))...)
		writeError(w, http.StatusInternalServerError, perr.Error())
	default:
		h.logger.Error("unexpected error", append(fields, zap.Error(err))...)
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

// ownerID достаёт владельца из сессии запроса или отвечает 401.
func (h *Handler) ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := middleware.GetOwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return "", false
	}
	return id, true
}
