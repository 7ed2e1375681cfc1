package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/invoicer/internal/docstore"
	"github.com/mmeshcher/invoicer/internal/model"
)

// ListLimit - максимальное число счетов в одном списке.
const ListLimit = 100

// Поля документа счёта.
const (
	fieldOwnerID = "ownerId"
	fieldStatus  = "status"
)

// DocumentStore описывает внешнее документное хранилище.
type DocumentStore interface {
	CreateDocument(ctx context.Context, collection, id string, fields docstore.Fields) (*docstore.Document, error)
	ListDocuments(ctx context.Context, collection string, queries ...docstore.Query) ([]docstore.Document, error)
	GetDocument(ctx context.Context, collection, id string) (*docstore.Document, error)
	UpdateDocument(ctx context.Context, collection, id string, fields docstore.Fields) (*docstore.Document, error)
	DeleteDocument(ctx context.Context, collection, id string) error
}

// Repository хранит счета в коллекции документного хранилища.
// Все ошибки хранилища превращаются в *NotFoundError или *PersistenceError.
type Repository struct {
	store      DocumentStore
	collection string
	newID      func() string
}

// NewRepository создаёт репозиторий счетов поверх коллекции.
func NewRepository(store DocumentStore, collection string) *Repository {
	return &Repository{
		store:      store,
		collection: collection,
		newID:      uuid.NewString,
	}
}

// document - представление счёта в хранилище.
type document struct {
	ClientName  string              `json:"clientName"`
	ClientEmail string              `json:"clientEmail"`
	Amount      float64             `json:"amount"`
	VAT         float64             `json:"vat"`
	VATAmount   float64             `json:"vatAmount"`
	Total       float64             `json:"total"`
	DueDate     string              `json:"dueDate"`
	Status      model.InvoiceStatus `json:"status"`
	OwnerID     string              `json:"ownerId"`
}

func draftFields(d Draft) docstore.Fields {
	return docstore.Fields{
		"clientName":  d.ClientName,
		"clientEmail": d.ClientEmail,
		"amount":      d.Amounts.Amount(),
		"vat":         d.Amounts.VATRate(),
		"vatAmount":   d.Amounts.VATAmount(),
		"total":       d.Amounts.Total(),
		"dueDate":     d.DueDate.Format(DateLayout),
		fieldStatus:   string(d.Status),
	}
}

func fromDocument(doc *docstore.Document) (*model.Invoice, error) {
	var raw document
	if err := doc.Decode(&raw); err != nil {
		return nil, err
	}

	var due time.Time
	if raw.DueDate != "" {
		d, err := ParseDate(raw.DueDate)
		if err != nil {
			return nil, fmt.Errorf("parse due date: %w", err)
		}
		due = d
	}

	return &model.Invoice{
		ID:          doc.ID,
		ClientName:  raw.ClientName,
		ClientEmail: raw.ClientEmail,
		Amount:      raw.Amount,
		VAT:         raw.VAT,
		VATAmount:   raw.VATAmount,
		Total:       raw.Total,
		DueDate:     due,
		Status:      raw.Status,
		OwnerID:     raw.OwnerID,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}, nil
}

// Create сохраняет новый счёт владельца.
func (r *Repository) Create(ctx context.Context, ownerID string, d Draft) (*model.Invoice, error) {
	fields := draftFields(d)
	fields[fieldOwnerID] = ownerID

	doc, err := r.store.CreateDocument(ctx, r.collection, r.newID(), fields)
	if err != nil {
		return nil, &PersistenceError{Op: "create", Err: err}
	}

	inv, err := fromDocument(doc)
	if err != nil {
		return nil, &PersistenceError{Op: "create", Err: err}
	}
	return inv, nil
}

// List возвращает счета владельца, новые первыми, не более ListLimit.
// status == nil означает все статусы.
func (r *Repository) List(ctx context.Context, ownerID string, status *model.InvoiceStatus) ([]model.Invoice, error) {
	queries := []docstore.Query{docstore.Equal(fieldOwnerID, ownerID)}
	if status != nil {
		queries = append(queries, docstore.Equal(fieldStatus, string(*status)))
	}
	queries = append(queries, docstore.OrderDesc(docstore.FieldCreatedAt), docstore.Limit(ListLimit))

	docs, err := r.store.ListDocuments(ctx, r.collection, queries...)
	if err != nil {
		return nil, &PersistenceError{Op: "list", Err: err}
	}

	res := make([]model.Invoice, 0, len(docs))
	for i := range docs {
		inv, err := fromDocument(&docs[i])
		if err != nil {
			return nil, &PersistenceError{Op: "list", Err: err}
		}
		res = append(res, *inv)
	}
	return res, nil
}

// Get возвращает счёт по идентификатору.
func (r *Repository) Get(ctx context.Context, id string) (*model.Invoice, error) {
	doc, err := r.store.GetDocument(ctx, r.collection, id)
	if err != nil {
		return nil, r.wrap("get", id, err)
	}

	inv, err := fromDocument(doc)
	if err != nil {
		return nil, &PersistenceError{Op: "get", Err: err}
	}
	return inv, nil
}

// Update перезаписывает поля счёта. Производные поля берутся только из Draft,
// значения извне репозиторий не принимает.
func (r *Repository) Update(ctx context.Context, id string, d Draft) (*model.Invoice, error) {
	doc, err := r.store.UpdateDocument(ctx, r.collection, id, draftFields(d))
	if err != nil {
		return nil, r.wrap("update", id, err)
	}

	inv, err := fromDocument(doc)
	if err != nil {
		return nil, &PersistenceError{Op: "update", Err: err}
	}
	return inv, nil
}

// Delete удаляет счёт.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if err := r.store.DeleteDocument(ctx, r.collection, id); err != nil {
		return r.wrap("delete", id, err)
	}
	return nil
}

func (r *Repository) wrap(op, id string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return &NotFoundError{ID: id}
	}
	return &PersistenceError{Op: op, Err: err}
}
