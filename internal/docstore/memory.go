package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"
)

// MemoryStore - документное хранилище в памяти процесса.
// Поля нормализуются через JSON, поэтому сравнение значений ведёт себя так же,
// как в JSON-базе: числа хранятся как float64.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]Document
	now  func() time.Time
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock создаёт пустое хранилище с заданным источником времени.
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]Document),
		now:  now,
	}
}

// CreateDocument сохраняет новый документ.
func (m *MemoryStore) CreateDocument(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalized, err := normalize(fields)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	col, ok := m.docs[collection]
	if !ok {
		col = make(map[string]Document)
		m.docs[collection] = col
	}
	if _, exists := col[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrConflict, id)
	}

	now := m.now().UTC()
	doc := Document{
		ID:         id,
		Collection: collection,
		Fields:     normalized,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	col[id] = doc

	return cloneDocument(doc), nil
}

// ListDocuments возвращает документы коллекции с учётом предикатов.
func (m *MemoryStore) ListDocuments(ctx context.Context, collection string, queries ...Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		res   []Document
		order []Query
		limit = -1
	)

	for _, q := range queries {
		switch q.Kind {
		case QueryOrderAsc, QueryOrderDesc:
			order = append(order, q)
		case QueryLimit:
			limit = q.Limit
		}
	}

	for _, doc := range m.docs[collection] {
		match, err := matches(doc, queries)
		if err != nil {
			return nil, err
		}
		if match {
			res = append(res, *cloneDocument(doc))
		}
	}

	// Порядок map недетерминирован, поэтому без явной сортировки упорядочиваем по id.
	sort.SliceStable(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	for i := len(order) - 1; i >= 0; i-- {
		q := order[i]
		sort.SliceStable(res, func(a, b int) bool {
			if q.Kind == QueryOrderDesc {
				return less(res[b], res[a], q.Field)
			}
			return less(res[a], res[b], q.Field)
		})
	}

	if limit >= 0 && len(res) > limit {
		res = res[:limit]
	}

	return res, nil
}

// GetDocument возвращает документ по идентификатору.
func (m *MemoryStore) GetDocument(ctx context.Context, collection, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.docs[collection][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneDocument(doc), nil
}

// UpdateDocument дополняет поля документа переданными значениями.
func (m *MemoryStore) UpdateDocument(ctx context.Context, collection, id string, fields Fields) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalized, err := normalize(fields)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.docs[collection][id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	merged := make(Fields, len(doc.Fields)+len(normalized))
	for k, v := range doc.Fields {
		merged[k] = v
	}
	for k, v := range normalized {
		merged[k] = v
	}
	doc.Fields = merged
	doc.UpdatedAt = m.now().UTC()
	m.docs[collection][id] = doc

	return cloneDocument(doc), nil
}

// DeleteDocument удаляет документ.
func (m *MemoryStore) DeleteDocument(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[collection][id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.docs[collection], id)
	return nil
}

func matches(doc Document, queries []Query) (bool, error) {
	for _, q := range queries {
		if q.Kind != QueryEqual {
			continue
		}
		want, err := normalizeValue(q.Value)
		if err != nil {
			return false, err
		}
		if !reflect.DeepEqual(fieldValue(doc, q.Field), want) {
			return false, nil
		}
	}
	return true, nil
}

func fieldValue(doc Document, field string) any {
	switch field {
	case FieldID:
		return doc.ID
	case FieldCreatedAt:
		return doc.CreatedAt
	case FieldUpdatedAt:
		return doc.UpdatedAt
	}
	return doc.Fields[field]
}

func less(a, b Document, field string) bool {
	switch field {
	case FieldCreatedAt:
		return a.CreatedAt.Before(b.CreatedAt)
	case FieldUpdatedAt:
		return a.UpdatedAt.Before(b.UpdatedAt)
	case FieldID:
		return a.ID < b.ID
	}

	av, bv := a.Fields[field], b.Fields[field]
	switch x := av.(type) {
	case float64:
		y, ok := bv.(float64)
		return ok && x < y
	case string:
		y, ok := bv.(string)
		return ok && x < y
	}
	return false
}

func normalize(fields Fields) (Fields, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal fields: %w", err)
	}
	res := Fields{}
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return res, nil
}

func normalizeValue(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	var res any
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	return res, nil
}

func cloneDocument(doc Document) *Document {
	fields := make(Fields, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	doc.Fields = fields
	return &doc
}
