// Package docstore описывает контракт документного хранилища: документы,
// предикаты запросов и ошибки, общие для всех реализаций.
package docstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Системные поля документа, по которым можно сортировать и фильтровать.
const (
	FieldID        = "$id"
	FieldCreatedAt = "$createdAt"
	FieldUpdatedAt = "$updatedAt"
)

var (
	// ErrNotFound возвращается, если документ с указанным идентификатором не существует.
	ErrNotFound = errors.New("document not found")
	// ErrConflict возвращается при попытке создать документ с занятым идентификатором.
	ErrConflict = errors.New("document already exists")
)

// Fields - пользовательские поля документа.
type Fields map[string]any

// Document - документ коллекции вместе с метаданными хранилища.
type Document struct {
	ID         string
	Collection string
	Fields     Fields
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Decode раскладывает поля документа в структуру через JSON-теги.
func (d Document) Decode(v any) error {
	raw, err := json.Marshal(d.Fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	return nil
}

// QueryKind определяет тип предиката.
type QueryKind string

const (
	QueryEqual     QueryKind = "equal"
	QueryOrderDesc QueryKind = "orderDesc"
	QueryOrderAsc  QueryKind = "orderAsc"
	QueryLimit     QueryKind = "limit"
)

// Query - один предикат запроса списка документов.
type Query struct {
	Kind  QueryKind
	Field string
	Value any
	Limit int
}

// Equal отбирает документы, у которых поле равно значению.
func Equal(field string, value any) Query {
	return Query{Kind: QueryEqual, Field: field, Value: value}
}

// OrderDesc сортирует документы по полю по убыванию.
func OrderDesc(field string) Query {
	return Query{Kind: QueryOrderDesc, Field: field}
}

// OrderAsc сортирует документы по полю по возрастанию.
func OrderAsc(field string) Query {
	return Query{Kind: QueryOrderAsc, Field: field}
}

// Limit ограничивает количество возвращаемых документов.
func Limit(n int) Query {
	return Query{Kind: QueryLimit, Limit: n}
}
