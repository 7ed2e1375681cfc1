package appwrite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmeshcher/invoicer/internal/docstore"
)

type documentList struct {
	Total     int              `json:"total"`
	Documents []map[string]any `json:"documents"`
}

// wireQuery - JSON-представление предиката в параметре queries[].
type wireQuery struct {
	Method    string `json:"method"`
	Attribute string `json:"attribute,omitempty"`
	Values    []any  `json:"values,omitempty"`
}

func (c *Client) documentsPath(collection string) string {
	return fmt.Sprintf("/databases/%s/collections/%s/documents",
		url.PathEscape(c.database), url.PathEscape(collection))
}

// CreateDocument создаёт документ в коллекции.
func (c *Client) CreateDocument(ctx context.Context, collection, id string, fields docstore.Fields) (*docstore.Document, error) {
	var raw map[string]any
	_, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    c.documentsPath(collection),
		body:    map[string]any{"documentId": id, "data": fields},
		withKey: true,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", mapDocumentError(err))
	}
	return toDocument(collection, raw)
}

// ListDocuments возвращает документы коллекции с учётом предикатов.
func (c *Client) ListDocuments(ctx context.Context, collection string, queries ...docstore.Query) ([]docstore.Document, error) {
	params, err := encodeQueries(queries)
	if err != nil {
		return nil, err
	}

	var list documentList
	_, err = c.do(ctx, request{
		method:  http.MethodGet,
		path:    c.documentsPath(collection),
		query:   params,
		withKey: true,
	}, &list)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", mapDocumentError(err))
	}

	docs := make([]docstore.Document, 0, len(list.Documents))
	for _, raw := range list.Documents {
		doc, err := toDocument(collection, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, nil
}

// GetDocument возвращает документ по идентификатору.
func (c *Client) GetDocument(ctx context.Context, collection, id string) (*docstore.Document, error) {
	var raw map[string]any
	_, err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    c.documentsPath(collection) + "/" + url.PathEscape(id),
		withKey: true,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", mapDocumentError(err))
	}
	return toDocument(collection, raw)
}

// UpdateDocument обновляет переданные поля документа.
func (c *Client) UpdateDocument(ctx context.Context, collection, id string, fields docstore.Fields) (*docstore.Document, error) {
	var raw map[string]any
	_, err := c.do(ctx, request{
		method:  http.MethodPatch,
		path:    c.documentsPath(collection) + "/" + url.PathEscape(id),
		body:    map[string]any{"data": fields},
		withKey: true,
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("update document: %w", mapDocumentError(err))
	}
	return toDocument(collection, raw)
}

// DeleteDocument удаляет документ.
func (c *Client) DeleteDocument(ctx context.Context, collection, id string) error {
	_, err := c.do(ctx, request{
		method:  http.MethodDelete,
		path:    c.documentsPath(collection) + "/" + url.PathEscape(id),
		withKey: true,
	}, nil)
	if err != nil {
		return fmt.Errorf("delete document: %w", mapDocumentError(err))
	}
	return nil
}

func encodeQueries(queries []docstore.Query) ([]string, error) {
	params := make([]string, 0, len(queries))
	for _, q := range queries {
		var w wireQuery
		switch q.Kind {
		case docstore.QueryEqual:
			w = wireQuery{Method: "equal", Attribute: q.Field, Values: []any{q.Value}}
		case docstore.QueryOrderDesc:
			w = wireQuery{Method: "orderDesc", Attribute: q.Field}
		case docstore.QueryOrderAsc:
			w = wireQuery{Method: "orderAsc", Attribute: q.Field}
		case docstore.QueryLimit:
			w = wireQuery{Method: "limit", Values: []any{q.Limit}}
		default:
			return nil, fmt.Errorf("unsupported query kind %q", q.Kind)
		}

		b, err := json.Marshal(w)
		if err != nil {
			return nil, fmt.Errorf("marshal query: %w", err)
		}
		params = append(params, url.QueryEscape("queries[]")+"="+url.QueryEscape(string(b)))
	}
	return params, nil
}

func toDocument(collection string, raw map[string]any) (*docstore.Document, error) {
	doc := &docstore.Document{
		Collection: collection,
		Fields:     make(docstore.Fields, len(raw)),
	}

	for k, v := range raw {
		switch k {
		case docstore.FieldID:
			s, _ := v.(string)
			doc.ID = s
		case docstore.FieldCreatedAt:
			t, err := parseTime(v)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", k, err)
			}
			doc.CreatedAt = t
		case docstore.FieldUpdatedAt:
			t, err := parseTime(v)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", k, err)
			}
			doc.UpdatedAt = t
		default:
			if strings.HasPrefix(k, "$") {
				continue
			}
			doc.Fields[k] = v
		}
	}

	if doc.ID == "" {
		return nil, fmt.Errorf("document without %s", docstore.FieldID)
	}
	return doc, nil
}

func parseTime(v any) (time.Time, error) {
	s, _ := v.(string)
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func mapDocumentError(err error) error {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", docstore.ErrNotFound, apiErr.Message)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", docstore.ErrConflict, apiErr.Message)
	}
	return err
}
