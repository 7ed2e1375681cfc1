package repository

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mmeshcher/invoicer/internal/docstore"
)

// buildListQuery переводит предикаты документного хранилища в SQL.
// Равенство проверяется вхождением jsonb, поэтому сохраняется тип значения.
func buildListQuery(collection string, queries []docstore.Query) (string, []any, error) {
	var (
		where = []string{"collection = $1"}
		order []string
		limit string
		args  = []any{collection}
	)

	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, q := range queries {
		switch q.Kind {
		case docstore.QueryEqual:
			cond, err := equalCondition(q, next)
			if err != nil {
				return "", nil, err
			}
			where = append(where, cond)
		case docstore.QueryOrderAsc, docstore.QueryOrderDesc:
			dir := "ASC"
			if q.Kind == docstore.QueryOrderDesc {
				dir = "DESC"
			}
			order = append(order, orderColumn(q.Field, next)+" "+dir)
		case docstore.QueryLimit:
			if q.Limit < 0 {
				return "", nil, fmt.Errorf("negative limit %d", q.Limit)
			}
			limit = " LIMIT " + next(q.Limit)
		default:
			return "", nil, fmt.Errorf("unsupported query %q", q.Kind)
		}
	}

	var b strings.Builder
	b.WriteString("SELECT collection, id, data, created_at, updated_at FROM documents WHERE ")
	b.WriteString(strings.Join(where, " AND "))
	if len(order) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(order, ", "))
	}
	b.WriteString(limit)

	return b.String(), args, nil
}

func equalCondition(q docstore.Query, next func(any) string) (string, error) {
	switch q.Field {
	case docstore.FieldID:
		return "id = " + next(fmt.Sprint(q.Value)), nil
	case docstore.FieldCreatedAt, docstore.FieldUpdatedAt:
		return "", fmt.Errorf("equality on %s is not supported", q.Field)
	}

	raw, err := json.Marshal(map[string]any{q.Field: q.Value})
	if err != nil {
		return "", fmt.Errorf("marshal predicate %s: %w", q.Field, err)
	}
	return "data @> " + next(string(raw)) + "::jsonb", nil
}

// orderColumn сортирует поля документа по значению jsonb: числа сравниваются
// как числа, строки как текст.
func orderColumn(field string, next func(any) string) string {
	switch field {
	case docstore.FieldCreatedAt:
		return "created_at"
	case docstore.FieldUpdatedAt:
		return "updated_at"
	case docstore.FieldID:
		return "id"
	}
	return "data->" + next(field)
}
