package appwrite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/invoicer/internal/account"
	"github.com/mmeshcher/invoicer/internal/docstore"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	return NewClient(Config{
		Endpoint: ts.URL,
		Project:  "proj",
		APIKey:   "secret-key",
		Database: "main",
	})
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestCreateDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/databases/main/collections/invoices/documents", r.URL.Path)
		assert.Equal(t, "proj", r.Header.Get(headerProject))
		assert.Equal(t, "secret-key", r.Header.Get(headerKey))

		var body struct {
			DocumentID string         `json:"documentId"`
			Data       map[string]any `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "inv-1", body.DocumentID)

		resp := map[string]any{
			"$id":           body.DocumentID,
			"$collectionId": "invoices",
			"$createdAt":    "2026-10-14T10:00:00.123+00:00",
			"$updatedAt":    "2026-10-14T10:00:00.123+00:00",
			"$permissions":  []string{},
		}
		for k, v := range body.Data {
			resp[k] = v
		}
		writeJSON(t, w, http.StatusCreated, resp)
	})

	doc, err := c.CreateDocument(context.Background(), "invoices", "inv-1", docstore.Fields{
		"clientName": "Acme",
		"total":      107.5,
	})
	require.NoError(t, err)

	assert.Equal(t, "inv-1", doc.ID)
	assert.Equal(t, "Acme", doc.Fields["clientName"])
	assert.Equal(t, 107.5, doc.Fields["total"])
	assert.NotContains(t, doc.Fields, "$permissions")
	assert.Equal(t, time.Date(2026, 10, 14, 10, 0, 0, 123000000, time.UTC), doc.CreatedAt)
}

func TestListDocuments_EncodesQueries(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query()["queries[]"]
		require.Len(t, raw, 3)

		var first wireQuery
		require.NoError(t, json.Unmarshal([]byte(raw[0]), &first))
		assert.Equal(t, wireQuery{Method: "equal", Attribute: "ownerId", Values: []any{"u1"}}, first)
		assert.JSONEq(t, `{"method":"orderDesc","attribute":"$createdAt"}`, raw[1])
		assert.JSONEq(t, `{"method":"limit","values":[100]}`, raw[2])

		writeJSON(t, w, http.StatusOK, map[string]any{
			"total": 2,
			"documents": []map[string]any{
				{"$id": "b", "ownerId": "u1"},
				{"$id": "a", "ownerId": "u1"},
			},
		})
	})

	docs, err := c.ListDocuments(context.Background(), "invoices",
		docstore.Equal("ownerId", "u1"),
		docstore.OrderDesc(docstore.FieldCreatedAt),
		docstore.Limit(100),
	)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID)
	assert.Equal(t, "a", docs[1].ID)
}

func TestDocumentErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(t, w, http.StatusNotFound, map[string]any{
				"message": "Document with the requested ID could not be found.",
				"code":    404,
				"type":    "document_not_found",
			})
		case http.MethodPost:
			writeJSON(t, w, http.StatusConflict, map[string]any{
				"message": "Document with the requested ID already exists.",
				"code":    409,
				"type":    "document_already_exists",
			})
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	})
	ctx := context.Background()

	_, err := c.GetDocument(ctx, "invoices", "missing")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	_, err = c.CreateDocument(ctx, "invoices", "dup", docstore.Fields{})
	assert.ErrorIs(t, err, docstore.ErrConflict)

	err = c.DeleteDocument(ctx, "invoices", "x")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
}

func TestUpdateAndDeleteDocument(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/databases/main/collections/invoices/documents/inv-1", r.URL.Path)
		switch r.Method {
		case http.MethodPatch:
			writeJSON(t, w, http.StatusOK, map[string]any{"$id": "inv-1", "status": "Paid"})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})
	ctx := context.Background()

	doc, err := c.UpdateDocument(ctx, "invoices", "inv-1", docstore.Fields{"status": "Paid"})
	require.NoError(t, err)
	assert.Equal(t, "Paid", doc.Fields["status"])

	require.NoError(t, c.DeleteDocument(ctx, "invoices", "inv-1"))
}

func TestRetryAfterTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"$id": "inv-1"})
	})

	doc, err := c.GetDocument(context.Background(), "invoices", "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "inv-1", doc.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLongRetryAfterIsNotWaited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.GetDocument(context.Background(), "invoices", "inv-1")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 30*time.Second, apiErr.RetryAfter)
}

func TestRetryIsAttemptedOnce(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.GetDocument(context.Background(), "invoices", "inv-1")
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNotConfigured(t *testing.T) {
	c := NewClient(Config{})
	_, err := c.GetDocument(context.Background(), "invoices", "x")
	assert.Error(t, err)
}

func TestAccountFlow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/account":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.NotEmpty(t, body["userId"])
			writeJSON(t, w, http.StatusCreated, map[string]any{"$id": body["userId"], "email": body["email"], "name": body["name"]})
		case r.Method == http.MethodPost && r.URL.Path == "/account/sessions/email":
			writeJSON(t, w, http.StatusCreated, map[string]any{
				"$id":    "sess-1",
				"userId": "u1",
				"expire": "2027-10-14T10:00:00.000+00:00",
				"secret": "token-1",
			})
		case r.Method == http.MethodGet && r.URL.Path == "/account":
			assert.Empty(t, r.Header.Get(headerKey), "session calls must not carry the server key")
			if r.Header.Get(headerSession) != "token-1" {
				writeJSON(t, w, http.StatusUnauthorized, map[string]any{"message": "unauthorized", "code": 401, "type": "general_unauthorized_scope"})
				return
			}
			writeJSON(t, w, http.StatusOK, map[string]any{"$id": "u1", "email": "ada@example.com", "name": "Ada"})
		case r.Method == http.MethodDelete && r.URL.Path == "/account/sessions/current":
			assert.Equal(t, "token-1", r.Header.Get(headerSession))
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
	})
	ctx := context.Background()

	u, err := c.Signup(ctx, "ada@example.com", "secret123", "Ada")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)

	sess, user, err := c.Login(ctx, "ada@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "token-1", sess.ID)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, 2027, sess.ExpiresAt.Year())

	_, err = c.Current(ctx, "other")
	assert.ErrorIs(t, err, account.ErrNoSession)

	_, err = c.Current(ctx, "")
	assert.ErrorIs(t, err, account.ErrNoSession)

	require.NoError(t, c.Logout(ctx, "token-1"))
}

func TestAccountErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/account" {
			writeJSON(t, w, http.StatusConflict, map[string]any{"message": "exists", "code": 409, "type": "user_already_exists"})
			return
		}
		writeJSON(t, w, http.StatusUnauthorized, map[string]any{"message": "bad", "code": 401, "type": "user_invalid_credentials"})
	})
	ctx := context.Background()

	_, err := c.Signup(ctx, "ada@example.com", "secret123", "Ada")
	assert.ErrorIs(t, err, account.ErrUserExists)

	_, _, err = c.Login(ctx, "ada@example.com", "wrong")
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)
}

func TestLoginMapsStatusWhenTypeIsUnknown(t *testing.T) {
	tests := []struct {
		name   string
		status int
		typ    string
		want   error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, typ: "general_unauthorized_scope", want: account.ErrInvalidCredentials},
		{name: "not found", status: http.StatusNotFound, typ: "general_not_found", want: account.ErrUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(t, w, tt.status, map[string]any{"message": "nope", "code": tt.status, "type": tt.typ})
			})

			_, _, err := c.Login(context.Background(), "ada@example.com", "secret123")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoginFallsBackToSessionCookie(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/account/sessions/email" {
			http.SetCookie(w, &http.Cookie{Name: "a_session_proj", Value: url.QueryEscape("cookie-token")})
			writeJSON(t, w, http.StatusCreated, map[string]any{"$id": "sess-1", "userId": "u1"})
			return
		}
		assert.Equal(t, "cookie-token", r.Header.Get(headerSession))
		writeJSON(t, w, http.StatusOK, map[string]any{"$id": "u1", "email": "ada@example.com"})
	})

	sess, _, err := c.Login(context.Background(), "ada@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "cookie-token", sess.ID)
}
