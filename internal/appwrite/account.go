package appwrite

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/invoicer/internal/account"
	"github.com/mmeshcher/invoicer/internal/model"
)

type wireUser struct {
	ID    string `json:"$id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type wireSession struct {
	ID     string `json:"$id"`
	UserID string `json:"userId"`
	Expire string `json:"expire"`
	Secret string `json:"secret"`
}

func (u wireUser) toModel() *model.User {
	return &model.User{ID: u.ID, Email: u.Email, Name: u.Name}
}

// Signup регистрирует пользователя в бэкенде.
func (c *Client) Signup(ctx context.Context, email, password, name string) (*model.User, error) {
	var u wireUser
	_, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/account",
		body: map[string]string{
			"userId":   uuid.NewString(),
			"email":    email,
			"password": password,
			"name":     name,
		},
		withKey: true,
	}, &u)
	if err != nil {
		return nil, mapAccountError(err)
	}
	return u.toModel(), nil
}

// Login открывает сессию по email и паролю и возвращает её вместе с пользователем.
// Токеном сессии служит её секрет.
func (c *Client) Login(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	var s wireSession
	header, err := c.do(ctx, request{
		method:  http.MethodPost,
		path:    "/account/sessions/email",
		body:    map[string]string{"email": email, "password": password},
		withKey: true,
	}, &s)
	if err != nil {
		return nil, nil, mapLoginError(err)
	}

	token := s.Secret
	if token == "" {
		token = sessionCookie(header, c.project)
	}
	if token == "" {
		return nil, nil, fmt.Errorf("login: backend returned no session secret")
	}

	u, err := c.Current(ctx, token)
	if err != nil {
		return nil, nil, err
	}

	expires, _ := time.Parse(time.RFC3339, s.Expire)
	return &model.Session{ID: token, UserID: u.ID, ExpiresAt: expires}, u, nil
}

// Current возвращает пользователя сессии.
func (c *Client) Current(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, account.ErrNoSession
	}

	var u wireUser
	_, err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    "/account",
		session: token,
	}, &u)
	if err != nil {
		return nil, mapAccountError(err)
	}
	return u.toModel(), nil
}

// Logout закрывает текущую сессию.
func (c *Client) Logout(ctx context.Context, token string) error {
	if token == "" {
		return account.ErrNoSession
	}

	_, err := c.do(ctx, request{
		method:  http.MethodDelete,
		path:    "/account/sessions/current",
		session: token,
	}, nil)
	if err != nil {
		return mapAccountError(err)
	}
	return nil
}

func sessionCookie(header http.Header, project string) string {
	resp := http.Response{Header: header}
	for _, ck := range resp.Cookies() {
		if ck.Name == "a_session_"+project {
			return ck.Value
		}
	}
	return ""
}

// mapLoginError дополнительно сводит 401 и 404 при входе к неверным учётным
// данным и неизвестному пользователю, какой бы тип ни вернул бэкенд.
func mapLoginError(err error) error {
	mapped := mapAccountError(err)
	if errors.Is(mapped, account.ErrInvalidCredentials) || errors.Is(mapped, account.ErrUserNotFound) {
		return mapped
	}

	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return mapped
	}

	switch apiErr.Status {
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", account.ErrInvalidCredentials, apiErr.Message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", account.ErrUserNotFound, apiErr.Message)
	}
	return mapped
}

func mapAccountError(err error) error {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return err
	}

	switch apiErr.Type {
	case "user_already_exists":
		return fmt.Errorf("%w: %s", account.ErrUserExists, apiErr.Message)
	case "user_invalid_credentials":
		return fmt.Errorf("%w: %s", account.ErrInvalidCredentials, apiErr.Message)
	case "user_not_found":
		return fmt.Errorf("%w: %s", account.ErrUserNotFound, apiErr.Message)
	}

	switch apiErr.Status {
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", account.ErrUserExists, apiErr.Message)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", account.ErrNoSession, apiErr.Message)
	}
	return err
}
