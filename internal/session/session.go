// Package session хранит состояние аутентификации одного запроса или клиента.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mmeshcher/invoicer/internal/account"
	"github.com/mmeshcher/invoicer/internal/model"
)

// State - этап жизненного цикла сессии.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// AuthError означает, что сессия отсутствует или недействительна.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "not authenticated"
	}
	return "not authenticated: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// Resolver определяет пользователя по токену сессии.
type Resolver interface {
	Current(ctx context.Context, token string) (*model.User, error)
}

// Session - явный объект сессии. Пользователь определяется только
// вызовом Refresh, а не при создании.
type Session struct {
	resolver Resolver
	token    string

	mu    sync.RWMutex
	state State
	user  *model.User
	err   error
}

// New создаёт сессию в состоянии StateUninitialized.
func New(resolver Resolver, token string) *Session {
	return &Session{resolver: resolver, token: token}
}

// Token возвращает токен сессии.
func (s *Session) Token() string { return s.token }

// State возвращает текущее состояние.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// User возвращает пользователя, если сессия аутентифицирована.
func (s *Session) User() (*model.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user, s.state == StateAuthenticated
}

// Refresh заново проверяет токен. Сессия без токена или с отвергнутым токеном
// становится анонимной. Ошибки самого резолвера возвращаются вызывающему,
// сессия при этом тоже считается анонимной.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateLoading
	s.mu.Unlock()

	var (
		user *model.User
		err  error
	)
	if s.token == "" {
		err = account.ErrNoSession
	} else {
		user, err = s.resolver.Current(ctx, s.token)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.state = StateAnonymous
		s.user = nil
		s.err = err
		if errors.Is(err, account.ErrNoSession) {
			return nil
		}
		return fmt.Errorf("refresh session: %w", err)
	}

	s.state = StateAuthenticated
	s.user = user
	s.err = nil
	return nil
}

// OwnerID возвращает идентификатор пользователя для owner-scoped операций.
func (s *Session) OwnerID() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != StateAuthenticated || s.user == nil {
		return "", &AuthError{Err: s.err}
	}
	return s.user.ID, nil
}

type ctxKey struct{}

// WithSession кладёт сессию в контекст.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext достаёт сессию из контекста.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxKey{}).(*Session)
	return s, ok
}
