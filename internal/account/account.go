// Package account реализует учётные записи и сессии поверх собственной БД.
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/invoicer/internal/model"
	"github.com/mmeshcher/invoicer/internal/repository"
)

var (
	// ErrInvalidCredentials возвращается при неверном пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound возвращается, если учётная запись с таким email не существует.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists возвращается при регистрации занятого email.
	ErrUserExists = errors.New("user already exists")
	// ErrNoSession возвращается, если сессия отсутствует, недействительна или истекла.
	ErrNoSession = errors.New("no active session")
)

// DefaultSessionTTL - срок жизни сессии по умолчанию.
const DefaultSessionTTL = 30 * 24 * time.Hour

const bcryptCost = bcrypt.DefaultCost

// Store описывает хранилище пользователей и сессий.
type Store interface {
	CreateUser(ctx context.Context, u model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	CreateSession(ctx context.Context, s model.Session) error
	GetSessionUser(ctx context.Context, sessionID string) (*model.User, error)
	DeleteSession(ctx context.Context, sessionID string) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

// Local - сервис учётных записей, хранящий пользователей и сессии в PostgreSQL.
type Local struct {
	store      Store
	sessionTTL time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewLocal создаёт сервис учётных записей.
func NewLocal(store Store, sessionTTL time.Duration, logger *zap.Logger) *Local {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	return &Local{
		store:      store,
		sessionTTL: sessionTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// Signup регистрирует нового пользователя.
func (l *Local) Signup(ctx context.Context, email, password, name string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := model.User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: string(hash),
	}

	if err := l.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	return &u, nil
}

// Login проверяет email и пароль и открывает новую сессию.
func (l *Local) Login(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	u, err := l.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, ErrUserNotFound
		}
		return nil, nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, nil, ErrInvalidCredentials
	}

	s := model.Session{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		ExpiresAt: l.now().Add(l.sessionTTL),
	}
	if err := l.store.CreateSession(ctx, s); err != nil {
		return nil, nil, err
	}

	return &s, u, nil
}

// Current возвращает пользователя по токену сессии.
func (l *Local) Current(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrNoSession
	}

	u, err := l.store.GetSessionUser(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrNoSession
		}
		return nil, err
	}
	return u, nil
}

// Logout закрывает сессию.
func (l *Local) Logout(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoSession
	}

	if err := l.store.DeleteSession(ctx, token); err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return ErrNoSession
		}
		return err
	}
	return nil
}

// StartSessionCleanup периодически удаляет истёкшие сессии, пока не отменён контекст.
func (l *Local) StartSessionCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := l.store.DeleteExpiredSessions(ctx)
			if err != nil {
				if ctx.Err() == nil {
					l.logger.Warn("expired sessions cleanup failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				l.logger.Info("expired sessions removed", zap.Int64("count", n))
			}
		}
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
