// Package middleware содержит HTTP middleware сервиса счетов.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/invoicer/internal/session"
)

const (
	// SessionCookieName - имя cookie с подписанным токеном сессии.
	SessionCookieName = "session"
	// RememberMeTTL - срок жизни постоянной cookie при входе с rememberMe.
	RememberMeTTL = 30 * 24 * time.Hour
)

// AuthMiddleware проверяет подписанную cookie сессии и определяет пользователя.
type AuthMiddleware struct {
	secretKey []byte
	resolver  session.Resolver
	logger    *zap.Logger
	secure    bool
}

// NewAuthMiddleware создаёт AuthMiddleware. Пустой secret заменяется случайным ключом,
// и тогда cookie не переживают перезапуск процесса.
func NewAuthMiddleware(secret string, resolver session.Resolver, logger *zap.Logger) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AuthMiddleware{
		secretKey: key,
		resolver:  resolver,
		logger:    logger,
	}
}

// SetSecure включает атрибут Secure у выдаваемых cookie.
func (a *AuthMiddleware) SetSecure(secure bool) {
	a.secure = secure
}

// Middleware пускает дальше только запросы с действующей сессией
// и кладёт сессию в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := a.SessionToken(r)
		if !ok {
			unauthorized(w)
			return
		}

		s := session.New(a.resolver, token)
		if err := s.Refresh(r.Context()); err != nil {
			a.logger.Error("resolve session failed", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if _, err := s.OwnerID(); err != nil {
			a.ClearSessionCookie(w)
			unauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(session.WithSession(r.Context(), s)))
	})
}

// SessionToken возвращает токен из cookie, если подпись верна.
func (a *AuthMiddleware) SessionToken(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", false
	}
	return a.parseCookie(cookie.Value)
}

// SetSessionCookie выдаёт cookie с токеном сессии. Постоянная cookie живёт
// RememberMeTTL, иначе cookie живёт до закрытия браузера.
func (a *AuthMiddleware) SetSessionCookie(w http.ResponseWriter, token string, persistent bool) {
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    a.sign(token),
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if persistent {
		cookie.Expires = time.Now().Add(RememberMeTTL)
		cookie.MaxAge = int(RememberMeTTL.Seconds())
	}

	http.SetCookie(w, cookie)
}

// ClearSessionCookie удаляет cookie сессии.
func (a *AuthMiddleware) ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *AuthMiddleware) sign(token string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(token))
	return token + "." + hex.EncodeToString(mac.Sum(nil))
}

func (a *AuthMiddleware) parseCookie(value string) (string, bool) {
	i := strings.LastIndex(value, ".")
	if i <= 0 {
		return "", false
	}

	token, signature := value[:i], value[i+1:]
	expected := a.sign(token)[i+1:]
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return "", false
	}
	return token, true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"Not authenticated"}` + "\n"))
}

// GetOwnerIDFromContext возвращает идентификатор пользователя аутентифицированной сессии.
func GetOwnerIDFromContext(ctx context.Context) (string, bool) {
	s, ok := session.FromContext(ctx)
	if !ok {
		return "", false
	}
	id, err := s.OwnerID()
	if err != nil {
		return "", false
	}
	return id, true
}
