package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/invoicer/internal/account"
	"github.com/mmeshcher/invoicer/internal/model"
)

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullname"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type authResponse struct {
	Success   bool        `json:"success"`
	User      *model.User `json:"user,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
}

type userResponse struct {
	User *model.User `json:"user"`
}

// Signup регистрирует пользователя и сразу открывает для него сессию.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" || strings.TrimSpace(req.FullName) == "" {
		writeError(w, http.StatusBadRequest, "Email, password and full name are required")
		return
	}

	user, err := h.accounts.Signup(r.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		if errors.Is(err, account.ErrUserExists) {
			writeError(w, http.StatusConflict, "An account with this email already exists")
			return
		}
		h.logger.Error("signup error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}

	sess, _, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Error("login after signup error", zap.Error(err), zap.String("userID", user.ID))
		writeJSON(w, http.StatusOK, authResponse{Success: true, User: user})
		return
	}

	h.authMiddleware.SetSessionCookie(w, sess.ID, false)
	writeJSON(w, http.StatusOK, authResponse{Success: true, User: user})
}

// Login открывает сессию и выдаёт cookie. Постоянная cookie выдаётся только с rememberMe.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	sess, user, err := h.accounts.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
		case errors.Is(err, account.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "User not found")
		default:
			h.logger.Error("login error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		}
		return
	}

	h.authMiddleware.SetSessionCookie(w, sess.ID, req.RememberMe)
	writeJSON(w, http.StatusOK, authResponse{Success: true, User: user, SessionID: sess.ID})
}

// Logout закрывает текущую сессию и удаляет cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := h.authMiddleware.SessionToken(r)
	if ok {
		if err := h.accounts.Logout(r.Context(), token); err != nil && !errors.Is(err, account.ErrNoSession) {
			h.logger.Warn("logout error", zap.Error(err))
			writeError(w, http.StatusBadRequest, "Logout failed")
			return
		}
	}

	h.authMiddleware.ClearSessionCookie(w)
	writeJSON(w, http.StatusOK, authResponse{Success: true})
}

// CurrentUser возвращает пользователя текущей сессии.
func (h *Handler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	token, ok := h.authMiddleware.SessionToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	user, err := h.accounts.Current(r.Context(), token)
	if err != nil {
		if !errors.Is(err, account.ErrNoSession) {
			h.logger.Warn("current user error", zap.Error(err))
		}
		h.authMiddleware.ClearSessionCookie(w)
		writeError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	writeJSON(w, http.StatusOK, userResponse{User: user})
}
