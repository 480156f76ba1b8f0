package handlers

import (
	"errors"
	"net/http"

	"github.com/UkralStul/blog-platform/internal/auth"
	"github.com/UkralStul/blog-platform/internal/domain"
	"github.com/UkralStul/blog-platform/internal/storage"
	"github.com/go-chi/chi/v5"
)

type credentials struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse - ответ на регистрацию и вход.
type authResponse struct {
	Token string       `json:"token"`
	User  *domain.User `json:"user"`
	Type  string       `json:"type"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var input credentials
	if err := decodeJSON(r, &input); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if input.Password == "" {
		h.writeError(w, &storage.ValidationError{Field: "password", Msg: "password cannot be empty"})
		return
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Новый пользователь всегда начинает с нулевой маской доступа
	user, err := h.store.CreateUser(r.Context(), &domain.User{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: hash,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	token, err := auth.GenerateToken(h.jwtSecret, h.tokenTTL, user)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info().Str("user", user.ID).Msg("user registered")
	h.writeJSON(w, http.StatusCreated, &authResponse{Token: token, User: user, Type: user.Type()})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var input credentials
	if err := decodeJSON(r, &input); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), input.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
			return
		}
		h.writeError(w, err)
		return
	}
	if !auth.CheckPassword(user.PasswordHash, input.Password) {
		h.writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	token, err := auth.GenerateToken(h.jwtSecret, h.tokenTTL, user)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, &authResponse{Token: token, User: user, Type: user.Type()})
}

type delegateInput struct {
	Perm int `json:"perm"`
}

// delegate меняет маску доступа другого пользователя по правилу
// "выдать все уровни вплоть до запрошенного".
func (h *Handler) delegate(w http.ResponseWriter, r *http.Request) {
	var input delegateInput
	if err := decodeJSON(r, &input); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx := r.Context()
	actor := auth.UserFrom(ctx)
	targetID := chi.URLParam(r, "id")

	ok, err := h.store.Delegate(ctx, actor, targetID, input.Perm)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !ok {
		h.writeError(w, storage.ErrForbidden)
		return
	}

	target, err := h.store.GetUserByID(ctx, targetID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info().Str("actor", actor.ID).Str("target", target.ID).Int("perm", target.Perm).Msg("permissions delegated")
	h.writeJSON(w, http.StatusOK, map[string]any{"user": target, "type": target.Type()})
}
