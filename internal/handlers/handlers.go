package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/UkralStul/blog-platform/internal/auth"
	"github.com/UkralStul/blog-platform/internal/feed"
	"github.com/UkralStul/blog-platform/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler держит зависимости HTTP-слоя. Сам слой тонкий:
// проверки прав и запись активности живут в хранилище.
type Handler struct {
	store     storage.Storage
	observer  *feed.Observer
	log       zerolog.Logger
	jwtSecret string
	tokenTTL  time.Duration
}

// New создает обработчик с его зависимостями.
func New(store storage.Storage, observer *feed.Observer, log zerolog.Logger, jwtSecret string, tokenTTL time.Duration) *Handler {
	return &Handler{
		store:     store,
		observer:  observer,
		log:       log,
		jwtSecret: jwtSecret,
		tokenTTL:  tokenTTL,
	}
}

// Routes собирает маршруты API.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Публичные маршруты
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Get("/posts", h.listPosts)
	r.Get("/posts/{slug}", h.showPost)
	r.Get("/posts/{slug}/activity", h.postActivity)
	r.Get("/categories", h.listCategories)
	r.Get("/category/{id}", h.showCategory)

	// Маршруты под аутентификацией
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.jwtSecret, h.store))

		r.Post("/posts", h.createPost)
		r.Patch("/posts/{slug}", h.updatePost)
		r.Delete("/posts/{slug}", h.deletePost)
		r.Post("/posts/{slug}/invite", h.inviteMember)
		r.Post("/posts/{slug}/addCategory", h.attachCategory)
		r.Post("/posts/{slug}/comments", h.createComment)
		r.Post("/comments/{id}/replies", h.createReply)
		r.Delete("/comments/{id}", h.deleteComment)
		r.Post("/posts/{slug}/tasks", h.createTask)
		r.Patch("/tasks/{id}", h.toggleTask)
		r.Post("/categories", h.createCategory)
		r.Post("/users/{id}/permissions", h.delegate)
	})

	return r
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError транслирует отказы хранилища в HTTP-статусы:
// forbidden - фиксированный отказ доступа, ошибки валидации
// возвращаются рядом с полем ввода.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var vErr *storage.ValidationError

	switch {
	case errors.Is(err, storage.ErrForbidden):
		h.writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case errors.Is(err, storage.ErrNotFound):
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.As(err, &vErr):
		h.writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"errors": map[string]string{vErr.Field: vErr.Msg},
		})
	default:
		h.log.Error().Err(err).Msg("request failed")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
