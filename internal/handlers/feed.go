package handlers

import (
	"context"
	"net/http"

	"github.com/UkralStul/blog-platform/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// latestActivityID возвращает ID последней записи журнала сущности.
// Пустой журнал дает пустую строку.
func (h *Handler) latestActivityID(ctx context.Context, subject domain.Subject) string {
	latest, err := h.store.LatestActivityFor(ctx, subject)
	if err != nil || latest == nil {
		return ""
	}
	return latest.ID
}

// publishNewActivity отправляет последнюю запись журнала сущности
// подписчикам живой ленты поста. Если после мутации журнал не вырос
// (запись с ID prevID все еще последняя), в ленту ничего не уходит:
// повторная отправка старой записи выглядела бы как новое событие.
func (h *Handler) publishNewActivity(ctx context.Context, postID string, subject domain.Subject, prevID string) {
	latest, err := h.store.LatestActivityFor(ctx, subject)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load latest activity for feed")
		return
	}
	if latest == nil || latest.ID == prevID {
		return
	}
	h.observer.Publish(postID, latest)
}

// ActivityFeed - websocket-лента журнала активности поста.
// Монтируется отдельно от API-маршрутов.
func (h *Handler) ActivityFeed(w http.ResponseWriter, r *http.Request) {
	post, err := h.store.GetPostBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отвечает клиенту при ошибке рукопожатия
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	activities, cancel := h.observer.Subscribe(post.ID)
	defer cancel()

	// Читатель нужен только чтобы заметить закрытие соединения
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case activity, ok := <-activities:
			if !ok {
				return
			}
			if err := conn.WriteJSON(activity); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
