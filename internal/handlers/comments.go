package handlers

import (
	"net/http"

	"github.com/UkralStul/blog-platform/internal/auth"
	"github.com/UkralStul/blog-platform/internal/domain"
	"github.com/go-chi/chi/v5"
)

type commentInput struct {
	Body string `json:"body"`
}

func (h *Handler) createComment(w http.ResponseWriter, r *http.Request) {
	var input commentInput
	if err := decodeJSON(r, &input); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx := r.Context()
	post, err := h.store.GetPostBySlug(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	actor := auth.UserFrom(ctx)
	comment, err := h.store.CreateComment(ctx, actor, &domain.Comment{
		PostID: post.ID,
		Body:   input.Body,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Живая лента поста видит и новые комментарии:
	// журнал свежего комментария заведомо новый
	h.publishNewActivity(ctx, post.ID, comment.Subject(), "")
	h.writeJSON(w, http.StatusCreated, comment)
}

func (h *Handler) createReply(w http.ResponseWriter, r *http.Request) {
	var input commentInput
	if err := decodeJSON(r, &input); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx := r.Context()
	actor := auth.UserFrom(ctx)
	reply, err := h.store.CreateReply(ctx, actor, &domain.Reply{
		CommentID: chi.URLParam(r, "id"),
		Body:      input.Body,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, reply)
}

func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := auth.UserFrom(ctx)

	if err := h.store.DeleteComment(ctx, actor, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}
