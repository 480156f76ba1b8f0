package handlers

import (
	"net/http"

	"github.com/UkralStul/blog-platform/internal/auth"
	"github.com/UkralStul/blog-platform/internal/domain"
	"github.com/go-chi/chi/v5"
)

type taskInput struct {
	Body string `json:"body"`
}

func (h *Handler) createTask(w http.ResponseWriter, r *http.Request) {
	var input taskInput
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
	task, err := h.store.CreateTask(ctx, actor, &domain.Task{
		PostID: post.ID,
		Body:   input.Body,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) toggleTask(w http.ResponseWriter, r *http.Request) {
	var input struct {
		Done bool `json:"done"`
	}
	if err := decodeJSON(r, &input); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	ctx := r.Context()
	actor := auth.UserFrom(ctx)
	task, err := h.store.ToggleTask(ctx, actor, chi.URLParam(r, "id"), input.Done)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, task)
}
