package handlers

import (
	"net/http"
	"strconv"

	"github.com/UkralStul/blog-platform/internal/auth"
	"github.com/UkralStul/blog-platform/internal/domain"
	"github.com/UkralStul/blog-platform/internal/storage"
	"github.com/go-chi/chi/v5"
)

type postInput struct {
	Title string  `json:"title"`
	Body  string  `json:"body"`
	Img   *string `json:"img,omitempty"`
}

// postListItem - элемент списка постов с кратким содержанием.
type postListItem struct {
	*domain.Post
	MiniBody string `json:"miniBody"`
	Path     string `json:"path"`
}

// postView - пост со всеми зависимостями для страницы поста.
type postView struct {
	*domain.Post
	Comments       []*domain.Comment `json:"comments"`
	Tasks          []*domain.Task    `json:"tasks"`
	LatestActivity *domain.Activity  `json:"latestActivity,omitempty"`
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	limit, offset := 10, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}

	posts, err := h.store.ListPosts(r.Context(), limit, offset)
	if err != nil {
		h.writeError(w, err)
		return
	}

	items := make([]*postListItem, len(posts))
	for i, p := range posts {
		items[i] = &postListItem{Post: p, MiniBody: p.MiniBody(), Path: p.Path()}
	}
	h.writeJSON(w, http.StatusOK, items)
}

func (h *Handler) showPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	post, err := h.store.GetPostBySlug(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	comments, err := h.store.CommentsByPostID(ctx, post.ID, storage.PaginationArgs{})
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Ответы для всех комментариев загружаются одним батч-запросом
	commentIDs := make([]string, len(comments))
	for i, c := range comments {
		commentIDs[i] = c.ID
	}
	replies, err := h.store.RepliesByCommentIDs(ctx, commentIDs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	for _, c := range comments {
		c.Replies = replies[c.ID]
	}

	tasks, err := h.store.TasksByPostID(ctx, post.ID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	latest, err := h.store.LatestActivityFor(ctx, post.Subject())
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, &postView{
		Post:           post,
		Comments:       comments,
		Tasks:          tasks,
		LatestActivity: latest,
	})
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	var input postInput
	if err := decodeJSON(r, &input); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	actor := auth.UserFrom(r.Context())
	post, err := h.store.CreatePost(r.Context(), actor, &domain.Post{
		Title: input.Title,
		Body:  input.Body,
		Img:   input.Img,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info().Str("post", post.ID).Str("actor", actor.ID).Msg("post created")
	h.writeJSON(w, http.StatusCreated, post)
}

func (h *Handler) updatePost(w http.ResponseWriter, r *http.Request) {
	var input postInput
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
	prevID := h.latestActivityID(ctx, post.Subject())
	updated, err := h.store.UpdatePost(ctx, actor, post.ID, storage.PostUpdate{
		Title: input.Title,
		Body:  input.Body,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.publishNewActivity(ctx, updated.ID, updated.Subject(), prevID)
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) deletePost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	post, err := h.store.GetPostBySlug(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	actor := auth.UserFrom(ctx)
	if err := h.store.DeletePost(ctx, actor, post.ID); err != nil {
		h.writeError(w, err)
		return
	}

	h.log.Info().Str("post", post.ID).Str("actor", actor.ID).Msg("post deleted")
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) inviteMember(w http.ResponseWriter, r *http.Request) {
	var input struct {
		UserEmail string `json:"userEmail"`
	}
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
	prevID := h.latestActivityID(ctx, post.Subject())
	updated, err := h.store.InviteMember(ctx, actor, post.ID, input.UserEmail)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.publishNewActivity(ctx, updated.ID, updated.Subject(), prevID)
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) attachCategory(w http.ResponseWriter, r *http.Request) {
	var input struct {
		CatID string `json:"catId"`
	}
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
	if err := h.store.AttachCategory(ctx, actor, post.ID, input.CatID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) postActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	post, err := h.store.GetPostBySlug(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	log, err := h.store.ActivityFor(ctx, post.Subject())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, log)
}
