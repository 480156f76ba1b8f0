package main

import (
	"context"
	"net/http"
	"os"

	"github.com/UkralStul/blog-platform/internal/auth"
	"github.com/UkralStul/blog-platform/internal/config"
	"github.com/UkralStul/blog-platform/internal/domain"
	"github.com/UkralStul/blog-platform/internal/feed"
	"github.com/UkralStul/blog-platform/internal/handlers"
	"github.com/UkralStul/blog-platform/internal/storage"
	"github.com/UkralStul/blog-platform/internal/storage/inmemory"
	"github.com/UkralStul/blog-platform/internal/storage/postgres"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := config.Load()

	var store storage.Storage
	var err error

	log.Info().Str("storage", cfg.StorageType).Msg("starting server")
	if cfg.StorageType == "postgres" {
		if cfg.DatabaseURL == "" {
			log.Fatal().Msg("DATABASE_URL must be set for postgres storage")
		}
		store, err = postgres.New(cfg.DatabaseURL, postgres.WithRecordNoopUpdates(cfg.RecordNoopUpdates))
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to postgres")
		}
	} else {
		store = inmemory.New(inmemory.WithRecordNoopUpdates(cfg.RecordNoopUpdates))
		// Заполним данными для тестов
		fillWithMockData(store, log)
	}

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	h := handlers.New(store, feed.NewObserver(), log, cfg.JWTSecret, cfg.TokenTTL)
	router.Mount("/api", h.Routes())
	router.Get("/ws/posts/{slug}/activity", h.ActivityFeed)

	log.Info().Str("port", cfg.Port).Msg("listening")
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatal().Err(err).Msg("server failed to start")
	}
}

func fillWithMockData(s storage.Storage, log zerolog.Logger) {
	ctx := context.Background()

	hash, err := auth.HashPassword("password")
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to hash password")
	}

	// 1. Админ со всеми уровнями доступа
	admin, err := s.CreateUser(ctx, &domain.User{
		Name:         "admin",
		Email:        "admin@example.com",
		PasswordHash: hash,
		Perm:         31,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create admin")
	}

	// 2. Обычный автор
	author, err := s.CreateUser(ctx, &domain.User{
		Name:         "author",
		Email:        "author@example.com",
		PasswordHash: hash,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create author")
	}

	// 3. Пост с рубрикой и комментарием
	post, err := s.CreatePost(ctx, author, &domain.Post{
		Title: "Тестовый пост о платформе",
		Body:  "Это содержимое тестового поста. Здесь мы обсуждаем посты, рубрики и журнал активности.",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create post")
	}

	category, err := s.CreateCategory(ctx, admin, &domain.Category{Title: "Go"})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create category")
	}
	if err := s.AttachCategory(ctx, admin, post.ID, category.ID); err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to attach category")
	}

	comment, err := s.CreateComment(ctx, admin, &domain.Comment{
		PostID: post.ID,
		Body:   "Отличный пост! Очень информативно.",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create comment")
	}
	if _, err := s.CreateReply(ctx, author, &domain.Reply{
		CommentID: comment.ID,
		Body:      "Спасибо! Рад, что вам понравилось.",
	}); err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create reply")
	}

	// 4. Приглашаем админа в участники поста
	if _, err := s.InviteMember(ctx, author, post.ID, admin.Email); err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to invite member")
	}

	// 5. Чек-лист поста
	task, err := s.CreateTask(ctx, author, &domain.Task{
		PostID: post.ID,
		Body:   "Вычитать текст перед публикацией",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create task")
	}
	if _, err := s.ToggleTask(ctx, author, task.ID, true); err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to toggle task")
	}
	if _, err := s.CreateTask(ctx, author, &domain.Task{
		PostID: post.ID,
		Body:   "Добавить обложку",
	}); err != nil {
		log.Fatal().Err(err).Msg("fillWithMockData: failed to create task")
	}

	log.Info().Str("post", post.Slug).Msg("mock data filled successfully")
}
