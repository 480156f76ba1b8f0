package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/UkralStul/blog-platform/internal/domain"
)

// Типовые отказы хранилища. Forbidden и NotFound - разные условия:
// первый транслируется вызывающим слоем в отказ доступа,
// второй - в отсутствие ресурса.
var (
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")
)

// ValidationError - ошибка валидации, привязанная к конкретному полю ввода,
// чтобы вызывающий слой мог вернуть ее рядом с этим полем.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// PaginationArgs - аргументы для пагинации.
type PaginationArgs struct {
	Limit  int
	Cursor *string
}

// PostUpdate - изменяемые при правке поля поста.
type PostUpdate struct {
	Title string
	Body  string
}

// Storage определяет контракт для хранилищ.
//
// Мутации, защищенные проверкой прав, принимают действующего пользователя
// явным аргументом. Каждая мутация и ее запись активности выполняются
// в одной транзакции: частичное состояние наружу не видно.
type Storage interface {
	// Пользователи
	CreateUser(ctx context.Context, user *domain.User) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// Delegate пересчитывает маску доступа target по правилу GrantUpTo.
	// Возвращает false без изменений, если actor не вправе делегировать.
	Delegate(ctx context.Context, actor *domain.User, targetID string, requested int) (bool, error)

	// Посты
	CreatePost(ctx context.Context, actor *domain.User, post *domain.Post) (*domain.Post, error)
	GetPostByID(ctx context.Context, id string) (*domain.Post, error)
	GetPostBySlug(ctx context.Context, slug string) (*domain.Post, error)
	ListPosts(ctx context.Context, limit, offset int) ([]*domain.Post, error)
	UpdatePost(ctx context.Context, actor *domain.User, postID string, upd PostUpdate) (*domain.Post, error)
	DeletePost(ctx context.Context, actor *domain.User, postID string) error
	InviteMember(ctx context.Context, actor *domain.User, postID, email string) (*domain.Post, error)
	AttachCategory(ctx context.Context, actor *domain.User, postID, categoryID string) error

	// Рубрики
	CreateCategory(ctx context.Context, actor *domain.User, category *domain.Category) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]*domain.Category, error)
	GetCategoryByID(ctx context.Context, id string) (*domain.Category, error)

	// Комментарии и ответы
	CreateComment(ctx context.Context, actor *domain.User, comment *domain.Comment) (*domain.Comment, error)
	GetCommentByID(ctx context.Context, id string) (*domain.Comment, error)
	CommentsByPostID(ctx context.Context, postID string, args PaginationArgs) ([]*domain.Comment, error)
	DeleteComment(ctx context.Context, actor *domain.User, commentID string) error
	CreateReply(ctx context.Context, actor *domain.User, reply *domain.Reply) (*domain.Reply, error)
	RepliesByCommentID(ctx context.Context, commentID string) ([]*domain.Reply, error)

	// Задачи (чек-лист поста; гейт тот же, что на правку поста)
	CreateTask(ctx context.Context, actor *domain.User, task *domain.Task) (*domain.Task, error)
	ToggleTask(ctx context.Context, actor *domain.User, taskID string, done bool) (*domain.Task, error)
	TasksByPostID(ctx context.Context, postID string) ([]*domain.Task, error)

	// Метод для батч-загрузки ответов при сборке дерева комментариев
	RepliesByCommentIDs(ctx context.Context, commentIDs []string) (map[string][]*domain.Reply, error)

	// Журнал активности
	ActivityFor(ctx context.Context, subject domain.Subject) ([]*domain.Activity, error)
	LatestActivityFor(ctx context.Context, subject domain.Subject) (*domain.Activity, error)
}
