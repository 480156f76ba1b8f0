package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/UkralStul/blog-platform/internal/domain"
	"github.com/UkralStul/blog-platform/internal/storage"
	"github.com/gosimple/slug"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store реализует интерфейс Storage с использованием PostgreSQL.
type Store struct {
	db                *gorm.DB
	recordNoopUpdates bool
}

// Option настраивает поведение хранилища.
type Option func(*Store)

// WithRecordNoopUpdates управляет записью "update_post" для правок,
// которые ничего не изменили.
func WithRecordNoopUpdates(record bool) Option {
	return func(s *Store) { s.recordNoopUpdates = record }
}

// New создает новый экземпляр хранилища PostgreSQL.
func New(dsn string, opts ...Option) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Выполняем миграцию схемы
	if err := db.AutoMigrate(
		&domain.User{},
		&domain.Category{},
		&domain.Post{},
		&domain.Comment{},
		&domain.Reply{},
		&domain.Task{},
		&domain.Activity{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s := &Store{db: db, recordNoopUpdates: true}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// record добавляет запись журнала активности внутри транзакции мутации,
// чтобы снаружи не было видно частичного состояния.
func record(tx *gorm.DB, subject domain.Subject, actorID, info string) error {
	return tx.Create(&domain.Activity{
		Info:        info,
		OwnerID:     actorID,
		SubjectType: subject.Type,
		SubjectID:   subject.ID,
	}).Error
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return storage.ErrNotFound
	}
	return err
}

// === User Methods ===

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	if strings.TrimSpace(user.Email) == "" {
		return nil, &storage.ValidationError{Field: "email", Msg: "email cannot be empty"}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.User{}).Where("email = ?", user.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &storage.ValidationError{Field: "email", Msg: "email is already registered"}
		}
		return tx.Create(user).Error
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &user, nil
}

func (s *Store) Delegate(ctx context.Context, actor *domain.User, targetID string, requested int) (bool, error) {
	if !actor.CanDelegate() {
		return false, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target domain.User
		if err := tx.First(&target, "id = ?", targetID).Error; err != nil {
			return translateNotFound(err)
		}
		return tx.Model(&target).Update("perm", domain.GrantUpTo(requested)).Error
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, actor *domain.User, post *domain.Post) (*domain.Post, error) {
	if strings.TrimSpace(post.Title) == "" {
		return nil, &storage.ValidationError{Field: "title", Msg: "title cannot be empty"}
	}
	if strings.TrimSpace(post.Body) == "" {
		return nil, &storage.ValidationError{Field: "body", Msg: "body cannot be empty"}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		post.Slug = slug.Make(post.Title)
		post.OwnerID = actor.ID

		var count int64
		if err := tx.Model(&domain.Post{}).Where("slug = ?", post.Slug).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return &storage.ValidationError{Field: "title", Msg: "post with the same title already exists"}
		}

		if err := tx.Create(post).Error; err != nil {
			return err
		}
		return record(tx, post.Subject(), actor.ID, domain.ActivityCreatePost)
	})
	if err != nil {
		return nil, err
	}
	post.Owner = actor
	return post, nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	var post domain.Post
	err := s.db.WithContext(ctx).
		Preload("Owner").Preload("Members").Preload("Categories").
		First(&post, "id = ?", id).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &post, nil
}

func (s *Store) GetPostBySlug(ctx context.Context, postSlug string) (*domain.Post, error) {
	var post domain.Post
	err := s.db.WithContext(ctx).
		Preload("Owner").Preload("Members").Preload("Categories").
		First(&post, "slug = ?", postSlug).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &post, nil
}

func (s *Store) ListPosts(ctx context.Context, limit, offset int) ([]*domain.Post, error) {
	var posts []*domain.Post
	err := s.db.WithContext(ctx).
		Preload("Owner").Preload("Categories").
		Order("created_at DESC").Limit(limit).Offset(offset).
		Find(&posts).Error
	return posts, err
}

func (s *Store) UpdatePost(ctx context.Context, actor *domain.User, postID string, upd storage.PostUpdate) (*domain.Post, error) {
	if strings.TrimSpace(upd.Title) == "" {
		return nil, &storage.ValidationError{Field: "title", Msg: "title cannot be empty"}
	}
	if strings.TrimSpace(upd.Body) == "" {
		return nil, &storage.ValidationError{Field: "body", Msg: "body cannot be empty"}
	}

	var post domain.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Members").First(&post, "id = ?", postID).Error; err != nil {
			return translateNotFound(err)
		}
		if post.OwnerID != actor.ID && !post.HasMember(actor.ID) && !actor.CanDo(domain.PermDeletePosts) {
			return storage.ErrForbidden
		}

		changed := post.Title != upd.Title || post.Body != upd.Body

		if post.Title != upd.Title {
			// Смена заголовка пересчитывает slug
			newSlug := slug.Make(upd.Title)
			var count int64
			if err := tx.Model(&domain.Post{}).
				Where("slug = ? AND id <> ?", newSlug, post.ID).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return &storage.ValidationError{Field: "title", Msg: "post with the same title already exists"}
			}
			post.Slug = newSlug
		}

		post.Title = upd.Title
		post.Body = upd.Body
		if err := tx.Save(&post).Error; err != nil {
			return err
		}

		if changed || s.recordNoopUpdates {
			return record(tx, post.Subject(), actor.ID, domain.ActivityUpdatePost)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *Store) DeletePost(ctx context.Context, actor *domain.User, postID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post domain.Post
		if err := tx.First(&post, "id = ?", postID).Error; err != nil {
			return translateNotFound(err)
		}
		if post.OwnerID != actor.ID && !actor.CanDo(domain.PermDeletePosts) {
			return storage.ErrForbidden
		}

		// Каскад руками: журналы комментариев и поста, ответы, комментарии,
		// задачи, связи, затем сам пост
		var commentIDs []string
		if err := tx.Model(&domain.Comment{}).Where("post_id = ?", post.ID).
			Pluck("id", &commentIDs).Error; err != nil {
			return err
		}
		if len(commentIDs) > 0 {
			if err := tx.Where("subject_type = ? AND subject_id IN ?", domain.SubjectComment, commentIDs).
				Delete(&domain.Activity{}).Error; err != nil {
				return err
			}
			if err := tx.Where("comment_id IN ?", commentIDs).Delete(&domain.Reply{}).Error; err != nil {
				return err
			}
			if err := tx.Where("post_id = ?", post.ID).Delete(&domain.Comment{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("subject_type = ? AND subject_id = ?", domain.SubjectPost, post.ID).
			Delete(&domain.Activity{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&domain.Task{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&post).Association("Members").Clear(); err != nil {
			return err
		}
		if err := tx.Model(&post).Association("Categories").Clear(); err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
}

func (s *Store) InviteMember(ctx context.Context, actor *domain.User, postID, email string) (*domain.Post, error) {
	var post domain.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Members").First(&post, "id = ?", postID).Error; err != nil {
			return translateNotFound(err)
		}
		// Приглашать может только владелец поста
		if post.OwnerID != actor.ID {
			return storage.ErrForbidden
		}

		var invitee domain.User
		if err := tx.First(&invitee, "email = ?", email).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &storage.ValidationError{Field: "userEmail", Msg: "user is not registered at this site"}
			}
			return err
		}

		// Повторное приглашение не дублирует участника и не пишется в журнал
		if post.HasMember(invitee.ID) {
			return nil
		}

		if err := tx.Model(&post).Association("Members").Append(&invitee); err != nil {
			return err
		}
		post.Members = append(post.Members, &invitee)
		return record(tx, post.Subject(), actor.ID, domain.ActivityAddMember)
	})
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (s *Store) AttachCategory(ctx context.Context, actor *domain.User, postID, categoryID string) error {
	if !actor.CanDo(domain.PermAddCategories) {
		return storage.ErrForbidden
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post domain.Post
		if err := tx.First(&post, "id = ?", postID).Error; err != nil {
			return translateNotFound(err)
		}
		var category domain.Category
		if err := tx.First(&category, "id = ?", categoryID).Error; err != nil {
			return translateNotFound(err)
		}
		// Append для many2many идемпотентен по ключу связи
		return tx.Model(&post).Association("Categories").Append(&category)
	})
}

// === Category Methods ===

func (s *Store) CreateCategory(ctx context.Context, actor *domain.User, category *domain.Category) (*domain.Category, error) {
	if !actor.CanDo(domain.PermAddCategories) {
		return nil, storage.ErrForbidden
	}
	if strings.TrimSpace(category.Title) == "" {
		return nil, &storage.ValidationError{Field: "title", Msg: "title cannot be empty"}
	}

	if err := s.db.WithContext(ctx).Create(category).Error; err != nil {
		return nil, err
	}
	return category, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	var categories []*domain.Category
	err := s.db.WithContext(ctx).Order("title ASC").Find(&categories).Error
	return categories, err
}

func (s *Store) GetCategoryByID(ctx context.Context, id string) (*domain.Category, error) {
	var category domain.Category
	err := s.db.WithContext(ctx).
		Preload("Posts", func(db *gorm.DB) *gorm.DB {
			return db.Order("posts.created_at DESC")
		}).
		First(&category, "id = ?", id).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &category, nil
}

// === Comment Methods ===

func (s *Store) CreateComment(ctx context.Context, actor *domain.User, comment *domain.Comment) (*domain.Comment, error) {
	if strings.TrimSpace(comment.Body) == "" {
		return nil, &storage.ValidationError{Field: "body", Msg: "comment body cannot be empty"}
	}
	if len(comment.Body) > 2000 {
		return nil, &storage.ValidationError{Field: "body", Msg: "comment body is too long"}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Post{}).Where("id = ?", comment.PostID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return storage.ErrNotFound
		}

		comment.OwnerID = actor.ID
		if err := tx.Create(comment).Error; err != nil {
			return err
		}
		return record(tx, comment.Subject(), actor.ID, domain.ActivityCreateComment)
	})
	if err != nil {
		return nil, err
	}
	comment.Owner = actor
	return comment, nil
}

func (s *Store) GetCommentByID(ctx context.Context, id string) (*domain.Comment, error) {
	var comment domain.Comment
	if err := s.db.WithContext(ctx).Preload("Owner").First(&comment, "id = ?", id).Error; err != nil {
		return nil, translateNotFound(err)
	}
	return &comment, nil
}

func (s *Store) CommentsByPostID(ctx context.Context, postID string, args storage.PaginationArgs) ([]*domain.Comment, error) {
	var comments []*domain.Comment
	query := s.db.WithContext(ctx).
		Preload("Owner").
		Where("post_id = ?", postID).
		Order("created_at ASC")

	if args.Limit > 0 {
		query = query.Limit(args.Limit)
	}

	// Курсорная пагинация: берем записи, созданные после курсора
	if args.Cursor != nil {
		var cursorComment domain.Comment
		if err := s.db.First(&cursorComment, "id = ?", *args.Cursor).Error; err == nil {
			query = query.Where("created_at > ?", cursorComment.CreatedAt)
		}
	}

	err := query.Find(&comments).Error
	return comments, err
}

func (s *Store) DeleteComment(ctx context.Context, actor *domain.User, commentID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var comment domain.Comment
		if err := tx.First(&comment, "id = ?", commentID).Error; err != nil {
			return translateNotFound(err)
		}
		// Чужой комментарий может удалить только админ
		if comment.OwnerID != actor.ID && actor.Type() != "admin" {
			return storage.ErrForbidden
		}

		if err := tx.Where("comment_id = ?", comment.ID).Delete(&domain.Reply{}).Error; err != nil {
			return err
		}
		if err := tx.Where("subject_type = ? AND subject_id = ?", domain.SubjectComment, comment.ID).
			Delete(&domain.Activity{}).Error; err != nil {
			return err
		}
		return tx.Delete(&comment).Error
	})
}

// === Reply Methods ===

func (s *Store) CreateReply(ctx context.Context, actor *domain.User, reply *domain.Reply) (*domain.Reply, error) {
	if strings.TrimSpace(reply.Body) == "" {
		return nil, &storage.ValidationError{Field: "body", Msg: "reply body cannot be empty"}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&domain.Comment{}).Where("id = ?", reply.CommentID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return storage.ErrNotFound
		}
		reply.OwnerID = actor.ID
		return tx.Create(reply).Error
	})
	if err != nil {
		return nil, err
	}
	reply.Owner = actor
	return reply, nil
}

func (s *Store) RepliesByCommentID(ctx context.Context, commentID string) ([]*domain.Reply, error) {
	var replies []*domain.Reply
	err := s.db.WithContext(ctx).
		Preload("Owner").
		Where("comment_id = ?", commentID).
		Order("created_at ASC").
		Find(&replies).Error
	return replies, err
}

func (s *Store) RepliesByCommentIDs(ctx context.Context, commentIDs []string) (map[string][]*domain.Reply, error) {
	var replies []*domain.Reply
	// Загружаем ответы для всех комментариев одним запросом
	err := s.db.WithContext(ctx).
		Preload("Owner").
		Where("comment_id IN ?", commentIDs).
		Order("comment_id, created_at ASC").
		Find(&replies).Error
	if err != nil {
		return nil, err
	}

	result := make(map[string][]*domain.Reply, len(commentIDs))
	for _, r := range replies {
		result[r.CommentID] = append(result[r.CommentID], r)
	}
	return result, nil
}

// === Task Methods ===

func (s *Store) CreateTask(ctx context.Context, actor *domain.User, task *domain.Task) (*domain.Task, error) {
	if strings.TrimSpace(task.Body) == "" {
		return nil, &storage.ValidationError{Field: "body", Msg: "task body cannot be empty"}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post domain.Post
		if err := tx.Preload("Members").First(&post, "id = ?", task.PostID).Error; err != nil {
			return translateNotFound(err)
		}
		// Чек-лист ведут те же, кто может править пост
		if post.OwnerID != actor.ID && !post.HasMember(actor.ID) && !actor.CanDo(domain.PermDeletePosts) {
			return storage.ErrForbidden
		}
		task.Done = false
		task.OwnerID = actor.ID
		return tx.Create(task).Error
	})
	if err != nil {
		return nil, err
	}
	task.Owner = actor
	return task, nil
}

func (s *Store) ToggleTask(ctx context.Context, actor *domain.User, taskID string, done bool) (*domain.Task, error) {
	var task domain.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&task, "id = ?", taskID).Error; err != nil {
			return translateNotFound(err)
		}
		var post domain.Post
		if err := tx.Preload("Members").First(&post, "id = ?", task.PostID).Error; err != nil {
			return translateNotFound(err)
		}
		if post.OwnerID != actor.ID && !post.HasMember(actor.ID) && !actor.CanDo(domain.PermDeletePosts) {
			return storage.ErrForbidden
		}
		if err := tx.Model(&task).Update("done", done).Error; err != nil {
			return err
		}
		task.Done = done
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

func (s *Store) TasksByPostID(ctx context.Context, postID string) ([]*domain.Task, error) {
	var tasks []*domain.Task
	err := s.db.WithContext(ctx).
		Preload("Owner").
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Find(&tasks).Error
	return tasks, err
}

// === Activity Methods ===

func (s *Store) ActivityFor(ctx context.Context, subject domain.Subject) ([]*domain.Activity, error) {
	var entries []*domain.Activity
	err := s.db.WithContext(ctx).
		Preload("Owner").
		Where("subject_type = ? AND subject_id = ?", subject.Type, subject.ID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

func (s *Store) LatestActivityFor(ctx context.Context, subject domain.Subject) (*domain.Activity, error) {
	var entry domain.Activity
	err := s.db.WithContext(ctx).
		Preload("Owner").
		Where("subject_type = ? AND subject_id = ?", subject.Type, subject.ID).
		Order("created_at DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}
