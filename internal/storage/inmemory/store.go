package inmemory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/UkralStul/blog-platform/internal/domain"
	"github.com/UkralStul/blog-platform/internal/storage"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// Store реализует интерфейс Storage в памяти.
type Store struct {
	mu               sync.RWMutex
	users            map[string]*domain.User
	userIDByEmail    map[string]string
	posts            map[string]*domain.Post
	postIDBySlug     map[string]string
	categories       map[string]*domain.Category
	comments         map[string]*domain.Comment
	commentsByPost   map[string][]string // map[postID][]commentID
	replies          map[string]*domain.Reply
	repliesByComment map[string][]string // map[commentID][]replyID
	tasks            map[string]*domain.Task
	tasksByPost      map[string][]string // map[postID][]taskID
	activities       map[domain.Subject][]*domain.Activity

	recordNoopUpdates bool
}

// Option настраивает поведение хранилища.
type Option func(*Store)

// WithRecordNoopUpdates управляет записью активности "update_post"
// для правок, которые ничего не изменили. По умолчанию запись ведется
// на каждый вызов правки.
func WithRecordNoopUpdates(record bool) Option {
	return func(s *Store) { s.recordNoopUpdates = record }
}

// New создает новый экземпляр in-memory хранилища.
func New(opts ...Option) *Store {
	s := &Store{
		users:             make(map[string]*domain.User),
		userIDByEmail:     make(map[string]string),
		posts:             make(map[string]*domain.Post),
		postIDBySlug:      make(map[string]string),
		categories:        make(map[string]*domain.Category),
		comments:          make(map[string]*domain.Comment),
		commentsByPost:    make(map[string][]string),
		replies:           make(map[string]*domain.Reply),
		repliesByComment:  make(map[string][]string),
		tasks:             make(map[string]*domain.Task),
		tasksByPost:       make(map[string][]string),
		activities:        make(map[domain.Subject][]*domain.Activity),
		recordNoopUpdates: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// record добавляет запись в журнал активности сущности.
// Вызывается только под write-блокировкой, вместе с самой мутацией.
func (s *Store) record(subject domain.Subject, actorID, info string) *domain.Activity {
	activity := &domain.Activity{
		ID:          uuid.NewString(),
		Info:        info,
		OwnerID:     actorID,
		Owner:       s.users[actorID],
		SubjectType: subject.Type,
		SubjectID:   subject.ID,
		CreatedAt:   time.Now().UTC(),
	}
	s.activities[subject] = append(s.activities[subject], activity)
	return activity
}

// === User Methods ===

func (s *Store) CreateUser(ctx context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(user.Email) == "" {
		return nil, &storage.ValidationError{Field: "email", Msg: "email cannot be empty"}
	}
	if _, taken := s.userIDByEmail[user.Email]; taken {
		return nil, &storage.ValidationError{Field: "email", Msg: "email is already registered"}
	}

	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()
	s.users[user.ID] = user
	s.userIDByEmail[user.Email] = user.ID
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userIDByEmail[email]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.users[id], nil
}

func (s *Store) Delegate(ctx context.Context, actor *domain.User, targetID string, requested int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Проверка под блокировкой: маску actor мог параллельно
	// пересчитать другой вызов Delegate.
	// Отказ без мутации - это не ошибка, а штатный ответ движка прав.
	if !actor.CanDelegate() {
		return false, nil
	}

	target, ok := s.users[targetID]
	if !ok {
		return false, storage.ErrNotFound
	}
	target.Perm = domain.GrantUpTo(requested)
	return true, nil
}

// === Post Methods ===

func (s *Store) CreatePost(ctx context.Context, actor *domain.User, post *domain.Post) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(post.Title) == "" {
		return nil, &storage.ValidationError{Field: "title", Msg: "title cannot be empty"}
	}
	if strings.TrimSpace(post.Body) == "" {
		return nil, &storage.ValidationError{Field: "body", Msg: "body cannot be empty"}
	}

	postSlug := slug.Make(post.Title)
	if _, taken := s.postIDBySlug[postSlug]; taken {
		return nil, &storage.ValidationError{Field: "title", Msg: "post with the same title already exists"}
	}

	now := time.Now().UTC()
	post.ID = uuid.NewString()
	post.Slug = postSlug
	post.OwnerID = actor.ID
	post.Owner = actor
	post.CreatedAt = now
	post.UpdatedAt = now
	s.posts[post.ID] = post
	s.postIDBySlug[post.Slug] = post.ID

	s.record(post.Subject(), actor.ID, domain.ActivityCreatePost)
	return post, nil
}

func (s *Store) GetPostByID(ctx context.Context, id string) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, ok := s.posts[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return post, nil
}

func (s *Store) GetPostBySlug(ctx context.Context, postSlug string) (*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.postIDBySlug[postSlug]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.posts[id], nil
}

func (s *Store) ListPosts(ctx context.Context, limit, offset int) ([]*domain.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	allPosts := make([]*domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		allPosts = append(allPosts, p)
	}

	sort.SliceStable(allPosts, func(i, j int) bool {
		return allPosts[i].CreatedAt.After(allPosts[j].CreatedAt)
	})

	start := offset
	if start >= len(allPosts) {
		return []*domain.Post{}, nil
	}
	end := start + limit
	if end > len(allPosts) {
		end = len(allPosts)
	}
	return allPosts[start:end], nil
}

// canEditPost - владелец, участник или пользователь с правом удаления
// чужих постов.
func canEditPost(actor *domain.User, post *domain.Post) bool {
	return post.OwnerID == actor.ID ||
		post.HasMember(actor.ID) ||
		actor.CanDo(domain.PermDeletePosts)
}

func (s *Store) UpdatePost(ctx context.Context, actor *domain.User, postID string, upd storage.PostUpdate) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if !canEditPost(actor, post) {
		return nil, storage.ErrForbidden
	}
	if strings.TrimSpace(upd.Title) == "" {
		return nil, &storage.ValidationError{Field: "title", Msg: "title cannot be empty"}
	}
	if strings.TrimSpace(upd.Body) == "" {
		return nil, &storage.ValidationError{Field: "body", Msg: "body cannot be empty"}
	}

	changed := post.Title != upd.Title || post.Body != upd.Body

	if post.Title != upd.Title {
		// Смена заголовка пересчитывает slug
		newSlug := slug.Make(upd.Title)
		if otherID, taken := s.postIDBySlug[newSlug]; taken && otherID != post.ID {
			return nil, &storage.ValidationError{Field: "title", Msg: "post with the same title already exists"}
		}
		delete(s.postIDBySlug, post.Slug)
		post.Slug = newSlug
		s.postIDBySlug[newSlug] = post.ID
	}

	post.Title = upd.Title
	post.Body = upd.Body
	post.UpdatedAt = time.Now().UTC()

	// Одна запись на вызов правки, сколько бы полей ни поменялось
	if changed || s.recordNoopUpdates {
		s.record(post.Subject(), actor.ID, domain.ActivityUpdatePost)
	}
	return post, nil
}

func (s *Store) DeletePost(ctx context.Context, actor *domain.User, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return storage.ErrNotFound
	}
	if post.OwnerID != actor.ID && !actor.CanDo(domain.PermDeletePosts) {
		return storage.ErrForbidden
	}

	// Каскад: комментарии с их ответами и журналами, задачи, затем сам пост
	for _, commentID := range s.commentsByPost[postID] {
		s.dropComment(commentID)
	}
	delete(s.commentsByPost, postID)
	for _, taskID := range s.tasksByPost[postID] {
		delete(s.tasks, taskID)
	}
	delete(s.tasksByPost, postID)
	delete(s.activities, post.Subject())
	delete(s.postIDBySlug, post.Slug)
	delete(s.posts, postID)
	return nil
}

// dropComment удаляет комментарий вместе с ответами и журналом активности.
// Вызывается только под write-блокировкой.
func (s *Store) dropComment(commentID string) {
	comment, ok := s.comments[commentID]
	if !ok {
		return
	}
	for _, replyID := range s.repliesByComment[commentID] {
		delete(s.replies, replyID)
	}
	delete(s.repliesByComment, commentID)
	delete(s.activities, comment.Subject())
	delete(s.comments, commentID)
}

func (s *Store) InviteMember(ctx context.Context, actor *domain.User, postID, email string) (*domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	// Приглашать может только владелец поста
	if post.OwnerID != actor.ID {
		return nil, storage.ErrForbidden
	}

	inviteeID, registered := s.userIDByEmail[email]
	if !registered {
		return nil, &storage.ValidationError{Field: "userEmail", Msg: "user is not registered at this site"}
	}

	// Повторное приглашение не дублирует участника и не пишется в журнал
	if post.HasMember(inviteeID) {
		return post, nil
	}

	post.Members = append(post.Members, s.users[inviteeID])
	s.record(post.Subject(), actor.ID, domain.ActivityAddMember)
	return post, nil
}

func (s *Store) AttachCategory(ctx context.Context, actor *domain.User, postID, categoryID string) error {
	if !actor.CanDo(domain.PermAddCategories) {
		return storage.ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[postID]
	if !ok {
		return storage.ErrNotFound
	}
	category, ok := s.categories[categoryID]
	if !ok {
		return storage.ErrNotFound
	}

	for _, c := range post.Categories {
		if c.ID == categoryID {
			return nil
		}
	}
	post.Categories = append(post.Categories, category)
	return nil
}

// === Category Methods ===

func (s *Store) CreateCategory(ctx context.Context, actor *domain.User, category *domain.Category) (*domain.Category, error) {
	if !actor.CanDo(domain.PermAddCategories) {
		return nil, storage.ErrForbidden
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(category.Title) == "" {
		return nil, &storage.ValidationError{Field: "title", Msg: "title cannot be empty"}
	}

	category.ID = uuid.NewString()
	s.categories[category.ID] = category
	return category, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Title < all[j].Title })
	return all, nil
}

func (s *Store) GetCategoryByID(ctx context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	category, ok := s.categories[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	// Собираем посты рубрики на чтении: связь хранится на стороне постов
	posts := make([]*domain.Post, 0)
	for _, p := range s.posts {
		for _, c := range p.Categories {
			if c.ID == id {
				posts = append(posts, p)
				break
			}
		}
	}
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
	category.Posts = posts
	return category, nil
}

// === Comment Methods ===

func (s *Store) CreateComment(ctx context.Context, actor *domain.User, comment *domain.Comment) (*domain.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[comment.PostID]; !ok {
		return nil, storage.ErrNotFound
	}
	if strings.TrimSpace(comment.Body) == "" {
		return nil, &storage.ValidationError{Field: "body", Msg: "comment body cannot be empty"}
	}
	if len(comment.Body) > 2000 {
		return nil, &storage.ValidationError{Field: "body", Msg: "comment body is too long"}
	}

	comment.ID = uuid.NewString()
	comment.OwnerID = actor.ID
	comment.Owner = actor
	comment.CreatedAt = time.Now().UTC()
	s.comments[comment.ID] = comment
	s.commentsByPost[comment.PostID] = append(s.commentsByPost[comment.PostID], comment.ID)

	s.record(comment.Subject(), actor.ID, domain.ActivityCreateComment)
	return comment, nil
}

func (s *Store) GetCommentByID(ctx context.Context, id string) (*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comment, ok := s.comments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return comment, nil
}

func (s *Store) CommentsByPostID(ctx context.Context, postID string, args storage.PaginationArgs) ([]*domain.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	commentIDs, ok := s.commentsByPost[postID]
	if !ok {
		return []*domain.Comment{}, nil
	}
	return s.paginateComments(commentIDs, args), nil
}

// paginateComments - вспомогательная функция для пагинации
func (s *Store) paginateComments(ids []string, args storage.PaginationArgs) []*domain.Comment {
	allComments := make([]*domain.Comment, 0, len(ids))
	for _, id := range ids {
		if c, ok := s.comments[id]; ok {
			allComments = append(allComments, c)
		}
	}
	// Сортируем по времени создания, чтобы пагинация была консистентной
	sort.SliceStable(allComments, func(i, j int) bool {
		return allComments[i].CreatedAt.Before(allComments[j].CreatedAt)
	})

	startIndex := 0
	if args.Cursor != nil {
		for i, c := range allComments {
			if c.ID == *args.Cursor {
				startIndex = i + 1
				break
			}
		}
	}

	if startIndex >= len(allComments) {
		return []*domain.Comment{}
	}

	endIndex := len(allComments)
	if args.Limit > 0 && startIndex+args.Limit < endIndex {
		endIndex = startIndex + args.Limit
	}
	return allComments[startIndex:endIndex]
}

func (s *Store) DeleteComment(ctx context.Context, actor *domain.User, commentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	comment, ok := s.comments[commentID]
	if !ok {
		return storage.ErrNotFound
	}
	// Чужой комментарий может удалить только админ
	if comment.OwnerID != actor.ID && actor.Type() != "admin" {
		return storage.ErrForbidden
	}

	ids := s.commentsByPost[comment.PostID]
	for i, id := range ids {
		if id == commentID {
			s.commentsByPost[comment.PostID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	s.dropComment(commentID)
	return nil
}

// === Reply Methods ===

func (s *Store) CreateReply(ctx context.Context, actor *domain.User, reply *domain.Reply) (*domain.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.comments[reply.CommentID]; !ok {
		return nil, storage.ErrNotFound
	}
	if strings.TrimSpace(reply.Body) == "" {
		return nil, &storage.ValidationError{Field: "body", Msg: "reply body cannot be empty"}
	}

	reply.ID = uuid.NewString()
	reply.OwnerID = actor.ID
	reply.Owner = actor
	reply.CreatedAt = time.Now().UTC()
	s.replies[reply.ID] = reply
	s.repliesByComment[reply.CommentID] = append(s.repliesByComment[reply.CommentID], reply.ID)
	return reply, nil
}

func (s *Store) RepliesByCommentID(ctx context.Context, commentID string) ([]*domain.Reply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repliesLocked(commentID), nil
}

func (s *Store) RepliesByCommentIDs(ctx context.Context, commentIDs []string) (map[string][]*domain.Reply, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make(map[string][]*domain.Reply, len(commentIDs))
	for _, id := range commentIDs {
		results[id] = s.repliesLocked(id)
	}
	return results, nil
}

func (s *Store) repliesLocked(commentID string) []*domain.Reply {
	ids := s.repliesByComment[commentID]
	replies := make([]*domain.Reply, 0, len(ids))
	for _, id := range ids {
		if r, ok := s.replies[id]; ok {
			replies = append(replies, r)
		}
	}
	sort.SliceStable(replies, func(i, j int) bool {
		return replies[i].CreatedAt.Before(replies[j].CreatedAt)
	})
	return replies
}

// === Task Methods ===

func (s *Store) CreateTask(ctx context.Context, actor *domain.User, task *domain.Task) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	post, ok := s.posts[task.PostID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	// Чек-лист ведут те же, кто может править пост
	if !canEditPost(actor, post) {
		return nil, storage.ErrForbidden
	}
	if strings.TrimSpace(task.Body) == "" {
		return nil, &storage.ValidationError{Field: "body", Msg: "task body cannot be empty"}
	}

	now := time.Now().UTC()
	task.ID = uuid.NewString()
	task.Done = false
	task.OwnerID = actor.ID
	task.Owner = actor
	task.CreatedAt = now
	task.UpdatedAt = now
	s.tasks[task.ID] = task
	s.tasksByPost[task.PostID] = append(s.tasksByPost[task.PostID], task.ID)
	return task, nil
}

func (s *Store) ToggleTask(ctx context.Context, actor *domain.User, taskID string, done bool) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, ok := s.tasks[taskID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	post, ok := s.posts[task.PostID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if !canEditPost(actor, post) {
		return nil, storage.ErrForbidden
	}

	task.Done = done
	task.UpdatedAt = time.Now().UTC()
	return task, nil
}

func (s *Store) TasksByPostID(ctx context.Context, postID string) ([]*domain.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.tasksByPost[postID]
	tasks := make([]*domain.Task, 0, len(ids))
	for _, id := range ids {
		if task, ok := s.tasks[id]; ok {
			tasks = append(tasks, task)
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// === Activity Methods ===

func (s *Store) ActivityFor(ctx context.Context, subject domain.Subject) ([]*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.activities[subject]
	// Журнал append-only, порядок вставки и есть хронологический
	out := make([]*domain.Activity, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *Store) LatestActivityFor(ctx context.Context, subject domain.Subject) (*domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.activities[subject]
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[len(entries)-1], nil
}
