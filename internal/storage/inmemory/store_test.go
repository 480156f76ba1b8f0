package inmemory

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/UkralStul/blog-platform/internal/domain"
	"github.com/UkralStul/blog-platform/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestUser регистрирует пользователя с заданной маской доступа
func newTestUser(t *testing.T, store *Store, email string, perm int) *domain.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), &domain.User{
		Name:  strings.Split(email, "@")[0],
		Email: email,
		Perm:  perm,
	})
	require.NoError(t, err)
	return user
}

// newTestStore создает хранилище, владельца и один пост для тестов
func newTestStore(t *testing.T) (*Store, *domain.User, *domain.Post) {
	t.Helper()
	store := New()
	owner := newTestUser(t, store, "owner@example.com", 0)
	post, err := store.CreatePost(context.Background(), owner, &domain.Post{
		Title: "Test Post",
		Body:  "Content of the test post",
	})
	require.NoError(t, err)
	return store, owner, post
}

func TestStore_CreateAndGetPost(t *testing.T) {
	store, _, post := newTestStore(t)
	ctx := context.Background()

	retrieved, err := store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, post.Title, retrieved.Title)

	// Slug выводится из заголовка и доступен для поиска
	assert.Equal(t, "test-post", post.Slug)
	bySlug, err := store.GetPostBySlug(ctx, "test-post")
	require.NoError(t, err)
	assert.Equal(t, post.ID, bySlug.ID)

	_, err = store.GetPostByID(ctx, "non-existent-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_CreatePost_DuplicateTitle(t *testing.T) {
	store, owner, _ := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreatePost(ctx, owner, &domain.Post{Title: "Test Post", Body: "Other body"})
	require.Error(t, err)

	var vErr *storage.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "title", vErr.Field)
}

func TestStore_UpdatePost_OwnerAndSlug(t *testing.T) {
	store, owner, post := newTestStore(t)
	ctx := context.Background()

	updated, err := store.UpdatePost(ctx, owner, post.ID, storage.PostUpdate{
		Title: "Renamed Post",
		Body:  "New body",
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed Post", updated.Title)
	// Смена заголовка пересчитывает slug, старый перестает работать
	assert.Equal(t, "renamed-post", updated.Slug)

	_, err = store.GetPostBySlug(ctx, "test-post")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = store.GetPostBySlug(ctx, "renamed-post")
	assert.NoError(t, err)
}

func TestStore_UpdatePost_Permissions(t *testing.T) {
	store, owner, post := newTestStore(t)
	ctx := context.Background()

	upd := storage.PostUpdate{Title: "Test Post", Body: "Edited body"}

	// Посторонний без прав получает отказ
	stranger := newTestUser(t, store, "stranger@example.com", 0)
	_, err := store.UpdatePost(ctx, stranger, post.ID, upd)
	assert.ErrorIs(t, err, storage.ErrForbidden)

	// Участник поста может править
	member := newTestUser(t, store, "member@example.com", 0)
	_, err = store.InviteMember(ctx, owner, post.ID, member.Email)
	require.NoError(t, err)
	_, err = store.UpdatePost(ctx, member, post.ID, upd)
	assert.NoError(t, err)

	// Пользователь с правом удаления чужих постов тоже может
	moderator := newTestUser(t, store, "mod@example.com", domain.GrantUpTo(domain.PermDeletePosts))
	_, err = store.UpdatePost(ctx, moderator, post.ID, upd)
	assert.NoError(t, err)
}

func TestStore_DeletePost_Permissions(t *testing.T) {
	store, owner, post := newTestStore(t)
	ctx := context.Background()

	stranger := newTestUser(t, store, "stranger@example.com", 0)
	err := store.DeletePost(ctx, stranger, post.ID)
	assert.ErrorIs(t, err, storage.ErrForbidden)

	moderator := newTestUser(t, store, "mod@example.com", domain.GrantUpTo(domain.PermDeletePosts))
	require.NoError(t, store.DeletePost(ctx, moderator, post.ID))

	_, err = store.GetPostByID(ctx, post.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Владелец удаляет свой пост без дополнительных прав
	post2, err := store.CreatePost(ctx, owner, &domain.Post{Title: "Second", Body: "Body"})
	require.NoError(t, err)
	assert.NoError(t, store.DeletePost(ctx, owner, post2.ID))
}

func TestStore_DeletePost_Cascades(t *testing.T) {
	store, owner, post := newTestStore(t)
	ctx := context.Background()

	comment, err := store.CreateComment(ctx, owner, &domain.Comment{PostID: post.ID, Body: "A comment"})
	require.NoError(t, err)
	_, err = store.CreateReply(ctx, owner, &domain.Reply{CommentID: comment.ID, Body: "A reply"})
	require.NoError(t, err)
	_, err = store.CreateTask(ctx, owner, &domain.Task{PostID: post.ID, Body: "A task"})
	require.NoError(t, err)

	require.NoError(t, store.DeletePost(ctx, owner, post.ID))

	_, err = store.GetCommentByID(ctx, comment.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Задачи поста удалены каскадом
	tasks, err := store.TasksByPostID(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	// Журналы поста и комментария удалены каскадом
	postLog, err := store.ActivityFor(ctx, post.Subject())
	require.NoError(t, err)
	assert.Empty(t, postLog)
	commentLog, err := store.ActivityFor(ctx, comment.Subject())
	require.NoError(t, err)
	assert.Empty(t, commentLog)
}

func TestStore_InviteMember(t *testing.T) {
	store, owner, post := newTestStore(t)
	ctx := context.Background()

	invitee := newTestUser(t, store, "invitee@example.com", 0)

	updated, err := store.InviteMember(ctx, owner, post.ID, invitee.Email)
	require.NoError(t, err)
	require.Len(t, updated.Members, 1)
	assert.Equal(t, invitee.ID, updated.Members[0].ID)

	// Повторное приглашение не дублирует участника
	updated, err = store.InviteMember(ctx, owner, post.ID, invitee.Email)
	require.NoError(t, err)
	assert.Len(t, updated.Members, 1)
}

func TestStore_InviteMember_OnlyOwner(t *testing.T) {
	store, _, post := newTestStore(t)
	ctx := context.Background()

	invitee := newTestUser(t, store, "invitee@example.com", 0)
	stranger := newTestUser(t, store, "stranger@example.com", 31)

	// Даже админ не приглашает в чужой пост
	_, err := store.InviteMember(ctx, stranger, post.ID, invitee.Email)
	assert.ErrorIs(t, err, storage.ErrForbidden)
}

func TestStore_InviteMember_MustBeRegistered(t *testing.T) {
	store, owner, post := newTestStore(t)
	ctx := context.Background()

	// Незарегистрированный адрес - ошибка валидации, а не отказ доступа
	_, err := store.InviteMember(ctx, owner, post.ID, "nobody@example.com")
	require.Error(t, err)

	var vErr *storage.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "userEmail", vErr.Field)
}

func TestStore_Delegate(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	admin := newTestUser(t, store, "admin@example.com", 31)
	target := newTestUser(t, store, "target@example.com", 0)

	// Запрошен уровень 2: выдаются биты 1 и 2, а не буквальное значение
	ok, err := store.Delegate(ctx, admin, target.ID, domain.PermDeletePosts)
	require.NoError(t, err)
	assert.True(t, ok)

	stored, err := store.GetUserByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, stored.Perm)
}

func TestStore_Delegate_RequiresEditUserAccess(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	actor := newTestUser(t, store, "super@example.com", domain.GrantUpTo(domain.PermEditCategories))
	target := newTestUser(t, store, "target@example.com", 5)

	ok, err := store.Delegate(ctx, actor, target.ID, 31)
	require.NoError(t, err)
	assert.False(t, ok)

	// Маска цели не изменилась
	stored, err := store.GetUserByID(ctx, target.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Perm)
}

func TestStore_Delegate_ConcurrentMaskChange(t *testing.T) {
	store, _, _ := newTestStore(t)
	ctx := context.Background()

	first := newTestUser(t, store, "first@example.com", 31)
	second := newTestUser(t, store, "second@example.com", 31)

	// Два админа одновременно пересчитывают маски друг друга:
	// проверка CanDelegate должна читать маску под той же блокировкой,
	// под которой ее пишет встречный вызов
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := store.Delegate(ctx, first, second.ID, 31)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := store.Delegate(ctx, second, first.ID, 31)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stored, err := store.GetUserByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, 31, stored.Perm)
}

func TestStore_AttachCategory(t *testing.T) {
	store, owner, post := newTestStore(t)
	ctx := context.Background()

	visor := newTestUser(t, store, "visor@example.com", domain.GrantUpTo(domain.PermAddCategories))
	category, err := store.CreateCategory(ctx, visor, &domain.Category{Title: "Go"})
	require.NoError(t, err)

	// Владелец без бита AddCategories не может привязать рубрику
	err = store.AttachCategory(ctx, owner, post.ID, category.ID)
	assert.ErrorIs(t, err, storage.ErrForbidden)

	require.NoError(t, store.AttachCategory(ctx, visor, post.ID, category.ID))

	// Повторная привязка не дублирует
	require.NoError(t, store.AttachCategory(ctx, visor, post.ID, category.ID))
	stored, err := store.GetPostByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Categories, 1)

	withPosts, err := store.GetCategoryByID(ctx, category.ID)
	require.NoError(t, err)
	require.Len(t, withPosts.Posts, 1)
	assert.Equal(t, post.ID, withPosts.Posts[0].ID)
}

func TestStore_CreateCategory_RequiresPermission(t *testing.T) {
	store, owner, _ := newTestStore(t)

	_, err := store.CreateCategory(context.Background(), owner, &domain.Category{Title: "Go"})
	assert.ErrorIs(t, err, storage.ErrForbidden)
}

func TestStore_CreateComment(t *testing.T) {
	store, _, post := newTestStore(t)
	ctx := context.Background()

	author := newTestUser(t, store, "author@example.com", 0)
	comment, err := store.CreateComment(ctx, author, &domain.Comment{PostID: post.ID, Body: "First comment!"})
	require.NoError(t, err)
	assert.NotEmpty(t, comment.ID)
	assert.Equal(t, author.ID, comment.OwnerID)

	comments, err := store.CommentsByPostID(ctx, post.ID, storage.PaginationArgs{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, comments, 1)
	assert.Equal(t, "First comment!", comments[0].Body)
}

func TestStore_CreateComment_Validation(t *testing.T) {
	store, owner, post := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateComment(ctx, owner, &domain.Comment{PostID: post.ID, Body: "  "})
	require.Error(t, err)

	longBody := strings.Repeat("a", 2001)
	_, err = store.CreateComment(ctx, owner, &domain.Comment{PostID: post.ID, Body: longBody})
	require.Error(t, err)

	_, err = store.CreateComment(ctx, owner, &domain.Comment{PostID: "missing", Body: "hello"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_DeleteComment_OnlyOwnerOrAdmin(t *testing.T) {
	store, _, post := newTestStore(t)
	ctx := context.Background()

	author := newTestUser(t, store, "author@example.com", 0)
	comment, err := store.CreateComment(ctx, author, &domain.Comment{PostID: post.ID, Body: "Delete me"})
	require.NoError(t, err)

	stranger := newTestUser(t, store, "stranger@example.com", 0)
	err = store.DeleteComment(ctx, stranger, comment.ID)
	assert.ErrorIs(t, err, storage.ErrForbidden)

	admin := newTestUser(t, store, "admin@example.com", 31)
	require.NoError(t, store.DeleteComment(ctx, admin, comment.ID))

	_, err = store.GetCommentByID(ctx, comment.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_Replies(t *testing.T) {
	store, owner, post := newTestStore(t)
	ctx := context.Background()

	comment, err := store.CreateComment(ctx, owner, &domain.Comment{PostID: post.ID, Body: "Parent"})
	require.NoError(t, err)

	replier := newTestUser(t, store, "replier@example.com", 0)
	reply, err := store.CreateReply(ctx, replier, &domain.Reply{CommentID: comment.ID, Body: "Child"})
	require.NoError(t, err)

	replies, err := store.RepliesByCommentID(ctx, comment.ID)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, reply.ID, replies[0].ID)

	// Батч-загрузка группирует ответы по комментариям
	batch, err := store.RepliesByCommentIDs(ctx, []string{comment.ID, "missing"})
	require.NoError(t, err)
	assert.Len(t, batch[comment.ID], 1)
	assert.Empty(t, batch["missing"])
}

func TestStore_Tasks(t *testing.T) {
	store, owner, post := newTestStore(t)
	ctx := context.Background()

	task, err := store.CreateTask(ctx, owner, &domain.Task{PostID: post.ID, Body: "Write the draft"})
	require.NoError(t, err)
	assert.NotEmpty(t, task.ID)
	assert.Equal(t, owner.ID, task.OwnerID)
	// Новая задача всегда не выполнена
	assert.False(t, task.Done)

	// Участник поста отмечает выполнение
	member := newTestUser(t, store, "member@example.com", 0)
	_, err = store.InviteMember(ctx, owner, post.ID, member.Email)
	require.NoError(t, err)

	toggled, err := store.ToggleTask(ctx, member, task.ID, true)
	require.NoError(t, err)
	assert.True(t, toggled.Done)

	tasks, err := store.TasksByPostID(ctx, post.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].Done)
}

func TestStore_Tasks_Permissions(t *testing.T) {
	store, owner, post := newTestStore(t)
	ctx := context.Background()

	// Посторонний не ведет чужой чек-лист
	stranger := newTestUser(t, store, "stranger@example.com", 0)
	_, err := store.CreateTask(ctx, stranger, &domain.Task{PostID: post.ID, Body: "Sneaky"})
	assert.ErrorIs(t, err, storage.ErrForbidden)

	task, err := store.CreateTask(ctx, owner, &domain.Task{PostID: post.ID, Body: "Review"})
	require.NoError(t, err)

	_, err = store.ToggleTask(ctx, stranger, task.ID, true)
	assert.ErrorIs(t, err, storage.ErrForbidden)

	_, err = store.CreateTask(ctx, owner, &domain.Task{PostID: post.ID, Body: "  "})
	var vErr *storage.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "body", vErr.Field)

	_, err = store.CreateTask(ctx, owner, &domain.Task{PostID: "missing", Body: "Lost"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_Pagination(t *testing.T) {
	store, owner, post := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.CreateComment(ctx, owner, &domain.Comment{PostID: post.ID, Body: "some comment"})
		require.NoError(t, err)
	}

	firstPage, err := store.CommentsByPostID(ctx, post.ID, storage.PaginationArgs{Limit: 2})
	require.NoError(t, err)
	require.Len(t, firstPage, 2)

	// Курсор - ID последнего элемента предыдущей страницы
	cursor := firstPage[1].ID
	secondPage, err := store.CommentsByPostID(ctx, post.ID, storage.PaginationArgs{Limit: 3, Cursor: &cursor})
	require.NoError(t, err)
	require.Len(t, secondPage, 3)

	assert.NotEqual(t, firstPage[0].ID, secondPage[0].ID)
	assert.NotEqual(t, firstPage[1].ID, secondPage[0].ID)
}

func TestStore_CreateUser_DuplicateEmail(t *testing.T) {
	store := New()
	ctx := context.Background()

	_, err := store.CreateUser(ctx, &domain.User{Name: "a", Email: "a@example.com"})
	require.NoError(t, err)

	_, err = store.CreateUser(ctx, &domain.User{Name: "b", Email: "a@example.com"})
	var vErr *storage.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "email", vErr.Field)
}
