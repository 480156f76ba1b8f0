package domain

import (
	"fmt"
	"time"
)

// SubjectType определяет тип сущности, к которой привязана активность.
type SubjectType string

const (
	SubjectPost    SubjectType = "post"
	SubjectComment SubjectType = "comment"
)

// Subject - ссылка на сущность, за которой ведется журнал активности.
type Subject struct {
	Type SubjectType
	ID   string
}

// User представляет пользователя платформы.
// PasswordHash никогда не сериализуется наружу.
type User struct {
	ID           string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name         string    `json:"name" gorm:"type:varchar(255);not null"`
	Email        string    `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"`
	Perm         int       `json:"perm" gorm:"not null;default:0"`
	CreatedAt    time.Time `json:"createdAt" gorm:"not null;default:now()"`
	Posts        []*Post   `json:"-" gorm:"foreignKey:OwnerID"` // gorm only
}

// Post представляет пост в системе.
type Post struct {
	ID         string      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Title      string      `json:"title" gorm:"type:varchar(255);not null"`
	Slug       string      `json:"slug" gorm:"type:varchar(255);not null;uniqueIndex"`
	Body       string      `json:"body" gorm:"type:text;not null"`
	Img        *string     `json:"img,omitempty" gorm:"type:varchar(255)"`
	OwnerID    string      `json:"ownerId" gorm:"type:uuid;not null;index"`
	Owner      *User       `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Members    []*User     `json:"members,omitempty" gorm:"many2many:post_members"`
	Categories []*Category `json:"categories,omitempty" gorm:"many2many:post_category"`
	Comments   []*Comment  `json:"-" gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"` // gorm only
	Tasks      []*Task     `json:"-" gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE"` // gorm only
	CreatedAt  time.Time   `json:"createdAt" gorm:"not null;default:now()"`
	UpdatedAt  time.Time   `json:"updatedAt" gorm:"not null;default:now()"`
}

// miniBodyLimit - максимальная длина краткого содержания поста.
const miniBodyLimit = 250

// MiniBody возвращает усеченное содержание поста для списков.
func (p *Post) MiniBody() string {
	runes := []rune(p.Body)
	if len(runes) <= miniBodyLimit {
		return p.Body
	}
	return string(runes[:miniBodyLimit-3]) + "..."
}

// Path возвращает канонический путь поста.
func (p *Post) Path() string {
	return "/posts/" + p.Slug
}

// Subject возвращает ссылку на пост для журнала активности.
func (p *Post) Subject() Subject {
	return Subject{Type: SubjectPost, ID: p.ID}
}

// HasMember сообщает, приглашен ли пользователь в участники поста.
func (p *Post) HasMember(userID string) bool {
	for _, m := range p.Members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// Category - рубрика, связь многие-ко-многим с постами.
type Category struct {
	ID    string  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Title string  `json:"title" gorm:"type:varchar(255);not null"`
	Posts []*Post `json:"posts,omitempty" gorm:"many2many:post_category"`
}

// Comment представляет комментарий к посту.
type Comment struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Body      string    `json:"body" gorm:"type:varchar(2000);not null"`
	OwnerID   string    `json:"ownerId" gorm:"type:uuid;not null;index"`
	Owner     *User     `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	PostID    string    `json:"postId" gorm:"type:uuid;not null;index"`
	Replies   []*Reply  `json:"replies,omitempty" gorm:"foreignKey:CommentID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;default:now()"`
}

// Path возвращает путь комментария относительно его поста.
func (c *Comment) Path(post *Post) string {
	return fmt.Sprintf("%s/comments/%s", post.Path(), c.ID)
}

// Subject возвращает ссылку на комментарий для журнала активности.
func (c *Comment) Subject() Subject {
	return Subject{Type: SubjectComment, ID: c.ID}
}

// Reply - ответ на комментарий.
type Reply struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Body      string    `json:"body" gorm:"type:varchar(2000);not null"`
	OwnerID   string    `json:"ownerId" gorm:"type:uuid;not null;index"`
	Owner     *User     `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	CommentID string    `json:"commentId" gorm:"type:uuid;not null;index"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;default:now()"`
}

// Task - пункт чек-листа поста.
type Task struct {
	ID        string    `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Body      string    `json:"body" gorm:"type:varchar(255);not null"`
	Done      bool      `json:"done" gorm:"not null;default:false"`
	OwnerID   string    `json:"ownerId" gorm:"type:uuid;not null;index"`
	Owner     *User     `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	PostID    string    `json:"postId" gorm:"type:uuid;not null;index"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;default:now()"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;default:now()"`
}

// Известные метки активности.
const (
	ActivityCreatePost    = "create_post"
	ActivityUpdatePost    = "update_post"
	ActivityAddMember     = "add_member"
	ActivityCreateComment = "create_comment"
)

// Activity - неизменяемая запись журнала: кто и что сделал с сущностью.
// Записи только добавляются, порядок строго хронологический.
type Activity struct {
	ID          string      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Info        string      `json:"info" gorm:"type:varchar(64);not null"`
	OwnerID     string      `json:"ownerId" gorm:"type:uuid;not null"`
	Owner       *User       `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	SubjectType SubjectType `json:"subjectType" gorm:"type:varchar(32);not null;index:idx_activity_subject"`
	SubjectID   string      `json:"subjectId" gorm:"type:uuid;not null;index:idx_activity_subject"`
	CreatedAt   time.Time   `json:"createdAt" gorm:"not null;default:now()"`
}
