package store

import (
	"encoding/json"
	"time"
)

// PostID identifies a post. It is a distinct type so comment-cache keys and
// invalidation predicates cannot be confused with comment or user ids.
type PostID string

func (id PostID) String() string { return string(id) }

// AuthorDisplay is the author snapshot copied onto comments, posts and
// notifications at write time. It is never refreshed afterwards.
type AuthorDisplay struct {
	Fullname   string `json:"fullname"`
	Username   string `json:"username"`
	ProfileImg string `json:"profile_img"`
}

// Comment is a single comment or reply on a post.
type Comment struct {
	ID        string        `json:"id"`
	PostID    PostID        `json:"post_id"`
	ParentID  *string       `json:"parent_id,omitempty"`
	IsReply   bool          `json:"is_reply"`
	Text      string        `json:"text"`
	AuthorID  string        `json:"author_id"`
	Author    AuthorDisplay `json:"author"`
	CreatedAt time.Time     `json:"created_at"`
}

// Normalize makes IsReply agree with ParentID. An empty parent id is treated
// as no parent.
func (c *Comment) Normalize() {
	if c.ParentID != nil && *c.ParentID == "" {
		c.ParentID = nil
	}
	c.IsReply = c.ParentID != nil
}

func (c Comment) clone() Comment {
	if c.ParentID != nil {
		p := *c.ParentID
		c.ParentID = &p
	}
	return c
}

// Activity holds the denormalized counters of a post.
type Activity struct {
	TotalLikes          int64 `json:"total_likes"`
	TotalComments       int64 `json:"total_comments"`
	TotalReads          int64 `json:"total_reads"`
	TotalParentComments int64 `json:"total_parent_comments"`
}

// ActivityDelta is applied to Activity as one atomic increment.
type ActivityDelta struct {
	Likes          int64
	Comments       int64
	Reads          int64
	ParentComments int64
}

func (d ActivityDelta) IsZero() bool {
	return d == ActivityDelta{}
}

func (a *Activity) apply(d ActivityDelta) {
	a.TotalLikes += d.Likes
	a.TotalComments += d.Comments
	a.TotalReads += d.Reads
	a.TotalParentComments += d.ParentComments
}

// Post is a published or draft blog post.
type Post struct {
	ID          PostID          `json:"id"`
	Title       string          `json:"title"`
	Banner      string          `json:"banner"`
	Description string          `json:"description"`
	Content     json.RawMessage `json:"content,omitempty"`
	Tags        []string        `json:"tags"`
	AuthorID    string          `json:"author_id"`
	Author      AuthorDisplay   `json:"author"`
	Activity    Activity        `json:"activity"`
	Draft       bool            `json:"draft"`
	PublishedAt time.Time       `json:"published_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (p Post) clone() Post {
	p.Tags = append([]string(nil), p.Tags...)
	if p.Content != nil {
		p.Content = append(json.RawMessage(nil), p.Content...)
	}
	return p
}

type SocialLinks struct {
	Youtube   string `json:"youtube"`
	Instagram string `json:"instagram"`
	Facebook  string `json:"facebook"`
	Twitter   string `json:"twitter"`
	Github    string `json:"github"`
	Website   string `json:"website"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is an account. PasswordHash never leaves the process.
type User struct {
	ID                       string      `json:"id"`
	Fullname                 string      `json:"fullname"`
	Email                    string      `json:"email"`
	Username                 string      `json:"username"`
	Bio                      string      `json:"bio"`
	ProfileImg               string      `json:"profile_img"`
	PasswordHash             string      `json:"-"`
	Role                     string      `json:"role"`
	TotalPosts               int64       `json:"total_posts"`
	TotalReads               int64       `json:"total_reads"`
	NewNotificationAvailable bool        `json:"new_notification_available"`
	SocialLinks              SocialLinks `json:"social_links"`
	JoinedAt                 time.Time   `json:"joined_at"`
}

func (u User) Display() AuthorDisplay {
	return AuthorDisplay{Fullname: u.Fullname, Username: u.Username, ProfileImg: u.ProfileImg}
}

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	Fullname    string      `json:"fullname"`
	Username    string      `json:"username"`
	Bio         string      `json:"bio"`
	ProfileImg  string      `json:"profile_img"`
	SocialLinks SocialLinks `json:"social_links"`
}

type NotificationType string

const (
	NotificationComment NotificationType = "comment"
	NotificationReply   NotificationType = "reply"
	NotificationLike    NotificationType = "like"
)

// ParseNotificationFilter maps a query value to a type filter. "all" and ""
// yield the empty filter.
func ParseNotificationFilter(s string) (NotificationType, bool) {
	switch NotificationType(s) {
	case "", "all":
		return "", true
	case NotificationComment, NotificationReply, NotificationLike:
		return NotificationType(s), true
	}
	return "", false
}

// Notification tells RecipientID that ActorID commented, replied or liked.
type Notification struct {
	ID            string           `json:"id"`
	EventID       string           `json:"-"`
	Type          NotificationType `json:"type"`
	PostID        PostID           `json:"post_id"`
	PostTitle     string           `json:"post_title"`
	RecipientID   string           `json:"recipient_id"`
	ActorID       string           `json:"actor_id"`
	Actor         AuthorDisplay    `json:"actor"`
	CommentID     string           `json:"comment_id,omitempty"`
	CommentText   string           `json:"comment_text,omitempty"`
	RepliedOnID   string           `json:"replied_on_id,omitempty"`
	RepliedOnText string           `json:"replied_on_text,omitempty"`
	Seen          bool             `json:"seen"`
	CreatedAt     time.Time        `json:"created_at"`
}
