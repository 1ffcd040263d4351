package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/example/blog-platform/internal/platform/auth"
	"github.com/example/blog-platform/services/blog/internal/comments"
	"github.com/example/blog-platform/services/blog/internal/maintenance"
	"github.com/example/blog-platform/services/blog/internal/media"
	"github.com/example/blog-platform/services/blog/internal/notify"
	"github.com/example/blog-platform/services/blog/internal/posts"
	"github.com/example/blog-platform/services/blog/internal/users"
)

// Deps are the services behind the HTTP routes. Media and Maintenance may be
// nil; their routes are then answered with 503 or not mounted.
type Deps struct {
	Verifier    auth.JWTVerifier
	Comments    *comments.Service
	Posts       *posts.Service
	Users       *users.Service
	Inbox       notify.Inbox
	Media       *media.Uploader
	Maintenance *maintenance.Maintainer
}

// Routes registers every blog endpoint on r.
func Routes(r chi.Router, d Deps) {
	// Public reads (a valid token personalises responses)
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalUser(d.Verifier))
		r.Get("/v1/posts", LatestPosts(d.Posts))
		r.Get("/v1/posts/trending", TrendingPosts(d.Posts))
		r.Get("/v1/posts/search", SearchPosts(d.Posts))
		r.Get("/v1/posts/{post_id}", GetPost(d.Posts))
		r.Post("/v1/posts/{post_id}/reads", ReadPost(d.Posts))
		r.Get("/v1/posts/{post_id}/comments", ListComments(d.Comments))
		r.Get("/v1/users/search", SearchUsers(d.Users))
		r.Get("/v1/users/{user_id}", GetUser(d.Users))
		r.Get("/v1/users/{user_id}/posts", AuthorPosts(d.Posts))
		r.Post("/v1/auth/register", Register(d.Users))
		r.Post("/v1/auth/login", Login(d.Users))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(d.Verifier))
		r.Post("/v1/posts", CreatePost(d.Posts))
		r.Put("/v1/posts/{post_id}", UpdatePost(d.Posts))
		r.Delete("/v1/posts/{post_id}", DeletePost(d.Posts))
		r.Post("/v1/posts/{post_id}/likes", LikePost(d.Posts))
		r.Delete("/v1/posts/{post_id}/likes", UnlikePost(d.Posts))
		r.Post("/v1/posts/{post_id}/comments", CreateComment(d.Comments))
		r.Delete("/v1/posts/{post_id}/comments/{comment_id}", DeleteComment(d.Comments))

		r.Get("/v1/me", Me(d.Users))
		r.Get("/v1/me/posts", MyPosts(d.Posts))
		r.Put("/v1/me/profile", UpdateProfile(d.Users))
		r.Put("/v1/me/password", ChangePassword(d.Users))

		r.Get("/v1/notifications", ListNotifications(d.Inbox))
		r.Get("/v1/notifications/count", CountNotifications(d.Inbox))
		r.Get("/v1/notifications/new", HasNewNotifications(d.Inbox))
		r.Post("/v1/notifications/seen", MarkNotificationsSeen(d.Inbox))
		r.Delete("/v1/notifications/{notification_id}", DeleteNotification(d.Inbox))

		r.Post("/v1/uploads/images", UploadImage(d.Media))

		if d.Maintenance != nil {
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Post("/v1/admin/maintenance/sweep-orphans", SweepOrphans(d.Maintenance))
				r.Post("/v1/admin/maintenance/recount/{post_id}", RecountPost(d.Maintenance))
			})
		}
	})
}
