// Package users handles accounts: registration, login and profiles.
package users

import (
	"context"
	"errors"
	"fmt"
	"html"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/blog-platform/internal/platform/auth"
	"github.com/example/blog-platform/internal/platform/events"
	"github.com/example/blog-platform/internal/platform/idgen"
	"github.com/example/blog-platform/services/blog/internal/store"
	"github.com/example/blog-platform/services/blog/internal/validate"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("user not found")
	ErrConflict           = errors.New("email or username already taken")
	ErrStoreUnavailable   = errors.New("store unavailable")
)

const (
	MinPasswordLen = 8
	MaxBioLen      = 150
	MaxSearchLimit = 50
)

var (
	usernameRe    = regexp.MustCompile(`^[a-zA-Z0-9_]{3,32}$`)
	emailRe       = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernameStrip = regexp.MustCompile(`[^a-zA-Z0-9_]`)
	textPolicy    = bluemonday.StrictPolicy()
)

var (
	avatarCollections = []string{"notionists-neutral", "adventurer-neutral", "fun-emoji"}
	avatarSeeds       = []string{
		"Garfield", "Tinkerbell", "Annie", "Loki", "Cleo", "Angel", "Bob", "Mia", "Coco", "Gracie",
		"Bear", "Bella", "Abby", "Harley", "Cali", "Leo", "Luna", "Jack", "Felix", "Kiki",
	}
)

// DefaultAvatar returns a random dicebear avatar URL.
func DefaultAvatar() string {
	return fmt.Sprintf("https://api.dicebear.com/6.x/%s/svg?seed=%s",
		avatarCollections[rand.IntN(len(avatarCollections))],
		avatarSeeds[rand.IntN(len(avatarSeeds))])
}

type Service struct {
	Users  store.UserStore
	Tokens auth.Issuer
	Events *events.Publisher
	Log    *zap.Logger
	// AdminUsername is promoted to admin on registration.
	AdminUsername string
}

type RegisterParams struct {
	Fullname string `json:"fullname"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Session is a signed-in user with a bearer token.
type Session struct {
	User        store.User `json:"user"`
	AccessToken string     `json:"access_token"`
	ExpiresAt   time.Time  `json:"expires_at"`
}

func (s *Service) Register(ctx context.Context, p RegisterParams) (Session, error) {
	fullname := sanitize(p.Fullname)
	email := strings.ToLower(strings.TrimSpace(p.Email))
	username := strings.TrimSpace(p.Username)

	if len(fullname) < 3 {
		return Session{}, validate.Field("fullname", "must be at least 3 characters")
	}
	if !isValidEmail(email) {
		return Session{}, validate.Field("email", "invalid")
	}
	if len(p.Password) < MinPasswordLen {
		return Session{}, validate.Field("password", fmt.Sprintf("min length %d", MinPasswordLen))
	}
	derived := username == ""
	if derived {
		username = usernameFromEmail(email)
	}
	if !usernameRe.MatchString(username) {
		return Session{}, validate.Field("username", "3-32 letters, digits or underscores")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), bcrypt.DefaultCost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}

	role := store.RoleUser
	if s.AdminUsername != "" && strings.EqualFold(s.AdminUsername, username) {
		role = store.RoleAdmin
	}
	u := store.User{
		Fullname:     fullname,
		Email:        email,
		Username:     username,
		ProfileImg:   DefaultAvatar(),
		PasswordHash: string(hash),
		Role:         role,
	}

	created, err := s.Users.Create(ctx, u)
	if errors.Is(err, store.ErrConflict) && derived {
		// Derived usernames may clash; the email may still be free.
		suffix, idErr := idgen.New("")
		if idErr != nil {
			return Session{}, idErr
		}
		u.Username = truncate(username, 24) + "_" + strings.ToLower(suffix[:6])
		created, err = s.Users.Create(ctx, u)
	}
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Session{}, ErrConflict
		}
		return Session{}, unavailable("create user", err)
	}

	s.Events.Publish(events.SubjectUserRegistered, "user_registered", created.ID, "", nil)
	s.logger().Info("user registered", zap.String("user_id", created.ID))
	return s.session(created)
}

// Login accepts an email or a username.
func (s *Service) Login(ctx context.Context, login, password string) (Session, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return Session{}, validate.Field("login", "required")
	}
	if password == "" {
		return Session{}, validate.Field("password", "required")
	}
	u, err := s.Users.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, unavailable("find user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.session(u)
}

func (s *Service) Profile(ctx context.Context, id string) (store.User, error) {
	u, err := s.Users.Get(ctx, id)
	if err != nil {
		return store.User{}, lookupErr("get user", err)
	}
	return u, nil
}

func (s *Service) UpdateProfile(ctx context.Context, id string, p store.ProfileUpdate) (store.User, error) {
	p.Fullname = sanitize(p.Fullname)
	p.Username = strings.TrimSpace(p.Username)
	p.Bio = sanitize(p.Bio)
	p.ProfileImg = strings.TrimSpace(p.ProfileImg)

	if len(p.Fullname) < 3 {
		return store.User{}, validate.Field("fullname", "must be at least 3 characters")
	}
	if !usernameRe.MatchString(p.Username) {
		return store.User{}, validate.Field("username", "3-32 letters, digits or underscores")
	}
	if len([]rune(p.Bio)) > MaxBioLen {
		return store.User{}, validate.Field("bio", fmt.Sprintf("at most %d characters", MaxBioLen))
	}
	if p.ProfileImg != "" && !validate.HTTPURL(p.ProfileImg) {
		return store.User{}, validate.Field("profile_img", "must be an http(s) url")
	}
	links := map[string]*string{
		"youtube":   &p.SocialLinks.Youtube,
		"instagram": &p.SocialLinks.Instagram,
		"facebook":  &p.SocialLinks.Facebook,
		"twitter":   &p.SocialLinks.Twitter,
		"github":    &p.SocialLinks.Github,
		"website":   &p.SocialLinks.Website,
	}
	for name, v := range links {
		*v = strings.TrimSpace(*v)
		if *v != "" && !validate.HTTPURL(*v) {
			return store.User{}, validate.Field("social_links."+name, "must be an http(s) url")
		}
	}

	if p.ProfileImg == "" {
		current, err := s.Users.Get(ctx, id)
		if err != nil {
			return store.User{}, lookupErr("get user", err)
		}
		p.ProfileImg = current.ProfileImg
	}

	u, err := s.Users.UpdateProfile(ctx, id, p)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return store.User{}, ErrConflict
		}
		return store.User{}, lookupErr("update profile", err)
	}
	return u, nil
}

func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	if len(next) < MinPasswordLen {
		return validate.Field("new_password", fmt.Sprintf("min length %d", MinPasswordLen))
	}
	u, err := s.Users.Get(ctx, id)
	if err != nil {
		return lookupErr("get user", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.Users.UpdatePasswordHash(ctx, id, string(hash)); err != nil {
		return lookupErr("update password", err)
	}
	s.logger().Info("password changed", zap.String("user_id", id))
	return nil
}

func (s *Service) Search(ctx context.Context, prefix string, limit int) ([]store.User, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []store.User{}, nil
	}
	if limit <= 0 || limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}
	found, err := s.Users.SearchByUsername(ctx, prefix, limit)
	if err != nil {
		return nil, unavailable("search users", err)
	}
	return found, nil
}

func (s *Service) session(u store.User) (Session, error) {
	token, exp, err := s.Tokens.NewAccessToken(u.ID, u.Role, time.Now().UTC())
	if err != nil {
		return Session{}, fmt.Errorf("issue token: %w", err)
	}
	return Session{User: u, AccessToken: token, ExpiresAt: exp}, nil
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

func usernameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	name := truncate(usernameStrip.ReplaceAllString(local, ""), 32)
	for len(name) < 3 {
		name += "_"
	}
	return name
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func isValidEmail(s string) bool {
	return len(s) <= 254 && emailRe.MatchString(s)
}

func sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(textPolicy.Sanitize(s)))
}

func lookupErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return unavailable(op, err)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
