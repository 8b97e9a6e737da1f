package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/virtual-ta/ta-backend/internal/logger"
	"github.com/virtual-ta/ta-backend/internal/store"
)

const (
	stateCookieName = "oauth_state"
	stateCookieTTL  = 10 * time.Minute
)

var ErrInvalidState = errors.New("invalid oauth state")

// Service runs the login flow: redirect to the provider, then on callback
// upsert the user and issue a bearer token.
type Service struct {
	store    *store.SQLiteStore
	provider Provider
	tokens   *TokenIssuer
	isAdmin  func(email string) bool
	log      *logger.Logger
}

func NewService(db *store.SQLiteStore, provider Provider, tokens *TokenIssuer, isAdmin func(string) bool, log *logger.Logger) *Service {
	return &Service{store: db, provider: provider, tokens: tokens, isAdmin: isAdmin, log: log}
}

// Enabled reports whether an identity provider is configured.
func (s *Service) Enabled() bool { return s.provider != nil }

// BeginLogin stores a fresh state value in a cookie and returns the provider URL.
func (s *Service) BeginLogin(w http.ResponseWriter, r *http.Request) string {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/auth",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	return s.provider.AuthCodeURL(state)
}

// CompleteLogin handles the provider callback: it checks the state cookie,
// exchanges the code and returns a token for the upserted user.
func (s *Service) CompleteLogin(w http.ResponseWriter, r *http.Request) (string, *store.User, error) {
	ctx := r.Context()
	code, state := r.URL.Query().Get("code"), r.URL.Query().Get("state")
	cookie, err := r.Cookie(stateCookieName)
	if err != nil || cookie.Value == "" || cookie.Value != state {
		return "", nil, ErrInvalidState
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/auth", MaxAge: -1})

	if code == "" {
		return "", nil, errors.New("missing authorization code")
	}
	info, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return "", nil, err
	}

	role := store.RoleUser
	if s.isAdmin != nil && s.isAdmin(info.Email) {
		role = store.RoleAdmin
	}
	user, err := s.store.UpsertLoginUser(ctx, info.Email, info.Name, info.Picture, role)
	if err != nil {
		return "", nil, fmt.Errorf("failed to save user: %w", err)
	}

	token, err := s.tokens.GenerateJWT(user)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}
	s.log.Info("User logged in", "user_id", user.ID, "email", user.Email, "role", user.Role)
	return token, user, nil
}

// Authenticate resolves a bearer token to its stored user.
func (s *Service) Authenticate(ctx context.Context, bearer string) (*store.User, error) {
	claims, err := s.tokens.ValidateJWT(bearer)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByEmail(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return user, nil
}

type ctxKey struct{}

func WithUser(ctx context.Context, u *store.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the authenticated user, or nil.
func UserFromContext(ctx context.Context) *store.User {
	u, _ := ctx.Value(ctxKey{}).(*store.User)
	return u
}
