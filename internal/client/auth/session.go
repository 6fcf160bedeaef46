// Package auth manages the customer session: the persisted token pair, the
// signed-in user, and bearer requests with a single refresh on 401.
package auth

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/atinyakov/sockcs/internal/client/api"
)

// Backend account endpoints.
const (
	LoginPath    = "/api/accounts/login/"
	RegisterPath = "/api/accounts/register/"
	MePath       = "/api/accounts/me/"
	ProfilePath  = "/api/accounts/profile/"
	PasswordPath = "/api/accounts/password/"
	LogoutPath   = "/api/accounts/logout/"
	RefreshPath  = "/api/accounts/token/refresh/"
)

var (
	// ErrNotAuthenticated is returned when an operation needs a signed-in user.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoRefreshToken is returned by Refresh when no refresh token is stored.
	ErrNoRefreshToken = errors.New("no refresh token")
)

// AuthError carries the message the server (or local validation) gave for a
// failed account operation.
type AuthError struct {
	Status int
	Detail string
}

func (e *AuthError) Error() string { return e.Detail }

// Credentials identify the user by username or email.
type Credentials struct {
	Username string
	Email    string
	Password string
}

func (c Credentials) payload() map[string]string {
	if c.Username != "" {
		return map[string]string{"username": c.Username, "password": c.Password}
	}
	return map[string]string{"email": c.Email, "password": c.Password}
}

// RegisterForm is the registration payload.
type RegisterForm struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Password2 string `json:"password2"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Validate checks the form locally and fills derived fields: the email is
// trimmed and lower-cased and an empty username becomes the email local part.
func (f *RegisterForm) Validate() error {
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	if f.FirstName == "" || f.LastName == "" || f.Email == "" || f.Password == "" || f.Password2 == "" {
		return &AuthError{Detail: "Please fill in all fields."}
	}
	if f.Password != f.Password2 {
		return &AuthError{Detail: "Passwords do not match."}
	}
	if f.Username == "" {
		f.Username, _, _ = strings.Cut(f.Email, "@")
	}
	return nil
}

// Profile is the extended account record.
type Profile struct {
	Phone  string `json:"phone"`
	Avatar string `json:"avatar"`
}

// Session is the auth state of one client. It is safe for concurrent use.
type Session struct {
	api    *api.Client
	tokens *TokenStore
	log    *zap.Logger

	refreshGroup singleflight.Group

	mu        sync.RWMutex
	user      *User
	listeners map[int]func(*User)
	nextID    int
}

// NewSession builds a session over the shared transport and token store.
func NewSession(c *api.Client, tokens *TokenStore, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		api:       c,
		tokens:    tokens,
		log:       log,
		listeners: make(map[int]func(*User)),
	}
}

// User returns the signed-in user, nil when signed out.
func (s *Session) User() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Tokens returns the stored token pair.
func (s *Session) Tokens() Tokens { return s.tokens.Get() }

// IsStaff reports staff access from the user record or the access token
// claims. An expired token grants nothing.
func (s *Session) IsStaff() bool {
	if s.User().HasStaffRole() {
		return true
	}
	access := s.tokens.Get().Access
	if access == "" {
		return false
	}
	claims, err := ClaimsFromToken(access)
	if err != nil {
		return false
	}
	return !claims.Expired(time.Now()) && claims.Staff()
}

// Subscribe registers fn for user changes and returns its cancel function.
func (s *Session) Subscribe(fn func(*User)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) setUser(u *User) {
	s.mu.Lock()
	s.user = u
	fns := make([]func(*User), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(u)
	}
}

// Restore loads the user for a previously stored access token. A rejected
// token leaves the user signed out but keeps the stored pair.
func (s *Session) Restore(ctx context.Context) (*User, error) {
	if s.tokens.Get().Access == "" {
		s.setUser(nil)
		return nil, nil
	}
	u, err := s.Me(ctx)
	if err != nil {
		s.setUser(nil)
		var ae *AuthError
		if errors.As(err, &ae) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// Login posts credentials, stores the returned pair and loads the profile.
func (s *Session) Login(ctx context.Context, cred Credentials) (*User, error) {
	res, err := s.api.Send(ctx, http.MethodPost, LoginPath, cred.payload(), nil)
	if err != nil {
		return nil, err
	}

	var data struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
		Detail  string `json:"detail"`
	}
	_ = res.Decode(&data)
	if !res.OK() {
		return nil, &AuthError{Status: res.Status, Detail: cmp.Or(data.Detail, "Login failed")}
	}
	if err := s.storeIssued(data.Access, data.Refresh); err != nil {
		return nil, err
	}
	return s.loadProfileAfterAuth(ctx)
}

// Register validates and posts the form. When the backend returns tokens they
// are used directly; otherwise the new account is signed in with its email.
func (s *Session) Register(ctx context.Context, form RegisterForm) (*User, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}

	res, err := s.api.Send(ctx, http.MethodPost, RegisterPath, form, nil)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		msg := "Registration failed"
		var he *api.HTTPError
		if errors.As(res.Err(), &he) {
			msg = cmp.Or(he.Field("email", "username", "password", "password2"), he.Detail, msg)
		}
		return nil, &AuthError{Status: res.Status, Detail: msg}
	}

	var data struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	_ = res.Decode(&data)
	if data.Access == "" && data.Refresh == "" {
		return s.Login(ctx, Credentials{Email: form.Email, Password: form.Password})
	}
	if err := s.storeIssued(data.Access, data.Refresh); err != nil {
		return nil, err
	}
	return s.loadProfileAfterAuth(ctx)
}

func (s *Session) storeIssued(access, refresh string) error {
	if access == "" && refresh == "" {
		return nil
	}
	if err := s.tokens.Set(Tokens{Access: access, Refresh: refresh}); err != nil {
		return fmt.Errorf("store tokens: %w", err)
	}
	return nil
}

func (s *Session) loadProfileAfterAuth(ctx context.Context) (*User, error) {
	u, err := s.Me(ctx)
	if err != nil {
		var ae *AuthError
		if errors.As(err, &ae) {
			return nil, &AuthError{Status: ae.Status, Detail: "Could not load profile"}
		}
		return nil, err
	}
	return u, nil
}

// Me fetches and normalizes the current user.
func (s *Session) Me(ctx context.Context) (*User, error) {
	res, err := s.Do(ctx, http.MethodGet, MePath, nil)
	if err != nil {
		return nil, err
	}
	if !res.OK() {
		return nil, &AuthError{Status: res.Status, Detail: api.Message(res.Err())}
	}
	u, err := NormalizeUser(res.JSON())
	if err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if u == nil {
		return nil, &AuthError{Status: res.Status, Detail: "Could not load profile"}
	}
	s.setUser(u)
	return u, nil
}

// Logout asks the backend to invalidate the session, ignoring any failure,
// then always clears the local tokens and user.
func (s *Session) Logout(ctx context.Context) error {
	body := map[string]string{}
	if r := s.tokens.Get().Refresh; r != "" {
		body["refresh"] = r
	}
	if res, err := s.api.Send(ctx, http.MethodPost, LogoutPath, body, nil); err != nil {
		s.log.Warn("logout request failed", zap.Error(err))
	} else if !res.OK() {
		s.log.Debug("logout rejected", zap.Int("status", res.Status))
	}

	s.setUser(nil)
	return s.tokens.Clear()
}

// Do issues a bearer-authenticated request. A 401 triggers exactly one
// refresh; when the refresh is impossible or fails the original 401 response
// is returned unchanged, and a 401 after a successful refresh is returned as is.
func (s *Session) Do(ctx context.Context, method, path string, body any) (*api.Response, error) {
	res, err := s.doBearer(ctx, method, path, body, s.tokens.Get().Access)
	if err != nil || res.Status != http.StatusUnauthorized {
		return res, err
	}

	access, rerr := s.Refresh(ctx)
	if rerr != nil {
		s.log.Debug("token refresh failed", zap.String("path", path), zap.Error(rerr))
		return res, nil
	}
	return s.doBearer(ctx, method, path, body, access)
}

// doBearer attaches the access token to backend requests only.
func (s *Session) doBearer(ctx context.Context, method, path string, body any, access string) (*api.Response, error) {
	var h http.Header
	if access != "" && s.api.SameOrigin(path) {
		h = http.Header{"Authorization": []string{"Bearer " + access}}
	}
	return s.api.DoWithHeader(ctx, method, path, body, h)
}

// Refresh exchanges the stored refresh token for a new access token.
// Concurrent callers share one refresh request.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	v, err, _ := s.refreshGroup.Do("refresh", func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Session) refresh(ctx context.Context) (string, error) {
	current := s.tokens.Get()
	if current.Refresh == "" {
		return "", ErrNoRefreshToken
	}
	res, err := s.api.Send(ctx, http.MethodPost, RefreshPath, map[string]string{"refresh": current.Refresh}, nil)
	if err != nil {
		return "", err
	}
	if err := res.Err(); err != nil {
		return "", err
	}

	var data struct {
		Access  string `json:"access"`
		Refresh string `json:"refresh"`
	}
	if err := res.Decode(&data); err != nil {
		return "", fmt.Errorf("decode refresh response: %w", err)
	}
	if data.Access == "" {
		return "", errors.New("refresh response carried no access token")
	}

	// Rotating backends return a new refresh token as well.
	next := Tokens{Access: data.Access, Refresh: cmp.Or(data.Refresh, current.Refresh)}
	if err := s.tokens.Set(next); err != nil {
		return "", fmt.Errorf("store tokens: %w", err)
	}
	s.log.Debug("access token refreshed")
	return data.Access, nil
}

// UpdateName patches the user's first and last name.
func (s *Session) UpdateName(ctx context.Context, first, last string) (*User, error) {
	res, err := s.Do(ctx, http.MethodPatch, MePath, map[string]string{
		"first_name": strings.TrimSpace(first),
		"last_name":  strings.TrimSpace(last),
	})
	if err := accountError(res, err, "Failed to update name."); err != nil {
		return nil, err
	}
	u, err := NormalizeUser(res.JSON())
	if err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if u != nil {
		s.setUser(u)
	}
	return u, nil
}

// Profile fetches the extended profile.
func (s *Session) Profile(ctx context.Context) (*Profile, error) {
	res, err := s.Do(ctx, http.MethodGet, ProfilePath, nil)
	if err := accountError(res, err, "Failed to load profile."); err != nil {
		return nil, err
	}
	var p Profile
	_ = res.Decode(&p)
	return &p, nil
}

// UpdateProfile patches the phone number.
func (s *Session) UpdateProfile(ctx context.Context, phone string) (*Profile, error) {
	res, err := s.Do(ctx, http.MethodPatch, ProfilePath, map[string]string{"phone": strings.TrimSpace(phone)})
	if err := accountError(res, err, "Failed to update profile."); err != nil {
		return nil, err
	}
	var p Profile
	_ = res.Decode(&p)
	return &p, nil
}

// ChangePassword posts the old password and the new one twice.
func (s *Session) ChangePassword(ctx context.Context, oldPassword, newPassword, confirm string) error {
	res, err := s.Do(ctx, http.MethodPost, PasswordPath, map[string]string{
		"old_password":  oldPassword,
		"new_password":  newPassword,
		"new_password2": confirm,
	})
	return accountError(res, err, "Failed")
}

// accountError maps an account endpoint result onto ErrNotAuthenticated or an AuthError.
func accountError(res *api.Response, err error, fallback string) error {
	if err != nil {
		return err
	}
	if res.OK() {
		return nil
	}
	if res.Status == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrNotAuthenticated, api.Message(res.Err()))
	}
	msg := fallback
	var he *api.HTTPError
	if errors.As(res.Err(), &he) {
		switch {
		case he.Detail != "":
			msg = he.Detail
		case len(he.Fields) > 0:
			msg = he.Message()
		}
	}
	return &AuthError{Status: res.Status, Detail: msg}
}
