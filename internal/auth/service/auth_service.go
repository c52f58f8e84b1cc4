package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"lazynotez/backend/internal/activity"
	activitydomain "lazynotez/backend/internal/activity/domain"
	"lazynotez/backend/internal/revocation"
	"lazynotez/backend/internal/security"
	userdomain "lazynotez/backend/internal/user/domain"
	userrepo "lazynotez/backend/internal/user/repository"
)

// Sentinel errors for the auth service; the handler maps them to HTTP status codes.
var (
	ErrUsernameTaken = errors.New("username already exists")
	// ErrInvalidCredentials covers unknown user, inactive user, and wrong
	// password uniformly. Collapsing the branches is a deliberate
	// anti-enumeration measure, not missing error handling.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized covers missing/invalid/revoked tokens and inactive
	// users; which sub-reason applied is intentionally not exposed.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTokenExpired is distinguished from ErrUnauthorized so clients can
	// decide between refreshing and re-authenticating.
	ErrTokenExpired = security.ErrTokenExpired
	ErrUserNotFound = errors.New("user not found")
)

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByUsername(ctx context.Context, username string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	AddRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error
	RemoveRefreshToken(ctx context.Context, userID, tokenHash string) (bool, error)
}

// AuthResult holds the outcome of Register, Login, or Refresh.
// RefreshToken goes into the http-only cookie, never the response body.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	User         *userdomain.User
}

// RegisterInput is the input for AuthService.Register. Role carries the raw
// client value; it is normalized before persistence.
type RegisterInput struct {
	Name     string
	Username string
	Email    string
	Password string
	Role     string
}

// AuthService implements the session lifecycle: register, login, refresh
// with rotation, logout, and access-token introspection.
type AuthService struct {
	users    UserRepo
	revoked  revocation.Store
	activity activity.Recorder
	hasher   *security.Hasher
	tokens   *security.TokenCodec
}

// NewAuthService returns an AuthService with the given dependencies.
func NewAuthService(
	users UserRepo,
	revoked revocation.Store,
	recorder activity.Recorder,
	hasher *security.Hasher,
	tokens *security.TokenCodec,
) *AuthService {
	return &AuthService{
		users:    users,
		revoked:  revoked,
		activity: recorder,
		hasher:   hasher,
		tokens:   tokens,
	}
}

// Register creates an active user and immediately establishes a session:
// the new refresh token is persisted into the user's set and returned
// alongside the access token. Fails with ErrUsernameTaken on a duplicate
// username without touching the existing record.
func (s *AuthService) Register(ctx context.Context, in RegisterInput, ip string) (*AuthResult, error) {
	username := strings.TrimSpace(in.Username)
	existing, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	hashed, err := s.hasher.Hash([]byte(in.Password))
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	user := &userdomain.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        strings.TrimSpace(in.Email),
		Name:         strings.TrimSpace(in.Name),
		PasswordHash: hashed,
		Role:         userdomain.NormalizeRole(in.Role),
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		// The pre-check above races with concurrent registrations; the unique
		// index catches the loser.
		if errors.Is(err, userrepo.ErrDuplicateUsername) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}

	s.activity.Record(ctx, user.ID, activitydomain.ActionRegister, ip)

	return s.issueSession(ctx, user)
}

// Login authenticates a username/password pair. Unknown user, inactive user,
// and wrong password all fail with the same ErrInvalidCredentials. On success
// a new refresh token is appended to the user's set. The set is not capped,
// so a user may hold sessions on several devices at once.
func (s *AuthService) Login(ctx context.Context, username, password, ip string) (*AuthResult, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if !user.Active() {
		return nil, ErrInvalidCredentials
	}
	if err := s.hasher.Compare(user.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLogin = &now

	s.activity.Record(ctx, user.ID, activitydomain.ActionLogin, ip)

	return s.issueSession(ctx, user)
}

// Refresh validates the presented refresh token and rotates it: the old token
// leaves the user's set and the revocation store remembers it for its
// remaining natural lifetime. Rotation happens on every call; a refresh token
// is never reused. Two concurrent calls with the same token cannot both
// succeed: the set removal is atomic, and the loser gets ErrUnauthorized.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	if refreshToken == "" {
		return nil, ErrUnauthorized
	}
	if s.revoked.IsRevoked(ctx, refreshToken) {
		return nil, ErrUnauthorized
	}
	subject, err := s.tokens.Verify(security.TokenRefresh, refreshToken)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrUnauthorized
	}
	user, err := s.users.GetByID(ctx, subject)
	if err != nil {
		return nil, err
	}
	if !user.Active() {
		return nil, ErrUnauthorized
	}

	removed, err := s.users.RemoveRefreshToken(ctx, user.ID, security.HashRefreshToken(refreshToken))
	if err != nil {
		return nil, err
	}
	if !removed {
		// Not in the set: either a stolen-but-rotated-away token, or the
		// losing side of a concurrent refresh race.
		return nil, ErrUnauthorized
	}

	result, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.revokeForRemainingLife(ctx, refreshToken)

	return result, nil
}

// Logout tears down the session named by the refresh token and, when an
// access token accompanies the request, kills it ahead of its natural expiry.
// Logout is idempotent and never fails the client-visible flow: missing
// cookies, undecodable tokens, and already-removed sessions all succeed.
func (s *AuthService) Logout(ctx context.Context, refreshToken, accessToken, ip string) {
	if refreshToken != "" {
		claims, err := s.tokens.DecodeUnsafe(refreshToken)
		if err == nil {
			user, err := s.users.GetByID(ctx, claims.Subject)
			if err == nil && user != nil {
				removed, err := s.users.RemoveRefreshToken(ctx, user.ID, security.HashRefreshToken(refreshToken))
				if err == nil && removed {
					s.activity.Record(ctx, user.ID, activitydomain.ActionLogout, ip)
				}
			}
			s.revokeForRemainingLife(ctx, refreshToken)
		}
	}
	if accessToken != "" {
		s.revokeForRemainingLife(ctx, accessToken)
	}
}

// Me resolves the access token to the user's record. The revocation check
// runs before signature verification so a token killed on logout is rejected
// even while cryptographically valid.
func (s *AuthService) Me(ctx context.Context, accessToken string) (*userdomain.User, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}
	if s.revoked.IsRevoked(ctx, accessToken) {
		return nil, ErrUnauthorized
	}
	subject, err := s.tokens.Verify(security.TokenAccess, accessToken)
	if err != nil {
		if errors.Is(err, security.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrUnauthorized
	}
	user, err := s.users.GetByID(ctx, subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.Active() {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// issueSession signs a fresh access/refresh pair for user and persists the
// refresh token's hash into the user's set.
func (s *AuthService) issueSession(ctx context.Context, user *userdomain.User) (*AuthResult, error) {
	refreshToken, err := s.tokens.Sign(security.TokenRefresh, user.ID)
	if err != nil {
		return nil, err
	}
	expiresAt := time.Now().UTC().Add(s.tokens.RefreshTTL())
	if err := s.users.AddRefreshToken(ctx, user.ID, security.HashRefreshToken(refreshToken), expiresAt); err != nil {
		return nil, err
	}
	accessToken, err := s.tokens.Sign(security.TokenAccess, user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         user,
	}, nil
}

// revokeForRemainingLife blacklists a token for its remaining natural
// lifetime. DecodeUnsafe is safe here because every caller either verified
// the token earlier in the same request or is on the logout path, where a
// forged token revokes nothing of value.
func (s *AuthService) revokeForRemainingLife(ctx context.Context, token string) {
	claims, err := s.tokens.DecodeUnsafe(token)
	if err != nil {
		return
	}
	s.revoked.Revoke(ctx, token, time.Until(claims.ExpiresAt))
}
