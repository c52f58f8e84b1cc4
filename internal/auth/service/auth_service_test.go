package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lazynotez/backend/internal/security"
	userdomain "lazynotez/backend/internal/user/domain"
	userrepo "lazynotez/backend/internal/user/repository"
)

type tokenEntry struct {
	userID    string
	expiresAt time.Time
}

type memUserRepo struct {
	mu         sync.Mutex
	byID       map[string]*userdomain.User
	byUsername map[string]*userdomain.User
	tokens     map[string]tokenEntry // refresh-token hash -> owner
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{
		byID:       make(map[string]*userdomain.User),
		byUsername: make(map[string]*userdomain.User),
		tokens:     make(map[string]tokenEntry),
	}
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[id], nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byUsername[username], nil
}

func (r *memUserRepo) Create(ctx context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUsername[u.Username]; ok {
		return userrepo.ErrDuplicateUsername
	}
	r.byID[u.ID] = u
	r.byUsername[u.Username] = u
	return nil
}

func (r *memUserRepo) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		t := at
		u.LastLogin = &t
	}
	return nil
}

// AddRefreshToken enforces the same hash-is-primary-key constraint as the
// refresh_tokens table.
func (r *memUserRepo) AddRefreshToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[tokenHash]; ok {
		return errors.New("duplicate token hash")
	}
	r.tokens[tokenHash] = tokenEntry{userID: userID, expiresAt: expiresAt}
	return nil
}

func (r *memUserRepo) RemoveRefreshToken(ctx context.Context, userID, tokenHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.tokens[tokenHash]
	if !ok || e.userID != userID {
		return false, nil
	}
	delete(r.tokens, tokenHash)
	return true, nil
}

func (r *memUserRepo) tokenCount(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.tokens {
		if e.userID == userID {
			n++
		}
	}
	return n
}

type memRevocationStore struct {
	mu sync.Mutex
	m  map[string]time.Time
}

func newMemRevocationStore() *memRevocationStore {
	return &memRevocationStore{m: make(map[string]time.Time)}
}

func (s *memRevocationStore) Revoke(ctx context.Context, token string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[token] = time.Now().Add(ttl)
}

func (s *memRevocationStore) IsRevoked(ctx context.Context, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.m[token]
	return ok && exp.After(time.Now())
}

type memRecorder struct {
	mu      sync.Mutex
	actions []string
}

func (m *memRecorder) Record(ctx context.Context, userID, action, ip string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.actions = append(m.actions, action)
}

func (m *memRecorder) recorded() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.actions...)
}

type fixture struct {
	svc      *AuthService
	users    *memUserRepo
	revoked  *memRevocationStore
	recorder *memRecorder
	codec    *security.TokenCodec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithCodec(t,
		security.NewTokenCodec("test-access", "test-refresh", "lazynotez-test", 15*time.Minute, 168*time.Hour))
}

func newFixtureWithCodec(t *testing.T, codec *security.TokenCodec) *fixture {
	t.Helper()
	users := newMemUserRepo()
	revoked := newMemRevocationStore()
	recorder := &memRecorder{}
	// min cost keeps bcrypt fast in tests
	svc := NewAuthService(users, revoked, recorder, security.NewHasher(bcrypt.MinCost), codec)
	return &fixture{svc: svc, users: users, revoked: revoked, recorder: recorder, codec: codec}
}

func registerAlice(t *testing.T, f *fixture) *AuthResult {
	t.Helper()
	res, err := f.svc.Register(context.Background(), RegisterInput{
		Name:     "Alice Smith",
		Username: "alice",
		Password: "Sw0rdFish!",
		Role:     "student",
	}, "10.0.0.1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return res
}

func TestRegister_IssuesResolvableTokens(t *testing.T) {
	f := newFixture(t)
	res := registerAlice(t, f)

	if res.AccessToken == "" || res.RefreshToken == "" {
		t.Fatal("register should issue both tokens")
	}
	sub, err := f.codec.Verify(security.TokenAccess, res.AccessToken)
	if err != nil {
		t.Fatalf("Verify access: %v", err)
	}
	if sub != res.User.ID {
		t.Errorf("access subject = %q, want %q", sub, res.User.ID)
	}
	if f.users.tokenCount(res.User.ID) != 1 {
		t.Error("refresh token should be persisted into the user's set")
	}
	if res.User.PasswordHash == "Sw0rdFish!" {
		t.Error("password must not be stored in clear")
	}
	got := f.recorder.recorded()
	if len(got) != 1 || got[0] != "register" {
		t.Errorf("recorded actions = %v, want [register]", got)
	}
}

func TestRegister_DuplicateUsernameConflict(t *testing.T) {
	f := newFixture(t)
	first := registerAlice(t, f)

	_, err := f.svc.Register(context.Background(), RegisterInput{
		Name:     "Impostor",
		Username: "alice",
		Password: "Different1!",
	}, "")
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("err = %v, want ErrUsernameTaken", err)
	}

	// The existing record is untouched.
	u, _ := f.users.GetByUsername(context.Background(), "alice")
	if u.ID != first.User.ID || u.Name != "Alice Smith" {
		t.Error("duplicate registration must not mutate the existing user")
	}
}

// precheckBlindRepo simulates two registrations racing past the existence
// check: the lookup never sees the other writer, only the unique constraint
// inside Create does.
type precheckBlindRepo struct{ *memUserRepo }

func (r *precheckBlindRepo) GetByUsername(ctx context.Context, username string) (*userdomain.User, error) {
	return nil, nil
}

func TestRegister_DuplicateRaceStillConflicts(t *testing.T) {
	users := &precheckBlindRepo{newMemUserRepo()}
	codec := security.NewTokenCodec("test-access", "test-refresh", "lazynotez-test", 15*time.Minute, 168*time.Hour)
	svc := NewAuthService(users, newMemRevocationStore(), &memRecorder{}, security.NewHasher(bcrypt.MinCost), codec)
	ctx := context.Background()

	in := RegisterInput{Name: "Alice Smith", Username: "alice", Password: "Sw0rdFish!"}
	if _, err := svc.Register(ctx, in, ""); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := svc.Register(ctx, in, ""); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("racing Register: err = %v, want ErrUsernameTaken", err)
	}
}

func TestRegister_RoleNormalization(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.Register(context.Background(), RegisterInput{
		Name: "Dean", Username: "dean", Password: "Passw0rd1!", Role: "administrator",
	}, "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.User.Role != userdomain.RoleAdmin {
		t.Errorf("Role = %q, want admin", res.User.Role)
	}

	res, err = f.svc.Register(context.Background(), RegisterInput{
		Name: "Nobody", Username: "nobody", Password: "Passw0rd1!", Role: "superuser",
	}, "")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.User.Role != userdomain.RoleStudent {
		t.Errorf("Role = %q, want student", res.User.Role)
	}
}

func TestLogin_Success(t *testing.T) {
	f := newFixture(t)
	registerAlice(t, f)

	res, err := f.svc.Login(context.Background(), "alice", "Sw0rdFish!", "10.0.0.1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	sub, err := f.codec.Verify(security.TokenAccess, res.AccessToken)
	if err != nil || sub != res.User.ID {
		t.Errorf("access token should resolve to the user: sub=%q err=%v", sub, err)
	}
	if res.User.LastLogin == nil {
		t.Error("lastLogin should be set on login")
	}
	if f.users.tokenCount(res.User.ID) != 2 {
		t.Error("login should append to the refresh set, not replace it")
	}
}

func TestLogin_BurstSessionsAreIndependent(t *testing.T) {
	// Several logins inside the same second must each mint their own refresh
	// token; iat/exp alone cannot distinguish them, the jti must.
	f := newFixture(t)
	registerAlice(t, f)
	ctx := context.Background()

	seen := make(map[string]struct{})
	var userID string
	for i := 0; i < 3; i++ {
		res, err := f.svc.Login(ctx, "alice", "Sw0rdFish!", "10.0.0.1")
		if err != nil {
			t.Fatalf("Login %d: %v", i, err)
		}
		if _, dup := seen[res.RefreshToken]; dup {
			t.Fatalf("Login %d minted a refresh token identical to an earlier one", i)
		}
		seen[res.RefreshToken] = struct{}{}
		userID = res.User.ID
	}
	// register + 3 logins
	if got := f.users.tokenCount(userID); got != 4 {
		t.Errorf("refresh set size = %d, want 4", got)
	}
}

func TestLogin_UniformInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	res := registerAlice(t, f)
	ctx := context.Background()

	if _, err := f.svc.Login(ctx, "nosuchuser", "whatever", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("unknown user: err = %v, want ErrInvalidCredentials", err)
	}
	if _, err := f.svc.Login(ctx, "alice", "WrongPass1!", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password: err = %v, want ErrInvalidCredentials", err)
	}

	res.User.Status = userdomain.UserStatusInactive
	if _, err := f.svc.Login(ctx, "alice", "Sw0rdFish!", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("inactive user: err = %v, want ErrInvalidCredentials", err)
	}
}

func TestRefresh_RotatesToken(t *testing.T) {
	f := newFixture(t)
	reg := registerAlice(t, f)
	ctx := context.Background()

	res, err := f.svc.Refresh(ctx, reg.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.RefreshToken == reg.RefreshToken {
		t.Error("rotation must issue a new refresh token")
	}
	if res.AccessToken == "" {
		t.Error("rotation must issue a fresh access token")
	}
	if !f.revoked.IsRevoked(ctx, reg.RefreshToken) {
		t.Error("old refresh token should be revoked after rotation")
	}
	if f.users.tokenCount(reg.User.ID) != 1 {
		t.Error("set should hold exactly the rotated token")
	}

	// The old token is gone from the set; presenting it again fails.
	if _, err := f.svc.Refresh(ctx, reg.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("reused token: err = %v, want ErrUnauthorized", err)
	}
	// The new token works.
	if _, err := f.svc.Refresh(ctx, res.RefreshToken); err != nil {
		t.Errorf("rotated token should refresh: %v", err)
	}
}

func TestRefresh_SingleUseUnderConcurrency(t *testing.T) {
	f := newFixture(t)
	reg := registerAlice(t, f)

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Refresh(context.Background(), reg.RefreshToken)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	wins := 0
	for err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("loser err = %v, want ErrUnauthorized", err)
		}
	}
	if wins != 1 {
		t.Errorf("concurrent refresh wins = %d, want exactly 1", wins)
	}
}

func TestRefresh_Failures(t *testing.T) {
	f := newFixture(t)
	reg := registerAlice(t, f)
	ctx := context.Background()

	if _, err := f.svc.Refresh(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("empty token: err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.svc.Refresh(ctx, "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("malformed token: err = %v, want ErrUnauthorized", err)
	}

	f.revoked.Revoke(ctx, reg.RefreshToken, time.Hour)
	if _, err := f.svc.Refresh(ctx, reg.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("revoked token: err = %v, want ErrUnauthorized", err)
	}
}

func TestRefresh_ExpiredToken(t *testing.T) {
	codec := security.NewTokenCodec("test-access", "test-refresh", "lazynotez-test", 15*time.Minute, -time.Minute)
	f := newFixtureWithCodec(t, codec)
	reg := registerAlice(t, f)

	if _, err := f.svc.Refresh(context.Background(), reg.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestRefresh_InactiveUser(t *testing.T) {
	f := newFixture(t)
	reg := registerAlice(t, f)

	reg.User.Status = userdomain.UserStatusInactive
	if _, err := f.svc.Refresh(context.Background(), reg.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestRefresh_TokenNotInSet(t *testing.T) {
	f := newFixture(t)
	reg := registerAlice(t, f)
	ctx := context.Background()

	// Forge a cryptographically valid token that was never persisted,
	// e.g. stolen before rotation and since removed.
	stray, err := f.codec.Sign(security.TokenRefresh, reg.User.ID)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := f.svc.Refresh(ctx, stray); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("token outside the set: err = %v, want ErrUnauthorized", err)
	}
}

func TestLogout_KillsSession(t *testing.T) {
	f := newFixture(t)
	reg := registerAlice(t, f)
	ctx := context.Background()

	f.svc.Logout(ctx, reg.RefreshToken, reg.AccessToken, "10.0.0.1")

	// Refresh token is out of the set and blacklisted.
	if _, err := f.svc.Refresh(ctx, reg.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("refresh after logout: err = %v, want ErrUnauthorized", err)
	}
	// Access token dies immediately even though unexpired.
	if _, err := f.svc.Me(ctx, reg.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("me after logout: err = %v, want ErrUnauthorized", err)
	}

	got := f.recorder.recorded()
	if len(got) != 2 || got[1] != "logout" {
		t.Errorf("recorded actions = %v, want [register logout]", got)
	}
}

func TestLogout_Idempotent(t *testing.T) {
	f := newFixture(t)
	reg := registerAlice(t, f)
	ctx := context.Background()

	// No cookie, garbage cookie, and repeated logout: none may fail.
	f.svc.Logout(ctx, "", "", "")
	f.svc.Logout(ctx, "garbage", "", "")
	f.svc.Logout(ctx, reg.RefreshToken, "", "")
	f.svc.Logout(ctx, reg.RefreshToken, "", "")

	// Only the first effective logout records activity.
	got := f.recorder.recorded()
	if len(got) != 2 {
		t.Errorf("recorded actions = %v, want [register logout]", got)
	}
}

func TestLogout_OneSessionDoesNotKillAnother(t *testing.T) {
	f := newFixture(t)
	registerAlice(t, f)
	ctx := context.Background()

	laptop, err := f.svc.Login(ctx, "alice", "Sw0rdFish!", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	phone, err := f.svc.Login(ctx, "alice", "Sw0rdFish!", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if f.users.tokenCount(laptop.User.ID) != 3 {
		t.Fatalf("token count = %d, want 3 (register + two logins)", f.users.tokenCount(laptop.User.ID))
	}

	f.svc.Logout(ctx, laptop.RefreshToken, laptop.AccessToken, "")

	if _, err := f.svc.Refresh(ctx, phone.RefreshToken); err != nil {
		t.Errorf("other device's session should survive logout: %v", err)
	}
}

func TestMe(t *testing.T) {
	f := newFixture(t)
	reg := registerAlice(t, f)
	ctx := context.Background()

	u, err := f.svc.Me(ctx, reg.AccessToken)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if u.ID != reg.User.ID || u.Username != "alice" {
		t.Errorf("Me returned %+v", u)
	}

	if _, err := f.svc.Me(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("missing token: err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.svc.Me(ctx, "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("invalid token: err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.svc.Me(ctx, reg.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("refresh token is not an access token: err = %v, want ErrUnauthorized", err)
	}
}

func TestMe_ExpiredDistinctFromInvalid(t *testing.T) {
	codec := security.NewTokenCodec("test-access", "test-refresh", "lazynotez-test", -time.Minute, 168*time.Hour)
	f := newFixtureWithCodec(t, codec)
	reg := registerAlice(t, f)

	if _, err := f.svc.Me(context.Background(), reg.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("err = %v, want ErrTokenExpired", err)
	}
}

func TestMe_DeletedUser(t *testing.T) {
	f := newFixture(t)
	reg := registerAlice(t, f)

	f.users.mu.Lock()
	delete(f.users.byID, reg.User.ID)
	f.users.mu.Unlock()

	if _, err := f.svc.Me(context.Background(), reg.AccessToken); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("err = %v, want ErrUserNotFound", err)
	}
}

func TestMe_InactiveUser(t *testing.T) {
	f := newFixture(t)
	reg := registerAlice(t, f)

	reg.User.Status = userdomain.UserStatusInactive
	if _, err := f.svc.Me(context.Background(), reg.AccessToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

// Full lifecycle: register → login (A1, R1) → refresh R1 (A2, R2; R1 dead,
// A1 alive) → logout R2 (A2 and R2 dead).
func TestSessionLifecycle(t *testing.T) {
	f := newFixture(t)
	registerAlice(t, f)
	ctx := context.Background()

	login, err := f.svc.Login(ctx, "alice", "Sw0rdFish!", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	a1, r1 := login.AccessToken, login.RefreshToken

	rot, err := f.svc.Refresh(ctx, r1)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	a2, r2 := rot.AccessToken, rot.RefreshToken

	if _, err := f.svc.Refresh(ctx, r1); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("R1 after rotation: err = %v, want ErrUnauthorized", err)
	}
	// A1 was not revoked by the rotation; it lives until its own expiry.
	if _, err := f.svc.Me(ctx, a1); err != nil {
		t.Errorf("A1 should remain valid after refresh: %v", err)
	}

	f.svc.Logout(ctx, r2, a2, "")

	if _, err := f.svc.Me(ctx, a2); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("A2 after logout: err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.svc.Refresh(ctx, r2); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("R2 after logout: err = %v, want ErrUnauthorized", err)
	}
}
