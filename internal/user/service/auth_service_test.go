package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"codejudge/internal/common/cache/cachetest"
	"codejudge/internal/common/db"
	"codejudge/internal/user/repository"
	pkgerrors "codejudge/pkg/errors"
)

type memUserRepo struct {
	mu     sync.Mutex
	byID   map[int64]*repository.User
	nextID int64
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{byID: make(map[int64]*repository.User), nextID: 1}
}

func (r *memUserRepo) Create(_ context.Context, _ db.Transaction, user *repository.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Username == user.Username {
			return 0, repository.ErrUsernameExists
		}
	}
	user.ID = r.nextID
	user.CreatedAt = time.Now()
	r.nextID++
	stored := *user
	r.byID[user.ID] = &stored
	return user.ID, nil
}

func (r *memUserRepo) GetByID(_ context.Context, _ db.Transaction, id int64) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *memUserRepo) GetByUsername(_ context.Context, _ db.Transaction, username string) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

type memSolvedRepo struct {
	mu     sync.Mutex
	solved map[int64]map[int64]bool
}

func (r *memSolvedRepo) Add(_ context.Context, userID, problemID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.solved == nil {
		r.solved = make(map[int64]map[int64]bool)
	}
	if r.solved[userID] == nil {
		r.solved[userID] = make(map[int64]bool)
	}
	if r.solved[userID][problemID] {
		return false, nil
	}
	r.solved[userID][problemID] = true
	return true, nil
}

func (r *memSolvedRepo) List(_ context.Context, userID int64) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]int64, 0)
	for id := range r.solved[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

func newTestAuthService(t *testing.T) (*AuthService, *memUserRepo, *memSolvedRepo) {
	t.Helper()
	c, _ := cachetest.New(t)
	users := newMemUserRepo()
	solved := &memSolvedRepo{}
	svc := NewAuthService(users, solved, repository.NewTokenBlacklist(c), c, AuthServiceConfig{
		JWTSecret:      []byte("test-secret"),
		LoginFailLimit: 3,
		AdminUsernames: []string{"root"},
	})
	return svc, users, solved
}

func TestRegisterLoginAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestAuthService(t)

	reg, err := svc.Register(ctx, RegisterInput{Username: "alice", Password: "passw0rd!"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if reg.User.Role != repository.UserRoleUser {
		t.Fatalf("role = %s", reg.User.Role)
	}

	login, err := svc.Login(ctx, LoginInput{Username: "alice", Password: "passw0rd!", IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	identity, err := svc.Authenticate(ctx, login.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity.ID != reg.User.ID || identity.Role != "user" {
		t.Fatalf("identity = %+v", identity)
	}
}

func TestRegisterAdminAndDuplicate(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestAuthService(t)

	res, err := svc.Register(ctx, RegisterInput{Username: "root", Password: "adminpass1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.User.Role != repository.UserRoleAdmin {
		t.Fatalf("role = %s, want admin", res.User.Role)
	}

	_, err = svc.Register(ctx, RegisterInput{Username: "root", Password: "adminpass1"})
	if !pkgerrors.Is(err, pkgerrors.UsernameAlreadyExists) {
		t.Fatalf("err = %v, want UsernameAlreadyExists", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	tests := []struct {
		username, password string
		code               pkgerrors.ErrorCode
	}{
		{"1abc", "passw0rd!", pkgerrors.InvalidUsername},
		{"ab", "passw0rd!", pkgerrors.InvalidUsername},
		{"alice", "short1", pkgerrors.PasswordTooWeak},
		{"alice", "onlyletters", pkgerrors.PasswordTooWeak},
		{"alice", "has space 123", pkgerrors.InvalidPassword},
	}
	for _, tt := range tests {
		_, err := svc.Register(context.Background(), RegisterInput{Username: tt.username, Password: tt.password})
		if got := pkgerrors.GetCode(err); got != tt.code {
			t.Errorf("Register(%q, %q) code = %v, want %v", tt.username, tt.password, got, tt.code)
		}
	}
}

func TestLoginFailureLimit(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestAuthService(t)
	if _, err := svc.Register(ctx, RegisterInput{Username: "bob", Password: "passw0rd!"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for i := 0; i < 3; i++ {
		_, err := svc.Login(ctx, LoginInput{Username: "bob", Password: "wrongpass1", IP: "1.2.3.4"})
		if !pkgerrors.Is(err, pkgerrors.InvalidCredentials) {
			t.Fatalf("attempt %d err = %v", i, err)
		}
	}
	_, err := svc.Login(ctx, LoginInput{Username: "bob", Password: "passw0rd!", IP: "1.2.3.4"})
	if !pkgerrors.Is(err, pkgerrors.TooManyRequests) {
		t.Fatalf("err = %v, want TooManyRequests", err)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestAuthService(t)
	res, err := svc.Register(ctx, RegisterInput{Username: "carol", Password: "passw0rd!"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := svc.Logout(ctx, res.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := svc.Authenticate(ctx, res.AccessToken); !pkgerrors.Is(err, pkgerrors.TokenInvalid) {
		t.Fatalf("err = %v, want TokenInvalid", err)
	}
}

func TestAuthenticateRejectsForeignTokens(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestAuthService(t)
	other := NewAuthService(newMemUserRepo(), &memSolvedRepo{}, nil, nil, AuthServiceConfig{JWTSecret: []byte("other-secret")})
	res, err := other.Register(ctx, RegisterInput{Username: "dave", Password: "passw0rd!"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := svc.Authenticate(ctx, res.AccessToken); !pkgerrors.Is(err, pkgerrors.TokenInvalid) {
		t.Fatalf("err = %v, want TokenInvalid", err)
	}
	if _, err := svc.Authenticate(ctx, ""); !pkgerrors.Is(err, pkgerrors.Unauthorized) {
		t.Fatalf("empty token err = %v", err)
	}

	expired := NewAuthService(newMemUserRepo(), &memSolvedRepo{}, nil, nil, AuthServiceConfig{JWTSecret: []byte("test-secret"), AccessTokenTTL: -time.Minute})
	res, _ = expired.Register(ctx, RegisterInput{Username: "erin", Password: "passw0rd!"})
	if _, err := svc.Authenticate(ctx, res.AccessToken); !pkgerrors.Is(err, pkgerrors.TokenExpired) {
		t.Fatalf("expired err = %v", err)
	}
}

func TestMarkSolvedAndMe(t *testing.T) {
	ctx := context.Background()
	svc, _, solved := newTestAuthService(t)
	res, err := svc.Register(ctx, RegisterInput{Username: "frank", Password: "passw0rd!"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := svc.MarkSolved(ctx, res.User.ID, 42); err != nil {
			t.Fatalf("MarkSolved: %v", err)
		}
	}
	if len(solved.solved[res.User.ID]) != 1 {
		t.Fatalf("solved set = %v", solved.solved[res.User.ID])
	}

	profile, err := svc.Me(ctx, res.User.ID)
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if profile.Username != "frank" || len(profile.SolvedProblems) != 1 || profile.SolvedProblems[0] != 42 {
		t.Fatalf("profile = %+v", profile)
	}
	if _, err := svc.Me(ctx, 999); !pkgerrors.Is(err, pkgerrors.UserNotFound) {
		t.Fatalf("err = %v, want UserNotFound", err)
	}
}
