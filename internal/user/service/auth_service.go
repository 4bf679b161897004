package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/user/repository"
	pkgerrors "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultAccessTokenTTL = 24 * time.Hour
	defaultLoginFailTTL   = 15 * time.Minute
	defaultLoginFailLimit = 5
)

// AuthServiceConfig holds configuration for AuthService.
type AuthServiceConfig struct {
	JWTSecret      []byte
	JWTIssuer      string
	AccessTokenTTL time.Duration
	LoginFailTTL   time.Duration
	LoginFailLimit int

	// AdminUsernames are granted the admin role when they register.
	AdminUsernames []string
}

// AuthService handles registration, login, logout and token validation.
type AuthService struct {
	users          repository.UserRepository
	solved         repository.SolvedRepository
	blacklist      repository.TokenBlacklist
	loginFailCache cache.BasicOps
	config         AuthServiceConfig
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	users repository.UserRepository,
	solved repository.SolvedRepository,
	blacklist repository.TokenBlacklist,
	loginFailCache cache.BasicOps,
	cfg AuthServiceConfig,
) *AuthService {
	if cfg.AccessTokenTTL == 0 {
		cfg.AccessTokenTTL = defaultAccessTokenTTL
	}
	if cfg.LoginFailTTL == 0 {
		cfg.LoginFailTTL = defaultLoginFailTTL
	}
	if cfg.LoginFailLimit == 0 {
		cfg.LoginFailLimit = defaultLoginFailLimit
	}
	if cfg.JWTIssuer == "" {
		cfg.JWTIssuer = "codejudge"
	}

	return &AuthService{
		users:          users,
		solved:         solved,
		blacklist:      blacklist,
		loginFailCache: loginFailCache,
		config:         cfg,
	}
}

// RegisterInput represents input for user registration.
type RegisterInput struct {
	Username string
	Password string
}

// LoginInput represents input for user login.
type LoginInput struct {
	Username string
	Password string
	IP       string
}

// UserInfo represents basic user info for auth responses.
type UserInfo struct {
	ID       int64
	Username string
	Role     repository.UserRole
}

// AuthResult represents the result of auth operations.
type AuthResult struct {
	AccessToken     string
	AccessExpiresAt time.Time
	User            UserInfo
}

// Profile is the caller's own account view.
type Profile struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	Role           string    `json:"role"`
	SolvedProblems []int64   `json:"solvedProblems"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Register creates a new user and issues an access token.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (AuthResult, error) {
	if err := validateUsername(input.Username); err != nil {
		return AuthResult{}, err
	}
	if err := validatePassword(input.Password); err != nil {
		return AuthResult{}, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return AuthResult{}, pkgerrors.Wrap(fmt.Errorf("hash password failed: %w", err), pkgerrors.InternalServerError)
	}

	role := repository.UserRoleUser
	if slices.Contains(s.config.AdminUsernames, input.Username) {
		role = repository.UserRoleAdmin
	}
	user := &repository.User{
		Username:     input.Username,
		PasswordHash: string(passwordHash),
		Role:         role,
		Status:       repository.UserStatusActive,
	}

	if _, err := s.users.Create(ctx, nil, user); err != nil {
		return AuthResult{}, mapUserCreateError(err)
	}
	logger.Info(ctx, "user registered", zap.Int64("user_id", user.ID), zap.String("role", string(user.Role)))
	return s.issueToken(user)
}

// Login verifies credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (AuthResult, error) {
	if err := validateUsername(input.Username); err != nil {
		return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
	}
	if err := validateLoginPassword(input.Password); err != nil {
		return AuthResult{}, err
	}
	if err := s.checkLoginLimit(ctx, input.Username, input.IP); err != nil {
		return AuthResult{}, err
	}

	user, err := s.users.GetByUsername(ctx, nil, input.Username)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			s.recordLoginFailure(ctx, input.Username, input.IP)
			return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
		}
		return AuthResult{}, pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
	}

	if user.Status == repository.UserStatusBanned {
		return AuthResult{}, pkgerrors.New(pkgerrors.AccountSuspended)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		s.recordLoginFailure(ctx, input.Username, input.IP)
		return AuthResult{}, pkgerrors.New(pkgerrors.InvalidCredentials)
	}

	s.clearLoginFailure(ctx, input.Username, input.IP)
	return s.issueToken(user)
}

// Logout revokes the presented access token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	claims, err := s.parseToken(rawToken)
	if err != nil {
		return err
	}
	if s.blacklist == nil {
		return nil
	}
	if err := s.blacklist.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return pkgerrors.Wrap(fmt.Errorf("revoke token failed: %w", err), pkgerrors.CacheError)
	}
	return nil
}

// Me returns the caller's profile including solved problem ids.
func (s *AuthService) Me(ctx context.Context, userID int64) (Profile, error) {
	user, err := s.users.GetByID(ctx, nil, userID)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return Profile{}, pkgerrors.New(pkgerrors.UserNotFound)
		}
		return Profile{}, pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
	}
	solved, err := s.solved.List(ctx, userID)
	if err != nil {
		return Profile{}, pkgerrors.Wrap(fmt.Errorf("list solved problems failed: %w", err), pkgerrors.DatabaseError)
	}
	return Profile{
		ID:             user.ID,
		Username:       user.Username,
		Role:           string(user.Role),
		SolvedProblems: solved,
		CreatedAt:      user.CreatedAt,
	}, nil
}

// MarkSolved adds problemID to the user's solved set. Repeated calls are no-ops.
func (s *AuthService) MarkSolved(ctx context.Context, userID, problemID int64) error {
	added, err := s.solved.Add(ctx, userID, problemID)
	if err != nil {
		return pkgerrors.Wrap(fmt.Errorf("add solved problem failed: %w", err), pkgerrors.DatabaseError)
	}
	if added {
		logger.Info(ctx, "problem solved", zap.Int64("user_id", userID), zap.Int64("problem_id", problemID))
	}
	return nil
}

func (s *AuthService) issueToken(user *repository.User) (AuthResult, error) {
	accessToken, accessExp, err := s.generateToken(user.ID, string(user.Role), s.config.AccessTokenTTL)
	if err != nil {
		return AuthResult{}, err
	}
	return AuthResult{
		AccessToken:     accessToken,
		AccessExpiresAt: accessExp,
		User: UserInfo{
			ID:       user.ID,
			Username: user.Username,
			Role:     user.Role,
		},
	}, nil
}

func mapUserCreateError(err error) error {
	if stderrors.Is(err, repository.ErrUsernameExists) {
		return pkgerrors.New(pkgerrors.UsernameAlreadyExists)
	}
	if stderrors.Is(err, repository.ErrDuplicate) {
		return pkgerrors.New(pkgerrors.RecordAlreadyExists)
	}
	return pkgerrors.Wrap(fmt.Errorf("create user failed: %w", err), pkgerrors.DatabaseError)
}
