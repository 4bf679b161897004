package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/db"
)

type UserStatus string

const (
	UserStatusActive UserStatus = "active"
	UserStatusBanned UserStatus = "banned"
)

type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUsernameExists = errors.New("username already exists")
	ErrDuplicate      = errors.New("record already exists")
)

type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"passwordHash"`
	Role         UserRole   `json:"role"`
	Status       UserStatus `json:"status"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

type UserRepository interface {
	Create(ctx context.Context, tx db.Transaction, user *User) (int64, error)
	GetByID(ctx context.Context, tx db.Transaction, id int64) (*User, error)
	GetByUsername(ctx context.Context, tx db.Transaction, username string) (*User, error)
}

type MySQLUserRepository struct {
	db       db.Database
	cache    cache.BasicOps
	ttl      time.Duration
	emptyTTL time.Duration
}

const (
	userInfoKeyPrefix     = "user:info:"
	userUsernameKeyPrefix = "user:username:"

	defaultUserCacheTTL      = 30 * time.Minute
	defaultUserCacheEmptyTTL = 5 * time.Minute
)

func NewUserRepository(database db.Database, cacheClient cache.BasicOps) *MySQLUserRepository {
	return NewUserRepositoryWithTTL(database, cacheClient, defaultUserCacheTTL, defaultUserCacheEmptyTTL)
}

func NewUserRepositoryWithTTL(database db.Database, cacheClient cache.BasicOps, ttl, emptyTTL time.Duration) *MySQLUserRepository {
	if ttl <= 0 {
		ttl = defaultUserCacheTTL
	}
	if emptyTTL <= 0 {
		emptyTTL = defaultUserCacheEmptyTTL
	}
	return &MySQLUserRepository{
		db:       database,
		cache:    cacheClient,
		ttl:      ttl,
		emptyTTL: emptyTTL,
	}
}

const userColumns = "id, username, password_hash, role, status, created_at, updated_at"

func (r *MySQLUserRepository) Create(ctx context.Context, tx db.Transaction, user *User) (int64, error) {
	if user == nil {
		return 0, errors.New("user is nil")
	}

	role := user.Role
	if role == "" {
		role = UserRoleUser
	}
	status := user.Status
	if status == "" {
		status = UserStatusActive
	}

	query := "INSERT INTO users (username, password_hash, role, status) VALUES (?, ?, ?, ?)"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, user.Username, user.PasswordHash, role, status)
	if err != nil {
		if key, ok := db.UniqueViolation(err); ok {
			if strings.Contains(strings.ToLower(key), "username") {
				return 0, ErrUsernameExists
			}
			return 0, ErrDuplicate
		}
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	user.ID = id
	user.Role = role
	user.Status = status
	// Overwrite null markers cached by earlier lookups of this username.
	r.deleteCache(ctx, id, user.Username)
	return id, nil
}

func (r *MySQLUserRepository) GetByID(ctx context.Context, tx db.Transaction, id int64) (*User, error) {
	if r.cache == nil || tx != nil {
		return r.getOne(ctx, tx, "id = ?", id)
	}
	return r.getCached(ctx, userInfoKey(id), func(ctx context.Context) (*User, error) {
		return r.getOne(ctx, nil, "id = ?", id)
	})
}

func (r *MySQLUserRepository) GetByUsername(ctx context.Context, tx db.Transaction, username string) (*User, error) {
	if r.cache == nil || tx != nil {
		return r.getOne(ctx, tx, "username = ?", username)
	}
	return r.getCached(ctx, userUsernameKey(username), func(ctx context.Context) (*User, error) {
		return r.getOne(ctx, nil, "username = ?", username)
	})
}

func (r *MySQLUserRepository) getCached(ctx context.Context, key string, load func(context.Context) (*User, error)) (*User, error) {
	user, err := cache.GetWithCached[*User](
		ctx,
		r.cache,
		key,
		r.ttl,
		r.emptyTTL,
		func(user *User) bool { return user == nil },
		marshalUser,
		unmarshalUser,
		func(ctx context.Context) (*User, error) {
			user, err := load(ctx)
			if errors.Is(err, ErrUserNotFound) {
				return nil, nil
			}
			return user, err
		},
	)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

func (r *MySQLUserRepository) getOne(ctx context.Context, tx db.Transaction, where string, arg interface{}) (*User, error) {
	query := "SELECT " + userColumns + " FROM users WHERE " + where
	user, err := scanUser(db.GetQuerier(r.db, tx).QueryRow(ctx, query, arg))
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *MySQLUserRepository) deleteCache(ctx context.Context, userID int64, username string) {
	if r.cache == nil {
		return
	}
	keys := make([]string, 0, 2)
	if userID != 0 {
		keys = append(keys, userInfoKey(userID))
	}
	if username != "" {
		keys = append(keys, userUsernameKey(username))
	}
	if len(keys) == 0 {
		return
	}
	_ = r.cache.Del(ctx, keys...)
}

func userInfoKey(id int64) string {
	return userInfoKeyPrefix + strconv.FormatInt(id, 10)
}

func userUsernameKey(username string) string {
	return userUsernameKeyPrefix + username
}

func marshalUser(user *User) string {
	payload, err := json.Marshal(user)
	if err != nil {
		return ""
	}
	return string(payload)
}

func unmarshalUser(data string) (*User, error) {
	var user User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func scanUser(scanner db.Scanner) (*User, error) {
	var user User
	err := scanner.Scan(
		&user.ID,
		&user.Username,
		&user.PasswordHash,
		&user.Role,
		&user.Status,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}
