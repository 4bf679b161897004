package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"codejudge/internal/common/http/middleware"
	pkgerrors "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const tokenTypeAccess = "access"

type tokenClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func (s *AuthService) generateToken(userID int64, role string, ttl time.Duration) (string, time.Time, error) {
	if len(s.config.JWTSecret) == 0 {
		return "", time.Time{}, pkgerrors.New(pkgerrors.TokenGenerationFailed)
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	tokenID, err := newTokenID()
	if err != nil {
		return "", time.Time{}, err
	}
	claims := tokenClaims{
		Role:      role,
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    s.config.JWTIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        tokenID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	raw, err := token.SignedString(s.config.JWTSecret)
	if err != nil {
		return "", time.Time{}, pkgerrors.Wrap(fmt.Errorf("sign token failed: %w", err), pkgerrors.TokenGenerationFailed)
	}
	return raw, expiresAt, nil
}

func (s *AuthService) parseToken(raw string) (*tokenClaims, error) {
	if raw == "" {
		return nil, pkgerrors.New(pkgerrors.Unauthorized)
	}

	parsed, err := jwt.ParseWithClaims(raw, &tokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.config.JWTSecret, nil
	})
	if err != nil {
		if stderrors.Is(err, jwt.ErrTokenExpired) {
			return nil, pkgerrors.New(pkgerrors.TokenExpired)
		}
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if !parsed.Valid {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}

	claims, ok := parsed.Claims.(*tokenClaims)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if s.config.JWTIssuer != "" && claims.Issuer != s.config.JWTIssuer {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if claims.TokenType != tokenTypeAccess || claims.Subject == "" || claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	return claims, nil
}

// Authenticate validates an access token and returns the caller it names.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (middleware.Identity, error) {
	claims, err := s.parseToken(raw)
	if err != nil {
		return middleware.Identity{}, err
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return middleware.Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
	}
	if s.blacklist != nil {
		revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
		if err != nil {
			// Blacklist lookups fail open.
			logger.Warn(ctx, "check token blacklist failed", zap.Error(err))
		} else if revoked {
			return middleware.Identity{}, pkgerrors.New(pkgerrors.TokenInvalid)
		}
	}
	return middleware.Identity{ID: userID, Role: claims.Role}, nil
}

func newTokenID() (string, error) {
	randomBytes := make([]byte, 16)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", pkgerrors.Wrap(fmt.Errorf("generate token id failed: %w", err), pkgerrors.TokenGenerationFailed)
	}
	return hex.EncodeToString(randomBytes), nil
}
