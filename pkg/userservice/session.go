package userservice

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/inkvault/inkvault/pkg/models"
)

// SessionInfo is the state stored behind a session token.
type SessionInfo struct {
	Email     string `json:"email"`
	Equipment string `json:"equipment,omitempty"`
}

// mintSession stores a fresh random token in the coordination service.
func (s *Service) mintSession(ctx context.Context, email, equipment string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	token := hex.EncodeToString(buf)

	payload, err := json.Marshal(SessionInfo{Email: email, Equipment: equipment})
	if err != nil {
		return "", err
	}
	if err := s.coord.SetValue(ctx, sessionPrefix+token, string(payload), SessionTTL); err != nil {
		return "", err
	}
	return token, nil
}

// Validate resolves a session token to its user. Unknown or expired
// tokens fail with ErrTokenInvalid.
func (s *Service) Validate(ctx context.Context, token string) (*models.User, *SessionInfo, error) {
	if token == "" {
		return nil, nil, models.ErrTokenInvalid
	}
	raw, err := s.coord.GetValue(ctx, sessionPrefix+token)
	if err != nil {
		return nil, nil, models.ErrTokenInvalid
	}
	var info SessionInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		return nil, nil, models.ErrTokenInvalid
	}
	user, err := s.store.GetUserByEmail(ctx, info.Email)
	if err != nil {
		return nil, nil, models.ErrTokenInvalid
	}
	if !user.IsActive {
		return nil, nil, models.ErrUserDisabled
	}
	return user, &info, nil
}

// Logout revokes a session token.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.coord.DeleteValue(ctx, sessionPrefix+token)
}

// refreshClaims is the payload of a web refresh token.
type refreshClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// IssueRefreshToken mints a signed long-lived refresh token for the web
// client. Refresh tokens are stateless; revoking an account disables
// them through the user lookup on redemption.
func (s *Service) IssueRefreshToken(email string) (string, error) {
	if s.cfg.JWTSecret == "" {
		return "", fmt.Errorf("jwt secret not configured")
	}
	now := s.now()
	claims := refreshClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "inkvault",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(refreshTokenLife)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}

// RedeemRefreshToken trades a valid refresh token for a fresh session.
func (s *Service) RedeemRefreshToken(ctx context.Context, tokenString string) (string, *models.User, error) {
	if s.cfg.JWTSecret == "" {
		return "", nil, models.ErrTokenInvalid
	}
	var claims refreshClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !token.Valid {
		return "", nil, models.ErrTokenInvalid
	}

	user, err := s.store.GetUserByEmail(ctx, claims.Email)
	if err != nil {
		return "", nil, models.ErrTokenInvalid
	}
	if !user.IsActive {
		return "", nil, models.ErrUserDisabled
	}

	session, err := s.mintSession(ctx, user.Email, "")
	if err != nil {
		return "", nil, err
	}
	return session, user, nil
}
