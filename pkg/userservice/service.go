// Package userservice owns accounts and their authentication surface:
// registration, the device random-code challenge login, web login with
// refresh tokens, and session management in the coordination service.
package userservice

import (
	"context"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/inkvault/inkvault/internal/logger"
	"github.com/inkvault/inkvault/pkg/coordination"
	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/store"
)

// Session lifetimes and limiter windows.
const (
	SessionTTL        = 14 * 24 * time.Hour
	loginCodeTTL      = 5 * time.Minute
	rateLimitWindow   = 5 * time.Minute
	maxLoginAttempts  = 10
	refreshTokenLife  = 30 * 24 * time.Hour
)

const (
	sessionPrefix   = "session:"
	loginCodePrefix = "logincode:"
	ratePrefix      = "ratelimit:login:"
)

// Login methods recorded per successful login.
const (
	MethodNew       = "new"
	MethodEquipment = "equipment"
	MethodWeb       = "web"
)

// Bootstrapper prepares a fresh user's filesystem skeleton.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, userID int64) error
}

// Config holds the user service configuration.
type Config struct {
	// RegistrationEnabled gates self-service registration. The first
	// user registers regardless, becoming the bootstrap admin.
	RegistrationEnabled bool `mapstructure:"registration_enabled" yaml:"registration_enabled"`

	// JWTSecret signs web refresh tokens.
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

// Service implements account and session operations.
type Service struct {
	cfg       Config
	store     *store.GORMStore
	coord     coordination.Service
	bootstrap Bootstrapper

	// now is replaceable in tests.
	now func() time.Time
}

// New creates the user service. bootstrap may be nil.
func New(cfg Config, s *store.GORMStore, coord coordination.Service, bootstrap Bootstrapper) *Service {
	return &Service{
		cfg:       cfg,
		store:     s,
		coord:     coord,
		bootstrap: bootstrap,
		now:       time.Now,
	}
}

// MD5Hex hashes a plaintext password the way the device firmware does
// before it ever leaves the tablet.
func MD5Hex(password string) string {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Register creates an account. The very first account is always accepted
// and becomes admin; afterwards registration must be enabled.
func (s *Service) Register(ctx context.Context, email, passwordMD5, displayName string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	count, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	if count > 0 && !s.cfg.RegistrationEnabled {
		return nil, models.ErrUserDisabled
	}

	user := &models.User{
		Email:       email,
		PasswordMD5: passwordMD5,
		DisplayName: displayName,
		IsActive:    true,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	if s.bootstrap != nil {
		if err := s.bootstrap.Bootstrap(ctx, user.ID); err != nil {
			logger.Error("failed to bootstrap user tree",
				logger.KeyUserID, user.ID,
				logger.Err(err))
		}
	}

	logger.Info("user registered",
		logger.KeyUserID, user.ID,
		logger.KeyAccount, user.Email,
		"admin", user.IsAdmin)
	return user, nil
}

// ChallengeCode is the random-code login challenge.
type ChallengeCode struct {
	RandomCode string
	Timestamp  int64
}

// IssueChallenge mints a login challenge for an account. The code lives
// five minutes and is consumed by the login attempt, successful or not.
// Challenges are issued even for unknown accounts so the endpoint cannot
// be used to probe registrations.
func (s *Service) IssueChallenge(ctx context.Context, account string) (*ChallengeCode, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	code := hex.EncodeToString(buf)

	account = strings.ToLower(strings.TrimSpace(account))
	if err := s.coord.SetValue(ctx, loginCodePrefix+account, code, loginCodeTTL); err != nil {
		return nil, err
	}
	return &ChallengeCode{RandomCode: code, Timestamp: s.now().UnixMilli()}, nil
}

// DeviceLogin validates the challenge response: the device sends
// SHA256(password_md5 + randomCode). On success a session token is
// minted and a login record appended.
func (s *Service) DeviceLogin(ctx context.Context, account, response, equipment, method string) (string, *models.User, error) {
	account = strings.ToLower(strings.TrimSpace(account))

	if err := s.checkRateLimit(ctx, account); err != nil {
		return "", nil, err
	}

	code, err := s.coord.PopValue(ctx, loginCodePrefix+account)
	if err != nil {
		return "", nil, models.ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, account)
	if err != nil {
		return "", nil, models.ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", nil, models.ErrUserDisabled
	}

	expected := sha256Hex(user.PasswordMD5 + code)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(response))) {
		return "", nil, models.ErrInvalidCredentials
	}

	token, err := s.mintSession(ctx, user.Email, equipment)
	if err != nil {
		return "", nil, err
	}
	s.recordLogin(ctx, user, equipment, method)
	return token, user, nil
}

// WebLogin authenticates with the raw password hash over the
// authenticated web channel. Accounts created by the admin CLI may carry
// a bcrypt hash instead; both shapes are accepted.
func (s *Service) WebLogin(ctx context.Context, account, passwordMD5 string) (string, *models.User, error) {
	account = strings.ToLower(strings.TrimSpace(account))

	if err := s.checkRateLimit(ctx, account); err != nil {
		return "", nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, account)
	if err != nil {
		return "", nil, models.ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", nil, models.ErrUserDisabled
	}
	if !passwordMatches(user.PasswordMD5, passwordMD5) {
		return "", nil, models.ErrInvalidCredentials
	}

	token, err := s.mintSession(ctx, user.Email, "")
	if err != nil {
		return "", nil, err
	}
	s.recordLogin(ctx, user, "", MethodWeb)
	return token, user, nil
}

// passwordMatches compares a stored credential with the presented MD5.
// Stored bcrypt hashes (CLI-created accounts) are checked against the
// MD5 string, which is what the web client presents.
func passwordMatches(stored, presentedMD5 string) bool {
	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(presentedMD5)) == nil
	}
	return hmac.Equal([]byte(strings.ToLower(stored)), []byte(strings.ToLower(presentedMD5)))
}

// BcryptMD5 hashes an MD5 credential for CLI-created accounts.
func BcryptMD5(passwordMD5 string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(passwordMD5), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (s *Service) checkRateLimit(ctx context.Context, account string) error {
	attempts, err := s.coord.Increment(ctx, ratePrefix+account, rateLimitWindow)
	if err != nil {
		return err
	}
	if attempts > maxLoginAttempts {
		logger.Warn("login rate limit hit", logger.KeyAccount, account)
		return models.ErrRateLimited
	}
	return nil
}

func (s *Service) recordLogin(ctx context.Context, user *models.User, equipment, method string) {
	err := s.store.AppendLoginRecord(ctx, &models.LoginRecord{
		UserID:    user.ID,
		Account:   user.Email,
		Equipment: equipment,
		Method:    method,
	})
	if err != nil {
		logger.Warn("failed to append login record",
			logger.KeyUserID, user.ID,
			logger.Err(err))
	}
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
