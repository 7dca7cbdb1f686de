package userservice

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inkvault/inkvault/pkg/coordination"
	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/store"
)

type fakeBootstrapper struct {
	calls []int64
}

func (f *fakeBootstrapper) Bootstrap(ctx context.Context, userID int64) error {
	f.calls = append(f.calls, userID)
	return nil
}

func newUserService(t *testing.T, cfg Config) (*Service, *fakeBootstrapper, *coordination.Memory) {
	t.Helper()
	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	boot := &fakeBootstrapper{}
	coord := coordination.NewMemory()
	return New(cfg, s, coord, boot), boot, coord
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, boot, _ := newUserService(t, Config{RegistrationEnabled: false})

	t.Run("first user registers despite disabled flag and becomes admin", func(t *testing.T) {
		user, err := svc.Register(ctx, "Admin@Example.com", MD5Hex("secret"), "Admin")
		require.NoError(t, err)
		assert.True(t, user.IsAdmin)
		assert.Equal(t, "admin@example.com", user.Email)
		assert.Equal(t, []int64{user.ID}, boot.calls)
	})

	t.Run("second user blocked while registration disabled", func(t *testing.T) {
		_, err := svc.Register(ctx, "b@example.com", MD5Hex("x"), "")
		assert.ErrorIs(t, err, models.ErrUserDisabled)
	})
}

func TestDeviceLogin(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newUserService(t, Config{RegistrationEnabled: true})

	passwordMD5 := MD5Hex("hunter2")
	user, err := svc.Register(ctx, "dev@example.com", passwordMD5, "Dev")
	require.NoError(t, err)

	login := func(t *testing.T) (string, error) {
		t.Helper()
		challenge, err := svc.IssueChallenge(ctx, "dev@example.com")
		require.NoError(t, err)
		response := sha256Hex(passwordMD5 + challenge.RandomCode)
		token, got, err := svc.DeviceLogin(ctx, "dev@example.com", response, "SN1", MethodNew)
		if err == nil {
			assert.Equal(t, user.ID, got.ID)
		}
		return token, err
	}

	t.Run("challenge round trip", func(t *testing.T) {
		token, err := login(t)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		validated, info, err := svc.Validate(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, validated.ID)
		assert.Equal(t, "SN1", info.Equipment)
	})

	t.Run("wrong response fails", func(t *testing.T) {
		_, err := svc.IssueChallenge(ctx, "dev@example.com")
		require.NoError(t, err)
		_, _, err = svc.DeviceLogin(ctx, "dev@example.com", "badresponse", "SN1", MethodNew)
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	})

	t.Run("challenge is single use", func(t *testing.T) {
		challenge, err := svc.IssueChallenge(ctx, "dev@example.com")
		require.NoError(t, err)
		response := sha256Hex(passwordMD5 + challenge.RandomCode)
		_, _, err = svc.DeviceLogin(ctx, "dev@example.com", response, "SN1", MethodNew)
		require.NoError(t, err)
		_, _, err = svc.DeviceLogin(ctx, "dev@example.com", response, "SN1", MethodNew)
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	})

	t.Run("login without challenge fails", func(t *testing.T) {
		_, _, err := svc.DeviceLogin(ctx, "dev@example.com", "whatever", "SN1", MethodNew)
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	})

	t.Run("login records appended", func(t *testing.T) {
		recs, err := svc.store.ListLoginRecords(ctx, user.ID, 0)
		require.NoError(t, err)
		assert.NotEmpty(t, recs)
		assert.Equal(t, "SN1", recs[0].Equipment)
	})
}

func TestLoginRateLimit(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newUserService(t, Config{RegistrationEnabled: true})
	_, err := svc.Register(ctx, "rl@example.com", MD5Hex("pw"), "")
	require.NoError(t, err)

	for i := 0; i < maxLoginAttempts; i++ {
		_, _, err := svc.WebLogin(ctx, "rl@example.com", "wrong")
		assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	}
	_, _, err = svc.WebLogin(ctx, "rl@example.com", MD5Hex("pw"))
	assert.ErrorIs(t, err, models.ErrRateLimited, "limit counts attempts, not failures")
}

func TestWebLogin(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newUserService(t, Config{RegistrationEnabled: true, JWTSecret: "s3cret"})
	passwordMD5 := MD5Hex("pw")
	user, err := svc.Register(ctx, "web@example.com", passwordMD5, "")
	require.NoError(t, err)

	t.Run("md5 credential", func(t *testing.T) {
		token, got, err := svc.WebLogin(ctx, "web@example.com", passwordMD5)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.NotEmpty(t, token)
	})

	t.Run("bcrypt credential from the CLI", func(t *testing.T) {
		hashed, err := BcryptMD5(passwordMD5)
		require.NoError(t, err)
		require.NoError(t, svc.store.UpdateUserPassword(ctx, user.ID, hashed))
		t.Cleanup(func() {
			require.NoError(t, svc.store.UpdateUserPassword(ctx, user.ID, passwordMD5))
		})

		_, _, err = svc.WebLogin(ctx, "web@example.com", passwordMD5)
		require.NoError(t, err)
	})

	t.Run("refresh token round trip", func(t *testing.T) {
		refresh, err := svc.IssueRefreshToken(user.Email)
		require.NoError(t, err)

		session, got, err := svc.RedeemRefreshToken(ctx, refresh)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)

		validated, _, err := svc.Validate(ctx, session)
		require.NoError(t, err)
		assert.Equal(t, user.ID, validated.ID)
	})

	t.Run("expired refresh token rejected", func(t *testing.T) {
		refresh, err := svc.IssueRefreshToken(user.Email)
		require.NoError(t, err)

		svc.now = func() time.Time { return time.Now().Add(refreshTokenLife + time.Hour) }
		t.Cleanup(func() { svc.now = time.Now })

		_, _, err = svc.RedeemRefreshToken(ctx, refresh)
		assert.ErrorIs(t, err, models.ErrTokenInvalid)
	})
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newUserService(t, Config{RegistrationEnabled: true})
	passwordMD5 := MD5Hex("pw")
	_, err := svc.Register(ctx, "lo@example.com", passwordMD5, "")
	require.NoError(t, err)

	token, _, err := svc.WebLogin(ctx, "lo@example.com", passwordMD5)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, token))
	_, _, err = svc.Validate(ctx, token)
	assert.ErrorIs(t, err, models.ErrTokenInvalid)
}
