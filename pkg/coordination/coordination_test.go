package coordination

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/inkvault/inkvault/pkg/models"
	"github.com/inkvault/inkvault/pkg/store"
)

// newTestSQL creates a SQL coordination service on an in-memory database.
func newTestSQL(t *testing.T) *SQL {
	t.Helper()
	s, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewSQL(s)
}

// implementations returns both Service implementations keyed by name.
func implementations(t *testing.T) map[string]Service {
	return map[string]Service{
		"memory": NewMemory(),
		"sql":    newTestSQL(t),
	}
}

func TestSetGetDelete(t *testing.T) {
	ctx := context.Background()
	for name, svc := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			if err := svc.SetValue(ctx, "k", "v", 0); err != nil {
				t.Fatalf("set: %v", err)
			}

			got, err := svc.GetValue(ctx, "k")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got != "v" {
				t.Errorf("expected v, got %q", got)
			}

			// Overwrite
			if err := svc.SetValue(ctx, "k", "v2", 0); err != nil {
				t.Fatalf("set: %v", err)
			}
			got, _ = svc.GetValue(ctx, "k")
			if got != "v2" {
				t.Errorf("expected v2, got %q", got)
			}

			if err := svc.DeleteValue(ctx, "k"); err != nil {
				t.Fatalf("delete: %v", err)
			}
			if _, err := svc.GetValue(ctx, "k"); !errors.Is(err, models.ErrKeyNotFound) {
				t.Errorf("expected ErrKeyNotFound, got %v", err)
			}

			// Deleting an absent key is not an error
			if err := svc.DeleteValue(ctx, "absent"); err != nil {
				t.Errorf("delete absent: %v", err)
			}
		})
	}
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()

	mem := NewMemory()
	now := time.Now()
	mem.SetClock(func() time.Time { return now })

	if err := mem.SetValue(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := mem.GetValue(ctx, "k"); err != nil {
		t.Fatalf("get before expiry: %v", err)
	}

	now = now.Add(time.Minute + time.Second)
	if _, err := mem.GetValue(ctx, "k"); !errors.Is(err, models.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after expiry, got %v", err)
	}
}

func TestPopValueSingleUse(t *testing.T) {
	ctx := context.Background()
	for name, svc := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			if err := svc.SetValue(ctx, "nonce", "1", 0); err != nil {
				t.Fatalf("set: %v", err)
			}

			got, err := svc.PopValue(ctx, "nonce")
			if err != nil {
				t.Fatalf("first pop: %v", err)
			}
			if got != "1" {
				t.Errorf("expected 1, got %q", got)
			}

			if _, err := svc.PopValue(ctx, "nonce"); !errors.Is(err, models.ErrKeyNotFound) {
				t.Errorf("expected ErrKeyNotFound on second pop, got %v", err)
			}
		})
	}
}

func TestPopValueConcurrent(t *testing.T) {
	ctx := context.Background()
	svc := NewMemory()

	if err := svc.SetValue(ctx, "nonce", "1", 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	const callers = 16
	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.PopValue(ctx, "nonce"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 successful pop, got %d", wins)
	}
}

func TestIncrement(t *testing.T) {
	ctx := context.Background()
	for name, svc := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			for want := int64(1); want <= 3; want++ {
				got, err := svc.Increment(ctx, "counter", time.Minute)
				if err != nil {
					t.Fatalf("increment: %v", err)
				}
				if got != want {
					t.Errorf("expected %d, got %d", want, got)
				}
			}
		})
	}
}

func TestAcquireReleaseLock(t *testing.T) {
	ctx := context.Background()
	for name, svc := range implementations(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := svc.AcquireLock(ctx, "lock", "owner-a", time.Minute)
			if err != nil || !ok {
				t.Fatalf("first acquire: ok=%v err=%v", ok, err)
			}

			// Same owner refreshes
			ok, err = svc.AcquireLock(ctx, "lock", "owner-a", time.Minute)
			if err != nil || !ok {
				t.Fatalf("re-acquire by holder: ok=%v err=%v", ok, err)
			}

			// Different owner is refused
			ok, err = svc.AcquireLock(ctx, "lock", "owner-b", time.Minute)
			if err != nil {
				t.Fatalf("acquire by other: %v", err)
			}
			if ok {
				t.Error("expected acquire by other owner to fail")
			}

			owner, err := svc.GetLockOwner(ctx, "lock")
			if err != nil || owner != "owner-a" {
				t.Errorf("expected holder owner-a, got %q err=%v", owner, err)
			}

			// Release by non-holder is a no-op
			if err := svc.ReleaseLock(ctx, "lock", "owner-b"); err != nil {
				t.Fatalf("release by other: %v", err)
			}
			if owner, _ := svc.GetLockOwner(ctx, "lock"); owner != "owner-a" {
				t.Errorf("lock lost after foreign release")
			}

			if err := svc.ReleaseLock(ctx, "lock", "owner-a"); err != nil {
				t.Fatalf("release: %v", err)
			}
			ok, err = svc.AcquireLock(ctx, "lock", "owner-b", time.Minute)
			if err != nil || !ok {
				t.Errorf("acquire after release: ok=%v err=%v", ok, err)
			}
		})
	}
}

func TestLockExpiryTakeover(t *testing.T) {
	ctx := context.Background()

	mem := NewMemory()
	now := time.Now()
	mem.SetClock(func() time.Time { return now })

	ok, _ := mem.AcquireLock(ctx, "lock", "owner-a", 5*time.Minute)
	if !ok {
		t.Fatal("initial acquire failed")
	}

	ok, _ = mem.AcquireLock(ctx, "lock", "owner-b", 5*time.Minute)
	if ok {
		t.Fatal("takeover before expiry should fail")
	}

	now = now.Add(5*time.Minute + time.Second)
	ok, _ = mem.AcquireLock(ctx, "lock", "owner-b", 5*time.Minute)
	if !ok {
		t.Fatal("takeover after expiry should succeed")
	}
}
