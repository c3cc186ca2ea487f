package auth

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"cyberwatch-soc/config"
	"cyberwatch-soc/core/store"
	"cyberwatch-soc/core/utils"
)

func setupAuthEnv(t *testing.T) (store.UsersStore, *Authenticator) {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBURL:    filepath.Join(t.TempDir(), "test.db"),
	}
	logger := utils.NewLogger()
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.ApplyMigrations(context.Background(), db, logger); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	users := store.NewUsersStore(db)
	return users, NewAuthenticator(users, logger)
}

func createUser(t *testing.T, users store.UsersStore, email, password string, active bool) *store.User {
	t.Helper()
	u := &store.User{
		Email:    email,
		Password: password,
		FullName: "Test User",
		IsActive: active,
		Role:     "analyst",
	}
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestAuthenticateUnknownAccount(t *testing.T) {
	_, a := setupAuthEnv(t)
	if _, err := a.Authenticate(context.Background(), "ghost@example.com", "whatever"); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
}

func TestAuthenticateEmailIsCaseSensitive(t *testing.T) {
	users, a := setupAuthEnv(t)
	hash, _ := HashPassword("topsecret99")
	createUser(t, users, "Ana@example.com", hash, true)
	if _, err := a.Authenticate(context.Background(), "ana@example.com", "topsecret99"); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected case-sensitive lookup to miss, got %v", err)
	}
}

func TestAuthenticateHashedPassword(t *testing.T) {
	users, a := setupAuthEnv(t)
	hash, err := HashPassword("topsecret99")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := createUser(t, users, "ana@example.com", hash, true)

	got, err := a.Authenticate(context.Background(), "ana@example.com", "topsecret99")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("expected user %d, got %d", u.ID, got.ID)
	}
	if _, err := a.Authenticate(context.Background(), "ana@example.com", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
}

func TestAuthenticateMigratesLegacyPlaintextOnce(t *testing.T) {
	users, a := setupAuthEnv(t)
	u := createUser(t, users, "legacy@example.com", "plaintextpass", true)

	if _, err := a.Authenticate(context.Background(), "legacy@example.com", "plaintextpass"); err != nil {
		t.Fatalf("first login: %v", err)
	}
	stored, err := users.GetByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if ClassifyPassword(stored.Password) != PasswordHashed {
		t.Fatalf("expected stored password migrated to hash")
	}
	if !VerifyPassword(stored.Password, "plaintextpass") {
		t.Fatalf("expected migrated hash to verify original plaintext")
	}

	// Repeated logins never rewrite the stored value.
	if _, err := a.Authenticate(context.Background(), "legacy@example.com", "plaintextpass"); err != nil {
		t.Fatalf("second login: %v", err)
	}
	again, err := users.GetByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if again.Password != stored.Password {
		t.Fatalf("expected stored hash unchanged on repeated login")
	}
}

func TestAuthenticateWrongLegacyPasswordDoesNotMigrate(t *testing.T) {
	users, a := setupAuthEnv(t)
	u := createUser(t, users, "legacy@example.com", "plaintextpass", true)
	if _, err := a.Authenticate(context.Background(), "legacy@example.com", "nope"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected ErrBadCredentials, got %v", err)
	}
	stored, err := users.GetByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if stored.Password != "plaintextpass" {
		t.Fatalf("expected stored value untouched after failed login")
	}
}

func TestConcurrentLegacyLoginsConvergeOnOneHash(t *testing.T) {
	users, a := setupAuthEnv(t)
	u := createUser(t, users, "legacy@example.com", "plaintextpass", true)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = a.Authenticate(context.Background(), "legacy@example.com", "plaintextpass")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("login %d failed: %v", i, err)
		}
	}
	stored, err := users.GetByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if ClassifyPassword(stored.Password) != PasswordHashed {
		t.Fatalf("expected a single hashed representation")
	}
	if !VerifyPassword(stored.Password, "plaintextpass") {
		t.Fatalf("expected final hash to verify the plaintext")
	}
}

func TestAuthenticateDisabledAccountFailsAfterPasswordCheck(t *testing.T) {
	users, a := setupAuthEnv(t)
	hash, _ := HashPassword("topsecret99")
	createUser(t, users, "off@example.com", hash, false)
	if _, err := a.Authenticate(context.Background(), "off@example.com", "topsecret99"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
	if _, err := a.Authenticate(context.Background(), "off@example.com", "wrong"); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("expected bad password to report ErrBadCredentials first, got %v", err)
	}
}

func TestDisabledLegacyAccountStillMigrates(t *testing.T) {
	users, a := setupAuthEnv(t)
	u := createUser(t, users, "off@example.com", "plaintextpass", false)
	if _, err := a.Authenticate(context.Background(), "off@example.com", "plaintextpass"); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("expected ErrAccountDisabled, got %v", err)
	}
	stored, err := users.GetByID(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if ClassifyPassword(stored.Password) != PasswordHashed {
		t.Fatalf("expected migration to run before the activation gate")
	}
}
