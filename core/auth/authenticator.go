package auth

import (
	"context"
	"errors"
	"fmt"

	"cyberwatch-soc/core/store"
	"cyberwatch-soc/core/utils"
)

// Authenticator verifies credentials and migrates legacy plaintext rows to
// bcrypt on first successful login.
type Authenticator struct {
	users  store.UsersStore
	logger *utils.Logger
}

func NewAuthenticator(users store.UsersStore, logger *utils.Logger) *Authenticator {
	return &Authenticator{users: users, logger: logger}
}

// Authenticate resolves the account by exact email match and verifies the
// candidate password. The activation gate runs last: a disabled account with
// a correct password still fails.
func (a *Authenticator) Authenticate(ctx context.Context, email, candidate string) (*store.User, error) {
	user, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownAccount
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	switch ClassifyPassword(user.Password) {
	case PasswordHashed:
		if !VerifyPassword(user.Password, candidate) {
			return nil, ErrBadCredentials
		}
	case PasswordPlaintext:
		if !ComparePlaintext(user.Password, candidate) {
			return nil, ErrBadCredentials
		}
		if err := a.migrate(ctx, user, candidate); err != nil {
			return nil, err
		}
	}

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}
	return user, nil
}

// migrate rewrites the plaintext row with a bcrypt hash. The write is a
// compare-and-swap on the stored value, so two concurrent legacy logins
// converge on a single hash: the loser re-verifies against the winner's.
func (a *Authenticator) migrate(ctx context.Context, user *store.User, candidate string) error {
	hash, err := HashPassword(candidate)
	if err != nil {
		return err
	}
	swapped, err := a.users.UpdatePasswordIfEquals(ctx, user.ID, user.Password, hash)
	if err != nil {
		return fmt.Errorf("persist migrated password: %w", err)
	}
	if swapped {
		user.Password = hash
		a.logger.Printf("migrated legacy password for account %d", user.ID)
		return nil
	}
	current, err := a.users.GetByID(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("reload account after migration race: %w", err)
	}
	if ClassifyPassword(current.Password) != PasswordHashed || !VerifyPassword(current.Password, candidate) {
		return ErrBadCredentials
	}
	user.Password = current.Password
	return nil
}
