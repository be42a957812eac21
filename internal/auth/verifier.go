package auth

import (
	"context"
	"errors"

	"github.com/miniiam/apiserver/internal/store"
	"github.com/miniiam/apiserver/types"
)

// Verifier checks presented credentials against stored hashes.
type Verifier struct {
	users  store.UserRepository
	hasher *Hasher
	// decoy is compared against when the username is unknown so that unknown
	// and known usernames take the same time to reject.
	decoy string
}

func NewVerifier(users store.UserRepository, hasher *Hasher) (*Verifier, error) {
	decoy, err := hasher.Hash("decoy-secret")
	if err != nil {
		return nil, err
	}
	return &Verifier{users: users, hasher: hasher, decoy: decoy}, nil
}

// Authenticate returns the user whose credentials match, or nil for any
// mismatch: unknown username, wrong secret or deprovisioned account.
// A non-nil error only reports a store failure.
func (v *Verifier) Authenticate(ctx context.Context, username, secret string) (*types.User, error) {
	user, err := v.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			v.hasher.Verify(secret, v.decoy)
			return nil, nil
		}
		return nil, err
	}

	if !v.hasher.Verify(secret, user.PasswordHash) {
		return nil, nil
	}
	if !user.Active {
		return nil, nil
	}
	return &user, nil
}
