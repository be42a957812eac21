package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/miniiam/apiserver/internal/audit"
	"github.com/miniiam/apiserver/internal/auth"
	"github.com/miniiam/apiserver/internal/authz"
	"github.com/miniiam/apiserver/internal/store"
	"github.com/miniiam/apiserver/internal/telemetry"
	"github.com/miniiam/apiserver/types"
)

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Username   string
	Password   string
	Role       types.Role
	Department *string
}

// IdentityService encapsulates account lifecycle use-cases.
type IdentityService struct {
	store    store.Store
	hasher   *auth.Hasher
	verifier *auth.Verifier
	issuer   *auth.Issuer
	ledger   *audit.Ledger
	now      func() time.Time
}

func NewIdentityService(st store.Store, hasher *auth.Hasher, issuer *auth.Issuer, ledger *audit.Ledger) (*IdentityService, error) {
	verifier, err := auth.NewVerifier(st.Users(), hasher)
	if err != nil {
		return nil, fmt.Errorf("init verifier: %w", err)
	}
	return &IdentityService{
		store:    st,
		hasher:   hasher,
		verifier: verifier,
		issuer:   issuer,
		ledger:   ledger,
		now:      time.Now,
	}, nil
}

// Register creates an active account. The raw password is hashed before it
// reaches the store and never appears in errors or logs.
func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (types.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return types.User{}, invalid(ErrInvalidInput, "username is required")
	}
	if in.Password == "" {
		return types.User{}, invalid(ErrInvalidInput, "password is required")
	}
	if !in.Role.Valid() {
		return types.User{}, invalid(ErrInvalidRole, fmt.Sprintf("%q is not one of Admin, Manager, Employee", in.Role))
	}

	var department *string
	if in.Department != nil {
		if trimmed := strings.TrimSpace(*in.Department); trimmed != "" {
			department = &trimmed
		}
	}

	hashed, err := s.hasher.Hash(in.Password)
	if err != nil {
		if errors.Is(err, auth.ErrSecretTooLong) {
			return types.User{}, invalid(ErrInvalidInput, "password must be at most 72 bytes")
		}
		return types.User{}, err
	}

	user, err := s.store.Users().Create(ctx, types.User{
		Username:     username,
		PasswordHash: hashed,
		Role:         in.Role,
		Department:   department,
		Active:       true,
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return types.User{}, ErrDuplicateUsername
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}

	slog.Info("registered user", "user_id", user.ID, "username", user.Username, "role", user.Role)
	return user, nil
}

// Login verifies credentials, records the login time and issues a signed claim.
// Every credential mismatch yields ErrInvalidCredentials.
func (s *IdentityService) Login(ctx context.Context, username, password string) (string, auth.Claim, error) {
	user, err := s.verifier.Authenticate(ctx, strings.TrimSpace(username), password)
	if err != nil {
		return "", auth.Claim{}, fmt.Errorf("authenticate: %w", err)
	}
	if user == nil {
		telemetry.LoginAttemptsTotal.WithLabelValues("failure").Inc()
		return "", auth.Claim{}, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.store.Users().RecordLogin(ctx, user.ID, now); err != nil {
		return "", auth.Claim{}, fmt.Errorf("record login: %w", err)
	}
	user.LastLogin = &now

	token, claim, err := s.issuer.Issue(*user)
	if err != nil {
		return "", auth.Claim{}, fmt.Errorf("issue token: %w", err)
	}
	telemetry.LoginAttemptsTotal.WithLabelValues("success").Inc()
	return token, claim, nil
}

// Deprovision deactivates targetID. Only an Admin may do so, regardless of
// department. The deactivation and its audit entry commit together.
func (s *IdentityService) Deprovision(ctx context.Context, claim auth.Claim, targetID int, origin string) (types.User, error) {
	var target types.User
	_, err := s.ledger.Within(ctx, s.store, func(repos store.Repositories) (audit.Entry, error) {
		actor, err := liveClaim(ctx, repos.Users(), claim)
		if err != nil {
			return audit.Entry{}, err
		}
		if err := authz.Authorize(actor, authz.ActionDeprovision, nil); err != nil {
			return audit.Entry{}, forbidden(err)
		}

		target, err = repos.Users().GetByID(ctx, targetID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return audit.Entry{}, ErrUserNotFound
			}
			return audit.Entry{}, fmt.Errorf("load user %d: %w", targetID, err)
		}

		if err := repos.Users().Deactivate(ctx, targetID); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				return audit.Entry{}, ErrUserNotFound
			case errors.Is(err, store.ErrConflict):
				return audit.Entry{}, ErrAlreadyInactive
			default:
				return audit.Entry{}, fmt.Errorf("deactivate user %d: %w", targetID, err)
			}
		}
		target.Active = false

		return audit.Entry{
			ActorID: claim.UserID,
			Action:  audit.ActionDeprovision,
			Details: fmt.Sprintf("Deprovisioned %s (id %d)", target.Username, target.ID),
			Origin:  origin,
		}, nil
	})
	if err != nil {
		return types.User{}, ledgerError(err)
	}

	slog.Info("deprovisioned user", "actor", claim.String(), "target_id", target.ID, "target", target.Username)
	return target, nil
}

// Me returns the live record behind claim.
func (s *IdentityService) Me(ctx context.Context, claim auth.Claim) (types.User, error) {
	user, err := s.store.Users().GetByID(ctx, claim.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, ErrUserNotFound
		}
		return types.User{}, fmt.Errorf("load user %d: %w", claim.UserID, err)
	}
	return user, nil
}
