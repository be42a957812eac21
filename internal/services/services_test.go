package services

import (
	"context"
	"testing"
	"time"

	"github.com/miniiam/apiserver/internal/audit"
	"github.com/miniiam/apiserver/internal/auth"
	"github.com/miniiam/apiserver/internal/store/memory"
	"github.com/miniiam/apiserver/types"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fixture struct {
	store    *memory.Store
	identity *IdentityService
	requests *AccessRequestService
	reports  *ReportService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	issuer, err := auth.NewIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	ledger := audit.NewLedger(nil, "iam.audit")

	identity, err := NewIdentityService(st, auth.NewHasher(bcrypt.MinCost), issuer, ledger)
	require.NoError(t, err)

	return &fixture{
		store:    st,
		identity: identity,
		requests: NewAccessRequestService(st, ledger),
		reports:  NewReportService(st, nil),
	}
}

func dept(name string) *string {
	return &name
}

// register creates an account and logs it in, returning the user and its claim.
func (f *fixture) register(t *testing.T, username string, role types.Role, department *string) (types.User, auth.Claim) {
	t.Helper()
	ctx := context.Background()
	user, err := f.identity.Register(ctx, RegisterInput{
		Username:   username,
		Password:   username + "-secret",
		Role:       role,
		Department: department,
	})
	require.NoError(t, err)

	_, claim, err := f.identity.Login(ctx, username, username+"-secret")
	require.NoError(t, err)
	return user, claim
}

func (f *fixture) auditEntries(t *testing.T) []types.AuditLogEntry {
	t.Helper()
	entries, err := f.store.AuditLog().List(context.Background())
	require.NoError(t, err)
	return entries
}
