package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/commdir/apiserver/internal/auth"
	"github.com/commdir/apiserver/internal/roles"
	"github.com/commdir/apiserver/types"
)

func newAuthFixture(t *testing.T) (*AdminService, *AuthService, *auth.Issuer) {
	t.Helper()
	repo := newSQLiteRepo(t)
	hasher := newTestHasher()
	issuer, err := auth.NewIssuer("test-secret", 0)
	require.NoError(t, err)
	return NewAdminService(repo, hasher, nil, discardLogger()),
		NewAuthService(repo, hasher, issuer, discardLogger()),
		issuer
}

func TestAuthServiceLoginIssuesTokenWithRoles(t *testing.T) {
	ctx := context.Background()
	admins, authSvc, issuer := newAuthFixture(t)

	created, err := admins.Create(ctx, CreateAdminInput{
		Username: "alice", Email: "a@x.com", Password: "secret1", Role: roles.List("admin", "editor"),
	})
	require.NoError(t, err)

	result, err := authSvc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, result.Token)
	assert.Equal(t, types.AdminProfile{
		ID:       created.ID,
		Username: "alice",
		Email:    "a@x.com",
		Roles:    types.RoleList{"admin", "editor"},
	}, result.User)

	claims, err := issuer.Parse(result.Token)
	require.NoError(t, err)
	assert.Equal(t, created.ID, claims.ID)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, types.RoleList{"admin", "editor"}, claims.Role)
}

func TestAuthServiceLoginFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	admins, authSvc, _ := newAuthFixture(t)

	_, err := admins.Create(ctx, CreateAdminInput{Username: "alice", Email: "a@x.com", Password: "secret1"})
	require.NoError(t, err)

	_, wrongPassword := authSvc.Login(ctx, "a@x.com", "wrong")
	_, unknownEmail := authSvc.Login(ctx, "nobody@x.com", "secret1")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
	assert.NotErrorIs(t, wrongPassword, ErrInternal)
}

func TestAuthServiceLoginRequiresCredentials(t *testing.T) {
	_, authSvc, _ := newAuthFixture(t)

	_, err := authSvc.Login(context.Background(), " ", "pw")
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = authSvc.Login(context.Background(), "a@x.com", "")
	assert.ErrorAs(t, err, &verr)
}

func TestAuthServiceTokenReflectsRolesAtIssuance(t *testing.T) {
	ctx := context.Background()
	admins, authSvc, issuer := newAuthFixture(t)

	created, err := admins.Create(ctx, CreateAdminInput{
		Username: "alice", Email: "a@x.com", Password: "secret1", Role: roles.Scalar("editor"),
	})
	require.NoError(t, err)

	first, err := authSvc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)

	_, err = admins.Update(ctx, created.ID, UpdateAdminInput{Role: roles.Scalar("admin")})
	require.NoError(t, err)

	// The earlier token is unaffected by the role change.
	claims, err := issuer.Parse(first.Token)
	require.NoError(t, err)
	assert.Equal(t, types.RoleList{"editor"}, claims.Role)

	second, err := authSvc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	claims, err = issuer.Parse(second.Token)
	require.NoError(t, err)
	assert.Equal(t, types.RoleList{"admin"}, claims.Role)
}

type stubLookup struct {
	admin types.AdminAccount
	err   error
}

func (s stubLookup) GetByEmail(ctx context.Context, email string) (types.AdminAccount, error) {
	return s.admin, s.err
}

type failingIssuer struct{}

func (failingIssuer) Issue(int, string, types.RoleList) (string, error) {
	return "", errors.New("signing failed")
}

func TestAuthServiceInternalFailures(t *testing.T) {
	ctx := context.Background()
	hasher := newTestHasher()
	hash, err := hasher.Hash(ctx, "secret1")
	require.NoError(t, err)

	lookupFails := NewAuthService(stubLookup{err: errors.New("db down")}, hasher, failingIssuer{}, discardLogger())
	_, err = lookupFails.Login(ctx, "a@x.com", "secret1")
	assert.ErrorIs(t, err, ErrInternal)

	malformed := NewAuthService(stubLookup{admin: types.AdminAccount{ID: 1, PasswordHash: "garbage"}}, hasher, failingIssuer{}, discardLogger())
	_, err = malformed.Login(ctx, "a@x.com", "secret1")
	assert.ErrorIs(t, err, ErrInternal)

	signing := NewAuthService(stubLookup{admin: types.AdminAccount{ID: 1, PasswordHash: hash}}, hasher, failingIssuer{}, discardLogger())
	_, err = signing.Login(ctx, "a@x.com", "secret1")
	assert.ErrorIs(t, err, ErrInternal)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthServiceLogout(t *testing.T) {
	_, authSvc, _ := newAuthFixture(t)
	assert.Equal(t, LogoutAck{Message: "logged out"}, authSvc.Logout(context.Background()))
}

// recordingHasher honors ctx cancellation on Hash and records every hash Verify sees.
type recordingHasher struct {
	inner    *auth.BcryptHasher
	mu       sync.Mutex
	verified []string
}

func (h *recordingHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return h.inner.Hash(ctx, password)
}

func (h *recordingHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	h.mu.Lock()
	h.verified = append(h.verified, hash)
	h.mu.Unlock()
	return h.inner.Verify(context.WithoutCancel(ctx), password, hash)
}

// cancellingLookup cancels the request context before reporting an unknown email.
type cancellingLookup struct {
	cancel context.CancelFunc
}

func (l cancellingLookup) GetByEmail(ctx context.Context, email string) (types.AdminAccount, error) {
	if l.cancel != nil {
		l.cancel()
	}
	return types.AdminAccount{}, ErrNotFound
}

func TestAuthServiceUnknownEmailTimingSurvivesCancelledRequest(t *testing.T) {
	hasher := &recordingHasher{inner: newTestHasher()}
	issuer, err := auth.NewIssuer("test-secret", 0)
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := NewAuthService(cancellingLookup{cancel: cancel}, hasher, issuer, discardLogger())

	_, err = first.Login(cancelled, "ghost@x.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Same service, healthy request: the cached decoy must be a real hash.
	first.admins = cancellingLookup{}
	_, err = first.Login(context.Background(), "ghost@x.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.Len(t, hasher.verified, 2)
	for _, h := range hasher.verified {
		assert.NotEmpty(t, h)
		_, costErr := bcrypt.Cost([]byte(h))
		assert.NoError(t, costErr)
	}
	assert.Equal(t, hasher.verified[0], hasher.verified[1])
}
