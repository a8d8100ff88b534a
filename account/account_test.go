package account_test

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/weldledger/account"
	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/notify"
	"github.com/ahmadzakiakmal/weldledger/repository"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo *repository.Repository
	svc  *account.Service
	mail *notify.Recorder
	now  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "account_test.db"), cmtlog.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	f := &fixture{repo: repo, mail: &notify.Recorder{}, now: time.Now().UTC().Truncate(time.Second)}
	signer := account.NewSigner("access-secret", "refresh-secret")
	f.svc = account.NewService(repo, signer, f.mail, cmtlog.NewNopLogger()).WithClock(func() time.Time { return f.now })
	return f
}

var passwordLine = regexp.MustCompile(`Password: (\S+)`)

// approved registers and approves an employee and returns their id and
// the mailed password.
func (f *fixture) approved(t *testing.T, name, role string) (string, string) {
	t.Helper()
	ctx := context.Background()
	e, err := f.svc.Register(ctx, account.RegisterInput{Name: name, Email: name + "@example.com", Role: role})
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, e.ID)
	require.NoError(t, err)

	last := f.mail.Messages[len(f.mail.Messages)-1]
	m := passwordLine.FindStringSubmatch(last.Body)
	require.Len(t, m, 2)
	return e.ID, m[1]
}

func TestHashAndVerify(t *testing.T) {
	digest, err := account.Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", digest)
	assert.True(t, account.Verify("s3cret", digest))
	assert.False(t, account.Verify("S3cret", digest))

	a, err := account.GeneratePassword()
	require.NoError(t, err)
	b, err := account.GeneratePassword()
	require.NoError(t, err)
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
}

func TestSignerKindsAndExpiry(t *testing.T) {
	s := account.NewSigner("a", "r")
	token, err := s.Sign(account.AccessToken, "EMP001", models.RoleAdmin)
	require.NoError(t, err)

	claims, err := s.Verify(account.AccessToken, token)
	require.NoError(t, err)
	assert.Equal(t, "EMP001", claims.Username)
	assert.Equal(t, models.RoleAdmin, claims.Role)

	_, err = s.Verify(account.RefreshToken, token)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = s.Verify(account.AccessToken, "garbage")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, account.RegisterInput{Name: "x"})
	require.ErrorIs(t, err, apperr.ErrMissingFields)
	e, _ := apperr.As(err)
	assert.Equal(t, "email, role", e.Detail)

	_, err = f.svc.Register(ctx, account.RegisterInput{Name: "x", Email: "x@example.com", Role: "janitor"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	first, err := f.svc.Register(ctx, account.RegisterInput{Name: "x", Email: "X@example.com", Role: models.RoleDesignSupport})
	require.NoError(t, err)
	assert.Equal(t, "EMP001", first.ID)
	assert.Equal(t, models.EmployeePending, first.Status)

	_, err = f.svc.Register(ctx, account.RegisterInput{Name: "y", Email: "x@example.com", Role: models.RoleDesignSupport})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestApproveLoginRefreshLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, password := f.approved(t, "rani", models.RoleQualityControl)
	assert.Equal(t, []string{"Employee Approved"}, f.mail.Subjects())

	_, err := f.svc.Approve(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	_, err = f.svc.Login(ctx, id, "wrong")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = f.svc.Login(ctx, "EMP404", password)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	session, err := f.svc.Login(ctx, id, password)
	require.NoError(t, err)
	assert.Equal(t, models.RoleQualityControl, session.Role)

	who, err := f.svc.Authenticate(session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.Identity{EmployeeID: id, Role: models.RoleQualityControl}, who)
	_, err = f.svc.Authenticate(session.RefreshToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	users, err := f.svc.LoggedIn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, users.Counts.LoggedIn)
	assert.Equal(t, int64(1), users.Counts.Total)

	access, err := f.svc.Refresh(session.RefreshToken)
	require.NoError(t, err)
	_, err = f.svc.Authenticate(access)
	require.NoError(t, err)
	_, err = f.svc.Refresh("")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	f.now = f.now.Add(2 * time.Hour)
	_, err = f.svc.Authenticate(session.AccessToken)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = f.svc.Refresh(session.RefreshToken)
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, id))
	users, err = f.svc.LoggedIn(ctx)
	require.NoError(t, err)
	assert.Empty(t, users.Users)
}

func TestDeniedEmployeeCannotLogIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, password := f.approved(t, "bayu", models.RoleProductionAssembly)

	denied, err := f.svc.Deny(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.EmployeeDenied, denied.Status)
	assert.Equal(t, []string{"Employee Approved", "Employee Denied"}, f.mail.Subjects())

	_, err = f.svc.Login(ctx, id, password)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, password := f.approved(t, "citra", models.RoleDesignSupport)

	err := f.svc.ChangePassword(ctx, id, "nope", "new-password")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	err = f.svc.ChangePassword(ctx, id, password, "")
	assert.ErrorIs(t, err, apperr.ErrMissingFields)

	require.NoError(t, f.svc.ChangePassword(ctx, id, password, "new-password"))
	_, err = f.svc.Login(ctx, id, password)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = f.svc.Login(ctx, id, "new-password")
	require.NoError(t, err)
}

func TestListCountsAndDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	id, _ := f.approved(t, "dewi", models.RoleResourceAnalyst)
	_, err := f.svc.Register(ctx, account.RegisterInput{Name: "eka", Email: "eka@example.com", Role: models.RoleDesignSupport})
	require.NoError(t, err)

	list, err := f.svc.List(ctx, models.EmployeePending)
	require.NoError(t, err)
	assert.Len(t, list.Employees, 1)
	assert.Equal(t, models.EmployeePending, list.CurrentStatus)
	assert.Equal(t, account.Counts{Total: 2, Approved: 1, Pending: 1}, list.Counts)

	list, err = f.svc.List(ctx, "bogus")
	require.NoError(t, err)
	assert.Len(t, list.Employees, 2)
	assert.Equal(t, "all", list.CurrentStatus)

	require.NoError(t, f.svc.Delete(ctx, id))
	_, err = f.repo.GetLogin(ctx, id)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, id), apperr.ErrNotFound)
}

func TestEnsureAdminRunsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	admin, err := f.svc.EnsureAdmin(ctx, "Admin", "admin@example.com", "bootstrap")
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, models.EmployeeApproved, admin.Status)

	again, err := f.svc.EnsureAdmin(ctx, "Admin", "admin2@example.com", "other")
	require.NoError(t, err)
	assert.Nil(t, again)

	session, err := f.svc.Login(ctx, admin.ID, "bootstrap")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, session.Role)
}
