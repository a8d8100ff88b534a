package access_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/weldledger/access"
	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/notify"
	"github.com/ahmadzakiakmal/weldledger/repository"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repo    *repository.Repository
	svc     *access.Service
	mail    *notify.Recorder
	now     time.Time
	admin   models.Identity
	analyst models.Identity
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := repository.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "access_test.db"), cmtlog.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	f := &fixture{
		repo:    repo,
		mail:    &notify.Recorder{},
		now:     time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		admin:   models.Identity{EmployeeID: "EMP900", Role: models.RoleAdmin},
		analyst: models.Identity{EmployeeID: "EMP901", Role: models.RoleResourceAnalyst},
	}
	f.svc = access.NewService(repo, f.mail, cmtlog.NewNopLogger()).WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) employee(t *testing.T, name, role string) *models.Employee {
	t.Helper()
	e := &models.Employee{Name: name, Email: name + "@example.com", Role: role}
	require.NoError(t, f.repo.CreateEmployee(context.Background(), e))
	return e
}

func TestRequestIsDuplicateOnlyWhileActive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	emp := f.employee(t, "rina", models.RoleResourceAnalyst)

	g, err := f.svc.RequestAccess(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, models.GrantPending, g.Status)
	assert.Equal(t, models.AccessNone, g.AccessType)
	assert.Equal(t, "pending", g.GrantedBy)
	assert.True(t, g.ExpiresAt.Equal(f.now.Add(access.RequestTTL)))

	// pending does not block a re-request
	_, err = f.svc.RequestAccess(ctx, emp.ID)
	require.NoError(t, err)

	_, err = f.svc.GrantAccess(ctx, f.admin, emp.ID, 5)
	require.NoError(t, err)
	_, err = f.svc.RequestAccess(ctx, emp.ID)
	assert.ErrorIs(t, err, apperr.ErrDuplicateRequest)

	f.now = f.now.AddDate(0, 0, 6)
	_, err = f.svc.RequestAccess(ctx, emp.ID)
	require.NoError(t, err)

	_, err = f.svc.GrantAccess(ctx, f.admin, emp.ID, 5)
	require.NoError(t, err)
	_, err = f.svc.DenyAccess(ctx, f.admin, emp.ID)
	require.NoError(t, err)
	_, err = f.svc.RequestAccess(ctx, emp.ID)
	require.NoError(t, err)
}

func TestRequestUnknownEmployee(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RequestAccess(context.Background(), "EMP404")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGrantWithNonPositiveDurationWritesNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	emp := f.employee(t, "tono", models.RoleResourceAnalyst)

	for _, days := range []int{0, -3} {
		_, err := f.svc.GrantAccess(ctx, f.admin, emp.ID, days)
		assert.ErrorIs(t, err, apperr.ErrValidation)
	}
	g, err := f.repo.GetGrant(ctx, emp.ID)
	require.NoError(t, err)
	assert.Nil(t, g)
	assert.Empty(t, f.mail.Messages)
}

func TestGrantUpsertsAndNotifies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	emp := f.employee(t, "sari", models.RoleResourceAnalyst)

	g, err := f.svc.GrantAccess(ctx, f.admin, emp.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, models.GrantActive, g.Status)
	assert.Equal(t, models.AccessRead, g.AccessType)
	assert.Equal(t, f.admin.EmployeeID, g.GrantedBy)
	assert.True(t, g.ExpiresAt.Equal(f.now.AddDate(0, 0, 10)))

	require.Len(t, f.mail.Messages, 1)
	assert.Equal(t, "sari@example.com", f.mail.Messages[0].To)
	assert.Equal(t, "Access Request Approved", f.mail.Messages[0].Subject)
}

func TestCheckAccessFollowsStatusAndExpiry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	emp := f.employee(t, "wati", models.RoleResourceAnalyst)

	_, err := f.svc.CheckAccess(ctx, emp.ID)
	assert.ErrorIs(t, err, apperr.ErrNoActiveAccess)

	_, err = f.svc.GrantAccess(ctx, f.admin, emp.ID, 1)
	require.NoError(t, err)
	_, err = f.svc.CheckAccess(ctx, emp.ID)
	require.NoError(t, err)

	f.now = f.now.Add(25 * time.Hour)
	_, err = f.svc.CheckAccess(ctx, emp.ID)
	assert.ErrorIs(t, err, apperr.ErrNoActiveAccess)

	f.now = f.now.Add(-25 * time.Hour)
	_, err = f.svc.DenyAccess(ctx, f.admin, emp.ID)
	require.NoError(t, err)
	_, err = f.svc.CheckAccess(ctx, emp.ID)
	assert.ErrorIs(t, err, apperr.ErrNoActiveAccess)
	assert.Equal(t, 403, apperr.HTTPStatus(apperr.CodeOf(err)))
}

func TestDenyRetainsGrant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	emp := f.employee(t, "yoga", models.RoleDesignSupport)

	granted, err := f.svc.GrantAccess(ctx, f.analyst, emp.ID, 3)
	require.NoError(t, err)
	_, err = f.svc.DenyAccess(ctx, f.analyst, emp.ID)
	require.NoError(t, err)

	stored, err := f.repo.GetGrant(ctx, emp.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.GrantDenied, stored.Status)
	assert.Equal(t, models.AccessRead, stored.AccessType)
	assert.True(t, stored.ExpiresAt.Equal(granted.ExpiresAt))
	assert.Equal(t, []string{"Access Request Approved", "Access Request Denied"}, f.mail.Subjects())

	_, err = f.svc.DenyAccess(ctx, f.admin, f.employee(t, "nobody", models.RoleDesignSupport).ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGrantorScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	designer := f.employee(t, "dina", models.RoleDesignSupport)
	assembler := f.employee(t, "eko", models.RoleProductionAssembly)

	_, err := f.svc.GrantAccess(ctx, f.analyst, designer.ID, 7)
	require.NoError(t, err)

	_, err = f.svc.GrantAccess(ctx, f.analyst, assembler.ID, 7)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.GrantAccess(ctx, models.Identity{EmployeeID: "EMP902", Role: models.RoleQualityControl}, designer.ID, 7)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = f.svc.RequestAccess(ctx, assembler.ID)
	require.NoError(t, err)

	views, err := f.svc.ListRequests(ctx, f.analyst, "", "")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, designer.ID, views[0].EmployeeID)

	views, err = f.svc.ListRequests(ctx, f.admin, "", models.GrantPending)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, assembler.ID, views[0].EmployeeID)
	assert.Equal(t, "eko", views[0].Name)

	f.now = f.now.AddDate(0, 0, 8)
	views, err = f.svc.ListRequests(ctx, f.admin, models.RoleDesignSupport, "")
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, models.GrantExpired, views[0].Status)
}
