// Package access decides who may read ledger data. A subsystem wide
// AccessGrant exists per employee; a per record request binds an employee
// to one ledger transaction. In both cases only an active grant whose expiry
// lies in the future authorizes a read, and expiry is evaluated lazily.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/notify"
	"github.com/ahmadzakiakmal/weldledger/repository"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

// RequestTTL is the provisional expiry stamped on a fresh request.
const RequestTTL = 30 * 24 * time.Hour

// NoRequest is the listing annotation for records never requested.
const NoRequest = "Make a request"

// Clock returns the current time.
type Clock func() time.Time

// Service runs both access state machines.
type Service struct {
	repo     *repository.Repository
	notifier notify.Notifier
	logger   cmtlog.Logger
	now      Clock
}

func NewService(repo *repository.Repository, notifier notify.Notifier, logger cmtlog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, logger: logger.With("module", "access"), now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now Clock) *Service {
	s.now = now
	return s
}

func authorizes(status string, expiresAt, now time.Time) bool {
	return status == models.GrantActive && expiresAt.After(now)
}

// EffectiveStatus reports status with lapsed active grants shown as expired.
func EffectiveStatus(status string, expiresAt, now time.Time) string {
	if status == models.GrantActive && !expiresAt.After(now) {
		return models.GrantExpired
	}
	return status
}

// canGrant enforces grantor scope: an admin may act on anyone, a resource
// analyst only on design support staff.
func canGrant(grantor models.Identity, grantee *models.Employee) error {
	switch grantor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleResourceAnalyst:
		if grantee.Role == models.RoleDesignSupport {
			return nil
		}
		return apperr.Forbidden("Resource analysts may only manage design support access")
	default:
		return apperr.Forbidden("You do not have permission to manage access")
	}
}

// RequestAccess files a pending grant for employeeID. It fails with
// DUPLICATE_REQUEST only while an active, unexpired grant exists.
func (s *Service) RequestAccess(ctx context.Context, employeeID string) (*models.AccessGrant, error) {
	emp, err := s.repo.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	existing, err := s.repo.GetGrant(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if existing != nil && authorizes(existing.Status, existing.ExpiresAt, now) {
		return nil, apperr.New(apperr.CodeDuplicateRequest, "Access request already exists").
			WithDetail(fmt.Sprintf("active until %s", existing.ExpiresAt.Format(time.RFC3339)))
	}

	grant := &models.AccessGrant{
		EmployeeID: employeeID,
		AccessType: models.AccessNone,
		GrantedBy:  "pending",
		GrantedAt:  now,
		ExpiresAt:  now.Add(RequestTTL),
		Status:     models.GrantPending,
		Role:       emp.Role,
	}
	if err := s.repo.SaveGrant(ctx, grant); err != nil {
		return nil, err
	}
	s.logger.Info("Access requested", "employee", employeeID)
	return grant, nil
}

// GrantAccess activates read access for days. It upserts, so a grant may be
// created without a preceding request.
func (s *Service) GrantAccess(ctx context.Context, grantor models.Identity, employeeID string, days int) (*models.AccessGrant, error) {
	if days <= 0 {
		return nil, apperr.Validation("Invalid duration. Please provide a positive number of days.")
	}
	emp, err := s.repo.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if err := canGrant(grantor, emp); err != nil {
		return nil, err
	}

	now := s.now()
	grant := &models.AccessGrant{
		EmployeeID: employeeID,
		AccessType: models.AccessRead,
		GrantedBy:  grantor.EmployeeID,
		GrantedAt:  now,
		ExpiresAt:  now.AddDate(0, 0, days),
		Status:     models.GrantActive,
		Role:       emp.Role,
	}
	if err := s.repo.SaveGrant(ctx, grant); err != nil {
		return nil, err
	}
	s.logger.Info("Access granted", "employee", employeeID, "by", grantor.EmployeeID, "days", days)

	body := fmt.Sprintf("Dear %s,\n\nYour access request has been approved with the following details:\nAccess Type: %s\nExpires On: %s\n\nBest regards,\nAdmin Team\n",
		emp.Name, grant.AccessType, grant.ExpiresAt.Format("2006-01-02"))
	notify.Dispatch(ctx, s.notifier, s.logger, emp.Email, "Access Request Approved", body)
	return grant, nil
}

// DenyAccess marks the grant denied. The row is kept; expiry and access type
// are left as they were.
func (s *Service) DenyAccess(ctx context.Context, grantor models.Identity, employeeID string) (*models.AccessGrant, error) {
	emp, err := s.repo.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if err := canGrant(grantor, emp); err != nil {
		return nil, err
	}
	grant, err := s.repo.GetGrant(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, apperr.NotFound("No access request for employee %s", employeeID)
	}
	grant.Status = models.GrantDenied
	if err := s.repo.SaveGrant(ctx, grant); err != nil {
		return nil, err
	}
	s.logger.Info("Access denied", "employee", employeeID, "by", grantor.EmployeeID)

	body := fmt.Sprintf("Dear %s,\n\nYour access request has been denied. More information will be provided by the admin team.\n", emp.Name)
	notify.Dispatch(ctx, s.notifier, s.logger, emp.Email, "Access Request Denied", body)
	return grant, nil
}

// CheckAccess returns the authorizing grant of employeeID or fails with
// NO_ACTIVE_ACCESS.
func (s *Service) CheckAccess(ctx context.Context, employeeID string) (*models.AccessGrant, error) {
	grant, err := s.repo.GetGrant(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if grant == nil || !authorizes(grant.Status, grant.ExpiresAt, s.now()) {
		return nil, apperr.New(apperr.CodeNoActiveAccess, "No active access found. Make a request to read the data")
	}
	return grant, nil
}

// ListRequests lists grants visible to grantor. Analysts only ever see
// design support grants; admins see the role they ask for, or all roles.
func (s *Service) ListRequests(ctx context.Context, grantor models.Identity, role, status string) ([]repository.GrantView, error) {
	switch grantor.Role {
	case models.RoleAdmin:
	case models.RoleResourceAnalyst:
		role = models.RoleDesignSupport
	default:
		return nil, apperr.Forbidden("You do not have permission to list access requests")
	}
	views, err := s.repo.ListGrants(ctx, role, status)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range views {
		views[i].Status = EffectiveStatus(views[i].Status, views[i].ExpiresAt, now)
	}
	return views, nil
}
