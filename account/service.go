// Package account manages employees, their logins and session tokens.
package account

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/notify"
	"github.com/ahmadzakiakmal/weldledger/repository"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

type Service struct {
	repo     *repository.Repository
	signer   *Signer
	notifier notify.Notifier
	logger   cmtlog.Logger
	now      func() time.Time
}

func NewService(repo *repository.Repository, signer *Signer, notifier notify.Notifier, logger cmtlog.Logger) *Service {
	return &Service{
		repo:     repo,
		signer:   signer,
		notifier: notifier,
		logger:   logger.With("module", "account"),
		now:      time.Now,
	}
}

// WithClock replaces the time source of the service and its signer.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.signer.now = now
	return s
}

type RegisterInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Register files a pending employee. Credentials are only created on
// approval.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*models.Employee, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	var missing []string
	if in.Name == "" {
		missing = append(missing, "name")
	}
	if in.Email == "" {
		missing = append(missing, "email")
	}
	if in.Role == "" {
		missing = append(missing, "role")
	}
	if len(missing) > 0 {
		return nil, apperr.MissingFields(missing...)
	}
	if !models.ValidRole(in.Role) {
		return nil, apperr.Validation("role %q is not recognised", in.Role)
	}
	if !strings.Contains(in.Email, "@") {
		return nil, apperr.Validation("email is not valid")
	}

	e := &models.Employee{Name: in.Name, Email: in.Email, Role: in.Role, Status: models.EmployeePending}
	if err := s.repo.CreateEmployee(ctx, e); err != nil {
		return nil, err
	}
	s.logger.Info("Employee registered", "employee", e.ID, "role", e.Role)
	return e, nil
}

// Approve marks a pending employee approved, creates a login with a
// generated password and mails the credentials.
func (s *Service) Approve(ctx context.Context, employeeID string) (*models.Employee, error) {
	e, err := s.repo.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if e.Status == models.EmployeeApproved {
		return nil, apperr.Newf(apperr.CodeConflict, "Employee %s is already approved", employeeID)
	}
	password, err := GeneratePassword()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "", "Failed to generate password")
	}
	hash, err := Hash(password)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "Failed to hash password")
	}

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.SetEmployeeStatus(ctx, e.ID, models.EmployeeApproved); err != nil {
			return err
		}
		return tx.CreateLogin(ctx, &models.Login{Username: e.ID, PasswordHash: hash})
	})
	if err != nil {
		return nil, err
	}
	e.Status = models.EmployeeApproved

	body := fmt.Sprintf("Dear %s,\n\nYour account has been approved. Below are your login credentials:\n\nUsername: %s\nPassword: %s\n\nPlease change your password after your first login.\n", e.Name, e.ID, password)
	notify.Dispatch(ctx, s.notifier, s.logger, e.Email, "Employee Approved", body)
	s.logger.Info("Employee approved", "employee", e.ID)
	return e, nil
}

func (s *Service) Deny(ctx context.Context, employeeID string) (*models.Employee, error) {
	e, err := s.repo.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetEmployeeStatus(ctx, e.ID, models.EmployeeDenied); err != nil {
		return nil, err
	}
	e.Status = models.EmployeeDenied

	body := fmt.Sprintf("Dear %s,\n\nWe regret to inform you that your account has been denied.\nPlease contact the administrator for more information.\n", e.Name)
	notify.Dispatch(ctx, s.notifier, s.logger, e.Email, "Employee Denied", body)
	s.logger.Info("Employee denied", "employee", e.ID)
	return e, nil
}

// Counts are totals over every employee, independent of the filter.
type Counts struct {
	Total    int64 `json:"total"`
	Approved int64 `json:"approved"`
	Pending  int64 `json:"pending"`
	Denied   int64 `json:"denied"`
}

type EmployeeList struct {
	Employees     []models.Employee `json:"employees"`
	Counts        Counts            `json:"counts"`
	CurrentStatus string            `json:"currentStatus"`
}

// List returns employees in status, or all of them when status is empty or
// not a known status.
func (s *Service) List(ctx context.Context, status string) (*EmployeeList, error) {
	switch status {
	case models.EmployeePending, models.EmployeeApproved, models.EmployeeDenied:
	default:
		status = ""
	}
	employees, err := s.repo.ListEmployees(ctx, status)
	if err != nil {
		return nil, err
	}
	counts, err := s.repo.CountEmployeesByStatus(ctx)
	if err != nil {
		return nil, err
	}

	out := &EmployeeList{Employees: employees, CurrentStatus: status}
	if status == "" {
		out.CurrentStatus = "all"
	}
	for _, c := range counts {
		out.Counts.Total += c.Count
		switch c.Status {
		case models.EmployeeApproved:
			out.Counts.Approved = c.Count
		case models.EmployeePending:
			out.Counts.Pending = c.Count
		case models.EmployeeDenied:
			out.Counts.Denied = c.Count
		}
	}
	return out, nil
}

// Delete removes an employee together with its login and grant.
func (s *Service) Delete(ctx context.Context, employeeID string) error {
	if err := s.repo.DeleteEmployee(ctx, employeeID); err != nil {
		return err
	}
	s.logger.Info("Employee deleted", "employee", employeeID)
	return nil
}

type LoggedInUsers struct {
	Users  []models.Login `json:"users"`
	Counts struct {
		Total    int64 `json:"total"`
		LoggedIn int   `json:"loggedIn"`
	} `json:"counts"`
}

func (s *Service) LoggedIn(ctx context.Context) (*LoggedInUsers, error) {
	logins, total, err := s.repo.ListLoggedIn(ctx)
	if err != nil {
		return nil, err
	}
	out := &LoggedInUsers{Users: logins}
	out.Counts.Total = total
	out.Counts.LoggedIn = len(logins)
	return out, nil
}

// Session is returned by a successful login.
type Session struct {
	AccessToken  string `json:"accesstoken"`
	RefreshToken string `json:"refreshToken"`
	EmployeeID   string `json:"employeeId"`
	Role         string `json:"role"`
}

// Login checks the password of an approved employee and issues both
// tokens. The username is the employee id.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	if username == "" || password == "" {
		var missing []string
		if username == "" {
			missing = append(missing, "username")
		}
		if password == "" {
			missing = append(missing, "password")
		}
		return nil, apperr.MissingFields(missing...)
	}
	login, err := s.repo.GetLogin(ctx, username)
	if err != nil {
		return nil, err
	}
	if !Verify(password, login.PasswordHash) {
		return nil, apperr.New(apperr.CodeUnauthorized, "Invalid password")
	}
	e, err := s.repo.GetEmployee(ctx, username)
	if err != nil {
		return nil, err
	}
	if e.Status != models.EmployeeApproved {
		return nil, apperr.Forbidden("Employee %s is not approved", e.ID)
	}

	access, err := s.signer.Sign(AccessToken, e.ID, e.Role)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "", "Failed to sign token")
	}
	refresh, err := s.signer.Sign(RefreshToken, e.ID, e.Role)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "", "Failed to sign token")
	}
	if err := s.repo.SetLoggedIn(ctx, e.ID, true, s.now()); err != nil {
		return nil, err
	}
	s.logger.Info("Login", "employee", e.ID)
	return &Session{AccessToken: access, RefreshToken: refresh, EmployeeID: e.ID, Role: e.Role}, nil
}

// Refresh issues a new access token from a refresh token.
func (s *Service) Refresh(refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apperr.New(apperr.CodeUnauthorized, "No refresh token found")
	}
	claims, err := s.signer.Verify(RefreshToken, refreshToken)
	if err != nil {
		return "", err
	}
	token, err := s.signer.Sign(AccessToken, claims.Username, claims.Role)
	if err != nil {
		return "", apperr.Wrap(err, apperr.CodeInternal, "", "Failed to sign token")
	}
	return token, nil
}

// Authenticate resolves an access token to the caller's identity.
func (s *Service) Authenticate(accessToken string) (models.Identity, error) {
	claims, err := s.signer.Verify(AccessToken, accessToken)
	if err != nil {
		return models.Identity{}, err
	}
	return models.Identity{EmployeeID: claims.Username, Role: claims.Role}, nil
}

func (s *Service) Logout(ctx context.Context, username string) error {
	if err := s.repo.SetLoggedIn(ctx, username, false, s.now()); err != nil {
		return err
	}
	s.logger.Info("Logout", "employee", username)
	return nil
}

// ChangePassword replaces the password after checking the old one.
func (s *Service) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	var missing []string
	if oldPassword == "" {
		missing = append(missing, "oldPassword")
	}
	if newPassword == "" {
		missing = append(missing, "newPassword")
	}
	if len(missing) > 0 {
		return apperr.MissingFields(missing...)
	}
	login, err := s.repo.GetLogin(ctx, username)
	if err != nil {
		return err
	}
	if !Verify(oldPassword, login.PasswordHash) {
		return apperr.New(apperr.CodeUnauthorized, "Old password is incorrect")
	}
	hash, err := Hash(newPassword)
	if err != nil {
		return apperr.New(apperr.CodeInternal, "Failed to hash password")
	}
	return s.repo.SetPasswordHash(ctx, username, hash)
}

// EnsureAdmin creates an approved admin with password when no admin exists
// yet. It is a no-op otherwise.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) (*models.Employee, error) {
	exists, err := s.repo.HasRole(ctx, models.RoleAdmin)
	if err != nil || exists {
		return nil, err
	}
	if password == "" {
		return nil, apperr.MissingFields("password")
	}
	hash, err := Hash(password)
	if err != nil {
		return nil, apperr.New(apperr.CodeInternal, "Failed to hash password")
	}

	e := &models.Employee{Name: name, Email: strings.ToLower(email), Role: models.RoleAdmin, Status: models.EmployeeApproved}
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		if err := tx.CreateEmployee(ctx, e); err != nil {
			return err
		}
		return tx.CreateLogin(ctx, &models.Login{Username: e.ID, PasswordHash: hash})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Bootstrap admin created", "employee", e.ID)
	return e, nil
}
