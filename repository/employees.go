package repository

import (
	"context"
	"time"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
)

// createAttempts bounds retries when a minted id is already taken.
const createAttempts = 3

// CreateEmployee assigns the next employee id and inserts e. A taken email
// is a CONFLICT; a taken id is skipped and the next one tried.
func (r *Repository) CreateEmployee(ctx context.Context, e *models.Employee) error {
	if e.Status == "" {
		e.Status = models.EmployeePending
	}
	for range createAttempts {
		id, err := r.nextID(ctx, SeqEmployee)
		if err != nil {
			return err
		}
		e.ID = id
		err = r.db.WithContext(ctx).Create(e).Error
		if err == nil {
			return nil
		}
		if !IsDuplicate(err) {
			return apperr.Database(err, "Failed to create employee")
		}
		taken, lookupErr := r.emailTaken(ctx, e.Email)
		if lookupErr != nil {
			return lookupErr
		}
		if taken {
			return apperr.Wrap(err, apperr.CodeConflict, "", "Email already registered")
		}
		r.logger.Error("Employee id already in use, minting another", "employee_id", id)
	}
	return apperr.New(apperr.CodeDatabase, "Failed to allocate a free employee id")
}

func (r *Repository) emailTaken(ctx context.Context, email string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Employee{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return false, apperr.Database(err, "Failed to look up employee")
	}
	return n > 0, nil
}

func (r *Repository) GetEmployee(ctx context.Context, id string) (*models.Employee, error) {
	var e models.Employee
	if err := r.db.WithContext(ctx).Where("employee_id = ?", id).First(&e).Error; err != nil {
		return nil, notFound(err, "Employee %s not found", id)
	}
	return &e, nil
}

// ListEmployees returns employees newest first, optionally filtered by status.
func (r *Repository) ListEmployees(ctx context.Context, status string) ([]models.Employee, error) {
	employees := make([]models.Employee, 0)
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&employees).Error; err != nil {
		return nil, apperr.Database(err, "Failed to list employees")
	}
	return employees, nil
}

func (r *Repository) CountEmployeesByStatus(ctx context.Context) ([]StatusCount, error) {
	return r.countBy(ctx, &models.Employee{}, "status", "")
}

func (r *Repository) SetEmployeeStatus(ctx context.Context, id, status string) error {
	res := r.db.WithContext(ctx).Model(&models.Employee{}).Where("employee_id = ?", id).Update("status", status)
	if res.Error != nil {
		return apperr.Database(res.Error, "Failed to update employee")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Employee %s not found", id)
	}
	return nil
}

// DeleteEmployee removes the employee together with their login and grant.
func (r *Repository) DeleteEmployee(ctx context.Context, id string) error {
	return r.WithTx(ctx, func(tx *Repository) error {
		res := tx.db.WithContext(ctx).Where("employee_id = ?", id).Delete(&models.Employee{})
		if res.Error != nil {
			return apperr.Database(res.Error, "Failed to delete employee")
		}
		if res.RowsAffected == 0 {
			return apperr.NotFound("Employee %s not found", id)
		}
		if err := tx.db.WithContext(ctx).Where("username = ?", id).Delete(&models.Login{}).Error; err != nil {
			return apperr.Database(err, "Failed to delete login")
		}
		if err := tx.db.WithContext(ctx).Where("employee_id = ?", id).Delete(&models.AccessGrant{}).Error; err != nil {
			return apperr.Database(err, "Failed to delete access grant")
		}
		return nil
	})
}

func (r *Repository) CreateLogin(ctx context.Context, l *models.Login) error {
	if err := r.db.WithContext(ctx).Create(l).Error; err != nil {
		return dbError(err, "Failed to create login")
	}
	return nil
}

func (r *Repository) GetLogin(ctx context.Context, username string) (*models.Login, error) {
	var l models.Login
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&l).Error; err != nil {
		return nil, notFound(err, "User not found")
	}
	return &l, nil
}

// SetLoggedIn flips the session flag and stamps the matching timestamp.
func (r *Repository) SetLoggedIn(ctx context.Context, username string, loggedIn bool, at time.Time) error {
	updates := map[string]interface{}{"is_logged_in": loggedIn}
	if loggedIn {
		updates["last_login_at"] = at
	} else {
		updates["last_logout_at"] = at
	}
	res := r.db.WithContext(ctx).Model(&models.Login{}).Where("username = ?", username).Updates(updates)
	if res.Error != nil {
		return apperr.Database(res.Error, "Failed to update login status")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("User not found")
	}
	return nil
}

func (r *Repository) SetPasswordHash(ctx context.Context, username, hash string) error {
	res := r.db.WithContext(ctx).Model(&models.Login{}).Where("username = ?", username).Update("password_hash", hash)
	if res.Error != nil {
		return apperr.Database(res.Error, "Failed to update password")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("User not found")
	}
	return nil
}

// ListLoggedIn returns the logins currently flagged as logged in and the
// total number of logins.
func (r *Repository) ListLoggedIn(ctx context.Context) ([]models.Login, int64, error) {
	logins := make([]models.Login, 0)
	if err := r.db.WithContext(ctx).Where("is_logged_in = ?", true).Order("last_login_at DESC").Find(&logins).Error; err != nil {
		return nil, 0, apperr.Database(err, "Failed to list logins")
	}
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Login{}).Count(&total).Error; err != nil {
		return nil, 0, apperr.Database(err, "Failed to count logins")
	}
	return logins, total, nil
}

// HasRole reports whether any employee holds role.
func (r *Repository) HasRole(ctx context.Context, role string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.Employee{}).Where("role = ?", role).Count(&n).Error; err != nil {
		return false, apperr.Database(err, "Failed to count employees")
	}
	return n > 0, nil
}
