package repository

import (
	"context"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
)

// GrantView is an access grant joined with the employee it belongs to.
type GrantView struct {
	models.AccessGrant
	Name  string `json:"name"`
	Email string `json:"email"`
}

// GetGrant returns the grant of employeeID, or nil when none exists.
func (r *Repository) GetGrant(ctx context.Context, employeeID string) (*models.AccessGrant, error) {
	var grants []models.AccessGrant
	if err := r.db.WithContext(ctx).Where("employee_id = ?", employeeID).Limit(1).Find(&grants).Error; err != nil {
		return nil, apperr.Database(err, "Failed to load access grant")
	}
	if len(grants) == 0 {
		return nil, nil
	}
	return &grants[0], nil
}

// SaveGrant upserts g keyed by employee id.
func (r *Repository) SaveGrant(ctx context.Context, g *models.AccessGrant) error {
	if err := r.db.WithContext(ctx).Save(g).Error; err != nil {
		return dbError(err, "Failed to save access grant")
	}
	return nil
}

// ListGrants lists grants filtered by the grantee's role and the grant
// status; empty filters match everything.
func (r *Repository) ListGrants(ctx context.Context, role, status string) ([]GrantView, error) {
	views := make([]GrantView, 0)
	q := r.db.WithContext(ctx).Table("access_grants").
		Select("access_grants.*, employees.name AS name, employees.email AS email").
		Joins("LEFT JOIN employees ON employees.employee_id = access_grants.employee_id").
		Order("access_grants.granted_at DESC")
	if role != "" {
		q = q.Where("access_grants.role = ?", role)
	}
	if status != "" {
		q = q.Where("access_grants.status = ?", status)
	}
	if err := q.Scan(&views).Error; err != nil {
		return nil, apperr.Database(err, "Failed to list access grants")
	}
	return views, nil
}

// GetRecordRequest returns the per-record request of (employeeID, txID), or
// nil when none exists.
func (r *Repository) GetRecordRequest(ctx context.Context, employeeID, txID string) (*models.ProductionAccessRequest, error) {
	var reqs []models.ProductionAccessRequest
	err := r.db.WithContext(ctx).
		Where("employee_id = ? AND transaction_id = ?", employeeID, txID).
		Limit(1).Find(&reqs).Error
	if err != nil {
		return nil, apperr.Database(err, "Failed to load access request")
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	return &reqs[0], nil
}

// FindRecordRequestByProduct returns the newest request employeeID made for
// productID.
func (r *Repository) FindRecordRequestByProduct(ctx context.Context, employeeID, productID string) (*models.ProductionAccessRequest, error) {
	var req models.ProductionAccessRequest
	err := r.db.WithContext(ctx).
		Where("employee_id = ? AND product_id = ?", employeeID, productID).
		Order("id DESC").First(&req).Error
	if err != nil {
		return nil, notFound(err, "No access request for product %s", productID)
	}
	return &req, nil
}

// SaveRecordRequest inserts or updates req.
func (r *Repository) SaveRecordRequest(ctx context.Context, req *models.ProductionAccessRequest) error {
	if err := r.db.WithContext(ctx).Save(req).Error; err != nil {
		return dbError(err, "Failed to save access request")
	}
	return nil
}

// ListRecordRequests lists per-record requests. An empty employeeID or
// status matches everything.
func (r *Repository) ListRecordRequests(ctx context.Context, employeeID, status string) ([]models.ProductionAccessRequest, error) {
	reqs := make([]models.ProductionAccessRequest, 0)
	q := r.db.WithContext(ctx).Order("id DESC")
	if employeeID != "" {
		q = q.Where("employee_id = ?", employeeID)
	}
	if status != "" {
		q = q.Where("request_status = ?", status)
	}
	if err := q.Find(&reqs).Error; err != nil {
		return nil, apperr.Database(err, "Failed to list access requests")
	}
	return reqs, nil
}
