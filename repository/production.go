package repository

import (
	"context"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
)

// CreateJob assigns the next production id and inserts job.
func (r *Repository) CreateJob(ctx context.Context, job *models.ProductionJob) error {
	id, err := r.nextID(ctx, SeqProduction)
	if err != nil {
		return err
	}
	job.ID = id
	return r.insertJob(ctx, job)
}

// insertJob stores job with the id it already carries. A duplicate id is a
// CONFLICT.
func (r *Repository) insertJob(ctx context.Context, job *models.ProductionJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return dbError(err, "Failed to create production")
	}
	return nil
}

func (r *Repository) GetJob(ctx context.Context, productionID string) (*models.ProductionJob, error) {
	var job models.ProductionJob
	if err := r.db.WithContext(ctx).Where("production_id = ?", productionID).First(&job).Error; err != nil {
		return nil, notFound(err, "Production %s not found", productionID)
	}
	return &job, nil
}

// SaveJob writes every column of job.
func (r *Repository) SaveJob(ctx context.Context, job *models.ProductionJob) error {
	if err := r.db.WithContext(ctx).Save(job).Error; err != nil {
		return apperr.Database(err, "Failed to update production")
	}
	return nil
}

// ListJobs lists jobs of one employee (or all when employeeID is empty) in a
// given status (or any when status is empty).
func (r *Repository) ListJobs(ctx context.Context, employeeID, status string) ([]models.ProductionJob, error) {
	jobs := make([]models.ProductionJob, 0)
	q := r.db.WithContext(ctx).Order("created_at ASC").Order("production_id ASC")
	if employeeID != "" {
		q = q.Where("production_employee_id = ?", employeeID)
	}
	if status != "" {
		q = q.Where("production_status = ?", status)
	}
	if err := q.Find(&jobs).Error; err != nil {
		return nil, apperr.Database(err, "Failed to list productions")
	}
	return jobs, nil
}

func (r *Repository) CountJobsByStatus(ctx context.Context) ([]StatusCount, error) {
	return r.countBy(ctx, &models.ProductionJob{}, "production_status", "")
}

// GetAssessment returns the assessment of productionID, or nil when none
// exists.
func (r *Repository) GetAssessment(ctx context.Context, productionID string) (*models.QualityAssessment, error) {
	var qas []models.QualityAssessment
	if err := r.db.WithContext(ctx).Where("production_id = ?", productionID).Limit(1).Find(&qas).Error; err != nil {
		return nil, apperr.Database(err, "Failed to load quality assessment")
	}
	if len(qas) == 0 {
		return nil, nil
	}
	return &qas[0], nil
}

// SaveAssessment inserts or updates qa.
func (r *Repository) SaveAssessment(ctx context.Context, qa *models.QualityAssessment) error {
	if err := r.db.WithContext(ctx).Save(qa).Error; err != nil {
		return dbError(err, "Failed to save quality assessment")
	}
	return nil
}

func (r *Repository) DeleteAssessment(ctx context.Context, productionID string) error {
	if err := r.db.WithContext(ctx).Where("production_id = ?", productionID).Delete(&models.QualityAssessment{}).Error; err != nil {
		return apperr.Database(err, "Failed to delete quality assessment")
	}
	return nil
}

// ListAssessments lists assessments, optionally filtered by status.
func (r *Repository) ListAssessments(ctx context.Context, status string) ([]models.QualityAssessment, error) {
	qas := make([]models.QualityAssessment, 0)
	q := r.db.WithContext(ctx).Order("id ASC")
	if status != "" {
		q = q.Where("quality_status = ?", status)
	}
	if err := q.Find(&qas).Error; err != nil {
		return nil, apperr.Database(err, "Failed to list quality assessments")
	}
	return qas, nil
}

func (r *Repository) CountAssessmentsByStatus(ctx context.Context) ([]StatusCount, error) {
	return r.countBy(ctx, &models.QualityAssessment{}, "quality_status", "")
}

// RejectionView is a rejection joined with the employee who filed it.
type RejectionView struct {
	models.RejectedProduct
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CreateRejection assigns the next rejection id and inserts p.
func (r *Repository) CreateRejection(ctx context.Context, p *models.RejectedProduct) error {
	id, err := r.nextID(ctx, SeqRejection)
	if err != nil {
		return err
	}
	p.ID = id
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return dbError(err, "Failed to record rejection")
	}
	return nil
}

func (r *Repository) ListRejections(ctx context.Context) ([]RejectionView, error) {
	views := make([]RejectionView, 0)
	err := r.db.WithContext(ctx).Table("rejected_products").
		Select("rejected_products.*, employees.name AS name, employees.email AS email").
		Joins("LEFT JOIN employees ON employees.employee_id = rejected_products.rejected_by").
		Order("rejected_products.rejected_at DESC").
		Scan(&views).Error
	if err != nil {
		return nil, apperr.Database(err, "Failed to list rejected products")
	}
	return views, nil
}

func (r *Repository) CountRejections(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&models.RejectedProduct{}).Count(&n).Error; err != nil {
		return 0, apperr.Database(err, "Failed to count rejected products")
	}
	return n, nil
}

// CreateCriteria stores the thresholds of one analyst. Each analyst may own
// a single row.
func (r *Repository) CreateCriteria(ctx context.Context, c *models.QualityCriteria) error {
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		if IsDuplicate(err) {
			return apperr.Wrap(err, apperr.CodeConflict, "", "Quality criteria already set")
		}
		return apperr.Database(err, "Failed to save quality criteria")
	}
	return nil
}

func (r *Repository) GetCriteria(ctx context.Context, employeeID string) (*models.QualityCriteria, error) {
	var c models.QualityCriteria
	if err := r.db.WithContext(ctx).Where("employee_id = ?", employeeID).First(&c).Error; err != nil {
		return nil, notFound(err, "Quality criteria not set")
	}
	return &c, nil
}

func (r *Repository) UpdateCriteria(ctx context.Context, c *models.QualityCriteria) error {
	res := r.db.WithContext(ctx).Model(&models.QualityCriteria{}).Where("employee_id = ?", c.EmployeeID).
		Select("*").Omit("employee_id").Updates(c)
	if res.Error != nil {
		return apperr.Database(res.Error, "Failed to update quality criteria")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Quality criteria not set")
	}
	return nil
}

func (r *Repository) DeleteCriteria(ctx context.Context, employeeID string) error {
	res := r.db.WithContext(ctx).Where("employee_id = ?", employeeID).Delete(&models.QualityCriteria{})
	if res.Error != nil {
		return apperr.Database(res.Error, "Failed to delete quality criteria")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("Quality criteria not set")
	}
	return nil
}
