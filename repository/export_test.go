package repository

import (
	"context"

	"github.com/ahmadzakiakmal/weldledger/repository/models"
)

// InsertJob stores job under the id it already carries.
func (r *Repository) InsertJob(ctx context.Context, job *models.ProductionJob) error {
	return r.insertJob(ctx, job)
}

// InsertEmployee stores e under the id it already carries, leaving the
// employee sequence untouched.
func (r *Repository) InsertEmployee(ctx context.Context, e *models.Employee) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		return dbError(err, "Failed to create employee")
	}
	return nil
}
