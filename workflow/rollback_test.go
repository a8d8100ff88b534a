package workflow_test

import (
	"context"
	"testing"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
	"github.com/ahmadzakiakmal/weldledger/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// blockAssessments installs a trigger that aborts every op statement on the
// quality_assessments table.
func blockAssessments(t *testing.T, path, op string) {
	t.Helper()
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: path}, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	defer sqlDB.Close()

	require.NoError(t, db.Exec(
		"CREATE TRIGGER block_qa_" + op + " BEFORE " + op + " ON quality_assessments BEGIN SELECT RAISE(ABORT, 'assessments locked'); END",
	).Error)
}

func TestSendToQualityCheckRollsBackOnAssessmentFailure(t *testing.T) {
	ctx := context.Background()
	svc, repo, path := newServiceAt(t)
	job := started(t, svc, repo)
	blockAssessments(t, path, "INSERT")

	_, _, err := svc.SendToQualityCheck(ctx, assembler, job.ID, fullReport())
	require.ErrorIs(t, err, apperr.ErrPartialFailure)
	assert.Contains(t, err.Error(), "production update was rolled back")

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProductionInProgress, stored.Status)
	assert.Nil(t, stored.SentForQualityCheckAt)

	qas, err := repo.ListAssessments(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, qas)
}

func TestApprovalRollsBackWhenAssessmentCannotBeRemoved(t *testing.T) {
	ctx := context.Background()
	svc, repo, path := newServiceAt(t)
	job := started(t, svc, repo)
	_, _, err := svc.SendToQualityCheck(ctx, assembler, job.ID, fullReport())
	require.NoError(t, err)
	blockAssessments(t, path, "DELETE")

	_, err = svc.SubmitAssessment(ctx, reviewer, job.ID, approved())
	require.ErrorIs(t, err, apperr.ErrPartialFailure)

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProductionQualityCheck, stored.Status)
	assert.Nil(t, stored.FinishedAt)

	qa, err := repo.GetAssessment(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, qa)
	assert.Equal(t, models.QualityPending, qa.QualityStatus)
}

func TestReworkRollsBackWhenAssessmentCannotBeUpdated(t *testing.T) {
	ctx := context.Background()
	svc, repo, path := newServiceAt(t)
	job := started(t, svc, repo)
	_, _, err := svc.SendToQualityCheck(ctx, assembler, job.ID, fullReport())
	require.NoError(t, err)
	blockAssessments(t, path, "UPDATE")

	_, err = svc.SubmitAssessment(ctx, reviewer, job.ID, workflow.AssessmentInput{
		QualityStatus:   models.QualityRework,
		RejectionReason: "Porous seam",
	})
	require.ErrorIs(t, err, apperr.ErrPartialFailure)

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProductionQualityCheck, stored.Status)
	assert.Empty(t, stored.ReworkIssue)
}
