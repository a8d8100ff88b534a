package workflow_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/repository"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
	"github.com/ahmadzakiakmal/weldledger/workflow"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	assembler = "EMP010"
	reviewer  = "EMP020"
)

var clock = time.Date(2025, 4, 2, 8, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*workflow.Service, *repository.Repository) {
	t.Helper()
	svc, repo, _ := newServiceAt(t)
	return svc, repo
}

// newServiceAt also returns the database file so tests can open a side
// connection to it.
func newServiceAt(t *testing.T) (*workflow.Service, *repository.Repository, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "workflow_test.db")
	repo, err := repository.OpenSQLite(context.Background(), path, cmtlog.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	svc := workflow.NewService(repo, cmtlog.NewNopLogger()).WithClock(func() time.Time { return clock })
	return svc, repo, path
}

// started opens a job for P-100 and files the record request the quality
// hand-off reads its product reference from.
func started(t *testing.T, svc *workflow.Service, repo *repository.Repository) *models.ProductionJob {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, repo.SaveRecordRequest(ctx, &models.ProductionAccessRequest{
		EmployeeID:    assembler,
		TransactionID: "tx-100",
		ProductID:     "P-100",
		ProductName:   "Frame",
		RequestStatus: models.GrantActive,
		GrantedBy:     "EMP001",
		ExpiresAt:     clock.AddDate(0, 0, 5),
	}))
	job, err := svc.StartProduction(ctx, assembler, workflow.StartInput{
		ProductID:        "P-100",
		ProductionName:   "Frame run",
		FeasibilityScore: f64(523),
	})
	require.NoError(t, err)
	return job
}

func fullReport() workflow.ReportInput {
	return workflow.ReportInput{
		HeatInput:       f64(1.2),
		WeldingStrength: f64(310),
		WeldingQuality:  "Good",
		Recommendations: "Keep current parameters",
	}
}

func TestStartProduction(t *testing.T) {
	svc, repo := newService(t)
	job := started(t, svc, repo)
	assert.Equal(t, "PR001", job.ID)
	assert.Equal(t, models.ProductionInProgress, job.Status)
	assert.True(t, job.StartedAt.Equal(clock))

	_, err := svc.StartProduction(context.Background(), assembler, workflow.StartInput{ProductID: "P-1"})
	require.ErrorIs(t, err, apperr.ErrMissingFields)
	e, _ := apperr.As(err)
	assert.Equal(t, "productionName, feasibilityScore", e.Detail)

	jobs, err := svc.ListProductions(context.Background(), assembler, "")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	jobs, err = svc.ListProductions(context.Background(), "EMP099", "")
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestSendToQualityCheckRequiresReport(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	job := started(t, svc, repo)

	in := fullReport()
	in.WeldingQuality = ""
	in.HeatInput = nil
	_, _, err := svc.SendToQualityCheck(ctx, assembler, job.ID, in)
	require.ErrorIs(t, err, apperr.ErrMissingFields)
	e, _ := apperr.As(err)
	assert.Equal(t, "heatInput, weldingQuality", e.Detail)

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProductionInProgress, stored.Status)
	qas, err := repo.ListAssessments(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, qas)
}

func TestSendToQualityCheckCreatesOneAssessment(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	job := started(t, svc, repo)

	sent, qa, err := svc.SendToQualityCheck(ctx, assembler, job.ID, fullReport())
	require.NoError(t, err)
	assert.Equal(t, models.ProductionQualityCheck, sent.Status)
	require.NotNil(t, sent.SentForQualityCheckAt)
	assert.Equal(t, job.ID, qa.ProductionID)
	assert.Equal(t, "Frame", qa.ProductName)
	assert.Equal(t, "tx-100", qa.ProductTransactionHash)
	assert.Equal(t, models.QualityPending, qa.QualityStatus)

	// a second send is refused because the job left In_Progress
	_, _, err = svc.SendToQualityCheck(ctx, assembler, job.ID, fullReport())
	assert.ErrorIs(t, err, apperr.ErrConflict)

	qas, err := repo.ListAssessments(ctx, "")
	require.NoError(t, err)
	require.Len(t, qas, 1)
	assert.Equal(t, job.ID, qas[0].ProductionID)

	ids, err := svc.PendingProductionOptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{job.ID}, ids)

	stored, err := svc.Report(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Report.Data().HeatInput)
	assert.Equal(t, 1.2, *stored.Report.Data().HeatInput)
}

func TestSendToQualityCheckOwnershipAndRequest(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	job := started(t, svc, repo)

	_, _, err := svc.SendToQualityCheck(ctx, "EMP011", job.ID, fullReport())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	orphan, err := svc.StartProduction(ctx, assembler, workflow.StartInput{
		ProductID:        "P-404",
		ProductionName:   "No request",
		FeasibilityScore: f64(60),
	})
	require.NoError(t, err)
	_, _, err = svc.SendToQualityCheck(ctx, assembler, orphan.ID, fullReport())
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	stored, err := repo.GetJob(ctx, orphan.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProductionInProgress, stored.Status)
}

func approved() workflow.AssessmentInput {
	return workflow.AssessmentInput{
		QualityStatus:       models.QualityApproved,
		YoungsModulus:       f64(200),
		CorrosionResistance: f64(8),
		WeightEfficiency:    f64(0.9),
		TensileStrength:     f64(420),
		WeldIntegrity:       "Good",
		CorrosionImpact:     "None",
		WeightRetention:     "Maintained",
	}
}

func TestApprovedCompletesAndRemovesAssessment(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	job := started(t, svc, repo)
	_, _, err := svc.SendToQualityCheck(ctx, assembler, job.ID, fullReport())
	require.NoError(t, err)

	done, err := svc.SubmitAssessment(ctx, reviewer, job.ID, approved())
	require.NoError(t, err)
	assert.Equal(t, models.ProductionCompleted, done.Status)
	require.NotNil(t, done.FinishedAt)
	assert.Equal(t, reviewer, done.ApprovedBy)

	qa, err := repo.GetAssessment(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, qa)

	completed, err := svc.CompletedReportOptions(ctx)
	require.NoError(t, err)
	require.Len(t, completed, 1)

	view, err := svc.QualityReport(ctx, job.ID)
	require.NoError(t, err)
	assert.Nil(t, view.Assessment)
	assert.Equal(t, models.ProductionCompleted, view.Production.Status)
}

func TestApprovedRequiresEveryMetric(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	job := started(t, svc, repo)
	_, _, err := svc.SendToQualityCheck(ctx, assembler, job.ID, fullReport())
	require.NoError(t, err)

	in := approved()
	in.TensileStrength = nil
	in.WeightRetention = ""
	_, err = svc.SubmitAssessment(ctx, reviewer, job.ID, in)
	require.ErrorIs(t, err, apperr.ErrMissingFields)
	e, _ := apperr.As(err)
	assert.Equal(t, "tensileStrength, weightRetention", e.Detail)

	in = approved()
	in.WeldIntegrity = "Excellent"
	_, err = svc.SubmitAssessment(ctx, reviewer, job.ID, in)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.SubmitAssessment(ctx, reviewer, job.ID, workflow.AssessmentInput{QualityStatus: models.QualityPending})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProductionQualityCheck, stored.Status)
}

func TestReworkKeepsAssessmentAndRestarts(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	job := started(t, svc, repo)
	_, _, err := svc.SendToQualityCheck(ctx, assembler, job.ID, fullReport())
	require.NoError(t, err)

	back, err := svc.SubmitAssessment(ctx, reviewer, job.ID, workflow.AssessmentInput{
		QualityStatus:   models.QualityRework,
		RejectionReason: "Porous seam",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProductionRework, back.Status)
	assert.Equal(t, "Porous seam", back.ReworkIssue)

	qa, err := repo.GetAssessment(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, qa)
	assert.Equal(t, models.QualityRework, qa.QualityStatus)
	assert.Equal(t, "No comments", qa.ImprovementSuggestions)

	restarted, err := svc.RestartProduction(ctx, assembler, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProductionInProgress, restarted.Status)
	assert.Nil(t, restarted.SentForQualityCheckAt)

	_, err = svc.RestartProduction(ctx, assembler, job.ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// resending resets the kept assessment instead of adding another
	_, qa, err = svc.SendToQualityCheck(ctx, assembler, job.ID, fullReport())
	require.NoError(t, err)
	assert.Equal(t, models.QualityPending, qa.QualityStatus)
	qas, err := repo.ListAssessments(ctx, "")
	require.NoError(t, err)
	assert.Len(t, qas, 1)
}

func TestInProgressAssessmentOnlyUpdatesReview(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	job := started(t, svc, repo)
	_, _, err := svc.SendToQualityCheck(ctx, assembler, job.ID, fullReport())
	require.NoError(t, err)

	_, err = svc.SubmitAssessment(ctx, reviewer, job.ID, workflow.AssessmentInput{
		QualityStatus: models.QualityInProgress,
		YoungsModulus: f64(190),
	})
	require.NoError(t, err)

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProductionQualityCheck, stored.Status)

	qas, err := svc.QualityStatuses(ctx, models.QualityInProgress)
	require.NoError(t, err)
	require.Len(t, qas, 1)
	require.NotNil(t, qas[0].TestResults.Data().YoungsModulus)
	assert.Equal(t, 190.0, *qas[0].TestResults.Data().YoungsModulus)
	assert.Equal(t, "none", qas[0].RejectionReason)
}

func TestSubmitOutsideQualityCheckIsConflict(t *testing.T) {
	svc, repo := newService(t)
	job := started(t, svc, repo)
	_, err := svc.SubmitAssessment(context.Background(), reviewer, job.ID, approved())
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestRejectProductIsAuditOnly(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)
	qori := &models.Employee{Name: "Qori", Email: "qori@example.com", Role: models.RoleQualityControl}
	require.NoError(t, repo.CreateEmployee(ctx, qori))
	job := started(t, svc, repo)

	in := workflow.RejectInput{
		ProductID:                "P-100",
		ProductName:              "Frame",
		MaterialType:             "Aluminium 6061",
		RejectionReason:          "Cracks",
		ImprovementSuggestions:   "Lower heat input",
		AdditionalNotes:          "Batch 4",
		PreviousFeasibilityScore: f64(523),
		HeatInput:                f64(1.4),
		ThermalConductivityRate:  f64(167),
		CoolingTime:              f64(12),
	}
	_, err := svc.RejectProduct(ctx, qori.ID, in)
	require.ErrorIs(t, err, apperr.ErrMissingFields)
	e, _ := apperr.As(err)
	assert.Equal(t, "weldingStrength", e.Detail)

	in.WeldingStrength = f64(250)
	rej, err := svc.RejectProduct(ctx, qori.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "RJ001", rej.ID)
	assert.Equal(t, qori.ID, rej.RejectedBy)

	list, err := svc.ListRejected(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Qori", list[0].Name)
	assert.Equal(t, 167.0, list[0].WeldingIssues.Data().ThermalConductivityRate)

	stored, err := repo.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ProductionInProgress, stored.Status)
}

func TestAssessmentRejectsUnknownGrades(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.SubmitAssessment(context.Background(), reviewer, "PR001", workflow.AssessmentInput{
		QualityStatus: models.QualityInProgress,
		WeldIntegrity: "100%",
	})
	require.ErrorIs(t, err, apperr.ErrValidation)
	e, _ := apperr.As(err)
	assert.Equal(t, "weldIntegrity must be one of Good, Moderate, Poor", e.Message)
}
