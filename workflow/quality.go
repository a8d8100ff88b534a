package workflow

import (
	"context"
	"strings"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/repository"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
	"gorm.io/datatypes"
)

var (
	weldIntegrityValues   = []string{"Good", "Moderate", "Poor"}
	corrosionImpactValues = []string{"None", "Minor", "Severe"}
	weightRetentionValues = []string{"Maintained", "Slight Loss", "Significant Loss"}
)

// AssessmentInput is a quality reviewer's verdict on a job.
type AssessmentInput struct {
	QualityStatus          string   `json:"qualityStatus"`
	YoungsModulus          *float64 `json:"youngsModulus"`
	CorrosionResistance    *float64 `json:"corrosionResistance"`
	WeightEfficiency       *float64 `json:"weightEfficiency"`
	TensileStrength        *float64 `json:"tensileStrength"`
	WeldIntegrity          string   `json:"weldIntegrity"`
	CorrosionImpact        string   `json:"corrosionImpact"`
	WeightRetention        string   `json:"weightRetention"`
	RejectionReason        string   `json:"rejectionReason"`
	ImprovementSuggestions string   `json:"improvementSuggestions"`
	ReworkIssue            string   `json:"reworkIssue"`
	TestReport             string   `json:"testReport"`
}

func (in *AssessmentInput) validate() error {
	switch in.QualityStatus {
	case models.QualityInProgress, models.QualityApproved, models.QualityRework:
	case "":
		return apperr.MissingFields("qualityStatus")
	default:
		return apperr.Validation("qualityStatus must be In_Progress, Approved or Rework")
	}
	if strings.TrimSpace(in.RejectionReason) == "" {
		in.RejectionReason = "none"
	}
	if strings.TrimSpace(in.ImprovementSuggestions) == "" {
		in.ImprovementSuggestions = "No comments"
	}

	if in.QualityStatus == models.QualityApproved {
		var missing []string
		if in.YoungsModulus == nil {
			missing = append(missing, "youngsModulus")
		}
		if in.CorrosionResistance == nil {
			missing = append(missing, "corrosionResistance")
		}
		if in.WeightEfficiency == nil {
			missing = append(missing, "weightEfficiency")
		}
		if in.TensileStrength == nil {
			missing = append(missing, "tensileStrength")
		}
		if in.WeldIntegrity == "" {
			missing = append(missing, "weldIntegrity")
		}
		if in.CorrosionImpact == "" {
			missing = append(missing, "corrosionImpact")
		}
		if in.WeightRetention == "" {
			missing = append(missing, "weightRetention")
		}
		if len(missing) > 0 {
			return apperr.MissingFields(missing...)
		}
	}

	for _, c := range []struct {
		field, value string
		allowed      []string
	}{
		{"weldIntegrity", in.WeldIntegrity, weldIntegrityValues},
		{"corrosionImpact", in.CorrosionImpact, corrosionImpactValues},
		{"weightRetention", in.WeightRetention, weightRetentionValues},
	} {
		if c.value != "" && !oneOf(c.value, c.allowed) {
			return apperr.Validation("%s must be one of %s", c.field, strings.Join(c.allowed, ", "))
		}
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}

// merge copies the submitted values onto qa. Absent metrics keep their
// previous value.
func (in AssessmentInput) merge(qa *models.QualityAssessment, reviewer string, s *Service) {
	results := qa.TestResults.Data()
	if in.YoungsModulus != nil {
		results.YoungsModulus = in.YoungsModulus
	}
	if in.CorrosionResistance != nil {
		results.CorrosionResistance = in.CorrosionResistance
	}
	if in.WeightEfficiency != nil {
		results.WeightEfficiency = in.WeightEfficiency
	}
	if in.TensileStrength != nil {
		results.TensileStrength = in.TensileStrength
	}
	qa.TestResults = datatypes.NewJSONType(results)

	welding := qa.WeldingAssessment.Data()
	if in.WeldIntegrity != "" {
		welding.WeldIntegrity = in.WeldIntegrity
	}
	if in.CorrosionImpact != "" {
		welding.CorrosionImpact = in.CorrosionImpact
	}
	if in.WeightRetention != "" {
		welding.WeightRetention = in.WeightRetention
	}
	qa.WeldingAssessment = datatypes.NewJSONType(welding)

	now := s.now()
	qa.QualityStatus = in.QualityStatus
	qa.RejectionReason = in.RejectionReason
	qa.ImprovementSuggestions = in.ImprovementSuggestions
	qa.ApprovedBy = reviewer
	qa.ApprovalDate = &now
	if in.TestReport != "" {
		qa.TestReport = in.TestReport
	}
}

// QualityStatuses lists assessments, optionally filtered by status.
func (s *Service) QualityStatuses(ctx context.Context, status string) ([]models.QualityAssessment, error) {
	return s.repo.ListAssessments(ctx, status)
}

// PendingProductionOptions returns the production ids waiting for review.
func (s *Service) PendingProductionOptions(ctx context.Context) ([]string, error) {
	pending, err := s.repo.ListAssessments(ctx, models.QualityPending)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(pending))
	for _, qa := range pending {
		ids = append(ids, qa.ProductionID)
	}
	return ids, nil
}

// SubmitAssessment records a verdict on a job in Quality_Check.
//
// In_Progress only updates the assessment. Approved completes the job and
// removes the assessment. Rework sends the job back with the issue and keeps
// the assessment for history.
func (s *Service) SubmitAssessment(ctx context.Context, reviewer, productionID string, in AssessmentInput) (*models.ProductionJob, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	job, err := s.repo.GetJob(ctx, productionID)
	if err != nil {
		return nil, err
	}
	st, err := StageOf(job)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "", "Production record is inconsistent")
	}
	qc, ok := st.(InQualityCheck)
	if !ok {
		return nil, apperr.Newf(apperr.CodeConflict, "Production %s is %s, not %s", productionID, st.Status(), models.ProductionQualityCheck)
	}
	qa, err := s.repo.GetAssessment(ctx, productionID)
	if err != nil {
		return nil, err
	}
	if qa == nil {
		return nil, apperr.NotFound("No quality assessment for production %s", productionID)
	}
	in.merge(qa, reviewer, s)

	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		switch in.QualityStatus {
		case models.QualityInProgress:
			if err := tx.SaveAssessment(ctx, qa); err != nil {
				return apperr.Wrap(err, apperr.CodeDatabase, "", "Quality assessment update failed")
			}
			return nil
		case models.QualityApproved:
			apply(job, Completed{Report: qc.Report, FinishedAt: s.now(), ApprovedBy: reviewer})
		default:
			issue := in.ReworkIssue
			if strings.TrimSpace(issue) == "" {
				issue = in.RejectionReason
			}
			apply(job, Rework{Report: qc.Report, Issue: issue})
		}
		if err := tx.SaveJob(ctx, job); err != nil {
			return apperr.Wrap(err, apperr.CodeDatabase, "", "Production update failed; assessment was not recorded")
		}
		if in.QualityStatus == models.QualityApproved {
			if err := tx.DeleteAssessment(ctx, productionID); err != nil {
				return apperr.Wrap(err, apperr.CodePartialFailure, "", "Quality assessment removal failed; production update was rolled back")
			}
			return nil
		}
		if err := tx.SaveAssessment(ctx, qa); err != nil {
			return apperr.Wrap(err, apperr.CodePartialFailure, "", "Quality assessment update failed; production update was rolled back")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("Quality assessment submitted", "production", productionID, "status", in.QualityStatus, "reviewer", reviewer)
	return job, nil
}

// QualityView is a job together with its open assessment, if any.
type QualityView struct {
	Production *models.ProductionJob     `json:"production"`
	Assessment *models.QualityAssessment `json:"assessment,omitempty"`
}

// QualityReport returns a job and its open assessment.
func (s *Service) QualityReport(ctx context.Context, productionID string) (*QualityView, error) {
	job, err := s.repo.GetJob(ctx, productionID)
	if err != nil {
		return nil, err
	}
	qa, err := s.repo.GetAssessment(ctx, productionID)
	if err != nil {
		return nil, err
	}
	return &QualityView{Production: job, Assessment: qa}, nil
}

// CompletedReportOptions lists all completed jobs.
func (s *Service) CompletedReportOptions(ctx context.Context) ([]models.ProductionJob, error) {
	return s.repo.ListJobs(ctx, "", models.ProductionCompleted)
}
