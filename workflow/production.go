// Package workflow runs the production and quality lifecycles:
//
//	In_Progress -> Quality_Check -> Completed | Rework
//	Rework -> In_Progress (restart by a person)
//
// Transitions that touch more than one row run in a single database
// transaction.
package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/repository"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"gorm.io/datatypes"
)

// Service runs workflow transitions.
type Service struct {
	repo   *repository.Repository
	logger cmtlog.Logger
	now    func() time.Time
}

func NewService(repo *repository.Repository, logger cmtlog.Logger) *Service {
	return &Service{repo: repo, logger: logger.With("module", "workflow"), now: time.Now}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// StartInput opens a production job.
type StartInput struct {
	ProductID        string   `json:"productId"`
	ProductionName   string   `json:"productionName"`
	FeasibilityScore *float64 `json:"feasibilityScore"`
}

// StartProduction creates a job directly in In_Progress.
func (s *Service) StartProduction(ctx context.Context, employeeID string, in StartInput) (*models.ProductionJob, error) {
	var missing []string
	if strings.TrimSpace(in.ProductID) == "" {
		missing = append(missing, "productId")
	}
	if strings.TrimSpace(in.ProductionName) == "" {
		missing = append(missing, "productionName")
	}
	if in.FeasibilityScore == nil {
		missing = append(missing, "feasibilityScore")
	}
	if len(missing) > 0 {
		return nil, apperr.MissingFields(missing...)
	}

	job := &models.ProductionJob{
		ProductID:            in.ProductID,
		ProductionName:       in.ProductionName,
		FeasibilityScore:     *in.FeasibilityScore,
		ProductionEmployeeID: employeeID,
	}
	apply(job, InProgress{StartedAt: s.now()})
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("Production started", "production", job.ID, "employee", employeeID)
	return job, nil
}

// ListProductions lists the caller's jobs in status, In_Progress by default.
func (s *Service) ListProductions(ctx context.Context, employeeID, status string) ([]models.ProductionJob, error) {
	if status == "" {
		status = models.ProductionInProgress
	}
	return s.repo.ListJobs(ctx, employeeID, status)
}

// ReportInput is the report submitted with a job.
type ReportInput struct {
	HeatInput       *float64 `json:"heatInput"`
	WeldingStrength *float64 `json:"weldingStrength"`
	WeldingQuality  string   `json:"weldingQuality"`
	Recommendations string   `json:"recommendations"`
}

func (in ReportInput) report() (Report, error) {
	var missing []string
	if in.HeatInput == nil {
		missing = append(missing, "heatInput")
	}
	if in.WeldingStrength == nil {
		missing = append(missing, "weldingStrength")
	}
	if strings.TrimSpace(in.WeldingQuality) == "" {
		missing = append(missing, "weldingQuality")
	}
	if strings.TrimSpace(in.Recommendations) == "" {
		missing = append(missing, "recommendations")
	}
	if len(missing) > 0 {
		return Report{}, apperr.MissingFields(missing...)
	}
	return Report{HeatInput: *in.HeatInput, WeldingStrength: *in.WeldingStrength, WeldingQuality: in.WeldingQuality, Recommendations: in.Recommendations}, nil
}

// ownJob loads a job and hides jobs of other employees.
func (s *Service) ownJob(ctx context.Context, employeeID, productionID string) (*models.ProductionJob, Stage, error) {
	job, err := s.repo.GetJob(ctx, productionID)
	if err != nil {
		return nil, nil, err
	}
	if job.ProductionEmployeeID != employeeID {
		return nil, nil, apperr.NotFound("Production %s not found", productionID)
	}
	st, err := StageOf(job)
	if err != nil {
		return nil, nil, apperr.Wrap(err, apperr.CodeInternal, "", "Production record is inconsistent")
	}
	return job, st, nil
}

// SendToQualityCheck moves an In_Progress job to Quality_Check and opens
// exactly one Pending assessment for it, copying the product reference from
// the employee's record request.
func (s *Service) SendToQualityCheck(ctx context.Context, employeeID, productionID string, in ReportInput) (*models.ProductionJob, *models.QualityAssessment, error) {
	report, err := in.report()
	if err != nil {
		return nil, nil, err
	}
	job, st, err := s.ownJob(ctx, employeeID, productionID)
	if err != nil {
		return nil, nil, err
	}
	if _, ok := st.(InProgress); !ok {
		return nil, nil, apperr.Newf(apperr.CodeConflict, "Production %s is %s, not %s", productionID, st.Status(), models.ProductionInProgress)
	}
	req, err := s.repo.FindRecordRequestByProduct(ctx, employeeID, job.ProductID)
	if err != nil {
		return nil, nil, err
	}

	var qa *models.QualityAssessment
	err = s.repo.WithTx(ctx, func(tx *repository.Repository) error {
		apply(job, InQualityCheck{Report: report, SentAt: s.now()})
		if err := tx.SaveJob(ctx, job); err != nil {
			return apperr.Wrap(err, apperr.CodeDatabase, "", "Production update failed; nothing was sent to quality check")
		}

		existing, err := tx.GetAssessment(ctx, productionID)
		if err != nil {
			return partial(err)
		}
		qa = &models.QualityAssessment{}
		if existing != nil {
			qa.ID = existing.ID
			qa.CreatedAt = existing.CreatedAt
		}
		qa.ProductionID = productionID
		qa.ProductID = job.ProductID
		qa.ProductName = req.ProductName
		qa.ProductTransactionHash = req.TransactionID
		qa.QualityStatus = models.QualityPending
		qa.RejectionReason = "none"
		qa.ImprovementSuggestions = "No comments"
		if err := tx.SaveAssessment(ctx, qa); err != nil {
			return partial(err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("Production sent to quality check", "production", productionID)
	return job, qa, nil
}

// partial reports a failure after the production row was already updated
// inside the transaction; the update is rolled back with it.
func partial(err error) error {
	return apperr.Wrap(err, apperr.CodePartialFailure, "", "Quality assessment creation failed; production update was rolled back")
}

// RestartProduction returns a job in Rework to In_Progress.
func (s *Service) RestartProduction(ctx context.Context, employeeID, productionID string) (*models.ProductionJob, error) {
	job, st, err := s.ownJob(ctx, employeeID, productionID)
	if err != nil {
		return nil, err
	}
	if _, ok := st.(Rework); !ok {
		return nil, apperr.Newf(apperr.CodeConflict, "Production %s is %s, not %s", productionID, st.Status(), models.ProductionRework)
	}
	apply(job, InProgress{StartedAt: s.now()})
	if err := s.repo.SaveJob(ctx, job); err != nil {
		return nil, err
	}
	s.logger.Info("Production restarted", "production", productionID)
	return job, nil
}

// Report returns one job with its production report.
func (s *Service) Report(ctx context.Context, productionID string) (*models.ProductionJob, error) {
	return s.repo.GetJob(ctx, productionID)
}

// RejectInput is the audit record filed when a product is refused.
type RejectInput struct {
	ProductID                string   `json:"productId"`
	ProductName              string   `json:"productName"`
	MaterialType             string   `json:"materialType"`
	RejectionReason          string   `json:"rejectionReason"`
	ImprovementSuggestions   string   `json:"improvementSuggestions"`
	AdditionalNotes          string   `json:"additionalNotes"`
	PreviousFeasibilityScore *float64 `json:"previousFeasibilityScore"`
	HeatInput                *float64 `json:"heatInput"`
	ThermalConductivityRate  *float64 `json:"thermalConductivityRate"`
	CoolingTime              *float64 `json:"coolingTime"`
	WeldingStrength          *float64 `json:"weldingStrength"`
}

func (in RejectInput) missing() []string {
	var missing []string
	for _, f := range []struct {
		name string
		ok   bool
	}{
		{"productId", strings.TrimSpace(in.ProductID) != ""},
		{"productName", strings.TrimSpace(in.ProductName) != ""},
		{"materialType", strings.TrimSpace(in.MaterialType) != ""},
		{"rejectionReason", strings.TrimSpace(in.RejectionReason) != ""},
		{"improvementSuggestions", strings.TrimSpace(in.ImprovementSuggestions) != ""},
		{"additionalNotes", strings.TrimSpace(in.AdditionalNotes) != ""},
		{"previousFeasibilityScore", in.PreviousFeasibilityScore != nil},
		{"heatInput", in.HeatInput != nil},
		{"thermalConductivityRate", in.ThermalConductivityRate != nil},
		{"coolingTime", in.CoolingTime != nil},
		{"weldingStrength", in.WeldingStrength != nil},
	} {
		if !f.ok {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// RejectProduct appends an audit row. It never touches jobs or
// assessments.
func (s *Service) RejectProduct(ctx context.Context, employeeID string, in RejectInput) (*models.RejectedProduct, error) {
	if missing := in.missing(); len(missing) > 0 {
		return nil, apperr.MissingFields(missing...)
	}
	p := &models.RejectedProduct{
		ProductID:                in.ProductID,
		ProductName:              in.ProductName,
		MaterialType:             in.MaterialType,
		RejectedAt:               s.now(),
		RejectedBy:               employeeID,
		RejectionReason:          in.RejectionReason,
		ImprovementSuggestions:   in.ImprovementSuggestions,
		PreviousFeasibilityScore: *in.PreviousFeasibilityScore,
		WeldingIssues: datatypes.NewJSONType(models.WeldingIssues{
			HeatInput:               *in.HeatInput,
			ThermalConductivityRate: *in.ThermalConductivityRate,
			CoolingTime:             *in.CoolingTime,
			WeldingStrength:         *in.WeldingStrength,
		}),
		AdditionalNotes: in.AdditionalNotes,
	}
	if err := s.repo.CreateRejection(ctx, p); err != nil {
		return nil, err
	}
	s.logger.Info("Product rejected", "rejection", p.ID, "product", p.ProductID)
	return p, nil
}

func (s *Service) ListRejected(ctx context.Context) ([]repository.RejectionView, error) {
	return s.repo.ListRejections(ctx)
}
