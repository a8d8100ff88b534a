package workflow

import (
	"fmt"
	"time"

	"github.com/ahmadzakiakmal/weldledger/repository/models"
	"gorm.io/datatypes"
)

// Stage is the lifecycle position of a production job. Each variant only
// carries the data that exists in that position.
type Stage interface {
	Status() string
	stage()
}

// Report is a complete production report.
type Report struct {
	HeatInput       float64 `json:"heatInput"`
	WeldingStrength float64 `json:"weldingStrength"`
	WeldingQuality  string  `json:"weldingQuality"`
	Recommendations string  `json:"recommendations"`
}

type InProgress struct {
	StartedAt time.Time
}

type InQualityCheck struct {
	Report Report
	SentAt time.Time
}

type Completed struct {
	Report     Report
	FinishedAt time.Time
	ApprovedBy string
}

type Rework struct {
	Report Report
	Issue  string
}

func (InProgress) Status() string     { return models.ProductionInProgress }
func (InQualityCheck) Status() string { return models.ProductionQualityCheck }
func (Completed) Status() string      { return models.ProductionCompleted }
func (Rework) Status() string         { return models.ProductionRework }

func (InProgress) stage()     {}
func (InQualityCheck) stage() {}
func (Completed) stage()      {}
func (Rework) stage()         {}

// StageOf reads the stage of a persisted job. A row whose columns do not
// fit its status is reported as an error.
func StageOf(job *models.ProductionJob) (Stage, error) {
	switch job.Status {
	case models.ProductionInProgress:
		return InProgress{StartedAt: job.StartedAt}, nil
	case models.ProductionQualityCheck:
		report, ok := completeReport(job.Report.Data())
		if !ok || job.SentForQualityCheckAt == nil {
			return nil, fmt.Errorf("production %s is in quality check without a complete report", job.ID)
		}
		return InQualityCheck{Report: report, SentAt: *job.SentForQualityCheckAt}, nil
	case models.ProductionCompleted:
		report, ok := completeReport(job.Report.Data())
		if !ok || job.FinishedAt == nil {
			return nil, fmt.Errorf("production %s is completed without a report", job.ID)
		}
		return Completed{Report: report, FinishedAt: *job.FinishedAt, ApprovedBy: job.ApprovedBy}, nil
	case models.ProductionRework:
		report, _ := completeReport(job.Report.Data())
		return Rework{Report: report, Issue: job.ReworkIssue}, nil
	default:
		return nil, fmt.Errorf("production %s has unknown status %q", job.ID, job.Status)
	}
}

// apply writes st onto job.
func apply(job *models.ProductionJob, st Stage) {
	job.Status = st.Status()
	switch s := st.(type) {
	case InProgress:
		job.StartedAt = s.StartedAt
		job.SentForQualityCheckAt = nil
		job.FinishedAt = nil
	case InQualityCheck:
		job.Report = datatypes.NewJSONType(s.Report.row())
		sent := s.SentAt
		job.SentForQualityCheckAt = &sent
	case Completed:
		job.Report = datatypes.NewJSONType(s.Report.row())
		finished := s.FinishedAt
		job.FinishedAt = &finished
		job.ApprovedBy = s.ApprovedBy
	case Rework:
		job.ReworkIssue = s.Issue
	}
}

func (r Report) row() models.ProductionReport {
	heat, strength := r.HeatInput, r.WeldingStrength
	return models.ProductionReport{
		HeatInput:       &heat,
		WeldingStrength: &strength,
		WeldingQuality:  r.WeldingQuality,
		Recommendations: r.Recommendations,
	}
}

func completeReport(p models.ProductionReport) (Report, bool) {
	if p.HeatInput == nil || p.WeldingStrength == nil || p.WeldingQuality == "" || p.Recommendations == "" {
		return Report{}, false
	}
	return Report{
		HeatInput:       *p.HeatInput,
		WeldingStrength: *p.WeldingStrength,
		WeldingQuality:  p.WeldingQuality,
		Recommendations: p.Recommendations,
	}, true
}
