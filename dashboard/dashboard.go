// Package dashboard builds the role specific summary shown after login.
// Each role has its own Summarizer; Registry picks one by the caller's role.
package dashboard

import (
	"context"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/recordstore"
	"github.com/ahmadzakiakmal/weldledger/repository"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
)

// recentDesigns caps the designs listed on a dashboard.
const recentDesigns = 10

// Summarizer builds the dashboard of one role.
type Summarizer interface {
	Summarize(ctx context.Context, who models.Identity) (any, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, who models.Identity) (any, error)

func (f SummarizerFunc) Summarize(ctx context.Context, who models.Identity) (any, error) {
	return f(ctx, who)
}

// Sources are the stores a dashboard reads from.
type Sources struct {
	Repo    *repository.Repository
	Designs *recordstore.Store
}

// Registry maps roles to summarizers.
type Registry struct {
	byRole map[string]Summarizer
}

// NewRegistry wires the default summarizer of every role.
func NewRegistry(src Sources) *Registry {
	r := &Registry{byRole: make(map[string]Summarizer)}
	r.Register(models.RoleAdmin, SummarizerFunc(src.admin))
	r.Register(models.RoleResourceAnalyst, SummarizerFunc(src.analyst))
	r.Register(models.RoleDesignSupport, SummarizerFunc(src.design))
	r.Register(models.RoleProductionAssembly, SummarizerFunc(src.production))
	r.Register(models.RoleQualityControl, SummarizerFunc(src.quality))
	return r
}

// Register replaces the summarizer of role.
func (r *Registry) Register(role string, s Summarizer) {
	r.byRole[role] = s
}

func (r *Registry) Summarize(ctx context.Context, who models.Identity) (any, error) {
	s, ok := r.byRole[who.Role]
	if !ok {
		return nil, apperr.Forbidden("No dashboard data available for role %s", who.Role)
	}
	return s.Summarize(ctx, who)
}

// StatusSummary is a total with its per status breakdown.
type StatusSummary struct {
	Total         int64                    `json:"total"`
	StatsByStatus []repository.StatusCount `json:"statsByStatus"`
}

func summary(counts []repository.StatusCount) StatusSummary {
	s := StatusSummary{StatsByStatus: counts}
	for _, c := range counts {
		s.Total += c.Count
	}
	return s
}

type DesignSummary struct {
	TotalDesigns  int                `json:"totalDesigns"`
	RecentDesigns []recordstore.Item `json:"recentDesigns,omitempty"`
}

type AdminDashboard struct {
	EmployeeSummary   StatusSummary                    `json:"employeeSummary"`
	ProductionSummary StatusSummary                    `json:"productionSummary"`
	QualitySummary    StatusSummary                    `json:"qualitySummary"`
	DesignSummary     DesignSummary                    `json:"designSummary"`
	TotalRejected     int64                            `json:"totalRejected"`
	AccessRequests    []models.ProductionAccessRequest `json:"accessRequests"`
}

type AnalystDashboard struct {
	ProductionSummary StatusSummary `json:"productionSummary"`
	TotalRejected     int64         `json:"totalRejected"`
}

type DesignDashboard struct {
	DesignSummary DesignSummary `json:"designSummary"`
}

type ProductionDashboard struct {
	ProductionSummary     StatusSummary                    `json:"productionSummary"`
	ActiveProduction      []models.ProductionJob           `json:"activeProduction"`
	PendingAccessRequests int                              `json:"pendingAccessRequests"`
	AccessRequests        []models.ProductionAccessRequest `json:"accessRequests"`
}

type QualityDashboard struct {
	QualitySummary StatusSummary `json:"qualitySummary"`
	TotalRejected  int64         `json:"totalRejected"`
}

func (src Sources) production(ctx context.Context, who models.Identity) (any, error) {
	counts, err := src.Repo.CountJobsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	jobs, err := src.Repo.ListJobs(ctx, who.EmployeeID, "")
	if err != nil {
		return nil, err
	}
	reqs, err := src.Repo.ListRecordRequests(ctx, who.EmployeeID, "")
	if err != nil {
		return nil, err
	}
	pending := 0
	for _, r := range reqs {
		if r.RequestStatus == models.GrantPending {
			pending++
		}
	}
	return &ProductionDashboard{
		ProductionSummary:     summary(counts),
		ActiveProduction:      jobs,
		PendingAccessRequests: pending,
		AccessRequests:        reqs,
	}, nil
}

func (src Sources) quality(ctx context.Context, _ models.Identity) (any, error) {
	counts, err := src.Repo.CountAssessmentsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	rejected, err := src.Repo.CountRejections(ctx)
	if err != nil {
		return nil, err
	}
	return &QualityDashboard{QualitySummary: summary(counts), TotalRejected: rejected}, nil
}

func (src Sources) designs(ctx context.Context, withRecent bool) (DesignSummary, error) {
	var d DesignSummary
	if src.Designs == nil {
		return d, nil
	}
	total, err := src.Designs.Count(ctx)
	if err != nil {
		return d, err
	}
	d.TotalDesigns = total
	if withRecent && total > 0 {
		page, err := src.Designs.FetchPage(ctx, 1, recentDesigns)
		if err != nil {
			return d, err
		}
		d.RecentDesigns = page.Items
	}
	return d, nil
}

func (src Sources) design(ctx context.Context, _ models.Identity) (any, error) {
	d, err := src.designs(ctx, true)
	if err != nil {
		return nil, err
	}
	return &DesignDashboard{DesignSummary: d}, nil
}

func (src Sources) analyst(ctx context.Context, _ models.Identity) (any, error) {
	counts, err := src.Repo.CountJobsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	rejected, err := src.Repo.CountRejections(ctx)
	if err != nil {
		return nil, err
	}
	return &AnalystDashboard{ProductionSummary: summary(counts), TotalRejected: rejected}, nil
}

func (src Sources) admin(ctx context.Context, _ models.Identity) (any, error) {
	employees, err := src.Repo.CountEmployeesByStatus(ctx)
	if err != nil {
		return nil, err
	}
	jobs, err := src.Repo.CountJobsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	quality, err := src.Repo.CountAssessmentsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	rejected, err := src.Repo.CountRejections(ctx)
	if err != nil {
		return nil, err
	}
	reqs, err := src.Repo.ListRecordRequests(ctx, "", "")
	if err != nil {
		return nil, err
	}
	d, err := src.designs(ctx, false)
	if err != nil {
		return nil, err
	}
	return &AdminDashboard{
		EmployeeSummary:   summary(employees),
		ProductionSummary: summary(jobs),
		QualitySummary:    summary(quality),
		DesignSummary:     d,
		TotalRejected:     rejected,
		AccessRequests:    reqs,
	}, nil
}
