package dashboard_test

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/dashboard"
	"github.com/ahmadzakiakmal/weldledger/encryption"
	"github.com/ahmadzakiakmal/weldledger/ledger"
	"github.com/ahmadzakiakmal/weldledger/ledger/gateway"
	"github.com/ahmadzakiakmal/weldledger/ledger/ledgertest"
	"github.com/ahmadzakiakmal/weldledger/recordstore"
	"github.com/ahmadzakiakmal/weldledger/repository"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func setup(t *testing.T) (*dashboard.Registry, *repository.Repository, *recordstore.Store) {
	t.Helper()
	ctx := context.Background()
	repo, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "dashboard_test.db"), cmtlog.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	codec, err := encryption.NewCodec(bytes.Repeat([]byte{9}, encryption.KeySize))
	require.NoError(t, err)
	client := gateway.NewClient(ledgertest.New(t), gateway.DefaultConfig(), cmtlog.NewNopLogger(), nil)
	designs := recordstore.New(codec, client.Table(ledger.DesignData))

	return dashboard.NewRegistry(dashboard.Sources{Repo: repo, Designs: designs}), repo, designs
}

func seed(t *testing.T, repo *repository.Repository) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	for i, owner := range []string{"EMP010", "EMP010", "EMP011"} {
		status := models.ProductionInProgress
		if i == 1 {
			status = models.ProductionRework
		}
		require.NoError(t, repo.CreateJob(ctx, &models.ProductionJob{
			ProductID:            fmt.Sprintf("P-%d", i),
			ProductionName:       "run",
			Status:               status,
			StartedAt:            now,
			ProductionEmployeeID: owner,
		}))
	}
	require.NoError(t, repo.SaveRecordRequest(ctx, &models.ProductionAccessRequest{
		EmployeeID: "EMP010", TransactionID: "tx-1", ProductID: "P-0", ProductName: "Frame",
		RequestStatus: models.GrantPending, GrantedBy: "pending", ExpiresAt: now,
	}))
	require.NoError(t, repo.SaveAssessment(ctx, &models.QualityAssessment{ProductionID: "PR001", ProductID: "P-0", QualityStatus: models.QualityPending}))
	require.NoError(t, repo.CreateRejection(ctx, &models.RejectedProduct{
		ProductID: "P-9", ProductName: "Bad", MaterialType: "steel", RejectedAt: now, RejectedBy: "EMP020",
		RejectionReason: "cracks", ImprovementSuggestions: "none",
		WeldingIssues: datatypes.NewJSONType(models.WeldingIssues{}),
	}))
}

func TestProductionDashboardIsScopedToCaller(t *testing.T) {
	reg, repo, _ := setup(t)
	seed(t, repo)

	out, err := reg.Summarize(context.Background(), models.Identity{EmployeeID: "EMP010", Role: models.RoleProductionAssembly})
	require.NoError(t, err)
	d, ok := out.(*dashboard.ProductionDashboard)
	require.True(t, ok)
	assert.Equal(t, int64(3), d.ProductionSummary.Total)
	assert.Len(t, d.ActiveProduction, 2)
	assert.Equal(t, 1, d.PendingAccessRequests)
}

func TestQualityAndAnalystDashboards(t *testing.T) {
	reg, repo, _ := setup(t)
	seed(t, repo)
	ctx := context.Background()

	out, err := reg.Summarize(ctx, models.Identity{EmployeeID: "EMP020", Role: models.RoleQualityControl})
	require.NoError(t, err)
	q := out.(*dashboard.QualityDashboard)
	assert.Equal(t, int64(1), q.QualitySummary.Total)
	assert.Equal(t, int64(1), q.TotalRejected)

	out, err = reg.Summarize(ctx, models.Identity{EmployeeID: "EMP030", Role: models.RoleResourceAnalyst})
	require.NoError(t, err)
	a := out.(*dashboard.AnalystDashboard)
	assert.Equal(t, int64(3), a.ProductionSummary.Total)
	assert.Equal(t, int64(1), a.TotalRejected)
}

func TestDesignDashboardListsAtMostTen(t *testing.T) {
	reg, _, designs := setup(t)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		_, err := designs.SaveRecord(ctx, map[string]any{"productId": fmt.Sprintf("D-%d", i)})
		require.NoError(t, err)
	}

	out, err := reg.Summarize(ctx, models.Identity{EmployeeID: "EMP040", Role: models.RoleDesignSupport})
	require.NoError(t, err)
	d := out.(*dashboard.DesignDashboard)
	assert.Equal(t, 12, d.DesignSummary.TotalDesigns)
	assert.Len(t, d.DesignSummary.RecentDesigns, 10)
}

func TestAdminDashboardAndCustomSummarizer(t *testing.T) {
	reg, repo, _ := setup(t)
	seed(t, repo)
	ctx := context.Background()

	out, err := reg.Summarize(ctx, models.Identity{EmployeeID: "EMP001", Role: models.RoleAdmin})
	require.NoError(t, err)
	a := out.(*dashboard.AdminDashboard)
	assert.Equal(t, int64(3), a.ProductionSummary.Total)
	assert.Len(t, a.AccessRequests, 1)
	assert.Zero(t, a.DesignSummary.TotalDesigns)

	_, err = reg.Summarize(ctx, models.Identity{EmployeeID: "EMP002", Role: "visitor"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	reg.Register("visitor", dashboard.SummarizerFunc(func(context.Context, models.Identity) (any, error) {
		return "hello", nil
	}))
	out, err = reg.Summarize(ctx, models.Identity{Role: "visitor"})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}
