package access

import (
	"context"
	"fmt"
	"strings"

	"github.com/ahmadzakiakmal/weldledger/apperr"
	"github.com/ahmadzakiakmal/weldledger/notify"
	"github.com/ahmadzakiakmal/weldledger/repository/models"
)

// RecordRef names the ledger record a request is about.
type RecordRef struct {
	TransactionID string `json:"transactionId"`
	ProductID     string `json:"productId"`
	ProductName   string `json:"productName"`
}

func (r RecordRef) validate() error {
	var missing []string
	if strings.TrimSpace(r.TransactionID) == "" {
		missing = append(missing, "transactionId")
	}
	if strings.TrimSpace(r.ProductID) == "" {
		missing = append(missing, "productId")
	}
	if strings.TrimSpace(r.ProductName) == "" {
		missing = append(missing, "productName")
	}
	if len(missing) > 0 {
		return apperr.MissingFields(missing...)
	}
	return nil
}

func canGrantRecord(grantor models.Identity) error {
	if grantor.Role == models.RoleAdmin || grantor.Role == models.RoleDesignSupport {
		return nil
	}
	return apperr.Forbidden("You do not have permission to manage record access")
}

// RequestRecord files a pending request for one record. Like RequestAccess
// it is refused only while an active, unexpired grant on the same record
// exists.
func (s *Service) RequestRecord(ctx context.Context, employeeID string, ref RecordRef) (*models.ProductionAccessRequest, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	now := s.now()
	req, err := s.repo.GetRecordRequest(ctx, employeeID, ref.TransactionID)
	if err != nil {
		return nil, err
	}
	if req != nil && authorizes(req.RequestStatus, req.ExpiresAt, now) {
		return nil, apperr.New(apperr.CodeDuplicateRequest, "Access request already exists").
			WithDetail("transaction " + ref.TransactionID)
	}
	if req == nil {
		req = &models.ProductionAccessRequest{EmployeeID: employeeID, TransactionID: ref.TransactionID}
	}
	req.ProductID = ref.ProductID
	req.ProductName = ref.ProductName
	req.RequestStatus = models.GrantPending
	req.AccessType = models.AccessNone
	req.GrantedBy = "pending"
	req.GrantedAt = now
	req.ExpiresAt = now.Add(RequestTTL)
	if err := s.repo.SaveRecordRequest(ctx, req); err != nil {
		return nil, err
	}
	s.logger.Info("Record access requested", "employee", employeeID, "tx", ref.TransactionID)
	return req, nil
}

// GrantRecord activates a filed request for days. With no filed request it
// is NOT_FOUND: the request carries the product the grant refers to.
func (s *Service) GrantRecord(ctx context.Context, grantor models.Identity, employeeID, txID string, days int) (*models.ProductionAccessRequest, error) {
	if days <= 0 {
		return nil, apperr.Validation("Invalid duration. Please provide a positive number of days.")
	}
	if err := canGrantRecord(grantor); err != nil {
		return nil, err
	}
	req, emp, err := s.loadRecordRequest(ctx, employeeID, txID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	req.RequestStatus = models.GrantActive
	req.AccessType = models.AccessRead
	req.GrantedBy = grantor.EmployeeID
	req.GrantedAt = now
	req.ExpiresAt = now.AddDate(0, 0, days)
	if err := s.repo.SaveRecordRequest(ctx, req); err != nil {
		return nil, err
	}
	s.logger.Info("Record access granted", "employee", employeeID, "tx", txID, "by", grantor.EmployeeID)

	body := fmt.Sprintf("Dear %s,\n\nYour request to read %s (%s) has been approved until %s.\n",
		emp.Name, req.ProductName, req.ProductID, req.ExpiresAt.Format("2006-01-02"))
	notify.Dispatch(ctx, s.notifier, s.logger, emp.Email, "Access Request Approved", body)
	return req, nil
}

// DenyRecord marks a filed request denied and keeps it.
func (s *Service) DenyRecord(ctx context.Context, grantor models.Identity, employeeID, txID string) (*models.ProductionAccessRequest, error) {
	if err := canGrantRecord(grantor); err != nil {
		return nil, err
	}
	req, emp, err := s.loadRecordRequest(ctx, employeeID, txID)
	if err != nil {
		return nil, err
	}
	req.RequestStatus = models.GrantDenied
	if err := s.repo.SaveRecordRequest(ctx, req); err != nil {
		return nil, err
	}
	s.logger.Info("Record access denied", "employee", employeeID, "tx", txID, "by", grantor.EmployeeID)

	body := fmt.Sprintf("Dear %s,\n\nYour request to read %s (%s) has been denied.\n", emp.Name, req.ProductName, req.ProductID)
	notify.Dispatch(ctx, s.notifier, s.logger, emp.Email, "Access Request Denied", body)
	return req, nil
}

func (s *Service) loadRecordRequest(ctx context.Context, employeeID, txID string) (*models.ProductionAccessRequest, *models.Employee, error) {
	emp, err := s.repo.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, nil, err
	}
	req, err := s.repo.GetRecordRequest(ctx, employeeID, txID)
	if err != nil {
		return nil, nil, err
	}
	if req == nil {
		return nil, nil, apperr.NotFound("No access request for transaction %s", txID)
	}
	return req, emp, nil
}

// CheckRecord returns the authorizing request for (employeeID, txID) or
// fails with NO_ACTIVE_ACCESS.
func (s *Service) CheckRecord(ctx context.Context, employeeID, txID string) (*models.ProductionAccessRequest, error) {
	req, err := s.repo.GetRecordRequest(ctx, employeeID, txID)
	if err != nil {
		return nil, err
	}
	if req == nil || !authorizes(req.RequestStatus, req.ExpiresAt, s.now()) {
		return nil, apperr.New(apperr.CodeNoActiveAccess, "You do not have access to this record")
	}
	return req, nil
}

// ListRecordRequests lists per record requests, newest first. Lapsed
// grants are reported as expired.
func (s *Service) ListRecordRequests(ctx context.Context, employeeID, status string) ([]models.ProductionAccessRequest, error) {
	reqs, err := s.repo.ListRecordRequests(ctx, employeeID, status)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range reqs {
		reqs[i].RequestStatus = EffectiveStatus(reqs[i].RequestStatus, reqs[i].ExpiresAt, now)
	}
	return reqs, nil
}

// Statuses maps transaction ids to the caller's request status.
type Statuses map[string]string

// For returns the status for txID, or NoRequest.
func (s Statuses) For(txID string) string {
	if status, ok := s[txID]; ok {
		return status
	}
	return NoRequest
}

// StatusFor collects the request status of every record employeeID asked
// for, used to annotate record listings.
func (s *Service) StatusFor(ctx context.Context, employeeID string) (Statuses, error) {
	reqs, err := s.ListRecordRequests(ctx, employeeID, "")
	if err != nil {
		return nil, err
	}
	out := make(Statuses, len(reqs))
	for _, r := range reqs {
		out[r.TransactionID] = r.RequestStatus
	}
	return out, nil
}
