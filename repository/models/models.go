package models

import (
	"time"

	"gorm.io/datatypes"
)

// Roles recognised by the API.
const (
	RoleAdmin              = "admin"
	RoleResourceAnalyst    = "resource_analyst"
	RoleDesignSupport      = "design_support"
	RoleProductionAssembly = "production_assembly"
	RoleQualityControl     = "quality_control"
)

// Roles lists every valid role.
var Roles = []string{RoleAdmin, RoleResourceAnalyst, RoleDesignSupport, RoleProductionAssembly, RoleQualityControl}

func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Identity is the caller resolved from a bearer token.
type Identity struct {
	EmployeeID string `json:"employeeId"`
	Role       string `json:"role"`
}

// Employee statuses
const (
	EmployeePending  = "pending"
	EmployeeApproved = "approved"
	EmployeeDenied   = "denied"
)

// Employee is a registered member of staff
type Employee struct {
	ID        string    `gorm:"column:employee_id;primaryKey;type:varchar(20)" json:"employeeId"`
	Name      string    `gorm:"column:name;type:varchar(100);not null" json:"name"`
	Email     string    `gorm:"column:email;type:varchar(255);uniqueIndex;not null" json:"email"`
	Role      string    `gorm:"column:role;type:varchar(30);not null" json:"role"`
	Status    string    `gorm:"column:status;type:varchar(20);default:'pending'" json:"status"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

// Login holds the credential of an approved employee. Username is the
// employee id.
type Login struct {
	Username     string     `gorm:"column:username;primaryKey;type:varchar(20)" json:"username"`
	PasswordHash string     `gorm:"column:password_hash;type:varchar(100);not null" json:"-"`
	IsLoggedIn   bool       `gorm:"column:is_logged_in;default:false" json:"isLoggedIn"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at" json:"lastLoginAt"`
	LastLogoutAt *time.Time `gorm:"column:last_logout_at" json:"lastLogoutAt"`
}

// Access types and grant statuses
const (
	AccessNone  = "none"
	AccessRead  = "read"
	AccessWrite = "write"

	GrantPending = "pending"
	GrantActive  = "active"
	GrantExpired = "expired"
	GrantDenied  = "denied"
	// GrantApproved is only used by per-record requests.
	GrantApproved = "approved"
)

// AccessGrant authorizes an employee to read a whole subsystem.
type AccessGrant struct {
	EmployeeID string    `gorm:"column:employee_id;primaryKey;type:varchar(20)" json:"employeeId"`
	AccessType string    `gorm:"column:access_type;type:varchar(10);default:'none'" json:"accessType"`
	GrantedBy  string    `gorm:"column:granted_by;type:varchar(20);not null" json:"grantedBy"`
	GrantedAt  time.Time `gorm:"column:granted_at" json:"grantedAt"`
	ExpiresAt  time.Time `gorm:"column:expires_at;not null" json:"expiresAt"`
	Status     string    `gorm:"column:status;type:varchar(10);default:'pending'" json:"status"`
	Role       string    `gorm:"column:role;type:varchar(30)" json:"role"`
}

// ProductionAccessRequest authorizes an employee to read one ledger record.
type ProductionAccessRequest struct {
	ID            uint      `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	EmployeeID    string    `gorm:"column:employee_id;type:varchar(20);not null;uniqueIndex:idx_request_employee_tx" json:"employeeId"`
	TransactionID string    `gorm:"column:transaction_id;type:varchar(64);not null;uniqueIndex:idx_request_employee_tx" json:"transactionId"`
	ProductID     string    `gorm:"column:product_id;type:varchar(50);not null" json:"productId"`
	ProductName   string    `gorm:"column:product_name;type:varchar(255);not null" json:"productName"`
	RequestStatus string    `gorm:"column:request_status;type:varchar(10);not null" json:"requestStatus"`
	AccessType    string    `gorm:"column:access_type;type:varchar(10);default:'none'" json:"accessType"`
	GrantedBy     string    `gorm:"column:granted_by;type:varchar(20);not null" json:"grantedBy"`
	GrantedAt     time.Time `gorm:"column:granted_at" json:"grantedAt"`
	ExpiresAt     time.Time `gorm:"column:expires_at;not null" json:"expiresAt"`
}

// Production statuses
const (
	ProductionNotStarted   = "Not_Started"
	ProductionInProgress   = "In_Progress"
	ProductionQualityCheck = "Quality_Check"
	ProductionCompleted    = "Completed"
	ProductionRework       = "Rework"
)

// ProductionReport is filled in when a job is sent to quality check.
type ProductionReport struct {
	HeatInput       *float64 `json:"heatInput,omitempty"`
	WeldingStrength *float64 `json:"weldingStrength,omitempty"`
	WeldingQuality  string   `json:"weldingQuality,omitempty"`
	Recommendations string   `json:"recommendations,omitempty"`
}

// ProductionJob is the persisted row behind a workflow stage.
type ProductionJob struct {
	ID                    string                               `gorm:"column:production_id;primaryKey;type:varchar(20)" json:"productionId"`
	ProductID             string                               `gorm:"column:product_id;type:varchar(50);not null;index" json:"productId"`
	ProductionName        string                               `gorm:"column:production_name;type:varchar(255);not null" json:"productionName"`
	Status                string                               `gorm:"column:production_status;type:varchar(20);not null;index" json:"productionStatus"`
	FeasibilityScore      float64                              `gorm:"column:feasibility_score" json:"feasibilityScore"`
	StartedAt             time.Time                            `gorm:"column:started_at" json:"startedAt"`
	FinishedAt            *time.Time                           `gorm:"column:finished_at" json:"finishedAt,omitempty"`
	SentForQualityCheckAt *time.Time                           `gorm:"column:sent_for_quality_check_at" json:"sentForQualityCheckAt,omitempty"`
	Report                datatypes.JSONType[ProductionReport] `gorm:"column:production_report" json:"productionReport"`
	ReworkIssue           string                               `gorm:"column:rework_issue;type:text" json:"reworkIssue,omitempty"`
	ApprovedBy            string                               `gorm:"column:approved_by;type:varchar(20)" json:"approvedBy,omitempty"`
	ProductionEmployeeID  string                               `gorm:"column:production_employee_id;type:varchar(20);not null;index" json:"productionEmployeeId"`
	CreatedAt             time.Time                            `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt             time.Time                            `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// Quality statuses
const (
	QualityPending    = "Pending"
	QualityInProgress = "In_Progress"
	QualityApproved   = "Approved"
	QualityRework     = "Rework"
)

// TestResults are the measured properties of a produced part.
type TestResults struct {
	YoungsModulus       *float64 `json:"youngsModulus,omitempty"`
	CorrosionResistance *float64 `json:"corrosionResistance,omitempty"`
	WeightEfficiency    *float64 `json:"weightEfficiency,omitempty"`
	TensileStrength     *float64 `json:"tensileStrength,omitempty"`
}

// WeldingAssessment grades a weld. Values are enumerations:
// weldIntegrity Good|Moderate|Poor, corrosionImpact None|Minor|Severe,
// weightRetention Maintained|Slight Loss|Significant Loss.
type WeldingAssessment struct {
	WeldIntegrity   string `json:"weldIntegrity,omitempty"`
	CorrosionImpact string `json:"corrosionImpact,omitempty"`
	WeightRetention string `json:"weightRetention,omitempty"`
}

// QualityAssessment exists while a job is under quality review.
type QualityAssessment struct {
	ID                     uint                                  `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	ProductionID           string                                `gorm:"column:production_id;type:varchar(20);uniqueIndex;not null" json:"productionId"`
	ProductID              string                                `gorm:"column:product_id;type:varchar(50);not null" json:"productId"`
	ProductTransactionHash string                                `gorm:"column:product_transaction_hash;type:varchar(64)" json:"productTransactionHash"`
	ProductName            string                                `gorm:"column:product_name;type:varchar(255)" json:"productName"`
	QualityStatus          string                                `gorm:"column:quality_status;type:varchar(20);default:'Pending';index" json:"qualityStatus"`
	TestResults            datatypes.JSONType[TestResults]       `gorm:"column:test_results" json:"testResults"`
	WeldingAssessment      datatypes.JSONType[WeldingAssessment] `gorm:"column:welding_assessment" json:"weldingAssessment"`
	ApprovedBy             string                                `gorm:"column:approved_by;type:varchar(20)" json:"approvedBy,omitempty"`
	ApprovalDate           *time.Time                            `gorm:"column:approval_date" json:"approvalDate,omitempty"`
	RejectionReason        string                                `gorm:"column:rejection_reason;type:text;default:'none'" json:"rejectionReason"`
	ImprovementSuggestions string                                `gorm:"column:improvement_suggestions;type:text;default:'No comments'" json:"improvementSuggestions"`
	TestReport             string                                `gorm:"column:test_report;type:text" json:"testReport,omitempty"`
	CreatedAt              time.Time                             `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt              time.Time                             `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// WeldingIssues are the parameters recorded with a rejection.
type WeldingIssues struct {
	HeatInput               float64 `json:"heatInput"`
	ThermalConductivityRate float64 `json:"thermalConductivityRate"`
	CoolingTime             float64 `json:"coolingTime"`
	WeldingStrength         float64 `json:"weldingStrength"`
}

// RejectedProduct is an append-only audit row.
type RejectedProduct struct {
	ID                       string                            `gorm:"column:rejection_id;primaryKey;type:varchar(20)" json:"rejectionId"`
	ProductID                string                            `gorm:"column:product_id;type:varchar(50);not null" json:"productId"`
	ProductName              string                            `gorm:"column:product_name;type:varchar(255);not null" json:"productName"`
	MaterialType             string                            `gorm:"column:material_type;type:varchar(100);not null" json:"materialType"`
	RejectedAt               time.Time                         `gorm:"column:rejected_at;not null" json:"rejectedAt"`
	RejectedBy               string                            `gorm:"column:rejected_by;type:varchar(20);not null" json:"rejectedBy"`
	RejectionReason          string                            `gorm:"column:rejection_reason;type:text;not null" json:"rejectionReason"`
	ImprovementSuggestions   string                            `gorm:"column:improvement_suggestions;type:text;not null" json:"improvementSuggestions"`
	PreviousFeasibilityScore float64                           `gorm:"column:previous_feasibility_score" json:"previousFeasibilityScore"`
	WeldingIssues            datatypes.JSONType[WeldingIssues] `gorm:"column:welding_issues" json:"weldingIssues"`
	AdditionalNotes          string                            `gorm:"column:additional_notes;type:text" json:"additionalNotes"`
}

// QualityCriteria are the material thresholds configured by one analyst.
type QualityCriteria struct {
	EmployeeID                   string  `gorm:"column:employee_id;primaryKey;type:varchar(20)" json:"employeeId"`
	DensityThreshold             float64 `gorm:"column:density_threshold;not null" json:"densityThreshold"`
	FlexuralStrengthThreshold    float64 `gorm:"column:flexural_strength_threshold;not null" json:"flexuralStrengthThreshold"`
	TensileStrengthThreshold     float64 `gorm:"column:tensile_strength_threshold;not null" json:"tensileStrengthThreshold"`
	PorosityThreshold            float64 `gorm:"column:porosity_threshold;not null" json:"porosityThreshold"`
	ThermalConductivityThreshold float64 `gorm:"column:thermal_conductivity_threshold;not null" json:"thermalConductivityThreshold"`
}

// Sequence is a named counter used to mint display ids.
type Sequence struct {
	Name  string `gorm:"column:name;primaryKey;type:varchar(30)"`
	Value int64  `gorm:"column:value;not null;default:0"`
}
