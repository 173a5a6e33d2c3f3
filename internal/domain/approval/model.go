package approval

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/backoffice/internal/domain/identity"
)

// DocumentStatus is the lifecycle state of a document.
type DocumentStatus string

const (
	StatusDraft     DocumentStatus = "draft"
	StatusPending   DocumentStatus = "pending"
	StatusApproved  DocumentStatus = "approved"
	StatusRejected  DocumentStatus = "rejected"
	StatusCancelled DocumentStatus = "cancelled"
)

func (s DocumentStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// ApprovalStatus is the state of a single step in a document's approval chain.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalSkipped  ApprovalStatus = "skipped"
)

// DocumentType classifies what a document requests.
type DocumentType string

const (
	TypeLeaveRequest    DocumentType = "leave_request"
	TypePurchaseRequest DocumentType = "purchase_request"
	TypeExpenseReport   DocumentType = "expense_report"
	TypeOvertimeRequest DocumentType = "overtime_request"
	TypeBusinessTrip    DocumentType = "business_trip"
	TypeBudgetProposal  DocumentType = "budget_proposal"
	TypePersonnelChange DocumentType = "personnel_change"
	TypeFacilityRequest DocumentType = "facility_request"
	TypeGeneral         DocumentType = "general"
)

func (t DocumentType) Valid() bool {
	switch t {
	case TypeLeaveRequest, TypePurchaseRequest, TypeExpenseReport, TypeOvertimeRequest,
		TypeBusinessTrip, TypeBudgetProposal, TypePersonnelChange, TypeFacilityRequest, TypeGeneral:
		return true
	}
	return false
}

// SecurityLevel restricts who may read a document. Higher is more sensitive.
type SecurityLevel int

const (
	SecurityNormal       SecurityLevel = 1
	SecurityConfidential SecurityLevel = 2
	SecuritySecret       SecurityLevel = 3
	SecurityTopSecret    SecurityLevel = 4
)

func (l SecurityLevel) Valid() bool {
	return l >= SecurityNormal && l <= SecurityTopSecret
}

func (l SecurityLevel) String() string {
	switch l {
	case SecurityNormal:
		return "normal"
	case SecurityConfidential:
		return "confidential"
	case SecuritySecret:
		return "secret"
	case SecurityTopSecret:
		return "top_secret"
	}
	return "unknown"
}

// Document is a back-office request that moves through an approval chain.
type Document struct {
	ID            uuid.UUID      `json:"id"`
	Title         string         `json:"title"`
	Content       string         `json:"content"`
	DocumentType  DocumentType   `json:"document_type"`
	Department    string         `json:"department,omitempty"`
	Status        DocumentStatus `json:"status"`
	SecurityLevel SecurityLevel  `json:"security_level"`
	AuthorID      uuid.UUID      `json:"author_id"`
	Version       int            `json:"version"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// CanEdit reports whether u may modify the document. Only the author of a
// draft may edit it; admins may always edit.
func (d *Document) CanEdit(u *identity.User) bool {
	if u.IsAdmin() {
		return true
	}
	return d.AuthorID == u.ID && d.Status == StatusDraft
}

// CanView reports whether u may read the document. Admins, the author, and
// anyone on the approval chain may view it regardless of security level.
func (d *Document) CanView(u *identity.User, approvals []*Approval) bool {
	if u.IsAdmin() || d.AuthorID == u.ID {
		return true
	}
	for _, a := range approvals {
		if a.ApproverID == u.ID {
			return true
		}
	}
	return false
}

// Approval is one step in a document's approval chain. OrderIndex fixes the
// position of the step; steps act strictly in order.
type Approval struct {
	ID         uuid.UUID      `json:"id"`
	DocumentID uuid.UUID      `json:"document_id"`
	ApproverID uuid.UUID      `json:"approver_id"`
	OrderIndex int            `json:"order_index"`
	Status     ApprovalStatus `json:"status"`
	Comment    string         `json:"comment,omitempty"`
	ApprovedAt *time.Time     `json:"approved_at,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// CanApprove reports whether u may act on this step: u must be the assigned
// approver and the step must still be pending.
func (a *Approval) CanApprove(u *identity.User) bool {
	return a.ApproverID == u.ID && a.Status == ApprovalPending
}

// Workflow is a reusable approval chain template for a document type.
type Workflow struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	Department   string         `json:"department,omitempty"`
	DocumentType DocumentType   `json:"document_type"`
	Steps        []WorkflowStep `json:"steps"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// WorkflowStep names the approver occupying one position of a workflow.
type WorkflowStep struct {
	ID         uuid.UUID `json:"id"`
	WorkflowID uuid.UUID `json:"workflow_id"`
	ApproverID uuid.UUID `json:"approver_id"`
	OrderIndex int       `json:"order_index"`
}

// Progress returns the percentage of the chain that has been acted on
// (anything no longer pending counts), rounded to the nearest integer.
// An empty chain is 0.
func Progress(approvals []*Approval) int {
	if len(approvals) == 0 {
		return 0
	}
	acted := 0
	for _, a := range approvals {
		if a.Status != ApprovalPending {
			acted++
		}
	}
	return int(math.Round(100 * float64(acted) / float64(len(approvals))))
}
