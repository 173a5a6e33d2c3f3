package approval

import (
	"testing"

	"github.com/google/uuid"

	"github.com/hospital/backoffice/internal/domain/identity"
)

func TestDocument_CanEdit(t *testing.T) {
	author := &identity.User{ID: uuid.New(), Role: identity.RoleEmployee}
	other := &identity.User{ID: uuid.New(), Role: identity.RoleEmployee}
	admin := &identity.User{ID: uuid.New(), Role: identity.RoleAdmin}

	doc := &Document{AuthorID: author.ID, Status: StatusDraft}
	if !doc.CanEdit(author) {
		t.Error("author should edit own draft")
	}
	if doc.CanEdit(other) {
		t.Error("non-author should not edit")
	}
	if !doc.CanEdit(admin) {
		t.Error("admin should edit anything")
	}

	doc.Status = StatusPending
	if doc.CanEdit(author) {
		t.Error("author should not edit pending document")
	}
	if !doc.CanEdit(admin) {
		t.Error("admin should still edit pending document")
	}
}

func TestDocument_CanView(t *testing.T) {
	author := &identity.User{ID: uuid.New(), Role: identity.RoleEmployee}
	approver := &identity.User{ID: uuid.New(), Role: identity.RoleEmployee}
	stranger := &identity.User{ID: uuid.New(), Role: identity.RoleEmployee}

	doc := &Document{AuthorID: author.ID, SecurityLevel: SecuritySecret}
	chain := []*Approval{{ApproverID: approver.ID}}

	if !doc.CanView(author, chain) {
		t.Error("author should view")
	}
	if !doc.CanView(approver, chain) {
		t.Error("approver should view")
	}
	if doc.CanView(stranger, chain) {
		t.Error("stranger should not view")
	}
}

func TestApproval_CanApprove(t *testing.T) {
	approver := &identity.User{ID: uuid.New(), Role: identity.RoleEmployee}
	other := &identity.User{ID: uuid.New(), Role: identity.RoleEmployee}

	a := &Approval{ApproverID: approver.ID, Status: ApprovalPending}
	if !a.CanApprove(approver) {
		t.Error("assigned approver should approve pending step")
	}
	if a.CanApprove(other) {
		t.Error("other user should not approve")
	}

	a.Status = ApprovalApproved
	if a.CanApprove(approver) {
		t.Error("acted step should not be approvable again")
	}
}

func TestProgress(t *testing.T) {
	tests := []struct {
		name  string
		chain []*Approval
		want  int
	}{
		{"empty", nil, 0},
		{"none acted", []*Approval{{Status: ApprovalPending}, {Status: ApprovalPending}}, 0},
		{"half acted", []*Approval{{Status: ApprovalApproved}, {Status: ApprovalPending}}, 50},
		{"all acted", []*Approval{{Status: ApprovalApproved}, {Status: ApprovalRejected}}, 100},
		{"skipped counts", []*Approval{{Status: ApprovalSkipped}, {Status: ApprovalPending}, {Status: ApprovalPending}}, 33},
		{"two thirds", []*Approval{{Status: ApprovalApproved}, {Status: ApprovalApproved}, {Status: ApprovalPending}}, 67},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Progress(tt.chain); got != tt.want {
				t.Errorf("Progress() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSecurityLevel_String(t *testing.T) {
	if SecurityNormal.String() != "normal" || SecurityTopSecret.String() != "top_secret" {
		t.Error("unexpected security level names")
	}
	if SecurityLevel(9).String() != "unknown" {
		t.Error("out of range level should be unknown")
	}
}

func TestDocumentType_Valid(t *testing.T) {
	if !TypeLeaveRequest.Valid() {
		t.Error("leave_request should be valid")
	}
	if DocumentType("memo").Valid() {
		t.Error("memo should be invalid")
	}
}

func TestDocumentStatus_Valid(t *testing.T) {
	if !StatusCancelled.Valid() {
		t.Error("cancelled should be valid")
	}
	if DocumentStatus("archived").Valid() {
		t.Error("archived should be invalid")
	}
}
