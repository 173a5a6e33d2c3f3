package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/backoffice/internal/domain/identity"
	"github.com/hospital/backoffice/internal/platform/db"
)

// DefaultRejectReason is recorded when a rejection arrives without a comment.
const DefaultRejectReason = "no reason given"

// Service implements the document approval workflow.
type Service struct {
	docs      DocumentRepository
	approvals ApprovalRepository
	workflows WorkflowRepository
	users     identity.UserRepository
	tx        db.TxRunner
}

func NewService(docs DocumentRepository, approvals ApprovalRepository, workflows WorkflowRepository, users identity.UserRepository, tx db.TxRunner) *Service {
	return &Service{docs: docs, approvals: approvals, workflows: workflows, users: users, tx: tx}
}

// ActionResult reports the outcome of an approve or reject step.
type ActionResult struct {
	Document     *Document `json:"document"`
	Progress     int       `json:"progress"`
	NextApprover *User     `json:"next_approver,omitempty"`
}

// User is the slim approver view embedded in responses.
type User struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func (s *Service) caller(ctx context.Context, callerID uuid.UUID) (*identity.User, error) {
	u, err := s.users.GetByID(ctx, callerID)
	if errors.Is(err, identity.ErrNotFound) {
		// Authenticated but no employee record; nothing is permitted.
		return nil, ErrForbidden
	}
	return u, err
}

// =========== Documents ===========

func (s *Service) CreateDocument(ctx context.Context, callerID uuid.UUID, d *Document) error {
	if _, err := s.caller(ctx, callerID); err != nil {
		return err
	}
	if strings.TrimSpace(d.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if d.DocumentType == "" {
		d.DocumentType = TypeGeneral
	}
	if !d.DocumentType.Valid() {
		return fmt.Errorf("invalid document type: %s", d.DocumentType)
	}
	if d.SecurityLevel == 0 {
		d.SecurityLevel = SecurityNormal
	}
	if !d.SecurityLevel.Valid() {
		return fmt.Errorf("invalid security level: %d", d.SecurityLevel)
	}
	d.AuthorID = callerID
	d.Status = StatusDraft
	d.Version = 1
	return s.docs.Create(ctx, d)
}

func (s *Service) GetDocument(ctx context.Context, id, callerID uuid.UUID) (*Document, error) {
	u, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	chain, err := s.approvals.ListByDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.CanView(u, chain) {
		return nil, ErrForbidden
	}
	return doc, nil
}

// DocumentUpdate carries the editable fields of a document. Zero-valued
// type and security level mean "leave unchanged".
type DocumentUpdate struct {
	Title         string
	Content       string
	DocumentType  DocumentType
	Department    string
	SecurityLevel SecurityLevel
}

func (s *Service) UpdateDocument(ctx context.Context, id, callerID uuid.UUID, upd DocumentUpdate) (*Document, error) {
	u, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !doc.CanEdit(u) {
		if doc.Status != StatusDraft && (doc.AuthorID == u.ID || u.IsAdmin()) {
			return nil, ErrInvalidState
		}
		return nil, ErrForbidden
	}
	if strings.TrimSpace(upd.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}
	if upd.DocumentType != "" && !upd.DocumentType.Valid() {
		return nil, fmt.Errorf("invalid document type: %s", upd.DocumentType)
	}
	if upd.SecurityLevel != 0 && !upd.SecurityLevel.Valid() {
		return nil, fmt.Errorf("invalid security level: %d", upd.SecurityLevel)
	}
	doc.Title = upd.Title
	doc.Content = upd.Content
	doc.Department = upd.Department
	if upd.DocumentType != "" {
		doc.DocumentType = upd.DocumentType
	}
	if upd.SecurityLevel != 0 {
		doc.SecurityLevel = upd.SecurityLevel
	}
	doc.Version++
	if err := s.docs.Update(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *Service) DeleteDocument(ctx context.Context, id, callerID uuid.UUID) error {
	u, err := s.caller(ctx, callerID)
	if err != nil {
		return err
	}
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if doc.AuthorID != u.ID && !u.IsAdmin() {
		return ErrForbidden
	}
	if doc.Status != StatusDraft {
		return ErrInvalidState
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.approvals.DeleteByDocument(ctx, id); err != nil {
			return err
		}
		return s.docs.Delete(ctx, id)
	})
}

func (s *Service) ListMyDocuments(ctx context.Context, callerID uuid.UUID, limit, offset int) ([]*Document, int, error) {
	return s.docs.ListByAuthor(ctx, callerID, limit, offset)
}

func (s *Service) ListPendingForApprover(ctx context.Context, callerID uuid.UUID, limit, offset int) ([]*Document, int, error) {
	return s.docs.ListPendingForApprover(ctx, callerID, limit, offset)
}

// =========== Approval flow ===========

// RequestApproval submits a draft for approval. When approverIDs is empty the
// workflow registered for the document type supplies the chain; if neither
// names an approver the request fails with ErrNoApprovers.
func (s *Service) RequestApproval(ctx context.Context, docID, callerID uuid.UUID, approverIDs []uuid.UUID) (*Document, error) {
	u, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.AuthorID != u.ID && !u.IsAdmin() {
		return nil, ErrForbidden
	}
	if doc.Status != StatusDraft {
		return nil, ErrInvalidState
	}

	if len(approverIDs) == 0 {
		wf, err := s.workflows.GetByDocumentType(ctx, doc.DocumentType)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		if wf != nil {
			for _, step := range wf.Steps {
				approverIDs = append(approverIDs, step.ApproverID)
			}
		}
	}
	if len(approverIDs) == 0 {
		return nil, ErrNoApprovers
	}

	// Every approver must exist before anything is written.
	for _, id := range approverIDs {
		if _, err := s.users.GetByID(ctx, id); err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				return nil, fmt.Errorf("approver %s: %w", id, ErrNotFound)
			}
			return nil, err
		}
	}

	chain := make([]*Approval, len(approverIDs))
	for i, id := range approverIDs {
		chain[i] = &Approval{
			DocumentID: docID,
			ApproverID: id,
			OrderIndex: i,
			Status:     ApprovalPending,
		}
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.approvals.CreateBatch(ctx, chain); err != nil {
			return err
		}
		return s.docs.UpdateStatus(ctx, docID, StatusPending)
	})
	if err != nil {
		return nil, err
	}
	doc.Status = StatusPending
	return doc, nil
}

// RequestApprovalFromWorkflow submits a draft using a named workflow
// template's approver list instead of an explicit one.
func (s *Service) RequestApprovalFromWorkflow(ctx context.Context, docID, callerID, workflowID uuid.UUID) (*Document, error) {
	wf, err := s.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	approverIDs := make([]uuid.UUID, 0, len(wf.Steps))
	for _, step := range wf.Steps {
		approverIDs = append(approverIDs, step.ApproverID)
	}
	return s.RequestApproval(ctx, docID, callerID, approverIDs)
}

// Approve records the caller's approval on one chain step. When the last
// pending step approves, the document itself becomes approved.
func (s *Service) Approve(ctx context.Context, docID, approvalID, callerID uuid.UUID, comment string) (*ActionResult, error) {
	u, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	a, err := s.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if a.DocumentID != docID {
		return nil, ErrNotFound
	}
	// can_approve is evaluated fresh on every attempt; it is false as soon
	// as the step leaves pending, even for the right approver.
	if !a.CanApprove(u) {
		return nil, ErrForbidden
	}
	if doc.Status != StatusPending {
		return nil, ErrInvalidState
	}

	res := &ActionResult{Document: doc}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		now := time.Now()
		a.Status = ApprovalApproved
		a.Comment = comment
		a.ApprovedAt = &now
		if err := s.approvals.Update(ctx, a); err != nil {
			return err
		}

		// The chain is complete only when no pending step remains anywhere.
		// Approvers may act out of order, so scanning from the approved
		// step's index onward could miss an earlier still-pending step and
		// approve the document prematurely.
		next, err := s.approvals.NextPending(ctx, docID, -1)
		if err != nil {
			return err
		}
		if next == nil {
			if err := s.docs.UpdateStatus(ctx, docID, StatusApproved); err != nil {
				return err
			}
			doc.Status = StatusApproved
		} else {
			approver, err := s.users.GetByID(ctx, next.ApproverID)
			if err != nil {
				return err
			}
			res.NextApprover = &User{ID: approver.ID, Name: approver.Name}
		}

		chain, err := s.approvals.ListByDocument(ctx, docID)
		if err != nil {
			return err
		}
		res.Progress = Progress(chain)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Reject records a rejection. A single rejection fails the whole document.
func (s *Service) Reject(ctx context.Context, docID, approvalID, callerID uuid.UUID, reason string) (*ActionResult, error) {
	u, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	a, err := s.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if a.DocumentID != docID {
		return nil, ErrNotFound
	}
	if !a.CanApprove(u) {
		return nil, ErrForbidden
	}
	if doc.Status != StatusPending {
		return nil, ErrInvalidState
	}
	if strings.TrimSpace(reason) == "" {
		reason = DefaultRejectReason
	}

	res := &ActionResult{Document: doc}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		now := time.Now()
		a.Status = ApprovalRejected
		a.Comment = reason
		a.ApprovedAt = &now
		if err := s.approvals.Update(ctx, a); err != nil {
			return err
		}
		// Other steps are left untouched; the rejection alone sinks the document.
		if err := s.docs.UpdateStatus(ctx, docID, StatusRejected); err != nil {
			return err
		}
		doc.Status = StatusRejected

		chain, err := s.approvals.ListByDocument(ctx, docID)
		if err != nil {
			return err
		}
		res.Progress = Progress(chain)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Cancel withdraws a pending document. Remaining chain steps are skipped so
// the chain keeps its audit trail.
func (s *Service) Cancel(ctx context.Context, docID, callerID uuid.UUID) (*Document, error) {
	u, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.AuthorID != u.ID && !u.IsAdmin() {
		return nil, ErrForbidden
	}
	if doc.Status != StatusPending {
		return nil, ErrInvalidState
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.approvals.SkipPending(ctx, docID); err != nil {
			return err
		}
		return s.docs.UpdateStatus(ctx, docID, StatusCancelled)
	})
	if err != nil {
		return nil, err
	}
	doc.Status = StatusCancelled
	return doc, nil
}

// Recall pulls a pending document back to draft for editing. It is only
// possible while nobody has acted; once any step approved, rejected, or was
// skipped the chain is history and the document cannot be recalled.
func (s *Service) Recall(ctx context.Context, docID, callerID uuid.UUID) (*Document, error) {
	u, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.AuthorID != u.ID && !u.IsAdmin() {
		return nil, ErrForbidden
	}
	if doc.Status != StatusPending {
		return nil, ErrInvalidState
	}
	acted, err := s.approvals.CountActed(ctx, docID)
	if err != nil {
		return nil, err
	}
	if acted > 0 {
		return nil, ErrInvalidState
	}
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.approvals.DeleteByDocument(ctx, docID); err != nil {
			return err
		}
		return s.docs.UpdateStatus(ctx, docID, StatusDraft)
	})
	if err != nil {
		return nil, err
	}
	doc.Status = StatusDraft
	return doc, nil
}

// Delegate hands the caller's pending step to another employee. The swap is
// recorded in the step's comment so the chain stays auditable.
func (s *Service) Delegate(ctx context.Context, docID, approvalID, callerID, newApproverID uuid.UUID) (*Approval, error) {
	u, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	a, err := s.approvals.GetByID(ctx, approvalID)
	if err != nil {
		return nil, err
	}
	if a.DocumentID != docID {
		return nil, ErrNotFound
	}
	if !a.CanApprove(u) {
		return nil, ErrForbidden
	}
	if doc.Status != StatusPending {
		return nil, ErrInvalidState
	}
	target, err := s.users.GetByID(ctx, newApproverID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	note := fmt.Sprintf("delegated from %s to %s by %s", u.Name, target.Name, u.Name)
	if a.Comment != "" {
		note = a.Comment + "; " + note
	}
	a.ApproverID = target.ID
	a.Comment = note
	if err := s.approvals.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListApprovals returns the document's chain in order.
func (s *Service) ListApprovals(ctx context.Context, docID, callerID uuid.UUID) ([]*Approval, error) {
	u, err := s.caller(ctx, callerID)
	if err != nil {
		return nil, err
	}
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	chain, err := s.approvals.ListByDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	if !doc.CanView(u, chain) {
		return nil, ErrForbidden
	}
	return chain, nil
}

// CurrentApprover returns whose turn it is, or nil when the chain is done or
// the document is not pending.
func (s *Service) CurrentApprover(ctx context.Context, docID uuid.UUID) (*identity.User, error) {
	doc, err := s.docs.GetByID(ctx, docID)
	if err != nil {
		return nil, err
	}
	if doc.Status != StatusPending {
		return nil, nil
	}
	next, err := s.approvals.NextPending(ctx, docID, -1)
	if err != nil || next == nil {
		return nil, err
	}
	return s.users.GetByID(ctx, next.ApproverID)
}

// DocumentProgress reports how far the chain has advanced.
func (s *Service) DocumentProgress(ctx context.Context, docID uuid.UUID) (int, error) {
	chain, err := s.approvals.ListByDocument(ctx, docID)
	if err != nil {
		return 0, err
	}
	return Progress(chain), nil
}

// =========== Workflows ===========

func (s *Service) CreateWorkflow(ctx context.Context, w *Workflow) error {
	if strings.TrimSpace(w.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if !w.DocumentType.Valid() {
		return fmt.Errorf("invalid document type: %s", w.DocumentType)
	}
	if len(w.Steps) == 0 {
		return ErrNoApprovers
	}
	for i := range w.Steps {
		if _, err := s.users.GetByID(ctx, w.Steps[i].ApproverID); err != nil {
			if errors.Is(err, identity.ErrNotFound) {
				return fmt.Errorf("approver %s: %w", w.Steps[i].ApproverID, ErrNotFound)
			}
			return err
		}
		w.Steps[i].OrderIndex = i
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.workflows.Create(ctx, w)
	})
}

func (s *Service) GetWorkflow(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	return s.workflows.GetByID(ctx, id)
}

func (s *Service) ListWorkflows(ctx context.Context, limit, offset int) ([]*Workflow, int, error) {
	return s.workflows.List(ctx, limit, offset)
}

func (s *Service) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	if _, err := s.workflows.GetByID(ctx, id); err != nil {
		return err
	}
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		return s.workflows.Delete(ctx, id)
	})
}
