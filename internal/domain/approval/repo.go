package approval

import (
	"context"

	"github.com/google/uuid"
)

// DocumentRepository persists documents.
type DocumentRepository interface {
	Create(ctx context.Context, d *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	Update(ctx context.Context, d *Document) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByAuthor(ctx context.Context, authorID uuid.UUID, limit, offset int) ([]*Document, int, error)
	ListPendingForApprover(ctx context.Context, approverID uuid.UUID, limit, offset int) ([]*Document, int, error)
}

// ApprovalRepository persists approval chain steps.
type ApprovalRepository interface {
	CreateBatch(ctx context.Context, approvals []*Approval) error
	GetByID(ctx context.Context, id uuid.UUID) (*Approval, error)
	// ListByDocument returns the full chain ordered by position.
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*Approval, error)
	Update(ctx context.Context, a *Approval) error
	// NextPending returns the pending step with the lowest order index
	// strictly after afterIndex, or nil when none remains.
	NextPending(ctx context.Context, documentID uuid.UUID, afterIndex int) (*Approval, error)
	// SkipPending marks every still-pending step of the document as skipped.
	SkipPending(ctx context.Context, documentID uuid.UUID) error
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) error
	// CountActed counts steps that are no longer pending.
	CountActed(ctx context.Context, documentID uuid.UUID) (int, error)
}

// WorkflowRepository persists approval chain templates.
type WorkflowRepository interface {
	Create(ctx context.Context, w *Workflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*Workflow, error)
	GetByDocumentType(ctx context.Context, docType DocumentType) (*Workflow, error)
	List(ctx context.Context, limit, offset int) ([]*Workflow, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
