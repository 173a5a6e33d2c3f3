package approval

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospital/backoffice/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Document Repository ===========

type documentRepoPG struct{ pool *pgxpool.Pool }

func NewDocumentRepoPG(pool *pgxpool.Pool) DocumentRepository { return &documentRepoPG{pool: pool} }

func (r *documentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const documentCols = `id, title, content, document_type, department, status, security_level,
	author_id, version, created_at, updated_at`

func (r *documentRepoPG) scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.Title, &d.Content, &d.DocumentType, &d.Department, &d.Status, &d.SecurityLevel,
		&d.AuthorID, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &d, err
}

func (r *documentRepoPG) Create(ctx context.Context, d *Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO document (id, title, content, document_type, department, status, security_level, author_id, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		d.ID, d.Title, d.Content, d.DocumentType, d.Department, d.Status, d.SecurityLevel, d.AuthorID, d.Version)
	return err
}

func (r *documentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	return r.scanDocument(r.conn(ctx).QueryRow(ctx, `SELECT `+documentCols+` FROM document WHERE id = $1`, id))
}

func (r *documentRepoPG) Update(ctx context.Context, d *Document) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE document SET title=$2, content=$3, document_type=$4, department=$5, status=$6,
			security_level=$7, version=$8, updated_at=NOW()
		WHERE id = $1`,
		d.ID, d.Title, d.Content, d.DocumentType, d.Department, d.Status, d.SecurityLevel, d.Version)
	return err
}

func (r *documentRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE document SET status=$2, updated_at=NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *documentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM document WHERE id = $1`, id)
	return err
}

func (r *documentRepoPG) ListByAuthor(ctx context.Context, authorID uuid.UUID, limit, offset int) ([]*Document, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM document WHERE author_id = $1`, authorID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+documentCols+` FROM document WHERE author_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, authorID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Document
	for rows.Next() {
		d, err := r.scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}

func (r *documentRepoPG) ListPendingForApprover(ctx context.Context, approverID uuid.UUID, limit, offset int) ([]*Document, int, error) {
	// A document is in someone's inbox when its chain has reached that
	// person: their step is pending and no earlier step is still pending.
	const where = `FROM document d
		JOIN approval a ON a.document_id = d.id
		WHERE d.status = 'pending'
		  AND a.approver_id = $1 AND a.status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM approval b
			WHERE b.document_id = d.id AND b.status = 'pending' AND b.order_index < a.order_index)`

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) `+where, approverID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+documentColsPrefixed("d")+` `+where+` ORDER BY d.created_at DESC LIMIT $2 OFFSET $3`, approverID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Document
	for rows.Next() {
		d, err := r.scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, nil
}

func documentColsPrefixed(alias string) string {
	return alias + `.id, ` + alias + `.title, ` + alias + `.content, ` + alias + `.document_type, ` +
		alias + `.department, ` + alias + `.status, ` + alias + `.security_level, ` + alias + `.author_id, ` +
		alias + `.version, ` + alias + `.created_at, ` + alias + `.updated_at`
}

// =========== Approval Repository ===========

type approvalRepoPG struct{ pool *pgxpool.Pool }

func NewApprovalRepoPG(pool *pgxpool.Pool) ApprovalRepository { return &approvalRepoPG{pool: pool} }

func (r *approvalRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const approvalCols = `id, document_id, approver_id, order_index, status, comment, approved_at, created_at, updated_at`

func (r *approvalRepoPG) scanApproval(row pgx.Row) (*Approval, error) {
	var a Approval
	err := row.Scan(&a.ID, &a.DocumentID, &a.ApproverID, &a.OrderIndex, &a.Status,
		&a.Comment, &a.ApprovedAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

func (r *approvalRepoPG) CreateBatch(ctx context.Context, approvals []*Approval) error {
	for _, a := range approvals {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO approval (id, document_id, approver_id, order_index, status, comment)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			a.ID, a.DocumentID, a.ApproverID, a.OrderIndex, a.Status, a.Comment)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *approvalRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Approval, error) {
	return r.scanApproval(r.conn(ctx).QueryRow(ctx, `SELECT `+approvalCols+` FROM approval WHERE id = $1`, id))
}

func (r *approvalRepoPG) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*Approval, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+approvalCols+` FROM approval WHERE document_id = $1 ORDER BY order_index, id`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Approval
	for rows.Next() {
		a, err := r.scanApproval(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, nil
}

func (r *approvalRepoPG) Update(ctx context.Context, a *Approval) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE approval SET approver_id=$2, status=$3, comment=$4, approved_at=$5, updated_at=NOW()
		WHERE id = $1`,
		a.ID, a.ApproverID, a.Status, a.Comment, a.ApprovedAt)
	return err
}

func (r *approvalRepoPG) NextPending(ctx context.Context, documentID uuid.UUID, afterIndex int) (*Approval, error) {
	a, err := r.scanApproval(r.conn(ctx).QueryRow(ctx, `
		SELECT `+approvalCols+` FROM approval
		WHERE document_id = $1 AND status = 'pending' AND order_index > $2
		ORDER BY order_index, id LIMIT 1`, documentID, afterIndex))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return a, err
}

func (r *approvalRepoPG) SkipPending(ctx context.Context, documentID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE approval SET status='skipped', updated_at=NOW()
		WHERE document_id = $1 AND status = 'pending'`, documentID)
	return err
}

func (r *approvalRepoPG) DeleteByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM approval WHERE document_id = $1`, documentID)
	return err
}

func (r *approvalRepoPG) CountActed(ctx context.Context, documentID uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM approval WHERE document_id = $1 AND status <> 'pending'`, documentID).Scan(&n)
	return n, err
}

// =========== Workflow Repository ===========

type workflowRepoPG struct{ pool *pgxpool.Pool }

func NewWorkflowRepoPG(pool *pgxpool.Pool) WorkflowRepository { return &workflowRepoPG{pool: pool} }

func (r *workflowRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const workflowCols = `id, name, department, document_type, created_at, updated_at`

func (r *workflowRepoPG) scanWorkflow(row pgx.Row) (*Workflow, error) {
	var w Workflow
	err := row.Scan(&w.ID, &w.Name, &w.Department, &w.DocumentType, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &w, err
}

func (r *workflowRepoPG) Create(ctx context.Context, w *Workflow) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO approval_workflow (id, name, department, document_type)
		VALUES ($1,$2,$3,$4)`,
		w.ID, w.Name, w.Department, w.DocumentType)
	if err != nil {
		return err
	}
	for _, s := range w.Steps {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		_, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO workflow_step (id, workflow_id, approver_id, order_index)
			VALUES ($1,$2,$3,$4)`,
			s.ID, w.ID, s.ApproverID, s.OrderIndex)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *workflowRepoPG) loadSteps(ctx context.Context, w *Workflow) error {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, workflow_id, approver_id, order_index
		FROM workflow_step WHERE workflow_id = $1 ORDER BY order_index, id`, w.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var s WorkflowStep
		if err := rows.Scan(&s.ID, &s.WorkflowID, &s.ApproverID, &s.OrderIndex); err != nil {
			return err
		}
		w.Steps = append(w.Steps, s)
	}
	return nil
}

func (r *workflowRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Workflow, error) {
	w, err := r.scanWorkflow(r.conn(ctx).QueryRow(ctx, `SELECT `+workflowCols+` FROM approval_workflow WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	if err := r.loadSteps(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (r *workflowRepoPG) GetByDocumentType(ctx context.Context, docType DocumentType) (*Workflow, error) {
	w, err := r.scanWorkflow(r.conn(ctx).QueryRow(ctx, `
		SELECT `+workflowCols+` FROM approval_workflow
		WHERE document_type = $1 ORDER BY created_at LIMIT 1`, docType))
	if err != nil {
		return nil, err
	}
	if err := r.loadSteps(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (r *workflowRepoPG) List(ctx context.Context, limit, offset int) ([]*Workflow, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM approval_workflow`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+workflowCols+` FROM approval_workflow ORDER BY name LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Workflow
	for rows.Next() {
		w, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, w)
	}
	for _, w := range items {
		if err := r.loadSteps(ctx, w); err != nil {
			return nil, 0, err
		}
	}
	return items, total, nil
}

func (r *workflowRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.conn(ctx).Exec(ctx, `DELETE FROM workflow_step WHERE workflow_id = $1`, id); err != nil {
		return err
	}
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM approval_workflow WHERE id = $1`, id)
	return err
}
