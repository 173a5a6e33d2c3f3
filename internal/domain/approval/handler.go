package approval

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospital/backoffice/internal/platform/auth"
	"github.com/hospital/backoffice/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/documents", h.CreateDocument)
	api.GET("/documents", h.ListDocuments)
	api.GET("/documents/:id", h.GetDocument)
	api.PUT("/documents/:id", h.UpdateDocument)
	api.DELETE("/documents/:id", h.DeleteDocument)

	api.POST("/documents/:id/approval-request", h.RequestApproval)
	api.POST("/documents/:id/approvals/:approvalID/approve", h.Approve)
	api.POST("/documents/:id/approvals/:approvalID/reject", h.Reject)
	api.POST("/documents/:id/approvals/:approvalID/delegate", h.Delegate)
	api.POST("/documents/:id/cancel", h.Cancel)
	api.POST("/documents/:id/recall", h.Recall)
	api.GET("/documents/:id/approvals", h.ListApprovals)

	// Workflow templates are admin-only.
	admin := api.Group("", auth.RequireRole("admin"))
	admin.POST("/workflows", h.CreateWorkflow)
	admin.GET("/workflows", h.ListWorkflows)
	admin.GET("/workflows/:id", h.GetWorkflow)
	admin.DELETE("/workflows/:id", h.DeleteWorkflow)
}

// httpError translates domain sentinel errors into HTTP status codes.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrNoApprovers):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}

func callerID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "unknown caller identity")
	}
	return id, nil
}

func pathID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// -- Document handlers --

type documentRequest struct {
	Title         string        `json:"title"`
	Content       string        `json:"content"`
	DocumentType  DocumentType  `json:"document_type"`
	Department    string        `json:"department"`
	SecurityLevel SecurityLevel `json:"security_level"`
}

func (h *Handler) CreateDocument(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	var req documentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	doc := &Document{
		Title:         req.Title,
		Content:       req.Content,
		DocumentType:  req.DocumentType,
		Department:    req.Department,
		SecurityLevel: req.SecurityLevel,
	}
	if err := h.svc.CreateDocument(c.Request().Context(), caller, doc); err != nil {
		if errors.Is(err, ErrForbidden) || errors.Is(err, ErrNotFound) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, doc)
}

func (h *Handler) GetDocument(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	doc, err := h.svc.GetDocument(c.Request().Context(), id, caller)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

// ListDocuments returns the caller's own documents, or with ?inbox=true the
// pending documents waiting on the caller.
func (h *Handler) ListDocuments(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)

	var (
		items []*Document
		total int
	)
	if c.QueryParam("inbox") == "true" {
		items, total, err = h.svc.ListPendingForApprover(c.Request().Context(), caller, pg.Limit, pg.Offset)
	} else {
		items, total, err = h.svc.ListMyDocuments(c.Request().Context(), caller, pg.Limit, pg.Offset)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateDocument(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req documentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	doc, err := h.svc.UpdateDocument(c.Request().Context(), id, caller, DocumentUpdate{
		Title:         req.Title,
		Content:       req.Content,
		DocumentType:  req.DocumentType,
		Department:    req.Department,
		SecurityLevel: req.SecurityLevel,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrInvalidState) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) DeleteDocument(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDocument(c.Request().Context(), id, caller); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Approval flow handlers --

type approvalRequestBody struct {
	ApproverIDs []uuid.UUID `json:"approver_ids"`
	WorkflowID  *uuid.UUID  `json:"workflow_id"`
}

func (h *Handler) RequestApproval(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var req approvalRequestBody
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var doc *Document
	if req.WorkflowID != nil {
		doc, err = h.svc.RequestApprovalFromWorkflow(c.Request().Context(), id, caller, *req.WorkflowID)
	} else {
		doc, err = h.svc.RequestApproval(c.Request().Context(), id, caller, req.ApproverIDs)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

type actionBody struct {
	Comment string `json:"comment"`
	Reason  string `json:"reason"`
}

func (h *Handler) Approve(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	docID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	approvalID, err := pathID(c, "approvalID")
	if err != nil {
		return err
	}
	var body actionBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Approve(c.Request().Context(), docID, approvalID, caller, body.Comment)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Reject(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	docID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	approvalID, err := pathID(c, "approvalID")
	if err != nil {
		return err
	}
	var body actionBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Reject(c.Request().Context(), docID, approvalID, caller, body.Reason)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, res)
}

type delegateBody struct {
	ApproverID uuid.UUID `json:"approver_id"`
}

func (h *Handler) Delegate(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	docID, err := pathID(c, "id")
	if err != nil {
		return err
	}
	approvalID, err := pathID(c, "approvalID")
	if err != nil {
		return err
	}
	var body delegateBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if body.ApproverID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "approver_id is required")
	}
	a, err := h.svc.Delegate(c.Request().Context(), docID, approvalID, caller, body.ApproverID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Cancel(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	doc, err := h.svc.Cancel(c.Request().Context(), id, caller)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) Recall(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	doc, err := h.svc.Recall(c.Request().Context(), id, caller)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) ListApprovals(c echo.Context) error {
	caller, err := callerID(c)
	if err != nil {
		return err
	}
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	chain, err := h.svc.ListApprovals(c.Request().Context(), id, caller)
	if err != nil {
		return httpError(err)
	}
	res := map[string]interface{}{
		"approvals": chain,
		"progress":  Progress(chain),
	}
	cur, err := h.svc.CurrentApprover(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if cur != nil {
		res["current_approver"] = User{ID: cur.ID, Name: cur.Name}
	}
	return c.JSON(http.StatusOK, res)
}

// -- Workflow handlers --

func (h *Handler) CreateWorkflow(c echo.Context) error {
	var wf Workflow
	if err := c.Bind(&wf); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateWorkflow(c.Request().Context(), &wf); err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoApprovers) {
			return httpError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, wf)
}

func (h *Handler) GetWorkflow(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	wf, err := h.svc.GetWorkflow(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, wf)
}

func (h *Handler) ListWorkflows(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListWorkflows(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteWorkflow(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteWorkflow(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
