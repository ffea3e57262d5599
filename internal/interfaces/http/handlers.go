package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/p2p-approval/internal/application/workflow"
	"github.com/garyjia/p2p-approval/internal/domain/entity"
	"github.com/garyjia/p2p-approval/pkg/apperr"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine    workflow.WorkflowEngine
	register  RegisterExporter
	maxUpload int64
	logger    Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine workflow.WorkflowEngine, register RegisterExporter, maxUpload int64, logger Logger) *Handlers {
	return &Handlers{
		engine:    engine,
		register:  register,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool          `json:"success"`
	Data    interface{}   `json:"data,omitempty"`
	Error   *apperr.Error `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ListRequestsQuery represents query parameters for listing requests
type ListRequestsQuery struct {
	OwnedBy string `form:"owned_by"`
	Status  string `form:"status"`
	State   string `form:"state"`
	View    string `form:"view"`
	Limit   int    `form:"limit"`
	Offset  int    `form:"offset"`
}

// DecisionRequest is the body of a level decision
type DecisionRequest struct {
	Approved *bool  `json:"approved" binding:"required"`
	Comments string `json:"comments"`
}

// FinanceApprovalRequest is the body of a finance approval
type FinanceApprovalRequest struct {
	Comments string `json:"comments"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateRequest handles POST /api/v1/requests. The body is JSON, or multipart
// with a "request" JSON field and an optional proforma "file".
func (h *Handlers) CreateRequest(c *gin.Context) {
	var in workflow.CreateInput

	if isMultipart(c) {
		if err := json.Unmarshal([]byte(c.PostForm("request")), &in); err != nil {
			h.fail(c, bodyError("request", err))
			return
		}
		doc, err := h.optionalFile(c)
		if err != nil {
			h.fail(c, err)
			return
		}
		in.Proforma = doc
	} else if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, bodyError("body", err))
		return
	}

	req, err := h.engine.CreateRequest(c.Request.Context(), actorFrom(c), in)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: req})
}

// ListRequests handles GET /api/v1/requests
func (h *Handlers) ListRequests(c *gin.Context) {
	var q ListRequestsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.fail(c, bodyError("query", err))
		return
	}

	// paging defaults and bounds are the engine's
	reqs, err := h.engine.ListRequests(c.Request.Context(), actorFrom(c), workflow.ListFilter{
		OwnedBy: q.OwnedBy,
		Status:  entity.RequestStatus(q.Status),
		State:   q.State,
		View:    workflow.ListView(q.View),
		Limit:   q.Limit,
		Offset:  q.Offset,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: reqs})
}

// GetRequest handles GET /api/v1/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	req, err := h.engine.GetRequest(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// UpdateRequest handles PUT /api/v1/requests/:id
func (h *Handlers) UpdateRequest(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	var in workflow.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, bodyError("body", err))
		return
	}

	req, err := h.engine.UpdateRequest(c.Request.Context(), actorFrom(c), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// AttachProforma handles POST /api/v1/requests/:id/proforma
func (h *Handlers) AttachProforma(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	doc, err := h.requiredFile(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	req, err := h.engine.AttachProforma(c.Request.Context(), actorFrom(c), id, *doc)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// Decide handles POST /api/v1/requests/:id/decision
func (h *Handlers) Decide(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	var body DecisionRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, bodyError("approved", err))
		return
	}

	req, err := h.engine.Decide(c.Request.Context(), actorFrom(c), id, *body.Approved, body.Comments)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// FinanceApprove handles POST /api/v1/requests/:id/finance-approval
func (h *Handlers) FinanceApprove(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	var body FinanceApprovalRequest
	// an empty body is allowed
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.fail(c, bodyError("body", err))
			return
		}
	}

	req, err := h.engine.FinanceApprove(c.Request.Context(), actorFrom(c), id, body.Comments)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: req})
}

// SubmitReceipt handles POST /api/v1/requests/:id/receipt. Multipart with a
// "file", an optional "items" JSON array and an optional "seller".
func (h *Handlers) SubmitReceipt(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	doc, err := h.requiredFile(c)
	if err != nil {
		h.fail(c, err)
		return
	}

	in := workflow.ReceiptInput{
		Document: *doc,
		Seller:   strings.TrimSpace(c.PostForm("seller")),
	}
	if raw := strings.TrimSpace(c.PostForm("items")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &in.Items); err != nil {
			h.fail(c, bodyError("items", err))
			return
		}
	}

	result, err := h.engine.SubmitReceipt(c.Request.Context(), actorFrom(c), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// GetReceipt handles GET /api/v1/requests/:id/receipt
func (h *Handlers) GetReceipt(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	receipt, err := h.engine.GetReceipt(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: receipt})
}

// ListApprovals handles GET /api/v1/requests/:id/approvals
func (h *Handlers) ListApprovals(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	approvals, err := h.engine.ListApprovals(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: approvals})
}

// History handles GET /api/v1/requests/:id/history
func (h *Handlers) History(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	records, err := h.engine.History(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: records})
}

// GetPurchaseOrder handles GET /api/v1/requests/:id/purchase-order
func (h *Handlers) GetPurchaseOrder(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	order, err := h.engine.GetPurchaseOrder(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: order})
}

// DownloadPurchaseOrder handles GET /api/v1/requests/:id/purchase-order/file
func (h *Handlers) DownloadPurchaseOrder(c *gin.Context) {
	id, ok := h.requestID(c)
	if !ok {
		return
	}

	content, order, err := h.engine.PurchaseOrderDocument(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", order.PONumber+".pdf"))
	c.Data(http.StatusOK, "application/pdf", content)
}

// ExportRegister handles GET /api/v1/purchase-orders/export
func (h *Handlers) ExportRegister(c *gin.Context) {
	content, contentType, err := h.register.Export(c.Request.Context(), actorFrom(c))
	if err != nil {
		h.fail(c, err)
		return
	}

	filename := fmt.Sprintf("purchase-orders-%s.xlsx", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, content)
}

// fail writes err as a typed error response
func (h *Handlers) fail(c *gin.Context, err error) {
	e := apperr.FromError(err)
	if e.Kind == apperr.KindInternal {
		h.logger.Error("Request failed", "path", c.FullPath(), "actor", actorFrom(c), "error", err)
	}
	c.JSON(e.Status(), Response{Success: false, Error: e})
}

func (h *Handlers) requestID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		h.fail(c, apperr.ValidationFailed(map[string]string{"id": "must be a positive integer"}))
		return 0, false
	}
	return id, true
}

func (h *Handlers) requiredFile(c *gin.Context) (*workflow.Document, error) {
	doc, err := h.optionalFile(c)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, apperr.ValidationFailed(map[string]string{"file": "is required"})
	}
	return doc, nil
}

func (h *Handlers) optionalFile(c *gin.Context) (*workflow.Document, error) {
	header, err := c.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, bodyError("file", err)
	}
	if h.maxUpload > 0 && header.Size > h.maxUpload {
		return nil, apperr.ValidationFailed(map[string]string{"file": fmt.Sprintf("exceeds %d bytes", h.maxUpload)})
	}
	return readDocument(header)
}

func readDocument(header *multipart.FileHeader) (*workflow.Document, error) {
	f, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(content) == 0 {
		return nil, apperr.ValidationFailed(map[string]string{"file": "is empty"})
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(content)
	}
	// drop parameters such as charset
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}

	return &workflow.Document{Content: content, ContentType: contentType}, nil
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/")
}

func bodyError(field string, err error) error {
	return apperr.ValidationFailed(map[string]string{field: err.Error()})
}
