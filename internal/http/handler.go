package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sunfin/quote-engine/internal/http/middleware"
	"github.com/sunfin/quote-engine/internal/model"
	"github.com/sunfin/quote-engine/internal/service"
)

// PassTrigger runs one SLA pass on demand; the scheduler implements it.
type PassTrigger interface {
	Run(ctx context.Context) (service.PassSummary, error)
}

// InvoiceRenderer renders a settled invoice as a PDF document.
type InvoiceRenderer interface {
	Generate(invoice model.Invoice) ([]byte, error)
}

// StatisticsExporter renders penalty statistics as a workbook.
type StatisticsExporter interface {
	Generate(stats model.PenaltyStatistics) ([]byte, error)
}

type Handler struct {
	requests   *service.RequestService
	quotations *service.QuotationService
	penalties  *service.PenaltyService
	trigger    PassTrigger
	invoicePDF InvoiceRenderer
	statsXLSX  StatisticsExporter
	log        zerolog.Logger
}

func NewHandler(
	requests *service.RequestService,
	quotations *service.QuotationService,
	penalties *service.PenaltyService,
	trigger PassTrigger,
	invoicePDF InvoiceRenderer,
	statsXLSX StatisticsExporter,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		requests:   requests,
		quotations: quotations,
		penalties:  penalties,
		trigger:    trigger,
		invoicePDF: invoicePDF,
		statsXLSX:  statsXLSX,
		log:        log,
	}
}

func (h *Handler) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	protected := router.Group("/")
	protected.Use(authMiddleware)

	protected.POST("/quote-requests", h.createRequest)
	protected.GET("/quote-requests", h.listRequests)
	protected.GET("/quote-requests/:id", h.getRequest)
	protected.POST("/quote-requests/:id/contractors", h.assignContractors)
	protected.GET("/quote-requests/:id/assignments", h.listAssignments)
	protected.POST("/quote-requests/:id/cancel", h.cancelRequest)
	protected.POST("/quote-requests/:id/complete", h.completeRequest)
	protected.POST("/quote-requests/:id/quotations", h.submitQuotation)
	protected.GET("/quote-requests/:id/quotations", h.listQuotations)

	protected.GET("/assignments/:id", h.getAssignment)
	protected.POST("/assignments/:id/respond", h.respondToAssignment)

	protected.GET("/quotations/:id", h.getQuotation)
	protected.POST("/quotations/:id/review", h.reviewQuotation)
	protected.POST("/quotations/:id/select", h.selectQuotation)
	protected.POST("/quotations/:id/unselect", h.unselectQuotation)

	protected.GET("/invoices/:id", h.getInvoice)
	protected.GET("/invoices/:id/pdf", h.getInvoicePDF)

	protected.POST("/penalties", h.applyPenalty)
	protected.GET("/penalties/statistics", h.penaltyStatistics)
	protected.GET("/penalties/statistics/export", h.exportPenaltyStatistics)
	protected.GET("/penalties/:id", h.getPenalty)
	protected.POST("/penalties/:id/dispute", h.disputePenalty)
	protected.POST("/penalties/:id/resolve", h.resolvePenalty)

	protected.GET("/contractors/:id/penalties", h.listContractorPenalties)
	protected.GET("/contractors/:id/wallet", h.getContractorWallet)

	protected.GET("/penalty-rules", h.listPenaltyRules)
	protected.POST("/penalty-rules", h.createPenaltyRule)
	protected.POST("/penalty-rules/:id/deactivate", h.deactivatePenaltyRule)

	protected.POST("/admin/penalty-check/run", h.runPenaltyCheck)
}

type createRequestRequest struct {
	PropertyType          string          `json:"property_type" binding:"required"`
	Address               string          `json:"address" binding:"required"`
	City                  string          `json:"city" binding:"required"`
	MonthlyConsumptionKWh string          `json:"monthly_consumption_kwh" binding:"required"`
	SystemSizeKWp         string          `json:"system_size_kwp" binding:"required"`
	PropertyDetails       json.RawMessage `json:"property_details"`
	PenaltyAcknowledged   bool            `json:"penalty_acknowledged"`
	InstallationDeadline  *string         `json:"installation_deadline"`
}

func (h *Handler) createRequest(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var req createRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	consumption, err := parseDecimal(req.MonthlyConsumptionKWh)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid monthly_consumption_kwh"})
		return
	}
	systemSize, err := parseDecimal(req.SystemSizeKWp)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid system_size_kwp"})
		return
	}

	var deadline *time.Time
	if req.InstallationDeadline != nil {
		parsed, err := parseDate(*req.InstallationDeadline)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid installation_deadline"})
			return
		}
		deadline = &parsed
	}

	created, err := h.requests.Create(c.Request.Context(), service.CreateRequestInput{
		Principal:             principal,
		PropertyType:          req.PropertyType,
		Address:               req.Address,
		City:                  req.City,
		MonthlyConsumptionKWh: consumption,
		SystemSizeKWp:         systemSize,
		PropertyDetails:       req.PropertyDetails,
		PenaltyAcknowledged:   req.PenaltyAcknowledged,
		InstallationDeadline:  deadline,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) listRequests(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	requests, err := h.requests.List(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

func (h *Handler) getRequest(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	request, err := h.requests.Get(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, request)
}

type assignContractorsRequest struct {
	ContractorIDs []string `json:"contractor_ids" binding:"required"`
}

func (h *Handler) assignContractors(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	requestID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req assignContractorsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contractorIDs := make([]uuid.UUID, 0, len(req.ContractorIDs))
	for _, raw := range req.ContractorIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid contractor id %q", raw)})
			return
		}
		contractorIDs = append(contractorIDs, id)
	}

	assignments, err := h.requests.AssignContractors(c.Request.Context(), service.AssignContractorsInput{
		Principal:     principal,
		RequestID:     requestID,
		ContractorIDs: contractorIDs,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, assignments)
}

func (h *Handler) listAssignments(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	requestID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	assignments, err := h.requests.ListAssignments(c.Request.Context(), principal, requestID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignments)
}

type cancelRequestRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) cancelRequest(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	requestID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req cancelRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cancelled, err := h.requests.Cancel(c.Request.Context(), service.CancelRequestInput{
		Principal: principal,
		RequestID: requestID,
		Reason:    req.Reason,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, cancelled)
}

func (h *Handler) completeRequest(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	requestID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	completed, err := h.requests.Complete(c.Request.Context(), principal, requestID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, completed)
}

func (h *Handler) getAssignment(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	assignment, err := h.requests.GetAssignment(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

type assignmentResponseRequest struct {
	Response string  `json:"response" binding:"required"`
	Notes    *string `json:"notes"`
}

func (h *Handler) respondToAssignment(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req assignmentResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	assignment, err := h.requests.RespondToAssignment(c.Request.Context(), service.AssignmentResponseInput{
		Principal:    principal,
		AssignmentID: id,
		Response:     model.AssignmentStatus(strings.ToUpper(strings.TrimSpace(req.Response))),
		Notes:        req.Notes,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}

type submitQuotationRequest struct {
	SystemSpecs      json.RawMessage           `json:"system_specs" binding:"required"`
	WarrantyTerms    string                    `json:"warranty_terms" binding:"required"`
	MaintenanceTerms string                    `json:"maintenance_terms" binding:"required"`
	LineItems        []submitQuotationLineItem `json:"line_items" binding:"required"`
}

type submitQuotationLineItem struct {
	Description string `json:"description" binding:"required"`
	Units       string `json:"units" binding:"required"`
	UnitPrice   string `json:"unit_price" binding:"required"`
}

func (h *Handler) submitQuotation(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	requestID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req submitQuotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := make([]service.SubmitLineItem, 0, len(req.LineItems))
	for i, item := range req.LineItems {
		units, err := parseDecimal(item.Units)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid units in line item %d", i+1)})
			return
		}
		unitPrice, err := parseDecimal(item.UnitPrice)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid unit_price in line item %d", i+1)})
			return
		}
		items = append(items, service.SubmitLineItem{
			Description: item.Description,
			Units:       units,
			UnitPrice:   unitPrice,
		})
	}

	quote, err := h.quotations.Submit(c.Request.Context(), service.SubmitQuotationInput{
		Principal:        principal,
		RequestID:        requestID,
		SystemSpecs:      req.SystemSpecs,
		WarrantyTerms:    req.WarrantyTerms,
		MaintenanceTerms: req.MaintenanceTerms,
		LineItems:        items,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, quote)
}

func (h *Handler) listQuotations(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	requestID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	quotes, err := h.quotations.ListByRequest(c.Request.Context(), principal, requestID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, quotes)
}

func (h *Handler) getQuotation(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	quote, err := h.quotations.Get(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

type reviewQuotationRequest struct {
	Decision      string  `json:"decision" binding:"required"`
	Notes         string  `json:"notes"`
	PriceOverride *string `json:"price_override"`
}

func (h *Handler) reviewQuotation(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req reviewQuotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var override *decimal.Decimal
	if req.PriceOverride != nil {
		parsed, err := parseDecimal(*req.PriceOverride)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid price_override"})
			return
		}
		override = &parsed
	}

	quote, err := h.quotations.Review(c.Request.Context(), service.ReviewQuotationInput{
		Principal:     principal,
		QuotationID:   id,
		Decision:      service.ReviewDecision(strings.ToLower(strings.TrimSpace(req.Decision))),
		Notes:         req.Notes,
		PriceOverride: override,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (h *Handler) selectQuotation(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	invoice, err := h.quotations.Select(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, invoice)
}

func (h *Handler) unselectQuotation(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.quotations.Unselect(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getInvoice(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	invoice, err := h.quotations.GetInvoice(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (h *Handler) getInvoicePDF(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	invoice, err := h.quotations.GetInvoice(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	content, err := h.invoicePDF.Generate(*invoice)
	if err != nil {
		h.handleError(c, err)
		return
	}

	fileName := invoice.InvoiceNumber + ".pdf"
	c.Header("Content-Disposition", "attachment; filename=\""+fileName+"\"")
	c.Data(http.StatusOK, "application/pdf", content)
}

type applyPenaltyRequest struct {
	ContractorID string          `json:"contractor_id" binding:"required"`
	RequestID    string          `json:"request_id" binding:"required"`
	QuotationID  *string         `json:"quotation_id"`
	Type         string          `json:"type" binding:"required"`
	Description  string          `json:"description" binding:"required"`
	CustomAmount *string         `json:"custom_amount"`
	Evidence     json.RawMessage `json:"evidence"`
}

func (h *Handler) applyPenalty(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var req applyPenaltyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contractorID, err := uuid.Parse(strings.TrimSpace(req.ContractorID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contractor_id"})
		return
	}
	requestID, err := uuid.Parse(strings.TrimSpace(req.RequestID))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request_id"})
		return
	}

	var quotationID *uuid.UUID
	if req.QuotationID != nil {
		parsed, err := uuid.Parse(strings.TrimSpace(*req.QuotationID))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid quotation_id"})
			return
		}
		quotationID = &parsed
	}

	var customAmount *decimal.Decimal
	if req.CustomAmount != nil {
		parsed, err := parseDecimal(*req.CustomAmount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid custom_amount"})
			return
		}
		customAmount = &parsed
	}

	penalty, err := h.penalties.Apply(c.Request.Context(), service.ApplyPenaltyInput{
		Principal:    principal,
		ContractorID: contractorID,
		RequestID:    requestID,
		QuotationID:  quotationID,
		Type:         model.PenaltyType(strings.ToUpper(strings.TrimSpace(req.Type))),
		Description:  req.Description,
		CustomAmount: customAmount,
		Evidence:     req.Evidence,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, penalty)
}

func (h *Handler) getPenalty(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	penalty, err := h.penalties.Get(c.Request.Context(), principal, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, penalty)
}

type disputePenaltyRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) disputePenalty(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req disputePenaltyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	penalty, err := h.penalties.Dispute(c.Request.Context(), service.DisputePenaltyInput{
		Principal: principal,
		PenaltyID: id,
		Reason:    req.Reason,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, penalty)
}

type resolvePenaltyRequest struct {
	Resolution string  `json:"resolution" binding:"required"`
	Notes      string  `json:"notes" binding:"required"`
	NewAmount  *string `json:"new_amount"`
}

func (h *Handler) resolvePenalty(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	var req resolvePenaltyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var newAmount *decimal.Decimal
	if req.NewAmount != nil {
		parsed, err := parseDecimal(*req.NewAmount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid new_amount"})
			return
		}
		newAmount = &parsed
	}

	penalty, err := h.penalties.Resolve(c.Request.Context(), service.ResolvePenaltyInput{
		Principal:  principal,
		PenaltyID:  id,
		Resolution: model.PenaltyResolution(strings.ToUpper(strings.TrimSpace(req.Resolution))),
		Notes:      req.Notes,
		NewAmount:  newAmount,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, penalty)
}

func (h *Handler) listContractorPenalties(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	contractorID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	penalties, err := h.penalties.ListByContractor(c.Request.Context(), principal, contractorID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, penalties)
}

func (h *Handler) getContractorWallet(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	contractorID, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	wallet, err := h.penalties.Wallet(c.Request.Context(), principal, contractorID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}

func (h *Handler) penaltyStatistics(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	stats, err := h.penalties.Statistics(c.Request.Context(), principal, c.Query("period"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) exportPenaltyStatistics(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	stats, err := h.penalties.Statistics(c.Request.Context(), principal, c.Query("period"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	content, err := h.statsXLSX.Generate(*stats)
	if err != nil {
		h.handleError(c, err)
		return
	}

	fileName := fmt.Sprintf("penalty-statistics-%s.xlsx", stats.PeriodEnd.Format("20060102"))
	c.Header("Content-Disposition", "attachment; filename=\""+fileName+"\"")
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", content)
}

func (h *Handler) listPenaltyRules(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	rules, err := h.penalties.ListRules(c.Request.Context(), principal)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

type createPenaltyRuleRequest struct {
	Type      string  `json:"type" binding:"required"`
	Amount    *string `json:"amount"`
	Percent   *string `json:"percent"`
	AutoApply bool    `json:"auto_apply"`
}

func (h *Handler) createPenaltyRule(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var req createPenaltyRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var amount, percent *decimal.Decimal
	if req.Amount != nil {
		parsed, err := parseDecimal(*req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		amount = &parsed
	}
	if req.Percent != nil {
		parsed, err := parseDecimal(*req.Percent)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid percent"})
			return
		}
		percent = &parsed
	}

	rule, err := h.penalties.CreateRule(c.Request.Context(), service.CreateRuleInput{
		Principal: principal,
		Type:      model.PenaltyType(strings.ToUpper(strings.TrimSpace(req.Type))),
		Amount:    amount,
		Percent:   percent,
		AutoApply: req.AutoApply,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (h *Handler) deactivatePenaltyRule(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	id, err := parseID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	if err := h.penalties.DeactivateRule(c.Request.Context(), principal, id); err != nil {
		h.handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) runPenaltyCheck(c *gin.Context) {
	principal, ok := middleware.MustPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}
	if !principal.IsAdmin() {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin only"})
		return
	}

	summary, err := h.trigger.Run(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrDependencyUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func parseID(c *gin.Context) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(c.Param("id")))
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(raw))
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, service.ErrInvalidInput
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02T15:04:05",
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, service.ErrInvalidInput
}
