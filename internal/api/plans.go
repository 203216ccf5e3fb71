package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pageza/platecoach/backend/internal/apperrors"
	"github.com/pageza/platecoach/backend/internal/middleware"
	"github.com/pageza/platecoach/backend/internal/service"
)

// PlanHandler serves the tenant-scoped plan endpoints.
type PlanHandler struct {
	plans service.IPlanService
}

// NewPlanHandler creates a plan handler
func NewPlanHandler(plans service.IPlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// RegisterRoutes mounts the plan routes on router. auth must authenticate
// the tenant; submitLimit, when non-nil, runs after auth on submissions.
func (h *PlanHandler) RegisterRoutes(router *gin.RouterGroup, auth gin.HandlerFunc, submitLimit gin.HandlerFunc) {
	plans := router.Group("/plans", auth)
	{
		submit := []gin.HandlerFunc{h.Submit}
		if submitLimit != nil {
			submit = append([]gin.HandlerFunc{submitLimit}, submit...)
		}
		plans.POST("", submit...)
		plans.GET("", h.List)
		plans.GET("/:id/status", h.Status)
		plans.POST("/:id/retry", h.Retry)
		plans.GET("/:id/pdf", h.ExportPDF)
	}
}

func (h *PlanHandler) Submit(c *gin.Context) {
	tenantID, ok := tenant(c)
	if !ok {
		return
	}

	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Questionnaire == nil {
		verr := apperrors.NewValidationError()
		verr.Add("questionnaire", "is required")
		respondError(c, verr)
		return
	}

	plan, err := h.plans.Submit(c.Request.Context(), tenantID, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"plan": newPlanResponse(plan)})
}

func (h *PlanHandler) Status(c *gin.Context) {
	tenantID, planID, ok := tenantAndPlan(c)
	if !ok {
		return
	}

	snap, err := h.plans.Status(c.Request.Context(), tenantID, planID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, newPlanStatusResponse(snap))
}

func (h *PlanHandler) Retry(c *gin.Context) {
	tenantID, planID, ok := tenantAndPlan(c)
	if !ok {
		return
	}

	plan, err := h.plans.Retry(c.Request.Context(), tenantID, planID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"plan": newPlanResponse(plan)})
}

func (h *PlanHandler) ExportPDF(c *gin.Context) {
	tenantID, planID, ok := tenantAndPlan(c)
	if !ok {
		return
	}

	export, err := h.plans.ExportPDF(c.Request.Context(), tenantID, planID)
	if err != nil {
		respondError(c, err)
		return
	}
	if export.ArchiveURL != "" {
		c.Header("X-Archive-URL", export.ArchiveURL)
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename))
	c.Data(http.StatusOK, "application/pdf", export.PDF)
}

func (h *PlanHandler) List(c *gin.Context) {
	tenantID, ok := tenant(c)
	if !ok {
		return
	}

	var statuses []string
	if raw := c.Query("status"); raw != "" {
		statuses = strings.Split(raw, ",")
	}
	plans, err := h.plans.List(c.Request.Context(), tenantID, statuses)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]PlanResponse, 0, len(plans))
	for i := range plans {
		out = append(out, newPlanResponse(&plans[i]))
	}
	c.JSON(http.StatusOK, gin.H{"plans": out})
}

func tenant(c *gin.Context) (uuid.UUID, bool) {
	tenantID, ok := middleware.TenantID(c)
	if !ok {
		respondError(c, apperrors.ErrUnauthorized)
		return uuid.Nil, false
	}
	return tenantID, true
}

// tenantAndPlan resolves the caller and the :id parameter. A malformed id is
// reported as not found.
func tenantAndPlan(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	tenantID, ok := tenant(c)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.ErrNotFound)
		return uuid.Nil, uuid.Nil, false
	}
	return tenantID, planID, true
}
