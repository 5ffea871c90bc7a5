package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/placipy/assessment-backend/internal/middleware"
	"github.com/placipy/assessment-backend/internal/model"
	"github.com/placipy/assessment-backend/internal/repository"
	"github.com/placipy/assessment-backend/internal/response"
	"github.com/placipy/assessment-backend/internal/service"
	"github.com/placipy/assessment-backend/internal/validator"
)

// AssessmentHandler handles assessment catalog endpoints.
type AssessmentHandler struct {
	assessmentService *service.AssessmentService
}

// NewAssessmentHandler creates a new AssessmentHandler.
func NewAssessmentHandler(assessmentService *service.AssessmentService) *AssessmentHandler {
	return &AssessmentHandler{assessmentService: assessmentService}
}

// CreateAssessment godoc
// POST /api/v1/assessments
// Creates an assessment: allocates an identifier, classifies and batches
// the questions, and returns the full denormalized record.
func (h *AssessmentHandler) CreateAssessment(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.CreateAssessmentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if req.CreatedByName == "" {
		req.CreatedByName = claims.Name
	}

	created, err := h.assessmentService.Create(c.Request.Context(), &req, claims.Email)
	if err != nil {
		if errors.Is(err, service.ErrAllocationExhausted) {
			response.Fail(c, http.StatusConflict, response.ErrAllocationExhausted)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"assessment": created})
}

// GetAssessment godoc
// GET /api/v1/assessments/:assessment_id
// Fetches one assessment with its reassembled question list.
func (h *AssessmentHandler) GetAssessment(c *gin.Context) {
	assessment, err := h.assessmentService.GetByID(c.Request.Context(), c.Param("assessment_id"))
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if assessment == nil {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"assessment": assessment})
}

// ListAssessments godoc
// GET /api/v1/assessments
// Lists assessment headers (without questions) with token pagination and
// optional equality filters.
func (h *AssessmentHandler) ListAssessments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	filters := model.ListFilters{
		Category:   c.Query("category"),
		Difficulty: model.Difficulty(c.Query("difficulty")),
		Status:     model.AssessmentStatus(c.Query("status")),
		Scope:      c.Query("scope"),
	}
	if published := c.Query("is_published"); published != "" {
		v := published == "true"
		filters.IsPublished = &v
	}

	page, err := h.assessmentService.List(c.Request.Context(), filters, limit, c.Query("next_token"))
	if err != nil {
		if errors.Is(err, repository.ErrInvalidPageToken) {
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidPageToken)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"assessments": page.Items}, &response.Pagination{
		Count:     len(page.Items),
		NextToken: page.NextToken,
		HasMore:   page.HasMore,
	})
}

// UpdateAssessment godoc
// PATCH /api/v1/assessments/:assessment_id
// Merges a partial field set into the header. A "questions" key replaces
// every stored question batch.
func (h *AssessmentHandler) UpdateAssessment(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var updates model.UpdateAssessmentRequest
	if err := c.ShouldBindJSON(&updates); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}
	if len(updates) == 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}

	updated, err := h.assessmentService.Update(c.Request.Context(), c.Param("assessment_id"), updates, claims.Email)
	if err != nil {
		if errors.Is(err, service.ErrAssessmentNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"assessment": updated})
}

// DeleteAssessment godoc
// DELETE /api/v1/assessments/:assessment_id
// Removes the header and every question batch.
func (h *AssessmentHandler) DeleteAssessment(c *gin.Context) {
	if err := h.assessmentService.Delete(c.Request.Context(), c.Param("assessment_id")); err != nil {
		if errors.Is(err, service.ErrAssessmentNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "assessment deleted successfully"})
}

// VerifyAssessment godoc
// GET /api/v1/assessments/:assessment_id/verify
// Compares the stored entities summary against one recomputed from the
// persisted batches.
func (h *AssessmentHandler) VerifyAssessment(c *gin.Context) {
	result, err := h.assessmentService.Verify(c.Request.Context(), c.Param("assessment_id"))
	if err != nil {
		if errors.Is(err, service.ErrAssessmentNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"verification": result})
}

// RepairAssessment godoc
// POST /api/v1/assessments/:assessment_id/repair
// Rewrites a drifted entities summary from the persisted batches.
func (h *AssessmentHandler) RepairAssessment(c *gin.Context) {
	result, err := h.assessmentService.Repair(c.Request.Context(), c.Param("assessment_id"))
	if err != nil {
		if errors.Is(err, service.ErrAssessmentNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"verification": result})
}
