package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-reschedule-api/internal/dto"
	"github.com/noah-isme/sma-reschedule-api/internal/middleware"
	appErrors "github.com/noah-isme/sma-reschedule-api/pkg/errors"
	"github.com/noah-isme/sma-reschedule-api/pkg/response"
)

type rescheduleService interface {
	Draft(ctx context.Context, classID string) (*dto.RescheduleDraft, error)
	Validate(ctx context.Context, classID string, req dto.RescheduleRequest) (*dto.RescheduleReport, error)
	Check(ctx context.Context, classID string, req dto.RescheduleRequest) (*dto.RescheduleReport, error)
	Submit(ctx context.Context, classID string, req dto.RescheduleRequest, actor string) (*dto.RescheduleResult, error)
	History(ctx context.Context, classID string, limit int) (*dto.RescheduleHistory, error)
	TeacherAvailability(ctx context.Context, teacherID string, req dto.TeacherAvailabilityRequest) (*dto.TeacherAvailability, error)
}

// RescheduleHandler exposes the class reschedule workflow.
type RescheduleHandler struct {
	service rescheduleService
}

// NewRescheduleHandler constructs the handler.
func NewRescheduleHandler(service rescheduleService) *RescheduleHandler {
	return &RescheduleHandler{service: service}
}

// Draft godoc
// @Summary Load the reschedule form for a class
// @Tags Reschedule
// @Produce json
// @Param classId path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/reschedule [get]
func (h *RescheduleHandler) Draft(c *gin.Context) {
	draft, err := h.service.Draft(c.Request.Context(), c.Param("classId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft, nil)
}

// Validate godoc
// @Summary Evaluate a batch locally
// @Tags Reschedule
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body dto.RescheduleRequest true "Batch"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/reschedule/validate [post]
func (h *RescheduleHandler) Validate(c *gin.Context) {
	var req dto.RescheduleRequest
	if !bindJSON(c, &req, "invalid reschedule payload") {
		return
	}
	report, err := h.service.Validate(c.Request.Context(), c.Param("classId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Check godoc
// @Summary Evaluate a batch and confirm availability with the conflict checker
// @Tags Reschedule
// @Accept json
// @Produce json
// @Param classId path string true "Class ID"
// @Param payload body dto.RescheduleRequest true "Batch"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/reschedule/check [post]
func (h *RescheduleHandler) Check(c *gin.Context) {
	var req dto.RescheduleRequest
	if !bindJSON(c, &req, "invalid reschedule payload") {
		return
	}
	report, err := h.service.Check(c.Request.Context(), c.Param("classId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "unchecked", len(report.Unchecked))
	response.JSON(c, http.StatusOK, report, nil, middleware.ExtractMeta(c))
}

// Submit godoc
// @Summary Commit a batch of lesson moves
// @Tags Reschedule
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param classId path string true "Class ID"
// @Param payload body dto.RescheduleRequest true "Batch"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{classId}/reschedule [post]
func (h *RescheduleHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.RescheduleRequest
	if !bindJSON(c, &req, "invalid reschedule payload") {
		return
	}
	result, err := h.service.Submit(c.Request.Context(), c.Param("classId"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// History godoc
// @Summary List committed lesson moves of a class
// @Tags Reschedule
// @Produce json
// @Param classId path string true "Class ID"
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Router /classes/{classId}/reschedule/history [get]
func (h *RescheduleHandler) History(c *gin.Context) {
	history, err := h.service.History(c.Request.Context(), c.Param("classId"), queryInt(c, "limit", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// TeacherAvailability godoc
// @Summary Check a weekly pattern against a teacher's bookings
// @Tags Reschedule
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param teacherId path string true "Teacher ID"
// @Param payload body dto.TeacherAvailabilityRequest true "Weekly pattern"
// @Success 200 {object} response.Envelope
// @Router /teachers/{teacherId}/availability [post]
func (h *RescheduleHandler) TeacherAvailability(c *gin.Context) {
	var req dto.TeacherAvailabilityRequest
	if !bindJSON(c, &req, "invalid availability payload") {
		return
	}
	result, err := h.service.TeacherAvailability(c.Request.Context(), c.Param("teacherId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
