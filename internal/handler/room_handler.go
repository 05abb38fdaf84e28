package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-reschedule-api/internal/dto"
	"github.com/noah-isme/sma-reschedule-api/internal/models"
	"github.com/noah-isme/sma-reschedule-api/internal/scheduling"
	"github.com/noah-isme/sma-reschedule-api/pkg/response"
)

type roomService interface {
	List(ctx context.Context, filter models.RoomFilter) ([]models.Room, *models.Pagination, bool, error)
	Get(ctx context.Context, id string) (*models.Room, error)
	Schedule(ctx context.Context, id, rawDate string) (*dto.RoomSchedule, error)
	CheckAvailability(ctx context.Context, req dto.CheckAvailabilityRequest) (*dto.CheckAvailabilityResponse, error)
	SearchAvailable(ctx context.Context, req dto.SearchAvailableRequest) ([]scheduling.RankedRoom, error)
	Alternatives(ctx context.Context, req dto.AlternativesRequest) ([]scheduling.Candidate, error)
}

type timetableExporter interface {
	Render(ctx context.Context, roomID, rawDate string, format dto.ExportFormat) (*dto.ExportFile, error)
	Publish(ctx context.Context, roomID, rawDate string, format dto.ExportFormat) (*dto.ExportLink, error)
}

// RoomHandler exposes room catalog, calendar and availability endpoints.
type RoomHandler struct {
	rooms   roomService
	exports timetableExporter
}

// NewRoomHandler constructs a room handler.
func NewRoomHandler(rooms roomService, exports timetableExporter) *RoomHandler {
	return &RoomHandler{rooms: rooms, exports: exports}
}

// List godoc
// @Summary List rooms
// @Tags Rooms
// @Produce json
// @Param building query string false "Filter by building"
// @Param type query string false "Filter by room type"
// @Param status query string false "Filter by status"
// @Param min_capacity query int false "Minimum capacity"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /rooms [get]
func (h *RoomHandler) List(c *gin.Context) {
	filter := models.RoomFilter{
		Building:    c.Query("building"),
		Type:        c.Query("type"),
		Status:      strings.ToUpper(c.Query("status")),
		MinCapacity: queryInt(c, "min_capacity", 0),
		Search:      strings.TrimSpace(c.Query("search")),
		Page:        queryInt(c, "page", 1),
		PageSize:    queryInt(c, "limit", 20),
		SortBy:      c.Query("sort"),
		SortOrder:   c.Query("order"),
	}

	rooms, pagination, hit, err := h.rooms.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondWithMeta(c, http.StatusOK, rooms, pagination, hit)
}

// Get godoc
// @Summary Get room detail
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} response.Envelope
// @Router /rooms/{id} [get]
func (h *RoomHandler) Get(c *gin.Context) {
	room, err := h.rooms.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, room, nil)
}

// Schedule godoc
// @Summary Room week calendar
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Param date query string false "Any date in the week (YYYY-MM-DD). Defaults to today"
// @Success 200 {object} response.Envelope
// @Router /rooms/{id}/schedule [get]
func (h *RoomHandler) Schedule(c *gin.Context) {
	schedule, err := h.rooms.Schedule(c.Request.Context(), c.Param("id"), c.Query("date"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// ExportSchedule godoc
// @Summary Download a room week timetable
// @Tags Rooms
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Room ID"
// @Param date query string false "Any date in the week (YYYY-MM-DD)"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /rooms/{id}/schedule/export [get]
func (h *RoomHandler) ExportSchedule(c *gin.Context) {
	file, err := h.exports.Render(c.Request.Context(), c.Param("id"), c.Query("date"), exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// PublishSchedule godoc
// @Summary Store a room week timetable behind a signed download link
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Param date query string false "Any date in the week (YYYY-MM-DD)"
// @Param format query string false "csv or pdf"
// @Success 201 {object} response.Envelope
// @Router /rooms/{id}/schedule/exports [post]
func (h *RoomHandler) PublishSchedule(c *gin.Context) {
	link, err := h.exports.Publish(c.Request.Context(), c.Param("id"), c.Query("date"), exportFormat(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// CheckAvailability godoc
// @Summary Check whether a room is free
// @Tags Rooms
// @Accept json
// @Produce json
// @Param payload body dto.CheckAvailabilityRequest true "Placement"
// @Success 200 {object} response.Envelope
// @Router /rooms/check-availability [post]
func (h *RoomHandler) CheckAvailability(c *gin.Context) {
	var req dto.CheckAvailabilityRequest
	if !bindJSON(c, &req, "invalid availability payload") {
		return
	}
	result, err := h.rooms.CheckAvailability(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SearchAvailable godoc
// @Summary Search free rooms ranked by preference
// @Tags Rooms
// @Accept json
// @Produce json
// @Param payload body dto.SearchAvailableRequest true "Placement and filters"
// @Success 200 {object} response.Envelope
// @Router /rooms/search-available [post]
func (h *RoomHandler) SearchAvailable(c *gin.Context) {
	var req dto.SearchAvailableRequest
	if !bindJSON(c, &req, "invalid search payload") {
		return
	}
	rooms, err := h.rooms.SearchAvailable(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rooms, nil)
}

// Alternatives godoc
// @Summary Recommend alternative rooms, times or dates
// @Tags Rooms
// @Accept json
// @Produce json
// @Param payload body dto.AlternativesRequest true "Rejected placement"
// @Success 200 {object} response.Envelope
// @Router /rooms/alternatives [post]
func (h *RoomHandler) Alternatives(c *gin.Context) {
	var req dto.AlternativesRequest
	if !bindJSON(c, &req, "invalid alternatives payload") {
		return
	}
	candidates, err := h.rooms.Alternatives(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, candidates, nil)
}

func exportFormat(c *gin.Context) dto.ExportFormat {
	return dto.ExportFormat(strings.ToLower(strings.TrimSpace(c.Query("format"))))
}
