package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vitalchain/vitalchain-api/internal/middleware"
	"github.com/vitalchain/vitalchain-api/internal/records"
	"github.com/vitalchain/vitalchain-api/internal/service"
	appErrors "github.com/vitalchain/vitalchain-api/pkg/errors"
	"github.com/vitalchain/vitalchain-api/pkg/response"
)

// RecordHandler exposes the health record endpoints.
type RecordHandler struct {
	records *service.RecordService
}

// NewRecordHandler constructs RecordHandler.
func NewRecordHandler(records *service.RecordService) *RecordHandler {
	return &RecordHandler{records: records}
}

// Submit godoc
// @Summary Submit a health record
// @Tags Records
// @Accept json
// @Produce json
// @Param payload body records.Submission true "Record payload"
// @Success 201 {object} response.Envelope
// @Router /records [post]
func (h *RecordHandler) Submit(c *gin.Context) {
	var sub records.Submission
	if err := c.ShouldBindJSON(&sub); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.records.Submit(c.Request.Context(), sub)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// GetPublic godoc
// @Summary Get a record's public projection
// @Tags Records
// @Produce json
// @Param documentId path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /records/{documentId} [get]
func (h *RecordHandler) GetPublic(c *gin.Context) {
	projection, hit, err := h.records.GetPublic(c.Request.Context(), c.Param("documentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	response.JSON(c, http.StatusOK, projection, nil, middleware.ExtractMeta(c))
}

// GetPrivate godoc
// @Summary Get a record's decrypted private payload
// @Tags Records
// @Produce json
// @Param documentId path string true "Document ID"
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /records/{documentId}/private [get]
func (h *RecordHandler) GetPrivate(c *gin.Context) {
	payload, err := h.records.GetPrivate(c.Request.Context(), c.Param("documentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payload, nil)
}

// ListBySubject godoc
// @Summary List a subject's record projections
// @Tags Records
// @Produce json
// @Param subjectRef path string true "Subject reference"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /subjects/{subjectRef}/records [get]
func (h *RecordHandler) ListBySubject(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	projections, pagination, err := h.records.ListBySubject(c.Request.Context(), c.Param("subjectRef"), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, projections, pagination)
}

// Archive godoc
// @Summary Archive a record
// @Tags Records
// @Produce json
// @Param documentId path string true "Document ID"
// @Security BearerAuth
// @Success 204
// @Router /records/{documentId} [delete]
func (h *RecordHandler) Archive(c *gin.Context) {
	if err := h.records.Archive(c.Request.Context(), c.Param("documentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
