package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vitalchain/vitalchain-api/internal/middleware"
	"github.com/vitalchain/vitalchain-api/internal/models"
	"github.com/vitalchain/vitalchain-api/internal/service"
	appErrors "github.com/vitalchain/vitalchain-api/pkg/errors"
	"github.com/vitalchain/vitalchain-api/pkg/response"
)

// BadgeHandler exposes badge minting, verification and claim endpoints.
type BadgeHandler struct {
	badges *service.BadgeService
}

// NewBadgeHandler constructs BadgeHandler.
func NewBadgeHandler(badges *service.BadgeService) *BadgeHandler {
	return &BadgeHandler{badges: badges}
}

// Mint godoc
// @Summary Mint a course completion badge
// @Tags Badges
// @Accept json
// @Produce json
// @Param payload body service.MintRequest true "Mint payload"
// @Security BearerAuth
// @Success 201 {object} response.Envelope
// @Router /badges/mint [post]
func (h *BadgeHandler) Mint(c *gin.Context) {
	var req service.MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	badge, err := h.badges.Mint(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, badge)
}

// ListMine godoc
// @Summary List the authenticated user's badges
// @Tags Badges
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /badges [get]
func (h *BadgeHandler) ListMine(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	badges, err := h.badges.ListForUser(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, badges, nil)
}

// GetByTransaction godoc
// @Summary Get the badge minted under a ledger transaction
// @Tags Badges
// @Produce json
// @Param transactionId path string true "Ledger transaction ID"
// @Success 200 {object} response.Envelope
// @Router /badges/transaction/{transactionId} [get]
func (h *BadgeHandler) GetByTransaction(c *gin.Context) {
	badge, err := h.badges.GetByTransaction(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, badge, nil)
}

// Verify godoc
// @Summary Verify a badge by ledger transaction
// @Tags Badges
// @Produce json
// @Param transactionId path string true "Ledger transaction ID"
// @Success 200 {object} response.Envelope
// @Router /badges/verify/{transactionId} [get]
func (h *BadgeHandler) Verify(c *gin.Context) {
	result, err := h.badges.Verify(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Claim godoc
// @Summary Claim an earned badge
// @Tags Badges
// @Produce json
// @Param badgeId path string true "Badge ID"
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /badges/{badgeId}/claim [post]
func (h *BadgeHandler) Claim(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	claim, err := h.badges.Claim(c.Request.Context(), claims.UserID, c.Param("badgeId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, claim, nil)
}

// Certificate godoc
// @Summary Download a badge certificate as PDF
// @Tags Badges
// @Produce application/pdf
// @Param transactionId path string true "Ledger transaction ID"
// @Success 200 {file} binary
// @Router /badges/transaction/{transactionId}/certificate [get]
func (h *BadgeHandler) Certificate(c *gin.Context) {
	pdf, err := h.badges.Certificate(c.Request.Context(), c.Param("transactionId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="badge-certificate.pdf"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

// currentClaims extracts the JWT claims placed on the context by the auth
// middleware.
func currentClaims(c *gin.Context) *models.JWTClaims {
	raw, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := raw.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}
