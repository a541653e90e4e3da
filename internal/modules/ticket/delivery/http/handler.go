package handler

import (
	"net/http"

	"anoa.com/casethreads/internal/entity"
	"anoa.com/casethreads/internal/modules/ticket/dto"
	"anoa.com/casethreads/internal/modules/ticket/service"
	"anoa.com/casethreads/pkg/response"
	"anoa.com/casethreads/pkg/validator"
	"github.com/gin-gonic/gin"
)

type TicketHandler struct {
	service service.TicketService
}

func NewTicketHandler(service service.TicketService) *TicketHandler {
	return &TicketHandler{service: service}
}

func (h *TicketHandler) ListMyTickets(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var filter dto.TicketFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	tickets, err := h.service.ListTicketsForViewer(c.Request.Context(), userID, filter)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tickets})
}

func (h *TicketHandler) ListCaseTickets(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}
	caseID, err := response.ParamUUID(c, "case_id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	tickets, err := h.service.ListCaseTickets(c.Request.Context(), userID, entity.CaseType(c.Param("case_type")), caseID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": tickets})
}
