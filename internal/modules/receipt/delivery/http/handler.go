package handler

import (
	"net/http"

	"anoa.com/casethreads/internal/modules/receipt/dto"
	"anoa.com/casethreads/internal/modules/receipt/service"
	"anoa.com/casethreads/pkg/response"
	"anoa.com/casethreads/pkg/validator"
	"github.com/gin-gonic/gin"
)

type ReceiptHandler struct {
	service service.ReceiptService
}

func NewReceiptHandler(service service.ReceiptService) *ReceiptHandler {
	return &ReceiptHandler{service: service}
}

// MarkRead accepts the batch and answers before it is written.
func (h *ReceiptHandler) MarkRead(c *gin.Context) {
	userID, err := response.GetUserID(c)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	var req dto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validator.FormatValidationError(err)})
		return
	}

	h.service.MarkReadAsync(req.CommentIDs, userID)
	c.JSON(http.StatusAccepted, gin.H{"message": "Accepted"})
}

func (h *ReceiptHandler) GetReceipts(c *gin.Context) {
	commentID, err := response.ParamUUID(c, "id")
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	receipts, err := h.service.GetReceipts(c.Request.Context(), commentID)
	if err != nil {
		response.ResponseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": receipts})
}
