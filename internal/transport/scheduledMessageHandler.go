package transport

import (
	"net/http"

	"github.com/ds124wfegd/timecapsule/internal/entity"
	"github.com/ds124wfegd/timecapsule/internal/service"

	"github.com/gin-gonic/gin"
)

type ScheduledMessageHandler struct {
	messageService service.ScheduledMessageService
}

func NewScheduledMessageHandler(messageService service.ScheduledMessageService) *ScheduledMessageHandler {
	return &ScheduledMessageHandler{messageService: messageService}
}

type createMessageRequest struct {
	RecipientEmail string `json:"recipientEmail"`
	Subject        string `json:"subject"`
	Message        string `json:"message"`
	DeliveryDate   string `json:"deliveryDate"`
}

func (h *ScheduledMessageHandler) CreateMessage(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	deliveryDate, err := parseDate(req.DeliveryDate)
	if err != nil {
		badRequest(c, "Invalid delivery date")
		return
	}

	msg, err := h.messageService.CreateMessage(c.Request.Context(), currentUserID(c), &entity.CreateScheduledMessageInput{
		RecipientEmail: req.RecipientEmail,
		Subject:        req.Subject,
		Message:        req.Message,
		DeliveryDate:   deliveryDate,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"message":   "Message scheduled successfully.",
		"scheduled": msg,
	})
}

func (h *ScheduledMessageHandler) GetMessages(c *gin.Context) {
	messages, err := h.messageService.ListMessages(c.Request.Context(), currentUserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	if messages == nil {
		messages = []*entity.ScheduledMessage{}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "messages": messages})
}

func (h *ScheduledMessageHandler) DeleteMessage(c *gin.Context) {
	id, ok := idParam(c, entity.ErrMessageNotFound)
	if !ok {
		return
	}

	if err := h.messageService.DeleteMessage(c.Request.Context(), currentUserID(c), id); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Scheduled message deleted."})
}
