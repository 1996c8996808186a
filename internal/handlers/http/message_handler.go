package http

import (
	"net/http"
	"strconv"

	"murmur/internal/core/domain"
	"murmur/internal/core/services"
	"murmur/internal/infrastructure/middleware"
	"murmur/pkg/errors"
	"murmur/pkg/validation"

	"github.com/gin-gonic/gin"
)

// MessageHandler is the polling transport over the chat engine. Writes made
// here are broadcast to websocket clients like any other.
type MessageHandler struct {
	chat *services.ChatService
}

func NewMessageHandler(chat *services.ChatService) *MessageHandler {
	return &MessageHandler{chat: chat}
}

func (h *MessageHandler) List(c *gin.Context) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		page = 1
	}

	result, err := h.chat.ListMessages(c.Request.Context(), page)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, result)
}

func (h *MessageHandler) Create(c *gin.Context) {
	var draft domain.MessageDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		_ = c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	identity, _ := middleware.IdentityFromContext(c)
	msg, err := h.chat.Post(c.Request.Context(), identity, draft)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusCreated, msg)
}

func (h *MessageHandler) Update(c *gin.Context) {
	var patch domain.MessagePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		_ = c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	id, ok := messageID(c)
	if !ok {
		return
	}
	identity, _ := middleware.IdentityFromContext(c)
	msg, err := h.chat.Patch(c.Request.Context(), identity, id, patch)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, msg)
}

func (h *MessageHandler) Delete(c *gin.Context) {
	id, ok := messageID(c)
	if !ok {
		return
	}
	identity, _ := middleware.IdentityFromContext(c)
	if err := h.chat.Remove(c.Request.Context(), identity, id); err != nil {
		_ = c.Error(err)
		return
	}
	respondMessage(c, http.StatusOK, nil, "message deleted")
}

// messageID rejects path IDs the server could never have issued.
func messageID(c *gin.Context) (domain.MessageID, bool) {
	id := c.Param("id")
	if err := validation.ValidateID(id, "message id"); err != nil {
		_ = c.Error(errors.NewInvalidInputError(err.Error()))
		return "", false
	}
	return domain.MessageID(id), true
}
