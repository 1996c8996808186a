package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"murmur/internal/core/domain"
	"murmur/internal/core/services"
	"murmur/pkg/errors"

	"github.com/gin-gonic/gin"
)

type WidgetHandler struct {
	guests       *services.GuestService
	publicURL    string
	pollInterval time.Duration
}

func NewWidgetHandler(guests *services.GuestService, publicURL string, pollInterval time.Duration) *WidgetHandler {
	return &WidgetHandler{
		guests:       guests,
		publicURL:    strings.TrimRight(publicURL, "/"),
		pollInterval: pollInterval,
	}
}

type widgetPostRequest struct {
	Content    string `json:"content"`
	GuestEmail string `json:"guestEmail"`
}

type widgetMessages struct {
	Messages []*domain.Message `json:"messages"`
	Count    int               `json:"count"`
}

type widgetConfig struct {
	APIURL         string            `json:"apiUrl"`
	Endpoints      map[string]string `json:"endpoints"`
	PollIntervalMs int64             `json:"pollIntervalMs"`
}

// Config tells an embedded widget where to poll and how often. It needs no key.
func (h *WidgetHandler) Config(c *gin.Context) {
	respond(c, http.StatusOK, widgetConfig{
		APIURL: h.publicURL,
		Endpoints: map[string]string{
			"messages": h.publicURL + "/api/widget/messages",
		},
		PollIntervalMs: h.pollInterval.Milliseconds(),
	})
}

func (h *WidgetHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	msgs, err := h.guests.Recent(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusOK, widgetMessages{Messages: msgs, Count: len(msgs)})
}

func (h *WidgetHandler) Post(c *gin.Context) {
	var req widgetPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewInvalidInputError("invalid request format"))
		return
	}

	msg, err := h.guests.Post(c.Request.Context(), req.GuestEmail, req.Content)
	if err != nil {
		_ = c.Error(err)
		return
	}
	respond(c, http.StatusCreated, msg)
}
