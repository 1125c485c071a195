package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"inboxwhats/internal/conversation"
	"inboxwhats/pkg/logger"
)

const eventReceived = "EVENT_RECEIVED"

// Submitter queues an inbound message; *conversation.Inbox implements it.
type Submitter interface {
	Submit(ctx context.Context, msg conversation.InboundMessage) error
}

type WebhookHandler struct {
	inbox       Submitter
	verifyToken string
	logger      *zap.Logger
}

func NewWebhookHandler(inbox Submitter, verifyToken string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		inbox:       inbox,
		verifyToken: verifyToken,
		logger:      logger,
	}
}

// Verify handles GET /webhook, the provider's subscription handshake.
func (h *WebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && h.verifyToken != "" && token == h.verifyToken {
		h.logger.Info("Webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}
	h.logger.Warn("Webhook verification rejected", zap.String("mode", mode))
	c.Status(http.StatusForbidden)
}

type jsonInbound struct {
	From      string `json:"from"`
	Message   string `json:"message"`
	MediaURL  string `json:"mediaUrl"`
	MediaType string `json:"mediaType"`
}

// Receive handles POST /webhook. It answers at once; processing happens on
// the sender's inbox lane.
func (h *WebhookHandler) Receive(c *gin.Context) {
	ctx := c.Request.Context()
	log := logger.WithTrace(ctx, h.logger)

	msg, ok := decodeInbound(c)
	if !ok {
		log.Warn("Invalid webhook payload")
		c.String(http.StatusOK, eventReceived)
		return
	}
	if msg.From == "" {
		log.Warn("Webhook message without sender, ignored")
		c.String(http.StatusOK, eventReceived)
		return
	}
	if msg.Text == "" && msg.MediaURL == "" {
		log.Warn("Webhook message without text or media, ignored",
			zap.String("from", logger.MaskAddress(msg.From)),
		)
		c.String(http.StatusOK, eventReceived)
		return
	}

	if err := h.inbox.Submit(ctx, msg); err != nil {
		log.Error("Failed to queue inbound message",
			zap.String("from", logger.MaskAddress(msg.From)),
			zap.Error(err),
		)
		c.Status(http.StatusServiceUnavailable)
		return
	}
	c.String(http.StatusOK, eventReceived)
}

func decodeInbound(c *gin.Context) (conversation.InboundMessage, bool) {
	if c.ContentType() == gin.MIMEJSON {
		var body jsonInbound
		if err := c.ShouldBindJSON(&body); err != nil {
			return conversation.InboundMessage{}, false
		}
		return conversation.InboundMessage{
			From:      strings.TrimSpace(body.From),
			Text:      strings.TrimSpace(body.Message),
			MediaURL:  body.MediaURL,
			MediaType: body.MediaType,
		}, true
	}

	return conversation.InboundMessage{
		From:      strings.TrimSpace(c.PostForm("From")),
		Text:      strings.TrimSpace(c.PostForm("Body")),
		MediaURL:  c.PostForm("MediaUrl0"),
		MediaType: c.PostForm("MediaContentType0"),
	}, true
}
